package irc

import (
	"testing"
)

// Test vector from RFC 7677 section 3
func TestSCRAMSHA256Exchange(t *testing.T) {
	client, err := newSCRAMClient("SCRAM-SHA-256", "user", "pencil")
	if err != nil {
		t.Fatalf("newSCRAMClient failed: %v", err)
	}
	client.clientNonce = "rOprNGfwEbeRWgbNEkqO"

	mech, first, err := client.Start()
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if mech != "SCRAM-SHA-256" {
		t.Errorf("mechanism = %q", mech)
	}
	if string(first) != "n,,n=user,r=rOprNGfwEbeRWgbNEkqO" {
		t.Errorf("client first = %q", first)
	}

	serverFirst := "r=rOprNGfwEbeRWgbNEkqO%hvYDpWUa2RaTCAfuxFIlj)hNlF$k0,s=W22ZaJ0SNY7soEsUEjb6gQ==,i=4096"
	final, err := client.Next([]byte(serverFirst))
	if err != nil {
		t.Fatalf("Next failed: %v", err)
	}
	want := "c=biws,r=rOprNGfwEbeRWgbNEkqO%hvYDpWUa2RaTCAfuxFIlj)hNlF$k0,p=dHzbZapWIk4jUhN+Ute9ytag9zjfMHgsqmmiz7AndVQ="
	if string(final) != want {
		t.Errorf("client final = %q, want %q", final, want)
	}

	if _, err := client.Next([]byte("v=6rriTRBi23WpRR/wtup+mMhUZUn/dB5nLTJRsjl95G4=")); err != nil {
		t.Errorf("server signature rejected: %v", err)
	}
	if _, err := client.Next(nil); err == nil {
		t.Error("expected error for an extra challenge")
	}
}

func TestSCRAMRejectsBadServer(t *testing.T) {
	tests := []struct {
		name        string
		serverFirst string
		serverFinal string
	}{
		{"foreign nonce", "r=somethingelse,s=W22ZaJ0SNY7soEsUEjb6gQ==,i=4096", ""},
		{"bad salt", "r=rOprNGfwEbeRWgbNEkqOxyz,s=!!!,i=4096", ""},
		{"bad iterations", "r=rOprNGfwEbeRWgbNEkqOxyz,s=W22ZaJ0SNY7soEsUEjb6gQ==,i=zero", ""},
		{"wrong signature", "r=rOprNGfwEbeRWgbNEkqOxyz,s=W22ZaJ0SNY7soEsUEjb6gQ==,i=4096", "v=AAAA"},
		{"server error", "r=rOprNGfwEbeRWgbNEkqOxyz,s=W22ZaJ0SNY7soEsUEjb6gQ==,i=4096", "e=invalid-proof"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, err := newSCRAMClient("SCRAM-SHA-256", "user", "pencil")
			if err != nil {
				t.Fatalf("newSCRAMClient failed: %v", err)
			}
			client.clientNonce = "rOprNGfwEbeRWgbNEkqO"
			client.Start()

			_, err = client.Next([]byte(tt.serverFirst))
			if tt.serverFinal == "" {
				if err == nil {
					t.Error("expected error for server first message")
				}
				return
			}
			if err != nil {
				t.Fatalf("Next failed: %v", err)
			}
			if _, err := client.Next([]byte(tt.serverFinal)); err == nil {
				t.Error("expected error for server final message")
			}
		})
	}
}

func TestSCRAMUnsupportedMechanism(t *testing.T) {
	if _, err := newSCRAMClient("SCRAM-SHA-1", "user", "pencil"); err == nil {
		t.Error("expected error for SCRAM-SHA-1")
	}
}

func TestEscapeSCRAMName(t *testing.T) {
	if got := escapeSCRAMName("a=b,c"); got != "a=3Db=2Cc" {
		t.Errorf("escapeSCRAMName = %q", got)
	}
}

func TestNewSASLClient(t *testing.T) {
	for _, mech := range []string{"", "plain", "EXTERNAL", "SCRAM-SHA-256", "scram-sha-512"} {
		if _, err := newSASLClient(SASLParams{Mechanism: mech, Username: "u", Password: "p"}); err != nil {
			t.Errorf("newSASLClient(%q) failed: %v", mech, err)
		}
	}
	if _, err := newSASLClient(SASLParams{Mechanism: "DIGEST-MD5"}); err == nil {
		t.Error("expected error for DIGEST-MD5")
	}
}

func TestBuildLine(t *testing.T) {
	tests := []struct {
		command string
		params  []string
		want    string
	}{
		{"AUTHENTICATE", []string{"PLAIN"}, "AUTHENTICATE PLAIN"},
		{"AUTHENTICATE", []string{"+"}, "AUTHENTICATE +"},
		{"CAP", []string{"END"}, "CAP END"},
	}
	for _, tt := range tests {
		if got := buildLine(tt.command, tt.params...); got != tt.want {
			t.Errorf("buildLine(%q, %v) = %q, want %q", tt.command, tt.params, got, tt.want)
		}
	}
}
