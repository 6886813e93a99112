package text

import (
	"errors"
	"reflect"
	"strings"
	"testing"
	"unicode/utf8"
)

func TestDecode(t *testing.T) {
	tests := []struct {
		body  string
		typ   Type
		text  string
		valid bool
	}{
		{"hello", Normal, "hello", true},
		{"\x02bold\x02 text", Normal, "bold text", true},
		{"\x01ACTION waves\x01", Action, "waves", true},
		{"\x01action waves", Action, "waves", true},
		{"\x01VERSION\x01", Normal, "", false},
	}

	for _, tt := range tests {
		typ, text, ok := Decode(tt.body)
		if typ != tt.typ || text != tt.text || ok != tt.valid {
			t.Errorf("Decode(%q) = %v, %q, %v", tt.body, typ, text, ok)
		}
	}
}

func TestEncodeSimple(t *testing.T) {
	lines, err := EncodeAndSplit(Normal, "#test", "hello", 400)
	if err != nil {
		t.Fatalf("EncodeAndSplit failed: %v", err)
	}
	if !reflect.DeepEqual(lines, []string{"PRIVMSG #test :hello"}) {
		t.Errorf("lines = %q", lines)
	}

	lines, _ = EncodeAndSplit(Action, "bob", "waves", 400)
	if !reflect.DeepEqual(lines, []string{"PRIVMSG bob :\x01ACTION waves\x01"}) {
		t.Errorf("lines = %q", lines)
	}

	lines, _ = EncodeAndSplit(Notice, "bob", "hi", 400)
	if !reflect.DeepEqual(lines, []string{"NOTICE bob :hi"}) {
		t.Errorf("lines = %q", lines)
	}
}

func TestEncodeNewlines(t *testing.T) {
	lines, err := EncodeAndSplit(Normal, "#a", "one\r\ntwo\n\nthree", 400)
	if err != nil {
		t.Fatalf("EncodeAndSplit failed: %v", err)
	}
	want := []string{"PRIVMSG #a :one", "PRIVMSG #a :two", "PRIVMSG #a :three"}
	if !reflect.DeepEqual(lines, want) {
		t.Errorf("lines = %q, want %q", lines, want)
	}
}

func TestEncodeSplitsLongText(t *testing.T) {
	long := strings.Repeat("ü", 300)
	lines, err := EncodeAndSplit(Normal, "#a", long, 100)
	if err != nil {
		t.Fatalf("EncodeAndSplit failed: %v", err)
	}
	var rebuilt string
	for _, l := range lines {
		if len(l) > 100 {
			t.Errorf("line too long: %d", len(l))
		}
		body := strings.TrimPrefix(l, "PRIVMSG #a :")
		if !utf8.ValidString(body) {
			t.Errorf("line split inside a character: %q", body)
		}
		rebuilt += body
	}
	if rebuilt != long {
		t.Error("split lines do not rebuild the message")
	}
}

func TestEncodeErrors(t *testing.T) {
	if _, err := EncodeAndSplit(Normal, "#a", "\r\n\n", 400); !errors.Is(err, ErrEmpty) {
		t.Errorf("expected ErrEmpty, got %v", err)
	}
	if _, err := EncodeAndSplit(Type(7), "#a", "x", 400); !errors.Is(err, ErrUnknownType) {
		t.Errorf("expected ErrUnknownType, got %v", err)
	}
}

func TestMaxMessageLength(t *testing.T) {
	got := MaxMessageLength("alice", "alice")
	want := 510 - (5 + 5 + 63 + 3)
	if got != want {
		t.Errorf("MaxMessageLength = %d, want %d", got, want)
	}
}

func TestParseType(t *testing.T) {
	for _, typ := range []Type{Normal, Action, Notice} {
		got, err := ParseType(typ.String())
		if err != nil || got != typ {
			t.Errorf("ParseType(%q) = %v, %v", typ.String(), got, err)
		}
	}
	if _, err := ParseType("shout"); err == nil {
		t.Error("expected error")
	}
}
