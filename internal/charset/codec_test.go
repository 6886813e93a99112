package charset

import "testing"

func TestUTF8Codec(t *testing.T) {
	c, err := New("")
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if !c.UTF8() || c.Name() != DefaultCharset {
		t.Fatalf("empty name should select UTF-8, got %q", c.Name())
	}

	b, err := c.Encode("héllo")
	if err != nil || string(b) != "héllo" {
		t.Errorf("Encode = %q, %v", b, err)
	}
	if got := c.Decode([]byte("h\xe9llo")); got != "h?llo" {
		t.Errorf("invalid UTF-8 should decode lossily, got %q", got)
	}
}

func TestLatin1Codec(t *testing.T) {
	c, err := New("ISO-8859-1")
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if c.UTF8() {
		t.Fatal("latin1 should not be treated as UTF-8")
	}

	b, err := c.Encode("café")
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	if string(b) != "caf\xe9" {
		t.Errorf("Encode = %q", b)
	}
	if got := c.Decode([]byte("caf\xe9")); got != "café" {
		t.Errorf("Decode = %q", got)
	}
}

func TestEncodeUnmappable(t *testing.T) {
	c, err := New("ISO-8859-1")
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if _, err := c.Encode("日本"); err == nil {
		t.Error("expected error encoding characters outside latin1")
	}
}

func TestUnknownCharset(t *testing.T) {
	if _, err := New("no-such-charset"); err == nil {
		t.Error("expected error for unknown charset")
	}
}

func TestIsUTF8(t *testing.T) {
	for _, name := range []string{"UTF-8", "utf8", "Utf-8"} {
		if !IsUTF8(name) {
			t.Errorf("IsUTF8(%q) = false", name)
		}
	}
	if IsUTF8("latin1") {
		t.Error("IsUTF8(latin1) = true")
	}
}
