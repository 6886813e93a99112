package charset

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"
)

// DefaultCharset is used when no charset is configured
const DefaultCharset = "UTF-8"

// Codec converts between UTF-8 and the charset used on the wire
type Codec struct {
	name string
	enc  encoding.Encoding
}

// New looks up a charset by name, e.g. "UTF-8", "ISO-8859-1" or "windows-1251"
func New(name string) (*Codec, error) {
	if name == "" {
		name = DefaultCharset
	}
	if IsUTF8(name) {
		return &Codec{name: DefaultCharset}, nil
	}
	enc, err := htmlindex.Get(name)
	if err != nil {
		return nil, fmt.Errorf("unsupported charset %q: %w", name, err)
	}
	return &Codec{name: name, enc: enc}, nil
}

// IsUTF8 reports whether name designates UTF-8
func IsUTF8(name string) bool {
	n := strings.ToLower(strings.ReplaceAll(name, "-", ""))
	return n == "utf8"
}

// Name returns the configured charset name
func (c *Codec) Name() string {
	return c.name
}

// UTF8 reports whether no conversion takes place
func (c *Codec) UTF8() bool {
	return c.enc == nil
}

// Encode converts UTF-8 text to the wire charset
func (c *Codec) Encode(s string) ([]byte, error) {
	if c.enc == nil {
		return []byte(s), nil
	}
	out, err := c.enc.NewEncoder().String(s)
	if err != nil {
		return nil, fmt.Errorf("failed to encode to %s: %w", c.name, err)
	}
	return []byte(out), nil
}

// Decode converts a line from the wire charset to UTF-8. When conversion
// fails, bytes with the high bit set are replaced by '?'.
func (c *Codec) Decode(raw []byte) string {
	if c.enc == nil {
		if utf8.Valid(raw) {
			return string(raw)
		}
		return lossy(raw)
	}
	out, err := c.enc.NewDecoder().Bytes(raw)
	if err != nil || !utf8.Valid(out) {
		return lossy(raw)
	}
	return string(out)
}

func lossy(raw []byte) string {
	out := make([]byte, len(raw))
	for i, b := range raw {
		if b >= 0x80 {
			b = '?'
		}
		out[i] = b
	}
	return string(out)
}
