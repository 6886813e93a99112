// Package ctcp frames and parses Client-To-Client Protocol payloads, which
// travel inside PRIVMSG and NOTICE bodies delimited by \x01.
package ctcp

import (
	"fmt"
	"strings"
)

// Delim frames a CTCP payload
const Delim = '\x01'

// Quote escapes characters that may not appear inside a CTCP payload
func Quote(s string) string {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		switch c := s[i]; c {
		case '\r', '\n', Delim:
			fmt.Fprintf(&b, "\\%03o", c)
		case '\\':
			b.WriteString(`\\`)
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}

// Request builds a framed request such as "\x01PING 123\x01"
func Request(command, args string) string {
	if args == "" {
		return string(Delim) + strings.ToUpper(command) + string(Delim)
	}
	return string(Delim) + strings.ToUpper(command) + " " + Quote(args) + string(Delim)
}

// IsCTCP reports whether a message body carries a CTCP payload
func IsCTCP(body string) bool {
	return len(body) > 0 && body[0] == Delim
}

// Parse splits a framed payload into its upper-cased command and raw
// argument string
func Parse(body string) (command, args string, ok bool) {
	if !IsCTCP(body) {
		return "", "", false
	}
	inner := strings.TrimSuffix(body[1:], string(Delim))
	if inner == "" {
		return "", "", false
	}
	command, args, _ = strings.Cut(inner, " ")
	return strings.ToUpper(command), args, true
}

// Decode unquotes a payload and splits it into words. Double quotes group
// words containing spaces. An empty payload returns nil.
func Decode(payload string) []string {
	if payload == "" || payload == "\x01\x01" {
		return nil
	}

	var words []string
	var cur strings.Builder
	inQuote := false
	started := false

	flush := func() {
		if started {
			words = append(words, cur.String())
		}
		cur.Reset()
		started = false
	}

	for i := 0; i < len(payload); i++ {
		c := payload[i]
		switch {
		case c == Delim:
			continue
		case c == '\\' && i+1 < len(payload):
			if n, width := octal(payload[i+1:]); width > 0 {
				cur.WriteByte(n)
				i += width
			} else {
				cur.WriteByte(payload[i+1])
				i++
			}
			started = true
		case c == '"':
			inQuote = !inQuote
			started = true
		case c == ' ' && !inQuote:
			flush()
		default:
			cur.WriteByte(c)
			started = true
		}
	}
	flush()
	return words
}

// octal reads up to three octal digits
func octal(s string) (byte, int) {
	var n int
	width := 0
	for width < 3 && width < len(s) && s[width] >= '0' && s[width] <= '7' {
		n = n*8 + int(s[width]-'0')
		width++
	}
	if n > 0xff {
		return 0, 0
	}
	return byte(n), width
}
