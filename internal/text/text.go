package text

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ergochat/irc-go/ircfmt"
	"github.com/ergochat/irc-go/ircutils"
	"github.com/matt0x6f/irc-engine/internal/constants"
)

// Type is the kind of a chat message
type Type int

const (
	Normal Type = iota
	Action
	Notice
)

func (t Type) String() string {
	switch t {
	case Normal:
		return "normal"
	case Action:
		return "action"
	case Notice:
		return "notice"
	default:
		return fmt.Sprintf("type(%d)", int(t))
	}
}

// ParseType converts the names used by String back to a Type
func ParseType(s string) (Type, error) {
	switch strings.ToLower(s) {
	case "", "normal":
		return Normal, nil
	case "action":
		return Action, nil
	case "notice":
		return Notice, nil
	}
	return Normal, fmt.Errorf("unknown message type %q", s)
}

var (
	// ErrEmpty is returned when there is nothing to send
	ErrEmpty = errors.New("message is empty")
	// ErrUnknownType is returned for message types that cannot be sent
	ErrUnknownType = errors.New("unknown message type")
)

const actionPrefix = "\x01ACTION "

// Decode classifies a received PRIVMSG body and strips formatting codes.
// CTCP requests other than ACTION are reported as not ok.
func Decode(body string) (Type, string, bool) {
	if !strings.HasPrefix(body, "\x01") {
		return Normal, ircfmt.Strip(body), true
	}
	if len(body) >= len(actionPrefix) && strings.EqualFold(body[:len(actionPrefix)], actionPrefix) {
		inner := strings.TrimSuffix(body[len(actionPrefix):], "\x01")
		return Action, ircfmt.Strip(inner), true
	}
	return Normal, "", false
}

// MaxMessageLength estimates the room left for a command once the server
// prepends our own ":nick!user@host " prefix when relaying it.
func MaxMessageLength(nick, user string) int {
	prefix := len(nick) + len(user) + constants.MaxHostLength + 3
	return constants.MaxLineLength - 2 - prefix
}

// EncodeAndSplit builds the PRIVMSG or NOTICE commands carrying text to
// recipient. Lines are split at newlines and wherever a command would exceed
// maxLen bytes, without cutting a UTF-8 sequence.
func EncodeAndSplit(t Type, recipient, text string, maxLen int) ([]string, error) {
	var header, footer string
	switch t {
	case Normal:
		header = "PRIVMSG " + recipient + " :"
	case Action:
		header = "PRIVMSG " + recipient + " :" + actionPrefix
		footer = "\x01"
	case Notice:
		header = "NOTICE " + recipient + " :"
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnknownType, int(t))
	}

	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	if strings.TrimSpace(strings.ReplaceAll(text, "\n", "")) == "" {
		return nil, ErrEmpty
	}

	maxBytes := maxLen - len(header) - len(footer)
	if maxBytes <= 0 {
		return nil, fmt.Errorf("recipient %q leaves no room for text", recipient)
	}

	var lines []string
	remaining := text
	for remaining != "" {
		var chunk string
		if nl := strings.IndexByte(remaining, '\n'); nl >= 0 && nl <= maxBytes {
			chunk = remaining[:nl]
			remaining = remaining[nl+1:]
		} else if len(remaining) > maxBytes {
			chunk = ircutils.TruncateUTF8Safe(remaining, maxBytes)
			if chunk == "" {
				return nil, fmt.Errorf("cannot split message at %d bytes", maxBytes)
			}
			remaining = remaining[len(chunk):]
		} else {
			chunk = remaining
			remaining = ""
		}
		if chunk == "" {
			continue
		}
		lines = append(lines, header+chunk+footer)
	}
	return lines, nil
}
