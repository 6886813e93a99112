package validation

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	// MinChannelNameLength and MaxChannelNameLength bound a room name in bytes,
	// including its leading type character.
	MinChannelNameLength = 2
	MaxChannelNameLength = 50

	// ChannelTypes are the characters a room name may start with
	ChannelTypes = "#!&+"
)

// IsChannelType reports whether b starts a room name
func IsChannelType(b byte) bool {
	return strings.IndexByte(ChannelTypes, b) >= 0
}

// ValidateConnectParams validates the fields a connection needs before dialing
func ValidateConnectParams(nickname, address string, port int) error {
	if strings.TrimSpace(nickname) == "" {
		return fmt.Errorf("nickname is required")
	}
	if err := ValidateNickname(nickname); err != nil {
		return err
	}
	return ValidateServerAddress(address, port)
}

// ValidateNickname validates an IRC nickname.
// The first character must be a letter or one of []\`_^{|}-, later
// characters may also be digits.
func ValidateNickname(nickname string) error {
	if nickname == "" {
		return fmt.Errorf("nickname is required")
	}
	if !utf8.ValidString(nickname) {
		return fmt.Errorf("nickname is not valid UTF-8")
	}
	for i, r := range nickname {
		if unicode.IsLetter(r) || isNickSpecial(r) {
			continue
		}
		if i > 0 && unicode.IsDigit(r) {
			continue
		}
		return fmt.Errorf("nickname contains invalid character %q at offset %d", r, i)
	}
	return nil
}

func isNickSpecial(r rune) bool {
	switch r {
	case '[', ']', '\\', '`', '_', '^', '{', '|', '}', '-':
		return true
	}
	return false
}

// ValidateChannelName validates an IRC channel name
func ValidateChannelName(channel string) error {
	if channel == "" {
		return fmt.Errorf("channel name is required")
	}
	if !IsChannelType(channel[0]) {
		return fmt.Errorf("channel name must start with #, &, +, or !")
	}
	if len(channel) < MinChannelNameLength || len(channel) > MaxChannelNameLength {
		return fmt.Errorf("channel name length must be between %d and %d", MinChannelNameLength, MaxChannelNameLength)
	}

	if channel[0] == '!' {
		// Safe channels carry a five character id after the '!'
		for i := 1; i < len(channel) && i <= 5; i++ {
			c := channel[i]
			if !(c >= 'A' && c <= 'Z') && !(c >= '0' && c <= '9') {
				return fmt.Errorf("channel id must be uppercase letters or digits")
			}
		}
	}

	body := channel[1:]
	if idx := strings.IndexByte(body, ':'); idx >= 0 {
		if strings.ContainsAny(body[:idx], invalidChannelChars) || strings.ContainsAny(body[idx+1:], invalidChannelChars) {
			return fmt.Errorf("channel name contains invalid characters")
		}
		return nil
	}
	if strings.ContainsAny(body, invalidChannelChars) {
		return fmt.Errorf("channel name contains invalid characters")
	}
	return nil
}

const invalidChannelChars = " \x07,\r\n:"

// ValidateServerAddress validates a server address and port
func ValidateServerAddress(address string, port int) error {
	address = strings.TrimSpace(address)
	if address == "" {
		return fmt.Errorf("server address is required")
	}
	if port <= 0 || port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535")
	}
	return nil
}
