package constants

import "time"

// Flood control, RFC 2813 section 5.8
const (
	// FloodInterval is the minimum delay between two queued writes
	FloodInterval = 2 * time.Second

	// FloodBurst is the number of queued messages written per tick
	FloodBurst = 1
)

// Connection timing constants
const (
	// DialTimeout bounds DNS resolution and the TCP/TLS handshake
	DialTimeout = 30 * time.Second

	// WriteTimeout bounds a single write to the transport
	WriteTimeout = 30 * time.Second

	// QuitTimeout is how long we wait for the server to close the link after QUIT
	QuitTimeout = 5 * time.Second

	// AutoJoinDelay is the delay after connection before auto-joining channels
	AutoJoinDelay = 2 * time.Second
)

// Protocol limits
const (
	// MaxLineLength includes the trailing CRLF
	MaxLineLength = 512

	// MaxHostLength is the longest host we assume when estimating our own prefix
	MaxHostLength = 63
)

const (
	// Version is reported in CTCP VERSION replies
	Version = "irc-engine 0.1.0"

	// DefaultQuitMessage is sent when none is configured
	DefaultQuitMessage = "Leaving"
)
