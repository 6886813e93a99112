package irc

import "github.com/matt0x6f/irc-engine/internal/muc"

// Event types emitted by a connection
const (
	EventConnectionStatus  = "connection.status"
	EventSelfNickname      = "self.nickname"
	EventMessageReceived   = muc.EventMessage
	EventMessageSent       = "message.sent"
	EventContactAliases    = "contact.aliases"
	EventContactSendFailed = "contact.send_failed"
	EventCTCPRequest       = "ctcp.request"
	EventError             = "error"
	EventSASLStarted       = "sasl.started"
	EventSASLSuccess       = "sasl.success"
	EventSASLFailed        = "sasl.failed"
	EventSASLAborted       = "sasl.aborted"
)

// Status is the transport level connection state
type Status int

const (
	StatusDisconnected Status = iota
	StatusConnecting
	StatusConnected
)

func (s Status) String() string {
	switch s {
	case StatusDisconnected:
		return "disconnected"
	case StatusConnecting:
		return "connecting"
	case StatusConnected:
		return "connected"
	default:
		return "unknown"
	}
}
