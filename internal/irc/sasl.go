package irc

import (
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/emersion/go-sasl"
	"github.com/ergochat/irc-go/ircmsg"
	"github.com/matt0x6f/irc-engine/internal/parser"
	"github.com/matt0x6f/irc-engine/internal/queue"
)

// SASLParams configures SASL authentication during registration
type SASLParams struct {
	// Mechanism is PLAIN, EXTERNAL, SCRAM-SHA-256 or SCRAM-SHA-512
	Mechanism string
	Username  string
	Password  string
}

// AUTHENTICATE payloads are split into chunks of this size
const saslChunkSize = 400

type saslSession struct {
	client    sasl.Client
	mechanism string
	initial   []byte
	started   bool
	pending   strings.Builder
}

func newSASLClient(p SASLParams) (sasl.Client, error) {
	switch strings.ToUpper(p.Mechanism) {
	case "", "PLAIN":
		return sasl.NewPlainClient("", p.Username, p.Password), nil
	case "EXTERNAL":
		return sasl.NewExternalClient(""), nil
	case "SCRAM-SHA-256", "SCRAM-SHA-512":
		return newSCRAMClient(strings.ToUpper(p.Mechanism), p.Username, p.Password)
	default:
		return nil, fmt.Errorf("unsupported SASL mechanism %q", p.Mechanism)
	}
}

// buildLine renders a command with ircmsg so parameters get the right framing
func buildLine(command string, params ...string) string {
	msg := ircmsg.MakeMessage(nil, "", command, params...)
	line, err := msg.Line()
	if err != nil {
		return command + " " + strings.Join(params, " ")
	}
	return strings.TrimRight(line, "\r\n")
}

func (c *Connection) sendRegistration(command string, params ...string) {
	if err := c.queue.Enqueue(buildLine(command, params...), queue.PriorityMax); err != nil {
		c.log.Warn().Err(err).Str("command", command).Msg("Failed to send registration command")
	}
}

func (c *Connection) endCapNegotiation() {
	if c.capEnded {
		return
	}
	c.capEnded = true
	c.sendRegistration("CAP", "END")
}

func (c *Connection) onCap(e *parser.Event) parser.Result {
	sub := strings.ToUpper(e.String(0))
	caps := strings.Fields(e.String(1))

	hasSASL := false
	for _, cp := range caps {
		name, _, _ := strings.Cut(cp, "=")
		if strings.EqualFold(name, "sasl") {
			hasSASL = true
		}
	}

	switch sub {
	case "ACK":
		if hasSASL && c.params.SASL != nil {
			c.startSASL()
		}
	case "NAK":
		c.log.Warn().Strs("caps", caps).Msg("Server refused capabilities")
		c.emit(EventSASLFailed, map[string]interface{}{"reason": "capability refused"})
		c.endCapNegotiation()
	default:
		c.log.Debug().Str("subcommand", sub).Strs("caps", caps).Msg("CAP message")
	}
	return parser.Handled
}

func (c *Connection) startSASL() {
	if c.sasl != nil {
		return
	}
	client, err := newSASLClient(*c.params.SASL)
	if err != nil {
		c.abortSASL(err.Error())
		return
	}
	mech, initial, err := client.Start()
	if err != nil {
		c.abortSASL(err.Error())
		return
	}
	c.sasl = &saslSession{client: client, mechanism: mech, initial: initial}
	c.log.Debug().Str("mechanism", mech).Msg("Starting SASL authentication")
	c.emit(EventSASLStarted, map[string]interface{}{"mechanism": mech})
	c.sendRegistration("AUTHENTICATE", mech)
}

func (c *Connection) onAuthenticate(e *parser.Event) parser.Result {
	s := c.sasl
	if s == nil {
		return parser.Handled
	}

	data := e.String(0)
	if len(data) == saslChunkSize {
		s.pending.WriteString(data)
		return parser.Handled
	}
	if data != "+" {
		s.pending.WriteString(data)
	}
	encoded := s.pending.String()
	s.pending.Reset()

	var challenge []byte
	if encoded != "" {
		var err error
		if challenge, err = base64.StdEncoding.DecodeString(encoded); err != nil {
			c.abortSASL("failed to decode server challenge")
			return parser.Handled
		}
	}

	if !s.started && len(challenge) == 0 {
		s.started = true
		c.sendSASLResponse(s.initial)
		return parser.Handled
	}
	s.started = true

	response, err := s.client.Next(challenge)
	if err != nil {
		c.abortSASL(err.Error())
		return parser.Handled
	}
	c.sendSASLResponse(response)
	return parser.Handled
}

func (c *Connection) sendSASLResponse(response []byte) {
	if len(response) == 0 {
		c.sendRegistration("AUTHENTICATE", "+")
		return
	}
	encoded := base64.StdEncoding.EncodeToString(response)
	for len(encoded) >= saslChunkSize {
		c.sendRegistration("AUTHENTICATE", encoded[:saslChunkSize])
		encoded = encoded[saslChunkSize:]
	}
	if encoded == "" {
		encoded = "+"
	}
	c.sendRegistration("AUTHENTICATE", encoded)
}

func (c *Connection) abortSASL(reason string) {
	c.log.Warn().Str("reason", reason).Msg("SASL authentication aborted")
	if c.sasl != nil {
		c.sendRegistration("AUTHENTICATE", "*")
	}
	c.sasl = nil
	c.emit(EventSASLAborted, map[string]interface{}{"reason": reason})
	c.endCapNegotiation()
}

func (c *Connection) onLoggedIn(e *parser.Event) parser.Result {
	c.log.Info().Str("account", e.String(0)).Msg("Logged in")
	return parser.Handled
}

func (c *Connection) onSASLSuccess(e *parser.Event) parser.Result {
	mech := ""
	if c.sasl != nil {
		mech = c.sasl.mechanism
	}
	c.sasl = nil
	c.emit(EventSASLSuccess, map[string]interface{}{"mechanism": mech})
	c.endCapNegotiation()
	return parser.Handled
}

func (c *Connection) onSASLFailure(e *parser.Event) parser.Result {
	c.sasl = nil
	c.log.Warn().Str("code", e.Code.String()).Msg("SASL authentication failed")
	c.emit(EventSASLFailed, map[string]interface{}{"reason": e.Code.String()})
	c.endCapNegotiation()
	return parser.Handled
}

func (c *Connection) onSASLAborted(e *parser.Event) parser.Result {
	if c.sasl != nil {
		c.sasl = nil
		c.emit(EventSASLAborted, map[string]interface{}{"reason": e.Code.String()})
	}
	c.endCapNegotiation()
	return parser.Handled
}
