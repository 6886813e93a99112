package irc

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/matt0x6f/irc-engine/internal/constants"
	"github.com/matt0x6f/irc-engine/internal/ctcp"
	"github.com/matt0x6f/irc-engine/internal/handles"
	"github.com/matt0x6f/irc-engine/internal/muc"
	"github.com/matt0x6f/irc-engine/internal/parser"
	"github.com/matt0x6f/irc-engine/internal/queue"
	"github.com/matt0x6f/irc-engine/internal/text"
)

func (c *Connection) registerHandlers() {
	first := func(code parser.Code, fn parser.Handler) {
		c.parser.AddHandlerWithPriority(code, parser.PriorityFirst, fn, c.owner)
	}
	add := func(code parser.Code, fn parser.Handler) {
		c.parser.AddHandler(code, fn, c.owner)
	}

	first(parser.CodeErroneousNickname, c.nickErrorHandler(ReasonAuthenticationFailed))
	first(parser.CodeNicknameInUse, c.nickErrorHandler(ReasonNameInUse))
	first(parser.CodeWelcome, c.onWelcome)
	first(parser.CodePing, c.onPing)
	first(parser.CodeNick, c.onNick)
	first(parser.CodeError, c.onError)
	first(parser.CodePrivmsgUser, c.onCTCP)

	add(parser.CodePrivmsgUser, c.onPrivateMessage)
	add(parser.CodeNoticeUser, c.onPrivateNotice)
	add(parser.CodeNoSuchNick, c.onNoSuchNick)

	add(parser.CodeCap, c.onCap)
	add(parser.CodeAuthenticate, c.onAuthenticate)
	add(parser.CodeLoggedIn, c.onLoggedIn)
	add(parser.CodeSASLSuccess, c.onSASLSuccess)
	add(parser.CodeSASLFail, c.onSASLFailure)
	add(parser.CodeSASLTooLong, c.onSASLFailure)
	add(parser.CodeSASLAborted, c.onSASLAborted)
	add(parser.CodeSASLAlready, c.onSASLAborted)
}

func (c *Connection) onWelcome(e *parser.Event) parser.Result {
	if c.welcomed {
		return parser.Handled
	}
	self := e.Handle(0)
	if err := c.store.Ref(handles.Contact, self); err != nil {
		c.log.Error().Err(err).Msg("Failed to reference own handle")
		return parser.Handled
	}
	nick := c.store.Inspect(handles.Contact, self)

	c.mu.Lock()
	c.self = self
	c.nick = nick
	c.mu.Unlock()

	c.welcomed = true
	c.setStatus(StatusConnected, ReasonRequested)
	if c.handshake != nil {
		c.handshake <- nil
		c.handshake = nil
	}
	c.log.Info().Str("nick", nick).Msg("Registered")
	return parser.Handled
}

func (c *Connection) nickErrorHandler(reason Reason) parser.Handler {
	return func(e *parser.Event) parser.Result {
		if c.welcomed {
			// A rename was refused, the session goes on
			c.emit(EventError, map[string]interface{}{
				"code":    e.Code.String(),
				"message": e.Line,
			})
			return parser.Handled
		}
		c.log.Warn().Str("code", e.Code.String()).Msg("Nickname refused during registration")
		c.failHandshake(reason, fmt.Errorf("nickname %q refused", c.params.Nickname))
		c.fatal = reason
		return parser.Handled
	}
}

func (c *Connection) onPing(e *parser.Event) parser.Result {
	if err := c.queue.Enqueue("PONG "+e.String(0), queue.PriorityMax); err != nil {
		c.log.Warn().Err(err).Msg("Failed to answer PING")
	}
	return parser.Handled
}

func (c *Connection) onNick(e *parser.Event) parser.Result {
	old, renamed := e.Handle(0), e.Handle(1)
	if old == renamed || old != c.SelfHandle() {
		return parser.NotHandled
	}
	if err := c.store.Ref(handles.Contact, renamed); err != nil {
		c.log.Error().Err(err).Msg("Failed to reference new own handle")
		return parser.NotHandled
	}
	nick := c.store.Inspect(handles.Contact, renamed)
	oldNick := c.store.Inspect(handles.Contact, old)

	c.mu.Lock()
	c.self = renamed
	c.nick = nick
	c.mu.Unlock()
	_ = c.store.Unref(handles.Contact, old)

	c.emit(EventSelfNickname, map[string]interface{}{
		"old":      old,
		"old_name": oldNick,
		"new":      renamed,
		"new_name": nick,
	})
	return parser.NotHandled
}

func (c *Connection) onError(e *parser.Event) parser.Result {
	c.log.Warn().Str("message", e.String(0)).Msg("Server error")
	c.emit(EventError, map[string]interface{}{
		"code":    e.Code.String(),
		"message": e.String(0),
	})
	return parser.Handled
}

func (c *Connection) onCTCP(e *parser.Event) parser.Result {
	from, body := e.Handle(0), e.String(2)
	command, args, ok := ctcp.Parse(body)
	if !ok || command == "ACTION" {
		return parser.NotHandled
	}

	nick := c.store.Inspect(handles.Contact, from)
	c.emit(EventCTCPRequest, map[string]interface{}{
		"contact":      from,
		"contact_name": nick,
		"command":      command,
		"args":         args,
	})

	var response string
	switch command {
	case "VERSION":
		response = constants.Version
	case "PING":
		response = args
		if response == "" {
			response = strconv.FormatInt(time.Now().Unix(), 10)
		}
	case "TIME":
		response = time.Now().Format(time.RFC1123Z)
	case "CLIENTINFO":
		response = "ACTION CLIENTINFO PING TIME VERSION"
	default:
		c.log.Debug().Str("from", nick).Str("command", command).Msg("Ignoring CTCP request")
		return parser.Handled
	}

	if !c.ctcpLimiter.Allow() {
		c.log.Debug().Str("from", nick).Str("command", command).Msg("CTCP reply rate limited")
		return parser.Handled
	}
	reply := "NOTICE " + nick + " :" + ctcp.Request(command, response)
	if err := c.queue.Enqueue(reply, queue.PriorityMin); err != nil {
		c.log.Warn().Err(err).Msg("Failed to queue CTCP reply")
	}
	return parser.Handled
}

func (c *Connection) onPrivateMessage(e *parser.Event) parser.Result {
	t, body, ok := text.Decode(e.String(2))
	if !ok {
		return parser.Handled
	}
	c.received(e.Handle(0), t, body)
	return parser.Handled
}

func (c *Connection) onPrivateNotice(e *parser.Event) parser.Result {
	if ctcp.IsCTCP(e.String(2)) {
		command, args, _ := ctcp.Parse(e.String(2))
		c.log.Debug().Str("command", command).Str("args", args).Msg("CTCP reply")
		return parser.Handled
	}
	_, body, _ := text.Decode(e.String(2))
	c.received(e.Handle(0), text.Notice, body)
	return parser.Handled
}

func (c *Connection) received(sender handles.Handle, t text.Type, body string) {
	name := c.store.Inspect(handles.Contact, sender)
	c.emit(EventMessageReceived, map[string]interface{}{
		"target":      sender,
		"target_name": name,
		"target_kind": "contact",
		"sender":      sender,
		"sender_name": name,
		"type":        t.String(),
		"body":        body,
		"timestamp":   time.Now(),
	})
}

func (c *Connection) onNoSuchNick(e *parser.Event) parser.Result {
	contact := e.Handle(0)
	c.emit(EventContactSendFailed, map[string]interface{}{
		"contact":      contact,
		"contact_name": c.store.Inspect(handles.Contact, contact),
		"reason":       "no such nick",
	})
	return parser.Handled
}

// trackAlias records the spelling a server used for a contact when it
// differs from the one we stored
func (c *Connection) trackAlias(h handles.Handle, nick string) {
	if c.store.Rename(handles.Contact, h, nick) {
		c.aliases[h] = nick
	}
}

func (c *Connection) flushAliases() {
	if len(c.aliases) == 0 {
		return
	}
	batch := c.aliases
	c.aliases = make(map[handles.Handle]string)
	c.emit(EventContactAliases, map[string]interface{}{"aliases": batch})
}

// SendText sends a message to a room or a contact, split to fit the
// protocol limits
func (c *Connection) SendText(ctx context.Context, ns handles.Namespace, target handles.Handle, t text.Type, body string) error {
	return c.doConnected(ctx, func() error {
		var name string
		if ns == handles.Room {
			if err := c.rooms.Send(target, t, body); err != nil {
				return err
			}
			name = c.store.Inspect(handles.Room, target)
		} else {
			name = c.store.Inspect(handles.Contact, target)
			if name == "" {
				return fmt.Errorf("%w: contact %d", handles.ErrUnknownHandle, target)
			}
			lines, err := text.EncodeAndSplit(t, name, body, c.MaxMessageLength())
			if err != nil {
				return fmt.Errorf("%w: %v", muc.ErrInvalidArgument, err)
			}
			for _, line := range lines {
				if err := c.Send(line, queue.PriorityNormal); err != nil {
					return err
				}
			}
		}

		c.emit(EventMessageSent, map[string]interface{}{
			"target":      target,
			"target_name": name,
			"target_kind": ns.String(),
			"sender":      c.SelfHandle(),
			"sender_name": c.Nickname(),
			"type":        t.String(),
			"body":        body,
			"timestamp":   time.Now(),
		})
		return nil
	})
}
