package irc

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"os/user"
	"strings"
	"sync"
	"time"

	"github.com/matt0x6f/irc-engine/internal/charset"
	"github.com/matt0x6f/irc-engine/internal/constants"
	"github.com/matt0x6f/irc-engine/internal/events"
	"github.com/matt0x6f/irc-engine/internal/handles"
	"github.com/matt0x6f/irc-engine/internal/logger"
	"github.com/matt0x6f/irc-engine/internal/metrics"
	"github.com/matt0x6f/irc-engine/internal/muc"
	"github.com/matt0x6f/irc-engine/internal/parser"
	"github.com/matt0x6f/irc-engine/internal/queue"
	"github.com/matt0x6f/irc-engine/internal/text"
	"github.com/matt0x6f/irc-engine/internal/transport"
	"github.com/matt0x6f/irc-engine/internal/validation"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// Params describe one connection
type Params struct {
	Nickname string
	Username string
	Realname string
	Password string

	Server             string
	Port               int
	TLS                bool
	InsecureSkipVerify bool
	WebSocketURL       string
	// ClientCertificate is offered during the TLS handshake. SASL EXTERNAL
	// needs it.
	ClientCertificate *tls.Certificate

	// Charset is the wire encoding, UTF-8 when empty
	Charset     string
	QuitMessage string
	SASL        *SASLParams

	FloodInterval time.Duration
	FloodBurst    int
}

// Option customizes a Connection
type Option func(*Connection)

// WithDialer replaces the transport built from Params
func WithDialer(d transport.Dialer) Option {
	return func(c *Connection) { c.dialer = d }
}

// WithClock sets the clock driving flood control
func WithClock(clock queue.Clock) Option {
	return func(c *Connection) { c.clock = clock }
}

// WithMetrics records connection activity
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Connection) { c.metrics = m }
}

// WithQuitTimeout bounds how long Disconnect waits for the server to close
func WithQuitTimeout(d time.Duration) Option {
	return func(c *Connection) { c.quitTimeout = d }
}

// Connection drives one IRC session. Its state is owned by a single loop
// goroutine; exported methods are safe for concurrent use and hand their
// work to that loop.
type Connection struct {
	params      Params
	bus         *events.EventBus
	dialer      transport.Dialer
	clock       queue.Clock
	metrics     *metrics.Metrics
	quitTimeout time.Duration
	store       *handles.Store
	log         zerolog.Logger

	mu       sync.RWMutex
	running  bool
	quitting bool
	status   Status
	self     handles.Handle
	nick     string
	conn     transport.Conn
	calls    chan func()
	done     chan struct{}
	cancel   context.CancelFunc

	// owned by the loop
	codec       *charset.Codec
	parser      *parser.Parser
	queue       *queue.Queue
	rooms       *muc.Manager
	owner       parser.Owner
	handshake   chan error
	welcomed    bool
	fatal       Reason
	quitTimer   *time.Timer
	sasl        *saslSession
	capEnded    bool
	ctcpLimiter *rate.Limiter
	aliases     map[handles.Handle]string
}

// New creates a connection publishing notifications on bus
func New(params Params, bus *events.EventBus, opts ...Option) *Connection {
	c := &Connection{
		params:      params,
		bus:         bus,
		clock:       queue.SystemClock{},
		quitTimeout: constants.QuitTimeout,
		store:       handles.NewStore(),
		log:         logger.With("irc").With().Str("server", params.Server).Logger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.dialer == nil {
		c.dialer = transport.NewDialer(transport.Config{
			Host:               params.Server,
			Port:               params.Port,
			TLS:                params.TLS,
			InsecureSkipVerify: params.InsecureSkipVerify,
			ClientCertificate:  params.ClientCertificate,
			WebSocketURL:       params.WebSocketURL,
		})
	}
	return c
}

// Handles returns the store naming this connection's contacts and rooms
func (c *Connection) Handles() *handles.Store {
	return c.store
}

// Status returns the current connection status
func (c *Connection) Status() Status {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.status
}

// SelfHandle returns our own contact handle, None before registration
func (c *Connection) SelfHandle() handles.Handle {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.self
}

// Nickname returns our current nickname
func (c *Connection) Nickname() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.nick != "" {
		return c.nick
	}
	return c.params.Nickname
}

func (c *Connection) checkParams() error {
	p := c.params
	if err := validation.ValidateConnectParams(p.Nickname, p.Server, p.Port); err != nil {
		return fmt.Errorf("%w: %v", ErrPreconditionFailed, err)
	}
	if err := validation.ValidateNickname(p.Nickname); err != nil {
		return fmt.Errorf("%w: %v", ErrPreconditionFailed, err)
	}
	if p.SASL != nil {
		if _, err := newSASLClient(*p.SASL); err != nil {
			return fmt.Errorf("%w: %v", ErrPreconditionFailed, err)
		}
		if strings.EqualFold(p.SASL.Mechanism, "EXTERNAL") && p.ClientCertificate == nil {
			return fmt.Errorf("%w: SASL EXTERNAL needs a client certificate", ErrPreconditionFailed)
		}
	}
	return nil
}

// defaultRealname prefers the real name of the OS user
func defaultRealname(nickname string) string {
	u, err := user.Current()
	if err != nil || u.Name == "" || u.Name == "Unknown" {
		return nickname
	}
	return u.Name
}

// Connect dials the server and starts the session. The returned channel
// receives nil once the server welcomes us, or the reason registration
// failed.
func (c *Connection) Connect(ctx context.Context) (<-chan error, error) {
	if err := c.checkParams(); err != nil {
		return nil, err
	}
	codec, err := charset.New(c.params.Charset)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPreconditionFailed, err)
	}

	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return nil, ErrAlreadyConnected
	}
	c.running = true
	c.quitting = false
	c.calls = make(chan func())
	c.done = make(chan struct{})
	loopCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.mu.Unlock()

	if c.params.Realname == "" {
		c.params.Realname = defaultRealname(c.params.Nickname)
	}
	if c.params.Username == "" {
		c.params.Username = c.params.Nickname
	}
	if c.params.QuitMessage == "" {
		c.params.QuitMessage = constants.DefaultQuitMessage
	}

	c.codec = codec
	c.queue = nil
	c.rooms = nil
	c.parser = parser.New(c.store, codec)
	c.parser.OnLine = func(string) { c.metrics.LineReceived() }
	c.parser.OnUnmatched = func(string) { c.metrics.LineUnparsed() }
	c.parser.OnContact = c.trackAlias
	c.owner = c.parser.NewOwner()
	c.welcomed = false
	c.fatal = ReasonNone
	c.sasl = nil
	c.capEnded = c.params.SASL == nil
	c.ctcpLimiter = rate.NewLimiter(rate.Every(time.Second), 3)
	c.aliases = make(map[handles.Handle]string)

	result := make(chan error, 1)
	c.handshake = result
	c.setStatus(StatusConnecting, ReasonRequested)

	go c.run(loopCtx, c.calls, c.done)
	return result, nil
}

func (c *Connection) run(ctx context.Context, calls <-chan func(), done chan struct{}) {
	defer close(done)

	conn, err := c.dialer.Dial(ctx)
	if err != nil {
		c.log.Warn().Err(err).Msg("Failed to connect")
		c.finish(ReasonNetworkError, fmt.Errorf("%w: %v", ErrNetwork, err))
		return
	}
	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()

	c.queue = queue.New(conn, c.codec, queue.Options{
		Interval: c.params.FloodInterval,
		Burst:    c.params.FloodBurst,
		Clock:    c.clock,
		Metrics:  c.metrics,
	})
	c.onTransportConnected()

	reads := make(chan []byte)
	readErr := make(chan error, 1)
	go readLoop(conn, reads, readErr, done)

	for {
		var quit <-chan time.Time
		if c.quitTimer != nil {
			quit = c.quitTimer.C
		}

		select {
		case <-ctx.Done():
			c.finish(ReasonRequested, ctx.Err())
			return

		case chunk := <-reads:
			c.parser.Receive(chunk)
			c.flushAliases()
			c.metrics.SetHandles(handles.Contact.String(), c.store.Len(handles.Contact))
			c.metrics.SetHandles(handles.Room.String(), c.store.Len(handles.Room))

		case err := <-readErr:
			c.log.Info().Err(err).Msg("Connection closed")
			c.finish(ReasonNetworkError, fmt.Errorf("%w: %v", ErrNetwork, err))
			return

		case <-c.queue.C():
			if err := c.queue.Tick(); err != nil {
				c.log.Warn().Err(err).Msg("Failed to send queued messages")
			}

		case fn := <-calls:
			fn()

		case <-quit:
			c.log.Warn().Msg("Server did not close the connection after QUIT")
			c.finish(ReasonRequested, nil)
			return
		}

		if c.fatal != ReasonNone {
			c.finish(c.fatal, nil)
			return
		}
	}
}

func readLoop(conn transport.Conn, reads chan<- []byte, readErr chan<- error, done <-chan struct{}) {
	buf := make([]byte, 4096)
	for {
		n, err := conn.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			select {
			case reads <- chunk:
			case <-done:
				return
			}
		}
		if err != nil {
			select {
			case readErr <- err:
			case <-done:
			}
			return
		}
	}
}

func (c *Connection) onTransportConnected() {
	c.queue.SetConnected(true)
	c.registerHandlers()
	c.rooms = muc.NewManager(c, c.store, c.parser, c.bus, c.metrics)

	if c.params.SASL != nil {
		c.enqueue("CAP REQ :sasl", queue.PriorityNormal+2)
	}
	if c.params.Password != "" {
		c.enqueue("PASS "+c.params.Password, queue.PriorityNormal+1)
	}
	c.enqueue("NICK "+c.params.Nickname, queue.PriorityNormal)
	c.enqueue(fmt.Sprintf("USER %s 8 * :%s", c.params.Username, c.params.Realname), queue.PriorityNormal)
}

func (c *Connection) enqueue(cmd string, prio queue.Priority) {
	if err := c.queue.Enqueue(cmd, prio); err != nil {
		c.log.Warn().Err(err).Msg("Failed to send command")
	}
}

// finish tears the session down. It runs on the loop goroutine exactly once
// per session.
func (c *Connection) finish(reason Reason, cause error) {
	c.mu.Lock()
	if c.quitting {
		reason = ReasonRequested
	}
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()

	if conn != nil {
		if err := conn.Close(); err != nil {
			c.log.Debug().Err(err).Msg("Failed to close transport")
		}
	}
	if c.quitTimer != nil {
		c.quitTimer.Stop()
		c.quitTimer = nil
	}

	c.failHandshake(reason, cause)

	if c.queue != nil {
		c.queue.Reset()
	}
	c.parser.RemoveHandlers(c.owner)
	if c.rooms != nil {
		c.rooms.CloseAll()
		c.rooms = nil
	}

	c.mu.Lock()
	self := c.self
	c.self = handles.None
	c.nick = ""
	c.mu.Unlock()
	if self != handles.None {
		_ = c.store.Unref(handles.Contact, self)
	}

	c.setStatus(StatusDisconnected, reason)

	c.mu.Lock()
	c.running = false
	c.quitting = false
	cancel := c.cancel
	c.cancel = nil
	c.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

func (c *Connection) failHandshake(reason Reason, cause error) {
	if c.handshake == nil {
		return
	}
	c.handshake <- &ConnectError{Reason: reason, Err: cause}
	c.handshake = nil
}

func (c *Connection) setStatus(status Status, reason Reason) {
	c.mu.Lock()
	c.status = status
	c.mu.Unlock()

	c.metrics.SetConnected(status == StatusConnected)
	c.log.Info().Str("status", status.String()).Str("reason", reason.String()).Msg("Connection status changed")
	c.emit(EventConnectionStatus, map[string]interface{}{
		"status": status.String(),
		"reason": reason.String(),
	})
}

func (c *Connection) emit(eventType string, data map[string]interface{}) {
	if c.bus == nil {
		return
	}
	data["server"] = c.params.Server
	c.bus.EmitSync(events.New(events.EventSourceIRC, eventType, data))
}

// do runs fn on the loop goroutine and returns its error
func (c *Connection) do(ctx context.Context, fn func() error) error {
	c.mu.RLock()
	running, calls, done := c.running, c.calls, c.done
	c.mu.RUnlock()
	if !running {
		return ErrNotConnected
	}

	result := make(chan error, 1)
	select {
	case calls <- func() { result <- fn() }:
	case <-done:
		return ErrNotConnected
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-result:
		return err
	case <-done:
		select {
		case err := <-result:
			return err
		default:
			return ErrNotConnected
		}
	case <-ctx.Done():
		return ctx.Err()
	}
}

// doConnected is do for operations that need a registered session
func (c *Connection) doConnected(ctx context.Context, fn func() error) error {
	return c.do(ctx, func() error {
		if !c.welcomed {
			return ErrNotConnected
		}
		return fn()
	})
}

// Disconnect sends QUIT. The session ends when the server closes the link,
// or after the quit timeout.
func (c *Connection) Disconnect(ctx context.Context) error {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return ErrNotConnected
	}
	if c.quitting {
		c.mu.Unlock()
		return nil
	}
	c.quitting = true
	dialing := c.conn == nil
	cancel := c.cancel
	c.mu.Unlock()

	if dialing {
		if cancel != nil {
			cancel()
		}
		return nil
	}

	err := c.do(ctx, func() error {
		if err := c.queue.Enqueue("QUIT :"+c.params.QuitMessage, queue.PriorityMax); err != nil {
			c.log.Debug().Err(err).Msg("Failed to send QUIT, closing")
			c.fatal = ReasonRequested
			return nil
		}
		c.quitTimer = time.NewTimer(c.quitTimeout)
		return nil
	})
	if errors.Is(err, ErrNotConnected) {
		return nil
	}
	return err
}

// Send queues a raw command. It must be called from the loop goroutine,
// which is where channels call it.
func (c *Connection) Send(cmd string, prio queue.Priority) error {
	if c.queue == nil || !c.queue.Connected() {
		return ErrNotConnected
	}
	return c.queue.Enqueue(cmd, prio)
}

// MaxMessageLength is the longest command that survives the server adding
// our prefix when relaying it
func (c *Connection) MaxMessageLength() int {
	return text.MaxMessageLength(c.Nickname(), c.params.Username)
}

// SendRaw queues a line as is
func (c *Connection) SendRaw(ctx context.Context, line string) error {
	line = strings.TrimRight(line, "\r\n")
	if line == "" {
		return fmt.Errorf("%w: empty line", muc.ErrInvalidArgument)
	}
	return c.do(ctx, func() error {
		return c.Send(line, queue.PriorityNormal)
	})
}

// Rename asks the server for a new nickname
func (c *Connection) Rename(ctx context.Context, nickname string) error {
	if err := validation.ValidateNickname(nickname); err != nil {
		return fmt.Errorf("%w: %v", handles.ErrInvalidName, err)
	}
	return c.doConnected(ctx, func() error {
		return c.Send("NICK "+nickname, queue.PriorityNormal)
	})
}

// JoinRoom joins name. The returned channel receives the join outcome.
func (c *Connection) JoinRoom(ctx context.Context, name, key string) (handles.Handle, <-chan error, error) {
	var room handles.Handle
	var result <-chan error
	err := c.doConnected(ctx, func() error {
		var err error
		room, result, err = c.rooms.Join(name, key)
		return err
	})
	return room, result, err
}

// PartRoom leaves room
func (c *Connection) PartRoom(ctx context.Context, room handles.Handle, message string) error {
	return c.doConnected(ctx, func() error {
		return c.rooms.Part(room, message)
	})
}

// Invite invites contact into room
func (c *Connection) Invite(ctx context.Context, room, contact handles.Handle) error {
	return c.doConnected(ctx, func() error {
		return c.rooms.Invite(room, contact)
	})
}

// Kick removes contact from room
func (c *Connection) Kick(ctx context.Context, room, contact handles.Handle, message string) error {
	return c.doConnected(ctx, func() error {
		return c.rooms.Kick(room, contact, message)
	})
}

// SetTopic changes the topic of room
func (c *Connection) SetTopic(ctx context.Context, room handles.Handle, subject string) error {
	return c.doConnected(ctx, func() error {
		return c.rooms.SetTopic(room, subject)
	})
}

// ProvidePassword retries joining room with a key
func (c *Connection) ProvidePassword(ctx context.Context, room handles.Handle, password string) (<-chan error, error) {
	var result <-chan error
	err := c.doConnected(ctx, func() error {
		var err error
		result, err = c.rooms.ProvidePassword(room, password)
		return err
	})
	return result, err
}

// SetRoomProperties changes room settings
func (c *Connection) SetRoomProperties(ctx context.Context, room handles.Handle, props muc.Properties) error {
	return c.doConnected(ctx, func() error {
		return c.rooms.SetProperties(room, props)
	})
}

// Rooms returns the open rooms
func (c *Connection) Rooms(ctx context.Context) ([]handles.Handle, error) {
	var rooms []handles.Handle
	err := c.doConnected(ctx, func() error {
		rooms = c.rooms.Rooms()
		return nil
	})
	return rooms, err
}
