package muc

import (
	"fmt"
	"sort"
	"time"

	"github.com/matt0x6f/irc-engine/internal/events"
	"github.com/matt0x6f/irc-engine/internal/handles"
	"github.com/matt0x6f/irc-engine/internal/logger"
	"github.com/matt0x6f/irc-engine/internal/metrics"
	"github.com/matt0x6f/irc-engine/internal/parser"
	"github.com/matt0x6f/irc-engine/internal/queue"
	"github.com/matt0x6f/irc-engine/internal/text"
	"github.com/rs/zerolog"
)

// Session is what a channel needs from the connection that owns it
type Session interface {
	Send(cmd string, prio queue.Priority) error
	SelfHandle() handles.Handle
	MaxMessageLength() int
}

// Manager owns the channels of one connection and routes server messages
// to them.
type Manager struct {
	session  Session
	store    *handles.Store
	parser   *parser.Parser
	owner    parser.Owner
	bus      *events.EventBus
	metrics  *metrics.Metrics
	channels map[handles.Handle]*Channel
	log      zerolog.Logger

	// now stamps received messages and topic changes
	now func() time.Time
}

// NewManager creates a manager and registers its handlers with p
func NewManager(session Session, store *handles.Store, p *parser.Parser, bus *events.EventBus, m *metrics.Metrics) *Manager {
	mgr := &Manager{
		session:  session,
		store:    store,
		parser:   p,
		owner:    p.NewOwner(),
		bus:      bus,
		metrics:  m,
		channels: make(map[handles.Handle]*Channel),
		log:      logger.With("muc"),
		now:      time.Now,
	}
	mgr.registerHandlers()
	return mgr
}

func (m *Manager) registerHandlers() {
	add := func(code parser.Code, fn parser.Handler) {
		m.parser.AddHandler(code, fn, m.owner)
	}
	add(parser.CodeBadChannelKey, m.onBadChannelKey)
	add(parser.CodeBannedFromChan, m.joinErrorHandler(ErrBanned))
	add(parser.CodeChannelIsFull, m.joinErrorHandler(ErrFull))
	add(parser.CodeInviteOnlyChan, m.joinErrorHandler(ErrInviteOnly))
	add(parser.CodeModeReply, m.onModeReply)
	add(parser.CodeNamesReply, m.onNamesReply)
	add(parser.CodeEndOfNames, m.onEndOfNames)
	add(parser.CodeTopicReply, m.onTopicReply)
	add(parser.CodeTopicStamp, m.onTopicStamp)
	add(parser.CodeCannotSendToChan, m.onCannotSend)
	add(parser.CodeInvite, m.onInvite)
	add(parser.CodeJoin, m.onJoin)
	add(parser.CodeKick, m.onKick)
	add(parser.CodeModeChannel, m.onMode)
	add(parser.CodeNick, m.onNick)
	add(parser.CodePrivmsgChannel, m.onPrivmsg)
	add(parser.CodeNoticeChannel, m.onNotice)
	add(parser.CodePart, m.onPart)
	add(parser.CodeQuit, m.onQuit)
	add(parser.CodeTopic, m.onTopic)
}

func (m *Manager) emit(eventType string, data map[string]interface{}) {
	if m.bus == nil {
		return
	}
	m.bus.EmitSync(events.New(events.EventSourceMUC, eventType, data))
}

func (m *Manager) create(room handles.Handle) (*Channel, error) {
	name := m.store.Inspect(handles.Room, room)
	if name == "" {
		return nil, fmt.Errorf("%w: room %d", ErrInvalidHandle, room)
	}
	if err := m.store.Ref(handles.Room, room); err != nil {
		return nil, fmt.Errorf("failed to reference room: %w", err)
	}
	ch := newChannel(m, room, name)
	m.channels[room] = ch
	m.metrics.SetRooms(len(m.channels))
	m.log.Debug().Str("room", name).Msg("Channel created")
	return ch, nil
}

func (m *Manager) forget(ch *Channel) {
	if m.channels[ch.room] != ch {
		return
	}
	delete(m.channels, ch.room)
	_ = m.store.Unref(handles.Room, ch.room)
	m.metrics.SetRooms(len(m.channels))
	m.log.Debug().Str("room", ch.name).Msg("Channel closed")
}

// Channel returns the channel for room, nil if there is none
func (m *Manager) Channel(room handles.Handle) *Channel {
	return m.channels[room]
}

// Lookup returns the channel with the given name, nil if there is none
func (m *Manager) Lookup(name string) *Channel {
	return m.channels[m.store.Lookup(handles.Room, name)]
}

// Rooms returns the handles of all open channels
func (m *Manager) Rooms() []handles.Handle {
	out := make([]handles.Handle, 0, len(m.channels))
	for h := range m.channels {
		out = append(out, h)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (m *Manager) channel(room handles.Handle) (*Channel, error) {
	ch := m.channels[room]
	if ch == nil {
		return nil, fmt.Errorf("%w: room %d", ErrNoSuchChannel, room)
	}
	return ch, nil
}

// Join opens the channel for name if needed and joins it
func (m *Manager) Join(name, key string) (handles.Handle, <-chan error, error) {
	room, err := m.store.Intern(handles.Room, name)
	if err != nil {
		return handles.None, nil, fmt.Errorf("%w: %v", ErrInvalidHandle, err)
	}
	ch := m.channels[room]
	created := false
	if ch == nil {
		if ch, err = m.create(room); err != nil {
			return handles.None, nil, err
		}
		created = true
	}
	result, err := ch.Join(key)
	if err != nil {
		if created {
			ch.close()
		}
		return handles.None, nil, err
	}
	return room, result, nil
}

// Part leaves a joined room, or drops one that was never joined
func (m *Manager) Part(room handles.Handle, message string) error {
	ch, err := m.channel(room)
	if err != nil {
		return err
	}
	if ch.state == StateJoined {
		return ch.Part(message)
	}
	return ch.Destroy()
}

// Invite invites a contact into room
func (m *Manager) Invite(room, contact handles.Handle) error {
	ch, err := m.channel(room)
	if err != nil {
		return err
	}
	return ch.Invite(contact)
}

// Kick removes a contact from room
func (m *Manager) Kick(room, contact handles.Handle, message string) error {
	ch, err := m.channel(room)
	if err != nil {
		return err
	}
	return ch.Kick(contact, message)
}

// SetTopic changes the topic of room
func (m *Manager) SetTopic(room handles.Handle, subject string) error {
	ch, err := m.channel(room)
	if err != nil {
		return err
	}
	return ch.SetTopic(subject)
}

// ProvidePassword retries a join that needs a key
func (m *Manager) ProvidePassword(room handles.Handle, password string) (<-chan error, error) {
	ch, err := m.channel(room)
	if err != nil {
		return nil, err
	}
	return ch.ProvidePassword(password)
}

// SetProperties changes room settings, see Properties
func (m *Manager) SetProperties(room handles.Handle, props Properties) error {
	ch, err := m.channel(room)
	if err != nil {
		return err
	}
	return ch.SetProperties(props)
}

// Send sends text to room
func (m *Manager) Send(room handles.Handle, t text.Type, body string) error {
	ch, err := m.channel(room)
	if err != nil {
		return err
	}
	return ch.Send(t, body)
}

// CloseAll closes every channel and drops the parser handlers. Used when
// the connection goes away.
func (m *Manager) CloseAll() {
	for _, room := range m.Rooms() {
		if ch := m.channels[room]; ch != nil {
			ch.close()
		}
	}
	m.parser.RemoveHandlers(m.owner)
}

func (m *Manager) onBadChannelKey(e *parser.Event) parser.Result {
	if ch := m.channels[e.Handle(0)]; ch != nil {
		ch.badChannelKey()
	}
	return parser.Handled
}

func (m *Manager) joinErrorHandler(reason *JoinError) parser.Handler {
	return func(e *parser.Event) parser.Result {
		if ch := m.channels[e.Handle(0)]; ch != nil {
			ch.joinError(reason)
		}
		return parser.Handled
	}
}

func (m *Manager) onModeReply(e *parser.Event) parser.Result {
	ch := m.channels[e.Handle(0)]
	if ch == nil {
		return parser.Handled
	}
	ch.applyModes(stringArgs(e, 1))
	return parser.Handled
}

func (m *Manager) onNamesReply(e *parser.Event) parser.Result {
	ch := m.channels[e.Handle(0)]
	if ch == nil {
		return parser.Handled
	}
	entries := make([]nameEntry, 0, (e.Len()-1)/2)
	for i := 1; i+1 < e.Len(); i += 2 {
		entries = append(entries, nameEntry{contact: e.Handle(i), prefix: byte(e.ModeChar(i + 1))})
	}
	ch.namesReply(entries)
	return parser.Handled
}

func (m *Manager) onEndOfNames(e *parser.Event) parser.Result {
	if ch := m.channels[e.Handle(0)]; ch != nil {
		ch.endOfNames()
	}
	return parser.Handled
}

func (m *Manager) onTopicReply(e *parser.Event) parser.Result {
	if ch := m.channels[e.Handle(0)]; ch != nil {
		ch.setTopic(e.String(1))
	}
	return parser.Handled
}

func (m *Manager) onTopicStamp(e *parser.Event) parser.Result {
	if ch := m.channels[e.Handle(0)]; ch != nil {
		ch.touchTopic(e.Handle(1), time.Unix(int64(e.Uint(2)), 0))
	}
	return parser.Handled
}

func (m *Manager) onCannotSend(e *parser.Event) parser.Result {
	if ch := m.channels[e.Handle(0)]; ch != nil {
		ch.sendFailed("cannot send to channel")
	}
	return parser.Handled
}

func (m *Manager) onInvite(e *parser.Event) parser.Result {
	inviter, invited, room := e.Handle(0), e.Handle(1), e.Handle(2)
	if invited != m.session.SelfHandle() {
		return parser.NotHandled
	}
	ch := m.channels[room]
	if ch == nil {
		var err error
		if ch, err = m.create(room); err != nil {
			m.log.Error().Err(err).Msg("Failed to create invited channel")
			return parser.Handled
		}
	}
	ch.invited(inviter)
	return parser.Handled
}

func (m *Manager) onJoin(e *parser.Event) parser.Result {
	joiner, room := e.Handle(0), e.Handle(1)
	ch := m.channels[room]

	if joiner == m.session.SelfHandle() {
		if ch == nil {
			var err error
			if ch, err = m.create(room); err != nil {
				m.log.Error().Err(err).Msg("Failed to create joined channel")
				return parser.Handled
			}
		}
		ch.selfJoined()
		return parser.Handled
	}

	if ch != nil {
		ch.otherJoined(joiner)
	}
	return parser.Handled
}

func (m *Manager) onKick(e *parser.Event) parser.Result {
	actor, room, kicked := e.Handle(0), e.Handle(1), e.Handle(2)
	if ch := m.channels[room]; ch != nil {
		ch.removeMember(kicked, actor, ReasonKicked, e.String(3))
	}
	return parser.Handled
}

func (m *Manager) onMode(e *parser.Event) parser.Result {
	if ch := m.channels[e.Handle(0)]; ch != nil {
		ch.applyModes(stringArgs(e, 1))
	}
	return parser.Handled
}

func (m *Manager) onNick(e *parser.Event) parser.Result {
	old, renamed := e.Handle(0), e.Handle(1)
	if old != renamed {
		for _, room := range m.Rooms() {
			m.channels[room].renamed(old, renamed)
		}
	}
	return parser.NotHandled
}

func (m *Manager) onPrivmsg(e *parser.Event) parser.Result {
	sender, room, body := e.Handle(0), e.Handle(1), e.String(2)
	t, msg, ok := text.Decode(body)
	if !ok {
		// CTCP other than ACTION
		return parser.NotHandled
	}
	m.received(room, sender, t, msg)
	return parser.Handled
}

func (m *Manager) onNotice(e *parser.Event) parser.Result {
	sender, room, body := e.Handle(0), e.Handle(1), e.String(2)
	_, msg, ok := text.Decode(body)
	if !ok {
		return parser.NotHandled
	}
	m.received(room, sender, text.Notice, msg)
	return parser.Handled
}

func (m *Manager) received(room, sender handles.Handle, t text.Type, body string) {
	ch := m.channels[room]
	if ch == nil {
		m.log.Debug().Str("room", m.store.Inspect(handles.Room, room)).Msg("Message for unknown channel")
		return
	}
	ch.emit(EventMessage, map[string]interface{}{
		"target":      room,
		"target_name": ch.name,
		"target_kind": "room",
		"sender":      sender,
		"sender_name": m.store.Inspect(handles.Contact, sender),
		"type":        t.String(),
		"body":        body,
		"timestamp":   m.now(),
	})
}

func (m *Manager) onPart(e *parser.Event) parser.Result {
	contact, room := e.Handle(0), e.Handle(1)
	if ch := m.channels[room]; ch != nil {
		ch.removeMember(contact, contact, ReasonNone, e.String(2))
	}
	return parser.Handled
}

func (m *Manager) onQuit(e *parser.Event) parser.Result {
	contact := e.Handle(0)
	for _, room := range m.Rooms() {
		if ch := m.channels[room]; ch != nil {
			ch.removeMember(contact, contact, ReasonOffline, e.String(1))
		}
	}
	return parser.NotHandled
}

func (m *Manager) onTopic(e *parser.Event) parser.Result {
	actor, room := e.Handle(0), e.Handle(1)
	ch := m.channels[room]
	if ch == nil {
		return parser.Handled
	}
	if e.Len() < 3 {
		ch.unsetTopic()
		return parser.Handled
	}
	ch.setTopicFull(e.String(2), actor, m.now())
	return parser.Handled
}

func stringArgs(e *parser.Event, from int) []string {
	var out []string
	for i := from; i < e.Len(); i++ {
		out = append(out, e.String(i))
	}
	return out
}
