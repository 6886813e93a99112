package muc

import (
	"fmt"
	"strconv"
	"time"

	"github.com/matt0x6f/irc-engine/internal/handles"
	"github.com/matt0x6f/irc-engine/internal/queue"
	"github.com/matt0x6f/irc-engine/internal/text"
	"github.com/rs/zerolog"
)

// Channel tracks one room: our membership state, the member list, room
// modes and the topic. All methods run on the connection goroutine.
type Channel struct {
	mgr  *Manager
	room handles.Handle
	name string
	log  zerolog.Logger

	state State
	modes Mode
	limit uint64
	key   string

	topic    string
	topicSet bool
	toucher  handles.Handle
	touched  time.Time

	members       *handles.Set
	localPending  *handles.Set
	remotePending *handles.Set
	namesPending  *handles.Set
	privileges    map[handles.Handle]Mode

	groupFlags    GroupFlag
	passwordFlags PasswordFlag
	canSetTopic   bool

	joinReady      bool
	joinResult     chan error
	passwordResult chan error
	closed         bool
}

func newChannel(mgr *Manager, room handles.Handle, name string) *Channel {
	store := mgr.store
	return &Channel{
		mgr:           mgr,
		room:          room,
		name:          name,
		log:           mgr.log.With().Str("room", name).Logger(),
		state:         StateCreated,
		members:       handles.NewSet(store, handles.Contact),
		localPending:  handles.NewSet(store, handles.Contact),
		remotePending: handles.NewSet(store, handles.Contact),
		namesPending:  handles.NewSet(store, handles.Contact),
		privileges:    make(map[handles.Handle]Mode),
		canSetTopic:   true,
	}
}

// Room returns the room handle
func (c *Channel) Room() handles.Handle { return c.room }

// Name returns the room name
func (c *Channel) Name() string { return c.name }

// State returns the lifecycle state
func (c *Channel) State() State { return c.state }

// Modes returns the room flags and our own privileges
func (c *Channel) Modes() Mode { return c.modes }

// Limit returns the last known user limit, kept after the limit is removed
func (c *Channel) Limit() uint64 { return c.limit }

// Key returns the last known room key, kept after the key is removed
func (c *Channel) Key() string { return c.key }

// Topic returns the topic text and whether it is currently set
func (c *Channel) Topic() (string, bool) { return c.topic, c.topicSet }

// TopicToucher returns who last set the topic and when
func (c *Channel) TopicToucher() (handles.Handle, time.Time) { return c.toucher, c.touched }

// Members returns the current members
func (c *Channel) Members() []handles.Handle { return c.members.Handles() }

// LocalPending returns contacts waiting for our approval, i.e. us after an invite
func (c *Channel) LocalPending() []handles.Handle { return c.localPending.Handles() }

// RemotePending returns contacts waiting on the server
func (c *Channel) RemotePending() []handles.Handle { return c.remotePending.Handles() }

// IsMember reports whether h is in the member list
func (c *Channel) IsMember(h handles.Handle) bool { return c.members.Has(h) }

// Privileges returns the op, half-op and voice bits of member h
func (c *Channel) Privileges(h handles.Handle) Mode {
	if h == c.self() {
		return c.modes & Privileges
	}
	return c.privileges[h]
}

// GroupFlags returns what we may do with the member list
func (c *Channel) GroupFlags() GroupFlag { return c.groupFlags }

// PasswordFlags reports whether a password can be provided
func (c *Channel) PasswordFlags() PasswordFlag { return c.passwordFlags }

// CanSetTopic reports whether a TOPIC from us would be accepted
func (c *Channel) CanSetTopic() bool { return c.canSetTopic }

func (c *Channel) self() handles.Handle {
	return c.mgr.session.SelfHandle()
}

func (c *Channel) send(cmd string) error {
	return c.mgr.session.Send(cmd, queue.PriorityNormal)
}

func (c *Channel) emit(eventType string, data map[string]interface{}) {
	data["room"] = c.room
	data["room_name"] = c.name
	c.mgr.emit(eventType, data)
}

func (c *Channel) contactName(h handles.Handle) string {
	return c.mgr.store.Inspect(handles.Contact, h)
}

func (c *Channel) contactNames(hs []handles.Handle) []string {
	names := make([]string, len(hs))
	for i, h := range hs {
		names[i] = c.contactName(h)
	}
	return names
}

// MembershipChange describes one update of the member lists
type MembershipChange struct {
	Added         []handles.Handle
	Removed       []handles.Handle
	LocalPending  []handles.Handle
	RemotePending []handles.Handle
	Actor         handles.Handle
	Reason        Reason
	Message       string
}

func (c *Channel) emitMembers(ch MembershipChange) {
	c.emit(EventMembers, map[string]interface{}{
		"added":          ch.Added,
		"added_names":    c.contactNames(ch.Added),
		"removed":        ch.Removed,
		"removed_names":  c.contactNames(ch.Removed),
		"local_pending":  ch.LocalPending,
		"remote_pending": ch.RemotePending,
		"actor":          ch.Actor,
		"actor_name":     c.contactName(ch.Actor),
		"reason":         ch.Reason.String(),
		"message":        ch.Message,
	})
}

func (c *Channel) changeState(state State) {
	old := c.state
	if old == state && state != StateNeedPassword {
		return
	}
	c.state = state
	c.log.Debug().Str("from", old.String()).Str("to", state.String()).Msg("Channel state changed")

	switch state {
	case StateNeedPassword:
		if c.passwordResult != nil {
			c.passwordResult <- ErrWrongPassword
			c.passwordResult = nil
		}
		c.setPasswordFlags(c.passwordFlags | PasswordProvide)
	case StateJoined:
		c.setPasswordFlags(c.passwordFlags &^ PasswordProvide)
		if c.passwordResult != nil {
			c.passwordResult <- nil
			c.passwordResult = nil
		}
	}

	if state > StateJoining && !c.joinReady {
		switch state {
		case StateNeedPassword:
			c.signalJoinReady(ErrPasswordRequired)
		case StateJoined:
			c.signalJoinReady(nil)
		default:
			c.signalJoinReady(ErrChannelClosed)
		}
	}

	c.emit(EventState, map[string]interface{}{"state": state.String()})
}

func (c *Channel) signalJoinReady(err error) {
	c.joinReady = true
	if c.joinResult != nil {
		c.joinResult <- err
		c.joinResult = nil
	}
}

func (c *Channel) setPasswordFlags(flags PasswordFlag) {
	if flags == c.passwordFlags {
		return
	}
	c.passwordFlags = flags
	c.emit(EventPasswordFlags, map[string]interface{}{
		"provide": flags&PasswordProvide != 0,
	})
}

func (c *Channel) setGroupFlags(flags GroupFlag) {
	if flags == c.groupFlags {
		return
	}
	c.groupFlags = flags
	c.emit(EventGroupFlags, map[string]interface{}{"flags": flags.Strings()})
}

// changeModeState applies room flag deltas and derives what we may do from
// whether we hold op or half-op.
func (c *Channel) changeModeState(add, remove Mode) {
	remove &^= add
	add &^= c.modes
	remove &= c.modes
	if add == 0 && remove == 0 {
		return
	}

	const opFlags = ModeOp | ModeHalfOp
	wasOp := c.modes&opFlags != 0
	c.modes = (c.modes | add) &^ remove
	isOp := c.modes&opFlags != 0

	group := c.groupFlags
	if add&ModeInviteOnly != 0 && !isOp {
		group &^= GroupCanAdd
	}
	if remove&ModeInviteOnly != 0 {
		group |= GroupCanAdd
	}
	if !wasOp && isOp {
		group |= GroupCanAdd | GroupCanRemove | GroupMessageRemove
		if c.modes&ModeTopicOpsOnly != 0 {
			c.canSetTopic = true
		}
	}
	if wasOp && !isOp {
		group &^= GroupCanRemove | GroupMessageRemove
		if c.modes&ModeInviteOnly != 0 {
			group &^= GroupCanAdd
		}
		if c.modes&ModeTopicOpsOnly != 0 {
			c.canSetTopic = false
		}
	}
	if (add|remove)&ModeTopicOpsOnly != 0 && !isOp {
		c.canSetTopic = add&ModeTopicOpsOnly == 0
	}
	c.setGroupFlags(group)

	c.emit(EventMode, map[string]interface{}{
		"modes":   c.modes.String(),
		"added":   add.String(),
		"removed": remove.String(),
		"limit":   c.limit,
		"key":     c.key,
	})
}

// applyModes interprets a MODE delta or an RPL_CHANNELMODEIS reply, e.g.
// ["+o-v", "bob", "carol"] or ["+lk", "50", "secret"]
func (c *Channel) applyModes(words []string) {
	var add, remove Mode
	sign := byte(0)
	self := c.self()

	flush := func() {
		if add != 0 || remove != 0 {
			c.changeModeState(add, remove)
		}
		add, remove = 0, 0
	}

	i := 0
	for i < len(words) {
		word := words[i]
		i++
		if word == "" || (word[0] != '+' && word[0] != '-') {
			c.log.Debug().Str("word", word).Msg("Ignoring mode word without sign")
			continue
		}

		for j := 0; j < len(word); j++ {
			letter := word[j]
			switch {
			case letter == '+' || letter == '-':
				if sign != 0 && sign != letter {
					flush()
				}
				sign = letter

			case memberModeLetters[letter] != 0:
				if i >= len(words) {
					c.log.Warn().Str("mode", string(letter)).Msg("Member mode without target")
					continue
				}
				target := words[i]
				i++
				flag := memberModeLetters[letter]
				h := c.mgr.store.Lookup(handles.Contact, target)
				if h != handles.None && h == self {
					if sign == '+' {
						add |= flag
					} else {
						remove |= flag
					}
					continue
				}
				c.updatePrivileges(h, target, flag, sign == '+')

			case letter == 'l':
				if sign == '-' {
					remove |= ModeUserLimit
					continue
				}
				if i < len(words) {
					n, err := strconv.ParseUint(words[i], 10, 32)
					i++
					if err != nil {
						c.log.Warn().Str("limit", words[i-1]).Msg("Invalid user limit")
						continue
					}
					c.limit = n
				} else if c.limit == 0 {
					c.log.Warn().Msg("User limit set without a value")
					continue
				} else {
					c.log.Warn().Uint64("limit", c.limit).Msg("User limit set without a value, reusing the last one")
				}
				add |= ModeUserLimit

			case letter == 'k':
				if sign == '-' {
					// Servers echo the key on removal, it is not a new value
					if i < len(words) && words[i] != "" && words[i][0] != '+' && words[i][0] != '-' {
						i++
					}
					remove |= ModeKey
					continue
				}
				if i < len(words) {
					c.key = words[i]
					i++
				} else if c.key == "" {
					c.log.Warn().Msg("Key set without a value")
					continue
				} else {
					c.log.Warn().Msg("Key set without a value, reusing the last one")
				}
				add |= ModeKey

			case roomModeLetters[letter] != 0:
				if sign == '+' {
					add |= roomModeLetters[letter]
				} else {
					remove |= roomModeLetters[letter]
				}

			case indexByte(listModeLetters, letter):
				if i < len(words) {
					i++
				}

			default:
				c.log.Debug().Str("mode", string(letter)).Msg("Unknown channel mode")
			}
		}
	}
	flush()
}

func indexByte(s string, b byte) bool {
	for i := 0; i < len(s); i++ {
		if s[i] == b {
			return true
		}
	}
	return false
}

func (c *Channel) updatePrivileges(h handles.Handle, nick string, flag Mode, set bool) {
	if h == handles.None || !(c.members.Has(h) || c.namesPending.Has(h)) {
		c.log.Debug().Str("nick", nick).Msg("Mode change for unknown member")
		return
	}
	old := c.privileges[h]
	priv := old
	if set {
		priv |= flag
	} else {
		priv &^= flag
	}
	if priv == old {
		return
	}
	if priv == 0 {
		delete(c.privileges, h)
	} else {
		c.privileges[h] = priv
	}
	c.emit(EventPrivileges, map[string]interface{}{
		"contact":      h,
		"contact_name": c.contactName(h),
		"privileges":   priv.String(),
	})
}

// Join sends JOIN and waits for the server. The returned channel receives
// nil once joined, ErrPasswordRequired or a *JoinError.
func (c *Channel) Join(key string) (<-chan error, error) {
	self := c.self()
	if c.closed {
		return nil, ErrChannelClosed
	}
	if c.members.Has(self) || c.remotePending.Has(self) {
		return nil, fmt.Errorf("%w: already a member of %s", ErrNotAvailable, c.name)
	}

	cmd := "JOIN " + c.name
	if key != "" {
		cmd += " " + key
	}
	if err := c.send(cmd); err != nil {
		return nil, err
	}

	c.localPending.Remove(self)
	if err := c.remotePending.Add(self); err != nil {
		return nil, err
	}
	c.joinReady = false
	result := make(chan error, 1)
	c.joinResult = result
	c.changeState(StateJoining)
	c.emitMembers(MembershipChange{RemotePending: []handles.Handle{self}, Actor: self})
	return result, nil
}

// ProvidePassword retries the join with a key. The returned channel
// receives nil on success or ErrWrongPassword.
func (c *Channel) ProvidePassword(password string) (<-chan error, error) {
	if c.passwordFlags&PasswordProvide == 0 || c.passwordResult != nil {
		return nil, ErrNotAvailable
	}
	if err := c.send("JOIN " + c.name + " " + password); err != nil {
		return nil, err
	}
	result := make(chan error, 1)
	c.passwordResult = result
	c.changeState(StateJoining)
	return result, nil
}

// Invite asks the server to invite contact h
func (c *Channel) Invite(h handles.Handle) error {
	nick := c.contactName(h)
	if nick == "" {
		return fmt.Errorf("%w: contact %d", ErrInvalidHandle, h)
	}
	return c.send("INVITE " + nick + " " + c.name)
}

// Kick removes member h with an optional message
func (c *Channel) Kick(h handles.Handle, message string) error {
	if !c.members.Has(h) {
		return fmt.Errorf("%w: contact %d is not a member of %s", ErrNotAvailable, h, c.name)
	}
	cmd := "KICK " + c.name + " " + c.contactName(h)
	if message != "" {
		cmd += " :" + message
	}
	return c.send(cmd)
}

// Part leaves the room with an optional message
func (c *Channel) Part(message string) error {
	cmd := "PART " + c.name
	if message != "" {
		cmd += " :" + message
	}
	return c.send(cmd)
}

// AddMember joins when h is us and invites otherwise
func (c *Channel) AddMember(h handles.Handle) error {
	if h == c.self() {
		_, err := c.Join("")
		return err
	}
	return c.Invite(h)
}

// RemoveMember parts when h is us and kicks otherwise
func (c *Channel) RemoveMember(h handles.Handle, message string) error {
	if h == c.self() {
		return c.Part(message)
	}
	return c.Kick(h, message)
}

// SetTopic asks the server to change the topic
func (c *Channel) SetTopic(subject string) error {
	if c.state != StateJoined {
		return fmt.Errorf("%w: not joined to %s", ErrNotAvailable, c.name)
	}
	if !c.canSetTopic {
		return fmt.Errorf("%w: topic of %s is restricted to operators", ErrPermissionDenied, c.name)
	}
	return c.send("TOPIC " + c.name + " :" + subject)
}

// Send splits body into PRIVMSG or NOTICE commands for the room
func (c *Channel) Send(t text.Type, body string) error {
	if c.state != StateJoined {
		return fmt.Errorf("%w: not joined to %s", ErrNotAvailable, c.name)
	}
	if c.modes&ModeModerated != 0 && c.modes&Privileges == 0 {
		return fmt.Errorf("%w: %s is moderated", ErrPermissionDenied, c.name)
	}
	lines, err := text.EncodeAndSplit(t, c.name, body, c.mgr.session.MaxMessageLength())
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidArgument, err)
	}
	for _, line := range lines {
		if err := c.send(line); err != nil {
			return err
		}
	}
	return nil
}

// Destroy leaves the room. A joined room closes when the server confirms
// the PART, any other room closes at once.
func (c *Channel) Destroy() error {
	if c.state == StateJoined {
		return c.Part("")
	}
	c.close()
	return nil
}

func (c *Channel) selfJoined() {
	self := c.self()
	c.remotePending.Remove(self)
	c.localPending.Remove(self)
	if err := c.members.Add(self); err != nil {
		c.log.Error().Err(err).Msg("Failed to add self to members")
		return
	}
	if c.state < StateJoined {
		c.changeState(StateJoined)
	}
	c.setGroupFlags(c.groupFlags | GroupCanAdd | GroupMessageDepart)
	c.emitMembers(MembershipChange{Added: []handles.Handle{self}, Actor: self})

	if err := c.send("MODE " + c.name); err != nil {
		c.log.Warn().Err(err).Msg("Failed to query channel modes")
	}
	if c.name[0] == '+' {
		c.changeModeState(ModeTopicOpsOnly, 0)
	}
}

func (c *Channel) otherJoined(h handles.Handle) {
	if c.members.Has(h) {
		return
	}
	c.remotePending.Remove(h)
	if err := c.members.Add(h); err != nil {
		c.log.Error().Err(err).Msg("Failed to add member")
		return
	}
	c.emitMembers(MembershipChange{Added: []handles.Handle{h}, Actor: h})
}

func (c *Channel) removeMember(h, actor handles.Handle, reason Reason, message string) {
	if h == c.self() {
		c.emitMembers(MembershipChange{Removed: []handles.Handle{h}, Actor: actor, Reason: reason, Message: message})
		c.members.Remove(h)
		c.changeState(StateParted)
		c.close()
		return
	}

	if !c.members.Has(h) && !c.localPending.Has(h) && !c.remotePending.Has(h) {
		return
	}
	c.emitMembers(MembershipChange{Removed: []handles.Handle{h}, Actor: actor, Reason: reason, Message: message})
	c.members.Remove(h)
	c.localPending.Remove(h)
	c.remotePending.Remove(h)
	delete(c.privileges, h)
}

func (c *Channel) invited(inviter handles.Handle) {
	self := c.self()
	if err := c.members.Add(inviter); err != nil {
		c.log.Error().Err(err).Msg("Failed to add inviter")
		return
	}
	if err := c.localPending.Add(self); err != nil {
		c.log.Error().Err(err).Msg("Failed to mark self as invited")
		return
	}
	c.emitMembers(MembershipChange{
		Added:        []handles.Handle{inviter},
		LocalPending: []handles.Handle{self},
		Actor:        inviter,
		Reason:       ReasonInvited,
	})
}

func (c *Channel) renamed(old, renamed handles.Handle) {
	moved := false
	for _, set := range []*handles.Set{c.members, c.localPending, c.remotePending} {
		if set.Has(old) {
			if err := set.Add(renamed); err != nil {
				c.log.Error().Err(err).Msg("Failed to track renamed member")
				continue
			}
			moved = true
		}
	}
	if !moved {
		return
	}
	if priv, ok := c.privileges[old]; ok {
		delete(c.privileges, old)
		c.privileges[renamed] = priv
	}
	c.emitMembers(MembershipChange{
		Added:   []handles.Handle{renamed},
		Removed: []handles.Handle{old},
		Actor:   renamed,
		Reason:  ReasonRenamed,
	})
	c.members.Remove(old)
	c.localPending.Remove(old)
	c.remotePending.Remove(old)
}

type nameEntry struct {
	contact handles.Handle
	prefix  byte
}

func (c *Channel) namesReply(entries []nameEntry) {
	self := c.self()
	for _, e := range entries {
		priv := privilegeForPrefix(e.prefix)
		if e.contact == self {
			c.changeModeState(priv, Privileges&^priv)
		}
		if err := c.namesPending.Add(e.contact); err != nil {
			c.log.Error().Err(err).Msg("Failed to track NAMES entry")
			continue
		}
		if priv != 0 {
			c.privileges[e.contact] = priv
		} else {
			delete(c.privileges, e.contact)
		}
	}
}

func (c *Channel) endOfNames() {
	if c.namesPending.Len() == 0 {
		c.log.Debug().Msg("End of NAMES without pending names")
		return
	}
	added := c.namesPending.Handles()
	for _, h := range added {
		c.remotePending.Remove(h)
		if err := c.members.Add(h); err != nil {
			c.log.Error().Err(err).Msg("Failed to add member from NAMES")
		}
	}
	c.emitMembers(MembershipChange{Added: added})
	c.namesPending.Clear()
}

func (c *Channel) setTopic(topic string) {
	c.topic = topic
	c.topicSet = true
	c.emitTopic()
}

func (c *Channel) touchTopic(toucher handles.Handle, at time.Time) {
	c.setToucher(toucher)
	c.touched = at
	c.emitTopic()
}

func (c *Channel) setTopicFull(topic string, toucher handles.Handle, at time.Time) {
	c.topic = topic
	c.topicSet = true
	c.setToucher(toucher)
	c.touched = at
	c.emitTopic()
}

// unsetTopic keeps the last text around but marks it unreadable
func (c *Channel) unsetTopic() {
	c.topicSet = false
	c.setToucher(handles.None)
	c.touched = time.Time{}
	c.emitTopic()
}

func (c *Channel) setToucher(h handles.Handle) {
	if h == c.toucher {
		return
	}
	if h != handles.None {
		if err := c.mgr.store.Ref(handles.Contact, h); err != nil {
			c.log.Error().Err(err).Msg("Failed to reference topic toucher")
			h = handles.None
		}
	}
	if c.toucher != handles.None {
		_ = c.mgr.store.Unref(handles.Contact, c.toucher)
	}
	c.toucher = h
}

func (c *Channel) emitTopic() {
	c.emit(EventTopic, map[string]interface{}{
		"topic":        c.topic,
		"set":          c.topicSet,
		"toucher":      c.toucher,
		"toucher_name": c.contactName(c.toucher),
		"timestamp":    c.touched,
	})
}

func (c *Channel) badChannelKey() {
	c.changeState(StateNeedPassword)
}

func (c *Channel) joinError(err *JoinError) {
	if c.joinReady {
		c.log.Debug().Str("reason", err.Reason).Msg("Join error after join was resolved")
		return
	}
	c.signalJoinReady(err)
	c.emit(EventJoinFailed, map[string]interface{}{"reason": err.Reason})
	if c.state < StateJoined {
		c.changeState(StateParted)
		c.close()
	}
}

func (c *Channel) sendFailed(reason string) {
	c.emit(EventSendFailed, map[string]interface{}{"reason": reason})
}

func (c *Channel) close() {
	if c.closed {
		return
	}
	c.closed = true
	c.state = StateParted

	if c.passwordResult != nil {
		c.passwordResult <- ErrChannelClosed
		c.passwordResult = nil
	}
	if !c.joinReady {
		c.signalJoinReady(ErrChannelClosed)
	}

	c.members.Clear()
	c.localPending.Clear()
	c.remotePending.Clear()
	c.namesPending.Clear()
	c.privileges = make(map[handles.Handle]Mode)
	c.setToucher(handles.None)

	c.emit(EventClosed, map[string]interface{}{})
	c.mgr.forget(c)
}

// Closed reports whether the channel has been torn down
func (c *Channel) Closed() bool { return c.closed }
