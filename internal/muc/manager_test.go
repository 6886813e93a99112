package muc

import (
	"errors"
	"strings"
	"testing"

	"github.com/matt0x6f/irc-engine/internal/events"
	"github.com/matt0x6f/irc-engine/internal/handles"
	"github.com/matt0x6f/irc-engine/internal/parser"
	"github.com/matt0x6f/irc-engine/internal/queue"
	"github.com/matt0x6f/irc-engine/internal/text"
)

type fakeSession struct {
	self handles.Handle
	sent []string
	err  error
}

func (s *fakeSession) Send(cmd string, prio queue.Priority) error {
	if s.err != nil {
		return s.err
	}
	s.sent = append(s.sent, cmd)
	return nil
}

func (s *fakeSession) SelfHandle() handles.Handle { return s.self }

func (s *fakeSession) MaxMessageLength() int { return 400 }

type harness struct {
	t       *testing.T
	store   *handles.Store
	parser  *parser.Parser
	session *fakeSession
	mgr     *Manager
	events  []events.Event
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	store := handles.NewStore()
	self, err := store.Intern(handles.Contact, "alice")
	if err != nil {
		t.Fatalf("Intern failed: %v", err)
	}
	if err := store.Ref(handles.Contact, self); err != nil {
		t.Fatalf("Ref failed: %v", err)
	}

	h := &harness{
		t:       t,
		store:   store,
		parser:  parser.New(store, parser.LossyDecoder{}),
		session: &fakeSession{self: self},
	}
	bus := events.NewEventBus()
	bus.Subscribe(events.Wildcard, events.Func(func(e events.Event) {
		h.events = append(h.events, e)
	}))
	h.mgr = NewManager(h.session, store, h.parser, bus, nil)
	return h
}

func (h *harness) lines(lines ...string) {
	for _, l := range lines {
		h.parser.ParseLine(l)
	}
}

func (h *harness) contact(nick string) handles.Handle {
	h.t.Helper()
	c, err := h.store.Intern(handles.Contact, nick)
	if err != nil {
		h.t.Fatalf("Intern(%q) failed: %v", nick, err)
	}
	return c
}

func (h *harness) eventsOf(eventType string) []events.Event {
	var out []events.Event
	for _, e := range h.events {
		if e.Type == eventType {
			out = append(out, e)
		}
	}
	return out
}

func (h *harness) lastSent() string {
	if len(h.session.sent) == 0 {
		return ""
	}
	return h.session.sent[len(h.session.sent)-1]
}

// join opens #test and confirms it the way the server would
func (h *harness) join() *Channel {
	h.t.Helper()
	room, result, err := h.mgr.Join("#test", "")
	if err != nil {
		h.t.Fatalf("Join failed: %v", err)
	}
	h.lines(":alice!a@host JOIN #test")
	select {
	case err := <-result:
		if err != nil {
			h.t.Fatalf("join result = %v, want nil", err)
		}
	default:
		h.t.Fatal("join result not signalled")
	}
	ch := h.mgr.Channel(room)
	if ch == nil {
		h.t.Fatal("channel missing after join")
	}
	return ch
}

func waitErr(t *testing.T, c <-chan error) error {
	t.Helper()
	select {
	case err := <-c:
		return err
	default:
		t.Fatal("result not signalled")
		return nil
	}
}

func TestJoinSendsCommandsAndTracksSelf(t *testing.T) {
	h := newHarness(t)
	ch := h.join()

	if h.session.sent[0] != "JOIN #test" {
		t.Errorf("first command = %q, want JOIN #test", h.session.sent[0])
	}
	if h.lastSent() != "MODE #test" {
		t.Errorf("last command = %q, want MODE #test", h.lastSent())
	}
	if ch.State() != StateJoined {
		t.Errorf("state = %v, want joined", ch.State())
	}
	if !ch.IsMember(h.session.self) {
		t.Error("self is not a member")
	}
	if len(ch.RemotePending()) != 0 {
		t.Errorf("remote pending = %v, want empty", ch.RemotePending())
	}
	if ch.GroupFlags()&(GroupCanAdd|GroupMessageDepart) != GroupCanAdd|GroupMessageDepart {
		t.Errorf("group flags = %v", ch.GroupFlags().Strings())
	}
}

func TestJoinTwiceNotAvailable(t *testing.T) {
	h := newHarness(t)
	if _, _, err := h.mgr.Join("#test", ""); err != nil {
		t.Fatalf("Join failed: %v", err)
	}
	if _, _, err := h.mgr.Join("#test", ""); !errors.Is(err, ErrNotAvailable) {
		t.Errorf("second Join error = %v, want ErrNotAvailable", err)
	}
}

func TestJoinInvalidName(t *testing.T) {
	h := newHarness(t)
	if _, _, err := h.mgr.Join("test", ""); !errors.Is(err, ErrInvalidHandle) {
		t.Errorf("Join error = %v, want ErrInvalidHandle", err)
	}
}

func TestNamesCommitsOneMembershipEvent(t *testing.T) {
	h := newHarness(t)
	ch := h.join()
	before := len(h.eventsOf(EventMembers))

	h.lines(
		":irc.example.net 353 alice = #test :alice @bob +carol",
		":irc.example.net 366 alice #test :End of /NAMES list.",
	)

	members := h.eventsOf(EventMembers)
	if len(members)-before != 1 {
		t.Fatalf("membership events = %d, want 1", len(members)-before)
	}
	names, _ := members[len(members)-1].Data["added_names"].([]string)
	if strings.Join(names, ",") != "alice,bob,carol" {
		t.Errorf("added = %v, want alice,bob,carol", names)
	}

	bob := h.store.Lookup(handles.Contact, "bob")
	carol := h.store.Lookup(handles.Contact, "carol")
	if ch.Privileges(bob) != ModeOp {
		t.Errorf("bob privileges = %q, want o", ch.Privileges(bob))
	}
	if ch.Privileges(carol) != ModeVoice {
		t.Errorf("carol privileges = %q, want v", ch.Privileges(carol))
	}
	if ch.Privileges(h.session.self) != 0 {
		t.Errorf("self privileges = %q, want none", ch.Privileges(h.session.self))
	}
	if len(ch.Members()) != 3 {
		t.Errorf("members = %d, want 3", len(ch.Members()))
	}
}

func TestEndOfNamesWithoutNamesIgnored(t *testing.T) {
	h := newHarness(t)
	h.join()
	before := len(h.eventsOf(EventMembers))
	h.lines(":irc.example.net 366 alice #test :End of /NAMES list.")
	if got := len(h.eventsOf(EventMembers)) - before; got != 0 {
		t.Errorf("membership events = %d, want 0", got)
	}
}

func TestNamesGrantSelfOp(t *testing.T) {
	h := newHarness(t)
	ch := h.join()
	h.lines(":irc.example.net 353 alice = #test :@alice")
	if ch.Modes()&ModeOp == 0 {
		t.Error("self op not applied from NAMES")
	}
	if ch.GroupFlags()&GroupCanRemove == 0 {
		t.Error("op should allow removing members")
	}
}

func TestNetworkModeUpdatesChannel(t *testing.T) {
	h := newHarness(t)
	ch := h.join()
	before := len(h.eventsOf(EventMode))

	h.lines(":bob!b@host MODE #test +l 50")
	modes := h.eventsOf(EventMode)
	if len(modes)-before != 1 {
		t.Fatalf("mode events = %d, want 1", len(modes)-before)
	}
	if got := modes[len(modes)-1].Data["limit"]; got != uint64(50) {
		t.Errorf("mode event limit = %v, want 50", got)
	}

	h.lines(":irc.example.net MODE #test +o alice")
	if ch.Modes()&ModeOp == 0 {
		t.Errorf("modes = %q, want o", ch.Modes())
	}
	if ch.GroupFlags()&GroupCanRemove == 0 {
		t.Errorf("group flags = %v, want can_remove", ch.GroupFlags().Strings())
	}

	h.lines(":irc.example.net MODE #elsewhere +m")
	if ch.Modes()&ModeModerated != 0 {
		t.Error("mode for another room applied to #test")
	}
}

func TestLimitKeptAfterRemoval(t *testing.T) {
	h := newHarness(t)
	ch := h.join()

	h.lines(":bob!b@host MODE #test +l 50")
	if ch.Modes()&ModeUserLimit == 0 || ch.Limit() != 50 {
		t.Fatalf("after +l 50: modes %q limit %d", ch.Modes(), ch.Limit())
	}
	h.lines(":bob!b@host MODE #test -l")
	if ch.Modes()&ModeUserLimit != 0 {
		t.Error("limit flag still set after -l")
	}
	if ch.Limit() != 50 {
		t.Errorf("limit = %d, want 50 kept", ch.Limit())
	}
	h.lines(":bob!b@host MODE #test +l")
	if ch.Modes()&ModeUserLimit == 0 || ch.Limit() != 50 {
		t.Errorf("after bare +l: modes %q limit %d", ch.Modes(), ch.Limit())
	}
}

func TestModeReplyAndKey(t *testing.T) {
	h := newHarness(t)
	ch := h.join()

	h.lines(":irc.example.net 324 alice #test +ntk secret")
	want := ModeNoOutside | ModeTopicOpsOnly | ModeKey
	if ch.Modes() != want {
		t.Errorf("modes = %q, want %q", ch.Modes(), want)
	}
	if ch.Key() != "secret" {
		t.Errorf("key = %q, want secret", ch.Key())
	}
	h.lines(":bob!b@host MODE #test -k secret")
	if ch.Modes()&ModeKey != 0 {
		t.Error("key flag still set")
	}
	if ch.Key() != "secret" {
		t.Errorf("key = %q, want secret kept", ch.Key())
	}
}

func TestMemberPrivilegeChange(t *testing.T) {
	h := newHarness(t)
	ch := h.join()
	h.lines(":bob!b@host JOIN #test", ":carol!c@host MODE #test +o-v+v bob bob bob")

	bob := h.store.Lookup(handles.Contact, "bob")
	if ch.Privileges(bob) != ModeOp|ModeVoice {
		t.Errorf("bob privileges = %q, want ov", ch.Privileges(bob))
	}
	if len(h.eventsOf(EventPrivileges)) == 0 {
		t.Error("no privilege events")
	}
}

func TestPasswordFlow(t *testing.T) {
	h := newHarness(t)
	room, result, err := h.mgr.Join("#test", "")
	if err != nil {
		t.Fatalf("Join failed: %v", err)
	}
	ch := h.mgr.Channel(room)

	h.lines(":irc.example.net 475 alice #test :Cannot join channel (+k)")
	if err := waitErr(t, result); !errors.Is(err, ErrPasswordRequired) {
		t.Fatalf("join result = %v, want ErrPasswordRequired", err)
	}
	if ch.State() != StateNeedPassword {
		t.Errorf("state = %v, want need_password", ch.State())
	}
	if ch.PasswordFlags()&PasswordProvide == 0 {
		t.Fatal("password flag not set")
	}

	wrong, err := h.mgr.ProvidePassword(room, "wrong")
	if err != nil {
		t.Fatalf("ProvidePassword failed: %v", err)
	}
	if h.lastSent() != "JOIN #test wrong" {
		t.Errorf("sent %q", h.lastSent())
	}
	if _, err := h.mgr.ProvidePassword(room, "again"); !errors.Is(err, ErrNotAvailable) {
		t.Errorf("second pending ProvidePassword error = %v, want ErrNotAvailable", err)
	}
	h.lines(":irc.example.net 475 alice #test :Cannot join channel (+k)")
	if err := waitErr(t, wrong); !errors.Is(err, ErrWrongPassword) {
		t.Fatalf("password result = %v, want ErrWrongPassword", err)
	}

	right, err := h.mgr.ProvidePassword(room, "right")
	if err != nil {
		t.Fatalf("ProvidePassword failed: %v", err)
	}
	h.lines(":alice!a@host JOIN #test")
	if err := waitErr(t, right); err != nil {
		t.Fatalf("password result = %v, want nil", err)
	}
	if ch.State() != StateJoined {
		t.Errorf("state = %v, want joined", ch.State())
	}
	if ch.PasswordFlags() != 0 {
		t.Error("password flag still set after join")
	}
}

func TestProvidePasswordWithoutRequest(t *testing.T) {
	h := newHarness(t)
	ch := h.join()
	if _, err := h.mgr.ProvidePassword(ch.Room(), "pw"); !errors.Is(err, ErrNotAvailable) {
		t.Errorf("error = %v, want ErrNotAvailable", err)
	}
}

func TestJoinErrorSignalsOnceAndCloses(t *testing.T) {
	h := newHarness(t)
	room, result, err := h.mgr.Join("#test", "")
	if err != nil {
		t.Fatalf("Join failed: %v", err)
	}

	h.lines(":irc.example.net 474 alice #test :Cannot join channel (+b)")
	err = waitErr(t, result)
	var joinErr *JoinError
	if !errors.As(err, &joinErr) || joinErr != ErrBanned {
		t.Fatalf("join result = %v, want ErrBanned", err)
	}
	if h.mgr.Channel(room) != nil {
		t.Error("channel still open after join error")
	}

	h.lines(":irc.example.net 474 alice #test :Cannot join channel (+b)")
	if got := len(h.eventsOf(EventJoinFailed)); got != 1 {
		t.Errorf("join_failed events = %d, want 1", got)
	}
	if got := len(h.eventsOf(EventClosed)); got != 1 {
		t.Errorf("closed events = %d, want 1", got)
	}
}

func TestKickNonMember(t *testing.T) {
	h := newHarness(t)
	ch := h.join()
	bob := h.contact("bob")
	if err := h.mgr.Kick(ch.Room(), bob, "bye"); !errors.Is(err, ErrNotAvailable) {
		t.Errorf("Kick error = %v, want ErrNotAvailable", err)
	}

	h.lines(":bob!b@host JOIN #test")
	if err := h.mgr.Kick(ch.Room(), bob, "bye"); err != nil {
		t.Fatalf("Kick failed: %v", err)
	}
	if h.lastSent() != "KICK #test bob :bye" {
		t.Errorf("sent %q", h.lastSent())
	}
}

func TestInviteInvalidHandle(t *testing.T) {
	h := newHarness(t)
	ch := h.join()
	if err := h.mgr.Invite(ch.Room(), handles.Handle(999)); !errors.Is(err, ErrInvalidHandle) {
		t.Errorf("Invite error = %v, want ErrInvalidHandle", err)
	}
	bob := h.contact("bob")
	if err := h.mgr.Invite(ch.Room(), bob); err != nil {
		t.Fatalf("Invite failed: %v", err)
	}
	if h.lastSent() != "INVITE bob #test" {
		t.Errorf("sent %q", h.lastSent())
	}
}

func TestTopicPermissions(t *testing.T) {
	h := newHarness(t)
	ch := h.join()

	if err := h.mgr.SetTopic(ch.Room(), "hello"); err != nil {
		t.Fatalf("SetTopic on open room failed: %v", err)
	}
	h.lines(":irc.example.net MODE #test +t")
	if ch.CanSetTopic() {
		t.Error("topic should be restricted after +t")
	}
	if err := h.mgr.SetTopic(ch.Room(), "hello"); !errors.Is(err, ErrPermissionDenied) {
		t.Errorf("SetTopic error = %v, want ErrPermissionDenied", err)
	}

	h.lines(":irc.example.net MODE #test +o alice")
	if !ch.CanSetTopic() {
		t.Error("op should be able to set the topic")
	}
	if err := h.mgr.SetTopic(ch.Room(), "hi there"); err != nil {
		t.Fatalf("SetTopic failed: %v", err)
	}
	if h.lastSent() != "TOPIC #test :hi there" {
		t.Errorf("sent %q", h.lastSent())
	}

	h.lines(":irc.example.net MODE #test -o alice")
	if ch.CanSetTopic() {
		t.Error("topic should be restricted after losing op")
	}
}

func TestTopicSetAndUnset(t *testing.T) {
	h := newHarness(t)
	ch := h.join()

	h.lines(
		":irc.example.net 332 alice #test :Welcome",
		":irc.example.net 333 alice #test bob!b@host 1700000000",
	)
	topic, set := ch.Topic()
	if topic != "Welcome" || !set {
		t.Errorf("topic = %q set=%v", topic, set)
	}
	toucher, at := ch.TopicToucher()
	if h.store.Inspect(handles.Contact, toucher) != "bob" || at.Unix() != 1700000000 {
		t.Errorf("toucher = %d at %v", toucher, at)
	}

	h.lines(":carol!c@host TOPIC #test :")
	topic, set = ch.Topic()
	if set {
		t.Error("topic still marked set")
	}
	if topic != "Welcome" {
		t.Errorf("topic text = %q, want kept", topic)
	}

	h.lines(":carol!c@host TOPIC #test :New topic")
	topic, set = ch.Topic()
	if topic != "New topic" || !set {
		t.Errorf("topic = %q set=%v", topic, set)
	}
	toucher, _ = ch.TopicToucher()
	if h.store.Inspect(handles.Contact, toucher) != "carol" {
		t.Errorf("toucher = %q, want carol", h.store.Inspect(handles.Contact, toucher))
	}
}

func TestModeratedSend(t *testing.T) {
	h := newHarness(t)
	ch := h.join()
	h.lines(":irc.example.net MODE #test +m")
	if err := h.mgr.Send(ch.Room(), text.Normal, "hi"); !errors.Is(err, ErrPermissionDenied) {
		t.Errorf("Send error = %v, want ErrPermissionDenied", err)
	}
	h.lines(":irc.example.net MODE #test +v alice")
	if err := h.mgr.Send(ch.Room(), text.Action, "waves"); err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	if h.lastSent() != "PRIVMSG #test :\x01ACTION waves\x01" {
		t.Errorf("sent %q", h.lastSent())
	}
}

func TestSetProperties(t *testing.T) {
	h := newHarness(t)
	ch := h.join()
	yes, no := true, false
	limit := uint(10)
	pw := "pw"

	if err := h.mgr.SetProperties(ch.Room(), Properties{InviteOnly: &yes}); !errors.Is(err, ErrPermissionDenied) {
		t.Errorf("error = %v, want ErrPermissionDenied", err)
	}
	if err := h.mgr.SetProperties(ch.Room(), Properties{PasswordProtected: &yes}); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("error = %v, want ErrInvalidArgument", err)
	}
	if err := h.mgr.SetProperties(ch.Room(), Properties{PasswordProtected: &no, Password: &pw}); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("error = %v, want ErrInvalidArgument", err)
	}

	h.lines(":irc.example.net MODE #test +o alice")
	before := len(h.session.sent)
	err := h.mgr.SetProperties(ch.Room(), Properties{
		InviteOnly: &yes,
		Moderated:  &no,
		Limit:      &limit,
		Password:   &pw,
	})
	if err != nil {
		t.Fatalf("SetProperties failed: %v", err)
	}
	want := []string{"MODE #test +i", "MODE #test -m", "MODE #test +l 10", "MODE #test +k pw"}
	got := h.session.sent[before:]
	if strings.Join(got, "|") != strings.Join(want, "|") {
		t.Errorf("sent %q, want %q", got, want)
	}
}

func TestMembershipChanges(t *testing.T) {
	h := newHarness(t)
	ch := h.join()
	h.lines(":bob!b@host JOIN #test", ":carol!c@host JOIN #test")
	bob := h.store.Lookup(handles.Contact, "bob")

	h.lines(":bob!b@host NICK bobby")
	bobby := h.store.Lookup(handles.Contact, "bobby")
	if bobby == handles.None || !ch.IsMember(bobby) {
		t.Fatal("renamed member missing")
	}
	if ch.IsMember(bob) {
		t.Error("old nick still a member")
	}

	h.lines(":alice!a@host KICK #test bobby :behave")
	if ch.IsMember(bobby) {
		t.Error("kicked member still present")
	}
	last := h.eventsOf(EventMembers)
	if reason := last[len(last)-1].Data["reason"]; reason != "kicked" {
		t.Errorf("reason = %v, want kicked", reason)
	}

	h.lines(":carol!c@host QUIT :gone")
	last = h.eventsOf(EventMembers)
	if reason := last[len(last)-1].Data["reason"]; reason != "offline" {
		t.Errorf("reason = %v, want offline", reason)
	}
	if len(ch.Members()) != 1 {
		t.Errorf("members = %d, want 1", len(ch.Members()))
	}
}

func TestSelfPartClosesChannel(t *testing.T) {
	h := newHarness(t)
	ch := h.join()
	if err := h.mgr.Part(ch.Room(), "later"); err != nil {
		t.Fatalf("Part failed: %v", err)
	}
	if h.lastSent() != "PART #test :later" {
		t.Errorf("sent %q", h.lastSent())
	}
	h.lines(":alice!a@host PART #test :later")
	if h.mgr.Channel(ch.Room()) != nil {
		t.Error("channel still open")
	}
	if !ch.Closed() || ch.State() != StateParted {
		t.Errorf("closed=%v state=%v", ch.Closed(), ch.State())
	}
	if len(h.eventsOf(EventClosed)) != 1 {
		t.Error("no closed event")
	}
}

func TestInviteFromServer(t *testing.T) {
	h := newHarness(t)
	h.lines(":bob!b@host INVITE alice :#other")
	ch := h.mgr.Lookup("#other")
	if ch == nil {
		t.Fatal("invited channel not created")
	}
	local := ch.LocalPending()
	if len(local) != 1 || local[0] != h.session.self {
		t.Errorf("local pending = %v, want self", local)
	}

	// someone else's invite is not ours to track
	h.lines(":bob!b@host INVITE carol #third")
	if h.mgr.Lookup("#third") != nil {
		t.Error("channel created for another contact's invite")
	}
}

func TestChannelMessages(t *testing.T) {
	h := newHarness(t)
	h.join()
	h.lines(
		":bob!b@host PRIVMSG #test :\x01ACTION waves\x01",
		":bob!b@host NOTICE #test :\x02hello\x02",
		":bob!b@host PRIVMSG #elsewhere :ignored",
	)
	msgs := h.eventsOf(EventMessage)
	if len(msgs) != 2 {
		t.Fatalf("messages = %d, want 2", len(msgs))
	}
	if msgs[0].Data["type"] != "action" || msgs[0].Data["body"] != "waves" {
		t.Errorf("first message = %v", msgs[0].Data)
	}
	if msgs[1].Data["type"] != "notice" || msgs[1].Data["body"] != "hello" {
		t.Errorf("second message = %v", msgs[1].Data)
	}
}

func TestCannotSendEmitsFailure(t *testing.T) {
	h := newHarness(t)
	h.join()
	h.lines(":irc.example.net 404 alice #test :Cannot send to channel")
	if len(h.eventsOf(EventSendFailed)) != 1 {
		t.Error("send_failed not emitted")
	}
}

func TestCloseAllReleasesWaiters(t *testing.T) {
	h := newHarness(t)
	room, result, err := h.mgr.Join("#test", "")
	if err != nil {
		t.Fatalf("Join failed: %v", err)
	}
	h.mgr.CloseAll()
	if err := waitErr(t, result); !errors.Is(err, ErrChannelClosed) {
		t.Errorf("join result = %v, want ErrChannelClosed", err)
	}
	if h.mgr.Channel(room) != nil {
		t.Error("channel still open")
	}
	if h.store.Inspect(handles.Room, room) != "" {
		t.Error("room handle still alive after close")
	}

	// handlers are gone, a late JOIN creates nothing
	h.lines(":alice!a@host JOIN #test")
	if len(h.mgr.Rooms()) != 0 {
		t.Error("channel created after CloseAll")
	}
}
