package parser

import (
	"reflect"
	"testing"

	"github.com/matt0x6f/irc-engine/internal/handles"
)

func newTestParser() (*Parser, *handles.Store, *[]string) {
	store := handles.NewStore()
	p := New(store, LossyDecoder{})
	var lines []string
	p.OnLine = func(line string) { lines = append(lines, line) }
	return p, store, &lines
}

func TestLineSplitting(t *testing.T) {
	p, _, lines := newTestParser()

	p.Receive([]byte("FOO\r\nBAR\r\n"))
	if !reflect.DeepEqual(*lines, []string{"FOO", "BAR"}) {
		t.Fatalf("lines = %q, want [FOO BAR]", *lines)
	}

	*lines = nil
	p.Receive([]byte("FO"))
	if len(*lines) != 0 {
		t.Fatalf("partial line should not be dispatched, got %q", *lines)
	}
	p.Receive([]byte("O\r\n"))
	if !reflect.DeepEqual(*lines, []string{"FOO"}) {
		t.Fatalf("lines = %q, want [FOO]", *lines)
	}
}

func TestLineSplittingTerminatorAcrossChunks(t *testing.T) {
	p, _, lines := newTestParser()

	p.Receive([]byte("ONE\r"))
	p.Receive([]byte("\nTWO\n\n\rTHREE"))
	p.Receive([]byte("\r\n"))
	if !reflect.DeepEqual(*lines, []string{"ONE", "TWO", "THREE"}) {
		t.Fatalf("lines = %q", *lines)
	}
}

func TestOverlongLineTruncated(t *testing.T) {
	p, _, lines := newTestParser()

	long := make([]byte, 2000)
	for i := range long {
		long[i] = 'x'
	}
	p.Receive(long)
	p.Receive([]byte("\r\nNEXT\r\n"))
	if len(*lines) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(*lines))
	}
	if len((*lines)[0]) != MaxLineLength {
		t.Errorf("truncated line length = %d, want %d", len((*lines)[0]), MaxLineLength)
	}
	if (*lines)[1] != "NEXT" {
		t.Errorf("second line = %q", (*lines)[1])
	}
}

func TestPingDecode(t *testing.T) {
	p, _, _ := newTestParser()
	owner := p.NewOwner()

	var got string
	p.AddHandler(CodePing, func(e *Event) Result {
		got = e.String(0)
		return Handled
	}, owner)

	p.Receive([]byte("PING :irc.example.org\r\n"))
	if got != "irc.example.org" {
		t.Errorf("PING token = %q", got)
	}

	got = ""
	p.Receive([]byte("ping token123\r\n"))
	if got != "token123" {
		t.Errorf("lowercase PING token = %q", got)
	}
}

func TestPrivmsgChannelVersusUser(t *testing.T) {
	p, store, _ := newTestParser()
	owner := p.NewOwner()

	var room, user []string
	p.AddHandler(CodePrivmsgChannel, func(e *Event) Result {
		room = append(room, store.Inspect(handles.Room, e.Handle(1))+"|"+e.String(2))
		return Handled
	}, owner)
	p.AddHandler(CodePrivmsgUser, func(e *Event) Result {
		user = append(user, store.Inspect(handles.Contact, e.Handle(1))+"|"+e.String(2))
		return Handled
	}, owner)

	p.ParseLine(":bob!b@host PRIVMSG #test :hello  there")
	p.ParseLine(":bob!b@host PRIVMSG alice :hi")
	p.ParseLine(":bob!b@host PRIVMSG alice single")

	if !reflect.DeepEqual(room, []string{"#test|hello  there"}) {
		t.Errorf("room messages = %q", room)
	}
	if !reflect.DeepEqual(user, []string{"alice|hi", "alice|single"}) {
		t.Errorf("user messages = %q", user)
	}
}

func TestSameWordTriesNextEntry(t *testing.T) {
	p, store, _ := newTestParser()
	owner := p.NewOwner()

	var codes []Code
	record := func(e *Event) Result {
		codes = append(codes, e.Code)
		return Handled
	}
	p.AddHandler(CodeModeChannel, record, owner)
	p.AddHandler(CodeModeUser, record, owner)

	p.ParseLine(":alice!a@h MODE #test +o bob")
	p.ParseLine(":alice MODE alice +i")

	if !reflect.DeepEqual(codes, []Code{CodeModeChannel, CodeModeUser}) {
		t.Errorf("codes = %v", codes)
	}
	if store.Len(handles.Contact) != 0 || store.Len(handles.Room) != 0 {
		t.Error("temporary handles should be released after dispatch")
	}
}

func TestNamesReply(t *testing.T) {
	p, store, _ := newTestParser()
	owner := p.NewOwner()

	var names []string
	var modes []ModeChar
	p.AddHandler(CodeNamesReply, func(e *Event) Result {
		if store.Inspect(handles.Room, e.Handle(0)) != "#test" {
			t.Errorf("room = %q", store.Inspect(handles.Room, e.Handle(0)))
		}
		for i := 1; i+1 < e.Len(); i += 2 {
			names = append(names, store.Inspect(handles.Contact, e.Handle(i)))
			modes = append(modes, e.ModeChar(i+1))
		}
		return Handled
	}, owner)

	p.ParseLine(":irc.example.org 353 alice = #test :alice @bob +carol")

	if !reflect.DeepEqual(names, []string{"alice", "bob", "carol"}) {
		t.Errorf("names = %q", names)
	}
	if !reflect.DeepEqual(modes, []ModeChar{0, '@', '+'}) {
		t.Errorf("modes = %v", modes)
	}
}

func TestWelcomeIgnoresTrailingText(t *testing.T) {
	p, store, _ := newTestParser()
	owner := p.NewOwner()

	var nick string
	p.AddHandler(CodeWelcome, func(e *Event) Result {
		nick = store.Inspect(handles.Contact, e.Handle(0))
		return Handled
	}, owner)

	p.ParseLine(":irc.example.org 001 alice :Welcome to the network alice")
	if nick != "alice" {
		t.Errorf("welcome nick = %q", nick)
	}
}

func TestOptionalTrailing(t *testing.T) {
	p, _, _ := newTestParser()
	owner := p.NewOwner()

	var args []int
	p.AddHandler(CodePart, func(e *Event) Result {
		args = append(args, e.Len())
		return Handled
	}, owner)

	p.ParseLine(":bob!b@h PART #test")
	p.ParseLine(":bob!b@h PART #test :bye now")
	if !reflect.DeepEqual(args, []int{2, 3}) {
		t.Errorf("argument counts = %v", args)
	}
}

func TestTopicStampDecimal(t *testing.T) {
	p, _, _ := newTestParser()
	owner := p.NewOwner()

	var ts uint64
	hits := 0
	p.AddHandler(CodeTopicStamp, func(e *Event) Result {
		hits++
		ts = e.Uint(2)
		return Handled
	}, owner)

	p.ParseLine(":srv 333 alice #test bob!b@h 1700000000")
	p.ParseLine(":srv 333 alice #test bob notanumber")

	if hits != 1 || ts != 1700000000 {
		t.Errorf("hits = %d, ts = %d", hits, ts)
	}
}

func TestRequiredTrailingMissing(t *testing.T) {
	p, _, _ := newTestParser()
	owner := p.NewOwner()

	var unmatched []string
	p.OnUnmatched = func(line string) { unmatched = append(unmatched, line) }
	p.AddHandler(CodePrivmsgChannel, func(e *Event) Result {
		t.Error("PRIVMSG without text should not dispatch")
		return Handled
	}, owner)

	p.ParseLine(":bob!b@h PRIVMSG #test")
	p.ParseLine(":bob!b@h PRIVMSG #test :")
	if len(unmatched) != 2 {
		t.Errorf("unmatched = %q", unmatched)
	}
}

func TestHandlerPriorityAndResults(t *testing.T) {
	p, _, _ := newTestParser()
	owner := p.NewOwner()

	var order []string
	p.AddHandlerWithPriority(CodePing, PriorityLast, func(e *Event) Result {
		order = append(order, "last")
		return NotHandled
	}, owner)
	p.AddHandler(CodePing, func(e *Event) Result {
		order = append(order, "default-1")
		return Unregister
	}, owner)
	p.AddHandler(CodePing, func(e *Event) Result {
		order = append(order, "default-2")
		return NotHandled
	}, owner)
	p.AddHandlerWithPriority(CodePing, PriorityFirst, func(e *Event) Result {
		order = append(order, "first")
		return NotHandled
	}, owner)
	p.AddHandlerWithPriority(CodePing, PriorityUnhandled, func(e *Event) Result {
		order = append(order, "unhandled")
		return Handled
	}, owner)

	p.ParseLine("PING :a")
	want := []string{"first", "default-1", "default-2", "last", "unhandled"}
	if !reflect.DeepEqual(order, want) {
		t.Fatalf("order = %v, want %v", order, want)
	}

	order = nil
	p.ParseLine("PING :b")
	want = []string{"first", "default-2", "last", "unhandled"}
	if !reflect.DeepEqual(order, want) {
		t.Fatalf("after unregister order = %v, want %v", order, want)
	}
}

func TestHandledStopsDispatch(t *testing.T) {
	p, _, _ := newTestParser()
	owner := p.NewOwner()

	calls := 0
	p.AddHandler(CodePing, func(e *Event) Result { calls++; return Handled }, owner)
	p.AddHandlerWithPriority(CodePing, PriorityUnhandled, func(e *Event) Result { calls += 10; return Handled }, owner)

	p.ParseLine("PING x")
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestRemoveHandlersIdempotent(t *testing.T) {
	p, _, _ := newTestParser()
	a := p.NewOwner()
	b := p.NewOwner()

	var hits []string
	p.AddHandler(CodePing, func(e *Event) Result { hits = append(hits, "a"); return NotHandled }, a)
	p.AddHandler(CodePing, func(e *Event) Result { hits = append(hits, "b"); return NotHandled }, b)

	p.RemoveHandlers(a)
	p.RemoveHandlers(a)

	p.ParseLine("PING x")
	if !reflect.DeepEqual(hits, []string{"b"}) {
		t.Errorf("hits = %v", hits)
	}
}

func TestRemoveDuringDispatch(t *testing.T) {
	p, _, _ := newTestParser()
	a := p.NewOwner()
	b := p.NewOwner()

	var hits []string
	p.AddHandler(CodePing, func(e *Event) Result {
		hits = append(hits, "a")
		p.RemoveHandlers(b)
		return NotHandled
	}, a)
	p.AddHandler(CodePing, func(e *Event) Result { hits = append(hits, "b"); return NotHandled }, b)

	p.ParseLine("PING x")
	if !reflect.DeepEqual(hits, []string{"a"}) {
		t.Errorf("hits = %v", hits)
	}
}

func TestHandlerKeepsReference(t *testing.T) {
	p, store, _ := newTestParser()
	owner := p.NewOwner()

	var kept handles.Handle
	p.AddHandler(CodeJoin, func(e *Event) Result {
		kept = e.Handle(0)
		if err := store.Ref(handles.Contact, kept); err != nil {
			t.Fatalf("Ref failed: %v", err)
		}
		return Handled
	}, owner)

	p.ParseLine(":Dave!d@h JOIN #test")
	if store.Inspect(handles.Contact, kept) != "Dave" {
		t.Fatal("handler reference should keep the handle alive")
	}
	if store.Len(handles.Room) != 0 {
		t.Error("room handle should be released after dispatch")
	}
}

func TestRoomModePrefix(t *testing.T) {
	p, store, _ := newTestParser()
	owner := p.NewOwner()

	var rooms []string
	p.AddHandler(CodeJoin, func(e *Event) Result {
		rooms = append(rooms, store.Inspect(handles.Room, e.Handle(1)))
		return Handled
	}, owner)

	p.ParseLine(":bob JOIN :#plain")
	p.ParseLine(":bob JOIN &local")
	p.ParseLine(":bob JOIN @#prefixed")

	want := []string{"#plain", "&local", "#prefixed"}
	if !reflect.DeepEqual(rooms, want) {
		t.Errorf("rooms = %q, want %q", rooms, want)
	}
}

func TestOnContactHook(t *testing.T) {
	p, _, _ := newTestParser()

	var seen []string
	p.OnContact = func(h handles.Handle, nick string) { seen = append(seen, nick) }
	p.ParseLine(":Bob!b@h NICK :Robert")

	if !reflect.DeepEqual(seen, []string{"Bob", "Robert"}) {
		t.Errorf("seen = %q", seen)
	}
}

func TestLossyDecoder(t *testing.T) {
	got := LossyDecoder{}.Decode([]byte("caf\xe9"))
	if got != "caf?" {
		t.Errorf("Decode = %q", got)
	}
	if (LossyDecoder{}).Decode([]byte("café")) != "café" {
		t.Error("valid UTF-8 should pass through")
	}
}
