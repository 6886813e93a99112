package parser

import (
	"sort"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/ergochat/irc-go/ircmsg"
	"github.com/matt0x6f/irc-engine/internal/handles"
	"github.com/matt0x6f/irc-engine/internal/logger"
	"github.com/matt0x6f/irc-engine/internal/validation"
	"github.com/rs/zerolog"
)

// MaxLineLength is the largest partial line kept between two reads
const MaxLineLength = 512 + 3

// Result tells the parser what to do after a handler ran
type Result int

const (
	// NotHandled passes the event on to the next handler
	NotHandled Result = iota
	// Handled stops dispatch of the event
	Handled
	// Unregister removes the handler and passes the event on
	Unregister
)

// Priority orders handlers registered for the same code
type Priority int

const (
	PriorityFirst     Priority = 0
	PriorityDefault   Priority = 300
	PriorityLast      Priority = 600
	PriorityUnhandled Priority = 1000
)

// Handler receives decoded events
type Handler func(e *Event) Result

// Owner tags handler registrations so they can be removed together
type Owner uint64

// ModeChar is a channel membership prefix such as '@' or '+', zero if absent
type ModeChar byte

// Decoder converts an assembled line from the wire charset to UTF-8
type Decoder interface {
	Decode(line []byte) string
}

// Event is a decoded server message
type Event struct {
	Code Code
	Args []any
	Line string
}

// Len returns the number of decoded arguments
func (e *Event) Len() int {
	return len(e.Args)
}

// Handle returns argument i as a handle, None if it is not one
func (e *Event) Handle(i int) handles.Handle {
	if i < len(e.Args) {
		if h, ok := e.Args[i].(handles.Handle); ok {
			return h
		}
	}
	return handles.None
}

// String returns argument i as a string, "" if it is not one
func (e *Event) String(i int) string {
	if i < len(e.Args) {
		if s, ok := e.Args[i].(string); ok {
			return s
		}
	}
	return ""
}

// Uint returns argument i as an unsigned integer
func (e *Event) Uint(i int) uint64 {
	if i < len(e.Args) {
		if n, ok := e.Args[i].(uint64); ok {
			return n
		}
	}
	return 0
}

// ModeChar returns argument i as a membership prefix
func (e *Event) ModeChar(i int) ModeChar {
	if i < len(e.Args) {
		if m, ok := e.Args[i].(ModeChar); ok {
			return m
		}
	}
	return 0
}

type registration struct {
	prio    Priority
	seq     uint64
	fn      Handler
	owner   Owner
	removed bool
}

// Parser splits a byte stream into lines, decodes them against the command
// table and dispatches the result to registered handlers. It is driven from
// a single goroutine.
type Parser struct {
	store    *handles.Store
	decoder  Decoder
	handlers map[Code][]*registration
	seq      uint64
	owners   Owner
	carry    []byte
	overflow bool
	log      zerolog.Logger

	// OnLine is called with every assembled line before it is parsed
	OnLine func(line string)
	// OnUnmatched is called for lines that no table entry could decode
	OnUnmatched func(line string)
	// OnContact is called for every contact decoded from a line, with the
	// spelling the server used
	OnContact func(h handles.Handle, nick string)
}

// New creates a parser interning names into store
func New(store *handles.Store, decoder Decoder) *Parser {
	return &Parser{
		store:    store,
		decoder:  decoder,
		handlers: make(map[Code][]*registration),
		carry:    make([]byte, 0, MaxLineLength),
		log:      logger.With("parser"),
	}
}

// NewOwner allocates a fresh owner tag
func (p *Parser) NewOwner() Owner {
	p.owners++
	return p.owners
}

// AddHandler registers fn for code at the default priority
func (p *Parser) AddHandler(code Code, fn Handler, owner Owner) {
	p.AddHandlerWithPriority(code, PriorityDefault, fn, owner)
}

// AddHandlerWithPriority registers fn for code. Handlers run in ascending
// priority, then in registration order.
func (p *Parser) AddHandlerWithPriority(code Code, prio Priority, fn Handler, owner Owner) {
	p.seq++
	reg := &registration{prio: prio, seq: p.seq, fn: fn, owner: owner}

	list := p.handlers[code]
	i := sort.Search(len(list), func(i int) bool { return list[i].prio > prio })
	list = append(list, nil)
	copy(list[i+1:], list[i:])
	list[i] = reg
	p.handlers[code] = list
}

// RemoveHandlers drops every handler registered with owner
func (p *Parser) RemoveHandlers(owner Owner) {
	for code, list := range p.handlers {
		kept := list[:0:0]
		for _, reg := range list {
			if reg.owner == owner {
				reg.removed = true
				continue
			}
			kept = append(kept, reg)
		}
		if len(kept) == 0 {
			delete(p.handlers, code)
		} else {
			p.handlers[code] = kept
		}
	}
}

func (p *Parser) removeRegistration(code Code, target *registration) {
	target.removed = true
	list := p.handlers[code]
	for i, reg := range list {
		if reg == target {
			p.handlers[code] = append(list[:i:i], list[i+1:]...)
			break
		}
	}
	if len(p.handlers[code]) == 0 {
		delete(p.handlers, code)
	}
}

// Receive feeds a chunk read from the transport. Lines end at '\r' or '\n';
// an unterminated tail is kept for the next call.
func (p *Parser) Receive(chunk []byte) {
	for _, b := range chunk {
		if b == '\r' || b == '\n' {
			if len(p.carry) > 0 {
				line := p.decode(p.carry)
				p.carry = p.carry[:0]
				p.overflow = false
				p.ParseLine(line)
			}
			continue
		}
		if len(p.carry) >= MaxLineLength {
			if !p.overflow {
				p.log.Debug().Int("limit", MaxLineLength).Msg("Incoming line too long, truncating")
				p.overflow = true
			}
			continue
		}
		p.carry = append(p.carry, b)
	}
}

func (p *Parser) decode(raw []byte) string {
	if p.decoder != nil {
		return p.decoder.Decode(raw)
	}
	return string(raw)
}

type token struct {
	text   string
	offset int
}

func tokenize(line string) []token {
	var tokens []token
	start := -1
	for i := 0; i < len(line); i++ {
		if line[i] == ' ' {
			if start >= 0 {
				tokens = append(tokens, token{text: line[start:i], offset: start})
				start = -1
			}
			continue
		}
		if start < 0 {
			start = i
		}
	}
	if start >= 0 {
		tokens = append(tokens, token{text: line[start:], offset: start})
	}
	return tokens
}

// ParseLine decodes one line without its terminator and dispatches it
func (p *Parser) ParseLine(line string) {
	if p.OnLine != nil {
		p.OnLine(line)
	}

	tokens := tokenize(line)
	if len(tokens) == 0 {
		return
	}
	prefixed := line[0] == ':'

	for i := range table {
		e := &table[i]
		if e.prefixed != prefixed {
			continue
		}
		idx := 0
		if prefixed {
			idx = 1
		}
		if len(tokens) <= idx || !strings.EqualFold(tokens[idx].text, e.word) {
			continue
		}

		temp := newTempRefs(p.store)
		args, ok := p.decodeArgs(line, tokens, e.format, temp)
		if !ok {
			temp.release()
			continue
		}

		p.dispatch(&Event{Code: e.code, Args: args, Line: line})
		temp.release()
		return
	}

	p.log.Debug().Str("line", line).Msg("Unrecognized line")
	if p.OnUnmatched != nil {
		p.OnUnmatched(line)
	}
}

func (p *Parser) decodeArgs(line string, tokens []token, format string, temp *tempRefs) ([]any, bool) {
	args := make([]any, 0, len(format))
	fi, ti := 0, 0

	for fi < len(format) && ti < len(tokens) {
		f := format[fi]
		switch f {
		case 'v':
			if fi+1 >= len(format) {
				return nil, false
			}
			atom := format[fi+1]
			for ; ti < len(tokens); ti++ {
				var ok bool
				if args, ok = p.decodeAtom(atom, tokens[ti].text, args, temp); !ok {
					return nil, false
				}
			}
			fi += 2

		case ':', '.':
			tok := tokens[ti]
			var text string
			switch {
			case strings.HasPrefix(tok.text, ":"):
				text = line[tok.offset+1:]
			case ti == len(tokens)-1:
				text = tok.text
			}
			if text == "" {
				if f == '.' {
					return args, true
				}
				return nil, false
			}
			args = append(args, text)
			ti = len(tokens)
			fi++

		default:
			var ok bool
			if args, ok = p.decodeAtom(f, tokens[ti].text, args, temp); !ok {
				return nil, false
			}
			fi++
			ti++
		}
	}

	// Extra tokens past the end of the format are ignored
	if fi < len(format) && format[fi] != '.' {
		return nil, false
	}
	return args, true
}

func isModeChar(b byte) bool {
	switch b {
	case '~', '*', '!', '&', '@', '%', '+':
		return true
	}
	return false
}

func (p *Parser) decodeAtom(f byte, text string, args []any, temp *tempRefs) ([]any, bool) {
	text = strings.TrimPrefix(text, ":")

	switch f {
	case 'I':
		return args, true

	case 'c', 'C':
		var mode ModeChar
		if text != "" && isModeChar(text[0]) {
			mode = ModeChar(text[0])
			text = text[1:]
		}
		nick := nickFromPrefix(text)
		h, err := p.store.Intern(handles.Contact, nick)
		if err != nil {
			return args, false
		}
		if err := temp.add(handles.Contact, h); err != nil {
			return args, false
		}
		if p.OnContact != nil {
			p.OnContact(h, nick)
		}
		args = append(args, h)
		if f == 'C' {
			args = append(args, mode)
		}
		return args, true

	case 'r':
		if len(text) > 1 && isModeChar(text[0]) && validation.IsChannelType(text[1]) {
			text = text[1:]
		}
		h, err := p.store.Intern(handles.Room, text)
		if err != nil {
			return args, false
		}
		if err := temp.add(handles.Room, h); err != nil {
			return args, false
		}
		return append(args, h), true

	case 'd':
		end := 0
		for end < len(text) && text[end] >= '0' && text[end] <= '9' {
			end++
		}
		if end == 0 {
			return args, false
		}
		n, err := strconv.ParseUint(text[:end], 10, 64)
		if err != nil {
			return args, false
		}
		return append(args, n), true

	case 's':
		return append(args, text), true
	}

	p.log.Warn().Str("format", string(f)).Msg("Unknown format character")
	return args, false
}

func nickFromPrefix(prefix string) string {
	if nuh, err := ircmsg.ParseNUH(prefix); err == nil && nuh.Name != "" {
		return nuh.Name
	}
	if i := strings.IndexByte(prefix, '!'); i >= 0 {
		return prefix[:i]
	}
	return prefix
}

func (p *Parser) dispatch(e *Event) {
	list := p.handlers[e.Code]
	if len(list) == 0 {
		return
	}
	snapshot := make([]*registration, len(list))
	copy(snapshot, list)

	for _, reg := range snapshot {
		if reg.removed {
			continue
		}
		switch reg.fn(e) {
		case Handled:
			return
		case Unregister:
			p.removeRegistration(e.Code, reg)
		}
	}
}

// tempRefs holds the references taken on handles decoded from one line
type tempRefs struct {
	contacts *handles.Set
	rooms    *handles.Set
}

func newTempRefs(store *handles.Store) *tempRefs {
	return &tempRefs{
		contacts: handles.NewSet(store, handles.Contact),
		rooms:    handles.NewSet(store, handles.Room),
	}
}

func (t *tempRefs) add(ns handles.Namespace, h handles.Handle) error {
	if ns == handles.Room {
		return t.rooms.Add(h)
	}
	return t.contacts.Add(h)
}

func (t *tempRefs) release() {
	t.contacts.Clear()
	t.rooms.Clear()
}

// LossyDecoder replaces bytes of invalid UTF-8 input with '?'
type LossyDecoder struct{}

// Decode implements Decoder
func (LossyDecoder) Decode(raw []byte) string {
	if utf8.Valid(raw) {
		return string(raw)
	}
	out := make([]byte, len(raw))
	for i, b := range raw {
		if b >= 0x80 {
			b = '?'
		}
		out[i] = b
	}
	return string(out)
}
