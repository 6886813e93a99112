package handles

import (
	"container/heap"
	"errors"
	"fmt"
	"sync"

	"github.com/matt0x6f/irc-engine/internal/validation"
	"golang.org/x/text/cases"
)

// Handle identifies an interned contact or room name. Zero is never valid.
type Handle uint32

// None is the invalid handle
const None Handle = 0

// Namespace selects one of the two independent handle spaces
type Namespace int

const (
	Contact Namespace = iota
	Room
)

func (ns Namespace) String() string {
	switch ns {
	case Contact:
		return "contact"
	case Room:
		return "room"
	default:
		return fmt.Sprintf("namespace(%d)", int(ns))
	}
}

var (
	// ErrInvalidName is returned when a name fails namespace validation
	ErrInvalidName = errors.New("invalid name")
	// ErrUnknownHandle is returned for operations on a handle that is not live
	ErrUnknownHandle = errors.New("unknown handle")
)

type record struct {
	name     string
	key      string
	refcount int
}

type space struct {
	records map[Handle]*record
	byKey   map[string]Handle
	free    handleHeap
	serial  Handle
}

func newSpace() *space {
	return &space{
		records: make(map[Handle]*record),
		byKey:   make(map[string]Handle),
	}
}

func (s *space) alloc() Handle {
	if s.free.Len() > 0 {
		return heap.Pop(&s.free).(Handle)
	}
	s.serial++
	return s.serial
}

func (s *space) release(h Handle) {
	if h == s.serial && s.free.Len() == 0 {
		s.serial--
		return
	}
	heap.Push(&s.free, h)
}

// Store interns contact and room names into reference counted handles.
// A Store belongs to one connection.
type Store struct {
	mu     sync.RWMutex
	spaces [2]*space
	folder cases.Caser
}

// NewStore creates an empty handle store
func NewStore() *Store {
	return &Store{
		spaces: [2]*space{newSpace(), newSpace()},
		folder: cases.Fold(),
	}
}

func (st *Store) space(ns Namespace) *space {
	if ns != Contact && ns != Room {
		return nil
	}
	return st.spaces[ns]
}

// Validate checks name against the syntax rules of ns
func Validate(ns Namespace, name string) error {
	var err error
	switch ns {
	case Contact:
		err = validation.ValidateNickname(name)
	case Room:
		err = validation.ValidateChannelName(name)
	default:
		err = fmt.Errorf("unknown namespace %d", int(ns))
	}
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidName, err)
	}
	return nil
}

func (st *Store) fold(name string) string {
	// cases.Caser keeps state between calls and is not safe for concurrent use
	return st.folder.String(name)
}

// Intern returns the handle for name, allocating one when the name is new.
// An existing handle is returned without touching its refcount. A new handle
// starts at refcount zero and the caller is expected to Ref it.
func (st *Store) Intern(ns Namespace, name string) (Handle, error) {
	if err := Validate(ns, name); err != nil {
		return None, err
	}

	st.mu.Lock()
	defer st.mu.Unlock()

	sp := st.space(ns)
	key := st.fold(name)
	if h, ok := sp.byKey[key]; ok {
		return h, nil
	}

	h := sp.alloc()
	sp.records[h] = &record{name: name, key: key}
	sp.byKey[key] = h
	return h, nil
}

// Ref increments the refcount of h
func (st *Store) Ref(ns Namespace, h Handle) error {
	st.mu.Lock()
	defer st.mu.Unlock()

	sp := st.space(ns)
	if sp == nil {
		return ErrUnknownHandle
	}
	rec, ok := sp.records[h]
	if !ok {
		return fmt.Errorf("%w: %s %d", ErrUnknownHandle, ns, h)
	}
	rec.refcount++
	return nil
}

// Unref decrements the refcount of h and retires the handle at zero
func (st *Store) Unref(ns Namespace, h Handle) error {
	st.mu.Lock()
	defer st.mu.Unlock()

	sp := st.space(ns)
	if sp == nil {
		return ErrUnknownHandle
	}
	rec, ok := sp.records[h]
	if !ok || rec.refcount == 0 {
		return fmt.Errorf("%w: %s %d", ErrUnknownHandle, ns, h)
	}
	rec.refcount--
	if rec.refcount == 0 {
		delete(sp.records, h)
		delete(sp.byKey, rec.key)
		sp.release(h)
	}
	return nil
}

// Inspect returns the canonical name of h, or "" if h is not live
func (st *Store) Inspect(ns Namespace, h Handle) string {
	st.mu.RLock()
	defer st.mu.RUnlock()

	sp := st.space(ns)
	if sp == nil {
		return ""
	}
	if rec, ok := sp.records[h]; ok {
		return rec.name
	}
	return ""
}

// Lookup finds the handle of name case-insensitively, None if not interned
func (st *Store) Lookup(ns Namespace, name string) Handle {
	st.mu.Lock()
	defer st.mu.Unlock()

	sp := st.space(ns)
	if sp == nil {
		return None
	}
	return sp.byKey[st.fold(name)]
}

// Rename replaces the canonical spelling of h when name folds to the same key.
// It reports whether the spelling changed.
func (st *Store) Rename(ns Namespace, h Handle, name string) bool {
	st.mu.Lock()
	defer st.mu.Unlock()

	sp := st.space(ns)
	if sp == nil {
		return false
	}
	rec, ok := sp.records[h]
	if !ok || rec.name == name || st.fold(name) != rec.key {
		return false
	}
	rec.name = name
	return true
}

// Len returns the number of live handles in ns
func (st *Store) Len(ns Namespace) int {
	st.mu.RLock()
	defer st.mu.RUnlock()

	if sp := st.space(ns); sp != nil {
		return len(sp.records)
	}
	return 0
}

type handleHeap []Handle

func (h handleHeap) Len() int           { return len(h) }
func (h handleHeap) Less(i, j int) bool { return h[i] < h[j] }
func (h handleHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }

func (h *handleHeap) Push(x any) { *h = append(*h, x.(Handle)) }

func (h *handleHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}
