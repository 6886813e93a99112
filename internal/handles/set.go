package handles

import "sort"

// Set is a set of handles that holds one reference on each member
type Set struct {
	store   *Store
	ns      Namespace
	members map[Handle]struct{}
}

// NewSet creates an empty set bound to one namespace of store
func NewSet(store *Store, ns Namespace) *Set {
	return &Set{
		store:   store,
		ns:      ns,
		members: make(map[Handle]struct{}),
	}
}

// Add inserts h and takes a reference on it. Adding a member twice is a no-op.
func (s *Set) Add(h Handle) error {
	if _, ok := s.members[h]; ok {
		return nil
	}
	if err := s.store.Ref(s.ns, h); err != nil {
		return err
	}
	s.members[h] = struct{}{}
	return nil
}

// Remove drops h and its reference. It reports whether h was a member.
func (s *Set) Remove(h Handle) bool {
	if _, ok := s.members[h]; !ok {
		return false
	}
	delete(s.members, h)
	_ = s.store.Unref(s.ns, h)
	return true
}

// Has reports whether h is in the set
func (s *Set) Has(h Handle) bool {
	_, ok := s.members[h]
	return ok
}

// Len returns the number of members
func (s *Set) Len() int {
	return len(s.members)
}

// Handles returns the members in ascending order
func (s *Set) Handles() []Handle {
	out := make([]Handle, 0, len(s.members))
	for h := range s.members {
		out = append(out, h)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Clear removes every member and releases their references
func (s *Set) Clear() {
	for h := range s.members {
		_ = s.store.Unref(s.ns, h)
	}
	s.members = make(map[Handle]struct{})
}
