package irc

import (
	"context"
	"fmt"

	"github.com/matt0x6f/irc-engine/internal/handles"
	"github.com/matt0x6f/irc-engine/internal/muc"
	"github.com/matt0x6f/irc-engine/internal/validation"
)

// RoomByName returns the handle of an open room
func (c *Connection) RoomByName(ctx context.Context, name string) (handles.Handle, error) {
	var room handles.Handle
	err := c.doConnected(ctx, func() error {
		ch := c.rooms.Lookup(name)
		if ch == nil {
			return fmt.Errorf("%w: no open room %q", muc.ErrInvalidHandle, name)
		}
		room = ch.Room()
		return nil
	})
	return room, err
}

// ContactByName returns a referenced handle naming a contact. The handle
// stays valid until the caller gives it back with ReleaseContact.
func (c *Connection) ContactByName(ctx context.Context, name string) (handles.Handle, error) {
	var contact handles.Handle
	err := c.do(ctx, func() error {
		h, err := c.store.Intern(handles.Contact, name)
		if err != nil {
			return err
		}
		if err := c.store.Ref(handles.Contact, h); err != nil {
			return err
		}
		contact = h
		return nil
	})
	return contact, err
}

// ReleaseContact drops the reference taken by ContactByName
func (c *Connection) ReleaseContact(ctx context.Context, contact handles.Handle) error {
	return c.do(ctx, func() error {
		return c.store.Unref(handles.Contact, contact)
	})
}

// IsRoomName reports whether name designates a room rather than a contact
func IsRoomName(name string) bool {
	return name != "" && validation.IsChannelType(name[0])
}

// RoomNames returns the names of the open rooms, sorted by handle
func (c *Connection) RoomNames(ctx context.Context) ([]string, error) {
	var names []string
	err := c.doConnected(ctx, func() error {
		for _, room := range c.rooms.Rooms() {
			names = append(names, c.store.Inspect(handles.Room, room))
		}
		return nil
	})
	return names, err
}
