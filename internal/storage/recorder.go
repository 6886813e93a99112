package storage

import (
	"strings"
	"time"

	"github.com/matt0x6f/irc-engine/internal/events"
	"github.com/matt0x6f/irc-engine/internal/logger"
)

// Recorder subscribes to a connection's bus and logs what it sees
type Recorder struct {
	store  *Storage
	server string
}

// NewRecorder logs events for server into store
func NewRecorder(store *Storage, server string) *Recorder {
	return &Recorder{store: store, server: server}
}

// Attach subscribes the recorder to every event on bus
func (r *Recorder) Attach(bus *events.EventBus) {
	bus.Subscribe(events.Wildcard, r)
}

// Detach removes the recorder from bus
func (r *Recorder) Detach(bus *events.EventBus) {
	bus.Unsubscribe(events.Wildcard, r)
}

// OnEvent implements events.Subscriber
func (r *Recorder) OnEvent(e events.Event) {
	var err error
	switch e.Type {
	case "message.received":
		err = r.message(e, DirectionIn)
	case "message.sent":
		err = r.message(e, DirectionOut)
	case "room.members":
		err = r.members(e)
	case "room.topic":
		err = r.topic(e)
	case "room.mode":
		err = r.store.SaveRoom(Room{Server: r.server, Name: str(e, "room_name"), Modes: str(e, "modes")})
	case "room.state":
		err = r.state(e)
	case "room.join_failed", "room.send_failed":
		err = r.store.WriteRoomEvent(RoomEvent{
			Server:    r.server,
			Room:      str(e, "room_name"),
			Kind:      strings.TrimPrefix(e.Type, "room."),
			Detail:    str(e, "reason"),
			Timestamp: e.Timestamp,
		})
	}
	if err != nil {
		logger.Log.Warn().Err(err).Str("event", e.Type).Msg("Failed to record event")
	}
}

func (r *Recorder) message(e events.Event, direction string) error {
	ts, ok := e.Data["timestamp"].(time.Time)
	if !ok {
		ts = e.Timestamp
	}
	return r.store.WriteMessage(Message{
		Server:     r.server,
		TargetKind: str(e, "target_kind"),
		Target:     str(e, "target_name"),
		Sender:     str(e, "sender_name"),
		Body:       str(e, "body"),
		Type:       str(e, "type"),
		Direction:  direction,
		Timestamp:  ts,
	})
}

func (r *Recorder) members(e events.Event) error {
	room := str(e, "room_name")
	actor := str(e, "actor_name")
	reason := str(e, "reason")
	message := str(e, "message")

	for _, name := range strs(e, "added_names") {
		if err := r.store.WriteRoomEvent(RoomEvent{
			Server: r.server, Room: room, Kind: "joined", Actor: actor,
			Subject: name, Detail: reason, Timestamp: e.Timestamp,
		}); err != nil {
			return err
		}
	}
	for _, name := range strs(e, "removed_names") {
		detail := reason
		if message != "" {
			detail = reason + ": " + message
		}
		if err := r.store.WriteRoomEvent(RoomEvent{
			Server: r.server, Room: room, Kind: "left", Actor: actor,
			Subject: name, Detail: detail, Timestamp: e.Timestamp,
		}); err != nil {
			return err
		}
	}
	return nil
}

func (r *Recorder) topic(e events.Event) error {
	room := str(e, "room_name")
	if set, _ := e.Data["set"].(bool); !set {
		return r.store.ClearTopic(r.server, room)
	}
	return r.store.SaveRoom(Room{Server: r.server, Name: room, Topic: str(e, "topic")})
}

func (r *Recorder) state(e events.Event) error {
	room := str(e, "room_name")
	state := str(e, "state")
	if err := r.store.SaveRoom(Room{Server: r.server, Name: room, State: state}); err != nil {
		return err
	}
	return r.store.WriteRoomEvent(RoomEvent{
		Server: r.server, Room: room, Kind: "state", Detail: state, Timestamp: e.Timestamp,
	})
}

func str(e events.Event, key string) string {
	s, _ := e.Data[key].(string)
	return s
}

func strs(e events.Event, key string) []string {
	s, _ := e.Data[key].([]string)
	return s
}
