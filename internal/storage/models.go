package storage

import "time"

// Message directions
const (
	DirectionIn  = "in"
	DirectionOut = "out"
)

// Message is one logged chat line
type Message struct {
	ID         int64     `db:"id" json:"id"`
	Server     string    `db:"server" json:"server"`
	TargetKind string    `db:"target_kind" json:"target_kind"` // "room" or "contact"
	Target     string    `db:"target" json:"target"`
	Sender     string    `db:"sender" json:"sender"`
	Body       string    `db:"body" json:"body"`
	Type       string    `db:"message_type" json:"message_type"` // normal, action, notice
	Direction  string    `db:"direction" json:"direction"`
	Timestamp  time.Time `db:"timestamp" json:"timestamp"`
}

// RoomEvent records a membership or state change in a room
type RoomEvent struct {
	ID        int64     `db:"id" json:"id"`
	Server    string    `db:"server" json:"server"`
	Room      string    `db:"room" json:"room"`
	Kind      string    `db:"kind" json:"kind"` // joined, left, state, join_failed, send_failed
	Actor     string    `db:"actor" json:"actor"`
	Subject   string    `db:"subject" json:"subject"`
	Detail    string    `db:"detail" json:"detail"`
	Timestamp time.Time `db:"timestamp" json:"timestamp"`
}

// Room is the last known state of a room
type Room struct {
	Server    string    `db:"server" json:"server"`
	Name      string    `db:"name" json:"name"`
	Topic     string    `db:"topic" json:"topic"`
	Modes     string    `db:"modes" json:"modes"`
	State     string    `db:"state" json:"state"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}
