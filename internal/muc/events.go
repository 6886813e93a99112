package muc

// Event types emitted for rooms
const (
	EventMembers       = "room.members"
	EventMode          = "room.mode"
	EventPrivileges    = "room.privileges"
	EventTopic         = "room.topic"
	EventPasswordFlags = "room.password_flags"
	EventGroupFlags    = "room.group_flags"
	EventState         = "room.state"
	EventClosed        = "room.closed"
	EventJoinFailed    = "room.join_failed"
	EventSendFailed    = "room.send_failed"
	EventMessage       = "message.received"
)
