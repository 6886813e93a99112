package muc

import "errors"

var (
	ErrNotAvailable     = errors.New("not available")
	ErrInvalidHandle    = errors.New("invalid handle")
	ErrPermissionDenied = errors.New("permission denied")
	ErrInvalidArgument  = errors.New("invalid argument")
	ErrPasswordRequired = errors.New("password required")
	ErrWrongPassword    = errors.New("wrong password")
	ErrChannelClosed    = errors.New("channel closed")
	ErrNoSuchChannel    = errors.New("no such channel")
)

// JoinError is the reason a server refused a JOIN
type JoinError struct {
	Reason string
}

func (e *JoinError) Error() string {
	return "join refused: " + e.Reason
}

var (
	ErrBanned     = &JoinError{Reason: "banned"}
	ErrInviteOnly = &JoinError{Reason: "invite only"}
	ErrFull       = &JoinError{Reason: "channel full"}
)
