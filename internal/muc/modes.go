package muc

import (
	"fmt"
	"strings"
)

// State is the lifecycle stage of a channel
type State int

const (
	StateCreated State = iota
	StateJoining
	StateNeedPassword
	StateJoined
	StateParted
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateJoining:
		return "joining"
	case StateNeedPassword:
		return "need_password"
	case StateJoined:
		return "joined"
	case StateParted:
		return "parted"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Mode is a set of room flags and, for a member, its privileges
type Mode uint32

const (
	ModeCreator Mode = 1 << iota
	ModeOp
	ModeVoice
	ModeAnonymous
	ModeInviteOnly
	ModeModerated
	ModeNoOutside
	ModeQuiet
	ModePrivate
	ModeSecret
	ModeServerReop
	ModeTopicOpsOnly
	ModeKey
	ModeUserLimit
	ModeHalfOp
)

// Privileges are the member level modes
const Privileges = ModeOp | ModeHalfOp | ModeVoice

var roomModeLetters = map[byte]Mode{
	'a': ModeAnonymous,
	'i': ModeInviteOnly,
	'm': ModeModerated,
	'n': ModeNoOutside,
	'q': ModeQuiet,
	'p': ModePrivate,
	's': ModeSecret,
	'r': ModeServerReop,
	't': ModeTopicOpsOnly,
}

var memberModeLetters = map[byte]Mode{
	'o': ModeOp,
	'h': ModeHalfOp,
	'v': ModeVoice,
}

// list modes carry an argument we do not track
const listModeLetters = "beI"

var modeOrder = []struct {
	mode   Mode
	letter byte
}{
	{ModeCreator, 'O'},
	{ModeOp, 'o'},
	{ModeHalfOp, 'h'},
	{ModeVoice, 'v'},
	{ModeAnonymous, 'a'},
	{ModeInviteOnly, 'i'},
	{ModeModerated, 'm'},
	{ModeNoOutside, 'n'},
	{ModeQuiet, 'q'},
	{ModePrivate, 'p'},
	{ModeSecret, 's'},
	{ModeServerReop, 'r'},
	{ModeTopicOpsOnly, 't'},
	{ModeKey, 'k'},
	{ModeUserLimit, 'l'},
}

// String renders the set as mode letters, e.g. "ntk"
func (m Mode) String() string {
	var b strings.Builder
	for _, o := range modeOrder {
		if m&o.mode != 0 {
			b.WriteByte(o.letter)
		}
	}
	return b.String()
}

// Has reports whether every bit of flag is set
func (m Mode) Has(flag Mode) bool {
	return m&flag == flag
}

// privilegeForPrefix maps a NAMES membership prefix to a privilege
func privilegeForPrefix(prefix byte) Mode {
	switch prefix {
	case '~', '&', '!', '@', '*':
		return ModeOp
	case '%':
		return ModeHalfOp
	case '+':
		return ModeVoice
	}
	return 0
}

// GroupFlag describes what self may do with the member list
type GroupFlag uint32

const (
	GroupCanAdd GroupFlag = 1 << iota
	GroupCanRemove
	GroupMessageRemove
	GroupMessageDepart
)

func (g GroupFlag) Strings() []string {
	var out []string
	if g&GroupCanAdd != 0 {
		out = append(out, "can_add")
	}
	if g&GroupCanRemove != 0 {
		out = append(out, "can_remove")
	}
	if g&GroupMessageRemove != 0 {
		out = append(out, "message_remove")
	}
	if g&GroupMessageDepart != 0 {
		out = append(out, "message_depart")
	}
	return out
}

// PasswordFlag signals whether a password can be provided
type PasswordFlag uint32

const PasswordProvide PasswordFlag = 1

// Reason explains a membership change
type Reason int

const (
	ReasonNone Reason = iota
	ReasonKicked
	ReasonOffline
	ReasonInvited
	ReasonRenamed
)

func (r Reason) String() string {
	switch r {
	case ReasonNone:
		return "none"
	case ReasonKicked:
		return "kicked"
	case ReasonOffline:
		return "offline"
	case ReasonInvited:
		return "invited"
	case ReasonRenamed:
		return "renamed"
	default:
		return fmt.Sprintf("reason(%d)", int(r))
	}
}
