package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/matt0x6f/irc-engine/internal/handles"
	"github.com/matt0x6f/irc-engine/internal/irc"
	"github.com/matt0x6f/irc-engine/internal/muc"
	"github.com/matt0x6f/irc-engine/internal/text"
)

var errUsage = errors.New("usage")

// client is the part of *irc.Connection the shell drives
type client interface {
	JoinRoom(ctx context.Context, name, key string) (handles.Handle, <-chan error, error)
	PartRoom(ctx context.Context, room handles.Handle, message string) error
	Invite(ctx context.Context, room, contact handles.Handle) error
	Kick(ctx context.Context, room, contact handles.Handle, message string) error
	SetTopic(ctx context.Context, room handles.Handle, subject string) error
	ProvidePassword(ctx context.Context, room handles.Handle, password string) (<-chan error, error)
	SetRoomProperties(ctx context.Context, room handles.Handle, props muc.Properties) error
	SendText(ctx context.Context, ns handles.Namespace, target handles.Handle, t text.Type, body string) error
	SendRaw(ctx context.Context, line string) error
	Rename(ctx context.Context, nickname string) error
	RoomByName(ctx context.Context, name string) (handles.Handle, error)
	ContactByName(ctx context.Context, name string) (handles.Handle, error)
	ReleaseContact(ctx context.Context, contact handles.Handle) error
	RoomNames(ctx context.Context) ([]string, error)
}

type shell struct {
	conn client
	out  io.Writer
}

type commandSpec struct {
	usage string
	// words is how many leading arguments are split off before the
	// trailing text
	words int
	min   int
	run   func(sh *shell, ctx context.Context, args []string) error
}

var commands map[string]commandSpec

func init() {
	commands = map[string]commandSpec{
		"join":   {"/join <room> [key]", 2, 1, (*shell).join},
		"part":   {"/part <room> [message]", 1, 1, (*shell).part},
		"msg":    {"/msg <target> <text>", 1, 2, sendAs(text.Normal)},
		"me":     {"/me <target> <text>", 1, 2, sendAs(text.Action)},
		"notice": {"/notice <target> <text>", 1, 2, sendAs(text.Notice)},
		"nick":   {"/nick <nickname>", 1, 1, (*shell).nick},
		"topic":  {"/topic <room> <text>", 1, 2, (*shell).topic},
		"kick":   {"/kick <room> <nick> [message]", 2, 2, (*shell).kick},
		"invite": {"/invite <nick> <room>", 2, 2, (*shell).invite},
		"key":    {"/key <room> <password>", 2, 2, (*shell).key},
		"mode":   {"/mode <room> <+|-><i|m|s|l|k> [value]", 3, 2, (*shell).mode},
		"rooms":  {"/rooms", 0, 0, (*shell).rooms},
		"raw":    {"/raw <line>", 0, 1, (*shell).raw},
		"help":   {"/help", 0, 0, (*shell).help},
	}
}

// splitArgs splits off up to n words, the rest of s becomes the last element
func splitArgs(s string, n int) []string {
	var args []string
	s = strings.TrimSpace(s)
	for i := 0; i < n && s != ""; i++ {
		word, rest, _ := strings.Cut(s, " ")
		args = append(args, word)
		s = strings.TrimLeft(rest, " ")
	}
	if s != "" {
		args = append(args, s)
	}
	return args
}

// execute runs one input line. It reports true when the user asked to quit.
func (sh *shell) execute(ctx context.Context, line string) (bool, error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return false, nil
	}
	if line[0] != '/' {
		return false, fmt.Errorf("commands start with /, try /help")
	}

	name, rest, _ := strings.Cut(line[1:], " ")
	name = strings.ToLower(name)
	if name == "quit" {
		return true, nil
	}

	spec, ok := commands[name]
	if !ok {
		return false, fmt.Errorf("unknown command /%s, try /help", name)
	}
	args := splitArgs(rest, spec.words)
	if len(args) < spec.min {
		return false, fmt.Errorf("%w: %s", errUsage, spec.usage)
	}
	return false, spec.run(sh, ctx, args)
}

func (sh *shell) join(ctx context.Context, args []string) error {
	key := ""
	if len(args) > 1 {
		key = args[1]
	}
	_, result, err := sh.conn.JoinRoom(ctx, args[0], key)
	if err != nil {
		return err
	}
	go func() {
		if err := <-result; err != nil {
			fmt.Fprintf(sh.out, "error: cannot join %s: %v\n", args[0], err)
		}
	}()
	return nil
}

func (sh *shell) part(ctx context.Context, args []string) error {
	room, err := sh.conn.RoomByName(ctx, args[0])
	if err != nil {
		return err
	}
	message := ""
	if len(args) > 1 {
		message = args[1]
	}
	return sh.conn.PartRoom(ctx, room, message)
}

// sendAs builds the handler of /msg, /me and /notice
func sendAs(t text.Type) func(*shell, context.Context, []string) error {
	return func(sh *shell, ctx context.Context, args []string) error {
		if irc.IsRoomName(args[0]) {
			room, err := sh.conn.RoomByName(ctx, args[0])
			if err != nil {
				return err
			}
			return sh.conn.SendText(ctx, handles.Room, room, t, args[1])
		}
		return sh.withContact(ctx, args[0], func(contact handles.Handle) error {
			return sh.conn.SendText(ctx, handles.Contact, contact, t, args[1])
		})
	}
}

// withContact holds a reference on the named contact while fn runs
func (sh *shell) withContact(ctx context.Context, name string, fn func(handles.Handle) error) error {
	contact, err := sh.conn.ContactByName(ctx, name)
	if err != nil {
		return err
	}
	defer sh.conn.ReleaseContact(ctx, contact)
	return fn(contact)
}

func (sh *shell) nick(ctx context.Context, args []string) error {
	return sh.conn.Rename(ctx, args[0])
}

func (sh *shell) topic(ctx context.Context, args []string) error {
	room, err := sh.conn.RoomByName(ctx, args[0])
	if err != nil {
		return err
	}
	return sh.conn.SetTopic(ctx, room, args[1])
}

func (sh *shell) kick(ctx context.Context, args []string) error {
	room, err := sh.conn.RoomByName(ctx, args[0])
	if err != nil {
		return err
	}
	message := ""
	if len(args) > 2 {
		message = args[2]
	}
	return sh.withContact(ctx, args[1], func(contact handles.Handle) error {
		return sh.conn.Kick(ctx, room, contact, message)
	})
}

func (sh *shell) invite(ctx context.Context, args []string) error {
	room, err := sh.conn.RoomByName(ctx, args[1])
	if err != nil {
		return err
	}
	return sh.withContact(ctx, args[0], func(contact handles.Handle) error {
		return sh.conn.Invite(ctx, room, contact)
	})
}

func (sh *shell) key(ctx context.Context, args []string) error {
	room, err := sh.conn.RoomByName(ctx, args[0])
	if err != nil {
		return err
	}
	result, err := sh.conn.ProvidePassword(ctx, room, args[1])
	if err != nil {
		return err
	}
	go func() {
		if err := <-result; err != nil {
			fmt.Fprintf(sh.out, "error: %s: %v\n", args[0], err)
		}
	}()
	return nil
}

func (sh *shell) mode(ctx context.Context, args []string) error {
	props, err := parseModeChange(args[1:])
	if err != nil {
		return err
	}
	room, err := sh.conn.RoomByName(ctx, args[0])
	if err != nil {
		return err
	}
	return sh.conn.SetRoomProperties(ctx, room, props)
}

// parseModeChange turns "+i", "-m", "+l 20" or "+k secret" into room
// properties
func parseModeChange(args []string) (muc.Properties, error) {
	var props muc.Properties
	change := args[0]
	if len(change) != 2 || (change[0] != '+' && change[0] != '-') {
		return props, fmt.Errorf("%w: %s", errUsage, commands["mode"].usage)
	}
	on := change[0] == '+'
	value := ""
	if len(args) > 1 {
		value = args[1]
	}

	switch change[1] {
	case 'i':
		props.InviteOnly = &on
	case 'm':
		props.Moderated = &on
	case 's':
		props.Private = &on
	case 'l':
		var limit uint
		if on {
			if _, err := fmt.Sscanf(value, "%d", &limit); err != nil || limit == 0 {
				return props, fmt.Errorf("%w: limit must be a positive number", errUsage)
			}
		}
		props.Limit = &limit
	case 'k':
		props.PasswordProtected = &on
		if on {
			if value == "" {
				return props, fmt.Errorf("%w: +k needs a password", errUsage)
			}
			props.Password = &value
		}
	default:
		return props, fmt.Errorf("unsupported mode %q", change)
	}
	return props, nil
}

func (sh *shell) rooms(ctx context.Context, _ []string) error {
	names, err := sh.conn.RoomNames(ctx)
	if err != nil {
		return err
	}
	if len(names) == 0 {
		fmt.Fprintln(sh.out, "no open rooms")
		return nil
	}
	fmt.Fprintln(sh.out, strings.Join(names, " "))
	return nil
}

func (sh *shell) raw(ctx context.Context, args []string) error {
	return sh.conn.SendRaw(ctx, args[0])
}

func (sh *shell) help(context.Context, []string) error {
	fmt.Fprintln(sh.out, "commands:")
	for _, name := range []string{"join", "part", "msg", "me", "notice", "nick", "topic", "kick", "invite", "key", "mode", "rooms", "raw"} {
		fmt.Fprintln(sh.out, "  "+commands[name].usage)
	}
	fmt.Fprintln(sh.out, "  /quit")
	return nil
}
