package main

import (
	"fmt"
	"strings"

	"github.com/matt0x6f/irc-engine/internal/events"
	"github.com/matt0x6f/irc-engine/internal/irc"
	"github.com/matt0x6f/irc-engine/internal/muc"
)

// formatEvent renders the events worth showing to a terminal user
func formatEvent(e events.Event) (string, bool) {
	s := func(key string) string {
		v, _ := e.Data[key].(string)
		return v
	}

	switch e.Type {
	case irc.EventConnectionStatus:
		return fmt.Sprintf("*** %s (%s)", s("status"), s("reason")), true

	case irc.EventMessageReceived, irc.EventMessageSent:
		where := ""
		if s("target_kind") == "room" {
			where = "[" + s("target_name") + "] "
		} else if e.Type == irc.EventMessageSent {
			where = "-> " + s("target_name") + " "
		}
		switch s("type") {
		case "action":
			return fmt.Sprintf("%s* %s %s", where, s("sender_name"), s("body")), true
		case "notice":
			return fmt.Sprintf("%s-%s- %s", where, s("sender_name"), s("body")), true
		default:
			return fmt.Sprintf("%s<%s> %s", where, s("sender_name"), s("body")), true
		}

	case irc.EventSelfNickname:
		return fmt.Sprintf("*** You are now known as %s", s("new_name")), true

	case muc.EventMembers:
		return formatMembers(e, s), true

	case muc.EventTopic:
		if set, _ := e.Data["set"].(bool); !set {
			return fmt.Sprintf("[%s] *** No topic", s("room_name")), true
		}
		if who := s("toucher_name"); who != "" {
			return fmt.Sprintf("[%s] *** Topic: %s (set by %s)", s("room_name"), s("topic"), who), true
		}
		return fmt.Sprintf("[%s] *** Topic: %s", s("room_name"), s("topic")), true

	case muc.EventMode:
		return fmt.Sprintf("[%s] *** Modes: +%s", s("room_name"), s("modes")), true

	case muc.EventPasswordFlags:
		if provide, _ := e.Data["provide"].(bool); provide {
			return fmt.Sprintf("[%s] *** Password required, use /key %s <password>", s("room_name"), s("room_name")), true
		}
		return "", false

	case muc.EventJoinFailed:
		return fmt.Sprintf("[%s] *** Cannot join: %s", s("room_name"), s("reason")), true

	case muc.EventSendFailed:
		return fmt.Sprintf("[%s] *** Message not delivered: %s", s("room_name"), s("reason")), true

	case irc.EventContactSendFailed:
		return fmt.Sprintf("*** %s: %s", s("contact_name"), s("reason")), true

	case irc.EventError:
		return fmt.Sprintf("*** Error: %s", s("message")), true

	case irc.EventSASLSuccess:
		return "*** SASL authentication succeeded", true

	case irc.EventSASLFailed, irc.EventSASLAborted:
		return fmt.Sprintf("*** SASL authentication failed: %s", s("reason")), true
	}
	return "", false
}

func formatMembers(e events.Event, s func(string) string) string {
	names := func(key string) string {
		v, _ := e.Data[key].([]string)
		return strings.Join(v, " ")
	}
	room := s("room_name")
	reason := s("reason")
	message := s("message")

	if reason == muc.ReasonRenamed.String() {
		return fmt.Sprintf("[%s] *** %s is now known as %s", room, names("removed_names"), names("added_names"))
	}

	var parts []string
	if added := names("added_names"); added != "" {
		if reason == muc.ReasonInvited.String() {
			parts = append(parts, fmt.Sprintf("%s invited you", s("actor_name")))
		} else {
			parts = append(parts, "joined: "+added)
		}
	}
	if removed := names("removed_names"); removed != "" {
		part := "left: " + removed
		if reason == muc.ReasonKicked.String() {
			part = fmt.Sprintf("%s kicked %s", s("actor_name"), removed)
		}
		if message != "" {
			part += " (" + message + ")"
		}
		parts = append(parts, part)
	}
	if len(parts) == 0 {
		return fmt.Sprintf("[%s] *** Joining", room)
	}
	return fmt.Sprintf("[%s] *** %s", room, strings.Join(parts, ", "))
}
