package main

import (
	"testing"

	"github.com/matt0x6f/irc-engine/internal/events"
)

func TestFormatEvent(t *testing.T) {
	tests := []struct {
		name      string
		eventType string
		data      map[string]interface{}
		want      string
	}{
		{"status", "connection.status", map[string]interface{}{"status": "connected", "reason": "requested"},
			"*** connected (requested)"},
		{"room message", "message.received", map[string]interface{}{
			"target_kind": "room", "target_name": "#go", "sender_name": "bob", "type": "normal", "body": "hi"},
			"[#go] <bob> hi"},
		{"private action", "message.received", map[string]interface{}{
			"target_kind": "contact", "target_name": "bob", "sender_name": "bob", "type": "action", "body": "waves"},
			"* bob waves"},
		{"sent notice", "message.sent", map[string]interface{}{
			"target_kind": "contact", "target_name": "bob", "sender_name": "alice", "type": "notice", "body": "ping"},
			"-> bob -alice- ping"},
		{"join", "room.members", map[string]interface{}{
			"room_name": "#go", "added_names": []string{"carol"}, "reason": "none"},
			"[#go] *** joined: carol"},
		{"kick", "room.members", map[string]interface{}{
			"room_name": "#go", "removed_names": []string{"dave"}, "actor_name": "alice", "reason": "kicked", "message": "spam"},
			"[#go] *** alice kicked dave (spam)"},
		{"rename", "room.members", map[string]interface{}{
			"room_name": "#go", "added_names": []string{"robert"}, "removed_names": []string{"bob"}, "reason": "renamed"},
			"[#go] *** bob is now known as robert"},
		{"invite", "room.members", map[string]interface{}{
			"room_name": "#go", "added_names": []string{"bob"}, "actor_name": "bob", "reason": "invited"},
			"[#go] *** bob invited you"},
		{"topic", "room.topic", map[string]interface{}{"room_name": "#go", "topic": "Go!", "set": true, "toucher_name": "bob"},
			"[#go] *** Topic: Go! (set by bob)"},
		{"no topic", "room.topic", map[string]interface{}{"room_name": "#go", "set": false},
			"[#go] *** No topic"},
		{"join failed", "room.join_failed", map[string]interface{}{"room_name": "#go", "reason": "banned"},
			"[#go] *** Cannot join: banned"},
		{"nick", "self.nickname", map[string]interface{}{"new_name": "alicia"},
			"*** You are now known as alicia"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := formatEvent(events.New(events.EventSourceIRC, tt.eventType, tt.data))
			if !ok {
				t.Fatal("event not rendered")
			}
			if got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestFormatEventSkipsInternal(t *testing.T) {
	for _, eventType := range []string{"contact.aliases", "room.state", "sasl.started"} {
		if _, ok := formatEvent(events.New(events.EventSourceIRC, eventType, map[string]interface{}{})); ok {
			t.Errorf("%s rendered", eventType)
		}
	}
	if _, ok := formatEvent(events.New(events.EventSourceMUC, "room.password_flags", map[string]interface{}{"provide": false})); ok {
		t.Error("cleared password flag rendered")
	}
}
