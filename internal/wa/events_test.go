package wa

import (
	"testing"
	"time"

	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
	"google.golang.org/protobuf/proto"
)

func TestNormalizeJID(t *testing.T) {
	tests := []struct {
		name string
		jid  string
		want string
	}{
		{"plain user", "5511999999999@s.whatsapp.net", "5511999999999@s.whatsapp.net"},
		{"device suffix stripped", "5511999999999:42@s.whatsapp.net", "5511999999999@s.whatsapp.net"},
		{"group", "1234567890-1111@g.us", "1234567890-1111@g.us"},
		{"status broadcast", "status@broadcast", "status@broadcast"},
		{"lid", "12345@lid", "12345@lid"},
		{"empty", "", ""},
		{"no server", "not-a-jid", "not-a-jid"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NormalizeJID(tt.jid)
			if got != tt.want {
				t.Errorf("NormalizeJID(%q) = %q, want %q", tt.jid, got, tt.want)
			}
		})
	}
}

func TestToRawEvent(t *testing.T) {
	ts := time.Date(2025, 1, 15, 12, 0, 0, 0, time.UTC)
	evt := &events.Message{
		Info: types.MessageInfo{
			PushName:  "Alice",
			Timestamp: ts,
			MessageSource: types.MessageSource{
				Chat:     types.JID{User: "chat", Server: "s.whatsapp.net"},
				Sender:   types.JID{User: "sender", Server: "s.whatsapp.net", Device: 3},
				IsFromMe: true,
			},
			ID: "MSG123",
		},
		Message: &waE2E.Message{Conversation: proto.String("hello world")},
	}

	raw := toRawEvent(evt)

	if raw.ChatJID != "chat@s.whatsapp.net" {
		t.Errorf("ChatJID = %q, want chat@s.whatsapp.net", raw.ChatJID)
	}
	if raw.MsgID != "MSG123" {
		t.Errorf("MsgID = %q, want MSG123", raw.MsgID)
	}
	if raw.SenderJID != "sender@s.whatsapp.net" {
		t.Errorf("SenderJID = %q, want device part stripped", raw.SenderJID)
	}
	if raw.PushName != "Alice" {
		t.Errorf("PushName = %q, want Alice", raw.PushName)
	}
	if !raw.FromMe {
		t.Error("FromMe = false, want true")
	}
	if !raw.Timestamp.Equal(ts) {
		t.Errorf("Timestamp = %v, want %v", raw.Timestamp, ts)
	}
	if raw.Message.GetConversation() != "hello world" {
		t.Errorf("Message text = %q, want hello world", raw.Message.GetConversation())
	}
}
