package ingest

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/wabox/wabox/internal/bus"
	"github.com/wabox/wabox/internal/media"
	"github.com/wabox/wabox/internal/store"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.uber.org/zap"
	"google.golang.org/protobuf/proto"
)

func testDB(t *testing.T) *store.DB {
	t.Helper()
	db, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.Migrate(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func testEngine(t *testing.T, db *store.DB) *Engine {
	t.Helper()
	return NewEngine(db, nil, bus.New(), zap.NewNop())
}

func textEvent(chatJID, msgID, text string) *RawEvent {
	return &RawEvent{
		ChatJID:   chatJID,
		MsgID:     msgID,
		SenderJID: "111@s.whatsapp.net",
		PushName:  "Alice",
		Timestamp: time.Unix(1700000000, 0),
		Message:   &waE2E.Message{Conversation: proto.String(text)},
	}
}

func TestIngestSavesMessageGraph(t *testing.T) {
	db := testDB(t)
	e := testEngine(t, db)

	outcome, err := e.Ingest(context.Background(), textEvent("123@g.us", "M1", "hi"))
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if outcome != OutcomeSaved {
		t.Fatalf("outcome = %s, want saved", outcome)
	}

	user, err := db.GetUser("111@s.whatsapp.net")
	if err != nil || user == nil {
		t.Fatalf("GetUser: user=%v err=%v", user, err)
	}
	if user.PushName != "Alice" {
		t.Errorf("push name = %q, want Alice", user.PushName)
	}

	chat, err := db.GetChat("123@g.us")
	if err != nil || chat == nil {
		t.Fatalf("GetChat: chat=%v err=%v", chat, err)
	}
	if !chat.IsGroup {
		t.Error("is_group = false, want true for @g.us")
	}

	msg, err := db.GetMessage("123@g.us", "M1")
	if err != nil || msg == nil {
		t.Fatalf("GetMessage: msg=%v err=%v", msg, err)
	}
	if msg.Text != "hi" {
		t.Errorf("text = %q, want hi", msg.Text)
	}
	if msg.MessageType != "text" {
		t.Errorf("type = %q, want text", msg.MessageType)
	}
	if msg.Timestamp != 1700000000 {
		t.Errorf("timestamp = %d, want 1700000000", msg.Timestamp)
	}
	if len(msg.Raw) == 0 {
		t.Error("raw payload empty, want JSON-encoded body")
	}
}

func TestIngestRedeliveryUpdatesInPlace(t *testing.T) {
	db := testDB(t)
	e := testEngine(t, db)

	if _, err := e.SaveMessage(textEvent("123@g.us", "M1", "hi")); err != nil {
		t.Fatal(err)
	}

	// Same transport id with edited text and a later clock must update the
	// existing row and keep the first-seen timestamp.
	edited := textEvent("123@g.us", "M1", "hi edited")
	edited.Timestamp = time.Unix(1800000000, 0)
	if _, err := e.SaveMessage(edited); err != nil {
		t.Fatal(err)
	}

	count, err := db.MessageCount()
	if err != nil {
		t.Fatal(err)
	}
	if count != 1 {
		t.Fatalf("message count = %d, want 1", count)
	}

	msg, err := db.GetMessage("123@g.us", "M1")
	if err != nil || msg == nil {
		t.Fatal(err)
	}
	if msg.Text != "hi edited" {
		t.Errorf("text = %q, want hi edited", msg.Text)
	}
	if msg.Timestamp != 1700000000 {
		t.Errorf("timestamp = %d, want original 1700000000", msg.Timestamp)
	}
}

func TestIngestDuplicateFastPath(t *testing.T) {
	db := testDB(t)
	e := testEngine(t, db)
	ctx := context.Background()

	if _, err := e.Ingest(ctx, textEvent("123@g.us", "M1", "hi")); err != nil {
		t.Fatal(err)
	}
	outcome, err := e.Ingest(ctx, textEvent("123@g.us", "M1", "hi"))
	if err != nil {
		t.Fatal(err)
	}
	if outcome != OutcomeDuplicate {
		t.Fatalf("outcome = %s, want duplicate", outcome)
	}
}

func TestIngestRejectsMalformedEvents(t *testing.T) {
	db := testDB(t)
	e := testEngine(t, db)
	ctx := context.Background()

	tests := []struct {
		name string
		evt  *RawEvent
	}{
		{"nil event", nil},
		{
			"missing chat",
			&RawEvent{MsgID: "M1", Message: &waE2E.Message{Conversation: proto.String("x")}},
		},
		{
			"missing msg id",
			&RawEvent{ChatJID: "1@s.whatsapp.net", Message: &waE2E.Message{Conversation: proto.String("x")}},
		},
		{"missing body", &RawEvent{ChatJID: "1@s.whatsapp.net", MsgID: "M1"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			outcome, err := e.Ingest(ctx, tt.evt)
			if !errors.Is(err, ErrInvalidEvent) {
				t.Fatalf("err = %v, want ErrInvalidEvent", err)
			}
			if outcome != OutcomeRejected {
				t.Errorf("outcome = %s, want rejected", outcome)
			}
		})
	}

	// A rejected event writes nothing, not even user or chat rows.
	msgCount, _ := db.MessageCount()
	chatCount, _ := db.ChatCount()
	if msgCount != 0 || chatCount != 0 {
		t.Errorf("rows after rejects: messages=%d chats=%d, want 0/0", msgCount, chatCount)
	}
}

func TestIngestStatusBroadcastPolicy(t *testing.T) {
	db := testDB(t)
	e := testEngine(t, db)
	ctx := context.Background()

	theirs := textEvent("status@broadcast", "S1", "their status")
	outcome, err := e.Ingest(ctx, theirs)
	if err != nil {
		t.Fatal(err)
	}
	if outcome != OutcomeDroppedStatus {
		t.Fatalf("outcome = %s, want dropped_status", outcome)
	}
	count, _ := db.MessageCount()
	if count != 0 {
		t.Fatalf("message count = %d, want 0 after drop", count)
	}

	mine := textEvent("status@broadcast", "S2", "my status")
	mine.FromMe = true
	outcome, err = e.Ingest(ctx, mine)
	if err != nil {
		t.Fatal(err)
	}
	if outcome != OutcomeSaved {
		t.Fatalf("outcome = %s, want saved for own status", outcome)
	}

	text, err := db.LatestStatusText()
	if err != nil {
		t.Fatal(err)
	}
	if text != "my status" {
		t.Errorf("latest status = %q, want my status", text)
	}
}

func TestIngestSenderFallsBackToChat(t *testing.T) {
	db := testDB(t)
	e := testEngine(t, db)

	evt := textEvent("111@s.whatsapp.net", "M1", "hi")
	evt.SenderJID = ""
	if _, err := e.Ingest(context.Background(), evt); err != nil {
		t.Fatal(err)
	}

	msg, err := db.GetMessage("111@s.whatsapp.net", "M1")
	if err != nil || msg == nil {
		t.Fatal(err)
	}
	if msg.SenderJID != "111@s.whatsapp.net" {
		t.Errorf("sender = %q, want chat JID fallback", msg.SenderJID)
	}
}

type fakeDownloader struct {
	data []byte
	err  error
}

func (f *fakeDownloader) DownloadAny(_ context.Context, _ *waE2E.Message) ([]byte, error) {
	return f.data, f.err
}

func TestIngestMediaFollowsMessage(t *testing.T) {
	db := testDB(t)
	root := t.TempDir()
	ms := media.NewStore(db, &fakeDownloader{data: []byte("jpeg bytes")}, root, zap.NewNop())
	e := NewEngine(db, ms, bus.New(), zap.NewNop())

	evt := &RawEvent{
		ChatJID:   "111@s.whatsapp.net",
		MsgID:     "IMG1",
		SenderJID: "111@s.whatsapp.net",
		Timestamp: time.Unix(1700000000, 0),
		Message: &waE2E.Message{ImageMessage: &waE2E.ImageMessage{
			Caption:  proto.String("look"),
			Mimetype: proto.String("image/jpeg"),
		}},
	}
	outcome, err := e.Ingest(context.Background(), evt)
	if err != nil {
		t.Fatal(err)
	}
	if outcome != OutcomeSaved {
		t.Fatalf("outcome = %s, want saved", outcome)
	}

	rowID, found, err := db.MessageRowID("IMG1")
	if err != nil || !found {
		t.Fatalf("MessageRowID: found=%v err=%v", found, err)
	}
	atts, err := db.ListMediaAttachments(rowID)
	if err != nil {
		t.Fatal(err)
	}
	if len(atts) != 1 {
		t.Fatalf("attachments = %d, want 1", len(atts))
	}
	if atts[0].MimeType != "image/jpeg" {
		t.Errorf("mime = %q, want image/jpeg", atts[0].MimeType)
	}
}

func TestIngestMediaFailureKeepsMessage(t *testing.T) {
	db := testDB(t)
	ms := media.NewStore(db, &fakeDownloader{err: errors.New("network down")}, t.TempDir(), zap.NewNop())
	e := NewEngine(db, ms, bus.New(), zap.NewNop())

	evt := &RawEvent{
		ChatJID:   "111@s.whatsapp.net",
		MsgID:     "IMG1",
		SenderJID: "111@s.whatsapp.net",
		Timestamp: time.Unix(1700000000, 0),
		Message:   &waE2E.Message{ImageMessage: &waE2E.ImageMessage{}},
	}
	outcome, err := e.Ingest(context.Background(), evt)
	if err != nil {
		t.Fatal(err)
	}
	if outcome != OutcomeSaved {
		t.Fatalf("outcome = %s, want saved despite media failure", outcome)
	}

	msg, err := db.GetMessage("111@s.whatsapp.net", "IMG1")
	if err != nil || msg == nil {
		t.Fatalf("message row missing after media failure: %v", err)
	}
	rowID, _, _ := db.MessageRowID("IMG1")
	atts, _ := db.ListMediaAttachments(rowID)
	if len(atts) != 0 {
		t.Errorf("attachments = %d, want 0", len(atts))
	}
}

func TestEngineConsumesBusEvents(t *testing.T) {
	db := testDB(t)
	b := bus.New()
	e := NewEngine(db, nil, b, zap.NewNop())

	saved, unsub := b.Subscribe(bus.KindMessageSaved, 10)
	defer unsub()

	e.Start(context.Background())
	defer e.Stop()

	b.Publish(bus.Event{
		Kind:      bus.KindInboundMessage,
		Timestamp: time.Now(),
		Payload:   textEvent("123@g.us", "M1", "via bus"),
	})

	select {
	case <-saved:
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for message.saved event")
	}

	msg, err := db.GetMessage("123@g.us", "M1")
	if err != nil || msg == nil {
		t.Fatalf("message not persisted via bus: %v", err)
	}
}
