package ingest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/wabox/wabox/internal/bus"
	"github.com/wabox/wabox/internal/media"
	"github.com/wabox/wabox/internal/store"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.uber.org/zap"
	"google.golang.org/protobuf/encoding/protojson"
)

// ErrInvalidEvent is returned for events missing the chat address, the
// transport message id, or the message body. Such events are rejected
// without side effects.
var ErrInvalidEvent = errors.New("invalid message event")

const statusBroadcastJID = "status@broadcast"

// RawEvent is a normalized inbound message event from the transport.
type RawEvent struct {
	ChatJID   string
	MsgID     string
	SenderJID string
	PushName  string
	FromMe    bool
	Timestamp time.Time
	Message   *waE2E.Message
}

// Outcome describes what the ingestion gate did with an inbound event.
type Outcome string

const (
	OutcomeSaved         Outcome = "saved"
	OutcomeDuplicate     Outcome = "duplicate"
	OutcomeDroppedStatus Outcome = "dropped_status"
	OutcomeRejected      Outcome = "rejected"
)

// Engine is the message ingestion pipeline: dedup gate, classifier,
// transactional persistence, and conditional media capture. It subscribes
// to inbound transport events on the bus and handles each event to
// completion before taking the next.
type Engine struct {
	db     *store.DB
	media  *media.Store // nil disables media capture
	bus    *bus.Bus
	logger *zap.Logger
	cancel context.CancelFunc
}

// NewEngine creates a new ingestion engine.
func NewEngine(db *store.DB, mediaStore *media.Store, b *bus.Bus, logger *zap.Logger) *Engine {
	return &Engine{
		db:     db,
		media:  mediaStore,
		bus:    b,
		logger: logger,
	}
}

// Start subscribes to inbound transport events on the bus.
func (e *Engine) Start(ctx context.Context) {
	ctx, e.cancel = context.WithCancel(ctx)
	ch, unsub := e.bus.Subscribe("wa.", 256)

	go func() {
		defer unsub()
		for {
			select {
			case evt := <-ch:
				e.handleEvent(ctx, evt)
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop stops the engine.
func (e *Engine) Stop() {
	if e.cancel != nil {
		e.cancel()
	}
}

func (e *Engine) handleEvent(ctx context.Context, evt bus.Event) {
	raw, ok := evt.Payload.(*RawEvent)
	if !ok {
		return
	}
	outcome, err := e.Ingest(ctx, raw)
	switch {
	case errors.Is(err, ErrInvalidEvent):
		e.logger.Warn("skipping invalid message event", zap.String("msg_id", raw.MsgID), zap.String("chat_jid", raw.ChatJID))
	case err != nil:
		// The message is lost for this delivery attempt; the transport's
		// own redelivery is the recovery path.
		e.logger.Error("failed to ingest message", zap.Error(err), zap.String("msg_id", raw.MsgID))
	case outcome == OutcomeSaved:
		e.logger.Info("message saved",
			zap.String("msg_id", raw.MsgID),
			zap.String("chat_jid", raw.ChatJID),
			zap.String("sender_jid", raw.SenderJID))
	}
}

// Ingest processes one inbound event to completion: dedup check, broadcast
// status policy, classification, transactional persistence, and media
// capture for media-bearing types. A media failure never affects the
// already-committed message row.
func (e *Engine) Ingest(ctx context.Context, evt *RawEvent) (Outcome, error) {
	if evt == nil {
		return OutcomeRejected, ErrInvalidEvent
	}

	if evt.MsgID != "" {
		processed, err := e.db.MessageProcessed(evt.MsgID)
		if err != nil {
			// The pre-check is a fast path only; the conflict-safe upsert
			// below still guarantees at-most-once persistence.
			e.logger.Warn("dedup check failed", zap.Error(err), zap.String("msg_id", evt.MsgID))
		} else if processed {
			return OutcomeDuplicate, nil
		}
	}

	// Status posts from other accounts are dropped silently.
	if evt.ChatJID == statusBroadcastJID && !evt.FromMe {
		return OutcomeDroppedStatus, nil
	}

	cls := Classify(evt.Message)
	msgID, err := e.saveClassified(evt, cls)
	if err != nil {
		return OutcomeRejected, err
	}

	if cls.Type.HasMedia() && e.media != nil {
		if err := e.media.Save(ctx, evt.Message, msgID); err != nil {
			switch {
			case errors.Is(err, media.ErrMessageMissing):
				// Sequencing invariant violation: the message row must exist
				// before any attachment write is attempted.
				e.logger.Error("message row missing for media attachment",
					zap.String("msg_id", msgID), zap.Error(err))
			default:
				e.logger.Warn("failed to save media attachment",
					zap.String("msg_id", msgID), zap.Error(err))
			}
		}
	}

	e.bus.Publish(bus.Event{
		Kind:      bus.KindMessageSaved,
		Timestamp: time.Now(),
		Payload: map[string]string{
			"chat_jid": evt.ChatJID,
			"msg_id":   msgID,
		},
	})

	return OutcomeSaved, nil
}

// SaveMessage validates and persists one event in a single transaction:
// sender upsert, chat upsert, classified message upsert. Returns the
// transport message id on success so callers can correlate; a malformed
// event yields ErrInvalidEvent and no writes.
func (e *Engine) SaveMessage(evt *RawEvent) (string, error) {
	if evt == nil {
		return "", ErrInvalidEvent
	}
	return e.saveClassified(evt, Classify(evt.Message))
}

func (e *Engine) saveClassified(evt *RawEvent, cls Classification) (string, error) {
	if evt.ChatJID == "" || evt.MsgID == "" || evt.Message == nil {
		return "", ErrInvalidEvent
	}

	senderJID := evt.SenderJID
	if senderJID == "" {
		senderJID = evt.ChatJID
	}

	raw, err := protojson.Marshal(evt.Message)
	if err != nil {
		return "", fmt.Errorf("encode raw payload: %w", err)
	}

	m := &store.Message{
		MsgID:       evt.MsgID,
		ChatJID:     evt.ChatJID,
		SenderJID:   senderJID,
		Timestamp:   evt.Timestamp.Unix(),
		MessageType: string(cls.Type),
		FromMe:      evt.FromMe,
		Text:        cls.Text,
		QuotedID:    cls.QuotedID,
		ReactionID:  cls.ReactionID,
		PushName:    evt.PushName,
		Raw:         raw,
		IsForwarded: cls.IsForwarded,
	}
	if err := e.db.SaveMessage(m, isGroupJID(evt.ChatJID)); err != nil {
		return "", fmt.Errorf("save message %q: %w", evt.MsgID, err)
	}
	return evt.MsgID, nil
}

func isGroupJID(jid string) bool {
	return strings.HasSuffix(jid, "@g.us")
}
