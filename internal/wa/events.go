package wa

import (
	"time"

	"github.com/wabox/wabox/internal/bus"
	"github.com/wabox/wabox/internal/ingest"
	"github.com/wabox/wabox/internal/status"
	"github.com/wabox/wabox/internal/store"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
	"go.uber.org/zap"
)

// EventHandler processes whatsmeow events, drives the state machine, and
// publishes normalized inbound events on the bus. The ingestion engine
// subscribes to the bus independently.
type EventHandler struct {
	bus     *bus.Bus
	machine *status.Machine
	db      *store.DB
	logger  *zap.Logger
}

// NewEventHandler creates a new event handler.
func NewEventHandler(b *bus.Bus, machine *status.Machine, db *store.DB, logger *zap.Logger) *EventHandler {
	return &EventHandler{
		bus:     b,
		machine: machine,
		db:      db,
		logger:  logger,
	}
}

// Handle is the main whatsmeow event handler function.
func (h *EventHandler) Handle(rawEvt any) {
	switch evt := rawEvt.(type) {
	case *events.Message:
		h.handleMessage(evt)
	case *events.Connected:
		h.logger.Info("WhatsApp connected")
		current := h.machine.Current()
		if current == status.AuthRequired || current == status.Reconnecting {
			_ = h.machine.Transition(status.Connecting)
		}
		_ = h.machine.Transition(status.Ready)
	case *events.Disconnected:
		h.logger.Warn("WhatsApp disconnected")
		_ = h.machine.Transition(status.Reconnecting)
	case *events.GroupInfo:
		h.handleGroupInfo(evt)
	case *events.LoggedOut:
		h.logger.Warn("WhatsApp logged out", zap.String("reason", evt.Reason.String()))
		_ = h.machine.Transition(status.AuthRequired)
		h.bus.Publish(bus.Event{Kind: bus.KindLoggedOut, Timestamp: time.Now(), Payload: evt.Reason.String()})
	}
}

func (h *EventHandler) handleMessage(evt *events.Message) {
	h.bus.Publish(bus.Event{
		Kind:      bus.KindInboundMessage,
		Timestamp: time.Now(),
		Payload:   toRawEvent(evt),
	})
}

// handleGroupInfo refreshes the stored group name when group metadata
// changes. Names are the only chat attribute written outside message saves.
func (h *EventHandler) handleGroupInfo(evt *events.GroupInfo) {
	if h.db == nil || evt.Name == nil || evt.Name.Name == "" {
		return
	}
	jid := evt.JID.String()
	if err := h.db.EnsureChat(jid, true); err != nil {
		h.logger.Warn("failed to ensure group chat", zap.Error(err), zap.String("jid", jid))
		return
	}
	if err := h.db.SyncGroupName(jid, evt.Name.Name); err != nil {
		h.logger.Warn("failed to sync group name", zap.Error(err), zap.String("jid", jid))
	}
}

// toRawEvent converts a live whatsmeow message event into the normalized
// form the ingestion engine consumes. Chat and sender addresses are
// normalized to their non-device form.
func toRawEvent(evt *events.Message) *ingest.RawEvent {
	return &ingest.RawEvent{
		ChatJID:   NormalizeJID(evt.Info.Chat.String()),
		MsgID:     evt.Info.ID,
		SenderJID: NormalizeJID(evt.Info.Sender.String()),
		PushName:  evt.Info.PushName,
		FromMe:    evt.Info.IsFromMe,
		Timestamp: evt.Info.Timestamp,
		Message:   evt.Message,
	}
}

// NormalizeJID strips the device part of a JID so the same account always
// maps to one row. Unparseable input is returned unchanged.
func NormalizeJID(jid string) string {
	parsed, err := types.ParseJID(jid)
	if err != nil {
		return jid
	}
	return parsed.ToNonAD().String()
}
