package bus

import "time"

// Event kinds published by wabox components. Subscribers filter by
// namespace prefix ("wa.", "message.", "broadcast.", "session.").
const (
	KindInboundMessage  = "wa.message"
	KindMessageSaved    = "message.saved"
	KindMediaSaved      = "message.media_saved"
	KindBroadcastSent   = "broadcast.sent"
	KindBroadcastFailed = "broadcast.failed"
	KindStatusChanged   = "session.status_changed"
	KindQRGenerated     = "session.qr_generated"
	KindAuthenticated   = "session.authenticated"
	KindAuthFailed      = "session.auth_failed"
	KindLoggedOut       = "session.logged_out"
)

// Event represents a domain event published on the bus.
type Event struct {
	Kind      string
	Timestamp time.Time
	Payload   any
}
