package store

// User is a message sender, created on first message from that address.
type User struct {
	JID      string
	PushName string
}

// Chat is a conversation endpoint. Group chats double as named broadcast
// recipient groups.
type Chat struct {
	JID     string
	Name    string
	IsGroup bool
}

// Message is one archived message row. (ChatJID, MsgID) is the natural key;
// ID is the surrogate row id media attachments reference.
type Message struct {
	ID          int64
	MsgID       string // transport-assigned message id
	ChatJID     string
	SenderJID   string
	Timestamp   int64 // unix seconds
	MessageType string
	FromMe      bool
	Text        string
	QuotedID    string
	ReactionID  string
	PushName    string
	Raw         []byte // verbatim original payload for audit/replay
	IsForwarded bool
}

// MediaAttachment records a downloaded media file for a message.
type MediaAttachment struct {
	MessageID int64
	FilePath  string
	MimeType  string
	FileName  string
	SHA256    string
	MediaKey  []byte
}

// BroadcastJob is a queued outbound broadcast.
type BroadcastJob struct {
	ID           int64
	ClientID     string
	Body         string
	Selector     string // JSON-encoded recipient selector
	Status       string // queued, sending, sent, failed
	ErrorMessage string
}

// SearchResult holds a message with a search snippet.
type SearchResult struct {
	Message Message
	Snippet string
}
