package ingest

import "go.mau.fi/whatsmeow/proto/waE2E"

// MessageType enumerates the semantic message shapes the archive stores.
type MessageType string

const (
	TypeText     MessageType = "text"
	TypeImage    MessageType = "image"
	TypeVideo    MessageType = "video"
	TypeAudio    MessageType = "audio"
	TypeDocument MessageType = "document"
	TypeSticker  MessageType = "sticker"
	TypeReaction MessageType = "reaction"
	TypeUnknown  MessageType = "unknown"
)

// HasMedia reports whether messages of this type carry downloadable media.
func (t MessageType) HasMedia() bool {
	switch t {
	case TypeImage, TypeVideo, TypeAudio, TypeDocument, TypeSticker:
		return true
	}
	return false
}

// Classification is the result of classifying a raw message body.
type Classification struct {
	Type        MessageType
	Text        string
	QuotedID    string
	ReactionID  string
	IsForwarded bool
}

// Classify derives the semantic type, display text, quoted-message reference,
// forwarded flag and reaction target of a message body. Pure function: the
// body shapes are mutually exclusive and matched in a fixed priority order.
// The extended text shape wins over a bare conversation field when a payload
// carries both. Captions default to the empty string, never absent.
func Classify(msg *waE2E.Message) Classification {
	if msg == nil {
		return Classification{Type: TypeUnknown}
	}

	switch {
	case msg.GetExtendedTextMessage() != nil:
		ext := msg.GetExtendedTextMessage()
		ctx := ext.GetContextInfo()
		quoted := ""
		if ctx.GetQuotedMessage() != nil {
			quoted = ctx.GetStanzaID()
		}
		return Classification{
			Type:        TypeText,
			Text:        ext.GetText(),
			QuotedID:    quoted,
			IsForwarded: ctx.GetIsForwarded(),
		}
	case msg.GetConversation() != "":
		return Classification{Type: TypeText, Text: msg.GetConversation()}
	case msg.GetImageMessage() != nil:
		return Classification{Type: TypeImage, Text: msg.GetImageMessage().GetCaption()}
	case msg.GetVideoMessage() != nil:
		return Classification{Type: TypeVideo, Text: msg.GetVideoMessage().GetCaption()}
	case msg.GetAudioMessage() != nil:
		return Classification{Type: TypeAudio}
	case msg.GetDocumentMessage() != nil:
		return Classification{Type: TypeDocument, Text: msg.GetDocumentMessage().GetCaption()}
	case msg.GetStickerMessage() != nil:
		return Classification{Type: TypeSticker}
	case msg.GetReactionMessage() != nil:
		r := msg.GetReactionMessage()
		return Classification{
			Type:       TypeReaction,
			Text:       r.GetText(),
			ReactionID: r.GetKey().GetID(),
		}
	}
	return Classification{Type: TypeUnknown}
}
