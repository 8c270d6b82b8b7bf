package media

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/wabox/wabox/internal/store"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.uber.org/zap"
)

var (
	// ErrNoMedia is returned when the message carries no downloadable media.
	ErrNoMedia = errors.New("message carries no media")
	// ErrDownloadFailed marks transport download failures. The owning
	// message row stays intact; the message simply has no verified attachment.
	ErrDownloadFailed = errors.New("media download failed")
	// ErrMessageMissing indicates the owning message row was not found when
	// attaching media. This should never occur under correct sequencing.
	ErrMessageMissing = errors.New("message row not found for media attachment")
)

// Downloader fetches the raw bytes of a media message from the transport.
type Downloader interface {
	DownloadAny(ctx context.Context, msg *waE2E.Message) ([]byte, error)
}

// Store downloads media payloads, writes them under the media root, and
// records content-hashed attachment rows. It only runs after the owning
// message row has been committed.
type Store struct {
	db     *store.DB
	dl     Downloader
	root   string
	logger *zap.Logger
}

// NewStore creates a media store rooted at the given directory.
func NewStore(db *store.DB, dl Downloader, root string, logger *zap.Logger) *Store {
	return &Store{
		db:     db,
		dl:     dl,
		root:   root,
		logger: logger,
	}
}

// descriptor holds the derived file name, MIME type and decryption key of a
// media payload.
type descriptor struct {
	fileName string
	mimeType string
	mediaKey []byte
}

// describe derives the attachment descriptor for a media message, applying
// the per-type file extension and MIME defaults.
func describe(msg *waE2E.Message, msgID string) (descriptor, bool) {
	switch {
	case msg.GetImageMessage() != nil:
		im := msg.GetImageMessage()
		return descriptor{
			fileName: msgID + "." + extFromMime(im.GetMimetype(), "jpg"),
			mimeType: orDefault(im.GetMimetype(), "image/jpeg"),
			mediaKey: im.GetMediaKey(),
		}, true
	case msg.GetVideoMessage() != nil:
		vm := msg.GetVideoMessage()
		return descriptor{
			fileName: msgID + "." + extFromMime(vm.GetMimetype(), "mp4"),
			mimeType: orDefault(vm.GetMimetype(), "video/mp4"),
			mediaKey: vm.GetMediaKey(),
		}, true
	case msg.GetAudioMessage() != nil:
		am := msg.GetAudioMessage()
		return descriptor{
			fileName: msgID + "." + extFromMime(am.GetMimetype(), "ogg"),
			mimeType: orDefault(am.GetMimetype(), "audio/ogg"),
			mediaKey: am.GetMediaKey(),
		}, true
	case msg.GetDocumentMessage() != nil:
		dm := msg.GetDocumentMessage()
		return descriptor{
			fileName: sanitizeFileName(dm.GetFileName(), msgID+".pdf"),
			mimeType: orDefault(dm.GetMimetype(), "application/pdf"),
			mediaKey: dm.GetMediaKey(),
		}, true
	case msg.GetStickerMessage() != nil:
		return descriptor{
			fileName: msgID + ".webp",
			mimeType: "image/webp",
			mediaKey: msg.GetStickerMessage().GetMediaKey(),
		}, true
	}
	return descriptor{}, false
}

// sanitizeFileName reduces a sender-supplied document name to a bare file
// name. The name crosses the wire from an arbitrary correspondent, so any
// path components are stripped before it is joined onto the media root.
func sanitizeFileName(name, fallback string) string {
	name = filepath.Base(strings.TrimSpace(name))
	switch name {
	case "", ".", "..", string(filepath.Separator):
		return fallback
	}
	return name
}

// extFromMime extracts a file extension from a MIME subtype, falling back to
// the per-type default. Parameters ("audio/ogg; codecs=opus") are stripped.
func extFromMime(mime, fallback string) string {
	_, sub, ok := strings.Cut(mime, "/")
	if !ok {
		return fallback
	}
	sub, _, _ = strings.Cut(sub, ";")
	sub = strings.TrimSpace(sub)
	if sub == "" {
		return fallback
	}
	return sub
}

func orDefault(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}

// Save downloads and persists the media payload of an already-saved message
// identified by its transport id. The bytes are written under the media
// root and the attachment row records the SHA-256 digest of exactly the
// bytes written.
func (s *Store) Save(ctx context.Context, msg *waE2E.Message, msgID string) error {
	if msg == nil || msgID == "" {
		return ErrNoMedia
	}
	desc, ok := describe(msg, msgID)
	if !ok {
		return ErrNoMedia
	}

	data, err := s.dl.DownloadAny(ctx, msg)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDownloadFailed, err)
	}

	if err := os.MkdirAll(s.root, 0700); err != nil {
		return fmt.Errorf("create media root: %w", err)
	}
	path := filepath.Join(s.root, desc.fileName)
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("write media file: %w", err)
	}

	sum := sha256.Sum256(data)

	rowID, found, err := s.db.MessageRowID(msgID)
	if err != nil {
		return fmt.Errorf("lookup message row: %w", err)
	}
	if !found {
		return fmt.Errorf("%w: %s", ErrMessageMissing, msgID)
	}

	att := &store.MediaAttachment{
		MessageID: rowID,
		FilePath:  path,
		MimeType:  desc.mimeType,
		FileName:  desc.fileName,
		SHA256:    hex.EncodeToString(sum[:]),
		MediaKey:  desc.mediaKey,
	}
	if err := s.db.UpsertMediaAttachment(att); err != nil {
		return fmt.Errorf("upsert media attachment: %w", err)
	}

	s.logger.Info("media attachment saved",
		zap.String("msg_id", msgID),
		zap.String("path", path),
		zap.String("mime_type", desc.mimeType))
	return nil
}
