package store

import (
	"database/sql"
	"fmt"
	"time"
)

// SaveMessage persists a message together with its sender and chat rows in a
// single transaction. Conflict handling follows the archive's idempotency
// rules: the sender's push name is last-write-wins, the chat row is
// insert-or-ignore (names are only set by explicit group sync), and the
// message row is keyed by (chat_jid, whatsapp_message_id) — redelivery
// updates text, push name and raw payload but never identity or timestamp.
func (db *DB) SaveMessage(m *Message, isGroup bool) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`
		INSERT INTO users (jid, push_name)
		VALUES (?, ?)
		ON CONFLICT(jid) DO UPDATE SET push_name = excluded.push_name`,
		m.SenderJID, m.PushName); err != nil {
		return fmt.Errorf("upsert user %q: %w", m.SenderJID, err)
	}

	if _, err := tx.Exec(`
		INSERT INTO chats (jid, name, is_group)
		VALUES (?, '', ?)
		ON CONFLICT(jid) DO NOTHING`,
		m.ChatJID, isGroup); err != nil {
		return fmt.Errorf("upsert chat %q: %w", m.ChatJID, err)
	}

	if _, err := tx.Exec(`
		INSERT INTO messages (whatsapp_message_id, chat_jid, sender_jid, timestamp,
			message_type, is_from_me, message_text, quoted_message_id,
			reaction_message_id, push_name, raw_message_data, is_forwarded, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(chat_jid, whatsapp_message_id) DO UPDATE SET
			message_text = excluded.message_text,
			push_name = excluded.push_name,
			raw_message_data = excluded.raw_message_data`,
		m.MsgID, m.ChatJID, m.SenderJID, m.Timestamp,
		m.MessageType, m.FromMe, m.Text, m.QuotedID,
		m.ReactionID, m.PushName, m.Raw, m.IsForwarded, time.Now().UnixMilli()); err != nil {
		return fmt.Errorf("upsert message %q: %w", m.MsgID, err)
	}

	return tx.Commit()
}

// MessageProcessed reports whether a message with the given transport id was
// already ingested. Fast-path dedup only; the unique constraint on
// (chat_jid, whatsapp_message_id) is the correctness guarantee.
func (db *DB) MessageProcessed(msgID string) (bool, error) {
	var one int
	err := db.QueryRow(`SELECT 1 FROM messages WHERE whatsapp_message_id = ?`, msgID).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// MessageRowID returns the surrogate row id for a transport message id.
// The boolean is false when no such message exists.
func (db *DB) MessageRowID(msgID string) (int64, bool, error) {
	var id int64
	err := db.QueryRow(`SELECT id FROM messages WHERE whatsapp_message_id = ?`, msgID).Scan(&id)
	if err == sql.ErrNoRows {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return id, true, nil
}

// GetMessage returns a message by its natural key, or nil if absent.
func (db *DB) GetMessage(chatJID, msgID string) (*Message, error) {
	var m Message
	err := db.QueryRow(`
		SELECT id, whatsapp_message_id, chat_jid, sender_jid, timestamp, message_type,
			is_from_me, message_text, quoted_message_id, reaction_message_id,
			push_name, raw_message_data, is_forwarded
		FROM messages WHERE chat_jid = ? AND whatsapp_message_id = ?`, chatJID, msgID).
		Scan(&m.ID, &m.MsgID, &m.ChatJID, &m.SenderJID, &m.Timestamp, &m.MessageType,
			&m.FromMe, &m.Text, &m.QuotedID, &m.ReactionID,
			&m.PushName, &m.Raw, &m.IsForwarded)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// ListMessages returns messages for a chat using keyset pagination by timestamp.
func (db *DB) ListMessages(chatJID string, beforeTs int64, limit int) ([]Message, error) {
	if limit <= 0 {
		limit = 50
	}
	if beforeTs <= 0 {
		beforeTs = time.Now().Unix() + 1
	}
	rows, err := db.Query(`
		SELECT id, whatsapp_message_id, chat_jid, sender_jid, timestamp, message_type,
			is_from_me, message_text, quoted_message_id, reaction_message_id,
			push_name, raw_message_data, is_forwarded
		FROM messages
		WHERE chat_jid = ? AND timestamp < ?
		ORDER BY timestamp DESC
		LIMIT ?`, chatJID, beforeTs, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var msgs []Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.MsgID, &m.ChatJID, &m.SenderJID, &m.Timestamp,
			&m.MessageType, &m.FromMe, &m.Text, &m.QuotedID, &m.ReactionID,
			&m.PushName, &m.Raw, &m.IsForwarded); err != nil {
			return nil, err
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

// LatestStatusText returns the text of the most recent own status post, or
// empty string if there is none.
func (db *DB) LatestStatusText() (string, error) {
	var text string
	err := db.QueryRow(`
		SELECT message_text FROM messages
		WHERE chat_jid = 'status@broadcast' AND is_from_me = 1 AND message_text != ''
		ORDER BY timestamp DESC
		LIMIT 1`).Scan(&text)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return text, nil
}

// MessageCount returns the total number of archived messages.
func (db *DB) MessageCount() (int64, error) {
	var count int64
	err := db.QueryRow(`SELECT COUNT(*) FROM messages`).Scan(&count)
	return count, err
}
