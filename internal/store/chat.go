package store

import "database/sql"

// EnsureChat inserts a chat row if it does not exist yet. The name is left
// empty on insert and never overwritten here; SyncGroupName owns names.
func (db *DB) EnsureChat(jid string, isGroup bool) error {
	_, err := db.Exec(`
		INSERT INTO chats (jid, name, is_group)
		VALUES (?, '', ?)
		ON CONFLICT(jid) DO NOTHING`,
		jid, isGroup)
	return err
}

// SyncGroupName sets a group chat's display name. This is the only write
// path that updates chat names.
func (db *DB) SyncGroupName(jid, name string) error {
	_, err := db.Exec(`
		INSERT INTO chats (jid, name, is_group)
		VALUES (?, ?, 1)
		ON CONFLICT(jid) DO UPDATE SET name = excluded.name, is_group = 1`,
		jid, name)
	return err
}

// GetChat returns a single chat by JID, or nil if absent.
func (db *DB) GetChat(jid string) (*Chat, error) {
	var c Chat
	err := db.QueryRow(`SELECT jid, name, is_group FROM chats WHERE jid = ?`, jid).
		Scan(&c.JID, &c.Name, &c.IsGroup)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// ListGroupChats returns all chats flagged as groups, ordered by name then
// JID so recipient group indices are stable.
func (db *DB) ListGroupChats() ([]Chat, error) {
	rows, err := db.Query(`
		SELECT jid, name, is_group FROM chats
		WHERE is_group = 1
		ORDER BY name, jid`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var chats []Chat
	for rows.Next() {
		var c Chat
		if err := rows.Scan(&c.JID, &c.Name, &c.IsGroup); err != nil {
			return nil, err
		}
		chats = append(chats, c)
	}
	return chats, rows.Err()
}

// ChatCount returns the total number of chats.
func (db *DB) ChatCount() (int64, error) {
	var count int64
	err := db.QueryRow(`SELECT COUNT(*) FROM chats`).Scan(&count)
	return count, err
}
