package store

// UpsertMediaAttachment inserts or refreshes an attachment row keyed by
// (message_id, file_path). On conflict only mime type, file name and hash
// are updated; the decryption key from the first delivery is kept.
func (db *DB) UpsertMediaAttachment(a *MediaAttachment) error {
	_, err := db.Exec(`
		INSERT INTO media_attachments (message_id, file_path, mime_type, file_name, sha256_hash, media_key_data)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(message_id, file_path) DO UPDATE SET
			mime_type = excluded.mime_type,
			file_name = excluded.file_name,
			sha256_hash = excluded.sha256_hash`,
		a.MessageID, a.FilePath, a.MimeType, a.FileName, a.SHA256, a.MediaKey)
	return err
}

// ListMediaAttachments returns all attachments recorded for a message row.
func (db *DB) ListMediaAttachments(messageID int64) ([]MediaAttachment, error) {
	rows, err := db.Query(`
		SELECT message_id, file_path, mime_type, file_name, sha256_hash, media_key_data
		FROM media_attachments WHERE message_id = ?`, messageID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var atts []MediaAttachment
	for rows.Next() {
		var a MediaAttachment
		if err := rows.Scan(&a.MessageID, &a.FilePath, &a.MimeType, &a.FileName, &a.SHA256, &a.MediaKey); err != nil {
			return nil, err
		}
		atts = append(atts, a)
	}
	return atts, rows.Err()
}
