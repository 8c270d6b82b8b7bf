package store

// SearchMessages performs a full-text search on message text.
func (db *DB) SearchMessages(query string, chatJID string, limit int) ([]SearchResult, error) {
	if limit <= 0 {
		limit = 50
	}

	q := `
		SELECT m.id, m.whatsapp_message_id, m.chat_jid, m.sender_jid, m.timestamp,
		       m.message_type, m.is_from_me, m.message_text, m.quoted_message_id,
		       m.reaction_message_id, m.push_name, m.raw_message_data, m.is_forwarded,
		       snippet(messages_fts, 0, '<<', '>>', '...', 32)
		FROM messages_fts f
		JOIN messages m ON m.id = f.rowid
		WHERE messages_fts MATCH ?`

	args := []any{query}
	if chatJID != "" {
		q += " AND m.chat_jid = ?"
		args = append(args, chatJID)
	}
	q += " ORDER BY rank LIMIT ?"
	args = append(args, limit)

	rows, err := db.Query(q, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var results []SearchResult
	for rows.Next() {
		var r SearchResult
		if err := rows.Scan(
			&r.Message.ID, &r.Message.MsgID, &r.Message.ChatJID,
			&r.Message.SenderJID, &r.Message.Timestamp, &r.Message.MessageType,
			&r.Message.FromMe, &r.Message.Text, &r.Message.QuotedID,
			&r.Message.ReactionID, &r.Message.PushName, &r.Message.Raw,
			&r.Message.IsForwarded, &r.Snippet,
		); err != nil {
			return nil, err
		}
		results = append(results, r)
	}
	return results, rows.Err()
}
