package store

import (
	"database/sql"
	"time"
)

// QueueBroadcast adds a broadcast job to the send queue. The selector is a
// JSON-encoded recipient selector resolved at send time.
func (db *DB) QueueBroadcast(clientID, body, selector string) error {
	now := time.Now().UnixMilli()
	_, err := db.Exec(`
		INSERT INTO broadcast_jobs (client_id, body, selector, status, created_at, updated_at)
		VALUES (?, ?, ?, 'queued', ?, ?)`,
		clientID, body, selector, now, now)
	return err
}

// MarkBroadcastSending updates a job to 'sending' status.
func (db *DB) MarkBroadcastSending(clientID string) error {
	now := time.Now().UnixMilli()
	_, err := db.Exec(`UPDATE broadcast_jobs SET status = 'sending', updated_at = ? WHERE client_id = ?`, now, clientID)
	return err
}

// MarkBroadcastSent updates a job to 'sent' status.
func (db *DB) MarkBroadcastSent(clientID string) error {
	now := time.Now().UnixMilli()
	_, err := db.Exec(`UPDATE broadcast_jobs SET status = 'sent', updated_at = ? WHERE client_id = ?`, now, clientID)
	return err
}

// MarkBroadcastFailed updates a job to 'failed' with an error message.
func (db *DB) MarkBroadcastFailed(clientID, errMsg string) error {
	now := time.Now().UnixMilli()
	_, err := db.Exec(`UPDATE broadcast_jobs SET status = 'failed', error_message = ?, updated_at = ? WHERE client_id = ?`, errMsg, now, clientID)
	return err
}

// PendingBroadcasts returns jobs that are still queued, oldest first.
func (db *DB) PendingBroadcasts() ([]BroadcastJob, error) {
	rows, err := db.Query(`
		SELECT id, client_id, body, selector, status, error_message
		FROM broadcast_jobs WHERE status = 'queued' ORDER BY created_at ASC`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var jobs []BroadcastJob
	for rows.Next() {
		var j BroadcastJob
		if err := rows.Scan(&j.ID, &j.ClientID, &j.Body, &j.Selector, &j.Status, &j.ErrorMessage); err != nil {
			return nil, err
		}
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}

// GetBroadcast returns a job by client id, or nil if absent.
func (db *DB) GetBroadcast(clientID string) (*BroadcastJob, error) {
	var j BroadcastJob
	err := db.QueryRow(`
		SELECT id, client_id, body, selector, status, error_message
		FROM broadcast_jobs WHERE client_id = ?`, clientID).
		Scan(&j.ID, &j.ClientID, &j.Body, &j.Selector, &j.Status, &j.ErrorMessage)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &j, nil
}
