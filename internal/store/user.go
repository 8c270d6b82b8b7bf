package store

import "database/sql"

// UpsertUser inserts or updates a user. The push name is last-write-wins.
func (db *DB) UpsertUser(u *User) error {
	_, err := db.Exec(`
		INSERT INTO users (jid, push_name)
		VALUES (?, ?)
		ON CONFLICT(jid) DO UPDATE SET push_name = excluded.push_name`,
		u.JID, u.PushName)
	return err
}

// GetUser returns a user by JID, or nil if absent.
func (db *DB) GetUser(jid string) (*User, error) {
	var u User
	err := db.QueryRow(`SELECT jid, push_name FROM users WHERE jid = ?`, jid).
		Scan(&u.JID, &u.PushName)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}
