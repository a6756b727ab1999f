package store

import (
	"time"

	"github.com/matheus3301/relay/internal/model"
)

// AppendMessage appends a message to its contact's ordered history.
// Idempotent on (contact_id, msg_id): a platform redelivering the same
// webhook event updates the status in place instead of duplicating.
func (db *DB) AppendMessage(m *model.Message) error {
	now := time.Now().UnixMilli()
	_, err := db.Exec(`
		INSERT INTO messages (contact_id, msg_id, text, direction, status, timestamp, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(contact_id, msg_id) DO UPDATE SET
			status = excluded.status`,
		m.ContactID, m.ID, m.Text, string(m.Direction), string(m.Status), m.Timestamp, now)
	return err
}

// ReplaceMessage swaps the message stored under oldID for m, keeping the
// row and therefore its position in the history. Used once per outbound
// message, to trade the provisional id for the platform-confirmed one.
// Returns ErrNotFound when oldID does not resolve.
func (db *DB) ReplaceMessage(contactID, oldID string, m *model.Message) error {
	res, err := db.Exec(`
		UPDATE messages SET msg_id = ?, text = ?, status = ?, timestamp = ?
		WHERE contact_id = ? AND msg_id = ?`,
		m.ID, m.Text, string(m.Status), m.Timestamp, contactID, oldID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// ListMessages returns the contact's full history in append order. The
// result is never nil; an unknown contact has an empty history.
func (db *DB) ListMessages(contactID string) ([]model.Message, error) {
	rows, err := db.Query(`
		SELECT msg_id, contact_id, text, direction, status, timestamp
		FROM messages
		WHERE contact_id = ?
		ORDER BY seq ASC`, contactID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	msgs := []model.Message{}
	for rows.Next() {
		var m model.Message
		if err := rows.Scan(&m.ID, &m.ContactID, &m.Text, &m.Direction, &m.Status, &m.Timestamp); err != nil {
			return nil, err
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

// MessageCount returns the total number of stored messages.
func (db *DB) MessageCount() (int64, error) {
	var count int64
	err := db.QueryRow(`SELECT COUNT(*) FROM messages`).Scan(&count)
	return count, err
}
