package store

import (
	"database/sql"
	"time"

	"github.com/matheus3301/relay/internal/model"
)

// UpsertContact creates the contact or updates its name. The name only
// changes when the incoming value is non-empty; the origin platform is
// write-once — whatever was recorded at creation sticks. Returns the
// stored contact after the upsert.
func (db *DB) UpsertContact(c *model.Contact) (*model.Contact, error) {
	now := time.Now().UnixMilli()
	_, err := db.Exec(`
		INSERT INTO contacts (id, name, platform, last_message, last_message_time, created_at)
		VALUES (?, ?, ?, '', 0, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = CASE WHEN excluded.name != '' THEN excluded.name ELSE contacts.name END,
			platform = CASE WHEN contacts.platform = '' THEN excluded.platform ELSE contacts.platform END`,
		c.ID, c.Name, c.Platform, now)
	if err != nil {
		return nil, err
	}
	return db.GetContact(c.ID)
}

// TouchLastMessage refreshes the contact's denormalized preview fields.
func (db *DB) TouchLastMessage(contactID, text string, ts int64) error {
	res, err := db.Exec(`
		UPDATE contacts SET last_message = ?, last_message_time = ? WHERE id = ?`,
		text, ts, contactID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// GetContact returns a contact by id, or nil when unknown.
func (db *DB) GetContact(id string) (*model.Contact, error) {
	var c model.Contact
	err := db.QueryRow(`
		SELECT id, name, platform, last_message, last_message_time
		FROM contacts WHERE id = ?`, id).
		Scan(&c.ID, &c.Name, &c.Platform, &c.LastMessage, &c.LastMessageTime)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// ListContacts returns all contacts, most recently active first. The
// result is never nil: it is the snapshot sent to every observer.
func (db *DB) ListContacts() ([]model.Contact, error) {
	rows, err := db.Query(`
		SELECT id, name, platform, last_message, last_message_time
		FROM contacts
		ORDER BY last_message_time DESC, id ASC`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	contacts := []model.Contact{}
	for rows.Next() {
		var c model.Contact
		if err := rows.Scan(&c.ID, &c.Name, &c.Platform, &c.LastMessage, &c.LastMessageTime); err != nil {
			return nil, err
		}
		contacts = append(contacts, c)
	}
	return contacts, rows.Err()
}
