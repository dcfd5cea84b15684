package journal

import (
	"database/sql"
	"errors"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"nickchat/models"
)

// MemoryPath keeps the journal in process memory.
const MemoryPath = ":memory:"

// Message statuses.
const (
	StatusDelivered = "delivered"
	StatusQueued    = "queued"
	StatusDiscarded = "discarded"
)

var ErrNoRows = errors.New("no rows found")

// Journal is an append-mostly audit trail of routed messages. It is written
// after the fact and never read back into the directory.
type Journal struct {
	conn *sql.DB
}

// Counts holds the number of journaled messages per status.
type Counts struct {
	Delivered int
	Queued    int
	Discarded int
}

func New(path string) (*Journal, error) {
	dsn := path
	if path != MemoryPath {
		dsn = path + "?_journal_mode=WAL"
	}

	conn, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, err
	}
	// every pooled connection to :memory: would get its own database
	conn.SetMaxOpenConns(1)

	j := &Journal{conn: conn}
	if err := j.init(); err != nil {
		conn.Close()
		return nil, err
	}

	return j, nil
}

func (j *Journal) Close() error {
	return j.conn.Close()
}

func (j *Journal) init() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS messages (
			id TEXT PRIMARY KEY,
			sender TEXT NOT NULL,
			recipient TEXT NOT NULL,
			text TEXT NOT NULL,
			timestamp TEXT NOT NULL,
			status TEXT NOT NULL,
			updated_at TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_messages_recipient ON messages(recipient, timestamp)`,
	}

	for _, query := range queries {
		if _, err := j.conn.Exec(query); err != nil {
			return err
		}
	}
	return nil
}

// Record stores a freshly routed message. If the message was already marked
// by a later event (a drain that won the race against this write), the later
// status is kept.
func (j *Journal) Record(msg models.DeliveryMessage, status string) error {
	_, err := j.conn.Exec(
		`INSERT INTO messages (id, sender, recipient, text, timestamp, status, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING`,
		msg.ID, msg.From, msg.To, msg.Text, msg.Timestamp.Format(time.RFC3339), status, now(),
	)
	return err
}

// Mark sets the final status of messages that left a pending queue, either
// drained on login or discarded with a deleted user.
func (j *Journal) Mark(msgs []models.DeliveryMessage, status string) error {
	if len(msgs) == 0 {
		return nil
	}

	tx, err := j.conn.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(
		`INSERT INTO messages (id, sender, recipient, text, timestamp, status, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET status = excluded.status, updated_at = excluded.updated_at`,
	)
	if err != nil {
		return err
	}
	defer stmt.Close()

	ts := now()
	for _, msg := range msgs {
		if _, err := stmt.Exec(msg.ID, msg.From, msg.To, msg.Text, msg.Timestamp.Format(time.RFC3339), status, ts); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// Status returns the recorded status of a message, or ErrNoRows.
func (j *Journal) Status(id string) (string, error) {
	var status string
	err := j.conn.QueryRow("SELECT status FROM messages WHERE id = ?", id).Scan(&status)
	if err == sql.ErrNoRows {
		return "", ErrNoRows
	}
	return status, err
}

func (j *Journal) Counts() (Counts, error) {
	rows, err := j.conn.Query("SELECT status, COUNT(*) FROM messages GROUP BY status")
	if err != nil {
		return Counts{}, err
	}
	defer rows.Close()

	var c Counts
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return Counts{}, err
		}
		switch status {
		case StatusDelivered:
			c.Delivered = n
		case StatusQueued:
			c.Queued = n
		case StatusDiscarded:
			c.Discarded = n
		}
	}

	return c, rows.Err()
}

// History returns the messages addressed to recipient, oldest first.
func (j *Journal) History(recipient string, limit int) ([]Entry, error) {
	rows, err := j.conn.Query(
		`SELECT id, sender, recipient, text, timestamp, status
		FROM messages
		WHERE recipient = ?
		ORDER BY timestamp ASC, rowid ASC
		LIMIT ?`,
		recipient, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var timestampStr string
		if err := rows.Scan(&e.ID, &e.From, &e.To, &e.Text, &timestampStr, &e.Status); err != nil {
			return nil, err
		}

		timestamp, err := time.Parse(time.RFC3339, timestampStr)
		if err != nil {
			return nil, err
		}
		e.Timestamp = timestamp

		entries = append(entries, e)
	}

	return entries, rows.Err()
}

// Entry is a journaled message with its status.
type Entry struct {
	models.DeliveryMessage
	Status string
}

func now() string {
	return time.Now().UTC().Format(time.RFC3339)
}
