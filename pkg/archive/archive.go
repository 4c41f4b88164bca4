// Package archive persists chat messages to SQLite for offline inspection.
// The in-memory message store stays authoritative; the archive is append-only
// and written best-effort, so losing it never affects a running room.
package archive

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/fanlv/chat-room/pkg/model"
)

const schema = `
CREATE TABLE IF NOT EXISTS messages (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	room_id    INTEGER NOT NULL,
	user_name  TEXT    NOT NULL,
	address    TEXT    NOT NULL,
	content    TEXT    NOT NULL,
	sent_at    INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_messages_room ON messages(room_id, sent_at);
`

// Archive is an append-only SQLite log of chat messages.
type Archive struct {
	db *sql.DB
}

// Open opens (or creates) the archive database at path and runs migrations.
func Open(path string) (*Archive, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("archive: open db: %w", err)
	}

	ctx := context.Background()

	// WAL keeps writers from blocking the ops read endpoint.
	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("archive: set WAL: %w", err)
	}
	if _, err := db.ExecContext(ctx, "PRAGMA busy_timeout=5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("archive: set busy_timeout: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("archive: migrate: %w", err)
	}

	return &Archive{db: db}, nil
}

// Close closes the underlying database.
func (a *Archive) Close() error {
	return a.db.Close()
}

// Append writes one message to the archive.
func (a *Archive) Append(msg model.Message) error {
	_, err := a.db.ExecContext(context.Background(),
		"INSERT INTO messages (room_id, user_name, address, content, sent_at) VALUES (?, ?, ?, ?, ?)",
		msg.User.RoomID, msg.User.UserName, msg.User.Address, msg.Content, msg.Time)
	if err != nil {
		return fmt.Errorf("archive: insert message: %w", err)
	}
	return nil
}

// Recent returns up to limit archived messages for roomID, oldest first.
func (a *Archive) Recent(roomID int64, limit int) ([]model.Message, error) {
	rows, err := a.db.QueryContext(context.Background(),
		`SELECT user_name, address, content, sent_at FROM messages
		 WHERE room_id = ? ORDER BY sent_at DESC LIMIT ?`,
		roomID, limit)
	if err != nil {
		return nil, fmt.Errorf("archive: query messages: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var result []model.Message
	for rows.Next() {
		var msg model.Message
		msg.User.RoomID = roomID
		if err := rows.Scan(&msg.User.UserName, &msg.User.Address, &msg.Content, &msg.Time); err != nil {
			return nil, fmt.Errorf("archive: scan message: %w", err)
		}
		result = append(result, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("archive: iterate messages: %w", err)
	}

	// Flip newest-first to oldest-first.
	for i, j := 0, len(result)-1; i < j; i, j = i+1, j-1 {
		result[i], result[j] = result[j], result[i]
	}
	return result, nil
}

// CountSince returns how many messages roomID archived after the given time.
func (a *Archive) CountSince(roomID int64, since time.Time) (int64, error) {
	var n int64
	err := a.db.QueryRowContext(context.Background(),
		"SELECT COUNT(*) FROM messages WHERE room_id = ? AND sent_at >= ?",
		roomID, since.UnixNano()).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("archive: count messages: %w", err)
	}
	return n, nil
}
