package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	sqlite "modernc.org/sqlite"

	"chatrelay/internal/session"
)

const (
	sqliteConstraintCode = 19
	defaultBusyTimeout   = 5000
)

// Store wraps the SQLite handle and persists chat messages written behind
// the in-memory store.
type Store struct {
	db *sql.DB
}

// ErrMessageExists is returned when a message id is saved twice.
var ErrMessageExists = errors.New("message already exists")

// NewStore initializes the SQLite database at the provided path. Call Close when done.
func NewStore(path string) (*Store, error) {
	if path == "" {
		path = "chatrelay.db"
	}
	dsn := buildDSN(path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if _, err := db.Exec(fmt.Sprintf("PRAGMA busy_timeout=%d;", defaultBusyTimeout)); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

// Close releases the underlying DB connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func buildDSN(path string) string {
	switch {
	case strings.HasPrefix(path, "sqlite://"):
		path = path[len("sqlite://"):]
	case strings.HasPrefix(path, "file:"), strings.HasPrefix(path, ":memory:"):
		// already in a form sqlite understands
	default:
		path = "file:" + path
	}
	separator := "?"
	if strings.Contains(path, "?") {
		separator = "&"
	}
	return fmt.Sprintf("%s%s_pragma=busy_timeout=%d&_pragma=journal_mode=WAL", path, separator, defaultBusyTimeout)
}

// Migrate runs the schema creation statements.
func (s *Store) Migrate(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS messages (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			id TEXT NOT NULL UNIQUE,
			room TEXT NOT NULL DEFAULT '',
			sender TEXT NOT NULL,
			sender_id TEXT NOT NULL,
			body TEXT NOT NULL,
			is_private INTEGER NOT NULL DEFAULT 0,
			recipient TEXT NOT NULL DEFAULT '',
			recipient_id TEXT NOT NULL DEFAULT '',
			read_by TEXT NOT NULL DEFAULT '[]',
			reactions TEXT NOT NULL DEFAULT '{}',
			sent_at INTEGER NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_messages_room_sent ON messages(room, sent_at);`,
		`CREATE INDEX IF NOT EXISTS idx_messages_sender_sent ON messages(sender_id, sent_at);`,
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()
	for _, stmt := range statements {
		if _, err = tx.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// SaveMessage inserts a new message. ErrMessageExists is returned on conflicts.
func (s *Store) SaveMessage(ctx context.Context, msg session.Message) error {
	readBy, reactions, err := encodeMetadata(msg)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO messages(id, room, sender, sender_id, body, is_private, recipient, recipient_id, read_by, reactions, sent_at)
		VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		msg.ID, msg.Room, msg.Sender, msg.SenderID, msg.Text, msg.Private,
		msg.Recipient, msg.RecipientID, readBy, reactions, msg.Timestamp.UnixNano())
	if err != nil {
		if isConstraintError(err) {
			return ErrMessageExists
		}
		return err
	}
	return nil
}

// UpdateMessage rewrites the mutable metadata (read receipts, reactions).
// Updating an unknown id returns sql.ErrNoRows.
func (s *Store) UpdateMessage(ctx context.Context, msg session.Message) error {
	readBy, reactions, err := encodeMetadata(msg)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, `UPDATE messages SET read_by=?, reactions=? WHERE id=?`, readBy, reactions, msg.ID)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// RecentMessages returns the newest limit messages, oldest first.
func (s *Store) RecentMessages(ctx context.Context, limit int) ([]session.Message, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, room, sender, sender_id, body, is_private, recipient, recipient_id, read_by, reactions, sent_at
		FROM messages
		ORDER BY seq DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var msgs []session.Message
	for rows.Next() {
		var (
			msg       session.Message
			readBy    string
			reactions string
			sentAt    int64
		)
		if err := rows.Scan(&msg.ID, &msg.Room, &msg.Sender, &msg.SenderID, &msg.Text, &msg.Private,
			&msg.Recipient, &msg.RecipientID, &readBy, &reactions, &sentAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(readBy), &msg.ReadBy); err != nil {
			return nil, fmt.Errorf("decode read_by for %s: %w", msg.ID, err)
		}
		if err := json.Unmarshal([]byte(reactions), &msg.Reactions); err != nil {
			return nil, fmt.Errorf("decode reactions for %s: %w", msg.ID, err)
		}
		msg.Timestamp = time.Unix(0, sentAt).UTC()
		msgs = append(msgs, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	reverse(msgs)
	return msgs, nil
}

func encodeMetadata(msg session.Message) (string, string, error) {
	readBy := msg.ReadBy
	if readBy == nil {
		readBy = []string{}
	}
	rb, err := json.Marshal(readBy)
	if err != nil {
		return "", "", err
	}
	rx, err := json.Marshal(msg.Reactions)
	if err != nil {
		return "", "", err
	}
	return string(rb), string(rx), nil
}

func reverse(msgs []session.Message) {
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
}

func isConstraintError(err error) bool {
	var sqliteErr *sqlite.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code()&0xff == sqliteConstraintCode
	}
	return false
}
