package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dkeye/Campus/internal/store"
	_ "github.com/mattn/go-sqlite3"
)

const schema = `
CREATE TABLE IF NOT EXISTS messages (
	id         TEXT PRIMARY KEY,
	room_id    TEXT NOT NULL,
	user_id    TEXT NOT NULL,
	body       BLOB NOT NULL,
	status     TEXT NOT NULL DEFAULT 'sent',
	created_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_messages_room_created ON messages (room_id, created_at);
`

// SQLiteStore implements store.PersistenceGateway for SQLite.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

// New opens dbPath and applies the schema.
func New(dbPath string) (*SQLiteStore, error) {
	return NewWithSetup(dbPath, func(db *sql.DB) error {
		_, err := db.Exec(schema)
		return err
	})
}

// NewWithSetup opens dbPath and runs setup instead of the default schema.
func NewWithSetup(dbPath string, setup func(*sql.DB) error) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// SQLite works best with a single connection; it also keeps :memory: databases shared.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if setup != nil {
		if err := setup(db); err != nil {
			db.Close()
			return nil, fmt.Errorf("setup: %w", err)
		}
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	return &SQLiteStore{db: db, now: time.Now}, nil
}

// Schema exposes the default DDL, for tests that build their own setup.
func Schema() string { return schema }

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) CreateMessage(ctx context.Context, msg *store.Message) error {
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = s.now().UTC()
	}
	if msg.Status == "" {
		msg.Status = store.StatusSent
	}
	msg.UpdatedAt = msg.CreatedAt
	query := `
		INSERT INTO messages (id, room_id, user_id, body, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	_, err := s.db.ExecContext(ctx, query,
		msg.ID, msg.RoomID, msg.UserID, []byte(msg.Body), msg.Status, msg.CreatedAt, msg.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetMessage(ctx context.Context, id string) (*store.Message, error) {
	query := `
		SELECT id, room_id, user_id, body, status, created_at, updated_at
		FROM messages
		WHERE id = ?
	`
	msg, err := scanMessage(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("message %s: %w", id, store.ErrNotFound)
		}
		return nil, fmt.Errorf("query message: %w", err)
	}
	return msg, nil
}

func (s *SQLiteStore) UpdateMessage(ctx context.Context, msg *store.Message) error {
	msg.UpdatedAt = s.now().UTC()
	query := `
		UPDATE messages SET body = ?, status = ?, updated_at = ?
		WHERE id = ?
	`
	res, err := s.db.ExecContext(ctx, query, []byte(msg.Body), msg.Status, msg.UpdatedAt, msg.ID)
	if err != nil {
		return fmt.Errorf("update message: %w", err)
	}
	return expectOne(res, msg.ID)
}

func (s *SQLiteStore) UpdateStatus(ctx context.Context, roomID, id, status string) error {
	query := `UPDATE messages SET status = ?, updated_at = ? WHERE id = ? AND room_id = ?`
	res, err := s.db.ExecContext(ctx, query, status, s.now().UTC(), id, roomID)
	if err != nil {
		return fmt.Errorf("update status: %w", err)
	}
	return expectOne(res, id)
}

func (s *SQLiteStore) DeleteMessage(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM messages WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete message: %w", err)
	}
	return expectOne(res, id)
}

func (s *SQLiteStore) ListMessages(ctx context.Context, roomID string, limit int) ([]*store.Message, error) {
	if limit <= 0 {
		limit = 50
	}
	// newest page first, reversed below so callers read in order
	query := `
		SELECT id, room_id, user_id, body, status, created_at, updated_at
		FROM messages
		WHERE room_id = ?
		ORDER BY created_at DESC, rowid DESC
		LIMIT ?
	`
	rows, err := s.db.QueryContext(ctx, query, roomID, limit)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	var out []*store.Message
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		out = append(out, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanMessage(row scanner) (*store.Message, error) {
	var (
		msg  store.Message
		body []byte
	)
	if err := row.Scan(&msg.ID, &msg.RoomID, &msg.UserID, &body, &msg.Status, &msg.CreatedAt, &msg.UpdatedAt); err != nil {
		return nil, err
	}
	msg.Body = body
	return &msg, nil
}

func expectOne(res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("message %s: %w", id, store.ErrNotFound)
	}
	return nil
}
