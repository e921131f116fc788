package history

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

const createTurnsTable = `
CREATE TABLE IF NOT EXISTS turns (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	session_id TEXT NOT NULL,
	role TEXT NOT NULL,
	content TEXT NOT NULL,
	ts INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_turns_session_ts ON turns(session_id, ts);`

// SQLiteStore is the durable backend: an append-only table with one row per turn.
// Rows past the retention limit stay on disk until Compact removes them; Recent never
// returns more than the limit either way.
type SQLiteStore struct {
	db    *sql.DB
	limit int

	mu     sync.Mutex
	lastTS int64
}

func NewSQLiteStore(path string, limit int) (*SQLiteStore, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidLimit, limit)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("ensure db dir: %w", err)
	}
	db, err := sql.Open("sqlite3", "file:"+path+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// one writer keeps the monotonic timestamp and the insert order in step
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(createTurnsTable); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create turns table: %w", err)
	}

	s := &SQLiteStore{db: db, limit: limit}
	if err := db.QueryRow("SELECT COALESCE(MAX(ts), 0) FROM turns").Scan(&s.lastTS); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("read last timestamp: %w", err)
	}
	return s, nil
}

// nextTS returns a strictly increasing timestamp not earlier than t.
func (s *SQLiteStore) nextTS(t time.Time) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	ts := t.UnixNano()
	if ts <= s.lastTS {
		ts = s.lastTS + 1
	}
	s.lastTS = ts
	return ts
}

func (s *SQLiteStore) Append(ctx context.Context, sessionID string, turn Turn) error {
	if turn.CreatedAt.IsZero() {
		turn.CreatedAt = time.Now().UTC()
	}
	ts := s.nextTS(turn.CreatedAt)
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO turns (session_id, role, content, ts) VALUES (?, ?, ?, ?)",
		sessionID, string(turn.Role), turn.Content, ts,
	)
	if err != nil {
		return fmt.Errorf("insert turn: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Recent(ctx context.Context, sessionID string, limit int) ([]Turn, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT role, content, ts FROM turns WHERE session_id = ? ORDER BY ts DESC, id DESC LIMIT ?",
		sessionID, clampLimit(limit, s.limit),
	)
	if err != nil {
		return nil, fmt.Errorf("query turns: %w", err)
	}
	defer rows.Close()

	var newestFirst []Turn
	for rows.Next() {
		var (
			role string
			t    Turn
			ts   int64
		)
		if err := rows.Scan(&role, &t.Content, &ts); err != nil {
			return nil, fmt.Errorf("scan turn: %w", err)
		}
		t.Role = Role(role)
		t.CreatedAt = time.Unix(0, ts).UTC()
		newestFirst = append(newestFirst, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate turns: %w", err)
	}

	out := make([]Turn, len(newestFirst))
	for i, t := range newestFirst {
		out[len(newestFirst)-1-i] = t
	}
	return out, nil
}

func (s *SQLiteStore) Clear(ctx context.Context, sessionID string) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM turns WHERE session_id = ?", sessionID); err != nil {
		return fmt.Errorf("delete turns: %w", err)
	}
	return nil
}

// Compact physically removes rows beyond the retention limit of every session.
func (s *SQLiteStore) Compact(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
DELETE FROM turns WHERE id IN (
	SELECT id FROM (
		SELECT id, ROW_NUMBER() OVER (PARTITION BY session_id ORDER BY ts DESC, id DESC) AS rn
		FROM turns
	) WHERE rn > ?
)`, s.limit)
	if err != nil {
		return 0, fmt.Errorf("compact turns: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("compact rows affected: %w", err)
	}
	return n, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
