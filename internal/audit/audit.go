// Package audit keeps a SQLite trail of verification events. Codes are
// never written to it.
package audit

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/charmbracelet/log"
	_ "modernc.org/sqlite"
)

// Kind classifies an event.
type Kind string

const (
	KindIssued         Kind = "issued"
	KindDeliveryFailed Kind = "delivery_failed"
	KindVerified       Kind = "verified"
	KindRejected       Kind = "rejected"
)

// Event is one row of the trail.
type Event struct {
	ID        int64
	Phone     string
	Kind      Kind
	Detail    string
	CreatedAt time.Time
}

// Recorder accepts events.
type Recorder interface {
	Record(ctx context.Context, evt Event) error
}

// Store is a SQLite-backed Recorder. A Store opened with an empty path is
// disabled: every call succeeds and nothing is kept.
type Store struct {
	db     *sql.DB
	logger *log.Logger
	clock  func() time.Time
}

// Open creates or opens the database at path.
func Open(ctx context.Context, path string, logger *log.Logger) (*Store, error) {
	if logger == nil {
		logger = log.Default()
	}
	s := &Store{logger: logger.WithPrefix("audit"), clock: time.Now}
	if path == "" {
		return s, nil
	}

	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	s.db = db

	if err := s.initSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) initSchema(ctx context.Context) error {
	ddl := `
CREATE TABLE IF NOT EXISTS otp_events (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    phone TEXT NOT NULL,
    kind TEXT NOT NULL,
    detail TEXT NOT NULL DEFAULT '',
    created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_otp_events_created ON otp_events(created_at);
`
	if _, err := s.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("init schema: %w", err)
	}
	return nil
}

// Enabled reports whether events are persisted.
func (s *Store) Enabled() bool {
	return s.db != nil
}

// Close releases the database.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Record appends evt. CreatedAt defaults to now.
func (s *Store) Record(ctx context.Context, evt Event) error {
	if s.db == nil {
		return nil
	}
	if evt.CreatedAt.IsZero() {
		evt.CreatedAt = s.clock()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO otp_events(phone, kind, detail, created_at) VALUES(?, ?, ?, ?)`,
		evt.Phone, string(evt.Kind), evt.Detail, evt.CreatedAt.UnixNano())
	if err != nil {
		return fmt.Errorf("record event: %w", err)
	}
	return nil
}

// Recent returns up to limit events, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Event, error) {
	if s.db == nil {
		return nil, nil
	}
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, phone, kind, detail, created_at FROM otp_events
		 ORDER BY created_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var (
			e       Event
			kind    string
			created int64
		)
		if err := rows.Scan(&e.ID, &e.Phone, &kind, &e.Detail, &created); err != nil {
			return nil, err
		}
		e.Kind = Kind(kind)
		e.CreatedAt = time.Unix(0, created)
		events = append(events, e)
	}
	return events, rows.Err()
}

// Prune deletes events older than retention and reports how many went.
func (s *Store) Prune(ctx context.Context, retention time.Duration) (int64, error) {
	if s.db == nil || retention <= 0 {
		return 0, nil
	}
	cutoff := s.clock().Add(-retention)
	res, err := s.db.ExecContext(ctx, `DELETE FROM otp_events WHERE created_at < ?`, cutoff.UnixNano())
	if err != nil {
		return 0, fmt.Errorf("prune events: %w", err)
	}
	n, _ := res.RowsAffected()
	if n > 0 {
		s.logger.Debug("Pruned audit events", "count", n, "retention", retention)
	}
	return n, nil
}
