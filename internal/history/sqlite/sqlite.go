package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/loykin/xprocess/internal/history"
)

// Sink writes history events to a SQLite database.
type Sink struct {
	db *sql.DB
}

// New creates a new SQLite history sink.
// DSN format:
//   - "sqlite:///path/to/file.db"
//   - "sqlite://:memory:"
//   - "/path/to/file.db" (without prefix)
//   - ":memory:" (in-memory database)
func New(dsn string) (*Sink, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, errors.New("empty SQLite DSN")
	}
	if strings.HasPrefix(strings.ToLower(dsn), "sqlite://") {
		dsn = dsn[len("sqlite://"):]
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	// a single connection keeps :memory: databases alive across calls
	db.SetMaxOpenConns(1)

	sink := &Sink{db: db}
	if err := sink.ensureSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return sink, nil
}

func (s *Sink) ensureSchema(ctx context.Context) error {
	stmt := `CREATE TABLE IF NOT EXISTS xprocess_history(
		timestamp TIMESTAMP NOT NULL DEFAULT (CURRENT_TIMESTAMP),
		session TEXT NOT NULL,
		event TEXT NOT NULL,
		name TEXT NOT NULL,
		pid INTEGER NOT NULL,
		log_path TEXT NOT NULL,
		status TEXT NOT NULL,
		error TEXT
	);`
	_, err := s.db.ExecContext(ctx, stmt)
	return err
}

func (s *Sink) Send(ctx context.Context, e history.Event) error {
	rec := e.Record
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO xprocess_history(timestamp, session, event, name, pid, log_path, status, error)
		VALUES(?, ?, ?, ?, ?, ?, ?, ?);`,
		e.OccurredAt.UTC(), e.Session, string(e.Type), rec.Name, rec.PID, rec.LogPath, rec.Status, nullable(rec.Error))
	return err
}

// Count returns the number of stored events for name.
func (s *Sink) Count(ctx context.Context, name string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM xprocess_history WHERE name = ?;`, name).Scan(&n)
	return n, err
}

func (s *Sink) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
