package transcript

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
)

// SQLiteStore is a durable transcript backed by a sqlite database. The cap
// is enforced on append by pruning the oldest rows.
type SQLiteStore struct {
	db       *sqlx.DB
	maxLines int
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore opens (or creates) the transcript database at dbPath.
func NewSQLiteStore(dbPath string, maxLines int) (*SQLiteStore, error) {
	db, err := sqlx.Open("sqlite3", dbPath+"?_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite only supports one writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	store := &SQLiteStore{db: db, maxLines: maxLines}
	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS transcript (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		kind TEXT NOT NULL,
		text TEXT NOT NULL,
		created_at DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_transcript_created_at ON transcript(created_at);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Append records one lifecycle event and prunes rows beyond the cap.
func (s *SQLiteStore) Append(ctx context.Context, kind, text string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO transcript (kind, text, created_at) VALUES (?, ?, ?)
	`, kind, text, time.Now().UTC())
	if err != nil {
		return err
	}

	if s.maxLines > 0 {
		_, err = s.db.ExecContext(ctx, `
			DELETE FROM transcript
			WHERE id NOT IN (SELECT id FROM transcript ORDER BY id DESC LIMIT ?)
		`, s.maxLines)
	}
	return err
}

// Tail returns the most recent n entries in append order.
func (s *SQLiteStore) Tail(ctx context.Context, n int) ([]Entry, error) {
	if n <= 0 {
		return nil, nil
	}

	var entries []Entry
	err := s.db.SelectContext(ctx, &entries, `
		SELECT id, kind, text, created_at FROM transcript ORDER BY id DESC LIMIT ?
	`, n)
	if err != nil {
		return nil, err
	}

	// Rows come back newest first; callers want append order.
	for i, j := 0, len(entries)-1; i < j; i, j = i+1, j-1 {
		entries[i], entries[j] = entries[j], entries[i]
	}
	return entries, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
