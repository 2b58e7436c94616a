// Package transcript stores the append-only command lifecycle log a surface
// keeps alongside its terminal.
package transcript

import (
	"context"
	"fmt"
	"time"

	"github.com/sandbridge/sandbridge/internal/common/config"
)

// Entry is one recorded lifecycle event.
type Entry struct {
	ID        int64     `json:"id" db:"id"`
	Kind      string    `json:"kind" db:"kind"`
	Text      string    `json:"text" db:"text"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// Store is an append-only transcript with a bounded tail view.
type Store interface {
	// Append records one lifecycle event.
	Append(ctx context.Context, kind, text string) error

	// Tail returns the most recent n entries in append order.
	Tail(ctx context.Context, n int) ([]Entry, error)

	// Close releases the store.
	Close() error
}

// New creates the transcript store selected by config: the capped in-memory
// store by default, sqlite when configured with a path.
func New(cfg config.TranscriptConfig) (Store, error) {
	switch cfg.Backend {
	case "", "memory":
		return NewMemoryStore(cfg.MaxLines), nil
	case "sqlite":
		return NewSQLiteStore(cfg.Path, cfg.MaxLines)
	default:
		return nil, fmt.Errorf("unknown transcript backend: %s", cfg.Backend)
	}
}
