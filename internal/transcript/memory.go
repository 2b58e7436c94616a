package transcript

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is a capped in-memory transcript. When full, appending drops
// the oldest entry.
type MemoryStore struct {
	mu       sync.Mutex
	maxLines int
	nextID   int64
	entries  []Entry
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an in-memory transcript holding at most maxLines
// entries.
func NewMemoryStore(maxLines int) *MemoryStore {
	if maxLines < 1 {
		maxLines = 1
	}
	return &MemoryStore{maxLines: maxLines, nextID: 1}
}

// Append records one lifecycle event, evicting the oldest when full.
func (s *MemoryStore) Append(ctx context.Context, kind, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries = append(s.entries, Entry{
		ID:        s.nextID,
		Kind:      kind,
		Text:      text,
		CreatedAt: time.Now().UTC(),
	})
	s.nextID++

	if len(s.entries) > s.maxLines {
		s.entries = s.entries[len(s.entries)-s.maxLines:]
	}
	return nil
}

// Tail returns the most recent n entries in append order.
func (s *MemoryStore) Tail(ctx context.Context, n int) ([]Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if n <= 0 || len(s.entries) == 0 {
		return nil, nil
	}
	if n > len(s.entries) {
		n = len(s.entries)
	}
	out := make([]Entry, n)
	copy(out, s.entries[len(s.entries)-n:])
	return out, nil
}

// Close is a no-op for the in-memory store.
func (s *MemoryStore) Close() error {
	return nil
}
