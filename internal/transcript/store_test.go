package transcript

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sandbridge/sandbridge/internal/common/config"
)

func TestMemoryStoreAppendAndTail(t *testing.T) {
	s := NewMemoryStore(100)
	defer s.Close()
	ctx := context.Background()

	require.NoError(t, s.Append(ctx, "command-start", "$ ls"))
	require.NoError(t, s.Append(ctx, "stdout", "README.md\n"))
	require.NoError(t, s.Append(ctx, "command-exit", "[exit 0]"))

	entries, err := s.Tail(ctx, 2)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "stdout", entries[0].Kind)
	assert.Equal(t, "command-exit", entries[1].Kind)

	all, err := s.Tail(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestMemoryStoreDropsOldestAtCap(t *testing.T) {
	s := NewMemoryStore(3)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, s.Append(ctx, "stdout", fmt.Sprintf("line %d", i)))
	}

	entries, err := s.Tail(ctx, 10)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, "line 2", entries[0].Text)
	assert.Equal(t, "line 4", entries[2].Text)
}

func TestSQLiteStoreAppendAndTail(t *testing.T) {
	path := filepath.Join(t.TempDir(), "transcript.db")
	s, err := NewSQLiteStore(path, 100)
	require.NoError(t, err)
	defer s.Close()
	ctx := context.Background()

	require.NoError(t, s.Append(ctx, "command-start", "$ pwd"))
	require.NoError(t, s.Append(ctx, "stdout", "/workspace\n"))

	entries, err := s.Tail(ctx, 10)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "command-start", entries[0].Kind)
	assert.Equal(t, "stdout", entries[1].Kind)
	assert.True(t, entries[0].ID < entries[1].ID)
}

func TestSQLiteStorePrunesBeyondCap(t *testing.T) {
	path := filepath.Join(t.TempDir(), "transcript.db")
	s, err := NewSQLiteStore(path, 3)
	require.NoError(t, err)
	defer s.Close()
	ctx := context.Background()

	for i := 0; i < 6; i++ {
		require.NoError(t, s.Append(ctx, "stdout", fmt.Sprintf("line %d", i)))
	}

	entries, err := s.Tail(ctx, 10)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, "line 3", entries[0].Text)
	assert.Equal(t, "line 5", entries[2].Text)
}

func TestNewSelectsBackend(t *testing.T) {
	mem, err := New(config.TranscriptConfig{Backend: "memory", MaxLines: 10})
	require.NoError(t, err)
	assert.IsType(t, &MemoryStore{}, mem)

	path := filepath.Join(t.TempDir(), "transcript.db")
	lite, err := New(config.TranscriptConfig{Backend: "sqlite", Path: path, MaxLines: 10})
	require.NoError(t, err)
	assert.IsType(t, &SQLiteStore{}, lite)
	lite.Close()

	_, err = New(config.TranscriptConfig{Backend: "postgres"})
	assert.Error(t, err)
}
