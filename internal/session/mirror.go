package session

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/sandbridge/sandbridge/internal/common/logger"
	"github.com/sandbridge/sandbridge/internal/events/bus"
)

// Terminal receives mirrored output on the watcher's read-only runtime view.
type Terminal interface {
	Write(ctx context.Context, data string) error
}

// Transcript is the append-only log mirrored lifecycle events land in.
type Transcript interface {
	Append(ctx context.Context, kind, text string) error
}

// ResetFunc tears down and rebuilds the watcher's mirroring runtime.
type ResetFunc func(ctx context.Context) error

// Mirror applies inbound sync messages to a watcher surface: heartbeats feed
// the liveness monitor, session resets rebuild the mirroring runtime, and the
// command lifecycle kinds are written to the terminal and the transcript.
type Mirror struct {
	monitor    *Monitor
	terminal   Terminal
	transcript Transcript
	onReset    ResetFunc
	logger     *logger.Logger

	mu    sync.Mutex
	epoch int
}

// NewMirror creates a watcher-side mirror. onReset may be nil.
func NewMirror(monitor *Monitor, terminal Terminal, transcript Transcript, onReset ResetFunc, log *logger.Logger) *Mirror {
	return &Mirror{
		monitor:    monitor,
		terminal:   terminal,
		transcript: transcript,
		onReset:    onReset,
		logger:     log.WithFields(zap.String("component", "sync_mirror")),
	}
}

// Epoch returns how many session resets the mirror has applied.
func (m *Mirror) Epoch() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.epoch
}

// Handle consumes one sync bus event. It is a bus.EventHandler.
func (m *Mirror) Handle(ctx context.Context, e *bus.Event) error {
	msg, err := FromEvent(e)
	if err != nil {
		m.logger.Warn("Dropping malformed sync message", zap.Error(err))
		return nil
	}
	if msg.Source != SourceController {
		// Only controllers publish; anything else is noise.
		return nil
	}

	switch msg.Type {
	case KindHeartbeat:
		m.monitor.ObserveHeartbeat()
		return nil

	case KindSessionReset:
		m.mu.Lock()
		m.epoch++
		m.mu.Unlock()
		if m.onReset != nil {
			if err := m.onReset(ctx); err != nil {
				return fmt.Errorf("session reset failed: %w", err)
			}
		}
		return nil

	case KindCommandStart:
		m.write(ctx, msg.Type, "$ "+msg.Command, "$ "+msg.Command+"\r\n")
		return nil

	case KindStdout, KindStderr:
		m.write(ctx, msg.Type, msg.Chunk, normalizeLineEndings(msg.Chunk))
		return nil

	case KindCommandExit:
		code := 0
		if msg.ExitCode != nil {
			code = *msg.ExitCode
		}
		line := fmt.Sprintf("[exit %d]", code)
		m.write(ctx, msg.Type, line, line+"\r\n")
		return nil

	case KindCommandError:
		line := "error: " + msg.Message
		m.write(ctx, msg.Type, line, line+"\r\n")
		return nil
	}
	return nil
}

// write mirrors one lifecycle event: verbatim into the transcript, with
// terminal line endings onto the terminal. Terminal and transcript failures
// are logged, not propagated.
func (m *Mirror) write(ctx context.Context, kind, logText, termText string) {
	if m.transcript != nil {
		if err := m.transcript.Append(ctx, kind, logText); err != nil {
			m.logger.Warn("Failed to append to transcript", zap.Error(err))
		}
	}
	if m.terminal != nil {
		if err := m.terminal.Write(ctx, termText); err != nil {
			m.logger.Warn("Failed to write to terminal", zap.Error(err))
		}
	}
}

// normalizeLineEndings converts chunk line endings to the terminal's CRLF.
func normalizeLineEndings(chunk string) string {
	return strings.ReplaceAll(strings.ReplaceAll(chunk, "\r\n", "\n"), "\n", "\r\n")
}
