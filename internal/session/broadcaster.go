package session

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/sandbridge/sandbridge/internal/common/logger"
	"github.com/sandbridge/sandbridge/internal/events/bus"
)

// HeartbeatInterval is how often a controller publishes liveness.
const HeartbeatInterval = 1000 * time.Millisecond

// Broadcaster publishes sync messages for a controller surface: a heartbeat
// on start and every HeartbeatInterval, plus one message per local command
// lifecycle event.
type Broadcaster struct {
	bus     bus.EventBus
	subject string
	logger  *logger.Logger
}

// NewBroadcaster creates a broadcaster publishing on the given sync subject.
func NewBroadcaster(b bus.EventBus, subject string, log *logger.Logger) *Broadcaster {
	return &Broadcaster{
		bus:     b,
		subject: subject,
		logger:  log.WithFields(zap.String("component", "sync_broadcaster"), zap.String("subject", subject)),
	}
}

// Start publishes an immediate heartbeat and keeps publishing on a ticker
// until ctx is cancelled. It runs its own goroutine and returns immediately.
func (b *Broadcaster) Start(ctx context.Context) {
	b.Heartbeat(ctx)

	go func() {
		ticker := time.NewTicker(HeartbeatInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				b.Heartbeat(ctx)
			}
		}
	}()
}

func (b *Broadcaster) publish(ctx context.Context, msg SyncMessage) {
	if err := b.bus.Publish(ctx, b.subject, msg.Event()); err != nil {
		b.logger.Warn("Failed to publish sync message",
			zap.String("type", msg.Type),
			zap.Error(err))
	}
}

// Heartbeat publishes a liveness beacon.
func (b *Broadcaster) Heartbeat(ctx context.Context) {
	b.publish(ctx, SyncMessage{Source: SourceController, Type: KindHeartbeat})
}

// SessionReset tells watchers to tear down and rebuild their mirroring runtime.
func (b *Broadcaster) SessionReset(ctx context.Context) {
	b.publish(ctx, SyncMessage{Source: SourceController, Type: KindSessionReset})
}

// CommandStart announces that a command began executing.
func (b *Broadcaster) CommandStart(ctx context.Context, command string) {
	b.publish(ctx, SyncMessage{Source: SourceController, Type: KindCommandStart, Command: command})
}

// Stdout forwards a stdout chunk.
func (b *Broadcaster) Stdout(ctx context.Context, chunk string) {
	b.publish(ctx, SyncMessage{Source: SourceController, Type: KindStdout, Chunk: chunk})
}

// Stderr forwards a stderr chunk.
func (b *Broadcaster) Stderr(ctx context.Context, chunk string) {
	b.publish(ctx, SyncMessage{Source: SourceController, Type: KindStderr, Chunk: chunk})
}

// CommandExit announces command completion with its exit code.
func (b *Broadcaster) CommandExit(ctx context.Context, exitCode int) {
	b.publish(ctx, SyncMessage{Source: SourceController, Type: KindCommandExit, ExitCode: &exitCode})
}

// CommandError announces a command that failed to execute.
func (b *Broadcaster) CommandError(ctx context.Context, message string) {
	b.publish(ctx, SyncMessage{Source: SourceController, Type: KindCommandError, Message: message})
}
