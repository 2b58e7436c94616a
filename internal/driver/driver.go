package driver

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/sandbridge/sandbridge/internal/common/logger"
	"github.com/sandbridge/sandbridge/internal/runtime"
)

// Publisher rebroadcasts the local command lifecycle over the sync channel.
// Controller surfaces pass their sync broadcaster; watcher surfaces running
// in failover pass nil, since watchers never republish.
type Publisher interface {
	SessionReset(ctx context.Context)
	CommandStart(ctx context.Context, command string)
	Stdout(ctx context.Context, chunk string)
	Stderr(ctx context.Context, chunk string)
	CommandExit(ctx context.Context, exitCode int)
	CommandError(ctx context.Context, message string)
}

// Transcript is the append-only log the driver records lifecycle events in.
type Transcript interface {
	Append(ctx context.Context, kind, text string) error
}

const bootBanner = "sandbox ready\r\n"

// Driver executes queued commands against a live sandbox runtime, one at a
// time, in arrival order. Output streams to the runtime terminal and the
// transcript as it arrives, and to the sync channel when a publisher is set.
type Driver struct {
	rt         runtime.Runtime
	queue      *CommandQueue
	publisher  Publisher
	transcript Transcript
	logger     *logger.Logger

	mu      sync.Mutex
	idle    *sync.Cond
	booted  bool
	running bool
}

// NewDriver creates a driver for the given runtime. publisher and transcript
// may be nil.
func NewDriver(rt runtime.Runtime, publisher Publisher, transcript Transcript, log *logger.Logger) *Driver {
	d := &Driver{
		rt:         rt,
		queue:      NewCommandQueue(),
		publisher:  publisher,
		transcript: transcript,
		logger:     log.WithFields(zap.String("component", "runtime_driver")),
	}
	d.idle = sync.NewCond(&d.mu)
	return d
}

// Boot initializes the runtime and writes the ready banner. Commands
// submitted before a successful boot stay queued.
func (d *Driver) Boot(ctx context.Context) error {
	if err := d.rt.Boot(ctx); err != nil {
		d.logger.Error("Runtime boot failed", zap.Error(err))
		return fmt.Errorf("runtime boot failed: %w", err)
	}

	d.mu.Lock()
	d.booted = true
	d.mu.Unlock()

	if err := d.rt.Write(ctx, bootBanner); err != nil {
		d.logger.Warn("Failed to write boot banner", zap.Error(err))
	}
	d.logger.Info("Runtime booted")

	d.drain(ctx)
	return nil
}

// Submit enqueues a command and drains the queue. If a command is already
// executing, the new one waits its turn; the in-flight drain picks it up.
func (d *Driver) Submit(ctx context.Context, command string) {
	d.queue.Enqueue(command)
	d.drain(ctx)
}

// Reset tears down the current runtime, drops all pending commands, and
// boots a fresh one. The controller announces the reset first so watchers
// rebuild in step. An in-flight command finishes before the runtime is
// disposed; the runtime never sees two executions at once.
func (d *Driver) Reset(ctx context.Context) error {
	if d.publisher != nil {
		d.publisher.SessionReset(ctx)
	}

	d.quiesce()
	d.queue.Clear()

	if err := d.rt.Dispose(ctx); err != nil {
		d.logger.Warn("Runtime dispose failed during reset", zap.Error(err))
	}

	d.logger.Info("Session reset, rebooting runtime")
	return d.Boot(ctx)
}

// Shutdown disposes the runtime without rebooting it. An in-flight command
// finishes first; pending commands stay queued and drain after a later
// successful Boot or Reset.
func (d *Driver) Shutdown(ctx context.Context) error {
	d.quiesce()
	return d.rt.Dispose(ctx)
}

// quiesce marks the runtime down and waits for the in-flight command, if any,
// to finish. Clearing booted first stops the drain loop from picking up the
// next queued command while we wait.
func (d *Driver) quiesce() {
	d.mu.Lock()
	d.booted = false
	for d.running {
		d.idle.Wait()
	}
	d.mu.Unlock()
}

// QueueLen returns the number of commands waiting to run.
func (d *Driver) QueueLen() int {
	return d.queue.Len()
}

// Running reports whether a command is currently executing.
func (d *Driver) Running() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.running
}

// Booted reports whether the runtime is up.
func (d *Driver) Booted() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.booted
}

// drain runs queued commands until the queue is empty. It returns without
// doing anything when the runtime is down or another drain holds the guard.
func (d *Driver) drain(ctx context.Context) {
	for {
		d.mu.Lock()
		if !d.booted || d.running {
			d.mu.Unlock()
			return
		}
		command, ok := d.queue.Dequeue()
		if !ok {
			d.mu.Unlock()
			return
		}
		d.running = true
		d.mu.Unlock()

		d.runOne(ctx, command)

		d.mu.Lock()
		d.running = false
		d.idle.Broadcast()
		d.mu.Unlock()
	}
}

// runOne executes a single command end to end. A failed command does not
// stop the queue.
func (d *Driver) runOne(ctx context.Context, command string) {
	d.echo(ctx, "command-start", "$ "+command)
	if d.publisher != nil {
		d.publisher.CommandStart(ctx, command)
	}

	exitCode, err := d.rt.Execute(ctx, command,
		func(chunk string) {
			d.stream(ctx, "stdout", chunk)
			if d.publisher != nil {
				d.publisher.Stdout(ctx, chunk)
			}
		},
		func(chunk string) {
			d.stream(ctx, "stderr", chunk)
			if d.publisher != nil {
				d.publisher.Stderr(ctx, chunk)
			}
		})

	if err != nil {
		d.logger.Warn("Command execution failed",
			zap.String("command", command),
			zap.Error(err))
		d.echo(ctx, "command-error", "error: "+err.Error())
		if d.publisher != nil {
			d.publisher.CommandError(ctx, err.Error())
		}
	} else {
		d.echo(ctx, "command-exit", fmt.Sprintf("[exit %d]", exitCode))
		if d.publisher != nil {
			d.publisher.CommandExit(ctx, exitCode)
		}
	}

	// The file view refresh is best effort; a stale listing fixes itself on
	// the next command.
	if err := d.rt.RefreshFiles(ctx); err != nil {
		d.logger.Debug("File view refresh failed", zap.Error(err))
	}
}

// echo writes one lifecycle line to the terminal and the transcript.
func (d *Driver) echo(ctx context.Context, kind, line string) {
	if d.transcript != nil {
		if err := d.transcript.Append(ctx, kind, line); err != nil {
			d.logger.Warn("Failed to append to transcript", zap.Error(err))
		}
	}
	if err := d.rt.Write(ctx, line+"\r\n"); err != nil {
		d.logger.Warn("Failed to write to terminal", zap.Error(err))
	}
}

// stream writes one output chunk verbatim to the terminal and the transcript.
func (d *Driver) stream(ctx context.Context, kind, chunk string) {
	if d.transcript != nil {
		if err := d.transcript.Append(ctx, kind, chunk); err != nil {
			d.logger.Warn("Failed to append to transcript", zap.Error(err))
		}
	}
	if err := d.rt.Write(ctx, chunk); err != nil {
		d.logger.Warn("Failed to write to terminal", zap.Error(err))
	}
}
