package popout

import (
	"fmt"
	"os/exec"
	"sync"

	"go.uber.org/zap"

	"github.com/sandbridge/sandbridge/internal/common/logger"
)

// ProcessHost opens popout windows by spawning a viewer command with the
// popout address as its argument. The spawned process stands in for the
// window: alive means open, exited means closed.
type ProcessHost struct {
	command string
	logger  *logger.Logger
}

// NewProcessHost creates a host launching the given command per window.
func NewProcessHost(command string, log *logger.Logger) *ProcessHost {
	return &ProcessHost{
		command: command,
		logger:  log.WithFields(zap.String("component", "process_host")),
	}
}

// Open spawns the viewer process. A spawn failure reports the window as
// blocked.
func (h *ProcessHost) Open(name, address, features string) (WindowRef, error) {
	cmd := exec.Command(h.command, address)
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrWindowBlocked, h.command, err)
	}

	ref := &processWindow{cmd: cmd, done: make(chan struct{})}
	go func() {
		_ = cmd.Wait()
		ref.markClosed()
	}()

	h.logger.Info("Viewer process spawned",
		zap.String("window", name),
		zap.String("command", h.command),
		zap.Int("pid", cmd.Process.Pid))
	return ref, nil
}

type processWindow struct {
	cmd *exec.Cmd

	mu        sync.Mutex
	closed    bool
	listeners []func()
	done      chan struct{}
}

func (w *processWindow) markClosed() {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	w.closed = true
	listeners := w.listeners
	w.listeners = nil
	close(w.done)
	w.mu.Unlock()

	for _, fn := range listeners {
		fn()
	}
}

func (w *processWindow) Closed() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.closed
}

// Focus is a no-op; a separate process has no focus to steal.
func (w *processWindow) Focus() {}

func (w *processWindow) Close() {
	w.mu.Lock()
	closed := w.closed
	w.mu.Unlock()
	if closed {
		return
	}
	_ = w.cmd.Process.Kill()
}

func (w *processWindow) OnClose(fn func()) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return fmt.Errorf("window already closed")
	}
	w.listeners = append(w.listeners, fn)
	return nil
}
