// Package surface wires one hosting surface together: mode detection,
// session identity, sync channel, runtime driver, liveness, and the
// auto-activation classifier.
package surface

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/sandbridge/sandbridge/internal/common/config"
	"github.com/sandbridge/sandbridge/internal/common/logger"
	"github.com/sandbridge/sandbridge/internal/driver"
	"github.com/sandbridge/sandbridge/internal/events/bus"
	"github.com/sandbridge/sandbridge/internal/popout"
	"github.com/sandbridge/sandbridge/internal/runtime"
	"github.com/sandbridge/sandbridge/internal/session"
	"github.com/sandbridge/sandbridge/internal/transcript"
	"github.com/sandbridge/sandbridge/internal/transport"
	"github.com/sandbridge/sandbridge/internal/trigger"
)

// Mode is a surface's authority role, computed once at startup from its
// address and threaded through every component.
type Mode string

const (
	// ModeController owns the live runtime and executes commands.
	ModeController Mode = "controller"

	// ModeWatcher mirrors a controller's command lifecycle read-only.
	ModeWatcher Mode = "watcher"
)

// DetectMode reads the surface's role from its address.
func DetectMode(address string) Mode {
	if popout.IsPopoutAddress(address) {
		return ModeController
	}
	return ModeWatcher
}

// Surface is one mounted hosting surface (controller or watcher) for a
// sandbox session.
type Surface struct {
	mode      Mode
	sessionID string
	subject   string

	bus         bus.EventBus
	driver      *driver.Driver
	broadcaster *session.Broadcaster
	monitor     *session.Monitor
	mirror      *session.Mirror
	manager     *popout.Manager
	trigger     *trigger.Engine
	logger      *logger.Logger

	mu      sync.Mutex
	sub     bus.Subscription
	cancel  context.CancelFunc
	mounted bool
}

var _ transport.Handler = (*Surface)(nil)

// New assembles a surface from its address. A watcher with no session token
// in its address generates a fresh one; a controller reads the token its
// opener put there, so both sides land on one sync channel.
func New(cfg *config.Config, b bus.EventBus, rt runtime.Runtime, host popout.WindowHost, store transcript.Store, log *logger.Logger) (*Surface, error) {
	address := cfg.Surface.Address
	mode := DetectMode(address)

	sessionID := popout.SessionIDFromAddress(address)
	if mode == ModeWatcher && sessionID == "" {
		sessionID = popout.NewSessionID()
	}
	subject := popout.SyncChannelName(sessionID)

	log = log.WithFields(zap.String("surface_mode", string(mode))).WithSessionID(sessionID)

	s := &Surface{
		mode:      mode,
		sessionID: sessionID,
		subject:   subject,
		bus:       b,
		monitor:   session.NewMonitor(mode == ModeController),
		logger:    log,
	}

	addressFn := func() (string, error) {
		return popout.BuildPopoutAddress(cfg.Popout.TargetPath, sessionID, cfg.Popout.BaseURL)
	}
	s.manager = popout.NewManager(host, cfg.Popout.WindowName, cfg.Popout.Features, addressFn, nil, log)

	// The classifier keeps its own popout handle; the shared window name keeps
	// the host from stacking two popups anyway.
	triggerManager := popout.NewManager(host, cfg.Popout.WindowName, cfg.Popout.Features, addressFn, nil, log)
	s.trigger = trigger.NewEngine(triggerManager, log)

	if mode == ModeController {
		s.broadcaster = session.NewBroadcaster(b, subject, log)
		s.driver = driver.NewDriver(rt, s.broadcaster, store, log)
	} else {
		s.driver = driver.NewDriver(rt, nil, store, log)
		s.mirror = session.NewMirror(s.monitor, runtimeTerminal{rt}, store,
			func(ctx context.Context) error { return s.driver.Reset(ctx) }, log)
	}

	return s, nil
}

// Mode returns the surface's authority role.
func (s *Surface) Mode() Mode { return s.mode }

// SessionID returns the session token correlating this surface's sync channel.
func (s *Surface) SessionID() string { return s.sessionID }

// SyncChannel returns the bus subject this surface's session uses.
func (s *Surface) SyncChannel() string { return s.subject }

// Manager returns the surface's popout window manager.
func (s *Surface) Manager() *popout.Manager { return s.manager }

// Driver returns the surface's runtime driver.
func (s *Surface) Driver() *driver.Driver { return s.driver }

// Monitor returns the surface's liveness monitor.
func (s *Surface) Monitor() *session.Monitor { return s.monitor }

// Mount boots the surface: the controller starts its runtime and heartbeat,
// the watcher subscribes to the sync channel and starts the liveness poller.
func (s *Surface) Mount(ctx context.Context) error {
	s.mu.Lock()
	if s.mounted {
		s.mu.Unlock()
		return fmt.Errorf("surface already mounted")
	}
	s.mounted = true
	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.mu.Unlock()

	if err := s.driver.Boot(ctx); err != nil {
		return err
	}

	switch s.mode {
	case ModeController:
		s.broadcaster.Start(runCtx)
	case ModeWatcher:
		sub, err := s.bus.Subscribe(s.subject, s.mirror.Handle)
		if err != nil {
			return fmt.Errorf("failed to subscribe to sync channel: %w", err)
		}
		s.mu.Lock()
		s.sub = sub
		s.mu.Unlock()
		s.monitor.Start(runCtx)
	}

	s.logger.Info("Surface mounted", zap.String("subject", s.subject))
	return nil
}

// Unmount cancels timers, drops the bus subscription, and disposes the
// runtime. A vanished controller sends no goodbye; its watchers converge to
// offline on their own.
func (s *Surface) Unmount(ctx context.Context) error {
	s.mu.Lock()
	if !s.mounted {
		s.mu.Unlock()
		return nil
	}
	s.mounted = false
	cancel := s.cancel
	sub := s.sub
	s.cancel = nil
	s.sub = nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if sub != nil {
		if err := sub.Unsubscribe(); err != nil {
			s.logger.Warn("Failed to unsubscribe from sync channel", zap.Error(err))
		}
	}

	err := s.driver.Shutdown(ctx)
	s.logger.Info("Surface unmounted")
	return err
}

// Reset tears down and rebuilds the session runtime. On a controller this
// also announces session-reset so watchers rebuild in step.
func (s *Surface) Reset(ctx context.Context) error {
	return s.driver.Reset(ctx)
}

// HandleAgentEvent feeds one agent-activity notification to the classifier.
func (s *Surface) HandleAgentEvent(ctx context.Context, ev *transport.AgentEvent) {
	if s.mode == ModeWatcher {
		s.trigger.HandleAgentEvent(ev)
	}
}

// HandleTerminalEvent routes one terminal notification: the classifier sees
// every start item; the command itself is enqueued only on the surface that
// is currently authoritative.
func (s *Surface) HandleTerminalEvent(ctx context.Context, ev *transport.TerminalEvent) {
	if ev == nil || ev.Event != transport.TerminalEventStart || ev.Command == "" {
		return
	}

	if s.mode == ModeWatcher {
		s.trigger.HandleTerminalEvent(ev)
	}

	if s.authoritative() {
		s.driver.Submit(ctx, ev.Command)
	}
}

// authoritative applies the failover rule: a controller always executes; a
// watcher executes locally only with no evidence of a live controller, i.e.
// liveness is offline and it holds no non-closed popup reference.
func (s *Surface) authoritative() bool {
	if s.mode == ModeController {
		return true
	}
	return !s.monitor.Online() && !s.manager.HasOpenWindow()
}

// runtimeTerminal adapts a runtime's terminal to the mirror's Terminal.
type runtimeTerminal struct {
	rt runtime.Runtime
}

func (t runtimeTerminal) Write(ctx context.Context, data string) error {
	return t.rt.Write(ctx, data)
}
