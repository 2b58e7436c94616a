package popout

import (
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/sandbridge/sandbridge/internal/common/logger"
)

// ErrWindowBlocked is returned by a WindowHost when the host refuses to open
// a popup (e.g. a popup blocker).
var ErrWindowBlocked = errors.New("popout window blocked by host")

// WindowRef is a handle to an open popout window.
type WindowRef interface {
	// Closed reports whether the window has been closed.
	Closed() bool

	// Focus brings the window to the foreground.
	Focus()

	// Close closes the window.
	Close()

	// OnClose registers a callback invoked when the window closes. Hosts may
	// refuse listener attachment (e.g. cross-origin restrictions); callers
	// must tolerate the error.
	OnClose(fn func()) error
}

// WindowHost opens popup windows on behalf of a surface. Open returns
// ErrWindowBlocked (or wraps it) when the popup was refused.
type WindowHost interface {
	Open(name, address, features string) (WindowRef, error)
}

// AddressFunc computes the address a popout window should load.
type AddressFunc func() (string, error)

// Manager opens and focuses a single popout window. Each Manager holds at
// most one window reference; the reusable window name keeps the host from
// stacking duplicate popups even across managers.
type Manager struct {
	host      WindowHost
	name      string
	features  string
	addressFn AddressFunc
	onBlocked func()
	logger    *logger.Logger

	mu  sync.Mutex
	ref WindowRef
}

// NewManager creates a popout window manager. onBlocked may be nil.
func NewManager(host WindowHost, name, features string, addressFn AddressFunc, onBlocked func(), log *logger.Logger) *Manager {
	return &Manager{
		host:      host,
		name:      name,
		features:  features,
		addressFn: addressFn,
		onBlocked: onBlocked,
		logger:    log.WithFields(zap.String("component", "popout_manager")),
	}
}

// OpenOrFocus focuses the held window if it is still open, otherwise asks the
// host to open a new one. It reports whether a window is open and focused
// afterwards. A blocked popup invokes the onBlocked callback and stores no
// reference, so a later call retries the open.
func (m *Manager) OpenOrFocus() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.ref != nil && !m.ref.Closed() {
		m.ref.Focus()
		return true
	}
	m.ref = nil

	address, err := m.addressFn()
	if err != nil {
		m.logger.Error("Failed to compute popout address", zap.Error(err))
		return false
	}

	ref, err := m.host.Open(m.name, address, m.features)
	if err != nil {
		m.logger.Warn("Popout window refused",
			zap.String("window", m.name),
			zap.Error(err))
		if m.onBlocked != nil {
			m.onBlocked()
		}
		return false
	}

	m.ref = ref

	// The close listener keeps the held reference honest. Attachment can be
	// refused in restricted hosts; then a stale handle is focused instead of
	// replaced, which self-corrects once the user closes it.
	if err := ref.OnClose(func() { m.clear(ref) }); err != nil {
		m.logger.Debug("Close listener attachment refused", zap.Error(err))
	}

	ref.Focus()
	m.logger.Info("Popout window opened", zap.String("window", m.name))
	return true
}

// HasOpenWindow reports whether the manager holds a non-closed window reference.
func (m *Manager) HasOpenWindow() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ref != nil && !m.ref.Closed()
}

func (m *Manager) clear(ref WindowRef) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ref == ref {
		m.ref = nil
	}
}
