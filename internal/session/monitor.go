package session

import (
	"context"
	"sync"
	"time"
)

// StaleAfter is the heartbeat age beyond which a controller counts as offline.
// It spans three heartbeat intervals plus slack, so a single dropped beacon
// does not flap liveness.
const StaleAfter = 3500 * time.Millisecond

// Monitor derives a controller-liveness boolean from heartbeat recency.
// A controller-mode surface is trivially online to itself; a watcher starts
// offline until the first heartbeat arrives.
type Monitor struct {
	self bool // this surface is the controller

	mu              sync.Mutex
	lastHeartbeatAt time.Time
	online          bool

	now func() time.Time
}

// NewMonitor creates a liveness monitor. selfController marks this surface as
// the controller, which pins liveness to true.
func NewMonitor(selfController bool) *Monitor {
	return &Monitor{
		self:   selfController,
		online: selfController,
		now:    time.Now,
	}
}

// ObserveHeartbeat records an inbound heartbeat and flips liveness online.
func (m *Monitor) ObserveHeartbeat() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastHeartbeatAt = m.now()
	m.online = true
}

// Online returns the last evaluated liveness state.
func (m *Monitor) Online() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.online
}

// LastHeartbeatAt returns when the last heartbeat was observed.
func (m *Monitor) LastHeartbeatAt() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastHeartbeatAt
}

// Poll re-evaluates liveness against the clock and returns the result.
func (m *Monitor) Poll() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.self {
		return true
	}
	if m.lastHeartbeatAt.IsZero() {
		m.online = false
		return false
	}
	m.online = m.now().Sub(m.lastHeartbeatAt) < StaleAfter
	return m.online
}

// Start polls liveness every HeartbeatInterval until ctx is cancelled. It
// runs its own goroutine and returns immediately. The poller and the
// controller's heartbeat ticker are deliberately unsynchronized; detection
// latency is bounded by StaleAfter.
func (m *Monitor) Start(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(HeartbeatInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.Poll()
			}
		}
	}()
}
