package session

import (
	"testing"
	"time"
)

// fakeClock drives a Monitor through time without sleeping.
type fakeClock struct {
	t time.Time
}

func (c *fakeClock) now() time.Time { return c.t }

func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newFakeClockMonitor(selfController bool) (*Monitor, *fakeClock) {
	clock := &fakeClock{t: time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)}
	m := NewMonitor(selfController)
	m.now = clock.now
	return m, clock
}

func TestMonitorControllerAlwaysOnline(t *testing.T) {
	m, clock := newFakeClockMonitor(true)

	if !m.Online() {
		t.Error("controller monitor should start online")
	}
	clock.advance(10 * time.Second)
	if !m.Poll() {
		t.Error("controller monitor should stay online without heartbeats")
	}
}

func TestMonitorWatcherStartsOffline(t *testing.T) {
	m, _ := newFakeClockMonitor(false)

	if m.Online() {
		t.Error("watcher monitor should start offline")
	}
	if m.Poll() {
		t.Error("watcher monitor should poll offline before any heartbeat")
	}
}

func TestMonitorHeartbeatFlipsOnline(t *testing.T) {
	m, clock := newFakeClockMonitor(false)

	m.ObserveHeartbeat()
	if !m.Online() {
		t.Error("heartbeat should flip liveness online")
	}

	// Fresh enough: just under the staleness threshold.
	clock.advance(3400 * time.Millisecond)
	if !m.Poll() {
		t.Error("liveness should hold below the staleness threshold")
	}
}

func TestMonitorStaleHeartbeatFlipsOffline(t *testing.T) {
	m, clock := newFakeClockMonitor(false)

	m.ObserveHeartbeat()
	clock.advance(4000 * time.Millisecond)

	if m.Poll() {
		t.Error("liveness should flip offline after a 4000ms heartbeat gap")
	}
	if m.Online() {
		t.Error("Online should reflect the polled offline state")
	}

	// A vanished controller that comes back re-establishes liveness.
	m.ObserveHeartbeat()
	if !m.Poll() {
		t.Error("a fresh heartbeat should flip liveness back online")
	}
}
