package trigger

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/sandbridge/sandbridge/internal/common/logger"
	"github.com/sandbridge/sandbridge/internal/transport"
)

const (
	// LedgerCapacity bounds the seen-event and triggered-run ledgers.
	LedgerCapacity = 512

	// RunlessThrottle is the minimum gap between popout attempts for items
	// carrying no run identifier.
	RunlessThrottle = 5000 * time.Millisecond
)

// allowedActivityTypes gates which agent-activity notifications are
// classified at all.
var allowedActivityTypes = map[string]struct{}{
	"tool_use":    {},
	"tool_result": {},
	"action":      {},
}

// Opener surfaces the controller popout. popout.Manager satisfies it.
type Opener interface {
	OpenOrFocus() bool
}

// Engine inspects every inbound agent event and terminal command and decides
// whether to surface the popout: keyword classification, per-event dedup,
// at-most-one successful open per run, and a time throttle for run-less
// items. It keeps its own popout handle, independent of the surface's.
type Engine struct {
	opener Opener
	logger *logger.Logger
	now    func() time.Time

	mu          sync.Mutex
	seenEvents  *Ledger
	openedRuns  *Ledger
	lastAttempt time.Time
}

// NewEngine creates a classifier engine driving the given opener.
func NewEngine(opener Opener, log *logger.Logger) *Engine {
	return &Engine{
		opener:     opener,
		logger:     log.WithFields(zap.String("component", "trigger_engine")),
		now:        time.Now,
		seenEvents: NewLedger(LedgerCapacity),
		openedRuns: NewLedger(LedgerCapacity),
	}
}

// HandleAgentEvent classifies one agent-activity notification. It reports
// whether a popout open attempt succeeded.
func (e *Engine) HandleAgentEvent(ev *transport.AgentEvent) bool {
	if ev == nil {
		return false
	}
	if _, ok := allowedActivityTypes[ev.Type]; !ok {
		return false
	}
	if len(ev.Payload) == 0 {
		return false
	}
	if ev.EventID != "" && !e.seenEvents.Add(ev.EventID) {
		// At-least-once delivery; this item was already processed.
		return false
	}

	text := ev.Type + " " + ev.Stream + " " + FlattenPayload(ev.Payload)
	if !Classify(text) {
		return false
	}
	return e.attempt(ev.RunID)
}

// HandleTerminalEvent classifies one terminal notification. Only "start"
// items with non-empty command text qualify.
func (e *Engine) HandleTerminalEvent(ev *transport.TerminalEvent) bool {
	if ev == nil || ev.Event != transport.TerminalEventStart || ev.Command == "" {
		return false
	}
	if !Classify(ev.Command) {
		return false
	}
	return e.attempt(ev.RunID)
}

// attempt applies the trigger policy and, when allowed, asks the opener to
// surface the popout. Only a successful open records the run identifier, so
// a blocked popup can be retried by a later item in the same run.
func (e *Engine) attempt(runID string) bool {
	e.mu.Lock()
	if runID != "" {
		if e.openedRuns.Contains(runID) {
			e.mu.Unlock()
			return false
		}
	} else {
		if e.now().Sub(e.lastAttempt) < RunlessThrottle {
			e.mu.Unlock()
			return false
		}
		e.lastAttempt = e.now()
	}
	e.mu.Unlock()

	opened := e.opener.OpenOrFocus()
	if opened && runID != "" {
		e.openedRuns.Add(runID)
		e.logger.WithRunID(runID).Info("Popout surfaced for run")
	}
	if !opened {
		e.logger.WithRunID(runID).Debug("Popout open attempt failed")
	}
	return opened
}
