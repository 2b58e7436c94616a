// Package transport consumes the upstream wire feed: agent-activity and
// terminal notifications delivered in order, at least once, each carrying a
// stable event identifier and an optional run identifier.
package transport

// AgentEvent is an inbound agent-activity notification.
type AgentEvent struct {
	Type    string         `json:"type"`
	EventID string         `json:"event_id"`
	RunID   string         `json:"run_id,omitempty"`
	Stream  string         `json:"stream,omitempty"`
	Payload map[string]any `json:"payload,omitempty"`
}

// TerminalEvent is an inbound terminal notification. Event "start" announces
// a command the agent wants executed.
type TerminalEvent struct {
	Type    string `json:"type"`
	Event   string `json:"event"`
	RunID   string `json:"run_id,omitempty"`
	Command string `json:"command,omitempty"`
}

// TerminalEventStart is the Event value announcing a command.
const TerminalEventStart = "start"
