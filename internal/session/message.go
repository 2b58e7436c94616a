// Package session implements the heartbeat and sync channel correlating the
// surfaces of one sandbox session.
//
// The controller surface publishes liveness and command-lifecycle messages on
// the session's sync bus; watcher surfaces derive liveness from heartbeat
// recency and mirror the lifecycle into their own read-only runtime view.
// Watchers never publish; a controller never consumes its own bus.
package session

import (
	"fmt"

	"github.com/sandbridge/sandbridge/internal/events/bus"
)

// SourceController stamps every sync message; only a controller-mode surface
// publishes on the bus.
const SourceController = "controller"

// Sync message kinds.
const (
	KindHeartbeat    = "heartbeat"
	KindSessionReset = "session-reset"
	KindCommandStart = "command-start"
	KindStdout       = "stdout"
	KindStderr       = "stderr"
	KindCommandExit  = "command-exit"
	KindCommandError = "command-error"
)

// SyncMessage is one message on the session sync channel.
type SyncMessage struct {
	Source   string `json:"source"`
	Type     string `json:"type"`
	Command  string `json:"command,omitempty"`
	Chunk    string `json:"chunk,omitempty"`
	ExitCode *int   `json:"exitCode,omitempty"`
	Message  string `json:"message,omitempty"`
}

// Event converts the message into a bus event.
func (m SyncMessage) Event() *bus.Event {
	data := map[string]interface{}{}
	if m.Command != "" {
		data["command"] = m.Command
	}
	if m.Chunk != "" {
		data["chunk"] = m.Chunk
	}
	if m.ExitCode != nil {
		data["exitCode"] = *m.ExitCode
	}
	if m.Message != "" {
		data["message"] = m.Message
	}
	return bus.NewEvent(m.Type, SourceController, data)
}

// FromEvent decodes a bus event back into a SyncMessage.
func FromEvent(e *bus.Event) (SyncMessage, error) {
	msg := SyncMessage{Source: e.Source, Type: e.Type}

	switch e.Type {
	case KindHeartbeat, KindSessionReset, KindCommandStart, KindStdout,
		KindStderr, KindCommandExit, KindCommandError:
	default:
		return msg, fmt.Errorf("unknown sync message type %q", e.Type)
	}

	if v, ok := e.Data["command"].(string); ok {
		msg.Command = v
	}
	if v, ok := e.Data["chunk"].(string); ok {
		msg.Chunk = v
	}
	if v, ok := e.Data["message"].(string); ok {
		msg.Message = v
	}
	// Exit codes survive a JSON round-trip as float64.
	switch v := e.Data["exitCode"].(type) {
	case int:
		code := v
		msg.ExitCode = &code
	case float64:
		code := int(v)
		msg.ExitCode = &code
	}

	return msg, nil
}
