// Package v1 contains the public API types for sandbridge.
package v1

import "time"

// SurfaceStatus describes the mounted surface and its session.
type SurfaceStatus struct {
	Mode             string    `json:"mode"` // controller or watcher
	SessionID        string    `json:"session_id"`
	SyncChannel      string    `json:"sync_channel"`
	ControllerOnline bool      `json:"controller_online"`
	LastHeartbeatAt  time.Time `json:"last_heartbeat_at,omitempty"`
	RuntimeBooted    bool      `json:"runtime_booted"`
	QueueLength      int       `json:"queue_length"`
	CommandRunning   bool      `json:"command_running"`
	PopoutOpen       bool      `json:"popout_open"`
}

// PopoutOpenResponse reports the outcome of a popout open request.
type PopoutOpenResponse struct {
	Opened bool `json:"opened"`
}

// TranscriptEntry is one recorded lifecycle event.
type TranscriptEntry struct {
	ID        int64     `json:"id"`
	Kind      string    `json:"kind"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
}

// TranscriptResponse is the transcript tail.
type TranscriptResponse struct {
	Entries []TranscriptEntry `json:"entries"`
}

// RemoteViewerResponse carries a validated display endpoint.
type RemoteViewerResponse struct {
	URL string `json:"url"`
}
