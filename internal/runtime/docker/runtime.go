package docker

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sandbridge/sandbridge/internal/common/config"
	"github.com/sandbridge/sandbridge/internal/common/logger"
	"github.com/sandbridge/sandbridge/internal/runtime"
)

// maxTerminalBytes bounds the in-memory terminal view. When exceeded, the
// oldest half is dropped.
const maxTerminalBytes = 256 * 1024

// Sandbox is the Docker-backed sandbox runtime: one container per booted
// runtime, commands executed via docker exec with streamed output.
type Sandbox struct {
	client *Client
	cfg    config.SandboxConfig
	logger *logger.Logger

	mu          sync.Mutex
	containerID string
	terminal    strings.Builder
	files       []string
}

var _ runtime.Runtime = (*Sandbox)(nil)

// NewSandbox creates a Docker-backed sandbox runtime.
func NewSandbox(client *Client, cfg config.SandboxConfig, log *logger.Logger) *Sandbox {
	return &Sandbox{
		client: client,
		cfg:    cfg,
		logger: log.WithFields(zap.String("component", "docker_sandbox")),
	}
}

// Boot creates and starts the sandbox container.
func (s *Sandbox) Boot(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.containerID != "" {
		return fmt.Errorf("sandbox already booted")
	}

	if err := s.client.Ping(ctx); err != nil {
		return err
	}

	// The image may already be present locally; a failed pull is not fatal.
	if err := s.client.PullImage(ctx, s.cfg.Image); err != nil {
		s.logger.Warn("Image pull failed, trying local image", zap.Error(err))
	}

	name := "sandbridge-sandbox-" + uuid.New().String()[:8]
	containerID, err := s.client.CreateContainer(ctx, ContainerConfig{
		Name:        name,
		Image:       s.cfg.Image,
		Cmd:         []string{"sleep", "infinity"},
		WorkingDir:  s.cfg.WorkingDir,
		NetworkMode: s.cfg.NetworkMode,
		Memory:      s.cfg.Memory,
		CPUQuota:    s.cfg.CPUQuota,
		Labels:      map[string]string{"sandbridge.role": "sandbox"},
	})
	if err != nil {
		return err
	}

	if err := s.client.StartContainer(ctx, containerID); err != nil {
		// Don't leak the created container on a failed start.
		_ = s.client.RemoveContainer(ctx, containerID, true)
		return err
	}

	s.containerID = containerID
	s.logger.Info("Sandbox booted", zap.String("container_id", containerID))
	return nil
}

// Execute runs one command inside the sandbox container.
func (s *Sandbox) Execute(ctx context.Context, command string, stdout, stderr runtime.OutputFunc) (int, error) {
	s.mu.Lock()
	containerID := s.containerID
	s.mu.Unlock()

	if containerID == "" {
		return -1, fmt.Errorf("sandbox not booted")
	}

	return s.client.Exec(ctx, containerID, command,
		&callbackWriter{fn: stdout},
		&callbackWriter{fn: stderr})
}

// Write appends data to the terminal view.
func (s *Sandbox) Write(ctx context.Context, data string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.terminal.WriteString(data)
	if s.terminal.Len() > maxTerminalBytes {
		kept := s.terminal.String()
		kept = kept[len(kept)/2:]
		s.terminal.Reset()
		s.terminal.WriteString(kept)
	}
	return nil
}

// ReadTerminal returns the current terminal contents.
func (s *Sandbox) ReadTerminal(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.terminal.String(), nil
}

// RefreshFiles refreshes the cached file view by listing the working directory.
func (s *Sandbox) RefreshFiles(ctx context.Context) error {
	s.mu.Lock()
	containerID := s.containerID
	workingDir := s.cfg.WorkingDir
	s.mu.Unlock()

	if containerID == "" {
		return fmt.Errorf("sandbox not booted")
	}

	var out bytes.Buffer
	if _, err := s.client.Exec(ctx, containerID, "ls -1A "+workingDir, &out, nil); err != nil {
		return fmt.Errorf("failed to refresh file view: %w", err)
	}

	var files []string
	for _, line := range strings.Split(out.String(), "\n") {
		if line = strings.TrimRight(line, "\r"); line != "" {
			files = append(files, line)
		}
	}

	s.mu.Lock()
	s.files = files
	s.mu.Unlock()
	return nil
}

// Files returns the file view from the last refresh.
func (s *Sandbox) Files() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.files))
	copy(out, s.files)
	return out
}

// Dispose stops and removes the sandbox container and clears the terminal
// and file views.
func (s *Sandbox) Dispose(ctx context.Context) error {
	s.mu.Lock()
	containerID := s.containerID
	s.containerID = ""
	s.terminal.Reset()
	s.files = nil
	s.mu.Unlock()

	if containerID == "" {
		return nil
	}

	if err := s.client.StopContainer(ctx, containerID, s.cfg.StopTimeoutDuration()); err != nil {
		s.logger.Warn("Failed to stop sandbox container", zap.Error(err))
	}
	if err := s.client.RemoveContainer(ctx, containerID, true); err != nil {
		return err
	}

	s.logger.Info("Sandbox disposed", zap.String("container_id", containerID))
	return nil
}

// callbackWriter adapts an OutputFunc to io.Writer for the exec stream.
type callbackWriter struct {
	fn runtime.OutputFunc
}

func (w *callbackWriter) Write(p []byte) (int, error) {
	if w.fn != nil {
		w.fn(string(p))
	}
	return len(p), nil
}
