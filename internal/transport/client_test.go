package transport

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sandbridge/sandbridge/internal/common/config"
	"github.com/sandbridge/sandbridge/internal/common/logger"
)

type recordingHandler struct {
	mu        sync.Mutex
	agents    []AgentEvent
	terminals []TerminalEvent
}

func (h *recordingHandler) HandleAgentEvent(ctx context.Context, ev *AgentEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.agents = append(h.agents, *ev)
}

func (h *recordingHandler) HandleTerminalEvent(ctx context.Context, ev *TerminalEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.terminals = append(h.terminals, *ev)
}

func (h *recordingHandler) counts() (int, int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.agents), len(h.terminals)
}

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.NewLogger(logger.LoggingConfig{Level: "error", Format: "console"})
	require.NoError(t, err)
	return log
}

func TestFeedDispatchRoutesByType(t *testing.T) {
	h := &recordingHandler{}
	f := NewFeed(config.TransportConfig{URL: "ws://unused"}, h, testLogger(t))
	ctx := context.Background()

	f.dispatch(ctx, []byte(`{"type":"terminal","event":"start","run_id":"r1","command":"ls"}`))
	f.dispatch(ctx, []byte(`{"type":"tool_use","event_id":"e1","run_id":"r1","payload":{"tool":"sandbox"}}`))
	f.dispatch(ctx, []byte(`not json`))

	agents, terminals := h.counts()
	require.Equal(t, 1, agents)
	require.Equal(t, 1, terminals)
	assert.Equal(t, "ls", h.terminals[0].Command)
	assert.Equal(t, "e1", h.agents[0].EventID)
	assert.Equal(t, "sandbox", h.agents[0].Payload["tool"])
}

func TestFeedConsumesStreamInOrder(t *testing.T) {
	upgrader := websocket.Upgrader{}
	frames := []string{
		`{"type":"terminal","event":"start","run_id":"r1","command":"echo hi"}`,
		`{"type":"tool_use","event_id":"e1","payload":{"tool":"browser"}}`,
		`{"type":"terminal","event":"start","run_id":"r1","command":"pwd"}`,
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		defer conn.Close()
		for _, frame := range frames {
			require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(frame)))
		}
		_ = conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	}))
	defer srv.Close()

	h := &recordingHandler{}
	f := NewFeed(config.TransportConfig{
		URL:            "ws" + strings.TrimPrefix(srv.URL, "http"),
		ReconnectDelay: 0,
		MaxReconnects:  1,
	}, h, testLogger(t))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	done := make(chan struct{})
	go func() {
		_ = f.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool {
		agents, terminals := h.counts()
		return agents == 1 && terminals == 2
	}, 3*time.Second, 10*time.Millisecond)

	cancel()
	<-done

	assert.Equal(t, "echo hi", h.terminals[0].Command)
	assert.Equal(t, "pwd", h.terminals[1].Command)
}
