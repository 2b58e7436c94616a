package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/sandbridge/sandbridge/internal/common/config"
	"github.com/sandbridge/sandbridge/internal/common/logger"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 1024 * 1024 // 1MB
)

// Handler consumes decoded wire items. The feed calls it from its read
// goroutine, one item at a time, preserving wire order.
type Handler interface {
	HandleAgentEvent(ctx context.Context, ev *AgentEvent)
	HandleTerminalEvent(ctx context.Context, ev *TerminalEvent)
}

// Feed is a websocket client for the upstream agent event stream. It
// reconnects with a fixed delay, up to the configured attempt limit.
type Feed struct {
	cfg     config.TransportConfig
	handler Handler
	logger  *logger.Logger
	dialer  *websocket.Dialer
}

// NewFeed creates an upstream feed client.
func NewFeed(cfg config.TransportConfig, handler Handler, log *logger.Logger) *Feed {
	return &Feed{
		cfg:     cfg,
		handler: handler,
		logger:  log.WithFields(zap.String("component", "transport_feed"), zap.String("url", cfg.URL)),
		dialer:  websocket.DefaultDialer,
	}
}

// Run connects and consumes the feed until ctx is cancelled. A dropped
// connection is retried after the reconnect delay; Run returns an error once
// the attempt limit is exhausted.
func (f *Feed) Run(ctx context.Context) error {
	attempts := 0
	for {
		if err := ctx.Err(); err != nil {
			return nil
		}

		conn, _, err := f.dialer.DialContext(ctx, f.cfg.URL, nil)
		if err != nil {
			attempts++
			f.logger.Warn("Feed connection failed",
				zap.Int("attempt", attempts),
				zap.Error(err))
			if f.cfg.MaxReconnects > 0 && attempts >= f.cfg.MaxReconnects {
				return fmt.Errorf("feed gave up after %d attempts: %w", attempts, err)
			}
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(f.cfg.ReconnectDelayDuration()):
			}
			continue
		}

		attempts = 0
		f.logger.Info("Feed connected")
		f.readPump(ctx, conn)

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(f.cfg.ReconnectDelayDuration()):
		}
	}
}

// readPump consumes one connection until it drops or ctx is cancelled.
func (f *Feed) readPump(ctx context.Context, conn *websocket.Conn) {
	defer conn.Close()

	// Close the connection when ctx ends so ReadMessage unblocks.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(writeWait))
			conn.Close()
		case <-done:
		}
	}()

	conn.SetReadLimit(maxMessageSize)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	pingTicker := time.NewTicker(pingPeriod)
	defer pingTicker.Stop()
	go func() {
		for {
			select {
			case <-done:
				return
			case <-pingTicker.C:
				if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
					return
				}
			}
		}
	}()

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				f.logger.Warn("Feed read error", zap.Error(err))
			}
			return
		}
		f.dispatch(ctx, message)
	}
}

// dispatch decodes one frame and routes it by its type field.
func (f *Feed) dispatch(ctx context.Context, message []byte) {
	var probe struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(message, &probe); err != nil {
		f.logger.Warn("Invalid feed frame", zap.Error(err))
		return
	}

	switch probe.Type {
	case "terminal":
		var ev TerminalEvent
		if err := json.Unmarshal(message, &ev); err != nil {
			f.logger.Warn("Invalid terminal item", zap.Error(err))
			return
		}
		f.handler.HandleTerminalEvent(ctx, &ev)
	default:
		var ev AgentEvent
		if err := json.Unmarshal(message, &ev); err != nil {
			f.logger.Warn("Invalid agent event", zap.Error(err))
			return
		}
		f.handler.HandleAgentEvent(ctx, &ev)
	}
}
