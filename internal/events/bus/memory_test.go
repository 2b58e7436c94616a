package bus

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/sandbridge/sandbridge/internal/common/logger"
)

func newTestLogger(t *testing.T) *logger.Logger {
	log, err := logger.NewLogger(logger.LoggingConfig{
		Level:      "error",
		Format:     "console",
		OutputPath: "stdout",
	})
	if err != nil {
		t.Fatalf("Failed to create logger: %v", err)
	}
	return log
}

func TestNewMemoryEventBus(t *testing.T) {
	bus := NewMemoryEventBus(newTestLogger(t))

	if bus == nil {
		t.Fatal("Expected non-nil bus")
	}
	if !bus.IsConnected() {
		t.Error("Expected bus to be connected")
	}
}

func TestMemoryEventBus_PublishSubscribe(t *testing.T) {
	bus := NewMemoryEventBus(newTestLogger(t))
	defer bus.Close()

	ctx := context.Background()
	var received *Event

	sub, err := bus.Subscribe("sandbox.sync.abc", func(ctx context.Context, event *Event) error {
		received = event
		return nil
	})
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	defer func() {
		_ = sub.Unsubscribe()
	}()

	event := NewEvent("heartbeat", "controller", map[string]interface{}{"key": "value"})
	if err := bus.Publish(ctx, "sandbox.sync.abc", event); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	if received == nil {
		t.Fatal("Event was not delivered")
	}
	if received.ID != event.ID {
		t.Errorf("Expected event ID %s, got %s", event.ID, received.ID)
	}
	if received.Type != event.Type {
		t.Errorf("Expected event type %s, got %s", event.Type, received.Type)
	}
}

func TestMemoryEventBus_DeliveryOrder(t *testing.T) {
	bus := NewMemoryEventBus(newTestLogger(t))
	defer bus.Close()

	ctx := context.Background()
	var types []string

	sub, err := bus.Subscribe("sandbox.sync.ord", func(ctx context.Context, event *Event) error {
		types = append(types, event.Type)
		return nil
	})
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	defer func() {
		_ = sub.Unsubscribe()
	}()

	for _, kind := range []string{"command-start", "stdout", "stdout", "command-exit"} {
		if err := bus.Publish(ctx, "sandbox.sync.ord", NewEvent(kind, "controller", nil)); err != nil {
			t.Fatalf("Publish failed: %v", err)
		}
	}

	want := []string{"command-start", "stdout", "stdout", "command-exit"}
	if len(types) != len(want) {
		t.Fatalf("Expected %d events, got %d", len(want), len(types))
	}
	for i, kind := range want {
		if types[i] != kind {
			t.Errorf("Event %d: expected %s, got %s", i, kind, types[i])
		}
	}
}

func TestMemoryEventBus_MultipleSubscribers(t *testing.T) {
	bus := NewMemoryEventBus(newTestLogger(t))
	defer bus.Close()

	ctx := context.Background()
	var count int32

	for i := 0; i < 3; i++ {
		sub, err := bus.Subscribe("sandbox.sync.multi", func(ctx context.Context, event *Event) error {
			atomic.AddInt32(&count, 1)
			return nil
		})
		if err != nil {
			t.Fatalf("Subscribe %d failed: %v", i, err)
		}
		defer func() {
			_ = sub.Unsubscribe()
		}()
	}

	if err := bus.Publish(ctx, "sandbox.sync.multi", NewEvent("heartbeat", "controller", nil)); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	if atomic.LoadInt32(&count) != 3 {
		t.Errorf("Expected 3 handlers to be called, got %d", count)
	}
}

func TestMemoryEventBus_Unsubscribe(t *testing.T) {
	bus := NewMemoryEventBus(newTestLogger(t))
	defer bus.Close()

	ctx := context.Background()
	var count int32

	sub, err := bus.Subscribe("sandbox.sync.unsub", func(ctx context.Context, event *Event) error {
		atomic.AddInt32(&count, 1)
		return nil
	})
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}

	if err := bus.Publish(ctx, "sandbox.sync.unsub", NewEvent("heartbeat", "controller", nil)); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}
	if err := sub.Unsubscribe(); err != nil {
		t.Fatalf("Unsubscribe failed: %v", err)
	}
	if sub.IsValid() {
		t.Error("Expected subscription to be invalid after unsubscribe")
	}
	if err := bus.Publish(ctx, "sandbox.sync.unsub", NewEvent("heartbeat", "controller", nil)); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	if atomic.LoadInt32(&count) != 1 {
		t.Errorf("Expected 1 delivery, got %d", count)
	}
}

func TestMemoryEventBus_WildcardSubjects(t *testing.T) {
	bus := NewMemoryEventBus(newTestLogger(t))
	defer bus.Close()

	ctx := context.Background()
	var starCount, arrowCount int32

	subStar, err := bus.Subscribe("sandbox.sync.*", func(ctx context.Context, event *Event) error {
		atomic.AddInt32(&starCount, 1)
		return nil
	})
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	defer func() { _ = subStar.Unsubscribe() }()

	subArrow, err := bus.Subscribe("sandbox.>", func(ctx context.Context, event *Event) error {
		atomic.AddInt32(&arrowCount, 1)
		return nil
	})
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	defer func() { _ = subArrow.Unsubscribe() }()

	// Matches both patterns
	_ = bus.Publish(ctx, "sandbox.sync.abc123", NewEvent("heartbeat", "controller", nil))
	// Matches only the > pattern (two tokens after the prefix)
	_ = bus.Publish(ctx, "sandbox.sync.abc123.extra", NewEvent("heartbeat", "controller", nil))
	// Matches neither
	_ = bus.Publish(ctx, "other.sync.abc123", NewEvent("heartbeat", "controller", nil))

	if atomic.LoadInt32(&starCount) != 1 {
		t.Errorf("Expected 1 star-pattern delivery, got %d", starCount)
	}
	if atomic.LoadInt32(&arrowCount) != 2 {
		t.Errorf("Expected 2 arrow-pattern deliveries, got %d", arrowCount)
	}
}

func TestMemoryEventBus_Close(t *testing.T) {
	bus := NewMemoryEventBus(newTestLogger(t))
	bus.Close()

	if bus.IsConnected() {
		t.Error("Expected bus to be disconnected after close")
	}
	if err := bus.Publish(context.Background(), "sandbox.sync", NewEvent("heartbeat", "controller", nil)); err == nil {
		t.Error("Expected publish on closed bus to fail")
	}
	if _, err := bus.Subscribe("sandbox.sync", func(ctx context.Context, event *Event) error { return nil }); err == nil {
		t.Error("Expected subscribe on closed bus to fail")
	}
}
