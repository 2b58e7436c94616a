package session

import (
	"context"
	"strings"
	"testing"

	"github.com/sandbridge/sandbridge/internal/common/logger"
	"github.com/sandbridge/sandbridge/internal/events/bus"
)

type recordingTerminal struct {
	writes []string
}

func (r *recordingTerminal) Write(ctx context.Context, data string) error {
	r.writes = append(r.writes, data)
	return nil
}

type recordingTranscript struct {
	kinds []string
	texts []string
}

func (r *recordingTranscript) Append(ctx context.Context, kind, text string) error {
	r.kinds = append(r.kinds, kind)
	r.texts = append(r.texts, text)
	return nil
}

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.NewLogger(logger.LoggingConfig{Level: "error", Format: "console"})
	if err != nil {
		t.Fatalf("Failed to create logger: %v", err)
	}
	return log
}

func controllerEvent(msg SyncMessage) *bus.Event {
	msg.Source = SourceController
	return msg.Event()
}

func TestMirrorCommandLifecycleOrdering(t *testing.T) {
	term := &recordingTerminal{}
	trans := &recordingTranscript{}
	monitor := NewMonitor(false)
	m := NewMirror(monitor, term, trans, nil, testLogger(t))

	ctx := context.Background()
	_ = m.Handle(ctx, controllerEvent(SyncMessage{Type: KindCommandStart, Command: "ls -la"}))
	_ = m.Handle(ctx, controllerEvent(SyncMessage{Type: KindStdout, Chunk: "total 4\n"}))
	_ = m.Handle(ctx, controllerEvent(SyncMessage{Type: KindStdout, Chunk: "README.md\n"}))
	code := 0
	_ = m.Handle(ctx, controllerEvent(SyncMessage{Type: KindCommandExit, ExitCode: &code}))

	wantKinds := []string{KindCommandStart, KindStdout, KindStdout, KindCommandExit}
	if len(trans.kinds) != len(wantKinds) {
		t.Fatalf("expected %d transcript entries, got %d", len(wantKinds), len(trans.kinds))
	}
	for i, kind := range wantKinds {
		if trans.kinds[i] != kind {
			t.Errorf("transcript entry %d: expected %s, got %s", i, kind, trans.kinds[i])
		}
	}
	if trans.texts[0] != "$ ls -la" {
		t.Errorf("expected start line %q, got %q", "$ ls -la", trans.texts[0])
	}
	if trans.texts[3] != "[exit 0]" {
		t.Errorf("expected exit line %q, got %q", "[exit 0]", trans.texts[3])
	}

	// Terminal writes carry CRLF line endings.
	if term.writes[1] != "total 4\r\n" {
		t.Errorf("expected normalized chunk %q, got %q", "total 4\r\n", term.writes[1])
	}
}

func TestMirrorNormalizesLineEndings(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"a\nb\n", "a\r\nb\r\n"},
		{"a\r\nb\r\n", "a\r\nb\r\n"},
		{"no newline", "no newline"},
	}
	for _, tt := range tests {
		if got := normalizeLineEndings(tt.in); got != tt.want {
			t.Errorf("normalizeLineEndings(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestMirrorCommandError(t *testing.T) {
	term := &recordingTerminal{}
	m := NewMirror(NewMonitor(false), term, nil, nil, testLogger(t))

	_ = m.Handle(context.Background(), controllerEvent(SyncMessage{Type: KindCommandError, Message: "exec failed"}))

	if len(term.writes) != 1 || !strings.HasPrefix(term.writes[0], "error: exec failed") {
		t.Errorf("expected error line on terminal, got %v", term.writes)
	}
}

func TestMirrorHeartbeatFeedsMonitor(t *testing.T) {
	monitor := NewMonitor(false)
	m := NewMirror(monitor, nil, nil, nil, testLogger(t))

	if monitor.Online() {
		t.Fatal("watcher monitor should start offline")
	}
	_ = m.Handle(context.Background(), controllerEvent(SyncMessage{Type: KindHeartbeat}))
	if !monitor.Online() {
		t.Error("heartbeat message should flip the monitor online")
	}
}

func TestMirrorSessionResetExactlyOnce(t *testing.T) {
	resets := 0
	m := NewMirror(NewMonitor(false), nil, nil, func(ctx context.Context) error {
		resets++
		return nil
	}, testLogger(t))

	_ = m.Handle(context.Background(), controllerEvent(SyncMessage{Type: KindSessionReset}))

	if m.Epoch() != 1 {
		t.Errorf("expected epoch 1 after one reset, got %d", m.Epoch())
	}
	if resets != 1 {
		t.Errorf("expected runtime rebuilt exactly once, got %d", resets)
	}
}

func TestMirrorIgnoresNonControllerSource(t *testing.T) {
	term := &recordingTerminal{}
	m := NewMirror(NewMonitor(false), term, nil, nil, testLogger(t))

	e := bus.NewEvent(KindStdout, "watcher", map[string]interface{}{"chunk": "spoofed"})
	_ = m.Handle(context.Background(), e)

	if len(term.writes) != 0 {
		t.Errorf("messages not stamped by a controller must be ignored, got %v", term.writes)
	}
}

func TestBroadcasterPublishesOverBus(t *testing.T) {
	memBus := bus.NewMemoryEventBus(testLogger(t))
	defer memBus.Close()

	subject := "sandbox.sync.testsession"
	var got []SyncMessage
	_, err := memBus.Subscribe(subject, func(ctx context.Context, e *bus.Event) error {
		msg, err := FromEvent(e)
		if err != nil {
			return err
		}
		got = append(got, msg)
		return nil
	})
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}

	b := NewBroadcaster(memBus, subject, testLogger(t))
	ctx := context.Background()
	b.Heartbeat(ctx)
	b.CommandStart(ctx, "echo hi")
	b.Stdout(ctx, "hi\n")
	b.CommandExit(ctx, 0)
	b.CommandError(ctx, "boom")

	wantTypes := []string{KindHeartbeat, KindCommandStart, KindStdout, KindCommandExit, KindCommandError}
	if len(got) != len(wantTypes) {
		t.Fatalf("expected %d messages, got %d", len(wantTypes), len(got))
	}
	for i, kind := range wantTypes {
		if got[i].Type != kind {
			t.Errorf("message %d: expected type %s, got %s", i, kind, got[i].Type)
		}
		if got[i].Source != SourceController {
			t.Errorf("message %d: expected controller source, got %q", i, got[i].Source)
		}
	}
	if got[1].Command != "echo hi" {
		t.Errorf("expected command %q, got %q", "echo hi", got[1].Command)
	}
	if got[3].ExitCode == nil || *got[3].ExitCode != 0 {
		t.Errorf("expected exit code 0, got %v", got[3].ExitCode)
	}
}
