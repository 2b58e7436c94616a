package driver

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sandbridge/sandbridge/internal/common/logger"
	"github.com/sandbridge/sandbridge/internal/runtime"
	"github.com/sandbridge/sandbridge/internal/runtime/runtimetest"
)

type recordedCall struct {
	kind string
	arg  string
}

// recordingPublisher captures the lifecycle rebroadcast in call order.
type recordingPublisher struct {
	calls []recordedCall
}

func (p *recordingPublisher) SessionReset(ctx context.Context) {
	p.calls = append(p.calls, recordedCall{kind: "session-reset"})
}

func (p *recordingPublisher) CommandStart(ctx context.Context, command string) {
	p.calls = append(p.calls, recordedCall{kind: "command-start", arg: command})
}

func (p *recordingPublisher) Stdout(ctx context.Context, chunk string) {
	p.calls = append(p.calls, recordedCall{kind: "stdout", arg: chunk})
}

func (p *recordingPublisher) Stderr(ctx context.Context, chunk string) {
	p.calls = append(p.calls, recordedCall{kind: "stderr", arg: chunk})
}

func (p *recordingPublisher) CommandExit(ctx context.Context, exitCode int) {
	p.calls = append(p.calls, recordedCall{kind: "command-exit"})
}

func (p *recordingPublisher) CommandError(ctx context.Context, message string) {
	p.calls = append(p.calls, recordedCall{kind: "command-error", arg: message})
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
	require.NoError(t, err)
	return log
}

func TestCommandQueueFIFO(t *testing.T) {
	q := NewCommandQueue()
	q.Enqueue("ls")
	q.Enqueue("ls")
	q.Enqueue("pwd")

	assert.Equal(t, 3, q.Len(), "duplicates must be kept")

	first, ok := q.Dequeue()
	require.True(t, ok)
	assert.Equal(t, "ls", first)
	second, ok := q.Dequeue()
	require.True(t, ok)
	assert.Equal(t, "ls", second)

	q.Clear()
	assert.Equal(t, 0, q.Len())
	_, ok = q.Dequeue()
	assert.False(t, ok)
}

func TestDriverExecutesInArrivalOrder(t *testing.T) {
	rt := runtimetest.NewFake()
	rt.Script("echo one", runtimetest.Result{Stdout: []string{"one\n"}, ExitCode: 0})
	rt.Script("echo two", runtimetest.Result{Stdout: []string{"two\n"}, ExitCode: 0})

	d := NewDriver(rt, nil, nil, testLogger(t))
	ctx := context.Background()
	require.NoError(t, d.Boot(ctx))

	d.Submit(ctx, "echo one")
	d.Submit(ctx, "echo two")

	assert.Equal(t, []string{"echo one", "echo two"}, rt.Executed())
	assert.Equal(t, 0, d.QueueLen())

	term := rt.Terminal()
	oneIdx := strings.Index(term, "$ echo one")
	twoIdx := strings.Index(term, "$ echo two")
	require.GreaterOrEqual(t, oneIdx, 0)
	require.Greater(t, twoIdx, oneIdx)
	assert.Contains(t, term, "one\n")
	assert.Contains(t, term, "[exit 0]\r\n")
}

func TestDriverFailedCommandDoesNotStopQueue(t *testing.T) {
	rt := runtimetest.NewFake()
	rt.Script("boom", runtimetest.Result{Err: errors.New("shell unavailable")})
	rt.Script("ls", runtimetest.Result{Stdout: []string{"README.md\n"}, ExitCode: 0})

	trans := &recordingTranscript{}
	d := NewDriver(rt, nil, trans, testLogger(t))
	ctx := context.Background()
	require.NoError(t, d.Boot(ctx))

	d.Submit(ctx, "boom")
	d.Submit(ctx, "ls")

	assert.Equal(t, []string{"boom", "ls"}, rt.Executed())
	assert.Contains(t, rt.Terminal(), "error: shell unavailable\r\n")
	assert.Contains(t, trans.kinds, "command-error")
	assert.Contains(t, trans.kinds, "command-exit")
}

func TestDriverQueuesBeforeBoot(t *testing.T) {
	rt := runtimetest.NewFake()
	d := NewDriver(rt, nil, nil, testLogger(t))
	ctx := context.Background()

	d.Submit(ctx, "ls")
	d.Submit(ctx, "pwd")
	assert.Empty(t, rt.Executed(), "commands must wait for boot")
	assert.Equal(t, 2, d.QueueLen())

	require.NoError(t, d.Boot(ctx))
	assert.Equal(t, []string{"ls", "pwd"}, rt.Executed())
	assert.Equal(t, 0, d.QueueLen())
}

func TestDriverBootFailureRetainsQueue(t *testing.T) {
	rt := runtimetest.NewFake()
	rt.BootErr = errors.New("docker daemon unreachable")

	d := NewDriver(rt, nil, nil, testLogger(t))
	ctx := context.Background()

	d.Submit(ctx, "ls")
	require.Error(t, d.Boot(ctx))
	assert.False(t, d.Booted())
	assert.Equal(t, 1, d.QueueLen())

	require.NoError(t, d.Boot(ctx))
	assert.Equal(t, []string{"ls"}, rt.Executed())
}

func TestDriverResetDropsPendingAndReboots(t *testing.T) {
	rt := runtimetest.NewFake()
	rt.BootErr = errors.New("not yet")

	pub := &recordingPublisher{}
	d := NewDriver(rt, pub, nil, testLogger(t))
	ctx := context.Background()

	// Boot fails, so the submitted commands stay queued.
	require.Error(t, d.Boot(ctx))
	d.Submit(ctx, "ls")
	d.Submit(ctx, "pwd")
	require.Equal(t, 2, d.QueueLen())

	require.NoError(t, d.Reset(ctx))

	assert.Equal(t, 0, d.QueueLen(), "reset drops pending commands")
	assert.Empty(t, rt.Executed())
	assert.True(t, d.Booted())
	assert.Equal(t, 1, rt.Disposes())
	require.NotEmpty(t, pub.calls)
	assert.Equal(t, "session-reset", pub.calls[0].kind, "watchers must hear the reset first")
	assert.Contains(t, rt.Terminal(), "sandbox ready\r\n")
}

// blockingRuntime stalls one designated command until released and tracks
// how many executions overlap.
type blockingRuntime struct {
	*runtimetest.Fake
	stallOn string
	started chan struct{}
	release chan struct{}

	mu          sync.Mutex
	inFlight    int
	maxInFlight int
}

func newBlockingRuntime(stallOn string) *blockingRuntime {
	return &blockingRuntime{
		Fake:    runtimetest.NewFake(),
		stallOn: stallOn,
		started: make(chan struct{}),
		release: make(chan struct{}),
	}
}

func (b *blockingRuntime) Execute(ctx context.Context, command string, stdout, stderr runtime.OutputFunc) (int, error) {
	b.mu.Lock()
	b.inFlight++
	if b.inFlight > b.maxInFlight {
		b.maxInFlight = b.inFlight
	}
	b.mu.Unlock()

	if command == b.stallOn {
		close(b.started)
		<-b.release
	}
	code, err := b.Fake.Execute(ctx, command, stdout, stderr)

	b.mu.Lock()
	b.inFlight--
	b.mu.Unlock()
	return code, err
}

func (b *blockingRuntime) MaxInFlight() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.maxInFlight
}

func TestDriverResetWaitsForInFlightCommand(t *testing.T) {
	rt := newBlockingRuntime("sleep 5")
	d := NewDriver(rt, nil, nil, testLogger(t))
	ctx := context.Background()
	require.NoError(t, d.Boot(ctx))

	go d.Submit(ctx, "sleep 5")
	<-rt.started

	resetDone := make(chan error, 1)
	go func() { resetDone <- d.Reset(ctx) }()

	// A command arriving mid-reset must not slip past the guard.
	d.Submit(ctx, "echo fast")

	select {
	case err := <-resetDone:
		t.Fatalf("reset finished while a command was still executing: %v", err)
	case <-time.After(50 * time.Millisecond):
	}

	close(rt.release)
	require.NoError(t, <-resetDone)

	assert.Equal(t, 1, rt.MaxInFlight(), "runtime must never see overlapping executions")
	assert.Equal(t, 0, d.QueueLen(), "reset drops the command that arrived mid-reset")
	assert.True(t, d.Booted())
}

func TestDriverRebroadcastsLifecycle(t *testing.T) {
	rt := runtimetest.NewFake()
	rt.Script("make", runtimetest.Result{
		Stdout:   []string{"compiling\n"},
		Stderr:   []string{"warning: unused\n"},
		ExitCode: 2,
	})

	pub := &recordingPublisher{}
	d := NewDriver(rt, pub, nil, testLogger(t))
	ctx := context.Background()
	require.NoError(t, d.Boot(ctx))

	d.Submit(ctx, "make")

	want := []recordedCall{
		{kind: "command-start", arg: "make"},
		{kind: "stdout", arg: "compiling\n"},
		{kind: "stderr", arg: "warning: unused\n"},
		{kind: "command-exit"},
	}
	assert.Equal(t, want, pub.calls)
}

func TestDriverRefreshesFilesAfterEachCommand(t *testing.T) {
	rt := runtimetest.NewFake()
	d := NewDriver(rt, nil, nil, testLogger(t))
	ctx := context.Background()
	require.NoError(t, d.Boot(ctx))

	d.Submit(ctx, "touch a")
	d.Submit(ctx, "touch b")
	assert.Equal(t, 2, rt.Refreshes())
}
