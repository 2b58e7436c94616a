// Package runtimetest provides a scripted fake sandbox runtime for tests.
package runtimetest

import (
	"context"
	"strings"
	"sync"

	"github.com/sandbridge/sandbridge/internal/runtime"
)

// Result scripts the outcome of one command execution.
type Result struct {
	Stdout   []string
	Stderr   []string
	ExitCode int
	Err      error
}

// Fake implements runtime.Runtime with scripted results.
type Fake struct {
	mu sync.Mutex

	// BootErr, when set, fails the next Boot call and is then cleared.
	BootErr error

	results map[string]Result

	booted    bool
	boots     int
	disposes  int
	refreshes int
	executed  []string
	terminal  strings.Builder
}

// NewFake creates an empty fake runtime.
func NewFake() *Fake {
	return &Fake{results: make(map[string]Result)}
}

// Script registers the result for a command.
func (f *Fake) Script(command string, res Result) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.results[command] = res
}

func (f *Fake) Boot(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.BootErr != nil {
		err := f.BootErr
		f.BootErr = nil
		return err
	}
	f.booted = true
	f.boots++
	return nil
}

func (f *Fake) Execute(ctx context.Context, command string, stdout, stderr runtime.OutputFunc) (int, error) {
	f.mu.Lock()
	f.executed = append(f.executed, command)
	res, ok := f.results[command]
	f.mu.Unlock()

	if !ok {
		// Unscripted commands succeed silently.
		return 0, nil
	}
	if res.Err != nil {
		return 0, res.Err
	}
	for _, chunk := range res.Stdout {
		stdout(chunk)
	}
	for _, chunk := range res.Stderr {
		stderr(chunk)
	}
	return res.ExitCode, nil
}

func (f *Fake) Write(ctx context.Context, data string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.terminal.WriteString(data)
	return nil
}

func (f *Fake) ReadTerminal(ctx context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.terminal.String(), nil
}

func (f *Fake) RefreshFiles(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refreshes++
	return nil
}

func (f *Fake) Dispose(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.booted = false
	f.disposes++
	f.terminal.Reset()
	return nil
}

// Booted reports whether the runtime is currently booted.
func (f *Fake) Booted() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.booted
}

// Boots returns how many times Boot succeeded.
func (f *Fake) Boots() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.boots
}

// Disposes returns how many times Dispose was called.
func (f *Fake) Disposes() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.disposes
}

// Refreshes returns how many times the file view was refreshed.
func (f *Fake) Refreshes() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.refreshes
}

// Executed returns the commands executed, in order.
func (f *Fake) Executed() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.executed))
	copy(out, f.executed)
	return out
}

// Terminal returns the accumulated terminal contents.
func (f *Fake) Terminal() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.terminal.String()
}
