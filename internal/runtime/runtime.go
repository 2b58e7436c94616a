// Package runtime defines the capability interface to the sandbox runtime.
//
// The runtime itself (kernel, shell, terminal, file explorer) is an external
// collaborator; surfaces only see this narrow bundle, which keeps the sync
// and driver layers testable against a fake with no real terminal or
// filesystem emulation.
package runtime

import "context"

// OutputFunc receives one streamed output chunk during command execution.
type OutputFunc func(chunk string)

// Runtime is the opaque sandbox capability bundle. Exactly one authoritative
// instance exists per logical session in steady state; it is torn down and
// rebuilt on every session reset.
type Runtime interface {
	// Boot initializes the runtime. It must be called before any other
	// operation and may be called again after Dispose.
	Boot(ctx context.Context) error

	// Execute runs a single command, streaming stdout and stderr chunks to
	// the callbacks as they arrive, and returns the command's exit code.
	// Callers must not run two executions concurrently.
	Execute(ctx context.Context, command string, stdout, stderr OutputFunc) (int, error)

	// Write appends data to the runtime's terminal view.
	Write(ctx context.Context, data string) error

	// ReadTerminal returns the current terminal contents.
	ReadTerminal(ctx context.Context) (string, error)

	// RefreshFiles refreshes the runtime's file view.
	RefreshFiles(ctx context.Context) error

	// Dispose tears the runtime down, releasing the terminal and file view.
	Dispose(ctx context.Context) error
}
