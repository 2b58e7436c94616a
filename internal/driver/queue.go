// Package driver owns the live sandbox runtime on the authoritative surface:
// it serializes command execution one at a time and republishes progress over
// the sync channel when acting as controller.
package driver

import "sync"

// CommandQueue is a plain FIFO of pending command strings. Commands are never
// reordered or deduplicated; an agent repeating a command means it wants it
// run again.
type CommandQueue struct {
	mu    sync.Mutex
	items []string
}

// NewCommandQueue creates an empty command queue.
func NewCommandQueue() *CommandQueue {
	return &CommandQueue{}
}

// Enqueue appends a command to the tail.
func (q *CommandQueue) Enqueue(command string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = append(q.items, command)
}

// Dequeue pops the head command. The second return is false when empty.
func (q *CommandQueue) Dequeue() (string, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return "", false
	}
	head := q.items[0]
	q.items = q.items[1:]
	return head, true
}

// Len returns the number of pending commands.
func (q *CommandQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Clear drops all pending commands.
func (q *CommandQueue) Clear() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = nil
}
