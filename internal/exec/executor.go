// Package exec defines the external task-execution collaborator consulted
// when a handoff is accepted, and its Anthropic-backed implementation.
package exec

import "context"

// Result is the outcome of one executed task.
type Result struct {
	// Text is the free-form output of the executor.
	Text string
	// Success reports whether the executor considers the task done.
	Success bool
}

// Executor performs a unit of work for an agent role. The engine treats it
// as a black box and never retries failures; retry policy belongs to the
// caller.
type Executor interface {
	// Execute runs the task for the given role with the transferred
	// context payload.
	Execute(ctx context.Context, role, systemContext, taskDescription string) (Result, error)
}

// ExecutorFunc adapts a function to the Executor interface.
type ExecutorFunc func(ctx context.Context, role, systemContext, taskDescription string) (Result, error)

// Execute calls f.
func (f ExecutorFunc) Execute(ctx context.Context, role, systemContext, taskDescription string) (Result, error) {
	return f(ctx, role, systemContext, taskDescription)
}
