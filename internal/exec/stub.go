package exec

import (
	"context"
	"sync"
)

// Stub is an Executor for tests. It records calls and returns a canned
// result, optionally failing.
type Stub struct {
	mu sync.Mutex
	// ResultText is returned as the result text.
	ResultText string
	// Fail makes every call return Err without a result.
	Fail bool
	// Err is the error returned when Fail is set.
	Err error
	// Block, when non-nil, is closed by the test to release in-flight
	// calls; used to exercise lock-free execution windows.
	Block chan struct{}

	calls []StubCall
}

// StubCall records the arguments of one Execute invocation.
type StubCall struct {
	Role            string
	SystemContext   string
	TaskDescription string
}

var _ Executor = (*Stub)(nil)

// Execute records the call and returns the configured outcome.
func (s *Stub) Execute(ctx context.Context, role, systemContext, taskDescription string) (Result, error) {
	s.mu.Lock()
	s.calls = append(s.calls, StubCall{Role: role, SystemContext: systemContext, TaskDescription: taskDescription})
	block := s.Block
	fail := s.Fail
	err := s.Err
	text := s.ResultText
	s.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return Result{}, ctx.Err()
		}
	}
	if fail {
		return Result{}, err
	}
	return Result{Text: text, Success: true}, nil
}

// Calls returns a copy of the recorded invocations.
func (s *Stub) Calls() []StubCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]StubCall(nil), s.calls...)
}
