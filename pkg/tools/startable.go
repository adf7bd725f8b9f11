package tools

import (
	"context"
	"sync"
)

// StartableToolSet starts the toolset it wraps on first use. Concurrent
// callers of Start wait for the one attempt in flight; a failed attempt is
// retried by the next caller.
type StartableToolSet struct {
	ToolSet

	mu      sync.Mutex
	started bool
}

func NewStartable(ts ToolSet) *StartableToolSet {
	return &StartableToolSet{ToolSet: ts}
}

func (s *StartableToolSet) IsStarted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.started
}

func (s *StartableToolSet) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}
	if st, ok := s.ToolSet.(Startable); ok {
		if err := st.Start(ctx); err != nil {
			return err
		}
	}
	s.started = true
	return nil
}

// Stop stops a started toolset. Stopping one that never started does nothing.
func (s *StartableToolSet) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return nil
	}
	s.started = false
	if st, ok := s.ToolSet.(Startable); ok {
		return st.Stop(ctx)
	}
	return nil
}

// As asserts ts to T, looking through a StartableToolSet wrapper.
//
//	if in, ok := tools.As[tools.Instructable](toolset); ok {
//	    instructions = in.Instructions()
//	}
func As[T any](ts ToolSet) (T, bool) {
	if s, ok := ts.(*StartableToolSet); ok {
		ts = s.ToolSet
	}
	v, ok := ts.(T)
	return v, ok
}
