package llm

import (
	"context"
	"sync"
)

// Scripted is a deterministic in-process Provider. Each call to Generate
// replays the next scripted step; tests and the dev-mode server use it in
// place of a live model.
type Scripted struct {
	mu    sync.Mutex
	steps [][]Event
	next  int
	// Err, when set, is returned by every Generate call after the
	// scripted steps are exhausted (or immediately when no steps exist).
	Err error
	// Delay is invoked before each event when set, letting tests pace or
	// block the stream (e.g. to exercise timeouts).
	Delay func(ctx context.Context) error
}

// NewScripted builds a provider that plays the given steps in order.
func NewScripted(steps ...[]Event) *Scripted {
	return &Scripted{steps: steps}
}

// Generate replays the next scripted step through emit.
func (s *Scripted) Generate(ctx context.Context, _ Request, emit func(Event) error) error {
	s.mu.Lock()
	if s.next >= len(s.steps) {
		err := s.Err
		s.mu.Unlock()
		return err
	}
	step := s.steps[s.next]
	s.next++
	s.mu.Unlock()

	for _, ev := range step {
		if err := ctx.Err(); err != nil {
			return err
		}
		if s.Delay != nil {
			if err := s.Delay(ctx); err != nil {
				return err
			}
		}
		if err := emit(ev); err != nil {
			return err
		}
	}
	return nil
}

// Steps reports how many scripted steps have been consumed.
func (s *Scripted) Steps() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.next
}
