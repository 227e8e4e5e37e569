// Package coretest provides test doubles for the core package.
package coretest

import (
	"context"
	"sync"
	"time"
)

// Sleeper records requested pauses and returns immediately.
// OnSleep, when set, runs before each recorded sleep returns; it can cancel the test's
// context to end an otherwise unbounded retry loop.
type Sleeper struct {
	mu      sync.Mutex
	calls   []time.Duration
	OnSleep func(n int)
}

func (s *Sleeper) Sleep(ctx context.Context, d time.Duration) error {
	s.mu.Lock()
	s.calls = append(s.calls, d)
	n := len(s.calls)
	hook := s.OnSleep
	s.mu.Unlock()

	if hook != nil {
		hook(n)
	}
	return ctx.Err()
}

// Calls returns a copy of the recorded durations.
func (s *Sleeper) Calls() []time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]time.Duration(nil), s.calls...)
}

// Count returns the number of recorded sleeps.
func (s *Sleeper) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}
