package core

import (
	"context"
	"time"
)

// RetryDelay is the fixed pause between attempts of every retry loop.
const RetryDelay = 500 * time.Millisecond

// Sleeper pauses the control loop between attempts.
// Sleep returns ctx.Err() if ctx is cancelled before d elapses.
type Sleeper interface {
	Sleep(ctx context.Context, d time.Duration) error
}

// RealSleeper sleeps on a timer.
type RealSleeper struct{}

func (RealSleeper) Sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
