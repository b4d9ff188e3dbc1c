package pipeline

import (
	"context"
	"time"
)

// Scheduler decides when cycles run. Per-entry logic never depends on it.
type Scheduler interface {
	Run(ctx context.Context, cycle func(context.Context)) error
}

// PollScheduler runs a cycle, sleeps Interval, and repeats until ctx ends.
type PollScheduler struct {
	Interval time.Duration
}

// Run implements Scheduler. It returns nil once ctx is cancelled.
func (s PollScheduler) Run(ctx context.Context, cycle func(context.Context)) error {
	for {
		if ctx.Err() != nil {
			return nil
		}
		cycle(ctx)
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(s.Interval):
		}
	}
}

// OnceScheduler runs exactly one cycle.
type OnceScheduler struct{}

// Run implements Scheduler.
func (OnceScheduler) Run(ctx context.Context, cycle func(context.Context)) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	cycle(ctx)
	return nil
}
