// Package clock provides the time source used by every wait in the daemon.
// All sleeps take a context so an abort interrupts them.
package clock

import (
	"context"
	"time"

	bclock "github.com/benbjohnson/clock"
)

type Clock interface {
	Now() time.Time
	Since(t time.Time) time.Duration
	// Sleep blocks for d or until ctx is done, whichever comes first.
	Sleep(ctx context.Context, d time.Duration) error
}

type wallClock struct {
	c bclock.Clock
}

func New() Clock {
	return Wrap(bclock.New())
}

// Wrap adapts a benbjohnson clock, including its Mock.
func Wrap(c bclock.Clock) Clock {
	return &wallClock{c: c}
}

func (w *wallClock) Now() time.Time {
	return w.c.Now()
}

func (w *wallClock) Since(t time.Time) time.Duration {
	return w.c.Since(t)
}

func (w *wallClock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if d <= 0 {
		return nil
	}

	timer := w.c.Timer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
