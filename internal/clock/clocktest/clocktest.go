// Package clocktest provides a virtual clock for tests of code that waits.
package clocktest

import (
	"context"
	"sync"
	"time"

	"github.com/jgivc/ftpstage/internal/clock"
)

var _ clock.Clock = (*Virtual)(nil)

// Virtual is a clock whose Sleep advances time instantly and records the
// duration. Unlike the benbjohnson Mock it needs no goroutine to move time
// forward while the code under test sleeps.
type Virtual struct {
	mu     sync.Mutex
	now    time.Time
	sleeps []time.Duration
}

func NewVirtual(start time.Time) *Virtual {
	return &Virtual{now: start}
}

func (v *Virtual) Now() time.Time {
	v.mu.Lock()
	defer v.mu.Unlock()

	return v.now
}

func (v *Virtual) Since(t time.Time) time.Duration {
	return v.Now().Sub(t)
}

func (v *Virtual) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	v.sleeps = append(v.sleeps, d)
	if d > 0 {
		v.now = v.now.Add(d)
	}

	return nil
}

// Advance moves time forward without recording a sleep.
func (v *Virtual) Advance(d time.Duration) {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.now = v.now.Add(d)
}

func (v *Virtual) Sleeps() []time.Duration {
	v.mu.Lock()
	defer v.mu.Unlock()

	out := make([]time.Duration, len(v.sleeps))
	copy(out, v.sleeps)

	return out
}

// Slept returns the sum of all recorded sleeps.
func (v *Virtual) Slept() time.Duration {
	var total time.Duration
	for _, d := range v.Sleeps() {
		total += d
	}

	return total
}
