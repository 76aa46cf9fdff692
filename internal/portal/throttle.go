package portal

import (
	"context"
	"math/rand/v2"
	"time"
)

// Pacer spaces out portal requests by a random delay in [Min, Max].
type Pacer struct {
	Min time.Duration
	Max time.Duration
}

// Next returns the next delay.
func (p Pacer) Next() time.Duration {
	if p.Max <= p.Min {
		return p.Min
	}
	return p.Min + rand.N(p.Max-p.Min)
}

// Wait blocks for the next delay or until ctx is done.
func (p Pacer) Wait(ctx context.Context) error {
	return Sleep(ctx, p.Next())
}

// Sleep waits for d unless ctx ends first.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
