package harness

import (
	"context"
	"time"
)

// Policy controls how a condition is polled. The zero value polls forever
// with no pause between attempts.
type Policy struct {
	// Interval is the pause after the first unsuccessful attempt.
	Interval time.Duration
	// Multiplier grows the pause after every attempt. Values <= 1 keep it fixed.
	Multiplier float64
	// MaxInterval caps the pause when Multiplier > 1. Zero means no cap.
	MaxInterval time.Duration
	// MaxAttempts bounds the number of attempts. Zero means unbounded.
	MaxAttempts int
}

// Every returns a fixed-interval, unbounded policy.
func Every(d time.Duration) Policy {
	return Policy{Interval: d}
}

func (p Policy) next(d time.Duration) time.Duration {
	if p.Multiplier <= 1 {
		return d
	}
	d = time.Duration(float64(d) * p.Multiplier)
	if p.MaxInterval > 0 && d > p.MaxInterval {
		d = p.MaxInterval
	}
	return d
}

// Poll calls fn until it reports done or fails, pausing between attempts as
// the policy says. It returns ErrNotReady once MaxAttempts is exhausted and
// the context error if ctx ends first.
func Poll(ctx context.Context, p Policy, fn func(context.Context) (bool, error)) error {
	wait := p.Interval
	for attempt := 1; ; attempt++ {
		done, err := fn(ctx)
		if err != nil {
			return err
		}
		if done {
			return nil
		}
		if p.MaxAttempts > 0 && attempt >= p.MaxAttempts {
			return ErrNotReady
		}
		if err := sleep(ctx, wait); err != nil {
			return err
		}
		wait = p.next(wait)
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
