package harness

import (
	"context"
	"time"
)

// Worker is a long running unit supervised by Supervise. Run must return when
// ctx is cancelled.
type Worker interface {
	Name() string
	Run(ctx context.Context) error
}

// loop calls step, then pauses for interval, until step fails or ctx ends.
// limit bounds the number of steps; zero runs forever.
func loop(ctx context.Context, interval time.Duration, limit int, step func(context.Context) error) error {
	for i := 0; limit == 0 || i < limit; i++ {
		if err := step(ctx); err != nil {
			return err
		}
		if err := sleep(ctx, interval); err != nil {
			return err
		}
	}
	return nil
}
