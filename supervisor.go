package harness

import (
	"context"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"
)

// Supervise runs the workers concurrently. The first worker to return, with or
// without an error, cancels the others; Supervise waits for all of them to
// exit and returns the first worker's result. Cancellation of ctx itself is a
// clean shutdown and yields nil.
func Supervise(ctx context.Context, workers ...Worker) error {
	if len(workers) == 0 {
		return nil
	}
	scope, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		once     sync.Once
		first    error
		shutdown bool
	)
	g, gctx := errgroup.WithContext(scope)
	for _, w := range workers {
		g.Go(func() error {
			err := w.Run(gctx)
			stopped := gctx.Err() != nil
			once.Do(func() {
				first = err
				// A worker returning after ctx ended was stopped, whatever
				// error the driver surfaced for the interrupted call.
				shutdown = ctx.Err() != nil
				cancel()
			})
			if err != nil && !stopped {
				slog.Error("worker failed", "worker", w.Name(), "error", err)
				return err
			}
			slog.Info("worker stopped", "worker", w.Name())
			return nil
		})
	}
	_ = g.Wait()

	if shutdown {
		return nil
	}
	return first
}
