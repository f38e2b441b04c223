package harness

import (
	"context"
	"log/slog"
)

// WaitReady probes until the node reports ready. Only the not-ready answer is
// retried; a probe error is returned as is.
func WaitReady(ctx context.Context, p Prober, policy Policy) error {
	attempts := 0
	err := Poll(ctx, policy, func(ctx context.Context) (bool, error) {
		attempts++
		status, err := p.Probe(ctx)
		if err != nil {
			return false, err
		}
		return status.DBIsReady, nil
	})
	if err == nil {
		slog.Debug("node ready", "attempts", attempts)
	}
	return err
}
