package harness

import (
	"context"
	"log/slog"
	"time"
)

// SecondaryWriter waits for its node to become ready and then inserts one
// timestamped row per tick.
type SecondaryWriter struct {
	Node     *Node
	Table    string
	Interval time.Duration
	// Limit stops the writer after that many inserts. Zero writes forever.
	Limit int
	// Prober and Readiness drive the readiness gate passed before the first
	// insert.
	Prober    Prober
	Readiness Policy
	Reporter  *Reporter
}

func (w *SecondaryWriter) Name() string { return w.Node.Name + "-writer" }

func (w *SecondaryWriter) Run(ctx context.Context) error {
	if err := WaitReady(ctx, w.Prober, w.Readiness); err != nil {
		return err
	}
	slog.Info("writing rows", "node", w.Node.Name, "table", w.Table, "limit", w.Limit)
	return loop(ctx, w.Interval, w.Limit, func(ctx context.Context) error {
		w.Reporter.Report(w.Node.Name, "insert")
		return w.Node.InsertRow(ctx, w.Table)
	})
}
