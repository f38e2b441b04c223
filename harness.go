// Package harness drives a primary and a secondary replicated SQLite node:
// it bootstraps and gates the primary, connects the secondary to it, then
// polls row counts on the primary while inserting rows into the secondary.
//
// Replication itself is done by the sqlite3ha driver; nothing here
// coordinates the two nodes beyond startup order.
package harness

import (
	"context"
	"fmt"
	"io"
	"log/slog"
)

// Run executes the whole harness and returns when a worker stops, when ctx is
// cancelled, or once the writer has done cfg.Inserts rows and the primary has
// caught up with them. Status lines are written to out.
func Run(ctx context.Context, cfg *Config, out io.Writer) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	r := NewReporter(out)
	policy := cfg.ReadinessPolicy()

	primary, err := Open(ctx, cfg.PrimaryNode())
	if err != nil {
		return err
	}
	defer closeNode(primary)

	if err := primary.Bootstrap(ctx, cfg.Table); err != nil {
		return err
	}
	if err := WaitReady(ctx, NewStatusProbe(primary, cfg.Table, r), policy); err != nil {
		return err
	}
	if err := CheckEndpoint(ctx, primary.Name, cfg.Bind, cfg.EndpointTimeout); err != nil {
		return err
	}
	slog.Info("primary ready", "node", primary.Name, "bind", cfg.Bind)

	secondary, err := Open(ctx, cfg.SecondaryNode())
	if err != nil {
		return err
	}
	defer closeNode(secondary)
	slog.Info("secondary opened", "node", secondary.Name, "connect", cfg.Connect)

	err = Supervise(ctx,
		&PrimaryMonitor{
			Node:     primary,
			Table:    cfg.Table,
			Interval: cfg.Interval,
			Reporter: r,
		},
		&SecondaryWriter{
			Node:      secondary,
			Table:     cfg.Table,
			Interval:  cfg.Interval,
			Limit:     cfg.Inserts,
			Prober:    NewStatusProbe(secondary, cfg.Table, r),
			Readiness: policy,
			Reporter:  r,
		},
	)
	if err != nil || cfg.Inserts == 0 || ctx.Err() != nil {
		return err
	}
	return catchUp(ctx, cfg, primary, secondary, r)
}

// catchUp waits until the primary holds at least as many rows as the
// secondary wrote.
func catchUp(ctx context.Context, cfg *Config, primary, secondary *Node, r *Reporter) error {
	want, err := secondary.CountRows(ctx, cfg.Table)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, cfg.CatchUpTimeout)
	defer cancel()

	err = Poll(ctx, Every(cfg.Interval), func(ctx context.Context) (bool, error) {
		count, err := primary.CountRows(ctx, cfg.Table)
		if err != nil {
			return false, err
		}
		r.Report(primary.Name, count)
		return count >= want, nil
	})
	if err != nil {
		return fmt.Errorf("%s did not catch up to %d rows: %w", primary.Name, want, err)
	}
	slog.Info("primary caught up", "node", primary.Name, "rows", want)
	return nil
}

func closeNode(n *Node) {
	if err := n.Close(); err != nil {
		slog.Warn("failed to close node", "node", n.Name, "error", err)
	}
}
