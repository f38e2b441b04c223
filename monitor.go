package harness

import (
	"context"
	"time"
)

// PrimaryMonitor prints the row count of the shared table on every tick.
type PrimaryMonitor struct {
	Node     *Node
	Table    string
	Interval time.Duration
	Reporter *Reporter
}

func (m *PrimaryMonitor) Name() string { return m.Node.Name + "-monitor" }

func (m *PrimaryMonitor) Run(ctx context.Context) error {
	return loop(ctx, m.Interval, 0, func(ctx context.Context) error {
		count, err := m.Node.CountRows(ctx, m.Table)
		if err != nil {
			return err
		}
		m.Reporter.Report(m.Node.Name, count)
		return nil
	})
}
