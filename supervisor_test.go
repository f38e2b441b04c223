package harness

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type funcWorker struct {
	name string
	run  func(context.Context) error
}

func (w *funcWorker) Name() string                  { return w.name }
func (w *funcWorker) Run(ctx context.Context) error { return w.run(ctx) }

// blocker runs until cancelled and records that it exited.
func blocker(name string, exited *atomic.Bool) *funcWorker {
	return &funcWorker{name: name, run: func(ctx context.Context) error {
		<-ctx.Done()
		time.Sleep(10 * time.Millisecond)
		exited.Store(true)
		return ctx.Err()
	}}
}

func TestSuperviseCancelsOthersOnFailure(t *testing.T) {
	boom := nodeError(QueryError, "secondary", "insert", errors.New("disk full"))
	var exited atomic.Bool

	err := Supervise(context.Background(),
		blocker("monitor", &exited),
		&funcWorker{name: "writer", run: func(context.Context) error { return boom }},
	)
	require.ErrorIs(t, err, boom)
	assert.True(t, exited.Load(), "the other worker must have shut down before Supervise returns")
}

func TestSuperviseStopsWhenAWorkerCompletes(t *testing.T) {
	var exited atomic.Bool

	err := Supervise(context.Background(),
		blocker("monitor", &exited),
		&funcWorker{name: "writer", run: func(context.Context) error { return nil }},
	)
	require.NoError(t, err)
	assert.True(t, exited.Load())
}

func TestSuperviseParentCancellationIsClean(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var a, b atomic.Bool
	time.AfterFunc(10*time.Millisecond, cancel)

	require.NoError(t, Supervise(ctx, blocker("a", &a), blocker("b", &b)))
	assert.True(t, a.Load())
	assert.True(t, b.Load())
}

func TestSuperviseParentCancellationWithInterruptedQuery(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(10*time.Millisecond, cancel)
	var other atomic.Bool

	err := Supervise(ctx,
		&funcWorker{name: "primary-monitor", run: func(ctx context.Context) error {
			<-ctx.Done()
			return nodeError(QueryError, "primary", "count rows", errors.New("interrupted"))
		}},
		blocker("secondary-writer", &other),
	)
	require.NoError(t, err)
	assert.True(t, other.Load())
}

func TestSuperviseNoWorkers(t *testing.T) {
	assert.NoError(t, Supervise(context.Background()))
}

func TestMonitorAndWriter(t *testing.T) {
	n := openMemNode(t, "workers")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, n.Bootstrap(ctx, "test"))

	var out bytes.Buffer
	r := NewReporter(&out)
	err := Supervise(ctx,
		&PrimaryMonitor{Node: n, Table: "test", Interval: time.Millisecond, Reporter: r},
		&SecondaryWriter{
			Node:      n,
			Table:     "test",
			Interval:  time.Millisecond,
			Limit:     3,
			Prober:    NewStatusProbe(n, "test", r),
			Readiness: Every(time.Millisecond),
			Reporter:  r,
		},
	)
	require.NoError(t, err)

	count, err := n.CountRows(ctx, "test")
	require.NoError(t, err)
	assert.EqualValues(t, 3, count)
	assert.Equal(t, 3, strings.Count(out.String(), "workers: insert\n"))
	assert.Contains(t, out.String(), "workers: true\n")
}

func TestWriterWaitsForReadiness(t *testing.T) {
	n := openMemNode(t, "gated")
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	var out bytes.Buffer
	w := &SecondaryWriter{
		Node:      n,
		Table:     "test",
		Interval:  time.Millisecond,
		Prober:    NewStatusProbe(n, "test", NewReporter(&out)),
		Readiness: Every(5 * time.Millisecond),
		Reporter:  NewReporter(&out),
	}
	err := w.Run(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.NotContains(t, out.String(), "insert")
	assert.Contains(t, out.String(), "gated: false\n")
}

func TestMonitorFailsOnQueryError(t *testing.T) {
	n := openMemNode(t, "nomonitor")
	m := &PrimaryMonitor{Node: n, Table: "test", Interval: time.Millisecond}

	err := Supervise(context.Background(), m)
	require.ErrorIs(t, err, ErrQuery)
	assert.Equal(t, "nomonitor-monitor", m.Name())
}
