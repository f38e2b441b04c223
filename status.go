package harness

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
)

// DefaultStatusQuery reports a node ready once the table named by its single
// argument is part of the node's schema: right after bootstrap on the primary,
// and once the replicated DDL has been applied on the secondary.
const DefaultStatusQuery = `SELECT '{"db_is_ready":' ||
	CASE WHEN EXISTS (SELECT 1 FROM sqlite_master WHERE type = 'table' AND name = ?) THEN 'true' ELSE 'false' END ||
	',"tables":' || (SELECT COUNT(*) FROM sqlite_master WHERE type = 'table') || '}'`

// Status is the readiness record a node reports.
type Status struct {
	DBIsReady bool `json:"db_is_ready"`
}

// Prober reports the readiness of a node.
type Prober interface {
	Probe(ctx context.Context) (Status, error)
}

// StatusProbe runs a diagnostic query returning one JSON text value and
// decodes it as a Status.
type StatusProbe struct {
	Node     *Node
	Query    string
	Args     []any
	Reporter *Reporter
}

// NewStatusProbe returns a probe running DefaultStatusQuery for table.
func NewStatusProbe(node *Node, table string, r *Reporter) *StatusProbe {
	return &StatusProbe{
		Node:     node,
		Query:    DefaultStatusQuery,
		Args:     []any{table},
		Reporter: r,
	}
}

// Probe fails with a QueryError when the query fails or returns no row, and
// with a DecodeError when the payload is not a status record.
func (p *StatusProbe) Probe(ctx context.Context) (Status, error) {
	var payload string
	err := p.Node.DB.QueryRowContext(ctx, p.Query, p.Args...).Scan(&payload)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			err = fmt.Errorf("empty status result: %w", err)
		}
		return Status{}, nodeError(QueryError, p.Node.Name, "status", err)
	}
	status, err := DecodeStatus(payload)
	if err != nil {
		return Status{}, nodeError(DecodeError, p.Node.Name, "status", err)
	}
	p.Reporter.Report(p.Node.Name, status.DBIsReady)
	return status, nil
}

// DecodeStatus decodes a status payload, which must be a JSON object. Unknown
// fields are ignored and a missing db_is_ready reads as not ready.
func DecodeStatus(payload string) (Status, error) {
	var status *Status
	if err := json.Unmarshal([]byte(payload), &status); err != nil {
		return Status{}, fmt.Errorf("invalid status payload %q: %w", payload, err)
	}
	if status == nil {
		return Status{}, fmt.Errorf("invalid status payload %q: not an object", payload)
	}
	return *status, nil
}
