package sqlite3ha

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	"github.com/litesql/go-ha"
	"github.com/litesql/go-sqlite3"
)

var errNoSession = errors.New("no changeset session for the connection")

// Conn publishes the DDL it executes before handing the statement to SQLite.
type Conn struct {
	*sqlite3.SQLiteConn
	disableDDLSync bool
}

func (c *Conn) ExecContext(ctx context.Context, query string, args []driver.NamedValue) (driver.Result, error) {
	queued, err := c.queueDDL(query)
	if err != nil {
		return nil, err
	}
	res, err := c.SQLiteConn.ExecContext(ctx, query, args)
	if err != nil && queued {
		sessions.dropLast(c.SQLiteConn)
	}
	return res, err
}

func (c *Conn) Exec(query string, args []driver.Value) (driver.Result, error) {
	queued, err := c.queueDDL(query)
	if err != nil {
		return nil, err
	}
	res, err := c.SQLiteConn.Exec(query, args)
	if err != nil && queued {
		sessions.dropLast(c.SQLiteConn)
	}
	return res, err
}

// Close forgets the connection's changeset before closing it.
func (c *Conn) Close() error {
	sessions.close(c.SQLiteConn)
	return c.SQLiteConn.Close()
}

// queueDDL adds the schema statements of query to the connection's changeset.
// It reports whether a change was queued so a failed exec can take it back.
func (c *Conn) queueDDL(query string) (bool, error) {
	if c.disableDDLSync {
		return false, nil
	}
	ddl, err := ddlSource(query)
	if err != nil {
		return false, err
	}
	if ddl == "" {
		return false, nil
	}
	if err := sessions.add(c.SQLiteConn, ha.Change{Operation: "SQL", Command: ddl}); err != nil {
		return false, err
	}
	return true, nil
}

func ddlSource(query string) (string, error) {
	stmts, err := ha.Parse(context.Background(), query)
	if err != nil {
		return "", err
	}
	var sb strings.Builder
	for _, stmt := range stmts {
		if stmt.DDL() {
			sb.WriteString(stmt.SourceWithIfExists())
		}
	}
	return sb.String(), nil
}

type hooksProvider struct {
	nodeName       string
	filename       string
	disableDDLSync bool
	publisher      ha.CDCPublisher
}

func (p *hooksProvider) RegisterHooks(c driver.Conn) (driver.Conn, error) {
	sconn, ok := c.(*sqlite3.SQLiteConn)
	if !ok {
		return nil, fmt.Errorf("unexpected driver connection %T", c)
	}
	p.install(sconn)
	return &Conn{
		SQLiteConn:     sconn,
		disableDDLSync: p.disableDDLSync,
	}, nil
}

func (p *hooksProvider) DisableHooks(conn *sql.Conn) error {
	sconn, err := sqliteConn(conn)
	if err != nil {
		return err
	}
	sconn.RegisterPreUpdateHook(nil)
	sconn.RegisterCommitHook(nil)
	sconn.RegisterRollbackHook(nil)
	return nil
}

func (p *hooksProvider) EnableHooks(conn *sql.Conn) error {
	sconn, err := sqliteConn(conn)
	if err != nil {
		return err
	}
	p.install(sconn)
	return nil
}

func (p *hooksProvider) install(sconn *sqlite3.SQLiteConn) {
	cs := sessions.open(sconn, p.nodeName, p.filename)
	publisher := p.publisher

	sconn.RegisterPreUpdateHook(func(d sqlite3.SQLitePreUpdateData) {
		change := rowChange(&d)
		columns, types, err := tableColumns(sconn, change.Database, change.Table)
		if err != nil {
			slog.Error("failed to read columns", "error", err, "database", change.Database, "table", change.Table)
			return
		}
		change.Columns = columns
		for i, t := range types {
			if t == "BLOB" {
				continue
			}
			if i < len(change.OldValues) && change.OldValues[i] != nil {
				change.OldValues[i] = textValue(change.OldValues[i])
			}
			if i < len(change.NewValues) && change.NewValues[i] != nil {
				change.NewValues[i] = textValue(change.NewValues[i])
			}
		}
		cs.AddChange(change)
	})
	sconn.RegisterCommitHook(func() int {
		if err := cs.Send(publisher); err != nil {
			slog.Error("failed to send changeset", "error", err, "node", p.nodeName)
			return 1
		}
		return 0
	})
	sconn.RegisterRollbackHook(func() {
		cs.Clear()
	})
}

func tableColumns(sconn *sqlite3.SQLiteConn, database, table string) (columns, types []string, err error) {
	rows, err := sconn.Query(fmt.Sprintf("SELECT name, type FROM %s.PRAGMA_TABLE_INFO('%s')", database, table), nil)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()
	for {
		row := []driver.Value{new(string), new(string)}
		if err := rows.Next(row); err != nil {
			if errors.Is(err, io.EOF) {
				return columns, types, nil
			}
			return nil, nil, err
		}
		if v, ok := row[0].(string); ok {
			columns = append(columns, v)
		}
		if v, ok := row[1].(string); ok {
			types = append(types, v)
		}
	}
}

func sqliteConn(conn *sql.Conn) (*sqlite3.SQLiteConn, error) {
	var sconn *sqlite3.SQLiteConn
	err := conn.Raw(func(driverConn any) error {
		switch c := driverConn.(type) {
		case *Conn:
			sconn = c.SQLiteConn
		case *sqlite3.SQLiteConn:
			sconn = c
		default:
			return fmt.Errorf("not a sqlite3 connection")
		}
		return nil
	})
	return sconn, err
}

// changeSets keeps the open changeset of every hooked connection.
type changeSets struct {
	mu sync.Mutex
	m  map[*sqlite3.SQLiteConn]*ha.ChangeSet
}

var sessions = &changeSets{m: make(map[*sqlite3.SQLiteConn]*ha.ChangeSet)}

func (s *changeSets) open(conn *sqlite3.SQLiteConn, nodeName, filename string) *ha.ChangeSet {
	s.mu.Lock()
	defer s.mu.Unlock()
	cs := ha.NewChangeSet(nodeName, filename)
	s.m[conn] = cs
	return cs
}

func (s *changeSets) close(conn *sqlite3.SQLiteConn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.m, conn)
}

func (s *changeSets) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.m)
}

func (s *changeSets) add(conn *sqlite3.SQLiteConn, change ha.Change) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cs := s.m[conn]
	if cs == nil {
		return errNoSession
	}
	cs.AddChange(change)
	return nil
}

func (s *changeSets) dropLast(conn *sqlite3.SQLiteConn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cs := s.m[conn]
	if cs == nil || len(cs.Changes) == 0 {
		return
	}
	cs.Changes = cs.Changes[:len(cs.Changes)-1]
}

func textValue(src any) any {
	if b, ok := src.([]byte); ok {
		return string(b)
	}
	return src
}

func rowChange(d *sqlite3.SQLitePreUpdateData) ha.Change {
	c := ha.Change{
		Database: d.DatabaseName,
		Table:    d.TableName,
		OldRowID: d.OldRowID,
		NewRowID: d.NewRowID,
	}
	count := d.Count()
	switch d.Op {
	case sqlite3.SQLITE_UPDATE:
		c.Operation = "UPDATE"
		c.OldValues = scanTargets(count)
		c.NewValues = scanTargets(count)
		d.Old(c.OldValues...)
		d.New(c.NewValues...)
	case sqlite3.SQLITE_INSERT:
		c.Operation = "INSERT"
		c.NewValues = scanTargets(count)
		d.New(c.NewValues...)
	case sqlite3.SQLITE_DELETE:
		c.Operation = "DELETE"
		c.OldValues = scanTargets(count)
		d.Old(c.OldValues...)
	default:
		c.Operation = fmt.Sprintf("UNKNOWN - %d", d.Op)
	}
	return c
}

// scanTargets returns n values that each point at themselves, so the hook
// data can be scanned in place.
func scanTargets(n int) []any {
	values := make([]any, n)
	for i := range n {
		values[i] = &values[i]
	}
	return values
}
