package harness

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/litesql/go-ha"

	"github.com/litesql/ha-harness/sqlite3ha"
)

// Role is the part a node plays in the replication topology.
type Role string

const (
	RolePrimary   Role = "primary"
	RoleSecondary Role = "secondary"
)

// NodeConfig describes how to open one node.
type NodeConfig struct {
	Name string
	Role Role
	// Endpoint is host:port. The primary binds its replication server on it,
	// the secondary connects to it. A primary without an endpoint runs no
	// replication server and must be given a publisher through Options.
	Endpoint string
	// Path is the database file name.
	Path string
	// Params are extra DSN query parameters (_journal, _timeout, vfs, ...).
	Params url.Values
	// Options are applied after the ones derived from the DSN.
	Options []ha.Option
}

// DSN returns the connection string and the connector options for the node.
func (c NodeConfig) DSN() (string, []ha.Option, error) {
	if c.Path == "" {
		return "", nil, errors.New("database path is required")
	}
	params := url.Values{}
	for k, v := range c.Params {
		params[k] = v
	}
	var opts []ha.Option
	switch c.Role {
	case RolePrimary:
		opts = append(opts, ha.WithName(c.Name))
		if c.Endpoint != "" {
			port, err := endpointPort(c.Endpoint)
			if err != nil {
				return "", nil, err
			}
			opts = append(opts, ha.WithEmbeddedNatsConfig(&ha.EmbeddedNatsConfig{
				Port: port,
			}))
		}
	case RoleSecondary:
		if c.Endpoint == "" {
			return "", nil, errors.New("secondary requires a connect endpoint")
		}
		params.Set("name", c.Name)
		params.Set("replicationURL", natsURL(c.Endpoint))
	default:
		return "", nil, fmt.Errorf("unknown role %q", c.Role)
	}
	dsn := "file:" + c.Path
	if len(params) > 0 {
		dsn += "?" + rawQuery(params)
	}
	return dsn, append(opts, c.Options...), nil
}

// rawQuery joins params in key order without escaping, the way the driver
// DSNs are written by hand (replicationURL=nats://host:port).
func rawQuery(params url.Values) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var sb strings.Builder
	for _, k := range keys {
		for _, v := range params[k] {
			if sb.Len() > 0 {
				sb.WriteByte('&')
			}
			sb.WriteString(k)
			sb.WriteByte('=')
			sb.WriteString(v)
		}
	}
	return sb.String()
}

func endpointPort(endpoint string) (int, error) {
	_, p, err := net.SplitHostPort(endpoint)
	if err != nil {
		return 0, fmt.Errorf("invalid endpoint %q: %w", endpoint, err)
	}
	port, err := strconv.Atoi(p)
	if err != nil || port <= 0 || port > 65535 {
		return 0, fmt.Errorf("invalid endpoint port %q", p)
	}
	return port, nil
}

func natsURL(endpoint string) string {
	return "nats://" + endpoint
}

// Node is the connection to one database node. The harness hands each node to
// exactly one worker.
type Node struct {
	Name string
	Role Role
	DB   *sql.DB

	closeConnector func()
}

// Open connects to the node described by cfg. Every failure is a
// ConnectionError.
func Open(ctx context.Context, cfg NodeConfig) (*Node, error) {
	dsn, opts, err := cfg.DSN()
	if err != nil {
		return nil, nodeError(ConnectionError, cfg.Name, "open", err)
	}
	connector, err := sqlite3ha.NewConnector(dsn, opts...)
	if err != nil {
		return nil, nodeError(ConnectionError, cfg.Name, "open", err)
	}
	db := sql.OpenDB(connector)
	db.SetMaxOpenConns(1)

	n := &Node{
		Name:           cfg.Name,
		Role:           cfg.Role,
		DB:             db,
		closeConnector: func() { connector.Close() },
	}
	if err := db.PingContext(ctx); err != nil {
		n.Close()
		return nil, nodeError(ConnectionError, cfg.Name, "ping", err)
	}
	slog.Debug("node opened", "node", n.Name, "role", n.Role, "dsn", dsn)
	return n, nil
}

// Close releases the connection and the replication resources of the node.
func (n *Node) Close() error {
	err := n.DB.Close()
	if n.closeConnector != nil {
		n.closeConnector()
	}
	return err
}

// Bootstrap creates the shared two-column table if it does not exist.
func (n *Node) Bootstrap(ctx context.Context, table string) error {
	_, err := n.DB.ExecContext(ctx, fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (key TEXT, value TEXT)", table))
	if err != nil {
		return nodeError(QueryError, n.Name, "bootstrap", err)
	}
	return nil
}

// CountRows returns the number of rows in table.
func (n *Node) CountRows(ctx context.Context, table string) (int64, error) {
	var count int64
	if err := n.DB.QueryRowContext(ctx, fmt.Sprintf("SELECT COUNT(*) FROM %s", table)).Scan(&count); err != nil {
		return 0, nodeError(QueryError, n.Name, "count rows", err)
	}
	return count, nil
}

// InsertRow inserts one row stamped with the current time in both columns.
func (n *Node) InsertRow(ctx context.Context, table string) error {
	_, err := n.DB.ExecContext(ctx, fmt.Sprintf("INSERT INTO %s VALUES (CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)", table))
	if err != nil {
		return nodeError(QueryError, n.Name, "insert", err)
	}
	return nil
}
