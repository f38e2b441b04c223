// Package sqlite3ha is the replicated SQLite driver the harness nodes run on.
//
// Connections are go-sqlite3 connections with change-data-capture hooks: row
// changes are collected by pre-update hooks and published as a changeset on
// commit, and DDL statements are published verbatim (rewritten with IF [NOT]
// EXISTS) so replaying them on a peer is idempotent.
package sqlite3ha

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"

	"github.com/litesql/go-ha"
	"github.com/litesql/go-sqlite3"
)

// DriverName is the name the driver is registered under with database/sql.
const DriverName = "sqlite3-ha"

func init() {
	sql.Register(DriverName, &Driver{})
}

type Driver struct {
	Extensions  []string
	ConnectHook func(*sqlite3.SQLiteConn) error
	Options     []ha.Option
}

func (d *Driver) Open(name string) (driver.Conn, error) {
	connector, err := d.OpenConnector(name)
	if err != nil {
		return nil, err
	}
	return connector.Connect(context.Background())
}

func (d *Driver) OpenConnector(name string) (driver.Connector, error) {
	return connect(name, &sqlite3.SQLiteDriver{
		Extensions:  d.Extensions,
		ConnectHook: d.ConnectHook,
	}, d.Options)
}

// NewConnector parses the replication parameters carried by name (name=,
// replicationURL=, ...) and returns a connector for the node. opts are applied
// after the ones found in name.
func NewConnector(name string, opts ...ha.Option) (*ha.Connector, error) {
	return connect(name, &sqlite3.SQLiteDriver{}, opts)
}

func connect(name string, drv *sqlite3.SQLiteDriver, extra []ha.Option) (*ha.Connector, error) {
	dsn, opts, err := ha.NameToOptions(name)
	if err != nil {
		return nil, fmt.Errorf("invalid params: %w", err)
	}
	opts = append(opts, extra...)
	return ha.NewConnector(dsn, drv, hooksFactory, Backup, opts...)
}

func hooksFactory(nodeName, filename string, disableDDLSync bool, publisher ha.CDCPublisher) ha.ConnHooksProvider {
	return &hooksProvider{
		nodeName:       nodeName,
		filename:       filename,
		disableDDLSync: disableDDLSync,
		publisher:      publisher,
	}
}
