package sqlite3ha_test

import (
	"bytes"
	"context"
	"database/sql"
	"testing"

	"github.com/litesql/go-ha"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/litesql/ha-harness/sqlite3ha"
)

func openNode(t *testing.T, name string, pub ha.CDCPublisher) *sql.DB {
	t.Helper()
	connector, err := sqlite3ha.NewConnector("file:/"+name+".db?vfs=memdb", ha.WithCDCPublisher(pub))
	require.NoError(t, err)
	t.Cleanup(func() { connector.Close() })

	db := sql.OpenDB(connector)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestSchemaBootstrapPublishesIdempotentDDL(t *testing.T) {
	pub := new(fakePublisher)
	db := openNode(t, "ddl", pub)
	ctx := context.Background()

	_, err := db.ExecContext(ctx, "CREATE TABLE test (key TEXT, value TEXT)")
	require.NoError(t, err)
	require.Len(t, pub.changes, 1)
	assert.Equal(t, "SQL", pub.changes[0].Operation)
	assert.Equal(t, "CREATE TABLE IF NOT EXISTS test (key TEXT, value TEXT)", pub.changes[0].Command)
}

func TestInsertPublishesRowChange(t *testing.T) {
	pub := new(fakePublisher)
	db := openNode(t, "insert", pub)
	ctx := context.Background()

	_, err := db.ExecContext(ctx, "CREATE TABLE IF NOT EXISTS test (key TEXT, value TEXT)")
	require.NoError(t, err)

	_, err = db.ExecContext(ctx, "INSERT INTO test VALUES (CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)")
	require.NoError(t, err)
	require.Len(t, pub.changes, 1)

	change := pub.changes[0]
	assert.Equal(t, "INSERT", change.Operation)
	assert.Equal(t, "test", change.Table)
	assert.Equal(t, []string{"key", "value"}, change.Columns)
	require.Len(t, change.NewValues, 2)
	assert.NotNil(t, change.NewValues[0])
	assert.Equal(t, change.NewValues[0], change.NewValues[1])
}

func TestFailedDDLIsNotPublished(t *testing.T) {
	pub := new(fakePublisher)
	db := openNode(t, "failed", pub)
	ctx := context.Background()

	_, err := db.ExecContext(ctx, "CREATE TABLE test (key TEXT)")
	require.NoError(t, err)
	pub.changes = nil

	_, err = db.ExecContext(ctx, "CREATE INDEX idx ON missing(key)")
	require.Error(t, err)

	_, err = db.ExecContext(ctx, "INSERT INTO test VALUES ('a')")
	require.NoError(t, err)
	require.Len(t, pub.changes, 1)
	assert.Equal(t, "INSERT", pub.changes[0].Operation)
}

func TestBackupMemDB(t *testing.T) {
	db := openNode(t, "backup", new(fakePublisher))
	ctx := context.Background()

	_, err := db.ExecContext(ctx, "CREATE TABLE test (key TEXT, value TEXT)")
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, sqlite3ha.Backup(ctx, db, &buf))
	assert.True(t, bytes.HasPrefix(buf.Bytes(), []byte("SQLite format 3")))
}

type fakePublisher struct {
	err     error
	changes []ha.Change
}

func (f *fakePublisher) Publish(cs *ha.ChangeSet) error {
	f.changes = cs.Changes
	return f.err
}
