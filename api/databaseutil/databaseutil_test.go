package databaseutil

import (
	"context"
	"testing"

	"github.com/chendingplano/dataviewer/api/ApiTypes"
	"github.com/chendingplano/dataviewer/api/loggerutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenDBSQLiteMemoryUsesOneConnection(t *testing.T) {
	ctx := context.Background()
	db, err := OpenDB(ctx, ApiTypes.DBConfig{
		DBType:       ApiTypes.SqliteName,
		DSN:          ":memory:",
		MaxOpenConns: 20,
	}, loggerutil.NewNopLogger())
	require.NoError(t, err)
	defer db.Close()

	assert.Equal(t, 1, db.Stats().MaxOpenConnections)

	// A table created on one statement is visible to the next.
	_, err = db.ExecContext(ctx, "CREATE TABLE scratch_rows (id INTEGER)")
	require.NoError(t, err)
	var count int
	require.NoError(t, db.QueryRowContext(ctx, "SELECT COUNT(*) FROM scratch_rows").Scan(&count))
}

func TestOpenDBSQLiteFileKeepsPool(t *testing.T) {
	dsn := "file:" + t.TempDir() + "/warehouse.db"
	db, err := OpenDB(context.Background(), ApiTypes.DBConfig{
		DBType:       ApiTypes.SqliteName,
		DSN:          dsn,
		MaxOpenConns: 20,
	}, loggerutil.NewNopLogger())
	require.NoError(t, err)
	defer db.Close()

	assert.Equal(t, 20, db.Stats().MaxOpenConnections)
}

func TestIsSQLiteMemoryDSN(t *testing.T) {
	assert.True(t, IsSQLiteMemoryDSN(":memory:"))
	assert.True(t, IsSQLiteMemoryDSN("file::memory:?cache=shared"))
	assert.True(t, IsSQLiteMemoryDSN("file:warehouse?mode=memory&cache=shared"))
	assert.False(t, IsSQLiteMemoryDSN("file:warehouse.db"))
	assert.False(t, IsSQLiteMemoryDSN("/var/lib/dataviewer/warehouse.db"))
}
