package dataviewer

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/chendingplano/dataviewer/api/ApiTypes"
	"github.com/chendingplano/dataviewer/api/loggerutil"
	"github.com/chendingplano/dataviewer/api/query"
	"github.com/chendingplano/dataviewer/api/stores/storetest"
	"github.com/chendingplano/dataviewer/api/sysdatastores"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() *Config {
	return &Config{
		Server: ApiTypes.ServerConfig{
			Host:              "127.0.0.1",
			Port:              0,
			BasePath:          "/dataviewer/api",
			RequestTimeoutSec: 5,
			ShutdownSec:       2,
		},
		Database: ApiTypes.DBConfig{DBType: ApiTypes.SqliteName, DSN: ":memory:"},
		Tables:   ApiTypes.DefaultWarehouseTables(),
		Query:    query.Config{MaxFilterSize: query.DefaultMaxFilterSize},
		Log:      ApiTypes.ProcLogDef{Format: ApiTypes.LogFormatText},
		ActivityLog: sysdatastores.ActivityLogConfig{
			Enabled:          true,
			TableName:        "activity_log",
			FlushIntervalSec: 3600,
		},
	}
}

func TestServiceEndToEnd(t *testing.T) {
	ctx := context.Background()
	db := storetest.OpenSQLite(t)
	f := storetest.Default().AddValue(storetest.VariableGDP, 888, 2000, "9")
	require.NoError(t, f.Load(ctx, db, ApiTypes.SqliteName, ApiTypes.DefaultWarehouseTables()))

	s := NewServiceWithDB(testConfig(), db, loggerutil.NewNopLogger())
	require.NoError(t, s.Initialize(ctx))

	e := s.NewServer()
	req := httptest.NewRequest(http.MethodGet, "/dataviewer/api/data?variable=3001&entities=50,888&years=%5B2000%5D", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[{"value":1.5,"year":2000,"entity":"Brazil"}]`, rec.Body.String())

	// The unknown entity is written to the activity log on close.
	s.Close()
	var count int
	require.NoError(t, db.QueryRowContext(ctx, "SELECT COUNT(*) FROM activity_log").Scan(&count))
	assert.Equal(t, 1, count)

	// The connection belongs to the caller.
	assert.NoError(t, db.PingContext(ctx))
}

func TestServiceInitializeBadTables(t *testing.T) {
	config := testConfig()
	config.Tables.Entities = "bad name"
	s := NewServiceWithDB(config, storetest.OpenSQLite(t), loggerutil.NewNopLogger())
	assert.Error(t, s.Initialize(context.Background()))
}

func TestServiceOpensSQLite(t *testing.T) {
	config := testConfig()
	config.ActivityLog.Enabled = false
	s := NewService(config, loggerutil.NewNopLogger())
	require.NoError(t, s.Initialize(context.Background()))
	defer s.Close()

	// The database is empty: the store reports the failure.
	_, err := s.Engine().CategoriesOf(context.Background())
	assert.Error(t, err)
}

func TestRunServerStopsOnCancel(t *testing.T) {
	ctx := context.Background()
	db := storetest.OpenSQLite(t)
	require.NoError(t, storetest.Default().Load(ctx, db, ApiTypes.SqliteName, ApiTypes.DefaultWarehouseTables()))

	config := testConfig()
	config.ActivityLog.Enabled = false
	s := NewServiceWithDB(config, db, loggerutil.NewNopLogger())
	require.NoError(t, s.Initialize(ctx))
	defer s.Close()

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() { done <- s.RunServer(runCtx) }()

	require.Eventually(t, s.isRunning.Load, 2*time.Second, 10*time.Millisecond)
	assert.Error(t, s.RunServer(runCtx), "second RunServer must fail")

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("RunServer did not return")
	}
}
