package sysdatastores

import (
	"context"
	"testing"

	"github.com/chendingplano/dataviewer/api/ApiTypes"
	"github.com/chendingplano/dataviewer/api/loggerutil"
	"github.com/chendingplano/dataviewer/api/stores"
	"github.com/chendingplano/dataviewer/api/stores/storetest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestActivityLogCacheFlush(t *testing.T) {
	ctx := context.Background()
	db := storetest.OpenSQLite(t)
	require.NoError(t, CreateActivityLogTable(ctx, db, ApiTypes.SqliteName, "activity_log"))
	// Idempotent.
	require.NoError(t, CreateActivityLogTable(ctx, db, ApiTypes.SqliteName, "activity_log"))

	c, err := NewActivityLogCache(db, ApiTypes.SqliteName,
		ActivityLogConfig{Enabled: true, FlushIntervalSec: 3600}, loggerutil.NewNopLogger())
	require.NoError(t, err)

	c.ReportFault(ctx, stores.NewDataIntegrityFault(stores.FaultUnknownEntity, 3001, 888, "missing"))
	c.ReportFault(ctx, stores.NewDataIntegrityFault(stores.FaultDanglingDataset, 4000, 0, "dataset 999"))
	require.NoError(t, c.Flush(ctx))

	var count int
	require.NoError(t, db.QueryRowContext(ctx, "SELECT COUNT(*) FROM activity_log").Scan(&count))
	assert.Equal(t, 2, count)

	var msg, activityType string
	require.NoError(t, db.QueryRowContext(ctx,
		"SELECT activity_msg, activity_type FROM activity_log ORDER BY log_id LIMIT 1").Scan(&msg, &activityType))
	assert.Contains(t, msg, "unknown_entity")
	assert.Contains(t, msg, "entity_id:888")
	assert.Equal(t, ApiTypes.ActivityType_DataIntegrity, activityType)

	// Stop flushes what is left.
	c.ReportFault(ctx, stores.NewDataIntegrityFault(stores.FaultUnknownEntity, 3001, 889, "missing"))
	c.Stop()
	c.Stop()
	require.NoError(t, db.QueryRowContext(ctx, "SELECT COUNT(*) FROM activity_log").Scan(&count))
	assert.Equal(t, 3, count)
}

func TestActivityLogCacheDropsWhenFull(t *testing.T) {
	ctx := context.Background()
	db := storetest.OpenSQLite(t)
	require.NoError(t, CreateActivityLogTable(ctx, db, ApiTypes.SqliteName, "activity_log"))

	c, err := NewActivityLogCache(db, ApiTypes.SqliteName,
		ActivityLogConfig{FlushIntervalSec: 3600, MaxBuffered: 2}, loggerutil.NewNopLogger())
	require.NoError(t, err)
	defer c.Stop()

	for i := 0; i < 5; i++ {
		c.AddActivityLog(ApiTypes.ActivityLogDef{
			ActivityName: ApiTypes.ActivityName_Metadata,
			ActivityType: ApiTypes.ActivityType_DataIntegrity,
			AppName:      ApiTypes.AppName_DataViewer,
			ModuleName:   ApiTypes.ModuleName_Aggregator,
			CallerLoc:    "DVW_TST_060",
		})
	}
	require.NoError(t, c.Flush(ctx))

	var count int
	require.NoError(t, db.QueryRowContext(ctx, "SELECT COUNT(*) FROM activity_log").Scan(&count))
	assert.Equal(t, 2, count)
}

func TestActivityLogRejectsBadTableName(t *testing.T) {
	db := storetest.OpenSQLite(t)
	err := CreateActivityLogTable(context.Background(), db, ApiTypes.SqliteName, "log; DROP TABLE x")
	assert.Error(t, err)

	_, err = NewActivityLogCache(db, ApiTypes.SqliteName,
		ActivityLogConfig{TableName: "bad-name"}, loggerutil.NewNopLogger())
	assert.Error(t, err)
}
