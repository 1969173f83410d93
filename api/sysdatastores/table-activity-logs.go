// Description
// ActivityLog: a buffered sink that writes data integrity faults found by the
// query engine to an activity log table. Records are cached in memory and
// flushed in the background.
package sysdatastores

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/chendingplano/dataviewer/api/ApiTypes"
	"github.com/chendingplano/dataviewer/api/databaseutil"
	"github.com/chendingplano/dataviewer/api/loggerutil"
	"github.com/chendingplano/dataviewer/api/stores"
)

const (
	DefaultActivityLogTable  = "activity_log"
	defaultFlushInterval     = 10 * time.Second
	defaultMaxBufferedRecord = 10000
)

type ActivityLogConfig struct {
	Enabled          bool   `mapstructure:"enabled"`
	TableName        string `mapstructure:"table_name"`
	FlushIntervalSec int    `mapstructure:"flush_interval_sec"`
	MaxBuffered      int    `mapstructure:"max_buffered"`
}

// ActivityLogCache buffers records and inserts them periodically.
type ActivityLogCache struct {
	records      []ApiTypes.ActivityLogDef // Holds cached records
	dropped      int
	mu           sync.Mutex // Ensures thread-safe access to records
	db           *sql.DB
	db_type      string
	table_name   string
	builder      sq.StatementBuilderType
	interval     time.Duration
	max_buffered int
	done         chan struct{}  // Signals shutdown
	stopOnce     sync.Once
	wg           sync.WaitGroup // Tracks background goroutine
	logger       *loggerutil.JimoLogger
}

func CreateActivityLogTable(
	ctx context.Context,
	db *sql.DB,
	db_type string,
	table_name string) error {
	if !databaseutil.IsValidTableName(table_name) {
		return fmt.Errorf("invalid table name (DVW_ALG_053):%q", table_name)
	}

	fields :=
		"activity_name      VARCHAR(64) NOT NULL, " +
			"activity_type      VARCHAR(64) NOT NULL, " +
			"app_name           VARCHAR(128) NOT NULL, " +
			"module_name        VARCHAR(128) NOT NULL, " +
			"activity_msg       TEXT DEFAULT NULL, " +
			"caller_loc         VARCHAR(20) NOT NULL, " +
			"created_at         TIMESTAMP DEFAULT CURRENT_TIMESTAMP"

	var stmt string
	switch db_type {
	case ApiTypes.MysqlName:
		stmt = "CREATE TABLE IF NOT EXISTS " + table_name + "(" +
			"log_id BIGINT NOT NULL AUTO_INCREMENT PRIMARY KEY, " + fields +
			", INDEX idx_created_at (created_at) " +
			") ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci"

	case ApiTypes.PgName:
		stmt = "CREATE TABLE IF NOT EXISTS " + table_name + "(" +
			"log_id BIGSERIAL PRIMARY KEY, " + fields + ")"

	case ApiTypes.SqliteName:
		stmt = "CREATE TABLE IF NOT EXISTS " + table_name + "(" +
			"log_id INTEGER PRIMARY KEY AUTOINCREMENT, " + fields + ")"

	default:
		return fmt.Errorf("database type not supported:%s (DVW_ALG_083)", db_type)
	}

	if err := databaseutil.ExecuteStatement(ctx, db, stmt); err != nil {
		return fmt.Errorf("failed creating table (DVW_ALG_087), err: %w", err)
	}

	if db_type != ApiTypes.MysqlName {
		idx := "CREATE INDEX IF NOT EXISTS idx_" + table_name + "_created_at ON " + table_name + " (created_at)"
		if err := databaseutil.ExecuteStatement(ctx, db, idx); err != nil {
			return fmt.Errorf("failed creating index (DVW_ALG_093), err: %w", err)
		}
	}
	return nil
}

// NewActivityLogCache creates the cache and starts its flush loop. Call
// Stop to flush what is left and end the loop.
func NewActivityLogCache(
	db *sql.DB,
	db_type string,
	config ActivityLogConfig,
	logger *loggerutil.JimoLogger) (*ActivityLogCache, error) {
	table_name := config.TableName
	if table_name == "" {
		table_name = DefaultActivityLogTable
	}
	if !databaseutil.IsValidTableName(table_name) {
		return nil, fmt.Errorf("invalid table name (DVW_ALG_110):%q", table_name)
	}

	interval := time.Duration(config.FlushIntervalSec) * time.Second
	if interval <= 0 {
		interval = defaultFlushInterval
	}
	max_buffered := config.MaxBuffered
	if max_buffered <= 0 {
		max_buffered = defaultMaxBufferedRecord
	}

	c := &ActivityLogCache{
		db:           db,
		db_type:      db_type,
		table_name:   table_name,
		builder:      databaseutil.StatementBuilder(db_type),
		interval:     interval,
		max_buffered: max_buffered,
		done:         make(chan struct{}),
		logger:       logger,
	}
	c.start()
	return c, nil
}

// ReportFault records fault as an activity log entry. It never blocks on
// the database.
func (c *ActivityLogCache) ReportFault(ctx context.Context, fault *stores.DataIntegrityFault) {
	msg := fault.Error()
	c.AddActivityLog(ApiTypes.ActivityLogDef{
		ActivityName: ApiTypes.ActivityName_Query,
		ActivityType: ApiTypes.ActivityType_DataIntegrity,
		AppName:      ApiTypes.AppName_DataViewer,
		ModuleName:   ApiTypes.ModuleName_QueryEngine,
		ActivityMsg:  &msg,
		CallerLoc:    "DVW_ALG_147",
	})
}

// AddActivityLog adds a record to the cache. When the cache is full the
// record is dropped and counted.
func (c *ActivityLogCache) AddActivityLog(record ApiTypes.ActivityLogDef) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.records) >= c.max_buffered {
		c.dropped++
		return
	}
	c.records = append(c.records, record)
}

// Stop signals the cache to flush remaining records and exit
func (c *ActivityLogCache) Stop() {
	c.stopOnce.Do(func() {
		close(c.done)
	})
	c.wg.Wait() // Wait for flush loop to complete
}

func (c *ActivityLogCache) start() {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.flushLoop()
	}()
}

func (c *ActivityLogCache) flushLoop() {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := c.Flush(context.Background()); err != nil {
				c.logger.Error("flush failed (ticker). Records may be lost.", "error", err)
			}

		case <-c.done:
			if err := c.Flush(context.Background()); err != nil {
				c.logger.Error("Final flush failed. Records may be lost.", "error", err)
			}
			return
		}
	}
}

// Flush writes the cached records now.
func (c *ActivityLogCache) Flush(ctx context.Context) error {
	c.mu.Lock()
	records := c.records
	dropped := c.dropped
	c.records = nil
	c.dropped = 0
	c.mu.Unlock()

	if dropped > 0 {
		c.logger.Warn("Activity log records dropped, cache full", "dropped", dropped)
	}
	return c.insertRecords(ctx, records)
}

// insertRecords inserts records into the database using a transaction
func (c *ActivityLogCache) insertRecords(ctx context.Context, records []ApiTypes.ActivityLogDef) (err error) {
	if len(records) == 0 {
		return nil
	}

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction (DVW_ALG_226): %w", err)
	}
	defer func() {
		if err != nil {
			if rollbackErr := tx.Rollback(); rollbackErr != nil {
				c.logger.Error("rollback error", "error", rollbackErr)
			}
		}
	}()

	for i, record := range records {
		stmt, args, err := c.builder.Insert(c.table_name).
			Columns("activity_name", "activity_type", "app_name", "module_name", "activity_msg", "caller_loc").
			Values(record.ActivityName, record.ActivityType, record.AppName,
				record.ModuleName, record.ActivityMsg, record.CallerLoc).
			ToSql()
		if err != nil {
			return fmt.Errorf("failed to build insert (DVW_ALG_242): %w", err)
		}
		if _, err := tx.ExecContext(ctx, stmt, args...); err != nil {
			return fmt.Errorf("record %d insert failed (DVW_ALG_245): %w", i, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction (DVW_ALG_250): %w", err)
	}
	return nil
}
