package databaseutil

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/chendingplano/dataviewer/api/ApiTypes"
	"github.com/chendingplano/dataviewer/api/loggerutil"
	"github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

var tableNameRegex = regexp.MustCompile(`^[a-zA-Z0-9_]+$`)

// Helper to validate table names (prevents SQL injection)
func IsValidTableName(name string) bool {
	// To prevent SQL injection, table names should be made of alphanumerics
	// and underscores only;
	return tableNameRegex.MatchString(name)
}

// ValidateTables checks every configured warehouse table name.
func ValidateTables(tables ApiTypes.WarehouseTables) error {
	for _, name := range tables.All() {
		if !IsValidTableName(name) {
			return fmt.Errorf("invalid table name (DVW_DBS_033):%q", name)
		}
	}
	return nil
}

// OpenDB opens and pings the warehouse described by config. The returned
// handle is shared by all stores; it is safe for concurrent use.
func OpenDB(ctx context.Context, config ApiTypes.DBConfig, logger *loggerutil.JimoLogger) (*sql.DB, error) {
	driverName, dsn, err := connectionString(config)
	if err != nil {
		return nil, err
	}

	// SECURITY: Don't log credentials
	logger.Info("Connect to warehouse (DVW_DBS_049)",
		"db_type", config.DBType,
		"driver", driverName,
		"host", config.Host,
		"port", config.Port,
		"db_name", config.DbName)

	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database (DVW_DBS_058): %w", err)
	}

	if config.MaxOpenConns > 0 {
		db.SetMaxOpenConns(config.MaxOpenConns)
	}
	if config.MaxIdleConns > 0 {
		db.SetMaxIdleConns(config.MaxIdleConns)
	}
	if config.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(config.ConnMaxLifetimeDuration())
	}
	if config.DBType == ApiTypes.SqliteName && IsSQLiteMemoryDSN(config.DSN) {
		// Every connection to an in-memory sqlite database opens its own.
		db.SetMaxOpenConns(1)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		// SECURITY: Don't log connection string (contains credentials)
		logger.Error("Failed to ping warehouse", "db_type", config.DBType, "host", config.Host, "error", err)
		return nil, fmt.Errorf("failed to connect to database (DVW_DBS_076): %w", err)
	}

	logger.Info("Connected to warehouse (DVW_DBS_079)", "db_type", config.DBType)
	return db, nil
}

// IsSQLiteMemoryDSN reports whether dsn names an in-memory sqlite database.
func IsSQLiteMemoryDSN(dsn string) bool {
	return dsn == ":memory:" ||
		strings.HasPrefix(dsn, "file::memory:") ||
		strings.Contains(dsn, "mode=memory")
}

func connectionString(config ApiTypes.DBConfig) (string, string, error) {
	switch config.DBType {
	case ApiTypes.MysqlName:
		mc := mysql.NewConfig()
		mc.User = config.UserName
		mc.Passwd = config.Password
		mc.Net = "tcp"
		mc.Addr = config.Host + ":" + strconv.Itoa(config.Port)
		mc.DBName = config.DbName
		mc.ParseTime = true
		mc.Timeout = 30 * time.Second
		mc.ReadTimeout = 30 * time.Second
		return "mysql", mc.FormatDSN(), nil

	case ApiTypes.PgName:
		connStr := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
			config.Host, config.Port, config.UserName, config.Password, config.DbName)
		switch config.PGDriver {
		case ApiTypes.PGDriverPGX:
			return ApiTypes.PGDriverPGX, connStr, nil
		case ApiTypes.PGDriverPQ, "":
			return ApiTypes.PGDriverPQ, connStr, nil
		default:
			return "", "", fmt.Errorf("unsupported pg_driver (DVW_DBS_105): %s", config.PGDriver)
		}

	case ApiTypes.SqliteName:
		if config.DSN == "" {
			return "", "", fmt.Errorf("sqlite backend requires database.dsn (DVW_DBS_110)")
		}
		return "sqlite", config.DSN, nil

	default:
		return "", "", fmt.Errorf("unsupported database type (DVW_DBS_114): %s", config.DBType)
	}
}

// StatementBuilder returns a squirrel builder using the placeholder style
// of db_type: $n for PostgreSQL, ? for MySQL and SQLite.
func StatementBuilder(db_type string) sq.StatementBuilderType {
	if db_type == ApiTypes.PgName {
		return sq.StatementBuilder.PlaceholderFormat(sq.Dollar)
	}
	return sq.StatementBuilder.PlaceholderFormat(sq.Question)
}

func ExecuteStatement(ctx context.Context, db *sql.DB, stmt string) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction (DVW_DBS_130): %w", err)
	}

	defer func() {
		_ = tx.Rollback() // Rollback if not committed
	}()

	if _, err := tx.ExecContext(ctx, stmt); err != nil {
		return fmt.Errorf("failed to execute query (DVW_DBS_138), error: %w, stmt:%s", err, stmt)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction (DVW_DBS_142): %w", err)
	}
	return nil
}

func CloseDatabase(db *sql.DB) {
	if db != nil {
		db.Close()
	}
}
