package dataviewer

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/chendingplano/dataviewer/api"
	"github.com/chendingplano/dataviewer/api/EchoFactory"
	requesthandlers "github.com/chendingplano/dataviewer/api/RequestHandlers"
	"github.com/chendingplano/dataviewer/api/databaseutil"
	"github.com/chendingplano/dataviewer/api/loggerutil"
	"github.com/chendingplano/dataviewer/api/query"
	"github.com/chendingplano/dataviewer/api/stores"
	"github.com/chendingplano/dataviewer/api/sysdatastores"
	"github.com/labstack/echo/v4"
)

// Location codes for service operations
const (
	LOC_SVC_INIT  = "DVW_SVC_090"
	LOC_SVC_RUN   = "DVW_SVC_091"
	LOC_SVC_CLOSE = "DVW_SVC_093"
)

const defaultShutdownTimeout = 10 * time.Second

// Service owns the warehouse connection and the engine built over it.
type Service struct {
	config    *Config
	db        *sql.DB
	ownsDB    bool
	warehouse *stores.Warehouse
	engine    *query.Engine
	activity  *sysdatastores.ActivityLogCache
	logger    *loggerutil.JimoLogger

	isRunning atomic.Bool
}

func NewService(config *Config, logger *loggerutil.JimoLogger) *Service {
	return &Service{
		config: config,
		logger: logger,
	}
}

// NewServiceWithDB creates a service over an existing connection. Close
// leaves db open.
func NewServiceWithDB(config *Config, db *sql.DB, logger *loggerutil.JimoLogger) *Service {
	s := NewService(config, logger)
	s.db = db
	return s
}

// Initialize opens the warehouse, builds the stores and the engine, and
// starts the activity log sink when enabled.
func (s *Service) Initialize(ctx context.Context) error {
	s.logger.Info("Initializing dataviewer service", "loc", LOC_SVC_INIT)

	if s.db == nil {
		db, err := databaseutil.OpenDB(ctx, s.config.Database, s.logger)
		if err != nil {
			return fmt.Errorf("failed to open warehouse: %w (%s)", err, LOC_SVC_INIT)
		}
		s.db = db
		s.ownsDB = true
	}

	warehouse, err := stores.NewSQLWarehouse(s.db, s.config.Database.DBType, s.config.Tables, s.logger)
	if err != nil {
		s.Close()
		return fmt.Errorf("failed to create stores: %w (%s)", err, LOC_SVC_INIT)
	}
	s.warehouse = warehouse

	reporters := query.Reporters{query.NewLogReporter(s.logger)}
	if s.config.ActivityLog.Enabled {
		table_name := s.config.ActivityLog.TableName
		if table_name == "" {
			table_name = sysdatastores.DefaultActivityLogTable
		}
		if err := sysdatastores.CreateActivityLogTable(ctx, s.db, s.config.Database.DBType, table_name); err != nil {
			s.Close()
			return fmt.Errorf("failed to create activity log table: %w (%s)", err, LOC_SVC_INIT)
		}
		cache, err := sysdatastores.NewActivityLogCache(s.db, s.config.Database.DBType, s.config.ActivityLog, s.logger)
		if err != nil {
			s.Close()
			return fmt.Errorf("failed to start activity log: %w (%s)", err, LOC_SVC_INIT)
		}
		s.activity = cache
		reporters = append(reporters, cache)
	}

	s.engine = query.NewEngine(warehouse, s.config.Query, reporters, s.logger)

	s.logger.Info("Dataviewer service initialized",
		"db_type", s.config.Database.DBType,
		"activity_log", s.config.ActivityLog.Enabled,
		"loc", LOC_SVC_INIT)
	return nil
}

// Engine returns the query engine. Initialize must have succeeded.
func (s *Service) Engine() *query.Engine {
	return s.engine
}

// Close flushes the activity log and closes the connection if the service
// opened it.
func (s *Service) Close() {
	if s.activity != nil {
		s.activity.Stop()
		s.activity = nil
	}
	if s.ownsDB && s.db != nil {
		databaseutil.CloseDatabase(s.db)
		s.db = nil
	}
	s.logger.Info("Dataviewer service closed", "loc", LOC_SVC_CLOSE)
}

// NewServer returns the echo server with every route registered.
func (s *Service) NewServer() *echo.Echo {
	e := EchoFactory.NewEcho(s.config.Server, s.logger)
	h := requesthandlers.NewHandlers(s.engine, s.config.Server.StrictIDs)
	api.RegisterRoutes(e, h, s.config.Server.BasePath)
	return e
}

// RunServer serves HTTP until ctx is cancelled, then shuts down within the
// configured timeout.
func (s *Service) RunServer(ctx context.Context) error {
	if !s.isRunning.CompareAndSwap(false, true) {
		return fmt.Errorf("server is already running (%s)", LOC_SVC_RUN)
	}
	defer s.isRunning.Store(false)

	e := s.NewServer()
	addr := net.JoinHostPort(s.config.Server.Host, strconv.Itoa(s.config.Server.Port))

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Starting HTTP server", "addr", addr, "loc", LOC_SVC_RUN)
		errCh <- e.Start(addr)
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server failed: %w (%s)", err, LOC_SVC_RUN)
		}
		return nil

	case <-ctx.Done():
		s.logger.Info("Shutting down HTTP server", "loc", LOC_SVC_RUN)
		timeout := s.config.Server.ShutdownTimeout()
		if timeout <= 0 {
			timeout = defaultShutdownTimeout
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		if err := e.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("http server shutdown failed: %w (%s)", err, LOC_SVC_RUN)
		}
		return nil
	}
}
