package stores

import (
	"context"
	"database/sql"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/chendingplano/dataviewer/api/ApiTypes"
	"github.com/chendingplano/dataviewer/api/databaseutil"
	"github.com/chendingplano/dataviewer/api/loggerutil"
)

// maxIDsPerStatement bounds the placeholders of one IN (...) lookup.
const maxIDsPerStatement = 1000

// sqlBase is shared by the three SQL stores.
type sqlBase struct {
	db      *sql.DB
	db_type string
	builder sq.StatementBuilderType
	tables  ApiTypes.WarehouseTables
	logger  *loggerutil.JimoLogger
}

// NewSQLWarehouse builds the SQL stores over db. Table names are validated
// here because they are the only identifiers placed in statement text.
func NewSQLWarehouse(
	db *sql.DB,
	db_type string,
	tables ApiTypes.WarehouseTables,
	logger *loggerutil.JimoLogger) (*Warehouse, error) {
	if !ApiTypes.IsValidDBType(db_type) {
		return nil, fmt.Errorf("unsupported database type (DVW_SSM_033): %s", db_type)
	}
	if err := databaseutil.ValidateTables(tables); err != nil {
		return nil, err
	}

	base := &sqlBase{
		db:      db,
		db_type: db_type,
		builder: databaseutil.StatementBuilder(db_type),
		tables:  tables,
		logger:  logger,
	}

	return &Warehouse{
		Entities: &SQLEntityStore{base},
		Taxonomy: &SQLTaxonomyStore{base},
		Values:   &SQLValueStore{base},
		backend:  db,
	}, nil
}

// query renders b and runs it. Callers own the returned rows.
func (s *sqlBase) query(ctx context.Context, op string, loc string, b sq.Sqlizer) (*sql.Rows, error) {
	stmt, args, err := b.ToSql()
	if err != nil {
		return nil, fmt.Errorf("%s: failed to build statement (%s): %w", op, loc, err)
	}

	s.logger.Debug("Run query", "op", op, "stmt", stmt, "num_args", len(args))
	rows, err := s.db.QueryContext(ctx, stmt, args...)
	if err != nil {
		s.logger.Error("query failed", "op", op, "loc", loc, "error", err, "stmt", stmt)
		return nil, wrapStoreError(op, loc, err)
	}
	return rows, nil
}

func (s *sqlBase) queryRow(ctx context.Context, op string, loc string, b sq.Sqlizer, dest ...any) error {
	stmt, args, err := b.ToSql()
	if err != nil {
		return fmt.Errorf("%s: failed to build statement (%s): %w", op, loc, err)
	}

	if err := s.db.QueryRowContext(ctx, stmt, args...).Scan(dest...); err != nil {
		return wrapStoreError(op, loc, err)
	}
	return nil
}

// chunkIDs splits ids into slices of at most size elements.
func chunkIDs(ids []int64, size int) [][]int64 {
	var chunks [][]int64
	for start := 0; start < len(ids); start += size {
		end := start + size
		if end > len(ids) {
			end = len(ids)
		}
		chunks = append(chunks, ids[start:end])
	}
	return chunks
}
