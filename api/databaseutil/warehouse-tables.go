package databaseutil

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/chendingplano/dataviewer/api/ApiTypes"
)

// CreateWarehouseTables creates the warehouse schema when it is missing.
// The engine itself never writes; this exists for local sqlite warehouses,
// fixtures and integration environments.
func CreateWarehouseTables(
	ctx context.Context,
	db *sql.DB,
	db_type string,
	tables ApiTypes.WarehouseTables) error {
	if err := ValidateTables(tables); err != nil {
		return err
	}

	var idType, nameType, valueType, suffix string
	switch db_type {
	case ApiTypes.MysqlName:
		idType, nameType, valueType = "BIGINT", "VARCHAR(255)", "DECIMAL(38,10)"
		suffix = " ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci"

	case ApiTypes.PgName:
		idType, nameType, valueType = "BIGINT", "VARCHAR(255)", "NUMERIC"

	case ApiTypes.SqliteName:
		idType, nameType, valueType = "INTEGER", "TEXT", "REAL"

	default:
		return fmt.Errorf("database type not supported:%s (DVW_WHT_034)", db_type)
	}

	stmts := []string{
		fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (id %s NOT NULL PRIMARY KEY, name %s NOT NULL)%s",
			tables.Categories, idType, nameType, suffix),
		fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (id %s NOT NULL PRIMARY KEY, name %s NOT NULL, "+
			"fk_dst_cat_id %s NOT NULL)%s",
			tables.Subcategories, idType, nameType, idType, suffix),
		fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (id %s NOT NULL PRIMARY KEY, name %s NOT NULL, "+
			"fk_dst_cat_id %s NOT NULL, fk_dst_subcat_id %s NOT NULL)%s",
			tables.Datasets, idType, nameType, idType, idType, suffix),
		fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (id %s NOT NULL PRIMARY KEY, name %s NOT NULL, "+
			"unit %s NOT NULL DEFAULT '', fk_dst_id %s NOT NULL)%s",
			tables.Variables, idType, nameType, nameType, idType, suffix),
		fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (id %s NOT NULL PRIMARY KEY, name %s NOT NULL)%s",
			tables.Entities, idType, nameType, suffix),
		fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (fk_var_id %s NOT NULL, fk_ent_id %s NOT NULL, "+
			"year INTEGER NOT NULL, value %s, PRIMARY KEY (fk_var_id, fk_ent_id, year))%s",
			tables.DataValues, idType, idType, valueType, suffix),
	}

	// MySQL has no CREATE INDEX IF NOT EXISTS; the primary key already
	// leads with fk_var_id there.
	if db_type != ApiTypes.MysqlName {
		stmts = append(stmts, fmt.Sprintf("CREATE INDEX IF NOT EXISTS idx_%s_var_year ON %s (fk_var_id, year)",
			tables.DataValues, tables.DataValues))
	}

	for _, stmt := range stmts {
		if err := ExecuteStatement(ctx, db, stmt); err != nil {
			return fmt.Errorf("failed creating warehouse table (DVW_WHT_071): %w", err)
		}
	}
	return nil
}
