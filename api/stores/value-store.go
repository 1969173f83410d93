package stores

import (
	"context"
	"database/sql"
	"sort"

	sq "github.com/Masterminds/squirrel"
	ds "github.com/chendingplano/dataviewer/api/datastructures"
	"github.com/shopspring/decimal"
)

type SQLValueStore struct {
	*sqlBase
}

// DistinctYears includes years whose only rows hold a NULL value.
func (s *SQLValueStore) DistinctYears(ctx context.Context, variableID int64) ([]int, error) {
	q := s.builder.Select("DISTINCT year").
		From(s.tables.DataValues).
		Where(sq.Eq{"fk_var_id": variableID}).
		OrderBy("year")
	rows, err := s.query(ctx, "distinct years", "DVW_VAL_024", q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	years := []int{}
	for rows.Next() {
		var year int
		if err := rows.Scan(&year); err != nil {
			return nil, wrapStoreError("scan year", "DVW_VAL_033", err)
		}
		years = append(years, year)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapStoreError("distinct years", "DVW_VAL_038", err)
	}
	rows.Close()

	if len(years) == 0 {
		if err := s.variableExists(ctx, variableID); err != nil {
			return nil, err
		}
	}
	return years, nil
}

// DistinctEntities only returns entities that resolve. Value rows whose
// entity is missing from the entity table are logged and skipped.
func (s *SQLValueStore) DistinctEntities(ctx context.Context, variableID int64) ([]ds.Entity, error) {
	q := s.builder.Select("DISTINCT dv.fk_ent_id", "e.name").
		From(s.tables.DataValues + " dv").
		LeftJoin(s.tables.Entities + " e ON e.id = dv.fk_ent_id").
		Where(sq.Eq{"dv.fk_var_id": variableID})
	rows, err := s.query(ctx, "distinct entities", "DVW_VAL_047", q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entities := []ds.Entity{}
	var unknown []int64
	for rows.Next() {
		var id int64
		var name sql.NullString
		if err := rows.Scan(&id, &name); err != nil {
			return nil, wrapStoreError("scan entity", "DVW_VAL_057", err)
		}
		if !name.Valid {
			unknown = append(unknown, id)
			continue
		}
		entities = append(entities, ds.Entity{ID: id, Name: name.String})
	}
	if err := rows.Err(); err != nil {
		return nil, wrapStoreError("distinct entities", "DVW_VAL_062", err)
	}
	rows.Close()

	if len(unknown) > 0 {
		s.logger.Warn("Values reference unknown entities",
			"kind", FaultUnknownEntity,
			"variable_id", variableID,
			"entity_ids", unknown,
			"loc", "DVW_VAL_075")
	}

	if len(entities) == 0 {
		if err := s.variableExists(ctx, variableID); err != nil {
			return nil, err
		}
	}

	// Collation differs per backend, so order in Go.
	SortEntities(entities)
	return entities, nil
}

func (s *SQLValueStore) FilteredValues(
	ctx context.Context,
	variableID int64,
	entityIDs []int64,
	years []int) ([]ds.ValuePoint, error) {
	points := []ds.ValuePoint{}
	if len(entityIDs) == 0 || len(years) == 0 {
		return points, nil
	}

	// Chunks are taken from the ascending id list, so appending the
	// per-chunk results keeps the (entity, year) order.
	ids := dedupeIDs(entityIDs)
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	year_set := dedupeYears(years)

	type pointKey struct {
		entity int64
		year   int
	}
	seen := make(map[pointKey]struct{})

	for _, chunk := range chunkIDs(ids, maxIDsPerStatement) {
		q := s.builder.Select("fk_ent_id", "year", "value").
			From(s.tables.DataValues).
			Where(sq.Eq{"fk_var_id": variableID}).
			Where(sq.Eq{"fk_ent_id": chunk}).
			Where(sq.Eq{"year": year_set}).
			Where(sq.NotEq{"value": nil}).
			OrderBy("fk_ent_id", "year")
		rows, err := s.query(ctx, "filtered values", "DVW_VAL_099", q)
		if err != nil {
			return nil, err
		}

		for rows.Next() {
			var entityID int64
			var year int
			var raw sql.NullString
			if err := rows.Scan(&entityID, &year, &raw); err != nil {
				rows.Close()
				return nil, wrapStoreError("scan value", "DVW_VAL_110", err)
			}

			value, ok := parseValue(raw)
			if !ok {
				s.logger.Warn("Skip unparsable value",
					"variable_id", variableID,
					"entity_id", entityID,
					"year", year,
					"raw", raw.String)
				continue
			}

			key := pointKey{entity: entityID, year: year}
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}

			points = append(points, ds.ValuePoint{
				VariableID: variableID,
				EntityID:   entityID,
				Year:       year,
				Value:      value,
			})
		}
		err = rows.Err()
		rows.Close()
		if err != nil {
			return nil, wrapStoreError("filtered values", "DVW_VAL_138", err)
		}
	}
	return points, nil
}

func (s *SQLValueStore) DistinctVariableEntityPairs(ctx context.Context) ([]ds.VariableEntityPair, error) {
	q := s.builder.Select("DISTINCT fk_var_id", "fk_ent_id").
		From(s.tables.DataValues).
		OrderBy("fk_var_id", "fk_ent_id")
	rows, err := s.query(ctx, "variable entity pairs", "DVW_VAL_148", q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	pairs := []ds.VariableEntityPair{}
	for rows.Next() {
		var p ds.VariableEntityPair
		if err := rows.Scan(&p.VariableID, &p.EntityID); err != nil {
			return nil, wrapStoreError("scan pair", "DVW_VAL_158", err)
		}
		pairs = append(pairs, p)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapStoreError("variable entity pairs", "DVW_VAL_163", err)
	}
	return pairs, nil
}

// variableExists returns ErrNotFound when variableID has no row in the
// variables table. It is only consulted when a per-variable query came
// back empty.
func (s *SQLValueStore) variableExists(ctx context.Context, variableID int64) error {
	var id int64
	q := s.builder.Select("id").
		From(s.tables.Variables).
		Where(sq.Eq{"id": variableID})
	return s.queryRow(ctx, "lookup variable", "DVW_VAL_176", q, &id)
}

// parseValue converts a scanned value column. NULL and non-finite values
// (NaN, Inf) are rejected.
func parseValue(raw sql.NullString) (decimal.Decimal, bool) {
	if !raw.Valid {
		return decimal.Decimal{}, false
	}
	value, err := decimal.NewFromString(raw.String)
	if err != nil {
		return decimal.Decimal{}, false
	}
	return value, true
}

// SortEntities orders entities by name (byte order), then id.
func SortEntities(entities []ds.Entity) {
	sort.SliceStable(entities, func(i, j int) bool {
		if entities[i].Name != entities[j].Name {
			return entities[i].Name < entities[j].Name
		}
		return entities[i].ID < entities[j].ID
	})
}

func dedupeYears(years []int) []int {
	seen := make(map[int]struct{}, len(years))
	out := make([]int, 0, len(years))
	for _, y := range years {
		if _, ok := seen[y]; ok {
			continue
		}
		seen[y] = struct{}{}
		out = append(out, y)
	}
	return out
}
