package stores

import (
	"context"

	sq "github.com/Masterminds/squirrel"
	ds "github.com/chendingplano/dataviewer/api/datastructures"
)

type SQLEntityStore struct {
	*sqlBase
}

func (s *SQLEntityStore) LookupByID(ctx context.Context, id int64) (ds.Entity, error) {
	var entity ds.Entity
	q := s.builder.Select("id", "name").
		From(s.tables.Entities).
		Where(sq.Eq{"id": id})
	if err := s.queryRow(ctx, "lookup entity", "DVW_ENT_019", q, &entity.ID, &entity.Name); err != nil {
		return ds.Entity{}, err
	}
	return entity, nil
}

func (s *SQLEntityStore) ListByIDs(ctx context.Context, ids []int64) (map[int64]string, error) {
	names := make(map[int64]string, len(ids))
	if len(ids) == 0 {
		return names, nil
	}

	for _, chunk := range chunkIDs(dedupeIDs(ids), maxIDsPerStatement) {
		q := s.builder.Select("id", "name").
			From(s.tables.Entities).
			Where(sq.Eq{"id": chunk})
		rows, err := s.query(ctx, "list entities by id", "DVW_ENT_036", q)
		if err != nil {
			return nil, err
		}

		for rows.Next() {
			var id int64
			var name string
			if err := rows.Scan(&id, &name); err != nil {
				rows.Close()
				return nil, wrapStoreError("scan entity", "DVW_ENT_045", err)
			}
			names[id] = name
		}
		err = rows.Err()
		rows.Close()
		if err != nil {
			return nil, wrapStoreError("list entities by id", "DVW_ENT_052", err)
		}
	}
	return names, nil
}

func (s *SQLEntityStore) ListAll(ctx context.Context) ([]ds.Entity, error) {
	q := s.builder.Select("id", "name").From(s.tables.Entities)
	rows, err := s.query(ctx, "list entities", "DVW_ENT_060", q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entities := []ds.Entity{}
	for rows.Next() {
		var entity ds.Entity
		if err := rows.Scan(&entity.ID, &entity.Name); err != nil {
			return nil, wrapStoreError("scan entity", "DVW_ENT_070", err)
		}
		entities = append(entities, entity)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapStoreError("list entities", "DVW_ENT_075", err)
	}
	return entities, nil
}

// dedupeIDs returns ids without repeats, keeping first-seen order.
func dedupeIDs(ids []int64) []int64 {
	seen := make(map[int64]struct{}, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
