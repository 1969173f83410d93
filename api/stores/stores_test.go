package stores_test

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"testing"

	"github.com/chendingplano/dataviewer/api/ApiTypes"
	ds "github.com/chendingplano/dataviewer/api/datastructures"
	"github.com/chendingplano/dataviewer/api/loggerutil"
	"github.com/chendingplano/dataviewer/api/stores"
	"github.com/chendingplano/dataviewer/api/stores/storetest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEntityStore(t *testing.T) {
	ctx := context.Background()
	for name, w := range storetest.Default().Backends(t) {
		t.Run(name, func(t *testing.T) {
			entity, err := w.Entities.LookupByID(ctx, storetest.EntityUnder15)
			require.NoError(t, err)
			assert.Equal(t, "Under 15", entity.Name)

			_, err = w.Entities.LookupByID(ctx, 999999)
			assert.ErrorIs(t, err, stores.ErrNotFound)

			names, err := w.Entities.ListByIDs(ctx, []int64{storetest.EntityBrazil, 999999, storetest.EntityBrazil})
			require.NoError(t, err)
			assert.Equal(t, map[int64]string{storetest.EntityBrazil: "Brazil"}, names)

			names, err = w.Entities.ListByIDs(ctx, nil)
			require.NoError(t, err)
			assert.Empty(t, names)

			all, err := w.Entities.ListAll(ctx)
			require.NoError(t, err)
			assert.Len(t, all, 4)
		})
	}
}

func TestTaxonomyStore(t *testing.T) {
	ctx := context.Background()
	for name, w := range storetest.Default().Backends(t) {
		t.Run(name, func(t *testing.T) {
			categories, err := w.Taxonomy.ListCategories(ctx)
			require.NoError(t, err)
			assert.Equal(t, []ds.Category{
				{ID: storetest.CategoryPopulation, Name: "Population"},
				{ID: storetest.CategoryEconomy, Name: "Economy"},
			}, categories)

			all, err := w.Taxonomy.ListSubcategories(ctx, nil)
			require.NoError(t, err)
			assert.Len(t, all, 3)

			cat := storetest.CategoryPopulation
			subs, err := w.Taxonomy.ListSubcategories(ctx, &cat)
			require.NoError(t, err)
			require.Len(t, subs, 2)
			assert.Equal(t, storetest.SubcategoryAge, subs[0].ID)
			assert.Equal(t, storetest.SubcategoryMigration, subs[1].ID)

			missing := int64(424242)
			subs, err = w.Taxonomy.ListSubcategories(ctx, &missing)
			require.NoError(t, err)
			assert.Empty(t, subs)

			sub := storetest.SubcategoryAge
			vars, err := w.Taxonomy.ListVariables(ctx, &sub)
			require.NoError(t, err)
			require.Len(t, vars, 2)
			assert.Equal(t, storetest.VariablePopulation, vars[0].ID)
			assert.Equal(t, "persons", vars[0].Unit)
			assert.True(t, vars[0].Resolved)
			assert.Equal(t, storetest.SubcategoryAge, vars[0].SubcategoryID)
			assert.Equal(t, storetest.CategoryPopulation, vars[0].CategoryID)

			v, err := w.Taxonomy.LookupVariable(ctx, storetest.VariableGDP)
			require.NoError(t, err)
			assert.Equal(t, "GDP growth", v.Name)
			assert.Equal(t, storetest.DatasetOutput, v.DatasetID)

			_, err = w.Taxonomy.LookupVariable(ctx, 999999)
			assert.ErrorIs(t, err, stores.ErrNotFound)
		})
	}
}

func TestListVariablesKeepsDanglingDataset(t *testing.T) {
	ctx := context.Background()
	f := storetest.Default().AddVariable(4000, "Orphan", "", 999)
	for name, w := range f.Backends(t) {
		t.Run(name, func(t *testing.T) {
			vars, err := w.Taxonomy.ListVariables(ctx, nil)
			require.NoError(t, err)
			require.Len(t, vars, 4)

			orphan := vars[3]
			assert.Equal(t, int64(4000), orphan.ID)
			assert.Equal(t, int64(999), orphan.DatasetID)
			assert.False(t, orphan.Resolved)
		})
	}
}

func TestDistinctYears(t *testing.T) {
	ctx := context.Background()
	for name, w := range storetest.Default().Backends(t) {
		t.Run(name, func(t *testing.T) {
			years, err := w.Values.DistinctYears(ctx, storetest.VariablePopulation)
			require.NoError(t, err)
			assert.Equal(t, []int{1980, 1990}, years)

			// Argentina's NULL 2001 still counts; Brazil has 2001 anyway.
			years, err = w.Values.DistinctYears(ctx, storetest.VariableGDP)
			require.NoError(t, err)
			assert.Equal(t, []int{2000, 2001}, years)

			years, err = w.Values.DistinctYears(ctx, storetest.VariableDependency)
			require.NoError(t, err)
			assert.Empty(t, years)

			_, err = w.Values.DistinctYears(ctx, 999999)
			assert.ErrorIs(t, err, stores.ErrNotFound)
		})
	}
}

func TestDistinctEntities(t *testing.T) {
	ctx := context.Background()
	f := storetest.Default()
	// Same name as Brazil with a lower id: ties order by id.
	f.Entities = append(f.Entities, f.Entities[2])
	f.Entities[len(f.Entities)-1].ID = 7
	f.AddValue(storetest.VariableGDP, 7, 2000, "9")

	for name, w := range f.Backends(t) {
		t.Run(name, func(t *testing.T) {
			entities, err := w.Values.DistinctEntities(ctx, storetest.VariableGDP)
			require.NoError(t, err)
			assert.Equal(t, []ds.Entity{
				{ID: storetest.EntityArgentina, Name: "Argentina"},
				{ID: 7, Name: "Brazil"},
				{ID: storetest.EntityBrazil, Name: "Brazil"},
			}, entities)

			entities, err = w.Values.DistinctEntities(ctx, storetest.VariablePopulation)
			require.NoError(t, err)
			assert.Equal(t, []ds.Entity{{ID: storetest.EntityUnder15, Name: "Under 15"}}, entities)

			_, err = w.Values.DistinctEntities(ctx, 999999)
			assert.ErrorIs(t, err, stores.ErrNotFound)
		})
	}
}

func TestDistinctEntitiesLogsUnknownEntity(t *testing.T) {
	ctx := context.Background()
	f := storetest.Default().AddValue(storetest.VariableGDP, 888, 2000, "9")
	db := storetest.OpenSQLite(t)
	tables := ApiTypes.DefaultWarehouseTables()
	require.NoError(t, f.Load(ctx, db, ApiTypes.SqliteName, tables))

	var buf bytes.Buffer
	w, err := stores.NewSQLWarehouse(db, ApiTypes.SqliteName, tables, loggerutil.New(slog.NewTextHandler(&buf, nil)))
	require.NoError(t, err)

	entities, err := w.Values.DistinctEntities(ctx, storetest.VariableGDP)
	require.NoError(t, err)
	for _, e := range entities {
		assert.NotEqual(t, int64(888), e.ID)
	}
	assert.Len(t, entities, 2)
	assert.Contains(t, buf.String(), "unknown_entity")
	assert.Contains(t, buf.String(), "888")
}

func TestFilteredValues(t *testing.T) {
	ctx := context.Background()
	for name, w := range storetest.Default().Backends(t) {
		t.Run(name, func(t *testing.T) {
			points, err := w.Values.FilteredValues(ctx, storetest.VariableGDP,
				[]int64{storetest.EntityArgentina, storetest.EntityBrazil, storetest.EntityArgentina, 999999},
				[]int{2001, 2000, 1999})
			require.NoError(t, err)

			type got struct {
				entity int64
				year   int
				value  string
			}
			var rows []got
			for _, p := range points {
				assert.Equal(t, storetest.VariableGDP, p.VariableID)
				rows = append(rows, got{p.EntityID, p.Year, p.Value.String()})
			}
			assert.Equal(t, []got{
				{storetest.EntityBrazil, 2000, "1.5"},
				{storetest.EntityBrazil, 2001, "2.25"},
				{storetest.EntityArgentina, 2000, "3"},
			}, rows)
		})
	}
}

func TestFilteredValuesEmptyFilter(t *testing.T) {
	ctx := context.Background()
	for name, w := range storetest.Default().Backends(t) {
		t.Run(name, func(t *testing.T) {
			points, err := w.Values.FilteredValues(ctx, storetest.VariableGDP, nil, []int{2000})
			require.NoError(t, err)
			assert.Empty(t, points)

			points, err = w.Values.FilteredValues(ctx, storetest.VariableGDP, []int64{storetest.EntityBrazil}, []int{})
			require.NoError(t, err)
			assert.Empty(t, points)
		})
	}
}

func TestFilteredValuesManyIDs(t *testing.T) {
	ctx := context.Background()
	w := storetest.Default().SQLWarehouse(t)

	// Spans several IN (...) chunks.
	ids := make([]int64, 0, 2500)
	for id := int64(2500); id > 0; id-- {
		ids = append(ids, id)
	}
	points, err := w.Values.FilteredValues(ctx, storetest.VariableGDP, ids, []int{2000})
	require.NoError(t, err)
	require.Len(t, points, 2)
	assert.Equal(t, storetest.EntityBrazil, points[0].EntityID)
	assert.Equal(t, storetest.EntityArgentina, points[1].EntityID)
}

func TestDistinctVariableEntityPairs(t *testing.T) {
	ctx := context.Background()
	for name, w := range storetest.Default().Backends(t) {
		t.Run(name, func(t *testing.T) {
			pairs, err := w.Values.DistinctVariableEntityPairs(ctx)
			require.NoError(t, err)
			assert.Equal(t, []ds.VariableEntityPair{
				{VariableID: storetest.VariablePopulation, EntityID: storetest.EntityUnder15},
				{VariableID: storetest.VariableGDP, EntityID: storetest.EntityBrazil},
				{VariableID: storetest.VariableGDP, EntityID: storetest.EntityArgentina},
			}, pairs)
		})
	}
}

func TestNewSQLWarehouseRejectsBadTableName(t *testing.T) {
	db := storetest.OpenSQLite(t)
	tables := ApiTypes.DefaultWarehouseTables()
	tables.DataValues = "data_values; DROP TABLE entities"

	_, err := stores.NewSQLWarehouse(db, ApiTypes.SqliteName, tables, loggerutil.NewNopLogger())
	assert.Error(t, err)

	_, err = stores.NewSQLWarehouse(db, "oracle", ApiTypes.DefaultWarehouseTables(), loggerutil.NewNopLogger())
	assert.Error(t, err)
}

func TestWarehousePing(t *testing.T) {
	ctx := context.Background()
	for name, w := range storetest.Default().Backends(t) {
		t.Run(name, func(t *testing.T) {
			assert.NoError(t, w.Ping(ctx))
		})
	}
}

func TestCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	for name, w := range storetest.Default().Backends(t) {
		t.Run(name, func(t *testing.T) {
			_, err := w.Values.DistinctYears(ctx, storetest.VariablePopulation)
			assert.ErrorIs(t, err, context.Canceled)
		})
	}
}

func TestDataIntegrityFault(t *testing.T) {
	var err error = stores.NewDataIntegrityFault(stores.FaultDanglingDataset, 4000, 0, "dataset 999")
	wrapped := fmt.Errorf("build metadata (DVW_TST_001): %w", err)

	fault, ok := stores.AsDataIntegrityFault(wrapped)
	require.True(t, ok)
	assert.Equal(t, stores.FaultDanglingDataset, fault.Kind)
	assert.Equal(t, int64(4000), fault.VariableID)
	assert.Contains(t, fault.Error(), "variable_id:4000")
	assert.NotContains(t, fault.Error(), "entity_id")

	_, ok = stores.AsDataIntegrityFault(stores.ErrNotFound)
	assert.False(t, ok)
}
