// Package storetest loads a small, fixed warehouse into a MemStore or a
// SQL database so that packages above the stores can test against both.
package storetest

import (
	"context"
	"database/sql"
	"testing"

	sq "github.com/Masterminds/squirrel"
	"github.com/chendingplano/dataviewer/api/ApiTypes"
	"github.com/chendingplano/dataviewer/api/databaseutil"
	"github.com/chendingplano/dataviewer/api/loggerutil"
	"github.com/chendingplano/dataviewer/api/stores"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

// Well-known ids of the fixture.
const (
	CategoryPopulation int64 = 1
	CategoryEconomy    int64 = 2

	SubcategoryAge       int64 = 10
	SubcategoryMigration int64 = 11
	SubcategoryOutput    int64 = 20

	DatasetAge    int64 = 100
	DatasetOutput int64 = 200

	VariablePopulation int64 = 2020
	VariableDependency int64 = 2021
	VariableGDP        int64 = 3001

	EntityUnder15    int64 = 34676
	EntityWorkingAge int64 = 34677
	EntityBrazil     int64 = 50
	EntityArgentina  int64 = 51
)

type Row struct {
	VariableID int64
	EntityID   int64
	Year       int
	Value      *decimal.Decimal
}

// Fixture is the warehouse content, table by table.
type Fixture struct {
	Categories    []categoryRow
	Subcategories []subcategoryRow
	Datasets      []datasetRow
	Variables     []variableRow
	Entities      []entityRow
	Values        []Row
}

type categoryRow struct {
	ID   int64
	Name string
}

type subcategoryRow struct {
	ID         int64
	Name       string
	CategoryID int64
}

type datasetRow struct {
	ID            int64
	Name          string
	SubcategoryID int64
	CategoryID    int64
}

type variableRow struct {
	ID        int64
	Name      string
	Unit      string
	DatasetID int64
}

type entityRow struct {
	ID   int64
	Name string
}

func dec(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}

// Default returns the standard fixture:
//
//	Population(1) / Age structure(10) / dataset 100 / 2020, 2021
//	Population(1) / Migration(11)     / (no variables)
//	Economy(2)    / Output(20)        / dataset 200 / 3001
//
// Variable 2020 has values for "Under 15" in 1980 and 1990. Variable 3001
// has values for Brazil and Argentina in 2000 and 2001, with Argentina's
// 2001 value NULL. Variable 2021 has no values and entity 34677 is never
// referenced.
func Default() *Fixture {
	return &Fixture{
		Categories: []categoryRow{
			{CategoryPopulation, "Population"},
			{CategoryEconomy, "Economy"},
		},
		Subcategories: []subcategoryRow{
			{SubcategoryAge, "Age structure", CategoryPopulation},
			{SubcategoryMigration, "Migration", CategoryPopulation},
			{SubcategoryOutput, "Output", CategoryEconomy},
		},
		Datasets: []datasetRow{
			{DatasetAge, "Population estimates", SubcategoryAge, CategoryPopulation},
			{DatasetOutput, "National accounts", SubcategoryOutput, CategoryEconomy},
		},
		Variables: []variableRow{
			{VariablePopulation, "Population by age", "persons", DatasetAge},
			{VariableDependency, "Dependency ratio", "%", DatasetAge},
			{VariableGDP, "GDP growth", "%", DatasetOutput},
		},
		Entities: []entityRow{
			{EntityUnder15, "Under 15"},
			{EntityWorkingAge, "15-64"},
			{EntityBrazil, "Brazil"},
			{EntityArgentina, "Argentina"},
		},
		Values: []Row{
			{VariablePopulation, EntityUnder15, 1980, dec("100")},
			{VariablePopulation, EntityUnder15, 1990, dec("120")},
			{VariableGDP, EntityBrazil, 2000, dec("1.5")},
			{VariableGDP, EntityBrazil, 2001, dec("2.25")},
			{VariableGDP, EntityArgentina, 2000, dec("3")},
			{VariableGDP, EntityArgentina, 2001, nil},
		},
	}
}

func (f *Fixture) AddVariable(id int64, name string, unit string, datasetID int64) *Fixture {
	f.Variables = append(f.Variables, variableRow{id, name, unit, datasetID})
	return f
}

func (f *Fixture) AddDataset(id int64, subcategoryID int64, categoryID int64) *Fixture {
	f.Datasets = append(f.Datasets, datasetRow{id, "dataset", subcategoryID, categoryID})
	return f
}

func (f *Fixture) AddSubcategory(id int64, name string, categoryID int64) *Fixture {
	f.Subcategories = append(f.Subcategories, subcategoryRow{id, name, categoryID})
	return f
}

func (f *Fixture) AddValue(variableID, entityID int64, year int, value string) *Fixture {
	f.Values = append(f.Values, Row{variableID, entityID, year, dec(value)})
	return f
}

// Mem loads the fixture into a new MemStore.
func (f *Fixture) Mem() *stores.MemStore {
	m := stores.NewMemStore()
	for _, c := range f.Categories {
		m.AddCategory(c.ID, c.Name)
	}
	for _, s := range f.Subcategories {
		m.AddSubcategory(s.ID, s.Name, s.CategoryID)
	}
	for _, d := range f.Datasets {
		m.AddDataset(d.ID, d.SubcategoryID, d.CategoryID)
	}
	for _, v := range f.Variables {
		m.AddVariable(v.ID, v.Name, v.Unit, v.DatasetID)
	}
	for _, e := range f.Entities {
		m.AddEntity(e.ID, e.Name)
	}
	for _, r := range f.Values {
		if r.Value == nil {
			m.AddNullValue(r.VariableID, r.EntityID, r.Year)
			continue
		}
		m.AddValue(r.VariableID, r.EntityID, r.Year, *r.Value)
	}
	return m
}

// Load creates the warehouse tables in db and inserts the fixture.
func (f *Fixture) Load(ctx context.Context, db *sql.DB, db_type string, tables ApiTypes.WarehouseTables) error {
	if err := databaseutil.CreateWarehouseTables(ctx, db, db_type, tables); err != nil {
		return err
	}

	builder := databaseutil.StatementBuilder(db_type)
	var inserts []sq.InsertBuilder
	for _, c := range f.Categories {
		inserts = append(inserts, builder.Insert(tables.Categories).
			Columns("id", "name").Values(c.ID, c.Name))
	}
	for _, s := range f.Subcategories {
		inserts = append(inserts, builder.Insert(tables.Subcategories).
			Columns("id", "name", "fk_dst_cat_id").Values(s.ID, s.Name, s.CategoryID))
	}
	for _, d := range f.Datasets {
		inserts = append(inserts, builder.Insert(tables.Datasets).
			Columns("id", "name", "fk_dst_cat_id", "fk_dst_subcat_id").
			Values(d.ID, d.Name, d.CategoryID, d.SubcategoryID))
	}
	for _, v := range f.Variables {
		inserts = append(inserts, builder.Insert(tables.Variables).
			Columns("id", "name", "unit", "fk_dst_id").Values(v.ID, v.Name, v.Unit, v.DatasetID))
	}
	for _, e := range f.Entities {
		inserts = append(inserts, builder.Insert(tables.Entities).
			Columns("id", "name").Values(e.ID, e.Name))
	}
	for _, r := range f.Values {
		var value any
		if r.Value != nil {
			value = r.Value.String()
		}
		inserts = append(inserts, builder.Insert(tables.DataValues).
			Columns("fk_var_id", "fk_ent_id", "year", "value").
			Values(r.VariableID, r.EntityID, r.Year, value))
	}

	for _, ins := range inserts {
		stmt, args, err := ins.ToSql()
		if err != nil {
			return err
		}
		if _, err := db.ExecContext(ctx, stmt, args...); err != nil {
			return err
		}
	}
	return nil
}

// OpenSQLite opens a private in-memory sqlite database. The pool is held to
// one connection because every sqlite :memory: connection is its own
// database.
func OpenSQLite(t testing.TB) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	return db
}

// SQLWarehouse loads f into a fresh sqlite database and returns the SQL
// stores over it.
func (f *Fixture) SQLWarehouse(t testing.TB) *stores.Warehouse {
	t.Helper()
	db := OpenSQLite(t)
	tables := ApiTypes.DefaultWarehouseTables()
	require.NoError(t, f.Load(context.Background(), db, ApiTypes.SqliteName, tables))

	w, err := stores.NewSQLWarehouse(db, ApiTypes.SqliteName, tables, loggerutil.NewNopLogger())
	require.NoError(t, err)
	return w
}

// MemWarehouse returns the in-memory stores over f.
func (f *Fixture) MemWarehouse() *stores.Warehouse {
	return stores.NewMemWarehouse(f.Mem())
}

// Backends returns one warehouse per implementation, keyed by name, for
// table-driven tests that must hold for both.
func (f *Fixture) Backends(t testing.TB) map[string]*stores.Warehouse {
	return map[string]*stores.Warehouse{
		"mem":    f.MemWarehouse(),
		"sqlite": f.SQLWarehouse(t),
	}
}
