// Package stores provides read accessors over the warehouse: entities, the
// category/subcategory/variable taxonomy and the value fact table.
//
// Two implementations exist: the SQL stores (MySQL, PostgreSQL, SQLite)
// and MemStore, an in-memory warehouse used for fixtures and tests. Both
// are safe for concurrent use and never mutate the warehouse.
package stores

import (
	"context"

	ds "github.com/chendingplano/dataviewer/api/datastructures"
)

type EntityStore interface {
	// LookupByID returns ErrNotFound when id is unknown.
	LookupByID(ctx context.Context, id int64) (ds.Entity, error)
	// ListByIDs maps the known ids in ids to their names. Unknown ids
	// are omitted.
	ListByIDs(ctx context.Context, ids []int64) (map[int64]string, error)
	// ListAll returns every entity, in no particular order.
	ListAll(ctx context.Context) ([]ds.Entity, error)
}

type TaxonomyStore interface {
	ListCategories(ctx context.Context) ([]ds.Category, error)
	// ListSubcategories lists all subcategories when categoryID is nil.
	ListSubcategories(ctx context.Context, categoryID *int64) ([]ds.Subcategory, error)
	// ListVariables joins each variable to its dataset's subcategory and
	// category. Variables whose dataset is missing are returned with
	// Resolved=false. A non-nil subcategoryID restricts the result.
	ListVariables(ctx context.Context, subcategoryID *int64) ([]ds.VariableRef, error)
	// LookupVariable returns ErrNotFound when id is unknown.
	LookupVariable(ctx context.Context, id int64) (ds.Variable, error)
}

type ValueStore interface {
	// DistinctYears returns the years with data for variableID, ascending.
	// It returns ErrNotFound when the variable does not exist.
	DistinctYears(ctx context.Context, variableID int64) ([]int, error)
	// DistinctEntities returns the entities with data for variableID,
	// sorted by name then id. It returns ErrNotFound when the variable does
	// not exist.
	DistinctEntities(ctx context.Context, variableID int64) ([]ds.Entity, error)
	// FilteredValues returns the non-null values of variableID whose entity
	// is in entityIDs and year is in years, ordered by (entity, year). An
	// empty entityIDs or years selects nothing.
	FilteredValues(ctx context.Context, variableID int64, entityIDs []int64, years []int) ([]ds.ValuePoint, error)
	// DistinctVariableEntityPairs projects the fact table onto
	// (variable, entity) without reading values.
	DistinctVariableEntityPairs(ctx context.Context) ([]ds.VariableEntityPair, error)
}

type pinger interface {
	PingContext(ctx context.Context) error
}

// Warehouse bundles the three stores over one backend.
type Warehouse struct {
	Entities EntityStore
	Taxonomy TaxonomyStore
	Values   ValueStore
	backend  pinger
}

// Ping checks that the backend is reachable.
func (w *Warehouse) Ping(ctx context.Context) error {
	if w.backend == nil {
		return nil
	}
	if err := w.backend.PingContext(ctx); err != nil {
		return wrapStoreError("ping", "DVW_STR_064", err)
	}
	return nil
}
