package stores

import (
	"context"
	"fmt"
	"sort"
	"sync"

	ds "github.com/chendingplano/dataviewer/api/datastructures"
	"github.com/shopspring/decimal"
)

type memValue struct {
	entity int64
	year   int
	value  decimal.Decimal
	null   bool
}

// MemStore is an in-memory warehouse. It is loaded once through the Add
// methods and then read concurrently through the store interfaces.
// References are not checked on load, so a MemStore can hold the same
// dangling rows a real warehouse can.
type MemStore struct {
	mu            sync.RWMutex
	categories    map[int64]ds.Category
	subcategories map[int64]ds.Subcategory
	datasets      map[int64]ds.Dataset
	variables     map[int64]ds.Variable
	entities      map[int64]ds.Entity
	values        map[int64][]memValue
}

func NewMemStore() *MemStore {
	return &MemStore{
		categories:    make(map[int64]ds.Category),
		subcategories: make(map[int64]ds.Subcategory),
		datasets:      make(map[int64]ds.Dataset),
		variables:     make(map[int64]ds.Variable),
		entities:      make(map[int64]ds.Entity),
		values:        make(map[int64][]memValue),
	}
}

// NewMemWarehouse exposes m through the three store interfaces.
func NewMemWarehouse(m *MemStore) *Warehouse {
	return &Warehouse{
		Entities: m,
		Taxonomy: m,
		Values:   m,
	}
}

func (m *MemStore) AddCategory(id int64, name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.categories[id] = ds.Category{ID: id, Name: name}
}

func (m *MemStore) AddSubcategory(id int64, name string, categoryID int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subcategories[id] = ds.Subcategory{ID: id, Name: name, CategoryID: categoryID}
}

func (m *MemStore) AddDataset(id int64, subcategoryID int64, categoryID int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.datasets[id] = ds.Dataset{ID: id, SubcategoryID: subcategoryID, CategoryID: categoryID}
}

func (m *MemStore) AddVariable(id int64, name string, unit string, datasetID int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.variables[id] = ds.Variable{ID: id, Name: name, Unit: unit, DatasetID: datasetID}
}

func (m *MemStore) AddEntity(id int64, name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entities[id] = ds.Entity{ID: id, Name: name}
}

// AddValue stores one observation. A later value for the same
// (variable, entity, year) replaces the earlier one.
func (m *MemStore) AddValue(variableID, entityID int64, year int, value decimal.Decimal) {
	m.putValue(variableID, memValue{entity: entityID, year: year, value: value})
}

// AddNullValue stores an observation whose value is NULL.
func (m *MemStore) AddNullValue(variableID, entityID int64, year int) {
	m.putValue(variableID, memValue{entity: entityID, year: year, null: true})
}

func (m *MemStore) putValue(variableID int64, v memValue) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rows := m.values[variableID]
	for i := range rows {
		if rows[i].entity == v.entity && rows[i].year == v.year {
			rows[i] = v
			return
		}
	}
	m.values[variableID] = append(rows, v)
}

func (m *MemStore) LookupByID(ctx context.Context, id int64) (ds.Entity, error) {
	if err := ctx.Err(); err != nil {
		return ds.Entity{}, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	entity, ok := m.entities[id]
	if !ok {
		return ds.Entity{}, fmt.Errorf("entity %d (DVW_MST_118): %w", id, ErrNotFound)
	}
	return entity, nil
}

func (m *MemStore) ListByIDs(ctx context.Context, ids []int64) (map[int64]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make(map[int64]string, len(ids))
	for _, id := range ids {
		if entity, ok := m.entities[id]; ok {
			names[id] = entity.Name
		}
	}
	return names, nil
}

func (m *MemStore) ListAll(ctx context.Context) ([]ds.Entity, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	entities := make([]ds.Entity, 0, len(m.entities))
	for _, entity := range m.entities {
		entities = append(entities, entity)
	}
	return entities, nil
}

func (m *MemStore) ListCategories(ctx context.Context) ([]ds.Category, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	categories := make([]ds.Category, 0, len(m.categories))
	for _, c := range m.categories {
		categories = append(categories, c)
	}
	sort.Slice(categories, func(i, j int) bool { return categories[i].ID < categories[j].ID })
	return categories, nil
}

func (m *MemStore) ListSubcategories(ctx context.Context, categoryID *int64) ([]ds.Subcategory, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	subcategories := []ds.Subcategory{}
	for _, sc := range m.subcategories {
		if categoryID != nil && sc.CategoryID != *categoryID {
			continue
		}
		subcategories = append(subcategories, sc)
	}
	sort.Slice(subcategories, func(i, j int) bool { return subcategories[i].ID < subcategories[j].ID })
	return subcategories, nil
}

func (m *MemStore) ListVariables(ctx context.Context, subcategoryID *int64) ([]ds.VariableRef, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	variables := []ds.VariableRef{}
	for _, v := range m.variables {
		ref := ds.VariableRef{Variable: v}
		if dataset, ok := m.datasets[v.DatasetID]; ok {
			ref.Resolved = true
			ref.SubcategoryID = dataset.SubcategoryID
			ref.CategoryID = dataset.CategoryID
		}
		if subcategoryID != nil && (!ref.Resolved || ref.SubcategoryID != *subcategoryID) {
			continue
		}
		variables = append(variables, ref)
	}
	sort.Slice(variables, func(i, j int) bool { return variables[i].ID < variables[j].ID })
	return variables, nil
}

func (m *MemStore) LookupVariable(ctx context.Context, id int64) (ds.Variable, error) {
	if err := ctx.Err(); err != nil {
		return ds.Variable{}, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.variables[id]
	if !ok {
		return ds.Variable{}, fmt.Errorf("variable %d (DVW_MST_211): %w", id, ErrNotFound)
	}
	return v, nil
}

func (m *MemStore) DistinctYears(ctx context.Context, variableID int64) ([]int, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	seen := make(map[int]struct{})
	years := []int{}
	for _, row := range m.values[variableID] {
		if _, ok := seen[row.year]; ok {
			continue
		}
		seen[row.year] = struct{}{}
		years = append(years, row.year)
	}
	if len(years) == 0 {
		if _, ok := m.variables[variableID]; !ok {
			return nil, fmt.Errorf("variable %d (DVW_MST_232): %w", variableID, ErrNotFound)
		}
	}
	sort.Ints(years)
	return years, nil
}

// DistinctEntities only returns entities that resolve, as the SQL join does.
func (m *MemStore) DistinctEntities(ctx context.Context, variableID int64) ([]ds.Entity, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	seen := make(map[int64]struct{})
	entities := []ds.Entity{}
	for _, row := range m.values[variableID] {
		if _, ok := seen[row.entity]; ok {
			continue
		}
		seen[row.entity] = struct{}{}
		if entity, ok := m.entities[row.entity]; ok {
			entities = append(entities, entity)
		}
	}
	if len(entities) == 0 {
		if _, ok := m.variables[variableID]; !ok {
			return nil, fmt.Errorf("variable %d (DVW_MST_256): %w", variableID, ErrNotFound)
		}
	}
	SortEntities(entities)
	return entities, nil
}

func (m *MemStore) FilteredValues(
	ctx context.Context,
	variableID int64,
	entityIDs []int64,
	years []int) ([]ds.ValuePoint, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	points := []ds.ValuePoint{}
	if len(entityIDs) == 0 || len(years) == 0 {
		return points, nil
	}

	entity_set := make(map[int64]struct{}, len(entityIDs))
	for _, id := range entityIDs {
		entity_set[id] = struct{}{}
	}
	year_set := make(map[int]struct{}, len(years))
	for _, y := range years {
		year_set[y] = struct{}{}
	}

	m.mu.RLock()
	for _, row := range m.values[variableID] {
		if row.null {
			continue
		}
		if _, ok := entity_set[row.entity]; !ok {
			continue
		}
		if _, ok := year_set[row.year]; !ok {
			continue
		}
		points = append(points, ds.ValuePoint{
			VariableID: variableID,
			EntityID:   row.entity,
			Year:       row.year,
			Value:      row.value,
		})
	}
	m.mu.RUnlock()

	sort.Slice(points, func(i, j int) bool {
		if points[i].EntityID != points[j].EntityID {
			return points[i].EntityID < points[j].EntityID
		}
		return points[i].Year < points[j].Year
	})
	return points, nil
}

func (m *MemStore) DistinctVariableEntityPairs(ctx context.Context) ([]ds.VariableEntityPair, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	type key struct{ v, e int64 }
	seen := make(map[key]struct{})
	pairs := []ds.VariableEntityPair{}
	for variableID, rows := range m.values {
		for _, row := range rows {
			k := key{variableID, row.entity}
			if _, ok := seen[k]; ok {
				continue
			}
			seen[k] = struct{}{}
			pairs = append(pairs, ds.VariableEntityPair{VariableID: variableID, EntityID: row.entity})
		}
	}
	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].VariableID != pairs[j].VariableID {
			return pairs[i].VariableID < pairs[j].VariableID
		}
		return pairs[i].EntityID < pairs[j].EntityID
	})
	return pairs, nil
}
