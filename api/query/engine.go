// Package query answers the read operations of the warehouse API.
//
// Input is free-form: identifiers and filters come straight from request
// parameters. YearsOf, EntitiesOf, DataOf and VariableOf answer malformed
// or unknown input with an empty result and a nil error. SubcategoriesOf
// and VariablesOf return stores.ErrInvalidArgument for a malformed id and
// an empty result for an unknown one, so that a caller can choose a
// stricter policy. Only store failures are returned as errors by every
// operation.
package query

import (
	"context"
	"errors"
	"time"

	ds "github.com/chendingplano/dataviewer/api/datastructures"
	"github.com/chendingplano/dataviewer/api/loggerutil"
	"github.com/chendingplano/dataviewer/api/metadata"
	"github.com/chendingplano/dataviewer/api/metrics"
	"github.com/chendingplano/dataviewer/api/stores"
)

const DefaultMaxFilterSize = 5000

type Config struct {
	// MaxFilterSize caps the distinct ids of an entity or year filter.
	// Larger filters are treated as malformed.
	MaxFilterSize int `mapstructure:"max_filter_size"`
}

// Engine holds no mutable state and is safe for concurrent use.
type Engine struct {
	warehouse  *stores.Warehouse
	aggregator *metadata.Aggregator
	reporter   FaultReporter
	logger     *loggerutil.JimoLogger
	config     Config
}

func NewEngine(
	warehouse *stores.Warehouse,
	config Config,
	reporter FaultReporter,
	logger *loggerutil.JimoLogger) *Engine {
	if config.MaxFilterSize <= 0 {
		config.MaxFilterSize = DefaultMaxFilterSize
	}
	if reporter == nil {
		reporter = NewLogReporter(logger)
	}
	return &Engine{
		warehouse:  warehouse,
		aggregator: metadata.NewAggregator(warehouse, logger),
		reporter:   reporter,
		logger:     logger,
		config:     config,
	}
}

func (e *Engine) Warehouse() *stores.Warehouse {
	return e.warehouse
}

// degradable reports whether err may be answered with an empty result.
func degradable(err error) bool {
	return errors.Is(err, stores.ErrNotFound) || errors.Is(err, stores.ErrInvalidArgument)
}

func outcomeOf(err error) string {
	switch {
	case err == nil:
		return metrics.OutcomeOK
	case degradable(err):
		return metrics.OutcomeDegraded
	default:
		if _, ok := stores.AsDataIntegrityFault(err); ok {
			return metrics.OutcomeFault
		}
		return metrics.OutcomeError
	}
}

func (e *Engine) degrade(op string, reason string, raw string) {
	metrics.RecordDegraded(op, reason)
	e.logger.Debug("Degrade to empty result", "op", op, "reason", reason, "raw", raw)
}

func (e *Engine) CategoriesOf(ctx context.Context) (result []ds.Category, err error) {
	defer func(start time.Time) { metrics.RecordQuery("categories", outcomeOf(err), start) }(time.Now())
	return e.warehouse.Taxonomy.ListCategories(ctx)
}

func (e *Engine) SubcategoriesOf(ctx context.Context, rawCategoryID string) (result []ds.Subcategory, err error) {
	defer func(start time.Time) { metrics.RecordQuery("subcategories", outcomeOf(err), start) }(time.Now())
	categoryID, err := ParseID(rawCategoryID)
	if err != nil {
		return nil, err
	}
	return e.warehouse.Taxonomy.ListSubcategories(ctx, &categoryID)
}

func (e *Engine) VariablesOf(ctx context.Context, rawSubcategoryID string) (result []ds.Variable, err error) {
	defer func(start time.Time) { metrics.RecordQuery("variables", outcomeOf(err), start) }(time.Now())
	subcategoryID, err := ParseID(rawSubcategoryID)
	if err != nil {
		return nil, err
	}
	refs, err := e.warehouse.Taxonomy.ListVariables(ctx, &subcategoryID)
	if err != nil {
		return nil, err
	}
	variables := make([]ds.Variable, 0, len(refs))
	for _, ref := range refs {
		variables = append(variables, ref.Variable)
	}
	return variables, nil
}

// VariableOf looks up one variable. ok is false for malformed or unknown
// ids.
func (e *Engine) VariableOf(ctx context.Context, rawVariableID string) (variable ds.Variable, ok bool, err error) {
	defer func(start time.Time) { metrics.RecordQuery("variable", outcomeOf(err), start) }(time.Now())
	variableID, err := ParseID(rawVariableID)
	if err != nil {
		e.degrade("variable", "malformed_id", rawVariableID)
		return ds.Variable{}, false, nil
	}
	variable, err = e.warehouse.Taxonomy.LookupVariable(ctx, variableID)
	if errors.Is(err, stores.ErrNotFound) {
		e.degrade("variable", "not_found", rawVariableID)
		return ds.Variable{}, false, nil
	}
	if err != nil {
		return ds.Variable{}, false, err
	}
	return variable, true, nil
}

func (e *Engine) YearsOf(ctx context.Context, rawVariableID string) (result []int, err error) {
	defer func(start time.Time) { metrics.RecordQuery("years", outcomeOf(err), start) }(time.Now())
	variableID, err := ParseID(rawVariableID)
	if err != nil {
		e.degrade("years", "malformed_id", rawVariableID)
		return []int{}, nil
	}
	years, err := e.warehouse.Values.DistinctYears(ctx, variableID)
	if errors.Is(err, stores.ErrNotFound) {
		e.degrade("years", "not_found", rawVariableID)
		return []int{}, nil
	}
	if err != nil {
		return nil, err
	}
	return years, nil
}

func (e *Engine) EntitiesOf(ctx context.Context, rawVariableID string) (result []ds.Entity, err error) {
	defer func(start time.Time) { metrics.RecordQuery("entities", outcomeOf(err), start) }(time.Now())
	variableID, err := ParseID(rawVariableID)
	if err != nil {
		e.degrade("entities", "malformed_id", rawVariableID)
		return []ds.Entity{}, nil
	}
	entities, err := e.warehouse.Values.DistinctEntities(ctx, variableID)
	if errors.Is(err, stores.ErrNotFound) {
		e.degrade("entities", "not_found", rawVariableID)
		return []ds.Entity{}, nil
	}
	if err != nil {
		return nil, err
	}
	return entities, nil
}

// DataOf returns the values of one variable for the requested entities and
// years, ordered by entity id then year and labelled with entity names.
// rawEntities are request values, each an id or a comma separated list;
// rawYears is a JSON array. Unknown entity ids in the filter are dropped.
func (e *Engine) DataOf(
	ctx context.Context,
	rawVariableID string,
	rawEntities []string,
	rawYears string) (result []ds.DataRow, err error) {
	defer func(start time.Time) { metrics.RecordQuery("data", outcomeOf(err), start) }(time.Now())
	rows := []ds.DataRow{}

	variableID, err := ParseID(rawVariableID)
	if err != nil {
		e.degrade("data", "malformed_id", rawVariableID)
		return rows, nil
	}
	entityIDs, err := ParseEntityIDs(rawEntities, e.config.MaxFilterSize)
	if err != nil {
		e.degrade("data", "malformed_filter", err.Error())
		return rows, nil
	}
	years, err := ParseYears(rawYears, e.config.MaxFilterSize)
	if err != nil {
		e.degrade("data", "malformed_filter", err.Error())
		return rows, nil
	}
	if len(entityIDs) == 0 || len(years) == 0 {
		return rows, nil
	}

	points, err := e.warehouse.Values.FilteredValues(ctx, variableID, entityIDs, years)
	if err != nil {
		return nil, err
	}
	if len(points) == 0 {
		metrics.RecordPoints(0)
		return rows, nil
	}

	found := make([]int64, 0, len(entityIDs))
	for i, p := range points {
		if i == 0 || points[i-1].EntityID != p.EntityID {
			found = append(found, p.EntityID)
		}
	}
	names, err := e.warehouse.Entities.ListByIDs(ctx, found)
	if err != nil {
		return nil, err
	}

	reported := make(map[int64]bool)
	for _, p := range points {
		name, ok := names[p.EntityID]
		if !ok {
			if !reported[p.EntityID] {
				reported[p.EntityID] = true
				e.reporter.ReportFault(ctx, stores.NewDataIntegrityFault(
					stores.FaultUnknownEntity, variableID, p.EntityID, "value row references a missing entity"))
			}
			continue
		}
		rows = append(rows, ds.DataRow{Value: p.Value, Year: p.Year, Entity: name})
	}

	metrics.RecordPoints(len(rows))
	return rows, nil
}

// MetadataSnapshot builds a fresh metadata document. Non-fatal faults are
// sent to the reporter; a fatal one is reported and returned.
func (e *Engine) MetadataSnapshot(ctx context.Context) (doc ds.MetadataDoc, err error) {
	defer func(start time.Time) { metrics.RecordQuery("metadata", outcomeOf(err), start) }(time.Now())
	doc, report, err := e.aggregator.Build(ctx)
	for _, fault := range report.Faults() {
		e.reporter.ReportFault(ctx, fault)
	}
	if err != nil {
		if fault, ok := stores.AsDataIntegrityFault(err); ok {
			e.reporter.ReportFault(ctx, fault)
		}
		return ds.MetadataDoc{}, err
	}
	return doc, nil
}

// Check builds the metadata document and returns every fault found, the
// fatal one included. It is the offline consistency check.
func (e *Engine) Check(ctx context.Context) ([]*stores.DataIntegrityFault, error) {
	_, report, err := e.aggregator.Build(ctx)
	faults := report.Faults()
	if err != nil {
		fault, ok := stores.AsDataIntegrityFault(err)
		if !ok {
			return nil, err
		}
		faults = append(faults, fault)
	}
	return faults, nil
}
