// Package metadata builds the warehouse metadata document: every category,
// its subcategories, their variables and, per variable, the ids of the
// entities that have at least one recorded value.
//
// A document is either complete or not returned at all. A variable whose
// dataset, subcategory or category cannot be resolved fails the build with
// a *stores.DataIntegrityFault naming the variable.
package metadata

import (
	"context"
	"fmt"
	"slices"

	ds "github.com/chendingplano/dataviewer/api/datastructures"
	"github.com/chendingplano/dataviewer/api/loggerutil"
	"github.com/chendingplano/dataviewer/api/stores"
	"golang.org/x/sync/errgroup"
)

type Aggregator struct {
	warehouse *stores.Warehouse
	logger    *loggerutil.JimoLogger
}

func NewAggregator(warehouse *stores.Warehouse, logger *loggerutil.JimoLogger) *Aggregator {
	return &Aggregator{warehouse: warehouse, logger: logger}
}

// IntegrityReport collects the non-fatal faults found while building a
// document.
type IntegrityReport struct {
	// UnknownEntities maps a variable id to the entity ids its values
	// reference that the entity store does not know. The ids are still
	// listed under the variable.
	UnknownEntities map[int64][]int64
	// OrphanSubcategories lists subcategories whose category is missing
	// and that hold no variables. They are left out of the document.
	OrphanSubcategories []int64
}

func (r IntegrityReport) Empty() bool {
	return len(r.UnknownEntities) == 0 && len(r.OrphanSubcategories) == 0
}

// Faults flattens the report, ordered by variable id then entity id.
func (r IntegrityReport) Faults() []*stores.DataIntegrityFault {
	var faults []*stores.DataIntegrityFault
	variableIDs := make([]int64, 0, len(r.UnknownEntities))
	for id := range r.UnknownEntities {
		variableIDs = append(variableIDs, id)
	}
	slices.Sort(variableIDs)

	for _, variableID := range variableIDs {
		for _, entityID := range r.UnknownEntities[variableID] {
			faults = append(faults, stores.NewDataIntegrityFault(
				stores.FaultUnknownEntity, variableID, entityID, "entity referenced by values is missing"))
		}
	}
	for _, subcategoryID := range r.OrphanSubcategories {
		faults = append(faults, stores.NewDataIntegrityFault(
			stores.FaultDanglingCategory, 0, 0, fmt.Sprintf("subcategory %d has no category", subcategoryID)))
	}
	return faults
}

// snapshot is what one build reads from the stores.
type snapshot struct {
	categories    []ds.Category
	subcategories []ds.Subcategory
	variables     []ds.VariableRef
	pairs         []ds.VariableEntityPair
	entities      []ds.Entity
}

func (a *Aggregator) read(ctx context.Context) (*snapshot, error) {
	var snap snapshot
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() (err error) {
		snap.categories, err = a.warehouse.Taxonomy.ListCategories(gctx)
		return err
	})
	g.Go(func() (err error) {
		snap.subcategories, err = a.warehouse.Taxonomy.ListSubcategories(gctx, nil)
		return err
	})
	g.Go(func() (err error) {
		snap.variables, err = a.warehouse.Taxonomy.ListVariables(gctx, nil)
		return err
	})
	g.Go(func() (err error) {
		snap.pairs, err = a.warehouse.Values.DistinctVariableEntityPairs(gctx)
		return err
	})
	g.Go(func() (err error) {
		snap.entities, err = a.warehouse.Entities.ListAll(gctx)
		return err
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return &snap, nil
}

// Build reads the stores once and assembles the document.
func (a *Aggregator) Build(ctx context.Context) (ds.MetadataDoc, IntegrityReport, error) {
	var report IntegrityReport
	snap, err := a.read(ctx)
	if err != nil {
		a.logger.Error("Failed reading warehouse for metadata", "error", err)
		return ds.MetadataDoc{}, report, fmt.Errorf("failed reading warehouse (DVW_AGG_115): %w", err)
	}

	doc, err := assemble(snap, &report)
	if err != nil {
		if fault, ok := stores.AsDataIntegrityFault(err); ok {
			a.logger.Error("Metadata integrity fault",
				"kind", fault.Kind,
				"variable_id", fault.VariableID,
				"detail", fault.Detail)
		}
		return ds.MetadataDoc{}, report, err
	}

	if !report.Empty() {
		a.logger.Warn("Metadata built with integrity warnings",
			"unknown_entity_variables", len(report.UnknownEntities),
			"orphan_subcategories", len(report.OrphanSubcategories))
	}

	a.logger.Debug("Metadata built",
		"categories", len(doc.Categories),
		"variables", len(snap.variables),
		"entities", len(doc.EntityNames))
	return doc, report, nil
}

func assemble(snap *snapshot, report *IntegrityReport) (ds.MetadataDoc, error) {
	// variable id -> ids of entities with at least one value. Pairs are
	// distinct, so each list is duplicate free.
	variableEntities := make(map[int64][]int64)
	for _, p := range snap.pairs {
		variableEntities[p.VariableID] = append(variableEntities[p.VariableID], p.EntityID)
	}

	doc := ds.MetadataDoc{
		Categories:  make(map[int64]ds.CategoryNode, len(snap.categories)),
		EntityNames: make(map[int64]string, len(snap.entities)),
	}
	for _, c := range snap.categories {
		doc.Categories[c.ID] = ds.CategoryNode{
			Name:          c.Name,
			Subcategories: make(map[int64]ds.SubcategoryNode),
		}
	}

	subcategoryOf := make(map[int64]ds.Subcategory, len(snap.subcategories))
	for _, sc := range snap.subcategories {
		subcategoryOf[sc.ID] = sc
		category, ok := doc.Categories[sc.CategoryID]
		if !ok {
			continue
		}
		category.Subcategories[sc.ID] = ds.SubcategoryNode{
			Name:      sc.Name,
			Variables: make(map[int64]ds.VariableNode),
		}
	}

	claimed := make(map[int64]bool, len(snap.variables))
	for _, v := range snap.variables {
		if claimed[v.ID] {
			continue
		}

		if !v.Resolved {
			return ds.MetadataDoc{}, stores.NewDataIntegrityFault(stores.FaultDanglingDataset, v.ID, 0,
				fmt.Sprintf("dataset %d not found", v.DatasetID))
		}
		sc, ok := subcategoryOf[v.SubcategoryID]
		if !ok {
			return ds.MetadataDoc{}, stores.NewDataIntegrityFault(stores.FaultDanglingSubcategory, v.ID, 0,
				fmt.Sprintf("subcategory %d of dataset %d not found", v.SubcategoryID, v.DatasetID))
		}
		if sc.CategoryID != v.CategoryID {
			return ds.MetadataDoc{}, stores.NewDataIntegrityFault(stores.FaultCategoryMismatch, v.ID, 0,
				fmt.Sprintf("dataset %d is in category %d but subcategory %d is in category %d",
					v.DatasetID, v.CategoryID, sc.ID, sc.CategoryID))
		}
		category, ok := doc.Categories[v.CategoryID]
		if !ok {
			return ds.MetadataDoc{}, stores.NewDataIntegrityFault(stores.FaultDanglingCategory, v.ID, 0,
				fmt.Sprintf("category %d of subcategory %d not found", v.CategoryID, sc.ID))
		}

		// The variable takes ownership of its own copy; the shared map
		// entry is released so no other variable can see it.
		entityIDs := slices.Clone(variableEntities[v.ID])
		delete(variableEntities, v.ID)
		if entityIDs == nil {
			entityIDs = []int64{}
		}
		slices.Sort(entityIDs)

		category.Subcategories[sc.ID].Variables[v.ID] = ds.VariableNode{
			Name:      v.Name,
			EntityIDs: entityIDs,
		}
		claimed[v.ID] = true
	}

	for _, sc := range snap.subcategories {
		if _, ok := doc.Categories[sc.CategoryID]; !ok {
			report.OrphanSubcategories = append(report.OrphanSubcategories, sc.ID)
		}
	}

	for _, e := range snap.entities {
		doc.EntityNames[e.ID] = e.Name
	}

	for _, p := range snap.pairs {
		if _, ok := doc.EntityNames[p.EntityID]; ok {
			continue
		}
		if report.UnknownEntities == nil {
			report.UnknownEntities = make(map[int64][]int64)
		}
		report.UnknownEntities[p.VariableID] = append(report.UnknownEntities[p.VariableID], p.EntityID)
	}
	for _, ids := range report.UnknownEntities {
		slices.Sort(ids)
	}

	return doc, nil
}
