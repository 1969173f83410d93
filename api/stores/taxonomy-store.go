package stores

import (
	"context"
	"database/sql"

	sq "github.com/Masterminds/squirrel"
	ds "github.com/chendingplano/dataviewer/api/datastructures"
)

type SQLTaxonomyStore struct {
	*sqlBase
}

func (s *SQLTaxonomyStore) ListCategories(ctx context.Context) ([]ds.Category, error) {
	q := s.builder.Select("id", "name").
		From(s.tables.Categories).
		OrderBy("id")
	rows, err := s.query(ctx, "list categories", "DVW_TAX_020", q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	categories := []ds.Category{}
	for rows.Next() {
		var c ds.Category
		if err := rows.Scan(&c.ID, &c.Name); err != nil {
			return nil, wrapStoreError("scan category", "DVW_TAX_030", err)
		}
		categories = append(categories, c)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapStoreError("list categories", "DVW_TAX_035", err)
	}
	return categories, nil
}

func (s *SQLTaxonomyStore) ListSubcategories(ctx context.Context, categoryID *int64) ([]ds.Subcategory, error) {
	q := s.builder.Select("id", "name", "fk_dst_cat_id").
		From(s.tables.Subcategories).
		OrderBy("id")
	if categoryID != nil {
		q = q.Where(sq.Eq{"fk_dst_cat_id": *categoryID})
	}

	rows, err := s.query(ctx, "list subcategories", "DVW_TAX_047", q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	subcategories := []ds.Subcategory{}
	for rows.Next() {
		var sc ds.Subcategory
		if err := rows.Scan(&sc.ID, &sc.Name, &sc.CategoryID); err != nil {
			return nil, wrapStoreError("scan subcategory", "DVW_TAX_057", err)
		}
		subcategories = append(subcategories, sc)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapStoreError("list subcategories", "DVW_TAX_062", err)
	}
	return subcategories, nil
}

// ListVariables resolves the variable -> dataset -> subcategory/category
// join in one statement. The LEFT JOIN keeps variables whose dataset row
// is missing so the aggregator can report them.
func (s *SQLTaxonomyStore) ListVariables(ctx context.Context, subcategoryID *int64) ([]ds.VariableRef, error) {
	q := s.builder.Select(
		"v.id", "v.name", "v.unit", "v.fk_dst_id",
		"d.id", "d.fk_dst_subcat_id", "d.fk_dst_cat_id").
		From(s.tables.Variables + " v").
		LeftJoin(s.tables.Datasets + " d ON d.id = v.fk_dst_id").
		OrderBy("v.id")
	if subcategoryID != nil {
		q = q.Where(sq.Eq{"d.fk_dst_subcat_id": *subcategoryID})
	}

	rows, err := s.query(ctx, "list variables", "DVW_TAX_081", q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	variables := []ds.VariableRef{}
	for rows.Next() {
		var ref ds.VariableRef
		var unit sql.NullString
		var datasetID, subcatID, catID sql.NullInt64
		if err := rows.Scan(
			&ref.ID, &ref.Name, &unit, &ref.DatasetID,
			&datasetID, &subcatID, &catID); err != nil {
			return nil, wrapStoreError("scan variable", "DVW_TAX_094", err)
		}
		ref.Unit = unit.String
		ref.Resolved = datasetID.Valid && subcatID.Valid && catID.Valid
		ref.SubcategoryID = subcatID.Int64
		ref.CategoryID = catID.Int64
		variables = append(variables, ref)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapStoreError("list variables", "DVW_TAX_103", err)
	}
	return variables, nil
}

func (s *SQLTaxonomyStore) LookupVariable(ctx context.Context, id int64) (ds.Variable, error) {
	var v ds.Variable
	var unit sql.NullString
	q := s.builder.Select("id", "name", "unit", "fk_dst_id").
		From(s.tables.Variables).
		Where(sq.Eq{"id": id})
	if err := s.queryRow(ctx, "lookup variable", "DVW_TAX_114", q, &v.ID, &v.Name, &unit, &v.DatasetID); err != nil {
		return ds.Variable{}, err
	}
	v.Unit = unit.String
	return v, nil
}
