// Package datastructures holds the warehouse records the stores return and
// the documents the query engine hands to callers.
package datastructures

import (
	"github.com/shopspring/decimal"
)

func init() {
	// Point values are emitted as JSON numbers, not strings.
	decimal.MarshalJSONWithoutQuotes = true
}

type Category struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

type Subcategory struct {
	ID         int64  `json:"id"`
	Name       string `json:"name"`
	CategoryID int64  `json:"-"`
}

type Dataset struct {
	ID            int64 `json:"id"`
	SubcategoryID int64 `json:"subcategory_id"`
	CategoryID    int64 `json:"category_id"`
}

type Variable struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	Unit      string `json:"unit"`
	DatasetID int64  `json:"-"`
}

// VariableRef is a Variable with its dataset's subcategory and category
// resolved. Resolved is false when the dataset row is missing.
type VariableRef struct {
	Variable
	SubcategoryID int64
	CategoryID    int64
	Resolved      bool
}

type Entity struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

type ValuePoint struct {
	VariableID int64           `json:"variable_id"`
	EntityID   int64           `json:"entity_id"`
	Year       int             `json:"year"`
	Value      decimal.Decimal `json:"value"`
}

type VariableEntityPair struct {
	VariableID int64
	EntityID   int64
}

// Listing is the {id, name} record every listing endpoint returns.
type Listing struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// DataRow is one point-data result, labelled with the entity name.
type DataRow struct {
	Value  decimal.Decimal `json:"value"`
	Year   int             `json:"year"`
	Entity string          `json:"entity"`
}

// MetadataDoc is the full category -> subcategory -> variable tree plus the
// id -> name table of every entity.
type MetadataDoc struct {
	Categories  map[int64]CategoryNode `json:"categories"`
	EntityNames map[int64]string       `json:"entityNames"`
}

type CategoryNode struct {
	Name          string                    `json:"name"`
	Subcategories map[int64]SubcategoryNode `json:"subcategories"`
}

type SubcategoryNode struct {
	Name      string                 `json:"name"`
	Variables map[int64]VariableNode `json:"variables"`
}

type VariableNode struct {
	Name      string  `json:"name"`
	EntityIDs []int64 `json:"entityIds"`
}

func CategoryListing(items []Category) []Listing {
	out := make([]Listing, 0, len(items))
	for _, c := range items {
		out = append(out, Listing{ID: c.ID, Name: c.Name})
	}
	return out
}

func SubcategoryListing(items []Subcategory) []Listing {
	out := make([]Listing, 0, len(items))
	for _, s := range items {
		out = append(out, Listing{ID: s.ID, Name: s.Name})
	}
	return out
}

func VariableListing(items []Variable) []Listing {
	out := make([]Listing, 0, len(items))
	for _, v := range items {
		out = append(out, Listing{ID: v.ID, Name: v.Name})
	}
	return out
}

func EntityListing(items []Entity) []Listing {
	out := make([]Listing, 0, len(items))
	for _, e := range items {
		out = append(out, Listing{ID: e.ID, Name: e.Name})
	}
	return out
}
