package stores

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/chendingplano/dataviewer/api/ApiUtils"
)

var (
	// ErrNotFound is returned when a single required record is missing.
	ErrNotFound = errors.New("not found")
	// ErrInvalidArgument is returned for malformed identifiers or filters.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrStoreUnavailable marks driver errors a caller may retry.
	ErrStoreUnavailable = errors.New("store unavailable")
)

type FaultKind string

const (
	FaultDanglingDataset     FaultKind = "dangling_dataset"
	FaultDanglingSubcategory FaultKind = "dangling_subcategory"
	FaultDanglingCategory    FaultKind = "dangling_category"
	FaultCategoryMismatch    FaultKind = "category_mismatch"
	FaultUnknownEntity       FaultKind = "unknown_entity"
)

// DataIntegrityFault reports a broken reference inside the warehouse. It is
// never caused by caller input.
type DataIntegrityFault struct {
	Kind       FaultKind
	VariableID int64
	EntityID   int64
	Detail     string
	cause      error
}

func NewDataIntegrityFault(kind FaultKind, variableID, entityID int64, detail string) *DataIntegrityFault {
	return &DataIntegrityFault{
		Kind:       kind,
		VariableID: variableID,
		EntityID:   entityID,
		Detail:     detail,
	}
}

func (e *DataIntegrityFault) Error() string {
	msg := fmt.Sprintf("data integrity fault (%s): variable_id:%d", e.Kind, e.VariableID)
	if e.EntityID != 0 {
		msg += fmt.Sprintf(", entity_id:%d", e.EntityID)
	}
	if e.Detail != "" {
		msg += ", " + e.Detail
	}
	return msg
}

func (e *DataIntegrityFault) Unwrap() error { return e.cause }

// AsDataIntegrityFault unwraps err to a *DataIntegrityFault, if it holds one.
func AsDataIntegrityFault(err error) (*DataIntegrityFault, bool) {
	var fault *DataIntegrityFault
	if errors.As(err, &fault) {
		return fault, true
	}
	return nil, false
}

// wrapStoreError maps driver errors to the package's error kinds and tags
// them with the operation and location code.
func wrapStoreError(op string, loc string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s (%s): %w", op, loc, ErrNotFound)
	}
	if errors.Is(err, context.Canceled) {
		return fmt.Errorf("%s (%s): %w", op, loc, err)
	}
	if ApiUtils.IsTransientDBError(err) {
		return fmt.Errorf("%s (%s): %w: %w", op, loc, ErrStoreUnavailable, err)
	}
	return fmt.Errorf("%s (%s): %w", op, loc, err)
}
