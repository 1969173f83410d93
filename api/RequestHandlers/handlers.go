// Package requesthandlers serves the warehouse query API over echo.
//
// Every listing endpoint answers with a JSON array, empty when the input is
// malformed or refers to nothing: a bad or unknown variable id yields [],
// and so does a data request with an unparsable entity or year filter.
// Unknown entity ids inside a data filter are dropped. With strict ids
// enabled, a malformed category or subcategory id is answered with 400
// instead. Store failures are answered with 503 and an error body; an
// integrity fault found while building the metadata document is answered
// with 500 naming the offending variable.
package requesthandlers

import (
	"context"
	"errors"
	"net/http"
	"net/url"

	"github.com/chendingplano/dataviewer/api/EchoFactory"
	ds "github.com/chendingplano/dataviewer/api/datastructures"
	"github.com/chendingplano/dataviewer/api/query"
	"github.com/chendingplano/dataviewer/api/stores"
	"github.com/labstack/echo/v4"
)

type ErrorResponse struct {
	Error      string `json:"error"`
	VariableID int64  `json:"variable_id,omitempty"`
}

type Handlers struct {
	engine    *query.Engine
	strictIDs bool
}

func NewHandlers(engine *query.Engine, strictIDs bool) *Handlers {
	return &Handlers{engine: engine, strictIDs: strictIDs}
}

// respondError maps an engine error to a status code and body.
func (h *Handlers) respondError(c echo.Context, op string, loc string, err error) error {
	logger := EchoFactory.GetLogger(c)
	if fault, ok := stores.AsDataIntegrityFault(err); ok {
		logger.Error("Integrity fault", "op", op, "loc", loc, "error", fault)
		return c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:      fault.Error(),
			VariableID: fault.VariableID,
		})
	}
	if errors.Is(err, stores.ErrInvalidArgument) {
		logger.Warn("Invalid argument", "op", op, "loc", loc, "error", err)
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
	}
	if errors.Is(err, context.DeadlineExceeded) {
		logger.Warn("Request timed out", "op", op, "loc", loc, "error", err)
	} else {
		logger.Error("Store failure", "op", op, "loc", loc, "error", err)
	}
	return c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: "warehouse unavailable"})
}

func (h *Handlers) HandleCategories(c echo.Context) error {
	categories, err := h.engine.CategoriesOf(c.Request().Context())
	if err != nil {
		return h.respondError(c, "categories", "DVW_RHD_065", err)
	}
	return c.JSON(http.StatusOK, ds.CategoryListing(categories))
}

func (h *Handlers) HandleSubcategories(c echo.Context) error {
	subcategories, err := h.engine.SubcategoriesOf(c.Request().Context(), c.QueryParam("category"))
	if err != nil {
		if errors.Is(err, stores.ErrInvalidArgument) && !h.strictIDs {
			return c.JSON(http.StatusOK, []ds.Listing{})
		}
		return h.respondError(c, "subcategories", "DVW_RHD_074", err)
	}
	return c.JSON(http.StatusOK, ds.SubcategoryListing(subcategories))
}

func (h *Handlers) HandleVariables(c echo.Context) error {
	variables, err := h.engine.VariablesOf(c.Request().Context(), c.QueryParam("subcategory"))
	if err != nil {
		if errors.Is(err, stores.ErrInvalidArgument) && !h.strictIDs {
			return c.JSON(http.StatusOK, []ds.Listing{})
		}
		return h.respondError(c, "variables", "DVW_RHD_085", err)
	}
	return c.JSON(http.StatusOK, ds.VariableListing(variables))
}

// HandleVariable returns the name and unit of one variable, or {} when it
// does not exist.
func (h *Handlers) HandleVariable(c echo.Context) error {
	variable, ok, err := h.engine.VariableOf(c.Request().Context(), c.QueryParam("variable"))
	if err != nil {
		return h.respondError(c, "variable", "DVW_RHD_096", err)
	}
	if !ok {
		return c.JSON(http.StatusOK, struct{}{})
	}
	return c.JSON(http.StatusOK, variable)
}

func (h *Handlers) HandleYears(c echo.Context) error {
	years, err := h.engine.YearsOf(c.Request().Context(), c.QueryParam("variable"))
	if err != nil {
		return h.respondError(c, "years", "DVW_RHD_107", err)
	}
	return c.JSON(http.StatusOK, years)
}

func (h *Handlers) HandleEntities(c echo.Context) error {
	entities, err := h.engine.EntitiesOf(c.Request().Context(), c.QueryParam("variable"))
	if err != nil {
		return h.respondError(c, "entities", "DVW_RHD_115", err)
	}
	return c.JSON(http.StatusOK, ds.EntityListing(entities))
}

// HandleData serves GET query parameters and POST forms alike. entities
// may repeat and may also be sent as entities[].
func (h *Handlers) HandleData(c echo.Context) error {
	values, err := requestValues(c)
	if err != nil {
		EchoFactory.GetLogger(c).Warn("Failed parsing form (DVW_RHD_125)", "error", err)
		return c.JSON(http.StatusOK, []ds.DataRow{})
	}

	var entities []string
	entities = append(entities, values["entities"]...)
	entities = append(entities, values["entities[]"]...)

	rows, err := h.engine.DataOf(c.Request().Context(), values.Get("variable"), entities, values.Get("years"))
	if err != nil {
		return h.respondError(c, "data", "DVW_RHD_136", err)
	}
	return c.JSON(http.StatusOK, rows)
}

func (h *Handlers) HandleMetadata(c echo.Context) error {
	doc, err := h.engine.MetadataSnapshot(c.Request().Context())
	if err != nil {
		return h.respondError(c, "metadata", "DVW_RHD_144", err)
	}
	return c.JSON(http.StatusOK, doc)
}

func (h *Handlers) HandleHealthz(c echo.Context) error {
	if err := h.engine.Warehouse().Ping(c.Request().Context()); err != nil {
		EchoFactory.GetLogger(c).Error("Health check failed (DVW_RHD_151)", "error", err)
		return c.JSON(http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

func requestValues(c echo.Context) (url.Values, error) {
	if c.Request().Method == http.MethodPost {
		return c.FormParams()
	}
	return c.QueryParams(), nil
}
