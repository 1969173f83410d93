package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/chendingplano/dataviewer/api/ApiTypes"
	"github.com/chendingplano/dataviewer/api/EchoFactory"
	requesthandlers "github.com/chendingplano/dataviewer/api/RequestHandlers"
	ds "github.com/chendingplano/dataviewer/api/datastructures"
	"github.com/chendingplano/dataviewer/api/loggerutil"
	"github.com/chendingplano/dataviewer/api/query"
	"github.com/chendingplano/dataviewer/api/stores"
	"github.com/chendingplano/dataviewer/api/stores/storetest"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newServer(w *stores.Warehouse, config ApiTypes.ServerConfig) *echo.Echo {
	logger := loggerutil.NewNopLogger()
	e := EchoFactory.NewEcho(config, logger)
	engine := query.NewEngine(w, query.Config{}, nil, logger)
	RegisterRoutes(e, requesthandlers.NewHandlers(engine, config.StrictIDs), "")
	return e
}

func get(t *testing.T, e *echo.Echo, target string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestExampleEndpoints(t *testing.T) {
	for name, w := range storetest.Default().Backends(t) {
		t.Run(name, func(t *testing.T) {
			e := newServer(w, ApiTypes.ServerConfig{RequestTimeoutSec: 5})

			rec := get(t, e, "/dataviewer/api/years?variable=2020")
			require.Equal(t, http.StatusOK, rec.Code)
			assert.JSONEq(t, `[1980,1990]`, rec.Body.String())

			rec = get(t, e, "/dataviewer/api/entities?variable=2020")
			require.Equal(t, http.StatusOK, rec.Code)
			assert.JSONEq(t, `[{"id":34676,"name":"Under 15"}]`, rec.Body.String())

			q := url.Values{}
			q.Add("variable", "2020")
			q.Add("entities", "34676")
			q.Add("years", "[1980,1990]")
			rec = get(t, e, "/dataviewer/api/data?"+q.Encode())
			require.Equal(t, http.StatusOK, rec.Code)
			assert.JSONEq(t,
				`[{"value":100,"year":1980,"entity":"Under 15"},{"value":120,"year":1990,"entity":"Under 15"}]`,
				rec.Body.String())
			assert.NotEmpty(t, rec.Header().Get(echo.HeaderXRequestID))
		})
	}
}

func TestListingEndpoints(t *testing.T) {
	e := newServer(storetest.Default().MemWarehouse(), ApiTypes.ServerConfig{})

	rec := get(t, e, "/dataviewer/api/categories")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[{"id":1,"name":"Population"},{"id":2,"name":"Economy"}]`, rec.Body.String())

	rec = get(t, e, "/dataviewer/api/subcategories?category=1")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[{"id":10,"name":"Age structure"},{"id":11,"name":"Migration"}]`, rec.Body.String())

	rec = get(t, e, "/dataviewer/api/variables?subcategory=10")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[{"id":2020,"name":"Population by age"},{"id":2021,"name":"Dependency ratio"}]`, rec.Body.String())

	rec = get(t, e, "/dataviewer/api/variable?variable=3001")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"id":3001,"name":"GDP growth","unit":"%"}`, rec.Body.String())

	rec = get(t, e, "/dataviewer/api/variable?variable=999999")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{}`, rec.Body.String())
}

func TestMalformedInputIsEmpty(t *testing.T) {
	e := newServer(storetest.Default().MemWarehouse(), ApiTypes.ServerConfig{})

	for _, target := range []string{
		"/dataviewer/api/years?variable=abc",
		"/dataviewer/api/years",
		"/dataviewer/api/entities?variable=-1",
		"/dataviewer/api/entities?variable=999999",
		"/dataviewer/api/subcategories?category=abc",
		"/dataviewer/api/subcategories",
		"/dataviewer/api/variables?subcategory=x1",
		"/dataviewer/api/data?variable=3001&entities=50&years=2000",
		"/dataviewer/api/data?variable=3001&entities=fifty&years=%5B2000%5D",
		"/dataviewer/api/data?variable=3001&years=%5B2000%5D",
	} {
		rec := get(t, e, target)
		require.Equal(t, http.StatusOK, rec.Code, target)
		assert.JSONEq(t, `[]`, rec.Body.String(), target)
	}
}

func TestStrictIDs(t *testing.T) {
	e := newServer(storetest.Default().MemWarehouse(), ApiTypes.ServerConfig{StrictIDs: true})

	rec := get(t, e, "/dataviewer/api/subcategories?category=abc")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = get(t, e, "/dataviewer/api/variables?subcategory=0")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// Unknown ids stay empty.
	rec = get(t, e, "/dataviewer/api/subcategories?category=424242")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())

	// Other endpoints still degrade.
	rec = get(t, e, "/dataviewer/api/years?variable=abc")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())
}

func TestDataPostForm(t *testing.T) {
	e := newServer(storetest.Default().MemWarehouse(), ApiTypes.ServerConfig{})

	form := url.Values{}
	form.Set("variable", "3001")
	form.Add("entities[]", "51")
	form.Add("entities[]", "50")
	form.Set("years", `[2000]`)
	req := httptest.NewRequest(http.MethodPost, "/dataviewer/api/data", strings.NewReader(form.Encode()))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationForm)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t,
		`[{"value":1.5,"year":2000,"entity":"Brazil"},{"value":3,"year":2000,"entity":"Argentina"}]`,
		rec.Body.String())
}

func TestMetadataEndpoint(t *testing.T) {
	e := newServer(storetest.Default().MemWarehouse(), ApiTypes.ServerConfig{})

	rec := get(t, e, "/dataviewer/api/metadata")
	require.Equal(t, http.StatusOK, rec.Code)

	var doc ds.MetadataDoc
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &doc))
	require.Contains(t, doc.Categories, storetest.CategoryEconomy)
	gdp := doc.Categories[storetest.CategoryEconomy].
		Subcategories[storetest.SubcategoryOutput].
		Variables[storetest.VariableGDP]
	assert.Equal(t, "GDP growth", gdp.Name)
	assert.Equal(t, []int64{storetest.EntityBrazil, storetest.EntityArgentina}, gdp.EntityIDs)
	assert.Equal(t, "Brazil", doc.EntityNames[storetest.EntityBrazil])
}

func TestMetadataFaultIs500(t *testing.T) {
	f := storetest.Default().AddVariable(4000, "Orphan", "", 999)
	e := newServer(f.MemWarehouse(), ApiTypes.ServerConfig{})

	rec := get(t, e, "/dataviewer/api/metadata")
	require.Equal(t, http.StatusInternalServerError, rec.Code)

	var body requesthandlers.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, int64(4000), body.VariableID)
	assert.NotEmpty(t, body.Error)
}

type unavailableValues struct {
	stores.ValueStore
}

func (unavailableValues) DistinctYears(ctx context.Context, variableID int64) ([]int, error) {
	return nil, stores.ErrStoreUnavailable
}

func TestStoreFailureIs503(t *testing.T) {
	w := storetest.Default().MemWarehouse()
	w.Values = unavailableValues{ValueStore: w.Values}
	e := newServer(w, ApiTypes.ServerConfig{})

	rec := get(t, e, "/dataviewer/api/years?variable=2020")
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), `"error"`)

	// Other reads are unaffected.
	rec = get(t, e, "/dataviewer/api/entities?variable=2020")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHealthzAndMetrics(t *testing.T) {
	e := newServer(storetest.Default().SQLWarehouse(t), ApiTypes.ServerConfig{})

	rec := get(t, e, "/healthz")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())

	get(t, e, "/dataviewer/api/years?variable=2020")
	rec = get(t, e, "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "dataviewer_query_duration_seconds")
}

func TestRateLimit(t *testing.T) {
	e := newServer(storetest.Default().MemWarehouse(), ApiTypes.ServerConfig{RateLimit: 0.001, RateBurst: 1})

	rec := get(t, e, "/dataviewer/api/categories")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = get(t, e, "/dataviewer/api/categories")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
}
