package requesthandlers

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/chendingplano/dataviewer/api/ApiTypes"
	"github.com/chendingplano/dataviewer/api/EchoFactory"
	"github.com/chendingplano/dataviewer/api/loggerutil"
	"github.com/chendingplano/dataviewer/api/query"
	"github.com/chendingplano/dataviewer/api/stores"
	"github.com/chendingplano/dataviewer/api/stores/storetest"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newHandlers(w *stores.Warehouse) *Handlers {
	return NewHandlers(query.NewEngine(w, query.Config{}, nil, loggerutil.NewNopLogger()), false)
}

func newContext(method string, target string) (echo.Context, *httptest.ResponseRecorder) {
	e := echo.New()
	req := httptest.NewRequest(method, target, nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	EchoFactory.SetLogger(c, loggerutil.NewNopLogger())
	return c, rec
}

func TestHandleDataMixesEntityParams(t *testing.T) {
	h := newHandlers(storetest.Default().MemWarehouse())

	c, rec := newContext(http.MethodGet,
		"/data?variable=3001&entities=51&entities%5B%5D=50&years=%5B%222001%22%5D")
	require.NoError(t, h.HandleData(c))
	require.Equal(t, http.StatusOK, rec.Code)
	// Argentina's 2001 value is NULL.
	assert.JSONEq(t, `[{"value":2.25,"year":2001,"entity":"Brazil"}]`, rec.Body.String())
}

func TestHandleDataNoParams(t *testing.T) {
	h := newHandlers(storetest.Default().MemWarehouse())

	c, rec := newContext(http.MethodGet, "/data")
	require.NoError(t, h.HandleData(c))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())
}

func TestHandleHealthzUnavailable(t *testing.T) {
	db := storetest.OpenSQLite(t)
	w, err := stores.NewSQLWarehouse(db, ApiTypes.SqliteName,
		ApiTypes.DefaultWarehouseTables(), loggerutil.NewNopLogger())
	require.NoError(t, err)
	h := newHandlers(w)

	c, rec := newContext(http.MethodGet, "/healthz")
	require.NoError(t, h.HandleHealthz(c))
	assert.Equal(t, http.StatusOK, rec.Code)

	require.NoError(t, db.Close())
	c, rec = newContext(http.MethodGet, "/healthz")
	require.NoError(t, h.HandleHealthz(c))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestHandleVariablesStrict(t *testing.T) {
	engine := query.NewEngine(storetest.Default().MemWarehouse(), query.Config{}, nil, loggerutil.NewNopLogger())

	c, rec := newContext(http.MethodGet, "/variables?subcategory=ten")
	require.NoError(t, NewHandlers(engine, false).HandleVariables(c))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())

	c, rec = newContext(http.MethodGet, "/variables?subcategory=ten")
	require.NoError(t, NewHandlers(engine, true).HandleVariables(c))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
