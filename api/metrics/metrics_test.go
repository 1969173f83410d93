package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordIntegrityFault(t *testing.T) {
	before := testutil.ToFloat64(integrityFaults.WithLabelValues("unknown_entity"))
	RecordIntegrityFault("unknown_entity")
	RecordIntegrityFault("unknown_entity")
	after := testutil.ToFloat64(integrityFaults.WithLabelValues("unknown_entity"))
	assert.Equal(t, before+2, after)
}

func TestRecordDegraded(t *testing.T) {
	before := testutil.ToFloat64(degradedQueries.WithLabelValues("years", "malformed_id"))
	RecordDegraded("years", "malformed_id")
	assert.Equal(t, before+1, testutil.ToFloat64(degradedQueries.WithLabelValues("years", "malformed_id")))
}

func TestHandlerExposesCollectors(t *testing.T) {
	RecordQuery("data", OutcomeOK, time.Now())
	RecordPoints(3)

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body := rec.Body.String()
	assert.True(t, strings.Contains(body, "dataviewer_query_duration_seconds"))
	assert.True(t, strings.Contains(body, "dataviewer_query_points_returned"))
}
