package health

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/nadzzz/saytext/internal/metrics"
)

func get(h http.Handler, path string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestHealthz_AlwaysOK(t *testing.T) {
	s := New(0)
	rec := get(s.Handler(), "/healthz")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestReadyz_FollowsReadiness(t *testing.T) {
	s := New(0)
	h := s.Handler()

	rec := get(h, "/readyz")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.JSONEq(t, `{"status":"not_ready"}`, rec.Body.String())

	s.SetReady(true)
	rec = get(h, "/readyz")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestMetrics_ExposesSaytextCollectors(t *testing.T) {
	metrics.ObserveCacheLookup(true)

	rec := get(New(0).Handler(), "/metrics")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "saytext_cache_lookups_total")
}
