package statusserver

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/godon-project/breeder-worker/internal/config"
)

type pingerStub struct{ err error }

func (p pingerStub) Ping(context.Context) error { return p.err }

func testConfig() config.Config {
	return config.Config{CORSAllowOrigins: "*", RateLimitPerMin: 1000}
}

func TestHealthz_OKWhenDBReachable(t *testing.T) {
	t.Parallel()
	r := BuildRouter(testConfig(), pingerStub{}, nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestHealthz_ServiceUnavailableWhenDBDown(t *testing.T) {
	t.Parallel()
	r := BuildRouter(testConfig(), pingerStub{err: errors.New("down")}, nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestReadyz_ReportsStatus(t *testing.T) {
	t.Parallel()
	r := BuildRouter(testConfig(), nil, func() Status {
		return Status{BreederID: "b1", WorkerID: "w1", State: "running"}
	})
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"breeder_id":"b1"`)
}

func TestMetrics_ServesPrometheusFormat(t *testing.T) {
	t.Parallel()
	r := BuildRouter(testConfig(), nil, nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestParseOrigins(t *testing.T) {
	t.Parallel()
	assert.Equal(t, []string{"*"}, ParseOrigins(""))
	assert.Equal(t, []string{"*"}, ParseOrigins("*"))
	assert.Equal(t, []string{"a", "b"}, ParseOrigins(" a , b "))
}
