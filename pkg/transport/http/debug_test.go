package http

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"

	"github.com/samueltorres/countd/pkg/counter"
	"github.com/samueltorres/countd/pkg/memory"
)

func TestDebugServer(t *testing.T) {
	logger, _ := test.NewNullLogger()
	registry := prometheus.NewRegistry()
	counterService := counter.NewCounterService(memory.NewStorage(), logger, registry, counter.DefaultOptions())
	server := New(counterService, logger, registry)
	debug := NewDebugServer(registry, logger, ":0")

	server.Handler().ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/c1", nil))

	rec := httptest.NewRecorder()
	debug.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())

	rec = httptest.NewRecorder()
	debug.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `counter_operations_total{op="increment",result="ok"} 1`)
	assert.Contains(t, rec.Body.String(), `counter_http_requests_total{method="POST",outcome="ok",status="200"} 1`)
}
