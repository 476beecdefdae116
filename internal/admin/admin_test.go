package admin

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/cannero/kvreplica/internal/engine"
	"github.com/cannero/kvreplica/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHealthzAndStatus(t *testing.T) {
	s := store.New()
	state, err := engine.NewServerConfig(engine.LeaderRole, 6379)
	require.NoError(t, err)

	srv := New("127.0.0.1:0", s, state)

	rw := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	srv.httpServer.Handler.ServeHTTP(rw, req)
	assert.Equal(t, http.StatusOK, rw.Code)

	rw = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/debug/vars", nil)
	srv.httpServer.Handler.ServeHTTP(rw, req)
	assert.Equal(t, http.StatusOK, rw.Code)
	assert.Contains(t, rw.Body.String(), "\"role\":\"master\"")
}

func TestMetricsEndpointServesPrometheusFormat(t *testing.T) {
	s := store.New()
	state, err := engine.NewServerConfig(engine.LeaderRole, 6379)
	require.NoError(t, err)

	srv := New("127.0.0.1:0", s, state)

	rw := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	srv.httpServer.Handler.ServeHTTP(rw, req)
	assert.Equal(t, http.StatusOK, rw.Code)
}
