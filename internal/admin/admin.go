// Package admin is the optional, read-only HTTP surface exposed
// alongside the RESP listener: health, runtime metrics, and
// Prometheus scrape output. It mirrors the teacher's own
// gorilla/mux + gorilla/handlers server assembly (root server.go),
// trimmed to a read-only admin surface since this system has no
// authenticated web UI to serve.
package admin

import (
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/cannero/kvreplica/internal/engine"
	"github.com/cannero/kvreplica/internal/kvlog"
	"github.com/cannero/kvreplica/internal/store"
	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Server wraps an *http.Server exposing /healthz, /debug/vars, and
// /metrics. It is purely observational: no endpoint here can mutate
// the store or replication state.
type Server struct {
	httpServer *http.Server
}

// New builds the admin HTTP server bound to addr. It does not start
// listening until Serve is called.
func New(addr string, s *store.Store, state *engine.ServerConfig) *Server {
	r := mux.NewRouter()

	r.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(http.StatusOK)
		rw.Write([]byte("ok\n"))
	}).Methods(http.MethodGet)

	r.HandleFunc("/debug/vars", func(rw http.ResponseWriter, r *http.Request) {
		engine.SetReplicationOffset(state.ReplOffset)
		rw.Header().Set("Content-Type", "application/json")
		json.NewEncoder(rw).Encode(map[string]interface{}{
			"role":      state.Role.String(),
			"replid":    state.ReplID,
			"offset":    state.ReplOffset,
			"followers": state.Followers().Load(),
			"keys":      s.Len(),
		})
	}).Methods(http.MethodGet)

	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	r.Use(handlers.CompressHandler)
	loggedRouter := handlers.CustomLoggingHandler(logWriter{}, r, func(w io.Writer, params handlers.LogFormatterParams) {
		kvlog.Infof("admin: %s %s (status %d, %d bytes)", params.Request.Method, params.URL.RequestURI(), params.StatusCode, params.Size)
	})

	return &Server{httpServer: &http.Server{
		Addr:         addr,
		Handler:      loggedRouter,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}}
}

// Serve blocks until the server stops; call from its own goroutine.
func (s *Server) Serve() error {
	return s.httpServer.ListenAndServe()
}

// logWriter discards the handlers package's own access-log line since
// kvlog's Infof call above already emits one per request.
type logWriter struct{}

func (logWriter) Write(p []byte) (int, error) { return len(p), nil }
