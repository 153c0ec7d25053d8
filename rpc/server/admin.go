package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
)

// adminRouter returns the routes of the admin http server:
//
//	GET /metrics            Prometheus metrics
//	GET /healthz            liveness probe
//	GET /stores             names of the live stores
//	GET /stores/{name}/keys keys of one store
func (s *RPCServer) adminRouter() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/metrics", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4")
		s.metrics.write(w)
	}).Methods(http.MethodGet)
	r.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte("ok\n"))
	}).Methods(http.MethodGet)
	r.HandleFunc("/stores", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, s.registry.Names())
	}).Methods(http.MethodGet)
	r.HandleFunc("/stores/{name}/keys", func(w http.ResponseWriter, req *http.Request) {
		keys, err := s.registry.Keys(mux.Vars(req)["name"])
		if err != nil {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, keys)
	}).Methods(http.MethodGet)
	return r
}

// serveAdmin runs the admin http server on endpoint until ctx is cancelled
func (s *RPCServer) serveAdmin(ctx context.Context, endpoint string) error {
	srv := &http.Server{
		Addr:              endpoint,
		Handler:           s.adminRouter(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	Logger.Infof("Starting admin server on %s", endpoint)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		Logger.Debugf("Failed to write admin response: %v", err)
	}
}
