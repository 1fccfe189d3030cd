// Package server is the process's HTTP health server. It only ever
// serves liveness and readiness; administrative CRUD lives behind a
// separate adapter, not here.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// Config is the host/port pair the process binds its health server
// to.
type Config struct {
	Host string
	Port string
}

// Addr returns the host:port string http.Server expects.
func (c Config) Addr() string {
	return fmt.Sprintf("%s:%s", c.Host, c.Port)
}

// Ready reports process readiness; swapped in main once startup
// dependency checks (store, bus) have passed.
type Ready func() bool

// New builds an *http.Server exposing /healthz (always 200 once the
// process is up) and /readyz (200 once ready returns true).
func New(cfg Config, ready Ready) *http.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, _ *http.Request) {
		if ready != nil && !ready() {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
	return &http.Server{
		Addr:              cfg.Addr(),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
}

// Shutdown gracefully stops srv, bounded by a 5 second timeout.
func Shutdown(srv *http.Server) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
