// Package debughttp is the daemon's optional, loopback-only diagnostics
// endpoint: never the control plane (that's the Unix socket), only a
// health check and a point-in-time state dump for an operator with curl.
package debughttp

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/clhorde/clhorde/internal/api"
)

// StateSource is implemented by *orchestrator.Orchestrator; kept narrow so
// this package doesn't import the orchestrator's request/reply machinery.
type StateSource interface {
	Submit(sessionID int, req api.ClientRequest, reply chan api.DaemonEvent)
}

// Server is a loopback-only HTTP server exposing /healthz and /metrics.
type Server struct {
	addr   string
	orch   StateSource
	logger *log.Logger
	srv    *http.Server
}

// New builds a debug server bound to addr (expected to be loopback, e.g.
// "127.0.0.1:7080"); it is never started unless config.HealthAddr is set.
func New(addr string, orch StateSource, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.New(log.Writer(), "", log.LstdFlags)
	}
	s := &Server{addr: addr, orch: orch, logger: logger}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(5 * time.Second))
	r.Get("/healthz", s.handleHealthz)
	r.Get("/metrics", s.handleMetrics)

	s.srv = &http.Server{Addr: addr, Handler: r}
	return s
}

// ListenAndServe blocks serving until the listener errors or is closed by
// Shutdown. Returns nil on a clean shutdown.
func (s *Server) ListenAndServe() error {
	err := s.srv.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	w.Write([]byte("ok\n"))
}

// handleMetrics reports a point-in-time counts-by-status snapshot. It asks
// the orchestrator for GetState on a private reply channel rather than
// registering a session, since this is a one-shot poll, not a subscriber.
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	reply := make(chan api.DaemonEvent, 1)
	s.orch.Submit(0, api.ClientRequest{Type: api.ReqGetState}, reply)

	select {
	case evt := <-reply:
		if evt.State == nil {
			http.Error(w, "no state available", http.StatusInternalServerError)
			return
		}
		counts := map[string]int{}
		for _, p := range evt.State.Prompts {
			counts[string(p.Status)]++
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"max_workers":    evt.State.MaxWorkers,
			"active_workers": evt.State.ActiveWorkers,
			"by_status":      counts,
		})
	case <-r.Context().Done():
		http.Error(w, "request canceled", http.StatusRequestTimeout)
	}
}
