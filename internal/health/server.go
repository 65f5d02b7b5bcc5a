package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/bilal/v2x-telemetry-agent/internal/metrics"
	"github.com/rs/zerolog/log"
)

// Server exposes liveness and Prometheus metrics on the loopback
// interface.
type Server struct {
	srv     *http.Server
	running atomic.Bool
	active  func() int
}

// New builds the server; active reports how many forwarders hold an open
// socket and may be nil.
func New(port string, active func() int) *Server {
	s := &Server{active: active}

	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.Handle("/metrics", metrics.Handler())

	s.srv = &http.Server{
		Addr:              "127.0.0.1:" + port,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

func (s *Server) SetRunning(ok bool) {
	s.running.Store(ok)
}

func (s *Server) Handler() http.Handler {
	return s.srv.Handler
}

func (s *Server) Addr() string {
	return s.srv.Addr
}

// Serve blocks until Shutdown; it returns nil after a clean shutdown.
func (s *Server) Serve() error {
	log.Info().Str("addr", s.srv.Addr).Msg("health endpoint listening")
	if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

type status struct {
	Running    bool `json:"running"`
	Forwarders int  `json:"forwarders_active"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	st := status{Running: s.running.Load()}
	if s.active != nil {
		st.Forwarders = s.active()
	}

	code := http.StatusOK
	if !st.Running {
		code = http.StatusServiceUnavailable
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(st); err != nil {
		log.Error().Err(err).Msg("encode health response failed")
	}
}
