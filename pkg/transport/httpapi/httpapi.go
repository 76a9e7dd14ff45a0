// Package httpapi exposes resource.monitor-waitup and
// resource.monitor-force-down as JSON-over-HTTP endpoints: a concrete
// stand-in for flux's overlay RPC channel (SPEC_FULL.md §4.D). The server
// lifecycle (Config, graceful Start/Stop against a context) is grounded
// on core/pkg/adapters/http.Adapter; unlike that adapter this package
// binds three fixed, known routes directly instead of going through the
// reflection-driven handler.Registry, since the RPC surface here is small
// and fixed rather than arbitrary user-supplied handlers.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/flux-framework/flux-core/core/pkg/contracts"
	"github.com/flux-framework/flux-core/pkg/membership"
	"github.com/flux-framework/flux-core/pkg/validation"
)

// Config mirrors the fields of core/pkg/adapters/http.Config this server
// actually uses.
type Config struct {
	Addr         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// DefaultConfig returns sensible defaults, matching the teacher's
// http.Config zero-value handling.
func DefaultConfig() Config {
	return Config{
		Addr:         ":8080",
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}

// Server is the RPC-over-HTTP binding for one Monitor.
type Server struct {
	server    *http.Server
	mon       *membership.Monitor
	validator *validation.Validator
	limiter   contracts.RateLimiter
	logger    contracts.Logger
}

// New builds a Server. limiter and logger may be nil.
func New(cfg Config, mon *membership.Monitor, validator *validation.Validator, limiter contracts.RateLimiter, logger contracts.Logger) *Server {
	s := &Server{mon: mon, validator: validator, limiter: limiter, logger: logger}

	mux := http.NewServeMux()
	mux.HandleFunc("/resource/monitor-waitup", s.handleWaitup)
	mux.HandleFunc("/resource/monitor-force-down", s.handleForceDown)
	mux.HandleFunc("/resource/monitor-status", s.handleStatus)

	s.server = &http.Server{
		Addr:         cfg.Addr,
		Handler:      mux,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}
	return s
}

// Start runs the HTTP server until ctx is cancelled, then gracefully shuts
// it down.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.server.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

// clientKey identifies a caller for rate-limiting purposes. Real
// deployments would key on an authenticated principal; RemoteAddr is a
// reasonable stand-in for a same-process/trusted-network RPC surface.
func clientKey(r *http.Request) string {
	return r.RemoteAddr
}

func (s *Server) rateLimited(w http.ResponseWriter, r *http.Request) bool {
	if s.limiter == nil {
		return false
	}
	ok, err := s.limiter.Allow(r.Context(), clientKey(r))
	if err != nil {
		if s.logger != nil {
			s.logger.Error("rate limiter error", "error", err)
		}
		return false
	}
	if !ok {
		writeError(w, http.StatusTooManyRequests, fmt.Errorf("rate limit exceeded"))
		return true
	}
	return false
}

func (s *Server) handleWaitup(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
		return
	}
	if s.rateLimited(w, r) {
		return
	}

	var req validation.WaitupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("decode request: %w", err))
		return
	}
	if err := s.validator.Validate(req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	if err := s.mon.Waitup(r.Context(), req.Count); err != nil {
		switch {
		case errors.Is(err, membership.ErrNotLeader):
			writeError(w, http.StatusServiceUnavailable, err)
		case errors.Is(err, membership.ErrInvalidCardinality):
			writeError(w, http.StatusBadRequest, err)
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			writeError(w, http.StatusRequestTimeout, err)
		default:
			writeError(w, http.StatusInternalServerError, err)
		}
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *Server) handleForceDown(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
		return
	}
	if s.rateLimited(w, r) {
		return
	}

	var req validation.ForceDownRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("decode request: %w", err))
		return
	}
	if err := s.validator.Validate(req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	if err := s.mon.ForceDown(r.Context(), req.Ranks); err != nil {
		switch {
		case errors.Is(err, membership.ErrNotLeader):
			writeError(w, http.StatusServiceUnavailable, err)
		case errors.Is(err, membership.ErrParse), errors.Is(err, membership.ErrInvalidCardinality):
			writeError(w, http.StatusBadRequest, err)
		default:
			writeError(w, http.StatusInternalServerError, err)
		}
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

type statusResponse struct {
	Up            string `json:"up"`
	Torpid        string `json:"torpid"`
	Lost          string `json:"lost"`
	WaitupPending int    `json:"waitup_pending"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
		return
	}
	writeJSON(w, http.StatusOK, statusResponse{
		Up:            s.mon.Up().Encode(),
		Torpid:        s.mon.Torpid().Encode(),
		Lost:          s.mon.Lost().Encode(),
		WaitupPending: s.mon.PendingWaitups(),
	})
}
