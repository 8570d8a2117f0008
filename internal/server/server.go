package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/jpalmerr/labwatch/internal/store"
)

const (
	// defaultLimit is the number of records /api/polls returns without a limit.
	defaultLimit = 20

	// maxLimit caps the limit query parameter.
	maxLimit = 500

	shutdownTimeout = 5 * time.Second
)

// Poll is the JSON view of a record served by /api/polls.
type Poll struct {
	ID                   int64            `json:"id"`
	BaseURL              string           `json:"base_url"`
	CreatedAt            time.Time        `json:"created_at"`
	HealthCheckPassed    bool             `json:"health_check_passed"`
	ReadinessCheckPassed bool             `json:"readiness_check_passed"`
	InstanceVersion      string           `json:"instance_version"`
	ErrorMessage         string           `json:"error_message,omitempty"`
	Responses            *store.Responses `json:"responses,omitempty"`
}

// Server serves the status endpoints of a running poller.
//
// Server provides three endpoints:
//   - GET /api/polls: the most recent poll records as JSON, newest first
//   - GET /metrics: Prometheus metrics (when a metrics handler is configured)
//   - GET /healthz: liveness of the labwatch process itself
//
// The server is designed for graceful shutdown via context cancellation.
type Server struct {
	reader     store.Reader
	addr       string
	metrics    http.Handler
	httpServer *http.Server
	listener   net.Listener
	logger     *slog.Logger
}

// NewServer creates a new HTTP [Server].
//
// Parameters:
//   - reader: source of recent records
//   - addr: TCP address to listen on, e.g. ":9090" or "127.0.0.1:0"
//   - metrics: handler mounted at /metrics (may be nil)
//   - logger: Logger for server events
//
// The server is not started until [Server.Start] is called.
func NewServer(reader store.Reader, addr string, metrics http.Handler, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		reader:  reader,
		addr:    addr,
		metrics: metrics,
		logger:  logger,
	}
}

// Handler returns the routing handler without starting a listener.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/polls", s.handlePolls)
	mux.HandleFunc("/healthz", s.handleHealthz)
	if s.metrics != nil {
		mux.Handle("/metrics", s.metrics)
	}
	return mux
}

// Start begins serving HTTP requests in a background goroutine.
//
// Start is non-blocking and returns immediately after confirming the server
// is listening. The server will continue running until the context is
// cancelled, at which point it initiates a graceful shutdown with a 5-second
// timeout.
//
// Returns an error if the server fails to bind to the configured address.
func (s *Server) Start(ctx context.Context) error {
	// create listener first to verify the address synchronously
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.addr, err)
	}
	s.listener = ln

	s.httpServer = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext: func(_ net.Listener) context.Context {
			return ctx
		},
	}

	go func() {
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("http server error", "error", err)
		}
	}()

	// shutdown on context cancellation
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			s.logger.Error("http server shutdown error", "error", err)
		}
	}()

	s.logger.Info("status server listening", "addr", ln.Addr().String())
	return nil
}

// Addr returns the bound address once [Server.Start] has succeeded.
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// handlePolls returns recent records as JSON.
//
// Query parameters: limit (1-500, default 20) and responses=true to inline
// the stored response bodies.
func (s *Server) handlePolls(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	limit := defaultLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			http.Error(w, "limit must be a positive integer", http.StatusBadRequest)
			return
		}
		limit = min(n, maxLimit)
	}
	withResponses := r.URL.Query().Get("responses") == "true"

	records, err := s.reader.Recent(r.Context(), limit)
	if err != nil {
		s.logger.Error("failed to load recent polls", "error", err)
		http.Error(w, "failed to load polls", http.StatusInternalServerError)
		return
	}

	var bodies map[int64]store.Responses
	if withResponses && len(records) > 0 {
		ids := make([]int64, len(records))
		for i, rec := range records {
			ids[i] = rec.ID
		}
		bodies, err = s.reader.Responses(r.Context(), ids)
		if err != nil {
			s.logger.Error("failed to load poll responses", "error", err)
			http.Error(w, "failed to load polls", http.StatusInternalServerError)
			return
		}
	}

	polls := make([]Poll, len(records))
	for i, rec := range records {
		polls[i] = Poll{
			ID:                   rec.ID,
			BaseURL:              rec.BaseURL,
			CreatedAt:            rec.CreatedAt,
			HealthCheckPassed:    rec.HealthCheckPassed,
			ReadinessCheckPassed: rec.ReadinessCheckPassed,
			InstanceVersion:      rec.InstanceVersion,
			ErrorMessage:         rec.ErrorMessage,
		}
		if b, ok := bodies[rec.ID]; ok {
			polls[i].Responses = &b
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-cache")

	if err := json.NewEncoder(w).Encode(polls); err != nil {
		s.logger.Error("failed to encode polls response", "error", err)
	}
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("ok\n"))
}
