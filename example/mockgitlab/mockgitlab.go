// Package mockgitlab serves a fake GitLab instance for trying labwatch
// locally.
//
// The instance cycles through three states, changing every 20-60 seconds:
//
//	ok       -> every probe passes
//	degraded -> readiness reports a failed check (503)
//	down     -> health and readiness fail (503)
//
// The metadata endpoint requires a token, like the real one.
package mockgitlab

import (
	"encoding/json"
	"log/slog"
	"math/rand"
	"net/http"
	"sync"
	"time"
)

// Version is reported by the metadata endpoint.
const Version = "17.2.0-ee"

// State is the simulated condition of the instance.
type State int

const (
	StateOK State = iota
	StateDegraded
	StateDown
)

func (s State) String() string {
	switch s {
	case StateOK:
		return "ok"
	case StateDegraded:
		return "degraded"
	default:
		return "down"
	}
}

// Server is an http.Handler emulating GitLab's health, readiness and
// metadata endpoints.
type Server struct {
	mu           sync.Mutex
	state        State
	nextChangeAt time.Time
	cycle        bool

	logger *slog.Logger
	mux    *http.ServeMux
}

// New returns a server starting in StateOK. If cycle is true the state
// advances on its own; otherwise it only changes through SetState.
func New(cycle bool, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{cycle: cycle, logger: logger, mux: http.NewServeMux()}
	s.scheduleChange()

	s.mux.HandleFunc("/-/health", s.handleHealth)
	s.mux.HandleFunc("/-/readiness", s.handleReadiness)
	s.mux.HandleFunc("/api/v4/metadata", s.handleMetadata)
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// SetState forces the simulated state.
func (s *Server) SetState(state State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = state
}

// State returns the current state, advancing it first if a change is due.
func (s *Server) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cycle && time.Now().After(s.nextChangeAt) {
		old := s.state
		s.state = (s.state + 1) % 3
		s.scheduleChange()
		s.logger.Info("state change", "from", old.String(), "to", s.state.String())
	}
	return s.state
}

// scheduleChange picks the next change 20-60 seconds from now.
func (s *Server) scheduleChange() {
	s.nextChangeAt = time.Now().Add(time.Duration(20+rand.Intn(41)) * time.Second)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.State() == StateDown {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("GitLab Not OK"))
		return
	}
	_, _ = w.Write([]byte("GitLab OK"))
}

func (s *Server) handleReadiness(w http.ResponseWriter, r *http.Request) {
	check := "ok"
	code := http.StatusOK
	if s.State() != StateOK {
		check = "failed"
		code = http.StatusServiceUnavailable
	}

	writeJSON(w, code, map[string]any{
		"status": check,
		"master_check": []map[string]string{
			{"status": check},
		},
	}, s.logger)
}

func (s *Server) handleMetadata(w http.ResponseWriter, r *http.Request) {
	if r.Header.Get("Authorization") == "" && r.Header.Get("PRIVATE-TOKEN") == "" {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "401 Unauthorized"}, s.logger)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"version":  Version,
		"revision": "6e2b45d",
		"kas": map[string]any{
			"enabled":     true,
			"externalUrl": nil,
			"version":     nil,
		},
		"enterprise": true,
	}, s.logger)
}

func writeJSON(w http.ResponseWriter, code int, v any, logger *slog.Logger) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error("failed to write response", "error", err)
	}
}
