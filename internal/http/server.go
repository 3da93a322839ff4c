package http

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/cartridge/valuerl/internal/actor"
	"github.com/cartridge/valuerl/internal/health"
	"github.com/cartridge/valuerl/internal/middleware"
)

// StatsSource exposes training progress.
type StatsSource interface {
	Stats() actor.Stats
	Returns() []float64
}

// HealthSource reports whether training is progressing.
type HealthSource interface {
	Report() health.Report
	Healthy() bool
}

// Server wires HTTP handlers to the training run.
type Server struct {
	stats  StatsSource
	health HealthSource
	logger zerolog.Logger
}

// NewServer constructs a Server instance. A nil health source always
// reports healthy.
func NewServer(stats StatsSource, healthSource HealthSource, logger zerolog.Logger) *Server {
	return &Server{stats: stats, health: healthSource, logger: logger}
}

// Routes builds the HTTP router for the status service.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.CorrelationID)
	r.Use(middleware.RequestLogger(s.logger))
	r.Use(chimw.Recoverer)
	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		s.writeError(w, http.StatusNotFound, "route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	})

	r.Get("/healthz", s.handleHealth)
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/stats", s.handleStats)
		r.Get("/returns", s.handleReturns)
	})
	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	if s.health == nil {
		s.writeJSON(w, http.StatusOK, map[string]string{"status": health.StatusHealthy})
		return
	}
	status := http.StatusOK
	if !s.health.Healthy() {
		status = http.StatusServiceUnavailable
	}
	s.writeJSON(w, status, s.health.Report())
}

func (s *Server) handleStats(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, s.stats.Stats())
}

func (s *Server) handleReturns(w http.ResponseWriter, _ *http.Request) {
	returns := s.stats.Returns()
	if returns == nil {
		returns = []float64{}
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"returns": returns})
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error().Err(err).Msg("failed to encode response")
	}
}
