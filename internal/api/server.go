// Package api provides the HabitNest HTTP server.
// Every /api/v1 route acts on the user named by the X-User-ID header, which
// an upstream gateway sets after authentication.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/habitnest/habitnest/internal/app/credit"
	"github.com/habitnest/habitnest/internal/app/engagement"
	"github.com/habitnest/habitnest/internal/app/habit"
	"github.com/habitnest/habitnest/internal/domain"
	"github.com/habitnest/habitnest/internal/health"
	"github.com/habitnest/habitnest/internal/logger"
)

// UserHeader carries the authenticated user id.
const UserHeader = "X-User-ID"

// Services are the application services the API exposes.
type Services struct {
	Habits   *habit.Service
	Checkins *engagement.CheckinService
	Quests   *engagement.QuestService
	Credit   *credit.Service
}

// Server is the HabitNest HTTP API server.
type Server struct {
	svc            Services
	loc            *time.Location
	now            func() time.Time
	health         *health.Checker
	metricsEnabled bool
	corsOrigins    []string
	timeout        time.Duration
}

// NewServer creates a new API server. Business days are computed in loc.
func NewServer(svc Services, loc *time.Location) *Server {
	if loc == nil {
		loc = time.UTC
	}
	return &Server{
		svc:         svc,
		loc:         loc,
		now:         time.Now,
		corsOrigins: []string{"*"},
		timeout:     30 * time.Second,
	}
}

// EnableMetrics enables the /metrics Prometheus endpoint.
func (s *Server) EnableMetrics() { s.metricsEnabled = true }

// SetHealth sets the checker reported by /healthz.
func (s *Server) SetHealth(c *health.Checker) { s.health = c }

// SetCORSOrigins sets the allowed CORS origins.
func (s *Server) SetCORSOrigins(origins []string) {
	if len(origins) > 0 {
		s.corsOrigins = origins
	}
}

// SetTimeout bounds each request.
func (s *Server) SetTimeout(d time.Duration) {
	if d > 0 {
		s.timeout = d
	}
}

// Handler returns the chi router with all routes mounted.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(s.timeout))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.corsOrigins,
		AllowedMethods: []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", UserHeader},
		MaxAge:         300,
	}))

	r.Get("/healthz", s.handleHealth)

	if s.metricsEnabled {
		r.Handle("/metrics", promhttp.Handler())
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(requireUser)

		r.Route("/habits/{habit}", func(r chi.Router) {
			r.Use(habitParam)
			r.Get("/goal", s.handleGetGoal)
			r.Put("/goal", s.handlePutGoal)
			r.Get("/logs/today", s.handleTodayLogs)
			r.Get("/logs/week", s.handleWeekLogs)
			r.Put("/logs/{id}", s.handleUpdateLog)
		})

		r.Route("/rewards", func(r chi.Router) {
			r.Get("/", s.handleRewards)
			r.Get("/checkin", s.handleCheckinCalendar)
			r.Post("/checkin", s.handleCheckin)
			r.Get("/history", s.handleHistory)
		})

		r.Get("/quests", s.handleListQuests)
		r.Post("/quests/{id}/claim", s.handleClaimQuest)
	})

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.health == nil {
		writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
		return
	}
	status, code := "ok", http.StatusOK
	if !s.health.IsHealthy() {
		status, code = "degraded", http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]any{
		"status": status,
		"checks": s.health.Statuses(),
	})
}

// today is the current business day.
func (s *Server) today() domain.Date {
	return domain.Today(s.now(), s.loc)
}

// ─── Request context ────────────────────────────────────────────────────────

type ctxKey int

const (
	userKey ctxKey = iota
	habitKey
)

func requireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(UserHeader)
		if id == "" {
			writeError(w, http.StatusUnauthorized, "missing "+UserHeader+" header")
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), userKey, id)))
	})
}

func habitParam(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h, err := domain.ParseHabitType(chi.URLParam(r, "habit"))
		if err != nil {
			writeDomainError(w, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), habitKey, h)))
	})
}

func userID(r *http.Request) string {
	id, _ := r.Context().Value(userKey).(string)
	return id
}

func habitOf(r *http.Request) domain.HabitType {
	h, _ := r.Context().Value(habitKey).(domain.HabitType)
	return h
}

// ─── Responses ──────────────────────────────────────────────────────────────

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error("encode response", "err", err)
	}
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeTypedError(w, status, "error", msg, nil)
}

func writeTypedError(w http.ResponseWriter, status int, typ, msg string, fields []domain.FieldError) {
	body := map[string]any{
		"message": msg,
		"type":    typ,
	}
	if len(fields) > 0 {
		body["fields"] = fields
	}
	writeJSON(w, status, map[string]any{"error": body})
}

// decodeJSON reads a JSON body, reporting malformed input as a validation error.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return domain.NewValidationError("body", err.Error())
	}
	return nil
}
