package web

import (
	"database/sql"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-kit/kit/metrics"
	kitprometheus "github.com/go-kit/kit/metrics/prometheus"
	stdprometheus "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"

	"vitals/internal/db"
	"vitals/internal/models"
	"vitals/internal/sampler"
)

type Server struct {
	repo     *db.Repository
	sampler  *sampler.Sampler
	requests metrics.Counter
	latency  metrics.Histogram
	origins  []string
	log      *slog.Logger
}

func NewServer(repo *db.Repository, smp *sampler.Sampler, requests metrics.Counter, latency metrics.Histogram, corsOrigins []string, logger *slog.Logger) *Server {
	return &Server{repo: repo, sampler: smp, requests: requests, latency: latency, origins: corsOrigins, log: logger}
}

// APIMetrics builds the request instrumentation pair on the default
// Prometheus registry. Call once per process.
func APIMetrics() (metrics.Counter, metrics.Histogram) {
	counter := kitprometheus.NewCounterFrom(stdprometheus.CounterOpts{
		Namespace: "vitals",
		Subsystem: "api",
		Name:      "request_count",
		Help:      "Number of HTTP requests handled.",
	}, []string{"method", "route", "status"})
	latency := kitprometheus.NewSummaryFrom(stdprometheus.SummaryOpts{
		Namespace: "vitals",
		Subsystem: "api",
		Name:      "request_latency_seconds",
		Help:      "HTTP request latency.",
	}, []string{"method", "route"})
	return counter, latency
}

func (s *Server) Routes() http.Handler {
	mux := chi.NewRouter()
	mux.Use(s.logMiddleware, s.metricsMiddleware)

	mux.Route("/api", func(r chi.Router) {
		r.Get("/current", s.handleCurrent)
		r.Get("/samples", s.handleSamples)
		r.Get("/rollup", s.handleRollup)
		r.Get("/alerts", s.handleAlerts)
		r.Get("/stats", s.handleStats)
		r.Post("/control", s.handleControl)
	})
	mux.Get("/healthz", s.handleHealthz)
	mux.Get("/readyz", s.handleReadyz)
	mux.Handle("/metrics", promhttp.Handler())

	c := cors.New(cors.Options{
		AllowedOrigins: s.origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type"},
	})
	return c.Handler(mux)
}

func (s *Server) handleCurrent(w http.ResponseWriter, r *http.Request) {
	latest, err := s.repo.LatestSample(r.Context())
	if err == sql.ErrNoRows {
		http.Error(w, "no samples yet", http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, latest)
}

func (s *Server) handleSamples(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	if q.Get("since") != "" || q.Get("until") != "" {
		since, err := time.Parse(time.RFC3339, q.Get("since"))
		if err != nil {
			http.Error(w, "invalid since, want RFC3339", http.StatusBadRequest)
			return
		}
		until := time.Now().UTC()
		if v := q.Get("until"); v != "" {
			until, err = time.Parse(time.RFC3339, v)
			if err != nil {
				http.Error(w, "invalid until, want RFC3339", http.StatusBadRequest)
				return
			}
		}
		s.writeRange(w, r, since, until)
		return
	}

	if v := q.Get("hours"); v != "" {
		hours, err := strconv.Atoi(v)
		if err != nil || hours <= 0 {
			http.Error(w, "invalid hours, want positive integer", http.StatusBadRequest)
			return
		}
		now := time.Now().UTC()
		s.writeRange(w, r, now.Add(-time.Duration(hours)*time.Hour), now)
		return
	}

	limit, _ := strconv.Atoi(q.Get("limit"))
	samples, err := s.repo.RecentSamples(r.Context(), limit)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, samples)
}

func (s *Server) writeRange(w http.ResponseWriter, r *http.Request, since, until time.Time) {
	samples, err := s.repo.SamplesInRange(r.Context(), since, until)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, samples)
}

func (s *Server) handleRollup(w http.ResponseWriter, r *http.Request) {
	mode := r.URL.Query().Get("mode")
	if mode == "" {
		mode = "hour"
	}
	rows, err := s.repo.Rollup(r.Context(), mode)
	if errors.Is(err, db.ErrUnknownRollupMode) {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, rows)
}

func (s *Server) handleAlerts(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	alerts, err := s.repo.RecentAlerts(r.Context(), limit)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, alerts)
}

type statsResponse struct {
	models.Stats
	Runtime models.RuntimeConfig `json:"runtime"`
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	st, err := s.repo.Stats(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, statsResponse{Stats: st, Runtime: s.sampler.Snapshot()})
}

type controlRequest struct {
	Action string   `json:"action"`
	Value  *float64 `json:"value"`
}

func (s *Server) handleControl(w http.ResponseWriter, r *http.Request) {
	var req controlRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	res, err := s.sampler.Apply(req.Action, req.Value)
	if errors.Is(err, sampler.ErrUnknownAction) || errors.Is(err, sampler.ErrInvalidInterval) {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, res)
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	if err := s.repo.DB().PingContext(r.Context()); err != nil {
		http.Error(w, "db not ready", http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}
