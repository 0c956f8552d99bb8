package httpapi

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/groundwatch/sinkhole-risk-service/internal/aggregate"
)

// ReadinessChecker reports whether the service is ready to serve traffic.
type ReadinessChecker interface {
	CheckReadiness(ctx context.Context) error
}

// Server exposes the risk API plus health, readiness, and metrics endpoints.
type Server struct {
	httpServer *http.Server
	cache      *aggregate.CityCache
	lookup     *aggregate.Lookup
	logger     *slog.Logger
}

// NewServer wires the public routes. The cache doubles as the readiness
// checker: the service reports ready once one city-wide pass has completed.
func NewServer(addr string, cache *aggregate.CityCache, lookup *aggregate.Lookup, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	s := &Server{
		httpServer: &http.Server{
			Addr:         addr,
			Handler:      mux,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		cache:  cache,
		lookup: lookup,
		logger: logger,
	}

	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", handleReady(cache))
	mux.Handle("GET /metrics", promhttp.Handler())

	mux.HandleFunc("GET /risk/area", s.handleArea)
	mux.HandleFunc("GET /risk/area/evaluation", s.handleAreaEvaluation)
	mux.HandleFunc("GET /risk/city-wide", s.handleCityWide)
	mux.HandleFunc("POST /risk/city-wide/refresh", s.handleRefresh)
	mux.HandleFunc("GET /risk/city-wide/status", s.handleStatus)
	mux.HandleFunc("POST /risk/bulk", s.handleBulk)
	mux.HandleFunc("GET /risk/notices", s.handleNotices)

	return s
}

// Start begins listening. Returns http.ErrServerClosed on graceful shutdown.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully drains connections within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// ServeHTTP delegates to the underlying handler, useful for testing.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.httpServer.Handler.ServeHTTP(w, r)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func handleReady(checker ReadinessChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := checker.CheckReadiness(ctx); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status": "not ready",
				"error":  err.Error(),
			})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	}
}

func (s *Server) handleArea(w http.ResponseWriter, r *http.Request) {
	district, dong, ok := areaParams(w, r)
	if !ok {
		return
	}
	result := s.lookup.AreaRisk(r.Context(), district, dong,
		r.URL.Query().Get("from"), r.URL.Query().Get("to"))
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleAreaEvaluation(w http.ResponseWriter, r *http.Request) {
	district, dong, ok := areaParams(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, s.lookup.AreaEvaluation(r.Context(), district, dong))
}

func (s *Server) handleCityWide(w http.ResponseWriter, _ *http.Request) {
	snap, status := s.cache.Current()
	if snap == nil {
		// Before the first pass completes the startup refresh is still
		// pending, so the empty payload always reports an update underway.
		writeJSON(w, http.StatusOK, map[string]any{
			"data": []any{},
			"meta": map[string]any{"isUpdating": true},
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"data": snap.Results,
		"meta": map[string]any{
			"period":            snap.Meta.Period,
			"totalAccidents":    snap.Meta.TotalAccidents,
			"successCount":      snap.Meta.SuccessCount,
			"failCount":         snap.Meta.FailCount,
			"distinctLocations": snap.Meta.DistinctLocations,
			"fetchedAt":         snap.Meta.FetchedAt,
			"nextUpdate":        status.NextUpdateIn.String(),
			"cacheAge":          int(status.Age.Seconds()),
			"isUpdating":        status.IsUpdating,
		},
	})
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	// The refresh outlives this request; it must not die with the
	// request context.
	if !s.cache.RefreshNow(context.WithoutCancel(r.Context())) {
		writeJSON(w, http.StatusTooManyRequests, map[string]string{
			"error": "refresh already in progress",
		})
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{
		"message":       "refresh started",
		"estimatedTime": "5m",
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	status := s.cache.Status()
	if !status.HasData {
		writeJSON(w, http.StatusOK, map[string]any{
			"status":     "no_cache",
			"isUpdating": status.IsUpdating,
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":       "ok",
		"cacheAge":     int(status.Age.Seconds()),
		"nextUpdateIn": int(status.NextUpdateIn.Seconds()),
		"dataCount":    status.DataCount,
		"isUpdating":   status.IsUpdating,
		"lastFetched":  status.LastFetched,
	})
}

func (s *Server) handleBulk(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Locations []aggregate.Location `json:"locations"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Locations == nil {
		writeBadRequest(w, "locations must be an array of {district, neighborhood}")
		return
	}
	writeJSON(w, http.StatusOK, s.lookup.Bulk(r.Context(), body.Locations))
}

func (s *Server) handleNotices(w http.ResponseWriter, r *http.Request) {
	limit := 10
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	notices, err := s.lookup.Notices(r.Context(), r.URL.Query().Get("keywords"), limit)
	if err != nil {
		s.logger.Warn("notices feed unavailable", "error", err)
		writeJSON(w, http.StatusOK, []aggregate.Notice{})
		return
	}
	if notices == nil {
		notices = []aggregate.Notice{}
	}
	writeJSON(w, http.StatusOK, notices)
}

// areaParams validates the required query parameters, writing a 400 when
// either is missing. Parameter validation is the only error class surfaced
// as a non-200 response.
func areaParams(w http.ResponseWriter, r *http.Request) (string, string, bool) {
	district := r.URL.Query().Get("district")
	dong := r.URL.Query().Get("neighborhood")
	if district == "" || dong == "" {
		writeBadRequest(w, "district and neighborhood query parameters are required")
		return "", "", false
	}
	return district, dong, true
}

func writeBadRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, map[string]any{
		"error": map[string]string{
			"code":    "BAD_REQUEST",
			"message": msg,
		},
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
