// Package httpapi exposes the portal's JSON API: inventory queries, address
// search, the authorization handshake, and the health/metrics endpoints.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/paulmach/orb"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jvkenny/CLFleadservice/internal/adapter/audit"
	"github.com/jvkenny/CLFleadservice/internal/auth"
	"github.com/jvkenny/CLFleadservice/internal/config"
	"github.com/jvkenny/CLFleadservice/internal/domain"
	"github.com/jvkenny/CLFleadservice/internal/portal"
)

// ReadinessChecker reports whether the service is ready to serve traffic.
type ReadinessChecker interface {
	CheckReadiness(ctx context.Context) error
}

// Server exposes the portal API plus health, readiness, and metrics routes.
type Server struct {
	httpServer  *http.Server
	coordinator *portal.Coordinator
	inventory   domain.Inventory
	resolver    domain.Resolver
	session     *auth.Session
	publisher   audit.Publisher
	mapDefaults mapDefaults
	logger      *slog.Logger
}

// NewServer wires the router. The coordinator doubles as the readiness check:
// the service is ready once the inventory has loaded at least once.
func NewServer(cfg *config.Config, coordinator *portal.Coordinator, inventory domain.Inventory, resolver domain.Resolver, session *auth.Session, publisher audit.Publisher, logger *slog.Logger) *Server {
	s := &Server{
		coordinator: coordinator,
		inventory:   inventory,
		resolver:    resolver,
		session:     session,
		publisher:   publisher,
		mapDefaults: newMapDefaults(cfg),
		logger:      logger,
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Use(newRateLimiter(cfg.RateLimitPerSecond, cfg.RateLimitBurst).middleware)

		r.Get("/view", s.handleView)
		r.Get("/locations", s.handleLocations)
		r.Get("/locations/within", s.handleLocationsWithin)
		r.Get("/locations/{id}", s.handleLocationByID)
		r.Get("/stats", s.handleStats)
		r.Get("/search", s.handleSearch)
		r.Get("/suggest", s.handleSuggest)
		r.Get("/suggest/resolve", s.handleResolveSuggestion)
		r.Get("/reverse", s.handleReverse)
		r.Get("/config", s.handleMapConfig)
	})

	r.Route("/auth", func(r chi.Router) {
		r.Get("/login", s.handleLogin)
		r.Get("/callback", s.handleCallback)
		r.Post("/logout", s.handleLogout)
		r.Get("/status", s.handleAuthStatus)
	})

	s.httpServer = &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
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

// --- health ---

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := s.coordinator.CheckReadiness(ctx); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "not ready",
			"error":  err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// --- view state ---

// handleView applies the filter and search parameters to the shared view,
// refreshes it, and returns the full snapshot. A failed refresh still
// returns 200: the snapshot carries the error and the previously shown data
// so the client renders a retry banner instead of a blank map.
func (s *Server) handleView(w http.ResponseWriter, r *http.Request) {
	sel := filterFromQuery(r)
	s.coordinator.SetFilter(sel)

	err := s.coordinator.Refresh(r.Context())
	if err != nil {
		s.logger.Warn("view refresh failed", "error", err)
	}

	if r.URL.Query().Has("q") {
		s.coordinator.SetSearchText(r.Context(), r.URL.Query().Get("q"))
	}

	s.audit("query", sel.WhereClause())
	writeJSON(w, http.StatusOK, s.coordinator.Snapshot())
}

// --- inventory ---

func (s *Server) handleLocations(w http.ResponseWriter, r *http.Request) {
	sel := filterFromQuery(r)

	lines, err := s.inventory.Query(r.Context(), sel)
	if err != nil {
		s.logger.Error("location query failed", "error", err)
		writeJSON(w, http.StatusBadGateway, map[string]any{
			"error":     "inventory query failed",
			"retryable": true,
		})
		return
	}

	s.audit("query", sel.WhereClause())
	writeJSON(w, http.StatusOK, map[string]any{"locations": lines, "count": len(lines)})
}

func (s *Server) handleLocationByID(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid id"})
		return
	}

	line, err := s.inventory.QueryByID(r.Context(), id)
	if err != nil || line == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
		return
	}

	s.audit("detail", strconv.FormatInt(id, 10))
	writeJSON(w, http.StatusOK, detailPayload(*line))
}

func (s *Server) handleLocationsWithin(w http.ResponseWriter, r *http.Request) {
	bound, err := parseBBox(r.URL.Query().Get("bbox"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	lines, err := s.inventory.QueryExtent(r.Context(), bound, filterFromQuery(r))
	if err != nil {
		s.logger.Error("extent query failed", "error", err)
		writeJSON(w, http.StatusBadGateway, map[string]any{
			"error":     "inventory query failed",
			"retryable": true,
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"locations": lines, "count": len(lines)})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.inventory.Stats(r.Context())
	if err != nil {
		// Stats degrade to zero inside the client; this is belt and braces.
		stats = domain.Stats{}
	}
	writeJSON(w, http.StatusOK, stats)
}

// --- address resolution ---

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	results, err := s.resolver.Search(r.Context(), q, biasFromQuery(r))
	if err != nil {
		results = nil
	}

	s.audit("search", "len="+strconv.Itoa(len(q)))
	writeJSON(w, http.StatusOK, map[string]any{"results": results})
}

func (s *Server) handleSuggest(w http.ResponseWriter, r *http.Request) {
	suggestions, err := s.resolver.Suggest(r.Context(), r.URL.Query().Get("q"), biasFromQuery(r))
	if err != nil {
		suggestions = nil
	}
	writeJSON(w, http.StatusOK, map[string]any{"suggestions": suggestions})
}

func (s *Server) handleResolveSuggestion(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	result, err := s.resolver.ResolveSuggestion(r.Context(), q.Get("text"), q.Get("magicKey"))
	if err != nil || result == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "suggestion no longer resolves"})
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleReverse(w http.ResponseWriter, r *http.Request) {
	lat, latErr := strconv.ParseFloat(r.URL.Query().Get("lat"), 64)
	lon, lonErr := strconv.ParseFloat(r.URL.Query().Get("lon"), 64)
	if latErr != nil || lonErr != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "lat and lon are required"})
		return
	}

	address, err := s.resolver.Reverse(r.Context(), lat, lon)
	if err != nil {
		address = ""
	}
	writeJSON(w, http.StatusOK, map[string]string{"address": address})
}

// --- authorization ---

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	authorizeURL, err := s.session.BeginLogin(r.URL.Query().Get("return_to"))
	if err != nil {
		if errors.Is(err, auth.ErrNoClientID) {
			writeJSON(w, http.StatusNotImplemented, map[string]string{
				"error": "sign-in is not configured for this portal",
			})
			return
		}
		s.logger.Error("begin login failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "login failed"})
		return
	}

	s.audit("login", "begin")
	http.Redirect(w, r, authorizeURL, http.StatusFound)
}

// handleCallback completes the handshake and restores the pre-login
// location. Redirecting to the stored return path scrubs the one-time code
// from the visible address.
func (s *Server) handleCallback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if providerErr := q.Get("error"); providerErr != "" {
		writeJSON(w, http.StatusBadGateway, map[string]string{"error": "provider: " + providerErr})
		return
	}
	code, state := q.Get("code"), q.Get("state")
	if code == "" || state == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "code and state are required"})
		return
	}

	returnTo, err := s.session.CompleteCallback(r.Context(), state, code)
	if err != nil {
		status := http.StatusBadGateway
		if errors.Is(err, auth.ErrHandshakeLost) {
			status = http.StatusConflict
		}
		s.logger.Warn("callback failed", "error", err)
		writeJSON(w, status, map[string]string{"error": "sign-in could not be completed"})
		return
	}

	http.Redirect(w, r, returnTo, http.StatusSeeOther)
}

func (s *Server) handleLogout(w http.ResponseWriter, _ *http.Request) {
	s.session.Logout()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleAuthStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"authenticated": s.session.IsAuthenticated(),
		"state":         s.session.CurrentState().String(),
	})
}

// --- map config ---

func (s *Server) handleMapConfig(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.mapDefaults)
}

// --- helpers ---

func filterFromQuery(r *http.Request) domain.FilterSelection {
	q := r.URL.Query()
	sel := domain.DefaultFilter()
	sel.Material = domain.ParseMaterialFilter(q.Get("material"))
	for _, raw := range q["status"] {
		for _, part := range strings.Split(raw, ",") {
			if part = strings.TrimSpace(part); part != "" {
				sel.Statuses = append(sel.Statuses, domain.ParseVerificationStatus(part))
			}
		}
	}
	return sel
}

func biasFromQuery(r *http.Request) *orb.Point {
	near := r.URL.Query().Get("near")
	if near == "" {
		return nil
	}
	parts := strings.Split(near, ",")
	if len(parts) != 2 {
		return nil
	}
	lon, lonErr := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	lat, latErr := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if lonErr != nil || latErr != nil {
		return nil
	}
	return &orb.Point{lon, lat}
}

func parseBBox(raw string) (orb.Bound, error) {
	parts := strings.Split(raw, ",")
	if len(parts) != 4 {
		return orb.Bound{}, errors.New("bbox must be xmin,ymin,xmax,ymax")
	}
	vals := make([]float64, 4)
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return orb.Bound{}, errors.New("bbox must be xmin,ymin,xmax,ymax")
		}
		vals[i] = v
	}
	if vals[0] >= vals[2] || vals[1] >= vals[3] {
		return orb.Bound{}, errors.New("bbox min must be less than max")
	}
	return orb.Bound{Min: orb.Point{vals[0], vals[1]}, Max: orb.Point{vals[2], vals[3]}}, nil
}

// detailPayload decorates a record with its classified materials for the
// side panel.
func detailPayload(line domain.ServiceLine) map[string]any {
	return map[string]any{
		"location":          line,
		"customer_material": domain.ClassifyMaterial(line.CustomerMaterial),
		"utility_material":  domain.ClassifyMaterial(line.UtilityMaterial),
	}
}

// audit fires an event without blocking the request. Failures are logged and
// forgotten; audit never affects responses.
func (s *Server) audit(kind, detail string) {
	e := audit.NewEvent(kind, detail)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := s.publisher.Publish(ctx, e); err != nil {
			s.logger.Warn("audit publish failed", "kind", e.Kind, "error", err)
		}
	}()
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck // best-effort response body
}

// requestLogger logs one line per request in the process logger.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Debug("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}
