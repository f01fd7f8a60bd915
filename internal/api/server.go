// Package api exposes the enrichment pipeline, DNS explorer and entity
// graph over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/lvonguyen/reconlens/internal/enrichment"
	"github.com/lvonguyen/reconlens/internal/graph"
	"github.com/lvonguyen/reconlens/internal/observability"
	"github.com/lvonguyen/reconlens/internal/risk"
)

// DNSExplorer returns normalized DNS records and subdomains for a domain.
type DNSExplorer interface {
	Explore(ctx context.Context, domain string) (*enrichment.DNSReport, error)
}

// Server holds the dependencies of every HTTP handler.
type Server struct {
	enrich   enrichment.Enricher
	deepDive enrichment.Enricher
	bulk     *enrichment.BulkRunner
	dns      DNSExplorer
	graph    *graph.Store
	logger   *zap.Logger
	metrics  *observability.Metrics
	version  string

	metricsHandler http.Handler
	apiMiddleware  []func(http.Handler) http.Handler
}

// Options configures a Server.
type Options struct {
	Enrich   enrichment.Enricher
	DeepDive enrichment.Enricher
	DNS      DNSExplorer
	Graph    *graph.Store
	Logger   *zap.Logger
	Metrics  *observability.Metrics
	Version  string

	// MetricsHandler is served at /metrics when set.
	MetricsHandler http.Handler
	// APIMiddleware wraps only the /api/v1 routes (rate limiting).
	APIMiddleware []func(http.Handler) http.Handler
}

// NewServer creates the API server. The bulk runner reuses the basic
// enrichment profile.
func NewServer(opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	store := opts.Graph
	if store == nil {
		store = graph.NewStore()
	}
	return &Server{
		enrich:   opts.Enrich,
		deepDive: opts.DeepDive,
		bulk:     enrichment.NewBulkRunner(opts.Enrich, logger, opts.Metrics),
		dns:      opts.DNS,
		graph:    store,
		logger:   logger,
		metrics:  opts.Metrics,
		version:  opts.Version,

		metricsHandler: opts.MetricsHandler,
		apiMiddleware:  opts.APIMiddleware,
	}
}

// Routes mounts the API under r. Callers add global middleware first.
func (s *Server) Routes(r chi.Router) {
	r.Get("/health", s.handleHealth)
	r.Get("/ready", s.handleReady)
	if s.metricsHandler != nil {
		r.Handle("/metrics", s.metricsHandler)
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(s.apiMiddleware...)

		r.Post("/enrich", s.handleEnrich)
		r.Post("/deep-dive", s.handleDeepDive)
		r.Post("/bulk", s.handleBulk)
		r.Post("/dns", s.handleDNS)

		r.Route("/graph", func(r chi.Router) {
			r.Get("/", s.handleGetGraph)
			r.Post("/", s.handlePostGraph)
			r.Post("/assertions", s.handleCreateAssertion)
		})
	})
}

// Response shapes

// sourceResponse is the basic enrichment payload.
type sourceResponse struct {
	Indicator      string                  `json:"indicator"`
	IPQuery        enrichment.SourceResult `json:"ipquery"`
	Censys         enrichment.SourceResult `json:"censys"`
	SecurityTrails enrichment.SourceResult `json:"securitytrails"`
}

type dnsHistory struct {
	Core       enrichment.SourceResult `json:"core"`
	Subdomains enrichment.SourceResult `json:"subdomains"`
}

// deepDiveResponse nests both DNS results and appends the risk summary.
type deepDiveResponse struct {
	Indicator      string                  `json:"indicator"`
	IPQuery        enrichment.SourceResult `json:"ipquery"`
	Censys         enrichment.SourceResult `json:"censys"`
	SecurityTrails dnsHistory              `json:"securitytrails"`
	Risks          risk.Summary            `json:"risks"`
}

func newSourceResponse(b *enrichment.Bundle) sourceResponse {
	return sourceResponse{
		Indicator:      b.Indicator.Value,
		IPQuery:        b.IdentityGeo,
		Censys:         b.HostExposure,
		SecurityTrails: b.DNSCore,
	}
}

// Helpers

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// decodeBody reads a JSON object body. Malformed or empty bodies decode
// to an empty payload.
func decodeBody(r *http.Request) map[string]any {
	payload := map[string]any{}
	if r.Body == nil {
		return payload
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil || payload == nil {
		return map[string]any{}
	}
	return payload
}

// decodeInto reads a JSON body into v, reporting whether it parsed.
func decodeInto(r *http.Request, v any) bool {
	if r.Body == nil {
		return false
	}
	return json.NewDecoder(r.Body).Decode(v) == nil
}

func (s *Server) unexpected(w http.ResponseWriter, route string, err error) {
	s.logger.Error("Unexpected error", zap.String("route", route), zap.Error(err))
	writeError(w, http.StatusInternalServerError, "Unexpected server error")
}

func isMissingIndicator(err error) bool {
	return errors.Is(err, enrichment.ErrMissingIndicator)
}
