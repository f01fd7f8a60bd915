package api

import (
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/lvonguyen/reconlens/internal/enrichment"
	"github.com/lvonguyen/reconlens/internal/graph"
	"github.com/lvonguyen/reconlens/internal/risk"
)

// Health and readiness handlers

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy", "version": s.version})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.enrich == nil || s.deepDive == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "not ready"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// Enrichment handlers

func (s *Server) handleEnrich(w http.ResponseWriter, r *http.Request) {
	indicator := enrichment.ExtractIndicator(decodeBody(r))

	bundle, err := s.enrich.Enrich(r.Context(), indicator)
	if err != nil {
		if isMissingIndicator(err) {
			writeError(w, http.StatusBadRequest, "indicator required")
			return
		}
		s.unexpected(w, "enrich", err)
		return
	}

	writeJSON(w, http.StatusOK, newSourceResponse(bundle))
}

func (s *Server) handleDeepDive(w http.ResponseWriter, r *http.Request) {
	indicator := enrichment.ExtractIndicator(decodeBody(r))

	bundle, err := s.deepDive.Enrich(r.Context(), indicator)
	if err != nil {
		if isMissingIndicator(err) {
			writeError(w, http.StatusBadRequest, "indicator required")
			return
		}
		s.unexpected(w, "deep-dive", err)
		return
	}

	summary := risk.Evaluate(bundle)
	s.metrics.ObserveRisk(summary.Score, string(summary.Label))

	writeJSON(w, http.StatusOK, deepDiveResponse{
		Indicator: bundle.Indicator.Value,
		IPQuery:   bundle.IdentityGeo,
		Censys:    bundle.HostExposure,
		SecurityTrails: dnsHistory{
			Core:       bundle.DNSCore,
			Subdomains: bundle.DNSSubdomains,
		},
		Risks: summary,
	})
}

// bulkRequest accepts either an explicit list or newline-separated text.
type bulkRequest struct {
	Indicators []string `json:"indicators"`
	List       string   `json:"list"`
}

func (s *Server) handleBulk(w http.ResponseWriter, r *http.Request) {
	var req bulkRequest
	if !decodeInto(r, &req) {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	indicators := req.Indicators
	if len(indicators) == 0 {
		indicators = enrichment.ParseList(req.List)
	}
	if len(indicators) == 0 {
		writeError(w, http.StatusBadRequest, "indicators required")
		return
	}

	bundles, err := s.bulk.Run(r.Context(), indicators)
	if err != nil {
		// Bundles completed before the abort are discarded.
		var be *enrichment.BulkError
		if errors.As(err, &be) {
			status := http.StatusInternalServerError
			if isMissingIndicator(be.Err) {
				status = http.StatusBadRequest
			}
			writeError(w, status, "Failed to enrich: "+be.Indicator)
			return
		}
		s.unexpected(w, "bulk", err)
		return
	}

	results := make([]sourceResponse, len(bundles))
	for i, b := range bundles {
		results[i] = newSourceResponse(b)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"results": results,
		"count":   len(results),
	})
}

// DNS explorer handler

func (s *Server) handleDNS(w http.ResponseWriter, r *http.Request) {
	domain, _ := decodeBody(r)["domain"].(string)

	report, err := s.dns.Explore(r.Context(), domain)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, report)
	case errors.Is(err, enrichment.ErrMissingDomain):
		writeError(w, http.StatusBadRequest, "domain required (non-empty string)")
	case errors.Is(err, enrichment.ErrSourceNotConfigured):
		writeError(w, http.StatusInternalServerError, "SecurityTrails API key not configured on server")
	default:
		s.logger.Warn("DNS explorer failed", zap.String("domain", domain), zap.Error(err))
		writeError(w, http.StatusBadGateway, "Failed to fetch DNS data from SecurityTrails")
	}
}

// Graph handlers

func (s *Server) handleGetGraph(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.graph.Graph())
}

type graphRequest struct {
	Type string      `json:"type"`
	Node *graph.Node `json:"node"`
	Link *graph.Link `json:"link"`
}

func (s *Server) handlePostGraph(w http.ResponseWriter, r *http.Request) {
	var req graphRequest
	if !decodeInto(r, &req) {
		writeError(w, http.StatusBadRequest, "Unsupported payload")
		return
	}

	var err error
	switch {
	case req.Type == "node" && req.Node != nil:
		err = s.graph.UpsertNode(*req.Node)
	case req.Type == "link" && req.Link != nil:
		_, err = s.graph.AddLink(*req.Link)
	default:
		writeError(w, http.StatusBadRequest, "Unsupported payload")
		return
	}
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

type assertionRequest struct {
	NodeID string `json:"nodeId"`
	Key    string `json:"key"`
	Value  any    `json:"value"`
}

func (s *Server) handleCreateAssertion(w http.ResponseWriter, r *http.Request) {
	var req assertionRequest
	_ = decodeInto(r, &req)

	// Non-string values are rejected by sanitization as empty.
	value, _ := req.Value.(string)

	// Without authentication every submission is a user assertion.
	assertion, all, err := s.graph.AddAssertion(req.NodeID, req.Key, value, graph.SourceUser, "")
	switch {
	case err == nil:
	case errors.Is(err, graph.ErrNodeNotFound):
		writeError(w, http.StatusNotFound, "Node "+req.NodeID+" not found in graph")
		return
	default:
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	s.metrics.ObserveAssertion(assertion.Key, string(assertion.SourceType))
	writeJSON(w, http.StatusOK, map[string]any{
		"ok":         true,
		"assertion":  assertion,
		"assertions": all,
	})
}
