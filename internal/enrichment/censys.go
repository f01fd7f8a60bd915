package enrichment

import (
	"context"
	"encoding/json"
	"net/url"
	"time"

	"go.uber.org/zap"
)

const (
	censysDefaultBaseURL = "https://api.platform.censys.io/v3/global/asset"
	censysHostMediaType  = "application/vnd.censys.api.v3.host.v1+json"
)

// CensysConfig holds Censys Platform settings. An empty Token disables
// the source.
type CensysConfig struct {
	BaseURL string
	Token   string
	OrgID   string
	Timeout time.Duration
}

// CensysProvider is the host-exposure source.
type CensysProvider struct {
	upstream
	token string
	orgID string
}

// HostExposure is the normalized Censys host payload.
type HostExposure struct {
	OpenPorts []int          `json:"open_ports"`
	Endpoints []any          `json:"endpoints"`
	Raw       map[string]any `json:"raw"`
}

// NewCensysProvider creates a Censys adapter.
func NewCensysProvider(cfg CensysConfig, logger *zap.Logger) *CensysProvider {
	if cfg.BaseURL == "" {
		cfg.BaseURL = censysDefaultBaseURL
	}
	return &CensysProvider{
		upstream: newUpstream("censys", cfg.BaseURL, cfg.Timeout, logger),
		token:    cfg.Token,
		orgID:    cfg.OrgID,
	}
}

// Name returns the provider identifier.
func (p *CensysProvider) Name() string { return "censys" }

// Slot returns the bundle slot this adapter fills.
func (p *CensysProvider) Slot() Slot { return SlotHostExposure }

// Configured reports whether a token was supplied.
func (p *CensysProvider) Configured() bool { return p.token != "" }

// Fetch looks up the host and normalizes its exposed endpoints.
func (p *CensysProvider) Fetch(ctx context.Context, ind Indicator) SourceResult {
	if !p.Configured() || !ind.IsIPv4() {
		return Skipped(p.Name())
	}

	headers := map[string]string{
		"Accept":        censysHostMediaType,
		"Authorization": "Bearer " + p.token,
	}
	if p.orgID != "" {
		headers["X-Organization-ID"] = p.orgID
	}

	body, err := p.getJSON(ctx, "/host/"+url.PathEscape(ind.Value), headers)
	if err != nil {
		return failure(p.Name(), "Censys", err)
	}

	exposure, err := normalizeHost(body)
	if err != nil {
		p.logger.Warn("Failed to decode Censys host", zap.Error(err))
		return TransportFailure(p.Name(), "Censys request failed")
	}
	return Succeeded(p.Name(), exposure)
}

// normalizeHost accepts both the enveloped {"result":{"resource":...}}
// shape and a bare resource object. Missing or malformed endpoints
// default to an empty list.
func normalizeHost(body []byte) (*HostExposure, error) {
	var root any
	if err := json.Unmarshal(body, &root); err != nil {
		return nil, err
	}

	resource, _ := root.(map[string]any)
	if result, ok := resource["result"].(map[string]any); ok {
		if inner, ok := result["resource"].(map[string]any); ok {
			resource = inner
		}
	}
	if resource == nil {
		resource = map[string]any{}
	}

	endpoints, ok := resource["endpoints"].([]any)
	if !ok {
		endpoints = []any{}
	}

	return &HostExposure{
		OpenPorts: openPorts(endpoints),
		Endpoints: endpoints,
		Raw:       resource,
	}, nil
}

// openPorts collects numeric port fields, deduplicated in first-seen order.
func openPorts(endpoints []any) []int {
	ports := []int{}
	seen := make(map[int]bool)
	for _, e := range endpoints {
		ep, ok := e.(map[string]any)
		if !ok {
			continue
		}
		n, ok := ep["port"].(float64)
		if !ok {
			continue
		}
		port := int(n)
		if float64(port) != n || seen[port] {
			continue
		}
		seen[port] = true
		ports = append(ports, port)
	}
	return ports
}
