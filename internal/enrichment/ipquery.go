package enrichment

import (
	"context"
	"net/url"
	"time"

	"go.uber.org/zap"
)

const ipqueryDefaultBaseURL = "https://api.ipquery.io"

// IPQueryConfig holds IPQuery settings.
type IPQueryConfig struct {
	BaseURL string
	Timeout time.Duration
}

// IPQueryProvider is the identity/geo source. It needs no credential and
// only applies to IPv4 indicators.
type IPQueryProvider struct {
	upstream
}

// NewIPQueryProvider creates an IPQuery adapter.
func NewIPQueryProvider(cfg IPQueryConfig, logger *zap.Logger) *IPQueryProvider {
	if cfg.BaseURL == "" {
		cfg.BaseURL = ipqueryDefaultBaseURL
	}
	return &IPQueryProvider{upstream: newUpstream("ipquery", cfg.BaseURL, cfg.Timeout, logger)}
}

// Name returns the provider identifier.
func (p *IPQueryProvider) Name() string { return "ipquery" }

// Slot returns the bundle slot this adapter fills.
func (p *IPQueryProvider) Slot() Slot { return SlotIdentityGeo }

// Fetch looks up the IP and returns the upstream body unmodified.
func (p *IPQueryProvider) Fetch(ctx context.Context, ind Indicator) SourceResult {
	if !ind.IsIPv4() {
		return Skipped(p.Name())
	}

	body, err := p.getJSON(ctx, "/"+url.PathEscape(ind.Value), map[string]string{
		"Accept": "application/json",
	})
	if err != nil {
		return failure(p.Name(), "IPQuery", err)
	}
	return Succeeded(p.Name(), body)
}
