package enrichment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/sourcegraph/conc"
	"go.uber.org/zap"
)

const securityTrailsDefaultBaseURL = "https://api.securitytrails.com/v1"

var (
	// ErrMissingDomain is returned by Explore for a blank domain.
	ErrMissingDomain = errors.New("domain required")
	// ErrSourceNotConfigured is returned when a required credential is absent.
	ErrSourceNotConfigured = errors.New("source not configured")
)

// SecurityTrailsConfig holds SecurityTrails settings. An empty APIKey
// disables both DNS adapters and the explorer.
type SecurityTrailsConfig struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// SecurityTrailsClient talks to the DNS history API. It backs two bundle
// slots (core and subdomains) and the DNS explorer.
type SecurityTrailsClient struct {
	upstream
	apiKey string
}

// NewSecurityTrailsClient creates a SecurityTrails client.
func NewSecurityTrailsClient(cfg SecurityTrailsConfig, logger *zap.Logger) *SecurityTrailsClient {
	if cfg.BaseURL == "" {
		cfg.BaseURL = securityTrailsDefaultBaseURL
	}
	return &SecurityTrailsClient{
		upstream: newUpstream("securitytrails", cfg.BaseURL, cfg.Timeout, logger),
		apiKey:   cfg.APIKey,
	}
}

// Configured reports whether an API key was supplied.
func (c *SecurityTrailsClient) Configured() bool { return c.apiKey != "" }

func (c *SecurityTrailsClient) headers() map[string]string {
	return map[string]string{
		"Accept": "application/json",
		"APIKEY": c.apiKey,
	}
}

// Core returns the adapter for WHOIS (IPv4) or domain detail lookups.
func (c *SecurityTrailsClient) Core() Adapter { return dnsCoreAdapter{c} }

// Subdomains returns the adapter for subdomain enumeration.
func (c *SecurityTrailsClient) Subdomains() Adapter { return dnsSubdomainsAdapter{c} }

type dnsCoreAdapter struct{ c *SecurityTrailsClient }

func (a dnsCoreAdapter) Name() string { return "securitytrails" }
func (a dnsCoreAdapter) Slot() Slot   { return SlotDNSCore }

func (a dnsCoreAdapter) Fetch(ctx context.Context, ind Indicator) SourceResult {
	if !a.c.Configured() {
		return Skipped(a.Name())
	}

	path := "/domain/" + url.PathEscape(ind.Value)
	if ind.IsIPv4() {
		path = "/ips/" + url.PathEscape(ind.Value) + "/whois"
	}

	body, err := a.c.getJSON(ctx, path, a.c.headers())
	if err != nil {
		return failure(a.Name(), "SecurityTrails", err)
	}
	return Succeeded(a.Name(), body)
}

type dnsSubdomainsAdapter struct{ c *SecurityTrailsClient }

func (a dnsSubdomainsAdapter) Name() string { return "securitytrails_subdomains" }
func (a dnsSubdomainsAdapter) Slot() Slot   { return SlotDNSSubdomains }

// Subdomain enumeration is meaningless for a bare IP.
func (a dnsSubdomainsAdapter) Fetch(ctx context.Context, ind Indicator) SourceResult {
	if !a.c.Configured() || ind.IsIPv4() {
		return Skipped(a.Name())
	}

	body, err := a.c.getJSON(ctx, "/domain/"+url.PathEscape(ind.Value)+"/subdomains", a.c.headers())
	if err != nil {
		return failure(a.Name(), "SecurityTrails subdomains", err)
	}
	return Succeeded(a.Name(), body)
}

// DNSRecords holds the current record values for a domain.
type DNSRecords struct {
	A   []string `json:"a"`
	MX  []string `json:"mx"`
	TXT []string `json:"txt"`
	NS  []string `json:"ns"`
}

// Subdomain is one enumerated host. IP is not resolved.
type Subdomain struct {
	Name string `json:"name"`
	IP   string `json:"ip,omitempty"`
}

// DNSReport is the DNS explorer view of a domain.
type DNSReport struct {
	Domain     string      `json:"domain"`
	DNS        DNSRecords  `json:"dns"`
	Subdomains []Subdomain `json:"subdomains"`
}

// Explore fetches current DNS records and subdomains for domain in
// parallel. Unlike the bundle adapters, any upstream failure fails the
// whole call.
func (c *SecurityTrailsClient) Explore(ctx context.Context, domain string) (*DNSReport, error) {
	hostname := strings.ToLower(strings.TrimSpace(domain))
	if hostname == "" {
		return nil, ErrMissingDomain
	}
	if !c.Configured() {
		return nil, fmt.Errorf("securitytrails: %w", ErrSourceNotConfigured)
	}

	escaped := url.PathEscape(hostname)
	var (
		details, subs       json.RawMessage
		detailsErr, subsErr error
		wg                  conc.WaitGroup
	)
	wg.Go(func() {
		details, detailsErr = c.getJSON(ctx, "/domain/"+escaped, c.headers())
	})
	wg.Go(func() {
		subs, subsErr = c.getJSON(ctx, "/domain/"+escaped+"/subdomains", c.headers())
	})
	wg.Wait()

	if detailsErr != nil {
		return nil, fmt.Errorf("fetching domain details: %w", detailsErr)
	}
	if subsErr != nil {
		return nil, fmt.Errorf("fetching subdomains: %w", subsErr)
	}

	return buildDNSReport(hostname, details, subs)
}

type stDomainDetails struct {
	CurrentDNS struct {
		A   stRecordSet `json:"a"`
		MX  stRecordSet `json:"mx"`
		TXT stRecordSet `json:"txt"`
		NS  stRecordSet `json:"ns"`
	} `json:"current_dns"`
}

// stRecordSet is either {"values":[...]} or a bare array of record objects.
type stRecordSet []map[string]any

func (s *stRecordSet) UnmarshalJSON(data []byte) error {
	var list []map[string]any
	if err := json.Unmarshal(data, &list); err == nil {
		*s = list
		return nil
	}
	var wrapped struct {
		Values []map[string]any `json:"values"`
	}
	if err := json.Unmarshal(data, &wrapped); err != nil {
		// Unknown shape; treat as no records.
		*s = nil
		return nil
	}
	*s = wrapped.Values
	return nil
}

// field maps each record to its single relevant value, dropping empties.
func (s stRecordSet) field(name string) []string {
	out := []string{}
	for _, rec := range s {
		if v, ok := rec[name].(string); ok && v != "" {
			out = append(out, v)
		}
	}
	return out
}

func buildDNSReport(hostname string, details, subs []byte) (*DNSReport, error) {
	var d stDomainDetails
	if err := json.Unmarshal(details, &d); err != nil {
		return nil, fmt.Errorf("decoding domain details: %w", err)
	}

	var s struct {
		Subdomains []any `json:"subdomains"`
	}
	if err := json.Unmarshal(subs, &s); err != nil {
		return nil, fmt.Errorf("decoding subdomains: %w", err)
	}

	report := &DNSReport{
		Domain: hostname,
		DNS: DNSRecords{
			A:   d.CurrentDNS.A.field("ip"),
			MX:  d.CurrentDNS.MX.field("hostname"),
			TXT: d.CurrentDNS.TXT.field("value"),
			NS:  d.CurrentDNS.NS.field("nameserver"),
		},
		Subdomains: make([]Subdomain, 0, len(s.Subdomains)),
	}
	for _, label := range s.Subdomains {
		l, ok := label.(string)
		if !ok || l == "" {
			continue
		}
		report.Subdomains = append(report.Subdomains, Subdomain{Name: l + "." + hostname})
	}

	return report, nil
}
