package risk

import (
	"encoding/json"
	"reflect"
	"strings"
	"testing"

	"github.com/lvonguyen/reconlens/internal/enrichment"
)

func identity(body string) enrichment.SourceResult {
	return enrichment.Succeeded("ipquery", json.RawMessage(body))
}

func exposure(ports ...int) enrichment.SourceResult {
	return enrichment.Succeeded("censys", &enrichment.HostExposure{
		OpenPorts: ports,
		Endpoints: []any{},
		Raw:       map[string]any{},
	})
}

func subdomains(n int) enrichment.SourceResult {
	labels := make([]string, n)
	for i := range labels {
		labels[i] = "host"
	}
	body, _ := json.Marshal(map[string]any{"subdomains": labels})
	return enrichment.Succeeded("securitytrails_subdomains", json.RawMessage(body))
}

func countContaining(findings []string, substr string) int {
	n := 0
	for _, f := range findings {
		if strings.Contains(f, substr) {
			n++
		}
	}
	return n
}

// =============================================================================
// Baseline and Label Tests
// =============================================================================

func TestEvaluate_EmptyBundle(t *testing.T) {
	s := Evaluate(&enrichment.Bundle{})

	if s.Score != Baseline {
		t.Errorf("expected baseline %d, got %d", Baseline, s.Score)
	}
	if s.Label != LabelLow {
		t.Errorf("expected low, got %s", s.Label)
	}
	if !reflect.DeepEqual(s.Findings, []string{NoSignalFinding}) {
		t.Errorf("expected only the fallback finding, got %v", s.Findings)
	}
}

func TestEvaluate_NilBundle(t *testing.T) {
	if s := Evaluate(nil); s.Score != Baseline || len(s.Findings) != 1 {
		t.Errorf("nil bundle should score as empty, got %+v", s)
	}
}

func TestLabelFor(t *testing.T) {
	tests := []struct {
		score int
		want  Label
	}{
		{0, LabelLow},
		{39, LabelLow},
		{40, LabelMedium},
		{69, LabelMedium},
		{70, LabelHigh},
		{100, LabelHigh},
	}
	for _, tt := range tests {
		if got := LabelFor(tt.score); got != tt.want {
			t.Errorf("LabelFor(%d) = %s, want %s", tt.score, got, tt.want)
		}
	}
}

func TestEvaluate_FailedAndSkippedSourcesIgnored(t *testing.T) {
	b := &enrichment.Bundle{
		IdentityGeo:   enrichment.ProtocolFailure("ipquery", "IPQuery error 500", 500),
		HostExposure:  enrichment.TransportFailure("censys", "Censys request failed"),
		DNSSubdomains: enrichment.Skipped("securitytrails_subdomains"),
	}
	s := Evaluate(b)
	if s.Score != Baseline || s.Findings[0] != NoSignalFinding {
		t.Errorf("failed sources should not contribute, got %+v", s)
	}
}

// =============================================================================
// Identity Rule Tests
// =============================================================================

func TestEvaluate_IdentityFlags(t *testing.T) {
	tests := []struct {
		name      string
		body      string
		wantScore int
		wantFinds int
	}{
		{"proxy", `{"risk":{"is_proxy":true}}`, 50, 1},
		{"datacenter", `{"risk":{"is_datacenter":true}}`, 55, 1},
		{"vpn", `{"risk":{"is_vpn":true}}`, 60, 1},
		{"tor", `{"risk":{"is_tor":true}}`, 75, 1},
		{"tor and vpn", `{"risk":{"is_tor":true,"is_vpn":true}}`, 75, 2},
		{"risk score", `{"risk":{"risk_score":42}}`, 42, 1},
		{"low risk score keeps baseline", `{"risk":{"risk_score":5}}`, 20, 1},
		{"risk score clamped", `{"risk":{"risk_score":150}}`, 100, 1},
		{"non-numeric risk score", `{"risk":{"risk_score":"high"}}`, 20, 0},
		{"false flags", `{"risk":{"is_tor":false,"is_vpn":0,"is_proxy":""}}`, 20, 0},
		{"no risk object", `{"ip":"1.2.3.4"}`, 20, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := Evaluate(&enrichment.Bundle{IdentityGeo: identity(tt.body)})
			if s.Score != tt.wantScore {
				t.Errorf("score = %d, want %d", s.Score, tt.wantScore)
			}
			got := len(s.Findings)
			if tt.wantFinds == 0 {
				if got != 1 || s.Findings[0] != NoSignalFinding {
					t.Errorf("expected only the fallback finding, got %v", s.Findings)
				}
			} else if got != tt.wantFinds {
				t.Errorf("expected %d findings, got %v", tt.wantFinds, s.Findings)
			}
		})
	}
}

func TestEvaluate_TorVPNIsHigh(t *testing.T) {
	s := Evaluate(&enrichment.Bundle{IdentityGeo: identity(`{"risk":{"is_tor":true,"is_vpn":true}}`)})
	if s.Score != 75 || s.Label != LabelHigh {
		t.Errorf("expected 75/high, got %d/%s", s.Score, s.Label)
	}
}

// =============================================================================
// Exposure Rule Tests
// =============================================================================

func TestEvaluate_RemoteAccessPorts(t *testing.T) {
	s := Evaluate(&enrichment.Bundle{HostExposure: exposure(22, 80, 443, 8080)})

	if s.Score < 70 || s.Label != LabelHigh {
		t.Errorf("expected high with score >= 70, got %d/%s", s.Score, s.Label)
	}
	if countContaining(s.Findings, "ports 22 (") != 1 {
		t.Errorf("expected a remote access finding naming port 22, got %v", s.Findings)
	}
	if countContaining(s.Findings, "HTTP (80)") != 0 {
		t.Errorf("no plaintext HTTP finding expected when 443 is open, got %v", s.Findings)
	}
	if countContaining(s.Findings, "22, 80, 443, 8080") != 1 {
		t.Errorf("expected the open port listing, got %v", s.Findings)
	}
}

func TestEvaluate_DangerousPortsInListOrder(t *testing.T) {
	s := Evaluate(&enrichment.Bundle{HostExposure: exposure(5986, 3389, 22)})
	if countContaining(s.Findings, "ports 22, 3389, 5986 (") != 1 {
		t.Errorf("dangerous ports should follow the fixed list order, got %v", s.Findings)
	}
}

func TestEvaluate_PlaintextHTTP(t *testing.T) {
	s := Evaluate(&enrichment.Bundle{HostExposure: exposure(80, 8080)})

	if s.Score < 55 {
		t.Errorf("expected score >= 55, got %d", s.Score)
	}
	if countContaining(s.Findings, "HTTP (80)") != 1 {
		t.Errorf("expected a plaintext HTTP finding, got %v", s.Findings)
	}
}

func TestEvaluate_PortListingCapped(t *testing.T) {
	ports := make([]int, 20)
	for i := range ports {
		ports[i] = 10000 + i
	}
	s := Evaluate(&enrichment.Bundle{HostExposure: exposure(ports...)})

	if countContaining(s.Findings, "10014.") != 1 || countContaining(s.Findings, "10015") != 0 {
		t.Errorf("port listing should stop at 15 entries, got %v", s.Findings)
	}
	if s.Score != Baseline {
		t.Errorf("harmless ports should not raise the score, got %d", s.Score)
	}
}

func TestEvaluate_ExposureFromRawPayload(t *testing.T) {
	r := enrichment.Succeeded("censys", json.RawMessage(`{"open_ports":[3389],"endpoints":[],"raw":{}}`))
	if s := Evaluate(&enrichment.Bundle{HostExposure: r}); s.Score != 70 {
		t.Errorf("expected 70 from a raw payload, got %d", s.Score)
	}
}

// =============================================================================
// DNS Footprint Rule Tests
// =============================================================================

func TestEvaluate_LargeSubdomainSurface(t *testing.T) {
	s := Evaluate(&enrichment.Bundle{DNSSubdomains: subdomains(75)})

	if s.Score != 65 || s.Label != LabelMedium {
		t.Errorf("expected 65/medium, got %d/%s", s.Score, s.Label)
	}
	if len(s.Findings) != 2 {
		t.Errorf("expected count and surface findings, got %v", s.Findings)
	}
	if countContaining(s.Findings, "~75 subdomains") != 1 {
		t.Errorf("count finding should cite 75, got %v", s.Findings)
	}
}

func TestEvaluate_SmallSubdomainSurface(t *testing.T) {
	s := Evaluate(&enrichment.Bundle{DNSSubdomains: subdomains(10)})

	if s.Score != Baseline {
		t.Errorf("expected baseline, got %d", s.Score)
	}
	if len(s.Findings) != 1 || countContaining(s.Findings, "~10 subdomains") != 1 {
		t.Errorf("expected only the count finding, got %v", s.Findings)
	}
}

func TestEvaluate_RecordsFallback(t *testing.T) {
	r := enrichment.Succeeded("securitytrails_subdomains", json.RawMessage(`{"subdomains":[],"records":[{},{},{}]}`))
	s := Evaluate(&enrichment.Bundle{DNSSubdomains: r})
	if countContaining(s.Findings, "~3 subdomains") != 1 {
		t.Errorf("records should be counted when subdomains is empty, got %v", s.Findings)
	}
}

func TestEvaluate_RecordsFallbackWhenSubdomainsNotArray(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"string", `{"subdomains":"x","records":[1,2,3]}`},
		{"object", `{"subdomains":{"a":1},"records":[1,2,3]}`},
		{"null", `{"subdomains":null,"records":[1,2,3]}`},
		{"missing", `{"records":[1,2,3]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := enrichment.Succeeded("securitytrails_subdomains", json.RawMessage(tt.body))
			s := Evaluate(&enrichment.Bundle{DNSSubdomains: r})
			if countContaining(s.Findings, "~3 subdomains") != 1 {
				t.Errorf("expected the records count, got %v", s.Findings)
			}
		})
	}
}

func TestEvaluate_FractionalScoreIsTruncated(t *testing.T) {
	tests := []struct {
		body      string
		wantScore int
		wantLabel Label
	}{
		{`{"risk":{"risk_score":69.6}}`, 69, LabelMedium},
		{`{"risk":{"risk_score":39.9}}`, 39, LabelLow},
		{`{"risk":{"risk_score":70.2}}`, 70, LabelHigh},
	}
	for _, tt := range tests {
		s := Evaluate(&enrichment.Bundle{IdentityGeo: identity(tt.body)})
		if s.Score != tt.wantScore || s.Label != tt.wantLabel {
			t.Errorf("%s: got %d/%s, want %d/%s", tt.body, s.Score, s.Label, tt.wantScore, tt.wantLabel)
		}
	}
}

// =============================================================================
// Composition Tests
// =============================================================================

func TestEvaluate_Idempotent(t *testing.T) {
	b := &enrichment.Bundle{
		IdentityGeo:   identity(`{"risk":{"is_vpn":true,"risk_score":30}}`),
		HostExposure:  exposure(22, 80),
		DNSSubdomains: subdomains(60),
	}

	first := Evaluate(b)
	second := Evaluate(b)
	if !reflect.DeepEqual(first, second) {
		t.Errorf("Evaluate should be deterministic: %+v vs %+v", first, second)
	}
	if first.Score != 70 {
		t.Errorf("expected the highest floor (70), got %d", first.Score)
	}
}

func TestEvaluate_ScoreAlwaysBounded(t *testing.T) {
	bundles := []*enrichment.Bundle{
		{},
		{IdentityGeo: identity(`{"risk":{"risk_score":-50}}`)},
		{IdentityGeo: identity(`{"risk":{"risk_score":1e9,"is_tor":true}}`), HostExposure: exposure(22, 23, 80), DNSSubdomains: subdomains(500)},
	}
	for i, b := range bundles {
		s := Evaluate(b)
		if s.Score < 0 || s.Score > 100 {
			t.Errorf("bundle %d: score %d out of range", i, s.Score)
		}
		if s.Label != LabelFor(s.Score) {
			t.Errorf("bundle %d: label %s does not match score %d", i, s.Label, s.Score)
		}
		if len(s.Findings) == 0 {
			t.Errorf("bundle %d: findings should never be empty", i)
		}
	}
}
