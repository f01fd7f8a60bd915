package main

import (
	"bytes"
	"encoding/json"
	"reflect"
	"strings"
	"testing"

	"github.com/fatih/color"

	"github.com/lvonguyen/reconlens/internal/enrichment"
	"github.com/lvonguyen/reconlens/internal/risk"
)

func init() {
	color.NoColor = true
}

func testBundle() *enrichment.Bundle {
	return &enrichment.Bundle{
		Indicator:     enrichment.Classify("1.2.3.4"),
		IdentityGeo:   enrichment.Succeeded("ipquery", json.RawMessage(`{"ip":"1.2.3.4","risk":{"is_vpn":true}}`)),
		HostExposure:  enrichment.TransportFailure("censys", "Censys request failed"),
		DNSCore:       enrichment.Skipped("securitytrails"),
		DNSSubdomains: enrichment.Skipped("securitytrails_subdomains"),
	}
}

func decodeJSON(t *testing.T, data []byte) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("invalid JSON %s: %v", data, err)
	}
	return out
}

// =============================================================================
// JSON Output Tests
// =============================================================================

func TestBundleJSON_Basic(t *testing.T) {
	var buf bytes.Buffer
	if err := printJSON(&buf, bundleJSON(testBundle(), false)); err != nil {
		t.Fatalf("printJSON failed: %v", err)
	}

	got := decodeJSON(t, buf.Bytes())
	want := decodeJSON(t, []byte(`{
		"indicator": "1.2.3.4",
		"ipquery": {"ip": "1.2.3.4", "risk": {"is_vpn": true}},
		"censys": {"error": "Censys request failed"},
		"securitytrails": null
	}`))
	if !reflect.DeepEqual(got, want) {
		t.Errorf("unexpected enrich output:\n got %v\nwant %v", got, want)
	}
}

func TestBundleJSON_DeepDiveMatchesHTTPShape(t *testing.T) {
	b := testBundle()
	payload := bundleJSON(b, true)
	payload["risks"] = risk.Evaluate(b)

	var buf bytes.Buffer
	if err := printJSON(&buf, payload); err != nil {
		t.Fatalf("printJSON failed: %v", err)
	}

	got := decodeJSON(t, buf.Bytes())
	want := decodeJSON(t, []byte(`{
		"indicator": "1.2.3.4",
		"ipquery": {"ip": "1.2.3.4", "risk": {"is_vpn": true}},
		"censys": {"error": "Censys request failed"},
		"securitytrails": {"core": null, "subdomains": null},
		"risks": {
			"overall_label": "medium",
			"overall_score": 60,
			"findings": ["IP is flagged as VPN: may be anonymised or transient."]
		}
	}`))
	if !reflect.DeepEqual(got, want) {
		t.Errorf("unexpected deep-dive output:\n got %v\nwant %v", got, want)
	}
}

// =============================================================================
// Text Output Tests
// =============================================================================

func TestPrintBundle(t *testing.T) {
	var buf bytes.Buffer
	printBundle(&buf, testBundle(), true)
	out := buf.String()

	for _, want := range []string{
		"1.2.3.4 (ipv4)",
		"[+] ipquery",
		"[!] censys: Censys request failed",
		"[-] securitytrails: skipped",
		"[-] securitytrails_subdomains: skipped",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}

	buf.Reset()
	printBundle(&buf, testBundle(), false)
	if strings.Contains(buf.String(), "securitytrails_subdomains") {
		t.Error("basic output should not list the subdomain source")
	}
}

func TestPrintRisk(t *testing.T) {
	var buf bytes.Buffer
	printRisk(&buf, risk.Summary{
		Label:    risk.LabelHigh,
		Score:    75,
		Findings: []string{"first", "second"},
	})
	out := buf.String()

	if !strings.Contains(out, "Risk: high (75/100)") {
		t.Errorf("missing risk line:\n%s", out)
	}
	if !strings.Contains(out, "  - first\n  - second\n") {
		t.Errorf("findings not listed in order:\n%s", out)
	}
}
