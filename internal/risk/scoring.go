// Package risk derives a bounded, explainable risk summary from an
// enrichment bundle.
package risk

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/lvonguyen/reconlens/internal/enrichment"
)

// Label is the three-level risk classification.
type Label string

const (
	LabelLow    Label = "low"
	LabelMedium Label = "medium"
	LabelHigh   Label = "high"
)

// Scoring thresholds. Every rule raises the score to at least its floor;
// nothing is additive, so evaluation order never changes the score.
const (
	Baseline = 20

	floorProxy        = 50
	floorDatacenter   = 55
	floorPlaintextWeb = 55
	floorVPN          = 60
	floorLargeDNS     = 65
	floorRemoteAccess = 70
	floorTor          = 75

	highThreshold   = 70
	mediumThreshold = 40

	maxListedPorts     = 15
	largeSubdomainMark = 50
)

// dangerousPorts is the fixed remote-access list: SSH, Telnet, RDP, VNC,
// WinRM over HTTP and HTTPS.
var dangerousPorts = []int{22, 23, 3389, 5900, 5985, 5986}

// NoSignalFinding is emitted when no rule fires.
const NoSignalFinding = "No obvious high-risk signals detected from passive sources. This does NOT guarantee safety; validate with active testing and context."

// Summary is the scored view of a bundle.
type Summary struct {
	Label    Label    `json:"overall_label"`
	Score    int      `json:"overall_score"`
	Findings []string `json:"findings"`
}

// evaluation accumulates the score and findings for one bundle.
type evaluation struct {
	score    float64
	findings []string
}

func (e *evaluation) raise(floor float64) {
	e.score = math.Max(e.score, floor)
}

func (e *evaluation) note(format string, args ...any) {
	e.findings = append(e.findings, fmt.Sprintf(format, args...))
}

// Evaluate scores a bundle. It is a pure function of its input.
func Evaluate(b *enrichment.Bundle) Summary {
	e := &evaluation{score: Baseline}

	if b != nil {
		e.identityRules(b.IdentityGeo)
		e.exposureRules(b.HostExposure)
		e.footprintRules(b.DNSSubdomains)
	}

	// Truncate so a fractional score never crosses a label threshold.
	score := int(math.Max(0, math.Min(100, e.score)))

	if len(e.findings) == 0 {
		e.findings = append(e.findings, NoSignalFinding)
	}

	return Summary{
		Label:    LabelFor(score),
		Score:    score,
		Findings: e.findings,
	}
}

// LabelFor maps a clamped score to its label.
func LabelFor(score int) Label {
	switch {
	case score >= highThreshold:
		return LabelHigh
	case score >= mediumThreshold:
		return LabelMedium
	default:
		return LabelLow
	}
}

type identityPayload struct {
	Risk map[string]any `json:"risk"`
}

func (e *evaluation) identityRules(r enrichment.SourceResult) {
	if !r.OK() {
		return
	}
	var p identityPayload
	if err := r.Decode(&p); err != nil || p.Risk == nil {
		return
	}
	risk := p.Risk

	if v, ok := risk["risk_score"].(float64); ok {
		e.raise(v)
		e.note("IPQuery risk score: %s (0 = low, 100 = critical).", strconv.FormatFloat(v, 'f', -1, 64))
	}
	if truthy(risk["is_datacenter"]) {
		e.raise(floorDatacenter)
		e.note("IP is flagged as datacenter/hosting: likely server infrastructure, not a residential endpoint.")
	}
	if truthy(risk["is_vpn"]) {
		e.raise(floorVPN)
		e.note("IP is flagged as VPN: may be anonymised or transient.")
	}
	if truthy(risk["is_tor"]) {
		e.raise(floorTor)
		e.note("IP is flagged as Tor exit node: often abused in attacks.")
	}
	if truthy(risk["is_proxy"]) {
		e.raise(floorProxy)
		e.note("IP looks like a proxy: traffic origin may be obfuscated or shared.")
	}
}

func (e *evaluation) exposureRules(r enrichment.SourceResult) {
	if !r.OK() {
		return
	}
	var ports []int
	switch p := r.Payload.(type) {
	case *enrichment.HostExposure:
		ports = p.OpenPorts
	case enrichment.HostExposure:
		ports = p.OpenPorts
	default:
		var h enrichment.HostExposure
		if err := r.Decode(&h); err != nil {
			return
		}
		ports = h.OpenPorts
	}
	if len(ports) == 0 {
		return
	}

	listed := ports
	if len(listed) > maxListedPorts {
		listed = listed[:maxListedPorts]
	}
	e.note("Censys observed the following open ports: %s.", joinPorts(listed))

	open := make(map[int]bool, len(ports))
	for _, p := range ports {
		open[p] = true
	}

	var dangerous []int
	for _, p := range dangerousPorts {
		if open[p] {
			dangerous = append(dangerous, p)
		}
	}
	if len(dangerous) > 0 {
		e.raise(floorRemoteAccess)
		e.note("High-risk remote access surface detected on ports %s (SSH/RDP/management). Ensure strong auth and network controls.", joinPorts(dangerous))
	}

	if open[80] && !open[443] {
		e.raise(floorPlaintextWeb)
		e.note("HTTP (80) exposed without an HTTPS (443) companion: check for plaintext services and enforce TLS where possible.")
	}
}

func (e *evaluation) footprintRules(r enrichment.SourceResult) {
	if !r.OK() {
		return
	}
	var fields map[string]json.RawMessage
	if err := r.Decode(&fields); err != nil {
		return
	}

	count := arrayLen(fields["subdomains"])
	if count == 0 {
		count = arrayLen(fields["records"])
	}
	if count == 0 {
		return
	}

	e.note("SecurityTrails reports ~%d subdomains: broad DNS footprint that may hide legacy or test services.", count)
	if count > largeSubdomainMark {
		e.raise(floorLargeDNS)
		e.note("Large subdomain surface: prioritise discovering which hosts are internet-reachable and in-scope.")
	}
}

// arrayLen returns the length of raw when it is a JSON array, else 0.
func arrayLen(raw json.RawMessage) int {
	var items []json.RawMessage
	if len(raw) == 0 || json.Unmarshal(raw, &items) != nil {
		return 0
	}
	return len(items)
}

func joinPorts(ports []int) string {
	parts := make([]string, len(ports))
	for i, p := range ports {
		parts[i] = strconv.Itoa(p)
	}
	return strings.Join(parts, ", ")
}

// truthy follows loose JSON truthiness: true, non-zero numbers and
// non-empty strings count as set.
func truthy(v any) bool {
	switch t := v.(type) {
	case bool:
		return t
	case float64:
		return t != 0
	case string:
		return t != ""
	case nil:
		return false
	default:
		return true
	}
}
