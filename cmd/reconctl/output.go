package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/fatih/color"

	"github.com/lvonguyen/reconlens/internal/enrichment"
	"github.com/lvonguyen/reconlens/internal/risk"
)

var (
	heading = color.New(color.FgCyan, color.Bold)
	okMark  = color.New(color.FgGreen)
	errMark = color.New(color.FgRed)
	dimMark = color.New(color.Faint)
)

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// bundleJSON mirrors the HTTP response shapes.
func bundleJSON(b *enrichment.Bundle, deep bool) map[string]any {
	out := map[string]any{
		"indicator":      b.Indicator.Value,
		"ipquery":        b.IdentityGeo,
		"censys":         b.HostExposure,
		"securitytrails": b.DNSCore,
	}
	if deep {
		out["securitytrails"] = map[string]any{
			"core":       b.DNSCore,
			"subdomains": b.DNSSubdomains,
		}
	}
	return out
}

func printBundle(w io.Writer, b *enrichment.Bundle, deep bool) {
	heading.Fprintf(w, "%s (%s)\n", b.Indicator.Value, b.Indicator.Kind)

	results := []enrichment.SourceResult{b.IdentityGeo, b.HostExposure, b.DNSCore}
	names := []string{"ipquery", "censys", "securitytrails"}
	if deep {
		results = append(results, b.DNSSubdomains)
		names = append(names, "securitytrails_subdomains")
	}

	for i, r := range results {
		switch r.Status {
		case enrichment.StatusSucceeded:
			okMark.Fprint(w, "[+] ")
			fmt.Fprintln(w, names[i])
		case enrichment.StatusFailed:
			errMark.Fprint(w, "[!] ")
			fmt.Fprintf(w, "%s: %s\n", names[i], r.Message)
		default:
			dimMark.Fprintf(w, "[-] %s: skipped\n", names[i])
		}
	}
}

func printRisk(w io.Writer, s risk.Summary) {
	label := okMark
	switch s.Label {
	case risk.LabelHigh:
		label = errMark
	case risk.LabelMedium:
		label = color.New(color.FgYellow)
	}

	fmt.Fprintln(w)
	fmt.Fprint(w, "Risk: ")
	label.Fprintf(w, "%s (%d/100)\n", s.Label, s.Score)
	for _, f := range s.Findings {
		fmt.Fprintf(w, "  - %s\n", f)
	}
}
