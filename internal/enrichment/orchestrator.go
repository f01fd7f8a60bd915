package enrichment

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sourcegraph/conc"
	"github.com/sourcegraph/conc/panics"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/lvonguyen/reconlens/internal/observability"
)

// Bundle is the combined output of every source for one indicator.
// Slots without a configured adapter stay Skipped.
type Bundle struct {
	Indicator     Indicator
	IdentityGeo   SourceResult
	HostExposure  SourceResult
	DNSCore       SourceResult
	DNSSubdomains SourceResult
}

// Result returns the result held in slot.
func (b *Bundle) Result(slot Slot) SourceResult {
	switch slot {
	case SlotIdentityGeo:
		return b.IdentityGeo
	case SlotHostExposure:
		return b.HostExposure
	case SlotDNSCore:
		return b.DNSCore
	case SlotDNSSubdomains:
		return b.DNSSubdomains
	default:
		return SourceResult{}
	}
}

func (b *Bundle) set(slot Slot, r SourceResult) {
	switch slot {
	case SlotIdentityGeo:
		b.IdentityGeo = r
	case SlotHostExposure:
		b.HostExposure = r
	case SlotDNSCore:
		b.DNSCore = r
	case SlotDNSSubdomains:
		b.DNSSubdomains = r
	}
}

// Sources is the full adapter set available to the service.
type Sources struct {
	IdentityGeo   Adapter
	HostExposure  Adapter
	DNSCore       Adapter
	DNSSubdomains Adapter
}

// Basic returns the adapters used for a plain enrichment.
func (s Sources) Basic() []Adapter {
	return compact(s.IdentityGeo, s.HostExposure, s.DNSCore)
}

// DeepDive returns every adapter, including subdomain enumeration.
func (s Sources) DeepDive() []Adapter {
	return compact(s.IdentityGeo, s.HostExposure, s.DNSCore, s.DNSSubdomains)
}

func compact(adapters ...Adapter) []Adapter {
	out := make([]Adapter, 0, len(adapters))
	for _, a := range adapters {
		if a != nil {
			out = append(out, a)
		}
	}
	return out
}

// Orchestrator fans one indicator out to a fixed set of adapters.
type Orchestrator struct {
	profile  string
	adapters []Adapter
	logger   *zap.Logger
	metrics  *observability.Metrics
	tracer   trace.Tracer
}

// NewOrchestrator creates an orchestrator. profile labels metrics and
// spans (for example "basic" or "deep_dive").
func NewOrchestrator(profile string, adapters []Adapter, logger *zap.Logger, metrics *observability.Metrics) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{
		profile:  profile,
		adapters: adapters,
		logger:   logger.With(zap.String("profile", profile)),
		metrics:  metrics,
		tracer:   otel.Tracer("github.com/lvonguyen/reconlens/internal/enrichment"),
	}
}

// Enrich classifies raw and queries every adapter concurrently, returning
// once all of them have settled. A failed or skipped source only degrades
// its own slot. The only error is ErrMissingIndicator for blank input.
func (o *Orchestrator) Enrich(ctx context.Context, raw string) (*Bundle, error) {
	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, ErrMissingIndicator
	}
	ind := Classify(value)

	ctx, span := o.tracer.Start(ctx, "enrichment.Enrich", trace.WithAttributes(
		attribute.String("indicator.kind", string(ind.Kind)),
		attribute.String("profile", o.profile),
	))
	defer span.End()

	results := make([]SourceResult, len(o.adapters))
	var wg conc.WaitGroup
	for i, a := range o.adapters {
		wg.Go(func() {
			results[i] = o.fetch(ctx, a, ind)
		})
	}
	wg.Wait()

	bundle := &Bundle{Indicator: ind}
	for i, a := range o.adapters {
		bundle.set(a.Slot(), results[i])
	}

	o.metrics.ObserveEnrichment(o.profile, string(ind.Kind))
	o.logger.Debug("Enrichment complete",
		zap.String("indicator", ind.Value),
		zap.String("kind", string(ind.Kind)),
	)

	return bundle, nil
}

// fetch runs one adapter with panic isolation, tracing and metrics.
func (o *Orchestrator) fetch(ctx context.Context, a Adapter, ind Indicator) SourceResult {
	ctx, span := o.tracer.Start(ctx, "source."+a.Name())
	defer span.End()

	start := time.Now()
	var result SourceResult
	var pc panics.Catcher
	pc.Try(func() {
		result = a.Fetch(ctx, ind)
	})
	if r := pc.Recovered(); r != nil {
		o.logger.Error("Source adapter panicked",
			zap.String("source", a.Name()),
			zap.String("panic", fmt.Sprint(r.Value)),
		)
		result = TransportFailure(a.Name(), a.Name()+" request failed")
	}
	if result.Source == "" {
		result.Source = a.Name()
	}

	span.SetAttributes(attribute.String("source.status", result.Status.String()))
	if result.Status == StatusFailed {
		span.SetStatus(codes.Error, result.Message)
	}
	o.metrics.ObserveSource(a.Name(), result.Status.String(), time.Since(start))

	return result
}
