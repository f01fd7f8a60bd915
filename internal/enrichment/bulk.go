package enrichment

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/lvonguyen/reconlens/internal/observability"
)

// Enricher produces a bundle for one raw indicator.
type Enricher interface {
	Enrich(ctx context.Context, raw string) (*Bundle, error)
}

// BulkError reports the indicator that stopped a bulk run.
type BulkError struct {
	Index     int
	Indicator string
	Err       error
}

func (e *BulkError) Error() string {
	return fmt.Sprintf("failed to enrich %q (item %d): %v", e.Indicator, e.Index, e.Err)
}

func (e *BulkError) Unwrap() error { return e.Err }

// BulkRunner enriches a list of indicators one at a time, bounding the
// load placed on upstream providers.
type BulkRunner struct {
	enricher Enricher
	logger   *zap.Logger
	metrics  *observability.Metrics
}

// NewBulkRunner creates a bulk runner over enricher.
func NewBulkRunner(enricher Enricher, logger *zap.Logger, metrics *observability.Metrics) *BulkRunner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BulkRunner{enricher: enricher, logger: logger, metrics: metrics}
}

// Run enriches indicators in order. Duplicates are processed
// independently. The first outright failure aborts the remaining list;
// the bundles completed before it are returned alongside a *BulkError.
func (r *BulkRunner) Run(ctx context.Context, indicators []string) ([]*Bundle, error) {
	bundles := make([]*Bundle, 0, len(indicators))

	for i, raw := range indicators {
		if err := ctx.Err(); err != nil {
			r.metrics.ObserveBulk("aborted")
			return bundles, &BulkError{Index: i, Indicator: raw, Err: err}
		}

		bundle, err := r.enricher.Enrich(ctx, raw)
		if err != nil {
			r.metrics.ObserveBulk("aborted")
			r.logger.Warn("Bulk run aborted",
				zap.Int("index", i),
				zap.String("indicator", raw),
				zap.Int("completed", len(bundles)),
				zap.Error(err),
			)
			return bundles, &BulkError{Index: i, Indicator: raw, Err: err}
		}

		r.metrics.ObserveBulk("ok")
		bundles = append(bundles, bundle)
	}

	return bundles, nil
}

// ParseList splits free text into indicators: one per line, trimmed,
// blank lines dropped.
func ParseList(text string) []string {
	var out []string
	for _, line := range strings.Split(text, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			out = append(out, line)
		}
	}
	return out
}
