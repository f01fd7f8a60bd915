package enrichment

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"testing"
)

// recordingEnricher records call order and fails on listed inputs.
type recordingEnricher struct {
	mu       sync.Mutex
	calls    []string
	inFlight int
	maxSeen  int
	fail     map[string]error
}

func (e *recordingEnricher) Enrich(_ context.Context, raw string) (*Bundle, error) {
	e.mu.Lock()
	e.calls = append(e.calls, raw)
	e.inFlight++
	e.maxSeen = max(e.maxSeen, e.inFlight)
	e.mu.Unlock()

	defer func() {
		e.mu.Lock()
		e.inFlight--
		e.mu.Unlock()
	}()

	if err := e.fail[raw]; err != nil {
		return nil, err
	}
	return &Bundle{Indicator: Classify(raw)}, nil
}

// =============================================================================
// Bulk Runner Tests
// =============================================================================

func TestBulkRun_SequentialInOrder(t *testing.T) {
	e := &recordingEnricher{}
	runner := NewBulkRunner(e, nil, nil)

	input := []string{"8.8.8.8", "example.com", "8.8.8.8"}
	bundles, err := runner.Run(context.Background(), input)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if !reflect.DeepEqual(e.calls, input) {
		t.Errorf("calls = %v, want %v (duplicates are not removed)", e.calls, input)
	}
	if e.maxSeen != 1 {
		t.Errorf("expected strictly sequential calls, saw %d in flight", e.maxSeen)
	}
	if len(bundles) != len(input) {
		t.Fatalf("expected %d bundles, got %d", len(input), len(bundles))
	}
	for i, b := range bundles {
		if b.Indicator.Value != input[i] {
			t.Errorf("bundle %d = %q, want %q", i, b.Indicator.Value, input[i])
		}
	}
}

func TestBulkRun_AbortsAtFirstFailure(t *testing.T) {
	e := &recordingEnricher{fail: map[string]error{"   ": ErrMissingIndicator}}
	runner := NewBulkRunner(e, nil, nil)

	bundles, err := runner.Run(context.Background(), []string{"a.com", "b.com", "   ", "c.com"})

	var be *BulkError
	if !errors.As(err, &be) {
		t.Fatalf("expected *BulkError, got %v", err)
	}
	if be.Index != 2 || be.Indicator != "   " {
		t.Errorf("unexpected failing item: index %d indicator %q", be.Index, be.Indicator)
	}
	if !errors.Is(err, ErrMissingIndicator) {
		t.Error("BulkError should unwrap to the cause")
	}
	if len(bundles) != 2 {
		t.Errorf("expected the 2 completed bundles, got %d", len(bundles))
	}
	if len(e.calls) != 3 {
		t.Errorf("items after the failure must not run, got calls %v", e.calls)
	}
}

func TestBulkRun_CancelledContext(t *testing.T) {
	e := &recordingEnricher{}
	runner := NewBulkRunner(e, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := runner.Run(ctx, []string{"a.com"})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
	if len(e.calls) != 0 {
		t.Errorf("no enrichment expected after cancellation, got %v", e.calls)
	}
}

func TestParseList(t *testing.T) {
	got := ParseList("8.8.8.8\n\n  example.com  \r\n\t\n1.1.1.1")
	want := []string{"8.8.8.8", "example.com", "1.1.1.1"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("ParseList = %v, want %v", got, want)
	}

	if got := ParseList("  \n\n"); len(got) != 0 {
		t.Errorf("blank input should yield nothing, got %v", got)
	}
}
