// Package enrichment provides passive threat intelligence enrichment for
// IP and domain indicators: source adapters, the concurrent orchestrator
// that fuses them into a bundle, and the sequential bulk runner.
package enrichment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Slot identifies the bundle position an adapter fills.
type Slot int

const (
	SlotIdentityGeo Slot = iota
	SlotHostExposure
	SlotDNSCore
	SlotDNSSubdomains
)

func (s Slot) String() string {
	switch s {
	case SlotIdentityGeo:
		return "identity_geo"
	case SlotHostExposure:
		return "host_exposure"
	case SlotDNSCore:
		return "dns_core"
	case SlotDNSSubdomains:
		return "dns_subdomains"
	default:
		return "unknown"
	}
}

// Adapter wraps one upstream API. Fetch must never panic out or return a
// Go error: every failure is folded into the returned SourceResult.
type Adapter interface {
	Name() string
	Slot() Slot
	Fetch(ctx context.Context, ind Indicator) SourceResult
}

// Status is the outcome of one source call.
type Status int

const (
	StatusSkipped Status = iota
	StatusFailed
	StatusSucceeded
)

func (s Status) String() string {
	switch s {
	case StatusFailed:
		return "failed"
	case StatusSucceeded:
		return "succeeded"
	default:
		return "skipped"
	}
}

// FailureKind separates network-level failures from upstream HTTP errors.
type FailureKind string

const (
	FailureTransport FailureKind = "transport"
	FailureProtocol  FailureKind = "protocol"
)

// SourceResult is the normalized outcome of one (indicator, source) call.
// The zero value is Skipped.
type SourceResult struct {
	Source     string
	Status     Status
	Failure    FailureKind
	StatusCode int
	Message    string
	Payload    any
}

// Skipped marks a source as not applicable or not configured.
func Skipped(source string) SourceResult {
	return SourceResult{Source: source, Status: StatusSkipped}
}

// Succeeded wraps a normalized payload.
func Succeeded(source string, payload any) SourceResult {
	return SourceResult{Source: source, Status: StatusSucceeded, Payload: payload}
}

// TransportFailure records a network error or unreadable response.
func TransportFailure(source, message string) SourceResult {
	return SourceResult{Source: source, Status: StatusFailed, Failure: FailureTransport, Message: message}
}

// ProtocolFailure records a non-2xx upstream response.
func ProtocolFailure(source, message string, code int) SourceResult {
	return SourceResult{Source: source, Status: StatusFailed, Failure: FailureProtocol, StatusCode: code, Message: message}
}

// OK reports whether the source succeeded.
func (r SourceResult) OK() bool {
	return r.Status == StatusSucceeded
}

// MarshalJSON renders Skipped as null, Failed as {"error": msg} and
// Succeeded as the bare payload.
func (r SourceResult) MarshalJSON() ([]byte, error) {
	switch r.Status {
	case StatusFailed:
		return json.Marshal(map[string]string{"error": r.Message})
	case StatusSucceeded:
		if r.Payload == nil {
			return []byte("null"), nil
		}
		return json.Marshal(r.Payload)
	default:
		return []byte("null"), nil
	}
}

// Decode unmarshals a succeeded payload into v.
func (r SourceResult) Decode(v any) error {
	if !r.OK() {
		return fmt.Errorf("source %s did not succeed", r.Source)
	}
	switch p := r.Payload.(type) {
	case json.RawMessage:
		return json.Unmarshal(p, v)
	case []byte:
		return json.Unmarshal(p, v)
	default:
		data, err := json.Marshal(p)
		if err != nil {
			return err
		}
		return json.Unmarshal(data, v)
	}
}

// StatusError is returned for non-2xx upstream responses.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("upstream returned status %d", e.Code)
}

// maxLoggedBody caps how much of an upstream error body reaches the logs.
const maxLoggedBody = 512

// upstream is the HTTP plumbing shared by every provider client.
type upstream struct {
	name       string
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger
}

func newUpstream(name, baseURL string, timeout time.Duration, logger *zap.Logger) upstream {
	if logger == nil {
		logger = zap.NewNop()
	}
	return upstream{
		name:       name,
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger.With(zap.String("source", name)),
	}
}

// getJSON issues a GET and returns the raw body of a 2xx response. The
// body must be valid JSON.
func (u upstream) getJSON(ctx context.Context, path string, headers map[string]string) (json.RawMessage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", "reconlens/1.0")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := u.httpClient.Do(req)
	if err != nil {
		u.logger.Warn("Upstream request failed", zap.String("path", path), zap.Error(err))
		return nil, fmt.Errorf("%s request: %w", u.name, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading %s response: %w", u.name, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet := string(body)
		if len(snippet) > maxLoggedBody {
			snippet = snippet[:maxLoggedBody]
		}
		u.logger.Warn("Upstream returned error status",
			zap.String("path", path),
			zap.Int("status", resp.StatusCode),
			zap.String("body", snippet),
		)
		return nil, &StatusError{Code: resp.StatusCode, Body: snippet}
	}

	if !json.Valid(body) {
		return nil, fmt.Errorf("decoding %s response: invalid JSON", u.name)
	}

	return json.RawMessage(body), nil
}

// failure converts a getJSON error into a Failed result. label is the
// human-facing provider name used in the message.
func failure(source, label string, err error) SourceResult {
	var se *StatusError
	if errors.As(err, &se) {
		return ProtocolFailure(source, fmt.Sprintf("%s error %d", label, se.Code), se.Code)
	}
	return TransportFailure(source, label+" request failed")
}
