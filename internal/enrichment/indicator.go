package enrichment

import (
	"errors"
	"regexp"
	"strings"
)

// ErrMissingIndicator is returned when a request carries no usable indicator.
var ErrMissingIndicator = errors.New("indicator required")

// Kind is the syntactic class of an indicator.
type Kind string

const (
	KindIPv4   Kind = "ipv4"
	KindDomain Kind = "domain"
)

// Four dot-separated groups of 1-3 digits. Octet ranges are not checked.
var ipv4Pattern = regexp.MustCompile(`^[0-9]{1,3}\.[0-9]{1,3}\.[0-9]{1,3}\.[0-9]{1,3}$`)

// Indicator is an IP address or domain submitted for analysis.
type Indicator struct {
	Value string `json:"value"`
	Kind  Kind   `json:"kind"`
}

// IsIPv4 reports whether the indicator classified as an IPv4 address.
func (i Indicator) IsIPv4() bool {
	return i.Kind == KindIPv4
}

func (i Indicator) String() string {
	return i.Value
}

// Classify returns the indicator for value. Anything that is not a
// dotted quad is treated as a domain name.
func Classify(value string) Indicator {
	if ipv4Pattern.MatchString(value) {
		return Indicator{Value: value, Kind: KindIPv4}
	}
	return Indicator{Value: value, Kind: KindDomain}
}

// indicatorKeys are the request fields accepted for the indicator, in
// priority order.
var indicatorKeys = []string{"indicator", "query", "ip", "domain"}

// ExtractIndicator pulls the indicator out of a decoded request payload.
// The first key holding a non-blank string wins; the result is trimmed.
func ExtractIndicator(payload map[string]any) string {
	for _, key := range indicatorKeys {
		s, ok := payload[key].(string)
		if !ok {
			continue
		}
		if s = strings.TrimSpace(s); s != "" {
			return s
		}
	}
	return ""
}
