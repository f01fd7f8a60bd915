package graph

import (
	"slices"
	"strings"
	"time"
	"unicode/utf8"
)

// SourceType is the provenance of an assertion.
type SourceType string

const (
	SourceSystem     SourceType = "system"
	SourceBytesize   SourceType = "bytesize"
	SourceTrustedOrg SourceType = "trusted_org"
	SourceUser       SourceType = "user"
)

// AssertionStatus tracks review state.
type AssertionStatus string

const (
	StatusUnverified AssertionStatus = "unverified"
	StatusVerified   AssertionStatus = "verified"
	StatusDisputed   AssertionStatus = "disputed"
)

// Assertion is a label attached to a node.
type Assertion struct {
	ID            string          `json:"id"`
	NodeID        string          `json:"nodeId"`
	Key           string          `json:"key"`
	Value         string          `json:"value"`
	CreatedAt     time.Time       `json:"createdAt"`
	SourceType    SourceType      `json:"sourceType"`
	SourceOrgSlug string          `json:"sourceOrgSlug,omitempty"`
	Status        AssertionStatus `json:"status"`
	Confidence    int             `json:"confidence"`
}

// maxValueLength is the cap for free-text assertion values, in characters.
const maxValueLength = 500

var (
	allowedKeys         = []string{"category", "environment", "owner", "risk", "note"}
	allowedEnvironments = []string{"prod", "dev", "stage", "test", "lab"}
	allowedRisks        = []string{"low", "medium", "high"}
)

// SanitizeValue validates value for key. Environment and risk are closed
// vocabularies; other values are trimmed and cut to 500 characters.
func SanitizeValue(key, value string) (string, error) {
	if !slices.Contains(allowedKeys, key) {
		return "", ErrInvalidKey
	}
	v := strings.TrimSpace(value)
	if v == "" {
		return "", ErrInvalidValue
	}

	switch key {
	case "environment":
		if !slices.Contains(allowedEnvironments, v) {
			return "", ErrInvalidValue
		}
	case "risk":
		if !slices.Contains(allowedRisks, v) {
			return "", ErrInvalidValue
		}
	}

	if utf8.RuneCountInString(v) > maxValueLength {
		v = string([]rune(v)[:maxValueLength])
	}
	return v, nil
}

// Confidence returns the score for a new assertion given its source and
// the number of prior assertions with the same key and value.
func Confidence(source SourceType, duplicates int) int {
	base := 30
	switch source {
	case SourceBytesize:
		base = 95
	case SourceTrustedOrg:
		base = 85
	case SourceSystem:
		base = 80
	case SourceUser:
		base = 40
	}

	switch {
	case duplicates >= 3:
		base += 10
	case duplicates >= 2:
		base += 5
	}

	return min(100, base)
}

// AddAssertion validates and appends an assertion to the node. It returns
// the new assertion and the node's full assertion list.
func (s *Store) AddAssertion(nodeID, key, value string, source SourceType, orgSlug string) (Assertion, []Assertion, error) {
	if nodeID == "" {
		return Assertion{}, nil, ErrInvalidNodeID
	}
	cleaned, err := SanitizeValue(key, value)
	if err != nil {
		return Assertion{}, nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	i, ok := s.index[nodeID]
	if !ok {
		return Assertion{}, nil, ErrNodeNotFound
	}
	node := &s.nodes[i]

	duplicates := 0
	for _, a := range node.Assertions {
		if a.Key == key && strings.EqualFold(a.Value, cleaned) {
			duplicates++
		}
	}

	status := StatusVerified
	if source == SourceUser {
		status = StatusUnverified
	}

	assertion := Assertion{
		ID:            s.newID(),
		NodeID:        nodeID,
		Key:           key,
		Value:         cleaned,
		CreatedAt:     s.now().UTC(),
		SourceType:    source,
		SourceOrgSlug: orgSlug,
		Status:        status,
		Confidence:    Confidence(source, duplicates),
	}

	node.Assertions = append(node.Assertions, assertion)
	return assertion, slices.Clone(node.Assertions), nil
}
