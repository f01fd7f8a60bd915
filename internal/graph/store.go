// Package graph holds the in-memory entity graph: nodes keyed by indicator,
// relation links between them, and analyst assertions on nodes. State is
// not persisted and resets when the process restarts.
package graph

import (
	"errors"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Common errors.
var (
	ErrNodeNotFound    = errors.New("node not found")
	ErrInvalidNode     = errors.New("node id and type are required")
	ErrInvalidLink     = errors.New("link source, target and relation are required")
	ErrInvalidNodeID   = errors.New("nodeId is required")
	ErrInvalidKey      = errors.New("key is invalid")
	ErrInvalidValue    = errors.New("value is invalid or empty")
	ErrUnknownRelation = errors.New("unknown link relation")
)

// NodeType classifies a graph node.
type NodeType string

const (
	NodeIP        NodeType = "ip"
	NodeDomain    NodeType = "domain"
	NodeSubdomain NodeType = "subdomain"
	NodeASN       NodeType = "asn"
)

// Relation is the kind of edge between two nodes.
type Relation string

const (
	RelationResolvesTo Relation = "resolves_to"
	RelationSameASN    Relation = "same_asn"
	RelationSameOrg    Relation = "same_org"
	RelationManual     Relation = "manual"
)

func (r Relation) valid() bool {
	switch r {
	case RelationResolvesTo, RelationSameASN, RelationSameOrg, RelationManual:
		return true
	}
	return false
}

// Node is an observed entity.
type Node struct {
	ID         string      `json:"id"`
	Type       NodeType    `json:"type"`
	Risk       string      `json:"risk,omitempty"`
	Tags       []string    `json:"tags,omitempty"`
	Assertions []Assertion `json:"assertions"`
}

// Link is a directed relation between two nodes.
type Link struct {
	Source   string   `json:"source"`
	Target   string   `json:"target"`
	Relation Relation `json:"relation"`
}

// Graph is a snapshot of the store.
type Graph struct {
	Nodes []Node `json:"nodes"`
	Links []Link `json:"links"`
}

// Store is a concurrency-safe in-memory graph.
type Store struct {
	mu    sync.RWMutex
	nodes []Node
	index map[string]int
	links []Link
	now   func() time.Time
	newID func() string
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		index: make(map[string]int),
		now:   time.Now,
		newID: uuid.NewString,
	}
}

// NewSeededStore creates a store holding the demo graph the dashboard
// starts with.
func NewSeededStore() *Store {
	s := NewStore()
	_ = s.UpsertNode(Node{ID: "8.8.8.8", Type: NodeIP, Risk: "low", Tags: []string{"public-dns"}})
	_ = s.UpsertNode(Node{ID: "google.com", Type: NodeDomain, Risk: "low", Tags: []string{"example"}})
	_, _ = s.AddLink(Link{Source: "google.com", Target: "8.8.8.8", Relation: RelationResolvesTo})
	return s
}

// Graph returns a copy of every node and link.
func (s *Store) Graph() Graph {
	s.mu.RLock()
	defer s.mu.RUnlock()

	nodes := make([]Node, len(s.nodes))
	for i, n := range s.nodes {
		nodes[i] = n.clone()
	}
	return Graph{Nodes: nodes, Links: slices.Clone(s.links)}
}

// Node returns a copy of the node with id.
func (s *Store) Node(id string) (Node, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	i, ok := s.index[id]
	if !ok {
		return Node{}, false
	}
	return s.nodes[i].clone(), true
}

// UpsertNode inserts node or merges it into the existing node with the
// same id. Empty fields on node keep the stored value.
func (s *Store) UpsertNode(node Node) error {
	if node.ID == "" {
		return ErrInvalidNode
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	i, ok := s.index[node.ID]
	if !ok {
		if node.Type == "" {
			return ErrInvalidNode
		}
		n := node.clone()
		if n.Assertions == nil {
			n.Assertions = []Assertion{}
		}
		s.index[n.ID] = len(s.nodes)
		s.nodes = append(s.nodes, n)
		return nil
	}

	existing := &s.nodes[i]
	if node.Type != "" {
		existing.Type = node.Type
	}
	if node.Risk != "" {
		existing.Risk = node.Risk
	}
	if node.Tags != nil {
		existing.Tags = slices.Clone(node.Tags)
	}
	if node.Assertions != nil {
		existing.Assertions = slices.Clone(node.Assertions)
	}
	return nil
}

// AddLink appends link unless the same source, target and relation
// already exist. It reports whether the link was added.
func (s *Store) AddLink(link Link) (bool, error) {
	if link.Source == "" || link.Target == "" || link.Relation == "" {
		return false, ErrInvalidLink
	}
	if !link.Relation.valid() {
		return false, ErrUnknownRelation
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if slices.Contains(s.links, link) {
		return false, nil
	}
	s.links = append(s.links, link)
	return true, nil
}

func (n Node) clone() Node {
	n.Tags = slices.Clone(n.Tags)
	n.Assertions = slices.Clone(n.Assertions)
	return n
}
