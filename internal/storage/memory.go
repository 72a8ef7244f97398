package storage

import (
	"context"
	"errors"
	"sort"
	"sync"

	"studygraph/internal/ids"
)

// MemoryStore is an in-process Store used by tests and dry runs.
type MemoryStore struct {
	mu        sync.RWMutex
	nodes     map[string]map[string]map[string]any
	edges     map[Relationship]struct{}
	edgeOrder []Relationship
	schema    []KeySpec
	closed    bool
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		nodes: map[string]map[string]map[string]any{},
		edges: map[Relationship]struct{}{},
	}
}

var errClosed = errors.New("store closed")

// PutResource seeds an ontology resource.
func (m *MemoryStore) PutResource(uri string, props map[string]any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p := cloneProps(props)
	p["uri"] = uri
	m.bucket("Resource")[uri] = p
}

func (m *MemoryStore) bucket(label string) map[string]map[string]any {
	b, ok := m.nodes[label]
	if !ok {
		b = map[string]map[string]any{}
		m.nodes[label] = b
	}
	return b
}

func (m *MemoryStore) EnsureSchema(_ context.Context, keys []KeySpec) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return unavailable("ensure schema", errClosed)
	}
	m.schema = append(m.schema[:0], keys...)
	return nil
}

func (m *MemoryStore) UpsertNode(_ context.Context, label, keyField, key string, props map[string]any) (bool, error) {
	if err := validIdentifier(label, keyField); err != nil {
		return false, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return false, unavailable("upsert node", errClosed)
	}
	b := m.bucket(label)
	n, exists := b[key]
	if !exists {
		n = map[string]any{}
		b[key] = n
	}
	for k, v := range props {
		if v == nil {
			continue
		}
		n[k] = v
	}
	n[keyField] = key
	return !exists, nil
}

func (m *MemoryStore) MergeRelationship(_ context.Context, from NodeRef, relType string, to NodeRef) (RelOutcome, error) {
	if err := validIdentifier(from.Label, to.Label, relType); err != nil {
		return RelMissingEndpoint, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return RelMissingEndpoint, unavailable("merge relationship", errClosed)
	}
	if _, ok := m.nodes[from.Label][from.Key]; !ok {
		return RelMissingEndpoint, nil
	}
	if _, ok := m.nodes[to.Label][to.Key]; !ok {
		return RelMissingEndpoint, nil
	}
	rel := Relationship{From: from, Type: relType, To: to}
	if _, ok := m.edges[rel]; ok {
		return RelExisting, nil
	}
	m.edges[rel] = struct{}{}
	m.edgeOrder = append(m.edgeOrder, rel)
	return RelCreated, nil
}

func (m *MemoryStore) FindResource(_ context.Context, token string) (Resource, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return Resource{}, false, unavailable("find resource", errClosed)
	}
	uris := make([]string, 0)
	for uri := range m.nodes["Resource"] {
		if ids.MatchesResourceURI(uri, token) {
			uris = append(uris, uri)
		}
	}
	if len(uris) == 0 {
		return Resource{}, false, nil
	}
	sort.Strings(uris)
	return Resource{URI: uris[0], Props: cloneProps(m.nodes["Resource"][uris[0]])}, true, nil
}

func (m *MemoryStore) ListNodes(_ context.Context, label, keyField string) ([]Node, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, unavailable("list nodes", errClosed)
	}
	out := make([]Node, 0, len(m.nodes[label]))
	for key, props := range m.nodes[label] {
		out = append(out, Node{Label: label, Key: key, Props: cloneProps(props)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

func (m *MemoryStore) SetProperties(_ context.Context, ref NodeRef, props map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return unavailable("set properties", errClosed)
	}
	n, ok := m.nodes[ref.Label][ref.Key]
	if !ok {
		return nil
	}
	for k, v := range props {
		if v == nil {
			delete(n, k)
			continue
		}
		n[k] = v
	}
	return nil
}

func (m *MemoryStore) Close(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// Node returns a copy of the node's properties.
func (m *MemoryStore) Node(label, key string) (map[string]any, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n, ok := m.nodes[label][key]
	if !ok {
		return nil, false
	}
	return cloneProps(n), true
}

func (m *MemoryStore) Count(label string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.nodes[label])
}

// Relationships returns every relationship in creation order.
func (m *MemoryStore) Relationships() []Relationship {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Relationship, len(m.edgeOrder))
	copy(out, m.edgeOrder)
	return out
}

// RelationshipsFrom lists the relationships leaving one node.
func (m *MemoryStore) RelationshipsFrom(label, key string) []Relationship {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Relationship
	for _, r := range m.edgeOrder {
		if r.From.Label == label && r.From.Key == key {
			out = append(out, r)
		}
	}
	return out
}

func (m *MemoryStore) Schema() []KeySpec {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]KeySpec, len(m.schema))
	copy(out, m.schema)
	return out
}
