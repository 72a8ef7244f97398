package storage

import (
	"context"
	"fmt"
	"regexp"
	"strconv"

	"studygraph/internal/util"
)

// NodeRef addresses one node by label and key property.
type NodeRef struct {
	Label    string `json:"label"`
	KeyField string `json:"key_field"`
	Key      string `json:"key"`
}

func (r NodeRef) String() string { return r.Label + ":" + r.Key }

type Node struct {
	Label string         `json:"label"`
	Key   string         `json:"key"`
	Props map[string]any `json:"props"`
}

// Resource is a preloaded ontology term keyed by its URI.
type Resource struct {
	URI   string         `json:"uri"`
	Props map[string]any `json:"props"`
}

type Relationship struct {
	From NodeRef `json:"from"`
	Type string  `json:"type"`
	To   NodeRef `json:"to"`
}

type RelOutcome int

const (
	RelCreated RelOutcome = iota
	RelExisting
	RelMissingEndpoint
)

func (o RelOutcome) String() string {
	switch o {
	case RelCreated:
		return "created"
	case RelExisting:
		return "existing"
	case RelMissingEndpoint:
		return "missing_endpoint"
	default:
		return "unknown"
	}
}

// KeySpec names the unique key property of a label.
type KeySpec struct {
	Label string
	Field string
}

// Store is the graph store the pipeline writes to. Every write is an atomic
// merge so concurrent and repeated calls converge on one node per key and one
// relationship per (from, type, to).
type Store interface {
	EnsureSchema(ctx context.Context, keys []KeySpec) error
	// UpsertNode finds or creates the node and merges props into it.
	UpsertNode(ctx context.Context, label, keyField, key string, props map[string]any) (bool, error)
	MergeRelationship(ctx context.Context, from NodeRef, relType string, to NodeRef) (RelOutcome, error)
	// FindResource returns the first resource, by URI order, matching token.
	FindResource(ctx context.Context, token string) (Resource, bool, error)
	ListNodes(ctx context.Context, label, keyField string) ([]Node, error)
	// SetProperties overwrites props on an existing node; nil values remove.
	SetProperties(ctx context.Context, ref NodeRef, props map[string]any) error
	Close(ctx context.Context) error
}

var identifier = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

func validIdentifier(parts ...string) error {
	for _, p := range parts {
		if !identifier.MatchString(p) {
			return fmt.Errorf("%w %q", util.ErrInvalidGraphName, p)
		}
	}
	return nil
}

func unavailable(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, util.ErrStoreUnavailable, err)
}

// StringProp renders a scalar property as a string. Backends hand back
// numbers as int64 or float64 depending on how they were stored.
func StringProp(props map[string]any, key string) (string, bool) {
	return scalarString(props[key])
}

func scalarString(v any) (string, bool) {
	switch t := v.(type) {
	case nil:
		return "", false
	case string:
		return t, true
	case int64:
		return strconv.FormatInt(t, 10), true
	case int:
		return strconv.Itoa(t), true
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), true
	case bool:
		return strconv.FormatBool(t), true
	default:
		return fmt.Sprint(t), true
	}
}

func cloneProps(p map[string]any) map[string]any {
	out := make(map[string]any, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}
