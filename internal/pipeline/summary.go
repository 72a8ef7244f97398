package pipeline

import (
	"path/filepath"
	"time"

	"studygraph/internal/linker"
	"studygraph/internal/ontology"
	"studygraph/internal/util"
)

// Skip is one raw record that did not make it into the graph.
type Skip struct {
	Ref    string `json:"ref"`
	Reason string `json:"reason"`
	Error  string `json:"error"`
}

const (
	ReasonMissingKey        = "missing_key"
	ReasonInvalidIdentifier = "invalid_identifier"
	ReasonParseError        = "parse_error"
)

type KindSummary struct {
	Kind           string         `json:"kind"`
	Records        int            `json:"records"`
	NodesCreated   int            `json:"nodes_created"`
	NodesUpdated   int            `json:"nodes_updated"`
	RecordsSkipped int            `json:"records_skipped"`
	FieldsSkipped  int            `json:"fields_skipped"`
	Skipped        []Skip         `json:"skipped,omitempty"`
	Links          linker.Stats   `json:"links"`
	Resolution     ontology.Stats `json:"resolution"`
}

type Summary struct {
	RunID                string        `json:"run_id"`
	StartedAt            time.Time     `json:"started_at"`
	FinishedAt           time.Time     `json:"finished_at"`
	DurationMS           int64         `json:"duration_ms"`
	NodesCreated         int           `json:"nodes_created"`
	NodesUpdated         int           `json:"nodes_updated"`
	RelationshipsCreated int           `json:"relationships_created"`
	Unresolved           int           `json:"references_unresolved"`
	RecordsSkipped       int           `json:"records_skipped"`
	FieldsSkipped        int           `json:"fields_skipped"`
	DanglingLinks        int           `json:"dangling_links"`
	Kinds                []KindSummary `json:"kinds"`
}

func (s *Summary) kind(name string) *KindSummary {
	for i := range s.Kinds {
		if s.Kinds[i].Kind == name {
			return &s.Kinds[i]
		}
	}
	s.Kinds = append(s.Kinds, KindSummary{Kind: name})
	return &s.Kinds[len(s.Kinds)-1]
}

// AddIngest folds one kind's ingestion result into the totals.
func (s *Summary) AddIngest(ks KindSummary) {
	k := s.kind(ks.Kind)
	k.Records += ks.Records
	k.NodesCreated += ks.NodesCreated
	k.NodesUpdated += ks.NodesUpdated
	k.RecordsSkipped += ks.RecordsSkipped
	k.FieldsSkipped += ks.FieldsSkipped
	k.Skipped = append(k.Skipped, ks.Skipped...)

	s.NodesCreated += ks.NodesCreated
	s.NodesUpdated += ks.NodesUpdated
	s.RecordsSkipped += ks.RecordsSkipped
	s.FieldsSkipped += ks.FieldsSkipped
}

func (s *Summary) AddLinks(kind string, st linker.Stats) {
	s.kind(kind).Links.Add(st)
	s.RelationshipsCreated += st.Created
	s.DanglingLinks += st.Dangling
	s.FieldsSkipped += st.Invalid
}

func (s *Summary) AddResolution(kind string, st ontology.Stats) {
	s.kind(kind).Resolution.Add(st)
	s.RelationshipsCreated += st.Created
	s.Unresolved += st.Unresolved
	s.FieldsSkipped += st.Invalid
}

func (s *Summary) Finish(now time.Time) {
	s.FinishedAt = now
	s.DurationMS = now.Sub(s.StartedAt).Milliseconds()
}

// UnresolvedRow is one line of the unresolved reference report.
type UnresolvedRow struct {
	Kind  string `json:"kind"`
	Key   string `json:"key"`
	Field string `json:"field"`
	Value string `json:"value"`
}

func (s Summary) UnresolvedRows() []UnresolvedRow {
	var out []UnresolvedRow
	for _, k := range s.Kinds {
		for _, m := range k.Resolution.Misses {
			out = append(out, UnresolvedRow{Kind: k.Kind, Key: m.Key, Field: m.Field, Value: m.Value})
		}
	}
	return out
}

// WriteReport writes summary.json and unresolved.jsonl under dir.
func (s Summary) WriteReport(dir string) (string, error) {
	path := filepath.Join(dir, "summary.json")
	if err := util.WriteJSONAtomic(path, s); err != nil {
		return "", err
	}
	if err := util.WriteJSONLinesAtomic(filepath.Join(dir, "unresolved.jsonl"), s.UnresolvedRows()); err != nil {
		return "", err
	}
	return path, nil
}
