package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Recorder counts pipeline outcomes. A nil *Recorder records nothing, so
// components can take one without requiring it.
type Recorder struct {
	nodes      *prometheus.CounterVec
	rels       *prometheus.CounterVec
	unresolved *prometheus.CounterVec
	skipped    *prometheus.CounterVec
}

func New(reg prometheus.Registerer) (*Recorder, error) {
	r := &Recorder{
		nodes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "studygraph",
			Name:      "nodes_upserted_total",
			Help:      "Graph nodes upserted, by kind and outcome (created|updated).",
		}, []string{"kind", "outcome"}),
		rels: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "studygraph",
			Name:      "relationships_total",
			Help:      "Relationship merges, by kind, relationship type and outcome.",
		}, []string{"kind", "type", "outcome"}),
		unresolved: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "studygraph",
			Name:      "references_unresolved_total",
			Help:      "Ontology reference fields with no matching resource.",
		}, []string{"kind", "field"}),
		skipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "studygraph",
			Name:      "records_skipped_total",
			Help:      "Raw records skipped during ingestion, by reason.",
		}, []string{"kind", "reason"}),
	}
	if reg == nil {
		return r, nil
	}
	for _, c := range []prometheus.Collector{r.nodes, r.rels, r.unresolved, r.skipped} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return r, nil
}

func (r *Recorder) NodeUpserted(kind string, created bool) {
	if r == nil {
		return
	}
	outcome := "updated"
	if created {
		outcome = "created"
	}
	r.nodes.WithLabelValues(kind, outcome).Inc()
}

func (r *Recorder) Relationship(kind, relType, outcome string) {
	if r == nil {
		return
	}
	r.rels.WithLabelValues(kind, relType, outcome).Inc()
}

func (r *Recorder) Unresolved(kind, field string) {
	if r == nil {
		return
	}
	r.unresolved.WithLabelValues(kind, field).Inc()
}

func (r *Recorder) RecordSkipped(kind, reason string) {
	if r == nil {
		return
	}
	r.skipped.WithLabelValues(kind, reason).Inc()
}
