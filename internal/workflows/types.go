package workflows

import "studygraph/internal/pipeline"

type GraphBuildInput struct {
	RunID       string   `json:"run_id,omitempty"`
	InputDir    string   `json:"input_dir"`
	Kinds       []string `json:"kinds,omitempty"`
	Workers     int      `json:"workers,omitempty"`
	ResolveOnly bool     `json:"resolve_only,omitempty"`
}

const (
	PhaseSchema  = "schema"
	PhaseIngest  = "ingest"
	PhaseLink    = "link"
	PhaseResolve = "resolve"
	PhaseReport  = "report"
	PhaseDone    = "done"
	PhaseFailed  = "failed"
)

type GraphBuildProgress struct {
	RunID       string            `json:"run_id"`
	Phase       string            `json:"phase"`
	PerKind     map[string]string `json:"per_kind"`
	SummaryPath string            `json:"summary_path,omitempty"`
	FailReason  string            `json:"fail_reason,omitempty"`
	Summary     pipeline.Summary  `json:"summary"`
}
