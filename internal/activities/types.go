package activities

import (
	"studygraph/internal/pipeline"
)

type EnsureSchemaInput struct {
	RunID string `json:"run_id"`
}

type IngestKindInput struct {
	RunID    string `json:"run_id"`
	InputDir string `json:"input_dir"`
	Kind     string `json:"kind"`
	Workers  int    `json:"workers"`
}

type LinkKindInput struct {
	RunID string `json:"run_id"`
	Kind  string `json:"kind"`
}

type ResolveKindInput struct {
	RunID string `json:"run_id"`
	Kind  string `json:"kind"`
}

type WriteRunSummaryInput struct {
	RunID   string           `json:"run_id"`
	Summary pipeline.Summary `json:"summary"`
}

type WriteRunSummaryOutput struct {
	Path string `json:"path"`
}
