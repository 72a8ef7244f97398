package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"studygraph/internal/config"
	"studygraph/internal/logger"
	"studygraph/internal/schema"
	"studygraph/internal/util"
	"studygraph/internal/workflows"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	enumspb "go.temporal.io/api/enums/v1"
	"go.temporal.io/api/serviceerror"
	tclient "go.temporal.io/sdk/client"
	"go.temporal.io/sdk/converter"
)

// WorkflowClient is the part of the Temporal client the server uses.
type WorkflowClient interface {
	ExecuteWorkflow(ctx context.Context, options tclient.StartWorkflowOptions, workflow interface{}, args ...interface{}) (tclient.WorkflowRun, error)
	QueryWorkflow(ctx context.Context, workflowID string, runID string, queryType string, args ...interface{}) (converter.EncodedValue, error)
}

type Server struct {
	cfg      config.Config
	temporal WorkflowClient
	gatherer prometheus.Gatherer
	log      *logger.Logger
}

func NewServer(cfg config.Config, tc WorkflowClient, gatherer prometheus.Gatherer, log *logger.Logger) *Server {
	if log == nil {
		log = logger.NewNop()
	}
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return &Server{cfg: cfg, temporal: tc, gatherer: gatherer, log: log.With("component", "api")}
}

func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealthz)
	mux.HandleFunc("/runs", s.handleRuns)
	mux.HandleFunc("/runs/", s.handleRunScoped)
	mux.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	return withCORS(mux)
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

type startRunRequest struct {
	RunID       string   `json:"run_id"`
	InputDir    string   `json:"input_dir"`
	Kinds       []string `json:"kinds"`
	Workers     int      `json:"workers"`
	ResolveOnly bool     `json:"resolve_only"`
}

func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeErr(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
		return
	}
	var req startRunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErr(w, http.StatusBadRequest, fmt.Errorf("invalid json: %w", err))
		return
	}
	if _, err := schema.Select(req.Kinds); err != nil {
		writeErr(w, http.StatusBadRequest, err)
		return
	}
	if req.Workers < 0 {
		writeErr(w, http.StatusBadRequest, fmt.Errorf("workers must not be negative"))
		return
	}
	runID := strings.TrimSpace(req.RunID)
	if runID == "" {
		runID = uuid.NewString()
	}
	// input_dir names a dataset under the configured input root
	inputDir := s.cfg.DataInRoot
	if name := strings.TrimSpace(req.InputDir); name != "" {
		inputDir = util.SafeJoin(s.cfg.DataInRoot, name)
	}

	wfID := workflows.WorkflowID(runID)
	we, err := s.temporal.ExecuteWorkflow(r.Context(), tclient.StartWorkflowOptions{
		ID:                                       wfID,
		TaskQueue:                                s.cfg.TemporalTaskQueue,
		WorkflowIDReusePolicy:                    enumspb.WORKFLOW_ID_REUSE_POLICY_ALLOW_DUPLICATE,
		WorkflowExecutionErrorWhenAlreadyStarted: true,
	}, workflows.GraphBuildWorkflow, workflows.GraphBuildInput{
		RunID:       runID,
		InputDir:    inputDir,
		Kinds:       req.Kinds,
		Workers:     req.Workers,
		ResolveOnly: req.ResolveOnly,
	})
	if err != nil {
		var started *serviceerror.WorkflowExecutionAlreadyStarted
		if errors.As(err, &started) {
			writeErr(w, http.StatusConflict, fmt.Errorf("run already in progress: %w", err))
			return
		}
		writeErr(w, http.StatusInternalServerError, err)
		return
	}
	s.log.Info("graph build started", "run_id", runID, "workflow_id", we.GetID(), "input_dir", inputDir)
	writeJSON(w, http.StatusAccepted, map[string]any{
		"run_id":          runID,
		"workflow_id":     we.GetID(),
		"workflow_run_id": we.GetRunID(),
	})
}

func (s *Server) handleRunScoped(w http.ResponseWriter, r *http.Request) {
	runID := strings.Trim(strings.TrimPrefix(r.URL.Path, "/runs/"), "/")
	if runID == "" || strings.Contains(runID, "/") {
		writeErr(w, http.StatusNotFound, fmt.Errorf("not found"))
		return
	}
	if r.Method != http.MethodGet {
		writeErr(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
		return
	}
	resp, err := s.temporal.QueryWorkflow(r.Context(), workflows.WorkflowID(runID), "", workflows.QueryGetGraphBuildProgress)
	if err != nil {
		var nf *serviceerror.NotFound
		if errors.As(err, &nf) {
			writeErr(w, http.StatusNotFound, err)
			return
		}
		writeErr(w, http.StatusInternalServerError, err)
		return
	}
	var prog workflows.GraphBuildProgress
	if err := resp.Get(&prog); err != nil {
		writeErr(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, prog)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeErr(w http.ResponseWriter, code int, err error) {
	apiErr := toAPIError(code, err)
	writeJSON(w, code, map[string]any{
		"error": map[string]any{
			"code":    apiErr.Code,
			"message": apiErr.Message,
		},
	})
}

type apiError struct {
	Code    string
	Message string
}

func toAPIError(status int, err error) apiError {
	msg := "Request failed."
	code := "SG-API-4000"
	raw := ""
	if err != nil {
		raw = strings.ToLower(err.Error())
	}

	switch {
	case status >= 500:
		switch {
		case errors.Is(err, util.ErrStoreUnavailable):
			return apiError{
				Code:    "SG-STORE-5001",
				Message: "Graph store is unavailable. Check the database and retry.",
			}
		case strings.Contains(raw, "connect"), strings.Contains(raw, "dial tcp"), strings.Contains(raw, "connection refused"):
			return apiError{
				Code:    "SG-TMP-5002",
				Message: "Workflow service is unavailable. Check local services and retry.",
			}
		default:
			return apiError{
				Code:    "SG-API-5000",
				Message: "Internal server error. Please retry or check service logs.",
			}
		}
	case status == http.StatusBadRequest:
		code = "SG-API-4001"
		msg = "Invalid request. Check inputs and retry."
	case status == http.StatusNotFound:
		code = "SG-API-4004"
		msg = "Requested run was not found."
	case status == http.StatusConflict:
		code = "SG-API-4009"
		msg = "A run with this id is already in progress."
	case status == http.StatusMethodNotAllowed:
		code = "SG-API-4005"
		msg = "This endpoint does not support the requested method."
	}

	// For 4xx, keep user-safe validation context only.
	if status >= 400 && status < 500 && err != nil {
		switch {
		case errors.Is(err, util.ErrUnknownKind):
			msg = "Unknown entity kind. Use one of Study, Experiment, Material, Intervention, Organism, Sample."
		case strings.Contains(raw, "workers must not be negative"):
			msg = "Workers must be zero or a positive number."
		case strings.Contains(raw, "invalid json"):
			msg = "Malformed JSON request body."
		}
	}

	return apiError{Code: code, Message: msg}
}

func withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,OPTIONS")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
