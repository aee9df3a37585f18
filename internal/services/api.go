package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"cloud.google.com/go/storage"

	"github.com/Lllllllleong/taxfilingflow/internal/gcp"
	"github.com/Lllllllleong/taxfilingflow/internal/inference"
	"github.com/Lllllllleong/taxfilingflow/internal/models"
	"github.com/Lllllllleong/taxfilingflow/internal/rules"
	"github.com/Lllllllleong/taxfilingflow/internal/store"
)

// FilingAPIConfig holds configuration for the filing API service.
type FilingAPIConfig struct {
	ProjectID        string
	VertexAIRegion   string
	RunsCollection   string
	FiledFormsBucket string
}

// FilingAPIFunction is the HTTP surface over the orchestrator.
type FilingAPIFunction struct {
	orchestrator *Orchestrator
	config       FilingAPIConfig
}

// NewFilingAPI wires the full pipeline: Firestore store, Cloud Storage
// archiver, and the Vertex-backed inference clients. Inference setup
// failure is not fatal; the pipeline then runs on its deterministic
// fallbacks alone.
func NewFilingAPI(ctx context.Context) (*FilingAPIFunction, error) {
	projectID := gcp.GetEnv("GOOGLE_CLOUD_PROJECT_ID", "")
	if projectID == "" {
		return nil, fmt.Errorf("GOOGLE_CLOUD_PROJECT_ID environment variable must be set")
	}

	config := FilingAPIConfig{
		ProjectID:        projectID,
		VertexAIRegion:   gcp.GetEnv("VERTEX_AI_REGION", "us-central1"),
		RunsCollection:   gcp.GetEnv("RUNS_COLLECTION", "runs"),
		FiledFormsBucket: gcp.GetEnv("FILED_FORMS_BUCKET", ""),
	}

	firestoreClient, err := gcp.NewFirestoreClient(ctx, config.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("failed to create firestore client: %w", err)
	}
	runStore := store.NewFirestore(firestoreClient, config.RunsCollection)

	var archiver Archiver
	if config.FiledFormsBucket != "" {
		storageClient, err := storage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to create storage client: %w", err)
		}
		archiver = NewGCSArchiver(storageClient.Bucket(config.FiledFormsBucket))
	}

	policy := rules.DefaultPolicy()
	clients := buildInferenceClients(ctx, config, policy)

	orchestrator := NewOrchestrator(runStore, DefaultStages(runStore, clients, policy, nil), archiver)
	return &FilingAPIFunction{orchestrator: orchestrator, config: config}, nil
}

func buildInferenceClients(ctx context.Context, config FilingAPIConfig, policy rules.Policy) InferenceClients {
	vertexClient, err := gcp.NewVertexClient(ctx, config.ProjectID, config.VertexAIRegion)
	if err != nil {
		slog.Warn("Vertex AI unavailable, pipeline will use deterministic fallbacks only.", "error", err)
		return InferenceClients{}
	}
	return InferenceClients{
		Classifier: inference.NewVertexModel(vertexClient.ClassifierModel, policy.InferenceTimeout),
		Extractor:  inference.NewVertexModel(vertexClient.ExtractorModel, policy.InferenceTimeout),
		Validator:  inference.NewVertexModel(vertexClient.IncomeValidatorModel, policy.InferenceTimeout),
		Tips:       inference.NewVertexModel(vertexClient.TipsModel, policy.InferenceTimeout),
	}
}

// ServeHTTP routes the filing API:
//
//	POST /runs               create a run and execute the pipeline
//	GET  /runs               list run summaries
//	GET  /runs/{id}          full run state with step history
//	POST /runs/{id}/resume   resume a suspended run with corrections
func (f *FilingAPIFunction) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	parts := splitPath(r.URL.Path)
	if len(parts) == 0 || parts[0] != "runs" {
		http.NotFound(w, r)
		return
	}

	switch {
	case len(parts) == 1 && r.Method == http.MethodPost:
		f.handleCreate(w, r)
	case len(parts) == 1 && r.Method == http.MethodGet:
		f.handleList(w, r)
	case len(parts) == 2 && r.Method == http.MethodGet:
		f.handleGet(w, r, parts[1])
	case len(parts) == 3 && parts[2] == "resume" && r.Method == http.MethodPost:
		f.handleResume(w, r, parts[1])
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func splitPath(p string) []string {
	var parts []string
	for _, part := range strings.Split(p, "/") {
		if part != "" {
			parts = append(parts, part)
		}
	}
	return parts
}

func (f *FilingAPIFunction) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req models.CreateRunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Warn("Could not decode create request body.", "error", err)
		http.Error(w, "bad request: could not parse JSON", http.StatusBadRequest)
		return
	}

	runID, err := f.orchestrator.Start(r.Context(), &req)
	if err != nil {
		f.writeError(w, err)
		return
	}

	resp, err := f.orchestrator.Get(r.Context(), runID)
	if err != nil {
		f.writeError(w, err)
		return
	}
	f.writeJSON(w, http.StatusCreated, resp)
}

func (f *FilingAPIFunction) handleList(w http.ResponseWriter, r *http.Request) {
	summaries, err := f.orchestrator.List(r.Context())
	if err != nil {
		f.writeError(w, err)
		return
	}
	f.writeJSON(w, http.StatusOK, map[string]any{"runs": summaries})
}

func (f *FilingAPIFunction) handleGet(w http.ResponseWriter, r *http.Request, runID string) {
	resp, err := f.orchestrator.Get(r.Context(), runID)
	if err != nil {
		f.writeError(w, err)
		return
	}
	f.writeJSON(w, http.StatusOK, resp)
}

func (f *FilingAPIFunction) handleResume(w http.ResponseWriter, r *http.Request, runID string) {
	var req models.ResumeRunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Warn("Could not decode resume request body.", "error", err, "runId", runID)
		http.Error(w, "bad request: could not parse JSON", http.StatusBadRequest)
		return
	}

	resp, err := f.orchestrator.Resume(r.Context(), runID, &req)
	if err != nil {
		f.writeError(w, err)
		return
	}
	f.writeJSON(w, http.StatusOK, resp)
}

func (f *FilingAPIFunction) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrInvalidRequest):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, store.ErrNotFound):
		http.Error(w, "run not found", http.StatusNotFound)
	case errors.Is(err, ErrRunBusy):
		http.Error(w, "run is already executing", http.StatusConflict)
	case errors.Is(err, ErrNotReviewable):
		http.Error(w, err.Error(), http.StatusConflict)
	default:
		slog.Error("Request failed.", "error", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
	}
}

func (f *FilingAPIFunction) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to write response.", "error", err)
	}
}
