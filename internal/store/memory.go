package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/Lllllllleong/taxfilingflow/internal/models"
)

// Memory is an in-process Store used by tests and local runs. Records are
// deep-copied through JSON on the way in and out so callers cannot mutate
// stored state by aliasing.
type Memory struct {
	mu    sync.Mutex
	runs  map[string]*models.Run
	steps map[string][]models.Step
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		runs:  make(map[string]*models.Run),
		steps: make(map[string][]models.Step),
	}
}

func cloneRun(run *models.Run) (*models.Run, error) {
	raw, err := json.Marshal(run)
	if err != nil {
		return nil, fmt.Errorf("failed to copy run record: %w", err)
	}
	var out models.Run
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("failed to copy run record: %w", err)
	}
	// Raw document text is excluded from JSON responses but persisted by the
	// Firestore store; carry it across so both backends resume identically.
	for i := range run.Documents {
		out.Documents[i].RawText = run.Documents[i].RawText
	}
	return &out, nil
}

func cloneStep(step *models.Step) (models.Step, error) {
	raw, err := json.Marshal(step)
	if err != nil {
		return models.Step{}, fmt.Errorf("failed to copy step record: %w", err)
	}
	var out models.Step
	if err := json.Unmarshal(raw, &out); err != nil {
		return models.Step{}, fmt.Errorf("failed to copy step record: %w", err)
	}
	return out, nil
}

// CreateRun implements Store.
func (s *Memory) CreateRun(ctx context.Context, run *models.Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.runs[run.ID]; ok {
		return fmt.Errorf("run %s already exists", run.ID)
	}
	copied, err := cloneRun(run)
	if err != nil {
		return err
	}
	s.runs[run.ID] = copied
	return nil
}

// UpdateRun implements Store.
func (s *Memory) UpdateRun(ctx context.Context, run *models.Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.runs[run.ID]; !ok {
		return ErrNotFound
	}
	copied, err := cloneRun(run)
	if err != nil {
		return err
	}
	s.runs[run.ID] = copied
	return nil
}

// GetRun implements Store.
func (s *Memory) GetRun(ctx context.Context, runID string) (*models.Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.runs[runID]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneRun(run)
}

// AppendStep implements Store.
func (s *Memory) AppendStep(ctx context.Context, step *models.Step) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.steps[step.RunID] {
		if existing.Seq == step.Seq {
			return fmt.Errorf("step %d already appended for run %s", step.Seq, step.RunID)
		}
	}
	copied, err := cloneStep(step)
	if err != nil {
		return err
	}
	s.steps[step.RunID] = append(s.steps[step.RunID], copied)
	return nil
}

// ListSteps implements Store.
func (s *Memory) ListSteps(ctx context.Context, runID string) ([]models.Step, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Step
	for i := range s.steps[runID] {
		copied, err := cloneStep(&s.steps[runID][i])
		if err != nil {
			return nil, err
		}
		out = append(out, copied)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	return out, nil
}

// ListRuns implements Store.
func (s *Memory) ListRuns(ctx context.Context) ([]models.RunSummary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	runs := make([]*models.Run, 0, len(s.runs))
	for _, run := range s.runs {
		runs = append(runs, run)
	}
	sort.Slice(runs, func(i, j int) bool {
		if runs[i].CreatedAt.Equal(runs[j].CreatedAt) {
			return runs[i].ID > runs[j].ID
		}
		return runs[i].CreatedAt.After(runs[j].CreatedAt)
	})
	summaries := make([]models.RunSummary, 0, len(runs))
	for _, run := range runs {
		summaries = append(summaries, Summarize(run))
	}
	return summaries, nil
}
