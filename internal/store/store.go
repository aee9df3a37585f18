// Package store persists runs and their step history. Writes are append-only
// per run: steps are never reordered, rewritten, or deleted, and runs are
// never removed. Per-run serialization is the orchestrator's job; the store
// requires no cross-run coordination.
package store

import (
	"context"
	"errors"

	"github.com/Lllllllleong/taxfilingflow/internal/models"
)

// ErrNotFound is returned when a run identifier is unknown.
var ErrNotFound = errors.New("run not found")

// Store is the run/step persistence contract.
type Store interface {
	// CreateRun persists a brand-new run record.
	CreateRun(ctx context.Context, run *models.Run) error
	// UpdateRun overwrites the run record (status and section snapshots).
	// The step history is untouched.
	UpdateRun(ctx context.Context, run *models.Run) error
	// GetRun returns the run record or ErrNotFound.
	GetRun(ctx context.Context, runID string) (*models.Run, error)
	// AppendStep adds one step to the run's ordered history.
	AppendStep(ctx context.Context, step *models.Step) error
	// ListSteps returns the run's steps ordered by sequence number.
	ListSteps(ctx context.Context, runID string) ([]models.Step, error)
	// ListRuns returns summaries for all runs, most recent first.
	ListRuns(ctx context.Context) ([]models.RunSummary, error)
}
