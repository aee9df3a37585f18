package store

import (
	"context"
	"fmt"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"

	"github.com/Lllllllleong/taxfilingflow/internal/models"
)

// Firestore persists runs in a top-level collection with each run's steps in
// an ordered subcollection. Step documents are keyed by zero-padded sequence
// number so a plain ordered read returns the append order.
type Firestore struct {
	client     *firestore.Client
	collection string
}

// NewFirestore creates a Firestore-backed store over the given collection.
func NewFirestore(client *firestore.Client, collection string) *Firestore {
	if collection == "" {
		collection = "runs"
	}
	return &Firestore{client: client, collection: collection}
}

func (s *Firestore) runRef(runID string) *firestore.DocumentRef {
	return s.client.Collection(s.collection).Doc(runID)
}

// CreateRun implements Store.
func (s *Firestore) CreateRun(ctx context.Context, run *models.Run) error {
	if _, err := s.runRef(run.ID).Create(ctx, run); err != nil {
		return fmt.Errorf("failed to create run document: %w", err)
	}
	return nil
}

// UpdateRun implements Store.
func (s *Firestore) UpdateRun(ctx context.Context, run *models.Run) error {
	if _, err := s.runRef(run.ID).Set(ctx, run); err != nil {
		return fmt.Errorf("failed to update run document: %w", err)
	}
	return nil
}

// GetRun implements Store.
func (s *Firestore) GetRun(ctx context.Context, runID string) (*models.Run, error) {
	snap, err := s.runRef(runID).Get(ctx)
	if err != nil {
		if snap != nil && !snap.Exists() {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get run document: %w", err)
	}
	var run models.Run
	if err := snap.DataTo(&run); err != nil {
		return nil, fmt.Errorf("failed to decode run document: %w", err)
	}
	return &run, nil
}

// AppendStep implements Store.
func (s *Firestore) AppendStep(ctx context.Context, step *models.Step) error {
	docID := fmt.Sprintf("%06d", step.Seq)
	ref := s.runRef(step.RunID).Collection("steps").Doc(docID)
	// Create, not Set: an existing sequence number means the caller broke
	// the append-only contract and must hear about it.
	if _, err := ref.Create(ctx, step); err != nil {
		return fmt.Errorf("failed to append step %s/%d: %w", step.Stage, step.Seq, err)
	}
	return nil
}

// ListSteps implements Store.
func (s *Firestore) ListSteps(ctx context.Context, runID string) ([]models.Step, error) {
	it := s.runRef(runID).Collection("steps").OrderBy("seq", firestore.Asc).Documents(ctx)
	var steps []models.Step
	for {
		snap, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to list steps: %w", err)
		}
		var step models.Step
		if err := snap.DataTo(&step); err != nil {
			return nil, fmt.Errorf("failed to decode step document: %w", err)
		}
		steps = append(steps, step)
	}
	return steps, nil
}

// ListRuns implements Store.
func (s *Firestore) ListRuns(ctx context.Context) ([]models.RunSummary, error) {
	it := s.client.Collection(s.collection).OrderBy("createdAt", firestore.Desc).Documents(ctx)
	var summaries []models.RunSummary
	for {
		snap, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to list runs: %w", err)
		}
		var run models.Run
		if err := snap.DataTo(&run); err != nil {
			return nil, fmt.Errorf("failed to decode run document: %w", err)
		}
		summaries = append(summaries, Summarize(&run))
	}
	return summaries, nil
}

// Summarize builds the list_runs row for a run.
func Summarize(run *models.Run) models.RunSummary {
	summary := models.RunSummary{
		RunID:        run.ID,
		TaxpayerName: run.Taxpayer.Name,
		PAN:          run.Taxpayer.PAN,
		Status:       run.Status,
		CreatedAt:    run.CreatedAt.UTC().Format("2006-01-02T15:04:05Z"),
	}
	if run.Computation != nil {
		summary.GrossTotalIncome = run.Computation.GrossTotalIncome
		summary.Refund = run.Computation.Refund
		summary.Payable = run.Computation.Payable
	}
	return summary
}
