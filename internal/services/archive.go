package services

import (
	"context"
	"encoding/json"
	"fmt"

	"cloud.google.com/go/storage"

	"github.com/Lllllllleong/taxfilingflow/internal/gcp"
	"github.com/Lllllllleong/taxfilingflow/internal/models"
)

// GCSArchiver writes a JSON snapshot of each filed return to Cloud Storage.
// Snapshots are write-once: an acknowledged return never changes, so an
// existing object is left alone.
type GCSArchiver struct {
	bucket *storage.BucketHandle
}

// NewGCSArchiver builds an archiver over the given bucket.
func NewGCSArchiver(bucket *storage.BucketHandle) *GCSArchiver {
	return &GCSArchiver{bucket: bucket}
}

// Archive implements Archiver.
func (a *GCSArchiver) Archive(ctx context.Context, run *models.Run) error {
	if run.Form == nil {
		return fmt.Errorf("run %s has no form to archive", run.ID)
	}
	snapshot := struct {
		RunID string             `json:"runId"`
		AckID string             `json:"ackId"`
		Form  *models.FilingForm `json:"form"`
	}{RunID: run.ID, AckID: run.AckID, Form: run.Form}

	raw, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode form snapshot: %w", err)
	}

	objectName := fmt.Sprintf("filed/%s/%s.json", run.ID, run.AckID)
	if err := gcp.SaveToGCSAtomically(ctx, a.bucket, objectName, string(raw)); err != nil {
		return fmt.Errorf("failed to archive form snapshot: %w", err)
	}
	return nil
}
