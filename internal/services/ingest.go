package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"path"
	"strings"

	"cloud.google.com/go/storage"
	"golang.org/x/sync/errgroup"
	"google.golang.org/api/iterator"

	"github.com/Lllllllleong/taxfilingflow/internal/extraction"
	"github.com/Lllllllleong/taxfilingflow/internal/gcp"
	"github.com/Lllllllleong/taxfilingflow/internal/models"
	"github.com/Lllllllleong/taxfilingflow/internal/rules"
	"github.com/Lllllllleong/taxfilingflow/internal/store"
)

// manifestName is the object that completes an upload folder. Documents
// uploaded next to it are the filing's inputs; the manifest itself carries
// the taxpayer profile. Ingestion triggers only on the manifest so partial
// uploads never start a run.
const manifestName = "taxpayer.json"

// GCSEvent is the payload of a Cloud Storage object-finalized event.
type GCSEvent struct {
	Bucket string `json:"bucket"`
	Name   string `json:"name"`
}

// IngestConfig holds configuration for the document ingestion service.
type IngestConfig struct {
	ProjectID      string
	VertexAIRegion string
	RunsCollection string
	UploadsPrefix  string
}

// IngestFunction turns a completed upload folder into a filing run: it
// downloads each document, extracts its text, and starts the pipeline.
type IngestFunction struct {
	storageClient *storage.Client
	extractor     extraction.Extractor
	orchestrator  *Orchestrator
	config        IngestConfig
}

// NewIngest wires the ingestion service.
func NewIngest(ctx context.Context) (*IngestFunction, error) {
	projectID := gcp.GetEnv("GOOGLE_CLOUD_PROJECT_ID", "")
	if projectID == "" {
		return nil, fmt.Errorf("GOOGLE_CLOUD_PROJECT_ID environment variable must be set")
	}

	config := IngestConfig{
		ProjectID:      projectID,
		VertexAIRegion: gcp.GetEnv("VERTEX_AI_REGION", "us-central1"),
		RunsCollection: gcp.GetEnv("RUNS_COLLECTION", "runs"),
		UploadsPrefix:  gcp.GetEnv("UPLOADS_PREFIX", "uploads/"),
	}

	storageClient, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage client: %w", err)
	}
	firestoreClient, err := gcp.NewFirestoreClient(ctx, config.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("failed to create firestore client: %w", err)
	}

	runStore := store.NewFirestore(firestoreClient, config.RunsCollection)
	policy := rules.DefaultPolicy()
	clients := buildInferenceClients(ctx, FilingAPIConfig{ProjectID: config.ProjectID, VertexAIRegion: config.VertexAIRegion}, policy)

	return &IngestFunction{
		storageClient: storageClient,
		extractor:     extraction.PDF{},
		orchestrator:  NewOrchestrator(runStore, DefaultStages(runStore, clients, policy, nil), nil),
		config:        config,
	}, nil
}

// Process handles one object-finalized event. Only the manifest object
// triggers a run; every other upload is left for the manifest to claim.
func (f *IngestFunction) Process(ctx context.Context, event GCSEvent) error {
	if !strings.HasPrefix(event.Name, f.config.UploadsPrefix) {
		return nil
	}
	if path.Base(event.Name) != manifestName {
		slog.Debug("Upload recorded, waiting for manifest.", "object", event.Name)
		return nil
	}

	logCtx := slog.With("bucket", event.Bucket, "folder", path.Dir(event.Name))
	logCtx.Info("Manifest received, starting ingestion.")

	bucket := f.storageClient.Bucket(event.Bucket)
	taxpayer, err := f.readManifest(ctx, bucket, event.Name)
	if err != nil {
		logCtx.Error("Failed to read taxpayer manifest.", "error", err)
		return err
	}

	documents, err := f.extractFolder(ctx, logCtx, bucket, path.Dir(event.Name))
	if err != nil {
		return err
	}
	if len(documents) == 0 {
		logCtx.Warn("Manifest folder holds no readable documents, not starting a run.")
		return nil
	}

	runID, err := f.orchestrator.Start(ctx, &models.CreateRunRequest{
		Taxpayer:  taxpayer,
		Documents: documents,
	})
	if err != nil {
		logCtx.Error("Failed to start filing run.", "error", err)
		return fmt.Errorf("failed to start filing run: %w", err)
	}
	logCtx.Info("Filing run started from upload folder.", "runId", runID, "documentCount", len(documents))
	return nil
}

func (f *IngestFunction) readManifest(ctx context.Context, bucket *storage.BucketHandle, objectName string) (models.TaxpayerProfile, error) {
	var taxpayer models.TaxpayerProfile
	raw, err := gcp.ReadGCSObject(ctx, bucket, objectName)
	if err != nil {
		return taxpayer, err
	}
	if err := json.Unmarshal(raw, &taxpayer); err != nil {
		return taxpayer, fmt.Errorf("failed to parse taxpayer manifest: %w", err)
	}
	return taxpayer, nil
}

// extractFolder downloads and extracts every document in the folder
// concurrently. An unreadable document is skipped with a warning rather
// than sinking the whole filing; the pipeline's own review gates catch
// missing income.
func (f *IngestFunction) extractFolder(ctx context.Context, logCtx *slog.Logger, bucket *storage.BucketHandle, folder string) ([]models.DocumentInput, error) {
	var names []string
	it := bucket.Objects(ctx, &storage.Query{Prefix: folder + "/"})
	for {
		attrs, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to list upload folder %s: %w", folder, err)
		}
		if path.Base(attrs.Name) == manifestName || strings.HasSuffix(attrs.Name, "/") {
			continue
		}
		names = append(names, attrs.Name)
	}

	documents := make([]models.DocumentInput, len(names))
	g, groupCtx := errgroup.WithContext(ctx)
	for i, name := range names {
		g.Go(func() error {
			data, err := gcp.ReadGCSObject(groupCtx, bucket, name)
			if err != nil {
				return err
			}
			text, err := f.extractor.Extract(groupCtx, name, data)
			if err != nil {
				if xe, ok := extraction.AsError(err); ok {
					logCtx.Warn("Skipping unreadable document.", "object", name, "reason", xe.Reason)
					return nil
				}
				return err
			}
			documents[i] = models.DocumentInput{Filename: path.Base(name), RawText: text}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("failed to extract upload folder %s: %w", folder, err)
	}

	var out []models.DocumentInput
	for _, doc := range documents {
		if doc.Filename != "" {
			out = append(out, doc)
		}
	}
	return out, nil
}
