package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Lllllllleong/taxfilingflow/internal/inference"
	"github.com/Lllllllleong/taxfilingflow/internal/models"
	"github.com/Lllllllleong/taxfilingflow/internal/rules"
	"github.com/Lllllllleong/taxfilingflow/internal/store"
)

// ErrRunBusy is returned when a second execution is requested for a run
// that is already executing.
var ErrRunBusy = errors.New("run is already executing")

// ErrNotReviewable is returned when resume is requested for a run that is
// not suspended for review.
var ErrNotReviewable = errors.New("run is not awaiting review")

// ErrInvalidRequest marks a request rejected before any run was created.
var ErrInvalidRequest = errors.New("invalid request")

// Archiver persists an external snapshot of a filed return. Archiving is
// best-effort: a failure is logged, never surfaced into the run state.
type Archiver interface {
	Archive(ctx context.Context, run *models.Run) error
}

// InferenceClients bundles the per-purpose inference models. Any of them
// may be nil; the owning stage then uses only its deterministic path.
type InferenceClients struct {
	Classifier inference.Client
	Extractor  inference.Client
	Validator  inference.Client
	Tips       inference.Client
}

// Orchestrator owns the run lifecycle. It executes the ordered stage list,
// persists one step per stage attempt before advancing, applies the outcome
// policy uniformly, and serializes executions per run.
type Orchestrator struct {
	store    store.Store
	stages   []Stage
	archiver Archiver
	now      func() time.Time

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewOrchestrator builds an orchestrator over the given store and stage
// list. The archiver may be nil.
func NewOrchestrator(s store.Store, stages []Stage, archiver Archiver) *Orchestrator {
	return &Orchestrator{
		store:    s,
		stages:   stages,
		archiver: archiver,
		now:      time.Now,
		locks:    make(map[string]*sync.Mutex),
	}
}

// DefaultStages returns the standard pipeline in execution order.
func DefaultStages(s store.Store, clients InferenceClients, policy rules.Policy, otp OTPConfirmer) []Stage {
	return []Stage{
		NewClassifier(clients.Classifier, policy),
		NewExtractor(clients.Extractor, policy),
		NewAggregator(clients.Validator, policy),
		NewDeductionEngine(),
		NewTaxCalculator(),
		NewFormAssembler(),
		NewConsensusValidator(s),
		NewVerifier(otp),
		NewAdvisor(clients.Tips),
	}
}

// Start creates a run for the request and executes the pipeline to
// completion, suspension, or failure. The run identifier is returned even
// when the run did not reach a filed state; its status tells the caller
// what happened.
func (o *Orchestrator) Start(ctx context.Context, req *models.CreateRunRequest) (string, error) {
	if err := validateCreate(req); err != nil {
		return "", err
	}

	taxpayer := req.Taxpayer
	if taxpayer.Regime == "" {
		taxpayer.Regime = models.RegimeNew
	}
	if taxpayer.FinancialYear == "" {
		taxpayer.FinancialYear = "2024-25"
	}

	now := o.now().UTC()
	run := &models.Run{
		ID:        uuid.NewString(),
		Taxpayer:  taxpayer,
		Status:    models.StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := o.store.CreateRun(ctx, run); err != nil {
		return "", fmt.Errorf("failed to create run: %w", err)
	}

	lock := o.lockFor(run.ID)
	if !lock.TryLock() {
		return "", ErrRunBusy
	}
	defer func() {
		lock.Unlock()
		o.releaseLock(run.ID, run.Status)
	}()

	state := &WorkingState{
		RunID:          run.ID,
		Taxpayer:       taxpayer,
		DocumentInputs: req.Documents,
		Figures:        req.Figures,
	}

	run.Status = models.StatusProcessing
	if err := o.saveRun(ctx, run); err != nil {
		return run.ID, err
	}
	if err := o.execute(ctx, run, state, 0, 1); err != nil {
		return run.ID, err
	}
	return run.ID, nil
}

// Resume continues a suspended run with the reviewer's corrections. Only a
// run in NEEDS_REVIEW may resume; execution restarts at the stage that
// suspended, with fresh steps appended after the existing history.
func (o *Orchestrator) Resume(ctx context.Context, runID string, req *models.ResumeRunRequest) (*models.RunResponse, error) {
	lock := o.lockFor(runID)
	if !lock.TryLock() {
		return nil, ErrRunBusy
	}
	var run *models.Run
	defer func() {
		lock.Unlock()
		if run != nil {
			o.releaseLock(runID, run.Status)
		}
	}()

	run, err := o.store.GetRun(ctx, runID)
	if err != nil {
		return nil, err
	}
	if run.Status != models.StatusNeedsReview {
		return nil, fmt.Errorf("%w: run %s is %s", ErrNotReviewable, runID, run.Status)
	}

	steps, err := o.store.ListSteps(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to load step history: %w", err)
	}
	nextSeq := 1
	for _, step := range steps {
		if step.Seq >= nextSeq {
			nextSeq = step.Seq + 1
		}
	}

	state := &WorkingState{
		RunID:               run.ID,
		Taxpayer:            run.Taxpayer,
		Figures:             run.Figures,
		Documents:           run.Documents,
		Salary:              run.Salary,
		Income:              run.Income,
		Deductions:          run.Deductions,
		Computation:         run.Computation,
		Form:                run.Form,
		CorrectedIncome:     req.CorrectedIncome,
		CorrectedDeductions: req.CorrectedDeductions,
	}
	if run.Claims != nil {
		state.Claims = *run.Claims
	}

	startIdx := o.stageIndexAfter(run.SuspendedAfter)
	run.Status = models.StatusProcessing
	run.SuspendReason = ""
	run.SuspendedAfter = ""
	if err := o.saveRun(ctx, run); err != nil {
		return nil, err
	}
	if err := o.execute(ctx, run, state, startIdx, nextSeq); err != nil {
		return nil, err
	}
	return o.Get(ctx, runID)
}

// Get returns the full run state with its ordered step history.
func (o *Orchestrator) Get(ctx context.Context, runID string) (*models.RunResponse, error) {
	run, err := o.store.GetRun(ctx, runID)
	if err != nil {
		return nil, err
	}
	steps, err := o.store.ListSteps(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to load step history: %w", err)
	}
	return &models.RunResponse{Run: run, Steps: steps}, nil
}

// List returns summaries for all runs, most recent first.
func (o *Orchestrator) List(ctx context.Context) ([]models.RunSummary, error) {
	return o.store.ListRuns(ctx)
}

// execute drives stages[startIdx:] against the working state, persisting one
// step per attempt before any further stage runs. A returned error means
// persistence itself failed; every pipeline outcome, including FAILED, is
// recorded on the run and returns nil.
func (o *Orchestrator) execute(ctx context.Context, run *models.Run, state *WorkingState, startIdx, nextSeq int) error {
	logCtx := slog.With("runId", run.ID)
	lastSuccessful := ""
	if startIdx > 0 {
		lastSuccessful = o.stages[startIdx-1].Name()
	}

	for i := startIdx; i < len(o.stages); i++ {
		stage := o.stages[i]
		started := o.now().UTC()
		inputDigest := Digest(state)

		result, err := stage.Execute(ctx, state)

		step := &models.Step{
			RunID:        run.ID,
			Seq:          nextSeq,
			Stage:        stage.Name(),
			InputDigest:  inputDigest,
			OutputDigest: Digest(state),
			Summary:      result.Summary,
			Details:      result.Details,
			StartedAt:    started,
			FinishedAt:   o.now().UTC(),
		}
		nextSeq++

		if err != nil {
			return o.failRun(ctx, run, step, fmt.Sprintf("stage %s failed: %v", stage.Name(), err))
		}

		switch result.Outcome {
		case OutcomeFatal:
			return o.failRun(ctx, run, step, result.Reason)

		case OutcomeNeedsReview:
			step.Status = models.StepFailed
			step.Error = result.Reason
			if err := o.store.AppendStep(ctx, step); err != nil {
				return fmt.Errorf("failed to append step: %w", err)
			}
			o.syncSnapshots(run, state)
			run.Status = models.StatusNeedsReview
			run.SuspendReason = result.Reason
			run.SuspendedAfter = lastSuccessful
			logCtx.Warn("Run suspended for review.", "stage", stage.Name(), "reason", result.Reason)
			return o.saveRun(ctx, run)

		default:
			step.Status = models.StepSuccess
			if result.Skipped {
				step.Status = models.StepSkipped
			}
			if err := o.store.AppendStep(ctx, step); err != nil {
				return fmt.Errorf("failed to append step: %w", err)
			}
			lastSuccessful = stage.Name()
			o.syncSnapshots(run, state)
			if stage.Name() == StageVerify {
				run.AckID = state.AckID
				run.Status = models.StatusFiled
				o.archive(ctx, logCtx, run)
			}
			if err := o.saveRun(ctx, run); err != nil {
				return err
			}
			logCtx.Info("Stage complete.", "stage", stage.Name(), "summary", result.Summary)
		}
	}

	run.Status = models.StatusEVerified
	if err := o.saveRun(ctx, run); err != nil {
		return err
	}
	logCtx.Info("Run complete.", "ackId", run.AckID)
	return nil
}

func (o *Orchestrator) failRun(ctx context.Context, run *models.Run, step *models.Step, reason string) error {
	step.Status = models.StepFailed
	step.Error = reason
	if err := o.store.AppendStep(ctx, step); err != nil {
		return fmt.Errorf("failed to append step: %w", err)
	}
	run.Status = models.StatusFailed
	run.SuspendReason = reason
	slog.With("runId", run.ID).Error("Run failed.", "stage", step.Stage, "reason", reason)
	return o.saveRun(ctx, run)
}

// syncSnapshots copies the stage outputs onto the run record, both for
// get_run and so a resumed execution can restore its working state.
func (o *Orchestrator) syncSnapshots(run *models.Run, state *WorkingState) {
	if state.Figures != nil {
		run.Figures = state.Figures
	}
	if state.Documents != nil {
		run.Documents = state.Documents
	}
	if state.Salary != nil {
		run.Salary = state.Salary
	}
	if state.Claims != (models.DeductionClaims{}) {
		claims := state.Claims
		run.Claims = &claims
	}
	if state.Income != nil {
		run.Income = state.Income
	}
	if state.Deductions != nil {
		run.Deductions = state.Deductions
	}
	if state.Computation != nil {
		run.Computation = state.Computation
	}
	if state.Form != nil {
		run.Form = state.Form
	}
	if state.Tips != nil {
		run.Tips = state.Tips
	}
}

func (o *Orchestrator) saveRun(ctx context.Context, run *models.Run) error {
	run.UpdatedAt = o.now().UTC()
	if err := o.store.UpdateRun(ctx, run); err != nil {
		return fmt.Errorf("failed to update run: %w", err)
	}
	return nil
}

func (o *Orchestrator) archive(ctx context.Context, logCtx *slog.Logger, run *models.Run) {
	if o.archiver == nil {
		return
	}
	if err := o.archiver.Archive(ctx, run); err != nil {
		logCtx.Warn("Failed to archive filed form snapshot.", "error", err)
	}
}

// stageIndexAfter maps the recorded suspension point back to the index the
// resumed execution starts from. An empty name restarts from the beginning.
func (o *Orchestrator) stageIndexAfter(lastSuccessful string) int {
	if lastSuccessful == "" {
		return 0
	}
	for i, stage := range o.stages {
		if stage.Name() == lastSuccessful {
			return i + 1
		}
	}
	return 0
}

// releaseLock drops a terminal run's lock entry so the map does not grow
// with every run ever filed. A terminal run never executes again, so a
// later caller getting a fresh mutex cannot admit a concurrent execution.
func (o *Orchestrator) releaseLock(runID string, status models.RunStatus) {
	if !status.Terminal() {
		return
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.locks, runID)
}

func (o *Orchestrator) lockFor(runID string) *sync.Mutex {
	o.mu.Lock()
	defer o.mu.Unlock()
	lock, ok := o.locks[runID]
	if !ok {
		lock = &sync.Mutex{}
		o.locks[runID] = lock
	}
	return lock
}

func validateCreate(req *models.CreateRunRequest) error {
	if req.Taxpayer.Name == "" {
		return fmt.Errorf("%w: taxpayer name is required", ErrInvalidRequest)
	}
	if req.Taxpayer.Regime != "" && req.Taxpayer.Regime != models.RegimeOld && req.Taxpayer.Regime != models.RegimeNew {
		return fmt.Errorf("%w: unknown tax regime %q", ErrInvalidRequest, req.Taxpayer.Regime)
	}
	if len(req.Documents) == 0 && req.Figures == nil {
		return fmt.Errorf("%w: either documents or manual figures must be supplied", ErrInvalidRequest)
	}
	for _, doc := range req.Documents {
		if doc.Filename == "" {
			return fmt.Errorf("%w: every document needs a filename", ErrInvalidRequest)
		}
	}
	return nil
}
