// Package services contains the filing pipeline: the nine stages, the
// orchestrator that sequences them, and the API surface that drives it.
package services

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"

	"github.com/Lllllllleong/taxfilingflow/internal/models"
)

// Stage names as recorded on steps and in Run.SuspendedAfter.
const (
	StageClassify  = "classify"
	StageExtract   = "extract"
	StageAggregate = "aggregate"
	StageDeduct    = "deduct"
	StageCompute   = "compute"
	StageAssemble  = "assemble"
	StageConsensus = "consensus"
	StageVerify    = "verify"
	StageAdvise    = "advise"
)

// StageOutcome tells the orchestrator how to proceed after a stage attempt.
type StageOutcome int

const (
	// OutcomeContinue advances to the next stage. A stage that fell back to
	// its deterministic path still continues; the fallback is recorded on
	// the step, not in the outcome.
	OutcomeContinue StageOutcome = iota
	// OutcomeNeedsReview suspends the run for human correction.
	OutcomeNeedsReview
	// OutcomeFatal marks the run FAILED. Reserved for orchestration bugs
	// and structurally impossible states, never for bad input data.
	OutcomeFatal
)

// StageResult is what a stage hands back to the orchestrator.
type StageResult struct {
	Outcome StageOutcome
	Summary string
	Details map[string]any
	// Reason is the actionable suspension or failure reason. Required for
	// NeedsReview and Fatal outcomes.
	Reason string
	// Skipped marks a stage that had nothing to do, such as classification
	// on a manual-figures run. The step is recorded as SKIPPED.
	Skipped bool
}

// Stage is one unit of the pipeline. Execute mutates the working state in
// place; a returned error is treated as Fatal.
type Stage interface {
	Name() string
	Execute(ctx context.Context, state *WorkingState) (StageResult, error)
}

// ExtractedFields is the per-document extraction output. Field confidences
// are keyed by the JSON field name; a missing key means the field was not
// present in the document at all.
type ExtractedFields struct {
	Salary          int64              `json:"salary"`
	TDSSalary       int64              `json:"tdsSalary"`
	InterestIncome  int64              `json:"interestIncome"`
	TDSInterest     int64              `json:"tdsInterest"`
	Section80C      int64              `json:"section80c"`
	Section80D      int64              `json:"section80d"`
	BasicSalary     int64              `json:"basicSalary"`
	HRAReceived     int64              `json:"hraReceived"`
	RentPaid        int64              `json:"rentPaid"`
	FieldConfidence map[string]float64 `json:"fieldConfidence"`
	ViaModel        bool               `json:"viaModel"`
}

// WorkingState is the single mutable record threaded through the stages of
// one execution. It is rebuilt from the run snapshots on resume, with
// reviewer corrections applied before the first re-executed stage.
type WorkingState struct {
	RunID    string                 `json:"runId"`
	Taxpayer models.TaxpayerProfile `json:"taxpayer"`

	// Inputs.
	DocumentInputs []models.DocumentInput `json:"documentInputs,omitempty"`
	Figures        *models.ManualFigures  `json:"figures,omitempty"`

	// Reviewer corrections, present only on a resumed execution.
	CorrectedIncome     *models.ManualFigures `json:"correctedIncome,omitempty"`
	CorrectedDeductions *models.ManualFigures `json:"correctedDeductions,omitempty"`

	// Stage outputs.
	Documents   []models.DocumentRecord  `json:"documents,omitempty"`
	Extracted   []ExtractedFields        `json:"extracted,omitempty"`
	Salary      *models.SalaryStructure  `json:"salaryStructure,omitempty"`
	Income      []models.IncomeRecord    `json:"income,omitempty"`
	Claims      models.DeductionClaims   `json:"claims"`
	Deductions  []models.DeductionRecord `json:"deductions,omitempty"`
	Computation *models.TaxComputation   `json:"computation,omitempty"`
	Form        *models.FilingForm       `json:"form,omitempty"`
	AckID       string                   `json:"ackId,omitempty"`
	Tips        []models.TaxTip          `json:"tips,omitempty"`
}

// Digest returns the SHA-256 hex of the canonical JSON encoding of v. Used
// for step input/output digests so a reviewer can tell whether a re-executed
// stage saw or produced different data.
func Digest(v any) string {
	raw, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	sum := sha256.Sum256(raw)
	return fmt.Sprintf("%x", sum)
}
