package models

import "time"

// RunStatus is the filing lifecycle state of a Run.
// PENDING -> PROCESSING -> {NEEDS_REVIEW <-> PROCESSING} -> FILED -> E_VERIFIED,
// with FAILED reachable from any state on an unrecoverable error.
type RunStatus string

const (
	StatusPending     RunStatus = "PENDING"
	StatusProcessing  RunStatus = "PROCESSING"
	StatusNeedsReview RunStatus = "NEEDS_REVIEW"
	StatusFiled       RunStatus = "FILED"
	StatusEVerified   RunStatus = "E_VERIFIED"
	StatusFailed      RunStatus = "FAILED"
)

// Terminal reports whether no further stage may execute for this status.
func (s RunStatus) Terminal() bool {
	return s == StatusEVerified || s == StatusFailed
}

// TaxRegime selects one of the two mutually exclusive statutory regimes.
type TaxRegime string

const (
	RegimeOld TaxRegime = "OLD"
	RegimeNew TaxRegime = "NEW"
)

// Other returns the regime this one is compared against.
func (r TaxRegime) Other() TaxRegime {
	if r == RegimeOld {
		return RegimeNew
	}
	return RegimeOld
}

// TaxpayerProfile identifies the filer. PAN is the structural tax identifier
// validated by the verification stage; it is never auto-corrected.
type TaxpayerProfile struct {
	Name          string    `json:"name" firestore:"name"`
	PAN           string    `json:"pan" firestore:"pan"`
	Age           int       `json:"age" firestore:"age"`
	Regime        TaxRegime `json:"regime" firestore:"regime"`
	FinancialYear string    `json:"financialYear" firestore:"financialYear"`
}

// Run is one filing attempt. It is owned exclusively by the orchestrator:
// created on pipeline start, mutated only by stage transitions, never deleted.
type Run struct {
	ID             string          `json:"runId" firestore:"runId"`
	Taxpayer       TaxpayerProfile `json:"taxpayer" firestore:"taxpayer"`
	Status         RunStatus       `json:"status" firestore:"status"`
	SuspendReason  string          `json:"suspendReason,omitempty" firestore:"suspendReason,omitempty"`
	SuspendedAfter string          `json:"suspendedAfter,omitempty" firestore:"suspendedAfter,omitempty"`
	AckID          string          `json:"ackId,omitempty" firestore:"ackId,omitempty"`
	CreatedAt      time.Time       `json:"createdAt" firestore:"createdAt"`
	UpdatedAt      time.Time       `json:"updatedAt" firestore:"updatedAt"`

	// Section snapshots for get_run, restored into the working state on
	// resume. A reviewer correction replaces only the figures it names;
	// everything else here must survive a suspension unchanged.
	Documents   []DocumentRecord  `json:"documents,omitempty" firestore:"documents,omitempty"`
	Figures     *ManualFigures    `json:"figures,omitempty" firestore:"figures,omitempty"`
	Salary      *SalaryStructure  `json:"salaryStructure,omitempty" firestore:"salaryStructure,omitempty"`
	Claims      *DeductionClaims  `json:"claims,omitempty" firestore:"claims,omitempty"`
	Income      []IncomeRecord    `json:"income,omitempty" firestore:"income,omitempty"`
	Deductions  []DeductionRecord `json:"deductions,omitempty" firestore:"deductions,omitempty"`
	Computation *TaxComputation   `json:"computation,omitempty" firestore:"computation,omitempty"`
	Form        *FilingForm       `json:"form,omitempty" firestore:"form,omitempty"`
	Tips        []TaxTip          `json:"tips,omitempty" firestore:"tips,omitempty"`
}

// StepStatus is the outcome of one stage attempt.
type StepStatus string

const (
	StepSuccess StepStatus = "SUCCESS"
	StepFailed  StepStatus = "FAILED"
	StepSkipped StepStatus = "SKIPPED"
)

// Step records one executed or attempted stage within a run. Steps are
// append-only and totally ordered by Seq; a resumed run appends new steps
// rather than mutating old ones.
type Step struct {
	RunID        string         `json:"runId" firestore:"runId"`
	Seq          int            `json:"seq" firestore:"seq"`
	Stage        string         `json:"stage" firestore:"stage"`
	Status       StepStatus     `json:"status" firestore:"status"`
	InputDigest  string         `json:"inputDigest,omitempty" firestore:"inputDigest,omitempty"`
	OutputDigest string         `json:"outputDigest,omitempty" firestore:"outputDigest,omitempty"`
	Summary      string         `json:"summary,omitempty" firestore:"summary,omitempty"`
	Details      map[string]any `json:"details,omitempty" firestore:"details,omitempty"`
	Error        string         `json:"error,omitempty" firestore:"error,omitempty"`
	StartedAt    time.Time      `json:"startedAt" firestore:"startedAt"`
	FinishedAt   time.Time      `json:"finishedAt" firestore:"finishedAt"`
}

// TaxTip is a rule-derived saving suggestion attached to a completed run.
type TaxTip struct {
	Category        string `json:"category" firestore:"category"`
	Message         string `json:"message" firestore:"message"`
	PotentialSaving int64  `json:"potentialSaving,omitempty" firestore:"potentialSaving,omitempty"`
}
