package models

// These structs define the JSON payloads for the filing API surface.

// ManualFigures lets a caller supply income and deduction amounts directly,
// bypassing document classification and extraction. Also the shape of the
// corrections supplied on resume.
type ManualFigures struct {
	Salary          int64 `json:"salary"`
	InterestIncome  int64 `json:"interestIncome"`
	OtherIncome     int64 `json:"otherIncome"`
	TDSSalary       int64 `json:"tdsSalary"`
	TDSInterest     int64 `json:"tdsInterest"`
	Section80C      int64 `json:"section80c"`
	Section80D      int64 `json:"section80d"`
	HRAExemption    int64 `json:"hraExemption"`
	OtherDeductions int64 `json:"otherDeductions"`
}

// CreateRunRequest is the input for create_run. Either Documents (raw text
// already extracted upstream) or Figures must be present.
type CreateRunRequest struct {
	Taxpayer  TaxpayerProfile `json:"taxpayer"`
	Documents []DocumentInput `json:"documents,omitempty"`
	Figures   *ManualFigures  `json:"figures,omitempty"`
}

// ResumeRunRequest carries reviewer corrections for a suspended run.
type ResumeRunRequest struct {
	CorrectedIncome     *ManualFigures `json:"correctedIncome,omitempty"`
	CorrectedDeductions *ManualFigures `json:"correctedDeductions,omitempty"`
}

// RunResponse is the full state returned by get_run and resume_run.
type RunResponse struct {
	Run   *Run   `json:"run"`
	Steps []Step `json:"steps"`
}

// RunSummary is one row of list_runs.
type RunSummary struct {
	RunID            string    `json:"runId"`
	TaxpayerName     string    `json:"taxpayerName"`
	PAN              string    `json:"pan"`
	Status           RunStatus `json:"status"`
	GrossTotalIncome int64     `json:"grossTotalIncome"`
	Refund           int64     `json:"refund"`
	Payable          int64     `json:"payable"`
	CreatedAt        string    `json:"createdAt"`
}
