package models

// IncomeCategory groups income streams for aggregation and slab purposes.
type IncomeCategory string

const (
	IncomeSalary   IncomeCategory = "SALARY"
	IncomeInterest IncomeCategory = "INTEREST"
	IncomeOther    IncomeCategory = "OTHER"
)

// IncomeRecord is aggregated income for one category, traceable to the
// extraction step that produced it. Amounts are whole rupees.
type IncomeRecord struct {
	Category    IncomeCategory `json:"category" firestore:"category"`
	Amount      int64          `json:"amount" firestore:"amount"`
	TDS         int64          `json:"tds" firestore:"tds"`
	SourceStage string         `json:"sourceStage" firestore:"sourceStage"`
	Confidence  float64        `json:"confidence" firestore:"confidence"`
}

// DeductionRecord is one statutory section's claim after cap application.
type DeductionRecord struct {
	Section     string `json:"section" firestore:"section"`
	Claimed     int64  `json:"claimed" firestore:"claimed"`
	Applied     int64  `json:"applied" firestore:"applied"`
	Cap         int64  `json:"cap" firestore:"cap"`
	Explanation string `json:"explanation" firestore:"explanation"`
}

// SalaryStructure is the salary breakdown needed for the HRA exemption
// formula, populated by extraction when the certificate states it.
type SalaryStructure struct {
	Basic       int64 `json:"basic" firestore:"basic"`
	HRAReceived int64 `json:"hraReceived" firestore:"hraReceived"`
	RentPaid    int64 `json:"rentPaid" firestore:"rentPaid"`
	Metro       bool  `json:"metro" firestore:"metro"`
}

// DeductionClaims are the raw section claims before cap application.
type DeductionClaims struct {
	Section80C      int64 `json:"section80c" firestore:"section80c"`
	Section80D      int64 `json:"section80d" firestore:"section80d"`
	HRAExemption    int64 `json:"hraExemption" firestore:"hraExemption"`
	OtherDeductions int64 `json:"otherDeductions" firestore:"otherDeductions"`
}

// SlabLine is one band of the progressive tax breakdown. Upper == 0 means
// the band is unbounded above.
type SlabLine struct {
	Lower  int64   `json:"lower" firestore:"lower"`
	Upper  int64   `json:"upper" firestore:"upper"`
	Rate   float64 `json:"rate" firestore:"rate"`
	Income int64   `json:"income" firestore:"income"`
	Tax    int64   `json:"tax" firestore:"tax"`
}

// RegimeComparison is the independently computed figure for the regime the
// taxpayer did not elect, reported for comparison only.
type RegimeComparison struct {
	Regime         TaxRegime `json:"regime" firestore:"regime"`
	TaxableIncome  int64     `json:"taxableIncome" firestore:"taxableIncome"`
	TotalLiability int64     `json:"totalLiability" firestore:"totalLiability"`
	Refund         int64     `json:"refund" firestore:"refund"`
	Payable        int64     `json:"payable" firestore:"payable"`
	Recommended    TaxRegime `json:"recommended" firestore:"recommended"`
	Delta          int64     `json:"delta" firestore:"delta"`
}

// TaxComputation is the full liability derivation for the elected regime.
// Exactly one of Refund and Payable is non-zero unless both are zero.
type TaxComputation struct {
	Regime           TaxRegime         `json:"regime" firestore:"regime"`
	GrossTotalIncome int64             `json:"grossTotalIncome" firestore:"grossTotalIncome"`
	TotalDeductions  int64             `json:"totalDeductions" firestore:"totalDeductions"`
	TaxableIncome    int64             `json:"taxableIncome" firestore:"taxableIncome"`
	Slabs            []SlabLine        `json:"slabs" firestore:"slabs"`
	TaxBeforeCess    int64             `json:"taxBeforeCess" firestore:"taxBeforeCess"`
	Rebate           int64             `json:"rebate" firestore:"rebate"`
	Cess             int64             `json:"cess" firestore:"cess"`
	TotalLiability   int64             `json:"totalLiability" firestore:"totalLiability"`
	TotalTDS         int64             `json:"totalTds" firestore:"totalTds"`
	Refund           int64             `json:"refund" firestore:"refund"`
	Payable          int64             `json:"payable" firestore:"payable"`
	Alternate        *RegimeComparison `json:"alternate,omitempty" firestore:"alternate,omitempty"`
}
