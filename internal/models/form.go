package models

// FilingForm is the canonical return snapshot assembled from the computed
// sections. It is a pure structural mapping; all arithmetic lives in the
// tax computation and is only copied here.
type FilingForm struct {
	FormType             string               `json:"formType" firestore:"formType"`
	PartA                FormPartA            `json:"partA" firestore:"partA"`
	ScheduleSalary       ScheduleSalary       `json:"scheduleSalary" firestore:"scheduleSalary"`
	ScheduleOtherSources ScheduleOtherSources `json:"scheduleOtherSources" firestore:"scheduleOtherSources"`
	ScheduleDeductions   ScheduleDeductions   `json:"scheduleDeductions" firestore:"scheduleDeductions"`
	ScheduleTax          ScheduleTax          `json:"scheduleTax" firestore:"scheduleTax"`
}

// FormPartA carries the personal information section.
type FormPartA struct {
	Name           string `json:"name" firestore:"name"`
	PAN            string `json:"pan" firestore:"pan"`
	Age            int    `json:"age" firestore:"age"`
	FinancialYear  string `json:"financialYear" firestore:"financialYear"`
	AssessmentYear string `json:"assessmentYear" firestore:"assessmentYear"`
}

// ScheduleSalary is the salary income schedule.
type ScheduleSalary struct {
	GrossSalary       int64 `json:"grossSalary" firestore:"grossSalary"`
	StandardDeduction int64 `json:"standardDeduction" firestore:"standardDeduction"`
	NetSalary         int64 `json:"netSalary" firestore:"netSalary"`
}

// ScheduleOtherSources is the income-from-other-sources schedule.
type ScheduleOtherSources struct {
	InterestIncome int64 `json:"interestIncome" firestore:"interestIncome"`
	OtherIncome    int64 `json:"otherIncome" firestore:"otherIncome"`
	Total          int64 `json:"total" firestore:"total"`
}

// ScheduleDeductions lists each applied section claim.
type ScheduleDeductions struct {
	Entries []DeductionRecord `json:"entries" firestore:"entries"`
	Total   int64             `json:"total" firestore:"total"`
}

// ScheduleTax is the tax computation schedule of the form.
type ScheduleTax struct {
	GrossTotalIncome int64 `json:"grossTotalIncome" firestore:"grossTotalIncome"`
	TotalDeductions  int64 `json:"totalDeductions" firestore:"totalDeductions"`
	TaxableIncome    int64 `json:"taxableIncome" firestore:"taxableIncome"`
	TaxBeforeCess    int64 `json:"taxBeforeCess" firestore:"taxBeforeCess"`
	Rebate           int64 `json:"rebate" firestore:"rebate"`
	Cess             int64 `json:"cess" firestore:"cess"`
	TotalLiability   int64 `json:"totalLiability" firestore:"totalLiability"`
	TotalTDS         int64 `json:"totalTds" firestore:"totalTds"`
	Refund           int64 `json:"refund" firestore:"refund"`
	Payable          int64 `json:"payable" firestore:"payable"`
}
