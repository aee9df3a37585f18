package services

import (
	"context"
	"fmt"

	"github.com/Lllllllleong/taxfilingflow/internal/models"
	"github.com/Lllllllleong/taxfilingflow/internal/rules"
)

// FormAssembler maps the computed sections onto the canonical return form.
// It is a pure structural transform: every figure is copied, none derived.
// A missing upstream section here means the orchestrator sequenced stages
// wrongly, which is fatal rather than reviewable.
type FormAssembler struct{}

// NewFormAssembler builds the assembly stage.
func NewFormAssembler() *FormAssembler { return &FormAssembler{} }

func (f *FormAssembler) Name() string { return StageAssemble }

// Execute implements Stage.
func (f *FormAssembler) Execute(ctx context.Context, state *WorkingState) (StageResult, error) {
	if state.Computation == nil {
		return StageResult{
			Outcome: OutcomeFatal,
			Summary: "tax computation missing at assembly",
			Reason:  "form assembly reached without a tax computation",
		}, nil
	}
	if len(state.Income) == 0 {
		return StageResult{
			Outcome: OutcomeFatal,
			Summary: "income section missing at assembly",
			Reason:  "form assembly reached without aggregated income",
		}, nil
	}

	comp := state.Computation

	var salary, interest, other int64
	for _, rec := range state.Income {
		switch rec.Category {
		case models.IncomeSalary:
			salary += rec.Amount
		case models.IncomeInterest:
			interest += rec.Amount
		default:
			other += rec.Amount
		}
	}

	var standardDeduction, totalDeductions int64
	for _, rec := range state.Deductions {
		totalDeductions += rec.Applied
		if rec.Section == rules.SectionStandard {
			standardDeduction = rec.Applied
		}
	}

	state.Form = &models.FilingForm{
		FormType: "ITR-1",
		PartA: models.FormPartA{
			Name:           state.Taxpayer.Name,
			PAN:            state.Taxpayer.PAN,
			Age:            state.Taxpayer.Age,
			FinancialYear:  state.Taxpayer.FinancialYear,
			AssessmentYear: rules.AssessmentYear(state.Taxpayer.FinancialYear),
		},
		ScheduleSalary: models.ScheduleSalary{
			GrossSalary:       salary,
			StandardDeduction: standardDeduction,
			NetSalary:         salary - standardDeduction,
		},
		ScheduleOtherSources: models.ScheduleOtherSources{
			InterestIncome: interest,
			OtherIncome:    other,
			Total:          interest + other,
		},
		ScheduleDeductions: models.ScheduleDeductions{
			Entries: state.Deductions,
			Total:   totalDeductions,
		},
		ScheduleTax: models.ScheduleTax{
			GrossTotalIncome: comp.GrossTotalIncome,
			TotalDeductions:  comp.TotalDeductions,
			TaxableIncome:    comp.TaxableIncome,
			TaxBeforeCess:    comp.TaxBeforeCess,
			Rebate:           comp.Rebate,
			Cess:             comp.Cess,
			TotalLiability:   comp.TotalLiability,
			TotalTDS:         comp.TotalTDS,
			Refund:           comp.Refund,
			Payable:          comp.Payable,
		},
	}

	return StageResult{
		Outcome: OutcomeContinue,
		Summary: fmt.Sprintf("assembled %s for assessment year %s", state.Form.FormType, state.Form.PartA.AssessmentYear),
		Details: map[string]any{
			"formType":       state.Form.FormType,
			"assessmentYear": state.Form.PartA.AssessmentYear,
		},
	}, nil
}
