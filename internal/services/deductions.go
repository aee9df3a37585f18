package services

import (
	"context"
	"fmt"

	"github.com/Lllllllleong/taxfilingflow/internal/models"
	"github.com/Lllllllleong/taxfilingflow/internal/rules"
)

// DeductionEngine applies statutory caps to the raw claims. It is pure
// rules: no inference, no environment, fully reproducible from the working
// state.
type DeductionEngine struct{}

// NewDeductionEngine builds the deduction stage.
func NewDeductionEngine() *DeductionEngine { return &DeductionEngine{} }

func (d *DeductionEngine) Name() string { return StageDeduct }

// Execute implements Stage.
func (d *DeductionEngine) Execute(ctx context.Context, state *WorkingState) (StageResult, error) {
	gti := grossTotalIncome(state.Income)
	regime := state.Taxpayer.Regime
	table := rules.ForRegime(regime)

	var records []models.DeductionRecord

	if salary := salaryIncome(state.Income); salary > 0 {
		applied := minInt64(table.StandardDeduction, salary)
		records = append(records, models.DeductionRecord{
			Section: rules.SectionStandard,
			Claimed: table.StandardDeduction,
			Applied: applied,
			Cap:     table.StandardDeduction,
			Explanation: fmt.Sprintf("standard deduction for salaried income under the %s regime",
				regime),
		})
	}

	claims := state.Claims
	if regime == models.RegimeOld {
		if claims.Section80C > 0 {
			records = append(records, cappedRecord(rules.Section80C, claims.Section80C, rules.Cap80C))
		}
		if claims.Section80D > 0 {
			cap := rules.Cap80D
			if state.Taxpayer.Age >= rules.SeniorAge {
				cap = rules.Cap80DSenior
			}
			records = append(records, cappedRecord(rules.Section80D, claims.Section80D, cap))
		}
		if rec, ok := hraRecord(claims.HRAExemption, state.Salary); ok {
			records = append(records, rec)
		}
		if claims.OtherDeductions > 0 {
			records = append(records, models.DeductionRecord{
				Section:     rules.SectionOther,
				Claimed:     claims.OtherDeductions,
				Applied:     claims.OtherDeductions,
				Cap:         claims.OtherDeductions,
				Explanation: "uncapped miscellaneous deductions as claimed",
			})
		}
	} else if claims.Section80C > 0 || claims.Section80D > 0 || claims.HRAExemption > 0 || claims.OtherDeductions > 0 {
		// The new regime permits only the standard deduction. Claims are
		// recorded at zero so the reviewer can see what was forfeited.
		for _, c := range []struct {
			section string
			claimed int64
		}{
			{rules.Section80C, claims.Section80C},
			{rules.Section80D, claims.Section80D},
			{rules.SectionHRA, claims.HRAExemption},
			{rules.SectionOther, claims.OtherDeductions},
		} {
			if c.claimed > 0 {
				records = append(records, models.DeductionRecord{
					Section:     c.section,
					Claimed:     c.claimed,
					Applied:     0,
					Cap:         0,
					Explanation: "not available under the new regime",
				})
			}
		}
	}

	clampAtIncome(records, gti)
	state.Deductions = records

	var total int64
	details := map[string]any{}
	for _, rec := range records {
		total += rec.Applied
		details["applied_"+rec.Section] = rec.Applied
	}
	details["totalDeductions"] = total
	details["grossTotalIncome"] = gti

	return StageResult{
		Outcome: OutcomeContinue,
		Summary: fmt.Sprintf("applied %d deduction section(s) totalling %d under the %s regime", len(records), total, regime),
		Details: details,
	}, nil
}

func cappedRecord(section string, claimed, cap int64) models.DeductionRecord {
	applied := minInt64(claimed, cap)
	explanation := fmt.Sprintf("claimed %d against a cap of %d", claimed, cap)
	if claimed > cap {
		explanation = fmt.Sprintf("claimed %d capped at %d", claimed, cap)
	} else if headroom := cap - claimed; headroom > 0 {
		explanation = fmt.Sprintf("claimed %d, %d of headroom remains under the %d cap", claimed, headroom, cap)
	}
	return models.DeductionRecord{
		Section:     section,
		Claimed:     claimed,
		Applied:     applied,
		Cap:         cap,
		Explanation: explanation,
	}
}

// hraRecord computes the HRA exemption. With a salary structure the
// statutory formula applies: the least of HRA actually received, rent paid
// less 10% of basic, and 50% (metro) or 40% (non-metro) of basic. Without a
// structure the claimed amount stands as-is; there is nothing to cap it
// against.
func hraRecord(claimed int64, salary *models.SalaryStructure) (models.DeductionRecord, bool) {
	if salary == nil || salary.HRAReceived == 0 {
		if claimed <= 0 {
			return models.DeductionRecord{}, false
		}
		return models.DeductionRecord{
			Section:     rules.SectionHRA,
			Claimed:     claimed,
			Applied:     claimed,
			Cap:         claimed,
			Explanation: "claimed exemption accepted as-is; no salary structure available to derive the statutory limit",
		}, true
	}

	basicShare := salary.Basic * 40 / 100
	shareLabel := "40% of basic (non-metro)"
	if salary.Metro {
		basicShare = salary.Basic / 2
		shareLabel = "50% of basic (metro)"
	}
	rentExcess := salary.RentPaid - salary.Basic/10
	if rentExcess < 0 {
		rentExcess = 0
	}
	exempt := minInt64(salary.HRAReceived, minInt64(rentExcess, basicShare))
	if claimed == 0 {
		claimed = exempt
	}
	return models.DeductionRecord{
		Section: rules.SectionHRA,
		Claimed: claimed,
		Applied: minInt64(claimed, exempt),
		Cap:     exempt,
		Explanation: fmt.Sprintf(
			"least of HRA received %d, rent less 10%% of basic %d, and %s %d",
			salary.HRAReceived, rentExcess, shareLabel, basicShare,
		),
	}, true
}

// clampOrder is the fixed reduction order when total deductions would
// exceed gross total income. Lower-priority sections shrink first.
var clampOrder = []string{rules.SectionOther, rules.SectionHRA, rules.Section80D, rules.Section80C, rules.SectionStandard}

// clampAtIncome shrinks applied amounts so their sum never exceeds gross
// total income and no amount goes negative.
func clampAtIncome(records []models.DeductionRecord, gti int64) {
	var total int64
	for _, rec := range records {
		total += rec.Applied
	}
	excess := total - gti
	if excess <= 0 {
		return
	}
	for _, section := range clampOrder {
		for i := range records {
			if records[i].Section != section || excess <= 0 {
				continue
			}
			cut := minInt64(records[i].Applied, excess)
			records[i].Applied -= cut
			records[i].Explanation += fmt.Sprintf("; reduced by %d so total deductions do not exceed gross total income", cut)
			excess -= cut
		}
	}
}

func grossTotalIncome(income []models.IncomeRecord) int64 {
	var total int64
	for _, rec := range income {
		total += rec.Amount
	}
	return total
}

func salaryIncome(income []models.IncomeRecord) int64 {
	for _, rec := range income {
		if rec.Category == models.IncomeSalary {
			return rec.Amount
		}
	}
	return 0
}

func totalTDS(income []models.IncomeRecord) int64 {
	var total int64
	for _, rec := range income {
		total += rec.TDS
	}
	return total
}

func minInt64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}
