package services

import (
	"context"
	"fmt"

	"github.com/Lllllllleong/taxfilingflow/internal/models"
	"github.com/Lllllllleong/taxfilingflow/internal/rules"
)

// TaxCalculator derives the full liability for the elected regime and,
// independently, the comparison figure for the other regime. Pure rules.
type TaxCalculator struct{}

// NewTaxCalculator builds the computation stage.
func NewTaxCalculator() *TaxCalculator { return &TaxCalculator{} }

func (t *TaxCalculator) Name() string { return StageCompute }

// Execute implements Stage.
func (t *TaxCalculator) Execute(ctx context.Context, state *WorkingState) (StageResult, error) {
	gti := grossTotalIncome(state.Income)
	var totalDeductions int64
	for _, rec := range state.Deductions {
		totalDeductions += rec.Applied
	}
	taxable := gti - totalDeductions
	if taxable < 0 {
		taxable = 0
	}
	tds := totalTDS(state.Income)

	regime := state.Taxpayer.Regime
	breakdown := computeLiability(regime, taxable)
	refund, payable := settle(breakdown.Total, tds)

	computation := &models.TaxComputation{
		Regime:           regime,
		GrossTotalIncome: gti,
		TotalDeductions:  totalDeductions,
		TaxableIncome:    taxable,
		Slabs:            breakdown.Slabs,
		TaxBeforeCess:    breakdown.TaxBeforeCess,
		Rebate:           breakdown.Rebate,
		Cess:             breakdown.Cess,
		TotalLiability:   breakdown.Total,
		TotalTDS:         tds,
		Refund:           refund,
		Payable:          payable,
		Alternate:        t.alternate(regime, gti, salaryIncome(state.Income), tds, breakdown.Total),
	}
	state.Computation = computation

	net := "nothing due"
	if refund > 0 {
		net = fmt.Sprintf("refund of %d", refund)
	} else if payable > 0 {
		net = fmt.Sprintf("%d payable", payable)
	}
	return StageResult{
		Outcome: OutcomeContinue,
		Summary: fmt.Sprintf("liability %d on taxable income %d under the %s regime, %s", breakdown.Total, taxable, regime, net),
		Details: map[string]any{
			"grossTotalIncome": gti,
			"totalDeductions":  totalDeductions,
			"taxableIncome":    taxable,
			"taxBeforeCess":    breakdown.TaxBeforeCess,
			"rebate":           breakdown.Rebate,
			"cess":             breakdown.Cess,
			"totalLiability":   breakdown.Total,
			"totalTds":         tds,
			"refund":           refund,
			"payable":          payable,
		},
	}, nil
}

// alternate computes the other regime's figure independently: its own
// standard deduction only, since regime-exclusive claims do not carry over.
func (t *TaxCalculator) alternate(elected models.TaxRegime, gti, salary, tds, electedTotal int64) *models.RegimeComparison {
	other := elected.Other()
	table := rules.ForRegime(other)

	var standard int64
	if salary > 0 {
		standard = minInt64(table.StandardDeduction, salary)
	}
	taxable := gti - standard
	if taxable < 0 {
		taxable = 0
	}
	breakdown := computeLiability(other, taxable)
	refund, payable := settle(breakdown.Total, tds)

	recommended := elected
	if breakdown.Total < electedTotal {
		recommended = other
	}
	delta := breakdown.Total - electedTotal
	if delta < 0 {
		delta = -delta
	}
	return &models.RegimeComparison{
		Regime:         other,
		TaxableIncome:  taxable,
		TotalLiability: breakdown.Total,
		Refund:         refund,
		Payable:        payable,
		Recommended:    recommended,
		Delta:          delta,
	}
}

type liabilityBreakdown struct {
	Slabs         []models.SlabLine
	TaxBeforeCess int64
	Rebate        int64
	Cess          int64
	Total         int64
}

// computeLiability runs the progressive slab table, rebate, and cess for one
// regime. Tax is summed unrounded across slabs and rounded once; the
// per-line figures are rounded for display only.
func computeLiability(regime models.TaxRegime, taxable int64) liabilityBreakdown {
	table := rules.ForRegime(regime)

	var sum float64
	slabs := make([]models.SlabLine, 0, len(table.Slabs))
	for _, slab := range table.Slabs {
		bandIncome := taxable - slab.Lower
		if bandIncome <= 0 {
			slabs = append(slabs, models.SlabLine{Lower: slab.Lower, Upper: slab.Upper, Rate: slab.Rate})
			continue
		}
		if slab.Upper > 0 && bandIncome > slab.Upper-slab.Lower {
			bandIncome = slab.Upper - slab.Lower
		}
		lineTax := float64(bandIncome) * slab.Rate
		sum += lineTax
		slabs = append(slabs, models.SlabLine{
			Lower:  slab.Lower,
			Upper:  slab.Upper,
			Rate:   slab.Rate,
			Income: bandIncome,
			Tax:    rules.RoundRupee(lineTax),
		})
	}

	taxBeforeCess := rules.RoundRupee(sum)

	var rebate int64
	if taxable <= table.RebateThreshold {
		rebate = minInt64(taxBeforeCess, table.RebateCap)
	}

	cess := rules.RoundRupee(float64(taxBeforeCess-rebate) * table.CessRate)
	return liabilityBreakdown{
		Slabs:         slabs,
		TaxBeforeCess: taxBeforeCess,
		Rebate:        rebate,
		Cess:          cess,
		Total:         taxBeforeCess - rebate + cess,
	}
}

// settle splits the net position into an unsigned refund or payable.
// Exactly one is non-zero unless the position is exactly settled.
func settle(liability, tds int64) (refund, payable int64) {
	net := liability - tds
	if net < 0 {
		return -net, 0
	}
	return 0, net
}
