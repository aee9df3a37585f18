package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Lllllllleong/taxfilingflow/internal/models"
	"github.com/Lllllllleong/taxfilingflow/internal/rules"
)

func appliedBySection(records []models.DeductionRecord) map[string]int64 {
	out := make(map[string]int64)
	for _, rec := range records {
		out[rec.Section] = rec.Applied
	}
	return out
}

func TestDeductionCapsOldRegime(t *testing.T) {
	state := &WorkingState{
		Taxpayer: models.TaxpayerProfile{Age: 35, Regime: models.RegimeOld},
		Income: []models.IncomeRecord{
			{Category: models.IncomeSalary, Amount: 1_200_000, Confidence: 1},
		},
		Claims: models.DeductionClaims{
			Section80C: 200_000,
			Section80D: 30_000,
		},
	}

	result, err := NewDeductionEngine().Execute(context.Background(), state)
	require.NoError(t, err)
	require.Equal(t, OutcomeContinue, result.Outcome)

	applied := appliedBySection(state.Deductions)
	assert.Equal(t, int64(50_000), applied[rules.SectionStandard])
	assert.Equal(t, rules.Cap80C, applied[rules.Section80C])
	assert.Equal(t, rules.Cap80D, applied[rules.Section80D])
}

func TestDeduction80DSeniorCap(t *testing.T) {
	state := &WorkingState{
		Taxpayer: models.TaxpayerProfile{Age: 64, Regime: models.RegimeOld},
		Income: []models.IncomeRecord{
			{Category: models.IncomeSalary, Amount: 800_000, Confidence: 1},
		},
		Claims: models.DeductionClaims{Section80D: 60_000},
	}

	_, err := NewDeductionEngine().Execute(context.Background(), state)
	require.NoError(t, err)

	applied := appliedBySection(state.Deductions)
	assert.Equal(t, rules.Cap80DSenior, applied[rules.Section80D])
}

func TestNewRegimePermitsOnlyStandardDeduction(t *testing.T) {
	state := &WorkingState{
		Taxpayer: models.TaxpayerProfile{Age: 40, Regime: models.RegimeNew},
		Income: []models.IncomeRecord{
			{Category: models.IncomeSalary, Amount: 900_000, Confidence: 1},
		},
		Claims: models.DeductionClaims{
			Section80C:   100_000,
			Section80D:   20_000,
			HRAExemption: 50_000,
		},
	}

	_, err := NewDeductionEngine().Execute(context.Background(), state)
	require.NoError(t, err)

	applied := appliedBySection(state.Deductions)
	assert.Equal(t, int64(75_000), applied[rules.SectionStandard])
	assert.Equal(t, int64(0), applied[rules.Section80C])
	assert.Equal(t, int64(0), applied[rules.Section80D])
	assert.Equal(t, int64(0), applied[rules.SectionHRA])
}

func TestHRAExemptionFormula(t *testing.T) {
	rec, ok := hraRecord(0, &models.SalaryStructure{
		Basic:       400_000,
		HRAReceived: 150_000,
		RentPaid:    180_000,
	})
	require.True(t, ok)
	// Least of HRA received 150,000, rent less 10% basic 140,000,
	// and 40% of basic 160,000.
	assert.Equal(t, int64(140_000), rec.Applied)

	metro, ok := hraRecord(0, &models.SalaryStructure{
		Basic:       400_000,
		HRAReceived: 250_000,
		RentPaid:    300_000,
		Metro:       true,
	})
	require.True(t, ok)
	// Metro raises the basic share to 50%: min(250000, 260000, 200000).
	assert.Equal(t, int64(200_000), metro.Applied)
}

func TestHRAClaimPassesThroughWithoutStructure(t *testing.T) {
	rec, ok := hraRecord(80_000, nil)
	require.True(t, ok)
	assert.Equal(t, int64(80_000), rec.Applied)

	_, ok = hraRecord(0, nil)
	assert.False(t, ok)
}

func TestDeductionsClampedAtGrossTotalIncome(t *testing.T) {
	state := &WorkingState{
		Taxpayer: models.TaxpayerProfile{Age: 30, Regime: models.RegimeOld},
		Income: []models.IncomeRecord{
			{Category: models.IncomeSalary, Amount: 120_000, Confidence: 1},
		},
		Claims: models.DeductionClaims{
			Section80C:      150_000,
			OtherDeductions: 40_000,
		},
	}

	result, err := NewDeductionEngine().Execute(context.Background(), state)
	require.NoError(t, err)
	require.Equal(t, OutcomeContinue, result.Outcome)

	var total int64
	for _, rec := range state.Deductions {
		require.GreaterOrEqual(t, rec.Applied, int64(0), "section %s went negative", rec.Section)
		total += rec.Applied
	}
	assert.Equal(t, int64(120_000), total)

	// Lower-priority sections shrink first.
	applied := appliedBySection(state.Deductions)
	assert.Equal(t, int64(0), applied[rules.SectionOther])
}
