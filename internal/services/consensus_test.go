package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Lllllllleong/taxfilingflow/internal/models"
	"github.com/Lllllllleong/taxfilingflow/internal/store"
)

func consensusFixture(t *testing.T) (*store.Memory, *WorkingState) {
	t.Helper()

	mem := store.NewMemory()
	appendStep := func(seq int, stage string, details map[string]any) {
		require.NoError(t, mem.AppendStep(context.Background(), &models.Step{
			RunID:   "run-1",
			Seq:     seq,
			Stage:   stage,
			Status:  models.StepSuccess,
			Details: details,
		}))
	}
	appendStep(1, StageAggregate, map[string]any{"totalIncome": int64(900_000), "totalTds": int64(50_000)})
	appendStep(2, StageDeduct, map[string]any{"totalDeductions": int64(200_000)})
	appendStep(3, StageCompute, map[string]any{
		"taxableIncome":  int64(700_000),
		"totalLiability": int64(54_600),
		"refund":         int64(0),
		"payable":        int64(4_600),
	})

	state := &WorkingState{
		RunID: "run-1",
		Income: []models.IncomeRecord{
			{Category: models.IncomeSalary, Amount: 900_000, TDS: 50_000},
		},
		Deductions: []models.DeductionRecord{
			{Section: "STANDARD", Applied: 50_000},
			{Section: "80C", Applied: 150_000},
		},
		Form: &models.FilingForm{
			ScheduleTax: models.ScheduleTax{
				GrossTotalIncome: 900_000,
				TotalDeductions:  200_000,
				TaxableIncome:    700_000,
				TaxBeforeCess:    52_500,
				Rebate:           0,
				Cess:             2_100,
				TotalLiability:   54_600,
				TotalTDS:         50_000,
				Refund:           0,
				Payable:          4_600,
			},
		},
	}
	return mem, state
}

func TestConsensusPassesConsistentRun(t *testing.T) {
	mem, state := consensusFixture(t)

	result, err := NewConsensusValidator(mem).Execute(context.Background(), state)
	require.NoError(t, err)
	assert.Equal(t, OutcomeContinue, result.Outcome)
}

func TestConsensusCatchesTamperedLiability(t *testing.T) {
	mem, state := consensusFixture(t)
	state.Form.ScheduleTax.TotalLiability = 40_000

	result, err := NewConsensusValidator(mem).Execute(context.Background(), state)
	require.NoError(t, err)

	assert.Equal(t, OutcomeNeedsReview, result.Outcome)
	assert.Contains(t, result.Reason, "totalLiability")
	assert.Contains(t, result.Reason, "expected 54600")
}

func TestConsensusCatchesIncomeMismatch(t *testing.T) {
	mem, state := consensusFixture(t)
	state.Income[0].Amount = 950_000

	result, err := NewConsensusValidator(mem).Execute(context.Background(), state)
	require.NoError(t, err)

	assert.Equal(t, OutcomeNeedsReview, result.Outcome)
	assert.Contains(t, result.Reason, "sum(income)")
}

func TestConsensusCatchesDoubleSettlement(t *testing.T) {
	mem, state := consensusFixture(t)
	state.Form.ScheduleTax.Refund = 1_000
	state.Form.ScheduleTax.Payable = 5_600

	result, err := NewConsensusValidator(mem).Execute(context.Background(), state)
	require.NoError(t, err)

	assert.Equal(t, OutcomeNeedsReview, result.Outcome)
	assert.Contains(t, result.Reason, "refund and payable both non-zero")
}

func TestConsensusToleratesRoundingDrift(t *testing.T) {
	mem, state := consensusFixture(t)
	state.Form.ScheduleTax.TotalLiability = 54_601
	state.Form.ScheduleTax.Payable = 4_601

	result, err := NewConsensusValidator(mem).Execute(context.Background(), state)
	require.NoError(t, err)
	assert.Equal(t, OutcomeContinue, result.Outcome)
}

func TestConsensusWithoutFormIsFatal(t *testing.T) {
	mem, _ := consensusFixture(t)

	result, err := NewConsensusValidator(mem).Execute(context.Background(), &WorkingState{RunID: "run-1"})
	require.NoError(t, err)
	assert.Equal(t, OutcomeFatal, result.Outcome)
}
