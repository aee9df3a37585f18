package services

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Lllllllleong/taxfilingflow/internal/models"
	"github.com/Lllllllleong/taxfilingflow/internal/rules"
)

// fakeInference answers every GenerateJSON call with fixed JSON, or fails.
type fakeInference struct {
	respond func(prompt string, out any) error
}

func (f *fakeInference) GenerateJSON(ctx context.Context, prompt string, out any) error {
	return f.respond(prompt, out)
}

func testPolicy() rules.Policy {
	return rules.Policy{ConfidenceThreshold: 0.5, AnomalyThreshold: 0.7}
}

func TestAggregateSumsPerCategory(t *testing.T) {
	state := &WorkingState{
		RunID:    "run-1",
		Taxpayer: models.TaxpayerProfile{Regime: models.RegimeOld},
		Extracted: []ExtractedFields{
			{Salary: 600_000, TDSSalary: 40_000, FieldConfidence: map[string]float64{"salary": 0.9, "tdsSalary": 0.9}},
			{Salary: 250_000, TDSSalary: 10_000, FieldConfidence: map[string]float64{"salary": 0.8, "tdsSalary": 0.8}},
			{InterestIncome: 30_000, FieldConfidence: map[string]float64{"interestIncome": 0.9}},
		},
	}

	result, err := NewAggregator(nil, testPolicy()).Execute(context.Background(), state)
	require.NoError(t, err)
	require.Equal(t, OutcomeContinue, result.Outcome)

	require.Len(t, state.Income, 2)
	salary := state.Income[0]
	assert.Equal(t, models.IncomeSalary, salary.Category)
	assert.Equal(t, int64(850_000), salary.Amount)
	assert.Equal(t, int64(50_000), salary.TDS)
	assert.Equal(t, 0.8, salary.Confidence)

	assert.Equal(t, int64(880_000), result.Details["totalIncome"])
}

func TestAggregateSuspendsWhenTDSExceedsIncome(t *testing.T) {
	state := &WorkingState{
		RunID:    "run-1",
		Taxpayer: models.TaxpayerProfile{Regime: models.RegimeOld},
		Figures:  &models.ManualFigures{Salary: 100_000, TDSSalary: 150_000},
	}

	result, err := NewAggregator(nil, testPolicy()).Execute(context.Background(), state)
	require.NoError(t, err)

	assert.Equal(t, OutcomeNeedsReview, result.Outcome)
	assert.Contains(t, result.Reason, "TDS of 150000 exceeds SALARY income of 100000")

	// The figures are preserved for the reviewer, never clamped.
	require.Len(t, state.Income, 1)
	assert.Equal(t, int64(150_000), state.Income[0].TDS)
}

func TestAggregateSuspendsOnLowConfidence(t *testing.T) {
	state := &WorkingState{
		RunID:    "run-1",
		Taxpayer: models.TaxpayerProfile{Regime: models.RegimeOld},
		Extracted: []ExtractedFields{
			{Salary: 500_000, FieldConfidence: map[string]float64{"salary": 0.2}},
		},
	}

	result, err := NewAggregator(nil, testPolicy()).Execute(context.Background(), state)
	require.NoError(t, err)

	assert.Equal(t, OutcomeNeedsReview, result.Outcome)
	assert.Contains(t, result.Reason, "confidence 0.20")
}

func TestAggregateSuspendsWithoutAnyIncome(t *testing.T) {
	state := &WorkingState{
		RunID:    "run-1",
		Taxpayer: models.TaxpayerProfile{Regime: models.RegimeOld},
	}

	result, err := NewAggregator(nil, testPolicy()).Execute(context.Background(), state)
	require.NoError(t, err)

	assert.Equal(t, OutcomeNeedsReview, result.Outcome)
	assert.Contains(t, result.Reason, "no income could be determined")
}

func TestAggregateCorrectionsReplaceExtraction(t *testing.T) {
	state := &WorkingState{
		RunID:    "run-1",
		Taxpayer: models.TaxpayerProfile{Regime: models.RegimeOld},
		Extracted: []ExtractedFields{
			{Salary: 999_999, TDSSalary: 999_999, FieldConfidence: map[string]float64{"salary": 0.9, "tdsSalary": 0.9}},
		},
		CorrectedIncome: &models.ManualFigures{Salary: 700_000, TDSSalary: 60_000},
	}

	result, err := NewAggregator(nil, testPolicy()).Execute(context.Background(), state)
	require.NoError(t, err)
	require.Equal(t, OutcomeContinue, result.Outcome)

	require.Len(t, state.Income, 1)
	assert.Equal(t, int64(700_000), state.Income[0].Amount)
	assert.Equal(t, "review", state.Income[0].SourceStage)
	assert.Equal(t, 1.0, state.Income[0].Confidence)
}

func TestAggregateCorrectedIncomeKeepsPriorClaims(t *testing.T) {
	// A resumed execution has no extraction output; the claims snapshot from
	// the suspended attempt must not be erased by an income-only correction.
	state := &WorkingState{
		RunID:           "run-1",
		Taxpayer:        models.TaxpayerProfile{Regime: models.RegimeOld},
		Claims:          models.DeductionClaims{Section80C: 150_000, Section80D: 20_000},
		CorrectedIncome: &models.ManualFigures{Salary: 750_000, TDSSalary: 80_000},
	}

	result, err := NewAggregator(nil, testPolicy()).Execute(context.Background(), state)
	require.NoError(t, err)
	require.Equal(t, OutcomeContinue, result.Outcome)

	assert.Equal(t, int64(150_000), state.Claims.Section80C)
	assert.Equal(t, int64(20_000), state.Claims.Section80D)
}

func TestAggregateAnomalyScore(t *testing.T) {
	suspicious := &fakeInference{respond: func(prompt string, out any) error {
		resp := out.(*anomalyResponse)
		resp.Score = 0.95
		resp.Explanation = "withheld tax is implausibly high for the stated income"
		return nil
	}}

	state := &WorkingState{
		RunID:    "run-1",
		Taxpayer: models.TaxpayerProfile{Regime: models.RegimeOld},
		Figures:  &models.ManualFigures{Salary: 500_000, TDSSalary: 400_000},
	}

	result, err := NewAggregator(suspicious, testPolicy()).Execute(context.Background(), state)
	require.NoError(t, err)
	assert.Equal(t, OutcomeNeedsReview, result.Outcome)
	assert.Contains(t, result.Reason, "implausibly high")
}

func TestAggregateAnomalyScoringFailureIsSoft(t *testing.T) {
	down := &fakeInference{respond: func(prompt string, out any) error {
		return fmt.Errorf("service unavailable")
	}}

	state := &WorkingState{
		RunID:    "run-1",
		Taxpayer: models.TaxpayerProfile{Regime: models.RegimeOld},
		Figures:  &models.ManualFigures{Salary: 500_000, TDSSalary: 40_000},
	}

	result, err := NewAggregator(down, testPolicy()).Execute(context.Background(), state)
	require.NoError(t, err)
	assert.Equal(t, OutcomeContinue, result.Outcome)
	assert.Equal(t, false, result.Details["anomalyScored"])
}
