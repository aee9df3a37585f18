package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Lllllllleong/taxfilingflow/internal/models"
)

func assembledState() *WorkingState {
	return &WorkingState{
		RunID: "run-1",
		Taxpayer: models.TaxpayerProfile{
			Name:          "A Kumar",
			PAN:           "ABCPE1234F",
			Age:           34,
			Regime:        models.RegimeOld,
			FinancialYear: "2024-25",
		},
		Income: []models.IncomeRecord{
			{Category: models.IncomeSalary, Amount: 850_000, TDS: 90_000},
			{Category: models.IncomeInterest, Amount: 200_000},
		},
		Deductions: []models.DeductionRecord{
			{Section: "STANDARD", Applied: 50_000},
			{Section: "80C", Applied: 150_000},
		},
		Computation: &models.TaxComputation{
			Regime:           models.RegimeOld,
			GrossTotalIncome: 1_050_000,
			TotalDeductions:  200_000,
			TaxableIncome:    850_000,
			TaxBeforeCess:    82_500,
			Cess:             3_300,
			TotalLiability:   85_800,
			TotalTDS:         90_000,
			Refund:           4_200,
		},
	}
}

// Every schedule figure is a copy of a computed figure; assembly itself
// derives nothing.
func TestAssembleCopiesComputationVerbatim(t *testing.T) {
	state := assembledState()

	result, err := NewFormAssembler().Execute(context.Background(), state)
	require.NoError(t, err)
	require.Equal(t, OutcomeContinue, result.Outcome)

	form := state.Form
	require.NotNil(t, form)
	assert.Equal(t, "ITR-1", form.FormType)
	assert.Equal(t, "A Kumar", form.PartA.Name)
	assert.Equal(t, "2025-26", form.PartA.AssessmentYear)

	assert.Equal(t, int64(850_000), form.ScheduleSalary.GrossSalary)
	assert.Equal(t, int64(50_000), form.ScheduleSalary.StandardDeduction)
	assert.Equal(t, int64(800_000), form.ScheduleSalary.NetSalary)

	assert.Equal(t, int64(200_000), form.ScheduleOtherSources.InterestIncome)
	assert.Equal(t, int64(200_000), form.ScheduleOtherSources.Total)

	assert.Equal(t, int64(200_000), form.ScheduleDeductions.Total)
	require.Len(t, form.ScheduleDeductions.Entries, 2)

	comp := state.Computation
	schedule := form.ScheduleTax
	assert.Equal(t, comp.GrossTotalIncome, schedule.GrossTotalIncome)
	assert.Equal(t, comp.TotalDeductions, schedule.TotalDeductions)
	assert.Equal(t, comp.TaxableIncome, schedule.TaxableIncome)
	assert.Equal(t, comp.TaxBeforeCess, schedule.TaxBeforeCess)
	assert.Equal(t, comp.Rebate, schedule.Rebate)
	assert.Equal(t, comp.Cess, schedule.Cess)
	assert.Equal(t, comp.TotalLiability, schedule.TotalLiability)
	assert.Equal(t, comp.TotalTDS, schedule.TotalTDS)
	assert.Equal(t, comp.Refund, schedule.Refund)
	assert.Equal(t, comp.Payable, schedule.Payable)
}

func TestAssembleMissingComputationIsFatal(t *testing.T) {
	state := assembledState()
	state.Computation = nil

	result, err := NewFormAssembler().Execute(context.Background(), state)
	require.NoError(t, err)
	assert.Equal(t, OutcomeFatal, result.Outcome)
}

func TestAssembleMissingIncomeIsFatal(t *testing.T) {
	state := assembledState()
	state.Income = nil

	result, err := NewFormAssembler().Execute(context.Background(), state)
	require.NoError(t, err)
	assert.Equal(t, OutcomeFatal, result.Outcome)
}
