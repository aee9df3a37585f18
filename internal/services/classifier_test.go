package services

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Lllllllleong/taxfilingflow/internal/models"
)

func TestClassifyByKeywords(t *testing.T) {
	tests := []struct {
		name string
		doc  models.DocumentInput
		want models.DocumentType
	}{
		{
			"salary certificate",
			models.DocumentInput{Filename: "form16.txt", RawText: "Salary Certificate\nGross Salary paid by employer for FY 2024-25"},
			models.DocSalaryCertificate,
		},
		{
			"bank statement",
			models.DocumentInput{Filename: "hdfc.txt", RawText: "Bank statement\nInterest credited to savings account"},
			models.DocBankInterestStatement,
		},
		{
			"unknown",
			models.DocumentInput{Filename: "notes.txt", RawText: "grocery list"},
			models.DocUnknown,
		},
		{
			"type hint wins",
			models.DocumentInput{Filename: "scan001.pdf", RawText: "illegible", TypeHint: models.DocBankInterestStatement},
			models.DocBankInterestStatement,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, _ := classifyByKeywords(tt.doc)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestClassifierPrefersConfidentModel(t *testing.T) {
	model := &fakeInference{respond: func(prompt string, out any) error {
		resp := out.(*classifyResponse)
		resp.Type = "SALARY_CERTIFICATE"
		resp.Confidence = 0.97
		return nil
	}}

	state := &WorkingState{
		RunID:          "run-1",
		DocumentInputs: []models.DocumentInput{{Filename: "doc.txt", RawText: "quarterly numbers"}},
	}

	result, err := NewClassifier(model, testPolicy()).Execute(context.Background(), state)
	require.NoError(t, err)
	require.Equal(t, OutcomeContinue, result.Outcome)

	require.Len(t, state.Documents, 1)
	assert.Equal(t, models.DocSalaryCertificate, state.Documents[0].Type)
	assert.True(t, state.Documents[0].ViaModel)
	assert.Equal(t, 0, result.Details["fallbacks"])
}

func TestClassifierFallsBackOnModelFailure(t *testing.T) {
	model := &fakeInference{respond: func(prompt string, out any) error {
		return fmt.Errorf("deadline exceeded")
	}}

	state := &WorkingState{
		RunID: "run-1",
		DocumentInputs: []models.DocumentInput{
			{Filename: "form16.txt", RawText: "Gross Salary paid by employer"},
		},
	}

	result, err := NewClassifier(model, testPolicy()).Execute(context.Background(), state)
	require.NoError(t, err)

	require.Len(t, state.Documents, 1)
	assert.Equal(t, models.DocSalaryCertificate, state.Documents[0].Type)
	assert.False(t, state.Documents[0].ViaModel)
	assert.Equal(t, 1, result.Details["fallbacks"])
}

func TestClassifierFallsBackOnLowModelConfidence(t *testing.T) {
	model := &fakeInference{respond: func(prompt string, out any) error {
		resp := out.(*classifyResponse)
		resp.Type = "BANK_INTEREST_STATEMENT"
		resp.Confidence = 0.2
		return nil
	}}

	state := &WorkingState{
		RunID: "run-1",
		DocumentInputs: []models.DocumentInput{
			{Filename: "form16.txt", RawText: "Gross Salary paid by employer"},
		},
	}

	_, err := NewClassifier(model, testPolicy()).Execute(context.Background(), state)
	require.NoError(t, err)
	assert.Equal(t, models.DocSalaryCertificate, state.Documents[0].Type)
}

func TestClassifierSkipsManualFiguresRun(t *testing.T) {
	state := &WorkingState{RunID: "run-1", Figures: &models.ManualFigures{Salary: 500_000}}

	result, err := NewClassifier(nil, testPolicy()).Execute(context.Background(), state)
	require.NoError(t, err)
	assert.Equal(t, OutcomeContinue, result.Outcome)
	assert.True(t, result.Skipped)
}
