package services

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Lllllllleong/taxfilingflow/internal/models"
)

type failingOTP struct{}

func (failingOTP) Confirm(ctx context.Context, pan, runID string) error {
	return fmt.Errorf("device unreachable")
}

func TestValidatePAN(t *testing.T) {
	tests := []struct {
		pan     string
		wantErr string
	}{
		{"ABCPE1234F", ""},
		{"AAACI9260H", ""},
		{"", "missing"},
		{"abcpe1234f", "required pattern"},
		{"ABCPE12345", "required pattern"},
		{"ABCP1234F", "required pattern"},
		{"ABCXE1234F", "holder-type"},
	}
	for _, tt := range tests {
		t.Run(tt.pan, func(t *testing.T) {
			err := ValidatePAN(tt.pan)
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}

func verifyState(pan string) *WorkingState {
	return &WorkingState{
		RunID:    "run-1",
		Taxpayer: models.TaxpayerProfile{Name: "A Kumar", PAN: pan},
		Form: &models.FilingForm{
			PartA: models.FormPartA{PAN: pan},
		},
	}
}

func TestVerifyInvalidPANSuspendsWithoutAck(t *testing.T) {
	state := verifyState("BOGUS")

	result, err := NewVerifier(nil).Execute(context.Background(), state)
	require.NoError(t, err)

	assert.Equal(t, OutcomeNeedsReview, result.Outcome)
	assert.Contains(t, result.Reason, "required pattern")
	assert.Empty(t, state.AckID, "no acknowledgement may be issued for an invalid PAN")
}

func TestVerifyOTPFailureSuspends(t *testing.T) {
	state := verifyState("ABCPE1234F")

	result, err := NewVerifier(failingOTP{}).Execute(context.Background(), state)
	require.NoError(t, err)

	assert.Equal(t, OutcomeNeedsReview, result.Outcome)
	assert.Contains(t, result.Reason, "e-verification failed")
	assert.Empty(t, state.AckID)
}

func TestVerifyIssuesSortableAckID(t *testing.T) {
	state := verifyState("ABCPE1234F")

	result, err := NewVerifier(nil).Execute(context.Background(), state)
	require.NoError(t, err)
	require.Equal(t, OutcomeContinue, result.Outcome)

	require.NotEmpty(t, state.AckID)
	assert.Regexp(t, `^ITR\d{14}[0-9A-F]{8}$`, state.AckID)

	second := verifyState("ABCPE1234F")
	_, err = NewVerifier(nil).Execute(context.Background(), second)
	require.NoError(t, err)
	assert.NotEqual(t, state.AckID, second.AckID)
}

func TestVerifyMismatchedFormPANIsFatal(t *testing.T) {
	state := verifyState("ABCPE1234F")
	state.Form.PartA.PAN = "XYZPE9999A"

	result, err := NewVerifier(nil).Execute(context.Background(), state)
	require.NoError(t, err)
	assert.Equal(t, OutcomeFatal, result.Outcome)
}
