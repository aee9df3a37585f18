package rules

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/Lllllllleong/taxfilingflow/internal/models"
)

func TestForRegimeTables(t *testing.T) {
	oldTable := ForRegime(models.RegimeOld)
	assert.Equal(t, int64(50_000), oldTable.StandardDeduction)
	assert.Equal(t, int64(500_000), oldTable.RebateThreshold)
	assert.Equal(t, int64(12_500), oldTable.RebateCap)

	newTable := ForRegime(models.RegimeNew)
	assert.Equal(t, int64(75_000), newTable.StandardDeduction)
	assert.Equal(t, int64(700_000), newTable.RebateThreshold)
	assert.Equal(t, int64(25_000), newTable.RebateCap)

	for _, table := range []RegimeRules{oldTable, newTable} {
		assert.Equal(t, 0.04, table.CessRate)
		// Slabs must be contiguous and end unbounded.
		for i := 1; i < len(table.Slabs); i++ {
			assert.Equal(t, table.Slabs[i-1].Upper, table.Slabs[i].Lower)
		}
		assert.Zero(t, table.Slabs[len(table.Slabs)-1].Upper)
	}
}

func TestRoundRupee(t *testing.T) {
	assert.Equal(t, int64(100), RoundRupee(99.5))
	assert.Equal(t, int64(99), RoundRupee(99.4))
	assert.Equal(t, int64(-100), RoundRupee(-99.5))
	assert.Equal(t, int64(0), RoundRupee(0))
}

func TestAssessmentYear(t *testing.T) {
	assert.Equal(t, "2025-26", AssessmentYear("2024-25"))
	assert.Equal(t, "2026-27", AssessmentYear("2025-26"))
	assert.Equal(t, "", AssessmentYear("bad"))
	assert.Equal(t, "", AssessmentYear(""))
}

func TestDefaultPolicy(t *testing.T) {
	policy := DefaultPolicy()
	assert.Equal(t, 0.5, policy.ConfidenceThreshold)
	assert.Equal(t, 0.7, policy.AnomalyThreshold)
	assert.Equal(t, 20*time.Second, policy.InferenceTimeout)
}

func TestPolicyEnvOverrides(t *testing.T) {
	t.Setenv("CONFIDENCE_THRESHOLD", "0.8")
	t.Setenv("ANOMALY_THRESHOLD", "0.9")
	t.Setenv("INFERENCE_TIMEOUT", "5s")

	policy := DefaultPolicy()
	assert.Equal(t, 0.8, policy.ConfidenceThreshold)
	assert.Equal(t, 0.9, policy.AnomalyThreshold)
	assert.Equal(t, 5*time.Second, policy.InferenceTimeout)
}

func TestPolicyIgnoresMalformedEnv(t *testing.T) {
	t.Setenv("CONFIDENCE_THRESHOLD", "very confident")

	policy := DefaultPolicy()
	assert.Equal(t, 0.5, policy.ConfidenceThreshold)
}
