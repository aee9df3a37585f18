// Package rules holds the statutory tables and tuning policy for the filing
// pipeline. Slab tables, caps, and rebate thresholds are fixed per financial
// year; review-trigger thresholds are configuration, not engine logic.
package rules

import (
	"math"
	"strconv"
	"time"

	"github.com/Lllllllleong/taxfilingflow/internal/gcp"
	"github.com/Lllllllleong/taxfilingflow/internal/models"
)

// Slab is one progressive band. Upper == 0 means unbounded above; income
// past the top defined bound stays taxed at the highest rate.
type Slab struct {
	Lower int64
	Upper int64
	Rate  float64
}

// RegimeRules is the full statutory table for one regime.
type RegimeRules struct {
	Slabs             []Slab
	StandardDeduction int64
	RebateThreshold   int64 // taxable income at or below which the rebate applies
	RebateCap         int64 // maximum rebate amount
	CessRate          float64
}

// ForRegime returns the table for the given regime (financial year 2024-25).
func ForRegime(r models.TaxRegime) RegimeRules {
	if r == models.RegimeNew {
		return RegimeRules{
			Slabs: []Slab{
				{Lower: 0, Upper: 300_000, Rate: 0},
				{Lower: 300_000, Upper: 700_000, Rate: 0.05},
				{Lower: 700_000, Upper: 1_000_000, Rate: 0.10},
				{Lower: 1_000_000, Upper: 1_200_000, Rate: 0.15},
				{Lower: 1_200_000, Upper: 1_500_000, Rate: 0.20},
				{Lower: 1_500_000, Upper: 0, Rate: 0.30},
			},
			StandardDeduction: 75_000,
			RebateThreshold:   700_000,
			RebateCap:         25_000,
			CessRate:          0.04,
		}
	}
	return RegimeRules{
		Slabs: []Slab{
			{Lower: 0, Upper: 250_000, Rate: 0},
			{Lower: 250_000, Upper: 500_000, Rate: 0.05},
			{Lower: 500_000, Upper: 1_000_000, Rate: 0.20},
			{Lower: 1_000_000, Upper: 0, Rate: 0.30},
		},
		StandardDeduction: 50_000,
		RebateThreshold:   500_000,
		RebateCap:         12_500,
		CessRate:          0.04,
	}
}

// Deduction caps under the old regime. The new regime permits only the
// standard deduction.
const (
	Cap80C       int64 = 150_000
	Cap80D       int64 = 25_000
	Cap80DSenior int64 = 50_000
	SeniorAge          = 60
)

// Section names as they appear on DeductionRecords and the form schedule.
const (
	SectionStandard = "STANDARD"
	Section80C      = "80C"
	Section80D      = "80D"
	SectionHRA      = "HRA"
	SectionOther    = "OTHER"
)

// Policy carries the tunable review-trigger constants. Thresholds are read
// from the environment so they can be adjusted without an engine change.
type Policy struct {
	ConfidenceThreshold float64       // below this an extracted field is review-worthy
	AnomalyThreshold    float64       // anomaly score at or above this suspends the run
	InferenceTimeout    time.Duration // per-call budget for the inference service
}

// DefaultPolicy returns the policy with env overrides applied.
func DefaultPolicy() Policy {
	return Policy{
		ConfidenceThreshold: envFloat("CONFIDENCE_THRESHOLD", 0.5),
		AnomalyThreshold:    envFloat("ANOMALY_THRESHOLD", 0.7),
		InferenceTimeout:    envDuration("INFERENCE_TIMEOUT", 20*time.Second),
	}
}

func envFloat(key string, fallback float64) float64 {
	if v := gcp.GetEnv(key, ""); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := gcp.GetEnv(key, ""); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

// RoundRupee is the single rounding rule used across slab summation, rebate,
// and cess: round half away from zero to the nearest whole rupee, applied at
// the end of a computation chain, never per-slab.
func RoundRupee(v float64) int64 {
	return int64(math.Round(v))
}

// AssessmentYear derives the assessment year label from a financial year
// label of the form "2024-25".
func AssessmentYear(financialYear string) string {
	if len(financialYear) < 4 {
		return ""
	}
	start, err := strconv.Atoi(financialYear[:4])
	if err != nil {
		return ""
	}
	next := start + 1
	return strconv.Itoa(next) + "-" + strconv.Itoa((next+1)%100)
}
