package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/Lllllllleong/taxfilingflow/internal/models"
	"github.com/Lllllllleong/taxfilingflow/internal/store"
)

// consensusTolerance is the permitted absolute difference, in rupees,
// between figures that must agree. It absorbs the single end-of-chain
// rounding and nothing else.
const consensusTolerance = 1

// ConsensusValidator cross-checks the assembled form against the figures
// each stage persisted on its own step. It trusts the step history over the
// working state: a stage that mis-reported its output is exactly the failure
// this stage exists to catch. It knows nothing about how any figure was
// derived.
type ConsensusValidator struct {
	store store.Store
}

// NewConsensusValidator builds the consensus stage.
func NewConsensusValidator(s store.Store) *ConsensusValidator {
	return &ConsensusValidator{store: s}
}

func (c *ConsensusValidator) Name() string { return StageConsensus }

type consensusViolation struct {
	Field    string `json:"field"`
	Expected int64  `json:"expected"`
	Actual   int64  `json:"actual"`
}

// Execute implements Stage.
func (c *ConsensusValidator) Execute(ctx context.Context, state *WorkingState) (StageResult, error) {
	if state.Form == nil {
		return StageResult{
			Outcome: OutcomeFatal,
			Summary: "form missing at consensus",
			Reason:  "consensus validation reached without an assembled form",
		}, nil
	}

	steps, err := c.store.ListSteps(ctx, state.RunID)
	if err != nil {
		return StageResult{}, fmt.Errorf("failed to load step history for consensus: %w", err)
	}
	reported := latestSuccessDetails(steps)

	schedule := state.Form.ScheduleTax
	var violations []consensusViolation
	check := func(field string, expected, actual int64) {
		diff := expected - actual
		if diff < 0 {
			diff = -diff
		}
		if diff > consensusTolerance {
			violations = append(violations, consensusViolation{Field: field, Expected: expected, Actual: actual})
		}
	}

	// Stage-reported figures against the form.
	if agg, ok := reported[StageAggregate]; ok {
		if v, ok := detailInt64(agg["totalIncome"]); ok {
			check("grossTotalIncome", v, schedule.GrossTotalIncome)
		}
		if v, ok := detailInt64(agg["totalTds"]); ok {
			check("totalTds", v, schedule.TotalTDS)
		}
	}
	if ded, ok := reported[StageDeduct]; ok {
		if v, ok := detailInt64(ded["totalDeductions"]); ok {
			check("totalDeductions", v, schedule.TotalDeductions)
		}
	}
	if comp, ok := reported[StageCompute]; ok {
		for _, field := range []struct {
			key    string
			actual int64
		}{
			{"taxableIncome", schedule.TaxableIncome},
			{"totalLiability", schedule.TotalLiability},
			{"refund", schedule.Refund},
			{"payable", schedule.Payable},
		} {
			if v, ok := detailInt64(comp[field.key]); ok {
				check(field.key, v, field.actual)
			}
		}
	}

	// Structural invariants re-derived from the form alone.
	var incomeSum int64
	for _, rec := range state.Income {
		incomeSum += rec.Amount
	}
	check("sum(income) == grossTotalIncome", incomeSum, schedule.GrossTotalIncome)

	var deductionSum int64
	for _, rec := range state.Deductions {
		deductionSum += rec.Applied
	}
	check("sum(deductions applied) == totalDeductions", deductionSum, schedule.TotalDeductions)

	expectedTaxable := schedule.GrossTotalIncome - schedule.TotalDeductions
	if expectedTaxable < 0 {
		expectedTaxable = 0
	}
	check("taxableIncome == max(0, gti - deductions)", expectedTaxable, schedule.TaxableIncome)
	check("totalLiability == taxBeforeCess - rebate + cess",
		schedule.TaxBeforeCess-schedule.Rebate+schedule.Cess, schedule.TotalLiability)
	check("liability - tds == payable - refund",
		schedule.TotalLiability-schedule.TotalTDS, schedule.Payable-schedule.Refund)

	if schedule.Refund > 0 && schedule.Payable > 0 {
		violations = append(violations, consensusViolation{
			Field:    "refund and payable both non-zero",
			Expected: 0,
			Actual:   minInt64(schedule.Refund, schedule.Payable),
		})
	}

	if len(violations) > 0 {
		diagnostics := make([]string, 0, len(violations))
		detailRows := make([]map[string]any, 0, len(violations))
		for _, v := range violations {
			diagnostics = append(diagnostics, fmt.Sprintf("%s: expected %d, got %d", v.Field, v.Expected, v.Actual))
			detailRows = append(detailRows, map[string]any{"field": v.Field, "expected": v.Expected, "actual": v.Actual})
		}
		return StageResult{
			Outcome: OutcomeNeedsReview,
			Summary: fmt.Sprintf("%d consensus violation(s)", len(violations)),
			Details: map[string]any{"violations": detailRows},
			Reason:  "computed figures disagree beyond tolerance: " + strings.Join(diagnostics, "; "),
		}, nil
	}

	return StageResult{
		Outcome: OutcomeContinue,
		Summary: "all cross-checks agree within tolerance",
		Details: map[string]any{"checkedStages": len(reported)},
	}, nil
}

// latestSuccessDetails maps each stage to the details of its most recent
// successful step. Resumed runs append fresh steps, so the latest one is
// the figure that fed the current form.
func latestSuccessDetails(steps []models.Step) map[string]map[string]any {
	out := make(map[string]map[string]any)
	for _, step := range steps {
		if step.Status == models.StepSuccess && step.Details != nil {
			out[step.Stage] = step.Details
		}
	}
	return out
}

// detailInt64 reads a numeric detail value regardless of how the store
// round-tripped it (Firestore returns int64, JSON float64).
func detailInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int64:
		return n, true
	case int:
		return int64(n), true
	case float64:
		return int64(n), true
	case json.Number:
		i, err := n.Int64()
		return i, err == nil
	default:
		return 0, false
	}
}
