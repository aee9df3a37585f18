package services

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Lllllllleong/taxfilingflow/internal/inference"
	"github.com/Lllllllleong/taxfilingflow/internal/models"
	"github.com/Lllllllleong/taxfilingflow/internal/rules"
)

// Aggregator folds per-document extraction output into per-category income
// records and raw deduction claims. Its invariants hold regardless of where
// the figures came from: withheld tax can never exceed the income it was
// withheld from, and a violation suspends the run rather than clamping.
type Aggregator struct {
	validator inference.Client
	policy    rules.Policy
}

// NewAggregator builds the aggregation stage. The validator client is the
// optional anomaly scorer; nil disables anomaly scoring entirely.
func NewAggregator(validator inference.Client, policy rules.Policy) *Aggregator {
	return &Aggregator{validator: validator, policy: policy}
}

func (a *Aggregator) Name() string { return StageAggregate }

type anomalyResponse struct {
	Score       float64 `json:"score"`
	Explanation string  `json:"explanation"`
}

// Execute implements Stage.
func (a *Aggregator) Execute(ctx context.Context, state *WorkingState) (StageResult, error) {
	logCtx := slog.With("runId", state.RunID, "stage", StageAggregate)

	state.Income = a.buildIncome(state)
	state.Claims = a.buildClaims(state)

	if len(state.Income) == 0 {
		return StageResult{
			Outcome: OutcomeNeedsReview,
			Summary: "no income determined",
			Reason:  "no income could be determined from the supplied documents or figures; supply corrected income amounts",
		}, nil
	}

	var totalIncome, totalTDS int64
	details := map[string]any{}
	for _, rec := range state.Income {
		if rec.TDS > rec.Amount {
			return StageResult{
				Outcome: OutcomeNeedsReview,
				Summary: fmt.Sprintf("implausible withholding for %s", rec.Category),
				Details: map[string]any{"category": string(rec.Category), "amount": rec.Amount, "tds": rec.TDS},
				Reason: fmt.Sprintf(
					"TDS of %d exceeds %s income of %d; verify the source document and supply corrected figures",
					rec.TDS, rec.Category, rec.Amount,
				),
			}, nil
		}
		if rec.Amount < 0 {
			return StageResult{
				Outcome: OutcomeNeedsReview,
				Summary: fmt.Sprintf("negative income for %s", rec.Category),
				Reason:  fmt.Sprintf("%s income of %d is negative; supply corrected figures", rec.Category, rec.Amount),
			}, nil
		}
		if rec.Confidence < a.policy.ConfidenceThreshold {
			return StageResult{
				Outcome: OutcomeNeedsReview,
				Summary: fmt.Sprintf("low extraction confidence for %s", rec.Category),
				Details: map[string]any{"category": string(rec.Category), "confidence": rec.Confidence},
				Reason: fmt.Sprintf(
					"%s income was extracted with confidence %.2f, below the %.2f review threshold; confirm or correct the amount",
					rec.Category, rec.Confidence, a.policy.ConfidenceThreshold,
				),
			}, nil
		}
		totalIncome += rec.Amount
		totalTDS += rec.TDS
		details[categoryDetailKey(rec.Category)] = rec.Amount
	}
	details["totalIncome"] = totalIncome
	details["totalTds"] = totalTDS

	if a.validator != nil && state.CorrectedIncome == nil {
		if result, suspended := a.scoreAnomaly(ctx, logCtx, totalIncome, totalTDS, details); suspended {
			return result, nil
		}
	}

	return StageResult{
		Outcome: OutcomeContinue,
		Summary: fmt.Sprintf("aggregated income %d across %d categories, TDS %d", totalIncome, len(state.Income), totalTDS),
		Details: details,
	}, nil
}

func categoryDetailKey(c models.IncomeCategory) string {
	switch c {
	case models.IncomeSalary:
		return "salaryIncome"
	case models.IncomeInterest:
		return "interestIncome"
	default:
		return "otherIncome"
	}
}

// buildIncome produces the per-category records. Reviewer corrections win
// outright; otherwise extracted figures and manual figures are summed, never
// overwritten.
func (a *Aggregator) buildIncome(state *WorkingState) []models.IncomeRecord {
	if state.CorrectedIncome != nil {
		return incomeFromFigures(state.CorrectedIncome, "review")
	}

	type bucket struct {
		amount, tds int64
		confidence  float64
		seen        bool
	}
	buckets := map[models.IncomeCategory]*bucket{
		models.IncomeSalary:   {confidence: 1},
		models.IncomeInterest: {confidence: 1},
		models.IncomeOther:    {confidence: 1},
	}
	add := func(cat models.IncomeCategory, amount, tds int64, conf float64) {
		if amount == 0 && tds == 0 {
			return
		}
		b := buckets[cat]
		b.amount += amount
		b.tds += tds
		b.seen = true
		if conf < b.confidence {
			b.confidence = conf
		}
	}

	for _, f := range state.Extracted {
		if f.Salary != 0 || f.TDSSalary != 0 {
			add(models.IncomeSalary, f.Salary, f.TDSSalary, fieldConf(f, "salary", "tdsSalary"))
		}
		if f.InterestIncome != 0 || f.TDSInterest != 0 {
			add(models.IncomeInterest, f.InterestIncome, f.TDSInterest, fieldConf(f, "interestIncome", "tdsInterest"))
		}
	}
	if fig := state.Figures; fig != nil {
		add(models.IncomeSalary, fig.Salary, fig.TDSSalary, 1)
		add(models.IncomeInterest, fig.InterestIncome, fig.TDSInterest, 1)
		add(models.IncomeOther, fig.OtherIncome, 0, 1)
	}

	var records []models.IncomeRecord
	for _, cat := range []models.IncomeCategory{models.IncomeSalary, models.IncomeInterest, models.IncomeOther} {
		b := buckets[cat]
		if !b.seen {
			continue
		}
		records = append(records, models.IncomeRecord{
			Category:    cat,
			Amount:      b.amount,
			TDS:         b.tds,
			SourceStage: StageAggregate,
			Confidence:  b.confidence,
		})
	}
	if len(records) == 0 && len(state.Income) > 0 {
		// Resumed run that corrected only deductions: the previously
		// aggregated income stands and is re-checked below.
		return state.Income
	}
	return records
}

// fieldConf is the lower of the confidences for the named fields, counting
// only fields that carried a value.
func fieldConf(f ExtractedFields, names ...string) float64 {
	lowest := 1.0
	for _, name := range names {
		conf, ok := f.FieldConfidence[name]
		if ok && conf < lowest {
			lowest = conf
		}
	}
	return lowest
}

func (a *Aggregator) buildClaims(state *WorkingState) models.DeductionClaims {
	if state.CorrectedDeductions != nil {
		c := state.CorrectedDeductions
		return models.DeductionClaims{
			Section80C:      c.Section80C,
			Section80D:      c.Section80D,
			HRAExemption:    c.HRAExemption,
			OtherDeductions: c.OtherDeductions,
		}
	}
	var claims models.DeductionClaims
	for _, f := range state.Extracted {
		claims.Section80C += f.Section80C
		claims.Section80D += f.Section80D
	}
	if fig := state.Figures; fig != nil {
		claims.Section80C += fig.Section80C
		claims.Section80D += fig.Section80D
		claims.HRAExemption += fig.HRAExemption
		claims.OtherDeductions += fig.OtherDeductions
	}
	if claims == (models.DeductionClaims{}) {
		// Resumed run with no corrected claims: the claims captured before
		// the suspension still stand.
		claims = state.Claims
	}
	if claims == (models.DeductionClaims{}) && len(state.Deductions) > 0 {
		// No snapshot either; rebuild from the applied records.
		for _, rec := range state.Deductions {
			switch rec.Section {
			case rules.Section80C:
				claims.Section80C = rec.Claimed
			case rules.Section80D:
				claims.Section80D = rec.Claimed
			case rules.SectionHRA:
				claims.HRAExemption = rec.Claimed
			case rules.SectionOther:
				claims.OtherDeductions = rec.Claimed
			}
		}
	}
	return claims
}

func incomeFromFigures(fig *models.ManualFigures, source string) []models.IncomeRecord {
	var records []models.IncomeRecord
	if fig.Salary != 0 || fig.TDSSalary != 0 {
		records = append(records, models.IncomeRecord{
			Category: models.IncomeSalary, Amount: fig.Salary, TDS: fig.TDSSalary,
			SourceStage: source, Confidence: 1,
		})
	}
	if fig.InterestIncome != 0 || fig.TDSInterest != 0 {
		records = append(records, models.IncomeRecord{
			Category: models.IncomeInterest, Amount: fig.InterestIncome, TDS: fig.TDSInterest,
			SourceStage: source, Confidence: 1,
		})
	}
	if fig.OtherIncome != 0 {
		records = append(records, models.IncomeRecord{
			Category: models.IncomeOther, Amount: fig.OtherIncome,
			SourceStage: source, Confidence: 1,
		})
	}
	return records
}

// scoreAnomaly asks the inference validator how plausible the aggregate is.
// Scoring failures are soft: the pipeline proceeds on the hard invariants
// alone. A reviewed run is never re-scored; the reviewer's figures stand.
func (a *Aggregator) scoreAnomaly(ctx context.Context, logCtx *slog.Logger, totalIncome, totalTDS int64, details map[string]any) (StageResult, bool) {
	prompt := fmt.Sprintf(
		"Score the plausibility of this aggregate for a salaried taxpayer.\nTotal income: %d\nTotal tax deducted at source: %d",
		totalIncome, totalTDS,
	)
	var resp anomalyResponse
	if err := a.validator.GenerateJSON(ctx, prompt, &resp); err != nil {
		logCtx.Warn("Anomaly scoring unavailable, proceeding on hard invariants.", "error", err)
		details["anomalyScored"] = false
		return StageResult{}, false
	}

	details["anomalyScored"] = true
	details["anomalyScore"] = resp.Score
	if resp.Score >= a.policy.AnomalyThreshold {
		return StageResult{
			Outcome: OutcomeNeedsReview,
			Summary: fmt.Sprintf("anomalous income profile, score %.2f", resp.Score),
			Details: details,
			Reason:  fmt.Sprintf("income profile scored %.2f for anomaly (threshold %.2f): %s", resp.Score, a.policy.AnomalyThreshold, resp.Explanation),
		}, true
	}
	return StageResult{}, false
}
