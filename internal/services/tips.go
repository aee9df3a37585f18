package services

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Lllllllleong/taxfilingflow/internal/inference"
	"github.com/Lllllllleong/taxfilingflow/internal/models"
	"github.com/Lllllllleong/taxfilingflow/internal/rules"
)

// Advisor attaches saving suggestions to a completed filing. The rules
// produce the tips; inference only rewords them, and a failure there is
// silently ignored. This stage can never suspend or fail a run.
type Advisor struct {
	client inference.Client
}

// NewAdvisor builds the advisory stage.
func NewAdvisor(client inference.Client) *Advisor {
	return &Advisor{client: client}
}

func (a *Advisor) Name() string { return StageAdvise }

type tipsResponse struct {
	Tips []models.TaxTip `json:"tips"`
}

// Execute implements Stage.
func (a *Advisor) Execute(ctx context.Context, state *WorkingState) (StageResult, error) {
	tips := ruleBasedTips(state)
	if a.client != nil && len(tips) > 0 {
		tips = a.reword(ctx, state, tips)
	}
	state.Tips = tips
	return StageResult{
		Outcome: OutcomeContinue,
		Summary: fmt.Sprintf("attached %d saving tip(s)", len(tips)),
		Details: map[string]any{"tipCount": len(tips)},
	}, nil
}

func ruleBasedTips(state *WorkingState) []models.TaxTip {
	var tips []models.TaxTip
	if state.Computation == nil {
		return tips
	}

	if state.Taxpayer.Regime == models.RegimeOld {
		var used80C, used80D int64
		var saw80D bool
		for _, rec := range state.Deductions {
			switch rec.Section {
			case rules.Section80C:
				used80C = rec.Applied
			case rules.Section80D:
				used80D = rec.Applied
				saw80D = true
			}
		}
		if headroom := rules.Cap80C - used80C; headroom > 0 && state.Computation.TaxableIncome > 0 {
			tips = append(tips, models.TaxTip{
				Category:        rules.Section80C,
				Message:         fmt.Sprintf("You have %d of unused 80C headroom; investments such as PPF or ELSS up to that amount reduce taxable income.", headroom),
				PotentialSaving: marginalSaving(state.Computation, headroom),
			})
		}
		if !saw80D || used80D == 0 {
			cap := rules.Cap80D
			if state.Taxpayer.Age >= rules.SeniorAge {
				cap = rules.Cap80DSenior
			}
			tips = append(tips, models.TaxTip{
				Category:        rules.Section80D,
				Message:         fmt.Sprintf("No health insurance premium was claimed under 80D; premiums up to %d are deductible.", cap),
				PotentialSaving: marginalSaving(state.Computation, cap),
			})
		}
	}

	if alt := state.Computation.Alternate; alt != nil && alt.Recommended != state.Computation.Regime && alt.Delta > 0 {
		tips = append(tips, models.TaxTip{
			Category:        "REGIME",
			Message:         fmt.Sprintf("Filing under the %s regime would have cost %d less this year.", alt.Regime, alt.Delta),
			PotentialSaving: alt.Delta,
		})
	}
	return tips
}

// marginalSaving estimates the tax saved by an extra deduction at the
// taxpayer's top slab rate, including cess. An estimate is enough; the tip
// is advisory.
func marginalSaving(comp *models.TaxComputation, deduction int64) int64 {
	if deduction > comp.TaxableIncome {
		deduction = comp.TaxableIncome
	}
	table := rules.ForRegime(comp.Regime)
	var topRate float64
	for _, slab := range table.Slabs {
		if comp.TaxableIncome > slab.Lower {
			topRate = slab.Rate
		}
	}
	return rules.RoundRupee(float64(deduction) * topRate * (1 + table.CessRate))
}

// reword asks the inference service for friendlier phrasing of the same
// tips. Amount fields always come from the rules; only messages may change.
func (a *Advisor) reword(ctx context.Context, state *WorkingState, tips []models.TaxTip) []models.TaxTip {
	prompt := fmt.Sprintf(
		"Reword these tax saving tips for a taxpayer, keeping categories and figures unchanged. Respond with {\"tips\": [...]}.\nTips: %+v",
		tips,
	)
	var resp tipsResponse
	if err := a.client.GenerateJSON(ctx, prompt, &resp); err != nil {
		slog.With("runId", state.RunID, "stage", StageAdvise).
			Warn("Tip rewording unavailable, keeping rule-based wording.", "error", err)
		return tips
	}
	if len(resp.Tips) != len(tips) {
		return tips
	}
	for i := range tips {
		if resp.Tips[i].Message != "" {
			tips[i].Message = resp.Tips[i].Message
		}
	}
	return tips
}
