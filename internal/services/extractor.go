package services

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"

	"github.com/Lllllllleong/taxfilingflow/internal/inference"
	"github.com/Lllllllleong/taxfilingflow/internal/models"
	"github.com/Lllllllleong/taxfilingflow/internal/rules"
)

// Extractor pulls financial figures out of each classified document.
// Inference goes first with a JSON field schema; any failure or a
// low-confidence answer drops to the regex fallback per field.
type Extractor struct {
	client inference.Client
	policy rules.Policy
}

// NewExtractor builds the extraction stage.
func NewExtractor(client inference.Client, policy rules.Policy) *Extractor {
	return &Extractor{client: client, policy: policy}
}

func (e *Extractor) Name() string { return StageExtract }

// Execute implements Stage.
func (e *Extractor) Execute(ctx context.Context, state *WorkingState) (StageResult, error) {
	if len(state.Documents) == 0 {
		return StageResult{
			Outcome: OutcomeContinue,
			Summary: "no documents to extract from",
			Details: map[string]any{"documentCount": 0},
			Skipped: true,
		}, nil
	}

	logCtx := slog.With("runId", state.RunID, "stage", StageExtract)
	var fallbacks int
	state.Extracted = make([]ExtractedFields, 0, len(state.Documents))

	for _, doc := range state.Documents {
		fields, usedFallback := e.extractOne(ctx, logCtx, doc)
		if usedFallback {
			fallbacks++
		}
		applyPlausibilityGuards(&fields)
		state.Extracted = append(state.Extracted, fields)

		if doc.Type == models.DocSalaryCertificate && fields.BasicSalary > 0 {
			state.Salary = &models.SalaryStructure{
				Basic:       fields.BasicSalary,
				HRAReceived: fields.HRAReceived,
				RentPaid:    fields.RentPaid,
				Metro:       mentionsMetroCity(doc.RawText),
			}
		}
	}

	details := map[string]any{
		"documentCount": len(state.Documents),
		"fallbacks":     fallbacks,
	}
	summary := fmt.Sprintf("extracted fields from %d document(s)", len(state.Documents))
	if fallbacks > 0 {
		summary += fmt.Sprintf(", %d via regex fallback", fallbacks)
	}
	return StageResult{Outcome: OutcomeContinue, Summary: summary, Details: details}, nil
}

func (e *Extractor) extractOne(ctx context.Context, logCtx *slog.Logger, doc models.DocumentRecord) (ExtractedFields, bool) {
	if e.client != nil {
		prompt := fmt.Sprintf(
			"Extract the financial fields from this %s.\nRequired JSON fields: salary, tdsSalary, interestIncome, tdsInterest, section80c, section80d, basicSalary, hraReceived, rentPaid, fieldConfidence (object mapping each field name to a 0.0-1.0 confidence).\nDocument text:\n%s",
			doc.Type, doc.RawText,
		)
		var fields ExtractedFields
		err := e.client.GenerateJSON(ctx, prompt, &fields)
		if err == nil && minConfidence(fields) >= e.policy.ConfidenceThreshold {
			fields.ViaModel = true
			return fields, false
		}
		if err != nil {
			logCtx.Warn("Model extraction failed, using regex fallback.", "filename", doc.Filename, "error", err)
		} else {
			logCtx.Warn("Model extraction below confidence threshold, using regex fallback.",
				"filename", doc.Filename, "minConfidence", minConfidence(fields))
		}
	}
	return extractByRegex(doc), true
}

// minConfidence returns the lowest confidence among fields that carry a
// non-zero amount. Zero-amount fields are absent fields and do not count.
func minConfidence(f ExtractedFields) float64 {
	lowest := 1.0
	check := func(name string, amount int64) {
		if amount == 0 {
			return
		}
		conf, ok := f.FieldConfidence[name]
		if !ok {
			conf = 0
		}
		if conf < lowest {
			lowest = conf
		}
	}
	check("salary", f.Salary)
	check("tdsSalary", f.TDSSalary)
	check("interestIncome", f.InterestIncome)
	check("tdsInterest", f.TDSInterest)
	check("section80c", f.Section80C)
	check("section80d", f.Section80D)
	return lowest
}

// applyPlausibilityGuards sanity-checks extracted figures against each
// other. A withheld amount larger than the income it was withheld from is
// almost always an extraction mix-up, so its confidence is floored; the
// aggregation stage owns the hard invariant and the review decision.
func applyPlausibilityGuards(f *ExtractedFields) {
	if f.FieldConfidence == nil {
		f.FieldConfidence = make(map[string]float64)
	}
	if f.TDSSalary > 0 && f.Salary > 0 && f.TDSSalary > f.Salary {
		f.FieldConfidence["tdsSalary"] = 0
	}
	if f.TDSInterest > 0 && f.InterestIncome > 0 && f.TDSInterest > f.InterestIncome {
		f.FieldConfidence["tdsInterest"] = 0
	}
}

// Field patterns for the regex fallback. Labels and amounts may be separated
// by punctuation, currency symbols, or short connective text.
var (
	salaryPattern   = regexp.MustCompile(`(?i)(?:gross\s+(?:annual\s+)?salary|total\s+salary|annual\s+salary|salary\s+paid|gross\s+earnings)\s*[:\-]?\s*(?:rs\.?|inr|₹)?\s*([\d,]+)`)
	tdsPattern      = regexp.MustCompile(`(?i)(?:tds|tax\s+deducted(?:\s+at\s+source)?|income\s+tax\s+deducted)\s*[:\-]?\s*(?:rs\.?|inr|₹)?\s*([\d,]+)`)
	interestPattern = regexp.MustCompile(`(?i)(?:total\s+interest|interest\s+(?:earned|paid|credited|income))\s*[:\-]?\s*(?:rs\.?|inr|₹)?\s*([\d,]+)`)
	s80cPattern     = regexp.MustCompile(`(?i)(?:80\s*C|provident\s+fund|ppf|elss|life\s+insurance\s+premium)\s*[:\-]?\s*(?:rs\.?|inr|₹)?\s*([\d,]+)`)
	s80dPattern     = regexp.MustCompile(`(?i)(?:80\s*D|health\s+insurance|mediclaim)\s*[:\-]?\s*(?:rs\.?|inr|₹)?\s*([\d,]+)`)
	basicPattern    = regexp.MustCompile(`(?i)basic\s+(?:salary|pay)\s*[:\-]?\s*(?:rs\.?|inr|₹)?\s*([\d,]+)`)
	hraPattern      = regexp.MustCompile(`(?i)(?:hra|house\s+rent\s+allowance)\s*(?:received)?\s*[:\-]?\s*(?:rs\.?|inr|₹)?\s*([\d,]+)`)
	rentPattern     = regexp.MustCompile(`(?i)rent\s+paid\s*[:\-]?\s*(?:rs\.?|inr|₹)?\s*([\d,]+)`)
)

// extractByRegex is the deterministic fallback. Every matched field gets a
// fixed mid confidence: the regexes are precise about labels but cannot rule
// out a mislabelled figure, which is exactly what review thresholds are for.
func extractByRegex(doc models.DocumentRecord) ExtractedFields {
	const regexConfidence = 0.6

	fields := ExtractedFields{FieldConfidence: make(map[string]float64)}
	grab := func(name string, pattern *regexp.Regexp, dest *int64) {
		m := pattern.FindStringSubmatch(doc.RawText)
		if m == nil {
			return
		}
		amount, err := ParseIndianNumber(m[1])
		if err != nil {
			return
		}
		*dest = amount
		fields.FieldConfidence[name] = regexConfidence
	}

	switch doc.Type {
	case models.DocSalaryCertificate:
		grab("salary", salaryPattern, &fields.Salary)
		grab("tdsSalary", tdsPattern, &fields.TDSSalary)
		grab("basicSalary", basicPattern, &fields.BasicSalary)
		grab("hraReceived", hraPattern, &fields.HRAReceived)
		grab("rentPaid", rentPattern, &fields.RentPaid)
		grab("section80c", s80cPattern, &fields.Section80C)
		grab("section80d", s80dPattern, &fields.Section80D)
	case models.DocBankInterestStatement:
		grab("interestIncome", interestPattern, &fields.InterestIncome)
		grab("tdsInterest", tdsPattern, &fields.TDSInterest)
	default:
		// Unknown documents get the full sweep; anything found is still
		// gated by confidence downstream.
		grab("salary", salaryPattern, &fields.Salary)
		grab("tdsSalary", tdsPattern, &fields.TDSSalary)
		grab("interestIncome", interestPattern, &fields.InterestIncome)
		grab("section80c", s80cPattern, &fields.Section80C)
		grab("section80d", s80dPattern, &fields.Section80D)
	}
	return fields
}

var metroCities = []string{"delhi", "mumbai", "chennai", "kolkata"}

func mentionsMetroCity(text string) bool {
	lower := strings.ToLower(text)
	for _, city := range metroCities {
		if strings.Contains(lower, city) {
			return true
		}
	}
	return false
}

// ParseIndianNumber converts an amount that may use Indian digit grouping
// (8,50,000) or plain digits into whole rupees. Paise are truncated.
func ParseIndianNumber(s string) (int64, error) {
	clean := strings.TrimSpace(s)
	clean = strings.TrimPrefix(clean, "₹")
	clean = strings.ReplaceAll(clean, ",", "")
	clean = strings.ReplaceAll(clean, " ", "")
	if i := strings.IndexByte(clean, '.'); i >= 0 {
		clean = clean[:i]
	}
	if clean == "" {
		return 0, fmt.Errorf("empty amount")
	}
	v, err := strconv.ParseInt(clean, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("failed to parse amount %q: %w", s, err)
	}
	return v, nil
}
