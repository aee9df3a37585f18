package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/Lllllllleong/taxfilingflow/internal/inference"
	"github.com/Lllllllleong/taxfilingflow/internal/models"
	"github.com/Lllllllleong/taxfilingflow/internal/rules"
)

// Classifier assigns each input document one of the known document types.
// Inference goes first; any inference failure or low-confidence answer drops
// to the keyword fallback, which produces the identical output shape.
type Classifier struct {
	client inference.Client
	policy rules.Policy
}

// NewClassifier builds the classification stage. A nil client means the
// fallback path is the only path.
func NewClassifier(client inference.Client, policy rules.Policy) *Classifier {
	return &Classifier{client: client, policy: policy}
}

func (c *Classifier) Name() string { return StageClassify }

type classifyResponse struct {
	Type       string  `json:"type"`
	Confidence float64 `json:"confidence"`
}

// Execute implements Stage.
func (c *Classifier) Execute(ctx context.Context, state *WorkingState) (StageResult, error) {
	if len(state.DocumentInputs) == 0 {
		// Manual-figures run: nothing to classify.
		return StageResult{
			Outcome: OutcomeContinue,
			Summary: "no documents supplied; manual figures run",
			Details: map[string]any{"documentCount": 0},
			Skipped: true,
		}, nil
	}

	logCtx := slog.With("runId", state.RunID, "stage", StageClassify)
	var fallbacks int
	state.Documents = make([]models.DocumentRecord, 0, len(state.DocumentInputs))

	for _, doc := range state.DocumentInputs {
		record, usedFallback := c.classifyOne(ctx, logCtx, doc)
		if usedFallback {
			fallbacks++
		}
		state.Documents = append(state.Documents, record)
	}

	details := map[string]any{
		"documentCount": len(state.Documents),
		"fallbacks":     fallbacks,
	}
	summary := fmt.Sprintf("classified %d document(s)", len(state.Documents))
	if fallbacks > 0 {
		summary += fmt.Sprintf(", %d via keyword fallback", fallbacks)
	}
	return StageResult{Outcome: OutcomeContinue, Summary: summary, Details: details}, nil
}

func (c *Classifier) classifyOne(ctx context.Context, logCtx *slog.Logger, doc models.DocumentInput) (models.DocumentRecord, bool) {
	record := models.DocumentRecord{Filename: doc.Filename, RawText: doc.RawText}

	if c.client != nil {
		prompt := fmt.Sprintf(
			"Classify this document as SALARY_CERTIFICATE, BANK_INTEREST_STATEMENT, or UNKNOWN.\nFilename: %s\nDocument text:\n%s",
			doc.Filename, doc.RawText,
		)
		var resp classifyResponse
		err := c.client.GenerateJSON(ctx, prompt, &resp)
		if err == nil {
			docType := parseDocumentType(resp.Type)
			if docType != models.DocUnknown && resp.Confidence >= c.policy.ConfidenceThreshold {
				record.Type = docType
				record.Confidence = resp.Confidence
				record.ViaModel = true
				return record, false
			}
			logCtx.Warn("Model classification below confidence threshold, using fallback.",
				"filename", doc.Filename, "modelType", resp.Type, "confidence", resp.Confidence)
		} else {
			logCtx.Warn("Model classification failed, using fallback.", "filename", doc.Filename, "error", err)
		}
	}

	record.Type, record.Confidence = classifyByKeywords(doc)
	record.ViaModel = false
	return record, true
}

func parseDocumentType(s string) models.DocumentType {
	switch models.DocumentType(strings.ToUpper(strings.TrimSpace(s))) {
	case models.DocSalaryCertificate:
		return models.DocSalaryCertificate
	case models.DocBankInterestStatement:
		return models.DocBankInterestStatement
	default:
		return models.DocUnknown
	}
}

var (
	salaryKeywords   = []string{"salary", "form 16", "form no. 16", "employer", "payslip", "pay slip", "gross salary", "basic pay"}
	interestKeywords = []string{"interest", "savings account", "fixed deposit", "deposit", "bank statement", "branch"}
)

// classifyByKeywords is the deterministic fallback. A caller-supplied type
// hint wins outright; otherwise the side with more keyword hits wins and the
// confidence scales with how decisive the match was.
func classifyByKeywords(doc models.DocumentInput) (models.DocumentType, float64) {
	if doc.TypeHint == models.DocSalaryCertificate || doc.TypeHint == models.DocBankInterestStatement {
		return doc.TypeHint, 1.0
	}

	haystack := strings.ToLower(doc.Filename + "\n" + doc.RawText)
	salaryHits := countHits(haystack, salaryKeywords)
	interestHits := countHits(haystack, interestKeywords)

	switch {
	case salaryHits == 0 && interestHits == 0:
		return models.DocUnknown, 0
	case salaryHits > interestHits:
		return models.DocSalaryCertificate, hitConfidence(salaryHits, interestHits)
	case interestHits > salaryHits:
		return models.DocBankInterestStatement, hitConfidence(interestHits, salaryHits)
	default:
		return models.DocUnknown, 0.3
	}
}

func countHits(haystack string, keywords []string) int {
	var hits int
	for _, kw := range keywords {
		if strings.Contains(haystack, kw) {
			hits++
		}
	}
	return hits
}

func hitConfidence(winner, loser int) float64 {
	conf := 0.5 + 0.1*float64(winner-loser)
	if conf > 0.9 {
		conf = 0.9
	}
	return conf
}
