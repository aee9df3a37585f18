package inference

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/vertexai/genai"
)

// VertexModel adapts one pre-configured Vertex AI generative model to the
// Client contract. The model must be configured for JSON output (see
// gcp.NewVertexClient); VertexModel only enforces the timeout and validates
// the response shape.
type VertexModel struct {
	model   *genai.GenerativeModel
	timeout time.Duration
}

// NewVertexModel wraps a JSON-mode generative model with a per-call timeout.
func NewVertexModel(model *genai.GenerativeModel, timeout time.Duration) *VertexModel {
	return &VertexModel{model: model, timeout: timeout}
}

// GenerateJSON implements Client.
func (v *VertexModel) GenerateJSON(ctx context.Context, prompt string, out any) error {
	callCtx, cancel := context.WithTimeout(ctx, v.timeout)
	defer cancel()

	resp, err := v.model.GenerateContent(callCtx, genai.Text(prompt))
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || callCtx.Err() != nil {
			return &Error{Kind: KindTimeout, Err: err}
		}
		return &Error{Kind: KindUnavailable, Err: err}
	}

	raw := extractJSONContent(resp)
	if raw == "" {
		return &Error{Kind: KindMalformed, Err: fmt.Errorf("model returned an empty response instead of JSON")}
	}
	if err := json.Unmarshal([]byte(raw), out); err != nil {
		return &Error{Kind: KindMalformed, Err: fmt.Errorf("failed to parse JSON from model: %w", err)}
	}
	return nil
}

// extractJSONContent robustly gets the raw text content from the model response.
func extractJSONContent(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return ""
	}
	// The model is configured to return JSON, so we expect a single text part.
	if txt, ok := resp.Candidates[0].Content.Parts[0].(genai.Text); ok {
		// Clean potential markdown fences just in case.
		clean := strings.TrimSpace(string(txt))
		clean = strings.TrimPrefix(clean, "```json")
		clean = strings.TrimSuffix(clean, "```")
		return strings.TrimSpace(clean)
	}
	return ""
}
