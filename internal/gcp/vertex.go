package gcp

import (
	"context"
	"fmt"

	"cloud.google.com/go/vertexai/genai"
)

// --- Classifier model prompt ---
const ClassifierSystemPrompt = "You are an expert tax document classifier. You receive the raw text of one document and must decide whether it is a salary certificate issued by an employer, a bank interest statement, or something else. You must output your response as a single valid JSON object."

// --- Field extractor model prompt ---
const ExtractorSystemPrompt = `You are a tax document field extractor. You receive the raw text of a classified tax document and must extract exact financial figures from it.

Follow these rules precisely:
1. Amounts may use Indian digit grouping (8,50,000) or plain digits. Convert every extracted amount to a plain integer number of rupees with no separators.
2. If a field does not appear in the document, output 0 for it and a confidence of 0 for that field.
3. Never guess an amount from context. Only extract figures the text states.
4. Output a single valid JSON object and nothing else.`

// --- Income validator model prompt ---
const IncomeValidatorSystemPrompt = "You are an income plausibility reviewer. You receive aggregated income and withheld-tax figures and must score how anomalous the combination is for a typical salaried taxpayer, from 0.0 (entirely plausible) to 1.0 (highly anomalous). Output a single valid JSON object."

// --- Tax tips model prompt ---
const TipsSystemPrompt = "You are a tax advisor. Given a computed filing summary, suggest two or three specific, actionable saving tips. Output a single valid JSON object."

// VertexClient holds the pre-configured generative models for the pipeline.
// All models are forced into JSON output mode with zero temperature so that
// responses are parseable and reproducible.
type VertexClient struct {
	ClassifierModel      *genai.GenerativeModel
	ExtractorModel       *genai.GenerativeModel
	IncomeValidatorModel *genai.GenerativeModel
	TipsModel            *genai.GenerativeModel
	baseClient           *genai.Client
}

// NewVertexClient creates a new client holding all necessary models.
func NewVertexClient(ctx context.Context, projectID, region string) (*VertexClient, error) {
	if projectID == "" || region == "" {
		return nil, fmt.Errorf("NewVertexClient: projectID and region cannot be empty")
	}

	baseClient, err := genai.NewClient(ctx, projectID, region)
	if err != nil {
		return nil, fmt.Errorf("genai.NewClient: %w", err)
	}

	modelName := GetEnv("VERTEX_MODEL", "gemini-1.5-pro")

	newJSONModel := func(systemPrompt string) *genai.GenerativeModel {
		m := baseClient.GenerativeModel(modelName)
		m.SystemInstruction = &genai.Content{
			Parts: []genai.Part{genai.Text(systemPrompt)},
		}
		m.GenerationConfig = genai.GenerationConfig{
			// Force JSON output. This is a critical setting for every model
			// in this pipeline: downstream parsing assumes it.
			ResponseMIMEType: "application/json",
			Temperature:      genai.Ptr[float32](0.0),
		}
		return m
	}

	return &VertexClient{
		ClassifierModel:      newJSONModel(ClassifierSystemPrompt),
		ExtractorModel:       newJSONModel(ExtractorSystemPrompt),
		IncomeValidatorModel: newJSONModel(IncomeValidatorSystemPrompt),
		TipsModel:            newJSONModel(TipsSystemPrompt),
		baseClient:           baseClient,
	}, nil
}

func (c *VertexClient) Close() error {
	if c.baseClient != nil {
		return c.baseClient.Close()
	}
	return nil
}
