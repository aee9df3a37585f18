package inference

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cloud.google.com/go/vertexai/genai"
)

func TestErrorWrapping(t *testing.T) {
	cause := fmt.Errorf("connection reset")
	err := fmt.Errorf("calling model: %w", &Error{Kind: KindUnavailable, Err: cause})

	ie, ok := AsError(err)
	require.True(t, ok)
	assert.Equal(t, KindUnavailable, ie.Kind)
	assert.ErrorIs(t, err, cause)

	_, ok = AsError(errors.New("plain"))
	assert.False(t, ok)
}

func textResponse(s string) *genai.GenerateContentResponse {
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{
			{Content: &genai.Content{Parts: []genai.Part{genai.Text(s)}}},
		},
	}
}

func TestExtractJSONContent(t *testing.T) {
	tests := []struct {
		name string
		resp *genai.GenerateContentResponse
		want string
	}{
		{"plain json", textResponse(`{"type": "SALARY_CERTIFICATE"}`), `{"type": "SALARY_CERTIFICATE"}`},
		{"fenced json", textResponse("```json\n{\"score\": 0.2}\n```"), `{"score": 0.2}`},
		{"whitespace", textResponse("  {}  "), "{}"},
		{"nil response", nil, ""},
		{"no candidates", &genai.GenerateContentResponse{}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, extractJSONContent(tt.resp))
		})
	}
}
