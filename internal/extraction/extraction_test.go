package extraction

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractPassesThroughPlainText(t *testing.T) {
	text, err := PDF{}.Extract(context.Background(), "statement.txt", []byte("Total interest credited: 34,500"))
	require.NoError(t, err)
	assert.Equal(t, "Total interest credited: 34,500", text)
}

func TestExtractRejectsEmptyDocument(t *testing.T) {
	_, err := PDF{}.Extract(context.Background(), "empty.txt", []byte("   \n "))
	require.Error(t, err)

	xe, ok := AsError(err)
	require.True(t, ok)
	assert.Equal(t, "empty.txt", xe.Filename)
	assert.Contains(t, xe.Reason, "empty")
}

func TestExtractRejectsBrokenPDF(t *testing.T) {
	_, err := PDF{}.Extract(context.Background(), "broken.pdf", []byte("not a pdf at all"))
	require.Error(t, err)

	xe, ok := AsError(err)
	require.True(t, ok)
	assert.Equal(t, "broken.pdf", xe.Filename)
	assert.Contains(t, xe.Reason, "not a readable PDF")
}

func TestDecodeContentText(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{
			"plain operands",
			"BT (Gross Salary:) Tj (8,50,000) Tj ET",
			"Gross Salary: 8,50,000 ",
		},
		{
			"escaped parentheses",
			`(Form \(16\)) Tj`,
			"Form (16) ",
		},
		{
			"no text operators",
			"0 0 m 100 100 l S",
			"",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, decodeContentText(tt.content))
		})
	}
}
