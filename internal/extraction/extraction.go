// Package extraction turns an uploaded document into raw text for the
// pipeline. Plain-text uploads pass through untouched; PDFs go through
// pdfcpu content extraction. Extraction failures are typed so the caller can
// distinguish an unreadable upload from an orchestration bug.
package extraction

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

// Error reports why a document could not be turned into text.
type Error struct {
	Filename string
	Reason   string
	Err      error
}

func (e *Error) Error() string {
	return fmt.Sprintf("extraction failed for %s: %s: %v", e.Filename, e.Reason, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// AsError extracts an *Error from err, if any.
func AsError(err error) (*Error, bool) {
	var xe *Error
	if errors.As(err, &xe) {
		return xe, true
	}
	return nil, false
}

// Extractor converts one uploaded document into raw text.
type Extractor interface {
	Extract(ctx context.Context, filename string, data []byte) (string, error)
}

// PDF is the default Extractor: pdfcpu for .pdf uploads, passthrough for
// everything that already looks like text.
type PDF struct{}

// Extract implements Extractor.
func (PDF) Extract(ctx context.Context, filename string, data []byte) (string, error) {
	if strings.ToLower(filepath.Ext(filename)) != ".pdf" {
		text := string(data)
		if strings.TrimSpace(text) == "" {
			return "", &Error{Filename: filename, Reason: "document is empty", Err: errors.New("no content")}
		}
		return text, nil
	}
	return extractPDFText(ctx, filename, data)
}

func extractPDFText(ctx context.Context, filename string, data []byte) (string, error) {
	tempDir, err := os.MkdirTemp("", "doc-extract-*")
	if err != nil {
		return "", fmt.Errorf("failed to create temp dir: %w", err)
	}
	defer os.RemoveAll(tempDir)

	sourcePath := filepath.Join(tempDir, "source.pdf")
	if err := os.WriteFile(sourcePath, data, 0o600); err != nil {
		return "", fmt.Errorf("failed to stage PDF for extraction: %w", err)
	}

	cfg := model.NewDefaultConfiguration()
	cfg.ValidationMode = model.ValidationRelaxed
	if err := api.ValidateFile(sourcePath, cfg); err != nil {
		return "", &Error{Filename: filename, Reason: "not a readable PDF", Err: err}
	}

	contentDir := filepath.Join(tempDir, "content")
	if err := os.MkdirAll(contentDir, 0o700); err != nil {
		return "", fmt.Errorf("failed to create content dir: %w", err)
	}
	if err := api.ExtractContentFile(sourcePath, contentDir, nil, cfg); err != nil {
		return "", &Error{Filename: filename, Reason: "failed to extract page content", Err: err}
	}

	entries, err := os.ReadDir(contentDir)
	if err != nil {
		return "", fmt.Errorf("failed to list extracted content: %w", err)
	}

	var sb strings.Builder
	for _, entry := range entries {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		raw, err := os.ReadFile(filepath.Join(contentDir, entry.Name()))
		if err != nil {
			continue
		}
		sb.WriteString(decodeContentText(string(raw)))
		sb.WriteString("\n")
	}

	text := strings.TrimSpace(sb.String())
	if text == "" {
		return "", &Error{
			Filename: filename,
			Reason:   "no text layer found; document appears to be a scanned image",
			Err:      errors.New("empty content streams"),
		}
	}
	return text, nil
}

// textShowRegex matches literal strings fed to the Tj/TJ text-show operators
// in a PDF content stream.
var textShowRegex = regexp.MustCompile(`\(((?:\\.|[^\\()])*)\)\s*(?:Tj|TJ|'|")`)

var literalEscaper = strings.NewReplacer(
	`\(`, "(", `\)`, ")", `\\`, `\`, `\n`, "\n", `\t`, " ",
)

// decodeContentText pulls the text-show operands out of a raw content
// stream. This covers the simple, unencoded text layers that generated
// salary certificates and bank statements carry; anything fancier has no
// text layer worth reading and falls out as an extraction error upstream.
func decodeContentText(content string) string {
	matches := textShowRegex.FindAllStringSubmatch(content, -1)
	var sb strings.Builder
	for _, m := range matches {
		sb.WriteString(literalEscaper.Replace(m[1]))
		sb.WriteString(" ")
	}
	return sb.String()
}
