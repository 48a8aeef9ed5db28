// Package textextract turns stored document bytes into plain text for
// chunking. Binary formats (PDF, office documents) are converted by
// external tooling before upload and arrive here as text.
package textextract

import (
	"bytes"
	"fmt"
	"strings"
	"unicode/utf8"

	"codeberg.org/readeck/go-readability/v2"
)

// ErrUnsupportedType is returned for content types with no extractor.
var ErrUnsupportedType = fmt.Errorf("unsupported content type")

// Extractor converts raw document bytes into plain text. HTML content is
// reduced to its readable article text.
type Extractor struct{}

// New builds an Extractor.
func New() *Extractor {
	return &Extractor{}
}

var textTypes = map[string]bool{
	"text/plain":       true,
	"text/markdown":    true,
	"text/csv":         true,
	"text/html":        true,
	"application/json": true,
}

// Supported reports whether the content type can be extracted.
func (e *Extractor) Supported(contentType string) bool {
	return textTypes[normalizeContentType(contentType)]
}

// Extract returns the text content of the document. Invalid UTF-8 is
// rejected rather than silently mangled.
func (e *Extractor) Extract(content []byte, contentType string) (string, error) {
	ct := normalizeContentType(contentType)
	if !textTypes[ct] {
		return "", fmt.Errorf("%w: %s", ErrUnsupportedType, contentType)
	}
	if !utf8.Valid(content) {
		return "", fmt.Errorf("content of type %s is not valid UTF-8", contentType)
	}

	if ct == "text/html" {
		return extractHTML(content)
	}
	return strings.TrimSpace(string(content)), nil
}

func extractHTML(content []byte) (string, error) {
	article, err := readability.FromReader(bytes.NewReader(content), nil)
	if err != nil {
		return "", fmt.Errorf("failed to parse html: %w", err)
	}
	var builder strings.Builder
	if err := article.RenderText(&builder); err != nil {
		return "", fmt.Errorf("failed to render article text: %w", err)
	}
	return strings.TrimSpace(builder.String()), nil
}

// normalizeContentType drops parameters like "; charset=utf-8".
func normalizeContentType(contentType string) string {
	ct := strings.ToLower(strings.TrimSpace(contentType))
	if idx := strings.IndexByte(ct, ';'); idx >= 0 {
		ct = strings.TrimSpace(ct[:idx])
	}
	return ct
}
