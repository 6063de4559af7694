// Package extract turns uploaded files into plain text.
package extract

import (
	"context"
	"fmt"
	"io"
	"log"
	"strings"

	"code.sajari.com/docconv"
	"github.com/cloo-solutions/citadoc/internal/domain"
)

// ConvertFunc converts a document body of the given content type to text.
type ConvertFunc func(r io.Reader, contentType string) (string, error)

// Extractor converts PDF and plain-text uploads into normalised text.
type Extractor struct {
	convert ConvertFunc
}

// NewExtractor creates an Extractor that converts PDFs with docconv.
func NewExtractor() *Extractor {
	return &Extractor{convert: docconvConvert}
}

// NewExtractorWithConverter creates an Extractor with a custom PDF converter (for testing)
func NewExtractorWithConverter(convert ConvertFunc) *Extractor {
	return &Extractor{convert: convert}
}

func docconvConvert(r io.Reader, contentType string) (string, error) {
	res, err := docconv.Convert(r, contentType, false)
	if err != nil {
		return "", err
	}
	return res.Body, nil
}

// Extract returns the text of r. Line breaks are normalised to "\n" and
// invalid UTF-8 is dropped, so line numbers computed on the result match what
// a reader of the text sees.
func (e *Extractor) Extract(ctx context.Context, r io.Reader, contentType string) (string, error) {
	var (
		text string
		err  error
	)
	switch contentType {
	case "text/plain":
		text, err = readText(r)
	case "application/pdf":
		text, err = e.convertPDF(ctx, r)
	default:
		return "", domain.ErrInvalidFileType
	}
	if err != nil {
		log.Printf("extract: %s extraction failed: %v", contentType, err)
		return "", domain.ErrExtractionFailed.WithCause(err)
	}
	return normalise(text), nil
}

func readText(r io.Reader) (string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("read text: %w", err)
	}
	return strings.TrimPrefix(string(data), "\ufeff"), nil
}

func (e *Extractor) convertPDF(ctx context.Context, r io.Reader) (string, error) {
	type result struct {
		text string
		err  error
	}
	done := make(chan result, 1)
	go func() {
		text, err := e.convert(r, "application/pdf")
		done <- result{text: text, err: err}
	}()

	select {
	case res := <-done:
		if res.err != nil {
			return "", fmt.Errorf("convert pdf: %w", res.err)
		}
		return res.text, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func normalise(text string) string {
	text = strings.ToValidUTF8(text, "")
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	text = strings.ReplaceAll(text, "\f", "\n")
	return text
}
