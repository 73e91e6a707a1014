// Package pdfmerge concatenates single-page PDFs into the final report and
// inspects the result.
package pdfmerge

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"

	"github.com/ledongthuc/pdf"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

var (
	// ErrPageCount indicates an input or output with an unexpected number of pages.
	ErrPageCount = errors.New("unexpected page count")

	// ErrNoPages indicates an empty merge.
	ErrNoPages = errors.New("no pages to merge")
)

func init() {
	// pdfcpu would otherwise create a config directory under the user's home.
	api.DisableConfigDir()
}

func newConfig() *model.Configuration {
	cfg := model.NewDefaultConfiguration()
	cfg.ValidationMode = model.ValidationRelaxed
	return cfg
}

// PageCount returns the number of pages in data.
func PageCount(data []byte) (int, error) {
	n, err := api.PageCount(bytes.NewReader(data), newConfig())
	if err != nil {
		return 0, fmt.Errorf("read page count: %w", err)
	}
	return n, nil
}

// Merge concatenates pages in order. Every input must hold exactly one page
// and the result must hold exactly expected pages.
func Merge(ctx context.Context, pages [][]byte, expected int) ([]byte, error) {
	if len(pages) == 0 {
		return nil, ErrNoPages
	}
	readers := make([]io.ReadSeeker, 0, len(pages))
	for i, p := range pages {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		n, err := PageCount(p)
		if err != nil {
			return nil, fmt.Errorf("page %d: %w", i+1, err)
		}
		if n != 1 {
			return nil, fmt.Errorf("%w: page %d has %d pages", ErrPageCount, i+1, n)
		}
		readers = append(readers, bytes.NewReader(p))
	}

	var out bytes.Buffer
	if err := api.MergeRaw(readers, &out, false, newConfig()); err != nil {
		return nil, fmt.Errorf("merge pdf: %w", err)
	}

	merged := out.Bytes()
	n, err := PageCount(merged)
	if err != nil {
		return nil, fmt.Errorf("merged document: %w", err)
	}
	if n != expected {
		return nil, fmt.Errorf("%w: merged document has %d pages, want %d", ErrPageCount, n, expected)
	}
	return merged, nil
}

// ExtractText returns the plain text of every page.
func ExtractText(data []byte) (string, error) {
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", err
	}
	plain, err := reader.GetPlainText()
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, plain); err != nil {
		return "", err
	}
	return buf.String(), nil
}

var leftoverRe = regexp.MustCompile(`<<[^<>]+>>`)

// FindPlaceholders scans the document text for tokens that were never
// substituted.
func FindPlaceholders(data []byte) ([]string, error) {
	text, err := ExtractText(data)
	if err != nil {
		return nil, fmt.Errorf("extract text: %w", err)
	}
	seen := map[string]bool{}
	var out []string
	for _, m := range leftoverRe.FindAllString(text, -1) {
		m = strings.TrimSpace(m)
		if !seen[m] {
			seen[m] = true
			out = append(out, m)
		}
	}
	return out, nil
}
