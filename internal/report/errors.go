package report

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrInvalidProfileCode indicates an unknown profile code.
	ErrInvalidProfileCode = errors.New("invalid profile code")

	// ErrTemplateNotFound indicates a template file is missing.
	ErrTemplateNotFound = errors.New("template not found")

	// ErrBodyNotFound indicates a page without a <body> element.
	ErrBodyNotFound = errors.New("template body not found")

	// ErrChartNotFound indicates the chart image element was not located.
	ErrChartNotFound = errors.New("chart element not found")

	// ErrPercentagesNotFound indicates the percentage blocks were not located.
	ErrPercentagesNotFound = errors.New("percentage blocks not found")

	// ErrMissingAsset indicates a referenced asset could not be resolved.
	ErrMissingAsset = errors.New("missing asset")

	// ErrInvalidFont indicates a font file with unexpected content.
	ErrInvalidFont = errors.New("invalid font file")

	// ErrSanity indicates the assembled markup failed the output checks.
	ErrSanity = errors.New("assembled html failed sanity checks")
)

// ErrorCodeAssembly is the API error code for assembly failures.
const ErrorCodeAssembly = "assembly_error"

// Sanity issue codes.
const (
	IssueScriptTag              = "SCRIPT_TAG_FOUND"
	IssueLinkTag                = "LINK_TAG_FOUND"
	IssueUnresolvedPlaceholders = "UNRESOLVED_PLACEHOLDERS"
	IssueRelativeURLs           = "RELATIVE_URLS_REMAIN"
	IssueRelativeCSSURLs        = "RELATIVE_CSS_URLS_REMAIN"
)

// SanityIssue is one failed output check with the offending snippets.
type SanityIssue struct {
	Code      string   `json:"code"`
	Message   string   `json:"message"`
	Offenders []string `json:"offenders"`
}

// SanityError carries every issue found on a page.
type SanityError struct {
	File   string
	Issues []SanityIssue
}

func (e *SanityError) Error() string {
	codes := make([]string, 0, len(e.Issues))
	for _, i := range e.Issues {
		codes = append(codes, i.Code)
	}
	if e.File == "" {
		return fmt.Sprintf("%s: %s", ErrSanity, strings.Join(codes, ","))
	}
	return fmt.Sprintf("%s: %s: %s", ErrSanity, e.File, strings.Join(codes, ","))
}

func (e *SanityError) Unwrap() error { return ErrSanity }

// HasIssue reports whether code is among the issues.
func (e *SanityError) HasIssue(code string) bool {
	for _, i := range e.Issues {
		if i.Code == code {
			return true
		}
	}
	return false
}
