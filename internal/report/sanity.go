package report

import (
	"regexp"
	"strings"
)

var (
	scriptTagRe     = regexp.MustCompile(`(?i)<script\b[\s\S]*?>`)
	linkTagRe       = regexp.MustCompile(`(?i)<link\b[\s\S]*?>`)
	unresolvedRe    = regexp.MustCompile(`&lt;&lt;[^&]+&gt;&gt;|<<[^>]+>>`)
	relativeAttrRe  = regexp.MustCompile(`\b(?:src|href)=["'](\.\.?/[^"']+)["']`)
	cssURLCaptureRe = regexp.MustCompile(`url\(\s*["']?([^"')]+)["']?\s*\)`)
)

const maxOffenders = 5

// SanityOptions tunes CheckHTML.
type SanityOptions struct {
	AllowScripts bool
}

// CheckHTML verifies an assembled page is self-contained. It returns a
// *SanityError listing every failed check.
func CheckHTML(html string, opts SanityOptions) error {
	var issues []SanityIssue

	if !opts.AllowScripts {
		if found := scriptTagRe.FindAllString(html, maxOffenders); len(found) > 0 {
			issues = append(issues, SanityIssue{Code: IssueScriptTag, Message: "script tags are not allowed", Offenders: found})
		}
	}
	if found := linkTagRe.FindAllString(html, maxOffenders); len(found) > 0 {
		issues = append(issues, SanityIssue{Code: IssueLinkTag, Message: "external stylesheets must be inlined", Offenders: found})
	}
	if found := unresolvedRe.FindAllString(html, maxOffenders); len(found) > 0 {
		issues = append(issues, SanityIssue{Code: IssueUnresolvedPlaceholders, Message: "placeholders left unresolved", Offenders: found})
	}
	if found := relativeAttrRe.FindAllStringSubmatch(html, maxOffenders); len(found) > 0 {
		offenders := make([]string, 0, len(found))
		for _, m := range found {
			offenders = append(offenders, m[1])
		}
		issues = append(issues, SanityIssue{Code: IssueRelativeURLs, Message: "relative src/href references remain", Offenders: offenders})
	}

	var cssOffenders []string
	for _, m := range cssURLCaptureRe.FindAllStringSubmatch(html, -1) {
		ref := strings.TrimSpace(m[1])
		if isExternalRef(ref) {
			continue
		}
		cssOffenders = append(cssOffenders, ref)
		if len(cssOffenders) == maxOffenders {
			break
		}
	}
	if len(cssOffenders) > 0 {
		issues = append(issues, SanityIssue{Code: IssueRelativeCSSURLs, Message: "relative css urls remain", Offenders: cssOffenders})
	}

	if len(issues) == 0 {
		return nil
	}
	return &SanityError{Issues: issues}
}
