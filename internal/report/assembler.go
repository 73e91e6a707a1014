package report

import (
	"context"
	"errors"
	"fmt"
	"os"
	"regexp"
	"sort"
	"strings"
	"time"

	"disc-report/internal/scoring"
	"disc-report/internal/shared/telemetry"
)

// Input is everything the assembler needs for one report.
type Input struct {
	ProfileCode    string
	CandidateName  string
	AssessmentDate time.Time
	Scores         scoring.Result
}

// Page is one self-contained HTML document ready for rendering.
type Page struct {
	Index int
	File  string
	HTML  string
}

// Document is the assembled report.
type Document struct {
	ProfileCode         string
	Pages               []Page
	UnknownPlaceholders []string
}

// Assembler turns a profile template and scores into per-page HTML.
type Assembler struct {
	Templates    *Templates
	AllowScripts bool
}

// DirTemplates opens templates and shared assets from the filesystem.
func DirTemplates(templatesDir, assetsDir string) *Templates {
	t := &Templates{Templates: os.DirFS(templatesDir)}
	if assetsDir != "" {
		t.Assets = os.DirFS(assetsDir)
	}
	return t
}

// NewAssembler constructs an Assembler.
func NewAssembler(templates *Templates, allowScripts bool) *Assembler {
	return &Assembler{Templates: templates, AllowScripts: allowScripts}
}

// Assemble builds all pages for in. Any failure is fatal for the report.
func (a *Assembler) Assemble(ctx context.Context, in Input) (Document, error) {
	code, ok := scoring.NormalizeProfileCode(in.ProfileCode)
	if !ok {
		return Document{}, fmt.Errorf("%w: %q", ErrInvalidProfileCode, in.ProfileCode)
	}
	in.ProfileCode = code
	if in.AssessmentDate.IsZero() {
		in.AssessmentDate = time.Now()
	}

	dir, err := a.Templates.ProfileDir(code)
	if err != nil {
		return Document{}, err
	}
	css, cssPath, err := a.Templates.ReadStylesheet(dir)
	if err != nil {
		return Document{}, err
	}
	inlinedCSS, err := a.Templates.InlineCSS(css, cssPath)
	if err != nil {
		return Document{}, err
	}
	printCSS, err := a.Templates.ReadPrintCSS()
	if err != nil {
		return Document{}, err
	}
	styles := pageStyles(printCSS, inlinedCSS)

	doc := Document{ProfileCode: code, Pages: make([]Page, 0, len(PublicationFiles))}
	unknown := map[string]struct{}{}

	for i, file := range PublicationFiles {
		if err := ctx.Err(); err != nil {
			return Document{}, err
		}
		html, err := a.assemblePage(dir, file, in, styles, unknown)
		if err != nil {
			return Document{}, fmt.Errorf("page %s: %w", file, err)
		}
		doc.Pages = append(doc.Pages, Page{Index: i, File: file, HTML: html})
	}

	if len(unknown) > 0 {
		doc.UnknownPlaceholders = sortedNames(unknown)
		telemetry.Warn("report.unknown_placeholders", map[string]any{
			"profileCode":  code,
			"placeholders": strings.Join(doc.UnknownPlaceholders, ","),
		})
	}
	return doc, nil
}

func (a *Assembler) assemblePage(dir, file string, in Input, styles string, unknown map[string]struct{}) (string, error) {
	raw, pagePath, err := a.Templates.ReadPage(dir, file)
	if err != nil {
		return "", err
	}

	sub := Substitute(raw, pageValues(file, in))
	for _, name := range sub.Unknown {
		unknown[name] = struct{}{}
	}
	html := sub.HTML

	if file == chartFile {
		html, err = ReplaceChart(html, ChartDataURI(in.Scores.Natural, in.Scores.Response))
		if err != nil {
			return "", err
		}
		html = RemoveMidlineOverlay(html)
		html, err = ReplacePercentages(html, in.Scores.Natural, in.Scores.Response)
		if err != nil {
			return "", err
		}
	}

	html, err = a.Templates.InlineImages(html, pagePath)
	if err != nil {
		return "", err
	}
	body, bodyID, err := extractBody(html)
	if err != nil {
		return "", err
	}

	out := pageShell(file, bodyID, body, styles)
	if err := CheckHTML(out, SanityOptions{AllowScripts: a.AllowScripts}); err != nil {
		var se *SanityError
		if errors.As(err, &se) {
			se.File = file
		}
		return "", err
	}
	return out, nil
}

var (
	bodyOpenRe = regexp.MustCompile(`(?is)<body\b([^>]*)>`)
	idAttrRe   = regexp.MustCompile(`(?i)\bid\s*=\s*["']([^"']+)["']`)
)

// extractBody returns the inner markup of <body> and its id attribute.
func extractBody(html string) (string, string, error) {
	loc := bodyOpenRe.FindStringSubmatchIndex(html)
	if loc == nil {
		return "", "", ErrBodyNotFound
	}
	attrs := html[loc[2]:loc[3]]
	rest := html[loc[1]:]
	end := strings.LastIndex(strings.ToLower(rest), "</body>")
	if end < 0 {
		return "", "", ErrBodyNotFound
	}
	bodyID := ""
	if m := idAttrRe.FindStringSubmatch(attrs); m != nil {
		bodyID = m[1]
	}
	return rest[:end], bodyID, nil
}

const (
	// The layout tool exports 595.28x841.89pt pages; Chromium lays out at
	// 96 DPI, so the content is scaled by 96/72.
	reportScale = "1.3333333333"
)

func pageStyles(printCSS, templateCSS string) string {
	parts := []string{
		`@page { size: A4 portrait; margin: 0; }`,
		`html, body { margin: 0; padding: 0; -webkit-print-color-adjust: exact; print-color-adjust: exact; }`,
		`*, *::before, *::after { -webkit-print-color-adjust: exact; print-color-adjust: exact; }`,
		`body { width: 210mm; }`,
		printCSS,
		`:root { --report-scale: ` + reportScale + `; }`,
		`.report-page { width: 210mm; height: 297mm; margin: 0; padding: 0; box-sizing: border-box; position: relative; overflow: hidden; }`,
		`.report-direct { width: 595.28px; height: 841.89px; transform: translate(0px, 0px) scale(var(--report-scale)); transform-origin: top left; display: block; position: relative; overflow: hidden; background: #fff; contain: strict; }`,
		templateCSS,
		`.report-page { page-break-after: always; break-after: page; }`,
		`.report-page:last-child { page-break-after: auto; break-after: auto; }`,
	}
	kept := parts[:0]
	for _, p := range parts {
		if strings.TrimSpace(p) != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, "\n")
}

func pageShell(file, bodyID, body, styles string) string {
	idAttr := ""
	if bodyID != "" {
		idAttr = ` id="` + EscapeHTML(bodyID) + `"`
	}
	var b strings.Builder
	b.WriteString("<!doctype html>\n<html lang=\"nl-NL\">\n  <head>\n    <meta charset=\"utf-8\" />\n")
	b.WriteString("    <meta name=\"viewport\" content=\"width=device-width, initial-scale=1\" />\n")
	b.WriteString("    <style>\n")
	b.WriteString(styles)
	b.WriteString("\n    </style>\n  </head>\n  <body>\n")
	fmt.Fprintf(&b, `<div class="report-page" data-publication-file="%s"><div class="report-direct"%s>`, EscapeHTML(file), idAttr)
	b.WriteString(body)
	b.WriteString("</div></div>\n  </body>\n</html>")
	return b.String()
}

func sortedNames(set map[string]struct{}) []string {
	names := make([]string, 0, len(set))
	for n := range set {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
