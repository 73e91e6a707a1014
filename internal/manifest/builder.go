package manifest

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"disc-report/internal/shared/telemetry"
)

// PxStyle is a computed style as the browser reports it.
type PxStyle struct {
	FontFamily      string  `json:"fontFamily"`
	FontSizePx      float64 `json:"fontSize"`
	FontWeight      string  `json:"fontWeight"`
	Color           string  `json:"color"`
	TextAlign       string  `json:"textAlign"`
	LetterSpacingPx float64 `json:"letterSpacing"`
	BackgroundColor string  `json:"backgroundColor"`
}

// Element is a located node.
type Element struct {
	Rect  PxRect   `json:"rect"`
	Style *PxStyle `json:"style,omitempty"`
}

// PageMeasurement is everything a Measurer finds on one page.
type PageMeasurement struct {
	// Anchors holds DBF_* link spans keyed by the suffix: Naam, Voornaam,
	// Datum, Stijl.
	Anchors map[string]Element `json:"anchors"`
	// Chart is the first template image larger than 100px in both directions.
	Chart *Element `json:"chart,omitempty"`
	// PercentageGroups are containers holding exactly four "0%" elements,
	// ordered by top; elements inside are ordered top to bottom.
	PercentageGroups [][]Element `json:"percentageGroups"`
}

// Measurer loads a page and reports element boxes.
type Measurer interface {
	MeasurePage(ctx context.Context, fileURL string) (PageMeasurement, error)
}

// Warning is a non-fatal finding for one profile.
type Warning struct {
	Profile string `json:"profile"`
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Failure records a profile that could not be measured or written.
type Failure struct {
	Profile string `json:"profile"`
	Error   string `json:"error"`
}

// Report summarizes a build.
type Report struct {
	Written  []string  `json:"written"`
	Warnings []Warning `json:"warnings,omitempty"`
	Failures []Failure `json:"failures,omitempty"`
}

// Builder measures profiles and writes their manifests.
type Builder struct {
	Measurer        Measurer
	OutputDir       string
	TemplateVersion string
	Logger          *zap.Logger
	Concurrency     int
	Now             func() time.Time
}

const (
	pageName    = 0
	pageDetails = 1
	pageChart   = 2
)

// Build measures every profile and writes one manifest each. A profile that
// fails is reported and the rest continue; Build only errors when ctx ends.
func (b *Builder) Build(ctx context.Context, profiles []Profile) (Report, error) {
	logger := b.logger()
	limit := b.Concurrency
	if limit <= 0 {
		limit = 1
	}

	var (
		mu  sync.Mutex
		rep Report
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for _, p := range profiles {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			m, warnings, err := b.measure(gctx, p)
			if err == nil {
				var path string
				path, err = Write(b.OutputDir, m)
				if err == nil {
					logger.Info("manifest.written",
						zap.String("profile", p.Code),
						zap.String("path", path),
						zap.Int("fields", len(m.Fields)))
					mu.Lock()
					rep.Written = append(rep.Written, path)
					rep.Warnings = append(rep.Warnings, warnings...)
					mu.Unlock()
					return nil
				}
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			logger.Error("manifest.profile_failed", zap.String("profile", p.Code), zap.Error(err))
			mu.Lock()
			rep.Failures = append(rep.Failures, Failure{Profile: p.Code, Error: err.Error()})
			rep.Warnings = append(rep.Warnings, warnings...)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return rep, err
	}

	sort.Strings(rep.Written)
	sort.Slice(rep.Warnings, func(i, j int) bool {
		if rep.Warnings[i].Profile != rep.Warnings[j].Profile {
			return rep.Warnings[i].Profile < rep.Warnings[j].Profile
		}
		return rep.Warnings[i].Field < rep.Warnings[j].Field
	})
	sort.Slice(rep.Failures, func(i, j int) bool { return rep.Failures[i].Profile < rep.Failures[j].Profile })
	return rep, nil
}

func (b *Builder) measure(ctx context.Context, p Profile) (Manifest, []Warning, error) {
	m := Manifest{
		TemplateVersion: b.version(),
		ProfileCode:     p.Code,
		Pages:           PageCount,
		Fields:          map[string]Field{},
	}

	first, err := b.Measurer.MeasurePage(ctx, p.PageURL(pageName))
	if err != nil {
		return m, nil, fmt.Errorf("measure page %d: %w", pageName, err)
	}
	addAnchor(m.Fields, FieldName, pageName, first, "Naam")

	details, err := b.Measurer.MeasurePage(ctx, p.PageURL(pageDetails))
	if err != nil {
		return m, nil, fmt.Errorf("measure page %d: %w", pageDetails, err)
	}
	addAnchor(m.Fields, FieldDate, pageDetails, details, "Datum")
	addAnchor(m.Fields, FieldStyle, pageDetails, details, "Stijl")
	if !addAnchor(m.Fields, FieldFirstName, pageDetails, details, "Voornaam") {
		addAnchor(m.Fields, FieldFirstName, pageDetails, details, "Naam")
	}

	chart, err := b.Measurer.MeasurePage(ctx, p.PageURL(pageChart))
	if err != nil {
		return m, nil, fmt.Errorf("measure page %d: %w", pageChart, err)
	}
	if chart.Chart != nil && chart.Chart.Rect.Width > 0 {
		m.Fields[FieldChart] = Field{PageIndex: pageChart, Rect: PxToPDF(chart.Chart.Rect), Source: SourceSelector}
	}

	var warnings []Warning
	warnings = append(warnings, addPercentages(m.Fields, p.Code, chart.PercentageGroups)...)
	for _, name := range m.Missing() {
		warnings = append(warnings, Warning{Profile: p.Code, Field: name, Message: "required field not found"})
		telemetry.Warn("manifest.field_missing", map[string]any{"profile": p.Code, "field": name})
	}
	return m, warnings, nil
}

func addAnchor(fields map[string]Field, name string, page int, pm PageMeasurement, anchor string) bool {
	el, ok := pm.Anchors[anchor]
	if !ok || el.Rect.Width <= 0 {
		return false
	}
	f := Field{PageIndex: page, Rect: PxToPDF(el.Rect), Source: SourceDBF}
	if el.Style != nil {
		f.Style = StyleToPDF(*el.Style)
	}
	fields[name] = f
	return true
}

func addPercentages(fields map[string]Field, code string, groups [][]Element) []Warning {
	groups = append([][]Element(nil), groups...)
	sort.SliceStable(groups, func(i, j int) bool { return groupTop(groups[i]) < groupTop(groups[j]) })

	var warnings []Warning
	kinds := []struct {
		label string
		key   func(string) string
	}{
		{"natural", NaturalField},
		{"response", ResponseField},
	}
	for i, kind := range kinds {
		if i >= len(groups) {
			warnings = append(warnings, Warning{Profile: code, Field: kind.label, Message: "percentage container not found"})
			continue
		}
		group := append([]Element(nil), groups[i]...)
		if len(group) != len(Axes) {
			warnings = append(warnings, Warning{Profile: code, Field: kind.label, Message: fmt.Sprintf("container holds %d values", len(group))})
			continue
		}
		sort.SliceStable(group, func(a, b int) bool { return group[a].Rect.Top < group[b].Rect.Top })
		for j, axis := range Axes {
			f := Field{PageIndex: pageChart, Rect: PxToPDF(group[j].Rect), Source: SourcePercentage}
			if group[j].Style != nil {
				f.Style = StyleToPDF(*group[j].Style)
			}
			fields[kind.key(axis)] = f
		}
	}
	return warnings
}

func groupTop(g []Element) float64 {
	if len(g) == 0 {
		return 0
	}
	top := g[0].Rect.Top
	for _, e := range g[1:] {
		if e.Rect.Top < top {
			top = e.Rect.Top
		}
	}
	return top
}

func (b *Builder) version() string {
	if b.TemplateVersion != "" {
		return b.TemplateVersion
	}
	now := time.Now
	if b.Now != nil {
		now = b.Now
	}
	return now().UTC().Format("2006-01-02")
}

func (b *Builder) logger() *zap.Logger {
	if b.Logger != nil {
		return b.Logger
	}
	return telemetry.Logger()
}
