// Package manifest measures where the dynamic fields sit on each template
// page and records them as PDF coordinates, one JSON file per profile.
package manifest

import (
	"math"
	"sort"
)

// PageCount is the number of template pages a manifest describes.
const PageCount = 9

// A4 geometry. CSS pixels are 1/96 inch, PDF points 1/72 inch.
const (
	PxToPt       = 0.75
	PageHeightPt = 841.89
	PageWidthPt  = 595.28
)

// Source records how a field was located.
type Source string

const (
	SourceDBF        Source = "DBF"
	SourceSelector   Source = "SELECTOR"
	SourcePercentage Source = "PERCENTAGE"
)

// Field names.
const (
	FieldName      = "name"
	FieldFirstName = "firstName"
	FieldDate      = "date"
	FieldStyle     = "style"
	FieldChart     = "chart"
)

// Axes in the order containers list them top to bottom.
var Axes = []string{"D", "I", "S", "C"}

// NaturalField returns the manifest key for a natural percentage, e.g. naturalD.
func NaturalField(axis string) string { return "natural" + axis }

// ResponseField returns the manifest key for a response percentage.
func ResponseField(axis string) string { return "response" + axis }

// RequiredFields must be present for a manifest to be usable.
var RequiredFields = []string{FieldName, FieldChart}

// Rect is a box in PDF points with a bottom-left origin.
type Rect struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	W float64 `json:"w"`
	H float64 `json:"h"`
}

// PxRect is a box as the browser reports it: CSS pixels, top-left origin.
type PxRect struct {
	Top    float64 `json:"top"`
	Left   float64 `json:"left"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// TextStyle is the computed style of a text field, converted to points.
type TextStyle struct {
	FontFamily      string  `json:"fontFamily"`
	FontSize        float64 `json:"fontSize"`
	FontWeight      string  `json:"fontWeight,omitempty"`
	Color           string  `json:"color,omitempty"`
	TextAlign       string  `json:"textAlign,omitempty"`
	LetterSpacing   float64 `json:"letterSpacing,omitempty"`
	BackgroundColor string  `json:"backgroundColor,omitempty"`
}

// Field is one positioned value.
type Field struct {
	PageIndex int        `json:"pageIndex"`
	Rect      Rect       `json:"rect"`
	Source    Source     `json:"source"`
	Style     *TextStyle `json:"textStyle,omitempty"`
}

// Manifest holds every field of one profile template.
type Manifest struct {
	TemplateVersion string           `json:"templateVersion"`
	ProfileCode     string           `json:"profileCode"`
	Pages           int              `json:"pages"`
	Fields          map[string]Field `json:"fields"`
}

// Missing lists the required fields the manifest lacks.
func (m Manifest) Missing() []string {
	var out []string
	for _, name := range RequiredFields {
		if _, ok := m.Fields[name]; !ok {
			out = append(out, name)
		}
	}
	return out
}

// FieldNames returns the field keys in sorted order.
func (m Manifest) FieldNames() []string {
	out := make([]string, 0, len(m.Fields))
	for k := range m.Fields {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// PxToPDF converts a browser box to PDF points, flipping the y axis.
func PxToPDF(r PxRect) Rect {
	w := r.Width * PxToPt
	h := r.Height * PxToPt
	top := r.Top * PxToPt
	return Rect{
		X: round2(r.Left * PxToPt),
		Y: round2(PageHeightPt - (top + h)),
		W: round2(w),
		H: round2(h),
	}
}

// StyleToPDF converts the pixel-valued parts of a computed style.
func StyleToPDF(s PxStyle) *TextStyle {
	return &TextStyle{
		FontFamily:      s.FontFamily,
		FontSize:        round2(s.FontSizePx * PxToPt),
		FontWeight:      s.FontWeight,
		Color:           s.Color,
		TextAlign:       s.TextAlign,
		LetterSpacing:   round2(s.LetterSpacingPx * PxToPt),
		BackgroundColor: s.BackgroundColor,
	}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
