package report

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"disc-report/internal/scoring"
)

// Placeholder names recognised in template markup.
const (
	PlaceholderName      = "Naam"
	PlaceholderFirstName = "Voornaam"
	PlaceholderDate      = "Datum"
	PlaceholderStyle     = "Stijl"
)

const (
	defaultFirstName = "Deelnemer"
	dateLayout       = "02-01-2006"
	nbsp             = "\u00a0"
	coverFile        = "publication-1.html"
	chartFile        = "publication-2.html"
)

// Matches both the raw <<Name>> form and the entity-escaped form exported
// by the layout tool.
var placeholderRe = regexp.MustCompile(`&lt;&lt;([^<>&]+?)&gt;&gt;|<<([^<>]+)>>`)

var htmlEscaper = strings.NewReplacer(
	"&", "&amp;",
	"<", "&lt;",
	">", "&gt;",
	`"`, "&quot;",
	"'", "&#39;",
)

// EscapeHTML escapes text for use in element content and attribute values.
func EscapeHTML(s string) string {
	return htmlEscaper.Replace(s)
}

// FirstName returns the first whitespace-separated token of a display name.
func FirstName(full string) string {
	parts := strings.Fields(full)
	if len(parts) > 0 {
		return parts[0]
	}
	return defaultFirstName
}

// FormatDate renders a date as dd-mm-yyyy.
func FormatDate(t time.Time) string {
	return t.Format(dateLayout)
}

// pageValues returns the placeholder values for one page. The cover page
// (publication-1) carries the profile code after the date instead of in the
// style field.
func pageValues(file string, in Input) map[string]string {
	date := FormatDate(in.AssessmentDate)
	values := map[string]string{
		PlaceholderName:      strings.TrimSpace(in.CandidateName),
		PlaceholderFirstName: FirstName(in.CandidateName),
		PlaceholderDate:      date,
		PlaceholderStyle:     in.ProfileCode,
	}
	if file == coverFile {
		values[PlaceholderDate] = date + strings.Repeat(nbsp, 3) + in.ProfileCode
		values[PlaceholderStyle] = ""
	}
	for _, axis := range scoring.Axes {
		values["Natuurlijk"+string(axis)] = formatPercent(in.Scores.Natural.Get(axis))
		values["Respons"+string(axis)] = formatPercent(in.Scores.Response.Get(axis))
	}
	return values
}

func formatPercent(v int) string {
	return strconv.Itoa(v) + "%"
}

// SubstituteResult describes one placeholder pass.
type SubstituteResult struct {
	HTML     string
	Unknown  []string
	Replaced map[string]int
}

// Substitute replaces every known placeholder with its escaped value.
// Unknown placeholders are left in place and reported.
func Substitute(html string, values map[string]string) SubstituteResult {
	unknown := map[string]struct{}{}
	replaced := map[string]int{}

	out := placeholderRe.ReplaceAllStringFunc(html, func(match string) string {
		sub := placeholderRe.FindStringSubmatch(match)
		name := strings.TrimSpace(sub[1])
		if name == "" {
			name = strings.TrimSpace(sub[2])
		}
		if name == "" {
			return match
		}
		val, ok := values[name]
		if !ok {
			unknown[name] = struct{}{}
			return match
		}
		replaced[name]++
		return EscapeHTML(val)
	})

	return SubstituteResult{HTML: out, Unknown: sortedNames(unknown), Replaced: replaced}
}
