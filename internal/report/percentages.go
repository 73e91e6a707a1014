package report

import (
	"fmt"
	"regexp"
	"strings"

	"disc-report/internal/scoring"
)

var (
	// The chart is exported as image 21 or 22 depending on the profile.
	chartPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?s)(<div\s+id="_idContainer021"[^>]*>.*?<img[^>]+src=")\.\./image/21\.png("[^>]*>)`),
		regexp.MustCompile(`(?s)(<div\s+id="_idContainer022"[^>]*>.*?<img[^>]+src=")\.\./image/22\.png("[^>]*>)`),
	}

	// Thin 50% midline exported as an inline PNG on top of the static chart.
	midlineOverlayRe = regexp.MustCompile(`<div\s+id="_idContainer\d+"[^>]*>\s*<div[^>]*class="[^"]*\bBasisafbeeldingskader\b[^"]*"[^>]*>\s*<img[^>]*src="data:image/png;base64,iVBORw0KGgoAAAANSUhEUgAAAK4AAAABCAYAAABHRpXV[^"]*"[^>]*>\s*</div>\s*</div>`)

	containerBlockRe = regexp.MustCompile(`(?s)<div\s+id="_idContainer0\d{2}"[^>]*>.*?</div>\s*</div>`)
	zeroPercentRe    = regexp.MustCompile(`>\s*0%\s*<`)
)

// ReplaceChart swaps the static chart image for dataURI. Exactly one chart
// element must be present across both export variants.
func ReplaceChart(html, dataURI string) (string, error) {
	var found [][]int
	for _, re := range chartPatterns {
		found = append(found, re.FindAllStringSubmatchIndex(html, -1)...)
	}
	if len(found) != 1 {
		return html, fmt.Errorf("%w: found %d", ErrChartNotFound, len(found))
	}
	loc := found[0]
	var b strings.Builder
	b.WriteString(html[:loc[0]])
	b.WriteString(html[loc[2]:loc[3]])
	b.WriteString(dataURI)
	b.WriteString(html[loc[4]:loc[5]])
	b.WriteString(html[loc[1]:])
	return b.String(), nil
}

// RemoveMidlineOverlay drops the exported midline image so it does not sit
// over the generated chart.
func RemoveMidlineOverlay(html string) string {
	return midlineOverlayRe.ReplaceAllString(html, "")
}

// ReplacePercentages fills the two "0%" blocks: the first with natural
// values, the second with response values, each in D, I, S, C order.
func ReplacePercentages(html string, natural, response scoring.Percentages) (string, error) {
	var blocks []string
	for _, block := range containerBlockRe.FindAllString(html, -1) {
		if zeroPercentRe.MatchString(block) {
			blocks = append(blocks, block)
		}
	}
	if len(blocks) < 2 {
		return html, fmt.Errorf("%w: found %d", ErrPercentagesNotFound, len(blocks))
	}
	html = strings.Replace(html, blocks[0], fillPercentBlock(blocks[0], natural), 1)
	html = strings.Replace(html, blocks[1], fillPercentBlock(blocks[1], response), 1)
	return html, nil
}

func fillPercentBlock(block string, p scoring.Percentages) string {
	values := make([]string, 0, len(scoring.Axes))
	for _, axis := range scoring.Axes {
		values = append(values, formatPercent(p.Get(axis)))
	}
	idx := 0
	return zeroPercentRe.ReplaceAllStringFunc(block, func(match string) string {
		if idx >= len(values) {
			return match
		}
		v := values[idx]
		idx++
		return ">" + v + "<"
	})
}
