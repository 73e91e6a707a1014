package report

import (
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"

	"disc-report/internal/scoring"
)

const (
	chartWidth  = 400
	chartHeight = 320

	marginTop    = 20
	marginRight  = 130
	marginBottom = 50
	marginLeft   = 40

	responseStroke = "#9ca3af"
	gridStroke     = "#e5e7eb"
)

var axisColors = map[scoring.Axis]string{
	scoring.AxisD: "#cb1517",
	scoring.AxisI: "#ffcb04",
	scoring.AxisS: "#029939",
	scoring.AxisC: "#2665ae",
}

func num(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// ChartSVG draws natural percentages as coloured bars and response
// percentages as a grey line with square markers.
func ChartSVG(natural, response scoring.Percentages) string {
	plotW := float64(chartWidth - marginLeft - marginRight)
	plotH := float64(chartHeight - marginTop - marginBottom)
	catW := plotW / float64(len(scoring.Axes))
	barW := catW * 0.36
	yFor := func(pct int) float64 {
		return marginTop + plotH - float64(pct)/100*plotH
	}

	var b strings.Builder
	fmt.Fprintf(&b, `<svg width="%d" height="%d" xmlns="http://www.w3.org/2000/svg" data-disc-chart="1">`, chartWidth, chartHeight)
	b.WriteString(`<defs><style>text { font-family: 'PT Sans', 'Segoe UI', Roboto, Arial, sans-serif; }</style></defs>`)
	fmt.Fprintf(&b, `<rect width="%d" height="%d" fill="white"/>`, chartWidth, chartHeight)
	fmt.Fprintf(&b, `<rect x="%d" y="%d" width="%s" height="%s" fill="none" stroke="%s" stroke-width="1"/>`,
		marginLeft, marginTop, num(plotW), num(plotH), gridStroke)

	for _, tick := range []int{0, 20, 40, 60, 80, 100} {
		y := yFor(tick)
		if tick != 0 {
			fmt.Fprintf(&b, `<line x1="%d" y1="%s" x2="%s" y2="%s" stroke="%s" stroke-width="1"/>`,
				marginLeft, num(y), num(marginLeft+plotW), num(y), gridStroke)
		}
		fmt.Fprintf(&b, `<text x="%d" y="%s" text-anchor="end" font-size="10" fill="#666">%d%%</text>`,
			marginLeft-10, num(y+4), tick)
	}

	y50 := yFor(50)
	fmt.Fprintf(&b, `<line x1="%d" x2="%s" y1="%s" y2="%s" stroke="rgba(0,0,0,0.35)" stroke-width="1.25" stroke-dasharray="4 4" shape-rendering="crispEdges"/>`,
		marginLeft, num(marginLeft+plotW), num(y50), num(y50))

	for i, axis := range scoring.Axes {
		x := marginLeft + float64(i)*catW + (catW-barW)/2
		h := float64(natural.Get(axis)) / 100 * plotH
		fmt.Fprintf(&b, `<rect x="%s" y="%s" width="%s" height="%s" fill="%s"/>`,
			num(x), num(marginTop+plotH-h), num(barW), num(h), axisColors[axis])
	}

	var line strings.Builder
	var markers strings.Builder
	for i, axis := range scoring.Axes {
		x := marginLeft + float64(i)*catW + catW/2
		y := yFor(response.Get(axis))
		cmd := "L"
		if i == 0 {
			cmd = "M"
		}
		fmt.Fprintf(&line, "%s %s %s ", cmd, num(x), num(y))
		fmt.Fprintf(&markers, `<rect x="%s" y="%s" width="6" height="6" fill="#ffffff" stroke="%s" stroke-width="1.5"/>`,
			num(x-3), num(y-3), responseStroke)
	}
	fmt.Fprintf(&b, `<path d="%s" stroke="%s" stroke-width="1.5" fill="none"/>`, strings.TrimSpace(line.String()), responseStroke)
	b.WriteString(markers.String())

	for i, axis := range scoring.Axes {
		x := marginLeft + (float64(i)+0.5)*catW
		fmt.Fprintf(&b, `<text x="%s" y="%s" text-anchor="middle" font-size="12" font-weight="normal" fill="#374151">%s</text>`,
			num(x), num(marginTop+plotH+18), axis)
	}

	fmt.Fprintf(&b, `<g transform="translate(%s, %d)">`, num(marginLeft+plotW+12), marginTop+6)
	fmt.Fprintf(&b, `<rect x="0" y="0" width="14" height="10" fill="%s"/>`, responseStroke)
	b.WriteString(`<text x="20" y="9" font-size="11" fill="#333">Natuurlijke stijl</text>`)
	fmt.Fprintf(&b, `<line x1="0" y1="26" x2="14" y2="26" stroke="%s" stroke-width="1.5"/>`, responseStroke)
	fmt.Fprintf(&b, `<rect x="6" y="23" width="6" height="6" fill="#ffffff" stroke="%s" stroke-width="1.5"/>`, responseStroke)
	b.WriteString(`<text x="20" y="28" font-size="11" fill="#333">Respons stijl</text>`)
	b.WriteString(`</g></svg>`)
	return b.String()
}

// ChartDataURI returns the chart as a base64 SVG data URI.
func ChartDataURI(natural, response scoring.Percentages) string {
	return "data:image/svg+xml;base64," + base64.StdEncoding.EncodeToString([]byte(ChartSVG(natural, response)))
}
