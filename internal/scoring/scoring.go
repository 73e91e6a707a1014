package scoring

import (
	"math"
	"sort"
	"strings"
	"sync"
)

// Tie-break order when two axes share a percentage.
var priority = map[Axis]int{AxisD: 0, AxisI: 1, AxisC: 2, AxisS: 3}

// Engine scores answer sets against a fixed weight configuration.
type Engine struct {
	natural  compiledTable
	response compiledTable
}

type compiledTable struct {
	byStatement  map[int]StatementWeight
	denominators map[Axis]float64
}

// NewEngine validates cfg and returns an Engine bound to it.
func NewEngine(cfg Config) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Engine{natural: compile(cfg.Natural), response: compile(cfg.Response)}, nil
}

func compile(t Table) compiledTable {
	ct := compiledTable{
		byStatement:  make(map[int]StatementWeight, len(t.Statements)),
		denominators: make(map[Axis]float64, len(t.Denominators)),
	}
	for _, sw := range t.Statements {
		ct.byStatement[sw.Statement] = sw
	}
	for k, v := range t.Denominators {
		ct.denominators[k] = v
	}
	return ct
}

var (
	defaultOnce   sync.Once
	defaultEngine *Engine
	defaultErr    error
)

// Default returns the engine built from the embedded configuration.
func Default() (*Engine, error) {
	defaultOnce.Do(func() {
		cfg, err := DefaultConfig()
		if err != nil {
			defaultErr = err
			return
		}
		defaultEngine, defaultErr = NewEngine(cfg)
	})
	return defaultEngine, defaultErr
}

// Score scores answers with the embedded configuration.
func Score(answers []Answer) (Result, error) {
	e, err := Default()
	if err != nil {
		return Result{}, err
	}
	return e.Score(answers)
}

// Score validates the answer set and computes both styles, the profile code
// and the alert flag. Natural style is fed by least selections, response
// style by most selections.
func (e *Engine) Score(answers []Answer) (Result, error) {
	if err := Validate(answers); err != nil {
		return Result{}, err
	}

	natural := e.natural.percentages(answers, SelectionLeast)
	response := e.response.percentages(answers, SelectionMost)

	return Result{
		Natural:     natural,
		Response:    response,
		ProfileCode: ProfileCode(natural),
		Alert:       IsAlert(natural),
	}, nil
}

func (t compiledTable) percentages(answers []Answer, sel Selection) Percentages {
	points := make(map[Axis]float64, len(Axes))
	for _, a := range answers {
		if a.Selection != sel {
			continue
		}
		sw, ok := t.byStatement[a.StatementID]
		if !ok {
			continue
		}
		wp, ws := sw.weights()
		points[sw.Primary] += wp
		points[sw.Secondary] += ws
	}

	var out Percentages
	for _, axis := range Axes {
		out.set(axis, normalize(points[axis], t.denominators[axis]))
	}
	return out
}

func normalize(points, denominator float64) int {
	if denominator <= 0 {
		return 0
	}
	pct := int(math.Round(points / (2 * denominator) * 100))
	if pct < 0 {
		return 0
	}
	if pct > 100 {
		return 100
	}
	return pct
}

// Ranked returns the axes sorted by percentage descending, ties broken D, I, C, S.
func Ranked(p Percentages) []Axis {
	out := append([]Axis(nil), Axes...)
	sort.SliceStable(out, func(i, j int) bool {
		pi, pj := p.Get(out[i]), p.Get(out[j])
		if pi != pj {
			return pi > pj
		}
		return priority[out[i]] < priority[out[j]]
	})
	return out
}

// ProfileCode derives the one or two letter profile label from the natural
// percentages. Axes at or above the threshold are eligible; with none
// eligible the top two ranked axes are used.
func ProfileCode(natural Percentages) string {
	ranked := Ranked(natural)
	var eligible []Axis
	for _, a := range ranked {
		if natural.Get(a) >= Threshold {
			eligible = append(eligible, a)
		}
	}
	switch {
	case len(eligible) >= 2:
		return string(eligible[0]) + string(eligible[1])
	case len(eligible) == 1:
		return string(eligible[0])
	default:
		return string(ranked[0]) + string(ranked[1])
	}
}

// IsAlert reports a degenerate natural distribution: every axis below the
// threshold, or every axis at or above it.
func IsAlert(natural Percentages) bool {
	below, atOrAbove := 0, 0
	for _, a := range Axes {
		if natural.Get(a) < Threshold {
			below++
		} else {
			atOrAbove++
		}
	}
	return below == len(Axes) || atOrAbove == len(Axes)
}

// ValidProfileCodes lists every code a template may exist for.
func ValidProfileCodes() []string {
	out := make([]string, 0, 16)
	for _, a := range Axes {
		out = append(out, string(a))
	}
	for _, a := range Axes {
		for _, b := range Axes {
			if a != b {
				out = append(out, string(a)+string(b))
			}
		}
	}
	return out
}

// NormalizeProfileCode upper-cases and validates a profile code.
func NormalizeProfileCode(raw string) (string, bool) {
	code := strings.ToUpper(strings.TrimSpace(raw))
	for _, valid := range ValidProfileCodes() {
		if code == valid {
			return code, true
		}
	}
	return "", false
}
