package scoring

// Axis is one of the four DISC dimensions.
type Axis string

const (
	AxisD Axis = "D"
	AxisI Axis = "I"
	AxisS Axis = "S"
	AxisC Axis = "C"
)

// Axes lists the axes in canonical D, I, S, C order.
var Axes = []Axis{AxisD, AxisI, AxisS, AxisC}

// Selection marks a statement as most or least like the candidate.
type Selection string

const (
	SelectionMost  Selection = "most"
	SelectionLeast Selection = "least"
)

const (
	// StatementCount is the number of statements in the questionnaire.
	StatementCount = 96
	// GroupSize is the number of consecutive statements shown together.
	GroupSize = 4
	// GroupCount is the number of statement groups.
	GroupCount = StatementCount / GroupSize
	// AnswerCount is one most and one least selection per group.
	AnswerCount = GroupCount * 2
	// Threshold is the percentage at which an axis counts as dominant.
	Threshold = 50
)

// Answer is a single selection made by the candidate.
type Answer struct {
	StatementID int       `json:"statementId"`
	Selection   Selection `json:"selection"`
}

// Percentages holds one integer percentage in [0,100] per axis.
type Percentages struct {
	D int `json:"D"`
	I int `json:"I"`
	S int `json:"S"`
	C int `json:"C"`
}

// Get returns the percentage for an axis.
func (p Percentages) Get(a Axis) int {
	switch a {
	case AxisD:
		return p.D
	case AxisI:
		return p.I
	case AxisS:
		return p.S
	case AxisC:
		return p.C
	}
	return 0
}

func (p *Percentages) set(a Axis, v int) {
	switch a {
	case AxisD:
		p.D = v
	case AxisI:
		p.I = v
	case AxisS:
		p.S = v
	case AxisC:
		p.C = v
	}
}

// Result is the outcome of scoring one answer set.
type Result struct {
	Natural     Percentages `json:"natural"`
	Response    Percentages `json:"response"`
	ProfileCode string      `json:"profileCode"`
	Alert       bool        `json:"alert"`
}
