package scoring

import "fmt"

// Validate checks the shape of an answer set: 48 answers, statement ids in
// range, and exactly one most and one least on distinct statements per group.
func Validate(answers []Answer) error {
	var issues []string
	if len(answers) != AnswerCount {
		issues = append(issues, fmt.Sprintf("expected %d answers, got %d", AnswerCount, len(answers)))
	}

	type groupState struct {
		most, least int
		mostCount   int
		leastCount  int
	}
	groups := make([]groupState, GroupCount)

	for i, a := range answers {
		if a.StatementID < 1 || a.StatementID > StatementCount {
			issues = append(issues, fmt.Sprintf("answer %d: statement %d out of range", i, a.StatementID))
			continue
		}
		g := &groups[(a.StatementID-1)/GroupSize]
		switch a.Selection {
		case SelectionMost:
			g.mostCount++
			g.most = a.StatementID
		case SelectionLeast:
			g.leastCount++
			g.least = a.StatementID
		default:
			issues = append(issues, fmt.Sprintf("answer %d: unknown selection %q", i, a.Selection))
		}
	}

	for i, g := range groups {
		first := i*GroupSize + 1
		label := fmt.Sprintf("group %d-%d", first, first+GroupSize-1)
		if g.mostCount != 1 {
			issues = append(issues, fmt.Sprintf("%s: expected one most selection, got %d", label, g.mostCount))
		}
		if g.leastCount != 1 {
			issues = append(issues, fmt.Sprintf("%s: expected one least selection, got %d", label, g.leastCount))
		}
		if g.mostCount == 1 && g.leastCount == 1 && g.most == g.least {
			issues = append(issues, fmt.Sprintf("%s: most and least on the same statement %d", label, g.most))
		}
	}

	if len(issues) > 0 {
		return &ValidationError{Issues: issues}
	}
	return nil
}
