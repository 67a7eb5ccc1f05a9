package service

import (
	"fmt"
	"strings"

	"github.com/Harshitk-cp/dilemma/internal/domain"
)

// ContextFluentCap bounds how many active fluents go into the narrative context.
const ContextFluentCap = 5

// CurrentDecision returns the decision point at index, or nil once every
// decision point has been answered.
func CurrentDecision(points []domain.DecisionPoint, index int) *domain.DecisionPoint {
	if index < 0 || index >= len(points) {
		return nil
	}
	dp := points[index]
	return &dp
}

// BuildNarrativeContext assembles the story so far for the consequence prompt:
// the opening narrative, each prior consequence in order, and a digest of the
// first few active fluents.
func BuildNarrativeContext(opening string, choices []domain.Choice, active domain.FluentSet) string {
	var b strings.Builder
	b.WriteString(strings.TrimSpace(opening))

	for _, c := range choices {
		fmt.Fprintf(&b, "\n\nDecision %d: you chose %q. %s", c.DecisionPointIndex+1, c.ChosenOptionLabel, c.Narrative)
	}

	if !active.IsEmpty() {
		fmt.Fprintf(&b, "\n\nCurrent situation: %s", strings.Join(active.First(ContextFluentCap), ", "))
		if extra := active.Len() - ContextFluentCap; extra > 0 {
			fmt.Fprintf(&b, " (and %d more)", extra)
		}
	}
	return strings.TrimSpace(b.String())
}
