package llm

import (
	"fmt"
	"strings"

	"github.com/Harshitk-cp/dilemma/internal/domain"
)

// Prompt section limits, in runes.
const (
	maxRulesChars     = 2000
	maxHistoryChars   = 3000
	maxQuestionChars  = 1000
	maxOptionChars    = 800
	maxPromptFluents  = 40
	maxSummaryChoices = 50
)

const consequencePrompt = `You are the narrator of an interactive professional-ethics case. The user has just made a decision.
Describe what plausibly happens next and how the state of the scenario changes.

STATE TRANSITION RULES
%s

CASE SO FAR
%s

CURRENTLY TRUE FLUENTS
%s

DECISION
%s

CHOSEN OPTION
%s

Rules:
- The narrative must be 2-3 sentences, second person, and must not judge whether the choice was right.
- Only initiate or terminate fluents permitted by the transition rules.
- Fluent identifiers are short snake_case propositions, e.g. "conflict_disclosed".
- Use empty arrays when nothing changes.

Respond ONLY with JSON, no markdown fences:
{"narrative":"...","fluents_initiated":["..."],"fluents_terminated":["..."]}`

const analysisPromptHeader = "You are reviewing how a user worked through a professional-ethics case"

const analysisPrompt = analysisPromptHeader + ` compared with the ethics board's actual resolution.

Case: %s

The user's choices, in order:
%s

The user matched the board's resolution %d out of %d times.

Write a 3-4 paragraph comparative analysis in second person:
- Where the user's reasoning aligned with the board and why that mattered.
- Where it diverged, and which professional obligations the board weighed differently.
- A closing reflection on the ethical principles the case illustrates.

Respond with ONLY the analysis text. No headings, no markdown.`

// ConsequenceRequest carries everything the consequence prompt is built from.
type ConsequenceRequest struct {
	Decision        domain.DecisionPoint
	Option          domain.Option
	ActiveFluents   domain.FluentSet
	TransitionRules string
	History         string
}

// ConsequencePrompt renders the bounded prompt for one chosen option.
func ConsequencePrompt(req ConsequenceRequest) string {
	rules := strings.TrimSpace(req.TransitionRules)
	if rules == "" {
		rules = "(no explicit rules; keep changes minimal and grounded in the decision)"
	}

	history := strings.TrimSpace(req.History)
	if history == "" {
		history = "(no prior context)"
	}

	fluents := "(none)"
	if !req.ActiveFluents.IsEmpty() {
		fluents = strings.Join(req.ActiveFluents.First(maxPromptFluents), "\n")
	}

	var decision strings.Builder
	decision.WriteString(truncate(req.Decision.Question, maxQuestionChars))
	if req.Decision.Context != "" {
		decision.WriteString("\n")
		decision.WriteString(truncate(req.Decision.Context, maxQuestionChars))
	}

	option := req.Option.Label
	if req.Option.Description != "" {
		option += ": " + req.Option.Description
	}

	return fmt.Sprintf(consequencePrompt,
		truncate(rules, maxRulesChars),
		truncateTail(history, maxHistoryChars),
		fluents,
		decision.String(),
		truncate(option, maxOptionChars),
	)
}

// AnalysisPrompt renders the comparative analysis prompt.
func AnalysisPrompt(caseTitle string, comparisons []domain.ChoiceComparison, matchCount, total int) string {
	var sb strings.Builder
	for i, c := range comparisons {
		if i >= maxSummaryChoices {
			break
		}
		ref := "no recorded board position"
		if c.ReferenceLabel != nil {
			ref = *c.ReferenceLabel
		}
		sb.WriteString(fmt.Sprintf("%d. %s\n   User chose: %s\n   Board chose: %s\n",
			c.DecisionPointIndex+1,
			truncate(c.Question, maxQuestionChars),
			truncate(c.ChosenLabel, maxOptionChars),
			truncate(ref, maxOptionChars),
		))
	}
	return fmt.Sprintf(analysisPrompt, caseTitle, sb.String(), matchCount, total)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}

// truncateTail keeps the end of s, where the most recent history lives.
func truncateTail(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return "..." + string(r[len(r)-n:])
}
