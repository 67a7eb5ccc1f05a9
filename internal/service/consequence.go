package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Harshitk-cp/dilemma/internal/domain"
	"github.com/Harshitk-cp/dilemma/internal/llm"
	"go.uber.org/zap"
)

const consequenceMaxTokens = 400

// ConsequenceGenerator turns a chosen option into a narrative and fluent delta.
// It makes one attempt against the LLM and falls back on any failure.
type ConsequenceGenerator struct {
	llmClient domain.LLMClient
	timeout   time.Duration
	logger    *zap.Logger
}

func NewConsequenceGenerator(lc domain.LLMClient, timeout time.Duration, logger *zap.Logger) *ConsequenceGenerator {
	return &ConsequenceGenerator{
		llmClient: lc,
		timeout:   timeout,
		logger:    logger,
	}
}

// ConsequenceInput is everything the generator sees about one choice.
type ConsequenceInput struct {
	CaseID          string
	DecisionIndex   int
	Decision        domain.DecisionPoint
	Option          domain.Option
	ActiveFluents   domain.FluentSet
	TransitionRules string
	History         string
}

// FallbackConsequence is the deterministic outcome used when generation fails.
func FallbackConsequence(optionLabel string) domain.Consequence {
	label := strings.TrimRight(strings.TrimSpace(optionLabel), ".")
	return domain.Consequence{
		Kind:      domain.ConsequenceFallback,
		Narrative: fmt.Sprintf("You chose to %s. The situation continues to develop.", label),
	}
}

// Generate never fails; a collaborator error or unparseable response yields
// FallbackConsequence.
func (g *ConsequenceGenerator) Generate(ctx context.Context, in ConsequenceInput) domain.Consequence {
	if g.llmClient == nil {
		return FallbackConsequence(in.Option.Label)
	}

	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	prompt := llm.ConsequencePrompt(llm.ConsequenceRequest{
		Decision:        in.Decision,
		Option:          in.Option,
		ActiveFluents:   in.ActiveFluents,
		TransitionRules: in.TransitionRules,
		History:         in.History,
	})

	raw, err := g.llmClient.Complete(ctx, prompt, consequenceMaxTokens)
	if err != nil {
		g.warn(in, fmt.Errorf("%w: %v", ErrGenerationUnavailable, err))
		return FallbackConsequence(in.Option.Label)
	}

	c, err := llm.ParseConsequence(raw)
	if err != nil {
		g.warn(in, fmt.Errorf("%w: %v", ErrGenerationUnavailable, err))
		return FallbackConsequence(in.Option.Label)
	}
	return c
}

func (g *ConsequenceGenerator) warn(in ConsequenceInput, err error) {
	g.logger.Warn("consequence generation failed, using fallback",
		zap.String("case_id", in.CaseID),
		zap.Int("decision_index", in.DecisionIndex),
		zap.String("decision_point_id", in.Decision.ID),
		zap.Error(err),
	)
}
