package llm

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/Harshitk-cp/dilemma/internal/domain"
)

var (
	ErrNoStructuredBlock  = errors.New("no structured block in response")
	ErrInvalidConsequence = errors.New("consequence block does not match schema")
	ErrEmptyResponse      = errors.New("empty response")
	ErrUnexpectedJSON     = errors.New("expected prose, got a JSON object")
)

// consequenceBlock uses pointers so missing keys can be told apart from empty values.
type consequenceBlock struct {
	Narrative  *string   `json:"narrative"`
	Initiated  *[]string `json:"fluents_initiated"`
	Terminated *[]string `json:"fluents_terminated"`
}

// ParseConsequence extracts the first well-formed JSON object from raw and
// checks it against the consequence schema. Any failure yields an error and
// never a partially populated consequence.
func ParseConsequence(raw string) (domain.Consequence, error) {
	block, err := firstJSONObject(raw)
	if err != nil {
		return domain.Consequence{}, err
	}

	var b consequenceBlock
	if err := json.Unmarshal(block, &b); err != nil {
		return domain.Consequence{}, fmt.Errorf("%w: %v", ErrInvalidConsequence, err)
	}
	if b.Narrative == nil || strings.TrimSpace(*b.Narrative) == "" {
		return domain.Consequence{}, fmt.Errorf("%w: narrative missing", ErrInvalidConsequence)
	}
	if b.Initiated == nil || b.Terminated == nil {
		return domain.Consequence{}, fmt.Errorf("%w: fluent lists missing", ErrInvalidConsequence)
	}
	for _, list := range [][]string{*b.Initiated, *b.Terminated} {
		for _, f := range list {
			if strings.TrimSpace(f) == "" {
				return domain.Consequence{}, fmt.Errorf("%w: blank fluent identifier", ErrInvalidConsequence)
			}
		}
	}

	return domain.Consequence{
		Kind:      domain.ConsequenceGenerated,
		Narrative: strings.TrimSpace(*b.Narrative),
		Delta: domain.FluentDelta{
			Initiated:  domain.NewFluentSet(*b.Initiated...),
			Terminated: domain.NewFluentSet(*b.Terminated...),
		},
	}, nil
}

// ParseAnalysis normalizes a free-text analysis response. A reply that is a
// JSON object is rejected.
func ParseAnalysis(raw string) (string, error) {
	text := strings.TrimSpace(stripFences(raw))
	if text == "" {
		return "", ErrEmptyResponse
	}
	if strings.HasPrefix(text, "{") {
		var obj map[string]json.RawMessage
		if json.Unmarshal([]byte(text), &obj) == nil {
			return "", ErrUnexpectedJSON
		}
	}
	return text, nil
}

func firstJSONObject(raw string) (json.RawMessage, error) {
	s := stripFences(raw)
	for i := 0; i < len(s); i++ {
		if s[i] != '{' {
			continue
		}
		var obj json.RawMessage
		if err := json.NewDecoder(strings.NewReader(s[i:])).Decode(&obj); err == nil {
			return obj, nil
		}
	}
	return nil, ErrNoStructuredBlock
}

func stripFences(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}
