package domain

import (
	"encoding/json"
	"slices"
	"strings"
)

// FluentSet is an immutable, sorted set of fluent identifiers.
// Every operation returns a new set; the zero value is the empty set.
type FluentSet struct {
	items []string
}

// NewFluentSet builds a set from the given identifiers.
// Identifiers are trimmed; empty ones and duplicates are dropped.
func NewFluentSet(items ...string) FluentSet {
	out := make([]string, 0, len(items))
	for _, it := range items {
		it = strings.TrimSpace(it)
		if it == "" {
			continue
		}
		out = append(out, it)
	}
	slices.Sort(out)
	return FluentSet{items: slices.Compact(out)}
}

func (s FluentSet) Len() int {
	return len(s.items)
}

func (s FluentSet) IsEmpty() bool {
	return len(s.items) == 0
}

func (s FluentSet) Contains(f string) bool {
	_, found := slices.BinarySearch(s.items, f)
	return found
}

// Items returns a sorted copy of the identifiers. Never nil.
func (s FluentSet) Items() []string {
	out := make([]string, len(s.items))
	copy(out, s.items)
	return out
}

// First returns at most n identifiers in sorted order.
func (s FluentSet) First(n int) []string {
	if n > len(s.items) {
		n = len(s.items)
	}
	if n < 0 {
		n = 0
	}
	out := make([]string, n)
	copy(out, s.items[:n])
	return out
}

func (s FluentSet) Union(o FluentSet) FluentSet {
	merged := make([]string, 0, len(s.items)+len(o.items))
	merged = append(merged, s.items...)
	merged = append(merged, o.items...)
	slices.Sort(merged)
	return FluentSet{items: slices.Compact(merged)}
}

func (s FluentSet) Minus(o FluentSet) FluentSet {
	out := make([]string, 0, len(s.items))
	for _, it := range s.items {
		if !o.Contains(it) {
			out = append(out, it)
		}
	}
	return FluentSet{items: out}
}

func (s FluentSet) Intersect(o FluentSet) FluentSet {
	out := make([]string, 0)
	for _, it := range s.items {
		if o.Contains(it) {
			out = append(out, it)
		}
	}
	return FluentSet{items: out}
}

func (s FluentSet) Equal(o FluentSet) bool {
	return slices.Equal(s.items, o.items)
}

func (s FluentSet) String() string {
	return "{" + strings.Join(s.items, ", ") + "}"
}

func (s FluentSet) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Items())
}

func (s *FluentSet) UnmarshalJSON(data []byte) error {
	var items []string
	if err := json.Unmarshal(data, &items); err != nil {
		return err
	}
	*s = NewFluentSet(items...)
	return nil
}

// FluentDelta is the pair of fluent sets produced as the consequence of a choice.
type FluentDelta struct {
	Initiated  FluentSet `json:"initiated"`
	Terminated FluentSet `json:"terminated"`
}

func (d FluentDelta) IsEmpty() bool {
	return d.Initiated.IsEmpty() && d.Terminated.IsEmpty()
}
