package service

import "github.com/Harshitk-cp/dilemma/internal/domain"

// ApplyFluents returns the active and terminated sets after delta. Terminations
// apply first, so a fluent both initiated and terminated in one delta ends up
// active. The returned sets never share a member.
func ApplyFluents(active, terminated domain.FluentSet, delta domain.FluentDelta) (domain.FluentSet, domain.FluentSet) {
	newActive := active.Minus(delta.Terminated).Union(delta.Initiated)
	newTerminated := terminated.Union(delta.Terminated).Minus(delta.Initiated)

	// Inputs that already overlap resolve toward active.
	newTerminated = newTerminated.Minus(newActive)
	return newActive, newTerminated
}
