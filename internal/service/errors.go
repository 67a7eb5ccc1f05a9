package service

import "errors"

var (
	ErrNotEligible            = errors.New("case has no decision points")
	ErrInvalidChoice          = errors.New("option index out of range")
	ErrSessionAlreadyComplete = errors.New("session already completed")
	ErrIncompleteSession      = errors.New("session is not completed")
	ErrSessionNotFound        = errors.New("session not found")
	ErrCaseNotFound           = errors.New("case not found")
	ErrOutOfOrderChoice       = errors.New("decision index is ahead of the session")

	// ErrGenerationUnavailable wraps collaborator failures in logs. It is
	// never returned to callers; the fallback narrative is used instead.
	ErrGenerationUnavailable = errors.New("generation unavailable")
)
