package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNotFound           = errors.New("not found")
	ErrNotPublished       = errors.New("experience not published")
	ErrPublished          = errors.New("experience is published; content is frozen")
	ErrEmptyGraph         = errors.New("experience has no entry scenario")
	ErrAlreadyCompleted   = errors.New("ledger already completed")
	ErrChoiceNotAvailable = errors.New("choice not available")
	ErrStepLimitExceeded  = errors.New("step limit exceeded")
	ErrStructuralInvalid  = errors.New("structurally invalid graph")
	ErrInvalidState       = errors.New("invalid ledger state")
	ErrInvalidInput       = errors.New("invalid input")
	ErrConcurrentUpdate   = errors.New("ledger modified concurrently")
)

// Issue is a single structural finding about a content graph.
type Issue struct {
	Code       string `json:"code"`
	ScenarioID string `json:"scenario_id,omitempty"`
	ChoiceID   string `json:"choice_id,omitempty"`
	Message    string `json:"message"`
}

// StructuralError reports every issue found while validating a graph.
type StructuralError struct {
	ExperienceID string
	Issues       []Issue
}

func (e *StructuralError) Error() string {
	msgs := make([]string, 0, len(e.Issues))
	for _, is := range e.Issues {
		msgs = append(msgs, is.Message)
	}
	return fmt.Sprintf("experience %s: %d structural issue(s): %s", e.ExperienceID, len(e.Issues), strings.Join(msgs, "; "))
}

func (e *StructuralError) Unwrap() error { return ErrStructuralInvalid }
