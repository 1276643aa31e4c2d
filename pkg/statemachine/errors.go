package statemachine

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidTransition = errors.New("statemachine.invalid_transition")
	ErrInvalidEvent      = errors.New("statemachine.invalid_event")
	ErrInitialStateNil   = errors.New("statemachine.nil_initial_state")
	ErrFinalState        = errors.New("statemachine.final_state")
)

// NoTransitionError indicates no transition exists for the state/event pair.
type NoTransitionError struct {
	State string
	Event string
}

func (e *NoTransitionError) Error() string {
	return fmt.Sprintf("no transition from state %q on event %q", e.State, e.Event)
}

// RejectedError indicates every candidate transition was blocked by its guards.
type RejectedError struct {
	State string
	Event string
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("transition from state %q on event %q rejected by guards", e.State, e.Event)
}

func IsNoTransition(err error) bool {
	var e *NoTransitionError
	return errors.As(err, &e)
}

func IsRejected(err error) bool {
	var e *RejectedError
	return errors.As(err, &e)
}
