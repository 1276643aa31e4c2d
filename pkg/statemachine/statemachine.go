// Package statemachine is a small finite state machine used to drive
// multi-step flows such as the OAuth callback resolution.
//
// Transitions are declared up front with New and options. Guards pick between
// transitions sharing a from/event pair; actions run before the state changes
// and abort the transition on error. Wildcard transitions (WithAnyTransition)
// apply from every non-final state, which is how absorbing error states are
// declared without repeating them per state. Observers see every applied
// transition and the machine keeps the visited path in History.
package statemachine

import "context"

// State represents a state in the state machine.
type State interface {
	Name() string
}

// Event represents an event that can trigger a state transition.
type Event interface {
	Name() string
}

// Action executes side effects during a transition. Returning an error prevents it.
type Action func(ctx context.Context, from, to State, event Event, data any) error

// Guard decides whether a transition is allowed for the given data.
type Guard func(ctx context.Context, from State, event Event, data any) bool

// Observer is notified after a transition has been applied.
type Observer func(ctx context.Context, from, to State, event Event)

// Transition defines a state change triggered by an event.
type Transition struct {
	From    State
	To      State
	Event   Event
	Guards  []Guard
	Actions []Action
}

// StateMachine defines the finite state machine operations.
type StateMachine interface {
	Current() State
	IsFinal() bool
	History() []State
	Fire(ctx context.Context, event Event, data any) error
	CanFire(ctx context.Context, event Event, data any) bool
	Reset()
}

// StringState is a string-based State.
type StringState string

func (s StringState) Name() string { return string(s) }

// StringEvent is a string-based Event.
type StringEvent string

func (e StringEvent) Name() string { return string(e) }
