package statemachine

import "fmt"

// Option configures a state machine during construction.
type Option func(*machine) error

// TransitionOption attaches guards and actions to a single transition.
type TransitionOption func(*Transition)

// New creates a state machine starting in initial.
func New(initial State, opts ...Option) (StateMachine, error) {
	if initial == nil {
		return nil, ErrInitialStateNil
	}

	m := &machine{
		initial:     initial,
		current:     initial,
		history:     []State{initial},
		transitions: make(map[string]map[string][]Transition),
		final:       make(map[string]struct{}),
	}
	for _, opt := range opts {
		if err := opt(m); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// MustNew is like New but panics on error. Transition tables are static, so
// a failure here is a programming error.
func MustNew(initial State, opts ...Option) StateMachine {
	m, err := New(initial, opts...)
	if err != nil {
		panic(fmt.Sprintf("failed to create state machine: %v", err))
	}
	return m
}

// WithTransition declares from --event--> to.
func WithTransition(from, to State, event Event, opts ...TransitionOption) Option {
	return func(m *machine) error {
		if from == nil {
			return ErrInvalidTransition
		}
		t := Transition{}
		for _, opt := range opts {
			opt(&t)
		}
		return m.add(from, to, event, t.Guards, t.Actions)
	}
}

// WithAnyTransition declares a transition taken on event from any non-final
// state that has no explicit transition for it.
func WithAnyTransition(to State, event Event, opts ...TransitionOption) Option {
	return func(m *machine) error {
		t := Transition{}
		for _, opt := range opts {
			opt(&t)
		}
		return m.add(nil, to, event, t.Guards, t.Actions)
	}
}

// WithFinal marks states in which the machine accepts no further events.
func WithFinal(states ...State) Option {
	return func(m *machine) error {
		for _, s := range states {
			if s == nil {
				return ErrInvalidTransition
			}
			m.final[s.Name()] = struct{}{}
		}
		return nil
	}
}

// WithObserver registers a callback invoked after each applied transition.
func WithObserver(o Observer) Option {
	return func(m *machine) error {
		if o != nil {
			m.observers = append(m.observers, o)
		}
		return nil
	}
}

func WithGuard(g Guard) TransitionOption {
	return func(t *Transition) {
		if g != nil {
			t.Guards = append(t.Guards, g)
		}
	}
}

func WithAction(a Action) TransitionOption {
	return func(t *Transition) {
		if a != nil {
			t.Actions = append(t.Actions, a)
		}
	}
}
