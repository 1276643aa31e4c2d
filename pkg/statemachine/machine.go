package statemachine

import (
	"context"
	"fmt"
	"sync"
)

// anyState is the from-key for wildcard transitions.
const anyState = "*"

// machine is a mutex-guarded in-memory StateMachine.
// Transitions are indexed as [from][event] for constant-time lookup.
type machine struct {
	mu          sync.Mutex
	initial     State
	current     State
	history     []State
	transitions map[string]map[string][]Transition
	final       map[string]struct{}
	observers   []Observer
}

func (m *machine) add(from, to State, event Event, guards []Guard, actions []Action) error {
	if to == nil || event == nil {
		return ErrInvalidTransition
	}
	key := anyState
	if from != nil {
		key = from.Name()
	}
	if m.transitions[key] == nil {
		m.transitions[key] = make(map[string][]Transition)
	}
	// Several transitions per from/event are allowed; guards choose.
	m.transitions[key][event.Name()] = append(m.transitions[key][event.Name()], Transition{
		From:    from,
		To:      to,
		Event:   event,
		Guards:  guards,
		Actions: actions,
	})
	return nil
}

func (m *machine) Current() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

func (m *machine) IsFinal() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.isFinal()
}

func (m *machine) isFinal() bool {
	_, ok := m.final[m.current.Name()]
	return ok
}

func (m *machine) History() []State {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]State, len(m.history))
	copy(out, m.history)
	return out
}

// candidates returns explicit transitions for the current state followed by wildcards.
func (m *machine) candidates(event Event) []Transition {
	var out []Transition
	if byEvent, ok := m.transitions[m.current.Name()]; ok {
		out = append(out, byEvent[event.Name()]...)
	}
	if byEvent, ok := m.transitions[anyState]; ok {
		out = append(out, byEvent[event.Name()]...)
	}
	return out
}

func (m *machine) pick(ctx context.Context, event Event, data any) (*Transition, error) {
	if m.isFinal() {
		return nil, fmt.Errorf("%w: %s", ErrFinalState, m.current.Name())
	}
	ts := m.candidates(event)
	if len(ts) == 0 {
		return nil, &NoTransitionError{State: m.current.Name(), Event: event.Name()}
	}
	for i := range ts {
		if allow(ctx, ts[i].Guards, m.current, event, data) {
			return &ts[i], nil
		}
	}
	return nil, &RejectedError{State: m.current.Name(), Event: event.Name()}
}

func allow(ctx context.Context, guards []Guard, from State, event Event, data any) bool {
	for _, g := range guards {
		if g != nil && !g(ctx, from, event, data) {
			return false
		}
	}
	return true
}

func (m *machine) Fire(ctx context.Context, event Event, data any) error {
	if event == nil {
		return ErrInvalidEvent
	}

	m.mu.Lock()
	t, err := m.pick(ctx, event, data)
	if err != nil {
		m.mu.Unlock()
		return err
	}

	from := m.current
	for _, action := range t.Actions {
		if action == nil {
			continue
		}
		if err := action(ctx, from, t.To, event, data); err != nil {
			m.mu.Unlock()
			return fmt.Errorf("action failed: %w", err)
		}
	}

	m.current = t.To
	m.history = append(m.history, t.To)
	observers := m.observers
	m.mu.Unlock()

	for _, o := range observers {
		o(ctx, from, t.To, event)
	}
	return nil
}

func (m *machine) CanFire(ctx context.Context, event Event, data any) bool {
	if event == nil {
		return false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	_, err := m.pick(ctx, event, data)
	return err == nil
}

func (m *machine) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.current = m.initial
	m.history = []State{m.initial}
}
