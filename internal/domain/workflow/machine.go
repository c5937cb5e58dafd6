package workflow

import (
	"context"
	"fmt"
	"slices"
)

// StateMachine tracks one instance's position in its stage chain. Guards are
// evaluated against the context passed to each call, so CanFire and Fire agree
// for the same actor.
type StateMachine interface {
	State() State

	// CanFire reports whether Fire(ctx, trigger) would succeed right now
	CanFire(ctx context.Context, trigger Trigger) bool

	// Fire moves along the first open transition for trigger
	Fire(ctx context.Context, trigger Trigger) error

	// PermittedTriggers lists the triggers with an open transition, sorted
	PermittedTriggers(ctx context.Context) []Trigger
}

type stateMachine struct {
	current State
	states  map[State]*stateConfig
}

func (m *stateMachine) State() State {
	return m.current
}

// next returns the first open transition; configured reports whether trigger exists at all
func (m *stateMachine) next(ctx context.Context, trigger Trigger) (to State, configured, open bool) {
	config, ok := m.states[m.current]
	if !ok {
		return "", false, false
	}
	transitions := config.transitions[trigger]
	for _, t := range transitions {
		if t.open(ctx) {
			return t.toState, true, true
		}
	}
	return "", len(transitions) > 0, false
}

func (m *stateMachine) CanFire(ctx context.Context, trigger Trigger) bool {
	_, _, open := m.next(ctx, trigger)
	return open
}

func (m *stateMachine) Fire(ctx context.Context, trigger Trigger) error {
	to, configured, open := m.next(ctx, trigger)
	switch {
	case !configured:
		return fmt.Errorf("%w: cannot fire trigger %s from state %s", ErrInvalidTransition, trigger, m.current)
	case !open:
		return fmt.Errorf("%w: trigger %s from state %s", ErrGuardFailed, trigger, m.current)
	}
	m.current = to
	return nil
}

func (m *stateMachine) PermittedTriggers(ctx context.Context) []Trigger {
	triggers := []Trigger{}
	config, ok := m.states[m.current]
	if !ok {
		return triggers
	}
	for trigger := range config.transitions {
		if m.CanFire(ctx, trigger) {
			triggers = append(triggers, trigger)
		}
	}
	slices.Sort(triggers)
	return triggers
}
