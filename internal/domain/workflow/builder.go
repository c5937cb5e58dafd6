package workflow

import (
	"context"
	"fmt"
)

// GuardFunc decides whether a configured transition is open for the context it is fired with
type GuardFunc func(ctx context.Context) bool

// StateMachineBuilder collects per-state transitions and stamps out machines
type StateMachineBuilder interface {
	Configure(state State) StateConfiguration

	// Build snapshots the configuration; later Configure calls do not reach built machines
	Build(initialState State) StateMachine
}

// StateConfiguration registers the transitions leaving one pending state
type StateConfiguration interface {
	// PermitIf allows trigger to move to toState while guard holds; a nil guard is always open
	PermitIf(trigger Trigger, toState State, guard GuardFunc) StateConfiguration
}

type transition struct {
	toState State
	guard   GuardFunc
}

func (t transition) open(ctx context.Context) bool {
	return t.guard == nil || t.guard(ctx)
}

type stateConfig struct {
	transitions map[Trigger][]transition
}

type stateMachineBuilder struct {
	states map[State]*stateConfig
}

// NewBuilder creates an empty builder
func NewBuilder() StateMachineBuilder {
	return &stateMachineBuilder{states: make(map[State]*stateConfig)}
}

func (b *stateMachineBuilder) Configure(state State) StateConfiguration {
	if !state.IsValid() {
		panic(fmt.Sprintf("invalid state: %s", state))
	}
	if state.IsTerminal() {
		panic(fmt.Sprintf("terminal state cannot have transitions: %s", state))
	}

	config, ok := b.states[state]
	if !ok {
		config = &stateConfig{transitions: make(map[Trigger][]transition)}
		b.states[state] = config
	}
	return config
}

func (b *stateMachineBuilder) Build(initialState State) StateMachine {
	if !initialState.IsValid() {
		panic(fmt.Sprintf("invalid initial state: %s", initialState))
	}

	snapshot := make(map[State]*stateConfig, len(b.states))
	for state, config := range b.states {
		copied := make(map[Trigger][]transition, len(config.transitions))
		for trigger, ts := range config.transitions {
			copied[trigger] = append([]transition(nil), ts...)
		}
		snapshot[state] = &stateConfig{transitions: copied}
	}
	return &stateMachine{current: initialState, states: snapshot}
}

func (c *stateConfig) PermitIf(trigger Trigger, toState State, guard GuardFunc) StateConfiguration {
	if !toState.IsValid() {
		panic(fmt.Sprintf("invalid target state: %s", toState))
	}
	c.transitions[trigger] = append(c.transitions[trigger], transition{toState: toState, guard: guard})
	return c
}
