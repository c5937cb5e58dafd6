package workflow

import (
	"context"
	"fmt"
	"strings"

	"github.com/sust-cse/approval-engine/internal/domain/entity"
)

type actorKey struct{}

// WithActor stores the identity whose decision is being evaluated
func WithActor(ctx context.Context, identity *entity.Identity) context.Context {
	return context.WithValue(ctx, actorKey{}, identity)
}

// ActorFrom returns the identity stored by WithActor, or nil
func ActorFrom(ctx context.Context) *entity.Identity {
	identity, _ := ctx.Value(actorKey{}).(*entity.Identity)
	return identity
}

// NewChainBuilder configures a machine over a frozen stage chain. Each pending
// stage permits APPROVE to the next stage (APPROVED after the last one) and
// REJECT to REJECTED; both are guarded by the stage's approver evaluated
// against the actor in the context.
func NewChainBuilder(chain []entity.StageDescriptor) (StateMachineBuilder, error) {
	if len(chain) == 0 {
		return nil, fmt.Errorf("%w: empty stage chain", ErrInvalidConfiguration)
	}

	seen := make(map[string]bool, len(chain))
	builder := NewBuilder()
	for i, st := range chain {
		key := strings.TrimSpace(st.Key)
		if key == "" || seen[key] {
			return nil, fmt.Errorf("%w: stage %d has missing or duplicate key %q", ErrInvalidConfiguration, i, st.Key)
		}
		seen[key] = true

		approver, err := ApproverFor(st.Approver)
		if err != nil {
			return nil, fmt.Errorf("stage %s: %w", key, err)
		}

		next := StateApproved
		if i+1 < len(chain) {
			next = PendingState(chain[i+1].Key)
		}

		guard := func(ctx context.Context) bool {
			return approver.SatisfiedBy(ActorFrom(ctx))
		}

		builder.Configure(PendingState(key)).
			PermitIf(TriggerApprove, next, guard).
			PermitIf(TriggerReject, StateRejected, guard)
	}

	return builder, nil
}

// CanAct reports whether identity may approve the instance's current stage.
// It asks the chain machine, so inbox listings and decisions share one guard.
func CanAct(ctx context.Context, instance *entity.Instance, identity *entity.Identity) bool {
	current := State(instance.Status)
	if !current.IsPending() || identity == nil {
		return false
	}
	builder, err := NewChainBuilder(instance.StageChain)
	if err != nil {
		return false
	}
	return builder.Build(current).CanFire(WithActor(ctx, identity), TriggerApprove)
}

// StageIndex returns the chain position a state points at; terminal and unknown
// states map to entity.TerminatedStageIndex.
func StageIndex(chain []entity.StageDescriptor, state State) int {
	key := state.StageKey()
	if key == "" {
		return entity.TerminatedStageIndex
	}
	for i, st := range chain {
		if st.Key == key {
			return i
		}
	}
	return entity.TerminatedStageIndex
}

// StatusFor derives the display status for a stage index of a non-terminal instance
func StatusFor(chain []entity.StageDescriptor, index int) State {
	if index < 0 || index >= len(chain) {
		return ""
	}
	return PendingState(chain[index].Key)
}
