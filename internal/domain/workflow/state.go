package workflow

import (
	"strings"

	"github.com/sust-cse/approval-engine/internal/domain/entity"
)

// State is an instance status as seen by the stage machine: PENDING_<stageKey>, APPROVED or REJECTED
type State string

const (
	StateApproved State = entity.StatusApproved
	StateRejected State = entity.StatusRejected
)

// PendingState returns the state an instance holds while awaiting a decision at stageKey
func PendingState(stageKey string) State {
	return State(entity.StatusPendingPrefix + stageKey)
}

// IsTerminal returns true if the state is a terminal state (no further transitions allowed)
func (s State) IsTerminal() bool {
	return s == StateApproved || s == StateRejected
}

// IsPending returns true if the state waits on a stage
func (s State) IsPending() bool {
	return strings.HasPrefix(string(s), entity.StatusPendingPrefix) && len(s) > len(entity.StatusPendingPrefix)
}

// StageKey returns the stage a pending state waits on, or "" for terminal states
func (s State) StageKey() string {
	if !s.IsPending() {
		return ""
	}
	return strings.TrimPrefix(string(s), entity.StatusPendingPrefix)
}

// String returns the string representation of the state
func (s State) String() string {
	return string(s)
}

// IsValid returns true if the state is a valid workflow state
func (s State) IsValid() bool {
	return s.IsTerminal() || s.IsPending()
}
