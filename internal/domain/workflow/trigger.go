package workflow

import "github.com/sust-cse/approval-engine/internal/domain/entity"

// Trigger represents an event that can cause a state transition
type Trigger string

const (
	TriggerApprove Trigger = "APPROVE"
	TriggerReject  Trigger = "REJECT"
)

// TriggerFor maps a reviewer decision onto its trigger
func TriggerFor(decision entity.Decision) Trigger {
	if decision == entity.DecisionReject {
		return TriggerReject
	}
	return TriggerApprove
}

// String returns the string representation of the trigger
func (t Trigger) String() string {
	return string(t)
}
