package entity

// WorkflowType identifies which approval chain an instance follows
type WorkflowType string

const (
	WorkflowTypeApplication WorkflowType = "APPLICATION"
	WorkflowTypeCostRequest WorkflowType = "COST_REQUEST"
)

// IsValid returns true if the workflow type is known
func (t WorkflowType) IsValid() bool {
	switch t {
	case WorkflowTypeApplication, WorkflowTypeCostRequest:
		return true
	default:
		return false
	}
}

// String returns the string representation of the workflow type
func (t WorkflowType) String() string {
	return string(t)
}

// Decision is a reviewer's verdict on a stage
type Decision string

const (
	DecisionApprove Decision = "APPROVE"
	DecisionReject  Decision = "REJECT"
)

// IsValid returns true if the decision is APPROVE or REJECT
func (d Decision) IsValid() bool {
	return d == DecisionApprove || d == DecisionReject
}

// String returns the string representation of the decision
func (d Decision) String() string {
	return string(d)
}

// Status values for WorkflowInstance
const (
	StatusPendingPrefix = "PENDING_"
	StatusApproved      = "APPROVED"
	StatusRejected      = "REJECTED"
)

// TerminatedStageIndex marks an instance that left its stage chain
const TerminatedStageIndex = -1

// Stage keys
const (
	StageL0    = "L0"
	StageL1    = "L1"
	StageL2    = "L2"
	StageFinal = "FINAL"
)

// Directory roles consulted when resolving approvers
const (
	RoleAdmin    = "ADMIN"
	RoleReviewer = "REVIEWER"
	RoleTeacher  = "TEACHER"
	RoleStudent  = "STUDENT"
)

// Permissions consulted when resolving cost request approvers
const (
	PermissionApproveCostL1 = "APPROVE_COST_L1"
	PermissionApproveCostL2 = "APPROVE_COST_L2"
)

// ApplicationKind is the category of an Application
type ApplicationKind string

const (
	ApplicationKindLeave     ApplicationKind = "LEAVE"
	ApplicationKindEquipment ApplicationKind = "EQUIPMENT"
	ApplicationKindGeneral   ApplicationKind = "GENERAL"
)

// IsValid returns true if the application kind is known
func (k ApplicationKind) IsValid() bool {
	switch k {
	case ApplicationKindLeave, ApplicationKindEquipment, ApplicationKindGeneral:
		return true
	default:
		return false
	}
}
