package entity

import (
	"encoding/json"
	"time"
)

// ResolutionKind selects how a stage's required approver is matched
type ResolutionKind string

const (
	ResolutionIdentity   ResolutionKind = "IDENTITY"
	ResolutionPermission ResolutionKind = "PERMISSION"
	ResolutionRole       ResolutionKind = "ROLE"
)

// ApproverResolution is the persisted form of "who may decide this stage".
// Exactly one of IdentityID, Permission or Roles is meaningful, selected by Kind.
type ApproverResolution struct {
	Kind       ResolutionKind `json:"kind"`
	IdentityID string         `json:"identity_id,omitempty"`
	Permission string         `json:"permission,omitempty"`
	Roles      []string       `json:"roles,omitempty"`
}

// StageDescriptor is one entry of a frozen stage chain
type StageDescriptor struct {
	Key      string             `json:"key"`
	Approver ApproverResolution `json:"approver"`
	Signable bool               `json:"signable"`
}

// Instance is a workflow instance (Application or CostRequest) progressing through its stage chain
type Instance struct {
	ID                string            `json:"id"`
	WorkflowType      WorkflowType      `json:"workflow_type"`
	SubmitterID       string            `json:"submitter_id"`
	SubmitterName     string            `json:"submitter_name"`
	Title             string            `json:"title"`
	StageChain        []StageDescriptor `json:"stage_chain"`
	CurrentStageIndex int               `json:"current_stage_index"`
	Status            string            `json:"status"`
	Trail             []*TrailEntry     `json:"trail"`
	VerificationCode  *string           `json:"verification_code,omitempty"`
	ApprovedAt        *time.Time        `json:"approved_at,omitempty"`

	// Workflow-type-specific payloads; exactly one is set
	Application *ApplicationPayload `json:"application,omitempty"`
	CostRequest *CostRequestPayload `json:"cost_request,omitempty"`

	// Check is only ever set on approved cost requests
	Check *CheckAnnotation `json:"check,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// IsTerminal returns true once the instance is APPROVED or REJECTED
func (i *Instance) IsTerminal() bool {
	return i.Status == StatusApproved || i.Status == StatusRejected
}

// CurrentStage returns the stage awaiting a decision, if any
func (i *Instance) CurrentStage() (StageDescriptor, bool) {
	if i.CurrentStageIndex < 0 || i.CurrentStageIndex >= len(i.StageChain) {
		return StageDescriptor{}, false
	}
	return i.StageChain[i.CurrentStageIndex], true
}

// TrailEntryFor returns the trail entry recorded for a stage key
func (i *Instance) TrailEntryFor(stageKey string) (*TrailEntry, bool) {
	for _, entry := range i.Trail {
		if entry.StageKey == stageKey {
			return entry, true
		}
	}
	return nil, false
}

// ApplicationPayload holds the Application-specific submission fields
type ApplicationPayload struct {
	Kind     ApplicationKind `json:"kind"`
	ToID     string          `json:"to_id"`
	MediumID string          `json:"medium_id,omitempty"`
	Details  json.RawMessage `json:"details,omitempty"`
}

// CostRequestPayload holds the CostRequest-specific submission fields
type CostRequestPayload struct {
	AmountCents int64           `json:"amount_cents"`
	Currency    string          `json:"currency"`
	Purpose     string          `json:"purpose"`
	Details     json.RawMessage `json:"details,omitempty"`
}

// CheckAnnotation is post-approval financial metadata on a cost request
type CheckAnnotation struct {
	Number     string    `json:"number"`
	Date       time.Time `json:"date"`
	AttachedBy string    `json:"attached_by"`
}

// TrailEntry is the write-once record of a decision made at a stage
type TrailEntry struct {
	ID           int64     `json:"id"`
	InstanceID   string    `json:"instance_id"`
	StageKey     string    `json:"stage_key"`
	StageIndex   int       `json:"stage_index"`
	ReviewerID   string    `json:"reviewer_id"`
	ReviewerName string    `json:"reviewer_name"`
	Decision     Decision  `json:"decision"`
	Comment      string    `json:"comment,omitempty"`
	SignatureRef string    `json:"signature_ref,omitempty"`
	DecidedAt    time.Time `json:"decided_at"`
}
