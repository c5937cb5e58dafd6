package entity

import (
	"slices"
	"time"
)

// Identity is a directory entry as seen by the engine. The engine never edits
// roles or permissions; it only consults them to resolve approvers.
type Identity struct {
	ID          string    `json:"id" yaml:"id"`
	DisplayName string    `json:"display_name" yaml:"display_name"`
	Email       string    `json:"email,omitempty" yaml:"email,omitempty"`
	Roles       []string  `json:"roles" yaml:"roles"`
	Permissions []string  `json:"permissions" yaml:"permissions"`
	UpdatedAt   time.Time `json:"updated_at" yaml:"-"`
}

// HasRole reports whether the identity holds the given role
func (i *Identity) HasRole(role string) bool {
	return slices.Contains(i.Roles, role)
}

// HasPermission reports whether the identity holds the given permission
func (i *Identity) HasPermission(permission string) bool {
	return slices.Contains(i.Permissions, permission)
}

// VerificationView is the redacted, unauthenticated projection of an approved instance
type VerificationView struct {
	Code          string                  `json:"code"`
	WorkflowType  WorkflowType            `json:"workflow_type"`
	Title         string                  `json:"title"`
	Status        string                  `json:"status"`
	SubmitterName string                  `json:"submitter_name"`
	ApprovedAt    *time.Time              `json:"approved_at,omitempty"`
	Trail         []VerificationTrailItem `json:"trail"`
}

// VerificationTrailItem is one trail entry in the public projection
type VerificationTrailItem struct {
	StageKey     string    `json:"stage_key"`
	ReviewerName string    `json:"reviewer_name"`
	Decision     Decision  `json:"decision"`
	DecidedAt    time.Time `json:"decided_at"`
	SignatureURL string    `json:"signature_url,omitempty"`
}
