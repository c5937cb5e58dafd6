package workflow

import (
	"fmt"
	"slices"
	"strings"

	"github.com/sust-cse/approval-engine/internal/domain/entity"
)

// Approver decides whether an identity may act on a stage
type Approver interface {
	SatisfiedBy(identity *entity.Identity) bool
	Resolution() entity.ApproverResolution
	String() string
}

// ExactIdentity is satisfied only by one named identity
type ExactIdentity struct {
	ID string
}

func (a ExactIdentity) SatisfiedBy(identity *entity.Identity) bool {
	return identity != nil && identity.ID == a.ID
}

func (a ExactIdentity) Resolution() entity.ApproverResolution {
	return entity.ApproverResolution{Kind: entity.ResolutionIdentity, IdentityID: a.ID}
}

func (a ExactIdentity) String() string {
	return "identity:" + a.ID
}

// PermissionPredicate is satisfied by any identity holding the permission
type PermissionPredicate struct {
	Permission string
}

func (a PermissionPredicate) SatisfiedBy(identity *entity.Identity) bool {
	return identity != nil && identity.HasPermission(a.Permission)
}

func (a PermissionPredicate) Resolution() entity.ApproverResolution {
	return entity.ApproverResolution{Kind: entity.ResolutionPermission, Permission: a.Permission}
}

func (a PermissionPredicate) String() string {
	return "permission:" + a.Permission
}

// RolePredicate is satisfied by any identity holding at least one of the roles
type RolePredicate struct {
	Roles []string
}

func (a RolePredicate) SatisfiedBy(identity *entity.Identity) bool {
	if identity == nil {
		return false
	}
	return slices.ContainsFunc(a.Roles, identity.HasRole)
}

func (a RolePredicate) Resolution() entity.ApproverResolution {
	return entity.ApproverResolution{Kind: entity.ResolutionRole, Roles: slices.Clone(a.Roles)}
}

func (a RolePredicate) String() string {
	return "role:" + strings.Join(a.Roles, "|")
}

// ApproverFor rebuilds the approver variant from its persisted resolution
func ApproverFor(res entity.ApproverResolution) (Approver, error) {
	switch res.Kind {
	case entity.ResolutionIdentity:
		if res.IdentityID == "" {
			return nil, fmt.Errorf("%w: identity resolution without identity", ErrInvalidConfiguration)
		}
		return ExactIdentity{ID: res.IdentityID}, nil
	case entity.ResolutionPermission:
		if res.Permission == "" {
			return nil, fmt.Errorf("%w: permission resolution without permission", ErrInvalidConfiguration)
		}
		return PermissionPredicate{Permission: res.Permission}, nil
	case entity.ResolutionRole:
		if len(res.Roles) == 0 {
			return nil, fmt.Errorf("%w: role resolution without roles", ErrInvalidConfiguration)
		}
		return RolePredicate{Roles: slices.Clone(res.Roles)}, nil
	default:
		return nil, fmt.Errorf("%w: unknown approver kind %q", ErrInvalidConfiguration, res.Kind)
	}
}
