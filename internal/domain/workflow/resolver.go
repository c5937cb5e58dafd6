package workflow

import (
	"fmt"
	"strings"

	"github.com/sust-cse/approval-engine/internal/domain/entity"
)

// ResolveInput carries the creation-time facts a stage chain depends on
type ResolveInput struct {
	WorkflowType entity.WorkflowType
	ToID         string
	MediumID     string
}

// StageResolver computes the frozen stage chain of a new instance
type StageResolver interface {
	Resolve(input ResolveInput) ([]entity.StageDescriptor, error)
}

type stageResolver struct{}

// NewStageResolver returns the resolver for the built-in workflow types
func NewStageResolver() StageResolver {
	return stageResolver{}
}

// Resolve returns the ordered stage chain for the input's workflow type
func (stageResolver) Resolve(input ResolveInput) ([]entity.StageDescriptor, error) {
	switch input.WorkflowType {
	case entity.WorkflowTypeApplication:
		return resolveApplication(input)
	case entity.WorkflowTypeCostRequest:
		return resolveCostRequest(), nil
	default:
		return nil, fmt.Errorf("%w: unknown workflow type %q", ErrInvalidConfiguration, input.WorkflowType)
	}
}

// Application: [L0, L1?, L2]; L1 exists only when a medium was supplied
func resolveApplication(input ResolveInput) ([]entity.StageDescriptor, error) {
	to := strings.TrimSpace(input.ToID)
	if to == "" {
		return nil, fmt.Errorf("%w: application requires a final approver", ErrInvalidConfiguration)
	}

	chain := []entity.StageDescriptor{
		stage(entity.StageL0, RolePredicate{Roles: []string{entity.RoleAdmin, entity.RoleReviewer}}, false),
	}
	if medium := strings.TrimSpace(input.MediumID); medium != "" {
		chain = append(chain, stage(entity.StageL1, ExactIdentity{ID: medium}, true))
	}
	chain = append(chain, stage(entity.StageL2, ExactIdentity{ID: to}, true))

	return chain, nil
}

func resolveCostRequest() []entity.StageDescriptor {
	return []entity.StageDescriptor{
		stage(entity.StageL1, PermissionPredicate{Permission: entity.PermissionApproveCostL1}, true),
		stage(entity.StageL2, PermissionPredicate{Permission: entity.PermissionApproveCostL2}, true),
		stage(entity.StageFinal, RolePredicate{Roles: []string{entity.RoleAdmin}}, true),
	}
}

func stage(key string, approver Approver, signable bool) entity.StageDescriptor {
	return entity.StageDescriptor{Key: key, Approver: approver.Resolution(), Signable: signable}
}
