package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sust-cse/approval-engine/internal/application/port"
	"github.com/sust-cse/approval-engine/internal/domain/entity"
	"github.com/sust-cse/approval-engine/internal/domain/event"
	"github.com/sust-cse/approval-engine/internal/domain/workflow"
)

// AttachCheckCommand records a check number on an approved cost request
type AttachCheckCommand struct {
	InstanceID string
	ActorID    string
	Number     string
	// Date defaults to the current day when nil
	Date *time.Time
}

// CheckService attaches post-approval check annotations. It never touches status, trail or code.
type CheckService interface {
	AttachCheck(ctx context.Context, cmd AttachCheckCommand) (*entity.Instance, error)
}

type checkServiceImpl struct {
	instanceRepo port.InstanceRepository
	trailRepo    port.TrailRepository
	identityRepo port.IdentityRepository
	dispatcher   port.EventDispatcher
	logger       Logger
	opts         options
}

// NewCheckService creates a new CheckService
func NewCheckService(
	instanceRepo port.InstanceRepository,
	trailRepo port.TrailRepository,
	identityRepo port.IdentityRepository,
	dispatcher port.EventDispatcher,
	logger Logger,
	opts ...Option,
) CheckService {
	return &checkServiceImpl{
		instanceRepo: instanceRepo,
		trailRepo:    trailRepo,
		identityRepo: identityRepo,
		dispatcher:   dispatcherOrNoop(dispatcher),
		logger:       logger,
		opts:         buildOptions(opts),
	}
}

func (s *checkServiceImpl) AttachCheck(ctx context.Context, cmd AttachCheckCommand) (*entity.Instance, error) {
	number := strings.TrimSpace(cmd.Number)
	if number == "" {
		return nil, fmt.Errorf("%w: check number is required", workflow.ErrValidation)
	}

	actor, err := loadActor(ctx, s.identityRepo, cmd.ActorID)
	if err != nil {
		return nil, err
	}
	if !actor.HasRole(entity.RoleAdmin) {
		return nil, fmt.Errorf("%w: only admins may attach checks", workflow.ErrUnauthorized)
	}

	instance, err := s.instanceRepo.GetByID(ctx, cmd.InstanceID)
	if err != nil {
		return nil, fmt.Errorf("load instance: %w", err)
	}
	if instance == nil {
		return nil, fmt.Errorf("%w: instance %s", workflow.ErrNotFound, cmd.InstanceID)
	}

	switch {
	case instance.WorkflowType != entity.WorkflowTypeCostRequest:
		return nil, fmt.Errorf("%w: checks only apply to cost requests", workflow.ErrPrecondition)
	case instance.Status != entity.StatusApproved:
		return nil, fmt.Errorf("%w: instance %s is %s, not APPROVED", workflow.ErrPrecondition, instance.ID, instance.Status)
	case instance.Check != nil:
		return nil, fmt.Errorf("%w: instance %s already has check %s", workflow.ErrPrecondition, instance.ID, instance.Check.Number)
	}

	date := s.opts.now().UTC()
	if cmd.Date != nil {
		date = cmd.Date.UTC()
	}
	check := &entity.CheckAnnotation{Number: number, Date: date, AttachedBy: actor.ID}

	// The repository re-checks the preconditions in its conditional UPDATE
	if err := s.instanceRepo.AttachCheck(ctx, instance.ID, check); err != nil {
		return nil, err
	}

	s.logger.Info("Check attached", "instance_id", instance.ID, "check_number", number, "actor_id", actor.ID)

	s.dispatcher.DispatchAsync(ctx, event.NewEvent(event.TypeCheckAttached, instance.ID, string(instance.WorkflowType), map[string]any{
		event.KeyCheckNumber: number,
	}))

	return loadInstance(ctx, s.instanceRepo, s.trailRepo, instance.ID)
}
