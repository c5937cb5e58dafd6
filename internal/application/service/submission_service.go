package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/sust-cse/approval-engine/internal/application/port"
	"github.com/sust-cse/approval-engine/internal/application/schema"
	"github.com/sust-cse/approval-engine/internal/domain/entity"
	"github.com/sust-cse/approval-engine/internal/domain/event"
	"github.com/sust-cse/approval-engine/internal/domain/workflow"
	"github.com/sust-cse/approval-engine/pkg/telemetry"
)

// SubmitApplicationCommand is the intake for a new Application
type SubmitApplicationCommand struct {
	SubmitterID string
	Title       string
	Kind        entity.ApplicationKind
	ToID        string
	MediumID    string
	Details     json.RawMessage
}

// SubmitCostRequestCommand is the intake for a new Cost Request
type SubmitCostRequestCommand struct {
	SubmitterID string
	Title       string
	AmountCents int64
	Currency    string
	Purpose     string
	Details     json.RawMessage
}

// SubmissionService creates workflow instances and freezes their stage chains
type SubmissionService interface {
	SubmitApplication(ctx context.Context, cmd SubmitApplicationCommand) (*entity.Instance, error)
	SubmitCostRequest(ctx context.Context, cmd SubmitCostRequestCommand) (*entity.Instance, error)
}

type submissionServiceImpl struct {
	instanceRepo port.InstanceRepository
	identityRepo port.IdentityRepository
	txManager    port.TransactionManager
	resolver     workflow.StageResolver
	schemas      *schema.Validator
	dispatcher   port.EventDispatcher
	logger       Logger
	opts         options
}

// NewSubmissionService creates a new SubmissionService
func NewSubmissionService(
	instanceRepo port.InstanceRepository,
	identityRepo port.IdentityRepository,
	txManager port.TransactionManager,
	resolver workflow.StageResolver,
	schemas *schema.Validator,
	dispatcher port.EventDispatcher,
	logger Logger,
	opts ...Option,
) SubmissionService {
	return &submissionServiceImpl{
		instanceRepo: instanceRepo,
		identityRepo: identityRepo,
		txManager:    txManager,
		resolver:     resolver,
		schemas:      schemas,
		dispatcher:   dispatcherOrNoop(dispatcher),
		logger:       logger,
		opts:         buildOptions(opts),
	}
}

// SubmitApplication validates the payload, resolves [L0, L1?, L2] and persists the instance at stage 0
func (s *submissionServiceImpl) SubmitApplication(ctx context.Context, cmd SubmitApplicationCommand) (*entity.Instance, error) {
	ctx, span := telemetry.StartSpan(ctx, "SubmissionService.SubmitApplication",
		telemetry.WorkflowTypeKey.String(string(entity.WorkflowTypeApplication)),
		telemetry.IdentityIDKey.String(cmd.SubmitterID),
	)
	defer span.End()

	instance, err := s.submitApplication(ctx, cmd)
	if err != nil {
		telemetry.SetError(span, err)
		s.logger.Error("Failed to submit application", "submitter_id", cmd.SubmitterID, "error", err)
		return nil, err
	}

	span.SetAttributes(telemetry.InstanceIDKey.String(instance.ID))
	return instance, nil
}

func (s *submissionServiceImpl) submitApplication(ctx context.Context, cmd SubmitApplicationCommand) (*entity.Instance, error) {
	if !cmd.Kind.IsValid() {
		return nil, fmt.Errorf("%w: unknown application kind %q", workflow.ErrValidation, cmd.Kind)
	}
	if err := s.schemas.ValidateApplication(cmd.Kind, cmd.Details); err != nil {
		return nil, err
	}

	submitter, err := s.loadSubmitter(ctx, cmd.SubmitterID)
	if err != nil {
		return nil, err
	}

	toID := strings.TrimSpace(cmd.ToID)
	mediumID := strings.TrimSpace(cmd.MediumID)
	if toID != "" {
		if err := s.requireIdentity(ctx, "to", toID); err != nil {
			return nil, err
		}
	}
	if mediumID != "" {
		if err := s.requireIdentity(ctx, "medium", mediumID); err != nil {
			return nil, err
		}
	}

	chain, err := s.resolver.Resolve(workflow.ResolveInput{
		WorkflowType: entity.WorkflowTypeApplication,
		ToID:         toID,
		MediumID:     mediumID,
	})
	if err != nil {
		return nil, err
	}

	instance := s.newInstance(entity.WorkflowTypeApplication, submitter, cmd.Title, chain)
	instance.Application = &entity.ApplicationPayload{
		Kind:     cmd.Kind,
		ToID:     toID,
		MediumID: mediumID,
		Details:  cmd.Details,
	}

	return s.persist(ctx, instance)
}

// SubmitCostRequest persists a cost request on the fixed [L1, L2, FINAL] chain
func (s *submissionServiceImpl) SubmitCostRequest(ctx context.Context, cmd SubmitCostRequestCommand) (*entity.Instance, error) {
	ctx, span := telemetry.StartSpan(ctx, "SubmissionService.SubmitCostRequest",
		telemetry.WorkflowTypeKey.String(string(entity.WorkflowTypeCostRequest)),
		telemetry.IdentityIDKey.String(cmd.SubmitterID),
	)
	defer span.End()

	instance, err := s.submitCostRequest(ctx, cmd)
	if err != nil {
		telemetry.SetError(span, err)
		s.logger.Error("Failed to submit cost request", "submitter_id", cmd.SubmitterID, "error", err)
		return nil, err
	}

	span.SetAttributes(telemetry.InstanceIDKey.String(instance.ID))
	return instance, nil
}

func (s *submissionServiceImpl) submitCostRequest(ctx context.Context, cmd SubmitCostRequestCommand) (*entity.Instance, error) {
	if cmd.AmountCents <= 0 {
		return nil, fmt.Errorf("%w: amount must be positive", workflow.ErrValidation)
	}
	if strings.TrimSpace(cmd.Purpose) == "" {
		return nil, fmt.Errorf("%w: purpose is required", workflow.ErrValidation)
	}
	if err := s.schemas.ValidateCostRequest(cmd.Details); err != nil {
		return nil, err
	}

	submitter, err := s.loadSubmitter(ctx, cmd.SubmitterID)
	if err != nil {
		return nil, err
	}

	chain, err := s.resolver.Resolve(workflow.ResolveInput{WorkflowType: entity.WorkflowTypeCostRequest})
	if err != nil {
		return nil, err
	}

	instance := s.newInstance(entity.WorkflowTypeCostRequest, submitter, cmd.Title, chain)
	instance.CostRequest = &entity.CostRequestPayload{
		AmountCents: cmd.AmountCents,
		Currency:    strings.ToUpper(cmd.Currency),
		Purpose:     strings.TrimSpace(cmd.Purpose),
		Details:     cmd.Details,
	}

	return s.persist(ctx, instance)
}

func (s *submissionServiceImpl) newInstance(workflowType entity.WorkflowType, submitter *entity.Identity, title string, chain []entity.StageDescriptor) *entity.Instance {
	now := s.opts.now().UTC()
	return &entity.Instance{
		ID:                uuid.NewString(),
		WorkflowType:      workflowType,
		SubmitterID:       submitter.ID,
		SubmitterName:     submitter.DisplayName,
		Title:             strings.TrimSpace(title),
		StageChain:        chain,
		CurrentStageIndex: 0,
		Status:            string(workflow.StatusFor(chain, 0)),
		Trail:             []*entity.TrailEntry{},
		CreatedAt:         now,
		UpdatedAt:         now,
	}
}

func (s *submissionServiceImpl) persist(ctx context.Context, instance *entity.Instance) (*entity.Instance, error) {
	if instance.Title == "" {
		return nil, fmt.Errorf("%w: title is required", workflow.ErrValidation)
	}

	err := s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		return s.instanceRepo.Create(txCtx, instance)
	})
	if err != nil {
		return nil, fmt.Errorf("persist instance: %w", err)
	}

	s.logger.Info("Instance submitted",
		"instance_id", instance.ID,
		"workflow_type", instance.WorkflowType,
		"status", instance.Status,
		"stages", len(instance.StageChain),
	)

	s.dispatcher.DispatchAsync(ctx, event.NewEvent(
		event.TypeInstanceSubmitted,
		instance.ID,
		string(instance.WorkflowType),
		map[string]any{
			event.KeySubmitterID: instance.SubmitterID,
			event.KeyStatus:      instance.Status,
		},
	))

	return instance, nil
}

func (s *submissionServiceImpl) loadSubmitter(ctx context.Context, id string) (*entity.Identity, error) {
	if strings.TrimSpace(id) == "" {
		return nil, fmt.Errorf("%w: submitter is required", workflow.ErrValidation)
	}
	submitter, err := s.identityRepo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load submitter: %w", err)
	}
	if submitter == nil {
		return nil, fmt.Errorf("%w: unknown submitter %s", workflow.ErrValidation, id)
	}
	return submitter, nil
}

func (s *submissionServiceImpl) requireIdentity(ctx context.Context, role, id string) error {
	identity, err := s.identityRepo.GetByID(ctx, id)
	if err != nil {
		return fmt.Errorf("load %s identity: %w", role, err)
	}
	if identity == nil {
		return fmt.Errorf("%w: unknown %s identity %s", workflow.ErrInvalidConfiguration, role, id)
	}
	return nil
}
