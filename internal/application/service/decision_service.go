package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sust-cse/approval-engine/internal/application/port"
	"github.com/sust-cse/approval-engine/internal/domain/entity"
	"github.com/sust-cse/approval-engine/internal/domain/event"
	"github.com/sust-cse/approval-engine/internal/domain/workflow"
	"github.com/sust-cse/approval-engine/pkg/telemetry"
)

// DecideCommand is a reviewer's decision on an instance's current stage
type DecideCommand struct {
	InstanceID   string
	ActorID      string
	Decision     entity.Decision
	Comment      string
	SignatureRef string

	// ExpectedStage, when set, must equal the current stage key; a mismatch
	// means the caller acted on a stale view.
	ExpectedStage string
}

// DecisionService is the transition engine: it applies APPROVE/REJECT to the current stage
type DecisionService interface {
	Decide(ctx context.Context, cmd DecideCommand) (*entity.Instance, error)
}

type decisionServiceImpl struct {
	instanceRepo port.InstanceRepository
	trailRepo    port.TrailRepository
	identityRepo port.IdentityRepository
	txManager    port.TransactionManager
	verification VerificationService
	signatures   port.SignatureStore
	dispatcher   port.EventDispatcher
	logger       Logger
	opts         options
}

// NewDecisionService creates a new DecisionService; signatures may be nil
func NewDecisionService(
	instanceRepo port.InstanceRepository,
	trailRepo port.TrailRepository,
	identityRepo port.IdentityRepository,
	txManager port.TransactionManager,
	verification VerificationService,
	signatures port.SignatureStore,
	dispatcher port.EventDispatcher,
	logger Logger,
	opts ...Option,
) DecisionService {
	return &decisionServiceImpl{
		instanceRepo: instanceRepo,
		trailRepo:    trailRepo,
		identityRepo: identityRepo,
		txManager:    txManager,
		verification: verification,
		signatures:   signatures,
		dispatcher:   dispatcherOrNoop(dispatcher),
		logger:       logger,
		opts:         buildOptions(opts),
	}
}

func (s *decisionServiceImpl) Decide(ctx context.Context, cmd DecideCommand) (*entity.Instance, error) {
	ctx, span := telemetry.StartSpan(ctx, "DecisionService.Decide",
		telemetry.InstanceIDKey.String(cmd.InstanceID),
		telemetry.IdentityIDKey.String(cmd.ActorID),
		telemetry.DecisionKey.String(string(cmd.Decision)),
	)
	defer span.End()

	instance, err := s.decide(ctx, cmd)
	if err != nil {
		telemetry.SetError(span, err)
		s.logger.Error("Decision failed",
			"instance_id", cmd.InstanceID,
			"actor_id", cmd.ActorID,
			"decision", cmd.Decision,
			"error", err,
		)
		return nil, err
	}

	return instance, nil
}

func (s *decisionServiceImpl) decide(ctx context.Context, cmd DecideCommand) (*entity.Instance, error) {
	if !cmd.Decision.IsValid() {
		return nil, fmt.Errorf("%w: decision must be APPROVE or REJECT", workflow.ErrValidation)
	}

	instance, err := s.instanceRepo.GetByID(ctx, cmd.InstanceID)
	if err != nil {
		return nil, fmt.Errorf("load instance: %w", err)
	}
	if instance == nil {
		return nil, fmt.Errorf("%w: instance %s", workflow.ErrNotFound, cmd.InstanceID)
	}
	if instance.IsTerminal() {
		return nil, fmt.Errorf("%w: instance %s is %s", workflow.ErrAlreadyTerminal, instance.ID, instance.Status)
	}

	stage, ok := instance.CurrentStage()
	if !ok {
		return nil, fmt.Errorf("%w: instance %s has no current stage", workflow.ErrConflict, instance.ID)
	}
	if cmd.ExpectedStage != "" && cmd.ExpectedStage != stage.Key {
		return nil, fmt.Errorf("%w: expected stage %s but instance is at %s", workflow.ErrConflict, cmd.ExpectedStage, stage.Key)
	}

	actor, err := loadActor(ctx, s.identityRepo, cmd.ActorID)
	if err != nil {
		return nil, err
	}

	next, err := s.fire(ctx, instance, actor, cmd.Decision)
	if err != nil {
		return nil, err
	}

	comment := strings.TrimSpace(cmd.Comment)
	if cmd.Decision == entity.DecisionReject && comment == "" {
		return nil, fmt.Errorf("%w: a comment is required to reject", workflow.ErrValidation)
	}

	signatureRef, err := s.signatureFor(ctx, stage, actor, cmd.SignatureRef)
	if err != nil {
		return nil, err
	}

	now := s.opts.now().UTC()
	entry := &entity.TrailEntry{
		InstanceID:   instance.ID,
		StageKey:     stage.Key,
		StageIndex:   instance.CurrentStageIndex,
		ReviewerID:   actor.ID,
		ReviewerName: actor.DisplayName,
		Decision:     cmd.Decision,
		Comment:      comment,
		SignatureRef: signatureRef,
		DecidedAt:    now,
	}

	from := port.StageCursor{Index: instance.CurrentStageIndex, Status: instance.Status}
	to := port.StageCursor{Index: workflow.StageIndex(instance.StageChain, next), Status: string(next)}

	var code string
	err = s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		if err := s.instanceRepo.Transition(txCtx, instance.ID, from, to, now); err != nil {
			return err
		}
		if err := s.trailRepo.Append(txCtx, entry); err != nil {
			return err
		}
		if next == workflow.StateApproved {
			instance.Status = string(next)
			minted, err := s.verification.MintCode(txCtx, instance, now)
			if err != nil {
				return fmt.Errorf("mint verification code: %w", err)
			}
			code = minted
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Decision recorded",
		"instance_id", instance.ID,
		"stage", stage.Key,
		"decision", cmd.Decision,
		"reviewer_id", actor.ID,
		"status", to.Status,
	)

	s.publish(ctx, instance, entry, to.Status, code)

	return loadInstance(ctx, s.instanceRepo, s.trailRepo, instance.ID)
}

// fire runs the stage machine for the actor and maps its failures onto the error taxonomy
func (s *decisionServiceImpl) fire(ctx context.Context, instance *entity.Instance, actor *entity.Identity, decision entity.Decision) (workflow.State, error) {
	builder, err := workflow.NewChainBuilder(instance.StageChain)
	if err != nil {
		return "", err
	}

	current := workflow.State(instance.Status)
	if !current.IsValid() {
		return "", fmt.Errorf("%w: %q", workflow.ErrInvalidState, instance.Status)
	}

	machine := builder.Build(current)
	err = machine.Fire(workflow.WithActor(ctx, actor), workflow.TriggerFor(decision))
	switch {
	case err == nil:
		return machine.State(), nil
	case errors.Is(err, workflow.ErrGuardFailed):
		return "", fmt.Errorf("%w: %s cannot decide stage %s", workflow.ErrUnauthorized, actor.ID, current.StageKey())
	case errors.Is(err, workflow.ErrInvalidTransition):
		return "", fmt.Errorf("%w: %v", workflow.ErrConflict, err)
	default:
		return "", err
	}
}

// signatureFor returns the signature to stamp on a signable stage: the actor's
// stored one. A supplied reference must name that same stored signature.
// Non-signable stages never carry one.
func (s *decisionServiceImpl) signatureFor(ctx context.Context, stage entity.StageDescriptor, actor *entity.Identity, supplied string) (string, error) {
	if !stage.Signable {
		return "", nil
	}

	stored := ""
	if s.signatures != nil {
		ref, err := s.signatures.Lookup(ctx, actor.ID)
		if err != nil {
			// Absence of a signature never blocks a decision
			s.logger.Error("Signature lookup failed", "identity_id", actor.ID, "error", err)
		} else {
			stored = ref
		}
	}

	if ref := strings.TrimSpace(supplied); ref != "" && ref != stored {
		return "", fmt.Errorf("%w: signature %q is not on file for %s", workflow.ErrValidation, ref, actor.ID)
	}
	return stored, nil
}

func (s *decisionServiceImpl) publish(ctx context.Context, instance *entity.Instance, entry *entity.TrailEntry, status, code string) {
	workflowType := string(instance.WorkflowType)

	s.dispatcher.DispatchAsync(ctx, event.NewEvent(event.TypeStageDecided, instance.ID, workflowType, map[string]any{
		event.KeyStageKey:   entry.StageKey,
		event.KeyDecision:   string(entry.Decision),
		event.KeyReviewerID: entry.ReviewerID,
		event.KeyStatus:     status,
	}))

	switch status {
	case entity.StatusApproved:
		s.dispatcher.DispatchAsync(ctx, event.NewEvent(event.TypeInstanceApproved, instance.ID, workflowType, map[string]any{
			event.KeySubmitterID:      instance.SubmitterID,
			event.KeyVerificationCode: code,
		}))
	case entity.StatusRejected:
		s.dispatcher.DispatchAsync(ctx, event.NewEvent(event.TypeInstanceRejected, instance.ID, workflowType, map[string]any{
			event.KeySubmitterID: instance.SubmitterID,
			event.KeyStageKey:    entry.StageKey,
		}))
	}
}
