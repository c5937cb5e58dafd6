package service

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/sust-cse/approval-engine/internal/application/port"
	"github.com/sust-cse/approval-engine/internal/domain/entity"
	"github.com/sust-cse/approval-engine/internal/domain/workflow"
	"github.com/sust-cse/approval-engine/pkg/telemetry"
)

var codePattern = regexp.MustCompile(`^[A-Z][A-Z0-9]*-\d{8}-\d{4,}$`)

// CodePrefixes maps workflow types onto verification code prefixes
type CodePrefixes map[entity.WorkflowType]string

// DefaultCodePrefixes are APP for applications and COST for cost requests
func DefaultCodePrefixes() CodePrefixes {
	return CodePrefixes{
		entity.WorkflowTypeApplication: "APP",
		entity.WorkflowTypeCostRequest: "COST",
	}
}

// VerificationService mints verification codes and answers public lookups
type VerificationService interface {
	// MintCode assigns <PREFIX>-<YYYYMMDD>-<NNNN> to an approved instance. It must run
	// inside the approving transaction.
	MintCode(ctx context.Context, instance *entity.Instance, approvedAt time.Time) (string, error)

	// Lookup returns the redacted view of the approved instance the code belongs to
	Lookup(ctx context.Context, code string) (*entity.VerificationView, error)
}

type verificationServiceImpl struct {
	instanceRepo port.InstanceRepository
	trailRepo    port.TrailRepository
	sequenceRepo port.SequenceRepository
	signatures   port.SignatureStore
	cache        port.VerificationCache
	prefixes     CodePrefixes
	logger       Logger
}

// NewVerificationService creates a new VerificationService; signatures and cache may be nil
func NewVerificationService(
	instanceRepo port.InstanceRepository,
	trailRepo port.TrailRepository,
	sequenceRepo port.SequenceRepository,
	signatures port.SignatureStore,
	cache port.VerificationCache,
	prefixes CodePrefixes,
	logger Logger,
) VerificationService {
	if prefixes == nil {
		prefixes = DefaultCodePrefixes()
	}
	return &verificationServiceImpl{
		instanceRepo: instanceRepo,
		trailRepo:    trailRepo,
		sequenceRepo: sequenceRepo,
		signatures:   signatures,
		cache:        cache,
		prefixes:     prefixes,
		logger:       logger,
	}
}

func (s *verificationServiceImpl) MintCode(ctx context.Context, instance *entity.Instance, approvedAt time.Time) (string, error) {
	if instance.VerificationCode != nil {
		return "", fmt.Errorf("%w: instance %s has code %s", workflow.ErrAlreadyAssigned, instance.ID, *instance.VerificationCode)
	}

	prefix, ok := s.prefixes[instance.WorkflowType]
	if !ok || prefix == "" {
		return "", fmt.Errorf("%w: no code prefix for %s", workflow.ErrInvalidConfiguration, instance.WorkflowType)
	}

	day := approvedAt.UTC().Format("20060102")
	seq, err := s.sequenceRepo.Next(ctx, prefix, day)
	if err != nil {
		return "", fmt.Errorf("allocate code sequence: %w", err)
	}

	code := fmt.Sprintf("%s-%s-%04d", prefix, day, seq)
	if err := s.instanceRepo.AssignVerificationCode(ctx, instance.ID, code, approvedAt); err != nil {
		return "", err
	}

	instance.VerificationCode = &code
	at := approvedAt.UTC()
	instance.ApprovedAt = &at

	return code, nil
}

func (s *verificationServiceImpl) Lookup(ctx context.Context, code string) (*entity.VerificationView, error) {
	code = strings.ToUpper(strings.TrimSpace(code))

	ctx, span := telemetry.StartSpan(ctx, "VerificationService.Lookup", telemetry.CodeKey.String(code))
	defer span.End()

	if !codePattern.MatchString(code) {
		return nil, fmt.Errorf("%w: code %q", workflow.ErrNotFound, code)
	}

	if s.cache != nil {
		view, err := s.cache.Get(ctx, code)
		if err != nil {
			s.logger.Error("Verification cache read failed", "code", code, "error", err)
		} else if view != nil {
			return view, nil
		}
	}

	instance, err := s.instanceRepo.GetByVerificationCode(ctx, code)
	if err != nil {
		telemetry.SetError(span, err)
		return nil, fmt.Errorf("lookup code: %w", err)
	}
	// Only approved instances are publicly discoverable
	if instance == nil || instance.Status != entity.StatusApproved {
		return nil, fmt.Errorf("%w: code %q", workflow.ErrNotFound, code)
	}

	entries, err := s.trailRepo.ListByInstanceID(ctx, instance.ID)
	if err != nil {
		telemetry.SetError(span, err)
		return nil, fmt.Errorf("load trail: %w", err)
	}

	view := &entity.VerificationView{
		Code:          code,
		WorkflowType:  instance.WorkflowType,
		Title:         instance.Title,
		Status:        instance.Status,
		SubmitterName: instance.SubmitterName,
		ApprovedAt:    instance.ApprovedAt,
		Trail:         make([]entity.VerificationTrailItem, 0, len(entries)),
	}
	for _, entry := range entries {
		view.Trail = append(view.Trail, entity.VerificationTrailItem{
			StageKey:     entry.StageKey,
			ReviewerName: entry.ReviewerName,
			Decision:     entry.Decision,
			DecidedAt:    entry.DecidedAt,
			SignatureURL: s.signatureURL(ctx, entry.SignatureRef),
		})
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, view); err != nil {
			s.logger.Error("Verification cache write failed", "code", code, "error", err)
		}
	}

	return view, nil
}

func (s *verificationServiceImpl) signatureURL(ctx context.Context, ref string) string {
	if ref == "" || s.signatures == nil {
		return ""
	}
	url, err := s.signatures.URL(ctx, ref)
	if err != nil {
		s.logger.Error("Failed to resolve signature URL", "ref", ref, "error", err)
		return ""
	}
	return url
}
