package service

import (
	"context"
	"fmt"

	"github.com/sust-cse/approval-engine/internal/application/port"
	"github.com/sust-cse/approval-engine/internal/domain/entity"
	"github.com/sust-cse/approval-engine/internal/domain/workflow"
)

// inboxScanLimit bounds how many pending instances ListAwaiting inspects per page
const inboxScanLimit = 200

// QueryService answers authenticated read requests
type QueryService interface {
	GetInstance(ctx context.Context, id string) (*entity.Instance, error)
	ListInstances(ctx context.Context, filter port.InstanceFilter) ([]*entity.Instance, error)
	// ListAwaiting returns pending instances whose current stage the identity may decide
	ListAwaiting(ctx context.Context, identityID string, limit, offset int) ([]*entity.Instance, error)
}

type queryServiceImpl struct {
	instanceRepo port.InstanceRepository
	trailRepo    port.TrailRepository
	identityRepo port.IdentityRepository
	scanLimit    int
}

// NewQueryService creates a new QueryService
func NewQueryService(instanceRepo port.InstanceRepository, trailRepo port.TrailRepository, identityRepo port.IdentityRepository) QueryService {
	return &queryServiceImpl{
		instanceRepo: instanceRepo,
		trailRepo:    trailRepo,
		identityRepo: identityRepo,
		scanLimit:    inboxScanLimit,
	}
}

func (s *queryServiceImpl) GetInstance(ctx context.Context, id string) (*entity.Instance, error) {
	return loadInstance(ctx, s.instanceRepo, s.trailRepo, id)
}

func (s *queryServiceImpl) ListInstances(ctx context.Context, filter port.InstanceFilter) ([]*entity.Instance, error) {
	if filter.WorkflowType != "" && !filter.WorkflowType.IsValid() {
		return nil, fmt.Errorf("%w: unknown workflow type %q", workflow.ErrValidation, filter.WorkflowType)
	}
	if filter.Limit < 0 || filter.Offset < 0 {
		return nil, fmt.Errorf("%w: limit and offset must not be negative", workflow.ErrValidation)
	}

	instances, err := s.instanceRepo.List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("list instances: %w", err)
	}
	return instances, nil
}

func (s *queryServiceImpl) ListAwaiting(ctx context.Context, identityID string, limit, offset int) ([]*entity.Instance, error) {
	actor, err := loadActor(ctx, s.identityRepo, identityID)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	// Approver predicates live in the frozen chain, so matching happens here
	// rather than in SQL. Pages are keyed on the last row seen so instances
	// leaving the pending set between pages cannot shift later rows out of view.
	var (
		matched []*entity.Instance
		after   *port.InstanceCursor
	)
	for {
		page, err := s.instanceRepo.List(ctx, port.InstanceFilter{
			PendingOnly: true,
			Limit:       s.scanLimit,
			After:       after,
		})
		if err != nil {
			return nil, fmt.Errorf("list pending instances: %w", err)
		}
		for _, instance := range page {
			if workflow.CanAct(ctx, instance, actor) {
				matched = append(matched, instance)
			}
		}
		if len(page) < s.scanLimit || len(matched) >= offset+limit {
			break
		}
		after = port.CursorOf(page[len(page)-1])
	}

	if offset >= len(matched) {
		return []*entity.Instance{}, nil
	}
	end := min(offset+limit, len(matched))
	return matched[offset:end], nil
}
