package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/sust-cse/approval-engine/internal/application/port"
	"github.com/sust-cse/approval-engine/internal/domain/entity"
	"github.com/sust-cse/approval-engine/internal/domain/workflow"
	"github.com/sust-cse/approval-engine/internal/infrastructure/persistence/sqlite"
)

const defaultListLimit = 50

const instanceColumns = `
	id, workflow_type, submitter_id, submitter_name, title,
	stage_chain, current_stage_index, status, payload,
	verification_code, approved_at,
	check_number, check_date, check_attached_by,
	created_at, updated_at`

// instancePayload is the JSON shape of the payload column
type instancePayload struct {
	Application *entity.ApplicationPayload `json:"application,omitempty"`
	CostRequest *entity.CostRequestPayload `json:"cost_request,omitempty"`
}

// InstanceRepository implements port.InstanceRepository
type InstanceRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewInstanceRepository creates a new instance repository
func NewInstanceRepository(db *sql.DB, logger *zap.Logger) port.InstanceRepository {
	return &InstanceRepository{
		db:     db,
		logger: logger,
	}
}

// Create inserts a new workflow instance with its frozen stage chain
func (r *InstanceRepository) Create(ctx context.Context, instance *entity.Instance) error {
	chain, err := json.Marshal(instance.StageChain)
	if err != nil {
		return fmt.Errorf("failed to encode stage chain: %w", err)
	}
	payload, err := json.Marshal(instancePayload{
		Application: instance.Application,
		CostRequest: instance.CostRequest,
	})
	if err != nil {
		return fmt.Errorf("failed to encode payload: %w", err)
	}

	query := `
		INSERT INTO workflow_instances (
			id, workflow_type, submitter_id, submitter_name, title,
			stage_chain, current_stage_index, status, payload,
			created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err = r.exec(ctx).ExecContext(ctx, query,
		instance.ID,
		string(instance.WorkflowType),
		instance.SubmitterID,
		instance.SubmitterName,
		instance.Title,
		string(chain),
		instance.CurrentStageIndex,
		instance.Status,
		string(payload),
		instance.CreatedAt.UTC(),
		instance.UpdatedAt.UTC(),
	)
	if err != nil {
		r.logger.Error("Failed to create instance", zap.String("id", instance.ID), zap.Error(err))
		return fmt.Errorf("failed to create instance: %w", sqlite.MapError(err))
	}

	return nil
}

// GetByID retrieves an instance by ID
func (r *InstanceRepository) GetByID(ctx context.Context, id string) (*entity.Instance, error) {
	query := `SELECT ` + instanceColumns + ` FROM workflow_instances WHERE id = ?`

	instance, err := scanInstance(r.exec(ctx).QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get instance by ID", zap.String("id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get instance: %w", err)
	}

	return instance, nil
}

// GetByVerificationCode retrieves an instance by its verification code
func (r *InstanceRepository) GetByVerificationCode(ctx context.Context, code string) (*entity.Instance, error) {
	query := `SELECT ` + instanceColumns + ` FROM workflow_instances WHERE verification_code = ?`

	instance, err := scanInstance(r.exec(ctx).QueryRowContext(ctx, query, code))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get instance by code", zap.String("code", code), zap.Error(err))
		return nil, fmt.Errorf("failed to get instance: %w", err)
	}

	return instance, nil
}

// List retrieves instances matching the filter, newest first
func (r *InstanceRepository) List(ctx context.Context, filter port.InstanceFilter) ([]*entity.Instance, error) {
	var (
		where []string
		args  []interface{}
	)
	if filter.WorkflowType != "" {
		where = append(where, "workflow_type = ?")
		args = append(args, string(filter.WorkflowType))
	}
	if filter.Status != "" {
		where = append(where, "status = ?")
		args = append(args, filter.Status)
	}
	if filter.SubmitterID != "" {
		where = append(where, "submitter_id = ?")
		args = append(args, filter.SubmitterID)
	}
	if filter.PendingOnly {
		where = append(where, "current_stage_index >= 0")
	}
	offset := max(filter.Offset, 0)
	if filter.After != nil {
		where = append(where, "(created_at < ? OR (created_at = ? AND id > ?))")
		at := filter.After.CreatedAt.UTC()
		args = append(args, at, at, filter.After.ID)
		offset = 0
	}

	query := `SELECT ` + instanceColumns + ` FROM workflow_instances`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY created_at DESC, id ASC`

	if filter.Limit > 0 {
		query += ` LIMIT ? OFFSET ?`
		args = append(args, filter.Limit, offset)
	} else if !filter.PendingOnly {
		query += ` LIMIT ? OFFSET ?`
		args = append(args, defaultListLimit, offset)
	}

	rows, err := r.exec(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to list instances", zap.Error(err))
		return nil, fmt.Errorf("failed to list instances: %w", err)
	}
	defer rows.Close()

	var instances []*entity.Instance
	for rows.Next() {
		instance, err := scanInstance(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan instance: %w", err)
		}
		instances = append(instances, instance)
	}

	return instances, rows.Err()
}

// Transition compare-and-swaps the stage cursor
func (r *InstanceRepository) Transition(ctx context.Context, id string, from, to port.StageCursor, at time.Time) error {
	query := `
		UPDATE workflow_instances
		SET current_stage_index = ?, status = ?, updated_at = ?
		WHERE id = ? AND current_stage_index = ? AND status = ?
	`

	result, err := r.exec(ctx).ExecContext(ctx, query,
		to.Index, to.Status, at.UTC(),
		id, from.Index, from.Status,
	)
	if err != nil {
		r.logger.Error("Failed to transition instance", zap.String("id", id), zap.Error(err))
		return fmt.Errorf("failed to transition instance: %w", sqlite.MapError(err))
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: instance %s is no longer at %s", workflow.ErrConflict, id, from.Status)
	}

	return nil
}

// AssignVerificationCode stores the code and approval instant exactly once
func (r *InstanceRepository) AssignVerificationCode(ctx context.Context, id, code string, approvedAt time.Time) error {
	query := `
		UPDATE workflow_instances
		SET verification_code = ?, approved_at = ?
		WHERE id = ? AND verification_code IS NULL AND status = ?
	`

	result, err := r.exec(ctx).ExecContext(ctx, query, code, approvedAt.UTC(), id, entity.StatusApproved)
	if err != nil {
		if sqlite.IsUniqueViolation(err) {
			return fmt.Errorf("%w: code %s already in use", workflow.ErrConflict, code)
		}
		r.logger.Error("Failed to assign verification code", zap.String("id", id), zap.Error(err))
		return fmt.Errorf("failed to assign verification code: %w", sqlite.MapError(err))
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if affected > 0 {
		return nil
	}

	existing, err := r.GetByID(ctx, id)
	if err != nil {
		return err
	}
	switch {
	case existing == nil:
		return fmt.Errorf("%w: instance %s", workflow.ErrNotFound, id)
	case existing.VerificationCode != nil:
		return fmt.Errorf("%w: instance %s has code %s", workflow.ErrAlreadyAssigned, id, *existing.VerificationCode)
	default:
		return fmt.Errorf("%w: instance %s is %s", workflow.ErrPrecondition, id, existing.Status)
	}
}

// AttachCheck sets the check annotation on an approved cost request lacking one
func (r *InstanceRepository) AttachCheck(ctx context.Context, id string, check *entity.CheckAnnotation) error {
	query := `
		UPDATE workflow_instances
		SET check_number = ?, check_date = ?, check_attached_by = ?, updated_at = ?
		WHERE id = ? AND workflow_type = ? AND status = ? AND check_number IS NULL
	`

	result, err := r.exec(ctx).ExecContext(ctx, query,
		check.Number, check.Date.UTC(), check.AttachedBy, time.Now().UTC(),
		id, string(entity.WorkflowTypeCostRequest), entity.StatusApproved,
	)
	if err != nil {
		r.logger.Error("Failed to attach check", zap.String("id", id), zap.Error(err))
		return fmt.Errorf("failed to attach check: %w", sqlite.MapError(err))
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: check cannot be attached to instance %s", workflow.ErrPrecondition, id)
	}

	return nil
}

func (r *InstanceRepository) exec(ctx context.Context) sqlite.Executor {
	return sqlite.ExecutorFor(ctx, r.db)
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanInstance(row rowScanner) (*entity.Instance, error) {
	var (
		instance         entity.Instance
		workflowType     string
		chain, payload   string
		verificationCode sql.NullString
		approvedAt       sql.NullTime
		checkNumber      sql.NullString
		checkDate        sql.NullTime
		checkAttachedBy  sql.NullString
	)

	err := row.Scan(
		&instance.ID,
		&workflowType,
		&instance.SubmitterID,
		&instance.SubmitterName,
		&instance.Title,
		&chain,
		&instance.CurrentStageIndex,
		&instance.Status,
		&payload,
		&verificationCode,
		&approvedAt,
		&checkNumber,
		&checkDate,
		&checkAttachedBy,
		&instance.CreatedAt,
		&instance.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	instance.WorkflowType = entity.WorkflowType(workflowType)

	if err := json.Unmarshal([]byte(chain), &instance.StageChain); err != nil {
		return nil, fmt.Errorf("failed to decode stage chain of %s: %w", instance.ID, err)
	}

	var p instancePayload
	if err := json.Unmarshal([]byte(payload), &p); err != nil {
		return nil, fmt.Errorf("failed to decode payload of %s: %w", instance.ID, err)
	}
	instance.Application = p.Application
	instance.CostRequest = p.CostRequest

	if verificationCode.Valid {
		instance.VerificationCode = &verificationCode.String
	}
	if approvedAt.Valid {
		t := approvedAt.Time.UTC()
		instance.ApprovedAt = &t
	}
	if checkNumber.Valid {
		instance.Check = &entity.CheckAnnotation{
			Number:     checkNumber.String,
			Date:       checkDate.Time.UTC(),
			AttachedBy: checkAttachedBy.String,
		}
	}

	instance.CreatedAt = instance.CreatedAt.UTC()
	instance.UpdatedAt = instance.UpdatedAt.UTC()

	return &instance, nil
}

var _ port.InstanceRepository = (*InstanceRepository)(nil)
