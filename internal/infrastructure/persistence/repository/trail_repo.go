package repository

import (
	"context"
	"database/sql"
	"fmt"

	"go.uber.org/zap"

	"github.com/sust-cse/approval-engine/internal/application/port"
	"github.com/sust-cse/approval-engine/internal/domain/entity"
	"github.com/sust-cse/approval-engine/internal/domain/workflow"
	"github.com/sust-cse/approval-engine/internal/infrastructure/persistence/sqlite"
)

// TrailRepository implements port.TrailRepository. Entries are insert-only;
// the schema rejects UPDATE and DELETE with triggers.
type TrailRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewTrailRepository creates a new trail repository
func NewTrailRepository(db *sql.DB, logger *zap.Logger) port.TrailRepository {
	return &TrailRepository{
		db:     db,
		logger: logger,
	}
}

// Append writes a trail entry; a second entry for the same stage is a conflict
func (r *TrailRepository) Append(ctx context.Context, entry *entity.TrailEntry) error {
	query := `
		INSERT INTO trail_entries (
			instance_id, stage_key, stage_index, reviewer_id, reviewer_name,
			decision, comment, signature_ref, decided_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	result, err := sqlite.ExecutorFor(ctx, r.db).ExecContext(ctx, query,
		entry.InstanceID,
		entry.StageKey,
		entry.StageIndex,
		entry.ReviewerID,
		entry.ReviewerName,
		string(entry.Decision),
		entry.Comment,
		entry.SignatureRef,
		entry.DecidedAt.UTC(),
	)
	if err != nil {
		if sqlite.IsUniqueViolation(err) {
			return fmt.Errorf("%w: stage %s of %s already decided", workflow.ErrConflict, entry.StageKey, entry.InstanceID)
		}
		r.logger.Error("Failed to append trail entry",
			zap.String("instance_id", entry.InstanceID),
			zap.String("stage_key", entry.StageKey),
			zap.Error(err))
		return fmt.Errorf("failed to append trail entry: %w", sqlite.MapError(err))
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}

	entry.ID = id
	return nil
}

// ListByInstanceID returns an instance's trail in stage order
func (r *TrailRepository) ListByInstanceID(ctx context.Context, instanceID string) ([]*entity.TrailEntry, error) {
	query := `
		SELECT id, instance_id, stage_key, stage_index, reviewer_id, reviewer_name,
			decision, comment, signature_ref, decided_at
		FROM trail_entries
		WHERE instance_id = ?
		ORDER BY stage_index ASC
	`

	rows, err := sqlite.ExecutorFor(ctx, r.db).QueryContext(ctx, query, instanceID)
	if err != nil {
		r.logger.Error("Failed to list trail", zap.String("instance_id", instanceID), zap.Error(err))
		return nil, fmt.Errorf("failed to list trail: %w", err)
	}
	defer rows.Close()

	var entries []*entity.TrailEntry
	for rows.Next() {
		var (
			entry    entity.TrailEntry
			decision string
		)
		err := rows.Scan(
			&entry.ID,
			&entry.InstanceID,
			&entry.StageKey,
			&entry.StageIndex,
			&entry.ReviewerID,
			&entry.ReviewerName,
			&decision,
			&entry.Comment,
			&entry.SignatureRef,
			&entry.DecidedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan trail entry: %w", err)
		}
		entry.Decision = entity.Decision(decision)
		entry.DecidedAt = entry.DecidedAt.UTC()
		entries = append(entries, &entry)
	}

	return entries, rows.Err()
}

var _ port.TrailRepository = (*TrailRepository)(nil)
