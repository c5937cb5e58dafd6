package repository

import (
	"context"
	"database/sql"
	"fmt"

	"go.uber.org/zap"

	"github.com/sust-cse/approval-engine/internal/application/port"
	"github.com/sust-cse/approval-engine/internal/infrastructure/persistence/sqlite"
)

// SequenceRepository implements port.SequenceRepository with one counter row per prefix and day.
// Callers run it inside the approving transaction so a rolled back approval releases its number.
type SequenceRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewSequenceRepository creates a new sequence repository
func NewSequenceRepository(db *sql.DB, logger *zap.Logger) port.SequenceRepository {
	return &SequenceRepository{
		db:     db,
		logger: logger,
	}
}

// Next increments and returns the counter for prefix on day
func (r *SequenceRepository) Next(ctx context.Context, prefix, day string) (int, error) {
	query := `
		INSERT INTO verification_sequences (prefix, day, last_value) VALUES (?, ?, 1)
		ON CONFLICT (prefix, day) DO UPDATE SET last_value = last_value + 1
		RETURNING last_value
	`

	var value int
	if err := sqlite.ExecutorFor(ctx, r.db).QueryRowContext(ctx, query, prefix, day).Scan(&value); err != nil {
		r.logger.Error("Failed to allocate sequence",
			zap.String("prefix", prefix),
			zap.String("day", day),
			zap.Error(err))
		return 0, fmt.Errorf("failed to allocate sequence: %w", sqlite.MapError(err))
	}

	return value, nil
}

var _ port.SequenceRepository = (*SequenceRepository)(nil)
