package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/sust-cse/approval-engine/internal/application/port"
	"github.com/sust-cse/approval-engine/internal/domain/entity"
	"github.com/sust-cse/approval-engine/internal/infrastructure/persistence/sqlite"
)

// IdentityRepository implements port.IdentityRepository
type IdentityRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewIdentityRepository creates a new identity repository
func NewIdentityRepository(db *sql.DB, logger *zap.Logger) port.IdentityRepository {
	return &IdentityRepository{
		db:     db,
		logger: logger,
	}
}

// GetByID retrieves a directory entry by ID
func (r *IdentityRepository) GetByID(ctx context.Context, id string) (*entity.Identity, error) {
	query := `
		SELECT id, display_name, email, roles, permissions, updated_at
		FROM identities
		WHERE id = ?
	`

	identity, err := scanIdentity(sqlite.ExecutorFor(ctx, r.db).QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get identity", zap.String("id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get identity: %w", err)
	}

	return identity, nil
}

// List returns every identity ordered by ID
func (r *IdentityRepository) List(ctx context.Context) ([]*entity.Identity, error) {
	query := `
		SELECT id, display_name, email, roles, permissions, updated_at
		FROM identities
		ORDER BY id ASC
	`

	rows, err := sqlite.ExecutorFor(ctx, r.db).QueryContext(ctx, query)
	if err != nil {
		r.logger.Error("Failed to list identities", zap.Error(err))
		return nil, fmt.Errorf("failed to list identities: %w", err)
	}
	defer rows.Close()

	var identities []*entity.Identity
	for rows.Next() {
		identity, err := scanIdentity(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan identity: %w", err)
		}
		identities = append(identities, identity)
	}

	return identities, rows.Err()
}

// Upsert inserts or replaces a directory entry
func (r *IdentityRepository) Upsert(ctx context.Context, identity *entity.Identity) error {
	roles, err := json.Marshal(nonNil(identity.Roles))
	if err != nil {
		return fmt.Errorf("failed to encode roles: %w", err)
	}
	permissions, err := json.Marshal(nonNil(identity.Permissions))
	if err != nil {
		return fmt.Errorf("failed to encode permissions: %w", err)
	}

	query := `
		INSERT INTO identities (id, display_name, email, roles, permissions, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			display_name = excluded.display_name,
			email = excluded.email,
			roles = excluded.roles,
			permissions = excluded.permissions,
			updated_at = excluded.updated_at
	`

	identity.UpdatedAt = time.Now().UTC()
	_, err = sqlite.ExecutorFor(ctx, r.db).ExecContext(ctx, query,
		identity.ID,
		identity.DisplayName,
		identity.Email,
		string(roles),
		string(permissions),
		identity.UpdatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to upsert identity", zap.String("id", identity.ID), zap.Error(err))
		return fmt.Errorf("failed to upsert identity: %w", sqlite.MapError(err))
	}

	return nil
}

func scanIdentity(row rowScanner) (*entity.Identity, error) {
	var (
		identity           entity.Identity
		roles, permissions string
	)

	if err := row.Scan(
		&identity.ID,
		&identity.DisplayName,
		&identity.Email,
		&roles,
		&permissions,
		&identity.UpdatedAt,
	); err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(roles), &identity.Roles); err != nil {
		return nil, fmt.Errorf("failed to decode roles of %s: %w", identity.ID, err)
	}
	if err := json.Unmarshal([]byte(permissions), &identity.Permissions); err != nil {
		return nil, fmt.Errorf("failed to decode permissions of %s: %w", identity.ID, err)
	}

	return &identity, nil
}

func nonNil(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}

var _ port.IdentityRepository = (*IdentityRepository)(nil)
