package port

import (
	"context"

	"github.com/sust-cse/approval-engine/internal/domain/entity"
)

// SignatureStore provides previously provisioned signature images
type SignatureStore interface {
	// Lookup returns the stored signature reference for an identity, or "" when none is on file
	Lookup(ctx context.Context, identityID string) (string, error)

	// URL resolves a signature reference into a publicly fetchable URL
	URL(ctx context.Context, ref string) (string, error)
}

// VerificationCache caches public verification views; approved views never change
type VerificationCache interface {
	Get(ctx context.Context, code string) (*entity.VerificationView, error)
	Set(ctx context.Context, view *entity.VerificationView) error
}
