package port

import (
	"context"
	"time"

	"github.com/sust-cse/approval-engine/internal/domain/entity"
)

// StageCursor is the (currentStageIndex, status) pair an instance is compared and swapped on
type StageCursor struct {
	Index  int
	Status string
}

// InstanceFilter narrows ListInstances; zero values mean "any"
type InstanceFilter struct {
	WorkflowType entity.WorkflowType
	Status       string
	SubmitterID  string
	PendingOnly  bool
	Limit        int
	Offset       int
	// After resumes the listing strictly past a previously returned row; Offset is ignored when set
	After *InstanceCursor
}

// InstanceCursor is a keyset position in the newest-first listing order
type InstanceCursor struct {
	CreatedAt time.Time
	ID        string
}

// CursorOf returns the keyset position of an instance
func CursorOf(instance *entity.Instance) *InstanceCursor {
	return &InstanceCursor{CreatedAt: instance.CreatedAt, ID: instance.ID}
}

// InstanceRepository defines persistence operations for workflow instances.
// Lookups return (nil, nil) when nothing matches. Returned instances carry no trail.
type InstanceRepository interface {
	Create(ctx context.Context, instance *entity.Instance) error
	GetByID(ctx context.Context, id string) (*entity.Instance, error)
	GetByVerificationCode(ctx context.Context, code string) (*entity.Instance, error)
	List(ctx context.Context, filter InstanceFilter) ([]*entity.Instance, error)

	// Transition moves the instance from one cursor to another; it fails with
	// workflow.ErrConflict when the stored cursor no longer equals from.
	Transition(ctx context.Context, id string, from, to StageCursor, at time.Time) error

	// AssignVerificationCode sets the code once; a second call fails with workflow.ErrAlreadyAssigned.
	AssignVerificationCode(ctx context.Context, id, code string, approvedAt time.Time) error

	// AttachCheck stores the check annotation on an approved instance that has none yet,
	// failing with workflow.ErrPrecondition otherwise.
	AttachCheck(ctx context.Context, id string, check *entity.CheckAnnotation) error
}

// TrailRepository is the append-only audit trail store
type TrailRepository interface {
	// Append fails with workflow.ErrConflict if the stage already has an entry
	Append(ctx context.Context, entry *entity.TrailEntry) error
	ListByInstanceID(ctx context.Context, instanceID string) ([]*entity.TrailEntry, error)
}

// SequenceRepository allocates verification code sequence numbers
type SequenceRepository interface {
	// Next returns the next value for prefix on day (YYYYMMDD), starting at 1
	Next(ctx context.Context, prefix, day string) (int, error)
}

// IdentityRepository is the read side of the identity directory plus bulk import
type IdentityRepository interface {
	GetByID(ctx context.Context, id string) (*entity.Identity, error)
	List(ctx context.Context) ([]*entity.Identity, error)
	Upsert(ctx context.Context, identity *entity.Identity) error
}

// TransactionManager handles database transactions
type TransactionManager interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}
