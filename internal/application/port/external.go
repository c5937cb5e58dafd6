package port

import (
	"context"

	"github.com/sust-cse/approval-engine/internal/domain/event"
)

// EventDispatcher receives domain events after their transaction committed
type EventDispatcher interface {
	DispatchAsync(ctx context.Context, evt *event.Event)
}

// EventPublisher delivers domain events to the external notification collaborator
type EventPublisher interface {
	Publish(ctx context.Context, evt *event.Event) error
	Close() error
}
