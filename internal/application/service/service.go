package service

import (
	"context"
	"fmt"
	"time"

	"github.com/sust-cse/approval-engine/internal/application/port"
	"github.com/sust-cse/approval-engine/internal/domain/entity"
	"github.com/sust-cse/approval-engine/internal/domain/event"
	"github.com/sust-cse/approval-engine/internal/domain/workflow"
)

// Logger interface for minimal logging dependency
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

// Option configures the services
type Option func(*options)

type options struct {
	now func() time.Time
}

// WithClock overrides the time source
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		o.now = now
	}
}

func buildOptions(opts []Option) options {
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

type noopDispatcher struct{}

func (noopDispatcher) DispatchAsync(context.Context, *event.Event) {}

func dispatcherOrNoop(d port.EventDispatcher) port.EventDispatcher {
	if d == nil {
		return noopDispatcher{}
	}
	return d
}

// loadInstance fetches an instance and its trail, mapping absence to ErrNotFound
func loadInstance(ctx context.Context, instances port.InstanceRepository, trail port.TrailRepository, id string) (*entity.Instance, error) {
	instance, err := instances.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load instance: %w", err)
	}
	if instance == nil {
		return nil, fmt.Errorf("%w: instance %s", workflow.ErrNotFound, id)
	}

	entries, err := trail.ListByInstanceID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load trail: %w", err)
	}
	instance.Trail = entries

	return instance, nil
}

// loadActor fetches the acting identity; unknown identities are not authorized to act
func loadActor(ctx context.Context, identities port.IdentityRepository, id string) (*entity.Identity, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: missing acting identity", workflow.ErrUnauthorized)
	}
	actor, err := identities.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load identity: %w", err)
	}
	if actor == nil {
		return nil, fmt.Errorf("%w: unknown identity %s", workflow.ErrUnauthorized, id)
	}
	return actor, nil
}
