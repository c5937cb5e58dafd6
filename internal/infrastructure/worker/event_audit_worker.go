package worker

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/ThreeDotsLabs/watermill/message"
	"go.uber.org/zap"

	"github.com/sust-cse/approval-engine/internal/domain/event"
	"github.com/sust-cse/approval-engine/internal/infrastructure/messaging"
)

// EventAuditWorker consumes relayed domain events and writes one audit log
// line per event. It is the in-process consumer for single-node deployments.
type EventAuditWorker struct {
	subscriber message.Subscriber
	topic      string
	logger     *zap.Logger

	handled atomic.Int64
	wg      sync.WaitGroup
}

// NewEventAuditWorker creates a worker reading topic from subscriber
func NewEventAuditWorker(subscriber message.Subscriber, topic string, logger *zap.Logger) *EventAuditWorker {
	return &EventAuditWorker{
		subscriber: subscriber,
		topic:      topic,
		logger:     logger.With(zap.String("worker", "event-audit")),
	}
}

// Name returns the worker name
func (w *EventAuditWorker) Name() string {
	return "event-audit"
}

// Start subscribes to the topic; consumption stops when ctx is cancelled
func (w *EventAuditWorker) Start(ctx context.Context) error {
	messages, err := w.subscriber.Subscribe(ctx, w.topic)
	if err != nil {
		return fmt.Errorf("subscribe to %s: %w", w.topic, err)
	}

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		for msg := range messages {
			w.handle(msg)
		}
	}()
	return nil
}

// Stop waits for the consume loop to drain
func (w *EventAuditWorker) Stop() error {
	w.wg.Wait()
	return nil
}

// Handled returns the number of events logged so far
func (w *EventAuditWorker) Handled() int64 {
	return w.handled.Load()
}

func (w *EventAuditWorker) handle(msg *message.Message) {
	// Undecodable payloads are acked so they are not redelivered forever
	defer msg.Ack()

	evt, err := messaging.DecodeEvent(msg)
	if err != nil {
		w.logger.Error("Dropping undecodable event", zap.String("message_id", msg.UUID), zap.Error(err))
		return
	}

	fields := []zap.Field{
		zap.String("event_id", evt.ID),
		zap.String("event_type", string(evt.Type)),
		zap.String("instance_id", evt.InstanceID),
		zap.String("workflow_type", evt.WorkflowType),
		zap.Time("occurred_at", evt.Timestamp),
	}
	for _, key := range []string{event.KeyStageKey, event.KeyDecision, event.KeyReviewerID, event.KeyVerificationCode, event.KeyCheckNumber} {
		if value, ok := evt.Payload[key]; ok {
			fields = append(fields, zap.Any(key, value))
		}
	}

	w.logger.Info("Approval event", fields...)
	w.handled.Add(1)
}
