package messaging

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/middleware"
	"go.uber.org/zap"

	"github.com/sust-cse/approval-engine/internal/application/dispatcher"
	"github.com/sust-cse/approval-engine/internal/domain/event"
)

// Message metadata keys set on every relayed event
const (
	MetadataEventType    = "event_type"
	MetadataInstanceID   = "instance_id"
	MetadataWorkflowType = "workflow_type"
)

// relayHandlerName is the dispatcher subscription name of the relay
const relayHandlerName = "watermill-relay"

// Relay forwards committed domain events to a watermill topic as JSON
type Relay struct {
	publisher message.Publisher
	topic     string
	logger    *zap.Logger
}

// NewRelay creates a relay onto topic (DefaultTopic when empty)
func NewRelay(publisher message.Publisher, topic string, logger *zap.Logger) *Relay {
	if topic == "" {
		topic = DefaultTopic
	}
	return &Relay{publisher: publisher, topic: topic, logger: logger}
}

// Register subscribes the relay to every event type on the dispatcher
func (r *Relay) Register(d dispatcher.Dispatcher) {
	d.SubscribeAll(relayHandlerName, r.Publish)
}

// Publish encodes the event and publishes it to the relay topic
func (r *Relay) Publish(ctx context.Context, evt *event.Event) error {
	payload, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}

	msg := message.NewMessage(watermill.NewUUID(), payload)
	msg.Metadata.Set(MetadataEventType, string(evt.Type))
	msg.Metadata.Set(MetadataInstanceID, evt.InstanceID)
	msg.Metadata.Set(MetadataWorkflowType, evt.WorkflowType)
	middleware.SetCorrelationID(evt.CorrelationID, msg)
	msg.SetContext(ctx)

	if err := r.publisher.Publish(r.topic, msg); err != nil {
		r.logger.Error("Failed to relay event",
			zap.String("event_id", evt.ID),
			zap.String("event_type", string(evt.Type)),
			zap.Error(err))
		return fmt.Errorf("publish %s: %w", evt.Type, err)
	}

	r.logger.Debug("Event relayed",
		zap.String("event_id", evt.ID),
		zap.String("event_type", string(evt.Type)),
		zap.String("topic", r.topic))
	return nil
}

// Topic returns the topic events are published to
func (r *Relay) Topic() string {
	return r.topic
}

// Close closes the underlying publisher
func (r *Relay) Close() error {
	return r.publisher.Close()
}

// DecodeEvent parses a relayed message back into a domain event
func DecodeEvent(msg *message.Message) (*event.Event, error) {
	var evt event.Event
	if err := json.Unmarshal(msg.Payload, &evt); err != nil {
		return nil, fmt.Errorf("decode event %s: %w", msg.UUID, err)
	}
	return &evt, nil
}
