package event

import (
	"maps"
	"time"

	"github.com/google/uuid"
)

// Payload keys shared by producers and consumers
const (
	KeyStatus           = "status"
	KeyStageKey         = "stage_key"
	KeyDecision         = "decision"
	KeyReviewerID       = "reviewer_id"
	KeySubmitterID      = "submitter_id"
	KeyVerificationCode = "verification_code"
	KeyCheckNumber      = "check_number"
)

// Event is a domain event emitted after a committed state change
type Event struct {
	ID            string         `json:"id"`
	Type          Type           `json:"type"`
	InstanceID    string         `json:"instance_id"`
	WorkflowType  string         `json:"workflow_type"`
	Payload       map[string]any `json:"payload"`
	Timestamp     time.Time      `json:"timestamp"`
	CorrelationID string         `json:"correlation_id"`
}

// NewEvent creates a new domain event; the correlation id defaults to the instance id
func NewEvent(eventType Type, instanceID, workflowType string, payload map[string]any) *Event {
	return NewEventWithCorrelation(eventType, instanceID, workflowType, payload, instanceID)
}

// NewEventWithCorrelation creates an event linked to a correlation chain
func NewEventWithCorrelation(eventType Type, instanceID, workflowType string, payload map[string]any, correlationID string) *Event {
	if payload == nil {
		payload = map[string]any{}
	}
	return &Event{
		ID:            uuid.NewString(),
		Type:          eventType,
		InstanceID:    instanceID,
		WorkflowType:  workflowType,
		Payload:       payload,
		Timestamp:     time.Now().UTC(),
		CorrelationID: correlationID,
	}
}

// WithPayload returns a copy of the event with key set; the receiver is left untouched
func (e *Event) WithPayload(key string, value any) *Event {
	payload := make(map[string]any, len(e.Payload)+1)
	maps.Copy(payload, e.Payload)
	payload[key] = value

	cp := *e
	cp.Payload = payload
	return &cp
}

// GetPayloadString retrieves a string value from the payload
func (e *Event) GetPayloadString(key string) string {
	if s, ok := e.Payload[key].(string); ok {
		return s
	}
	return ""
}
