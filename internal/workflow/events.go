package workflow

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
)

// Workflow lifecycle events are published to subjects:
//
//	workflows.{workflow_id}.created
//	workflows.{workflow_id}.advanced
//	workflows.{workflow_id}.completed
//
// Publication is best-effort; a broker outage never fails the operation that
// triggered the event.

// EventType names a lifecycle transition.
type EventType string

const (
	EventCreated   EventType = "created"
	EventAdvanced  EventType = "advanced"
	EventCompleted EventType = "completed"
)

// Event is the payload published on each lifecycle transition.
type Event struct {
	WorkflowID string    `json:"workflow_id"`
	Type       EventType `json:"type"`
	Status     Status    `json:"status"`
	StepIndex  int       `json:"step_index"`
	Mode       string    `json:"mode,omitempty"`
	At         time.Time `json:"at"`
}

// EventPublisher emits workflow lifecycle events.
type EventPublisher interface {
	Publish(event *Event) error
}

// natsPublisher publishes events over a NATS connection.
type natsPublisher struct {
	nc *nats.Conn
}

// NewNATSPublisher creates an EventPublisher over an established NATS
// connection.
func NewNATSPublisher(nc *nats.Conn) EventPublisher {
	return &natsPublisher{nc: nc}
}

func (p *natsPublisher) Publish(event *Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	subject := fmt.Sprintf("workflows.%s.%s", event.WorkflowID, event.Type)
	if err := p.nc.Publish(subject, data); err != nil {
		return fmt.Errorf("publish %s event: %w", event.Type, err)
	}
	return nil
}
