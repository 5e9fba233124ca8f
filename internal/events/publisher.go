package events

import (
	"context"
	"time"

	"github.com/google/uuid"

	"pitchbook/internal/adapters/kafka"
	"pitchbook/internal/groupchat"
	"pitchbook/pkg/logger"
)

// RunEvent is the JSON envelope published for run lifecycle events.
type RunEvent struct {
	ID         string                 `json:"id"`
	WorkflowID string                 `json:"workflow_id"`
	Company    string                 `json:"company"`
	Type       string                 `json:"type"`
	Agent      string                 `json:"agent,omitempty"`
	Message    string                 `json:"message,omitempty"`
	Data       map[string]interface{} `json:"data,omitempty"`
	Timestamp  time.Time              `json:"timestamp"`
}

// Publisher mirrors run progress onto Kafka for downstream consumers. A nil
// publisher is valid and publishes nothing, so callers don't need to branch
// on whether the broker is configured.
type Publisher struct {
	producer *kafka.Producer
	log      *logger.Logger
}

// NewPublisher creates a new event publisher
func NewPublisher(producer *kafka.Producer) *Publisher {
	return &Publisher{
		producer: producer,
		log:      logger.Get().With("component", "event_publisher"),
	}
}

// PublishRunEvent mirrors one stream event. Publish failures are logged, not
// propagated: the broker is an observer, never a reason to fail a run.
func (p *Publisher) PublishRunEvent(ctx context.Context, workflowID uuid.UUID, company string, e groupchat.Event) {
	if p == nil || p.producer == nil {
		return
	}

	topic := kafka.TopicRunEvents
	switch e.Type {
	case groupchat.EventComplete, groupchat.EventError:
		topic = kafka.TopicRunCompleted
	case groupchat.EventSection:
		topic = kafka.TopicSectionEvents
	}

	evt := RunEvent{
		ID:         newEventID(),
		WorkflowID: workflowID.String(),
		Company:    company,
		Type:       string(e.Type),
		Agent:      e.Agent,
		Message:    e.Message,
		Data:       e.Data,
		Timestamp:  e.Timestamp,
	}

	if err := p.producer.Publish(ctx, topic, workflowID.String(), evt); err != nil {
		p.log.Errorf("Failed to publish run event %s: %v", e.Type, err)
	}
}

func newEventID() string {
	return uuid.NewString()
}
