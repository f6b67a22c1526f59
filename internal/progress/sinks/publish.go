package sinks

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/workprogress/internal/progress"
)

// Publisher pushes payloads to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// EventMessage is the JSON payload published for each event.
type EventMessage struct {
	RunID    string    `json:"run_id"`
	TS       time.Time `json:"ts"`
	Kind     string    `json:"kind"`
	Monitor  string    `json:"monitor"`
	Consumed float64   `json:"consumed"`
	Total    int       `json:"total"`
	Fraction float64   `json:"fraction"`
	Message  string    `json:"message,omitempty"`
}

// PubSubAttributes exposes the routing fields as message attributes.
func (m EventMessage) PubSubAttributes() map[string]string {
	return map[string]string{
		"run_id":  m.RunID,
		"kind":    m.Kind,
		"monitor": m.Monitor,
	}
}

// PublishSink forwards events to a Publisher. When TerminalOnly is set only
// completion and cancellation events are published.
type PublishSink struct {
	publisher    Publisher
	topic        string
	terminalOnly bool
	logger       *zap.Logger
}

// NewPublishSink constructs a PublishSink for topic.
func NewPublishSink(publisher Publisher, topic string, terminalOnly bool, logger *zap.Logger) *PublishSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PublishSink{
		publisher:    publisher,
		topic:        topic,
		terminalOnly: terminalOnly,
		logger:       logger,
	}
}

// Consume publishes each event in order and stops at the first failure.
func (s *PublishSink) Consume(ctx context.Context, batch []progress.Event) error {
	if s == nil || s.publisher == nil {
		return nil
	}
	for _, evt := range batch {
		if s.terminalOnly && evt.Kind == progress.KindConsumed {
			continue
		}
		id, err := s.publisher.Publish(ctx, s.topic, toMessage(evt))
		if err != nil {
			return fmt.Errorf("publish %s event for %s: %w", evt.Kind, evt.Monitor, err)
		}
		s.logger.Debug("progress event published",
			zap.String("message_id", id),
			zap.String("monitor", evt.Monitor),
		)
	}
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *PublishSink) Close(context.Context) error {
	return nil
}

func toMessage(evt progress.Event) EventMessage {
	return EventMessage{
		RunID:    evt.RunUUID().String(),
		TS:       evt.TS,
		Kind:     string(evt.Kind),
		Monitor:  evt.Monitor,
		Consumed: evt.Consumed,
		Total:    evt.Total,
		Fraction: evt.Fraction(),
		Message:  evt.Message,
	}
}
