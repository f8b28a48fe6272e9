package service

import (
	"context"
	"encoding/json"

	"ai-consultation-be/internal/dto"
	"ai-consultation-be/internal/pkg/logger"
	"ai-consultation-be/pkg/events"

	"github.com/ThreeDotsLabs/watermill/message"
)

type IConsumerService interface {
	Consume(ctx context.Context) error
}

// EventForwarder ships events to an external bus.
type EventForwarder interface {
	Publish(ctx context.Context, event events.Event) error
}

type consumerService struct {
	subscriber message.Subscriber
	topicName  string
	forwarder  EventForwarder
	logger     logger.ILogger
}

// NewConsumerService drains the in-process topic, logs every consultation
// event and forwards it when a forwarder is configured (forwarder may be nil).
func NewConsumerService(
	subscriber message.Subscriber,
	topicName string,
	forwarder EventForwarder,
	logger logger.ILogger,
) IConsumerService {
	return &consumerService{
		subscriber: subscriber,
		topicName:  topicName,
		forwarder:  forwarder,
		logger:     logger,
	}
}

func (cs *consumerService) Consume(ctx context.Context) error {
	messages, err := cs.subscriber.Subscribe(ctx, cs.topicName)
	if err != nil {
		return err
	}

	go func() {
		for msg := range messages {
			cs.processMessage(ctx, msg)
		}
	}()

	return nil
}

func (cs *consumerService) processMessage(ctx context.Context, msg *message.Message) {
	var event dto.ConsultationEvent
	if err := json.Unmarshal(msg.Payload, &event); err != nil {
		cs.logger.Error("EVENTS", "Failed to unmarshal consultation event", map[string]interface{}{
			"message_id": msg.UUID,
			"error":      err.Error(),
		})
		msg.Ack() // Ack invalid messages to prevent infinite retry
		return
	}

	cs.logger.Info("EVENTS", event.Type, map[string]interface{}{
		"user_id":     event.UserId,
		"model":       event.Model,
		"source_kind": event.SourceKind,
		"outcome":     event.Outcome,
		"chunks":      event.Chunks,
		"chars":       event.Chars,
		"entry_id":    event.EntryId,
	})

	if cs.forwarder != nil {
		if err := cs.forwarder.Publish(ctx, toBusEvent(msg.UUID, event)); err != nil {
			// The bus is best effort; the event is already logged.
			cs.logger.Warn("EVENTS", "Failed to forward event", map[string]interface{}{
				"type":  event.Type,
				"error": err.Error(),
			})
		}
	}

	msg.Ack()
}

func toBusEvent(id string, event dto.ConsultationEvent) events.Event {
	data := map[string]interface{}{
		"user_id":     event.UserId,
		"occurred_at": event.OccurredAt,
	}
	if event.Model != "" {
		data["model"] = event.Model
	}
	if event.SourceKind != "" {
		data["source_kind"] = event.SourceKind
	}
	if event.Outcome != "" {
		data["outcome"] = event.Outcome
		data["chunks"] = event.Chunks
		data["chars"] = event.Chars
	}
	if event.EntryId != "" {
		data["entry_id"] = event.EntryId
	}
	return events.BaseEvent{
		ID:         id,
		Type:       event.Type,
		Data:       data,
		OccurredAt: event.OccurredAt,
	}
}
