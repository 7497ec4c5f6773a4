package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"

	"github.com/wolfman30/booking-engine/pkg/logging"
)

type sqsSender interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

// SQSHandler forwards outbox envelopes to an SQS queue.
type SQSHandler struct {
	client   sqsSender
	queueURL string
}

func NewSQSHandler(client *sqs.Client, queueURL string) *SQSHandler {
	if client == nil {
		panic("events: SQS client cannot be nil")
	}
	return newSQSHandler(client, queueURL)
}

func newSQSHandler(client sqsSender, queueURL string) *SQSHandler {
	if queueURL == "" {
		panic("events: SQS queueURL cannot be empty")
	}
	return &SQSHandler{client: client, queueURL: queueURL}
}

func (h *SQSHandler) Handle(ctx context.Context, entry OutboxEntry) error {
	_, err := h.client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:    aws.String(h.queueURL),
		MessageBody: aws.String(string(entry.Payload)),
		MessageAttributes: map[string]types.MessageAttributeValue{
			"event_type":  {DataType: aws.String("String"), StringValue: aws.String(entry.Type)},
			"business_id": {DataType: aws.String("String"), StringValue: aws.String(entry.BusinessID)},
		},
	})
	if err != nil {
		return fmt.Errorf("events: failed to send SQS message: %w", err)
	}
	return nil
}

// LogHandler writes each event to the structured log. It is the sink when
// no queue is configured.
type LogHandler struct {
	logger *logging.Logger
}

func NewLogHandler(logger *logging.Logger) *LogHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &LogHandler{logger: logger}
}

func (h *LogHandler) Handle(ctx context.Context, entry OutboxEntry) error {
	h.logger.Info("domain event", "event_id", entry.ID, "type", entry.Type, "business_id", entry.BusinessID)
	return nil
}

// InlinePublisher hands events straight to a handler without persisting
// them. Used with in-memory stores where there is no outbox table.
type InlinePublisher struct {
	handler DeliveryHandler
}

func NewInlinePublisher(handler DeliveryHandler) *InlinePublisher {
	if handler == nil {
		panic("events: delivery handler required")
	}
	return &InlinePublisher{handler: handler}
}

func (p *InlinePublisher) Publish(ctx context.Context, businessID, eventType string, payload any) error {
	env, err := NewEnvelope(businessID, eventType, payload)
	if err != nil {
		return err
	}
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("events: marshal envelope: %w", err)
	}
	return p.handler.Handle(ctx, OutboxEntry{
		ID:         env.EventID,
		BusinessID: env.BusinessID,
		Type:       env.EventType,
		Payload:    data,
		CreatedAt:  env.OccurredAt(),
	})
}
