package bootstrap

import (
	"strings"

	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wolfman30/booking-engine/internal/bookings"
	appconfig "github.com/wolfman30/booking-engine/internal/config"
	"github.com/wolfman30/booking-engine/internal/events"
	"github.com/wolfman30/booking-engine/pkg/logging"
)

// BuildDeliveryHandler picks the event transport: SQS when a queue and
// client are configured, then Kafka when brokers are set, then the log.
func BuildDeliveryHandler(cfg *appconfig.Config, client *sqs.Client, logger *logging.Logger) events.DeliveryHandler {
	if queueURL := strings.TrimSpace(cfg.EventsQueueURL); queueURL != "" && client != nil {
		logger.Info("publishing domain events to SQS", "queue_url", queueURL)
		return events.NewSQSHandler(client, queueURL)
	}
	if len(cfg.EventsKafkaBrokers) > 0 {
		logger.Info("publishing domain events to kafka", "brokers", cfg.EventsKafkaBrokers, "topic", cfg.EventsKafkaTopic)
		return events.NewKafkaHandler(cfg.EventsKafkaBrokers, cfg.EventsKafkaTopic)
	}
	return events.NewLogHandler(logger)
}

// BuildPublisher returns the event publisher for the booking and waitlist
// services. With Postgres, events go through the outbox and the returned
// Deliverer must be started; without it they are handed off inline.
func BuildPublisher(cfg *appconfig.Config, pool *pgxpool.Pool, handler events.DeliveryHandler, logger *logging.Logger) (bookings.EventPublisher, *events.Deliverer) {
	if pool == nil || cfg.UseMemoryStores {
		return events.NewInlinePublisher(handler), nil
	}
	outbox := events.NewOutboxStore(pool)
	deliverer := events.NewDeliverer(outbox, handler, logger).
		WithBatchSize(int32(cfg.OutboxBatchSize)).
		WithInterval(cfg.OutboxInterval).
		WithMaxAttempts(cfg.OutboxMaxAttempts)
	return outbox, deliverer
}
