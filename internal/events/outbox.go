package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wolfman30/booking-engine/pkg/logging"
)

// OutboxEntry is an undelivered event row. Payload holds the encoded Envelope.
type OutboxEntry struct {
	ID         uuid.UUID
	BusinessID string
	Type       string
	Payload    json.RawMessage
	Attempts   int
	CreatedAt  time.Time
}

// Envelope decodes the stored envelope.
func (e OutboxEntry) Envelope() (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(e.Payload, &env); err != nil {
		return Envelope{}, fmt.Errorf("events: decode envelope %s: %w", e.ID, err)
	}
	return env, nil
}

// DeliveryHandler hands one event to a downstream transport.
type DeliveryHandler interface {
	Handle(ctx context.Context, entry OutboxEntry) error
}

type outboxDB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

const (
	insertOutboxSQL = `INSERT INTO outbox (id, business_id, event_type, payload) VALUES ($1, $2, $3, $4)`

	pendingOutboxSQL = `SELECT id, business_id, event_type, payload, attempts, created_at
FROM outbox
WHERE delivered_at IS NULL AND attempts < $1
ORDER BY created_at, id
LIMIT $2`

	deliveredOutboxSQL = `UPDATE outbox SET delivered_at = now() WHERE id = $1 AND delivered_at IS NULL`

	failedOutboxSQL = `UPDATE outbox SET attempts = attempts + 1, last_error = $2 WHERE id = $1 AND delivered_at IS NULL`
)

// OutboxStore records booking and waitlist events in Postgres so they
// survive a crash between commit and delivery.
type OutboxStore struct {
	db outboxDB
}

func NewOutboxStore(pool *pgxpool.Pool) *OutboxStore {
	if pool == nil {
		panic("events: pgx pool required")
	}
	return &OutboxStore{db: pool}
}

func newOutboxStoreWithExec(db outboxDB) *OutboxStore {
	if db == nil {
		panic("events: exec required")
	}
	return &OutboxStore{db: db}
}

// Publish appends the event to the outbox.
func (s *OutboxStore) Publish(ctx context.Context, businessID, eventType string, payload any) error {
	_, err := s.Insert(ctx, businessID, eventType, payload)
	return err
}

// Insert wraps payload in an Envelope and stores it, returning the event id.
func (s *OutboxStore) Insert(ctx context.Context, businessID, eventType string, payload any) (uuid.UUID, error) {
	env, err := NewEnvelope(businessID, eventType, payload)
	if err != nil {
		return uuid.Nil, err
	}
	encoded, err := json.Marshal(env)
	if err != nil {
		return uuid.Nil, fmt.Errorf("events: marshal envelope: %w", err)
	}
	if _, err := s.db.Exec(ctx, insertOutboxSQL, env.EventID, env.BusinessID, env.EventType, encoded); err != nil {
		return uuid.Nil, fmt.Errorf("events: insert outbox: %w", err)
	}
	return env.EventID, nil
}

// Pending returns up to limit undelivered entries, oldest first, skipping
// entries that already failed maxAttempts times.
func (s *OutboxStore) Pending(ctx context.Context, maxAttempts, limit int) ([]OutboxEntry, error) {
	rows, err := s.db.Query(ctx, pendingOutboxSQL, maxAttempts, limit)
	if err != nil {
		return nil, fmt.Errorf("events: query pending: %w", err)
	}
	defer rows.Close()

	pending := make([]OutboxEntry, 0, limit)
	for rows.Next() {
		var (
			entry OutboxEntry
			raw   []byte
		)
		if err := rows.Scan(&entry.ID, &entry.BusinessID, &entry.Type, &raw, &entry.Attempts, &entry.CreatedAt); err != nil {
			return nil, fmt.Errorf("events: scan pending: %w", err)
		}
		entry.Payload = json.RawMessage(append([]byte(nil), raw...))
		pending = append(pending, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("events: iterate pending: %w", err)
	}
	return pending, nil
}

// MarkDelivered reports false when the entry was already delivered.
func (s *OutboxStore) MarkDelivered(ctx context.Context, id uuid.UUID) (bool, error) {
	tag, err := s.db.Exec(ctx, deliveredOutboxSQL, id)
	if err != nil {
		return false, fmt.Errorf("events: mark %s delivered: %w", id, err)
	}
	return tag.RowsAffected() > 0, nil
}

// RecordFailure bumps the attempt counter and keeps the last error text.
func (s *OutboxStore) RecordFailure(ctx context.Context, id uuid.UUID, cause error) error {
	if _, err := s.db.Exec(ctx, failedOutboxSQL, id, cause.Error()); err != nil {
		return fmt.Errorf("events: record failure %s: %w", id, err)
	}
	return nil
}

type outboxQueue interface {
	Pending(ctx context.Context, maxAttempts, limit int) ([]OutboxEntry, error)
	MarkDelivered(ctx context.Context, id uuid.UUID) (bool, error)
	RecordFailure(ctx context.Context, id uuid.UUID, cause error) error
}

// Deliverer moves outbox entries to a DeliveryHandler. Entries that keep
// failing are parked once they reach maxAttempts and stay in the table for
// inspection.
type Deliverer struct {
	queue       outboxQueue
	handler     DeliveryHandler
	logger      *logging.Logger
	batchSize   int
	interval    time.Duration
	maxAttempts int
}

func NewDeliverer(store *OutboxStore, handler DeliveryHandler, logger *logging.Logger) *Deliverer {
	return newDeliverer(store, handler, logger)
}

func newDeliverer(queue outboxQueue, handler DeliveryHandler, logger *logging.Logger) *Deliverer {
	if logger == nil {
		logger = logging.Default()
	}
	return &Deliverer{
		queue:       queue,
		handler:     handler,
		logger:      logger,
		batchSize:   25,
		interval:    2 * time.Second,
		maxAttempts: 10,
	}
}

func (d *Deliverer) WithBatchSize(n int32) *Deliverer {
	if n > 0 {
		d.batchSize = int(n)
	}
	return d
}

func (d *Deliverer) WithInterval(every time.Duration) *Deliverer {
	if every > 0 {
		d.interval = every
	}
	return d
}

func (d *Deliverer) WithMaxAttempts(n int) *Deliverer {
	if n > 0 {
		d.maxAttempts = n
	}
	return d
}

// Start drains the outbox once and then on every tick until ctx ends.
func (d *Deliverer) Start(ctx context.Context) {
	if d.queue == nil || d.handler == nil {
		return
	}
	d.logger.Info("outbox deliverer started", "interval", d.interval, "batch_size", d.batchSize)
	d.drain(ctx)

	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			d.logger.Info("outbox deliverer stopped")
			return
		case <-ticker.C:
			d.drain(ctx)
		}
	}
}

type drainStats struct {
	delivered int
	failed    int
	parked    int
}

func (d *Deliverer) drain(ctx context.Context) drainStats {
	var stats drainStats
	pending, err := d.queue.Pending(ctx, d.maxAttempts, d.batchSize)
	if err != nil {
		d.logger.Error("outbox poll failed", "error", err)
		return stats
	}

	for _, entry := range pending {
		if ctx.Err() != nil {
			break
		}
		log := d.logger.With("event_id", entry.ID, "event_type", entry.Type, "business_id", entry.BusinessID)

		if err := d.handler.Handle(ctx, entry); err != nil {
			stats.failed++
			if recErr := d.queue.RecordFailure(ctx, entry.ID, err); recErr != nil {
				log.Error("outbox failure not recorded", "error", recErr)
			}
			if entry.Attempts+1 >= d.maxAttempts {
				stats.parked++
				log.Warn("outbox entry parked after repeated failures", "attempts", entry.Attempts+1, "error", err)
			} else {
				log.Error("outbox delivery failed", "attempt", entry.Attempts+1, "error", err)
			}
			continue
		}

		updated, err := d.queue.MarkDelivered(ctx, entry.ID)
		switch {
		case err != nil:
			log.Error("outbox entry delivered but not marked", "error", err)
		case updated:
			stats.delivered++
		}
	}

	if len(pending) > 0 {
		d.logger.Debug("outbox drained", "delivered", stats.delivered, "failed", stats.failed, "parked", stats.parked)
	}
	return stats
}
