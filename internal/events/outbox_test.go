package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	pgxmock "github.com/pashagolub/pgxmock/v4"
)

func TestOutboxStoreFlow(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("failed to create pgx mock: %v", err)
	}
	defer mock.Close()

	store := newOutboxStoreWithExec(mock)

	mock.ExpectExec("INSERT INTO outbox").WithArgs(pgxmock.AnyArg(), "biz-1", "appointment.booked", pgxmock.AnyArg()).WillReturnResult(pgxmock.NewResult("INSERT", 1))
	if err := store.Publish(context.Background(), "biz-1", "appointment.booked", map[string]string{"id": "a1"}); err != nil {
		t.Fatalf("publish failed: %v", err)
	}

	now := time.Now().UTC()
	id := uuid.New()
	rows := pgxmock.NewRows([]string{"id", "business_id", "event_type", "payload", "attempts", "created_at"}).
		AddRow(id, "biz-1", "appointment.booked", []byte(`{"event_type":"appointment.booked","business_id":"biz-1","payload":{"id":"a1"}}`), 2, now)
	mock.ExpectQuery("SELECT id, business_id").WithArgs(5, 10).WillReturnRows(rows)

	entries, err := store.Pending(context.Background(), 5, 10)
	if err != nil {
		t.Fatalf("pending failed: %v", err)
	}
	if len(entries) != 1 || entries[0].ID != id || entries[0].Attempts != 2 {
		t.Fatalf("unexpected entries: %#v", entries)
	}
	env, err := entries[0].Envelope()
	if err != nil {
		t.Fatalf("decode envelope: %v", err)
	}
	if env.BusinessID != "biz-1" || string(env.Payload) != `{"id":"a1"}` {
		t.Fatalf("unexpected envelope: %#v", env)
	}

	mock.ExpectExec("SET attempts = attempts \\+ 1").WithArgs(id, "queue unavailable").WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	if err := store.RecordFailure(context.Background(), id, errors.New("queue unavailable")); err != nil {
		t.Fatalf("record failure: %v", err)
	}

	mock.ExpectExec("SET delivered_at").WithArgs(id).WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	ok, err := store.MarkDelivered(context.Background(), id)
	if err != nil {
		t.Fatalf("mark delivered failed: %v", err)
	}
	if !ok {
		t.Fatal("expected mark delivered to report success")
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestOutboxRejectsMissingBusiness(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("failed to create pgx mock: %v", err)
	}
	defer mock.Close()

	store := newOutboxStoreWithExec(mock)
	if err := store.Publish(context.Background(), " ", "appointment.booked", nil); !errors.Is(err, errMissingBusiness) {
		t.Fatalf("expected errMissingBusiness, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unexpected statements: %v", err)
	}
}

type fakeQueue struct {
	entries   []OutboxEntry
	delivered []uuid.UUID
	failures  map[uuid.UUID]int
}

func (f *fakeQueue) Pending(ctx context.Context, maxAttempts, limit int) ([]OutboxEntry, error) {
	var out []OutboxEntry
	for _, e := range f.entries {
		if e.Attempts+f.failures[e.ID] < maxAttempts && !f.isDelivered(e.ID) {
			e.Attempts += f.failures[e.ID]
			out = append(out, e)
		}
	}
	return out, nil
}

func (f *fakeQueue) isDelivered(id uuid.UUID) bool {
	for _, d := range f.delivered {
		if d == id {
			return true
		}
	}
	return false
}

func (f *fakeQueue) MarkDelivered(ctx context.Context, id uuid.UUID) (bool, error) {
	f.delivered = append(f.delivered, id)
	return true, nil
}

func (f *fakeQueue) RecordFailure(ctx context.Context, id uuid.UUID, cause error) error {
	if f.failures == nil {
		f.failures = map[uuid.UUID]int{}
	}
	f.failures[id]++
	return nil
}

type flakyHandler struct {
	fail map[uuid.UUID]bool
	seen []string
}

func (h *flakyHandler) Handle(ctx context.Context, entry OutboxEntry) error {
	h.seen = append(h.seen, entry.Type)
	if h.fail[entry.ID] {
		return errors.New("queue unavailable")
	}
	return nil
}

func TestDelivererLeavesFailedEntriesPending(t *testing.T) {
	ok, bad := uuid.New(), uuid.New()
	queue := &fakeQueue{entries: []OutboxEntry{
		{ID: ok, Type: "appointment.booked"},
		{ID: bad, Type: "appointment.cancelled"},
	}}
	handler := &flakyHandler{fail: map[uuid.UUID]bool{bad: true}}

	stats := newDeliverer(queue, handler, nil).drain(context.Background())

	if len(handler.seen) != 2 {
		t.Fatalf("expected both entries handled, got %v", handler.seen)
	}
	if len(queue.delivered) != 1 || queue.delivered[0] != ok {
		t.Fatalf("expected only %s delivered, got %v", ok, queue.delivered)
	}
	if queue.failures[bad] != 1 {
		t.Fatalf("expected one recorded failure, got %d", queue.failures[bad])
	}
	if stats.delivered != 1 || stats.failed != 1 || stats.parked != 0 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
}

func TestDelivererParksAfterMaxAttempts(t *testing.T) {
	bad := uuid.New()
	queue := &fakeQueue{entries: []OutboxEntry{{ID: bad, Type: "waitlist.notified", Attempts: 1}}}
	handler := &flakyHandler{fail: map[uuid.UUID]bool{bad: true}}
	d := newDeliverer(queue, handler, nil).WithMaxAttempts(3)

	first := d.drain(context.Background())
	second := d.drain(context.Background())
	third := d.drain(context.Background())

	if first.parked != 0 || second.parked != 1 {
		t.Fatalf("expected park on the third attempt, got %+v then %+v", first, second)
	}
	if len(handler.seen) != 2 || third.failed != 0 {
		t.Fatalf("parked entry should not be retried, seen %v", handler.seen)
	}
}

func TestDelivererStopsOnCancelledContext(t *testing.T) {
	queue := &fakeQueue{entries: []OutboxEntry{{ID: uuid.New()}, {ID: uuid.New()}}}
	handler := &flakyHandler{}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	newDeliverer(queue, handler, nil).drain(ctx)

	if len(handler.seen) != 0 {
		t.Fatalf("expected no deliveries after cancel, got %v", handler.seen)
	}
}

func TestNewEnvelopeOptions(t *testing.T) {
	id := uuid.New()
	at := time.Date(2025, 1, 6, 10, 0, 0, 0, time.UTC)
	env, err := NewEnvelope("biz", "waitlist.notified", map[string]int{"position": 1}, WithEventID(id), WithTimestamp(at))
	if err != nil {
		t.Fatalf("new envelope: %v", err)
	}
	if env.EventID != id || !env.OccurredAt().Equal(at) {
		t.Fatalf("options not applied: %#v", env)
	}
	var payload map[string]int
	if err := json.Unmarshal(env.Payload, &payload); err != nil || payload["position"] != 1 {
		t.Fatalf("payload not encoded: %s", env.Payload)
	}
	if _, err := NewEnvelope("biz", "", nil); !errors.Is(err, errMissingType) {
		t.Fatalf("expected errMissingType, got %v", err)
	}
}
