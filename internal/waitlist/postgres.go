package waitlist

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wolfman30/booking-engine/internal/scheduling"
)

// pendingIndex allows one pending notification per entry.
const pendingIndex = "waitlist_notifications_pending_key"

type db interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStore keeps waitlist entries and notifications in Postgres.
type PostgresStore struct {
	db  db
	now func() time.Time
}

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	if pool == nil {
		panic("waitlist: pgx pool required")
	}
	return newPostgresStoreWithDB(pool)
}

func newPostgresStoreWithDB(conn db) *PostgresStore {
	return &PostgresStore{db: conn, now: func() time.Time { return time.Now().UTC() }}
}

const entryColumns = `id, business_id, service_id, customer_id, customer_name, customer_phone, customer_email,
	preferred_dates, preferred_times, contact_method, status, notes, created_at, updated_at`

const notificationColumns = `id, entry_id, business_id, appointment_id, slot_id, service_id, date::text, time,
	staff_id, response, booked_appointment_id, notified_at, responded_at`

func scanEntry(row pgx.Row) (*Entry, error) {
	var (
		e      Entry
		status string
	)
	err := row.Scan(&e.ID, &e.BusinessID, &e.ServiceID, &e.CustomerID, &e.CustomerName, &e.CustomerPhone,
		&e.CustomerEmail, &e.PreferredDates, &e.PreferredTimes, &e.ContactMethod, &status, &e.Notes,
		&e.CreatedAt, &e.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrEntryNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("waitlist: scan entry: %w", err)
	}
	e.Status = Status(status)
	return &e, nil
}

func scanNotification(row pgx.Row) (*Notification, error) {
	var (
		n        Notification
		staffID  *string
		response string
	)
	err := row.Scan(&n.ID, &n.EntryID, &n.BusinessID, &n.AppointmentID, &n.SlotID, &n.ServiceID, &n.Date, &n.Time,
		&staffID, &response, &n.BookedAppointmentID, &n.NotifiedAt, &n.RespondedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNoPendingNotification
	}
	if err != nil {
		return nil, fmt.Errorf("waitlist: scan notification: %w", err)
	}
	n.Staff = scheduling.StaffRefFromPtr(staffID)
	n.Response = Response(response)
	return &n, nil
}

func (s *PostgresStore) Insert(ctx context.Context, e *Entry) error {
	query := `
		INSERT INTO waitlist_entries (id, business_id, service_id, customer_id, customer_name, customer_phone,
			customer_email, preferred_dates, preferred_times, contact_method, status, notes, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`
	_, err := s.db.Exec(ctx, query, e.ID, e.BusinessID, e.ServiceID, e.CustomerID, e.CustomerName, e.CustomerPhone,
		e.CustomerEmail, nonNil(e.PreferredDates), nonNil(e.PreferredTimes), e.ContactMethod, string(e.Status), e.Notes,
		e.CreatedAt, e.UpdatedAt)
	if err != nil {
		return fmt.Errorf("waitlist: insert entry: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindWaitingByContact(ctx context.Context, businessID, serviceID, phone, email string) (*Entry, error) {
	query := `
		SELECT ` + entryColumns + `
		FROM waitlist_entries
		WHERE business_id = $1 AND service_id = $2 AND status = 'waiting'
			AND ((customer_phone <> '' AND customer_phone = $3) OR (customer_email <> '' AND customer_email = $4))
		ORDER BY created_at, id
		LIMIT 1
	`
	return scanEntry(s.db.QueryRow(ctx, query, businessID, serviceID, phone, email))
}

func (s *PostgresStore) UpdatePreferences(ctx context.Context, businessID, entryID string, dates, times []string, notes string) (*Entry, error) {
	query := `
		UPDATE waitlist_entries
		SET preferred_dates = $3, preferred_times = $4, notes = COALESCE(NULLIF($5, ''), notes), updated_at = $6
		WHERE business_id = $1 AND id = $2
		RETURNING ` + entryColumns
	return scanEntry(s.db.QueryRow(ctx, query, businessID, entryID, nonNil(dates), nonNil(times), notes, s.now()))
}

func (s *PostgresStore) Get(ctx context.Context, businessID, entryID string) (*Entry, error) {
	query := `SELECT ` + entryColumns + ` FROM waitlist_entries WHERE business_id = $1 AND id = $2`
	return scanEntry(s.db.QueryRow(ctx, query, businessID, entryID))
}

func (s *PostgresStore) ListWaiting(ctx context.Context, businessID, serviceID string) ([]Entry, error) {
	query := `
		SELECT ` + entryColumns + `
		FROM waitlist_entries
		WHERE business_id = $1 AND service_id = $2 AND status = 'waiting'
		ORDER BY created_at, id
	`
	rows, err := s.db.Query(ctx, query, businessID, serviceID)
	if err != nil {
		return nil, fmt.Errorf("waitlist: list waiting: %w", err)
	}
	defer rows.Close()
	var out []Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("waitlist: rows: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) MarkNotified(ctx context.Context, n *Notification) (*Entry, error) {
	var entry *Entry
	err := s.inTx(ctx, func(tx pgx.Tx) error {
		update := `
			UPDATE waitlist_entries SET status = 'notified', updated_at = $3
			WHERE business_id = $1 AND id = $2 AND status = 'waiting'
			RETURNING ` + entryColumns
		e, err := scanEntry(tx.QueryRow(ctx, update, n.BusinessID, n.EntryID, s.now()))
		if errors.Is(err, ErrEntryNotFound) {
			return s.explainNotWaiting(ctx, tx, n.BusinessID, n.EntryID)
		}
		if err != nil {
			return err
		}
		insert := `
			INSERT INTO waitlist_notifications (id, entry_id, business_id, appointment_id, slot_id, service_id,
				date, time, staff_id, response, notified_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, 'pending', $10)
		`
		if _, err := tx.Exec(ctx, insert, n.ID, n.EntryID, n.BusinessID, n.AppointmentID, n.SlotID, n.ServiceID,
			n.Date, n.Time, n.Staff.Ptr(), n.NotifiedAt); err != nil {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == "23505" && pgErr.ConstraintName == pendingIndex {
				return ErrAlreadyNotified
			}
			return fmt.Errorf("waitlist: insert notification: %w", err)
		}
		entry = e
		return nil
	})
	if err != nil {
		return nil, err
	}
	return entry, nil
}

func (s *PostgresStore) explainNotWaiting(ctx context.Context, tx pgx.Tx, businessID, entryID string) error {
	query := `SELECT ` + entryColumns + ` FROM waitlist_entries WHERE business_id = $1 AND id = $2`
	e, err := scanEntry(tx.QueryRow(ctx, query, businessID, entryID))
	if err != nil {
		return err
	}
	if e.Status == StatusNotified {
		return ErrAlreadyNotified
	}
	return fmt.Errorf("%w: %s to %s", ErrInvalidTransition, e.Status, StatusNotified)
}

func (s *PostgresStore) PendingNotification(ctx context.Context, businessID, entryID string) (*Notification, error) {
	query := `
		SELECT ` + notificationColumns + `
		FROM waitlist_notifications
		WHERE business_id = $1 AND entry_id = $2 AND response = 'pending'
	`
	return scanNotification(s.db.QueryRow(ctx, query, businessID, entryID))
}

func (s *PostgresStore) Resolve(ctx context.Context, businessID, entryID string, entryTo Status, response Response, bookedAppointmentID string) (*Entry, *Notification, error) {
	var (
		entry *Entry
		note  *Notification
	)
	err := s.inTx(ctx, func(tx pgx.Tx) error {
		now := s.now()
		answer := `
			UPDATE waitlist_notifications
			SET response = $3, booked_appointment_id = $4, responded_at = $5
			WHERE business_id = $1 AND entry_id = $2 AND response = 'pending'
			RETURNING ` + notificationColumns
		n, err := scanNotification(tx.QueryRow(ctx, answer, businessID, entryID, string(response), bookedAppointmentID, now))
		if err != nil {
			return err
		}
		move := `
			UPDATE waitlist_entries SET status = $3, updated_at = $4
			WHERE business_id = $1 AND id = $2 AND status = 'notified'
			RETURNING ` + entryColumns
		e, err := scanEntry(tx.QueryRow(ctx, move, businessID, entryID, string(entryTo), now))
		if errors.Is(err, ErrEntryNotFound) {
			return ErrNoPendingNotification
		}
		if err != nil {
			return err
		}
		entry, note = e, n
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return entry, note, nil
}

func (s *PostgresStore) Cancel(ctx context.Context, businessID, entryID string) (*Entry, error) {
	var entry *Entry
	err := s.inTx(ctx, func(tx pgx.Tx) error {
		now := s.now()
		update := `
			UPDATE waitlist_entries SET status = 'cancelled', updated_at = $3
			WHERE business_id = $1 AND id = $2 AND status IN ('waiting', 'notified')
			RETURNING ` + entryColumns
		e, err := scanEntry(tx.QueryRow(ctx, update, businessID, entryID, now))
		if errors.Is(err, ErrEntryNotFound) {
			current, err := scanEntry(tx.QueryRow(ctx, `SELECT `+entryColumns+` FROM waitlist_entries WHERE business_id = $1 AND id = $2`, businessID, entryID))
			if err != nil {
				return err
			}
			return fmt.Errorf("%w: %s to %s", ErrInvalidTransition, current.Status, StatusCancelled)
		}
		if err != nil {
			return err
		}
		expire := `
			UPDATE waitlist_notifications SET response = 'expired', responded_at = $3
			WHERE business_id = $1 AND entry_id = $2 AND response = 'pending'
		`
		if _, err := tx.Exec(ctx, expire, businessID, entryID, now); err != nil {
			return fmt.Errorf("waitlist: expire notification: %w", err)
		}
		entry = e
		return nil
	})
	if err != nil {
		return nil, err
	}
	return entry, nil
}

func (s *PostgresStore) inTx(ctx context.Context, fn func(pgx.Tx) error) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("waitlist: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("waitlist: commit tx: %w", err)
	}
	return nil
}

func nonNil(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}
