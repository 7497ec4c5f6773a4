package bookings

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wolfman30/booking-engine/internal/customers"
	"github.com/wolfman30/booking-engine/internal/observability/metrics"
	"github.com/wolfman30/booking-engine/internal/scheduling"
	"github.com/wolfman30/booking-engine/pkg/logging"
)

// activeSlotIndex backstops the advisory lock: one active appointment per
// (business, staff key, date, start).
const activeSlotIndex = "appointments_active_slot_key"

type db interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type queryer interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// PostgresStore keeps appointments in Postgres. Writes that place an
// appointment take a transaction-scoped advisory lock on (business, date)
// before re-checking conflicts.
type PostgresStore struct {
	db      db
	retries int
	now     func() time.Time
	logger  *logging.Logger
	metrics *metrics.SchedulingMetrics
}

func NewPostgresStore(pool *pgxpool.Pool, logger *logging.Logger) *PostgresStore {
	if pool == nil {
		panic("bookings: pgx pool required")
	}
	return newPostgresStoreWithDB(pool, logger)
}

func newPostgresStoreWithDB(conn db, logger *logging.Logger) *PostgresStore {
	if logger == nil {
		logger = logging.Default()
	}
	return &PostgresStore{
		db:      conn,
		retries: 3,
		now:     func() time.Time { return time.Now().UTC() },
		logger:  logger,
	}
}

// WithRetries sets how often a serialization failure or deadlock is retried.
func (s *PostgresStore) WithRetries(n int) *PostgresStore {
	if n >= 0 {
		s.retries = n
	}
	return s
}

func (s *PostgresStore) WithMetrics(m *metrics.SchedulingMetrics) *PostgresStore {
	s.metrics = m
	return s
}

const appointmentColumns = `id, business_id, customer_id, customer_name, customer_phone, customer_email,
	service_id, service_name, staff_id, staff_name, date::text, start_minutes, duration_minutes,
	status, notes, created_at, updated_at`

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var (
		a       Appointment
		staffID *string
		start   int
		status  string
	)
	err := row.Scan(&a.ID, &a.BusinessID, &a.CustomerID, &a.CustomerName, &a.CustomerPhone, &a.CustomerEmail,
		&a.ServiceID, &a.ServiceName, &staffID, &a.StaffName, &a.Date, &start, &a.DurationMinutes,
		&status, &a.Notes, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}
	a.Staff = scheduling.StaffRefFromPtr(staffID)
	a.Start = scheduling.Clock(start)
	a.Time = a.Start.String()
	a.Status = Status(status)
	return &a, nil
}

func statusStrings(list []Status) []string {
	out := make([]string, len(list))
	for i, s := range list {
		out[i] = string(s)
	}
	return out
}

func (s *PostgresStore) CreateIfFree(ctx context.Context, req NewAppointment) (*Appointment, error) {
	var created *Appointment
	err := s.inTx(ctx, "appointment create", func(tx pgx.Tx) error {
		created = nil
		if err := lockDay(ctx, tx, req.BusinessID, req.Placement.Date); err != nil {
			return err
		}
		if err := ensureFree(ctx, tx, req.BusinessID, req.booking(), ""); err != nil {
			return err
		}
		customer, err := customers.ResolveTx(ctx, tx, req.BusinessID, req.Customer)
		if err != nil {
			return err
		}

		now := s.now()
		appt := &Appointment{
			ID:              uuid.NewString(),
			BusinessID:      req.BusinessID,
			CustomerID:      customer.ID,
			CustomerName:    req.Customer.Name,
			CustomerPhone:   req.Customer.Phone,
			CustomerEmail:   req.Customer.Email,
			ServiceID:       req.ServiceID,
			ServiceName:     req.ServiceName,
			Staff:           req.Placement.Staff,
			StaffName:       req.Placement.StaffName,
			Date:            req.Placement.Date,
			Start:           req.Placement.Start,
			Time:            req.Placement.Start.String(),
			DurationMinutes: req.DurationMinutes,
			Status:          StatusScheduled,
			Notes:           req.Notes,
			CreatedAt:       now,
			UpdatedAt:       now,
		}
		if appt.CustomerName == "" {
			appt.CustomerName = customer.FullName()
		}
		query := `
			INSERT INTO appointments (id, business_id, customer_id, customer_name, customer_phone, customer_email,
				service_id, service_name, staff_id, staff_name, date, start_minutes, duration_minutes,
				status, notes, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $16)
		`
		if _, err := tx.Exec(ctx, query, appt.ID, appt.BusinessID, appt.CustomerID, appt.CustomerName,
			appt.CustomerPhone, appt.CustomerEmail, appt.ServiceID, appt.ServiceName, appt.Staff.Ptr(),
			appt.StaffName, appt.Date, int(appt.Start), appt.DurationMinutes, string(appt.Status),
			appt.Notes, now); err != nil {
			return fmt.Errorf("bookings: insert appointment: %w", err)
		}
		if err := customers.RecordVisitTx(ctx, tx, req.BusinessID, customer.ID, req.ServiceID, appt.Date); err != nil {
			return err
		}
		created = appt
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

func (s *PostgresStore) Move(ctx context.Context, businessID, appointmentID string, to Placement) (*Appointment, *Appointment, error) {
	var before, after *Appointment
	err := s.inTx(ctx, "appointment move", func(tx pgx.Tx) error {
		query := `SELECT ` + appointmentColumns + ` FROM appointments WHERE business_id = $1 AND id = $2 FOR UPDATE`
		current, err := scanAppointment(tx.QueryRow(ctx, query, businessID, appointmentID))
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrAppointmentNotFound
		}
		if err != nil {
			return fmt.Errorf("bookings: load appointment: %w", err)
		}
		if !current.Status.Active() {
			return ErrAppointmentNotFound
		}
		if err := lockDay(ctx, tx, businessID, to.Date); err != nil {
			return err
		}
		candidate := scheduling.Booking{Date: to.Date, Start: to.Start, DurationMinutes: current.DurationMinutes, Staff: to.Staff}
		if err := ensureFree(ctx, tx, businessID, candidate, appointmentID); err != nil {
			return err
		}

		now := s.now()
		update := `
			UPDATE appointments
			SET date = $3, start_minutes = $4, staff_id = $5, staff_name = $6, updated_at = $7
			WHERE business_id = $1 AND id = $2
		`
		if _, err := tx.Exec(ctx, update, businessID, appointmentID, to.Date, int(to.Start), to.Staff.Ptr(), to.StaffName, now); err != nil {
			return fmt.Errorf("bookings: move appointment: %w", err)
		}
		moved := current.clone()
		moved.Date = to.Date
		moved.Start = to.Start
		moved.Time = to.Start.String()
		moved.Staff = to.Staff
		moved.StaffName = to.StaffName
		moved.UpdatedAt = now
		before, after = current, moved
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return before, after, nil
}

func (s *PostgresStore) Get(ctx context.Context, businessID, appointmentID string) (*Appointment, error) {
	query := `SELECT ` + appointmentColumns + ` FROM appointments WHERE business_id = $1 AND id = $2`
	appt, err := scanAppointment(s.db.QueryRow(ctx, query, businessID, appointmentID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrAppointmentNotFound
	}
	if err != nil {
		return nil, scheduling.Storage("appointment get", fmt.Errorf("bookings: get: %w", err))
	}
	return appt, nil
}

func (s *PostgresStore) FindUpcomingByPhone(ctx context.Context, businessID, phone, fromDate string) (*Appointment, error) {
	query := `
		SELECT ` + appointmentColumns + `
		FROM appointments
		WHERE business_id = $1 AND customer_phone = $2 AND date >= $3 AND status = ANY($4)
		ORDER BY date, start_minutes
		LIMIT 1
	`
	appt, err := scanAppointment(s.db.QueryRow(ctx, query, businessID, phone, fromDate, statusStrings(ActiveStatuses)))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrAppointmentNotFound
	}
	if err != nil {
		return nil, scheduling.Storage("appointment find by phone", fmt.Errorf("bookings: find upcoming: %w", err))
	}
	return appt, nil
}

func (s *PostgresStore) Transition(ctx context.Context, businessID, appointmentID string, from []Status, to Status) (*Appointment, error) {
	query := `
		UPDATE appointments
		SET status = $4, updated_at = $5
		WHERE business_id = $1 AND id = $2 AND status = ANY($3)
		RETURNING ` + appointmentColumns
	appt, err := scanAppointment(s.db.QueryRow(ctx, query, businessID, appointmentID, statusStrings(from), string(to), s.now()))
	if err == nil {
		return appt, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, scheduling.Storage("appointment transition", fmt.Errorf("bookings: transition: %w", err))
	}
	current, err := s.Get(ctx, businessID, appointmentID)
	if err != nil {
		return nil, err
	}
	return nil, fmt.Errorf("%w: %s to %s", ErrInvalidTransition, current.Status, to)
}

func (s *PostgresStore) ListActive(ctx context.Context, businessID, fromDate, toDate string) ([]scheduling.Booking, error) {
	booked, err := listBookings(ctx, s.db, businessID, fromDate, toDate)
	if err != nil {
		return nil, scheduling.Storage("appointments list", err)
	}
	return booked, nil
}

func (s *PostgresStore) ListForDate(ctx context.Context, businessID, date string) ([]Appointment, error) {
	query := `SELECT ` + appointmentColumns + ` FROM appointments WHERE business_id = $1 AND date = $2 ORDER BY start_minutes, id`
	rows, err := s.db.Query(ctx, query, businessID, date)
	if err != nil {
		return nil, scheduling.Storage("appointments for date", fmt.Errorf("bookings: list for date: %w", err))
	}
	defer rows.Close()
	var out []Appointment
	for rows.Next() {
		appt, err := scanAppointment(rows)
		if err != nil {
			return nil, scheduling.Storage("appointments for date", fmt.Errorf("bookings: scan: %w", err))
		}
		out = append(out, *appt)
	}
	if err := rows.Err(); err != nil {
		return nil, scheduling.Storage("appointments for date", fmt.Errorf("bookings: rows: %w", err))
	}
	return out, nil
}

func lockDay(ctx context.Context, tx pgx.Tx, businessID, date string) error {
	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, businessID+"|"+date); err != nil {
		return fmt.Errorf("bookings: advisory lock: %w", err)
	}
	return nil
}

func ensureFree(ctx context.Context, q queryer, businessID string, candidate scheduling.Booking, exclude string) error {
	booked, err := listBookings(ctx, q, businessID, candidate.Date, candidate.Date)
	if err != nil {
		return err
	}
	if clash, ok := scheduling.FirstConflict(candidate, booked, exclude); ok {
		return fmt.Errorf("%w: overlaps appointment %s", scheduling.ErrSlotTaken, clash.AppointmentID)
	}
	return nil
}

func listBookings(ctx context.Context, q queryer, businessID, fromDate, toDate string) ([]scheduling.Booking, error) {
	query := `
		SELECT id, date::text, start_minutes, duration_minutes, staff_id
		FROM appointments
		WHERE business_id = $1 AND date BETWEEN $2 AND $3 AND status = ANY($4)
		ORDER BY date, start_minutes
	`
	rows, err := q.Query(ctx, query, businessID, fromDate, toDate, statusStrings(ActiveStatuses))
	if err != nil {
		return nil, fmt.Errorf("bookings: list active: %w", err)
	}
	defer rows.Close()
	var out []scheduling.Booking
	for rows.Next() {
		var (
			b       scheduling.Booking
			start   int
			staffID *string
		)
		if err := rows.Scan(&b.AppointmentID, &b.Date, &start, &b.DurationMinutes, &staffID); err != nil {
			return nil, fmt.Errorf("bookings: scan active: %w", err)
		}
		b.Start = scheduling.Clock(start)
		b.Staff = scheduling.StaffRefFromPtr(staffID)
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("bookings: rows: %w", err)
	}
	return out, nil
}

// inTx runs fn in a transaction, retrying serialization failures and
// deadlocks. Domain errors returned by fn pass through unchanged.
func (s *PostgresStore) inTx(ctx context.Context, op string, fn func(pgx.Tx) error) error {
	var err error
	for attempt := 0; attempt <= s.retries; attempt++ {
		if attempt > 0 {
			s.metrics.ObserveTxRetry()
			s.logger.Warn("retrying booking transaction", "op", op, "attempt", attempt, "error", err)
		}
		err = s.runTx(ctx, fn)
		if !retryableTx(err) {
			break
		}
	}
	if isActiveSlotViolation(err) {
		return fmt.Errorf("%w: %v", scheduling.ErrSlotTaken, err)
	}
	return scheduling.Storage(op, err)
}

func (s *PostgresStore) runTx(ctx context.Context, fn func(pgx.Tx) error) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("bookings: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("bookings: commit tx: %w", err)
	}
	return nil
}

func retryableTx(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == "40001" || pgErr.Code == "40P01"
}

func isActiveSlotViolation(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == "23505" && strings.EqualFold(pgErr.ConstraintName, activeSlotIndex)
}
