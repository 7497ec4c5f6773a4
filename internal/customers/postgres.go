package customers

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Querier is satisfied by pgx.Tx and pgxpool.Pool. The helpers below are
// meant to run inside the caller's transaction.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const customerColumns = `id, business_id, first_name, last_name, phone, email, visit_count,
	COALESCE(last_visit_date::text, ''), COALESCE(favorite_service_id, ''), created_at, updated_at`

func scanCustomer(row pgx.Row) (Customer, error) {
	var c Customer
	err := row.Scan(&c.ID, &c.BusinessID, &c.FirstName, &c.LastName, &c.Phone, &c.Email, &c.VisitCount,
		&c.LastVisitDate, &c.FavoriteServiceID, &c.CreatedAt, &c.UpdatedAt)
	return c, err
}

// GetTx loads a customer by id.
func GetTx(ctx context.Context, q Querier, businessID, customerID string) (Customer, error) {
	query := `SELECT ` + customerColumns + ` FROM customers WHERE business_id = $1 AND id = $2`
	c, err := scanCustomer(q.QueryRow(ctx, query, businessID, customerID))
	if errors.Is(err, pgx.ErrNoRows) {
		return Customer{}, ErrNotFound
	}
	if err != nil {
		return Customer{}, fmt.Errorf("customers: get: %w", err)
	}
	return c, nil
}

func findByTx(ctx context.Context, q Querier, businessID, column, value string) (Customer, error) {
	query := `SELECT ` + customerColumns + ` FROM customers WHERE business_id = $1 AND ` + column + ` = $2 ORDER BY created_at LIMIT 1`
	c, err := scanCustomer(q.QueryRow(ctx, query, businessID, value))
	if errors.Is(err, pgx.ErrNoRows) {
		return Customer{}, ErrNotFound
	}
	if err != nil {
		return Customer{}, fmt.Errorf("customers: find by %s: %w", column, err)
	}
	return c, nil
}

// ResolveTx finds a customer by id, phone, then email, creating one when
// none matches. A concurrent insert of the same phone or email is absorbed
// by the unique indexes and re-read.
func ResolveTx(ctx context.Context, q Querier, businessID string, id Identity) (Customer, error) {
	if id.CustomerID != "" {
		c, err := GetTx(ctx, q, businessID, id.CustomerID)
		if err == nil {
			return c, nil
		}
		if !errors.Is(err, ErrNotFound) {
			return Customer{}, err
		}
	}
	if id.Phone != "" {
		c, err := findByTx(ctx, q, businessID, "phone", id.Phone)
		if err == nil {
			return c, nil
		}
		if !errors.Is(err, ErrNotFound) {
			return Customer{}, err
		}
	}
	if id.Email != "" {
		c, err := findByTx(ctx, q, businessID, "email", id.Email)
		if err == nil {
			return c, nil
		}
		if !errors.Is(err, ErrNotFound) {
			return Customer{}, err
		}
	}

	first, last := SplitName(id.Name)
	newID := uuid.NewString()
	query := `
		INSERT INTO customers (id, business_id, first_name, last_name, phone, email)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT DO NOTHING
	`
	ct, err := q.Exec(ctx, query, newID, businessID, first, last, id.Phone, id.Email)
	if err != nil {
		return Customer{}, fmt.Errorf("customers: insert: %w", err)
	}
	if ct.RowsAffected() > 0 {
		return GetTx(ctx, q, businessID, newID)
	}
	if id.Phone != "" {
		c, err := findByTx(ctx, q, businessID, "phone", id.Phone)
		if !errors.Is(err, ErrNotFound) {
			return c, err
		}
	}
	if id.Email != "" {
		return findByTx(ctx, q, businessID, "email", id.Email)
	}
	return Customer{}, ErrNotFound
}

// RecordVisitTx bumps the visit counter and sets the favourite service to the
// one just booked.
func RecordVisitTx(ctx context.Context, q Querier, businessID, customerID, serviceID, visitDate string) error {
	query := `
		UPDATE customers
		SET visit_count = visit_count + 1,
			last_visit_date = $3,
			favorite_service_id = $4,
			updated_at = now()
		WHERE business_id = $1 AND id = $2
	`
	ct, err := q.Exec(ctx, query, businessID, customerID, visitDate, serviceID)
	if err != nil {
		return fmt.Errorf("customers: record visit: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
