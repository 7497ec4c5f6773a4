package staff

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wolfman30/booking-engine/internal/scheduling"
)

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresDirectory reads the staff table.
type PostgresDirectory struct {
	db querier
}

func NewPostgresDirectory(pool *pgxpool.Pool) *PostgresDirectory {
	if pool == nil {
		panic("staff: pgx pool required")
	}
	return &PostgresDirectory{db: pool}
}

func newPostgresDirectoryWithQuerier(db querier) *PostgresDirectory {
	return &PostgresDirectory{db: db}
}

func (d *PostgresDirectory) List(ctx context.Context, businessID string) ([]Member, error) {
	query := `
		SELECT id, business_id, name, service_ids
		FROM staff
		WHERE business_id = $1 AND active
		ORDER BY name, id
	`
	rows, err := d.db.Query(ctx, query, businessID)
	if err != nil {
		return nil, scheduling.Storage("staff list", fmt.Errorf("staff: list: %w", err))
	}
	defer rows.Close()

	var members []Member
	for rows.Next() {
		var m Member
		if err := rows.Scan(&m.ID, &m.BusinessID, &m.Name, &m.ServiceIDs); err != nil {
			return nil, scheduling.Storage("staff list", fmt.Errorf("staff: scan: %w", err))
		}
		members = append(members, m)
	}
	if err := rows.Err(); err != nil {
		return nil, scheduling.Storage("staff list", fmt.Errorf("staff: rows: %w", err))
	}
	return members, nil
}

func (d *PostgresDirectory) Get(ctx context.Context, businessID, staffID string) (Member, error) {
	query := `
		SELECT id, business_id, name, service_ids
		FROM staff
		WHERE business_id = $1 AND id = $2 AND active
	`
	var m Member
	err := d.db.QueryRow(ctx, query, businessID, staffID).Scan(&m.ID, &m.BusinessID, &m.Name, &m.ServiceIDs)
	if errors.Is(err, pgx.ErrNoRows) {
		return Member{}, ErrNotFound
	}
	if err != nil {
		return Member{}, scheduling.Storage("staff get", fmt.Errorf("staff: get: %w", err))
	}
	return m, nil
}
