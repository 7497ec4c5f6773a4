package staff

import (
	"context"
	"testing"

	"github.com/jackc/pgx/v5"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOffersEmptySetMeansAll(t *testing.T) {
	generalist := Member{ID: "s1"}
	specialist := Member{ID: "s2", ServiceIDs: []string{"svc-laser"}}

	assert.True(t, generalist.Offers("svc-anything"))
	assert.True(t, specialist.Offers("svc-laser"))
	assert.False(t, specialist.Offers("svc-facial"))

	eligible := Eligible([]Member{generalist, specialist}, "svc-facial")
	require.Len(t, eligible, 1)
	assert.Equal(t, "s1", eligible[0].ID)
}

func TestMemoryDirectory(t *testing.T) {
	dir := NewMemoryDirectory()
	dir.Put(Member{ID: "s2", BusinessID: "biz", Name: "Zoe"})
	dir.Put(Member{ID: "s1", BusinessID: "biz", Name: "Ana"})
	dir.Put(Member{ID: "s3", BusinessID: "other", Name: "Bo"})

	list, err := dir.List(context.Background(), "biz")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "Ana", list[0].Name)

	_, err = dir.Get(context.Background(), "biz", "s3")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPostgresDirectory(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()
	dir := newPostgresDirectoryWithQuerier(mock)

	rows := pgxmock.NewRows([]string{"id", "business_id", "name", "service_ids"}).
		AddRow("s1", "biz", "Ana", []string{}).
		AddRow("s2", "biz", "Zoe", []string{"svc-laser"})
	mock.ExpectQuery("SELECT id, business_id, name, service_ids").WithArgs("biz").WillReturnRows(rows)

	list, err := dir.List(context.Background(), "biz")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, []string{"svc-laser"}, list[1].ServiceIDs)

	mock.ExpectQuery("SELECT id, business_id, name, service_ids").WithArgs("biz", "missing").WillReturnError(pgx.ErrNoRows)
	_, err = dir.Get(context.Background(), "biz", "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, mock.ExpectationsWereMet())
}
