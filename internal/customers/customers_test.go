package customers

import (
	"context"
	"io/fs"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/booking-engine/internal/scheduling"
	"github.com/wolfman30/booking-engine/migrations"
)

var customerRowColumns = []string{"id", "business_id", "first_name", "last_name", "phone", "email", "visit_count",
	"last_visit_date", "favorite_service_id", "created_at", "updated_at"}

func TestSplitName(t *testing.T) {
	first, last := SplitName("Mary Ann Lee")
	assert.Equal(t, "Mary", first)
	assert.Equal(t, "Ann Lee", last)

	first, last = SplitName("Cher")
	assert.Equal(t, "Cher", first)
	assert.Empty(t, last)
}

func TestNormalizePhone(t *testing.T) {
	assert.Equal(t, "+15551234567", NormalizePhone("(555) 123-4567"))
	assert.Equal(t, "+15551234567", NormalizePhone("+1 555 123 4567"))
	assert.Equal(t, "+447700900123", NormalizePhone("+44 7700 900123"))
	assert.Empty(t, NormalizePhone("n/a"))
}

func TestIdentityValidate(t *testing.T) {
	assert.ErrorIs(t, Identity{Name: "Jane"}.Validate(), scheduling.ErrInvalidCustomer)
	assert.ErrorIs(t, Identity{Phone: "+15550000000"}.Validate(), scheduling.ErrInvalidCustomer)
	assert.NoError(t, Identity{Name: "Jane", Email: "jane@example.com"}.Validate())
	assert.NoError(t, Identity{CustomerID: "c-1"}.Validate())

	n := Identity{Name: "  Jane   Doe ", Phone: "555-123-4567", Email: " Jane@Example.com "}.Normalize()
	assert.Equal(t, "Jane Doe", n.Name)
	assert.Equal(t, "+15551234567", n.Phone)
	assert.Equal(t, "jane@example.com", n.Email)
}

func TestMemoryDirectoryResolveAndRecordVisit(t *testing.T) {
	dir := NewMemoryDirectory()
	created := dir.Resolve("biz", Identity{Name: "Jane Doe", Phone: "+15551234567"})
	assert.Equal(t, "Jane", created.FirstName)
	assert.Equal(t, "Doe", created.LastName)

	again := dir.Resolve("biz", Identity{Name: "J. Doe", Phone: "+15551234567"})
	assert.Equal(t, created.ID, again.ID)

	byEmail := dir.Resolve("biz", Identity{Name: "Sam", Email: "sam@example.com"})
	assert.Equal(t, byEmail.ID, dir.Resolve("biz", Identity{Name: "Sam", Email: "sam@example.com"}).ID)

	otherBusiness := dir.Resolve("biz-2", Identity{Name: "Jane Doe", Phone: "+15551234567"})
	assert.NotEqual(t, created.ID, otherBusiness.ID)

	require.NoError(t, dir.RecordVisit("biz", created.ID, "svc-facial", "2025-01-06"))
	require.NoError(t, dir.RecordVisit("biz", created.ID, "svc-botox", "2025-01-09"))
	got, err := dir.Get(context.Background(), "biz", created.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.VisitCount)
	assert.Equal(t, "2025-01-09", got.LastVisitDate)
	assert.Equal(t, "svc-botox", got.FavoriteServiceID, "favourite is the most recent booking")

	assert.ErrorIs(t, dir.RecordVisit("biz-2", created.ID, "svc", "2025-01-06"), ErrNotFound)
}

func TestResolveTxFindsByPhone(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	now := time.Now().UTC()
	mock.ExpectQuery(`phone = \$2`).WithArgs("biz", "+15551234567").
		WillReturnRows(pgxmock.NewRows(customerRowColumns).
			AddRow("c-1", "biz", "Jane", "Doe", "+15551234567", "", 3, "2024-12-01", "svc-1", now, now))

	c, err := ResolveTx(context.Background(), mock, "biz", Identity{Name: "Jane Doe", Phone: "+15551234567"})
	require.NoError(t, err)
	assert.Equal(t, "c-1", c.ID)
	assert.Equal(t, 3, c.VisitCount)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestResolveTxCreatesWhenMissing(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	now := time.Now().UTC()
	mock.ExpectQuery(`phone = \$2`).WithArgs("biz", "+15551234567").WillReturnError(pgx.ErrNoRows)
	mock.ExpectQuery(`email = \$2`).WithArgs("biz", "jane@example.com").WillReturnError(pgx.ErrNoRows)
	mock.ExpectExec("INSERT INTO customers").
		WithArgs(pgxmock.AnyArg(), "biz", "Jane", "Doe", "+15551234567", "jane@example.com").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectQuery(`AND id = \$2`).WithArgs("biz", pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows(customerRowColumns).
			AddRow("c-new", "biz", "Jane", "Doe", "+15551234567", "jane@example.com", 0, "", "", now, now))

	c, err := ResolveTx(context.Background(), mock, "biz", Identity{Name: "Jane Doe", Phone: "+15551234567", Email: "jane@example.com"})
	require.NoError(t, err)
	assert.Equal(t, "c-new", c.ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestResolveTxRereadsByEmailAfterConcurrentInsert(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	now := time.Now().UTC()
	mock.ExpectQuery(`email = \$2`).WithArgs("biz", "jane@example.com").WillReturnError(pgx.ErrNoRows)
	mock.ExpectExec("INSERT INTO customers").
		WithArgs(pgxmock.AnyArg(), "biz", "Jane", "Doe", "", "jane@example.com").
		WillReturnResult(pgxmock.NewResult("INSERT", 0))
	mock.ExpectQuery(`email = \$2`).WithArgs("biz", "jane@example.com").
		WillReturnRows(pgxmock.NewRows(customerRowColumns).
			AddRow("c-first", "biz", "Jane", "Doe", "", "jane@example.com", 0, "", "", now, now))

	c, err := ResolveTx(context.Background(), mock, "biz", Identity{Name: "Jane Doe", Email: "jane@example.com"})
	require.NoError(t, err)
	assert.Equal(t, "c-first", c.ID, "the row that won the insert is reused")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEmailUniqueIndexMigration(t *testing.T) {
	up, err := fs.ReadFile(migrations.FS, "000002_customers_email_key.up.sql")
	require.NoError(t, err)
	assert.Contains(t, string(up), "CREATE UNIQUE INDEX IF NOT EXISTS customers_business_email_key ON customers (business_id, email) WHERE email <> ''")
}

func TestRecordVisitTx(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectExec("UPDATE customers").WithArgs("biz", "c-1", "2025-01-06", "svc-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	require.NoError(t, RecordVisitTx(context.Background(), mock, "biz", "c-1", "svc-1", "2025-01-06"))

	mock.ExpectExec("UPDATE customers").WithArgs("biz", "c-missing", "2025-01-06", "svc-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	assert.ErrorIs(t, RecordVisitTx(context.Background(), mock, "biz", "c-missing", "svc-1", "2025-01-06"), ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}
