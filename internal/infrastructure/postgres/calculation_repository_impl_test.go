package postgres

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oksasatya/driver-desk/internal/domain/entity"
	"github.com/oksasatya/driver-desk/internal/domain/repository"
)

func TestCalculationRepository_Create(t *testing.T) {
	mock := newMock(t)
	r := NewCalculationRepository(mock)
	c := &entity.DriverCalculation{ID: "c1", Total: "10.00", Cash: "2.00", Vat: "1.00", Transfer: "-32.00", UploadedBy: "u1", CreatedAt: time.Now()}

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO driver_calculations")).
		WithArgs(c.ID, c.Total, c.Cash, c.Vat, c.Transfer, c.UploadedBy, c.CreatedAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, r.Create(context.Background(), c))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCalculationRepository_Latest(t *testing.T) {
	mock := newMock(t)
	r := NewCalculationRepository(mock)
	at := time.Date(2026, 3, 3, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`FROM driver_calculations\s+ORDER BY created_at DESC\s+LIMIT 1`).
		WillReturnRows(pgxmock.NewRows([]string{"id", "total", "cash", "vat", "transfer", "uploaded_by", "created_at"}).
			AddRow("c1", "10.00", "2.00", "1.00", "-32.00", "u1", at))

	c, err := r.Latest(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "-32.00", c.Transfer)
	assert.Equal(t, at, c.CreatedAt)

	mock.ExpectQuery(`FROM driver_calculations`).WillReturnError(pgx.ErrNoRows)
	_, err = r.Latest(context.Background())
	assert.ErrorIs(t, err, repository.ErrNotFound)
}
