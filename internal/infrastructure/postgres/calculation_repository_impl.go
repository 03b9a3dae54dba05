package postgres

import (
	"context"

	"github.com/oksasatya/driver-desk/internal/domain/entity"
	"github.com/oksasatya/driver-desk/internal/domain/repository"
)

type CalculationRepository struct {
	db DB
}

func NewCalculationRepository(db DB) *CalculationRepository {
	return &CalculationRepository{db: db}
}

var _ repository.CalculationRepository = (*CalculationRepository)(nil)

func (r *CalculationRepository) Create(ctx context.Context, c *entity.DriverCalculation) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO driver_calculations (id, total, cash, vat, transfer, uploaded_by, created_at)
		VALUES ($1, $2::numeric, $3::numeric, $4::numeric, $5::numeric, NULLIF($6, '')::uuid, $7)
	`, c.ID, c.Total, c.Cash, c.Vat, c.Transfer, c.UploadedBy, c.CreatedAt)
	return mapErr(err)
}

func (r *CalculationRepository) Latest(ctx context.Context) (*entity.DriverCalculation, error) {
	c := &entity.DriverCalculation{}
	err := r.db.QueryRow(ctx, `
		SELECT id, total::text, cash::text, vat::text, transfer::text, COALESCE(uploaded_by::text, ''), created_at
		FROM driver_calculations
		ORDER BY created_at DESC
		LIMIT 1
	`).Scan(&c.ID, &c.Total, &c.Cash, &c.Vat, &c.Transfer, &c.UploadedBy, &c.CreatedAt)
	if err != nil {
		return nil, mapErr(err)
	}
	return c, nil
}
