package repository

import (
	"context"

	"github.com/oksasatya/driver-desk/internal/domain/entity"
)

type CalculationRepository interface {
	Create(ctx context.Context, c *entity.DriverCalculation) error
	Latest(ctx context.Context) (*entity.DriverCalculation, error)
}
