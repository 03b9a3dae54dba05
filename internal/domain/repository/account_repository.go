package repository

import (
	"context"
	"errors"
	"time"

	"github.com/oksasatya/driver-desk/internal/domain/entity"
)

var (
	// ErrNotFound indicates no visible row matched.
	ErrNotFound = errors.New("repository: not found")
	// ErrDuplicate indicates a unique constraint (email) was violated.
	ErrDuplicate = errors.New("repository: duplicate")
)

// AccountRepository defines the credential store. Default lookups only see
// active accounts that have not outlived their verification window.
type AccountRepository interface {
	Create(ctx context.Context, a *entity.Account) error
	GetByID(ctx context.Context, id string) (*entity.Account, error)
	GetByEmail(ctx context.Context, email string) (*entity.Account, error)
	GetByResetTokenHash(ctx context.Context, hash string, now time.Time) (*entity.Account, error)
	Update(ctx context.Context, a *entity.Account) error
	Delete(ctx context.Context, id string) error
	ListByRole(ctx context.Context, role entity.Role) ([]*entity.Account, error)
	DeleteExpiredUnverified(ctx context.Context, now time.Time) (int64, error)

	// WithinTx runs fn against a repository bound to a single transaction.
	// The transaction commits when fn returns nil and rolls back otherwise.
	WithinTx(ctx context.Context, fn func(AccountRepository) error) error
}
