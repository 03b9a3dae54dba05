package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/oksasatya/driver-desk/internal/domain/entity"
	"github.com/oksasatya/driver-desk/internal/domain/repository"
)

const accountColumns = `id, name, email, image_url, role, password_hash, password_changed_at,
	email_verified, active, reset_token_hash, reset_token_expires_at, expires_at, created_at, updated_at`

// visibleAccount is the default read predicate: not soft-deleted and not past
// the activation window.
const visibleAccount = `active AND (expires_at IS NULL OR expires_at > now())`

type AccountRepository struct {
	db DB
}

func NewAccountRepository(db DB) *AccountRepository {
	return &AccountRepository{db: db}
}

var _ repository.AccountRepository = (*AccountRepository)(nil)

func scanAccount(row pgx.Row) (*entity.Account, error) {
	a := &entity.Account{}
	var role string
	if err := row.Scan(&a.ID, &a.Name, &a.Email, &a.ImageURL, &role, &a.PasswordHash, &a.PasswordChangedAt,
		&a.EmailVerified, &a.Active, &a.ResetTokenHash, &a.ResetTokenExpiresAt, &a.ExpiresAt,
		&a.CreatedAt, &a.UpdatedAt); err != nil {
		return nil, mapErr(err)
	}
	a.Role = entity.Role(role)
	return a, nil
}

func (r *AccountRepository) Create(ctx context.Context, a *entity.Account) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO accounts (`+accountColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`, a.ID, a.Name, a.Email, a.ImageURL, string(a.Role), a.PasswordHash, a.PasswordChangedAt,
		a.EmailVerified, a.Active, a.ResetTokenHash, a.ResetTokenExpiresAt, a.ExpiresAt, a.CreatedAt, a.UpdatedAt)
	return mapErr(err)
}

func (r *AccountRepository) GetByID(ctx context.Context, id string) (*entity.Account, error) {
	return scanAccount(r.db.QueryRow(ctx, `
		SELECT `+accountColumns+`
		FROM accounts
		WHERE id = $1 AND `+visibleAccount, id))
}

func (r *AccountRepository) GetByEmail(ctx context.Context, email string) (*entity.Account, error) {
	return scanAccount(r.db.QueryRow(ctx, `
		SELECT `+accountColumns+`
		FROM accounts
		WHERE email = $1 AND `+visibleAccount, email))
}

func (r *AccountRepository) GetByResetTokenHash(ctx context.Context, hash string, now time.Time) (*entity.Account, error) {
	return scanAccount(r.db.QueryRow(ctx, `
		SELECT `+accountColumns+`
		FROM accounts
		WHERE reset_token_hash = $1 AND reset_token_expires_at > $2 AND `+visibleAccount, hash, now))
}

func (r *AccountRepository) Update(ctx context.Context, a *entity.Account) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE accounts SET
			name = $2, email = $3, image_url = $4, role = $5, password_hash = $6,
			password_changed_at = $7, email_verified = $8, active = $9,
			reset_token_hash = $10, reset_token_expires_at = $11, expires_at = $12, updated_at = $13
		WHERE id = $1
	`, a.ID, a.Name, a.Email, a.ImageURL, string(a.Role), a.PasswordHash,
		a.PasswordChangedAt, a.EmailVerified, a.Active,
		a.ResetTokenHash, a.ResetTokenExpiresAt, a.ExpiresAt, a.UpdatedAt)
	if err != nil {
		return mapErr(err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func (r *AccountRepository) Delete(ctx context.Context, id string) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM accounts WHERE id = $1`, id)
	if err != nil {
		return mapErr(err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func (r *AccountRepository) ListByRole(ctx context.Context, role entity.Role) ([]*entity.Account, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+accountColumns+`
		FROM accounts
		WHERE role = $1 AND `+visibleAccount+`
		ORDER BY created_at
	`, string(role))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*entity.Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (r *AccountRepository) DeleteExpiredUnverified(ctx context.Context, now time.Time) (int64, error) {
	tag, err := r.db.Exec(ctx, `
		DELETE FROM accounts
		WHERE NOT email_verified AND expires_at IS NOT NULL AND expires_at <= $1
	`, now)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// WithinTx runs fn against a repository bound to one transaction.
func (r *AccountRepository) WithinTx(ctx context.Context, fn func(repository.AccountRepository) error) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(&AccountRepository{db: tx}); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return mapErr(err)
	}
	return nil
}
