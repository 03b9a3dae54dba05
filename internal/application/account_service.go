package application

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/oksasatya/driver-desk/internal/domain/apperror"
	"github.com/oksasatya/driver-desk/internal/domain/entity"
	repo "github.com/oksasatya/driver-desk/internal/domain/repository"
)

const (
	defaultSearchSize = 10
	maxSearchSize     = 50
)

// AccountService holds the admin-facing account operations.
type AccountService struct {
	Repo   repo.AccountRepository
	Index  AccountIndex
	Logger *logrus.Logger
	Now    func() time.Time
}

func NewAccountService(r repo.AccountRepository, index AccountIndex, logger *logrus.Logger) *AccountService {
	return &AccountService{Repo: r, Index: index, Logger: orDiscard(logger)}
}

func (s *AccountService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *AccountService) findByEmail(ctx context.Context, email string) (*entity.Account, error) {
	email = entity.NormalizeEmail(email)
	if email == "" {
		return nil, apperror.New(apperror.KindValidation, "email is required")
	}
	acc, err := s.Repo.GetByEmail(ctx, email)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, apperror.Wrap(apperror.KindNotFound, "no account found with that email", err)
	}
	if err != nil {
		return nil, unexpected(err)
	}
	return acc, nil
}

// SetRole changes the role of the account with the given email. Admin only.
func (s *AccountService) SetRole(ctx context.Context, p *Principal, email, role string) (*entity.Account, error) {
	if err := RequireRole(p, entity.RoleAdmin); err != nil {
		return nil, err
	}
	r, ok := entity.ParseRole(role)
	if !ok {
		return nil, apperror.New(apperror.KindValidation, "role must be one of: Driver, Admin")
	}
	acc, err := s.findByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if acc.Role == r {
		return acc, nil
	}
	acc.Role = r
	acc.UpdatedAt = s.now()
	if err := s.Repo.Update(ctx, acc); err != nil {
		return nil, classify(err)
	}
	s.syncIndex(ctx, acc)
	s.Logger.WithFields(logrus.Fields{"account_id": acc.ID, "role": r, "by": p.Account.ID}).Info("role changed")
	return acc, nil
}

// syncIndex keeps the driver directory in line with an account's role and status.
func (s *AccountService) syncIndex(ctx context.Context, a *entity.Account) {
	if s.Index == nil {
		return
	}
	var err error
	if a.Role == entity.RoleDriver && a.Active && a.EmailVerified {
		err = s.Index.Index(ctx, a)
	} else {
		err = s.Index.Remove(ctx, a.ID)
	}
	if err != nil {
		s.Logger.WithError(err).WithField("account_id", a.ID).Warn("driver index sync failed")
	}
}

// ListDrivers returns every visible Driver account.
func (s *AccountService) ListDrivers(ctx context.Context) ([]entity.PublicAccount, error) {
	accs, err := s.Repo.ListByRole(ctx, entity.RoleDriver)
	if err != nil {
		return nil, unexpected(err)
	}
	out := make([]entity.PublicAccount, 0, len(accs))
	for _, a := range accs {
		out = append(out, a.Public())
	}
	return out, nil
}

// SearchDrivers queries the driver directory. Without an index it falls back
// to a substring match over ListDrivers.
func (s *AccountService) SearchDrivers(ctx context.Context, q string, size int) ([]entity.PublicAccount, error) {
	q = strings.TrimSpace(q)
	switch {
	case size <= 0:
		size = defaultSearchSize
	case size > maxSearchSize:
		size = maxSearchSize
	}

	if s.Index != nil {
		res, err := s.Index.SearchDrivers(ctx, q, size)
		if err == nil {
			return res, nil
		}
		s.Logger.WithError(err).Warn("driver search failed, falling back to store")
	}

	all, err := s.ListDrivers(ctx)
	if err != nil {
		return nil, err
	}
	needle := strings.ToLower(q)
	out := make([]entity.PublicAccount, 0, size)
	for _, a := range all {
		if len(out) == size {
			break
		}
		if needle == "" || strings.Contains(strings.ToLower(a.Name), needle) || strings.Contains(a.Email, needle) {
			out = append(out, a)
		}
	}
	return out, nil
}

// Deactivate soft-deletes an account. Admin only; admins cannot deactivate themselves.
func (s *AccountService) Deactivate(ctx context.Context, p *Principal, email string) error {
	if err := RequireRole(p, entity.RoleAdmin); err != nil {
		return err
	}
	acc, err := s.findByEmail(ctx, email)
	if err != nil {
		return err
	}
	if acc.ID == p.Account.ID {
		return apperror.New(apperror.KindValidation, "you can't deactivate your own account")
	}
	acc.Active = false
	acc.UpdatedAt = s.now()
	if err := s.Repo.Update(ctx, acc); err != nil {
		return classify(err)
	}
	s.syncIndex(ctx, acc)
	s.Logger.WithFields(logrus.Fields{"account_id": acc.ID, "by": p.Account.ID}).Info("account deactivated")
	return nil
}
