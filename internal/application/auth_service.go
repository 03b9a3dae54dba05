package application

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/oksasatya/driver-desk/internal/domain/apperror"
	"github.com/oksasatya/driver-desk/internal/domain/entity"
	repo "github.com/oksasatya/driver-desk/internal/domain/repository"
	"github.com/oksasatya/driver-desk/pkg/helpers"
	"github.com/oksasatya/driver-desk/pkg/validation"
)

var (
	ErrInvalidCredentials = apperror.New(apperror.KindUnauthenticated, "invalid email or password")
	ErrEmptyFields        = apperror.New(apperror.KindValidation, "you can't leave any field empty")
	ErrPasswordMismatch   = apperror.New(apperror.KindValidation, "password and confirm password are not the same")
	ErrSamePassword       = apperror.New(apperror.KindValidation, "your current password and new password can't be the same")
	ErrNotImage           = apperror.New(apperror.KindValidation, "please upload only image files")
	ErrAccountReaped      = apperror.New(apperror.KindNotFound, "your account has been deleted due to the account activation time policy, please sign up again")
	ErrNoSuchEmail        = apperror.New(apperror.KindNotFound, "there is no account with that email")
	ErrEmailTaken         = apperror.New(apperror.KindDuplicate, "an account with this email already exists")
	ErrNotActivated       = apperror.New(apperror.KindNotVerified, "your account is not activated, please check your inbox and activate it first")
)

// AuthService drives the account lifecycle: signup, verification, login,
// password reset/change and the Protect/Restrict gates.
type AuthService struct {
	Repo     repo.AccountRepository
	Hasher   PasswordHasher
	JWT      *helpers.JWTManager
	Notifier Notifier
	Images   ImageStore
	Index    AccountIndex
	Logger   *logrus.Logger
	Cfg      AuthConfig
	Now      func() time.Time

	dummyOnce sync.Once
	dummyHash string
}

func NewAuthService(r repo.AccountRepository, hasher PasswordHasher, jwt *helpers.JWTManager, notifier Notifier, images ImageStore, index AccountIndex, logger *logrus.Logger, cfg AuthConfig) *AuthService {
	return &AuthService{
		Repo:     r,
		Hasher:   hasher,
		JWT:      jwt,
		Notifier: notifier,
		Images:   images,
		Index:    index,
		Logger:   orDiscard(logger),
		Cfg:      cfg,
	}
}

func (s *AuthService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// notifyError marks a Notifier failure inside a transaction callback so the
// caller can tell it apart from store errors after rollback.
type notifyError struct{ err error }

func (e *notifyError) Error() string { return e.err.Error() }
func (e *notifyError) Unwrap() error { return e.err }

func unexpected(err error) error {
	return apperror.Wrap(apperror.KindUnexpected, apperror.ErrUnexpected.Message, err)
}

func invalid(err error) error {
	return apperror.Wrap(apperror.KindValidation, validation.Summary(validation.ToDetails(err)), err)
}

// classify maps store and notifier failures onto the error taxonomy.
func classify(err error) error {
	var ne *notifyError
	switch {
	case err == nil:
		return nil
	case errors.As(err, &ne):
		return apperror.Wrap(apperror.KindNotification, apperror.ErrNotification.Message, ne.err)
	case errors.Is(err, repo.ErrDuplicate):
		return apperror.Wrap(apperror.KindDuplicate, ErrEmailTaken.Message, err)
	case errors.Is(err, repo.ErrNotFound):
		return apperror.Wrap(apperror.KindNotFound, apperror.ErrNotFound.Message, err)
	case apperror.KindOf(err) != apperror.KindUnexpected:
		return err
	default:
		return unexpected(err)
	}
}

func (s *AuthService) issue(a *entity.Account) (*Session, error) {
	tok, exp, err := s.JWT.GenerateSessionToken(a.ID)
	if err != nil {
		s.Logger.WithError(err).WithField("account_id", a.ID).Error("generate session token failed")
		return nil, unexpected(err)
	}
	return &Session{Token: tok, ExpiresAt: exp, Account: a}, nil
}

func (s *AuthService) reindex(ctx context.Context, a *entity.Account) {
	if s.Index == nil || a.Role != entity.RoleDriver || !a.EmailVerified {
		return
	}
	if err := s.Index.Index(ctx, a); err != nil {
		s.Logger.WithError(err).WithField("account_id", a.ID).Warn("driver index update failed")
	}
}

type SignupInput struct {
	Name            string    `json:"name" validate:"required,username"`
	Email           string    `json:"email" validate:"required,email"`
	Password        string    `json:"password" validate:"required,pwd"`
	ConfirmPassword string    `json:"confirmPassword" validate:"required"`
	Image           io.Reader `json:"-" validate:"-"`
}

// Signup creates an unverified Driver account and emails its activation link.
// The account row and the email share one transaction: if the email cannot be
// handed off, nothing is persisted and the stored avatar is removed again.
func (s *AuthService) Signup(ctx context.Context, in SignupInput) (*entity.Account, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Email = entity.NormalizeEmail(in.Email)
	if in.Name == "" || in.Email == "" || in.Password == "" || in.ConfirmPassword == "" {
		return nil, ErrEmptyFields
	}
	if err := validation.Engine().Struct(in); err != nil {
		return nil, invalid(err)
	}
	if in.Password != in.ConfirmPassword {
		return nil, ErrPasswordMismatch
	}

	hash, err := s.Hasher.Hash(in.Password)
	if err != nil {
		return nil, unexpected(err)
	}

	now := s.now()
	imageURL := s.Cfg.DefaultImageURL
	if in.Image != nil {
		imageURL, err = s.storeAvatar(ctx, in.Image, now)
		if err != nil {
			return nil, err
		}
	}

	expires := now.Add(s.Cfg.AccountExpiry)
	acc := &entity.Account{
		ID:           uuid.NewString(),
		Name:         in.Name,
		Email:        in.Email,
		ImageURL:     imageURL,
		Role:         entity.RoleDriver,
		PasswordHash: hash,
		Active:       true,
		ExpiresAt:    &expires,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	err = s.Repo.WithinTx(ctx, func(tx repo.AccountRepository) error {
		if err := tx.Create(ctx, acc); err != nil {
			return err
		}
		tok, err := s.JWT.GenerateEmailToken(acc.Email, s.Cfg.VerifyTTL)
		if err != nil {
			return err
		}
		if err := s.Notifier.SendWelcome(ctx, recipient(acc), withToken(s.Cfg.VerifyURL, tok)); err != nil {
			return &notifyError{err: err}
		}
		return nil
	})
	if err != nil {
		if imageURL != s.Cfg.DefaultImageURL {
			s.discardAvatar(ctx, imageURL)
		}
		out := classify(err)
		if apperror.KindOf(out) == apperror.KindNotification || apperror.KindOf(out) == apperror.KindUnexpected {
			s.Logger.WithError(err).WithField("email", acc.Email).Error("signup failed")
		}
		return nil, out
	}

	s.Logger.WithFields(logrus.Fields{"account_id": acc.ID, "email": acc.Email}).Info("account created")
	return acc, nil
}

func (s *AuthService) storeAvatar(ctx context.Context, r io.Reader, now time.Time) (string, error) {
	if s.Images == nil {
		return "", unexpected(errors.New("image store not configured"))
	}
	var buf bytes.Buffer
	if err := helpers.ResizeToJPEG(r, &buf, helpers.AvatarSize, helpers.AvatarQuality); err != nil {
		return "", apperror.Wrap(apperror.KindValidation, ErrNotImage.Message, err)
	}
	name, err := helpers.AvatarFilename(now)
	if err != nil {
		return "", unexpected(err)
	}
	url, err := s.Images.Save(ctx, name, "image/jpeg", &buf)
	if err != nil {
		s.Logger.WithError(err).WithField("object", name).Error("avatar upload failed")
		return "", unexpected(err)
	}
	return url, nil
}

func (s *AuthService) discardAvatar(ctx context.Context, url string) {
	if s.Images == nil {
		return
	}
	if err := s.Images.Remove(ctx, url); err != nil {
		s.Logger.WithError(err).WithField("image", url).Warn("avatar cleanup failed")
	}
}

// passwordFor returns a hash that Compare can run against when no account
// matched, so unknown emails cost the same as wrong passwords.
func (s *AuthService) passwordFor(a *entity.Account) string {
	if a != nil {
		return a.PasswordHash
	}
	s.dummyOnce.Do(func() {
		s.dummyHash, _ = s.Hasher.Hash(uuid.NewString())
	})
	return s.dummyHash
}

// Login authenticates by email and password. Unknown emails and wrong
// passwords fail identically; NotVerified is only reported to a caller
// that proved the password.
func (s *AuthService) Login(ctx context.Context, email, password string) (*Session, error) {
	email = entity.NormalizeEmail(email)
	if email == "" || password == "" {
		return nil, ErrEmptyFields
	}

	acc, err := s.Repo.GetByEmail(ctx, email)
	if err != nil && !errors.Is(err, repo.ErrNotFound) {
		return nil, unexpected(err)
	}
	if !s.Hasher.Compare(s.passwordFor(acc), password) || acc == nil {
		return nil, ErrInvalidCredentials
	}
	if !acc.EmailVerified {
		return nil, ErrNotActivated
	}
	return s.issue(acc)
}

// VerifyAccount activates the account named by an email verification token.
// Repeating it on an already verified account succeeds and returns a new session.
func (s *AuthService) VerifyAccount(ctx context.Context, token string) (*Session, error) {
	email, err := s.JWT.ParseEmailToken(token)
	if err != nil {
		return nil, apperror.Wrap(apperror.KindInvalidToken, apperror.ErrInvalidToken.Message, err)
	}
	acc, err := s.Repo.GetByEmail(ctx, email)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, ErrAccountReaped
	}
	if err != nil {
		return nil, unexpected(err)
	}

	if !acc.EmailVerified || acc.ExpiresAt != nil {
		acc.EmailVerified = true
		acc.ExpiresAt = nil
		acc.UpdatedAt = s.now()
		if err := s.Repo.Update(ctx, acc); err != nil {
			return nil, classify(err)
		}
		s.Logger.WithField("account_id", acc.ID).Info("account verified")
	}
	s.reindex(ctx, acc)
	return s.issue(acc)
}

// RequestEmailChange mails a short-lived token to the new address; ChangeEmail redeems it.
func (s *AuthService) RequestEmailChange(ctx context.Context, p *Principal, newEmail string) error {
	if p == nil || p.Account == nil {
		return apperror.ErrUnauthenticated
	}
	newEmail = entity.NormalizeEmail(newEmail)
	if err := validation.Engine().Var(newEmail, "required,email"); err != nil {
		return apperror.Wrap(apperror.KindValidation, "email must be a valid email", err)
	}
	if newEmail == p.Account.Email {
		return apperror.New(apperror.KindValidation, "new email is the same as the current one")
	}
	_, err := s.Repo.GetByEmail(ctx, newEmail)
	switch {
	case err == nil:
		return ErrEmailTaken
	case !errors.Is(err, repo.ErrNotFound):
		return unexpected(err)
	}

	tok, err := s.JWT.GenerateEmailToken(newEmail, s.Cfg.EmailChangeTTL)
	if err != nil {
		return unexpected(err)
	}
	to := recipient(p.Account)
	to.Email = newEmail
	if err := s.Notifier.SendEmailChange(ctx, to, tok, withToken(s.Cfg.ChangeEmailURL, tok)); err != nil {
		s.Logger.WithError(err).WithField("account_id", p.Account.ID).Error("email change notification failed")
		return apperror.Wrap(apperror.KindNotification, apperror.ErrNotification.Message, err)
	}
	return nil
}

// ChangeEmail assigns the email carried by token to the authenticated account.
// Verification state is left as is.
func (s *AuthService) ChangeEmail(ctx context.Context, p *Principal, token string) (*entity.Account, error) {
	if p == nil || p.Account == nil {
		return nil, apperror.ErrUnauthenticated
	}
	email, err := s.JWT.ParseEmailToken(token)
	if err != nil {
		return nil, apperror.Wrap(apperror.KindInvalidToken, apperror.ErrInvalidToken.Message, err)
	}
	acc, err := s.Repo.GetByID(ctx, p.Account.ID)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, apperror.ErrUserGone
	}
	if err != nil {
		return nil, unexpected(err)
	}
	if acc.Email == email {
		return acc, nil
	}
	acc.Email = email
	acc.UpdatedAt = s.now()
	if err := s.Repo.Update(ctx, acc); err != nil {
		return nil, classify(err)
	}
	s.reindex(ctx, acc)
	s.Logger.WithFields(logrus.Fields{"account_id": acc.ID, "email": acc.Email}).Info("email changed")
	return acc, nil
}

// ForgotPassword stores the digest of a fresh reset secret and mails the
// plaintext. The write is rolled back when the mail cannot be handed off.
func (s *AuthService) ForgotPassword(ctx context.Context, email string) error {
	email = entity.NormalizeEmail(email)
	if email == "" {
		return ErrEmptyFields
	}
	acc, err := s.Repo.GetByEmail(ctx, email)
	if errors.Is(err, repo.ErrNotFound) {
		return ErrNoSuchEmail
	}
	if err != nil {
		return unexpected(err)
	}

	plain, digest, err := helpers.GenerateResetSecret()
	if err != nil {
		return unexpected(err)
	}
	now := s.now()
	expires := now.Add(s.Cfg.ResetTTL)

	err = s.Repo.WithinTx(ctx, func(tx repo.AccountRepository) error {
		acc.ResetTokenHash = &digest
		acc.ResetTokenExpiresAt = &expires
		acc.UpdatedAt = now
		if err := tx.Update(ctx, acc); err != nil {
			return err
		}
		if err := s.Notifier.SendPasswordReset(ctx, recipient(acc), withToken(s.Cfg.ResetURL, plain)); err != nil {
			return &notifyError{err: err}
		}
		return nil
	})
	if err != nil {
		acc.ClearReset()
		s.Logger.WithError(err).WithField("account_id", acc.ID).Error("forgot password failed")
		return classify(err)
	}
	return nil
}

func (s *AuthService) checkNewPassword(password, confirm string) error {
	if password == "" || confirm == "" {
		return ErrEmptyFields
	}
	if err := validation.Engine().Var(password, "pwd"); err != nil {
		return apperror.Wrap(apperror.KindValidation, "password must be at least 8 characters long", err)
	}
	if password != confirm {
		return ErrPasswordMismatch
	}
	return nil
}

// setPassword replaces the hash and stamps the change one second in the past,
// so a token minted in the same second as the change stays valid.
func (s *AuthService) setPassword(a *entity.Account, password string) error {
	hash, err := s.Hasher.Hash(password)
	if err != nil {
		return unexpected(err)
	}
	now := s.now()
	changed := now.Add(-time.Second)
	a.PasswordHash = hash
	a.PasswordChangedAt = &changed
	a.UpdatedAt = now
	return nil
}

// ResetPassword redeems a reset secret and signs the account in.
func (s *AuthService) ResetPassword(ctx context.Context, secret, password, confirm string) (*Session, error) {
	if err := s.checkNewPassword(password, confirm); err != nil {
		return nil, err
	}
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return nil, apperror.ErrInvalidOrExpiredToken
	}
	acc, err := s.Repo.GetByResetTokenHash(ctx, helpers.HashResetSecret(secret), s.now())
	if errors.Is(err, repo.ErrNotFound) {
		return nil, apperror.ErrInvalidOrExpiredToken
	}
	if err != nil {
		return nil, unexpected(err)
	}

	if err := s.setPassword(acc, password); err != nil {
		return nil, err
	}
	acc.ClearReset()
	if err := s.Repo.Update(ctx, acc); err != nil {
		return nil, classify(err)
	}
	s.Logger.WithField("account_id", acc.ID).Info("password reset")
	return s.issue(acc)
}

// UpdatePassword changes the password of the authenticated account. Tokens
// issued before the change stop passing Protect.
func (s *AuthService) UpdatePassword(ctx context.Context, p *Principal, current, password, confirm string) (*Session, error) {
	if p == nil || p.Account == nil {
		return nil, apperror.ErrUnauthenticated
	}
	if current == "" {
		return nil, ErrEmptyFields
	}
	acc, err := s.Repo.GetByID(ctx, p.Account.ID)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, apperror.ErrUserGone
	}
	if err != nil {
		return nil, unexpected(err)
	}
	if !s.Hasher.Compare(acc.PasswordHash, current) {
		return nil, apperror.ErrWrongPassword
	}
	if password == current {
		return nil, ErrSamePassword
	}
	if err := s.checkNewPassword(password, confirm); err != nil {
		return nil, err
	}

	if err := s.setPassword(acc, password); err != nil {
		return nil, err
	}
	if err := s.Repo.Update(ctx, acc); err != nil {
		return nil, classify(err)
	}
	s.Logger.WithField("account_id", acc.ID).Info("password updated")
	return s.issue(acc)
}

// Protect resolves a session token into a Principal.
func (s *AuthService) Protect(ctx context.Context, token string) (*Principal, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, apperror.ErrUnauthenticated
	}
	claims, err := s.JWT.ParseSessionToken(token)
	if err != nil {
		return nil, apperror.Wrap(apperror.KindInvalidToken, apperror.ErrInvalidToken.Message, err)
	}
	acc, err := s.Repo.GetByID(ctx, claims.AccountID())
	if errors.Is(err, repo.ErrNotFound) {
		return nil, apperror.ErrUserGone
	}
	if err != nil {
		return nil, unexpected(err)
	}
	iat := claims.Issued()
	if acc.ChangedPasswordAfter(iat) {
		return nil, apperror.ErrPasswordChanged
	}
	return &Principal{Account: acc, IssuedAt: iat}, nil
}

// Restrict allows the principal through only if its role is one of roles.
func (s *AuthService) Restrict(p *Principal, roles ...entity.Role) error {
	return RequireRole(p, roles...)
}

func RequireRole(p *Principal, roles ...entity.Role) error {
	if p == nil || p.Account == nil {
		return apperror.ErrUnauthenticated
	}
	for _, r := range roles {
		if p.Account.Role == r {
			return nil
		}
	}
	return apperror.ErrForbidden
}

// ReapExpired removes unverified accounts whose activation window has passed.
func (s *AuthService) ReapExpired(ctx context.Context) (int64, error) {
	n, err := s.Repo.DeleteExpiredUnverified(ctx, s.now())
	if err != nil {
		s.Logger.WithError(err).Error("reap expired accounts failed")
		return 0, err
	}
	if n > 0 {
		s.Logger.WithField("count", n).Info("expired unverified accounts removed")
	}
	return n, nil
}
