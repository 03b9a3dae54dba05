package application

import (
	"context"
	"io"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/oksasatya/driver-desk/config"
	"github.com/oksasatya/driver-desk/internal/domain/entity"
	"github.com/oksasatya/driver-desk/pkg/helpers"
	"github.com/oksasatya/driver-desk/pkg/mailer"
)

// PasswordHasher is satisfied by helpers.BcryptHasher.
type PasswordHasher interface {
	Hash(plain string) (string, error)
	Compare(hash, plain string) bool
}

// Notifier delivers account lifecycle emails. Implementations live in pkg/mailer.
type Notifier interface {
	SendWelcome(ctx context.Context, to mailer.Recipient, verifyURL string) error
	SendPasswordReset(ctx context.Context, to mailer.Recipient, resetURL string) error
	SendEmailChange(ctx context.Context, to mailer.Recipient, token, confirmURL string) error
}

// ImageStore keeps avatar images and hands back their public URL.
type ImageStore interface {
	Save(ctx context.Context, name, contentType string, r io.Reader) (string, error)
	Remove(ctx context.Context, url string) error
}

// AccountIndex is the searchable driver directory. It is optional; services
// treat a nil index as "search disabled".
type AccountIndex interface {
	Index(ctx context.Context, a *entity.Account) error
	Remove(ctx context.Context, id string) error
	SearchDrivers(ctx context.Context, q string, size int) ([]entity.PublicAccount, error)
}

var (
	_ PasswordHasher = (*helpers.BcryptHasher)(nil)
	_ Notifier       = (*mailer.MailgunNotifier)(nil)
	_ Notifier       = (*mailer.QueueNotifier)(nil)
	_ Notifier       = mailer.LogNotifier{}
)

// AuthConfig is everything the auth flows need from configuration.
type AuthConfig struct {
	AccountExpiry   time.Duration
	VerifyTTL       time.Duration
	EmailChangeTTL  time.Duration
	ResetTTL        time.Duration
	VerifyURL       string
	ResetURL        string
	ChangeEmailURL  string
	DefaultImageURL string
}

func AuthConfigFrom(cfg *config.Config) AuthConfig {
	return AuthConfig{
		AccountExpiry:   cfg.AccountExpiry,
		VerifyTTL:       cfg.VerifyTTL,
		EmailChangeTTL:  cfg.EmailChangeTTL,
		ResetTTL:        cfg.ResetTTL,
		VerifyURL:       cfg.VerifyEmailURL,
		ResetURL:        cfg.ResetPasswordURL,
		ChangeEmailURL:  cfg.ChangeEmailURL,
		DefaultImageURL: cfg.DefaultImageURL(),
	}
}

// Principal is the capability returned by Protect: the resolved account and
// the issue time of the token that proved it.
type Principal struct {
	Account  *entity.Account
	IssuedAt time.Time
}

// Session is a freshly minted session token for an account.
type Session struct {
	Token     string
	ExpiresAt time.Time
	Account   *entity.Account
}

func orDiscard(l *logrus.Logger) *logrus.Logger {
	if l == nil {
		return helpers.NewDiscardLogger()
	}
	return l
}

func recipient(a *entity.Account) mailer.Recipient {
	return mailer.Recipient{Name: a.Name, Email: a.Email}
}

// withToken appends token as the "token" query parameter.
func withToken(base, token string) string {
	if strings.Contains(base, "?") {
		return base + "&token=" + token
	}
	return base + "?token=" + token
}
