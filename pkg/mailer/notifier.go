package mailer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/oksasatya/driver-desk/config"
	mailtpl "github.com/oksasatya/driver-desk/pkg/mailer/templates"
)

// ErrDelivery wraps every failure to hand a message to its transport.
var ErrDelivery = errors.New("mailer: delivery failed")

// Recipient is the addressee of a notification.
type Recipient struct {
	Name  string
	Email string
}

// Publisher puts a JSON payload on a queue. helpers.RabbitPublisher satisfies it.
type Publisher interface {
	PublishJSON(ctx context.Context, v any) error
}

type clientIPKey struct{}

// WithClientIP records the caller's address so templates can localize times.
func WithClientIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, clientIPKey{}, ip)
}

func ClientIPFrom(ctx context.Context) string {
	ip, _ := ctx.Value(clientIPKey{}).(string)
	return ip
}

// Composer builds template jobs for account notifications.
type Composer struct {
	Cfg *config.Config
	Now func() time.Time
}

func (c Composer) now() time.Time {
	if c.Now != nil {
		return c.Now()
	}
	return time.Now()
}

func (c Composer) baseOpts(ctx context.Context, ttl time.Duration) []mailtpl.Option {
	now := c.now()
	opts := []mailtpl.Option{mailtpl.WithTime(now), mailtpl.WithExpiresAt(now.Add(ttl))}
	if ip := ClientIPFrom(ctx); ip != "" {
		opts = append(opts, mailtpl.WithIP(ip))
	}
	return opts
}

func (c Composer) Welcome(ctx context.Context, to Recipient, verifyURL string) EmailJob {
	data := mailtpl.NewWelcomeData(c.Cfg, to.Name, to.Email, verifyURL, c.baseOpts(ctx, c.Cfg.AccountExpiry)...)
	return EmailJob{To: to.Email, Template: mailtpl.Welcome, Data: data}
}

func (c Composer) PasswordReset(ctx context.Context, to Recipient, resetURL string) EmailJob {
	data := mailtpl.NewPasswordResetData(c.Cfg, to.Name, to.Email, resetURL, c.baseOpts(ctx, c.Cfg.ResetTTL)...)
	return EmailJob{To: to.Email, Template: mailtpl.PasswordReset, Data: data}
}

func (c Composer) EmailChange(ctx context.Context, to Recipient, token, confirmURL string) EmailJob {
	data := mailtpl.NewEmailChangeData(c.Cfg, to.Name, to.Email, token, confirmURL, c.baseOpts(ctx, c.Cfg.EmailChangeTTL)...)
	return EmailJob{To: to.Email, Template: mailtpl.EmailChange, Data: data}
}

// Render produces the final subject and bodies for a job.
// Jobs without a template are sent as given.
func Render(job *EmailJob) (subject, text, html string, err error) {
	job.Normalize()
	if err := job.Validate(); err != nil {
		return "", "", "", err
	}
	if job.Template == "" {
		return job.Subject, job.Text, job.HTML, nil
	}
	return mailtpl.Render(job.Template, job.Data)
}

// MailgunNotifier renders and sends inline; the request waits for Mailgun.
type MailgunNotifier struct {
	Composer
	Sender Sender
}

func NewMailgunNotifier(cfg *config.Config, sender Sender) *MailgunNotifier {
	return &MailgunNotifier{Composer: Composer{Cfg: cfg}, Sender: sender}
}

func (n *MailgunNotifier) deliver(ctx context.Context, job EmailJob) error {
	subject, text, html, err := Render(&job)
	if err != nil {
		return fmt.Errorf("%w: render %s: %v", ErrDelivery, job.Template, err)
	}
	if err := n.Sender.Send(ctx, job.To, subject, text, html); err != nil {
		return fmt.Errorf("%w: %v", ErrDelivery, err)
	}
	return nil
}

func (n *MailgunNotifier) SendWelcome(ctx context.Context, to Recipient, verifyURL string) error {
	return n.deliver(ctx, n.Welcome(ctx, to, verifyURL))
}

func (n *MailgunNotifier) SendPasswordReset(ctx context.Context, to Recipient, resetURL string) error {
	return n.deliver(ctx, n.PasswordReset(ctx, to, resetURL))
}

func (n *MailgunNotifier) SendEmailChange(ctx context.Context, to Recipient, token, confirmURL string) error {
	return n.deliver(ctx, n.EmailChange(ctx, to, token, confirmURL))
}

// QueueNotifier hands jobs to the email worker. A publish that is not confirmed by
// the broker counts as a delivery failure.
type QueueNotifier struct {
	Composer
	Publisher Publisher
}

func NewQueueNotifier(cfg *config.Config, pub Publisher) *QueueNotifier {
	return &QueueNotifier{Composer: Composer{Cfg: cfg}, Publisher: pub}
}

func (n *QueueNotifier) enqueue(ctx context.Context, job EmailJob) error {
	job.Normalize()
	if err := n.Publisher.PublishJSON(ctx, job); err != nil {
		return fmt.Errorf("%w: publish %s: %v", ErrDelivery, job.Template, err)
	}
	return nil
}

func (n *QueueNotifier) SendWelcome(ctx context.Context, to Recipient, verifyURL string) error {
	return n.enqueue(ctx, n.Welcome(ctx, to, verifyURL))
}

func (n *QueueNotifier) SendPasswordReset(ctx context.Context, to Recipient, resetURL string) error {
	return n.enqueue(ctx, n.PasswordReset(ctx, to, resetURL))
}

func (n *QueueNotifier) SendEmailChange(ctx context.Context, to Recipient, token, confirmURL string) error {
	return n.enqueue(ctx, n.EmailChange(ctx, to, token, confirmURL))
}

// LogNotifier only logs the links. Meant for local development.
type LogNotifier struct {
	Logger *logrus.Logger
}

func (n LogNotifier) log(kind string, to Recipient, link string) {
	if n.Logger == nil {
		return
	}
	n.Logger.WithFields(logrus.Fields{"email": to.Email, "kind": kind, "link": link}).Info("notification not sent (log mode)")
}

func (n LogNotifier) SendWelcome(_ context.Context, to Recipient, verifyURL string) error {
	n.log(mailtpl.Welcome, to, verifyURL)
	return nil
}

func (n LogNotifier) SendPasswordReset(_ context.Context, to Recipient, resetURL string) error {
	n.log(mailtpl.PasswordReset, to, resetURL)
	return nil
}

func (n LogNotifier) SendEmailChange(_ context.Context, to Recipient, _ string, confirmURL string) error {
	n.log(mailtpl.EmailChange, to, confirmURL)
	return nil
}
