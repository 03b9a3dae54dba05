package templates

import (
	"strings"
	"time"

	"github.com/oksasatya/driver-desk/config"
)

const timeLayout = "02 January 2006, 15:04"

// Option pattern
type Option func(*EmailData)

func WithIP(ip string) Option { return func(d *EmailData) { d.IP = ip } }
func WithTime(t time.Time) Option {
	return func(d *EmailData) {
		utc := t.UTC()
		d.TimeAt = utc
		d.Time = utc.Format(timeLayout)
	}
}
func WithActionURL(url string) Option { return func(d *EmailData) { d.ActionURL = url } }
func WithToken(tok string) Option     { return func(d *EmailData) { d.Token = tok } }

func WithLocation(loc string) Option {
	return func(d *EmailData) {
		if s := strings.TrimSpace(loc); s != "" {
			d.Location = s
		}
	}
}

func WithExpiresAt(t time.Time) Option {
	return func(d *EmailData) {
		utc := t.UTC()
		d.ExpiresAt = utc
		d.ExpiresAtText = utc.Format(timeLayout)
	}
}

// firstName mirrors how greetings address people: the first word of the display name.
func firstName(name string) string {
	if f := strings.Fields(name); len(f) > 0 {
		return f[0]
	}
	return ""
}

// NewBaseEmailData fills common fields from config, then applies options.
func NewBaseEmailData(cfg *config.Config, typ, name, email string, opts ...Option) EmailData {
	d := EmailData{
		Name:           name,
		FirstName:      firstName(name),
		Email:          email,
		RecipientEmail: email,
		Type:           typ,

		CompanyName:    cfg.CompanyName,
		CompanyAddress: cfg.CompanyAddress,
		AppName:        cfg.AppName,

		LogoURL:        cfg.LogoURL,
		SupportURL:     cfg.SupportURL,
		PrivacyURL:     cfg.PrivacyURL,
		UnsubscribeURL: cfg.UnsubscribeURL,
	}
	for _, opt := range opts {
		opt(&d)
	}
	return d
}

func NewWelcomeData(cfg *config.Config, name, email, verifyURL string, opts ...Option) map[string]any {
	opts = append([]Option{WithActionURL(verifyURL)}, opts...)
	return ToMap(NewBaseEmailData(cfg, Welcome, name, email, opts...))
}

func NewPasswordResetData(cfg *config.Config, name, email, resetURL string, opts ...Option) map[string]any {
	opts = append([]Option{WithActionURL(resetURL)}, opts...)
	return ToMap(NewBaseEmailData(cfg, PasswordReset, name, email, opts...))
}

func NewEmailChangeData(cfg *config.Config, name, email, token, confirmURL string, opts ...Option) map[string]any {
	opts = append([]Option{WithActionURL(confirmURL), WithToken(token)}, opts...)
	return ToMap(NewBaseEmailData(cfg, EmailChange, name, email, opts...))
}
