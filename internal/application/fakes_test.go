package application

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/oksasatya/driver-desk/internal/domain/entity"
	repo "github.com/oksasatya/driver-desk/internal/domain/repository"
	"github.com/oksasatya/driver-desk/pkg/helpers"
	"github.com/oksasatya/driver-desk/pkg/mailer"
)

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func newClock() *clock { return &clock{t: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)} }

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

// memRepo is an in-memory AccountRepository with the same visibility rules as
// the Postgres one. WithinTx snapshots rows and restores them on error.
type memRepo struct {
	mu   sync.Mutex
	rows map[string]*entity.Account
	now  func() time.Time

	updateErr error
}

func newMemRepo(now func() time.Time) *memRepo {
	return &memRepo{rows: map[string]*entity.Account{}, now: now}
}

func cloneAccount(a *entity.Account) *entity.Account {
	c := *a
	return &c
}

func (r *memRepo) visible(a *entity.Account) bool {
	return a.Active && (a.ExpiresAt == nil || a.ExpiresAt.After(r.now()))
}

func (r *memRepo) emailTaken(email, exceptID string) bool {
	for _, a := range r.rows {
		if a.ID != exceptID && a.Active && a.Email == email {
			return true
		}
	}
	return false
}

func (r *memRepo) Create(_ context.Context, a *entity.Account) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.emailTaken(a.Email, a.ID) {
		return repo.ErrDuplicate
	}
	r.rows[a.ID] = cloneAccount(a)
	return nil
}

func (r *memRepo) GetByID(_ context.Context, id string) (*entity.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if a, ok := r.rows[id]; ok && r.visible(a) {
		return cloneAccount(a), nil
	}
	return nil, repo.ErrNotFound
}

func (r *memRepo) GetByEmail(_ context.Context, email string) (*entity.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, a := range r.rows {
		if a.Email == email && r.visible(a) {
			return cloneAccount(a), nil
		}
	}
	return nil, repo.ErrNotFound
}

func (r *memRepo) GetByResetTokenHash(_ context.Context, hash string, now time.Time) (*entity.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, a := range r.rows {
		if r.visible(a) && a.ResetTokenHash != nil && *a.ResetTokenHash == hash &&
			a.ResetTokenExpiresAt != nil && a.ResetTokenExpiresAt.After(now) {
			return cloneAccount(a), nil
		}
	}
	return nil, repo.ErrNotFound
}

func (r *memRepo) Update(_ context.Context, a *entity.Account) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.updateErr != nil {
		return r.updateErr
	}
	if _, ok := r.rows[a.ID]; !ok {
		return repo.ErrNotFound
	}
	if a.Active && r.emailTaken(a.Email, a.ID) {
		return repo.ErrDuplicate
	}
	r.rows[a.ID] = cloneAccount(a)
	return nil
}

func (r *memRepo) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.rows[id]; !ok {
		return repo.ErrNotFound
	}
	delete(r.rows, id)
	return nil
}

func (r *memRepo) ListByRole(_ context.Context, role entity.Role) ([]*entity.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*entity.Account
	for _, a := range r.rows {
		if a.Role == role && r.visible(a) {
			out = append(out, cloneAccount(a))
		}
	}
	return out, nil
}

func (r *memRepo) DeleteExpiredUnverified(_ context.Context, now time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for id, a := range r.rows {
		if !a.EmailVerified && a.ExpiresAt != nil && !a.ExpiresAt.After(now) {
			delete(r.rows, id)
			n++
		}
	}
	return n, nil
}

func (r *memRepo) WithinTx(_ context.Context, fn func(repo.AccountRepository) error) error {
	r.mu.Lock()
	snapshot := make(map[string]*entity.Account, len(r.rows))
	for id, a := range r.rows {
		snapshot[id] = cloneAccount(a)
	}
	r.mu.Unlock()

	if err := fn(r); err != nil {
		r.mu.Lock()
		r.rows = snapshot
		r.mu.Unlock()
		return err
	}
	return nil
}

// raw returns a stored row regardless of visibility.
func (r *memRepo) raw(email string) *entity.Account {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, a := range r.rows {
		if a.Email == email {
			return cloneAccount(a)
		}
	}
	return nil
}

func (r *memRepo) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.rows)
}

type sentNotice struct {
	Kind  string
	To    mailer.Recipient
	URL   string
	Token string
}

type fakeNotifier struct {
	mu   sync.Mutex
	sent []sentNotice
	err  error
}

func (n *fakeNotifier) record(s sentNotice) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return n.err
	}
	n.sent = append(n.sent, s)
	return nil
}

func (n *fakeNotifier) SendWelcome(_ context.Context, to mailer.Recipient, verifyURL string) error {
	return n.record(sentNotice{Kind: "welcome", To: to, URL: verifyURL})
}

func (n *fakeNotifier) SendPasswordReset(_ context.Context, to mailer.Recipient, resetURL string) error {
	return n.record(sentNotice{Kind: "reset", To: to, URL: resetURL})
}

func (n *fakeNotifier) SendEmailChange(_ context.Context, to mailer.Recipient, token, confirmURL string) error {
	return n.record(sentNotice{Kind: "email_change", To: to, URL: confirmURL, Token: token})
}

func (n *fakeNotifier) last(t *testing.T) sentNotice {
	t.Helper()
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.sent) == 0 {
		t.Fatal("no notification sent")
	}
	return n.sent[len(n.sent)-1]
}

// tokenFrom extracts the token query parameter of a link.
func tokenFrom(t *testing.T, link string) string {
	t.Helper()
	i := strings.Index(link, "token=")
	if i < 0 {
		t.Fatalf("no token in %q", link)
	}
	return link[i+len("token="):]
}

type fakeImages struct {
	saved   map[string][]byte
	removed []string
	saveErr error
}

func (f *fakeImages) Save(_ context.Context, name, _ string, r io.Reader) (string, error) {
	if f.saveErr != nil {
		return "", f.saveErr
	}
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, r); err != nil {
		return "", err
	}
	if f.saved == nil {
		f.saved = map[string][]byte{}
	}
	url := "http://img.test/img/users/" + name
	f.saved[url] = buf.Bytes()
	return url, nil
}

func (f *fakeImages) Remove(_ context.Context, url string) error {
	f.removed = append(f.removed, url)
	return nil
}

type fakeIndex struct {
	docs    map[string]entity.PublicAccount
	results []entity.PublicAccount
	err     error
}

func (f *fakeIndex) Index(_ context.Context, a *entity.Account) error {
	if f.docs == nil {
		f.docs = map[string]entity.PublicAccount{}
	}
	f.docs[a.ID] = a.Public()
	return nil
}

func (f *fakeIndex) Remove(_ context.Context, id string) error {
	delete(f.docs, id)
	return nil
}

func (f *fakeIndex) SearchDrivers(_ context.Context, _ string, size int) ([]entity.PublicAccount, error) {
	if f.err != nil {
		return nil, f.err
	}
	if len(f.results) > size {
		return f.results[:size], nil
	}
	return f.results, nil
}

var errSMTP = errors.New("smtp: 421 service not available")

type authFixture struct {
	svc      *AuthService
	repo     *memRepo
	notifier *fakeNotifier
	images   *fakeImages
	index    *fakeIndex
	clock    *clock
}

func newAuthFixture(t *testing.T) *authFixture {
	t.Helper()
	clk := newClock()
	r := newMemRepo(clk.Now)
	n := &fakeNotifier{}
	imgs := &fakeImages{}
	idx := &fakeIndex{}
	jwtm := helpers.NewJWTManager("test-secret", 90*24*time.Hour)
	jwtm.Now = clk.Now

	svc := NewAuthService(r, helpers.NewBcryptHasher(bcrypt.MinCost), jwtm, n, imgs, idx, nil, AuthConfig{
		AccountExpiry:   24 * time.Hour,
		VerifyTTL:       24 * time.Hour,
		EmailChangeTTL:  10 * time.Minute,
		ResetTTL:        10 * time.Minute,
		VerifyURL:       "http://app.test/active-account",
		ResetURL:        "http://app.test/reset-password",
		ChangeEmailURL:  "http://app.test/verify-email",
		DefaultImageURL: "http://img.test/img/users/default.jpg",
	})
	svc.Now = clk.Now
	return &authFixture{svc: svc, repo: r, notifier: n, images: imgs, index: idx, clock: clk}
}

func validSignup(email string) SignupInput {
	return SignupInput{Name: "Robert Toe", Email: email, Password: "password123", ConfirmPassword: "password123"}
}

// signupVerified creates an account and activates it, returning its session.
func (f *authFixture) signupVerified(t *testing.T, email string) *Session {
	t.Helper()
	if _, err := f.svc.Signup(context.Background(), validSignup(email)); err != nil {
		t.Fatalf("signup: %v", err)
	}
	sess, err := f.svc.VerifyAccount(context.Background(), tokenFrom(t, f.notifier.last(t).URL))
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	return sess
}
