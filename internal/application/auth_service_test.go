package application

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oksasatya/driver-desk/internal/domain/apperror"
	"github.com/oksasatya/driver-desk/internal/domain/entity"
	"github.com/oksasatya/driver-desk/pkg/helpers"
)

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		img.Set(x, 0, color.RGBA{R: 200, A: 255})
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestSignup_CreatesUnverifiedDriverAndSendsWelcome(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()

	acc, err := f.svc.Signup(ctx, SignupInput{Name: "  Robert Toe ", Email: " Robert@Example.COM ", Password: "password123", ConfirmPassword: "password123"})
	require.NoError(t, err)

	assert.Equal(t, "Robert Toe", acc.Name)
	assert.Equal(t, "robert@example.com", acc.Email)
	assert.Equal(t, entity.RoleDriver, acc.Role)
	assert.Equal(t, entity.StatusUnverified, acc.Status())
	assert.Equal(t, "http://img.test/img/users/default.jpg", acc.ImageURL)
	assert.Nil(t, acc.PasswordChangedAt)
	require.NotNil(t, acc.ExpiresAt)
	assert.Equal(t, f.clock.Now().Add(24*time.Hour), *acc.ExpiresAt)
	assert.NotEqual(t, "password123", acc.PasswordHash)

	n := f.notifier.last(t)
	assert.Equal(t, "welcome", n.Kind)
	assert.Equal(t, "robert@example.com", n.To.Email)
	assert.True(t, strings.HasPrefix(n.URL, "http://app.test/active-account?token="))
}

func TestSignup_Validation(t *testing.T) {
	cases := map[string]SignupInput{
		"empty name":       {Email: "a@b.io", Password: "password123", ConfirmPassword: "password123"},
		"empty confirm":    {Name: "Robert", Email: "a@b.io", Password: "password123"},
		"mismatch":         {Name: "Robert", Email: "a@b.io", Password: "password123", ConfirmPassword: "password124"},
		"short name":       {Name: "Bob", Email: "a@b.io", Password: "password123", ConfirmPassword: "password123"},
		"long name":        {Name: strings.Repeat("x", 25), Email: "a@b.io", Password: "password123", ConfirmPassword: "password123"},
		"bad email":        {Name: "Robert", Email: "not-an-email", Password: "password123", ConfirmPassword: "password123"},
		"short password":   {Name: "Robert", Email: "a@b.io", Password: "short", ConfirmPassword: "short"},
		"whitespace email": {Name: "Robert", Email: "   ", Password: "password123", ConfirmPassword: "password123"},
	}
	for name, in := range cases {
		t.Run(name, func(t *testing.T) {
			f := newAuthFixture(t)
			_, err := f.svc.Signup(context.Background(), in)
			require.Error(t, err)
			assert.ErrorIs(t, err, apperror.ErrValidation)
			assert.Equal(t, 0, f.repo.count(), "no account may be persisted")
			assert.Empty(t, f.notifier.sent)
		})
	}
}

func TestSignup_Duplicate(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()
	_, err := f.svc.Signup(ctx, validSignup("dup@x.io"))
	require.NoError(t, err)

	_, err = f.svc.Signup(ctx, validSignup("DUP@x.io"))
	assert.ErrorIs(t, err, apperror.ErrDuplicate)
	assert.Equal(t, 1, f.repo.count())
}

func TestSignup_NotifierFailureRollsBackAndRemovesImage(t *testing.T) {
	f := newAuthFixture(t)
	f.notifier.err = errSMTP

	in := validSignup("fail@x.io")
	in.Image = bytes.NewReader(pngBytes(t, 40, 20))
	_, err := f.svc.Signup(context.Background(), in)

	require.Error(t, err)
	assert.ErrorIs(t, err, apperror.ErrNotification)
	assert.Equal(t, apperror.ErrNotification.Message, err.(*apperror.Error).Message)
	assert.Equal(t, 0, f.repo.count())
	require.Len(t, f.images.saved, 1)
	require.Len(t, f.images.removed, 1)
	for url := range f.images.saved {
		assert.Equal(t, url, f.images.removed[0])
	}
}

func TestSignup_NotifierFailureKeepsPlaceholder(t *testing.T) {
	f := newAuthFixture(t)
	f.notifier.err = errSMTP

	_, err := f.svc.Signup(context.Background(), validSignup("fail@x.io"))
	assert.ErrorIs(t, err, apperror.ErrNotification)
	assert.Empty(t, f.images.removed)
}

func TestSignup_ResizesAvatar(t *testing.T) {
	f := newAuthFixture(t)
	in := validSignup("pic@x.io")
	in.Image = bytes.NewReader(pngBytes(t, 120, 80))

	acc, err := f.svc.Signup(context.Background(), in)
	require.NoError(t, err)
	require.Contains(t, f.images.saved, acc.ImageURL)
	assert.Regexp(t, `/img/users/user-[0-9a-f]{16}-\d+\.jpeg$`, acc.ImageURL)

	cfg, format, err := image.DecodeConfig(bytes.NewReader(f.images.saved[acc.ImageURL]))
	require.NoError(t, err)
	assert.Equal(t, "jpeg", format)
	assert.Equal(t, helpers.AvatarSize, cfg.Width)
	assert.Equal(t, helpers.AvatarSize, cfg.Height)
}

func TestSignup_RejectsNonImage(t *testing.T) {
	f := newAuthFixture(t)
	in := validSignup("pic@x.io")
	in.Image = strings.NewReader("definitely not a picture")

	_, err := f.svc.Signup(context.Background(), in)
	assert.ErrorIs(t, err, apperror.ErrValidation)
	assert.Empty(t, f.images.saved)
	assert.Equal(t, 0, f.repo.count())
}

func TestLogin_BeforeVerificationFailsNotVerified(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()
	_, err := f.svc.Signup(ctx, validSignup("new@x.io"))
	require.NoError(t, err)

	_, err = f.svc.Login(ctx, "new@x.io", "password123")
	assert.ErrorIs(t, err, apperror.ErrNotVerified)
}

func TestLogin_EnumerationResistance(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()
	f.signupVerified(t, "known@x.io")

	_, errWrong := f.svc.Login(ctx, "known@x.io", "wrong-password")
	_, errUnknown := f.svc.Login(ctx, "nobody@x.io", "wrong-password")

	require.Error(t, errWrong)
	require.Error(t, errUnknown)
	assert.Equal(t, apperror.KindOf(errWrong), apperror.KindOf(errUnknown))
	assert.Equal(t, errWrong.Error(), errUnknown.Error())
	assert.ErrorIs(t, errWrong, apperror.ErrUnauthenticated)
}

func TestLogin_UnverifiedWrongPasswordLooksUnknown(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()
	_, err := f.svc.Signup(ctx, validSignup("new@x.io"))
	require.NoError(t, err)

	_, err = f.svc.Login(ctx, "new@x.io", "wrong-password")
	assert.ErrorIs(t, err, apperror.ErrUnauthenticated)
}

func TestLogin_Success(t *testing.T) {
	f := newAuthFixture(t)
	f.signupVerified(t, "ok@x.io")

	sess, err := f.svc.Login(context.Background(), " OK@x.io", "password123")
	require.NoError(t, err)
	assert.NotEmpty(t, sess.Token)
	assert.Equal(t, "ok@x.io", sess.Account.Email)

	p, err := f.svc.Protect(context.Background(), sess.Token)
	require.NoError(t, err)
	assert.Equal(t, sess.Account.ID, p.Account.ID)
}

func TestLogin_EmptyFields(t *testing.T) {
	f := newAuthFixture(t)
	_, err := f.svc.Login(context.Background(), "", "x")
	assert.ErrorIs(t, err, apperror.ErrValidation)
}

func TestVerifyAccount_TransitionsAndIsIdempotent(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()
	_, err := f.svc.Signup(ctx, validSignup("v@x.io"))
	require.NoError(t, err)
	tok := tokenFrom(t, f.notifier.last(t).URL)

	sess, err := f.svc.VerifyAccount(ctx, tok)
	require.NoError(t, err)
	assert.True(t, sess.Account.EmailVerified)
	assert.Nil(t, sess.Account.ExpiresAt)
	stored := f.repo.raw("v@x.io")
	assert.Equal(t, entity.StatusVerified, stored.Status())
	assert.Nil(t, stored.ExpiresAt)
	assert.Contains(t, f.index.docs, stored.ID)

	_, err = f.svc.Protect(ctx, sess.Token)
	require.NoError(t, err)

	f.clock.Advance(2 * time.Second)
	again, err := f.svc.VerifyAccount(ctx, tok)
	require.NoError(t, err)
	assert.Equal(t, sess.Account.ID, again.Account.ID)
	assert.NotEqual(t, sess.Token, again.Token)
}

func TestVerifyAccount_BadToken(t *testing.T) {
	f := newAuthFixture(t)
	_, err := f.svc.VerifyAccount(context.Background(), "garbage")
	assert.ErrorIs(t, err, apperror.ErrInvalidToken)
}

func TestVerifyAccount_ExpiredToken(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()
	_, err := f.svc.Signup(ctx, validSignup("late@x.io"))
	require.NoError(t, err)
	tok := tokenFrom(t, f.notifier.last(t).URL)

	f.clock.Advance(25 * time.Hour)
	_, err = f.svc.VerifyAccount(ctx, tok)
	assert.ErrorIs(t, err, apperror.ErrInvalidToken)
}

func TestVerifyAccount_ReapedAccountIsNotFound(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()
	_, err := f.svc.Signup(ctx, validSignup("gone@x.io"))
	require.NoError(t, err)

	// The token outlives the activation window; the row does not.
	tok, err := f.svc.JWT.GenerateEmailToken("gone@x.io", 48*time.Hour)
	require.NoError(t, err)

	f.clock.Advance(24*time.Hour + time.Second)
	n, err := f.svc.ReapExpired(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	_, err = f.svc.VerifyAccount(ctx, tok)
	assert.ErrorIs(t, err, apperror.ErrNotFound)
}

func TestSessionTokenIsNotAnEmailToken(t *testing.T) {
	f := newAuthFixture(t)
	sess := f.signupVerified(t, "x@x.io")

	_, err := f.svc.VerifyAccount(context.Background(), sess.Token)
	assert.ErrorIs(t, err, apperror.ErrInvalidToken)

	emailTok, err := f.svc.JWT.GenerateEmailToken("x@x.io", time.Hour)
	require.NoError(t, err)
	_, err = f.svc.Protect(context.Background(), emailTok)
	assert.ErrorIs(t, err, apperror.ErrInvalidToken)
}

func TestUpdatePassword_InvalidatesOlderTokens(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()
	old := f.signupVerified(t, "pw@x.io")

	p, err := f.svc.Protect(ctx, old.Token)
	require.NoError(t, err)

	f.clock.Advance(5 * time.Second)
	fresh, err := f.svc.UpdatePassword(ctx, p, "password123", "newpassword1", "newpassword1")
	require.NoError(t, err)
	require.NotNil(t, fresh.Account.PasswordChangedAt)

	_, err = f.svc.Protect(ctx, old.Token)
	assert.ErrorIs(t, err, apperror.ErrPasswordChanged)

	_, err = f.svc.Protect(ctx, fresh.Token)
	assert.NoError(t, err)

	_, err = f.svc.Login(ctx, "pw@x.io", "password123")
	assert.ErrorIs(t, err, apperror.ErrUnauthenticated)
	_, err = f.svc.Login(ctx, "pw@x.io", "newpassword1")
	assert.NoError(t, err)
}

func TestUpdatePassword_TokenFromSameSecondSurvives(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()
	sess := f.signupVerified(t, "same@x.io")
	p, err := f.svc.Protect(ctx, sess.Token)
	require.NoError(t, err)

	fresh, err := f.svc.UpdatePassword(ctx, p, "password123", "newpassword1", "newpassword1")
	require.NoError(t, err)
	_, err = f.svc.Protect(ctx, fresh.Token)
	assert.NoError(t, err)
}

func TestUpdatePassword_Failures(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()
	sess := f.signupVerified(t, "u@x.io")
	p, err := f.svc.Protect(ctx, sess.Token)
	require.NoError(t, err)

	_, err = f.svc.UpdatePassword(ctx, p, "not-current", "newpassword1", "newpassword1")
	assert.ErrorIs(t, err, apperror.ErrWrongPassword)

	_, err = f.svc.UpdatePassword(ctx, p, "password123", "password123", "password123")
	assert.ErrorIs(t, err, apperror.ErrValidation)

	_, err = f.svc.UpdatePassword(ctx, p, "password123", "newpassword1", "newpassword2")
	assert.ErrorIs(t, err, apperror.ErrValidation)

	_, err = f.svc.UpdatePassword(ctx, p, "password123", "short", "short")
	assert.ErrorIs(t, err, apperror.ErrValidation)

	_, err = f.svc.UpdatePassword(ctx, nil, "password123", "newpassword1", "newpassword1")
	assert.ErrorIs(t, err, apperror.ErrUnauthenticated)
}

func TestForgotAndResetPassword(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()
	f.signupVerified(t, "reset@x.io")

	require.NoError(t, f.svc.ForgotPassword(ctx, "Reset@x.io"))
	n := f.notifier.last(t)
	assert.Equal(t, "reset", n.Kind)
	secret := tokenFrom(t, n.URL)
	assert.Len(t, secret, 2*helpers.ResetSecretBytes)

	stored := f.repo.raw("reset@x.io")
	require.NotNil(t, stored.ResetTokenHash)
	assert.NotEqual(t, secret, *stored.ResetTokenHash, "plaintext must never be stored")
	assert.Equal(t, helpers.HashResetSecret(secret), *stored.ResetTokenHash)
	assert.Equal(t, f.clock.Now().Add(10*time.Minute), *stored.ResetTokenExpiresAt)

	f.clock.Advance(time.Minute)
	sess, err := f.svc.ResetPassword(ctx, secret, "brandnew123", "brandnew123")
	require.NoError(t, err)
	assert.NotEmpty(t, sess.Token)

	stored = f.repo.raw("reset@x.io")
	assert.Nil(t, stored.ResetTokenHash)
	assert.Nil(t, stored.ResetTokenExpiresAt)
	assert.NotNil(t, stored.PasswordChangedAt)

	_, err = f.svc.Login(ctx, "reset@x.io", "brandnew123")
	assert.NoError(t, err)
	_, err = f.svc.Login(ctx, "reset@x.io", "password123")
	assert.ErrorIs(t, err, apperror.ErrUnauthenticated)

	_, err = f.svc.ResetPassword(ctx, secret, "another123", "another123")
	assert.ErrorIs(t, err, apperror.ErrInvalidOrExpiredToken, "a secret is single use")
}

func TestResetPassword_ExpiredOrMismatched(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()
	f.signupVerified(t, "exp@x.io")
	require.NoError(t, f.svc.ForgotPassword(ctx, "exp@x.io"))
	secret := tokenFrom(t, f.notifier.last(t).URL)

	_, err := f.svc.ResetPassword(ctx, strings.Repeat("0", 64), "brandnew123", "brandnew123")
	assert.ErrorIs(t, err, apperror.ErrInvalidOrExpiredToken)

	f.clock.Advance(10*time.Minute + time.Second)
	_, err = f.svc.ResetPassword(ctx, secret, "brandnew123", "brandnew123")
	assert.ErrorIs(t, err, apperror.ErrInvalidOrExpiredToken)

	_, err = f.svc.Login(ctx, "exp@x.io", "password123")
	assert.NoError(t, err)
}

func TestForgotPassword_UnknownEmail(t *testing.T) {
	f := newAuthFixture(t)
	err := f.svc.ForgotPassword(context.Background(), "ghost@x.io")
	assert.ErrorIs(t, err, apperror.ErrNotFound)
}

func TestForgotPassword_NotifierFailureLeavesNoResetFields(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()
	f.signupVerified(t, "nf@x.io")

	f.notifier.err = errSMTP
	err := f.svc.ForgotPassword(ctx, "nf@x.io")
	assert.ErrorIs(t, err, apperror.ErrNotification)

	stored := f.repo.raw("nf@x.io")
	assert.Nil(t, stored.ResetTokenHash)
	assert.Nil(t, stored.ResetTokenExpiresAt)
}

func TestEmailChange(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()
	sess := f.signupVerified(t, "old@x.io")
	p, err := f.svc.Protect(ctx, sess.Token)
	require.NoError(t, err)

	require.NoError(t, f.svc.RequestEmailChange(ctx, p, " New@x.io "))
	n := f.notifier.last(t)
	assert.Equal(t, "email_change", n.Kind)
	assert.Equal(t, "new@x.io", n.To.Email)
	assert.Equal(t, n.Token, tokenFrom(t, n.URL))

	acc, err := f.svc.ChangeEmail(ctx, p, n.Token)
	require.NoError(t, err)
	assert.Equal(t, "new@x.io", acc.Email)
	assert.True(t, acc.EmailVerified, "verification state is untouched")
	assert.Equal(t, "new@x.io", f.index.docs[acc.ID].Email)

	_, err = f.svc.Login(ctx, "new@x.io", "password123")
	assert.NoError(t, err)
}

func TestEmailChange_Failures(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()
	sess := f.signupVerified(t, "a@x.io")
	f.signupVerified(t, "b@x.io")
	p, err := f.svc.Protect(ctx, sess.Token)
	require.NoError(t, err)

	assert.ErrorIs(t, f.svc.RequestEmailChange(ctx, p, "b@x.io"), apperror.ErrDuplicate)
	assert.ErrorIs(t, f.svc.RequestEmailChange(ctx, p, "nope"), apperror.ErrValidation)
	assert.ErrorIs(t, f.svc.RequestEmailChange(ctx, p, "a@x.io"), apperror.ErrValidation)

	_, err = f.svc.ChangeEmail(ctx, p, "garbage")
	assert.ErrorIs(t, err, apperror.ErrInvalidToken)

	tok, err := f.svc.JWT.GenerateEmailToken("b@x.io", 10*time.Minute)
	require.NoError(t, err)
	_, err = f.svc.ChangeEmail(ctx, p, tok)
	assert.ErrorIs(t, err, apperror.ErrDuplicate)

	tok, err = f.svc.JWT.GenerateEmailToken("c@x.io", 10*time.Minute)
	require.NoError(t, err)
	f.clock.Advance(11 * time.Minute)
	_, err = f.svc.ChangeEmail(ctx, p, tok)
	assert.ErrorIs(t, err, apperror.ErrInvalidToken)

	f.notifier.err = errSMTP
	assert.ErrorIs(t, f.svc.RequestEmailChange(ctx, p, "d@x.io"), apperror.ErrNotification)
}

func TestProtect(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()
	sess := f.signupVerified(t, "p@x.io")

	_, err := f.svc.Protect(ctx, "")
	assert.ErrorIs(t, err, apperror.ErrUnauthenticated)

	_, err = f.svc.Protect(ctx, "not.a.jwt")
	assert.ErrorIs(t, err, apperror.ErrInvalidToken)

	other := helpers.NewJWTManager("other-secret", time.Hour)
	forged, _, err := other.GenerateSessionToken(sess.Account.ID)
	require.NoError(t, err)
	_, err = f.svc.Protect(ctx, forged)
	assert.ErrorIs(t, err, apperror.ErrInvalidToken)

	require.NoError(t, f.repo.Delete(ctx, sess.Account.ID))
	_, err = f.svc.Protect(ctx, sess.Token)
	assert.ErrorIs(t, err, apperror.ErrUserGone)
}

func TestProtect_ExpiredSession(t *testing.T) {
	f := newAuthFixture(t)
	sess := f.signupVerified(t, "e@x.io")

	f.clock.Advance(91 * 24 * time.Hour)
	_, err := f.svc.Protect(context.Background(), sess.Token)
	assert.ErrorIs(t, err, apperror.ErrInvalidToken)
}

func TestRestrict(t *testing.T) {
	f := newAuthFixture(t)
	driver := &Principal{Account: &entity.Account{Role: entity.RoleDriver}}
	admin := &Principal{Account: &entity.Account{Role: entity.RoleAdmin}}

	assert.ErrorIs(t, f.svc.Restrict(driver, entity.RoleAdmin), apperror.ErrForbidden)
	assert.NoError(t, f.svc.Restrict(admin, entity.RoleAdmin))
	assert.NoError(t, f.svc.Restrict(driver, entity.RoleAdmin, entity.RoleDriver))
	assert.ErrorIs(t, f.svc.Restrict(nil, entity.RoleAdmin), apperror.ErrUnauthenticated)
}

func TestReapExpired_OnlyUnverifiedPastWindow(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()
	f.signupVerified(t, "kept@x.io")
	_, err := f.svc.Signup(ctx, validSignup("pending@x.io"))
	require.NoError(t, err)

	n, err := f.svc.ReapExpired(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	f.clock.Advance(24 * time.Hour)
	n, err = f.svc.ReapExpired(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
	assert.Nil(t, f.repo.raw("pending@x.io"))
	assert.NotNil(t, f.repo.raw("kept@x.io"))
}

func TestPasswordHasherRoundTrip(t *testing.T) {
	h := helpers.NewBcryptHasher(4)
	for _, p := range []string{"password123", "ünïcødé-pässwörd", strings.Repeat("a", 60)} {
		hash, err := h.Hash(p)
		require.NoError(t, err)
		assert.True(t, h.Compare(hash, p))
		assert.False(t, h.Compare(hash, p+"x"))
	}
}

func TestWithToken(t *testing.T) {
	assert.Equal(t, "http://a/b?token=x", withToken("http://a/b", "x"))
	assert.Equal(t, "http://a/b?lang=en&token=x", withToken("http://a/b?lang=en", "x"))
}
