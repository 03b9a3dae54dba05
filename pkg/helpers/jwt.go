package helpers

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	sessionAudience = "session"
	emailAudience   = "email-verification"
)

var ErrTokenExpired = errors.New("token expired")

// JWTManager issues and validates session tokens and email verification tokens.
// Both are HS256 with one secret; the audience keeps them apart.
type JWTManager struct {
	Secret     []byte
	SessionTTL time.Duration
	Now        func() time.Time
}

func NewJWTManager(secret string, sessionTTL time.Duration) *JWTManager {
	return &JWTManager{Secret: []byte(secret), SessionTTL: sessionTTL}
}

// SessionClaims carry the account id in sub and the issue time in iat.
type SessionClaims struct {
	jwt.RegisteredClaims
}

func (c *SessionClaims) AccountID() string { return c.Subject }

func (c *SessionClaims) Issued() time.Time {
	if c.IssuedAt == nil {
		return time.Time{}
	}
	return c.IssuedAt.Time
}

type EmailClaims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

func (m *JWTManager) now() time.Time {
	if m.Now != nil {
		return m.Now()
	}
	return time.Now()
}

func (m *JWTManager) GenerateSessionToken(accountID string) (string, time.Time, error) {
	now := m.now()
	exp := now.Add(m.SessionTTL)
	claims := &SessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   accountID,
			Audience:  jwt.ClaimStrings{sessionAudience},
			ExpiresAt: jwt.NewNumericDate(exp),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	s, err := t.SignedString(m.Secret)
	return s, exp, err
}

func (m *JWTManager) GenerateEmailToken(email string, ttl time.Duration) (string, error) {
	now := m.now()
	claims := &EmailClaims{
		Email: email,
		RegisteredClaims: jwt.RegisteredClaims{
			Audience:  jwt.ClaimStrings{emailAudience},
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return t.SignedString(m.Secret)
}

func (m *JWTManager) ParseSessionToken(tokenStr string) (*SessionClaims, error) {
	claims := &SessionClaims{}
	if err := m.parse(tokenStr, claims, sessionAudience); err != nil {
		return nil, err
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return nil, errors.New("token has no subject")
	}
	return claims, nil
}

func (m *JWTManager) ParseEmailToken(tokenStr string) (string, error) {
	claims := &EmailClaims{}
	if err := m.parse(tokenStr, claims, emailAudience); err != nil {
		return "", err
	}
	if strings.TrimSpace(claims.Email) == "" {
		return "", errors.New("token has no email claim")
	}
	return claims.Email, nil
}

func (m *JWTManager) parse(tokenStr string, claims jwt.Claims, audience string) error {
	tkn, err := jwt.ParseWithClaims(tokenStr, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return m.Secret, nil
	},
		jwt.WithAudience(audience),
		jwt.WithTimeFunc(m.now),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return ErrTokenExpired
		}
		return err
	}
	if !tkn.Valid {
		return errors.New("invalid token")
	}
	return nil
}
