// Package apperror carries the failure taxonomy shared by the application
// services and the HTTP layer.
package apperror

import (
	"errors"
	"net/http"
)

type Kind int

const (
	KindUnexpected Kind = iota
	KindValidation
	KindUnauthenticated
	KindNotVerified
	KindInvalidToken
	KindInvalidOrExpiredToken
	KindPasswordChanged
	KindUserGone
	KindForbidden
	KindWrongPassword
	KindNotFound
	KindDuplicate
	KindNotification
)

var kindNames = map[Kind]string{
	KindUnexpected:            "unexpected",
	KindValidation:            "validation",
	KindUnauthenticated:       "unauthenticated",
	KindNotVerified:           "not_verified",
	KindInvalidToken:          "invalid_token",
	KindInvalidOrExpiredToken: "invalid_or_expired_token",
	KindPasswordChanged:       "password_changed",
	KindUserGone:              "user_gone",
	KindForbidden:             "forbidden",
	KindWrongPassword:         "wrong_password",
	KindNotFound:              "not_found",
	KindDuplicate:             "duplicate",
	KindNotification:          "notification",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return "unknown"
}

// Status maps a kind onto the HTTP status reported to callers.
func (k Kind) Status() int {
	switch k {
	case KindValidation, KindDuplicate:
		return http.StatusBadRequest
	case KindUnauthenticated, KindNotVerified, KindInvalidToken, KindInvalidOrExpiredToken,
		KindPasswordChanged, KindUserGone, KindWrongPassword:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// Error is a classified failure. Message is safe to show to callers; Err is
// the underlying cause and stays server-side.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error of the same kind, so the sentinels below work with errors.Is.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return t.Kind == e.Kind
	}
	return false
}

func New(kind Kind, msg string) *Error { return &Error{Kind: kind, Message: msg} }

func Wrap(kind Kind, msg string, err error) *Error {
	return &Error{Kind: kind, Message: msg, Err: err}
}

// KindOf classifies any error; unclassified errors are unexpected.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnexpected
}

// Sentinels for errors.Is comparisons.
var (
	ErrValidation            = New(KindValidation, "validation failed")
	ErrUnauthenticated       = New(KindUnauthenticated, "you are not logged in")
	ErrNotVerified           = New(KindNotVerified, "account not activated")
	ErrInvalidToken          = New(KindInvalidToken, "your token is invalid")
	ErrInvalidOrExpiredToken = New(KindInvalidOrExpiredToken, "invalid token or has expired")
	ErrPasswordChanged       = New(KindPasswordChanged, "password changed recently, please log in again")
	ErrUserGone              = New(KindUserGone, "the account belonging to this token no longer exists")
	ErrForbidden             = New(KindForbidden, "you don't have permission to access this resource")
	ErrWrongPassword         = New(KindWrongPassword, "your current password is wrong")
	ErrNotFound              = New(KindNotFound, "not found")
	ErrDuplicate             = New(KindDuplicate, "already exists")
	ErrNotification          = New(KindNotification, "something went wrong in sending email, please try again later")
	ErrUnexpected            = New(KindUnexpected, "something went wrong")
)
