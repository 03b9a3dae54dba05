package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/oksasatya/driver-desk/internal/application"
	"github.com/oksasatya/driver-desk/internal/domain/apperror"
	"github.com/oksasatya/driver-desk/internal/domain/entity"
	"github.com/oksasatya/driver-desk/internal/interface/httperr"
	"github.com/oksasatya/driver-desk/internal/interface/middleware"
	"github.com/oksasatya/driver-desk/pkg/helpers"
	"github.com/oksasatya/driver-desk/pkg/response"
	"github.com/oksasatya/driver-desk/pkg/validation"
)

// MaxImageBytes caps avatar uploads.
const MaxImageBytes = 5 << 20

// AuthUseCases is implemented by *application.AuthService.
type AuthUseCases interface {
	Signup(ctx context.Context, in application.SignupInput) (*entity.Account, error)
	Login(ctx context.Context, email, password string) (*application.Session, error)
	VerifyAccount(ctx context.Context, token string) (*application.Session, error)
	RequestEmailChange(ctx context.Context, p *application.Principal, newEmail string) error
	ChangeEmail(ctx context.Context, p *application.Principal, token string) (*entity.Account, error)
	ForgotPassword(ctx context.Context, email string) error
	ResetPassword(ctx context.Context, secret, password, confirm string) (*application.Session, error)
	UpdatePassword(ctx context.Context, p *application.Principal, current, password, confirm string) (*application.Session, error)
}

var _ AuthUseCases = (*application.AuthService)(nil)

type AuthHandler struct {
	Svc     AuthUseCases
	Cookies *helpers.Manager
	Errs    httperr.Writer
}

func NewAuthHandler(svc AuthUseCases, cookies *helpers.Manager, errs httperr.Writer) *AuthHandler {
	return &AuthHandler{Svc: svc, Cookies: cookies, Errs: errs}
}

type signupRequest struct {
	Name            string `form:"name" json:"name"`
	Email           string `form:"email" json:"email"`
	Password        string `form:"password" json:"password"`
	ConfirmPassword string `form:"confirmPassword" json:"confirmPassword"`
}

type loginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type emailRequest struct {
	Email string `json:"email" binding:"required"`
}

type resetPasswordRequest struct {
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirmPassword"`
}

type updatePasswordRequest struct {
	CurrentPassword string `json:"currentPassword"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirmPassword"`
}

func badPayload(c *gin.Context, err error) {
	response.Error[any](c, http.StatusBadRequest, "invalid payload", validation.ToDetails(err))
}

// session sets the cookie and answers with the token and the public account.
func (h *AuthHandler) session(c *gin.Context, s *application.Session, msg string) {
	h.Cookies.SetSession(c, s.Token, s.ExpiresAt)
	response.WithToken(c, http.StatusOK, s.Token, s.Account.Public(), msg)
}

// Signup POST /api/v1/users/signup (multipart or JSON, optional "image" file)
func (h *AuthHandler) Signup(c *gin.Context) {
	var req signupRequest
	if err := c.ShouldBind(&req); err != nil {
		badPayload(c, err)
		return
	}
	in := application.SignupInput{
		Name:            req.Name,
		Email:           req.Email,
		Password:        req.Password,
		ConfirmPassword: req.ConfirmPassword,
	}

	if fh, err := c.FormFile("image"); err == nil {
		if !helpers.IsImageContentType(fh.Header.Get("Content-Type")) {
			h.Errs.Write(c, application.ErrNotImage)
			return
		}
		if fh.Size > MaxImageBytes {
			h.Errs.Write(c, apperror.New(apperror.KindValidation, "image must be 5MB or smaller"))
			return
		}
		f, err := fh.Open()
		if err != nil {
			h.Errs.Write(c, err)
			return
		}
		defer func() { _ = f.Close() }()
		in.Image = f
	}

	acc, err := h.Svc.Signup(c.Request.Context(), in)
	if err != nil {
		h.Errs.Write(c, err)
		return
	}
	response.Success(c, http.StatusCreated, acc.Public(), "check your email to activate your account", nil)
}

// Login POST /api/v1/users/login
func (h *AuthHandler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.Errs.Write(c, application.ErrEmptyFields)
		return
	}
	s, err := h.Svc.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		h.Errs.Write(c, err)
		return
	}
	h.session(c, s, "logged in")
}

// Logout POST /api/v1/users/logout
func (h *AuthHandler) Logout(c *gin.Context) {
	h.Cookies.Clear(c)
	response.Success[any](c, http.StatusOK, nil, "logged out", nil)
}

// VerifyAccount GET /api/v1/users/active-account/:token
func (h *AuthHandler) VerifyAccount(c *gin.Context) {
	s, err := h.Svc.VerifyAccount(c.Request.Context(), c.Param("token"))
	if err != nil {
		h.Errs.Write(c, err)
		return
	}
	h.session(c, s, "account activated")
}

// ForgotPassword POST /api/v1/users/forgot-password
func (h *AuthHandler) ForgotPassword(c *gin.Context) {
	var req emailRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.Errs.Write(c, application.ErrEmptyFields)
		return
	}
	if err := h.Svc.ForgotPassword(c.Request.Context(), req.Email); err != nil {
		h.Errs.Write(c, err)
		return
	}
	response.Success[any](c, http.StatusOK, nil, "token sent to email", nil)
}

// ResetPassword PATCH /api/v1/users/reset-password/:resetToken
func (h *AuthHandler) ResetPassword(c *gin.Context) {
	var req resetPasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badPayload(c, err)
		return
	}
	s, err := h.Svc.ResetPassword(c.Request.Context(), c.Param("resetToken"), req.Password, req.ConfirmPassword)
	if err != nil {
		h.Errs.Write(c, err)
		return
	}
	h.session(c, s, "password reset")
}

// Me GET /api/v1/users/auth
func (h *AuthHandler) Me(c *gin.Context) {
	p := middleware.PrincipalFrom(c)
	if p == nil {
		h.Errs.Write(c, apperror.ErrUnauthenticated)
		return
	}
	response.Success(c, http.StatusOK, p.Account.Public(), "", nil)
}

// RequestEmailChange POST /api/v1/users/change-email
func (h *AuthHandler) RequestEmailChange(c *gin.Context) {
	var req emailRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.Errs.Write(c, application.ErrEmptyFields)
		return
	}
	if err := h.Svc.RequestEmailChange(c.Request.Context(), middleware.PrincipalFrom(c), req.Email); err != nil {
		h.Errs.Write(c, err)
		return
	}
	response.Success[any](c, http.StatusOK, nil, "check your new email to confirm the change", nil)
}

// ChangeEmail GET /api/v1/users/verify-email/:token
func (h *AuthHandler) ChangeEmail(c *gin.Context) {
	acc, err := h.Svc.ChangeEmail(c.Request.Context(), middleware.PrincipalFrom(c), c.Param("token"))
	if err != nil {
		h.Errs.Write(c, err)
		return
	}
	response.Success(c, http.StatusOK, acc.Public(), "email changed", nil)
}

// UpdatePassword PATCH /api/v1/users/update-password
func (h *AuthHandler) UpdatePassword(c *gin.Context) {
	var req updatePasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badPayload(c, err)
		return
	}
	s, err := h.Svc.UpdatePassword(c.Request.Context(), middleware.PrincipalFrom(c), req.CurrentPassword, req.Password, req.ConfirmPassword)
	if err != nil {
		h.Errs.Write(c, err)
		return
	}
	h.session(c, s, "password updated")
}
