package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/oksasatya/driver-desk/internal/application"
	"github.com/oksasatya/driver-desk/internal/domain/entity"
	"github.com/oksasatya/driver-desk/internal/interface/httperr"
	"github.com/oksasatya/driver-desk/internal/interface/middleware"
	"github.com/oksasatya/driver-desk/pkg/response"
)

// AccountUseCases is implemented by *application.AccountService.
type AccountUseCases interface {
	SetRole(ctx context.Context, p *application.Principal, email, role string) (*entity.Account, error)
	ListDrivers(ctx context.Context) ([]entity.PublicAccount, error)
	SearchDrivers(ctx context.Context, q string, size int) ([]entity.PublicAccount, error)
	Deactivate(ctx context.Context, p *application.Principal, email string) error
}

var _ AccountUseCases = (*application.AccountService)(nil)

type UserHandler struct {
	Svc  AccountUseCases
	Errs httperr.Writer
}

func NewUserHandler(svc AccountUseCases, errs httperr.Writer) *UserHandler {
	return &UserHandler{Svc: svc, Errs: errs}
}

type setRoleRequest struct {
	Email string `json:"email" binding:"required"`
	Role  string `json:"role" binding:"required"`
}

type deactivateRequest struct {
	Email string `json:"email" binding:"required"`
}

// ListDrivers GET /api/v1/users/get-all-drivers
func (h *UserHandler) ListDrivers(c *gin.Context) {
	drivers, err := h.Svc.ListDrivers(c.Request.Context())
	if err != nil {
		h.Errs.Write(c, err)
		return
	}
	response.Success(c, http.StatusOK, drivers, "", gin.H{"results": len(drivers)})
}

// SearchDrivers GET /api/v1/users/search-drivers?q=&size=
func (h *UserHandler) SearchDrivers(c *gin.Context) {
	size, _ := strconv.Atoi(c.Query("size"))
	drivers, err := h.Svc.SearchDrivers(c.Request.Context(), c.Query("q"), size)
	if err != nil {
		h.Errs.Write(c, err)
		return
	}
	response.Success(c, http.StatusOK, drivers, "", gin.H{"results": len(drivers)})
}

// SetRole POST /api/v1/users/set-role
func (h *UserHandler) SetRole(c *gin.Context) {
	var req setRoleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badPayload(c, err)
		return
	}
	acc, err := h.Svc.SetRole(c.Request.Context(), middleware.PrincipalFrom(c), req.Email, req.Role)
	if err != nil {
		h.Errs.Write(c, err)
		return
	}
	response.Success(c, http.StatusOK, acc.Public(), "role updated", nil)
}

// Deactivate DELETE /api/v1/users/deactivate
func (h *UserHandler) Deactivate(c *gin.Context) {
	var req deactivateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badPayload(c, err)
		return
	}
	if err := h.Svc.Deactivate(c.Request.Context(), middleware.PrincipalFrom(c), req.Email); err != nil {
		h.Errs.Write(c, err)
		return
	}
	response.Success[any](c, http.StatusOK, nil, "account deactivated", nil)
}
