package modules

import (
	"github.com/gin-gonic/gin"

	"github.com/oksasatya/driver-desk/internal/domain/entity"
	handlers "github.com/oksasatya/driver-desk/internal/interface/http"
	"github.com/oksasatya/driver-desk/internal/interface/httperr"
	"github.com/oksasatya/driver-desk/internal/interface/middleware"
)

// UserModule wires the driver directory and account administration.
// Protected: get-all-drivers
// Admin: search-drivers, set-role, deactivate
type UserModule struct {
	Handler *handlers.UserHandler
	Protect gin.HandlerFunc
	Errs    httperr.Writer
}

func NewUserModule(h *handlers.UserHandler, protect gin.HandlerFunc, errs httperr.Writer) *UserModule {
	return &UserModule{Handler: h, Protect: protect, Errs: errs}
}

func (m *UserModule) Register(rg *gin.RouterGroup) {
	users := rg.Group("/v1/users", m.Protect)
	users.GET("/get-all-drivers", m.Handler.ListDrivers)

	admin := users.Group("", middleware.Restrict(m.Errs, entity.RoleAdmin))
	{
		admin.GET("/search-drivers", m.Handler.SearchDrivers)
		admin.POST("/set-role", m.Handler.SetRole)
		admin.DELETE("/deactivate", m.Handler.Deactivate)
	}
}
