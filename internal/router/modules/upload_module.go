package modules

import (
	"github.com/gin-gonic/gin"

	"github.com/oksasatya/driver-desk/internal/domain/entity"
	handlers "github.com/oksasatya/driver-desk/internal/interface/http"
	"github.com/oksasatya/driver-desk/internal/interface/httperr"
	"github.com/oksasatya/driver-desk/internal/interface/middleware"
)

// UploadModule wires the driver sheet upload under /v1/up.
type UploadModule struct {
	Handler *handlers.UploadHandler
	Protect gin.HandlerFunc
	Errs    httperr.Writer
}

func NewUploadModule(h *handlers.UploadHandler, protect gin.HandlerFunc, errs httperr.Writer) *UploadModule {
	return &UploadModule{Handler: h, Protect: protect, Errs: errs}
}

func (m *UploadModule) Register(rg *gin.RouterGroup) {
	up := rg.Group("/v1/up", m.Protect)
	up.GET("/get-driver-calculation", m.Handler.Latest)
	up.POST("/upload-excel", middleware.Restrict(m.Errs, entity.RoleAdmin), m.Handler.Upload)
}
