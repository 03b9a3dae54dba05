package modules

import (
	"expvar"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/oksasatya/driver-desk/internal/interface/middleware"
)

// DebugModule exposes expvar and Prometheus metrics to private networks only.
type DebugModule struct {
	Metrics *middleware.Metrics
}

func NewDebugModule(m *middleware.Metrics) *DebugModule { return &DebugModule{Metrics: m} }

func (m *DebugModule) Register(rg *gin.RouterGroup) {
	dbg := rg.Group("/debug", privateOnly())
	dbg.GET("/vars", gin.WrapH(expvar.Handler()))
	if m.Metrics != nil {
		dbg.GET("/metrics", gin.WrapH(m.Metrics.Expose()))
	}
}

func privateOnly() gin.HandlerFunc {
	allow := middleware.AllowPrivateIP()
	return func(c *gin.Context) {
		if !allow(c) {
			c.AbortWithStatus(http.StatusNotFound)
			return
		}
		c.Next()
	}
}
