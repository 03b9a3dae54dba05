package modules

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/oksasatya/driver-desk/internal/container"
	handlers "github.com/oksasatya/driver-desk/internal/interface/http"
	"github.com/oksasatya/driver-desk/internal/interface/middleware"
)

// AuthModule wires the account lifecycle routes under /v1/users.
// Public: signup, login, logout, active-account, forgot-password, reset-password
// Protected: auth, change-email, verify-email, update-password
type AuthModule struct {
	Handler *handlers.AuthHandler
	Protect gin.HandlerFunc
}

func NewAuthModule(h *handlers.AuthHandler, protect gin.HandlerFunc) *AuthModule {
	return &AuthModule{Handler: h, Protect: protect}
}

func (m *AuthModule) Register(rg *gin.RouterGroup) {
	store := container.RateLimitStore()
	// tighter per-route limits on the endpoints that send mail or check passwords
	loginLimiter := middleware.RateLimit(store, 10, time.Minute, middleware.KeyByIPAndPath(), nil)
	mailLimiter := middleware.RateLimit(store, 5, time.Minute, middleware.KeyByIPAndPath(), nil)

	users := rg.Group("/v1/users")
	users.POST("/signup", mailLimiter, m.Handler.Signup)
	users.POST("/login", loginLimiter, m.Handler.Login)
	users.POST("/logout", m.Handler.Logout)
	users.GET("/active-account/:token", m.Handler.VerifyAccount)
	users.POST("/forgot-password", mailLimiter, m.Handler.ForgotPassword)
	users.PATCH("/reset-password/:resetToken", m.Handler.ResetPassword)

	auth := users.Group("")
	auth.Use(m.Protect)
	{
		auth.GET("/auth", m.Handler.Me)
		auth.POST("/change-email", mailLimiter, m.Handler.RequestEmailChange)
		auth.GET("/verify-email/:token", m.Handler.ChangeEmail)
		auth.PATCH("/update-password", m.Handler.UpdatePassword)
	}
}
