package middleware

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/oksasatya/driver-desk/internal/application"
	"github.com/oksasatya/driver-desk/internal/domain/entity"
	"github.com/oksasatya/driver-desk/internal/interface/httperr"
)

const principalKey = "principal"

// Authenticator resolves session tokens; *application.AuthService satisfies it.
type Authenticator interface {
	Protect(ctx context.Context, token string) (*application.Principal, error)
}

// Protect requires a valid session and stores the resolved principal in the
// Gin context, together with accountID for rate-limit keys and logs.
func Protect(auth Authenticator, errs httperr.Writer) gin.HandlerFunc {
	return func(c *gin.Context) {
		p, err := auth.Protect(c.Request.Context(), SessionToken(c))
		if err != nil {
			errs.Write(c, err)
			return
		}
		c.Set(principalKey, p)
		c.Set("accountID", p.Account.ID)
		c.Next()
	}
}

// Restrict must run after Protect; it lets through only the listed roles.
func Restrict(errs httperr.Writer, roles ...entity.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := application.RequireRole(PrincipalFrom(c), roles...); err != nil {
			errs.Write(c, err)
			return
		}
		c.Next()
	}
}

// PrincipalFrom returns the principal set by Protect, or nil.
func PrincipalFrom(c *gin.Context) *application.Principal {
	v, ok := c.Get(principalKey)
	if !ok {
		return nil
	}
	p, _ := v.(*application.Principal)
	return p
}
