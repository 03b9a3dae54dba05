package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/oksasatya/driver-desk/pkg/helpers"
)

// SessionToken reads the session token from "Authorization: Bearer <token>",
// falling back to the jwt cookie.
func SessionToken(c *gin.Context) string {
	if h := c.GetHeader("Authorization"); h != "" {
		if scheme, tok, ok := strings.Cut(h, " "); ok && strings.EqualFold(scheme, "Bearer") {
			if tok = strings.TrimSpace(tok); tok != "" {
				return tok
			}
		}
	}
	if tok, err := c.Cookie(helpers.SessionCookie); err == nil {
		return tok
	}
	return ""
}
