package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/openbadges/backend/pkg/response"
)

// RequireStaff returns a middleware that allows only staff users.
func RequireStaff() gin.HandlerFunc {
	return func(c *gin.Context) {
		staffVal, ok := c.Get(ContextIsStaff)
		if !ok {
			response.Unauthorized(c, "missing user context")
			c.Abort()
			return
		}
		if staff, _ := staffVal.(bool); !staff {
			response.Forbidden(c, "insufficient permissions")
			c.Abort()
			return
		}
		c.Next()
	}
}
