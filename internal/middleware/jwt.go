package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/openbadges/backend/internal/auth"
	"github.com/openbadges/backend/pkg/response"
)

const (
	// ContextUserID is the key for user ID in gin context.
	ContextUserID = "user_id"
	// ContextUserEmail is the key for user email in gin context.
	ContextUserEmail = "user_email"
	// ContextIsStaff is the key for the staff flag in gin context.
	ContextIsStaff = "is_staff"
	// ContextIsPlaceAdmin is the key for the place-admin flag in gin context.
	ContextIsPlaceAdmin = "is_place_admin"
)

// JWT returns a middleware that validates JWT and sets user claims in context.
func JWT(jwtService *auth.JWTService) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			response.Unauthorized(c, "missing authorization header")
			c.Abort()
			return
		}
		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			response.Unauthorized(c, "invalid authorization header")
			c.Abort()
			return
		}
		claims, err := jwtService.Validate(parts[1])
		if err != nil {
			response.Unauthorized(c, "invalid or expired token")
			c.Abort()
			return
		}
		c.Set(ContextUserID, claims.UserID)
		c.Set(ContextUserEmail, claims.Email)
		c.Set(ContextIsStaff, claims.IsStaff)
		c.Set(ContextIsPlaceAdmin, claims.IsPlaceAdmin)
		c.Next()
	}
}

// OptionalJWT sets user claims in context when a valid bearer token is
// present, and continues anonymously otherwise.
func OptionalJWT(jwtService *auth.JWTService) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		parts := strings.SplitN(header, " ", 2)
		if len(parts) == 2 && parts[0] == "Bearer" {
			if claims, err := jwtService.Validate(parts[1]); err == nil {
				c.Set(ContextUserID, claims.UserID)
				c.Set(ContextUserEmail, claims.Email)
				c.Set(ContextIsStaff, claims.IsStaff)
				c.Set(ContextIsPlaceAdmin, claims.IsPlaceAdmin)
			}
		}
		c.Next()
	}
}
