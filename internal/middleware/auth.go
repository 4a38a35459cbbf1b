package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/attendtrack/backend/internal/auth"
	"github.com/attendtrack/backend/pkg/response"
)

// ContextIdentity is the gin context key for the authenticated identity.
const ContextIdentity = "identity"

// HeaderDeviceID carries the client's device identifier for device binding.
const HeaderDeviceID = "X-Device-Id"

// Identity is the immutable authenticated caller: resolved once by the Auth
// middleware and only read downstream.
type Identity struct {
	UserID   uuid.UUID
	Email    string
	Role     string
	DeviceID string // device id from the token, if any
}

// CurrentIdentity returns the identity set by the Auth middleware.
func CurrentIdentity(c *gin.Context) (Identity, bool) {
	v, ok := c.Get(ContextIdentity)
	if !ok {
		return Identity{}, false
	}
	id, ok := v.(Identity)
	return id, ok
}

// Auth returns a middleware that authenticates via Authorization: Bearer or,
// failing that, a signed session cookie, and sets an Identity in the context.
func Auth(jwtService *auth.JWTService, cookieName string) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearerToken(c)
		if token == "" && cookieName != "" {
			token, _ = c.Cookie(cookieName)
		}
		if token == "" {
			response.Unauthorized(c, "authentication required")
			c.Abort()
			return
		}
		claims, err := jwtService.Validate(token)
		if err != nil {
			response.Unauthorized(c, "invalid or expired token")
			c.Abort()
			return
		}
		c.Set(ContextIdentity, Identity{
			UserID:   claims.UserID,
			Email:    claims.Email,
			Role:     claims.Role,
			DeviceID: claims.DeviceID,
		})
		c.Next()
	}
}

func bearerToken(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || parts[0] != "Bearer" {
		return ""
	}
	return parts[1]
}
