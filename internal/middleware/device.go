package middleware

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/attendtrack/backend/internal/auth"
	"github.com/attendtrack/backend/pkg/response"
)

// DeviceBinding returns a middleware that rejects requests whose device id
// conflicts with the device bound to the authenticated user. The device id is
// taken from the token claims, falling back to the X-Device-Id header. The
// first sighted device binds lazily; an unidentified request passes only when
// binding is disabled upstream (this middleware is not installed then).
func DeviceBinding(repo *auth.Repository, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		identity, ok := CurrentIdentity(c)
		if !ok {
			response.Unauthorized(c, "authentication required")
			c.Abort()
			return
		}

		deviceID := identity.DeviceID
		if deviceID == "" {
			deviceID = c.GetHeader(HeaderDeviceID)
		}
		if deviceID == "" {
			response.Forbidden(c, "device identification required")
			c.Abort()
			return
		}

		bound, err := repo.GetBoundDevice(c.Request.Context(), identity.UserID)
		if err != nil {
			logger.Error("device lookup failed", zap.Error(err), zap.String("user_id", identity.UserID.String()))
			response.Internal(c, "device lookup failed")
			c.Abort()
			return
		}
		if bound == nil {
			if err := repo.BindDevice(c.Request.Context(), identity.UserID, deviceID); err != nil {
				logger.Error("device bind failed", zap.Error(err), zap.String("user_id", identity.UserID.String()))
				response.Internal(c, "device bind failed")
				c.Abort()
				return
			}
			c.Next()
			return
		}
		if bound.DeviceID != deviceID {
			response.Forbidden(c, "device mismatch")
			c.Abort()
			return
		}
		c.Next()
	}
}
