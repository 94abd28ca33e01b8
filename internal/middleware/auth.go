package middleware

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"rtc-service/internal/auth"
)

// AuthMiddleware validates the Authorization header and stores the resolved
// identity on the request context.
func AuthMiddleware(authenticator *auth.Authenticator) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing authorization"})
			return
		}

		identity, err := authenticator.Authenticate(c.Request.Context(), header)
		if err != nil {
			status := http.StatusUnauthorized
			if errors.Is(err, auth.ErrAccountDisabled) {
				status = http.StatusForbidden
			}
			c.AbortWithStatusJSON(status, gin.H{"error": err.Error()})
			return
		}

		c.Set("identity", identity)
		c.Set("userID", identity.UserID)
		c.Next()
	}
}
