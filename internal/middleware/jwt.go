package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/florrin/calagenda/internal/models"
	"github.com/florrin/calagenda/internal/service"
	appErrors "github.com/florrin/calagenda/pkg/errors"
	"github.com/florrin/calagenda/pkg/response"
)

// ContextUserKey is the gin context key storing JWT claims.
const ContextUserKey = "currentUser"

// JWT protects routes by requiring a valid operator access token.
func JWT(authService *service.AuthService) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			response.Error(c, appErrors.ErrUnauthorized)
			c.Abort()
			return
		}

		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			response.Error(c, appErrors.Clone(appErrors.ErrUnauthorized, "invalid authorization header"))
			c.Abort()
			return
		}

		claims, err := authService.ValidateToken(parts[1])
		if err != nil {
			response.Error(c, err)
			c.Abort()
			return
		}

		c.Set(ContextUserKey, claims)
		c.Next()
	}
}

// CurrentPubkey returns the authenticated operator pubkey, if any.
func CurrentPubkey(c *gin.Context) (string, bool) {
	value, exists := c.Get(ContextUserKey)
	if !exists {
		return "", false
	}
	claims, ok := value.(*models.JWTClaims)
	if !ok {
		return "", false
	}
	return claims.Pubkey, true
}
