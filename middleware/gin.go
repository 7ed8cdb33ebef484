package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// GinClaimsKey is the gin context key holding *eduAuth.AccessClaims.
const GinClaimsKey = "claims"

// RequireAccess is the gin form of [Guard]. Claims are stored both under
// [GinClaimsKey] and in the request context.
func RequireAccess(validator AccessValidator) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := bearerToken(c.GetHeader("Authorization"))
		if !ok || validator == nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"code": "UNAUTHORIZED", "error": "unauthorized"})
			return
		}

		claims, err := validator.ValidateAccess(c.Request.Context(), token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"code": "UNAUTHORIZED", "error": "unauthorized"})
			return
		}

		c.Set(GinClaimsKey, claims)
		c.Request = c.Request.WithContext(WithClaims(c.Request.Context(), claims))
		c.Next()
	}
}
