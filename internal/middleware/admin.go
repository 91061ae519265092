package middleware

import (
	"crypto/subtle"
	"net/http"

	"github.com/gin-gonic/gin"
)

const HeaderOpsKey = "X-Ops-Key"

// OpsKeyMiddleware guards the order routes, which sign with the process key.
func OpsKeyMiddleware(key string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if key == "" {
			c.JSON(http.StatusForbidden, gin.H{"error": "ops key not configured"})
			c.Abort()
			return
		}
		if subtle.ConstantTimeCompare([]byte(c.GetHeader(HeaderOpsKey)), []byte(key)) != 1 {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid ops key"})
			c.Abort()
			return
		}
		c.Next()
	}
}
