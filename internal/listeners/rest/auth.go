package rest

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

// bearerAuth rejects requests on /invoke* lacking a valid
// "Authorization: Bearer <token>" JWT signed with secret using any
// HMAC method (HS256, HS384 or HS512).
// Grounded on the teacher's internal/auth/middleware.go Middleware
// func, simplified: NEO6 has a single shared jwt_secret (spec §6),
// not per-user sessions/roles, so there is no claims-to-user lookup.
func bearerAuth(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"status": "error",
				"error":  "authorization header required",
			})
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"status": "error",
				"error":  "invalid authorization header format, use: Bearer <token>",
			})
			return
		}

		_, err := jwt.Parse(parts[1], func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
			}
			return []byte(secret), nil
		})
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"status":  "error",
				"error":   "invalid or expired token",
				"message": err.Error(),
			})
			return
		}

		c.Next()
	}
}
