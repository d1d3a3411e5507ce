package middlewares

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/akylbek/payment-system/booking-verification/internal/auth"
)

const actorKey = "actor"

func JWTAuth(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		h := c.GetHeader("Authorization")
		if !strings.HasPrefix(h, "Bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
			return
		}
		claims, err := auth.ParseValidate(secret, strings.TrimPrefix(h, "Bearer "))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}
		c.Set(actorKey, claims.Actor())
		c.Next()
	}
}

// Actor returns the actor set by JWTAuth, or the zero Actor.
func Actor(c *gin.Context) auth.Actor {
	v, _ := c.Get(actorKey)
	actor, _ := v.(auth.Actor)
	return actor
}
