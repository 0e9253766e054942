package middlewares

import (
	"context"
	"net/http"
	"strings"

	"bitbucket.org/mmdatafocus/factory_backend/utils"
	"github.com/gin-gonic/gin"
)

// BusinessMiddleware resolves the tenant for the request from the
// X-Business-Id header. API routes cannot work without one; paths that carry
// their own tenant (pubsub push, health probes) are skipped.
func BusinessMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !strings.HasPrefix(c.Request.URL.Path, "/api/") {
			c.Next()
			return
		}

		businessId := strings.TrimSpace(c.Request.Header.Get("X-Business-Id"))
		if businessId == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "X-Business-Id header is required"})
			c.Abort()
			return
		}

		ctx := context.WithValue(c.Request.Context(), utils.ContextKeyBusinessId, businessId)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// OperatorMiddleware records who is acting for audit fields. The header is
// optional; mutations fall back to an empty actor.
func OperatorMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		operator := strings.TrimSpace(c.Request.Header.Get("X-Operator"))
		if operator == "" {
			c.Next()
			return
		}
		ctx := context.WithValue(c.Request.Context(), utils.ContextKeyUserName, operator)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}
