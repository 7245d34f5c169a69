package ratelimit

import (
	"context"
	"net/http"
	"time"

	"ab-caller/internal/auth"
	"ab-caller/pkg/logger"

	"github.com/gin-gonic/gin"
)

// LimitDispatch holds one slot per request for the calling operator.
// Limiter errors fail open: dispatch is more important than the cap.
func LimitDispatch(l Limiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		key, err := auth.UserID(c.Request.Context())
		if err != nil {
			key = "ip:" + c.ClientIP()
		}

		ok, err := l.Acquire(c.Request.Context(), key)
		if err != nil {
			logger.FromGin(c).Warn("dispatch limiter unavailable", "err", err)
			c.Next()
			return
		}
		if !ok {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "too many concurrent dispatches"})
			return
		}

		defer func() {
			// Release even if the client went away.
			ctx, cancel := context.WithTimeout(context.WithoutCancel(c.Request.Context()), 2*time.Second)
			defer cancel()
			if err := l.Release(ctx, key); err != nil {
				logger.FromGin(c).Warn("dispatch slot release failed", "err", err)
			}
		}()
		c.Next()
	}
}
