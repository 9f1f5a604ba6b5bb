package httpapi

import (
	"net/http"
	"strconv"
	"time"

	"support-console/pkg/logger"
	"support-console/pkg/utils"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

// RateLimit enforces a fixed window of limit requests per client IP per
// route name. A nil client or a Redis error fails open: dropping requests
// because the limiter is down would be a self-inflicted outage.
func RateLimit(rdb *redis.Client, name string, limit int, window time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		if rdb == nil {
			c.Next()
			return
		}

		key := "rl:" + name + ":" + c.ClientIP()
		res, err := utils.AllowRate(c.Request.Context(), rdb, key, limit, window)
		if err != nil {
			logger.FromGin(c).Warn("rate limiter unavailable", "route", name, "err", err)
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(limit))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))
		if !res.Allowed {
			retryAfter := int(res.RetryAfter / time.Second)
			if retryAfter < 1 {
				retryAfter = 1
			}
			c.Header("Retry-After", strconv.Itoa(retryAfter))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "rate limit exceeded"})
			return
		}
		c.Next()
	}
}
