package middleware

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"shortlink-platform/internal/config"
	"shortlink-platform/internal/ratelimit"
)

// RateLimit 写接口的准入控制中间件
// 主体是按客户端标识的固定窗口计数；global_rps 配置后再套一层
// 全局令牌桶兜底。重定向路径不挂载本中间件。
func RateLimit(limitConfig *config.Limit) gin.HandlerFunc {
	if !limitConfig.Enabled {
		return func(c *gin.Context) {
			c.Next()
		}
	}

	limiter := ratelimit.New(limitConfig.WindowSeconds, limitConfig.Requests, limitConfig.Burst)

	var global *rate.Limiter
	if limitConfig.GlobalRPS > 0 {
		globalBurst := int(limitConfig.GlobalRPS)
		if globalBurst < 1 {
			globalBurst = 1
		}
		global = rate.NewLimiter(rate.Limit(limitConfig.GlobalRPS), globalBurst)
	}

	return func(c *gin.Context) {
		if global != nil && !global.Allow() {
			c.Header("Retry-After", "1")
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":       "请求过于频繁，请稍后再试",
				"retry_after": 1,
			})
			return
		}

		decision := limiter.Check(ratelimit.Identity(c.Request))
		if !decision.Allowed {
			retryAfter := int(decision.RetryAfter.Seconds())
			if retryAfter < 1 {
				retryAfter = 1
			}
			c.Header("Retry-After", strconv.Itoa(retryAfter))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":       "请求过于频繁，请稍后再试",
				"retry_after": retryAfter,
			})
			return
		}

		c.Next()
	}
}
