package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// RateLimit 全局令牌桶限速
// 串口链路每个轮询周期只能下发一条指令，请求面没必要放进来更多
func RateLimit(rps float64, burst int) gin.HandlerFunc {
	if rps <= 0 {
		rps = 50
	}
	if burst <= 0 {
		burst = int(rps) * 2
	}
	limiter := rate.NewLimiter(rate.Limit(rps), burst)
	return func(c *gin.Context) {
		if !limiter.Allow() {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "rate limit exceeded"})
			return
		}
		c.Next()
	}
}
