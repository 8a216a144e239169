package middleware

import (
	"Orbit/pkg/log"
	"Orbit/pkg/utils"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// GinZap 请求日志，5xx 记为 error
func GinZap() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		c.Next()

		fields := []zap.Field{
			zap.Int("status", c.Writer.Status()),
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.String("query", query),
			zap.String("ip", c.ClientIP()),
			zap.Duration("latency", time.Since(start)),
		}
		if uid, ok := c.Get("user_id"); ok {
			fields = append(fields, zap.Any("user_id", uid))
		}
		if len(c.Errors) > 0 {
			fields = append(fields, zap.String("errors", c.Errors.String()))
		}

		if c.Writer.Status() >= http.StatusInternalServerError {
			log.L.Error("request", fields...)
			return
		}
		log.L.Info("request", fields...)
	}
}

// Recovery panic 时记录堆栈并返回 500
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				log.L.Error("panic recovered",
					zap.String("path", c.Request.URL.Path),
					zap.String("stack", utils.PanicTrace(r)),
				)
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"code": 500, "msg": "系统异常"})
			}
		}()
		c.Next()
	}
}
