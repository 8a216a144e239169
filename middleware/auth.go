package middleware

import (
	"Orbit/config"
	"Orbit/pkg/context"
	"Orbit/pkg/jwt"
	"Orbit/pkg/log"
	"Orbit/pkg/response"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const refreshBuffer = 5 * time.Minute

func Auth(conf *config.Jwt) gin.HandlerFunc {
	secret := []byte(conf.Secret)
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			response.Abort(c, http.StatusUnauthorized, "缺少 Authorization")
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			response.Abort(c, http.StatusUnauthorized, "Authorization 格式错误")
			return
		}

		claims, err := jwt.ParseToken(secret, "access", parts[1])
		if err != nil {
			response.Abort(c, http.StatusUnauthorized, err.Error())
			return
		}
		// 快过期时在响应头下发新 token
		if jwt.ShouldRotateRefreshToken(claims, refreshBuffer) {
			newToken, err := jwt.GenerateToken(secret, claims.UserID, "access", conf.Expire())
			if err != nil {
				log.L.Warn("rotate access token failed", zap.Uint64("user_id", claims.UserID), zap.Error(err))
			} else {
				c.Header("X-New-Access-Token", newToken)
			}
		}
		c.Set(context.CtxUserID, claims.UserID)

		c.Next()
	}
}

// AdminOnly 必须在 Auth 之后使用
func AdminOnly(app *config.App) gin.HandlerFunc {
	return func(c *gin.Context) {
		uid, err := context.GetUserID(c)
		if err != nil || !app.IsAdmin(uid) {
			response.Abort(c, http.StatusForbidden, "无权限")
			return
		}
		c.Next()
	}
}
