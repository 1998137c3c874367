package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// ==================== 同步令牌认证 ====================

// SyncTokenAuth /internal/* 接口的共享令牌认证
// 令牌从 ?sync_token= 或 X-Sync-Token 头读取，常量时间比较
// expected 为空时拒绝所有请求
func SyncTokenAuth(expected string) gin.HandlerFunc {
	return func(c *gin.Context) {
		got := c.Query("sync_token")
		if got == "" {
			got = c.GetHeader("X-Sync-Token")
		}
		got = strings.TrimSpace(got)

		if expected == "" || got == "" {
			c.JSON(http.StatusUnauthorized, gin.H{
				"code":    401,
				"message": "未提供同步令牌",
			})
			c.Abort()
			return
		}

		if subtle.ConstantTimeCompare([]byte(got), []byte(expected)) != 1 {
			c.JSON(http.StatusUnauthorized, gin.H{
				"code":    401,
				"message": "同步令牌无效",
			})
			c.Abort()
			return
		}

		c.Next()
	}
}
