// Package middleware 开发服务器的gin中间件。
package middleware

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	apperrors "github.com/wfunc/board-sync/internal/errors"
	"go.uber.org/zap"
)

// 请求头与上下文键
const (
	HeaderPlayer    = "X-Player"
	HeaderRequestID = "X-Request-ID"

	contextUsername  = "username"
	contextRequestID = "requestID"
)

// RequirePlayer 要求请求携带玩家身份（X-Player，WebSocket 握手可用 ?player=）
func RequirePlayer() gin.HandlerFunc {
	return func(c *gin.Context) {
		username := extractPlayer(c)
		if username == "" {
			requestID, _ := GetRequestID(c)
			c.JSON(http.StatusUnauthorized, apperrors.NewErrorResponse(
				apperrors.New(apperrors.ErrInvalidParam, "缺少玩家身份"), requestID))
			c.Abort()
			return
		}

		c.Set(contextUsername, username)
		c.Next()
	}
}

// extractPlayer 从请求中提取玩家名
func extractPlayer(c *gin.Context) string {
	if name := strings.TrimSpace(c.GetHeader(HeaderPlayer)); name != "" {
		return name
	}
	return strings.TrimSpace(c.Query("player"))
}

// RequestID 沿用或生成请求ID并回写响应头
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader(HeaderRequestID)
		if requestID == "" {
			requestID = uuid.New().String()
		}
		c.Set(contextRequestID, requestID)
		c.Header(HeaderRequestID, requestID)
		c.Next()
	}
}

// AccessLog 请求日志
func AccessLog(l *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		requestID, _ := GetRequestID(c)
		l.Info("HTTP请求",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
			zap.String("request_id", requestID),
		)
	}
}

// GetUsername 从上下文获取玩家名
func GetUsername(c *gin.Context) (string, bool) {
	if username, exists := c.Get(contextUsername); exists {
		if name, ok := username.(string); ok {
			return name, true
		}
	}
	return "", false
}

// GetRequestID 从上下文获取请求ID
func GetRequestID(c *gin.Context) (string, bool) {
	if requestID, exists := c.Get(contextRequestID); exists {
		if id, ok := requestID.(string); ok {
			return id, true
		}
	}
	return "", false
}
