package middleware

import (
	"net/url"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/hanningtontech/nurse-connect-app-sub000/pkg/logger"
)

// Logger HTTP 요청 로깅 미들웨어
func Logger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		c.Next()

		latency := time.Since(start)
		status := c.Writer.Status()

		fields := []interface{}{
			"method", c.Request.Method,
			"path", path,
			"query", redactToken(query),
			"status", status,
			"latency", latency,
			"ip", c.ClientIP(),
		}
		if playerID, ok := PlayerID(c); ok {
			fields = append(fields, "playerId", playerID)
		}
		if len(c.Errors) > 0 {
			fields = append(fields, "errors", c.Errors.String())
		}

		switch {
		case status >= 500:
			logger.Error("HTTP Request", fields...)
		case status >= 400:
			logger.Warn("HTTP Request", fields...)
		default:
			logger.Info("HTTP Request", fields...)
		}
	}
}

// redactToken WebSocket 쿼리 토큰은 로그에 남기지 않음
func redactToken(rawQuery string) string {
	if rawQuery == "" {
		return rawQuery
	}
	values, err := url.ParseQuery(rawQuery)
	if err != nil || !values.Has("token") {
		return rawQuery
	}
	values.Set("token", "REDACTED")
	return values.Encode()
}
