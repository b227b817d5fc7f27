package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/yourusername/keyserver-api/internal/observability/logger"
)

// Logging пишет по одной записи на запрос и кладёт в контекст запроса
// логгер с request_id, method и path для сервисов и хендлеров.
// Путь логируется шаблоном маршрута, чтобы значения ключей не попадали в логи.
func Logging() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}

		reqLog := logger.L().With(
			logger.RequestID(GetRequestID(c)),
			logger.Method(c.Request.Method),
			logger.Path(path),
		)
		c.Request = c.Request.WithContext(logger.ToContext(c.Request.Context(), reqLog))

		c.Next()

		status := c.Writer.Status()
		fields := []zap.Field{
			logger.Status(status),
			logger.DurationMs(time.Since(start).Milliseconds()),
			logger.ClientIP(c.ClientIP()),
		}
		if len(c.Errors) > 0 {
			fields = append(fields, zap.String("errors", c.Errors.String()))
		}

		switch {
		case status >= 500:
			reqLog.Error("request failed", fields...)
		case status >= 400:
			reqLog.Warn("request completed with client error", fields...)
		default:
			reqLog.Info("request completed", fields...)
		}
	}
}
