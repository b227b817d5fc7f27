package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	// RequestIDHeader — заголовок, в котором передаётся идентификатор запроса
	RequestIDHeader = "X-Request-ID"
	requestIDKey    = "request_id"
)

// RequestID берёт X-Request-ID клиента или генерирует новый,
// отдаёт его в ответе и сохраняет в контексте Gin.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		rid := strings.TrimSpace(c.GetHeader(RequestIDHeader))
		if rid == "" || len(rid) > 128 {
			rid = uuid.NewString()
		}
		c.Header(RequestIDHeader, rid)
		c.Set(requestIDKey, rid)
		c.Next()
	}
}

// GetRequestID возвращает идентификатор текущего запроса
func GetRequestID(c *gin.Context) string {
	return c.GetString(requestIDKey)
}
