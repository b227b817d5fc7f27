package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yourusername/keyserver-api/internal/service/keystore"
)

// ExtractKeyParam извлекает значение ключа из URL и сохраняет его в контексте Gin.
// Значение, которое не может быть ключом (не 30 hex-символов), сразу получает
// 404 "Invalid key": такого ключа в пуле заведомо нет.
// asJSON выбирает формат ответа: JSON для /api, текст для простых маршрутов.
func ExtractKeyParam(paramName, contextKey string, asJSON bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.Param(paramName)
		if !keystore.IsWellFormed(key) {
			if asJSON {
				c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "Invalid key"})
			} else {
				c.String(http.StatusNotFound, "Invalid key")
				c.Abort()
			}
			return
		}
		c.Set(contextKey, key)
		c.Next()
	}
}
