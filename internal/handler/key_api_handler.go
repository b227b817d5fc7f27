package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/yourusername/keyserver-api/internal/handler/dto"
	"github.com/yourusername/keyserver-api/internal/observability/logger"
	"github.com/yourusername/keyserver-api/internal/service"
)

// MaxGenerateCount ограничивает размер одной пачки в JSON API
const MaxGenerateCount = 1000

// KeyAPIHandler обслуживает JSON API /api/keys
type KeyAPIHandler struct {
	keyService *service.KeyService
}

// NewKeyAPIHandler создает обработчик JSON API
func NewKeyAPIHandler(keyService *service.KeyService) *KeyAPIHandler {
	return &KeyAPIHandler{keyService: keyService}
}

// Generate выпускает ключи; ?count= задаёт размер пачки
// POST /api/keys
func (h *KeyAPIHandler) Generate(c *gin.Context) {
	count := 0
	if raw := c.Query("count"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > MaxGenerateCount {
			c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "count must be an integer between 1 and " + strconv.Itoa(MaxGenerateCount)})
			return
		}
		count = n
	}

	keys := h.keyService.GenerateKeys(c.Request.Context(), count)
	c.JSON(http.StatusCreated, dto.GenerateKeysResponse{Keys: keys})
}

// List возвращает согласованный снимок всех списков
// GET /api/keys
func (h *KeyAPIHandler) List(c *gin.Context) {
	c.JSON(http.StatusOK, h.keyService.Snapshot(c.Request.Context()))
}

// Serve выдаёт свободный ключ
// POST /api/keys/serve
func (h *KeyAPIHandler) Serve(c *gin.Context) {
	key, err := h.keyService.ServeKey(c.Request.Context())
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.ServeKeyResponse{Key: key})
}

// Get возвращает состояние ключа
// GET /api/keys/:key
func (h *KeyAPIHandler) Get(c *gin.Context) {
	rec, err := h.keyService.LookupKey(c.Request.Context(), c.GetString(keyContextKey))
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.NewKeyResponse(rec))
}

// Block блокирует ключ
// PUT /api/keys/:key/block
func (h *KeyAPIHandler) Block(c *gin.Context) {
	key := c.GetString(keyContextKey)
	already, err := h.keyService.BlockKey(c.Request.Context(), key)
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.KeyActionResponse{Key: key, Result: "blocked", Already: already})
}

// Unblock разблокирует ключ
// PUT /api/keys/:key/unblock
func (h *KeyAPIHandler) Unblock(c *gin.Context) {
	key := c.GetString(keyContextKey)
	already, err := h.keyService.UnblockKey(c.Request.Context(), key)
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.KeyActionResponse{Key: key, Result: "unblocked", Already: already})
}

// Ping продлевает жизнь ключа
// PUT /api/keys/:key/ping
func (h *KeyAPIHandler) Ping(c *gin.Context) {
	key := c.GetString(keyContextKey)
	if err := h.keyService.PingKey(c.Request.Context(), key); err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.KeyActionResponse{Key: key, Result: "pinged"})
}

// Delete удаляет ключ
// DELETE /api/keys/:key
func (h *KeyAPIHandler) Delete(c *gin.Context) {
	key := c.GetString(keyContextKey)
	if err := h.keyService.DeleteKey(c.Request.Context(), key); err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.KeyActionResponse{Key: key, Result: "deleted"})
}

// Stats возвращает размеры пула и счётчики операций
// GET /api/stats
func (h *KeyAPIHandler) Stats(c *gin.Context) {
	c.JSON(http.StatusOK, h.keyService.Stats(c.Request.Context()))
}

// handleError обрабатывает ошибки сервиса и отправляет соответствующий HTTP ответ
func (h *KeyAPIHandler) handleError(c *gin.Context, err error) {
	switch {
	case service.IsInvalidKey(err):
		c.JSON(http.StatusNotFound, dto.ErrorResponse{Error: msgInvalidKey})
	case service.IsNoKeyAvailable(err):
		c.JSON(http.StatusNotFound, dto.ErrorResponse{Error: msgNoKeyAvailable})
	default:
		logger.From(c.Request.Context()).Error("key api operation failed", logger.Err(err))
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, dto.ErrorResponse{Error: "Internal server error"})
	}
}
