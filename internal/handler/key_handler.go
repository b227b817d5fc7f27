package handler

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/yourusername/keyserver-api/internal/observability/logger"
	"github.com/yourusername/keyserver-api/internal/service"
)

// Тексты ответов простых маршрутов
const (
	msgServerWorking       = "Server is working"
	msgInvalidKey          = "Invalid key"
	msgBlocked             = "Successfully blocked"
	msgAlreadyBlocked      = "Already blocked"
	msgUnblocked           = "Successfully unblocked"
	msgAlreadyUnblocked    = "Already unblocked"
	msgDeleted             = "Successfully deleted"
	msgPinged              = "Successfully pinged"
	msgNoKeyAvailable      = "No key available! Please generate some keys..."
	keysSeparator          = "<br />"
	keyContextKey          = "key"
	showAllTemplateName    = "showall.html"
	internalErrorPlainText = "Internal server error"
)

// KeyHandler обслуживает простые текстовые маршруты пула ключей
type KeyHandler struct {
	keyService *service.KeyService
}

// NewKeyHandler создает новый обработчик ключей
func NewKeyHandler(keyService *service.KeyService) *KeyHandler {
	return &KeyHandler{keyService: keyService}
}

// Root отвечает, что сервер работает
// GET /
func (h *KeyHandler) Root(c *gin.Context) {
	c.String(http.StatusOK, msgServerWorking)
}

// GenerateKeys выпускает пачку ключей
// GET /generate_keys
func (h *KeyHandler) GenerateKeys(c *gin.Context) {
	keys := h.keyService.GenerateKeys(c.Request.Context(), 0)
	c.String(http.StatusOK, strings.Join(keys, keysSeparator))
}

// BlockKey блокирует ключ
// GET /block/:key
func (h *KeyHandler) BlockKey(c *gin.Context) {
	already, err := h.keyService.BlockKey(c.Request.Context(), c.GetString(keyContextKey))
	if err != nil {
		h.handleKeyError(c, err)
		return
	}
	if already {
		c.String(http.StatusOK, msgAlreadyBlocked)
		return
	}
	c.String(http.StatusOK, msgBlocked)
}

// UnblockKey разблокирует ключ
// GET /unblock/:key
func (h *KeyHandler) UnblockKey(c *gin.Context) {
	already, err := h.keyService.UnblockKey(c.Request.Context(), c.GetString(keyContextKey))
	if err != nil {
		h.handleKeyError(c, err)
		return
	}
	if already {
		c.String(http.StatusOK, msgAlreadyUnblocked)
		return
	}
	c.String(http.StatusOK, msgUnblocked)
}

// DeleteKey удаляет ключ
// GET /delete/:key
func (h *KeyHandler) DeleteKey(c *gin.Context) {
	if err := h.keyService.DeleteKey(c.Request.Context(), c.GetString(keyContextKey)); err != nil {
		h.handleKeyError(c, err)
		return
	}
	c.String(http.StatusOK, msgDeleted)
}

// PingKey продлевает жизнь ключа
// GET /ping/:key
func (h *KeyHandler) PingKey(c *gin.Context) {
	if err := h.keyService.PingKey(c.Request.Context(), c.GetString(keyContextKey)); err != nil {
		h.handleKeyError(c, err)
		return
	}
	c.String(http.StatusOK, msgPinged)
}

// ServeKey выдаёт свободный ключ
// GET /serve_key
func (h *KeyHandler) ServeKey(c *gin.Context) {
	key, err := h.keyService.ServeKey(c.Request.Context())
	if err != nil {
		h.handleKeyError(c, err)
		return
	}
	c.String(http.StatusOK, key)
}

// ShowAll рендерит все три списка ключей.
// Снимок применяет правило переходов, поэтому страница может удалить просроченные ключи.
// GET /showall
func (h *KeyHandler) ShowAll(c *gin.Context) {
	snap := h.keyService.Snapshot(c.Request.Context())
	c.HTML(http.StatusOK, showAllTemplateName, gin.H{
		"Blocked":   snap.Blocked,
		"Unblocked": snap.Unblocked,
		"Deleted":   snap.Deleted,
		"TakenAt":   snap.TakenAt,
	})
}

// handleKeyError переводит ошибки сервиса в текстовые ответы
func (h *KeyHandler) handleKeyError(c *gin.Context, err error) {
	switch {
	case service.IsInvalidKey(err):
		c.String(http.StatusNotFound, msgInvalidKey)
	case service.IsNoKeyAvailable(err):
		c.String(http.StatusNotFound, msgNoKeyAvailable)
	default:
		logger.From(c.Request.Context()).Error("key operation failed", logger.Err(err))
		_ = c.Error(err)
		c.String(http.StatusInternalServerError, internalErrorPlainText)
	}
}
