package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yourusername/keyserver-api/internal/service"
)

// HealthHandler отвечает на проверки живости
type HealthHandler struct {
	keyService *service.KeyService
	instanceID string
}

func NewHealthHandler(keyService *service.KeyService, instanceID string) *HealthHandler {
	return &HealthHandler{keyService: keyService, instanceID: instanceID}
}

// Health не применяет правило переходов: проверка не должна менять пул
// GET /health
func (h *HealthHandler) Health(c *gin.Context) {
	counts := h.keyService.Counts()
	c.JSON(http.StatusOK, gin.H{
		"status":      "ok",
		"instance_id": h.instanceID,
		"live_keys":   counts.Live,
	})
}
