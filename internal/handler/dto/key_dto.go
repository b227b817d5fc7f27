package dto

import (
	"time"

	"github.com/yourusername/keyserver-api/internal/domain/entity"
)

// GenerateKeysResponse — ответ на выпуск пачки ключей
type GenerateKeysResponse struct {
	Keys []string `json:"keys"`
}

// ServeKeyResponse — выданный ключ
type ServeKeyResponse struct {
	Key string `json:"key"`
}

// KeyActionResponse — результат операции над конкретным ключом
type KeyActionResponse struct {
	Key     string `json:"key"`
	Result  string `json:"result"` // blocked, unblocked, deleted, pinged
	Already bool   `json:"already,omitempty"`
}

// KeyResponse — состояние живого ключа
type KeyResponse struct {
	Key         string    `json:"key"`
	Status      string    `json:"status"`
	LastTouched time.Time `json:"last_touched"`
	CreatedAt   time.Time `json:"created_at"`
}

// ErrorResponse — тело ответа с ошибкой
type ErrorResponse struct {
	Error string `json:"error"`
}

// NewKeyResponse создает KeyResponse из записи пула
func NewKeyResponse(rec entity.KeyRecord) KeyResponse {
	return KeyResponse{
		Key:         rec.Value,
		Status:      rec.Status.String(),
		LastTouched: rec.LastTouched,
		CreatedAt:   rec.CreatedAt,
	}
}
