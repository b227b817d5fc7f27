package entity

import (
	"time"
)

// KeyStatus описывает состояние живого ключа
type KeyStatus string

// Константы статусов ключа
const (
	KeyStatusUnblocked KeyStatus = "unblocked"
	KeyStatusBlocked   KeyStatus = "blocked"
)

func (s KeyStatus) String() string { return string(s) }

// KeyRecord представляет живой (не удалённый) ключ пула
type KeyRecord struct {
	Value       string    `json:"key"`
	Status      KeyStatus `json:"status"`
	LastTouched time.Time `json:"last_touched"`
	CreatedAt   time.Time `json:"created_at"`
}

// NewKeyRecord создает незаблокированный ключ, созданный в момент now
func NewKeyRecord(value string, now time.Time) *KeyRecord {
	return &KeyRecord{
		Value:       value,
		Status:      KeyStatusUnblocked,
		LastTouched: now,
		CreatedAt:   now,
	}
}

// IsBlocked проверяет, выдан ли ключ клиенту (заблокирован)
func (k *KeyRecord) IsBlocked() bool {
	return k.Status == KeyStatusBlocked
}

// Touch сдвигает LastTouched вперёд. Более раннее время игнорируется,
// LastTouched никогда не уменьшается.
func (k *KeyRecord) Touch(now time.Time) {
	if now.After(k.LastTouched) {
		k.LastTouched = now
	}
}

// IdleFor возвращает, сколько времени прошло с последнего касания ключа
func (k *KeyRecord) IdleFor(now time.Time) time.Duration {
	return now.Sub(k.LastTouched)
}
