package keystore

import (
	"time"

	"github.com/yourusername/keyserver-api/internal/domain/entity"
)

// DefaultBatchSize — сколько ключей выпускает один вызов Generate по умолчанию
const DefaultBatchSize = 5

// RefreshReport перечисляет ключи, изменённые одним проходом правила переходов
type RefreshReport struct {
	Unblocked []string // автоматически разблокированы по BlockTimeout
	Expired   []string // удалены по ExpiryTimeout
}

// Empty возвращает true, если проход ничего не изменил
func (r RefreshReport) Empty() bool {
	return len(r.Unblocked) == 0 && len(r.Expired) == 0
}

// Snapshot — согласованный срез всех трёх списков, снятый в одной критической секции
type Snapshot struct {
	Blocked   []string  `json:"blocked_keys"`
	Unblocked []string  `json:"unblocked_keys"`
	Deleted   []string  `json:"deleted_keys"`
	TakenAt   time.Time `json:"taken_at"`
}

// Counts — размеры множеств пула без применения правила переходов
type Counts struct {
	Live      int `json:"live"`
	Blocked   int `json:"blocked"`
	Unblocked int `json:"unblocked"`
	Deleted   int `json:"deleted"`
}

// entry хранит запись вместе с порядковым номером выпуска,
// по которому упорядочиваются списки
type entry struct {
	rec *entity.KeyRecord
	seq uint64
}

// Option настраивает Store при создании
type Option func(*Store)

// WithClock подменяет источник текущего времени (используется в тестах)
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// WithKeyGenerator подменяет генератор значений ключей
func WithKeyGenerator(gen func() string) Option {
	return func(s *Store) {
		if gen != nil {
			s.newKey = gen
		}
	}
}
