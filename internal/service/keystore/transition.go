package keystore

import (
	"time"

	"github.com/yourusername/keyserver-api/internal/domain/entity"
)

// Пороговые значения правила переходов. Общие для всех ключей и не настраиваются.
const (
	// BlockTimeout — через сколько после последнего касания заблокированный ключ
	// возвращается в пул
	BlockTimeout = 60 * time.Second

	// ExpiryTimeout — через сколько после последнего касания ключ удаляется навсегда
	ExpiryTimeout = 300 * time.Second
)

// Transition — решение правила для одной записи
type Transition int

const (
	TransitionNone Transition = iota
	TransitionUnblock
	TransitionExpire
)

func (t Transition) String() string {
	switch t {
	case TransitionUnblock:
		return "unblock"
	case TransitionExpire:
		return "expire"
	default:
		return "none"
	}
}

// Evaluate решает, что должно произойти с записью в момент now.
// Оба порога считаются от одного и того же LastTouched; удаление важнее
// разблокировки, поэтому при пересечении обоих порогов возвращается TransitionExpire.
func Evaluate(now time.Time, rec entity.KeyRecord) Transition {
	idle := rec.IdleFor(now)
	if idle >= ExpiryTimeout {
		return TransitionExpire
	}
	if rec.IsBlocked() && idle >= BlockTimeout {
		return TransitionUnblock
	}
	return TransitionNone
}
