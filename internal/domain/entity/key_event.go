package entity

import "time"

// KeyEventType — тип события жизненного цикла ключа
type KeyEventType string

const (
	KeyEventGenerated     KeyEventType = "key.generated"
	KeyEventBlocked       KeyEventType = "key.blocked"
	KeyEventUnblocked     KeyEventType = "key.unblocked"
	KeyEventDeleted       KeyEventType = "key.deleted"
	KeyEventPinged        KeyEventType = "key.pinged"
	KeyEventServed        KeyEventType = "key.served"
	KeyEventAutoUnblocked KeyEventType = "key.auto_unblocked"
	KeyEventExpired       KeyEventType = "key.expired"
)

// KeyEvent описывает изменение состояния ключа.
// Key содержит отпечаток значения, а не сам ключ.
type KeyEvent struct {
	Type   KeyEventType `json:"type"`
	Key    string       `json:"key_fp"`
	Status KeyStatus    `json:"status,omitempty"`
	At     time.Time    `json:"at"`
}
