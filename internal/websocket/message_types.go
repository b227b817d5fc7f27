package websocket

import (
	"encoding/json"
	"time"
)

// Действия, которые клиент может отправить по WebSocket
const (
	// ActionSubscribe ограничивает поток событий перечисленными типами
	ActionSubscribe = "subscribe"

	// ActionUnsubscribe убирает типы из подписки; пустая подписка означает "все события"
	ActionUnsubscribe = "unsubscribe"
)

// ClientMessage — управляющее сообщение от клиента
type ClientMessage struct {
	Action string   `json:"action"`
	Types  []string `json:"types"`
}

// ClusterMessage — конверт события, пересылаемого между инстансами через Pub/Sub
type ClusterMessage struct {
	// InstanceID отправителя, чтобы инстанс не рассылал собственные события повторно
	InstanceID string          `json:"instance_id"`
	EventType  string          `json:"event_type"`
	Payload    json.RawMessage `json:"payload"`
	Timestamp  time.Time       `json:"timestamp"`
}
