package websocket

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/yourusername/keyserver-api/internal/domain/entity"
	"github.com/yourusername/keyserver-api/internal/observability/logger"
)

// HubConfig содержит настройки хаба событий
type HubConfig struct {
	// InstanceID этого процесса; пустой — генерируется
	InstanceID string
	// Channel Pub/Sub для пересылки событий между инстансами
	Channel string
	// ClientBuffer — размер буфера отправки одного клиента
	ClientBuffer int
}

// Hub рассылает события ключей подключённым WebSocket-клиентам и
// пересылает их другим инстансам через PubSubProvider.
type Hub struct {
	cfg      HubConfig
	provider PubSubProvider

	mu      sync.RWMutex
	clients map[*Client]struct{}

	cancel context.CancelFunc
	wg     sync.WaitGroup
	once   sync.Once
	log    *zap.Logger
}

// NewHub создает хаб. provider == nil означает работу без пересылки (NoOpPubSub).
func NewHub(cfg HubConfig, provider PubSubProvider) *Hub {
	l := logger.Named("websocket")
	if cfg.InstanceID == "" {
		cfg.InstanceID = generateInstanceID()
		l.Info("instance id not set, generated", zap.String("instance_id", cfg.InstanceID))
	}
	if cfg.ClientBuffer <= 0 {
		cfg.ClientBuffer = defaultClientBufferSize
	}
	if provider == nil {
		provider = &NoOpPubSub{}
	}
	return &Hub{
		cfg:      cfg,
		provider: provider,
		clients:  make(map[*Client]struct{}),
		log:      l,
	}
}

// InstanceID возвращает идентификатор инстанса
func (h *Hub) InstanceID() string { return h.cfg.InstanceID }

// Start подписывается на канал кластера и пересылает чужие события
// локальным клиентам, пока ctx не отменён или не вызван Stop.
func (h *Hub) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	h.cancel = cancel

	msgCh, err := h.provider.Subscribe(ctx, h.cfg.Channel)
	if err != nil {
		cancel()
		return fmt.Errorf("hub subscribe: %w", err)
	}

	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		for msg := range msgCh {
			h.handleClusterMessage(msg)
		}
	}()
	h.log.Info("hub started", zap.String("instance_id", h.cfg.InstanceID), zap.String("channel", h.cfg.Channel))
	return nil
}

// Stop останавливает пересылку и отключает всех клиентов. Повторный вызов безопасен.
func (h *Hub) Stop() {
	h.once.Do(func() {
		if h.cancel != nil {
			h.cancel()
		}
		h.wg.Wait()

		h.mu.Lock()
		for c := range h.clients {
			delete(h.clients, c)
			c.closeSend()
		}
		h.mu.Unlock()
		h.log.Info("hub stopped")
	})
}

// Publish рассылает событие локальным клиентам и другим инстансам.
// Ошибка возвращается только при сбое пересылки в кластер.
func (h *Hub) Publish(ctx context.Context, event entity.KeyEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal key event: %w", err)
	}
	h.BroadcastLocal(string(event.Type), payload)

	envelope, err := json.Marshal(ClusterMessage{
		InstanceID: h.cfg.InstanceID,
		EventType:  string(event.Type),
		Payload:    payload,
		Timestamp:  time.Now(),
	})
	if err != nil {
		return fmt.Errorf("marshal cluster message: %w", err)
	}
	return h.provider.Publish(ctx, h.cfg.Channel, envelope)
}

// BroadcastLocal отправляет сообщение клиентам этого инстанса, подписанным на eventType.
// Клиент с переполненным буфером отключается.
func (h *Hub) BroadcastLocal(eventType string, message []byte) {
	var slow []*Client

	h.mu.RLock()
	for c := range h.clients {
		if !c.IsSubscribed(eventType) {
			continue
		}
		select {
		case c.send <- message:
		default:
			slow = append(slow, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range slow {
		h.log.Warn("client buffer full, disconnecting", zap.String("conn_id", c.ID))
		h.Unregister(c)
	}
}

// Register добавляет клиента
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	total := len(h.clients)
	h.mu.Unlock()
	h.log.Debug("client registered", zap.String("conn_id", c.ID), zap.Int("clients", total))
}

// Unregister удаляет клиента и закрывает его канал отправки
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	_, ok := h.clients[c]
	delete(h.clients, c)
	h.mu.Unlock()
	if ok {
		c.closeSend()
		h.log.Debug("client unregistered", zap.String("conn_id", c.ID))
	}
}

// ClientCount возвращает число подключённых клиентов
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) handleClusterMessage(raw []byte) {
	var msg ClusterMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		h.log.Warn("invalid cluster message", logger.Err(err))
		return
	}
	// собственные события уже разосланы в Publish
	if msg.InstanceID == h.cfg.InstanceID {
		return
	}
	h.BroadcastLocal(msg.EventType, msg.Payload)
}

func generateInstanceID() string {
	return "instance_" + uuid.NewString()
}
