package websocket

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	// Время, которое разрешено писать сообщение клиенту.
	writeWait = 10 * time.Second

	// Время ожидания pong от клиента.
	pongWait = 30 * time.Second

	// Периодичность отправки ping-сообщений клиенту.
	pingPeriod = (pongWait * 9) / 10

	// Максимальный размер управляющего сообщения от клиента
	maxMessageSize = 512

	defaultClientBufferSize = 64
)

// Client является посредником между WebSocket соединением и hub.
type Client struct {
	// Уникальный ID соединения
	ID string

	hub  *Hub
	conn *websocket.Conn
	send chan []byte

	sendOnce sync.Once

	// Пустая подписка означает "все события"
	subMu         sync.RWMutex
	subscriptions map[string]struct{}
}

// NewClient создает клиента с буфером отправки из настроек хаба
func NewClient(hub *Hub, conn *websocket.Conn) *Client {
	return &Client{
		ID:            uuid.New().String(),
		hub:           hub,
		conn:          conn,
		send:          make(chan []byte, hub.cfg.ClientBuffer),
		subscriptions: make(map[string]struct{}),
	}
}

// StartPumps регистрирует клиента в хабе и запускает горутины чтения и записи
func (c *Client) StartPumps() {
	c.hub.Register(c)
	go c.writePump()
	go c.readPump()
}

// IsSubscribed проверяет, нужно ли отправлять клиенту события данного типа
func (c *Client) IsSubscribed(eventType string) bool {
	c.subMu.RLock()
	defer c.subMu.RUnlock()
	if len(c.subscriptions) == 0 {
		return true
	}
	_, ok := c.subscriptions[eventType]
	return ok
}

// Subscribe добавляет типы событий в подписку
func (c *Client) Subscribe(types ...string) {
	c.subMu.Lock()
	defer c.subMu.Unlock()
	for _, t := range types {
		if t != "" {
			c.subscriptions[t] = struct{}{}
		}
	}
}

// Unsubscribe убирает типы событий из подписки
func (c *Client) Unsubscribe(types ...string) {
	c.subMu.Lock()
	defer c.subMu.Unlock()
	for _, t := range types {
		delete(c.subscriptions, t)
	}
}

func (c *Client) closeSend() {
	c.sendOnce.Do(func() { close(c.send) })
}

func (c *Client) readPump() {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				c.hub.log.Debug("websocket read error", zap.String("conn_id", c.ID), zap.Error(err))
			}
			return
		}
		c.handleMessage(message)
	}
}

// handleMessage применяет управляющее сообщение; некорректные игнорируются
func (c *Client) handleMessage(message []byte) {
	var msg ClientMessage
	if err := json.Unmarshal(message, &msg); err != nil {
		c.hub.log.Debug("ignoring malformed client message", zap.String("conn_id", c.ID), zap.Error(err))
		return
	}
	switch msg.Action {
	case ActionSubscribe:
		c.Subscribe(msg.Types...)
	case ActionUnsubscribe:
		c.Unsubscribe(msg.Types...)
	default:
		c.hub.log.Debug("unknown client action", zap.String("conn_id", c.ID), zap.String("action", msg.Action))
	}
}

// writePump отправляет сообщения клиенту из канала send
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// Хаб закрыл канал
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				c.hub.log.Debug("websocket write error", zap.String("conn_id", c.ID), zap.Error(err))
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
