package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourusername/keyserver-api/internal/domain/entity"
)

// memoryPubSub — PubSubProvider в памяти, общий для нескольких хабов
type memoryPubSub struct {
	mu   sync.Mutex
	subs []chan []byte
}

func (p *memoryPubSub) Publish(_ context.Context, _ string, message []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, ch := range p.subs {
		ch <- message
	}
	return nil
}

func (p *memoryPubSub) Subscribe(ctx context.Context, _ string) (<-chan []byte, error) {
	ch := make(chan []byte, 16)
	p.mu.Lock()
	p.subs = append(p.subs, ch)
	p.mu.Unlock()

	out := make(chan []byte)
	go func() {
		defer close(out)
		for {
			select {
			case msg := <-ch:
				select {
				case out <- msg:
				case <-ctx.Done():
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

func (p *memoryPubSub) Close() error { return nil }

func newTestServer(t *testing.T, hub *Hub) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		NewClient(hub, conn).StartPumps()
	}))
	t.Cleanup(srv.Close)
	return srv
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn) entity.KeyEvent {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	var ev entity.KeyEvent
	require.NoError(t, json.Unmarshal(data, &ev))
	return ev
}

func TestHub_PublishReachesLocalClient(t *testing.T) {
	hub := NewHub(HubConfig{Channel: "test"}, nil)
	require.NoError(t, hub.Start(context.Background()))
	defer hub.Stop()

	conn := dial(t, newTestServer(t, hub))
	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, time.Second, 10*time.Millisecond)

	require.NoError(t, hub.Publish(context.Background(), entity.KeyEvent{
		Type: entity.KeyEventServed, Key: "fp", Status: entity.KeyStatusBlocked, At: time.Now(),
	}))

	ev := readEvent(t, conn)
	assert.Equal(t, entity.KeyEventServed, ev.Type)
	assert.Equal(t, entity.KeyStatusBlocked, ev.Status)
}

func TestHub_SubscriptionFilter(t *testing.T) {
	hub := NewHub(HubConfig{Channel: "test"}, nil)
	require.NoError(t, hub.Start(context.Background()))
	defer hub.Stop()

	conn := dial(t, newTestServer(t, hub))
	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, time.Second, 10*time.Millisecond)

	require.NoError(t, conn.WriteJSON(ClientMessage{Action: ActionSubscribe, Types: []string{string(entity.KeyEventDeleted)}}))

	// ждём, пока подписка применится
	var client *Client
	hub.mu.RLock()
	for c := range hub.clients {
		client = c
	}
	hub.mu.RUnlock()
	require.Eventually(t, func() bool { return !client.IsSubscribed(string(entity.KeyEventServed)) }, time.Second, 10*time.Millisecond)

	ctx := context.Background()
	require.NoError(t, hub.Publish(ctx, entity.KeyEvent{Type: entity.KeyEventServed, At: time.Now()}))
	require.NoError(t, hub.Publish(ctx, entity.KeyEvent{Type: entity.KeyEventDeleted, At: time.Now()}))

	ev := readEvent(t, conn)
	assert.Equal(t, entity.KeyEventDeleted, ev.Type)
}

func TestHub_RelaysEventsFromOtherInstances(t *testing.T) {
	bus := &memoryPubSub{}
	ctx := context.Background()

	hubA := NewHub(HubConfig{InstanceID: "a", Channel: "test"}, bus)
	hubB := NewHub(HubConfig{InstanceID: "b", Channel: "test"}, bus)
	require.NoError(t, hubA.Start(ctx))
	require.NoError(t, hubB.Start(ctx))
	defer hubA.Stop()
	defer hubB.Stop()

	connA := dial(t, newTestServer(t, hubA))
	connB := dial(t, newTestServer(t, hubB))
	require.Eventually(t, func() bool {
		return hubA.ClientCount() == 1 && hubB.ClientCount() == 1
	}, time.Second, 10*time.Millisecond)

	require.NoError(t, hubA.Publish(ctx, entity.KeyEvent{Type: entity.KeyEventExpired, At: time.Now()}))

	assert.Equal(t, entity.KeyEventExpired, readEvent(t, connB).Type)
	assert.Equal(t, entity.KeyEventExpired, readEvent(t, connA).Type)

	// собственное событие не должно прийти второй раз через шину
	require.NoError(t, connA.SetReadDeadline(time.Now().Add(200*time.Millisecond)))
	_, _, err := connA.ReadMessage()
	assert.Error(t, err)
}

func TestHub_StopDisconnectsClients(t *testing.T) {
	hub := NewHub(HubConfig{Channel: "test"}, nil)
	require.NoError(t, hub.Start(context.Background()))

	conn := dial(t, newTestServer(t, hub))
	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, time.Second, 10*time.Millisecond)

	hub.Stop()
	hub.Stop()
	assert.Equal(t, 0, hub.ClientCount())

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := conn.ReadMessage()
	assert.Error(t, err)
}

func TestNewHub_GeneratesInstanceID(t *testing.T) {
	hub := NewHub(HubConfig{}, nil)
	assert.True(t, strings.HasPrefix(hub.InstanceID(), "instance_"))
	assert.Equal(t, defaultClientBufferSize, hub.cfg.ClientBuffer)
}
