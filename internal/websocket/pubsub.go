package websocket

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/yourusername/keyserver-api/internal/observability/logger"
)

// PubSubProvider определяет интерфейс для провайдеров публикации/подписки
type PubSubProvider interface {
	// Publish публикует сообщение в указанный канал
	Publish(ctx context.Context, channel string, message []byte) error

	// Subscribe подписывается на канал. Возвращаемый канал закрывается,
	// когда ctx отменён или провайдер закрыт.
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)

	// Close останавливает все подписки
	Close() error
}

// NoOpPubSub используется, когда пересылка событий между инстансами отключена
type NoOpPubSub struct{}

func (p *NoOpPubSub) Publish(ctx context.Context, channel string, message []byte) error {
	return nil
}

// Subscribe возвращает канал, который никогда не получит сообщений
func (p *NoOpPubSub) Subscribe(ctx context.Context, channel string) (<-chan []byte, error) {
	msgCh := make(chan []byte)
	go func() {
		<-ctx.Done()
		close(msgCh)
	}()
	return msgCh, nil
}

func (p *NoOpPubSub) Close() error {
	return nil
}

// RedisPubSub реализует PubSubProvider поверх Redis Pub/Sub.
// Клиент Redis принадлежит вызывающему и здесь не закрывается.
type RedisPubSub struct {
	client redis.UniversalClient
	ctx    context.Context
	cancel context.CancelFunc

	mu            sync.Mutex
	subscriptions map[string]*redis.PubSub
	log           *zap.Logger
}

// NewRedisPubSub создает провайдер и проверяет соединение
func NewRedisPubSub(ctx context.Context, client redis.UniversalClient) (*RedisPubSub, error) {
	if client == nil {
		return nil, errors.New("redis client cannot be nil for RedisPubSub")
	}

	pingCtx, cancelCheck := context.WithTimeout(ctx, 5*time.Second)
	defer cancelCheck()
	if err := client.Ping(pingCtx).Err(); err != nil {
		return nil, fmt.Errorf("provided redis client failed ping check: %w", err)
	}

	ctxPubSub, cancelPubSub := context.WithCancel(context.Background())
	return &RedisPubSub{
		client:        client,
		ctx:           ctxPubSub,
		cancel:        cancelPubSub,
		subscriptions: make(map[string]*redis.PubSub),
		log:           logger.Named("pubsub"),
	}, nil
}

// Publish публикует сообщение в канал Redis
func (p *RedisPubSub) Publish(ctx context.Context, channel string, message []byte) error {
	receivers, err := p.client.Publish(ctx, channel, message).Result()
	if err != nil {
		return fmt.Errorf("failed to publish to Redis channel %s: %w", channel, err)
	}
	p.log.Debug("published", zap.String("channel", channel), zap.Int64("receivers", receivers))
	return nil
}

// Subscribe подписывается на канал Redis. Повторная подписка на тот же канал
// не поддерживается: у инстанса один получатель событий.
func (p *RedisPubSub) Subscribe(ctx context.Context, channel string) (<-chan []byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, ok := p.subscriptions[channel]; ok {
		return nil, fmt.Errorf("already subscribed to Redis channel %s", channel)
	}

	pubsub := p.client.Subscribe(p.ctx, channel)
	// Ждем подтверждения подписки
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, fmt.Errorf("failed to subscribe to Redis channel %s: %w", channel, err)
	}
	p.subscriptions[channel] = pubsub
	p.log.Info("subscribed", zap.String("channel", channel))

	msgCh := make(chan []byte, 100)
	go func() {
		defer func() {
			p.mu.Lock()
			delete(p.subscriptions, channel)
			p.mu.Unlock()
			pubsub.Close()
			close(msgCh)
			p.log.Info("unsubscribed", zap.String("channel", channel))
		}()

		redisCh := pubsub.Channel()
		for {
			select {
			case msg, ok := <-redisCh:
				if !ok {
					return
				}
				select {
				case msgCh <- []byte(msg.Payload):
				case <-p.ctx.Done():
					return
				case <-ctx.Done():
					return
				}
			case <-p.ctx.Done():
				return
			case <-ctx.Done():
				return
			}
		}
	}()

	return msgCh, nil
}

// Close останавливает горутины подписок и закрывает подписки
func (p *RedisPubSub) Close() error {
	p.cancel()

	p.mu.Lock()
	defer p.mu.Unlock()

	var lastErr error
	for channel, pubsub := range p.subscriptions {
		if err := pubsub.Close(); err != nil {
			p.log.Warn("close subscription failed", zap.String("channel", channel), logger.Err(err))
			lastErr = err
		}
	}
	return lastErr
}
