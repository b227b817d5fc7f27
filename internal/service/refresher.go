package service

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/yourusername/keyserver-api/internal/observability/logger"
	"github.com/yourusername/keyserver-api/internal/service/keystore"
)

// DefaultRefreshInterval — период RefreshAll, если интервал не задан
const DefaultRefreshInterval = time.Second

// Refreshable — то, что периодически обходит Refresher
type Refreshable interface {
	RefreshAll(ctx context.Context) keystore.RefreshReport
}

// Refresher периодически применяет правило переходов ко всему пулу,
// чтобы ключи разблокировались и удалялись без входящих запросов.
type Refresher struct {
	target   Refreshable
	interval time.Duration

	mu      sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
	log     *zap.Logger
}

// NewRefresher создает драйвер. interval <= 0 заменяется DefaultRefreshInterval.
func NewRefresher(target Refreshable, interval time.Duration) *Refresher {
	if interval <= 0 {
		interval = DefaultRefreshInterval
	}
	return &Refresher{
		target:   target,
		interval: interval,
		log:      logger.Named("refresher"),
	}
}

// Start запускает цикл в отдельной горутине. Повторный вызов без Stop игнорируется.
func (r *Refresher) Start(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running {
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.running = true

	r.wg.Add(1)
	go r.loop(ctx)
	r.log.Info("refresher started", zap.Duration("interval", r.interval))
}

// Stop останавливает цикл и дожидается его завершения. Повторный вызов безопасен.
func (r *Refresher) Stop() {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return
	}
	r.running = false
	r.cancel()
	r.mu.Unlock()

	r.wg.Wait()
	r.log.Info("refresher stopped")
}

func (r *Refresher) loop(ctx context.Context) {
	defer r.wg.Done()

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			report := r.target.RefreshAll(ctx)
			if !report.Empty() {
				r.log.Info("keys transitioned",
					zap.Int("unblocked", len(report.Unblocked)),
					zap.Int("expired", len(report.Expired)))
			}
		}
	}
}
