package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/yourusername/keyserver-api/internal/domain/entity"
	"github.com/yourusername/keyserver-api/internal/domain/repository"
	"github.com/yourusername/keyserver-api/internal/metrics"
	"github.com/yourusername/keyserver-api/internal/observability/logger"
	apperrors "github.com/yourusername/keyserver-api/internal/pkg/errors"
	"github.com/yourusername/keyserver-api/internal/service/keystore"
	"github.com/yourusername/keyserver-api/pkg/fingerprint"
)

// Имена счётчиков операций в StatsRepository
const (
	CounterGenerated     = "generated"
	CounterServed        = "served"
	CounterBlocked       = "blocked"
	CounterUnblocked     = "unblocked"
	CounterDeleted       = "deleted"
	CounterPinged        = "pinged"
	CounterAutoUnblocked = "auto_unblocked"
	CounterExpired       = "expired"
)

// Результаты операций для метрик
const (
	resultOK      = "ok"
	resultAlready = "already"
	resultInvalid = "invalid"
	resultEmpty   = "empty"
)

// EventPublisher рассылает события жизненного цикла ключей
type EventPublisher interface {
	Publish(ctx context.Context, event entity.KeyEvent) error
}

// KeyStats — размеры пула и накопленные счётчики операций
type KeyStats struct {
	keystore.Counts
	Counters map[string]int64 `json:"counters"`
}

// KeyService предоставляет операции над пулом ключей для HTTP-слоя и
// периодического драйвера. Результат операции определяет только Store;
// сбои публикации событий и счётчиков логируются и не меняют ответ.
type KeyService struct {
	store     *keystore.Store
	publisher EventPublisher
	stats     repository.StatsRepository
	metrics   *metrics.KeyMetrics
	batchSize int
	now       func() time.Time
	log       *zap.Logger
}

// NewKeyService создает сервис ключей. publisher, stats и m могут быть nil.
func NewKeyService(
	store *keystore.Store,
	publisher EventPublisher,
	stats repository.StatsRepository,
	m *metrics.KeyMetrics,
	batchSize int,
) *KeyService {
	if batchSize <= 0 {
		batchSize = keystore.DefaultBatchSize
	}
	return &KeyService{
		store:     store,
		publisher: publisher,
		stats:     stats,
		metrics:   m,
		batchSize: batchSize,
		now:       time.Now,
		log:       logger.Named("keys"),
	}
}

// GenerateKeys выпускает n ключей; n <= 0 означает размер пачки из конфигурации
func (s *KeyService) GenerateKeys(ctx context.Context, n int) []string {
	if n <= 0 {
		n = s.batchSize
	}
	keys := s.store.Generate(n)

	s.log.Debug("keys generated", logger.Count(len(keys)))
	s.metrics.ObserveOperation("generate", resultOK)
	for _, key := range keys {
		s.emit(ctx, entity.KeyEventGenerated, key, entity.KeyStatusUnblocked)
	}
	s.count(ctx, CounterGenerated, int64(len(keys)))
	s.updateGauges()
	return keys
}

// ServeKey выдаёт случайный свободный ключ и блокирует его
func (s *KeyService) ServeKey(ctx context.Context) (string, error) {
	key, err := s.store.Serve()
	s.flushTransitions(ctx)
	if err != nil {
		s.metrics.ObserveOperation("serve", resultEmpty)
		return "", err
	}

	s.log.Debug("key served", logger.KeyFP(key))
	s.metrics.ObserveOperation("serve", resultOK)
	s.emit(ctx, entity.KeyEventServed, key, entity.KeyStatusBlocked)
	s.count(ctx, CounterServed, 1)
	s.updateGauges()
	return key, nil
}

// BlockKey блокирует ключ. Возвращает true, если ключ уже был заблокирован;
// LastTouched обновляется в обоих случаях.
func (s *KeyService) BlockKey(ctx context.Context, key string) (bool, error) {
	already, err := s.store.Block(key)
	s.flushTransitions(ctx)
	if err != nil {
		s.metrics.ObserveOperation("block", resultInvalid)
		return false, err
	}

	s.log.Debug("key blocked", logger.KeyFP(key), zap.Bool("already", already))
	s.metrics.ObserveOperation("block", resultFor(already))
	s.emit(ctx, entity.KeyEventBlocked, key, entity.KeyStatusBlocked)
	s.count(ctx, CounterBlocked, 1)
	s.updateGauges()
	return already, nil
}

// UnblockKey возвращает ключ в пул. Повторная разблокировка ничего не меняет,
// поэтому событие не рассылается.
func (s *KeyService) UnblockKey(ctx context.Context, key string) (bool, error) {
	already, err := s.store.Unblock(key)
	s.flushTransitions(ctx)
	if err != nil {
		s.metrics.ObserveOperation("unblock", resultInvalid)
		return false, err
	}

	s.log.Debug("key unblocked", logger.KeyFP(key), zap.Bool("already", already))
	s.metrics.ObserveOperation("unblock", resultFor(already))
	if !already {
		s.emit(ctx, entity.KeyEventUnblocked, key, entity.KeyStatusUnblocked)
		s.count(ctx, CounterUnblocked, 1)
	}
	s.updateGauges()
	return already, nil
}

// DeleteKey удаляет ключ навсегда
func (s *KeyService) DeleteKey(ctx context.Context, key string) error {
	err := s.store.Delete(key)
	s.flushTransitions(ctx)
	if err != nil {
		s.metrics.ObserveOperation("delete", resultInvalid)
		return err
	}

	s.log.Debug("key deleted", logger.KeyFP(key))
	s.metrics.ObserveOperation("delete", resultOK)
	s.emit(ctx, entity.KeyEventDeleted, key, "")
	s.count(ctx, CounterDeleted, 1)
	s.updateGauges()
	return nil
}

// PingKey продлевает жизнь ключа
func (s *KeyService) PingKey(ctx context.Context, key string) error {
	err := s.store.Ping(key)
	s.flushTransitions(ctx)
	if err != nil {
		s.metrics.ObserveOperation("ping", resultInvalid)
		return err
	}

	s.log.Debug("key pinged", logger.KeyFP(key))
	s.metrics.ObserveOperation("ping", resultOK)
	s.emit(ctx, entity.KeyEventPinged, key, "")
	s.count(ctx, CounterPinged, 1)
	return nil
}

// LookupKey возвращает запись живого ключа или ErrInvalidKey
func (s *KeyService) LookupKey(ctx context.Context, key string) (entity.KeyRecord, error) {
	rec, ok := s.store.Lookup(key)
	s.flushTransitions(ctx)
	if !ok {
		return entity.KeyRecord{}, apperrors.ErrInvalidKey
	}
	return rec, nil
}

// Листинги применяют правило переходов (см. keystore.Store), поэтому после
// них рассылаются попутные переходы и обновляются gauge-метрики.

func (s *KeyService) BlockedKeys(ctx context.Context) []string {
	keys := s.store.BlockedKeys()
	s.flushTransitions(ctx)
	s.updateGauges()
	return keys
}

func (s *KeyService) UnblockedKeys(ctx context.Context) []string {
	keys := s.store.UnblockedKeys()
	s.flushTransitions(ctx)
	s.updateGauges()
	return keys
}

func (s *KeyService) DeletedKeys(ctx context.Context) []string {
	keys := s.store.DeletedKeys()
	s.flushTransitions(ctx)
	s.updateGauges()
	return keys
}

// Snapshot возвращает согласованный срез всех трёх списков
func (s *KeyService) Snapshot(ctx context.Context) keystore.Snapshot {
	snap := s.store.Snapshot()
	s.flushTransitions(ctx)
	s.updateGauges()
	return snap
}

// RefreshAll применяет правило переходов ко всем ключам и рассылает события
// об автоматических переходах, включая ещё не разосланные попутные.
func (s *KeyService) RefreshAll(ctx context.Context) keystore.RefreshReport {
	started := time.Now()
	report := s.store.RefreshAll()
	s.metrics.ObserveRefresh(time.Since(started))

	s.publishTransitions(ctx, report)
	return report
}

// flushTransitions рассылает переходы, которые store применил попутно
func (s *KeyService) flushTransitions(ctx context.Context) {
	s.publishTransitions(ctx, s.store.TakeTransitions())
}

func (s *KeyService) publishTransitions(ctx context.Context, report keystore.RefreshReport) {
	if report.Empty() {
		return
	}

	s.metrics.ObserveTransitions(len(report.Unblocked), len(report.Expired))
	for _, key := range report.Unblocked {
		s.emit(ctx, entity.KeyEventAutoUnblocked, key, entity.KeyStatusUnblocked)
	}
	for _, key := range report.Expired {
		s.emit(ctx, entity.KeyEventExpired, key, "")
	}
	s.count(ctx, CounterAutoUnblocked, int64(len(report.Unblocked)))
	s.count(ctx, CounterExpired, int64(len(report.Expired)))
	s.updateGauges()
}

// Counts возвращает размеры пула без обращения к хранилищу счётчиков
func (s *KeyService) Counts() keystore.Counts {
	return s.store.Counts()
}

// Stats возвращает размеры пула (без применения правила переходов) и счётчики
func (s *KeyService) Stats(ctx context.Context) KeyStats {
	stats := KeyStats{Counts: s.store.Counts(), Counters: map[string]int64{}}
	if s.stats == nil {
		return stats
	}
	counters, err := s.stats.GetAll(ctx)
	if err != nil {
		logger.From(ctx).Warn("failed to read counters", logger.Err(err))
		return stats
	}
	stats.Counters = counters
	return stats
}

func (s *KeyService) emit(ctx context.Context, typ entity.KeyEventType, key string, status entity.KeyStatus) {
	if s.publisher == nil {
		return
	}
	event := entity.KeyEvent{Type: typ, Key: fingerprint.Of(key), Status: status, At: s.now()}
	if err := s.publisher.Publish(ctx, event); err != nil {
		logger.From(ctx).Warn("failed to publish key event",
			zap.String("event", string(typ)), logger.KeyFP(key), logger.Err(err))
	}
}

func (s *KeyService) count(ctx context.Context, name string, delta int64) {
	if s.stats == nil || delta == 0 {
		return
	}
	if err := s.stats.Increment(ctx, name, delta); err != nil {
		logger.From(ctx).Warn("failed to increment counter", zap.String("counter", name), logger.Err(err))
	}
}

func (s *KeyService) updateGauges() {
	if s.metrics == nil {
		return
	}
	c := s.store.Counts()
	s.metrics.SetSizes(c.Live, c.Blocked, c.Deleted)
}

func resultFor(already bool) string {
	if already {
		return resultAlready
	}
	return resultOK
}

// IsInvalidKey сообщает, что ключ не существует или удалён
func IsInvalidKey(err error) bool {
	return errors.Is(err, apperrors.ErrInvalidKey)
}

// IsNoKeyAvailable сообщает, что свободных ключей нет
func IsNoKeyAvailable(err error) bool {
	return errors.Is(err, apperrors.ErrNoKeyAvailable)
}
