package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/yourusername/keyserver-api/internal/domain/entity"
	"github.com/yourusername/keyserver-api/internal/metrics"
	apperrors "github.com/yourusername/keyserver-api/internal/pkg/errors"
	"github.com/yourusername/keyserver-api/internal/service/keystore"
	"github.com/yourusername/keyserver-api/pkg/fingerprint"
)

// ============================================================================
// Моки для KeyService
// ============================================================================

// MockEventPublisher реализует EventPublisher
type MockEventPublisher struct {
	mock.Mock
}

func (m *MockEventPublisher) Publish(ctx context.Context, event entity.KeyEvent) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

// MockStatsRepository реализует repository.StatsRepository
type MockStatsRepository struct {
	mock.Mock
}

func (m *MockStatsRepository) Increment(ctx context.Context, name string, delta int64) error {
	args := m.Called(ctx, name, delta)
	return args.Error(0)
}

func (m *MockStatsRepository) GetAll(ctx context.Context) (map[string]int64, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[string]int64), args.Error(1)
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type serviceFixture struct {
	svc       *KeyService
	clock     *testClock
	publisher *MockEventPublisher
	stats     *MockStatsRepository
	metrics   *metrics.KeyMetrics
}

func newServiceFixture(t *testing.T) *serviceFixture {
	t.Helper()
	clock := &testClock{now: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}

	var seq int
	gen := func() string {
		seq++
		return fmt.Sprintf("%030x", seq)
	}
	store := keystore.NewStore(keystore.WithClock(clock.Now), keystore.WithKeyGenerator(gen))

	m, err := metrics.NewKeyMetrics(prometheus.NewRegistry())
	require.NoError(t, err)

	publisher := &MockEventPublisher{}
	stats := &MockStatsRepository{}
	svc := NewKeyService(store, publisher, stats, m, 3)
	svc.now = clock.Now

	return &serviceFixture{svc: svc, clock: clock, publisher: publisher, stats: stats, metrics: m}
}

func eventOfType(typ entity.KeyEventType) interface{} {
	return mock.MatchedBy(func(ev entity.KeyEvent) bool { return ev.Type == typ })
}

func TestKeyService_GenerateKeys(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	f.publisher.On("Publish", ctx, eventOfType(entity.KeyEventGenerated)).Return(nil).Times(3)
	f.stats.On("Increment", ctx, CounterGenerated, int64(3)).Return(nil).Once()

	keys := f.svc.GenerateKeys(ctx, 0)

	assert.Len(t, keys, 3, "n <= 0 uses the configured batch size")
	f.publisher.AssertExpectations(t)
	f.stats.AssertExpectations(t)
	assert.Equal(t, float64(3), testutil.ToFloat64(f.metrics.LiveKeys))
	assert.Equal(t, float64(1), testutil.ToFloat64(f.metrics.Operations.WithLabelValues("generate", "ok")))
}

func TestKeyService_EventsCarryFingerprint(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	var published []entity.KeyEvent
	f.publisher.On("Publish", ctx, mock.Anything).Run(func(args mock.Arguments) {
		published = append(published, args.Get(1).(entity.KeyEvent))
	}).Return(nil)
	f.stats.On("Increment", ctx, mock.Anything, mock.Anything).Return(nil)

	keys := f.svc.GenerateKeys(ctx, 1)
	require.Len(t, published, 1)
	assert.Equal(t, fingerprint.Of(keys[0]), published[0].Key)
	assert.NotEqual(t, keys[0], published[0].Key)
	assert.Equal(t, f.clock.Now(), published[0].At)
}

func TestKeyService_ServeKey(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	f.publisher.On("Publish", ctx, mock.Anything).Return(nil)
	f.stats.On("Increment", ctx, mock.Anything, mock.Anything).Return(nil)

	_, err := f.svc.ServeKey(ctx)
	assert.ErrorIs(t, err, apperrors.ErrNoKeyAvailable)
	assert.True(t, IsNoKeyAvailable(err))

	keys := f.svc.GenerateKeys(ctx, 1)
	key, err := f.svc.ServeKey(ctx)
	require.NoError(t, err)
	assert.Equal(t, keys[0], key)

	f.publisher.AssertCalled(t, "Publish", ctx, eventOfType(entity.KeyEventServed))
	f.stats.AssertCalled(t, "Increment", ctx, CounterServed, int64(1))
	assert.Equal(t, float64(1), testutil.ToFloat64(f.metrics.BlockedKeys))
	assert.Equal(t, float64(1), testutil.ToFloat64(f.metrics.Operations.WithLabelValues("serve", "empty")))
}

func TestKeyService_BlockUnblock(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	f.publisher.On("Publish", ctx, mock.Anything).Return(nil)
	f.stats.On("Increment", ctx, mock.Anything, mock.Anything).Return(nil)

	key := f.svc.GenerateKeys(ctx, 1)[0]

	already, err := f.svc.BlockKey(ctx, key)
	require.NoError(t, err)
	assert.False(t, already)

	already, err = f.svc.BlockKey(ctx, key)
	require.NoError(t, err)
	assert.True(t, already)

	already, err = f.svc.UnblockKey(ctx, key)
	require.NoError(t, err)
	assert.False(t, already)

	already, err = f.svc.UnblockKey(ctx, key)
	require.NoError(t, err)
	assert.True(t, already)

	// повторная разблокировка ничего не меняет и не рассылается
	f.publisher.AssertNumberOfCalls(t, "Publish", 1+2+1)
	assert.Equal(t, float64(1), testutil.ToFloat64(f.metrics.Operations.WithLabelValues("block", "already")))
	assert.Equal(t, float64(1), testutil.ToFloat64(f.metrics.Operations.WithLabelValues("unblock", "already")))
}

func TestKeyService_InvalidKey(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	_, err := f.svc.BlockKey(ctx, "missing")
	assert.True(t, IsInvalidKey(err))
	_, err = f.svc.UnblockKey(ctx, "missing")
	assert.True(t, IsInvalidKey(err))
	assert.True(t, IsInvalidKey(f.svc.DeleteKey(ctx, "missing")))
	assert.True(t, IsInvalidKey(f.svc.PingKey(ctx, "missing")))
	_, err = f.svc.LookupKey(ctx, "missing")
	assert.True(t, IsInvalidKey(err))

	f.publisher.AssertNotCalled(t, "Publish", mock.Anything, mock.Anything)
	f.stats.AssertNotCalled(t, "Increment", mock.Anything, mock.Anything, mock.Anything)
}

func TestKeyService_DeleteAndPing(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	f.publisher.On("Publish", ctx, mock.Anything).Return(nil)
	f.stats.On("Increment", ctx, mock.Anything, mock.Anything).Return(nil)

	keys := f.svc.GenerateKeys(ctx, 2)

	require.NoError(t, f.svc.PingKey(ctx, keys[0]))
	require.NoError(t, f.svc.DeleteKey(ctx, keys[1]))
	assert.True(t, IsInvalidKey(f.svc.DeleteKey(ctx, keys[1])))

	assert.Equal(t, []string{keys[1]}, f.svc.DeletedKeys(ctx))
	assert.Equal(t, []string{keys[0]}, f.svc.UnblockedKeys(ctx))
	assert.Empty(t, f.svc.BlockedKeys(ctx))
	assert.Equal(t, float64(1), testutil.ToFloat64(f.metrics.DeletedKeys))

	f.publisher.AssertCalled(t, "Publish", ctx, eventOfType(entity.KeyEventPinged))
	f.publisher.AssertCalled(t, "Publish", ctx, eventOfType(entity.KeyEventDeleted))
}

func TestKeyService_CollaboratorFailuresDoNotChangeResult(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	f.publisher.On("Publish", ctx, mock.Anything).Return(errors.New("redis down"))
	f.stats.On("Increment", ctx, mock.Anything, mock.Anything).Return(errors.New("redis down"))

	keys := f.svc.GenerateKeys(ctx, 2)
	require.Len(t, keys, 2)

	key, err := f.svc.ServeKey(ctx)
	require.NoError(t, err)
	assert.Contains(t, keys, key)
}

func TestKeyService_RefreshAll(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	f.publisher.On("Publish", ctx, mock.Anything).Return(nil)
	f.stats.On("Increment", ctx, mock.Anything, mock.Anything).Return(nil)

	keys := f.svc.GenerateKeys(ctx, 2)
	_, err := f.svc.BlockKey(ctx, keys[0])
	require.NoError(t, err)

	f.clock.Advance(61 * time.Second)
	report := f.svc.RefreshAll(ctx)
	assert.Equal(t, []string{keys[0]}, report.Unblocked)
	assert.Empty(t, report.Expired)

	f.clock.Advance(240 * time.Second)
	report = f.svc.RefreshAll(ctx)
	assert.ElementsMatch(t, keys, report.Expired)

	f.publisher.AssertCalled(t, "Publish", ctx, eventOfType(entity.KeyEventAutoUnblocked))
	f.publisher.AssertCalled(t, "Publish", ctx, eventOfType(entity.KeyEventExpired))
	f.stats.AssertCalled(t, "Increment", ctx, CounterAutoUnblocked, int64(1))
	f.stats.AssertCalled(t, "Increment", ctx, CounterExpired, int64(2))
	assert.Equal(t, float64(1), testutil.ToFloat64(f.metrics.Transitions.WithLabelValues("unblock")))
	assert.Equal(t, float64(2), testutil.ToFloat64(f.metrics.Transitions.WithLabelValues("expire")))
	assert.Equal(t, float64(0), testutil.ToFloat64(f.metrics.LiveKeys))

	// пустой проход ничего не публикует
	calls := len(f.publisher.Calls)
	assert.True(t, f.svc.RefreshAll(ctx).Empty())
	assert.Len(t, f.publisher.Calls, calls)
}

func TestKeyService_ListingPublishesRealizedExpiry(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	f.publisher.On("Publish", ctx, mock.Anything).Return(nil)
	f.stats.On("Increment", ctx, mock.Anything, mock.Anything).Return(nil)

	keys := f.svc.GenerateKeys(ctx, 3)
	f.clock.Advance(301 * time.Second)

	// листинг опережает фоновый проход и сам удаляет просроченные ключи
	assert.Equal(t, keys, f.svc.DeletedKeys(ctx))

	for _, key := range keys {
		f.publisher.AssertCalled(t, "Publish", ctx, mock.MatchedBy(func(ev entity.KeyEvent) bool {
			return ev.Type == entity.KeyEventExpired && ev.Key == fingerprint.Of(key)
		}))
	}
	f.stats.AssertCalled(t, "Increment", ctx, CounterExpired, int64(3))
	assert.Equal(t, float64(3), testutil.ToFloat64(f.metrics.Transitions.WithLabelValues("expire")))

	// фоновый проход не дублирует уже разосланные переходы
	calls := len(f.publisher.Calls)
	assert.True(t, f.svc.RefreshAll(ctx).Empty())
	assert.Len(t, f.publisher.Calls, calls)
}

func TestKeyService_TargetedOperationPublishesAutoUnblock(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	f.publisher.On("Publish", ctx, mock.Anything).Return(nil)
	f.stats.On("Increment", ctx, mock.Anything, mock.Anything).Return(nil)

	key := f.svc.GenerateKeys(ctx, 1)[0]
	_, err := f.svc.BlockKey(ctx, key)
	require.NoError(t, err)

	f.clock.Advance(61 * time.Second)
	served, err := f.svc.ServeKey(ctx)
	require.NoError(t, err)
	assert.Equal(t, key, served)

	f.publisher.AssertCalled(t, "Publish", ctx, eventOfType(entity.KeyEventAutoUnblocked))
	f.stats.AssertCalled(t, "Increment", ctx, CounterAutoUnblocked, int64(1))
	assert.Equal(t, float64(1), testutil.ToFloat64(f.metrics.Transitions.WithLabelValues("unblock")))
}

func TestKeyService_Stats(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	f.publisher.On("Publish", ctx, mock.Anything).Return(nil)
	f.stats.On("Increment", ctx, mock.Anything, mock.Anything).Return(nil)
	f.stats.On("GetAll", ctx).Return(map[string]int64{CounterGenerated: 3}, nil).Once()
	f.stats.On("GetAll", ctx).Return(nil, errors.New("redis down")).Once()

	keys := f.svc.GenerateKeys(ctx, 3)
	_, err := f.svc.BlockKey(ctx, keys[0])
	require.NoError(t, err)

	stats := f.svc.Stats(ctx)
	assert.Equal(t, keystore.Counts{Live: 3, Blocked: 1, Unblocked: 2}, stats.Counts)
	assert.Equal(t, int64(3), stats.Counters[CounterGenerated])

	stats = f.svc.Stats(ctx)
	assert.Equal(t, 3, stats.Live)
	assert.NotNil(t, stats.Counters)
	assert.Empty(t, stats.Counters)
}

func TestKeyService_NilCollaborators(t *testing.T) {
	svc := NewKeyService(keystore.NewStore(), nil, nil, nil, 0)
	ctx := context.Background()

	keys := svc.GenerateKeys(ctx, 0)
	assert.Len(t, keys, keystore.DefaultBatchSize)

	key, err := svc.ServeKey(ctx)
	require.NoError(t, err)
	rec, err := svc.LookupKey(ctx, key)
	require.NoError(t, err)
	assert.True(t, rec.IsBlocked())
	assert.Empty(t, svc.Stats(ctx).Counters)
}
