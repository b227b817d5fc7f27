package service

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/yourusername/keyserver-api/internal/service/keystore"
)

type countingTarget struct {
	calls atomic.Int32
}

func (c *countingTarget) RefreshAll(context.Context) keystore.RefreshReport {
	c.calls.Add(1)
	return keystore.RefreshReport{Expired: []string{"k"}}
}

func TestRefresher_TicksUntilStopped(t *testing.T) {
	target := &countingTarget{}
	r := NewRefresher(target, 5*time.Millisecond)

	r.Start(context.Background())
	r.Start(context.Background()) // повторный запуск игнорируется
	assert.Eventually(t, func() bool { return target.calls.Load() >= 3 }, time.Second, time.Millisecond)

	r.Stop()
	r.Stop()
	stopped := target.calls.Load()
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, stopped, target.calls.Load())
}

func TestRefresher_StopsOnContextCancel(t *testing.T) {
	target := &countingTarget{}
	r := NewRefresher(target, 5*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	r.Start(ctx)
	assert.Eventually(t, func() bool { return target.calls.Load() >= 1 }, time.Second, time.Millisecond)
	cancel()

	done := make(chan struct{})
	go func() {
		r.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Stop did not return after context cancel")
	}
}

func TestRefresher_DrivesStoreTransitions(t *testing.T) {
	clock := &testClock{now: time.Now()}
	store := keystore.NewStore(keystore.WithClock(clock.Now))
	svc := NewKeyService(store, nil, nil, nil, 1)
	key := svc.GenerateKeys(context.Background(), 1)[0]

	r := NewRefresher(svc, 5*time.Millisecond)
	r.Start(context.Background())
	defer r.Stop()

	clock.Advance(301 * time.Second)
	assert.Eventually(t, func() bool { return store.Counts().Deleted == 1 }, time.Second, 5*time.Millisecond)
	_, ok := store.Lookup(key)
	assert.False(t, ok)
}

func TestNewRefresher_DefaultInterval(t *testing.T) {
	r := NewRefresher(&countingTarget{}, 0)
	assert.Equal(t, DefaultRefreshInterval, r.interval)
}
