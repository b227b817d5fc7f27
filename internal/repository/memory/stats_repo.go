package memory

import (
	"context"
	"fmt"

	gocache "github.com/patrickmn/go-cache"
)

// StatsRepo хранит счётчики в памяти процесса (используется без Redis)
type StatsRepo struct {
	c *gocache.Cache
}

// NewStatsRepo создает in-memory репозиторий счётчиков. Счётчики не истекают.
func NewStatsRepo() *StatsRepo {
	return &StatsRepo{c: gocache.New(gocache.NoExpiration, 0)}
}

// Increment увеличивает счётчик name на delta
func (r *StatsRepo) Increment(_ context.Context, name string, delta int64) error {
	// Add не перезаписывает существующее значение, ошибка означает "уже есть"
	_ = r.c.Add(name, int64(0), gocache.NoExpiration)
	if _, err := r.c.IncrementInt64(name, delta); err != nil {
		return fmt.Errorf("failed to increment counter %s: %w", name, err)
	}
	return nil
}

// GetAll возвращает копию всех счётчиков
func (r *StatsRepo) GetAll(_ context.Context) (map[string]int64, error) {
	items := r.c.Items()
	counters := make(map[string]int64, len(items))
	for name, item := range items {
		n, ok := item.Object.(int64)
		if !ok {
			return nil, fmt.Errorf("counter %s has unexpected type %T", name, item.Object)
		}
		counters[name] = n
	}
	return counters, nil
}
