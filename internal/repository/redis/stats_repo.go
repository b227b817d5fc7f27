package redis

import (
	"context"
	"fmt"
	"strconv"

	"github.com/go-redis/redis/v8"
)

// DefaultStatsKey — hash, в котором хранятся счётчики операций
const DefaultStatsKey = "keyserver:stats"

// StatsRepo реализует repository.StatsRepository поверх Redis hash
type StatsRepo struct {
	client redis.UniversalClient
	key    string
}

// NewStatsRepo создает репозиторий счётчиков. Пустой key заменяется DefaultStatsKey.
func NewStatsRepo(client redis.UniversalClient, key string) (*StatsRepo, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client cannot be nil for StatsRepo")
	}
	if key == "" {
		key = DefaultStatsKey
	}
	return &StatsRepo{client: client, key: key}, nil
}

// Increment увеличивает счётчик через HINCRBY
func (r *StatsRepo) Increment(ctx context.Context, name string, delta int64) error {
	if err := r.client.HIncrBy(ctx, r.key, name, delta).Err(); err != nil {
		return fmt.Errorf("failed to increment counter %s: %w", name, err)
	}
	return nil
}

// GetAll читает hash целиком
func (r *StatsRepo) GetAll(ctx context.Context) (map[string]int64, error) {
	raw, err := r.client.HGetAll(ctx, r.key).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read counters: %w", err)
	}
	return parseCounters(raw)
}

func parseCounters(raw map[string]string) (map[string]int64, error) {
	counters := make(map[string]int64, len(raw))
	for name, value := range raw {
		n, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("counter %s has non-integer value %q: %w", name, value, err)
		}
		counters[name] = n
	}
	return counters, nil
}
