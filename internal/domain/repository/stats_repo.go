package repository

import "context"

// StatsRepository хранит счётчики операций над пулом ключей.
// Счётчики переживают только то хранилище, в котором лежат: in-memory
// реализация обнуляется при рестарте, Redis-реализация общая для инстансов.
type StatsRepository interface {
	// Increment увеличивает счётчик name на delta
	Increment(ctx context.Context, name string, delta int64) error
	// GetAll возвращает все счётчики
	GetAll(ctx context.Context) (map[string]int64, error)
}
