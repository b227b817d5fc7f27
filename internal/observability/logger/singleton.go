package logger

import (
	"sync"

	"go.uber.org/zap"
)

var (
	mu       sync.RWMutex
	instance *zap.Logger
)

// Init создает логгер процесса. Повторный вызов заменяет предыдущий логгер.
func Init(cfg Config) {
	l := build(cfg)
	mu.Lock()
	instance = l
	mu.Unlock()
}

// Replace устанавливает готовый логгер (например, zaptest в тестах)
func Replace(l *zap.Logger) {
	mu.Lock()
	instance = l
	mu.Unlock()
}

// L возвращает логгер процесса. Если Init не вызывался, используется
// zap.NewNop, чтобы пакеты можно было тестировать без инициализации.
func L() *zap.Logger {
	mu.RLock()
	l := instance
	mu.RUnlock()
	if l == nil {
		return zap.NewNop()
	}
	return l
}

// Named возвращает логгер с именем компонента
func Named(name string) *zap.Logger {
	return L().Named(name)
}

// Sync сбрасывает буферы логгера
func Sync() error {
	mu.RLock()
	defer mu.RUnlock()
	if instance != nil {
		return instance.Sync()
	}
	return nil
}

// With возвращает логгер процесса с дополнительными полями
func With(fields ...zap.Field) *zap.Logger {
	return L().With(fields...)
}
