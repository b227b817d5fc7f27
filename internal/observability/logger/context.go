package logger

import (
	"context"

	"go.uber.org/zap"
)

type ctxKey struct{}

// ToContext сохраняет логгер запроса в контексте
func ToContext(ctx context.Context, l *zap.Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, l)
}

// From достаёт логгер из контекста; если его нет, возвращает логгер процесса
func From(ctx context.Context) *zap.Logger {
	if ctx == nil {
		return L()
	}
	if l, ok := ctx.Value(ctxKey{}).(*zap.Logger); ok {
		return l
	}
	return L()
}
