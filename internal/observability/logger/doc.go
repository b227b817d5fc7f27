// Package logger предоставляет единый zap-логгер процесса и привязку
// логгера запроса к context.Context.
//
// Инициализация (один раз в main):
//
//	logger.Init(logger.Config{Env: cfg.Log.Env, Level: cfg.Log.Level})
//	defer logger.Sync()
//
// В обработчиках и сервисах:
//
//	logger.From(ctx).Info("key served", logger.KeyFP(key))
package logger
