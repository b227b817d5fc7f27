package logger

import (
	"go.uber.org/zap"

	"github.com/yourusername/keyserver-api/pkg/fingerprint"
)

// HTTP

func RequestID(v string) zap.Field { return zap.String("request_id", v) }
func Method(v string) zap.Field    { return zap.String("method", v) }
func Path(v string) zap.Field      { return zap.String("path", v) }
func Status(v int) zap.Field       { return zap.Int("status", v) }
func DurationMs(v int64) zap.Field { return zap.Int64("duration_ms", v) }
func ClientIP(v string) zap.Field  { return zap.String("client_ip", v) }

// Общие

func Count(v int) zap.Field { return zap.Int("count", v) }

// Err возвращает поле ошибки; nil даёт пустое поле
func Err(err error) zap.Field {
	if err == nil {
		return zap.Skip()
	}
	return zap.Error(err)
}

// KeyFP пишет отпечаток ключа вместо самого значения: ключи являются
// учётными данными и не должны попадать в логи.
func KeyFP(key string) zap.Field {
	return zap.String("key_fp", fingerprint.Of(key))
}
