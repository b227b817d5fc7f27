package logger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, zapcore.DebugLevel, parseLevel("debug"))
	assert.Equal(t, zapcore.WarnLevel, parseLevel(" WARNING "))
	assert.Equal(t, zapcore.ErrorLevel, parseLevel("error"))
	assert.Equal(t, zapcore.InfoLevel, parseLevel("whatever"))
}

func TestFrom_FallsBackToProcessLogger(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	Replace(zap.New(core))
	t.Cleanup(func() { Replace(nil) })

	From(context.Background()).Info("hello")

	require.Equal(t, 1, logs.Len())
	assert.Equal(t, "hello", logs.All()[0].Message)
}

func TestFrom_UsesContextLogger(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	ctx := ToContext(context.Background(), zap.New(core).With(RequestID("rid-1")))

	From(ctx).Info("scoped")

	require.Equal(t, 1, logs.Len())
	assert.Equal(t, "rid-1", logs.All()[0].ContextMap()["request_id"])
}

func TestKeyFP_DoesNotLeakKey(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	key := "0123456789abcdef0123456789abcd"

	zap.New(core).Info("served", KeyFP(key))

	fp := logs.All()[0].ContextMap()["key_fp"]
	assert.NotEqual(t, key, fp)
	assert.NotContains(t, fp, key)
}
