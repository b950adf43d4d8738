package logger_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/subsync/pkg/logger"
)

func decode(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	return entry
}

func TestNew(t *testing.T) {
	t.Run("json by default", func(t *testing.T) {
		buf := &bytes.Buffer{}
		log := logger.New(logger.WithOutput(buf))
		log.Info("hello")

		entry := decode(t, buf)
		assert.Equal(t, "INFO", entry["level"])
		assert.Equal(t, "hello", entry["msg"])
	})

	t.Run("debug filtered at info", func(t *testing.T) {
		buf := &bytes.Buffer{}
		log := logger.New(logger.WithOutput(buf))
		log.Debug("hidden")
		assert.Empty(t, buf.String())
	})

	t.Run("text format", func(t *testing.T) {
		buf := &bytes.Buffer{}
		log := logger.New(logger.WithOutput(buf), logger.WithFormat(logger.FormatText), logger.WithLevel(slog.LevelDebug))
		log.Debug("hello")
		assert.Contains(t, buf.String(), "level=DEBUG")
		assert.Contains(t, buf.String(), "msg=hello")
	})

	t.Run("invalid format panics", func(t *testing.T) {
		assert.Panics(t, func() { logger.WithFormat("yaml") })
	})

	t.Run("static attributes", func(t *testing.T) {
		buf := &bytes.Buffer{}
		log := logger.New(logger.WithOutput(buf), logger.WithAttr(slog.String("svc", "billing")))
		log.Info("msg")
		assert.Equal(t, "billing", decode(t, buf)["svc"])
	})

	t.Run("context extractors", func(t *testing.T) {
		type key struct{}
		buf := &bytes.Buffer{}
		log := logger.New(
			logger.WithOutput(buf),
			logger.WithContextExtractors(nil, func(ctx context.Context) (slog.Attr, bool) {
				v, ok := ctx.Value(key{}).(string)
				if !ok {
					return slog.Attr{}, false
				}
				return logger.RequestID(v), true
			}),
		)

		log.With(logger.Component("test")).InfoContext(context.WithValue(context.Background(), key{}, "req-1"), "with id")
		entry := decode(t, buf)
		assert.Equal(t, "req-1", entry["request_id"])
		assert.Equal(t, "test", entry["component"])

		buf.Reset()
		log.InfoContext(context.Background(), "without id")
		assert.NotContains(t, decode(t, buf), "request_id")
	})
}

func TestWithEnvironment(t *testing.T) {
	tests := []struct {
		env       string
		wantEnv   string
		wantJSON  bool
		wantDebug bool
	}{
		{env: "production", wantEnv: "production", wantJSON: true},
		{env: "PROD", wantEnv: "production", wantJSON: true},
		{env: "stage", wantEnv: "staging", wantJSON: true},
		{env: "development", wantEnv: "development", wantDebug: true},
		{env: "", wantEnv: "development", wantDebug: true},
	}

	for _, tt := range tests {
		t.Run(tt.env, func(t *testing.T) {
			buf := &bytes.Buffer{}
			log := logger.New(logger.WithOutput(buf), logger.WithEnvironment(tt.env, "subsync"))

			assert.Equal(t, tt.wantDebug, log.Enabled(context.Background(), slog.LevelDebug))

			log.Info("boot")
			if tt.wantJSON {
				entry := decode(t, buf)
				assert.Equal(t, tt.wantEnv, entry["env"])
				assert.Equal(t, "subsync", entry["service"])
				return
			}
			assert.Contains(t, buf.String(), "env="+tt.wantEnv)
			assert.Contains(t, buf.String(), "service=subsync")
		})
	}
}

func TestNop(t *testing.T) {
	log := logger.Nop()
	require.NotNil(t, log)
	assert.False(t, log.Enabled(context.Background(), slog.LevelError))
}

func TestAttrs(t *testing.T) {
	assert.Equal(t, slog.Attr{}, logger.Error(nil))
	assert.Equal(t, "boom", logger.Error(errors.New("boom")).Value.Any().(error).Error())

	assert.Equal(t, slog.Attr{}, logger.UserID(nil))
	assert.Equal(t, "user_id", logger.UserID(42).Key)

	assert.Equal(t, slog.Attr{}, logger.CustomerID(""))
	assert.Equal(t, slog.String("customer_id", "cus_1"), logger.CustomerID("cus_1"))

	assert.Equal(t, slog.Attr{}, logger.EventID(""))
	assert.Equal(t, slog.String("event_id", "evt_1"), logger.EventID("evt_1"))

	assert.Equal(t, slog.Attr{}, logger.PriceID(""))
	assert.Equal(t, slog.String("price_id", "price_1"), logger.PriceID("price_1"))

	assert.Equal(t, slog.String("provider", "stripe"), logger.Provider("stripe"))
	assert.Equal(t, slog.String("event_type", "payment_succeeded"), logger.EventType("payment_succeeded"))
	assert.Equal(t, slog.String("reason", "unknown_price_id"), logger.Reason("unknown_price_id"))
}
