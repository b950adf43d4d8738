package clientip_test

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/subsync/pkg/clientip"
)

func TestFromRequest(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		headers    map[string]string
		remoteAddr string
		trusted    []string
		expected   string
	}{
		{
			name:       "remote addr without trusted headers",
			headers:    map[string]string{"X-Forwarded-For": "203.0.113.7"},
			remoteAddr: "10.0.0.1:54321",
			expected:   "10.0.0.1",
		},
		{
			name:       "first valid forwarded entry",
			headers:    map[string]string{"X-Forwarded-For": "not-an-ip, 203.0.113.7, 10.0.0.2"},
			remoteAddr: "10.0.0.1:54321",
			trusted:    []string{"X-Forwarded-For"},
			expected:   "203.0.113.7",
		},
		{
			name: "trusted order wins",
			headers: map[string]string{
				"CF-Connecting-IP": "198.51.100.4",
				"X-Forwarded-For":  "203.0.113.7",
			},
			remoteAddr: "10.0.0.1:54321",
			trusted:    []string{"CF-Connecting-IP", "X-Forwarded-For"},
			expected:   "198.51.100.4",
		},
		{
			name:       "invalid header falls back to remote addr",
			headers:    map[string]string{"X-Real-IP": "garbage"},
			remoteAddr: "10.0.0.1:54321",
			trusted:    []string{"X-Real-IP"},
			expected:   "10.0.0.1",
		},
		{
			name:       "ipv6 is normalized",
			remoteAddr: "[2001:db8:0:0:0:0:0:1]:443",
			expected:   "2001:db8::1",
		},
		{
			name:       "remote addr without port",
			remoteAddr: "192.0.2.10",
			expected:   "192.0.2.10",
		},
		{
			name:       "unparseable remote addr",
			remoteAddr: "@",
			expected:   "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remoteAddr
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			assert.Equal(t, tt.expected, clientip.FromRequest(req, tt.trusted...))
		})
	}
}

func TestMiddleware(t *testing.T) {
	t.Parallel()

	var got string
	h := clientip.Middleware("X-Real-IP")(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		got = clientip.FromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Real-IP", "203.0.113.9")
	h.ServeHTTP(httptest.NewRecorder(), req)

	assert.Equal(t, "203.0.113.9", got)
}

func TestLoggerExtractor(t *testing.T) {
	t.Parallel()

	extract := clientip.LoggerExtractor()

	_, ok := extract(context.Background())
	assert.False(t, ok)

	attr, ok := extract(clientip.WithContext(context.Background(), "192.0.2.1"))
	require.True(t, ok)
	assert.Equal(t, slog.String("client_ip", "192.0.2.1"), attr)
}
