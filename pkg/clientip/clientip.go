// Package clientip resolves the address of the client behind an HTTP request.
//
// Forwarding headers are only consulted when they are explicitly trusted, since any
// client can set them. Behind Cloudflare trust "CF-Connecting-IP"; behind an
// nginx or load balancer that overwrites it, trust "X-Forwarded-For".
package clientip

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"strings"

	"github.com/dmitrymomot/subsync/pkg/logger"
)

// Config lists the forwarding headers set by the proxy in front of the service.
type Config struct {
	TrustedHeaders []string `env:"HTTP_TRUSTED_IP_HEADERS" envSeparator:","`
}

// FromRequest returns the normalized client IP. Trusted headers are checked in the
// given order; for X-Forwarded-For the first valid entry wins. RemoteAddr is the fallback.
func FromRequest(r *http.Request, trusted ...string) string {
	for _, name := range trusted {
		value := r.Header.Get(name)
		if value == "" {
			continue
		}
		for candidate := range strings.SplitSeq(value, ",") {
			if ip := parseIP(candidate); ip != "" {
				return ip
			}
		}
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return parseIP(r.RemoteAddr)
	}
	return parseIP(host)
}

func parseIP(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	ip := net.ParseIP(s)
	if ip == nil {
		return ""
	}
	return ip.String()
}

type contextKey struct{}

func WithContext(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, contextKey{}, ip)
}

func FromContext(ctx context.Context) string {
	ip, _ := ctx.Value(contextKey{}).(string)
	return ip
}

// Middleware stores the resolved client IP in the request context.
func Middleware(trusted ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := WithContext(r.Context(), FromRequest(r, trusted...))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// LoggerExtractor adds the client IP to log records as "client_ip".
func LoggerExtractor() logger.ContextExtractor {
	return func(ctx context.Context) (slog.Attr, bool) {
		ip := FromContext(ctx)
		if ip == "" {
			return slog.Attr{}, false
		}
		return slog.String("client_ip", ip), true
	}
}
