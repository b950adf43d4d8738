package httpserver

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/dmitrymomot/subsync/pkg/logger"
)

// Check is a readiness probe.
type Check func(context.Context) error

// LivenessHandler always answers 200 ALIVE.
func LivenessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeStatus(w, http.StatusOK, "ALIVE")
	}
}

// ReadinessHandler runs every check with the request context and answers
// 503 NOT_READY on the first failure, 200 READY otherwise.
func ReadinessHandler(log *slog.Logger, checks ...Check) http.HandlerFunc {
	if log == nil {
		log = logger.Nop()
	}
	return func(w http.ResponseWriter, r *http.Request) {
		for _, check := range checks {
			if err := check(r.Context()); err != nil {
				log.ErrorContext(r.Context(), "readiness check failed", logger.Error(err))
				writeStatus(w, http.StatusServiceUnavailable, "NOT_READY")
				return
			}
		}
		writeStatus(w, http.StatusOK, "READY")
	}
}

func writeStatus(w http.ResponseWriter, code int, body string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(code)
	_, _ = w.Write([]byte(body))
}
