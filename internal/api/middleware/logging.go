package middleware

import (
	"net/http"
	"time"

	"github.com/ManuGH/robohub-inference/internal/log"
)

// AccessLog writes one structured line per request.
func AccessLog() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			sw := wrap(w)
			next.ServeHTTP(sw, r)

			logger := log.WithComponentFromContext(r.Context(), "api")
			ev := logger.Info()
			switch {
			case sw.status >= 500:
				ev = logger.Error()
			case r.URL.Path == "/healthz" || r.URL.Path == "/metrics":
				ev = logger.Debug()
			}
			ev.Str(log.FieldEvent, "http.request").
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Str("route", routeLabel(r)).
				Int("status", sw.status).
				Int("bytes", sw.written).
				Dur("duration", time.Since(start)).
				Str("remote_addr", r.RemoteAddr).
				Msg("request handled")
		})
	}
}
