package middleware

import (
	"net/http"
	"slices"
	"time"

	"github.com/kbukum/audioscribe/logger"
)

var probePaths = []string{"/health", "/alive", "/ready", "/metrics"}

// RequestLogger returns middleware that logs every request with method,
// path, status code and duration. Probe paths are skipped. WebSocket
// sessions are logged once they end, with the duration of the session.
func RequestLogger(log *logger.Logger) Middleware {
	log = logger.OrDefault(log)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if slices.Contains(probePaths, r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}

			start := time.Now()
			sw := newStatusWriter(w)
			next.ServeHTTP(sw, r)

			fields := logger.Fields(
				"method", r.Method,
				logger.FieldPath, r.URL.Path,
				logger.FieldStatus, sw.status,
				logger.FieldDuration, time.Since(start).Milliseconds(),
			)
			if id := r.Header.Get(HeaderRequestID); id != "" {
				fields[logger.FieldRequestID] = id
			}
			if sw.hijacked {
				fields["upgraded"] = true
			}
			logByStatus(log, fields, sw.status)
		})
	}
}

func logByStatus(log *logger.Logger, fields map[string]interface{}, status int) {
	switch {
	case status >= 500:
		log.Error("request completed", fields)
	case status >= 400:
		log.Warn("request completed", fields)
	default:
		log.Debug("request completed", fields)
	}
}
