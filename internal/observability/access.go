package observability

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"
)

type statusWriter struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Write(b []byte) (int, error) {
	n, err := w.ResponseWriter.Write(b)
	w.bytes += n
	return n, err
}

// AccessLog records one log line and one request metric per HTTP request.
// route maps a request to a low-cardinality label; nil falls back to the raw path.
func AccessLog(logger *slog.Logger, metrics *Metrics, route func(*http.Request) string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
			start := time.Now()
			next.ServeHTTP(sw, r)
			dur := time.Since(start)

			label := r.URL.Path
			if route != nil {
				label = route(r)
			}
			if metrics != nil {
				metrics.HTTPRequests.WithLabelValues(r.Method, label, strconv.Itoa(sw.status)).Inc()
				metrics.HTTPDuration.WithLabelValues(r.Method, label).Observe(dur.Seconds())
			}
			logger.Debug("http access",
				"method", r.Method,
				"path", r.URL.Path,
				"status", sw.status,
				"bytes", sw.bytes,
				"duration_ms", dur.Milliseconds(),
				"remote", r.RemoteAddr,
			)
		})
	}
}
