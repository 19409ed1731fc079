package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"
)

// HTTPMetricsMiddleware records count and latency for every request.
func HTTPMetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(ww, r)
		ObserveHTTPRequest(r.Method, metricPath(r.URL.Path), strconv.Itoa(ww.status), time.Since(start))
	})
}

// metricPath collapses the per-user path segment so the request series
// stay bounded: /api/users/<uuid>/status becomes /api/users/:id/status.
func metricPath(path string) string {
	const prefix = "/api/users/"
	if !strings.HasPrefix(path, prefix) {
		return path
	}
	rest := strings.SplitN(path[len(prefix):], "/", 2)
	if rest[0] == "" {
		return path
	}
	rest[0] = ":id"
	return prefix + strings.Join(rest, "/")
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}
