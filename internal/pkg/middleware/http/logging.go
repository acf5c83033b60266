// Package http holds middleware for the exporter's HTTP endpoints.
package http

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/autopeer-io/polestar-exporter/pkg/log"
)

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Logging logs every request at debug level and every server error at error level.
func Logging(logger log.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)

			kv := []any{"method", r.Method, "path", r.URL.Path, "status", rec.status, "duration", time.Since(start), "remote", r.RemoteAddr}
			if rec.status >= http.StatusInternalServerError {
				logger.Error(nil, "HTTP request failed", kv...)
				return
			}
			logger.Debug("HTTP request served", kv...)
		})
	}
}
