package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"leboncoin-scraper/utils"
)

type ctxKey int

const loggerKey ctxKey = iota

// LoggerMiddleware tags each request with a trace id (X-Trace-ID or a new
// uuid) and logs its start and end.
func LoggerMiddleware(logger *utils.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			traceID := r.Header.Get("X-Trace-ID")
			if traceID == "" {
				traceID = uuid.NewString()
			}
			reqLogger := logger.With("trace_id", traceID)
			httpLogger := reqLogger.With("http_method", r.Method, "http_path", r.URL.Path, "remote_addr", r.RemoteAddr)

			ctx := context.WithValue(r.Context(), loggerKey, reqLogger)
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			ww.Header().Set("X-Trace-ID", traceID)
			start := time.Now()

			httpLogger.Info("Request started")
			next.ServeHTTP(ww, r.WithContext(ctx))
			httpLogger.With(
				"status_code", ww.Status(),
				"bytes_written", ww.BytesWritten(),
				"duration_ms", time.Since(start).Milliseconds(),
			).Info("Request finished")
		})
	}
}

// loggerFrom returns the request logger set by LoggerMiddleware, or fallback.
func loggerFrom(ctx context.Context, fallback *utils.Logger) *utils.Logger {
	if l, ok := ctx.Value(loggerKey).(*utils.Logger); ok {
		return l
	}
	return fallback
}
