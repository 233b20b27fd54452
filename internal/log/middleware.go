package log

import (
	"context"
	"log/slog"
	"net/http"
	"time"
)

type ContextKey string

const LoggerContextKey ContextKey = "logger"

// NewContext returns ctx carrying logger.
func NewContext(ctx context.Context, logger *Logger) context.Context {
	return context.WithValue(ctx, LoggerContextKey, logger)
}

// FromContext extracts a logger from the context, falling back to the
// process default.
func FromContext(ctx context.Context) *Logger {
	if logger, ok := ctx.Value(LoggerContextKey).(*Logger); ok {
		return logger
	}
	return Default()
}

// Middleware puts a request scoped logger in the context and logs each
// completed request. requestID may be nil.
func Middleware(logger *Logger, requestID func(*http.Request) string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			reqLogger := logger.WithComponent(ComponentHTTP)
			if requestID != nil {
				if id := requestID(r); id != "" {
					reqLogger = reqLogger.With(FieldRequestID, id)
				}
			}

			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r.WithContext(NewContext(r.Context(), reqLogger)))

			level := slog.LevelInfo
			switch {
			case rec.status >= 500:
				level = slog.LevelError
			case rec.status >= 400:
				level = slog.LevelWarn
			}
			fields := NewFields().
				WithHTTPRequest(r.Method, r.URL.Path).
				WithHTTPResponse(rec.status, time.Since(start).Milliseconds())
			fields[FieldClientIP] = r.RemoteAddr
			reqLogger.Log(r.Context(), level, "HTTP request completed", fields.ToSlice()...)
		})
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}
