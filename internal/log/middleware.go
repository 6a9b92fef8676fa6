package log

import (
	"context"
	"log/slog"
	"net/http"
)

type loggerKey struct{}

func NewContext(ctx context.Context, logger *Logger) context.Context {
	return context.WithValue(ctx, loggerKey{}, logger)
}

// FromContext falls back to the slog default when ctx carries no logger.
func FromContext(ctx context.Context) *Logger {
	if logger, ok := ctx.Value(loggerKey{}).(*Logger); ok {
		return logger
	}
	return &Logger{Logger: slog.Default()}
}

// decorate derives the request logger from the one already in the context.
func decorate(fn func(r *http.Request, l *Logger) *Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			l := fn(r, FromContext(r.Context()))
			next.ServeHTTP(w, r.WithContext(NewContext(r.Context(), l)))
		})
	}
}

// Middleware puts logger in every request context.
func Middleware(logger *Logger) func(http.Handler) http.Handler {
	return decorate(func(*http.Request, *Logger) *Logger { return logger })
}

// ComponentMiddleware tags downstream log lines with component.
func ComponentMiddleware(component string) func(http.Handler) http.Handler {
	return decorate(func(_ *http.Request, l *Logger) *Logger { return l.WithComponent(component) })
}

func RequestIDMiddleware(requestID func(*http.Request) string) func(http.Handler) http.Handler {
	return decorate(func(r *http.Request, l *Logger) *Logger { return l.With(FieldRequestID, requestID(r)) })
}
