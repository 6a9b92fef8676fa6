// Package trace tags every request with an id and logs its outcome.
package trace

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"log/slog"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"spendly/internal/log"
)

// HeaderRequestID carries the request id back to the client.
const HeaderRequestID = "X-Request-ID"

type ctxKey struct{}

type Metrics struct {
	TotalRequests int64
	ServerErrors  int64
	// AverageResponseTime holds the latest request's duration in microseconds.
	AverageResponseTime int64
}

type Middleware struct {
	clientIP func(*http.Request) string

	total   atomic.Int64
	errors5 atomic.Int64
	lastDur atomic.Int64
}

// NewMiddleware logs the client address resolved by clientIP, which may be nil.
func NewMiddleware(clientIP func(*http.Request) string) *Middleware {
	return &Middleware{clientIP: clientIP}
}

func (m *Middleware) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		id := GenerateRequestID()
		ctx := context.WithValue(r.Context(), ctxKey{}, id)
		r = r.WithContext(ctx)
		w.Header().Set(HeaderRequestID, id)

		var ip string
		if m.clientIP != nil {
			ip = m.clientIP(r)
		}
		slog.DebugContext(ctx, "HTTP request started",
			log.FieldRequestID, id,
			log.FieldMethod, r.Method,
			log.FieldPath, r.URL.Path,
			log.FieldQuery, r.URL.RawQuery,
			log.FieldClientIP, ip,
			log.FieldUserAgent, r.UserAgent())

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		elapsed := time.Since(start)

		m.total.Add(1)
		m.lastDur.Store(elapsed.Microseconds())
		if status >= http.StatusInternalServerError {
			m.errors5.Add(1)
		}

		slog.Log(ctx, levelFor(status), "HTTP request completed",
			log.FieldRequestID, id,
			log.FieldMethod, r.Method,
			log.FieldPath, r.URL.Path,
			log.FieldStatusCode, status,
			log.FieldDuration, elapsed.Milliseconds(),
			log.FieldDurationHuman, elapsed.String(),
			log.FieldClientIP, ip,
			log.FieldSuccess, status < http.StatusBadRequest,
			"bytes", ww.BytesWritten())
	})
}

func levelFor(status int) slog.Level {
	switch {
	case status >= http.StatusInternalServerError:
		return slog.LevelError
	case status >= http.StatusBadRequest:
		return slog.LevelWarn
	default:
		return slog.LevelInfo
	}
}

// GenerateRequestID returns "req_" followed by 16 hex digits.
func GenerateRequestID() string {
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "req_" + strconv.FormatInt(time.Now().UnixNano(), 16)
	}
	return "req_" + hex.EncodeToString(b[:])
}

func GetRequestID(ctx context.Context) string {
	id, _ := ctx.Value(ctxKey{}).(string)
	return id
}

// RequestIDFromRequest is the extractor handed to log.RequestIDMiddleware.
func RequestIDFromRequest(r *http.Request) string {
	return GetRequestID(r.Context())
}

func (m *Middleware) GetMetrics() Metrics {
	return Metrics{
		TotalRequests:       m.total.Load(),
		ServerErrors:        m.errors5.Load(),
		AverageResponseTime: m.lastDur.Load(),
	}
}
