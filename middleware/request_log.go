package middleware

import (
	"context"
	"net/http"
	"strconv"
	"sync"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/upb/identity-gateway/observability"
)

// accessLogEntry collects fields that inner middleware learn about a request
type accessLogEntry struct {
	mu        sync.Mutex
	principal string
}

func (e *accessLogEntry) setPrincipal(name string) {
	e.mu.Lock()
	e.principal = name
	e.mu.Unlock()
}

func (e *accessLogEntry) getPrincipal() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.principal
}

// RequestLogger writes one line per request after it completes: method, URI,
// status, duration and the principal, if any.
func RequestLogger(logger *zap.Logger, metrics *observability.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			entry := &accessLogEntry{}
			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)

			ctx := context.WithValue(r.Context(), accessLogKey, entry)
			next.ServeHTTP(ww, r.WithContext(ctx))

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			took := time.Since(start)
			metrics.ObserveRequest(r.Method, strconv.Itoa(status), took)

			logger.Info("request",
				zap.String("request_id", GetRequestIDFromContext(ctx)),
				zap.String("method", r.Method),
				zap.String("uri", r.URL.RequestURI()),
				zap.Int("status", status),
				zap.Duration("duration", took),
				zap.String("principal", entry.getPrincipal()),
				zap.String("remote_addr", r.RemoteAddr))
		})
	}
}
