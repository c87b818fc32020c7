package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestRequestLogger(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	logger := zap.New(core)

	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r = r.WithContext(WithPrincipal(r.Context(), alice))
		w.WriteHeader(http.StatusCreated)
	})
	handler := chimw.RequestID(RequestLogger(logger, nil)(inner))

	req := httptest.NewRequest(http.MethodPost, "/todos?x=1", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	fields := entry.ContextMap()
	assert.Equal(t, "request", entry.Message)
	assert.Equal(t, "POST", fields["method"])
	assert.Equal(t, "/todos?x=1", fields["uri"])
	assert.Equal(t, int64(http.StatusCreated), fields["status"])
	assert.Equal(t, "alice", fields["principal"])
	assert.NotEmpty(t, fields["request_id"])
}

func TestRequestLogger_DefaultStatus(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)

	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})
	handler := RequestLogger(zap.New(core), nil)(inner)

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	require.Equal(t, 1, logs.Len())
	assert.Equal(t, int64(http.StatusOK), logs.All()[0].ContextMap()["status"])
	assert.Equal(t, "", logs.All()[0].ContextMap()["principal"])
}
