package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/upb/identity-gateway/middleware"
	"github.com/upb/identity-gateway/models"
)

func TestHandleCurrentUser(t *testing.T) {
	handler := NewUserHandler(zap.NewNop())

	t.Run("returns name and groups without role prefix", func(t *testing.T) {
		principal := models.NewPrincipal("carol", models.SourceBearer, []string{"sre", "staff"})
		req := httptest.NewRequest(http.MethodGet, "/user", nil)
		req = req.WithContext(middleware.WithPrincipal(req.Context(), principal))
		rec := httptest.NewRecorder()

		handler.HandleCurrentUser(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"data":{"name":"carol","groups":["sre","staff"]}}`, rec.Body.String())
	})

	t.Run("no groups renders an empty list", func(t *testing.T) {
		principal := models.NewPrincipal("dave", models.SourceBearer, nil)
		req := httptest.NewRequest(http.MethodGet, "/user", nil)
		req = req.WithContext(middleware.WithPrincipal(req.Context(), principal))
		rec := httptest.NewRecorder()

		handler.HandleCurrentUser(rec, req)

		var body struct {
			Data map[string]interface{} `json:"data"`
		}
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
		assert.Equal(t, []interface{}{}, body.Data["groups"])
	})

	t.Run("no principal is unauthorized", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/user", nil)
		rec := httptest.NewRecorder()

		handler.HandleCurrentUser(rec, req)

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.JSONEq(t, `{"error":"unauthorized","message":"Authentication required"}`, rec.Body.String())
	})
}
