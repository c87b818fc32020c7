package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/upb/identity-gateway/middleware"
	"github.com/upb/identity-gateway/models"
	"github.com/upb/identity-gateway/services"
	"github.com/upb/identity-gateway/utils"
)

// UserResponse describes the caller to the single page application
type UserResponse struct {
	Name   string   `json:"name"`
	Groups []string `json:"groups"`
}

// NewUserResponse strips the ROLE_ prefix from the principal's authorities
func NewUserResponse(p models.Principal) UserResponse {
	return UserResponse{Name: p.Name, Groups: p.Groups()}
}

// UserHandler serves GET /user
type UserHandler struct {
	logger *zap.Logger
}

// NewUserHandler creates a new user handler
func NewUserHandler(logger *zap.Logger) *UserHandler {
	return &UserHandler{logger: logger}
}

// HandleCurrentUser returns the caller's name and groups
func (h *UserHandler) HandleCurrentUser(w http.ResponseWriter, r *http.Request) {
	principal, ok := middleware.GetPrincipalFromContext(r.Context())
	if !ok {
		HandleServiceError(w, services.ErrUnauthorized, h.logger)
		return
	}
	if err := utils.WriteOK(w, NewUserResponse(principal)); err != nil {
		h.logger.Error("failed to write response", zap.Error(err))
	}
}
