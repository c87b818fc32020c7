package handlers

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/upb/identity-gateway/middleware"
	"github.com/upb/identity-gateway/models"
	"github.com/upb/identity-gateway/services"
	"github.com/upb/identity-gateway/utils"
)

// TodoService is the application logic behind the todo endpoints
type TodoService interface {
	List(ctx context.Context, owner string) ([]models.Todo, error)
	Create(ctx context.Context, owner string, todo models.Todo) (*models.Todo, error)
}

// TodoHandler serves the todo endpoints. Operation checks run in middleware.
type TodoHandler struct {
	service TodoService
	logger  *zap.Logger
}

// NewTodoHandler creates a new todo handler
func NewTodoHandler(service TodoService, logger *zap.Logger) *TodoHandler {
	return &TodoHandler{service: service, logger: logger}
}

// HandleListOwn serves GET /todos
func (h *TodoHandler) HandleListOwn(w http.ResponseWriter, r *http.Request) {
	principal, ok := middleware.GetPrincipalFromContext(r.Context())
	if !ok {
		HandleServiceError(w, services.ErrUnauthorized, h.logger)
		return
	}
	h.writeList(w, r, principal.Name)
}

// HandleListForUser serves GET /todos/{userName}
func (h *TodoHandler) HandleListForUser(w http.ResponseWriter, r *http.Request) {
	h.writeList(w, r, chi.URLParam(r, "userName"))
}

// HandleCreate serves POST /todos
func (h *TodoHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	principal, ok := middleware.GetPrincipalFromContext(r.Context())
	if !ok {
		HandleServiceError(w, services.ErrUnauthorized, h.logger)
		return
	}

	var req models.CreateTodoRequest
	if err := utils.DecodeJSON(r, &req); err != nil {
		HandleValidationError(w, err, h.logger)
		return
	}
	if err := utils.ValidateStruct(req); err != nil {
		HandleValidationError(w, err, h.logger)
		return
	}

	todo, err := h.service.Create(r.Context(), principal.Name, req.ToTodo())
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}
	if err := utils.WriteCreated(w, todo); err != nil {
		h.logger.Error("failed to write response", zap.Error(err))
	}
}

func (h *TodoHandler) writeList(w http.ResponseWriter, r *http.Request, owner string) {
	todos, err := h.service.List(r.Context(), owner)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}
	if err := utils.WriteOK(w, todos); err != nil {
		h.logger.Error("failed to write response", zap.Error(err))
	}
}
