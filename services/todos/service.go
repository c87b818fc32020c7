package todos

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/upb/identity-gateway/models"
	"github.com/upb/identity-gateway/repositories"
	"github.com/upb/identity-gateway/services"
)

// Service manages per-user todo lists. Callers are authorized before they get here.
type Service struct {
	repo   repositories.TodoRepository
	logger *zap.Logger
}

// NewService creates a new todo service
func NewService(repo repositories.TodoRepository, logger *zap.Logger) *Service {
	return &Service{repo: repo, logger: logger}
}

// List returns owner's todos
func (s *Service) List(ctx context.Context, owner string) ([]models.Todo, error) {
	todos, err := s.repo.ListByOwner(ctx, owner)
	if err != nil {
		return nil, services.Wrap(services.ErrInternal, err)
	}
	return todos, nil
}

// Create appends todo to owner's list
func (s *Service) Create(ctx context.Context, owner string, todo models.Todo) (*models.Todo, error) {
	if err := s.repo.Create(ctx, owner, todo); err != nil {
		if errors.Is(err, repositories.ErrAlreadyExists) {
			return nil, services.ErrTodoExists.WithDetail("id", todo.ID.String())
		}
		return nil, services.Wrap(services.ErrInternal, err)
	}

	s.logger.Info("todo created",
		zap.String("owner", owner),
		zap.String("todo_id", todo.ID.String()))
	return &todo, nil
}
