package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/upb/identity-gateway/models"
	"github.com/upb/identity-gateway/repositories"
)

// TodoRepository keeps todo lists in process memory.
type TodoRepository struct {
	mu      sync.RWMutex
	byOwner map[string][]models.Todo
}

// NewTodoRepository creates an empty repository
func NewTodoRepository() *TodoRepository {
	return &TodoRepository{byOwner: make(map[string][]models.Todo)}
}

// ListByOwner returns a copy of the owner's list
func (r *TodoRepository) ListByOwner(_ context.Context, owner string) ([]models.Todo, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	todos := make([]models.Todo, len(r.byOwner[owner]))
	copy(todos, r.byOwner[owner])
	return todos, nil
}

// Create appends todo to the owner's list
func (r *TodoRepository) Create(_ context.Context, owner string, todo models.Todo) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.byOwner[owner] {
		if existing.ID == todo.ID {
			return fmt.Errorf("%w: todo %s", repositories.ErrAlreadyExists, todo.ID)
		}
	}
	r.byOwner[owner] = append(r.byOwner[owner], todo)
	return nil
}
