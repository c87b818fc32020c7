package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/upb/identity-gateway/models"
	"github.com/upb/identity-gateway/repositories"
)

// uniqueViolation is the PostgreSQL error code for unique_violation
const uniqueViolation = "23505"

// TodoRepository stores todos in the todos table
type TodoRepository struct {
	db     *DB
	logger *zap.Logger
}

// NewTodoRepository creates a new todo repository
func NewTodoRepository(db *DB, logger *zap.Logger) *TodoRepository {
	return &TodoRepository{db: db, logger: logger}
}

// ListByOwner returns the owner's todos in creation order
func (r *TodoRepository) ListByOwner(ctx context.Context, owner string) ([]models.Todo, error) {
	query := `
		SELECT id, content
		FROM todos
		WHERE owner = $1
		ORDER BY seq
	`

	rows, err := executor(ctx, r.db).QueryContext(ctx, query, owner)
	if err != nil {
		return nil, fmt.Errorf("failed to list todos: %w", err)
	}
	defer rows.Close()

	todos := []models.Todo{}
	for rows.Next() {
		var todo models.Todo
		if err := rows.Scan(&todo.ID, &todo.Content); err != nil {
			return nil, fmt.Errorf("failed to scan todo: %w", err)
		}
		todos = append(todos, todo)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate todos: %w", err)
	}

	return todos, nil
}

// Create inserts a todo for owner
func (r *TodoRepository) Create(ctx context.Context, owner string, todo models.Todo) error {
	query := `
		INSERT INTO todos (id, owner, content)
		VALUES ($1, $2, $3)
	`

	if _, err := executor(ctx, r.db).ExecContext(ctx, query, todo.ID, owner, todo.Content); err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return fmt.Errorf("%w: todo %s", repositories.ErrAlreadyExists, todo.ID)
		}
		return fmt.Errorf("failed to create todo: %w", err)
	}

	r.logger.Debug("todo created", zap.String("owner", owner), zap.String("todo_id", todo.ID.String()))
	return nil
}
