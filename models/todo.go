package models

import "github.com/google/uuid"

// Todo is a single entry in a user's todo list
type Todo struct {
	ID      uuid.UUID `json:"id" validate:"required"`
	Content string    `json:"content" validate:"required,min=1,max=256"`
}

// CreateTodoRequest is the payload accepted by POST /todos
type CreateTodoRequest struct {
	ID      uuid.UUID `json:"id" validate:"required"`
	Content string    `json:"content" validate:"required,min=1,max=256"`
}

// ToTodo converts the request into a Todo
func (r CreateTodoRequest) ToTodo() Todo {
	return Todo{ID: r.ID, Content: r.Content}
}
