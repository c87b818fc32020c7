package repositories

import (
	"context"
	"errors"

	"github.com/upb/identity-gateway/models"
)

var (
	// ErrNotFound is returned when a record does not exist
	ErrNotFound = errors.New("record not found")

	// ErrAlreadyExists is returned when a record with the same key exists
	ErrAlreadyExists = errors.New("record already exists")
)

// TransactionManager runs a unit of work atomically. Repositories called with
// the ctx passed to fn take part in the transaction.
type TransactionManager interface {
	InTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// CredentialRepository looks up local username/password records
type CredentialRepository interface {
	// GetByUsername returns the credential for an exact username match, or ErrNotFound
	GetByUsername(ctx context.Context, username string) (*models.Credential, error)

	// Count returns the number of stored credentials
	Count(ctx context.Context) (int, error)
}

// CredentialWriter is implemented by stores that accept new credentials at runtime
type CredentialWriter interface {
	// Upsert inserts the credential or replaces the existing one with the same username
	Upsert(ctx context.Context, cred *models.Credential) error
}

// TodoRepository stores the per-user todo lists
type TodoRepository interface {
	// ListByOwner returns the owner's todos in creation order; an unknown owner has an empty list
	ListByOwner(ctx context.Context, owner string) ([]models.Todo, error)

	// Create appends a todo to the owner's list; a duplicate id yields ErrAlreadyExists
	Create(ctx context.Context, owner string, todo models.Todo) error
}

// Repositories holds all repository instances
type Repositories struct {
	Credentials CredentialRepository
	Todos       TodoRepository
}
