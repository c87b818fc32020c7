package postgres

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/upb/identity-gateway/config"
	"github.com/upb/identity-gateway/models"
	"github.com/upb/identity-gateway/repositories"
)

// RepositoryFactory creates and manages all repositories
type RepositoryFactory struct {
	db     *DB
	logger *zap.Logger
}

// NewRepositoryFactory connects to the database described by cfg
func NewRepositoryFactory(cfg config.DatabaseConfig, logger *zap.Logger) (*RepositoryFactory, error) {
	db, err := NewDB(cfg, logger)
	if err != nil {
		return nil, err
	}
	return &RepositoryFactory{db: db, logger: logger}, nil
}

// NewRepositories creates all repository instances
func (f *RepositoryFactory) NewRepositories() *repositories.Repositories {
	return &repositories.Repositories{
		Credentials: NewCredentialRepository(f.db, f.logger),
		Todos:       NewTodoRepository(f.db, f.logger),
	}
}

// SeedCredentials inserts creds in one transaction when the table is empty.
// It reports whether anything was written.
func (f *RepositoryFactory) SeedCredentials(ctx context.Context, creds []models.Credential) (bool, error) {
	repo := NewCredentialRepository(f.db, f.logger)
	seeded := false

	err := NewTxManager(f.db, f.logger).InTransaction(ctx, func(ctx context.Context) error {
		n, err := repo.Count(ctx)
		if err != nil {
			return err
		}
		if n > 0 {
			return nil
		}
		for i := range creds {
			if err := repo.Upsert(ctx, &creds[i]); err != nil {
				return err
			}
		}
		seeded = true
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("failed to seed credentials: %w", err)
	}
	return seeded, nil
}

// GetDB returns the database connection
func (f *RepositoryFactory) GetDB() *DB {
	return f.db
}

// Close closes the database connection
func (f *RepositoryFactory) Close() error {
	return f.db.Close()
}
