package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/upb/identity-gateway/models"
	"github.com/upb/identity-gateway/repositories"
)

// CredentialRepository reads credentials from the credentials table
type CredentialRepository struct {
	db     *DB
	logger *zap.Logger
}

// NewCredentialRepository creates a new credential repository
func NewCredentialRepository(db *DB, logger *zap.Logger) *CredentialRepository {
	return &CredentialRepository{db: db, logger: logger}
}

// GetByUsername retrieves a credential by exact username
func (r *CredentialRepository) GetByUsername(ctx context.Context, username string) (*models.Credential, error) {
	query := `
		SELECT username, password_hash, roles
		FROM credentials
		WHERE username = $1
	`

	cred := &models.Credential{}
	err := executor(ctx, r.db).QueryRowContext(ctx, query, username).Scan(
		&cred.Username,
		&cred.PasswordHash,
		pq.Array(&cred.Roles),
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: credential %s", repositories.ErrNotFound, username)
		}
		return nil, fmt.Errorf("failed to get credential: %w", err)
	}

	return cred, nil
}

// Count returns the number of stored credentials
func (r *CredentialRepository) Count(ctx context.Context) (int, error) {
	var n int
	if err := executor(ctx, r.db).QueryRowContext(ctx, `SELECT COUNT(*) FROM credentials`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count credentials: %w", err)
	}
	return n, nil
}

// Upsert inserts or replaces a credential
func (r *CredentialRepository) Upsert(ctx context.Context, cred *models.Credential) error {
	query := `
		INSERT INTO credentials (username, password_hash, roles)
		VALUES ($1, $2, $3)
		ON CONFLICT (username) DO UPDATE
		SET password_hash = EXCLUDED.password_hash,
		    roles = EXCLUDED.roles,
		    updated_at = CURRENT_TIMESTAMP
	`

	roles := cred.Roles
	if roles == nil {
		roles = []string{}
	}
	if _, err := executor(ctx, r.db).ExecContext(ctx, query, cred.Username, cred.PasswordHash, pq.Array(roles)); err != nil {
		return fmt.Errorf("failed to upsert credential: %w", err)
	}

	r.logger.Debug("credential upserted", zap.String("username", cred.Username))
	return nil
}
