package postgres

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/upb/identity-gateway/models"
	"github.com/upb/identity-gateway/repositories"
)

func newMockDB(t *testing.T) (*DB, sqlmock.Sqlmock) {
	sqlDB, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })
	return NewFromSQL(sqlDB, zap.NewNop()), mock
}

func TestCredentialRepository_GetByUsername(t *testing.T) {
	ctx := context.Background()

	t.Run("found", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewCredentialRepository(db, zap.NewNop())

		mock.ExpectQuery("SELECT username, password_hash, roles FROM credentials WHERE username = \\$1").
			WithArgs("carol").
			WillReturnRows(sqlmock.NewRows([]string{"username", "password_hash", "roles"}).
				AddRow("carol", "$2a$10$hash", "{staff,sre}"))

		cred, err := repo.GetByUsername(ctx, "carol")
		require.NoError(t, err)
		assert.Equal(t, "carol", cred.Username)
		assert.Equal(t, "$2a$10$hash", cred.PasswordHash)
		assert.Equal(t, []string{"staff", "sre"}, cred.Roles)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("not found", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewCredentialRepository(db, zap.NewNop())

		mock.ExpectQuery("FROM credentials").
			WithArgs("mallory").
			WillReturnRows(sqlmock.NewRows([]string{"username", "password_hash", "roles"}))

		_, err := repo.GetByUsername(ctx, "mallory")
		assert.ErrorIs(t, err, repositories.ErrNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("query error", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewCredentialRepository(db, zap.NewNop())

		mock.ExpectQuery("FROM credentials").WillReturnError(errors.New("connection reset"))

		_, err := repo.GetByUsername(ctx, "alice")
		require.Error(t, err)
		assert.NotErrorIs(t, err, repositories.ErrNotFound)
	})
}

func TestRepositoryFactory_SeedCredentials(t *testing.T) {
	ctx := context.Background()
	creds := []models.Credential{
		{Username: "alice", PasswordHash: "h1", Roles: []string{"staff"}},
		{Username: "carol", PasswordHash: "h2", Roles: []string{"staff", "sre"}},
	}

	t.Run("seeds an empty table", func(t *testing.T) {
		db, mock := newMockDB(t)
		f := &RepositoryFactory{db: db, logger: zap.NewNop()}

		mock.ExpectBegin()
		mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM credentials").
			WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
		mock.ExpectExec("INSERT INTO credentials").
			WithArgs("alice", "h1", pq.Array([]string{"staff"})).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec("INSERT INTO credentials").
			WithArgs("carol", "h2", pq.Array([]string{"staff", "sre"})).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		seeded, err := f.SeedCredentials(ctx, creds)
		require.NoError(t, err)
		assert.True(t, seeded)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("leaves a populated table alone", func(t *testing.T) {
		db, mock := newMockDB(t)
		f := &RepositoryFactory{db: db, logger: zap.NewNop()}

		mock.ExpectBegin()
		mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM credentials").
			WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(4))
		mock.ExpectCommit()

		seeded, err := f.SeedCredentials(ctx, creds)
		require.NoError(t, err)
		assert.False(t, seeded)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("rolls back on insert failure", func(t *testing.T) {
		db, mock := newMockDB(t)
		f := &RepositoryFactory{db: db, logger: zap.NewNop()}

		mock.ExpectBegin()
		mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM credentials").
			WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
		mock.ExpectExec("INSERT INTO credentials").WillReturnError(errors.New("disk full"))
		mock.ExpectRollback()

		seeded, err := f.SeedCredentials(ctx, creds)
		assert.Error(t, err)
		assert.False(t, seeded)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestDB_HealthCheck(t *testing.T) {
	t.Run("healthy", func(t *testing.T) {
		db, mock := newMockDB(t)
		mock.ExpectPing()
		mock.ExpectQuery("SELECT 1").WillReturnRows(sqlmock.NewRows([]string{"?column?"}).AddRow(1))

		assert.NoError(t, db.HealthCheck(context.Background()))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("ping fails", func(t *testing.T) {
		db, mock := newMockDB(t)
		mock.ExpectPing().WillReturnError(errors.New("refused"))

		assert.Error(t, db.HealthCheck(context.Background()))
	})
}

func TestDB_InitSchema(t *testing.T) {
	db, mock := newMockDB(t)
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS credentials").WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, db.InitSchema(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}
