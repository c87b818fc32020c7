package memory

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/upb/identity-gateway/models"
	"github.com/upb/identity-gateway/repositories"
)

func hash(t *testing.T, password string) string {
	h, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)
	return string(h)
}

func TestDemoCredentials(t *testing.T) {
	creds, err := DemoCredentials(bcrypt.MinCost)
	require.NoError(t, err)
	require.Len(t, creds, 3)

	store, err := NewCredentialStore(creds)
	require.NoError(t, err)

	carol, err := store.GetByUsername(context.Background(), "carol")
	require.NoError(t, err)
	assert.Equal(t, []string{"staff", "sre"}, carol.Roles)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(carol.PasswordHash), []byte("carol")))

	n, err := store.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestCredentialStore_GetByUsername(t *testing.T) {
	store, err := NewCredentialStore([]models.Credential{
		{Username: "alice", PasswordHash: hash(t, "alice"), Roles: []string{"staff"}},
	})
	require.NoError(t, err)
	ctx := context.Background()

	t.Run("exact match", func(t *testing.T) {
		cred, err := store.GetByUsername(ctx, "alice")
		require.NoError(t, err)
		assert.Equal(t, "alice", cred.Username)
	})

	t.Run("lookup is case sensitive", func(t *testing.T) {
		_, err := store.GetByUsername(ctx, "Alice")
		assert.ErrorIs(t, err, repositories.ErrNotFound)
	})

	t.Run("unknown user", func(t *testing.T) {
		_, err := store.GetByUsername(ctx, "mallory")
		assert.ErrorIs(t, err, repositories.ErrNotFound)
	})

	t.Run("returned roles are a copy", func(t *testing.T) {
		cred, err := store.GetByUsername(ctx, "alice")
		require.NoError(t, err)
		cred.Roles[0] = "sre"

		again, err := store.GetByUsername(ctx, "alice")
		require.NoError(t, err)
		assert.Equal(t, []string{"staff"}, again.Roles)
	})
}

func TestNewCredentialStore_Rejects(t *testing.T) {
	tests := []struct {
		name  string
		creds []models.Credential
	}{
		{"empty username", []models.Credential{{PasswordHash: hash(t, "x")}}},
		{"plain text password", []models.Credential{{Username: "alice", PasswordHash: "alice"}}},
		{"duplicate username", []models.Credential{
			{Username: "alice", PasswordHash: hash(t, "a")},
			{Username: "alice", PasswordHash: hash(t, "b")},
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewCredentialStore(tt.creds)
			assert.Error(t, err)
		})
	}
}

func TestLoadCredentialFile(t *testing.T) {
	dir := t.TempDir()

	t.Run("valid file", func(t *testing.T) {
		path := filepath.Join(dir, "users.yaml")
		content := "users:\n" +
			"  - username: dave\n" +
			"    password_hash: \"" + hash(t, "secret") + "\"\n" +
			"    roles: [staff, sre]\n"
		require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

		store, err := LoadCredentialFile(path)
		require.NoError(t, err)

		cred, err := store.GetByUsername(context.Background(), "dave")
		require.NoError(t, err)
		assert.Equal(t, []string{"staff", "sre"}, cred.Roles)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := LoadCredentialFile(filepath.Join(dir, "nope.yaml"))
		assert.Error(t, err)
	})

	t.Run("invalid yaml", func(t *testing.T) {
		path := filepath.Join(dir, "bad.yaml")
		require.NoError(t, os.WriteFile(path, []byte("users: [::"), 0o600))

		_, err := LoadCredentialFile(path)
		assert.Error(t, err)
	})
}
