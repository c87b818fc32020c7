package memory

import (
	"context"
	"fmt"
	"os"
	"strings"

	"golang.org/x/crypto/bcrypt"
	"gopkg.in/yaml.v3"

	"github.com/upb/identity-gateway/models"
	"github.com/upb/identity-gateway/repositories"
)

// credentialsFile is the on-disk layout of CREDENTIALS_FILE
type credentialsFile struct {
	Users []models.Credential `yaml:"users"`
}

// CredentialStore is a read-only credential map built once at startup.
type CredentialStore struct {
	byUsername map[string]models.Credential
}

// NewCredentialStore builds a store from already hashed credentials.
func NewCredentialStore(creds []models.Credential) (*CredentialStore, error) {
	byUsername := make(map[string]models.Credential, len(creds))
	for _, c := range creds {
		if c.Username == "" {
			return nil, fmt.Errorf("credential with empty username")
		}
		if _, err := bcrypt.Cost([]byte(c.PasswordHash)); err != nil {
			return nil, fmt.Errorf("credential %q: password_hash is not a bcrypt hash: %w", c.Username, err)
		}
		if _, dup := byUsername[c.Username]; dup {
			return nil, fmt.Errorf("duplicate credential for %q", c.Username)
		}
		c.Roles = append([]string(nil), c.Roles...)
		byUsername[c.Username] = c
	}
	return &CredentialStore{byUsername: byUsername}, nil
}

// LoadCredentialFile reads a YAML credential file of the form
//
//	users:
//	  - username: alice
//	    password_hash: $2a$10$...
//	    roles: [staff]
func LoadCredentialFile(path string) (*CredentialStore, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read credentials file: %w", err)
	}

	var file credentialsFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse credentials file: %w", err)
	}
	return NewCredentialStore(file.Users)
}

// DemoCredentials returns the development users, hashing their passwords with cost.
// Each password equals the username.
func DemoCredentials(cost int) ([]models.Credential, error) {
	demo := []struct {
		username string
		roles    []string
	}{
		{"alice", []string{"staff"}},
		{"bob", []string{"staff"}},
		{"carol", []string{"staff", "sre"}},
	}

	creds := make([]models.Credential, 0, len(demo))
	for _, d := range demo {
		hash, err := bcrypt.GenerateFromPassword([]byte(d.username), cost)
		if err != nil {
			return nil, fmt.Errorf("failed to hash demo password: %w", err)
		}
		creds = append(creds, models.Credential{
			Username:     d.username,
			PasswordHash: string(hash),
			Roles:        d.roles,
		})
	}
	return creds, nil
}

// GetByUsername returns a copy of the credential for username.
func (s *CredentialStore) GetByUsername(_ context.Context, username string) (*models.Credential, error) {
	c, ok := s.byUsername[username]
	if !ok {
		return nil, fmt.Errorf("%w: credential %s", repositories.ErrNotFound, strings.TrimSpace(username))
	}
	c.Roles = append([]string(nil), c.Roles...)
	return &c, nil
}

// Count returns the number of users.
func (s *CredentialStore) Count(_ context.Context) (int, error) {
	return len(s.byUsername), nil
}
