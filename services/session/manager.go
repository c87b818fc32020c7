package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/upb/identity-gateway/models"
	"github.com/upb/identity-gateway/observability"
	"github.com/upb/identity-gateway/repositories"
)

var (
	// ErrInvalidCredentials is returned for an unknown user or a wrong password
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrNoSession is returned when the session id is unknown
	ErrNoSession = errors.New("no such session")

	// ErrSessionExpired is returned when the session exceeded its idle timeout
	ErrSessionExpired = errors.New("session expired")

	// ErrCSRFRejected is returned when the presented CSRF token does not match
	ErrCSRFRejected = errors.New("csrf token rejected")
)

// Config holds configuration for Manager
type Config struct {
	IdleTimeout time.Duration
	BcryptCost  int // cost of the dummy hash; match the cost of stored hashes
}

// Manager owns the session table.
//
// Every read-modify-write of the table happens under mu, so the idle check and
// the last-access update of Authenticate are a single atomic step.
type Manager struct {
	creds       repositories.CredentialRepository
	idleTimeout time.Duration
	dummyHash   []byte

	mu       sync.Mutex
	sessions map[string]*Session

	logger  *zap.Logger
	metrics *observability.Metrics
	now     func() time.Time
}

// NewManager creates a session manager backed by creds.
func NewManager(creds repositories.CredentialRepository, cfg Config, logger *zap.Logger, metrics *observability.Metrics) (*Manager, error) {
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = 30 * time.Minute
	}
	if cfg.BcryptCost == 0 {
		cfg.BcryptCost = bcrypt.DefaultCost
	}

	dummy, err := bcrypt.GenerateFromPassword([]byte("not-a-real-password"), cfg.BcryptCost)
	if err != nil {
		return nil, fmt.Errorf("failed to create dummy hash: %w", err)
	}

	return &Manager{
		creds:       creds,
		idleTimeout: cfg.IdleTimeout,
		dummyHash:   dummy,
		sessions:    make(map[string]*Session),
		logger:      logger,
		metrics:     metrics,
		now:         time.Now,
	}, nil
}

// Login verifies username and password and opens a new session.
// An unknown user costs the same bcrypt comparison as a wrong password.
func (m *Manager) Login(ctx context.Context, username, password string) (*Session, error) {
	cred, err := m.creds.GetByUsername(ctx, username)
	if err != nil {
		if !errors.Is(err, repositories.ErrNotFound) {
			return nil, fmt.Errorf("failed to look up credential: %w", err)
		}
		_ = bcrypt.CompareHashAndPassword(m.dummyHash, []byte(password))
		return nil, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(cred.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}

	id, err := newSessionID()
	if err != nil {
		return nil, err
	}
	csrf, err := newCSRFToken()
	if err != nil {
		return nil, err
	}

	now := m.now()
	s := &Session{
		ID:             id,
		Principal:      models.NewPrincipal(cred.Username, models.SourceSession, cred.Roles),
		CSRFToken:      csrf,
		CreatedAt:      now,
		LastAccessedAt: now,
		IdleTimeout:    m.idleTimeout,
	}

	m.mu.Lock()
	m.sessions[id] = s
	n := len(m.sessions)
	m.mu.Unlock()

	m.metrics.SetActiveSessions(n)
	m.logger.Info("session created", zap.String("user", cred.Username))

	out := *s
	return &out, nil
}

// Authenticate resolves a session id. An idle session is removed and reported
// as expired; a live one has its last access time refreshed.
func (m *Manager) Authenticate(_ context.Context, id string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[id]
	if !ok {
		return nil, ErrNoSession
	}

	now := m.now()
	if s.idle(now) {
		delete(m.sessions, id)
		m.metrics.SetActiveSessions(len(m.sessions))
		return nil, ErrSessionExpired
	}
	s.LastAccessedAt = now

	out := *s
	return &out, nil
}

// Logout removes the session. Unknown ids are ignored.
func (m *Manager) Logout(_ context.Context, id string) {
	m.mu.Lock()
	_, existed := m.sessions[id]
	delete(m.sessions, id)
	n := len(m.sessions)
	m.mu.Unlock()

	if existed {
		m.metrics.SetActiveSessions(n)
	}
}

// VerifyCSRF checks the token presented with a state-changing request.
func (m *Manager) VerifyCSRF(s *Session, presented string) error {
	if s == nil {
		return ErrCSRFRejected
	}
	return VerifyCSRF(*s, presented)
}

// Count returns the number of sessions currently held.
func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// StartJanitor removes idle sessions every interval until ctx is done.
func (m *Manager) StartJanitor(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if removed := m.sweep(); removed > 0 {
					m.logger.Debug("expired sessions removed", zap.Int("count", removed))
				}
			}
		}
	}()
}

func (m *Manager) sweep() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	removed := 0
	for id, s := range m.sessions {
		if s.idle(now) {
			delete(m.sessions, id)
			removed++
		}
	}
	if removed > 0 {
		m.metrics.SetActiveSessions(len(m.sessions))
	}
	return removed
}
