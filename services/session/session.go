package session

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/upb/identity-gateway/models"
)

// Session is a locally authenticated user session.
type Session struct {
	ID             string
	Principal      models.Principal
	CSRFToken      string
	CreatedAt      time.Time
	LastAccessedAt time.Time
	IdleTimeout    time.Duration
}

// idle reports whether the session has been unused for longer than its timeout.
func (s *Session) idle(now time.Time) bool {
	return now.Sub(s.LastAccessedAt) > s.IdleTimeout
}

// VerifyCSRF compares presented with the session's CSRF token in constant time.
func VerifyCSRF(s Session, presented string) error {
	if presented == "" || s.CSRFToken == "" {
		return ErrCSRFRejected
	}
	if subtle.ConstantTimeCompare([]byte(presented), []byte(s.CSRFToken)) != 1 {
		return ErrCSRFRejected
	}
	return nil
}

// newSessionID returns 32 random bytes, hex encoded.
func newSessionID() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate session id: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// newCSRFToken returns 32 random bytes, base64url encoded.
func newCSRFToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate csrf token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
