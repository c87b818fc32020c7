package bearer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// maxTokenSize is the largest token accepted for parsing (8 KiB).
const maxTokenSize = 8192

// allowedMethods are the asymmetric algorithms accepted from the access proxy.
var allowedMethods = []string{"RS256", "RS384", "RS512", "ES256", "ES384", "ES512"}

// KeyResolver resolves a key id to a verification key.
type KeyResolver interface {
	GetKey(ctx context.Context, kid string) (any, error)
}

// ValidatedClaims is the result of a successful validation.
type ValidatedClaims struct {
	Issuer    string
	Audience  []string
	ExpiresAt time.Time
	NotBefore *time.Time
	KeyID     string
	Claims    jwt.MapClaims
}

// ValidatorConfig holds configuration for Validator
type ValidatorConfig struct {
	Issuer    string
	Audience  string
	ClockSkew time.Duration
}

// Validator verifies bearer tokens issued by the access proxy.
//
// Checks run in a fixed order and stop at the first failure: structure,
// signature, issuer, time window, audience. The audience check always runs.
type Validator struct {
	keys      KeyResolver
	issuer    string
	audience  string
	clockSkew time.Duration
	parser    *jwt.Parser
	now       func() time.Time
}

// NewValidator creates a new token validator.
func NewValidator(cfg ValidatorConfig, keys KeyResolver) *Validator {
	return &Validator{
		keys:      keys,
		issuer:    cfg.Issuer,
		audience:  cfg.Audience,
		clockSkew: cfg.ClockSkew,
		parser: jwt.NewParser(
			jwt.WithValidMethods(allowedMethods),
			jwt.WithoutClaimsValidation(),
		),
		now: time.Now,
	}
}

// Validate verifies raw and returns its claims.
func (v *Validator) Validate(ctx context.Context, raw string) (*ValidatedClaims, error) {
	if raw == "" || len(raw) > maxTokenSize {
		return nil, ErrMalformed
	}

	// Structure and required claims first, so a malformed token is reported
	// as such regardless of its signature.
	unverified, _, err := v.parser.ParseUnverified(raw, jwt.MapClaims{})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenMalformed) {
			return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		return nil, fmt.Errorf("%w: %v", ErrBadSignature, err)
	}
	mc, _ := unverified.Claims.(jwt.MapClaims)
	exp, err := mc.GetExpirationTime()
	if err != nil || exp == nil {
		return nil, fmt.Errorf("%w: missing or invalid exp", ErrMalformed)
	}
	nbf, err := mc.GetNotBefore()
	if err != nil {
		return nil, fmt.Errorf("%w: invalid nbf", ErrMalformed)
	}

	var kid string
	token, err := v.parser.ParseWithClaims(raw, jwt.MapClaims{}, func(t *jwt.Token) (interface{}, error) {
		kid, _ = t.Header["kid"].(string)
		if kid == "" {
			return nil, errors.New("kid header not found")
		}
		key, err := v.keys.GetKey(ctx, kid)
		if err != nil {
			return nil, fmt.Errorf("failed to get public key: %w", err)
		}
		return key, nil
	})
	if err != nil {
		switch {
		case errors.Is(err, ErrKeySourceUnavailable):
			return nil, fmt.Errorf("%w: %v", ErrKeySourceUnavailable, err)
		case errors.Is(err, jwt.ErrTokenMalformed):
			return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		default:
			return nil, fmt.Errorf("%w: %v", ErrBadSignature, err)
		}
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return nil, ErrBadSignature
	}

	iss, err := claims.GetIssuer()
	if err != nil || iss != v.issuer {
		return nil, fmt.Errorf("%w: got %q", ErrIssuerMismatch, iss)
	}

	now := v.now()
	if exp.Time.Before(now.Add(-v.clockSkew)) {
		return nil, fmt.Errorf("%w: exp %s", ErrExpired, exp.Time.UTC().Format(time.RFC3339))
	}
	if nbf != nil && nbf.Time.After(now.Add(v.clockSkew)) {
		return nil, fmt.Errorf("%w: nbf %s", ErrNotYetValid, nbf.Time.UTC().Format(time.RFC3339))
	}

	aud, err := claims.GetAudience()
	if err != nil || !containsAudience(aud, v.audience) {
		return nil, ErrAudienceMismatch
	}

	result := &ValidatedClaims{
		Issuer:    iss,
		Audience:  aud,
		ExpiresAt: exp.Time,
		KeyID:     kid,
		Claims:    claims,
	}
	if nbf != nil {
		t := nbf.Time
		result.NotBefore = &t
	}
	return result, nil
}

// containsAudience reports whether want is one of the token audiences.
// An empty configured audience never matches.
func containsAudience(audiences []string, want string) bool {
	if want == "" {
		return false
	}
	for _, aud := range audiences {
		if aud == want {
			return true
		}
	}
	return false
}
