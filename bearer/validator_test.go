package bearer

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testIssuer   = "https://access.example.com"
	testAudience = "todo-api"
	testKid      = "test-kid-123"
)

// staticKeys is a KeyResolver backed by a fixed map.
type staticKeys struct {
	keys map[string]any
	err  error
}

func (s staticKeys) GetKey(_ context.Context, kid string) (any, error) {
	if s.err != nil {
		return nil, s.err
	}
	key, ok := s.keys[kid]
	if !ok {
		return nil, ErrUnknownKey
	}
	return key, nil
}

func newTestValidator(keys KeyResolver, now time.Time) *Validator {
	v := NewValidator(ValidatorConfig{
		Issuer:    testIssuer,
		Audience:  testAudience,
		ClockSkew: 60 * time.Second,
	}, keys)
	v.now = func() time.Time { return now }
	return v
}

func baseClaims(now time.Time) jwt.MapClaims {
	return jwt.MapClaims{
		"iss":    testIssuer,
		"aud":    []string{testAudience},
		"exp":    now.Add(time.Hour).Unix(),
		"iat":    now.Unix(),
		"sub":    "alice",
		"groups": []string{"staff"},
	}
}

func with(claims jwt.MapClaims, key string, value any) jwt.MapClaims {
	out := jwt.MapClaims{}
	for k, v := range claims {
		out[k] = v
	}
	if value == nil {
		delete(out, key)
	} else {
		out[key] = value
	}
	return out
}

func TestValidator_Validate(t *testing.T) {
	privateKey, publicKey := generateTestKeyPair(t)
	otherKey, _ := generateTestKeyPair(t)
	now := newFakeClock().Now()
	keys := staticKeys{keys: map[string]any{testKid: publicKey}}
	v := newTestValidator(keys, now)
	ctx := context.Background()

	sign := func(claims jwt.MapClaims) string {
		return createTestToken(t, jwt.SigningMethodRS256, privateKey, testKid, claims)
	}

	tests := []struct {
		name    string
		token   string
		wantErr error
	}{
		{name: "valid token", token: sign(baseClaims(now))},
		{name: "empty token", token: "", wantErr: ErrMalformed},
		{name: "garbage", token: "not.a.jwt", wantErr: ErrMalformed},
		{name: "two segments", token: "abc.def", wantErr: ErrMalformed},
		{name: "oversized", token: strings.Repeat("a", maxTokenSize+1), wantErr: ErrMalformed},
		{name: "missing exp", token: sign(with(baseClaims(now), "exp", nil)), wantErr: ErrMalformed},
		{
			name:    "missing exp wins over bad signature",
			token:   createTestToken(t, jwt.SigningMethodRS256, otherKey, testKid, with(baseClaims(now), "exp", nil)),
			wantErr: ErrMalformed,
		},
		{name: "non numeric exp", token: sign(with(baseClaims(now), "exp", "tomorrow")), wantErr: ErrMalformed},
		{
			name:    "signed by another key",
			token:   createTestToken(t, jwt.SigningMethodRS256, otherKey, testKid, baseClaims(now)),
			wantErr: ErrBadSignature,
		},
		{
			name:    "hmac algorithm",
			token:   createTestToken(t, jwt.SigningMethodHS256, []byte("secret"), testKid, baseClaims(now)),
			wantErr: ErrBadSignature,
		},
		{
			name:    "none algorithm",
			token:   createTestToken(t, jwt.SigningMethodNone, jwt.UnsafeAllowNoneSignatureType, testKid, baseClaims(now)),
			wantErr: ErrBadSignature,
		},
		{
			name:    "missing kid",
			token:   createTestToken(t, jwt.SigningMethodRS256, privateKey, "", baseClaims(now)),
			wantErr: ErrBadSignature,
		},
		{
			name:    "unknown kid",
			token:   createTestToken(t, jwt.SigningMethodRS256, privateKey, "other-kid", baseClaims(now)),
			wantErr: ErrBadSignature,
		},
		{
			name:    "bad signature wins over wrong issuer",
			token:   createTestToken(t, jwt.SigningMethodRS256, otherKey, testKid, with(baseClaims(now), "iss", "https://evil.example.com")),
			wantErr: ErrBadSignature,
		},
		{name: "wrong issuer", token: sign(with(baseClaims(now), "iss", "https://evil.example.com")), wantErr: ErrIssuerMismatch},
		{name: "missing issuer", token: sign(with(baseClaims(now), "iss", nil)), wantErr: ErrIssuerMismatch},
		{
			name:    "wrong issuer wins over expiry",
			token:   sign(with(with(baseClaims(now), "iss", "https://evil.example.com"), "exp", now.Add(-time.Hour).Unix())),
			wantErr: ErrIssuerMismatch,
		},
		{name: "expired beyond skew", token: sign(with(baseClaims(now), "exp", now.Add(-61*time.Second).Unix())), wantErr: ErrExpired},
		{name: "expired within skew", token: sign(with(baseClaims(now), "exp", now.Add(-60*time.Second).Unix()))},
		{name: "exp equals now", token: sign(with(baseClaims(now), "exp", now.Unix()))},
		{name: "nbf beyond skew", token: sign(with(baseClaims(now), "nbf", now.Add(61*time.Second).Unix())), wantErr: ErrNotYetValid},
		{name: "nbf within skew", token: sign(with(baseClaims(now), "nbf", now.Add(60*time.Second).Unix()))},
		{
			name:    "expiry wins over audience",
			token:   sign(with(with(baseClaims(now), "aud", "someone-else"), "exp", now.Add(-time.Hour).Unix())),
			wantErr: ErrExpired,
		},
		{name: "missing audience", token: sign(with(baseClaims(now), "aud", nil)), wantErr: ErrAudienceMismatch},
		{name: "empty audience list", token: sign(with(baseClaims(now), "aud", []string{})), wantErr: ErrAudienceMismatch},
		{name: "other audience", token: sign(with(baseClaims(now), "aud", []string{"billing"})), wantErr: ErrAudienceMismatch},
		{name: "audience as string", token: sign(with(baseClaims(now), "aud", testAudience))},
		{name: "audience among several", token: sign(with(baseClaims(now), "aud", []string{"billing", testAudience}))},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			claims, err := v.Validate(ctx, tt.token)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Nil(t, claims)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, testIssuer, claims.Issuer)
			assert.Contains(t, claims.Audience, testAudience)
			assert.Equal(t, testKid, claims.KeyID)
		})
	}
}

func TestValidator_ReturnsValidatedClaims(t *testing.T) {
	privateKey, publicKey := generateTestKeyPair(t)
	now := newFakeClock().Now()
	v := newTestValidator(staticKeys{keys: map[string]any{testKid: publicKey}}, now)

	claims := with(baseClaims(now), "nbf", now.Add(-time.Minute).Unix())
	token := createTestToken(t, jwt.SigningMethodRS256, privateKey, testKid, claims)

	got, err := v.Validate(context.Background(), token)
	require.NoError(t, err)
	assert.True(t, got.ExpiresAt.Equal(now.Add(time.Hour)))
	require.NotNil(t, got.NotBefore)
	assert.True(t, got.NotBefore.Equal(now.Add(-time.Minute)))
	assert.Equal(t, "alice", got.Claims["sub"])
}

func TestValidator_EmptyConfiguredAudienceNeverMatches(t *testing.T) {
	privateKey, publicKey := generateTestKeyPair(t)
	now := newFakeClock().Now()
	v := NewValidator(ValidatorConfig{Issuer: testIssuer}, staticKeys{keys: map[string]any{testKid: publicKey}})
	v.now = func() time.Time { return now }

	token := createTestToken(t, jwt.SigningMethodRS256, privateKey, testKid, with(baseClaims(now), "aud", []string{""}))
	_, err := v.Validate(context.Background(), token)
	assert.ErrorIs(t, err, ErrAudienceMismatch)
}

func TestValidator_KeySourceUnavailable(t *testing.T) {
	privateKey, _ := generateTestKeyPair(t)
	now := newFakeClock().Now()
	unavailable := errors.Join(ErrKeySourceUnavailable, errors.New("connection refused"))
	v := newTestValidator(staticKeys{err: unavailable}, now)

	token := createTestToken(t, jwt.SigningMethodRS256, privateKey, testKid, baseClaims(now))
	_, err := v.Validate(context.Background(), token)
	assert.ErrorIs(t, err, ErrKeySourceUnavailable)
	assert.NotErrorIs(t, err, ErrBadSignature)
}

func TestValidator_ECDSA(t *testing.T) {
	ecKey := generateTestECKey(t)
	now := newFakeClock().Now()
	v := newTestValidator(staticKeys{keys: map[string]any{"ec-1": &ecKey.PublicKey}}, now)

	token := createTestToken(t, jwt.SigningMethodES256, ecKey, "ec-1", baseClaims(now))
	_, err := v.Validate(context.Background(), token)
	assert.NoError(t, err)
}

func TestValidator_WithKeySource(t *testing.T) {
	privateKey, publicKey := generateTestKeyPair(t)
	server := newJWKSServer(t, rsaJWK(testKid, publicKey))
	clock := newFakeClock()
	ks := newTestKeySource(server.URL, clock, 10*time.Second)
	v := newTestValidator(ks, clock.Now())

	token := createTestToken(t, jwt.SigningMethodRS256, privateKey, testKid, baseClaims(clock.Now()))
	_, err := v.Validate(context.Background(), token)
	require.NoError(t, err)

	server.setFailing(true)
	ks2 := newTestKeySource(server.URL, clock, 10*time.Second)
	v2 := newTestValidator(ks2, clock.Now())
	_, err = v2.Validate(context.Background(), token)
	assert.ErrorIs(t, err, ErrKeySourceUnavailable)
}

func TestValidator_RotatedKeyRefreshesOnFirstMiss(t *testing.T) {
	_, pub1 := generateTestKeyPair(t)
	priv2, pub2 := generateTestKeyPair(t)
	server := newJWKSServer(t, rsaJWK("key-1", pub1))
	clock := newFakeClock()
	ks := newTestKeySource(server.URL, clock, 0)

	_, err := ks.GetKey(context.Background(), "key-1")
	require.NoError(t, err)

	server.setKeys(rsaJWK("key-1", pub1), rsaJWK("key-2", pub2))
	clock.Advance(2 * time.Second)

	v := newTestValidator(ks, clock.Now())
	token := createTestToken(t, jwt.SigningMethodRS256, priv2, "key-2", baseClaims(clock.Now()))
	_, err = v.Validate(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, int32(2), server.fetches.Load())
}

func TestValidator_UnknownKeyAfterOneRefresh(t *testing.T) {
	_, pub1 := generateTestKeyPair(t)
	forger, _ := generateTestKeyPair(t)
	server := newJWKSServer(t, rsaJWK("key-1", pub1))
	clock := newFakeClock()
	ks := newTestKeySource(server.URL, clock, 0)

	_, err := ks.GetKey(context.Background(), "key-1")
	require.NoError(t, err)

	v := newTestValidator(ks, clock.Now())
	token := createTestToken(t, jwt.SigningMethodRS256, forger, "key-9", baseClaims(clock.Now()))
	_, err = v.Validate(context.Background(), token)
	assert.ErrorIs(t, err, ErrBadSignature)
	assert.Equal(t, int32(2), server.fetches.Load(), "exactly one refresh for the miss")
}

func TestReason(t *testing.T) {
	assert.Equal(t, "", Reason(nil))
	assert.Equal(t, "expired", Reason(ErrExpired))
	assert.Equal(t, "key_source_unavailable", Reason(errors.Join(ErrKeySourceUnavailable, ErrBadSignature)))
	assert.Equal(t, "audience_mismatch", Reason(ErrAudienceMismatch))
	assert.Equal(t, "unknown", Reason(errors.New("boom")))
}
