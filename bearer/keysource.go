package bearer

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/upb/identity-gateway/observability"
)

// maxJWKSBytes caps the size of a key set document.
const maxJWKSBytes = 1 << 20

// JWKS represents the JSON Web Key Set
type JWKS struct {
	Keys []JWK `json:"keys"`
}

// JWK represents a JSON Web Key
type JWK struct {
	Kid string `json:"kid"`
	Kty string `json:"kty"`
	Alg string `json:"alg"`
	Use string `json:"use"`
	N   string `json:"n"`
	E   string `json:"e"`
	Crv string `json:"crv"`
	X   string `json:"x"`
	Y   string `json:"y"`
}

// keySet is an immutable snapshot of verification keys.
type keySet struct {
	keys      map[string]any // *rsa.PublicKey or *ecdsa.PublicKey
	fetchedAt time.Time
}

// KeySourceConfig holds configuration for KeySource
type KeySourceConfig struct {
	URL                string
	CacheTTL           time.Duration
	FetchTimeout       time.Duration
	MinRefreshInterval time.Duration // zero: every miss refreshes once
	HTTPClient         *http.Client
}

// KeySource resolves key ids to public keys from a remote JWKS document.
//
// Lookups read an atomically swapped snapshot and never block on each other.
// A miss triggers at most one in-flight fetch, shared by every caller that
// misses while it runs. Callers wait under their own context; the fetch itself
// runs under FetchTimeout so an abandoned wait never cancels it for the others.
type KeySource struct {
	url          string
	client       *http.Client
	ttl          time.Duration
	fetchTimeout time.Duration
	minRefresh   time.Duration

	keys  atomic.Pointer[keySet]
	group singleflight.Group

	logger  *zap.Logger
	metrics *observability.Metrics
	now     func() time.Time
}

// NewKeySource creates a key source. Nothing is fetched until the first lookup.
func NewKeySource(cfg KeySourceConfig, logger *zap.Logger, metrics *observability.Metrics) *KeySource {
	if cfg.CacheTTL == 0 {
		cfg.CacheTTL = 5 * time.Minute
	}
	if cfg.FetchTimeout == 0 {
		cfg.FetchTimeout = 10 * time.Second
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: cfg.FetchTimeout}
	}

	return &KeySource{
		url:          cfg.URL,
		client:       cfg.HTTPClient,
		ttl:          cfg.CacheTTL,
		fetchTimeout: cfg.FetchTimeout,
		minRefresh:   cfg.MinRefreshInterval,
		logger:       logger,
		metrics:      metrics,
		now:          time.Now,
	}
}

// GetKey returns the public key for kid.
//
// An expired snapshot is refreshed first; when that refresh fails and the key
// is still in the old snapshot, the stale key is served. An unknown kid
// triggers one refresh, shared with every caller that missed against the same
// snapshot. A non-zero MinRefreshInterval suppresses that refresh while the
// last successful one is younger than the interval.
func (s *KeySource) GetKey(ctx context.Context, kid string) (any, error) {
	snap := s.keys.Load()
	if snap != nil {
		age := s.now().Sub(snap.fetchedAt)
		key, ok := snap.keys[kid]
		if ok && age < s.ttl {
			return key, nil
		}
		if !ok && age < s.ttl && s.minRefresh > 0 && age < s.minRefresh {
			return nil, fmt.Errorf("%w: %s", ErrUnknownKey, kid)
		}
	}

	next, err := s.refresh(ctx, snap)
	if err != nil {
		if snap != nil {
			if key, ok := snap.keys[kid]; ok {
				s.logger.Warn("jwks refresh failed, serving stale key",
					zap.String("kid", kid),
					zap.Error(err),
				)
				return key, nil
			}
		}
		return nil, err
	}

	if key, ok := next.keys[kid]; ok {
		return key, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownKey, kid)
}

// Refresh forces a fetch of the key set, joining any fetch already in flight.
func (s *KeySource) Refresh(ctx context.Context) error {
	_, err := s.refresh(ctx, s.keys.Load())
	return err
}

// refresh fetches a snapshot newer than seen. A flight that completed after
// the caller loaded seen already satisfies it.
func (s *KeySource) refresh(ctx context.Context, seen *keySet) (*keySet, error) {
	ch := s.group.DoChan("jwks", func() (interface{}, error) {
		if cur := s.keys.Load(); cur != nil && cur != seen {
			return cur, nil
		}

		fetchCtx, cancel := context.WithTimeout(context.Background(), s.fetchTimeout)
		defer cancel()

		start := time.Now()
		keys, err := s.fetch(fetchCtx)
		if err != nil {
			s.metrics.JWKSFetch(observability.OutcomeFailure, time.Since(start))
			s.logger.Error("jwks fetch failed", zap.String("url", s.url), zap.Error(err))
			return nil, fmt.Errorf("%w: %v", ErrKeySourceUnavailable, err)
		}
		s.metrics.JWKSFetch(observability.OutcomeSuccess, time.Since(start))

		next := &keySet{keys: keys, fetchedAt: s.now()}
		s.keys.Store(next)
		s.logger.Info("jwks refreshed", zap.Int("keys", len(keys)))
		return next, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*keySet), nil
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %v", ErrKeySourceUnavailable, ctx.Err())
	}
}

// fetch downloads and parses the key set document.
func (s *KeySource) fetch(ctx context.Context) (map[string]any, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch JWKS: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxJWKSBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read JWKS: %w", err)
	}

	var jwks JWKS
	if err := json.Unmarshal(body, &jwks); err != nil {
		return nil, fmt.Errorf("failed to decode JWKS: %w", err)
	}

	keys := make(map[string]any, len(jwks.Keys))
	for _, jwk := range jwks.Keys {
		if jwk.Kid == "" || (jwk.Use != "" && jwk.Use != "sig") {
			continue
		}
		key, err := jwk.publicKey()
		if err != nil {
			s.logger.Warn("skipping unusable jwk", zap.String("kid", jwk.Kid), zap.Error(err))
			continue
		}
		keys[jwk.Kid] = key
	}
	if len(keys) == 0 {
		return nil, errors.New("JWKS contains no usable signing keys")
	}
	return keys, nil
}

// publicKey converts a JWK to an *rsa.PublicKey or *ecdsa.PublicKey.
func (k JWK) publicKey() (any, error) {
	switch k.Kty {
	case "RSA":
		return rsaPublicKey(k.N, k.E)
	case "EC":
		return ecPublicKey(k.Crv, k.X, k.Y)
	default:
		return nil, fmt.Errorf("unsupported key type %q", k.Kty)
	}
}

func rsaPublicKey(n, e string) (*rsa.PublicKey, error) {
	nBytes, err := base64.RawURLEncoding.DecodeString(n)
	if err != nil {
		return nil, fmt.Errorf("failed to decode modulus: %w", err)
	}
	eBytes, err := base64.RawURLEncoding.DecodeString(e)
	if err != nil {
		return nil, fmt.Errorf("failed to decode exponent: %w", err)
	}
	if len(nBytes) == 0 || len(eBytes) == 0 || len(eBytes) > 4 {
		return nil, errors.New("invalid RSA key parameters")
	}

	exp := new(big.Int).SetBytes(eBytes)
	return &rsa.PublicKey{
		N: new(big.Int).SetBytes(nBytes),
		E: int(exp.Int64()),
	}, nil
}

func ecPublicKey(crv, x, y string) (*ecdsa.PublicKey, error) {
	var curve elliptic.Curve
	switch crv {
	case "P-256":
		curve = elliptic.P256()
	case "P-384":
		curve = elliptic.P384()
	case "P-521":
		curve = elliptic.P521()
	default:
		return nil, fmt.Errorf("unsupported curve %q", crv)
	}

	xBytes, err := base64.RawURLEncoding.DecodeString(x)
	if err != nil {
		return nil, fmt.Errorf("failed to decode x coordinate: %w", err)
	}
	yBytes, err := base64.RawURLEncoding.DecodeString(y)
	if err != nil {
		return nil, fmt.Errorf("failed to decode y coordinate: %w", err)
	}

	pub := &ecdsa.PublicKey{
		Curve: curve,
		X:     new(big.Int).SetBytes(xBytes),
		Y:     new(big.Int).SetBytes(yBytes),
	}
	if !curve.IsOnCurve(pub.X, pub.Y) {
		return nil, errors.New("point is not on curve")
	}
	return pub, nil
}
