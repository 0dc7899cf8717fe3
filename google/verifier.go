package google

import (
	"context"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/upb/academic-records/services"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

const (
	// DefaultJWKSURL is where Google publishes the keys that sign its ID tokens.
	DefaultJWKSURL = "https://www.googleapis.com/oauth2/v3/certs"

	defaultLeeway             = 30 * time.Second
	defaultMinRefreshInterval = 10 * time.Second
)

// DefaultIssuers are the issuer values Google puts in ID tokens.
var DefaultIssuers = []string{"accounts.google.com", "https://accounts.google.com"}

var (
	errKidMissing  = errors.New("kid header not found")
	errKeyNotFound = errors.New("signing key not found in JWKS")
)

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
}

// Identity is the verified result of a Google sign-in.
type Identity struct {
	Subject       string
	Email         string
	EmailVerified bool
	Name          string
	Picture       string
}

// Config holds configuration for Verifier
type Config struct {
	ClientID    string
	JWKSURL     string
	Issuers     []string
	HTTPTimeout time.Duration
	CacheTTL    time.Duration
}

// Verifier checks Google ID tokens against Google's published signing keys.
type Verifier struct {
	clientID   string
	jwksURL    string
	issuers    []string
	timeout    time.Duration
	leeway     time.Duration
	httpClient *http.Client
	logger     *zap.Logger

	cacheMu      sync.RWMutex
	keys         map[string]*rsa.PublicKey
	keysExp      time.Time
	lastRefresh  time.Time
	cacheTTL     time.Duration
	minRefresh   time.Duration
	refreshGroup singleflight.Group

	now func() time.Time
}

// NewVerifier creates a Google ID token verifier
func NewVerifier(config Config, logger *zap.Logger) *Verifier {
	if config.JWKSURL == "" {
		config.JWKSURL = DefaultJWKSURL
	}
	if len(config.Issuers) == 0 {
		config.Issuers = DefaultIssuers
	}
	if config.CacheTTL == 0 {
		config.CacheTTL = time.Hour
	}
	if config.HTTPTimeout == 0 {
		config.HTTPTimeout = 5 * time.Second
	}

	return &Verifier{
		clientID:   config.ClientID,
		jwksURL:    config.JWKSURL,
		issuers:    config.Issuers,
		timeout:    config.HTTPTimeout,
		leeway:     defaultLeeway,
		httpClient: &http.Client{Timeout: config.HTTPTimeout},
		logger:     logger,
		keys:       make(map[string]*rsa.PublicKey),
		cacheTTL:   config.CacheTTL,
		minRefresh: defaultMinRefreshInterval,
		now:        time.Now,
	}
}

// Verify validates a Google ID token and returns the identity it asserts.
// Every failure, including an unreachable key endpoint, wraps services.ErrInvalidCredential.
func (v *Verifier) Verify(ctx context.Context, credential string) (*Identity, error) {
	if v.clientID == "" {
		return nil, services.InvalidCredential("identity verification is not configured", nil)
	}
	if strings.TrimSpace(credential) == "" {
		return nil, services.InvalidCredential("credential is empty", nil)
	}

	ctx, cancel := context.WithTimeout(ctx, v.timeout)
	defer cancel()

	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithLeeway(v.leeway),
		jwt.WithIssuedAt(),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(v.now),
	)

	claims := &Claims{}
	token, err := parser.ParseWithClaims(credential, claims, func(token *jwt.Token) (interface{}, error) {
		kid, ok := token.Header["kid"].(string)
		if !ok || kid == "" {
			return nil, errKidMissing
		}
		return v.getPublicKey(ctx, kid)
	})
	if err != nil {
		return nil, v.classify(err)
	}
	if !token.Valid {
		return nil, services.InvalidCredential("credential is not valid", nil)
	}

	if !v.validIssuer(claims.Issuer) {
		return nil, services.InvalidCredential("unexpected issuer", fmt.Errorf("issuer %q", claims.Issuer))
	}
	if !containsAudience(claims.Audience, v.clientID) {
		return nil, services.InvalidCredential("credential was issued for another application", nil)
	}
	if claims.Subject == "" {
		return nil, services.InvalidCredential("credential has no subject", nil)
	}

	email := strings.ToLower(strings.TrimSpace(claims.Email))
	if email == "" {
		return nil, services.InvalidCredential("credential has no email", nil)
	}
	if claims.EmailVerified.Set && !claims.EmailVerified.Value {
		return nil, services.InvalidCredential("email is not verified", nil)
	}

	return &Identity{
		Subject:       claims.Subject,
		Email:         email,
		EmailVerified: claims.EmailVerified.Value,
		Name:          claims.Name,
		Picture:       claims.Picture,
	}, nil
}

// classify maps parser failures to invalid-credential errors with a readable reason.
func (v *Verifier) classify(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return services.InvalidCredential("credential expired", err)
	case errors.Is(err, jwt.ErrTokenUsedBeforeIssued), errors.Is(err, jwt.ErrTokenNotValidYet):
		return services.InvalidCredential("credential is not valid yet", err)
	case errors.Is(err, jwt.ErrTokenMalformed):
		return services.InvalidCredential("credential is malformed", err)
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return services.InvalidCredential("credential signature is invalid", err)
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		v.logger.Warn("identity provider key lookup timed out", zap.Error(err))
		return services.InvalidCredential("identity provider did not respond in time", err)
	case errors.Is(err, errKidMissing), errors.Is(err, errKeyNotFound):
		return services.InvalidCredential("credential signing key is unknown", err)
	default:
		return services.InvalidCredential("credential could not be verified", err)
	}
}

func (v *Verifier) validIssuer(iss string) bool {
	for _, allowed := range v.issuers {
		if iss == allowed {
			return true
		}
	}
	return false
}

// FetchJWKS downloads the current key set.
func (v *Verifier) FetchJWKS(ctx context.Context) (*JWKS, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, v.jwksURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := v.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch JWKS: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch JWKS: unexpected status code %d", resp.StatusCode)
	}

	var jwks JWKS
	if err := json.NewDecoder(resp.Body).Decode(&jwks); err != nil {
		return nil, fmt.Errorf("failed to decode JWKS: %w", err)
	}

	return &jwks, nil
}

// getPublicKey returns the key for kid, refreshing the key set when it is stale or lacks kid.
func (v *Verifier) getPublicKey(ctx context.Context, kid string) (*rsa.PublicKey, error) {
	v.cacheMu.RLock()
	key, ok := v.keys[kid]
	fresh := v.now().Before(v.keysExp)
	recentlyRefreshed := v.now().Sub(v.lastRefresh) < v.minRefresh
	v.cacheMu.RUnlock()

	if ok && fresh {
		return key, nil
	}
	// An unknown kid against a freshly loaded set does not trigger another download.
	if !ok && fresh && recentlyRefreshed {
		return nil, errKeyNotFound
	}

	// Concurrent callers share one download. It is not bound to the caller that started it,
	// and each caller stops waiting when its own context ends.
	ch := v.refreshGroup.DoChan("jwks", func() (interface{}, error) {
		refreshCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), v.timeout)
		defer cancel()
		return nil, v.refresh(refreshCtx)
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	v.cacheMu.RLock()
	key, ok = v.keys[kid]
	v.cacheMu.RUnlock()
	if !ok {
		return nil, errKeyNotFound
	}
	return key, nil
}

func (v *Verifier) refresh(ctx context.Context) error {
	jwks, err := v.FetchJWKS(ctx)
	if err != nil {
		return err
	}

	keys := make(map[string]*rsa.PublicKey, len(jwks.Keys))
	for i := range jwks.Keys {
		jwk := &jwks.Keys[i]
		if jwk.Kty != "RSA" || jwk.Kid == "" {
			continue
		}
		publicKey, err := jwkToRSAPublicKey(jwk)
		if err != nil {
			v.logger.Warn("skipping unparsable JWK", zap.String("kid", jwk.Kid), zap.Error(err))
			continue
		}
		keys[jwk.Kid] = publicKey
	}

	now := v.now()
	v.cacheMu.Lock()
	v.keys = keys
	v.keysExp = now.Add(v.cacheTTL)
	v.lastRefresh = now
	v.cacheMu.Unlock()

	v.logger.Debug("google signing keys refreshed", zap.Int("keys", len(keys)))
	return nil
}

// jwkToRSAPublicKey converts a JWK to an RSA public key
func jwkToRSAPublicKey(jwk *JWK) (*rsa.PublicKey, error) {
	nBytes, err := base64.RawURLEncoding.DecodeString(jwk.N)
	if err != nil {
		return nil, fmt.Errorf("failed to decode modulus: %w", err)
	}

	eBytes, err := base64.RawURLEncoding.DecodeString(jwk.E)
	if err != nil {
		return nil, fmt.Errorf("failed to decode exponent: %w", err)
	}
	if len(eBytes) == 0 || len(eBytes) > 4 {
		return nil, fmt.Errorf("unsupported exponent length %d", len(eBytes))
	}

	var e int
	for _, b := range eBytes {
		e = e<<8 | int(b)
	}

	return &rsa.PublicKey{
		N: new(big.Int).SetBytes(nBytes),
		E: e,
	}, nil
}

// containsAudience checks if the audience list contains the expected client ID
func containsAudience(audiences jwt.ClaimStrings, clientID string) bool {
	for _, aud := range audiences {
		if aud == clientID {
			return true
		}
	}
	return false
}

// CacheStats describes the signing key cache for the readiness endpoint.
func (v *Verifier) CacheStats() map[string]interface{} {
	v.cacheMu.RLock()
	defer v.cacheMu.RUnlock()

	return map[string]interface{}{
		"cached_keys_count": len(v.keys),
		"keys_expire_at":    v.keysExp,
		"last_refresh":      v.lastRefresh,
	}
}
