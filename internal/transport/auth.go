package transport

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/fieldscope/approvald/internal/config"
	"github.com/fieldscope/approvald/model"
)

// jwk is the subset of a JSON Web Key this service reads. Signing keys are
// RSA or EC; anything else in the published set is skipped.
type jwk struct {
	Kid string `json:"kid"`
	Kty string `json:"kty"`
	Crv string `json:"crv"`
	N   string `json:"n"`
	E   string `json:"e"`
	X   string `json:"x"`
	Y   string `json:"y"`
}

func (k jwk) publicKey() (crypto.PublicKey, error) {
	switch k.Kty {
	case "RSA":
		return k.rsaKey()
	case "EC":
		return k.ecKey()
	default:
		return nil, fmt.Errorf("unsupported key type %q", k.Kty)
	}
}

func (k jwk) rsaKey() (*rsa.PublicKey, error) {
	n, err := base64Int(k.N)
	if err != nil {
		return nil, fmt.Errorf("modulus: %w", err)
	}
	e, err := base64Int(k.E)
	if err != nil {
		return nil, fmt.Errorf("exponent: %w", err)
	}
	return &rsa.PublicKey{N: n, E: int(e.Int64())}, nil
}

func (k jwk) ecKey() (*ecdsa.PublicKey, error) {
	var curve elliptic.Curve
	switch k.Crv {
	case "P-256":
		curve = elliptic.P256()
	case "P-384":
		curve = elliptic.P384()
	case "P-521":
		curve = elliptic.P521()
	default:
		return nil, fmt.Errorf("unsupported curve %q", k.Crv)
	}
	x, err := base64Int(k.X)
	if err != nil {
		return nil, fmt.Errorf("x coordinate: %w", err)
	}
	y, err := base64Int(k.Y)
	if err != nil {
		return nil, fmt.Errorf("y coordinate: %w", err)
	}
	return &ecdsa.PublicKey{Curve: curve, X: x, Y: y}, nil
}

func base64Int(s string) (*big.Int, error) {
	if s == "" {
		return nil, errors.New("empty value")
	}
	b, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return nil, err
	}
	return new(big.Int).SetBytes(b), nil
}

// JWKSClient caches the identity provider's published signing keys. The set
// is refetched once the cache TTL passes, but never more often than
// minRefresh, so a burst of tokens carrying unknown kids cannot hammer the
// provider.
type JWKSClient struct {
	url        string
	ttl        time.Duration
	minRefresh time.Duration
	client     *http.Client

	mu        sync.RWMutex
	keys      map[string]crypto.PublicKey
	fetchedAt time.Time
}

// NewJWKSClient returns a client for the given JWKS endpoint, caching keys
// for ttl.
func NewJWKSClient(url string, ttl time.Duration) *JWKSClient {
	return &JWKSClient{
		url:        url,
		ttl:        ttl,
		minRefresh: 5 * time.Minute,
		client:     &http.Client{Timeout: 10 * time.Second},
		keys:       make(map[string]crypto.PublicKey),
	}
}

// GetKey returns the public key for kid, refetching the key set when the
// cache has expired. When a refresh fails but a cached copy of the key still
// exists, the stale key is served; a provider outage during key rotation
// must not lock every reviewer out at once.
func (c *JWKSClient) GetKey(kid string) (crypto.PublicKey, error) {
	if key, fresh := c.cached(kid); fresh {
		return key, nil
	}

	if err := c.refresh(); err != nil {
		if key, _ := c.cached(kid); key != nil {
			slog.Warn("jwks refresh failed, serving cached key", "kid", kid, "error", err)
			return key, nil
		}
		return nil, fmt.Errorf("jwks: fetch failed: %w", err)
	}

	key, _ := c.cached(kid)
	if key == nil {
		return nil, fmt.Errorf("jwks: no key with id %q", kid)
	}
	return key, nil
}

// Keyfunc resolves the verification key for a parsed token header. It is
// shaped for jwt.Parse.
func (c *JWKSClient) Keyfunc(token *jwt.Token) (any, error) {
	kid, _ := token.Header["kid"].(string)
	if kid == "" {
		return nil, errors.New("token header has no kid")
	}
	return c.GetKey(kid)
}

// cached returns the key stored for kid, if any, and whether the cache as a
// whole is still within its TTL.
func (c *JWKSClient) cached(kid string) (crypto.PublicKey, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	key := c.keys[kid]
	return key, key != nil && time.Since(c.fetchedAt) <= c.ttl
}

func (c *JWKSClient) refresh() error {
	c.mu.RLock()
	recent := time.Since(c.fetchedAt) < c.minRefresh && len(c.keys) > 0
	c.mu.RUnlock()
	if recent {
		return nil
	}

	resp, err := c.client.Get(c.url)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("jwks: status %d from %s", resp.StatusCode, c.url)
	}

	var set struct {
		Keys []jwk `json:"keys"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&set); err != nil {
		return fmt.Errorf("jwks: decode: %w", err)
	}

	keys := make(map[string]crypto.PublicKey, len(set.Keys))
	for _, k := range set.Keys {
		if k.Kid == "" {
			continue
		}
		pub, err := k.publicKey()
		if err != nil {
			slog.Warn("jwks key skipped", "kid", k.Kid, "error", err)
			continue
		}
		keys[k.Kid] = pub
	}

	c.mu.Lock()
	c.keys = keys
	c.fetchedAt = time.Now()
	c.mu.Unlock()
	return nil
}

// JWTAuthenticator verifies the bearer token on each request against the
// configured issuer, audience, and allowed algorithms, then stores the
// verified claims for the request-context middleware further down the chain.
func JWTAuthenticator(cfg config.IdentityConfig, jwks *JWKSClient) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw, err := bearerToken(r)
			if err != nil {
				WriteError(w, model.NewUnauthorizedError(err.Error()))
				return
			}

			token, err := jwt.Parse(raw, jwks.Keyfunc,
				jwt.WithValidMethods(cfg.Algorithms),
				jwt.WithIssuer(cfg.Issuer),
				jwt.WithAudience(cfg.Audience),
				jwt.WithLeeway(30*time.Second),
				jwt.WithExpirationRequired(),
			)
			if err != nil {
				WriteError(w, model.NewUnauthorizedError(authFailureMessage(err)))
				return
			}

			claims, ok := token.Claims.(jwt.MapClaims)
			if !ok || !token.Valid {
				WriteError(w, model.NewUnauthorizedError("token rejected"))
				return
			}

			next.ServeHTTP(w, r.WithContext(WithClaims(r.Context(), map[string]any(claims))))
		})
	}
}

func bearerToken(r *http.Request) (string, error) {
	auth := r.Header.Get("Authorization")
	if auth == "" {
		return "", errors.New("missing authorization header")
	}
	scheme, rest, found := strings.Cut(auth, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") || rest == "" {
		return "", errors.New("authorization header is not a bearer token")
	}
	return rest, nil
}

// authFailureMessage maps verification failures to messages safe to return
// to the caller. The underlying error stays out of the response; it can
// carry provider URLs and key material details.
func authFailureMessage(err error) string {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return "token expired"
	case errors.Is(err, jwt.ErrTokenInvalidIssuer):
		return "token issuer not trusted"
	case errors.Is(err, jwt.ErrTokenInvalidAudience):
		return "token not issued for this service"
	case errors.Is(err, jwt.ErrTokenUnverifiable):
		return "token signing key not recognized"
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return "token signature rejected"
	case errors.Is(err, jwt.ErrTokenMalformed):
		return "token malformed"
	default:
		return "token rejected"
	}
}
