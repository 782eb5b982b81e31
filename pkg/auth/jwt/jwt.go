// Package jwt provides a bearer-token authenticator that verifies
// RSA-signed JWTs against keys published at a JWKS endpoint.
package jwt

import (
	"context"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"

	"github.com/rhuss/trellis/pkg/api"
	"github.com/rhuss/trellis/pkg/auth"
	"github.com/rhuss/trellis/pkg/client"
	"github.com/rhuss/trellis/pkg/logging"
)

var log = logging.New("trellis.auth.jwt")

// Config holds the JWT authenticator configuration.
type Config struct {
	// Issuer is the expected iss claim. Empty disables the check.
	Issuer string

	// Audience is the expected aud claim. Empty disables the check.
	Audience string

	// JWKSURL is where the signing keys are published.
	JWKSURL string

	// UserClaim names the claim used as subject. Default: "sub".
	UserClaim string

	// TenantClaim names the claim copied to the tenant_id metadata. Default: "tenant_id".
	TenantClaim string

	// ScopesClaim names the scopes claim, either a space-separated string
	// or an array. Default: "scope".
	ScopesClaim string

	// CacheTTL is how long fetched keys are trusted. Default: 1 hour.
	CacheTTL time.Duration

	// Client fetches the key set. Default: a client with a 10s timeout
	// and two retries.
	Client *client.Client
}

func (c *Config) applyDefaults() error {
	if c.UserClaim == "" {
		c.UserClaim = "sub"
	}
	if c.TenantClaim == "" {
		c.TenantClaim = "tenant_id"
	}
	if c.ScopesClaim == "" {
		c.ScopesClaim = "scope"
	}
	if c.CacheTTL == 0 {
		c.CacheTTL = time.Hour
	}
	if c.Client == nil {
		cl, err := client.New("",
			client.Name("jwks"),
			client.Timeout(10*time.Second),
			client.Retry(2, 100*time.Millisecond, 2*time.Second),
		)
		if err != nil {
			return err
		}
		c.Client = cl
	}
	return nil
}

// Authenticator validates JWT bearer tokens.
type Authenticator struct {
	config Config
	keys   *keySet
	parser *jwtlib.Parser
}

// New creates a JWT authenticator.
func New(cfg Config) (*Authenticator, error) {
	if cfg.JWKSURL == "" {
		return nil, errors.New("jwks url is required")
	}
	if err := cfg.applyDefaults(); err != nil {
		return nil, err
	}

	opts := []jwtlib.ParserOption{jwtlib.WithValidMethods([]string{"RS256", "RS384", "RS512"})}
	if cfg.Issuer != "" {
		opts = append(opts, jwtlib.WithIssuer(cfg.Issuer))
	}
	if cfg.Audience != "" {
		opts = append(opts, jwtlib.WithAudience(cfg.Audience))
	}

	return &Authenticator{
		config: cfg,
		keys:   &keySet{url: cfg.JWKSURL, ttl: cfg.CacheTTL, client: cfg.Client},
		parser: jwtlib.NewParser(opts...),
	}, nil
}

// Authenticate abstains without a bearer token, answers No for any token
// that fails verification, and Yes with the claims mapped to an identity.
func (a *Authenticator) Authenticate(ctx context.Context, req api.Request) auth.AuthResult {
	raw, ok := auth.BearerToken(req)
	if !ok {
		return auth.AuthResult{Decision: auth.Abstain}
	}
	if raw == "" {
		return auth.AuthResult{Decision: auth.No, Err: errors.New("empty bearer token")}
	}

	claims := jwtlib.MapClaims{}
	_, err := a.parser.ParseWithClaims(raw, claims, func(t *jwtlib.Token) (any, error) {
		kid, _ := t.Header["kid"].(string)
		if kid == "" {
			return nil, errors.New("token missing kid header")
		}
		return a.keys.get(ctx, kid)
	})
	if err != nil {
		log.Debugf("JWT validation failed: %v", err)
		return auth.AuthResult{Decision: auth.No, Err: fmt.Errorf("invalid JWT: %w", err)}
	}

	subject, _ := claims[a.config.UserClaim].(string)
	if subject == "" {
		return auth.AuthResult{Decision: auth.No, Err: fmt.Errorf("JWT missing %q claim", a.config.UserClaim)}
	}

	id := &auth.Identity{
		Subject:  subject,
		Scopes:   scopes(claims[a.config.ScopesClaim]),
		Metadata: map[string]string{},
	}
	if tenant, _ := claims[a.config.TenantClaim].(string); tenant != "" {
		id.Metadata["tenant_id"] = tenant
	}
	return auth.AuthResult{Decision: auth.Yes, Identity: id}
}

// scopes accepts "a b c" or ["a", "b", "c"].
func scopes(v any) []string {
	var out []string
	switch s := v.(type) {
	case string:
		out = strings.Fields(s)
	case []any:
		for _, item := range s {
			if str, ok := item.(string); ok {
				out = append(out, str)
			}
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// keySet caches RSA keys by kid. An unknown kid or an expired set
// triggers a refetch.
type keySet struct {
	url    string
	ttl    time.Duration
	client *client.Client

	mu        sync.RWMutex
	keys      map[string]*rsa.PublicKey
	fetchedAt time.Time
}

func (s *keySet) lookup(kid string) (*rsa.PublicKey, bool) {
	key, ok := s.keys[kid]
	return key, ok && time.Since(s.fetchedAt) < s.ttl
}

func (s *keySet) get(ctx context.Context, kid string) (*rsa.PublicKey, error) {
	s.mu.RLock()
	key, ok := s.lookup(kid)
	s.mu.RUnlock()
	if ok {
		return key, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if key, ok := s.lookup(kid); ok {
		return key, nil
	}
	if err := s.refresh(ctx); err != nil {
		return nil, err
	}
	key, ok = s.keys[kid]
	if !ok {
		return nil, fmt.Errorf("key %q not found in JWKS", kid)
	}
	return key, nil
}

// refresh must be called with s.mu held.
func (s *keySet) refresh(ctx context.Context) error {
	req, err := client.NewRequest(api.MethodGet, s.url)
	if err != nil {
		return err
	}
	resp, err := s.client.Send(ctx, req)
	if err != nil {
		return fmt.Errorf("fetching JWKS: %w", err)
	}
	if resp.Status.Code != 200 {
		return fmt.Errorf("JWKS endpoint returned status %d", resp.Status.Code)
	}

	var doc struct {
		Keys []jwk `json:"keys"`
	}
	if err := json.Unmarshal(api.BodyBytes(resp.Body), &doc); err != nil {
		return fmt.Errorf("parsing JWKS: %w", err)
	}

	keys := make(map[string]*rsa.PublicKey, len(doc.Keys))
	for _, k := range doc.Keys {
		if k.Kty != "RSA" || (k.Use != "" && k.Use != "sig") {
			continue
		}
		pub, err := k.publicKey()
		if err != nil {
			log.WarnErr(err, "skipping JWKS key %q", k.Kid)
			continue
		}
		keys[k.Kid] = pub
	}

	s.keys = keys
	s.fetchedAt = time.Now()
	log.Debugf("JWKS cache refreshed from %s: %d keys", s.url, len(keys))
	return nil
}

// jwk is one entry of a JSON Web Key Set.
type jwk struct {
	Kty string `json:"kty"`
	Kid string `json:"kid"`
	Use string `json:"use"`
	N   string `json:"n"`
	E   string `json:"e"`
}

func (k jwk) publicKey() (*rsa.PublicKey, error) {
	n, err := base64.RawURLEncoding.DecodeString(k.N)
	if err != nil {
		return nil, fmt.Errorf("decoding modulus: %w", err)
	}
	e, err := base64.RawURLEncoding.DecodeString(k.E)
	if err != nil {
		return nil, fmt.Errorf("decoding exponent: %w", err)
	}
	exp := new(big.Int).SetBytes(e)
	if !exp.IsInt64() {
		return nil, errors.New("RSA exponent too large")
	}
	return &rsa.PublicKey{N: new(big.Int).SetBytes(n), E: int(exp.Int64())}, nil
}
