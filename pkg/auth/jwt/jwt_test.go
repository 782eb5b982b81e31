package jwt

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rhuss/trellis/pkg/api"
	"github.com/rhuss/trellis/pkg/auth"
)

var testKey *rsa.PrivateKey

func init() {
	var err error
	testKey, err = rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		panic(fmt.Sprintf("generating test RSA key: %v", err))
	}
}

const testKID = "test-key-1"

// jwksServer publishes the test public key and counts fetches.
func jwksServer(t *testing.T, fetches *atomic.Int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fetches.Add(1)
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"keys": []map[string]string{
				{"kty": "EC", "kid": "ignored"},
				{
					"kty": "RSA",
					"kid": testKID,
					"use": "sig",
					"n":   base64.RawURLEncoding.EncodeToString(testKey.N.Bytes()),
					"e":   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(testKey.E)).Bytes()),
				},
			},
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newAuthenticator(t *testing.T, fetches *atomic.Int32, override func(*Config)) *Authenticator {
	t.Helper()
	cfg := Config{
		Issuer:   "https://auth.example.com",
		Audience: "my-api",
		JWKSURL:  jwksServer(t, fetches).URL + "/.well-known/jwks.json",
	}
	if override != nil {
		override(&cfg)
	}
	a, err := New(cfg)
	require.NoError(t, err)
	return a
}

func sign(t *testing.T, method jwtlib.SigningMethod, kid string, claims jwtlib.MapClaims) string {
	t.Helper()
	token := jwtlib.NewWithClaims(method, claims)
	if kid != "" {
		token.Header["kid"] = kid
	}
	var key any = testKey
	if _, ok := method.(*jwtlib.SigningMethodHMAC); ok {
		key = []byte("shared-secret")
	}
	s, err := token.SignedString(key)
	require.NoError(t, err)
	return s
}

func validClaims(extra jwtlib.MapClaims) jwtlib.MapClaims {
	claims := jwtlib.MapClaims{
		"sub": "user-123",
		"iss": "https://auth.example.com",
		"aud": "my-api",
		"exp": time.Now().Add(time.Hour).Unix(),
		"iat": time.Now().Unix(),
	}
	for k, v := range extra {
		claims[k] = v
	}
	return claims
}

func bearer(token string) api.Request {
	return api.NewRequest(api.MethodGet, "/").WithHeader("Authorization", "Bearer "+token)
}

func TestValidToken(t *testing.T) {
	var fetches atomic.Int32
	a := newAuthenticator(t, &fetches, nil)

	token := sign(t, jwtlib.SigningMethodRS256, testKID, validClaims(jwtlib.MapClaims{
		"tenant_id": "org-1",
		"scope":     "read write admin",
	}))
	result := a.Authenticate(context.Background(), bearer(token))

	require.Equal(t, auth.Yes, result.Decision, "err=%v", result.Err)
	assert.Equal(t, "user-123", result.Identity.Subject)
	assert.Equal(t, "org-1", result.Identity.TenantID())
	assert.Equal(t, []string{"read", "write", "admin"}, result.Identity.Scopes)
}

func TestRejectedTokens(t *testing.T) {
	tests := []struct {
		name  string
		token func(t *testing.T) string
	}{
		{"expired", func(t *testing.T) string {
			return sign(t, jwtlib.SigningMethodRS256, testKID, validClaims(jwtlib.MapClaims{
				"exp": time.Now().Add(-time.Hour).Unix(),
			}))
		}},
		{"wrong issuer", func(t *testing.T) string {
			return sign(t, jwtlib.SigningMethodRS256, testKID, validClaims(jwtlib.MapClaims{"iss": "https://evil.example.com"}))
		}},
		{"wrong audience", func(t *testing.T) string {
			return sign(t, jwtlib.SigningMethodRS256, testKID, validClaims(jwtlib.MapClaims{"aud": "other-api"}))
		}},
		{"missing kid", func(t *testing.T) string {
			return sign(t, jwtlib.SigningMethodRS256, "", validClaims(nil))
		}},
		{"unknown kid", func(t *testing.T) string {
			return sign(t, jwtlib.SigningMethodRS256, "rotated-away", validClaims(nil))
		}},
		{"hmac signed", func(t *testing.T) string {
			return sign(t, jwtlib.SigningMethodHS256, testKID, validClaims(nil))
		}},
		{"missing subject", func(t *testing.T) string {
			claims := validClaims(nil)
			delete(claims, "sub")
			return sign(t, jwtlib.SigningMethodRS256, testKID, claims)
		}},
		{"garbage", func(t *testing.T) string { return "not.a.jwt" }},
		{"empty", func(t *testing.T) string { return "" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var fetches atomic.Int32
			a := newAuthenticator(t, &fetches, nil)

			result := a.Authenticate(context.Background(), bearer(tt.token(t)))
			assert.Equal(t, auth.No, result.Decision)
			assert.Error(t, result.Err)
			assert.Nil(t, result.Identity)
		})
	}
}

func TestAbstainsWithoutBearer(t *testing.T) {
	var fetches atomic.Int32
	a := newAuthenticator(t, &fetches, nil)

	for _, header := range []string{"", "Basic dXNlcjpwYXNz"} {
		req := api.NewRequest(api.MethodGet, "/")
		if header != "" {
			req = req.WithHeader("Authorization", header)
		}
		assert.Equal(t, auth.Abstain, a.Authenticate(context.Background(), req).Decision)
	}
	assert.Zero(t, fetches.Load(), "abstaining must not touch the key set")
}

func TestCustomClaims(t *testing.T) {
	var fetches atomic.Int32
	a := newAuthenticator(t, &fetches, func(c *Config) {
		c.UserClaim = "email"
		c.TenantClaim = "org"
		c.ScopesClaim = "permissions"
	})

	token := sign(t, jwtlib.SigningMethodRS256, testKID, validClaims(jwtlib.MapClaims{
		"email":       "alice@example.com",
		"org":         "acme",
		"permissions": []any{"read", "write"},
	}))
	result := a.Authenticate(context.Background(), bearer(token))

	require.Equal(t, auth.Yes, result.Decision, "err=%v", result.Err)
	assert.Equal(t, "alice@example.com", result.Identity.Subject)
	assert.Equal(t, "acme", result.Identity.TenantID())
	assert.Equal(t, []string{"read", "write"}, result.Identity.Scopes)
}

func TestKeySetIsCached(t *testing.T) {
	var fetches atomic.Int32
	a := newAuthenticator(t, &fetches, nil)

	token := sign(t, jwtlib.SigningMethodRS256, testKID, validClaims(nil))
	for range 3 {
		require.Equal(t, auth.Yes, a.Authenticate(context.Background(), bearer(token)).Decision)
	}
	assert.Equal(t, int32(1), fetches.Load())
}

func TestExpiredKeySetIsRefetched(t *testing.T) {
	var fetches atomic.Int32
	a := newAuthenticator(t, &fetches, func(c *Config) { c.CacheTTL = time.Nanosecond })

	token := sign(t, jwtlib.SigningMethodRS256, testKID, validClaims(nil))
	for range 2 {
		time.Sleep(time.Millisecond)
		require.Equal(t, auth.Yes, a.Authenticate(context.Background(), bearer(token)).Decision)
	}
	assert.Equal(t, int32(2), fetches.Load())
}

func TestNewRequiresJWKSURL(t *testing.T) {
	_, err := New(Config{})
	assert.Error(t, err)
}
