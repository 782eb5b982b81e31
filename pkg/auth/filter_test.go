package auth_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rhuss/trellis/pkg/api"
	"github.com/rhuss/trellis/pkg/auth"
	"github.com/rhuss/trellis/pkg/auth/apikey"
	"github.com/rhuss/trellis/pkg/handler"
)

type fixedAuthn auth.AuthResult

func (f fixedAuthn) Authenticate(context.Context, api.Request) auth.AuthResult {
	return auth.AuthResult(f)
}

func guarded(t *testing.T, chain *auth.AuthChain, limiter auth.RateLimiter) *handler.Chain {
	t.Helper()
	ch, err := handler.Compile([]handler.Handler{
		handler.Before("", auth.Filter(chain, limiter, auth.DefaultBypassPaths)),
		handler.Get("/healthz", func(c *handler.Context) error { return c.Ok("ok") }),
		handler.Get("/whoami", func(c *handler.Context) error {
			id := auth.IdentityOf(c)
			if id == nil {
				return c.Ok("nobody")
			}
			return c.Ok(id.Subject)
		}),
	})
	require.NoError(t, err)
	return ch
}

func keyChain() *auth.AuthChain {
	return &auth.AuthChain{
		Authenticators: []auth.Authenticator{
			apikey.New([]apikey.RawKeyEntry{
				{Key: "sk-alice", Identity: auth.Identity{Subject: "alice", ServiceTier: "standard"}},
			}),
		},
		DefaultDecision: auth.No,
	}
}

func get(ch *handler.Chain, path, token string) api.Call {
	req := api.NewRequest(api.MethodGet, path)
	if token != "" {
		req = req.WithHeader("Authorization", "Bearer "+token)
	}
	return ch.Process(context.Background(), req)
}

func TestFilterRejectsMissingCredentials(t *testing.T) {
	call := get(guarded(t, keyChain(), nil), "/whoami", "")
	assert.Equal(t, api.StatusUnauthorized, call.Response.Status)
}

func TestFilterRejectsInvalidKey(t *testing.T) {
	call := get(guarded(t, keyChain(), nil), "/whoami", "sk-mallory")
	assert.Equal(t, api.StatusUnauthorized, call.Response.Status)
}

func TestFilterBypassesHealthCheck(t *testing.T) {
	ch := guarded(t, keyChain(), nil)
	for _, path := range []string{"/healthz", "/healthz/", "//healthz"} {
		t.Run(path, func(t *testing.T) {
			call := get(ch, path, "")
			assert.Equal(t, api.StatusOK, call.Response.Status)
			assert.Equal(t, "ok", api.BodyString(call.Response.Body))
		})
	}
}

func TestFilterStoresIdentity(t *testing.T) {
	call := get(guarded(t, keyChain(), nil), "/whoami", "sk-alice")
	assert.Equal(t, api.StatusOK, call.Response.Status)
	assert.Equal(t, "alice", api.BodyString(call.Response.Body))
}

func TestFilterDefaultAllowIsAnonymous(t *testing.T) {
	chain := &auth.AuthChain{DefaultDecision: auth.Yes}
	call := get(guarded(t, chain, nil), "/whoami", "")
	assert.Equal(t, "anonymous", api.BodyString(call.Response.Body))
}

func TestFilterEmptySubjectIsServerError(t *testing.T) {
	chain := &auth.AuthChain{
		Authenticators: []auth.Authenticator{
			fixedAuthn{Decision: auth.Yes, Identity: &auth.Identity{}},
		},
	}
	call := get(guarded(t, chain, nil), "/whoami", "")
	assert.Equal(t, api.StatusInternalServerError, call.Response.Status)
}

func TestFilterEnforcesRateLimit(t *testing.T) {
	limiter := auth.NewInProcessLimiter(map[string]auth.TierConfig{
		"standard": {RequestsPerMinute: 2},
	}, 0)
	ch := guarded(t, keyChain(), limiter)

	for range 2 {
		assert.Equal(t, api.StatusOK, get(ch, "/whoami", "sk-alice").Response.Status)
	}
	assert.Equal(t, api.StatusTooManyRequests, get(ch, "/whoami", "sk-alice").Response.Status)

	// Bypassed paths are never counted.
	assert.Equal(t, api.StatusOK, get(ch, "/healthz", "").Response.Status)
}

func TestFilterRejectionCanBeCaught(t *testing.T) {
	ch, err := handler.Compile([]handler.Handler{
		handler.Before("", auth.Filter(keyChain(), nil, nil)),
		handler.Get("/secret", func(c *handler.Context) error { return c.Ok("secret") }),
		handler.Catch(api.ErrUnauthorized, func(c *handler.Context, err error) error {
			if err := c.Header("WWW-Authenticate", `Bearer realm="trellis"`); err != nil {
				return err
			}
			return c.Text(api.StatusUnauthorized, "login first")
		}),
	})
	require.NoError(t, err)

	call := get(ch, "/secret", "")
	assert.Equal(t, api.StatusUnauthorized, call.Response.Status)
	assert.Equal(t, `Bearer realm="trellis"`, call.Response.Headers.Get("WWW-Authenticate"))
	assert.Equal(t, "login first", api.BodyString(call.Response.Body))
}
