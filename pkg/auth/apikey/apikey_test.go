package apikey

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rhuss/trellis/pkg/api"
	"github.com/rhuss/trellis/pkg/auth"
)

func keys() *Authenticator {
	return New([]RawKeyEntry{
		{Key: "sk-alice", Identity: auth.Identity{
			Subject:     "alice",
			ServiceTier: "standard",
			Metadata:    map[string]string{"tenant_id": "org-1"},
		}},
		{Key: "sk-bob", Identity: auth.Identity{Subject: "bob", ServiceTier: "premium"}},
		{Key: "", Identity: auth.Identity{Subject: "nobody"}},
	})
}

func TestAuthenticate(t *testing.T) {
	tests := []struct {
		name        string
		header      string
		value       string
		want        auth.AuthDecision
		wantSubject string
	}{
		{"bearer alice", "Authorization", "Bearer sk-alice", auth.Yes, "alice"},
		{"bearer bob", "Authorization", "Bearer sk-bob", auth.Yes, "bob"},
		{"lowercase scheme", "Authorization", "bearer sk-bob", auth.Yes, "bob"},
		{"x-api-key header", Header, "sk-alice", auth.Yes, "alice"},
		{"unknown bearer", "Authorization", "Bearer sk-mallory", auth.No, ""},
		{"unknown x-api-key", Header, "sk-mallory", auth.No, ""},
		{"empty bearer", "Authorization", "Bearer ", auth.No, ""},
		{"empty x-api-key", Header, "", auth.No, ""},
		{"basic auth", "Authorization", "Basic dXNlcjpwYXNz", auth.Abstain, ""},
		{"no credentials", "", "", auth.Abstain, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := api.NewRequest(api.MethodGet, "/")
			if tt.header != "" {
				req = req.WithHeader(tt.header, tt.value)
			}

			result := keys().Authenticate(context.Background(), req)
			assert.Equal(t, tt.want, result.Decision, "decision %s", result.Decision)
			switch tt.want {
			case auth.Yes:
				require.NotNil(t, result.Identity)
				assert.Equal(t, tt.wantSubject, result.Identity.Subject)
				assert.NoError(t, result.Err)
			case auth.No:
				assert.Nil(t, result.Identity)
				assert.Error(t, result.Err)
			}
		})
	}
}

func TestIdentityIsCopied(t *testing.T) {
	a := keys()
	req := api.NewRequest(api.MethodGet, "/").WithHeader("Authorization", "Bearer sk-alice")

	first := a.Authenticate(context.Background(), req)
	first.Identity.Subject = "mallory"

	second := a.Authenticate(context.Background(), req)
	assert.Equal(t, "alice", second.Identity.Subject)
	assert.Equal(t, "org-1", second.Identity.TenantID())
}

func TestEmptyKeysAreSkipped(t *testing.T) {
	assert.Equal(t, 2, keys().Len())
}
