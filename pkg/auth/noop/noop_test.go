package noop

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rhuss/trellis/pkg/api"
	"github.com/rhuss/trellis/pkg/auth"
)

func TestAdmitsAnonymous(t *testing.T) {
	result := (&Authenticator{}).Authenticate(context.Background(), api.NewRequest(api.MethodGet, "/"))
	assert.Equal(t, auth.Yes, result.Decision)
	require.NotNil(t, result.Identity)
	assert.Equal(t, "anonymous", result.Identity.Subject)
	assert.Equal(t, "default", result.Identity.ServiceTier)
}

func TestConfiguredIdentity(t *testing.T) {
	a := &Authenticator{Identity: auth.Identity{Subject: "dev", ServiceTier: "internal"}}

	first := a.Authenticate(context.Background(), api.NewRequest(api.MethodGet, "/"))
	first.Identity.Subject = "changed"

	second := a.Authenticate(context.Background(), api.NewRequest(api.MethodGet, "/"))
	assert.Equal(t, "dev", second.Identity.Subject)
	assert.Equal(t, "internal", second.Identity.ServiceTier)
}
