// Package noop provides an authenticator that admits every request.
// It is meant for development setups without credentials.
package noop

import (
	"context"

	"github.com/rhuss/trellis/pkg/api"
	"github.com/rhuss/trellis/pkg/auth"
)

// Authenticator votes Yes for every request. The zero value admits callers
// as "anonymous" in the "default" tier.
type Authenticator struct {
	// Identity overrides the identity handed out when its Subject is set.
	Identity auth.Identity
}

// Authenticate returns a copy of the configured identity.
func (a *Authenticator) Authenticate(context.Context, api.Request) auth.AuthResult {
	id := a.Identity
	if id.Subject == "" {
		id = auth.Identity{Subject: "anonymous", ServiceTier: "default"}
	}
	return auth.AuthResult{Decision: auth.Yes, Identity: &id}
}
