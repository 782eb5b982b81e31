package auth

import (
	"context"
	"errors"
	"slices"
	"strings"

	"github.com/rhuss/trellis/pkg/api"
)

// AuthDecision is the vote of one authenticator.
type AuthDecision int

const (
	// Yes accepts the credentials and ends the vote.
	Yes AuthDecision = iota
	// No rejects the credentials and ends the vote.
	No
	// Abstain passes the request on: the authenticator does not handle
	// this kind of credentials.
	Abstain
)

func (d AuthDecision) String() string {
	switch d {
	case Yes:
		return "yes"
	case No:
		return "no"
	case Abstain:
		return "abstain"
	default:
		return "unknown"
	}
}

// AuthResult is the outcome of a vote. Identity is set for Yes, Err for No.
type AuthResult struct {
	Decision AuthDecision
	Identity *Identity
	Err      error
}

// Identity is an authenticated caller.
type Identity struct {
	// Subject identifies the caller and must not be empty.
	Subject     string
	ServiceTier string
	Scopes      []string
	// Metadata holds provider-specific values; "tenant_id" names the tenant.
	Metadata map[string]string
}

// TenantID returns the tenant_id metadata entry. Safe on a nil identity.
func (id *Identity) TenantID() string {
	if id == nil {
		return ""
	}
	return id.Metadata["tenant_id"]
}

// HasScope reports whether scope was granted. Safe on a nil identity.
func (id *Identity) HasScope(scope string) bool {
	return id != nil && slices.Contains(id.Scopes, scope)
}

// Authenticator inspects the credentials of a request and votes.
type Authenticator interface {
	Authenticate(ctx context.Context, req api.Request) AuthResult
}

// AuthenticatorFunc adapts a function to Authenticator.
type AuthenticatorFunc func(ctx context.Context, req api.Request) AuthResult

// Authenticate calls f.
func (f AuthenticatorFunc) Authenticate(ctx context.Context, req api.Request) AuthResult {
	return f(ctx, req)
}

var (
	ErrUnauthenticated = errors.New("authentication required")
	ErrTooManyRequests = errors.New("rate limit exceeded")

	errEmptySubject = errors.New("authenticator returned identity with empty subject")
)

// AuthChain asks its authenticators in order; the first Yes or No wins.
// When all abstain, DefaultDecision applies: Yes admits the caller as
// "anonymous", anything else rejects.
type AuthChain struct {
	Authenticators  []Authenticator
	DefaultDecision AuthDecision
}

// Authenticate runs the vote.
func (c *AuthChain) Authenticate(ctx context.Context, req api.Request) AuthResult {
	for _, authn := range c.Authenticators {
		if result := authn.Authenticate(ctx, req); result.Decision != Abstain {
			if log.IsTraceEnabled() {
				log.Tracef("%T voted %s for %s %s", authn, result.Decision, req.Method, req.Path)
			}
			return result
		}
	}

	if c.DefaultDecision != Yes {
		return AuthResult{Decision: No, Err: ErrUnauthenticated}
	}
	return AuthResult{
		Decision: Yes,
		Identity: &Identity{Subject: "anonymous", ServiceTier: "default"},
	}
}

// BearerToken returns the token of a "Bearer" Authorization header. The
// scheme is matched case-insensitively.
func BearerToken(req api.Request) (string, bool) {
	scheme, token, ok := strings.Cut(req.Authorization(), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	return strings.TrimSpace(token), true
}
