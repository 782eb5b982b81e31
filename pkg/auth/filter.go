package auth

import (
	"github.com/rhuss/trellis/pkg/api"
	"github.com/rhuss/trellis/pkg/handler"
	"github.com/rhuss/trellis/pkg/logging"
	"github.com/rhuss/trellis/pkg/observability"
	"github.com/rhuss/trellis/pkg/router"
)

var log = logging.New("trellis.auth")

// identityAttr is the exchange attribute holding the authenticated identity.
const identityAttr = "auth.identity"

// DefaultBypassPaths lists paths that skip authentication.
var DefaultBypassPaths = []string{"/healthz", "/readyz", "/metrics"}

// Filter returns a before-hook action that authenticates each request with
// chain and, when limiter is non-nil, enforces its rate limits. Requests for
// a path in bypass pass untouched. On success the identity is stored on the
// exchange; see IdentityOf. A rejection by the limiter wraps its error, so
// error handlers can read a *LimitError from it.
func Filter(chain *AuthChain, limiter RateLimiter, bypass []string) handler.Action {
	skip := make(map[string]bool, len(bypass))
	for _, p := range bypass {
		skip[router.CleanPath(p)] = true
	}

	return func(c *handler.Context) error {
		req := c.Request()
		if skip[router.CleanPath(req.Path)] {
			return nil
		}

		result := chain.Authenticate(c.Context(), req)

		if result.Decision != Yes || result.Identity == nil {
			if result.Err != nil {
				log.Warnf("authentication failed for %s %s: %v", req.Method, req.Path, result.Err)
			}
			return api.NewUnauthorizedError("authentication required")
		}

		if result.Identity.Subject == "" {
			return api.NewHandlerFailure(c.Pattern(), errEmptySubject)
		}

		log.Debugf("authenticated %q for %s", result.Identity.Subject, req.Path)

		if limiter != nil {
			if err := limiter.Allow(c.Context(), result.Identity); err != nil {
				log.Warnf("rate limit exceeded for %q (tier %q)", result.Identity.Subject, result.Identity.ServiceTier)
				observability.RateLimitRejectedTotal.WithLabelValues(tierOf(result.Identity)).Inc()
				rejected := api.NewTooManyRequestsError(err.Error())
				rejected.Err = err
				return rejected
			}
		}

		c.Set(identityAttr, result.Identity)
		return nil
	}
}

// IdentityOf returns the identity stored by Filter, or nil if the request
// was not authenticated (bypassed or no filter installed).
func IdentityOf(c *handler.Context) *Identity {
	v, ok := c.Get(identityAttr)
	if !ok {
		return nil
	}
	id, _ := v.(*Identity)
	return id
}

func tierOf(id *Identity) string {
	if id.ServiceTier == "" {
		return "default"
	}
	return id.ServiceTier
}
