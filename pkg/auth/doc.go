// Package auth authenticates requests and limits their rate before they
// reach a route action.
//
// Authenticators vote Yes, No or Abstain on the credentials of a request.
// An [AuthChain] asks them in order and stops at the first Yes or No; when
// every one abstains its default decides. The apikey, jwt and noop
// subpackages hold the stock authenticators.
//
// [Filter] turns a chain and an optional [RateLimiter] into a before-hook
// for a handler tree. Rejections are unauthorized or too-many-requests
// errors, so error handlers in the tree can catch them like any other.
package auth
