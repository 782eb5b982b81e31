// Package api defines the request/response model shared by the trellis
// server core, its transport adapters and its test client.
//
// All types are plain values and perform no I/O. Constructors validate only
// what is cheap to check (for example a negative port); everything else is
// accepted as given and left to the router and transports.
//
// Core types:
//   - [Request]: an inbound request (method, target, headers, body, parts, form parameters, cookies, certificates)
//   - [Response]: an outbound response; its [Body] is either a fixed [Payload] or an [EventStream]
//   - [Call]: one request paired with the response being built for it, with structural equality and hashing
//   - [Multimap]: ordered multimap used for headers, form and query parameters
//   - [ServerEvent] and [EventSource]: server-sent events and the lazy sequence producing them
//   - [Error]: categorized failures (route not found, method not allowed, handler failure, ...)
//
// The With methods on Request and Response return modified copies. The only
// mutable per-exchange state lives in the handler chain's context.
package api
