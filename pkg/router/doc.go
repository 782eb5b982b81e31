// Package router resolves a method and path against a tree of path patterns.
//
// Patterns are slash-separated segments. A segment is a literal, a named
// parameter "{id}" matching one non-empty segment, or a trailing wildcard
// ("*" or "{rest...}") matching zero or more remaining segments. When several
// siblings match, literals win over parameters and parameters over wildcards,
// and [Tree.Resolve] returns only the winning terminal leaf alongside every
// matching non-terminal one.
//
// Trees are compiled once with [New], which rejects malformed patterns, and
// are read-only afterwards.
package router
