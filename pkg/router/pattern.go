package router

import (
	"strings"

	"github.com/rhuss/trellis/pkg/api"
)

type segmentKind int

const (
	segLiteral segmentKind = iota
	segParam
	segWildcard
)

// rank orders segment kinds by specificity. A pattern that ends where another
// continues with a wildcard is the more specific of the two, since the
// wildcard would only match zero segments there.
func rank(segs []segment, i int) int {
	if i >= len(segs) {
		return 1
	}
	switch segs[i].kind {
	case segLiteral:
		return 3
	case segParam:
		return 2
	default:
		return 0
	}
}

// AnonymousWildcard is the parameter name bound by a bare "*" segment.
const AnonymousWildcard = "*"

type segment struct {
	kind  segmentKind
	value string // literal text or parameter name
}

func (s segment) String() string {
	switch s.kind {
	case segParam:
		return "{" + s.value + "}"
	case segWildcard:
		if s.value == AnonymousWildcard {
			return "*"
		}
		return "{" + s.value + "...}"
	default:
		return s.value
	}
}

// splitPath returns the non-empty segments of p. Duplicate and trailing
// slashes are ignored.
func splitPath(p string) []string {
	return strings.FieldsFunc(p, func(r rune) bool { return r == '/' })
}

// CleanPath returns p the way the router sees it: a leading slash and no
// empty segments, so "/healthz/" and "//healthz" both become "/healthz".
func CleanPath(p string) string {
	return "/" + strings.Join(splitPath(p), "/")
}

// parsePattern parses one node's pattern. full is the complete pattern used
// in error messages.
func parsePattern(raw, full string, group bool) ([]segment, error) {
	parts := splitPath(raw)
	segs := make([]segment, 0, len(parts))
	wildcards := 0

	for _, part := range parts {
		seg, err := parseSegment(part, full)
		if err != nil {
			return nil, err
		}
		if seg.kind == segWildcard {
			wildcards++
		}
		segs = append(segs, seg)
	}

	if wildcards > 1 {
		return nil, api.NewMalformedPatternError(full, "more than one wildcard")
	}
	for i, seg := range segs {
		if seg.kind != segWildcard {
			continue
		}
		if group {
			return nil, api.NewMalformedPatternError(full, "wildcard not allowed in a group pattern")
		}
		if i != len(segs)-1 {
			return nil, api.NewMalformedPatternError(full, "wildcard must be the last segment")
		}
	}
	return segs, nil
}

func parseSegment(part, full string) (segment, error) {
	if part == "*" {
		return segment{kind: segWildcard, value: AnonymousWildcard}, nil
	}

	open := strings.Count(part, "{")
	closing := strings.Count(part, "}")
	if open == 0 && closing == 0 {
		if strings.Contains(part, "*") {
			return segment{}, api.NewMalformedPatternError(full, "wildcard must span a whole segment")
		}
		return segment{kind: segLiteral, value: part}, nil
	}
	if open != 1 || closing != 1 || part[0] != '{' || part[len(part)-1] != '}' {
		return segment{}, api.NewMalformedPatternError(full, "unbalanced braces in segment "+part)
	}

	name := part[1 : len(part)-1]
	kind := segParam
	if rest, ok := strings.CutSuffix(name, "..."); ok {
		name = rest
		kind = segWildcard
	}
	if name == "" {
		return segment{}, api.NewMalformedPatternError(full, "empty parameter name")
	}
	if strings.ContainsAny(name, "*.") {
		return segment{}, api.NewMalformedPatternError(full, "invalid parameter name "+name)
	}
	return segment{kind: kind, value: name}, nil
}

func renderPattern(segs []segment) string {
	if len(segs) == 0 {
		return "/"
	}
	var b strings.Builder
	for _, s := range segs {
		b.WriteByte('/')
		b.WriteString(s.String())
	}
	return b.String()
}

func joinPattern(parent []segment, raw string) string {
	p := renderPattern(parent)
	raw = strings.Trim(raw, "/")
	if raw == "" {
		return p
	}
	if p == "/" {
		return "/" + raw
	}
	return p + "/" + raw
}

// compareSegments orders two full patterns by specificity: positive if a is
// more specific than b, negative if less, zero if equal.
func compareSegments(a, b []segment) int {
	for i := range max(len(a), len(b)) {
		if d := rank(a, i) - rank(b, i); d != 0 {
			return d
		}
	}
	return 0
}
