package router

import (
	"maps"
	"slices"
	"strings"

	"github.com/rhuss/trellis/pkg/api"
)

// Node describes one entry of a routing tree before compilation.
//
// A node with Group set, or with children, is a transparent path container:
// its pattern matches a prefix of the request path and its method filter is
// ignored. Any other node is a leaf whose pattern must consume the whole
// remaining path. Terminal marks leaves that produce a response; only those
// take part in 404/405 decisions.
type Node[T any] struct {
	Pattern  string
	Methods  []api.Method // empty means any method
	Value    T
	Terminal bool
	Group    bool
	Children []Node[T]
}

// Match is one applicable node for a resolved request.
type Match[T any] struct {
	Value    T
	Params   map[string]string
	Pattern  string // full pattern from the root
	Methods  []api.Method
	Depth    int // 0 for root nodes
	Terminal bool

	segs []segment
}

// MoreSpecificThan reports whether m should be preferred over o when both
// match the same request. Path specificity decides first, then an explicit
// method filter beats a catch-all one.
func (m Match[T]) MoreSpecificThan(o Match[T]) bool {
	if c := compareSegments(m.segs, o.segs); c != 0 {
		return c > 0
	}
	return len(m.Methods) > 0 && len(o.Methods) == 0
}

// Route describes a terminal leaf, for listings.
type Route struct {
	Pattern string
	Methods []api.Method
}

type entry[T any] struct {
	segs     []segment // this node's own segments
	full     []segment // segments from the root
	methods  []api.Method
	value    T
	terminal bool
	group    bool
	depth    int
	children []int
}

// Tree is an immutable routing tree stored as a flat arena. It is safe for
// concurrent use once built.
type Tree[T any] struct {
	nodes []entry[T]
	roots []int
}

// New compiles nodes into a Tree. A malformed pattern anywhere in the tree
// fails the whole build with an error naming that pattern.
func New[T any](nodes ...Node[T]) (*Tree[T], error) {
	t := &Tree[T]{}
	roots, err := t.add(nodes, nil, map[string]bool{}, 0)
	if err != nil {
		return nil, err
	}
	t.roots = roots
	return t, nil
}

func (t *Tree[T]) add(nodes []Node[T], parent []segment, names map[string]bool, depth int) ([]int, error) {
	ids := make([]int, 0, len(nodes))
	for _, n := range nodes {
		group := n.Group || len(n.Children) > 0
		full := joinPattern(parent, n.Pattern)

		segs, err := parsePattern(n.Pattern, full, group)
		if err != nil {
			return nil, err
		}

		scope := maps.Clone(names)
		for _, s := range segs {
			if s.kind == segLiteral {
				continue
			}
			if scope[s.value] {
				return nil, api.NewMalformedPatternError(full, "duplicate parameter name "+s.value)
			}
			scope[s.value] = true
		}

		for _, m := range n.Methods {
			if _, err := api.ParseMethod(string(m)); err != nil {
				return nil, api.NewMalformedPatternError(full, err.Error())
			}
		}

		id := len(t.nodes)
		t.nodes = append(t.nodes, entry[T]{
			segs:     segs,
			full:     append(slices.Clip(parent), segs...),
			methods:  slices.Clone(n.Methods),
			value:    n.Value,
			terminal: n.Terminal && !group,
			group:    group,
			depth:    depth,
		})

		if group {
			children, err := t.add(n.Children, t.nodes[id].full, scope, depth+1)
			if err != nil {
				return nil, err
			}
			t.nodes[id].children = children
		}
		ids = append(ids, id)
	}

	slices.SortStableFunc(ids, func(a, b int) int {
		return compareSegments(t.nodes[b].segs, t.nodes[a].segs)
	})
	return ids, nil
}

// Resolve returns the leaves applicable to method and path, depth first with
// siblings in specificity order. Of the terminal leaves only the most
// specific one is kept; every other leaf is returned. It returns nil when
// nothing matches.
func (t *Tree[T]) Resolve(method api.Method, path string) []Match[T] {
	var out []Match[T]
	best := -1
	t.walk(t.roots, splitPath(path), nil, func(e *entry[T], params map[string]string) {
		if len(e.methods) > 0 && !slices.Contains(e.methods, method) {
			return
		}
		m := Match[T]{
			Value:    e.value,
			Params:   params,
			Pattern:  renderPattern(e.full),
			Methods:  e.methods,
			Depth:    e.depth,
			Terminal: e.terminal,
			segs:     e.full,
		}
		if e.terminal {
			if best >= 0 && !m.MoreSpecificThan(out[best]) {
				return
			}
			if best >= 0 {
				out = slices.Delete(out, best, best+1)
			}
			best = len(out)
		}
		out = append(out, m)
	})
	return out
}

// AllowedMethods lists the methods accepted by terminal leaves matching path,
// in canonical method order. A terminal without a method filter allows every
// method.
func (t *Tree[T]) AllowedMethods(path string) []api.Method {
	allowed := map[api.Method]bool{}
	t.walk(t.roots, splitPath(path), nil, func(e *entry[T], _ map[string]string) {
		if !e.terminal {
			return
		}
		if len(e.methods) == 0 {
			for _, m := range api.Methods {
				allowed[m] = true
			}
			return
		}
		for _, m := range e.methods {
			allowed[m] = true
		}
	})

	var out []api.Method
	for _, m := range api.Methods {
		if allowed[m] {
			out = append(out, m)
		}
	}
	return out
}

// Routes lists every terminal leaf in tree order.
func (t *Tree[T]) Routes() []Route {
	var out []Route
	var visit func(ids []int)
	visit = func(ids []int) {
		for _, id := range ids {
			e := &t.nodes[id]
			if e.terminal {
				out = append(out, Route{Pattern: renderPattern(e.full), Methods: slices.Clone(e.methods)})
			}
			visit(e.children)
		}
	}
	visit(t.roots)
	return out
}

// Len returns the number of nodes in the tree.
func (t *Tree[T]) Len() int {
	return len(t.nodes)
}

// walk calls visit for each leaf whose pattern matches path, ignoring method
// filters.
func (t *Tree[T]) walk(ids []int, path []string, params map[string]string, visit func(*entry[T], map[string]string)) {
	for _, id := range ids {
		e := &t.nodes[id]
		rest, bound, ok := match(e.segs, path, params)
		if !ok {
			continue
		}
		if e.group {
			t.walk(e.children, rest, bound, visit)
			continue
		}
		if len(rest) == 0 {
			visit(e, bound)
		}
	}
}

// match consumes segs from the front of path and returns the unconsumed
// remainder along with the parameters bound so far. params is never modified.
func match(segs []segment, path []string, params map[string]string) ([]string, map[string]string, bool) {
	bound := params
	cloned := false
	bind := func(name, value string) {
		if !cloned {
			bound = maps.Clone(params)
			if bound == nil {
				bound = map[string]string{}
			}
			cloned = true
		}
		bound[name] = value
	}

	for i, s := range segs {
		switch s.kind {
		case segWildcard:
			bind(s.value, strings.Join(path[i:], "/"))
			return nil, bound, true
		case segParam:
			if i >= len(path) {
				return nil, nil, false
			}
			bind(s.value, path[i])
		default:
			if i >= len(path) || path[i] != s.value {
				return nil, nil, false
			}
		}
	}
	return path[len(segs):], bound, true
}
