// Package data holds helpers for loosely typed, nested data as produced by
// YAML or JSON decoding: maps of string to any, lists of any, and scalars.
package data

import (
	"cmp"
	"fmt"
	"maps"
	"slices"
)

// Merge combines a and b into a new map. For keys present in both, nested
// maps are merged recursively, lists are concatenated (a's items first) and
// any other value from b replaces a's. Neither input is modified.
func Merge(a, b map[string]any) map[string]any {
	out := make(map[string]any, len(a)+len(b))
	maps.Copy(out, a)
	for k, bv := range b {
		av, ok := out[k]
		if !ok {
			out[k] = bv
			continue
		}
		out[k] = mergeValues(av, bv)
	}
	return out
}

func mergeValues(a, b any) any {
	switch bv := b.(type) {
	case map[string]any:
		if am, ok := a.(map[string]any); ok {
			return Merge(am, bv)
		}
	case []any:
		if al, ok := a.([]any); ok {
			return slices.Concat(al, bv)
		}
	}
	return b
}

// MergeAll merges ms from left to right.
func MergeAll(ms ...map[string]any) map[string]any {
	out := map[string]any{}
	for _, m := range ms {
		out = Merge(out, m)
	}
	return out
}

// FilterNotEmpty returns a copy of m without nil values, empty lists and
// empty maps. Nested containers are kept as they are.
func FilterNotEmpty(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		if !isEmpty(v) {
			out[k] = v
		}
	}
	return out
}

// FilterNotEmptyList is FilterNotEmpty for lists.
func FilterNotEmptyList(l []any) []any {
	out := make([]any, 0, len(l))
	for _, v := range l {
		if !isEmpty(v) {
			out = append(out, v)
		}
	}
	return out
}

// FilterNotEmptyRecursive is FilterNotEmpty applied at every level. A nested
// container left empty by filtering is dropped as well.
func FilterNotEmptyRecursive(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		if v = filterValue(v); !isEmpty(v) {
			out[k] = v
		}
	}
	return out
}

// FilterNotEmptyListRecursive is FilterNotEmptyRecursive for lists.
func FilterNotEmptyListRecursive(l []any) []any {
	out := make([]any, 0, len(l))
	for _, v := range l {
		if v = filterValue(v); !isEmpty(v) {
			out = append(out, v)
		}
	}
	return out
}

func filterValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return FilterNotEmptyRecursive(t)
	case []any:
		return FilterNotEmptyListRecursive(t)
	default:
		return v
	}
}

func isEmpty(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case map[string]any:
		return len(t) == 0
	case []any:
		return len(t) == 0
	default:
		return false
	}
}

// Pair is one key and value produced by Pairs.
type Pair[K, V any] struct {
	Key   K
	Value V
}

// Pairs flattens a map of lists into key/value pairs, keys in ascending
// order and values in list order.
func Pairs[K cmp.Ordered, V any](m map[K][]V) []Pair[K, V] {
	var out []Pair[K, V]
	for _, k := range slices.Sorted(maps.Keys(m)) {
		for _, v := range m[k] {
			out = append(out, Pair[K, V]{Key: k, Value: v})
		}
	}
	return out
}

// EnsureSize returns s if its length is within [lo, hi], and an error
// otherwise.
func EnsureSize[S ~[]E, E any](s S, lo, hi int) (S, error) {
	if len(s) < lo || len(s) > hi {
		return s, fmt.Errorf("size %d not in range %d..%d", len(s), lo, hi)
	}
	return s, nil
}

// Get returns m[key] as a T. It reports false if the key is missing or
// holds another type.
func Get[T any](m map[string]any, key string) (T, bool) {
	v, ok := m[key].(T)
	return v, ok
}

// Require is Get returning a descriptive error instead of false.
func Require[T any](m map[string]any, key string) (T, error) {
	v, ok := Get[T](m, key)
	if !ok {
		return v, fmt.Errorf("'%s' key not found, or wrong type (must be %T)", key, *new(T))
	}
	return v, nil
}

// GetList returns m[key] as a []T, converting from []any when needed. It
// reports false if any element has another type.
func GetList[T any](m map[string]any, key string) ([]T, bool) {
	switch l := m[key].(type) {
	case []T:
		return l, true
	case []any:
		out := make([]T, 0, len(l))
		for _, item := range l {
			v, ok := item.(T)
			if !ok {
				return nil, false
			}
			out = append(out, v)
		}
		return out, true
	default:
		return nil, false
	}
}

// GetListOrEmpty is GetList returning an empty list instead of false.
func GetListOrEmpty[T any](m map[string]any, key string) []T {
	if l, ok := GetList[T](m, key); ok {
		return l
	}
	return []T{}
}
