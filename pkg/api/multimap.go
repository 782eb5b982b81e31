package api

import "slices"

// Field is one named entry of a Multimap with its ordered values.
type Field struct {
	Name   string
	Values []string
}

// F builds a Field. F("h1", "v1", "v2") is a header named h1 with two values.
func F(name string, values ...string) Field {
	return Field{Name: name, Values: values}
}

// Value returns the first value of the field, or "" if it has none.
func (f Field) Value() string {
	if len(f.Values) == 0 {
		return ""
	}
	return f.Values[0]
}

// Multimap is an ordered, immutable multimap from names to ordered value lists.
// Names keep the case of their first insertion; whether lookups fold case
// depends on how the multimap was created. Repeating a name appends its
// values to the existing entry, so insertion order is kept per name.
//
// The zero value is an empty case-insensitive multimap.
type Multimap struct {
	fields []Field
	exact  bool
}

// Headers is a Multimap with case-insensitive names.
type Headers = Multimap

// NewHeaders returns a case-insensitive Multimap built from fields.
func NewHeaders(fields ...Field) Multimap {
	return newMultimap(false, fields)
}

// NewFormParameters returns a case-sensitive Multimap built from fields.
func NewFormParameters(fields ...Field) Multimap {
	return newMultimap(true, fields)
}

// NewQueryParameters returns a case-sensitive Multimap built from fields.
func NewQueryParameters(fields ...Field) Multimap {
	return newMultimap(true, fields)
}

func newMultimap(exact bool, fields []Field) Multimap {
	m := Multimap{exact: exact}
	for _, f := range fields {
		m = m.add(f.Name, f.Values)
	}
	return m
}

func (m Multimap) same(a, b string) bool {
	if m.exact {
		return a == b
	}
	return foldName(a) == foldName(b)
}

// foldName lower-cases ASCII letters only. Header names are ASCII tokens;
// Unicode folding would equate names such as "X-ſ" and "x-s".
func foldName(s string) string {
	var b []byte
	for i := 0; i < len(s); i++ {
		if c := s[i]; 'A' <= c && c <= 'Z' {
			if b == nil {
				b = []byte(s)
			}
			b[i] = c + 'a' - 'A'
		}
	}
	if b == nil {
		return s
	}
	return string(b)
}

func (m Multimap) index(name string) int {
	for i, f := range m.fields {
		if m.same(f.Name, name) {
			return i
		}
	}
	return -1
}

func (m Multimap) clone() Multimap {
	out := Multimap{exact: m.exact, fields: make([]Field, len(m.fields))}
	for i, f := range m.fields {
		out.fields[i] = Field{Name: f.Name, Values: slices.Clone(f.Values)}
	}
	return out
}

func (m Multimap) add(name string, values []string) Multimap {
	out := m.clone()
	if i := out.index(name); i >= 0 {
		out.fields[i].Values = append(out.fields[i].Values, values...)
		return out
	}
	out.fields = append(out.fields, Field{Name: name, Values: slices.Clone(values)})
	return out
}

// With returns a copy with values appended under name.
func (m Multimap) With(name string, values ...string) Multimap {
	return m.add(name, values)
}

// Set returns a copy where name holds exactly values. The entry keeps its
// position if it already existed.
func (m Multimap) Set(name string, values ...string) Multimap {
	out := m.clone()
	if i := out.index(name); i >= 0 {
		out.fields[i].Values = slices.Clone(values)
		return out
	}
	out.fields = append(out.fields, Field{Name: name, Values: slices.Clone(values)})
	return out
}

// Without returns a copy with name removed.
func (m Multimap) Without(name string) Multimap {
	out := m.clone()
	if i := out.index(name); i >= 0 {
		out.fields = slices.Delete(out.fields, i, i+1)
	}
	return out
}

// Merge returns a copy with every field of other appended.
func (m Multimap) Merge(other Multimap) Multimap {
	out := m
	for _, f := range other.fields {
		out = out.add(f.Name, f.Values)
	}
	return out
}

// Get returns the first value stored under name, or "".
func (m Multimap) Get(name string) string {
	if i := m.index(name); i >= 0 {
		return m.fields[i].Value()
	}
	return ""
}

// Values returns every value stored under name in insertion order.
func (m Multimap) Values(name string) []string {
	if i := m.index(name); i >= 0 {
		return slices.Clone(m.fields[i].Values)
	}
	return nil
}

// Has reports whether name is present.
func (m Multimap) Has(name string) bool {
	return m.index(name) >= 0
}

// Names returns the entry names in insertion order with their original case.
func (m Multimap) Names() []string {
	names := make([]string, len(m.fields))
	for i, f := range m.fields {
		names[i] = f.Name
	}
	return names
}

// Fields returns a copy of all entries in insertion order.
func (m Multimap) Fields() []Field {
	return m.clone().fields
}

// Len returns the number of distinct names.
func (m Multimap) Len() int {
	return len(m.fields)
}

// CaseInsensitive reports whether name lookups fold case.
func (m Multimap) CaseInsensitive() bool {
	return !m.exact
}

// Equal reports whether both multimaps follow the same case rule and hold the
// same names in the same order with the same values.
func (m Multimap) Equal(other Multimap) bool {
	if m.exact != other.exact || len(m.fields) != len(other.fields) {
		return false
	}
	for i, f := range m.fields {
		o := other.fields[i]
		if !m.same(f.Name, o.Name) || !slices.Equal(f.Values, o.Values) {
			return false
		}
	}
	return true
}
