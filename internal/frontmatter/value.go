package frontmatter

import (
	"math"
	"strconv"
	"strings"
)

// Kind identifies the shape of a Value.
type Kind int

const (
	KindNull Kind = iota
	KindScalar
	KindSequence
	KindMapping
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindScalar:
		return "scalar"
	case KindSequence:
		return "sequence"
	case KindMapping:
		return "mapping"
	}
	return "unknown"
}

// Short YAML tags used for scalars.
const (
	TagStr       = "!!str"
	TagInt       = "!!int"
	TagFloat     = "!!float"
	TagBool      = "!!bool"
	TagTimestamp = "!!timestamp"
)

// Value is a decoded front-matter value: null, a tagged scalar, a sequence
// or a nested mapping. Scalars keep their canonical YAML text so they survive
// an encode/decode cycle unchanged.
type Value struct {
	kind   Kind
	tag    string
	text   string
	items  []Value
	fields *Mapping
}

// Null returns the null value.
func Null() Value { return Value{kind: KindNull} }

// String returns a string scalar.
func String(s string) Value { return Value{kind: KindScalar, tag: TagStr, text: s} }

// Int returns an integer scalar.
func Int(i int64) Value {
	return Value{kind: KindScalar, tag: TagInt, text: strconv.FormatInt(i, 10)}
}

// Float returns a float scalar.
func Float(f float64) Value {
	var s string
	switch {
	case math.IsNaN(f):
		s = ".nan"
	case math.IsInf(f, 1):
		s = ".inf"
	case math.IsInf(f, -1):
		s = "-.inf"
	default:
		s = strconv.FormatFloat(f, 'g', -1, 64)
		if !strings.ContainsAny(s, ".eE") {
			s += ".0"
		}
	}
	return Value{kind: KindScalar, tag: TagFloat, text: s}
}

// Bool returns a boolean scalar.
func Bool(b bool) Value {
	return Value{kind: KindScalar, tag: TagBool, text: strconv.FormatBool(b)}
}

// Sequence returns a sequence of the given items.
func Sequence(items ...Value) Value {
	return Value{kind: KindSequence, items: append([]Value{}, items...)}
}

// Map wraps a mapping as a value. A nil mapping becomes an empty one.
func Map(m *Mapping) Value {
	if m == nil {
		m = NewMapping()
	}
	return Value{kind: KindMapping, fields: m}
}

func (v Value) Kind() Kind { return v.kind }

// Tag returns the short YAML tag of a scalar, or "" for other kinds.
func (v Value) Tag() string { return v.tag }

// Items returns the elements of a sequence.
func (v Value) Items() []Value { return v.items }

// Mapping returns the nested mapping, or nil when v is not a mapping.
func (v Value) Mapping() *Mapping { return v.fields }

// Text coerces v to a string. Scalars yield their text; sequences of scalars
// are joined with ','. Null and mappings are not text.
func (v Value) Text() (string, bool) {
	switch v.kind {
	case KindScalar:
		return v.text, true
	case KindSequence:
		parts := make([]string, 0, len(v.items))
		for _, it := range v.items {
			s, ok := it.Text()
			if !ok {
				return "", false
			}
			parts = append(parts, s)
		}
		return strings.Join(parts, ","), true
	}
	return "", false
}

// Equal reports whether v and o hold the same data.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindScalar:
		return v.tag == o.tag && v.text == o.text
	case KindSequence:
		if len(v.items) != len(o.items) {
			return false
		}
		for i := range v.items {
			if !v.items[i].Equal(o.items[i]) {
				return false
			}
		}
		return true
	case KindMapping:
		return v.fields.Equal(o.fields)
	}
	return true
}

// Mapping is an insertion-ordered map from string keys to values.
type Mapping struct {
	keys   []string
	values map[string]Value
}

// NewMapping returns an empty mapping.
func NewMapping() *Mapping {
	return &Mapping{values: make(map[string]Value)}
}

// Len returns the number of keys.
func (m *Mapping) Len() int {
	if m == nil {
		return 0
	}
	return len(m.keys)
}

// Keys returns the keys in document order.
func (m *Mapping) Keys() []string {
	if m == nil {
		return nil
	}
	return append([]string(nil), m.keys...)
}

// Get returns the value stored under key.
func (m *Mapping) Get(key string) (Value, bool) {
	if m == nil {
		return Value{}, false
	}
	v, ok := m.values[key]
	return v, ok
}

// Set stores v under key. Existing keys keep their position; new keys are
// appended.
func (m *Mapping) Set(key string, v Value) *Mapping {
	if _, ok := m.values[key]; !ok {
		m.keys = append(m.keys, key)
	}
	m.values[key] = v
	return m
}

// Delete removes key.
func (m *Mapping) Delete(key string) {
	if _, ok := m.values[key]; !ok {
		return
	}
	delete(m.values, key)
	for i, k := range m.keys {
		if k == key {
			m.keys = append(m.keys[:i], m.keys[i+1:]...)
			break
		}
	}
}

// FirstText returns the text of the first key, in the given order, whose
// value coerces to a non-empty string.
func (m *Mapping) FirstText(keys ...string) (value, key string, ok bool) {
	for _, k := range keys {
		v, found := m.Get(k)
		if !found {
			continue
		}
		if s, isText := v.Text(); isText && s != "" {
			return s, k, true
		}
	}
	return "", "", false
}

// Equal reports whether both mappings hold the same keys, in the same order,
// with equal values.
func (m *Mapping) Equal(o *Mapping) bool {
	if m.Len() != o.Len() {
		return false
	}
	for i, k := range m.keys {
		if o.keys[i] != k {
			return false
		}
		if !m.values[k].Equal(o.values[k]) {
			return false
		}
	}
	return true
}

// Clone returns a deep copy of m.
func (m *Mapping) Clone() *Mapping {
	out := NewMapping()
	if m == nil {
		return out
	}
	for _, k := range m.keys {
		out.Set(k, m.values[k].clone())
	}
	return out
}

func (v Value) clone() Value {
	switch v.kind {
	case KindSequence:
		items := make([]Value, len(v.items))
		for i, it := range v.items {
			items[i] = it.clone()
		}
		v.items = items
	case KindMapping:
		v.fields = v.fields.Clone()
	}
	return v
}
