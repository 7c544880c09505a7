// Package value defines the JSON-shaped data tree that templates are
// rendered against, together with the truthiness and text coercion rules
// shared by every instruction and plugin.
package value

import (
	"encoding/json"
	"math"
	"sort"
	"strconv"
	"strings"
)

// ValueType represents the type of a node in the data tree
type ValueType string

const (
	NULL_VAL    = "NULL"
	MISSING_VAL = "MISSING"
	BOOLEAN_VAL = "BOOLEAN"
	NUMBER_VAL  = "NUMBER"
	STRING_VAL  = "STRING"
	ARRAY_VAL   = "ARRAY"
	OBJECT_VAL  = "OBJECT"
)

// Value represents all nodes of the data tree. The set of implementations
// is closed: Null, Missing, Boolean, Number, String, Array and Object.
type Value interface {
	Type() ValueType
	// Inspect returns the canonical text form of the node.
	Inspect() string
	value()
}

// Null represents an explicit JSON null
type Null struct{}

func (n *Null) Type() ValueType { return NULL_VAL }
func (n *Null) Inspect() string { return "null" }
func (n *Null) value()          {}

// Missing is returned whenever a lookup fails. It is distinct from Null,
// always falsy, and renders as empty text.
type Missing struct{}

func (m *Missing) Type() ValueType { return MISSING_VAL }
func (m *Missing) Inspect() string { return "" }
func (m *Missing) value()          {}

// Boolean represents boolean nodes
type Boolean struct {
	Value bool
}

func (b *Boolean) Type() ValueType { return BOOLEAN_VAL }
func (b *Boolean) Inspect() string { return strconv.FormatBool(b.Value) }
func (b *Boolean) value()          {}

// Number represents numeric nodes. Integers and decimals share one
// representation; integral values print without a fraction.
type Number struct {
	Value float64
}

func (n *Number) Type() ValueType { return NUMBER_VAL }
func (n *Number) Inspect() string { return formatNumber(n.Value) }
func (n *Number) value()          {}

// IsIntegral reports whether the number has no fractional part.
func (n *Number) IsIntegral() bool {
	return !math.IsInf(n.Value, 0) && n.Value == math.Trunc(n.Value)
}

// String represents string nodes
type String struct {
	Value string
}

func (s *String) Type() ValueType { return STRING_VAL }
func (s *String) Inspect() string { return s.Value }
func (s *String) value()          {}

// Array represents array nodes
type Array struct {
	Elements []Value
}

func (a *Array) Type() ValueType { return ARRAY_VAL }
func (a *Array) Inspect() string { return toJSON(a) }
func (a *Array) value()          {}

// Object represents keyed nodes
type Object struct {
	Pairs map[string]Value
}

func (o *Object) Type() ValueType { return OBJECT_VAL }
func (o *Object) Inspect() string { return toJSON(o) }
func (o *Object) value()          {}

// Keys returns the member names in sorted order.
func (o *Object) Keys() []string {
	keys := make([]string, 0, len(o.Pairs))
	for k := range o.Pairs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Global constants
var (
	NULL    = &Null{}
	MISSING = &Missing{}
	TRUE    = &Boolean{Value: true}
	FALSE   = &Boolean{Value: false}
)

// NewString wraps s as a String node.
func NewString(s string) Value { return &String{Value: s} }

// NewNumber wraps f as a Number node.
func NewNumber(f float64) Value { return &Number{Value: f} }

// NewInt wraps i as a Number node.
func NewInt(i int64) Value { return &Number{Value: float64(i)} }

// NewBool returns TRUE or FALSE.
func NewBool(b bool) Value {
	if b {
		return TRUE
	}
	return FALSE
}

// NewArray builds an Array from elements.
func NewArray(elements ...Value) *Array {
	return &Array{Elements: elements}
}

// NewObject builds an Object from pairs. A nil map yields an empty object.
func NewObject(pairs map[string]Value) *Object {
	if pairs == nil {
		pairs = make(map[string]Value)
	}
	return &Object{Pairs: pairs}
}

// IsMissing reports whether v is the Missing sentinel (or a nil interface).
func IsMissing(v Value) bool {
	if v == nil {
		return true
	}
	_, ok := v.(*Missing)
	return ok
}

// IsNull reports whether v is an explicit null.
func IsNull(v Value) bool {
	_, ok := v.(*Null)
	return ok
}

// Member returns the named member of an Object, or Missing.
func Member(v Value, key string) Value {
	if obj, ok := v.(*Object); ok {
		if m, ok := obj.Pairs[key]; ok && m != nil {
			return m
		}
	}
	return MISSING
}

// Element returns the i-th element of an Array, or the member of an Object
// whose key is the decimal form of i. Anything else yields Missing.
func Element(v Value, i int) Value {
	switch v := v.(type) {
	case *Array:
		if i >= 0 && i < len(v.Elements) && v.Elements[i] != nil {
			return v.Elements[i]
		}
	case *Object:
		return Member(v, strconv.Itoa(i))
	}
	return MISSING
}

// Dig follows a chain of member names, stopping at the first miss.
func Dig(v Value, keys ...string) Value {
	for _, k := range keys {
		v = Member(v, k)
		if IsMissing(v) {
			return MISSING
		}
	}
	return v
}

// Size returns the number of elements or members of a container, and 0
// for scalars.
func Size(v Value) int {
	switch v := v.(type) {
	case *Array:
		return len(v.Elements)
	case *Object:
		return len(v.Pairs)
	}
	return 0
}

func formatNumber(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// toJSON renders containers as compact JSON with sorted object keys.
func toJSON(v Value) string {
	var sb strings.Builder
	writeJSON(&sb, v)
	return sb.String()
}

func writeJSON(sb *strings.Builder, v Value) {
	switch v := v.(type) {
	case *Boolean:
		sb.WriteString(v.Inspect())
	case *Number:
		if math.IsNaN(v.Value) || math.IsInf(v.Value, 0) {
			sb.WriteString("null")
			return
		}
		sb.WriteString(v.Inspect())
	case *String:
		b, _ := json.Marshal(v.Value)
		sb.Write(b)
	case *Array:
		sb.WriteByte('[')
		for i, e := range v.Elements {
			if i > 0 {
				sb.WriteByte(',')
			}
			writeJSON(sb, e)
		}
		sb.WriteByte(']')
	case *Object:
		sb.WriteByte('{')
		for i, k := range v.Keys() {
			if i > 0 {
				sb.WriteByte(',')
			}
			b, _ := json.Marshal(k)
			sb.Write(b)
			sb.WriteByte(':')
			writeJSON(sb, v.Pairs[k])
		}
		sb.WriteByte('}')
	default:
		// Null, Missing and nil all encode as null
		sb.WriteString("null")
	}
}
