package value

import (
	"strconv"
	"strings"
)

// Truthy determines the boolean value of a node based on its type:
// strings are false when empty, numbers and booleans when zero, null and
// missing always, and arrays and objects when they have no elements.
func Truthy(v Value) bool {
	switch v := v.(type) {
	case *String:
		return v.Value != ""
	case *Number:
		return v.Value != 0
	case *Boolean:
		return v.Value
	case *Array:
		return len(v.Elements) != 0
	case *Object:
		return len(v.Pairs) != 0
	case *Null, *Missing:
		return false
	}
	return false
}

// Text returns the canonical text form of a node. Missing renders as "".
func Text(v Value) string {
	if v == nil {
		return ""
	}
	return v.Inspect()
}

// EatNull returns the text form of a node, converting null to "".
func EatNull(v Value) string {
	if IsNull(v) {
		return ""
	}
	return Text(v)
}

// AsText returns the text form of v, or def when v is falsy.
func AsText(v Value, def string) string {
	if !Truthy(v) {
		return def
	}
	return Text(v)
}

// AsNumber returns the numeric form of v, or def when v is falsy.
func AsNumber(v Value, def float64) float64 {
	if !Truthy(v) {
		return def
	}
	return Float(v)
}

// Float converts a node to a float64 without a default: booleans map to
// 1 and 0, strings are parsed, and anything unparseable is 0.
func Float(v Value) float64 {
	switch v := v.(type) {
	case *Number:
		return v.Value
	case *Boolean:
		if v.Value {
			return 1
		}
		return 0
	case *String:
		f, err := strconv.ParseFloat(strings.TrimSpace(v.Value), 64)
		if err != nil {
			return 0
		}
		return f
	}
	return 0
}

// Int converts a node to an int64, truncating toward zero.
func Int(v Value) int64 {
	return int64(Float(v))
}

// Equal reports whether two nodes are structurally equal. Missing only
// equals Missing.
func Equal(a, b Value) bool {
	switch a := a.(type) {
	case *Missing:
		return IsMissing(b)
	case *Null:
		return IsNull(b)
	case *Boolean:
		bb, ok := b.(*Boolean)
		return ok && a.Value == bb.Value
	case *Number:
		bn, ok := b.(*Number)
		return ok && a.Value == bn.Value
	case *String:
		bs, ok := b.(*String)
		return ok && a.Value == bs.Value
	case *Array:
		ba, ok := b.(*Array)
		if !ok || len(a.Elements) != len(ba.Elements) {
			return false
		}
		for i := range a.Elements {
			if !Equal(a.Elements[i], ba.Elements[i]) {
				return false
			}
		}
		return true
	case *Object:
		bo, ok := b.(*Object)
		if !ok || len(a.Pairs) != len(bo.Pairs) {
			return false
		}
		for k, av := range a.Pairs {
			bv, ok := bo.Pairs[k]
			if !ok || !Equal(av, bv) {
				return false
			}
		}
		return true
	}
	return a == nil && b == nil
}

// ParseNumber parses s as a decimal number, ignoring surrounding space.
func ParseNumber(s string) (float64, bool) {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	return f, err == nil
}
