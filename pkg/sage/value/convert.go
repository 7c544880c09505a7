package value

import (
	"bytes"
	"encoding/json"
	"fmt"
	"reflect"
	"strings"
	"time"
)

// FromGo converts a decoded Go value (as produced by encoding/json,
// yaml.v3, toml or cbor decoders) into a Value tree.
func FromGo(x any) Value {
	switch x := x.(type) {
	case nil:
		return NULL
	case Value:
		return x
	case bool:
		return NewBool(x)
	case string:
		return &String{Value: x}
	case []byte:
		return &String{Value: string(x)}
	case json.Number:
		f, err := x.Float64()
		if err != nil {
			return &String{Value: x.String()}
		}
		return &Number{Value: f}
	case float64:
		return &Number{Value: x}
	case float32:
		return &Number{Value: float64(x)}
	case int:
		return &Number{Value: float64(x)}
	case int8:
		return &Number{Value: float64(x)}
	case int16:
		return &Number{Value: float64(x)}
	case int32:
		return &Number{Value: float64(x)}
	case int64:
		return &Number{Value: float64(x)}
	case uint:
		return &Number{Value: float64(x)}
	case uint8:
		return &Number{Value: float64(x)}
	case uint16:
		return &Number{Value: float64(x)}
	case uint32:
		return &Number{Value: float64(x)}
	case uint64:
		return &Number{Value: float64(x)}
	case time.Time:
		return &String{Value: x.Format(time.RFC3339)}
	case []any:
		elements := make([]Value, len(x))
		for i, e := range x {
			elements[i] = FromGo(e)
		}
		return &Array{Elements: elements}
	case map[string]any:
		pairs := make(map[string]Value, len(x))
		for k, e := range x {
			pairs[k] = FromGo(e)
		}
		return &Object{Pairs: pairs}
	case map[any]any:
		pairs := make(map[string]Value, len(x))
		for k, e := range x {
			pairs[fmt.Sprint(k)] = FromGo(e)
		}
		return &Object{Pairs: pairs}
	}
	return fromReflect(reflect.ValueOf(x))
}

// fromReflect handles typed slices and maps such as []map[string]any.
func fromReflect(rv reflect.Value) Value {
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		elements := make([]Value, rv.Len())
		for i := range elements {
			elements[i] = FromGo(rv.Index(i).Interface())
		}
		return &Array{Elements: elements}
	case reflect.Map:
		pairs := make(map[string]Value, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			pairs[fmt.Sprint(iter.Key().Interface())] = FromGo(iter.Value().Interface())
		}
		return &Object{Pairs: pairs}
	case reflect.Pointer, reflect.Interface:
		if rv.IsNil() {
			return NULL
		}
		return FromGo(rv.Elem().Interface())
	}
	return &String{Value: fmt.Sprint(rv.Interface())}
}

// ToGo converts a Value tree back into plain Go values suitable for
// encoding. Missing converts to nil.
func ToGo(v Value) any {
	switch v := v.(type) {
	case *Boolean:
		return v.Value
	case *Number:
		return v.Value
	case *String:
		return v.Value
	case *Array:
		out := make([]any, len(v.Elements))
		for i, e := range v.Elements {
			out[i] = ToGo(e)
		}
		return out
	case *Object:
		out := make(map[string]any, len(v.Pairs))
		for k, e := range v.Pairs {
			out[k] = ToGo(e)
		}
		return out
	}
	return nil
}

// ParseJSON decodes JSON text into a Value tree.
func ParseJSON(text string) (Value, error) {
	dec := json.NewDecoder(strings.NewReader(text))
	dec.UseNumber()
	var x any
	if err := dec.Decode(&x); err != nil {
		return MISSING, err
	}
	return FromGo(x), nil
}

// JSON returns the compact JSON encoding of v.
func JSON(v Value) string {
	return toJSON(v)
}

// PrettyJSON returns the indented JSON encoding of v.
func PrettyJSON(v Value) string {
	var buf bytes.Buffer
	if err := json.Indent(&buf, []byte(toJSON(v)), "", "  "); err != nil {
		return toJSON(v)
	}
	return buf.String()
}

// LooksLikeJSON reports whether the first non-space character of raw can
// start a JSON value, without attempting to parse it.
func LooksLikeJSON(raw string) bool {
	s := strings.TrimLeft(raw, " ")
	if s == "" {
		return false
	}
	switch s[0] {
	case '"', '-', '0', '1', '2', '3', '4', '5', '6', '7', '8', '9', '[', '{':
		return true
	case 'f':
		return strings.HasPrefix(s, "false")
	case 'n':
		return strings.HasPrefix(s, "null")
	case 't':
		return strings.HasPrefix(s, "true")
	}
	return false
}
