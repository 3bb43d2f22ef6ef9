// Package jsonvalue carries arbitrary JSON payloads through the decoder
// without collapsing them into a stringly-typed map[string]interface{}.
package jsonvalue

import (
	"encoding/json"
	"fmt"
	"sort"
)

// Kind discriminates the variant held by a Value.
type Kind int

const (
	KindNull Kind = iota
	KindBool
	KindNumber
	KindString
	KindArray
	KindObject
)

// Value is a closed sum type over the JSON data model: Null, Bool, Number,
// String, Array, and Object. Zero value is KindNull.
type Value struct {
	kind   Kind
	b      bool
	n      float64
	s      string
	arr    []Value
	obj    map[string]Value
	objOrd []string // Object keys in sorted order
}

func Null() Value                { return Value{kind: KindNull} }
func Bool(b bool) Value          { return Value{kind: KindBool, b: b} }
func Number(n float64) Value     { return Value{kind: KindNumber, n: n} }
func String(s string) Value      { return Value{kind: KindString, s: s} }
func Array(items []Value) Value  { return Value{kind: KindArray, arr: items} }

func Object(fields map[string]Value) Value {
	ord := make([]string, 0, len(fields))
	for k := range fields {
		ord = append(ord, k)
	}
	sort.Strings(ord)
	return Value{kind: KindObject, obj: fields, objOrd: ord}
}

func (v Value) Kind() Kind { return v.kind }
func (v Value) IsNull() bool { return v.kind == KindNull }

func (v Value) Bool() (bool, bool) {
	if v.kind != KindBool {
		return false, false
	}
	return v.b, true
}

func (v Value) Number() (float64, bool) {
	if v.kind != KindNumber {
		return 0, false
	}
	return v.n, true
}

func (v Value) String() (string, bool) {
	if v.kind != KindString {
		return "", false
	}
	return v.s, true
}

func (v Value) Array() ([]Value, bool) {
	if v.kind != KindArray {
		return nil, false
	}
	return v.arr, true
}

func (v Value) Object() (map[string]Value, bool) {
	if v.kind != KindObject {
		return nil, false
	}
	return v.obj, true
}

// Field looks up a key on an Object value; returns Null, false for any
// other kind or a missing key.
func (v Value) Field(key string) (Value, bool) {
	if v.kind != KindObject {
		return Value{}, false
	}
	f, ok := v.obj[key]
	return f, ok
}

// Raw returns the value as a plain Go interface{}, suitable for
// re-marshaling with encoding/json (numbers become float64, as usual).
func (v Value) Raw() any {
	switch v.kind {
	case KindNull:
		return nil
	case KindBool:
		return v.b
	case KindNumber:
		return v.n
	case KindString:
		return v.s
	case KindArray:
		out := make([]any, len(v.arr))
		for i, e := range v.arr {
			out[i] = e.Raw()
		}
		return out
	case KindObject:
		out := make(map[string]any, len(v.obj))
		for k, e := range v.obj {
			out[k] = e.Raw()
		}
		return out
	default:
		return nil
	}
}

// Parse decodes raw JSON bytes into a Value.
func Parse(data []byte) (Value, error) {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return Value{}, fmt.Errorf("jsonvalue: parse: %w", err)
	}
	return FromAny(raw), nil
}

// FromAny converts a decoded interface{} (as produced by encoding/json)
// into a Value tree.
func FromAny(raw any) Value {
	switch t := raw.(type) {
	case nil:
		return Null()
	case bool:
		return Bool(t)
	case float64:
		return Number(t)
	case string:
		return String(t)
	case []any:
		items := make([]Value, len(t))
		for i, e := range t {
			items[i] = FromAny(e)
		}
		return Array(items)
	case map[string]any:
		fields := make(map[string]Value, len(t))
		for k, e := range t {
			fields[k] = FromAny(e)
		}
		return Object(fields)
	default:
		return Null()
	}
}

// Copy returns a deep copy of v. Value's fields are unexported, so
// github.com/mitchellh/copystructure's default reflection-based walk can't
// clone it; the catalog package registers Copy in copystructure.Copiers.
func (v Value) Copy() (any, error) {
	switch v.kind {
	case KindArray:
		items := make([]Value, len(v.arr))
		for i, e := range v.arr {
			cloned, err := e.Copy()
			if err != nil {
				return nil, err
			}
			items[i] = cloned.(Value)
		}
		return Value{kind: KindArray, arr: items}, nil
	case KindObject:
		fields := make(map[string]Value, len(v.obj))
		for k, e := range v.obj {
			cloned, err := e.Copy()
			if err != nil {
				return nil, err
			}
			fields[k] = cloned.(Value)
		}
		ord := make([]string, len(v.objOrd))
		copy(ord, v.objOrd)
		return Value{kind: KindObject, obj: fields, objOrd: ord}, nil
	default:
		return v, nil
	}
}

// MarshalJSON implements json.Marshaler.
func (v Value) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.Raw())
}

// UnmarshalJSON implements json.Unmarshaler.
func (v *Value) UnmarshalJSON(data []byte) error {
	parsed, err := Parse(data)
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}
