package validate

import (
	"encoding/json"
	"fmt"
	"sort"
)

// Kind enumerates the JSON value kinds the validator understands.
type Kind int

const (
	KindNull Kind = iota
	KindString
	KindNumber
	KindBool
	KindArray
	KindObject
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindString:
		return "string"
	case KindNumber:
		return "number"
	case KindBool:
		return "boolean"
	case KindArray:
		return "array"
	case KindObject:
		return "object"
	}
	return "unknown"
}

// Value is a tagged union over decoded JSON. Modeling payloads this way keeps
// recursive validation and sanitization exhaustive instead of relying on
// runtime shape checks against interface{}.
type Value struct {
	kind Kind
	str  string
	num  float64
	b    bool
	arr  []Value
	obj  map[string]Value
}

func Null() Value                    { return Value{kind: KindNull} }
func String(s string) Value         { return Value{kind: KindString, str: s} }
func Number(n float64) Value        { return Value{kind: KindNumber, num: n} }
func Bool(b bool) Value             { return Value{kind: KindBool, b: b} }
func Array(items ...Value) Value    { return Value{kind: KindArray, arr: items} }
func Object(m map[string]Value) Value {
	if m == nil {
		m = map[string]Value{}
	}
	return Value{kind: KindObject, obj: m}
}

func (v Value) Kind() Kind   { return v.kind }
func (v Value) IsNull() bool { return v.kind == KindNull }

// Str returns the string payload; zero value for non-strings.
func (v Value) Str() string { return v.str }

// Num returns the numeric payload; zero value for non-numbers.
func (v Value) Num() float64 { return v.num }

// B returns the boolean payload; false for non-booleans.
func (v Value) B() bool { return v.b }

// Items returns the array elements; nil for non-arrays.
func (v Value) Items() []Value { return v.arr }

// Fields returns the object members; nil for non-objects.
func (v Value) Fields() map[string]Value { return v.obj }

// Field looks up an object member.
func (v Value) Field(name string) (Value, bool) {
	if v.kind != KindObject {
		return Value{}, false
	}
	f, ok := v.obj[name]
	return f, ok
}

// FieldNames returns object member names in sorted order, so that walks over
// a Value are deterministic.
func (v Value) FieldNames() []string {
	if v.kind != KindObject {
		return nil
	}
	names := make([]string, 0, len(v.obj))
	for name := range v.obj {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ParseJSON decodes a raw JSON document into a Value. The top-level document
// may be any JSON value.
func ParseJSON(data []byte) (Value, error) {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return Value{}, fmt.Errorf("parse payload: %w", err)
	}
	return FromAny(raw), nil
}

// FromAny converts the result of encoding/json decoding (maps, slices,
// strings, float64, bool, nil) into a Value. Unrecognized Go types map to
// null.
func FromAny(raw any) Value {
	switch t := raw.(type) {
	case nil:
		return Null()
	case string:
		return String(t)
	case float64:
		return Number(t)
	case bool:
		return Bool(t)
	case []any:
		items := make([]Value, len(t))
		for i, item := range t {
			items[i] = FromAny(item)
		}
		return Array(items...)
	case map[string]any:
		fields := make(map[string]Value, len(t))
		for name, item := range t {
			fields[name] = FromAny(item)
		}
		return Object(fields)
	case int:
		return Number(float64(t))
	case int64:
		return Number(float64(t))
	}
	return Null()
}

// ToAny converts a Value back into plain Go values suitable for
// encoding/json.
func (v Value) ToAny() any {
	switch v.kind {
	case KindString:
		return v.str
	case KindNumber:
		return v.num
	case KindBool:
		return v.b
	case KindArray:
		out := make([]any, len(v.arr))
		for i, item := range v.arr {
			out[i] = item.ToAny()
		}
		return out
	case KindObject:
		out := make(map[string]any, len(v.obj))
		for name, item := range v.obj {
			out[name] = item.ToAny()
		}
		return out
	}
	return nil
}
