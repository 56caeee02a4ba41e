package meta

import (
	"bytes"
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"unicode/utf16"
)

// Value is a sealed interface over the value types a workspace log may hold.
// Only String, Int, Bool, List, and Object implement it.
// There is no float variant: numeric logs are integers, anything else is a string.
type Value interface {
	metaValue()
}

// String is a string log value.
type String string

func (String) metaValue() {}

// Int is an integer log value.
type Int int64

func (Int) metaValue() {}

// Bool is a boolean log value.
type Bool bool

func (Bool) metaValue() {}

// List is an ordered list of values.
type List []Value

func (List) metaValue() {}

// Object maps log names to values.
// Use SortedKeys() for deterministic iteration.
type Object map[string]Value

func (Object) metaValue() {}

// Ints builds a List of Int values.
func Ints(vals ...int) List {
	l := make(List, len(vals))
	for i, v := range vals {
		l[i] = Int(v)
	}
	return l
}

// Int returns the integer stored under key.
func (obj Object) Int(key string) (int64, bool) {
	v, ok := obj[key].(Int)
	return int64(v), ok
}

// String returns the string stored under key.
func (obj Object) String(key string) (string, bool) {
	v, ok := obj[key].(String)
	return string(v), ok
}

// Bool returns the boolean stored under key. Missing keys read as false.
func (obj Object) Bool(key string) bool {
	v, _ := obj[key].(Bool)
	return bool(v)
}

// Clone returns a deep copy of the object.
func (obj Object) Clone() Object {
	if obj == nil {
		return Object{}
	}
	out := make(Object, len(obj))
	for k, v := range obj {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v Value) Value {
	switch val := v.(type) {
	case List:
		out := make(List, len(val))
		for i, elem := range val {
			out[i] = cloneValue(elem)
		}
		return out
	case Object:
		return val.Clone()
	default:
		return v
	}
}

// SortedKeys returns keys ordered by UTF-16 code units, the order used by
// canonical JSON. Go's native string ordering compares UTF-8 bytes and
// differs for supplementary-plane characters.
func (obj Object) SortedKeys() []string {
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, compareUTF16)
	return keys
}

func compareUTF16(a, b string) int {
	a16 := utf16.Encode([]rune(a))
	b16 := utf16.Encode([]rune(b))
	for i := 0; i < len(a16) && i < len(b16); i++ {
		if a16[i] != b16[i] {
			if a16[i] < b16[i] {
				return -1
			}
			return 1
		}
	}
	return len(a16) - len(b16)
}

// FromAny converts decoded YAML/JSON data into a Value.
// Floats and nulls are rejected.
func FromAny(v any) (Value, error) {
	switch val := v.(type) {
	case nil:
		return nil, fmt.Errorf("null is not a valid log value")
	case Value:
		return val, nil
	case string:
		return String(val), nil
	case int:
		return Int(val), nil
	case int64:
		return Int(val), nil
	case uint64:
		return Int(int64(val)), nil
	case bool:
		return Bool(val), nil
	case json.Number:
		s := string(val)
		if strings.ContainsAny(s, ".eE") {
			return nil, fmt.Errorf("float log values are not supported: %s", s)
		}
		n, err := val.Int64()
		if err != nil {
			return nil, fmt.Errorf("number out of int64 range: %s", s)
		}
		return Int(n), nil
	case float32, float64:
		return nil, fmt.Errorf("float log values are not supported: %v", val)
	case []any:
		out := make(List, len(val))
		for i, elem := range val {
			conv, err := FromAny(elem)
			if err != nil {
				return nil, fmt.Errorf("[%d]: %w", i, err)
			}
			out[i] = conv
		}
		return out, nil
	case map[string]any:
		out := make(Object, len(val))
		for k, elem := range val {
			conv, err := FromAny(elem)
			if err != nil {
				return nil, fmt.Errorf("[%q]: %w", k, err)
			}
			out[k] = conv
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unsupported log value type: %T", v)
	}
}

// ObjectFromMap converts a decoded map into an Object.
func ObjectFromMap(m map[string]any) (Object, error) {
	if len(m) == 0 {
		return Object{}, nil
	}
	v, err := FromAny(m)
	if err != nil {
		return nil, err
	}
	return v.(Object), nil
}

// UnmarshalJSON implements json.Unmarshaler for Object.
// Numbers are decoded via json.Number so large integers keep full precision.
func (obj *Object) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var raw map[string]any
	if err := dec.Decode(&raw); err != nil {
		return err
	}
	conv, err := ObjectFromMap(raw)
	if err != nil {
		return err
	}
	*obj = conv
	return nil
}

// MarshalJSON implements json.Marshaler for Object using canonical encoding.
func (obj Object) MarshalJSON() ([]byte, error) {
	return MarshalCanonical(obj)
}
