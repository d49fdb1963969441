package expr

import (
	"reflect"
	"strings"
)

// Lookup resolves a dot-separated path in nested maps.
// Returns false when any segment is missing or traverses a non-map value.
func Lookup(data map[string]any, path string) (any, bool) {
	if data == nil {
		return nil, false
	}
	var current any = data
	for _, segment := range strings.Split(path, ".") {
		m, ok := asMap(current)
		if !ok {
			return nil, false
		}
		current, ok = m[segment]
		if !ok {
			return nil, false
		}
	}
	return current, true
}

func asMap(v any) (map[string]any, bool) {
	switch m := v.(type) {
	case map[string]any:
		return m, true
	case map[string]string:
		out := make(map[string]any, len(m))
		for k, s := range m {
			out[k] = s
		}
		return out, true
	default:
		return nil, false
	}
}

// ToFloat64 converts a numeric value to float64.
// Strings and booleans are not numeric.
func ToFloat64(v any) (float64, bool) {
	switch val := v.(type) {
	case float64:
		return val, true
	case float32:
		return float64(val), true
	case int:
		return float64(val), true
	case int8:
		return float64(val), true
	case int16:
		return float64(val), true
	case int32:
		return float64(val), true
	case int64:
		return float64(val), true
	case uint:
		return float64(val), true
	case uint8:
		return float64(val), true
	case uint16:
		return float64(val), true
	case uint32:
		return float64(val), true
	case uint64:
		return float64(val), true
	default:
		return 0, false
	}
}

// IsNumeric reports whether v is a Go numeric kind.
func IsNumeric(v any) bool {
	_, ok := ToFloat64(v)
	return ok
}

// Equal compares two values, treating numeric kinds as one domain.
func Equal(a, b any) bool {
	if af, ok := ToFloat64(a); ok {
		if bf, ok := ToFloat64(b); ok {
			return af == bf
		}
		return false
	}
	if IsNumeric(b) {
		return false
	}
	return reflect.DeepEqual(a, b)
}

// Contains reports whether collection holds an element Equal to v.
// Non-slice collections contain nothing.
func Contains(collection, v any) bool {
	if collection == nil {
		return false
	}
	rv := reflect.ValueOf(collection)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return false
	}
	for i := 0; i < rv.Len(); i++ {
		if Equal(rv.Index(i).Interface(), v) {
			return true
		}
	}
	return false
}
