package mirror

import (
	"fmt"

	"github.com/bys1/flybytes/pkg/types"
)

// Runtime values are plain Go values:
//
//	int-category  int32
//	long          int64
//	float         float32
//	double        float64
//	string        string
//	reference     *Object, *Array, or nil for null
//
// Booleans, bytes, shorts and chars live as int32, mirroring the
// int-category collapse the compiler applies on the operand stack.

// Object is a mirrored instance: its class name, its fields, and the monitor
// entry count used to check lock balance in tests.
type Object struct {
	Class  string
	Fields map[string]any
	locks  int
}

// Array is a mirrored array with its element type.
type Array struct {
	Elem  types.Type
	Elems []any
}

func newObject(class string) *Object {
	return &Object{Class: class, Fields: make(map[string]any)}
}

// zeroValue is the default content of a fresh field, static or array slot.
func zeroValue(t types.Type) any {
	if types.IsReference(t) {
		return nil
	}
	switch types.StackType(t) {
	case types.Long:
		return int64(0)
	case types.Float:
		return float32(0)
	case types.Double:
		return float64(0)
	default:
		return int32(0)
	}
}

// normalize converts a producer-supplied constant into the mirror's value
// representation for the given type.
func normalize(t types.Type, v any) (any, error) {
	if t.Equals(types.String) {
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("mirror: string constant holds %T", v)
		}
		return s, nil
	}
	switch types.StackType(t) {
	case types.Long:
		return toInt64(v)
	case types.Float:
		switch v := v.(type) {
		case float32:
			return v, nil
		case float64:
			return float32(v), nil
		}
	case types.Double:
		switch v := v.(type) {
		case float64:
			return v, nil
		case float32:
			return float64(v), nil
		}
	case types.Int:
		return toInt32(v)
	}
	if v == nil {
		return nil, nil
	}
	return nil, fmt.Errorf("mirror: constant of type %s holds %T", t, v)
}

func toInt32(v any) (int32, error) {
	switch v := v.(type) {
	case int32:
		return v, nil
	case int:
		return int32(v), nil
	case int8:
		return int32(v), nil
	case int16:
		return int32(v), nil
	case int64:
		return int32(v), nil
	case uint16:
		return int32(v), nil
	case bool:
		if v {
			return 1, nil
		}
		return 0, nil
	}
	return 0, fmt.Errorf("mirror: expected an int-category constant, got %T", v)
}

func toInt64(v any) (int64, error) {
	switch v := v.(type) {
	case int64:
		return v, nil
	case int:
		return int64(v), nil
	case int32:
		return int64(v), nil
	}
	return 0, fmt.Errorf("mirror: expected a long constant, got %T", v)
}

// valueClass names a reference value's class for catch matching and
// instanceof. Untyped references answer "".
func valueClass(v any) string {
	switch v := v.(type) {
	case *Object:
		return v.Class
	case string:
		return "java/lang/String"
	case *Array:
		return "array"
	}
	return ""
}
