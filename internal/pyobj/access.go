package pyobj

import (
	"math"
	"math/big"
	"reflect"
	"time"
)

// Mapping is the read view of a decoded dict.
type Mapping interface {
	Keys() []interface{}
	Get(key interface{}) (interface{}, bool)
}

type indexed interface {
	Len() int
	Get(i int) interface{}
}

type goMap map[any]any

func (m goMap) Keys() []interface{} {
	keys := make([]interface{}, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	return keys
}

func (m goMap) Get(key interface{}) (interface{}, bool) {
	v, ok := m[key]
	return v, ok
}

// AsMapping reports whether v is dict-like and returns its read view.
func AsMapping(v any) (Mapping, bool) {
	switch m := v.(type) {
	case Mapping:
		return m, true
	case map[any]any:
		return goMap(m), true
	case map[string]any:
		g := make(goMap, len(m))
		for k, x := range m {
			g[k] = x
		}
		return g, true
	}
	return nil, false
}

// AsSequence reports whether v is a list, tuple or array and returns its
// elements. Byte strings are not sequences.
func AsSequence(v any) ([]any, bool) {
	switch s := v.(type) {
	case nil, string, []byte:
		return nil, false
	case []any:
		return s, true
	case *NDArray:
		if s.Values == nil && s.Raw != nil {
			return nil, false
		}
		return s.Values, true
	case indexed:
		out := make([]any, s.Len())
		for i := range out {
			out[i] = s.Get(i)
		}
		return out, true
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Pointer && !rv.IsNil() {
		rv = rv.Elem()
	}
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, false
	}
	if rv.Type().Elem().Kind() == reflect.Uint8 {
		return nil, false
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out, true
}

// AsFloat converts any decoded numeric scalar to float64. Booleans are not numeric.
func AsFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case *big.Int:
		f, _ := new(big.Float).SetInt(n).Float64()
		return f, true
	case bool:
		return 0, false
	}
	if i, ok := asInt(v); ok {
		return float64(i), true
	}
	return 0, false
}

// AsInt converts a decoded integer, or a float with no fractional part, to int64.
func AsInt(v any) (int64, bool) {
	if i, ok := asInt(v); ok {
		return i, true
	}
	switch f := v.(type) {
	case float64:
		if f == math.Trunc(f) && !math.IsInf(f, 0) && math.Abs(f) < 1<<63 {
			return int64(f), true
		}
	case float32:
		return AsInt(float64(f))
	}
	return 0, false
}

func asInt(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int64:
		return n, true
	case int32:
		return int64(n), true
	case int16:
		return int64(n), true
	case int8:
		return int64(n), true
	case uint64:
		if n > math.MaxInt64 {
			return 0, false
		}
		return int64(n), true
	case uint32:
		return int64(n), true
	case uint16:
		return int64(n), true
	case uint8:
		return int64(n), true
	case *big.Int:
		if n.IsInt64() {
			return n.Int64(), true
		}
	}
	return 0, false
}

func asBytes(v any) ([]byte, bool) {
	switch b := v.(type) {
	case []byte:
		return b, true
	case string:
		return []byte(b), true
	case interface{ Bytes() []byte }:
		return b.Bytes(), true
	}
	return nil, false
}

// AsTime accepts a decoded date, datetime or pandas Timestamp.
func AsTime(v any) (time.Time, bool) {
	t, ok := v.(time.Time)
	return t, ok
}

// TypeName returns a Python-flavoured type name for v, used in error messages.
func TypeName(v any) string {
	switch x := v.(type) {
	case nil:
		return "NoneType"
	case bool:
		return "bool"
	case int, int8, int16, int32, int64, uint8, uint16, uint32, uint64, *big.Int:
		return "int"
	case float32, float64:
		return "float"
	case string:
		return "str"
	case []byte:
		return "bytes"
	case time.Time:
		return "datetime"
	case *NDArray:
		return "ndarray"
	case *DType:
		return "dtype"
	case *Object:
		return x.TypeName()
	}
	if _, ok := AsMapping(v); ok {
		return "dict"
	}
	if _, ok := AsSequence(v); ok {
		return "list"
	}
	return reflect.TypeOf(v).String()
}
