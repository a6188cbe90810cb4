package xmlrpc

import (
	"fmt"
	"reflect"
	"sort"
	"time"
)

// ValueOf converts a Go value into a Value. Supported inputs are nil, Value,
// strings, booleans, signed and unsigned integers, floats, time.Time, slices
// and arrays of supported values, and maps keyed by string. Map members are
// emitted in sorted key order; use Struct to control member order.
func ValueOf(v any) (Value, error) {
	switch x := v.(type) {
	case nil:
		return Nil(), nil
	case Value:
		return x, nil
	case []Member:
		return Struct(x...), nil
	case string:
		return String(x), nil
	case bool:
		return Bool(x), nil
	case int:
		return Int(int64(x)), nil
	case int32:
		return Int(int64(x)), nil
	case int64:
		return Int(x), nil
	case float32:
		return Double(float64(x)), nil
	case float64:
		return Double(x), nil
	case time.Time:
		return DateTime(x), nil
	case []any:
		items := make([]Value, 0, len(x))
		for i, item := range x {
			iv, err := ValueOf(item)
			if err != nil {
				return Value{}, fmt.Errorf("index %d: %w", i, err)
			}
			items = append(items, iv)
		}
		return Array(items...), nil
	case map[string]any:
		keys := make([]string, 0, len(x))
		for k := range x {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		members := make([]Member, 0, len(keys))
		for _, k := range keys {
			mv, err := ValueOf(x[k])
			if err != nil {
				return Value{}, fmt.Errorf("member %q: %w", k, err)
			}
			members = append(members, Member{Name: k, Value: mv})
		}
		return Struct(members...), nil
	}
	return valueOfReflect(reflect.ValueOf(v))
}

func valueOfReflect(rv reflect.Value) (Value, error) {
	switch rv.Kind() {
	case reflect.Pointer, reflect.Interface:
		if rv.IsNil() {
			return Nil(), nil
		}
		return ValueOf(rv.Elem().Interface())
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return Int(rv.Int()), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32:
		return Int(int64(rv.Uint())), nil
	case reflect.Uint64:
		u := rv.Uint()
		if u > 1<<63-1 {
			return Value{}, fmt.Errorf("xmlrpc: %d overflows int", u)
		}
		return Int(int64(u)), nil
	case reflect.Slice, reflect.Array:
		if rv.Kind() == reflect.Slice && rv.IsNil() {
			return Array(), nil
		}
		items := make([]Value, 0, rv.Len())
		for i := 0; i < rv.Len(); i++ {
			iv, err := ValueOf(rv.Index(i).Interface())
			if err != nil {
				return Value{}, fmt.Errorf("index %d: %w", i, err)
			}
			items = append(items, iv)
		}
		return Array(items...), nil
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return Value{}, fmt.Errorf("xmlrpc: unsupported map key type %s", rv.Type().Key())
		}
		m := make(map[string]any, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			m[iter.Key().String()] = iter.Value().Interface()
		}
		return ValueOf(m)
	case reflect.String:
		return String(rv.String()), nil
	case reflect.Bool:
		return Bool(rv.Bool()), nil
	case reflect.Float32, reflect.Float64:
		return Double(rv.Float()), nil
	}
	return Value{}, fmt.Errorf("xmlrpc: unsupported type %s", rv.Type())
}

// Native converts v into plain Go values: nil, int64, float64, bool, string,
// time.Time, []any and map[string]any. Unparsed values become their raw
// fragment.
func (v Value) Native() any {
	switch v.kind {
	case KindInt:
		return v.i
	case KindDouble:
		return v.f
	case KindBool:
		return v.b
	case KindString, KindUnparsed:
		return v.s
	case KindDateTime:
		return v.t
	case KindArray:
		out := make([]any, 0, len(v.items))
		for _, item := range v.items {
			out = append(out, item.Native())
		}
		return out
	case KindStruct:
		out := make(map[string]any, len(v.members))
		for _, m := range v.members {
			out[m.Name] = m.Value.Native()
		}
		return out
	}
	return nil
}
