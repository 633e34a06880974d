package cache

import (
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"time"
)

// KeySeparator delimits the segments of a cache key.
const KeySeparator = "::"

// Key builds a deterministic cache key from an operation tag and its
// arguments. Arguments are serialized by type, so an int 1 and the string "1"
// never collide on the same key.
func Key(op string, args ...any) string {
	if len(args) == 0 {
		return op
	}

	parts := make([]string, 0, len(args)+1)
	parts = append(parts, op)

	for _, arg := range args {
		parts = append(parts, serializeValue(arg))
	}

	return strings.Join(parts, KeySeparator)
}

func serializeValue(v any) string {
	if v == nil {
		return "nil"
	}

	if t, ok := v.(time.Time); ok {
		return "t:" + t.UTC().Format(time.RFC3339Nano)
	}

	rv := reflect.ValueOf(v)
	rt := reflect.TypeOf(v)

	switch rt.Kind() {
	case reflect.Ptr:
		if rv.IsNil() {
			return "nil"
		}
		return serializeValue(rv.Elem().Interface())

	case reflect.String:
		return "s:" + rv.String()

	case reflect.Slice, reflect.Array:
		if rt.Kind() == reflect.Slice && rv.IsNil() {
			return "slice:nil"
		}
		parts := make([]string, rv.Len())
		for i := 0; i < rv.Len(); i++ {
			parts[i] = serializeValue(rv.Index(i).Interface())
		}
		return fmt.Sprintf("slice[%d]:{%s}", rv.Len(), strings.Join(parts, ","))

	case reflect.Map:
		if rv.IsNil() {
			return "map:nil"
		}
		pairs := make([]string, 0, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			pairs = append(pairs, serializeValue(iter.Key().Interface())+"="+serializeValue(iter.Value().Interface()))
		}
		sort.Strings(pairs)
		return fmt.Sprintf("map[%d]:{%s}", len(pairs), strings.Join(pairs, ","))

	case reflect.Bool,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return fmt.Sprintf("%v", v)
	}

	// Structs and anything else fall back to JSON.
	data, err := json.Marshal(v)
	if err != nil {
		return "unserializable:" + rt.String()
	}
	return "json:" + string(data)
}
