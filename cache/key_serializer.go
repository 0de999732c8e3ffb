package cache

import (
	"encoding"
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"strings"
)

// KeySeparator defines the delimiter used between serialized key segments.
const KeySeparator = "::"

// defaultKeySerializer implements KeySerializer using reflection-based normalization.
// Inputs are first reduced to plain maps, lists and scalars, then written out
// with sorted map keys so equal values always produce the same string.
type defaultKeySerializer struct{}

var defaultSerializer = &defaultKeySerializer{}

// NewDefaultKeySerializer creates a new instance of the default key serializer.
func NewDefaultKeySerializer() KeySerializer {
	return defaultSerializer
}

// SerializeKey writes the key as "<path>::input=<value>::type=<kind>", leaving
// out the parts the key does not carry. The empty root key serializes to "".
func (s *defaultKeySerializer) SerializeKey(key Key) string {
	if key.Len() == 0 {
		return ""
	}

	parts := make([]string, 0, 3)
	parts = append(parts, s.serializePath(key.Path))

	if key.HasInput() {
		parts = append(parts, "input="+s.serializeNormalized(Normalize(key.Input)))
	}
	if key.HasKind() {
		parts = append(parts, "type="+string(key.Kind))
	}

	return strings.Join(parts, KeySeparator)
}

func (s *defaultKeySerializer) serializePath(p Path) string {
	return fmt.Sprintf("path[%d]:{%s}", len(p), strings.Join(p, ","))
}

// serializeNormalized handles values produced by Normalize.
func (s *defaultKeySerializer) serializeNormalized(v any) string {
	switch val := v.(type) {
	case nil:
		return "nil"
	case map[string]any:
		return s.serializeMap(val)
	case []any:
		return s.serializeSlice(val)
	case string:
		return fmt.Sprintf("%q", val)
	case bool, int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64,
		float32, float64, complex64, complex128:
		return fmt.Sprintf("%v", val)
	default:
		return s.jsonFallback(val)
	}
}

// serializeSlice handles slice serialization recursively
func (s *defaultKeySerializer) serializeSlice(items []any) string {
	parts := make([]string, len(items))
	for i, item := range items {
		parts[i] = s.serializeNormalized(item)
	}
	return fmt.Sprintf("slice[%d]:{%s}", len(items), strings.Join(parts, ","))
}

// serializeMap handles map serialization with sorted keys for determinism
func (s *defaultKeySerializer) serializeMap(m map[string]any) string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]string, len(keys))
	for i, k := range keys {
		pairs[i] = fmt.Sprintf("%q=%s", k, s.serializeNormalized(m[k]))
	}
	return fmt.Sprintf("map[%d]:{%s}", len(pairs), strings.Join(pairs, ","))
}

// jsonFallback provides JSON serialization as a last resort
func (s *defaultKeySerializer) jsonFallback(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("fallback:%T", v)
	}
	return "json:" + string(data)
}

// Normalize reduces v to a tree of map[string]any, []any and scalars:
//
//   - pointers and interfaces are dereferenced, nil becomes nil
//   - structs become maps keyed by their JSON field names (exported fields only)
//   - values implementing json.Marshaler or encoding.TextMarshaler use that form
//   - map keys are stringified
//   - functions and channels become "func:<ptr>" / "chan:<ptr>", stable only
//     within a process
//   - a pointer, map or slice that refers back to one of its ancestors becomes
//     "cycle:<type>"
func Normalize(v any) any {
	if v == nil {
		return nil
	}
	n := &normalizer{}
	return n.value(reflect.ValueOf(v))
}

var (
	jsonMarshalerType = reflect.TypeOf((*json.Marshaler)(nil)).Elem()
	textMarshalerType = reflect.TypeOf((*encoding.TextMarshaler)(nil)).Elem()
)

// visit identifies a reference on the current walk path. The type and length
// are part of it: a struct and its first field share an address, as do a
// slice and its prefix.
type visit struct {
	ptr uintptr
	typ reflect.Type
	len int
}

type normalizer struct {
	path map[visit]struct{}
}

// enter records rv on the walk path. It returns false when rv is already on
// it, i.e. the value is cyclic.
func (n *normalizer) enter(rv reflect.Value) (visit, bool) {
	v := visit{ptr: rv.Pointer(), typ: rv.Type()}
	if rv.Kind() == reflect.Slice {
		v.len = rv.Len()
	}
	if n.path == nil {
		n.path = make(map[visit]struct{})
	}
	if _, ok := n.path[v]; ok {
		return v, false
	}
	n.path[v] = struct{}{}
	return v, true
}

func (n *normalizer) leave(v visit) {
	delete(n.path, v)
}

func cycleMarker(rv reflect.Value) string {
	return "cycle:" + rv.Type().String()
}

func (n *normalizer) value(rv reflect.Value) any {
	if !rv.IsValid() {
		return nil
	}

	switch rv.Kind() {
	case reflect.Ptr, reflect.Interface:
		if rv.IsNil() {
			return nil
		}
		if rv.Kind() == reflect.Ptr && rv.Type().Implements(jsonMarshalerType) {
			return normalizeMarshaler(rv)
		}
		if rv.Kind() == reflect.Interface {
			return n.value(rv.Elem())
		}
		v, ok := n.enter(rv)
		if !ok {
			return cycleMarker(rv)
		}
		defer n.leave(v)
		return n.value(rv.Elem())
	}

	if rv.Type().Implements(jsonMarshalerType) || rv.Type().Implements(textMarshalerType) {
		return normalizeMarshaler(rv)
	}

	switch rv.Kind() {
	case reflect.Func:
		if rv.IsNil() {
			return nil
		}
		return fmt.Sprintf("func:%#x", rv.Pointer())
	case reflect.Chan:
		if rv.IsNil() {
			return nil
		}
		return fmt.Sprintf("chan:%#x", rv.Pointer())
	case reflect.Slice:
		if rv.IsNil() {
			return nil
		}
		if rv.Type().Elem().Kind() == reflect.Uint8 {
			return string(rv.Bytes())
		}
		v, ok := n.enter(rv)
		if !ok {
			return cycleMarker(rv)
		}
		defer n.leave(v)
		return n.list(rv)
	case reflect.Array:
		return n.list(rv)
	case reflect.Map:
		if rv.IsNil() {
			return nil
		}
		v, ok := n.enter(rv)
		if !ok {
			return cycleMarker(rv)
		}
		defer n.leave(v)
		return n.mapping(rv)
	case reflect.Struct:
		out := make(map[string]any, rv.NumField())
		n.fields(rv, out)
		return out
	case reflect.Bool:
		return rv.Bool()
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int()
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return rv.Uint()
	case reflect.Float32, reflect.Float64:
		f := rv.Float()
		// integral floats collapse onto ints so decoded JSON numbers match Go ints
		if f == float64(int64(f)) {
			return int64(f)
		}
		return f
	case reflect.String:
		return rv.String()
	default:
		if rv.CanInterface() {
			return fmt.Sprintf("%v", rv.Interface())
		}
		return rv.Type().String()
	}
}

func (n *normalizer) list(rv reflect.Value) []any {
	out := make([]any, rv.Len())
	for i := 0; i < rv.Len(); i++ {
		out[i] = n.value(rv.Index(i))
	}
	return out
}

func (n *normalizer) mapping(rv reflect.Value) map[string]any {
	out := make(map[string]any, rv.Len())
	iter := rv.MapRange()
	for iter.Next() {
		name := fmt.Sprintf("%v", n.value(iter.Key()))
		out[name] = n.value(iter.Value())
	}
	return out
}

func (n *normalizer) fields(rv reflect.Value, out map[string]any) {
	rt := rv.Type()
	for i := 0; i < rt.NumField(); i++ {
		field := rt.Field(i)
		if !field.IsExported() && !field.Anonymous {
			continue
		}

		name, omitEmpty, skip := jsonFieldName(field)
		if skip {
			continue
		}

		fv := rv.Field(i)
		if field.Anonymous && field.Tag.Get("json") == "" {
			inner := fv
			if inner.Kind() == reflect.Ptr {
				if inner.IsNil() {
					continue
				}
				if inner.Elem().Kind() == reflect.Struct {
					if v, ok := n.enter(inner); ok {
						n.fields(inner.Elem(), out)
						n.leave(v)
					}
					continue
				}
			}
			if inner.Kind() == reflect.Struct {
				n.fields(inner, out)
				continue
			}
		}
		if !field.IsExported() {
			continue
		}

		if omitEmpty && fv.IsZero() {
			continue
		}
		out[name] = n.value(fv)
	}
}

func jsonFieldName(field reflect.StructField) (name string, omitEmpty bool, skip bool) {
	tag := field.Tag.Get("json")
	if tag == "-" {
		return "", false, true
	}
	name = field.Name
	if tag == "" {
		return name, false, false
	}
	parts := strings.Split(tag, ",")
	if parts[0] != "" {
		name = parts[0]
	}
	for _, opt := range parts[1:] {
		if opt == "omitempty" {
			omitEmpty = true
		}
	}
	return name, omitEmpty, false
}

func normalizeMarshaler(rv reflect.Value) any {
	if !rv.CanInterface() {
		return rv.Type().String()
	}
	data, err := json.Marshal(rv.Interface())
	if err != nil {
		return fmt.Sprintf("fallback:%s", rv.Type().String())
	}
	var decoded any
	if err := json.Unmarshal(data, &decoded); err != nil {
		return string(data)
	}
	return Normalize(decoded)
}
