package cache

import (
	"fmt"
	"reflect"
	"strings"
)

// CursorField is the input field that carries the page cursor of a
// paginated query.
const CursorField = "cursor"

// CursorSetter is implemented by inputs that know how to carry a cursor.
// WithCursor must return a copy; the receiver stays untouched.
type CursorSetter interface {
	WithCursor(cursor any) any
}

// WithCursor returns a copy of input with the cursor field set.
//
// Maps are copied with the extra entry and a nil input becomes
// {"cursor": cursor}. Structs keep their type: the copy has its field named
// Cursor (or tagged json:"cursor") set, and a pointer input yields a pointer
// to the copy. Structs without such a field are normalized to a map carrying
// the cursor. Any other input returns ErrInputNotPageable.
func WithCursor(input any, cursor any) (any, error) {
	if setter, ok := input.(CursorSetter); ok {
		return setter.WithCursor(cursor), nil
	}
	if input == nil {
		return map[string]any{CursorField: cursor}, nil
	}

	rv := reflect.ValueOf(input)
	pointer := false
	for rv.Kind() == reflect.Ptr || rv.Kind() == reflect.Interface {
		if rv.IsNil() {
			return map[string]any{CursorField: cursor}, nil
		}
		pointer = rv.Kind() == reflect.Ptr
		rv = rv.Elem()
	}

	switch rv.Kind() {
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return nil, ErrInputNotPageable
		}
		out := make(map[string]any, rv.Len()+1)
		iter := rv.MapRange()
		for iter.Next() {
			out[iter.Key().String()] = iter.Value().Interface()
		}
		out[CursorField] = cursor
		return out, nil
	case reflect.Struct:
		if index, ok := cursorFieldIndex(rv.Type()); ok {
			return structWithCursor(rv, index, cursor, pointer)
		}
		normalized, ok := Normalize(rv.Interface()).(map[string]any)
		if !ok {
			return nil, ErrInputNotPageable
		}
		normalized[CursorField] = cursor
		return normalized, nil
	default:
		return nil, ErrInputNotPageable
	}
}

func structWithCursor(rv reflect.Value, index int, cursor any, pointer bool) (any, error) {
	out := reflect.New(rv.Type())
	out.Elem().Set(rv)

	field := out.Elem().Field(index)
	if !field.CanSet() {
		return nil, fmt.Errorf("%w: field %s is not settable", ErrInputNotPageable, rv.Type().Field(index).Name)
	}
	if cursor == nil {
		field.Set(reflect.Zero(field.Type()))
	} else {
		cv := reflect.ValueOf(cursor)
		if !cv.Type().AssignableTo(field.Type()) {
			return nil, fmt.Errorf("%w: cursor %T is not assignable to %s.%s (%s)",
				ErrInputNotPageable, cursor, rv.Type(), rv.Type().Field(index).Name, field.Type())
		}
		field.Set(cv)
	}

	if pointer {
		return out.Interface(), nil
	}
	return out.Elem().Interface(), nil
}

// cursorFieldIndex finds the exported top-level field tagged json:"cursor",
// falling back to a field named Cursor.
func cursorFieldIndex(rt reflect.Type) (int, bool) {
	named := -1
	for i := 0; i < rt.NumField(); i++ {
		field := rt.Field(i)
		if !field.IsExported() {
			continue
		}
		if tag := strings.Split(field.Tag.Get("json"), ",")[0]; tag == CursorField {
			return i, true
		}
		if field.Name == "Cursor" && named < 0 {
			named = i
		}
	}
	return named, named >= 0
}
