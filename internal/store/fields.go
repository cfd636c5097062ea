package store

import (
	"encoding"
	"fmt"
	"reflect"
	"strings"
)

var textUnmarshaler = reflect.TypeFor[encoding.TextUnmarshaler]()

// fieldByTag finds the exported field of struct v whose json name is name.
func fieldByTag(v reflect.Value, name string) (reflect.Value, bool) {
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if !f.IsExported() {
			continue
		}
		tag, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if tag == "-" {
			continue
		}
		if tag == "" {
			tag = f.Name
		}
		if tag == name {
			return v.Field(i), true
		}
	}
	return reflect.Value{}, false
}

// child steps one segment into cur: a map key or a struct field.
func child(cur any, name string) (any, bool) {
	if m, ok := cur.(map[string]any); ok {
		v, ok := m[name]
		return v, ok
	}
	rv := reflect.ValueOf(cur)
	switch rv.Kind() {
	case reflect.Struct:
		f, ok := fieldByTag(rv, name)
		if !ok {
			return nil, false
		}
		return f.Interface(), true
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return nil, false
		}
		v := rv.MapIndex(reflect.ValueOf(name).Convert(rv.Type().Key()))
		if !v.IsValid() {
			return nil, false
		}
		return v.Interface(), true
	}
	return nil, false
}

// setField returns a copy of the typed value leaf with the field at parts
// replaced by value. leaf itself is left untouched.
func setField(leaf any, parts []string, value any, at string) (any, error) {
	rv := reflect.ValueOf(leaf)
	if rv.Kind() != reflect.Struct {
		return nil, fmt.Errorf("%w: %s is not a container", ErrInvariant, at)
	}
	out := reflect.New(rv.Type()).Elem()
	out.Set(reflect.ValueOf(copyValue(leaf)))

	name := parts[0]
	path := at + "." + name
	f, ok := fieldByTag(out, name)
	if !ok {
		return nil, fmt.Errorf("%w: %s has no field %s", ErrInvariant, at, name)
	}
	if len(parts) > 1 {
		next, err := setField(f.Interface(), parts[1:], value, path)
		if err != nil {
			return nil, err
		}
		f.Set(reflect.ValueOf(next))
		return out.Interface(), nil
	}
	fv, err := fit(value, f.Type(), path)
	if err != nil {
		return nil, err
	}
	f.Set(fv)
	return out.Interface(), nil
}

// fit converts value to t: assignable values as is, numbers across numeric
// kinds, strings through encoding.TextUnmarshaler.
func fit(value any, t reflect.Type, at string) (reflect.Value, error) {
	if value == nil {
		switch t.Kind() {
		case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Interface:
			return reflect.Zero(t), nil
		}
		return reflect.Value{}, fmt.Errorf("%w: %s cannot be nil", ErrInvariant, at)
	}
	v := reflect.ValueOf(value)
	switch {
	case v.Type().AssignableTo(t):
		return v, nil
	case v.Kind() == reflect.String && reflect.PointerTo(t).Implements(textUnmarshaler):
		out := reflect.New(t)
		if err := out.Interface().(encoding.TextUnmarshaler).UnmarshalText([]byte(v.String())); err != nil {
			return reflect.Value{}, fmt.Errorf("%w: %s: %v", ErrInvariant, at, err)
		}
		return out.Elem(), nil
	case numeric(v.Kind()) && numeric(t.Kind()):
		return v.Convert(t), nil
	case v.Kind() == reflect.String && t.Kind() == reflect.String:
		return v.Convert(t), nil
	}
	return reflect.Value{}, fmt.Errorf("%w: %s holds %s, got %T", ErrInvariant, at, t, value)
}

func numeric(k reflect.Kind) bool {
	switch k {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return true
	}
	return false
}

// copySlice detaches slices of non-document types reached through struct fields.
func copySlice(v any) any {
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice || rv.IsNil() {
		return v
	}
	out := reflect.MakeSlice(rv.Type(), rv.Len(), rv.Len())
	reflect.Copy(out, rv)
	return out.Interface()
}
