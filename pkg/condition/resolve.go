package condition

import (
	"reflect"
	"strconv"
	"strings"
)

// Resolve walks path (dot-separated) through root and returns the value found,
// or nil when any segment is absent. Pointers and interfaces are dereferenced;
// a nil pointer resolves to nil.
func Resolve(root any, path string) any {
	cur := reflect.ValueOf(root)
	if path != "" {
		for _, seg := range strings.Split(path, ".") {
			cur = indirect(cur)
			if !cur.IsValid() {
				return nil
			}
			next, ok := step(cur, seg)
			if !ok {
				return nil
			}
			cur = next
		}
	}
	cur = indirect(cur)
	if !cur.IsValid() || !cur.CanInterface() {
		return nil
	}
	return cur.Interface()
}

func indirect(v reflect.Value) reflect.Value {
	for v.IsValid() && (v.Kind() == reflect.Pointer || v.Kind() == reflect.Interface) {
		if v.IsNil() {
			return reflect.Value{}
		}
		v = v.Elem()
	}
	return v
}

func step(cur reflect.Value, seg string) (reflect.Value, bool) {
	switch cur.Kind() {
	case reflect.Map:
		keyType := cur.Type().Key()
		if keyType.Kind() != reflect.String {
			return reflect.Value{}, false
		}
		mv := cur.MapIndex(reflect.ValueOf(seg).Convert(keyType))
		return mv, mv.IsValid()
	case reflect.Struct:
		return field(cur, seg)
	case reflect.Slice, reflect.Array:
		i, err := strconv.Atoi(seg)
		if err != nil || i < 0 || i >= cur.Len() {
			return reflect.Value{}, false
		}
		return cur.Index(i), true
	}
	return reflect.Value{}, false
}

// field finds an exported struct field by Go name, json tag name, or a
// case-insensitive match ignoring underscores, in that order.
func field(v reflect.Value, name string) (reflect.Value, bool) {
	fields := reflect.VisibleFields(v.Type())
	pick := func(match func(f reflect.StructField) bool) (reflect.Value, bool) {
		for _, f := range fields {
			if !f.IsExported() || !match(f) {
				continue
			}
			fv, err := v.FieldByIndexErr(f.Index)
			if err != nil {
				return reflect.Value{}, false
			}
			return fv, true
		}
		return reflect.Value{}, false
	}

	if fv, ok := pick(func(f reflect.StructField) bool { return f.Name == name }); ok {
		return fv, true
	}
	if fv, ok := pick(func(f reflect.StructField) bool { return jsonName(f) == name }); ok {
		return fv, true
	}
	folded := strings.ReplaceAll(name, "_", "")
	return pick(func(f reflect.StructField) bool { return strings.EqualFold(f.Name, folded) })
}

func jsonName(f reflect.StructField) string {
	tag := f.Tag.Get("json")
	if tag == "" || tag == "-" {
		return ""
	}
	name, _, _ := strings.Cut(tag, ",")
	return name
}
