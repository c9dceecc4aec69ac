package nbtio

import (
	"fmt"
	"reflect"
	"sort"
)

// Ordered rewrites every map[string]any in a tag tree into a struct whose
// fields follow sorted key order, so encoders that walk Go maps still emit
// the same bytes on every run. Lists and scalars pass through; nil map
// values are dropped.
func Ordered(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return orderedCompound(t)
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = Ordered(e)
		}
		return out
	case []map[string]any:
		if len(t) == 0 {
			return []struct{}{}
		}
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = orderedCompound(e)
		}
		return out
	default:
		return v
	}
}

func orderedCompound(m map[string]any) any {
	keys := make([]string, 0, len(m))
	for k, v := range m {
		if v == nil {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	fields := make([]reflect.StructField, len(keys))
	values := make([]reflect.Value, len(keys))
	for i, k := range keys {
		val := reflect.ValueOf(Ordered(m[k]))
		values[i] = val
		fields[i] = reflect.StructField{
			Name: fmt.Sprintf("F%d", i),
			Type: val.Type(),
			Tag:  reflect.StructTag(fmt.Sprintf(`nbt:%q`, k)),
		}
	}
	sv := reflect.New(reflect.StructOf(fields)).Elem()
	for i, val := range values {
		sv.Field(i).Set(val)
	}
	return sv.Interface()
}
