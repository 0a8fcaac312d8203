package tween

import (
	"math"
	"reflect"
	"strings"
)

// field is a numeric slot on a caller-owned target.
type field struct {
	get func() float64
	set func(float64)
}

// resolveField finds key on target. It reports false when the target has no
// such key or the value there is not numeric.
func resolveField(target any, key string) (field, bool) {
	switch m := target.(type) {
	case map[string]float64:
		if _, ok := m[key]; !ok {
			return field{}, false
		}
		return field{
			get: func() float64 { return m[key] },
			set: func(v float64) { m[key] = v },
		}, true
	case map[string]any:
		if _, ok := toFloat(m[key]); !ok {
			return field{}, false
		}
		return field{
			get: func() float64 { f, _ := toFloat(m[key]); return f },
			set: func(v float64) { m[key] = sameKind(m[key], v) },
		}, true
	}

	v := reflect.ValueOf(target)
	if v.Kind() != reflect.Pointer || v.IsNil() || v.Elem().Kind() != reflect.Struct {
		return field{}, false
	}
	s := v.Elem()
	f, ok := structField(s, key)
	if !ok {
		return field{}, false
	}
	return reflectField(f)
}

func structField(s reflect.Value, key string) (reflect.Value, bool) {
	t := s.Type()
	for i := 0; i < t.NumField(); i++ {
		sf := t.Field(i)
		if !sf.IsExported() {
			continue
		}
		if fieldKey(sf) == key {
			return s.Field(i), true
		}
	}
	return reflect.Value{}, false
}

func fieldKey(f reflect.StructField) string {
	for _, tag := range []string{"tween", "json"} {
		if v, ok := f.Tag.Lookup(tag); ok {
			name, _, _ := strings.Cut(v, ",")
			if name != "" {
				return name
			}
		}
	}
	return f.Name
}

func reflectField(f reflect.Value) (field, bool) {
	switch f.Kind() {
	case reflect.Float32, reflect.Float64:
		return field{
			get: f.Float,
			set: f.SetFloat,
		}, true
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		bits := f.Type().Bits()
		return field{
			get: func() float64 { return float64(f.Int()) },
			set: func(v float64) {
				if !math.IsNaN(v) {
					f.SetInt(clampInt(math.Round(v), bits))
				}
			},
		}, true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		bits := f.Type().Bits()
		return field{
			get: func() float64 { return float64(f.Uint()) },
			set: func(v float64) {
				if !math.IsNaN(v) {
					f.SetUint(clampUint(math.Round(v), bits))
				}
			},
		}, true
	}
	return field{}, false
}

// clampInt converts v to the range of a signed integer of the given width.
func clampInt(v float64, bits int) int64 {
	hi := int64(math.MaxInt64 >> (64 - bits))
	lo := -hi - 1
	switch {
	case v >= float64(hi):
		return hi
	case v <= float64(lo):
		return lo
	}
	return int64(v)
}

// clampUint converts v to the range of an unsigned integer of the given width.
func clampUint(v float64, bits int) uint64 {
	hi := uint64(math.MaxUint64 >> (64 - bits))
	switch {
	case v >= float64(hi):
		return hi
	case v <= 0:
		return 0
	}
	return uint64(v)
}

// toFloat reports the numeric value of x, if it is a number.
func toFloat(x any) (float64, bool) {
	switch n := x.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	}
	return 0, false
}

// sameKind converts v to the numeric type of prev so map values keep their type.
func sameKind(prev any, v float64) any {
	switch prev.(type) {
	case float32:
		return float32(v)
	case int:
		return int(math.Round(v))
	case int64:
		return int64(math.Round(v))
	case int32:
		return int32(math.Round(v))
	}
	return v
}
