package event

import (
	"fmt"
	"math"
	"reflect"
	"sort"
	"strings"
)

// schema maps record keys to struct fields. A nil fields map means the
// record is a map[string]V and any key is accepted.
type schema struct {
	typ    reflect.Type
	fields map[string]int
	order  []string
}

func newSchema(t reflect.Type) *schema {
	switch {
	case t.Kind() == reflect.Struct:
		s := &schema{typ: t, fields: make(map[string]int)}
		for i := 0; i < t.NumField(); i++ {
			f := t.Field(i)
			if !f.IsExported() {
				continue
			}
			name := fieldKey(f)
			if name == "-" {
				continue
			}
			s.fields[name] = i
			s.order = append(s.order, name)
		}
		return s
	case t.Kind() == reflect.Map && t.Key().Kind() == reflect.String:
		return &schema{typ: t}
	}
	panic(fmt.Sprintf("event: record type %s must be a struct or a map with string keys", t))
}

// fieldKey returns the record key for a struct field: the state tag, then the
// json tag, then the Go field name.
func fieldKey(f reflect.StructField) string {
	for _, tag := range []string{"state", "json"} {
		if v, ok := f.Tag.Lookup(tag); ok {
			name, _, _ := strings.Cut(v, ",")
			if name != "" {
				return name
			}
		}
	}
	return f.Name
}

func (s *schema) isMap() bool {
	return s.fields == nil
}

func (s *schema) has(key string) bool {
	if s.isMap() {
		return true
	}
	_, ok := s.fields[key]
	return ok
}

// keys returns the record keys of v in a stable order.
func (s *schema) keys(v reflect.Value) []string {
	if !s.isMap() {
		return append([]string(nil), s.order...)
	}
	out := make([]string, 0, v.Len())
	for _, k := range v.MapKeys() {
		out = append(out, k.String())
	}
	sort.Strings(out)
	return out
}

// merge returns a copy of cur with p applied. cur is never modified.
func (s *schema) merge(cur reflect.Value, p Patch) (reflect.Value, []string, error) {
	keys := make([]string, 0, len(p))
	for k := range p {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	if s.isMap() {
		next := reflect.MakeMapWithSize(s.typ, cur.Len()+len(p))
		iter := cur.MapRange()
		for iter.Next() {
			next.SetMapIndex(iter.Key(), iter.Value())
		}
		for _, k := range keys {
			val, err := coerce(p[k], s.typ.Elem())
			if err != nil {
				return reflect.Value{}, nil, fmt.Errorf("key %q: %w", k, err)
			}
			next.SetMapIndex(reflect.ValueOf(k).Convert(s.typ.Key()), val)
		}
		return next, keys, nil
	}

	next := reflect.New(s.typ).Elem()
	next.Set(cur)
	for _, k := range keys {
		idx, ok := s.fields[k]
		if !ok {
			return reflect.Value{}, nil, fmt.Errorf("%w: %q", ErrUnknownKey, k)
		}
		field := next.Field(idx)
		val, err := coerce(p[k], field.Type())
		if err != nil {
			return reflect.Value{}, nil, fmt.Errorf("key %q: %w", k, err)
		}
		field.Set(val)
	}
	return next, keys, nil
}

// field returns the value stored under key in v.
func (s *schema) field(v reflect.Value, key string) (any, bool) {
	if s.isMap() {
		val := v.MapIndex(reflect.ValueOf(key).Convert(s.typ.Key()))
		if !val.IsValid() {
			return nil, false
		}
		return val.Interface(), true
	}
	idx, ok := s.fields[key]
	if !ok {
		return nil, false
	}
	return v.Field(idx).Interface(), true
}

// coerce converts x to t. Numeric values convert between numeric kinds so that
// patches decoded from JSON or YAML fit int and float fields alike, as long as
// the value survives the conversion unchanged.
func coerce(x any, t reflect.Type) (reflect.Value, error) {
	if x == nil {
		switch t.Kind() {
		case reflect.Interface, reflect.Pointer, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan:
			return reflect.Zero(t), nil
		}
		return reflect.Value{}, fmt.Errorf("%w: nil for %s", ErrTypeMismatch, t)
	}
	v := reflect.ValueOf(x)
	if v.Type().AssignableTo(t) {
		return v, nil
	}
	if isNumeric(v.Kind()) && isNumeric(t.Kind()) {
		out, ok := convertNumeric(v, t)
		if !ok {
			return reflect.Value{}, fmt.Errorf("%w: %v does not fit %s", ErrTypeMismatch, x, t)
		}
		return out, nil
	}
	return reflect.Value{}, fmt.Errorf("%w: %s for %s", ErrTypeMismatch, v.Type(), t)
}

// convertNumeric converts v to t and reports false if the value would be
// truncated, wrapped or overflowed.
func convertNumeric(v reflect.Value, t reflect.Type) (reflect.Value, bool) {
	out := reflect.New(t).Elem()
	switch {
	case isInt(t.Kind()):
		var n int64
		switch {
		case isInt(v.Kind()):
			n = v.Int()
		case isUint(v.Kind()):
			if v.Uint() > math.MaxInt64 {
				return reflect.Value{}, false
			}
			n = int64(v.Uint())
		default:
			f := v.Float()
			if f != math.Trunc(f) || f < math.MinInt64 || f >= 1<<63 {
				return reflect.Value{}, false
			}
			n = int64(f)
		}
		if out.OverflowInt(n) {
			return reflect.Value{}, false
		}
		out.SetInt(n)
	case isUint(t.Kind()):
		var n uint64
		switch {
		case isInt(v.Kind()):
			if v.Int() < 0 {
				return reflect.Value{}, false
			}
			n = uint64(v.Int())
		case isUint(v.Kind()):
			n = v.Uint()
		default:
			f := v.Float()
			if f != math.Trunc(f) || f < 0 || f >= 1<<64 {
				return reflect.Value{}, false
			}
			n = uint64(f)
		}
		if out.OverflowUint(n) {
			return reflect.Value{}, false
		}
		out.SetUint(n)
	default:
		var f float64
		switch {
		case isInt(v.Kind()):
			f = float64(v.Int())
		case isUint(v.Kind()):
			f = float64(v.Uint())
		default:
			f = v.Float()
		}
		if out.OverflowFloat(f) {
			return reflect.Value{}, false
		}
		out.SetFloat(f)
	}
	return out, true
}

func isInt(k reflect.Kind) bool {
	switch k {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return true
	}
	return false
}

func isUint(k reflect.Kind) bool {
	switch k {
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return true
	}
	return false
}

func isNumeric(k reflect.Kind) bool {
	switch k {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return true
	}
	return false
}
