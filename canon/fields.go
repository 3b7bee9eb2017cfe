package canon

import (
	"encoding/base64"
	"reflect"
	"sort"
	"strings"
	"sync"
)

// field is one JSON-visible struct field, reached through index from the
// outer struct (more than one step for promoted fields).
type field struct {
	name      string
	index     []int
	tagged    bool
	omitEmpty bool
	omitZero  bool
	quoted    bool
}

var fieldCache sync.Map // reflect.Type -> []field

// structFields lists the fields encoding/json would emit for t, applying
// json tags and its embedding rules: shallower fields win, a tagged field
// beats an untagged one at the same depth, and remaining ties drop the name.
func structFields(t reflect.Type) []field {
	if fs, ok := fieldCache.Load(t); ok {
		return fs.([]field)
	}
	fs := collectFields(t)
	fieldCache.Store(t, fs)
	return fs
}

func collectFields(t reflect.Type) []field {
	type queued struct {
		typ   reflect.Type
		index []int
	}
	var all []field
	visited := map[reflect.Type]bool{}
	level := []queued{{typ: t}}
	for len(level) > 0 {
		var next []queued
		var found []field
		for _, q := range level {
			if visited[q.typ] {
				continue
			}
			visited[q.typ] = true
			for i := 0; i < q.typ.NumField(); i++ {
				sf := q.typ.Field(i)
				ft := sf.Type
				if ft.Kind() == reflect.Pointer {
					ft = ft.Elem()
				}
				// Promoted fields of unexported embedded structs are
				// read-only through reflect and are not emitted.
				if !sf.IsExported() {
					continue
				}
				tag := sf.Tag.Get("json")
				if tag == "-" {
					continue
				}
				name, opts, _ := strings.Cut(tag, ",")
				index := append(append([]int(nil), q.index...), i)
				if sf.Anonymous && name == "" && ft.Kind() == reflect.Struct {
					next = append(next, queued{typ: ft, index: index})
					continue
				}
				f := field{name: name, index: index, tagged: name != ""}
				if name == "" {
					f.name = sf.Name
				}
				for _, o := range strings.Split(opts, ",") {
					switch o {
					case "omitempty":
						f.omitEmpty = true
					case "omitzero":
						f.omitZero = true
					case "string":
						f.quoted = isScalarKind(sf.Type.Kind())
					}
				}
				found = append(found, f)
			}
		}
		all = append(all, dominant(found, all)...)
		level = next
	}
	sort.Slice(all, func(i, j int) bool { return all[i].name < all[j].name })
	return all
}

// dominant resolves name conflicts within one embedding depth. Names already
// taken at a shallower depth are hidden.
func dominant(found, shallower []field) []field {
	taken := make(map[string]bool, len(shallower))
	for _, f := range shallower {
		taken[f.name] = true
	}
	byName := map[string][]field{}
	var order []string
	for _, f := range found {
		if taken[f.name] {
			continue
		}
		if _, ok := byName[f.name]; !ok {
			order = append(order, f.name)
		}
		byName[f.name] = append(byName[f.name], f)
	}
	var out []field
	for _, name := range order {
		fs := byName[name]
		if len(fs) == 1 {
			out = append(out, fs[0])
			continue
		}
		var tagged []field
		for _, f := range fs {
			if f.tagged {
				tagged = append(tagged, f)
			}
		}
		if len(tagged) == 1 {
			out = append(out, tagged[0])
		}
	}
	return out
}

func isScalarKind(k reflect.Kind) bool {
	switch k {
	case reflect.Bool, reflect.String,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr,
		reflect.Float32, reflect.Float64:
		return true
	}
	return false
}

// fieldByIndex follows index, reporting false when it passes through a nil
// embedded pointer.
func fieldByIndex(v reflect.Value, index []int) (reflect.Value, bool) {
	for i, x := range index {
		if i > 0 && v.Kind() == reflect.Pointer {
			if v.IsNil() {
				return reflect.Value{}, false
			}
			v = v.Elem()
		}
		v = v.Field(x)
	}
	return v, true
}

func isEmptyValue(v reflect.Value) bool {
	switch v.Kind() {
	case reflect.Array, reflect.Map, reflect.Slice, reflect.String:
		return v.Len() == 0
	case reflect.Bool:
		return !v.Bool()
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return v.Int() == 0
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return v.Uint() == 0
	case reflect.Float32, reflect.Float64:
		return v.Float() == 0
	case reflect.Interface, reflect.Pointer:
		return v.IsNil()
	}
	return false
}

type isZeroer interface{ IsZero() bool }

func isZeroValue(v reflect.Value) bool {
	if z, ok := v.Interface().(isZeroer); ok {
		if v.Kind() == reflect.Pointer && v.IsNil() {
			return true
		}
		return z.IsZero()
	}
	return v.IsZero()
}

// structObject writes v as an object of its JSON-visible fields. Field values
// go through encode, so floats keep their canonical float form.
func (e *encoder) structObject(v reflect.Value, depth int) error {
	fields := structFields(v.Type())
	e.buf.WriteByte('{')
	first := true
	for _, f := range fields {
		fv, ok := fieldByIndex(v, f.index)
		if !ok {
			continue
		}
		if f.omitEmpty && isEmptyValue(fv) {
			continue
		}
		if f.omitZero && isZeroValue(fv) {
			continue
		}
		if !first {
			e.buf.WriteByte(',')
		}
		first = false
		if err := e.str(f.name); err != nil {
			return err
		}
		e.buf.WriteByte(':')
		if f.quoted {
			if err := e.quotedScalar(fv, depth); err != nil {
				return err
			}
			continue
		}
		if isByteSlice(fv) {
			if err := e.byteField(fv); err != nil {
				return err
			}
			continue
		}
		if err := e.encode(fv, depth+1); err != nil {
			return err
		}
	}
	e.buf.WriteByte('}')
	return nil
}

// quotedScalar implements the ",string" tag option: the canonical scalar is
// written inside a JSON string.
func (e *encoder) quotedScalar(v reflect.Value, depth int) error {
	sub := &encoder{escape: e.escape}
	if err := sub.encode(v, depth+1); err != nil {
		return err
	}
	return e.str(sub.buf.String())
}

func isByteSlice(v reflect.Value) bool {
	return v.Kind() == reflect.Slice && v.Type().Elem().Kind() == reflect.Uint8 &&
		!v.Type().Implements(jsonMarshalerType) && !v.Type().Implements(textMarshalerType) &&
		v.Type() != rawMessageType
}

// byteField writes a []byte struct field as encoding/json does: standard
// base64 in a string, or null when nil.
func (e *encoder) byteField(v reflect.Value) error {
	if v.IsNil() {
		e.buf.WriteString("null")
		return nil
	}
	return e.str(base64.StdEncoding.EncodeToString(v.Bytes()))
}
