package canon

import (
	"bytes"
	"encoding"
	"encoding/json"
	"fmt"
	"math"
	"math/big"
	"reflect"
	"sort"
	"strconv"
	"strings"
	"unicode/utf16"
	"unicode/utf8"
)

// maxDepth bounds nesting so self-referential values fail instead of recursing forever.
const maxDepth = 1000

// Encode converts v into its canonical bytes under contract c.
//
// Contract:
// - Object keys are sorted ascending (bytewise UTF-8, equal to code point order) at every level.
// - No whitespace is emitted between tokens.
// - Output is UTF-8; non-ASCII is either literal or \uXXXX escaped, per contract.
// - Non-finite floats, unsupported kinds, []byte, invalid UTF-8 and keys that collide after
//   coercion fail with a KindEncoding error. Nothing is ever stringified as a fallback.
//
// Accepted inputs: nil, bool, string, all integer kinds, finite floats, json.Number,
// *big.Int, maps with string/bool/integer/float/TextMarshaler keys, slices, arrays,
// pointers and interfaces to those, structs, and json.Marshaler values (normalized
// through encoding/json first). Struct fields follow encoding/json tag and
// embedding rules, with []byte fields as base64 strings, but every field value is
// encoded here, so a float field renders exactly as the same float in a map.
// Decode JSON with UseNumber before encoding it here: a float64 that happens to be
// integral renders as "42.0", not "42".
func Encode(v any, c Contract) ([]byte, error) {
	rules, err := rulesFor(c)
	if err != nil {
		return nil, err
	}
	e := &encoder{escape: rules.EscapeNonASCII}
	if err := e.encode(reflect.ValueOf(v), 0); err != nil {
		return nil, err
	}
	return e.buf.Bytes(), nil
}

type encoder struct {
	buf    bytes.Buffer
	escape bool
}

var (
	jsonNumberType    = reflect.TypeOf(json.Number(""))
	rawMessageType    = reflect.TypeOf(json.RawMessage(nil))
	bigIntPtrType     = reflect.TypeOf((*big.Int)(nil))
	jsonMarshalerType = reflect.TypeOf((*json.Marshaler)(nil)).Elem()
	textMarshalerType = reflect.TypeOf((*encoding.TextMarshaler)(nil)).Elem()
)

func (e *encoder) encode(v reflect.Value, depth int) error {
	if depth > maxDepth {
		return newError(KindEncoding, "CANON-ENC-007", "value nesting exceeds maximum depth")
	}
	if !v.IsValid() {
		e.buf.WriteString("null")
		return nil
	}

	switch v.Type() {
	case jsonNumberType:
		return e.number(v.String())
	case rawMessageType:
		return e.normalized(v.Interface(), depth)
	case bigIntPtrType:
		if v.IsNil() {
			e.buf.WriteString("null")
			return nil
		}
		e.buf.WriteString(v.Interface().(*big.Int).String())
		return nil
	}

	if (v.Kind() == reflect.Pointer || v.Kind() == reflect.Interface) && v.IsNil() {
		e.buf.WriteString("null")
		return nil
	}
	if v.Type().Implements(jsonMarshalerType) || v.Type().Implements(textMarshalerType) {
		return e.normalized(v.Interface(), depth)
	}

	switch v.Kind() {
	case reflect.Pointer, reflect.Interface:
		return e.encode(v.Elem(), depth+1)
	case reflect.Bool:
		if v.Bool() {
			e.buf.WriteString("true")
		} else {
			e.buf.WriteString("false")
		}
		return nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		e.buf.WriteString(strconv.FormatInt(v.Int(), 10))
		return nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		e.buf.WriteString(strconv.FormatUint(v.Uint(), 10))
		return nil
	case reflect.Float32, reflect.Float64:
		s, err := FormatFloat(v.Float())
		if err != nil {
			return err
		}
		e.buf.WriteString(s)
		return nil
	case reflect.String:
		return e.str(v.String())
	case reflect.Struct:
		return e.structObject(v, depth)
	case reflect.Map:
		return e.object(v, depth)
	case reflect.Slice:
		if v.Type().Elem().Kind() == reflect.Uint8 {
			return newError(KindEncoding, "CANON-ENC-003", "byte slices have no canonical JSON form")
		}
		if v.IsNil() {
			e.buf.WriteString("null")
			return nil
		}
		return e.array(v, depth)
	case reflect.Array:
		return e.array(v, depth)
	default:
		return newError(KindEncoding, "CANON-ENC-003", fmt.Sprintf("unsupported value of type %s", v.Type()))
	}
}

// normalized routes a custom marshaler's output through encoding/json, then
// canonicalizes the decoded tree.
func (e *encoder) normalized(v any, depth int) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return wrapError(KindEncoding, "CANON-ENC-004", "value is not JSON-serializable", err)
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var tree any
	if err := dec.Decode(&tree); err != nil {
		return wrapError(KindEncoding, "CANON-ENC-004", "value produced invalid JSON", err)
	}
	return e.encode(reflect.ValueOf(tree), depth+1)
}

func (e *encoder) number(s string) error {
	if s == "" {
		return newError(KindEncoding, "CANON-ENC-005", "empty number literal")
	}
	if !strings.ContainsAny(s, ".eE") {
		n, ok := new(big.Int).SetString(s, 10)
		if !ok {
			return newError(KindEncoding, "CANON-ENC-005", fmt.Sprintf("invalid number literal %q", s))
		}
		e.buf.WriteString(n.String())
		return nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil && !isRangeErr(err) {
		return wrapError(KindEncoding, "CANON-ENC-005", fmt.Sprintf("invalid number literal %q", s), err)
	}
	out, err := FormatFloat(f)
	if err != nil {
		return err
	}
	e.buf.WriteString(out)
	return nil
}

func isRangeErr(err error) bool {
	ne, ok := err.(*strconv.NumError)
	return ok && ne.Err == strconv.ErrRange
}

type member struct {
	key string
	val reflect.Value
}

func (e *encoder) object(v reflect.Value, depth int) error {
	if v.IsNil() {
		e.buf.WriteString("null")
		return nil
	}
	members := make([]member, 0, v.Len())
	seen := make(map[string]struct{}, v.Len())
	iter := v.MapRange()
	for iter.Next() {
		k, err := coerceKey(iter.Key())
		if err != nil {
			return err
		}
		if _, dup := seen[k]; dup {
			return newError(KindEncoding, "CANON-ENC-006", fmt.Sprintf("duplicate key %q after coercion", k))
		}
		seen[k] = struct{}{}
		members = append(members, member{key: k, val: iter.Value()})
	}
	sort.Slice(members, func(i, j int) bool { return members[i].key < members[j].key })

	e.buf.WriteByte('{')
	for i, m := range members {
		if i > 0 {
			e.buf.WriteByte(',')
		}
		if err := e.str(m.key); err != nil {
			return err
		}
		e.buf.WriteByte(':')
		if err := e.encode(m.val, depth+1); err != nil {
			return err
		}
	}
	e.buf.WriteByte('}')
	return nil
}

func (e *encoder) array(v reflect.Value, depth int) error {
	e.buf.WriteByte('[')
	for i := 0; i < v.Len(); i++ {
		if i > 0 {
			e.buf.WriteByte(',')
		}
		if err := e.encode(v.Index(i), depth+1); err != nil {
			return err
		}
	}
	e.buf.WriteByte(']')
	return nil
}

func coerceKey(k reflect.Value) (string, error) {
	for k.Kind() == reflect.Interface && !k.IsNil() {
		k = k.Elem()
	}
	if k.Type().Implements(textMarshalerType) && !(k.Kind() == reflect.Pointer && k.IsNil()) {
		b, err := k.Interface().(encoding.TextMarshaler).MarshalText()
		if err != nil {
			return "", wrapError(KindEncoding, "CANON-ENC-008", "map key text marshaling failed", err)
		}
		return string(b), nil
	}
	switch k.Kind() {
	case reflect.String:
		return k.String(), nil
	case reflect.Bool:
		return strconv.FormatBool(k.Bool()), nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return strconv.FormatInt(k.Int(), 10), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return strconv.FormatUint(k.Uint(), 10), nil
	case reflect.Float32, reflect.Float64:
		return FormatFloat(k.Float())
	default:
		return "", newError(KindEncoding, "CANON-ENC-008", fmt.Sprintf("map key of type %s cannot be coerced to a string", k.Type()))
	}
}

const hexDigits = "0123456789abcdef"

func (e *encoder) str(s string) error {
	if !utf8.ValidString(s) {
		return newError(KindEncoding, "CANON-ENC-002", "string is not valid UTF-8")
	}
	e.buf.WriteByte('"')
	for _, r := range s {
		switch r {
		case '"':
			e.buf.WriteString(`\"`)
		case '\\':
			e.buf.WriteString(`\\`)
		case '\n':
			e.buf.WriteString(`\n`)
		case '\r':
			e.buf.WriteString(`\r`)
		case '\t':
			e.buf.WriteString(`\t`)
		case '\b':
			e.buf.WriteString(`\b`)
		case '\f':
			e.buf.WriteString(`\f`)
		default:
			switch {
			case r < 0x20:
				e.unicodeEscape(r)
			case e.escape && r > 0x7e:
				if r > 0xffff {
					hi, lo := utf16.EncodeRune(r)
					e.unicodeEscape(hi)
					e.unicodeEscape(lo)
				} else {
					e.unicodeEscape(r)
				}
			default:
				e.buf.WriteRune(r)
			}
		}
	}
	e.buf.WriteByte('"')
	return nil
}

func (e *encoder) unicodeEscape(r rune) {
	e.buf.WriteString(`\u`)
	e.buf.WriteByte(hexDigits[(r>>12)&0xf])
	e.buf.WriteByte(hexDigits[(r>>8)&0xf])
	e.buf.WriteByte(hexDigits[(r>>4)&0xf])
	e.buf.WriteByte(hexDigits[r&0xf])
}

// FormatFloat renders f as the shortest decimal that round-trips, using fixed
// notation for decimal exponents in [-4, 16) and d.ddde±XX otherwise. Integral
// values keep a trailing ".0". NaN and ±Inf fail with a KindEncoding error.
func FormatFloat(f float64) (string, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return "", newError(KindEncoding, "CANON-ENC-001", "non-finite float has no canonical form")
	}
	if f == 0 {
		if math.Signbit(f) {
			return "-0.0", nil
		}
		return "0.0", nil
	}

	sci := strconv.FormatFloat(f, 'e', -1, 64)
	mant, expStr, _ := strings.Cut(sci, "e")
	exp, err := strconv.Atoi(expStr)
	if err != nil {
		return "", wrapError(KindInternal, "CANON-INT-001", "unexpected float exponent", err)
	}
	neg := strings.HasPrefix(mant, "-")
	mant = strings.TrimPrefix(mant, "-")
	digits := strings.Replace(mant, ".", "", 1)

	var out string
	switch {
	case exp >= 0 && exp < 16:
		if len(digits) <= exp+1 {
			out = digits + strings.Repeat("0", exp+1-len(digits)) + ".0"
		} else {
			out = digits[:exp+1] + "." + digits[exp+1:]
		}
	case exp < 0 && exp >= -4:
		out = "0." + strings.Repeat("0", -exp-1) + digits
	default:
		m := digits[:1]
		if len(digits) > 1 {
			m += "." + digits[1:]
		}
		sign := "+"
		if exp < 0 {
			sign = "-"
			exp = -exp
		}
		out = fmt.Sprintf("%se%s%02d", m, sign, exp)
	}
	if neg {
		out = "-" + out
	}
	return out, nil
}
