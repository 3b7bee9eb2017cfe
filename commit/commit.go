// Package commit computes domain-separated commitment hashes.
//
// commitment = sha256(domain_literal + "|" + canonical_bytes(payload))
//
// Payloads pass two gates first: volatile fields (timestamps, process
// identifiers, filesystem paths) are stripped, then any remaining
// floating-point value is rejected. Use Quantizer or RateFraction to bring
// fractional quantities in.
package commit

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"xdao.co/canonproof/canon"
)

// Separator joins the domain literal and the canonical payload bytes.
const Separator = "|"

// ErrFloatInCommitment is wrapped by the encoding error returned when a float
// reaches a commitment payload.
var ErrFloatInCommitment = errors.New("commit: floating-point value in commitment payload")

// Contract is the canonical encoding used for commitment payloads.
const Contract = canon.Proofs

// Commit computes the commitment hash of payload in domain d.
func Commit(d Domain, payload any) (CommitmentHash, error) {
	b, err := CanonicalPayload(payload)
	if err != nil {
		return CommitmentHash{}, err
	}
	return CommitBytes(d, b)
}

// CommitBytes commits to already canonical payload bytes. Callers are
// responsible for having applied CanonicalPayload.
func CommitBytes(d Domain, canonical []byte) (CommitmentHash, error) {
	lit, ok := d.Literal()
	if !ok {
		return CommitmentHash{}, fmt.Errorf("commit: undefined domain %d", uint8(d))
	}
	dg, err := canon.Hash(canonical, Contract, lit+Separator)
	if err != nil {
		return CommitmentHash{}, err
	}
	return ParseCommitmentHash(dg.Hex())
}

// CanonicalPayload returns the exact bytes Commit hashes after the domain
// separator: volatile fields stripped, then floats rejected, PROOFS encoding.
// A float under a volatile key never reaches the check.
func CanonicalPayload(payload any) ([]byte, error) {
	if err := rejectFloats(reflect.ValueOf(payload), "$", 0); err != nil {
		return nil, err
	}
	tree, err := toTree(payload)
	if err != nil {
		return nil, err
	}
	tree = StripVolatile(tree)
	if err := rejectFractionalNumbers(tree, "$"); err != nil {
		return nil, err
	}
	return canon.Encode(tree, Contract)
}

func floatError(path string) error {
	return canon.NewEncodingError("CANON-ENC-101",
		fmt.Sprintf("float at %s cannot enter a commitment; quantize it first", path), ErrFloatInCommitment)
}

func rejectFloats(v reflect.Value, path string, depth int) error {
	if depth > 1000 || !v.IsValid() {
		return nil
	}
	switch v.Kind() {
	case reflect.Float32, reflect.Float64:
		return floatError(path)
	case reflect.Pointer, reflect.Interface:
		if v.IsNil() {
			return nil
		}
		return rejectFloats(v.Elem(), path, depth+1)
	case reflect.Map:
		if v.Type().Key().Kind() == reflect.Float32 || v.Type().Key().Kind() == reflect.Float64 {
			return floatError(path + " (map key)")
		}
		iter := v.MapRange()
		for iter.Next() {
			if k, ok := stringKey(iter.Key()); ok && IsVolatile(k) {
				continue
			}
			if err := rejectFloats(iter.Key(), path+" (map key)", depth+1); err != nil {
				return err
			}
			if err := rejectFloats(iter.Value(), fmt.Sprintf("%s.%v", path, iter.Key()), depth+1); err != nil {
				return err
			}
		}
	case reflect.Slice, reflect.Array:
		for i := 0; i < v.Len(); i++ {
			if err := rejectFloats(v.Index(i), fmt.Sprintf("%s[%d]", path, i), depth+1); err != nil {
				return err
			}
		}
	case reflect.Struct:
		t := v.Type()
		for i := 0; i < t.NumField(); i++ {
			sf := t.Field(i)
			if !sf.IsExported() {
				continue
			}
			name, embedded := jsonName(sf)
			if name == "-" || (!embedded && IsVolatile(name)) {
				continue
			}
			sub := path
			if !embedded {
				sub = path + "." + name
			}
			if err := rejectFloats(v.Field(i), sub, depth+1); err != nil {
				return err
			}
		}
	}
	return nil
}

// jsonName is the object key encoding/json uses for sf. embedded reports an
// untagged anonymous struct whose fields are promoted into the parent.
func jsonName(sf reflect.StructField) (name string, embedded bool) {
	tag := sf.Tag.Get("json")
	if tag == "-" {
		return "-", false
	}
	name, _, _ = strings.Cut(tag, ",")
	if name != "" {
		return name, false
	}
	ft := sf.Type
	if ft.Kind() == reflect.Pointer {
		ft = ft.Elem()
	}
	if sf.Anonymous && ft.Kind() == reflect.Struct {
		return "", true
	}
	return sf.Name, false
}

func stringKey(k reflect.Value) (string, bool) {
	for k.Kind() == reflect.Interface && !k.IsNil() {
		k = k.Elem()
	}
	if k.Kind() != reflect.String {
		return "", false
	}
	return k.String(), true
}

// rejectFractionalNumbers catches floats that a custom marshaler emitted as
// number literals.
func rejectFractionalNumbers(v any, path string) error {
	switch x := v.(type) {
	case json.Number:
		if strings.ContainsAny(x.String(), ".eE") {
			return floatError(path)
		}
	case map[string]any:
		for k, e := range x {
			if err := rejectFractionalNumbers(e, path+"."+k); err != nil {
				return err
			}
		}
	case []any:
		for i, e := range x {
			if err := rejectFractionalNumbers(e, fmt.Sprintf("%s[%d]", path, i)); err != nil {
				return err
			}
		}
	}
	return nil
}

// toTree normalizes payload into map[string]any / []any / json.Number leaves.
func toTree(payload any) (any, error) {
	raw, err := canon.Encode(payload, Contract)
	if err != nil {
		return nil, err
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var tree any
	if err := dec.Decode(&tree); err != nil {
		return nil, canon.NewEncodingError("CANON-ENC-102", "commitment payload is not canonical JSON", err)
	}
	return tree, nil
}
