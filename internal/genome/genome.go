// Package genome computes content identities shared by the hypercube and the
// elephant memory. A genome is the hex SHA-256 digest of the canonical JSON
// form of a content map, so key order never changes the result.
package genome

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"unicode/utf8"
)

// Size is the length of a hex encoded genome.
const Size = sha256.Size * 2

// Canonical returns the canonical serialization of v: JSON with object keys
// sorted at every depth and no HTML escaping. Strings and keys holding
// invalid UTF-8 are rejected since the encoder would rewrite them.
func Canonical(v any) ([]byte, error) {
	if err := checkUTF8(reflect.ValueOf(v), 0); err != nil {
		return nil, &SerializationError{Err: err}
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, &SerializationError{Err: err}
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// Compute returns the genome of content.
func Compute(content map[string]any) (string, error) {
	if content == nil {
		content = map[string]any{}
	}
	b, err := Canonical(content)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:]), nil
}

// maxDepth stops the walk on cyclic values; the encoder rejects those.
const maxDepth = 1000

// errInvalidUTF8 marks a string the encoder would rewrite.
var errInvalidUTF8 = errors.New("invalid UTF-8")

// checkUTF8 walks v and reports the first string that is not valid UTF-8,
// prefixed with the keys and indexes leading to it.
func checkUTF8(v reflect.Value, depth int) error {
	if depth > maxDepth {
		return nil
	}
	switch v.Kind() {
	case reflect.String:
		if !utf8.ValidString(v.String()) {
			return errInvalidUTF8
		}
	case reflect.Interface, reflect.Pointer:
		if !v.IsNil() {
			return checkUTF8(v.Elem(), depth+1)
		}
	case reflect.Map:
		iter := v.MapRange()
		for iter.Next() {
			k := iter.Key()
			if k.Kind() == reflect.String && !utf8.ValidString(k.String()) {
				return fmt.Errorf("key %q: %w", k.String(), errInvalidUTF8)
			}
			if err := checkUTF8(iter.Value(), depth+1); err != nil {
				return fmt.Errorf("%v: %w", k, err)
			}
		}
	case reflect.Slice, reflect.Array:
		if v.Kind() == reflect.Slice && v.Type().Elem().Kind() == reflect.Uint8 {
			return nil
		}
		for i := range v.Len() {
			if err := checkUTF8(v.Index(i), depth+1); err != nil {
				return fmt.Errorf("[%d]: %w", i, err)
			}
		}
	case reflect.Struct:
		t := v.Type()
		for i := range v.NumField() {
			if !t.Field(i).IsExported() {
				continue
			}
			if err := checkUTF8(v.Field(i), depth+1); err != nil {
				return fmt.Errorf("%s: %w", t.Field(i).Name, err)
			}
		}
	}
	return nil
}
