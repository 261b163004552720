package hypercube

import (
	"encoding/json"
	"reflect"
	"strings"

	"github.com/nidhogg/vault-nexus/internal/genome"
)

type valueKind uint8

const (
	kindString valueKind = iota + 1
	kindNumber
	kindBool
	kindComposite
)

// valueKey is the posting-list key for one coordinate value. Numbers of any
// Go numeric type collapse to the same float64 key so 2025, int64(2025) and
// 2025.0 hit the same posting list.
type valueKey struct {
	kind valueKind
	num  float64
	str  string
	flag bool
}

func keyOf(v any) (valueKey, bool) {
	if v == nil {
		return valueKey{}, false
	}
	if n, ok := toNumber(v); ok {
		return valueKey{kind: kindNumber, num: n}, true
	}
	switch t := v.(type) {
	case string:
		return valueKey{kind: kindString, str: t}, true
	case bool:
		return valueKey{kind: kindBool, flag: t}, true
	}
	b, err := genome.Canonical(v)
	if err != nil {
		return valueKey{}, false
	}
	return valueKey{kind: kindComposite, str: string(b)}, true
}

// Number returns v as a float64 when v is any Go numeric type or a
// json.Number. Booleans are not numbers.
func Number(v any) (float64, bool) { return toNumber(v) }

func toNumber(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case float32:
		return float64(t), true
	case int:
		return float64(t), true
	case int8:
		return float64(t), true
	case int16:
		return float64(t), true
	case int32:
		return float64(t), true
	case int64:
		return float64(t), true
	case uint:
		return float64(t), true
	case uint8:
		return float64(t), true
	case uint16:
		return float64(t), true
	case uint32:
		return float64(t), true
	case uint64:
		return float64(t), true
	case json.Number:
		f, err := t.Float64()
		return f, err == nil
	}
	return 0, false
}

// compare orders a against b. Only number/number and string/string pairs are
// ordered; every other pairing reports ok=false and never matches a range.
func compare(a, b any) (int, bool) {
	if x, ok := toNumber(a); ok {
		y, ok := toNumber(b)
		if !ok {
			return 0, false
		}
		switch {
		case x < y:
			return -1, true
		case x > y:
			return 1, true
		}
		return 0, true
	}
	x, ok := a.(string)
	if !ok {
		return 0, false
	}
	y, ok := b.(string)
	if !ok {
		return 0, false
	}
	return strings.Compare(x, y), true
}

// candidates expands an "in" operand into its member values. A non-slice
// operand is treated as a single candidate.
func candidates(v any) []any {
	switch t := v.(type) {
	case nil:
		return nil
	case []any:
		return t
	case string:
		return []any{t}
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return []any{v}
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out
}
