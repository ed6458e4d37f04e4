// Copyright 2025 Justifai
//
// Package canonical implements the canonicalization rules every hashed
// JSON object must go through: NFC normalization, null/empty stripping,
// key and primitive-array sorting, date normalization, and fixed
// decimal truncation, followed by compact serialization with a
// _schema version key. Canonicalize(x) must be idempotent and must
// reproduce byte-for-byte on any platform, since its output feeds
// keccak256 directly.
package canonical

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"time"

	"golang.org/x/text/unicode/norm"

	"github.com/justifai/certify/pkg/errkind"
)

// SchemaVersion is written as the top-level "_schema" key of every
// canonicalized object.
const SchemaVersion = 1

// Canonicalize decodes JSON-shaped input (map[string]any, []any,
// string, float64/json.Number, bool, nil, or already-decoded Go
// values), applies the canonicalization rules, and returns compact
// JSON bytes with no whitespace and a top-level "_schema" key.
func Canonicalize(v any) ([]byte, error) {
	normalized := normalizeValue(v)
	obj, ok := normalized.(map[string]any)
	if !ok {
		return nil, errkind.New(errkind.Validation, "canonicalize requires a top-level JSON object")
	}
	obj["_schema"] = SchemaVersion

	var buf bytes.Buffer
	if err := encodeCanonical(&buf, obj); err != nil {
		return nil, errkind.Wrap(errkind.Validation, err, "encode canonical JSON")
	}
	return buf.Bytes(), nil
}

// FromJSON decodes raw JSON text using json.Number (so rule 6's
// integer/non-integer distinction can be made correctly) and
// canonicalizes it.
func FromJSON(raw []byte) ([]byte, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, errkind.Wrap(errkind.Validation, err, "parse JSON for canonicalization")
	}
	return Canonicalize(v)
}

// normalizeValue applies rules 1-6 recursively, returning a tree of
// map[string]any / []any / string / json.Number / bool / nil ready for
// deterministic encoding. Rule 2 (drop null/undefined/empty-string
// values) is applied to object fields here so encodeCanonical never
// sees a dropped key.
func normalizeValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, raw := range val {
			if isEmptyValue(raw) {
				continue
			}
			out[k] = normalizeValue(raw)
		}
		return out
	case []any:
		out := make([]any, 0, len(val))
		for _, raw := range val {
			out = append(out, normalizeValue(raw))
		}
		return sortPrimitiveArray(out)
	case string:
		return normalizeString(val)
	case json.Number:
		return normalizeNumber(val)
	case float64:
		return normalizeNumber(json.Number(strconv.FormatFloat(val, 'f', -1, 64)))
	default:
		return val
	}
}

func isEmptyValue(v any) bool {
	if v == nil {
		return true
	}
	if s, ok := v.(string); ok {
		return s == ""
	}
	return false
}

// normalizeString applies NFC normalization (rule 1) and, when the
// string looks like an ISO-8601 timestamp, reparses and reformats it
// to ISO-8601 UTC (rule 5).
func normalizeString(s string) string {
	nfc := norm.NFC.String(s)
	if t, err := time.Parse(time.RFC3339, nfc); err == nil {
		return t.UTC().Format(time.RFC3339)
	}
	return nfc
}

// normalizeNumber keeps integers unchanged and truncates non-integers
// to 10 decimal places (rule 6), returning a json.Number so encoding
// doesn't reintroduce floating point artifacts.
func normalizeNumber(n json.Number) json.Number {
	if _, err := n.Int64(); err == nil {
		return n
	}
	f, err := n.Float64()
	if err != nil {
		return n
	}
	const scale = 1e10
	truncated := math.Trunc(f*scale) / scale
	return json.Number(strconv.FormatFloat(truncated, 'f', -1, 64))
}

// sortPrimitiveArray sorts an array in place (rule 4) when every
// element is a string, number, bool or null; arrays of objects are left in
// encounter order, since object identity/ordering there is meaningful.
func sortPrimitiveArray(arr []any) []any {
	allPrimitive := true
	for _, v := range arr {
		switch v.(type) {
		case string, json.Number, bool, nil:
		default:
			allPrimitive = false
		}
		if !allPrimitive {
			break
		}
	}
	if !allPrimitive {
		return arr
	}
	sort.SliceStable(arr, func(i, j int) bool {
		return fmt.Sprint(arr[i]) < fmt.Sprint(arr[j])
	})
	return arr
}

// encodeCanonical writes v as compact JSON with object keys sorted
// lexicographically (rule 3) at every nesting level.
func encodeCanonical(buf *bytes.Buffer, v any) error {
	switch val := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		buf.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			kb, err := json.Marshal(k)
			if err != nil {
				return err
			}
			buf.Write(kb)
			buf.WriteByte(':')
			if err := encodeCanonical(buf, val[k]); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
		return nil
	case []any:
		buf.WriteByte('[')
		for i, e := range val {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := encodeCanonical(buf, e); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
		return nil
	default:
		// encoding/json escapes HTML-significant runes by default; hashed
		// canonical output must not depend on that, so encode with
		// SetEscapeHTML(false) and trim the trailing newline Encode adds.
		var scratch bytes.Buffer
		enc := json.NewEncoder(&scratch)
		enc.SetEscapeHTML(false)
		if err := enc.Encode(val); err != nil {
			return err
		}
		buf.Write(bytes.TrimRight(scratch.Bytes(), "\n"))
		return nil
	}
}
