// Package doccmp implements the structural document equality that decides
// whether an index write is needed. Two documents are equal when they carry
// the same fields with the same values, regardless of map key order and
// regardless of element order in sequences whose elements are all mappings.
// Sequences holding anything else compare positionally.
package doccmp

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/datamast/essync/internal/docstore"
)

// Equal reports whether a and b are structurally identical. It is symmetric,
// reflexive, performs no I/O, and never mutates its inputs. False positives
// here leave the index silently stale; false negatives cause spurious writes.
func Equal(a, b docstore.Document) bool {
	return equalMaps(a, b)
}

func equalMaps(a, b map[string]any) bool {
	if len(a) != len(b) {
		return false
	}
	for k, av := range a {
		bv, ok := b[k]
		if !ok {
			return false
		}
		if !equalValues(av, bv) {
			return false
		}
	}
	return true
}

func equalValues(a, b any) bool {
	if ad, ok := a.(docstore.Document); ok {
		a = map[string]any(ad)
	}
	if bd, ok := b.(docstore.Document); ok {
		b = map[string]any(bd)
	}

	switch av := a.(type) {
	case map[string]any:
		bv, ok := b.(map[string]any)
		return ok && equalMaps(av, bv)
	case []any:
		bv, ok := b.([]any)
		return ok && equalSequences(av, bv)
	default:
		switch b.(type) {
		case map[string]any, []any:
			return false
		}
		return equalScalars(a, b)
	}
}

func equalSequences(a, b []any) bool {
	if len(a) != len(b) {
		return false
	}
	// A sequence made entirely of mappings is an unordered collection: both
	// sides are reordered by a canonical key before pairwise comparison.
	if allMappings(a) && allMappings(b) {
		a = sortedByCanonicalKey(a)
		b = sortedByCanonicalKey(b)
	}
	for i := range a {
		if !equalValues(a[i], b[i]) {
			return false
		}
	}
	return true
}

func allMappings(s []any) bool {
	for _, v := range s {
		if _, ok := v.(map[string]any); !ok {
			return false
		}
	}
	return true
}

func sortedByCanonicalKey(s []any) []any {
	out := make([]any, len(s))
	copy(out, s)
	sort.SliceStable(out, func(i, j int) bool {
		return canonicalKey(out[i].(map[string]any)) < canonicalKey(out[j].(map[string]any))
	})
	return out
}

// canonicalKey renders a mapping as its sorted key/value pairs, giving
// sequences of mappings a deterministic order independent of how the source
// emitted them.
func canonicalKey(m map[string]any) string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var sb strings.Builder
	for i, k := range keys {
		if i > 0 {
			sb.WriteByte(';')
		}
		sb.WriteString(k)
		sb.WriteByte('=')
		writeCanonicalValue(&sb, m[k])
	}
	return sb.String()
}

func writeCanonicalValue(sb *strings.Builder, v any) {
	switch tv := v.(type) {
	case map[string]any:
		sb.WriteByte('{')
		sb.WriteString(canonicalKey(tv))
		sb.WriteByte('}')
	case []any:
		sb.WriteByte('[')
		for i, e := range tv {
			if i > 0 {
				sb.WriteByte(',')
			}
			writeCanonicalValue(sb, e)
		}
		sb.WriteByte(']')
	case json.Number:
		sb.WriteString(tv.String())
	default:
		fmt.Fprintf(sb, "%v", tv)
	}
}

// equalScalars compares leaf values. Numeric values are compared by value so
// the float64 shapes produced by JSON decoding match the integer shapes a
// relational source produces for the same document.
func equalScalars(a, b any) bool {
	an, aNumeric := asFloat(a)
	bn, bNumeric := asFloat(b)
	if aNumeric || bNumeric {
		return aNumeric && bNumeric && an == bn
	}
	return a == b
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}
