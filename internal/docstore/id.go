package docstore

import (
	"encoding/json"
	"math"
	"strconv"
)

// CanonicalID normalizes a raw id value into the canonical string form used
// as the document's key in the store, so numeric and string identities naming
// the same document are treated as one key. It reports false for values that
// cannot serve as an identity: nil, empty strings, fractional numbers, and
// anything that is not a scalar identity type.
func CanonicalID(v any) (string, bool) {
	switch id := v.(type) {
	case string:
		return id, id != ""
	case int:
		return strconv.Itoa(id), true
	case int32:
		return strconv.FormatInt(int64(id), 10), true
	case int64:
		return strconv.FormatInt(id, 10), true
	case float64:
		// JSON decoding renders numeric identities as float64; only whole
		// values within int64 range are valid identities.
		if id != math.Trunc(id) || math.IsNaN(id) || id < math.MinInt64 || id > math.MaxInt64 {
			return "", false
		}
		return strconv.FormatInt(int64(id), 10), true
	case json.Number:
		n, err := id.Int64()
		if err != nil {
			return "", false
		}
		return strconv.FormatInt(n, 10), true
	default:
		return "", false
	}
}
