package sync

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strconv"

	"github.com/datamast/essync/internal/docstore"
)

// LargestID implements Engine.LargestID.
func (e *defaultEngine) LargestID(ctx context.Context, index string) (int64, error) {
	hit, ok, err := e.topHit(ctx, index, docstore.IDField)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, nil
	}

	if id, ok := asInt64(hit.ID); ok {
		return id, nil
	}
	if id, ok := asInt64(hit.Source[docstore.IDField]); ok {
		return id, nil
	}

	return 0, fmt.Errorf("document identity %q in index %s is not numeric", hit.ID, index)
}

// LatestValue implements Engine.LatestValue.
func (e *defaultEngine) LatestValue(ctx context.Context, index, field string) (string, bool, error) {
	if field == "" {
		return "", false, fmt.Errorf("field is required")
	}

	hit, ok, err := e.topHit(ctx, index, field)
	if err != nil {
		return "", false, err
	}
	if !ok {
		return "", false, nil
	}

	value, ok := scalarString(hit.Source[field])
	if !ok {
		return "", false, nil
	}

	return value, true, nil
}

// IndexState implements Engine.IndexState. The two cursors are resolved by
// independent queries and may come from two different documents.
func (e *defaultEngine) IndexState(ctx context.Context, index, latestField string) (State, error) {
	largest, err := e.LargestID(ctx, index)
	if err != nil {
		return State{}, err
	}

	state := State{LargestID: largest}

	if latestField != "" {
		value, ok, err := e.LatestValue(ctx, index, latestField)
		if err != nil {
			return State{}, err
		}
		state.LatestValue = value
		state.HasLatestValue = ok
	}

	return state, nil
}

// topHit returns the top document sorted descending by field. An empty or
// missing index reports no hit, never an error.
func (e *defaultEngine) topHit(ctx context.Context, index, field string) (docstore.Hit, bool, error) {
	hits, err := e.store.Search(ctx, index, docstore.Query{
		SortField:    field,
		SortDesc:     true,
		Size:         1,
		SourceFields: []string{field},
	})
	if err != nil {
		if docstore.IsNotFound(err) {
			return docstore.Hit{}, false, nil
		}
		return docstore.Hit{}, false, err
	}
	if len(hits) == 0 {
		return docstore.Hit{}, false, nil
	}

	return hits[0], true, nil
}

// asInt64 interprets an identity value as a whole number.
func asInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int64:
		return n, true
	case float64:
		if n != math.Trunc(n) {
			return 0, false
		}
		return int64(n), true
	case json.Number:
		i, err := n.Int64()
		return i, err == nil
	case string:
		i, err := strconv.ParseInt(n, 10, 64)
		return i, err == nil
	default:
		return 0, false
	}
}

// scalarString renders a scalar cursor value in its string form. Non-scalar
// values have no cursor form and report false.
func scalarString(v any) (string, bool) {
	switch s := v.(type) {
	case string:
		return s, true
	case bool:
		return strconv.FormatBool(s), true
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64), true
	case int:
		return strconv.Itoa(s), true
	case int64:
		return strconv.FormatInt(s, 10), true
	case json.Number:
		return s.String(), true
	default:
		return "", false
	}
}
