// Package docstore defines the document-store abstraction the sync engine
// writes through, together with the fault classification shared by every
// implementation. Absence of a document is modeled as data (GetResult.Found),
// never as an error.
package docstore

import (
	"context"
	"io"
)

//go:generate mockgen -destination=mocks/mock_store.go -package=mocks -source=docstore.go Store

// IDField is the document field carrying the identity under which a document
// is stored.
const IDField = "id"

// Document is a single document body keyed by field name. Values are scalars,
// nested mappings, or sequences of either, in the shapes produced by
// encoding/json (string, bool, float64, nil, map[string]any, []any).
type Document map[string]any

// Clone returns a deep copy of the document. Nested mappings and sequences
// are copied recursively so mutations of the copy never reach the original.
func (d Document) Clone() Document {
	if d == nil {
		return nil
	}
	out := make(Document, len(d))
	for k, v := range d {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch tv := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(tv))
		for k, e := range tv {
			out[k] = cloneValue(e)
		}
		return out
	case []any:
		out := make([]any, len(tv))
		for i, e := range tv {
			out[i] = cloneValue(e)
		}
		return out
	default:
		return v
	}
}

// Ack is the store's acknowledgment of a write operation.
type Ack string

// Write acknowledgments a store may report.
const (
	AckCreated Ack = "created"
	AckUpdated Ack = "updated"
	AckNoop    Ack = "noop"
)

// GetResult is the outcome of a single-document lookup. Found is false and
// Document is nil when the store holds nothing under the requested identity.
type GetResult struct {
	Found    bool
	Document Document
}

// Lookup is one entry of a multi-get response. Stores may omit entries
// entirely for identities they cannot resolve, so the response is not
// guaranteed to cover every requested identity.
type Lookup struct {
	ID    string
	Found bool
}

// Query describes a sorted, size-limited search. It is the shape used by the
// ingestion-cursor queries, which always request a single top document.
type Query struct {
	SortField    string
	SortDesc     bool
	Size         int
	SourceFields []string
}

// Hit is a single search result.
type Hit struct {
	ID     string
	Source Document
}

// Store is the remote document-store collaborator. Implementations classify
// every fault they return per Classify, and must honor context cancellation
// on all calls.
type Store interface {
	// Get fetches the current document under the given identity. A missing
	// document or missing index yields GetResult{Found: false} and a nil
	// error.
	Get(ctx context.Context, index, id string) (GetResult, error)

	// Create writes a document expected not to exist yet. The returned Ack
	// reflects what the store actually did.
	Create(ctx context.Context, index, id string, doc Document) (Ack, error)

	// Update replaces an existing document with the full new body. Partial
	// merges are not part of this interface.
	Update(ctx context.Context, index, id string, doc Document) (Ack, error)

	// MultiGet resolves existence for many identities in one round trip.
	MultiGet(ctx context.Context, index string, ids []string) ([]Lookup, error)

	// Search runs a sorted query and returns the matching hits in order.
	Search(ctx context.Context, index string, q Query) ([]Hit, error)

	// Delete removes a document. It reports true when the document is gone,
	// including when it was already absent.
	Delete(ctx context.Context, index, id string) (bool, error)

	// Count returns the number of documents whose field matches value
	// exactly.
	Count(ctx context.Context, index, field, value string) (int64, error)

	// EnsureIndex creates the index from the given settings body if it does
	// not exist. It reports true when the index was created by this call.
	EnsureIndex(ctx context.Context, index string, settings io.Reader) (bool, error)

	// Ping verifies connectivity to the store.
	Ping(ctx context.Context) error
}
