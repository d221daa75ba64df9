// Package inmemory provides an in-memory implementation of the docstore.Store
// interface. It mirrors the acknowledgment semantics of the Elasticsearch
// index API so engine behavior observed against it carries over: a create on
// an existing identity acknowledges "updated" and an update on a missing
// identity acknowledges "created".
package inmemory

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/datamast/essync/internal/docstore"
)

// store implements the docstore.Store interface
type store struct {
	mu      sync.RWMutex // Protects indexes
	indexes map[string]map[string]docstore.Document
}

var _ docstore.Store = (*store)(nil)

// Option is a functional option for configuring the store
type Option func(*store)

// WithDocuments seeds the given index with documents keyed by their id field.
// Documents without a usable identity are ignored.
func WithDocuments(index string, docs ...docstore.Document) Option {
	return func(s *store) {
		idx := s.indexes[index]
		if idx == nil {
			idx = make(map[string]docstore.Document)
			s.indexes[index] = idx
		}
		for _, doc := range docs {
			id, ok := docstore.CanonicalID(doc[docstore.IDField])
			if !ok {
				continue
			}
			idx[id] = doc.Clone()
		}
	}
}

// New creates an empty in-memory document store.
func New(opts ...Option) docstore.Store {
	s := &store{
		indexes: make(map[string]map[string]docstore.Document),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Get implements docstore.Store.Get
func (s *store) Get(_ context.Context, index, id string) (docstore.GetResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	doc, ok := s.indexes[index][id]
	if !ok {
		return docstore.GetResult{}, nil
	}

	return docstore.GetResult{Found: true, Document: doc.Clone()}, nil
}

// Create implements docstore.Store.Create
func (s *store) Create(ctx context.Context, index, id string, doc docstore.Document) (docstore.Ack, error) {
	return s.put(ctx, index, id, doc)
}

// Update implements docstore.Store.Update
func (s *store) Update(ctx context.Context, index, id string, doc docstore.Document) (docstore.Ack, error) {
	return s.put(ctx, index, id, doc)
}

// put stores the full document body under the given identity. Like the
// Elasticsearch index API, the acknowledgment depends only on whether the
// identity already existed.
func (s *store) put(ctx context.Context, index, id string, doc docstore.Document) (docstore.Ack, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.indexes[index]
	if idx == nil {
		idx = make(map[string]docstore.Document)
		s.indexes[index] = idx
	}

	_, existed := idx[id]
	idx[id] = doc.Clone()

	ack := docstore.AckCreated
	if existed {
		ack = docstore.AckUpdated
	}

	slog.DebugContext(ctx, "Stored document", "index", index, "id", id, "ack", string(ack))
	return ack, nil
}

// MultiGet implements docstore.Store.MultiGet. Unlike a remote store, it
// always returns one lookup per requested identity.
func (s *store) MultiGet(_ context.Context, index string, ids []string) ([]docstore.Lookup, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	idx := s.indexes[index]

	lookups := make([]docstore.Lookup, 0, len(ids))
	for _, id := range ids {
		_, found := idx[id]
		lookups = append(lookups, docstore.Lookup{ID: id, Found: found})
	}

	return lookups, nil
}

// Search implements docstore.Store.Search. Documents lacking the sort field
// are excluded from the result, matching how a remote store treats documents
// without a value for the requested sort.
func (s *store) Search(_ context.Context, index string, q docstore.Query) ([]docstore.Hit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	type entry struct {
		id   string
		key  any
		doc  docstore.Document
	}

	var entries []entry
	for id, doc := range s.indexes[index] {
		key, ok := doc[q.SortField]
		if !ok {
			continue
		}
		entries = append(entries, entry{id: id, key: key, doc: doc})
	}

	sort.SliceStable(entries, func(i, j int) bool {
		c := compareValues(entries[i].key, entries[j].key)
		if c == 0 {
			// Identity tiebreak keeps result order deterministic
			c = strings.Compare(entries[i].id, entries[j].id)
		}
		if q.SortDesc {
			return c > 0
		}
		return c < 0
	})

	if q.Size > 0 && len(entries) > q.Size {
		entries = entries[:q.Size]
	}

	hits := make([]docstore.Hit, 0, len(entries))
	for _, e := range entries {
		hits = append(hits, docstore.Hit{ID: e.id, Source: projectFields(e.doc, q.SourceFields)})
	}

	return hits, nil
}

// Delete implements docstore.Store.Delete
func (s *store) Delete(_ context.Context, index, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.indexes[index]
	if idx != nil {
		delete(idx, id)
	}

	return true, nil
}

// Count implements docstore.Store.Count. Matching compares the stored value's
// canonical string form against the given value.
func (s *store) Count(_ context.Context, index, field, value string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int64
	for _, doc := range s.indexes[index] {
		v, ok := doc[field]
		if !ok {
			continue
		}
		if stringForm(v) == value {
			n++
		}
	}

	return n, nil
}

// EnsureIndex implements docstore.Store.EnsureIndex. Settings bodies have no
// meaning for the in-memory store and are discarded.
func (s *store) EnsureIndex(_ context.Context, index string, settings io.Reader) (bool, error) {
	if settings != nil {
		_, _ = io.Copy(io.Discard, settings)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.indexes[index]; ok {
		return false, nil
	}

	s.indexes[index] = make(map[string]docstore.Document)
	return true, nil
}

// Ping implements docstore.Store.Ping
func (*store) Ping(_ context.Context) error {
	return nil
}

// compareValues orders two sort keys, numerically when both are numeric and
// by string form otherwise.
func compareValues(a, b any) int {
	af, aok := numericValue(a)
	bf, bok := numericValue(b)
	if aok && bok {
		switch {
		case af < bf:
			return -1
		case af > bf:
			return 1
		default:
			return 0
		}
	}
	return strings.Compare(stringForm(a), stringForm(b))
}

func numericValue(v any) (float64, bool) {
	switch tv := v.(type) {
	case int:
		return float64(tv), true
	case int32:
		return float64(tv), true
	case int64:
		return float64(tv), true
	case float32:
		return float64(tv), true
	case float64:
		return tv, true
	case json.Number:
		f, err := tv.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

func stringForm(v any) string {
	if n, ok := v.(json.Number); ok {
		return n.String()
	}
	return fmt.Sprintf("%v", v)
}

// projectFields reduces a document to the requested source fields. An empty
// field list returns the full document.
func projectFields(doc docstore.Document, fields []string) docstore.Document {
	if len(fields) == 0 {
		return doc.Clone()
	}

	out := make(docstore.Document, len(fields))
	for _, f := range fields {
		if v, ok := doc[f]; ok {
			out[f] = v
		}
	}
	return out.Clone()
}
