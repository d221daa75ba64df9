// Package es implements the document store against Elasticsearch using the
// official client. All faults are folded into the docstore sentinel errors so
// callers can classify them without knowing Elasticsearch status codes.
package es

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	elasticsearch "github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
	"github.com/tidwall/gjson"

	"github.com/datamast/essync/internal/config"
	"github.com/datamast/essync/internal/docstore"
)

const defaultPingTimeout = 5 * time.Second

// Option configures the store client
type Option func(*clientOptions)

// clientOptions holds construction-time settings not carried by the
// configuration file
type clientOptions struct {
	transport http.RoundTripper
}

// WithTransport overrides the HTTP transport used for store requests. Tests
// use this to serve canned responses without a running cluster.
func WithTransport(rt http.RoundTripper) Option {
	return func(o *clientOptions) {
		o.transport = rt
	}
}

// Store talks to an Elasticsearch cluster through the official client.
type Store struct {
	client *elasticsearch.Client
}

var _ docstore.Store = (*Store)(nil)

// New creates a document store client from the provided configuration and
// verifies connectivity before returning it.
func New(cfg *config.StoreConfig, opts ...Option) (*Store, error) {
	if cfg == nil {
		return nil, fmt.Errorf("store configuration is required")
	}
	if len(cfg.Addresses) == 0 {
		return nil, fmt.Errorf("at least one store address is required")
	}

	// Get password using secure priority order (file -> env)
	password, err := cfg.GetPassword()
	if err != nil {
		return nil, fmt.Errorf("failed to get store password: %w", err)
	}

	options := &clientOptions{}
	for _, opt := range opts {
		opt(options)
	}

	// Retries are disabled here because the reconciler owns the retry policy.
	// Client-level retries would hide the fault class from it.
	esCfg := elasticsearch.Config{
		Addresses:    cfg.Addresses,
		Username:     cfg.Username,
		Password:     password,
		DisableRetry: true,
	}
	if options.transport != nil {
		esCfg.Transport = options.transport
	}

	client, err := elasticsearch.NewClient(esCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create store client: %w", err)
	}

	store := &Store{client: client}

	// Verify connectivity
	ctx, cancel := context.WithTimeout(context.Background(), defaultPingTimeout)
	defer cancel()
	if err := store.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping document store: %w", err)
	}

	slog.Info("Document store connection established", "addresses", cfg.Addresses)

	return store, nil
}

// doer is the shape shared by every esapi request struct.
type doer interface {
	Do(ctx context.Context, transport esapi.Transport) (*esapi.Response, error)
}

// do executes a store request and returns the response body. Transport faults
// and error statuses come back as a *docstore.Error wrapping the matching
// sentinel; for error statuses the body is still returned so callers can
// inspect responses like a get miss.
func (s *Store) do(ctx context.Context, op, index, docID string, req doer) ([]byte, error) {
	res, err := req.Do(ctx, s.client)
	if err != nil {
		return nil, &docstore.Error{Op: op, Index: index, DocID: docID, Err: mapTransportError(err)}
	}
	defer res.Body.Close()

	body, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, &docstore.Error{
			Op: op, Index: index, DocID: docID,
			Err: fmt.Errorf("%w: reading response body: %v", docstore.ErrUnavailable, err),
		}
	}

	if res.IsError() {
		return body, &docstore.Error{Op: op, Index: index, DocID: docID, Err: mapStatusError(res.StatusCode, body)}
	}

	return body, nil
}

// Get implements docstore.Store.Get. A missing document or missing index is
// reported as not found, never as an error.
func (s *Store) Get(ctx context.Context, index, id string) (docstore.GetResult, error) {
	body, err := s.do(ctx, "get", index, id, esapi.GetRequest{Index: index, DocumentID: id})
	if err != nil {
		if docstore.IsNotFound(err) {
			return docstore.GetResult{}, nil
		}
		return docstore.GetResult{}, err
	}

	if !gjson.GetBytes(body, "found").Bool() {
		return docstore.GetResult{}, nil
	}

	return docstore.GetResult{Found: true, Document: asDocument(gjson.GetBytes(body, "_source"))}, nil
}

// Create implements docstore.Store.Create. The index API is used for both
// writes; the acknowledgment tells the caller what actually happened.
func (s *Store) Create(ctx context.Context, index, id string, doc docstore.Document) (docstore.Ack, error) {
	return s.index(ctx, "create", index, id, doc)
}

// Update implements docstore.Store.Update. The full body replaces the stored
// document.
func (s *Store) Update(ctx context.Context, index, id string, doc docstore.Document) (docstore.Ack, error) {
	return s.index(ctx, "update", index, id, doc)
}

func (s *Store) index(ctx context.Context, op, index, id string, doc docstore.Document) (docstore.Ack, error) {
	payload, err := json.Marshal(doc)
	if err != nil {
		return "", &docstore.Error{
			Op: op, Index: index, DocID: id,
			Err: fmt.Errorf("%w: encoding document: %v", docstore.ErrInvalidRequest, err),
		}
	}

	req := esapi.IndexRequest{
		Index:      index,
		DocumentID: id,
		Body:       bytes.NewReader(payload),
	}

	body, err := s.do(ctx, op, index, id, req)
	if err != nil {
		return "", err
	}

	return docstore.Ack(gjson.GetBytes(body, "result").String()), nil
}

// MultiGet implements docstore.Store.MultiGet. Entries the store reports an
// error for are omitted from the result.
func (s *Store) MultiGet(ctx context.Context, index string, ids []string) ([]docstore.Lookup, error) {
	payload, err := json.Marshal(map[string]any{"ids": ids})
	if err != nil {
		return nil, &docstore.Error{
			Op: "multi_get", Index: index,
			Err: fmt.Errorf("%w: encoding request: %v", docstore.ErrInvalidRequest, err),
		}
	}

	req := esapi.MgetRequest{Index: index, Body: bytes.NewReader(payload)}

	body, err := s.do(ctx, "multi_get", index, "", req)
	if err != nil {
		return nil, err
	}

	docs := gjson.GetBytes(body, "docs").Array()
	lookups := make([]docstore.Lookup, 0, len(docs))
	for _, doc := range docs {
		if doc.Get("error").Exists() {
			continue
		}
		lookups = append(lookups, docstore.Lookup{
			ID:    doc.Get("_id").String(),
			Found: doc.Get("found").Bool(),
		})
	}

	return lookups, nil
}

// Search implements docstore.Store.Search. A missing index yields no hits.
func (s *Store) Search(ctx context.Context, index string, q docstore.Query) ([]docstore.Hit, error) {
	order := "asc"
	if q.SortDesc {
		order = "desc"
	}

	// unmapped_type keeps the query from failing with a 400 before the sort
	// field has been mapped, which is the state of a freshly created index.
	query := map[string]any{
		"sort": []any{
			map[string]any{
				q.SortField: map[string]any{"order": order, "unmapped_type": "keyword"},
			},
		},
	}
	if q.Size > 0 {
		query["size"] = q.Size
	}
	if len(q.SourceFields) > 0 {
		query["_source"] = q.SourceFields
	}

	payload, err := json.Marshal(query)
	if err != nil {
		return nil, &docstore.Error{
			Op: "search", Index: index,
			Err: fmt.Errorf("%w: encoding request: %v", docstore.ErrInvalidRequest, err),
		}
	}

	req := esapi.SearchRequest{Index: []string{index}, Body: bytes.NewReader(payload)}

	body, err := s.do(ctx, "search", index, "", req)
	if err != nil {
		if docstore.IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}

	results := gjson.GetBytes(body, "hits.hits").Array()
	hits := make([]docstore.Hit, 0, len(results))
	for _, result := range results {
		hits = append(hits, docstore.Hit{
			ID:     result.Get("_id").String(),
			Source: asDocument(result.Get("_source")),
		})
	}

	return hits, nil
}

// Delete implements docstore.Store.Delete. Deleting an absent document or from
// an absent index still reports the document gone.
func (s *Store) Delete(ctx context.Context, index, id string) (bool, error) {
	_, err := s.do(ctx, "delete", index, id, esapi.DeleteRequest{Index: index, DocumentID: id})
	if err != nil {
		if docstore.IsNotFound(err) {
			return true, nil
		}
		return false, err
	}
	return true, nil
}

// Count implements docstore.Store.Count. A missing index counts zero
// documents.
func (s *Store) Count(ctx context.Context, index, field, value string) (int64, error) {
	query := map[string]any{
		"query": map[string]any{
			"term": map[string]any{
				field: map[string]any{"value": value},
			},
		},
	}

	payload, err := json.Marshal(query)
	if err != nil {
		return 0, &docstore.Error{
			Op: "count", Index: index,
			Err: fmt.Errorf("%w: encoding request: %v", docstore.ErrInvalidRequest, err),
		}
	}

	req := esapi.CountRequest{Index: []string{index}, Body: bytes.NewReader(payload)}

	body, err := s.do(ctx, "count", index, "", req)
	if err != nil {
		if docstore.IsNotFound(err) {
			return 0, nil
		}
		return 0, err
	}

	return gjson.GetBytes(body, "count").Int(), nil
}

// EnsureIndex implements docstore.Store.EnsureIndex.
func (s *Store) EnsureIndex(ctx context.Context, index string, settings io.Reader) (bool, error) {
	existsReq := esapi.IndicesExistsRequest{Index: []string{index}}
	body, err := s.do(ctx, "ensure_index", index, "", existsReq)
	if err == nil {
		return false, nil
	}
	if !docstore.IsNotFound(err) {
		return false, err
	}

	createReq := esapi.IndicesCreateRequest{Index: index, Body: settings}
	body, err = s.do(ctx, "ensure_index", index, "", createReq)
	if err != nil {
		// Another writer may have created the index between the two calls.
		if gjson.GetBytes(body, "error.type").String() == "resource_already_exists_exception" {
			return false, nil
		}
		return false, err
	}

	slog.InfoContext(ctx, "Created index", "index", index)

	return true, nil
}

// Ping implements docstore.Store.Ping.
func (s *Store) Ping(ctx context.Context) error {
	_, err := s.do(ctx, "ping", "", "", esapi.PingRequest{})
	return err
}

// asDocument converts a parsed source object into a Document. Values take the
// shapes produced by encoding/json, which is what the comparator expects.
func asDocument(r gjson.Result) docstore.Document {
	if !r.Exists() {
		return nil
	}
	if m, ok := r.Value().(map[string]any); ok {
		return docstore.Document(m)
	}
	return nil
}
