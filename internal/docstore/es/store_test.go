package es

import (
	"context"
	"encoding/base64"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/datamast/essync/internal/config"
	"github.com/datamast/essync/internal/docstore"
)

// roundTripperFunc adapts a function to http.RoundTripper.
type roundTripperFunc func(*http.Request) (*http.Response, error)

func (f roundTripperFunc) RoundTrip(r *http.Request) (*http.Response, error) {
	return f(r)
}

// jsonResponse builds a canned store response. The product header is required
// by the client's compatibility check.
func jsonResponse(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Header: http.Header{
			"X-Elastic-Product": []string{"Elasticsearch"},
			"Content-Type":      []string{"application/json"},
		},
		Body: io.NopCloser(strings.NewReader(body)),
	}
}

// newTestStore builds a store whose transport answers the construction-time
// ping itself and hands everything else to the test handler.
func newTestStore(t *testing.T, handler func(*http.Request) (*http.Response, error)) *Store {
	t.Helper()

	store, err := New(
		&config.StoreConfig{Addresses: []string{"http://store.test:9200"}},
		WithTransport(roundTripperFunc(func(r *http.Request) (*http.Response, error) {
			if r.Method == http.MethodHead && r.URL.Path == "/" {
				return jsonResponse(http.StatusOK, ""), nil
			}
			return handler(r)
		})),
	)
	require.NoError(t, err)
	return store
}

func readBody(t *testing.T, r *http.Request) string {
	t.Helper()
	body, err := io.ReadAll(r.Body)
	require.NoError(t, err)
	return string(body)
}

func TestNew(t *testing.T) {
	t.Parallel()

	t.Run("nil config is rejected", func(t *testing.T) {
		t.Parallel()
		_, err := New(nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "configuration is required")
	})

	t.Run("empty addresses are rejected", func(t *testing.T) {
		t.Parallel()
		_, err := New(&config.StoreConfig{})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "at least one store address")
	})

	t.Run("ping failure is surfaced", func(t *testing.T) {
		t.Parallel()
		_, err := New(
			&config.StoreConfig{Addresses: []string{"http://store.test:9200"}},
			WithTransport(roundTripperFunc(func(_ *http.Request) (*http.Response, error) {
				return jsonResponse(http.StatusServiceUnavailable, ""), nil
			})),
		)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to ping document store")
	})

	t.Run("credentials are sent as basic auth", func(t *testing.T) {
		t.Parallel()
		passwordFile := filepath.Join(t.TempDir(), "password")
		require.NoError(t, os.WriteFile(passwordFile, []byte("s3cret\n"), 0600))

		var authHeader string
		_, err := New(
			&config.StoreConfig{
				Addresses:    []string{"http://store.test:9200"},
				Username:     "essync",
				PasswordFile: passwordFile,
			},
			WithTransport(roundTripperFunc(func(r *http.Request) (*http.Response, error) {
				authHeader = r.Header.Get("Authorization")
				return jsonResponse(http.StatusOK, ""), nil
			})),
		)
		require.NoError(t, err)

		want := "Basic " + base64.StdEncoding.EncodeToString([]byte("essync:s3cret"))
		assert.Equal(t, want, authHeader)
	})
}

func TestGet(t *testing.T) {
	t.Parallel()

	t.Run("found document", func(t *testing.T) {
		t.Parallel()
		var gotPath, gotMethod string
		store := newTestStore(t, func(r *http.Request) (*http.Response, error) {
			gotPath = r.URL.Path
			gotMethod = r.Method
			return jsonResponse(http.StatusOK,
				`{"_index":"charts","_id":"42","found":true,"_source":{"id":42,"name":"nginx"}}`), nil
		})

		result, err := store.Get(context.Background(), "charts", "42")
		require.NoError(t, err)
		assert.Equal(t, "/charts/_doc/42", gotPath)
		assert.Equal(t, http.MethodGet, gotMethod)
		assert.True(t, result.Found)
		assert.Equal(t, docstore.Document{"id": float64(42), "name": "nginx"}, result.Document)
	})

	t.Run("missing document is not an error", func(t *testing.T) {
		t.Parallel()
		store := newTestStore(t, func(_ *http.Request) (*http.Response, error) {
			return jsonResponse(http.StatusNotFound, `{"_index":"charts","_id":"42","found":false}`), nil
		})

		result, err := store.Get(context.Background(), "charts", "42")
		require.NoError(t, err)
		assert.False(t, result.Found)
		assert.Nil(t, result.Document)
	})

	t.Run("missing index is not an error", func(t *testing.T) {
		t.Parallel()
		store := newTestStore(t, func(_ *http.Request) (*http.Response, error) {
			return jsonResponse(http.StatusNotFound,
				`{"error":{"type":"index_not_found_exception","reason":"no such index [charts]"},"status":404}`), nil
		})

		result, err := store.Get(context.Background(), "charts", "42")
		require.NoError(t, err)
		assert.False(t, result.Found)
	})

	t.Run("server failure is retryable", func(t *testing.T) {
		t.Parallel()
		store := newTestStore(t, func(_ *http.Request) (*http.Response, error) {
			return jsonResponse(http.StatusInternalServerError,
				`{"error":{"type":"server_error","reason":"boom"},"status":500}`), nil
		})

		_, err := store.Get(context.Background(), "charts", "42")
		require.Error(t, err)
		require.ErrorIs(t, err, docstore.ErrUnavailable)
		assert.True(t, docstore.IsRetryable(err))

		var storeErr *docstore.Error
		require.ErrorAs(t, err, &storeErr)
		assert.Equal(t, "get", storeErr.Op)
		assert.Equal(t, "charts", storeErr.Index)
		assert.Equal(t, "42", storeErr.DocID)
	})
}

func TestCreateAndUpdate(t *testing.T) {
	t.Parallel()

	t.Run("create reports the store acknowledgment", func(t *testing.T) {
		t.Parallel()
		var gotPath, gotMethod, gotBody string
		store := newTestStore(t, func(r *http.Request) (*http.Response, error) {
			gotPath = r.URL.Path
			gotMethod = r.Method
			gotBody = readBody(t, r)
			return jsonResponse(http.StatusCreated, `{"_id":"42","result":"created"}`), nil
		})

		ack, err := store.Create(context.Background(), "charts", "42", docstore.Document{"id": "42", "name": "nginx"})
		require.NoError(t, err)
		assert.Equal(t, docstore.AckCreated, ack)
		assert.Equal(t, "/charts/_doc/42", gotPath)
		assert.Equal(t, http.MethodPut, gotMethod)
		assert.JSONEq(t, `{"id":"42","name":"nginx"}`, gotBody)
	})

	t.Run("create of an existing document reports updated", func(t *testing.T) {
		t.Parallel()
		store := newTestStore(t, func(_ *http.Request) (*http.Response, error) {
			return jsonResponse(http.StatusOK, `{"_id":"42","result":"updated"}`), nil
		})

		ack, err := store.Create(context.Background(), "charts", "42", docstore.Document{"id": "42"})
		require.NoError(t, err)
		assert.Equal(t, docstore.AckUpdated, ack)
	})

	t.Run("update reports the store acknowledgment", func(t *testing.T) {
		t.Parallel()
		store := newTestStore(t, func(_ *http.Request) (*http.Response, error) {
			return jsonResponse(http.StatusOK, `{"_id":"42","result":"updated"}`), nil
		})

		ack, err := store.Update(context.Background(), "charts", "42", docstore.Document{"id": "42"})
		require.NoError(t, err)
		assert.Equal(t, docstore.AckUpdated, ack)
	})

	t.Run("version conflict is terminal", func(t *testing.T) {
		t.Parallel()
		store := newTestStore(t, func(_ *http.Request) (*http.Response, error) {
			return jsonResponse(http.StatusConflict,
				`{"error":{"type":"version_conflict_engine_exception","reason":"conflict"},"status":409}`), nil
		})

		_, err := store.Update(context.Background(), "charts", "42", docstore.Document{"id": "42"})
		require.ErrorIs(t, err, docstore.ErrConflict)
		assert.True(t, docstore.IsTerminal(err))
	})

	t.Run("malformed document is terminal", func(t *testing.T) {
		t.Parallel()
		store := newTestStore(t, func(_ *http.Request) (*http.Response, error) {
			return jsonResponse(http.StatusBadRequest,
				`{"error":{"type":"mapper_parsing_exception","reason":"failed to parse"},"status":400}`), nil
		})

		_, err := store.Create(context.Background(), "charts", "42", docstore.Document{"id": "42", "size": "huge"})
		require.ErrorIs(t, err, docstore.ErrInvalidRequest)
		assert.True(t, docstore.IsTerminal(err))

		var storeErr *docstore.Error
		require.ErrorAs(t, err, &storeErr)
		assert.Equal(t, "create", storeErr.Op)
	})
}

func TestMultiGet(t *testing.T) {
	t.Parallel()

	t.Run("reports per identity existence", func(t *testing.T) {
		t.Parallel()
		var gotPath, gotBody string
		store := newTestStore(t, func(r *http.Request) (*http.Response, error) {
			gotPath = r.URL.Path
			gotBody = readBody(t, r)
			return jsonResponse(http.StatusOK,
				`{"docs":[{"_id":"1","found":true},{"_id":"2","found":false},{"_id":"3","found":true}]}`), nil
		})

		lookups, err := store.MultiGet(context.Background(), "charts", []string{"1", "2", "3"})
		require.NoError(t, err)
		assert.Equal(t, "/charts/_mget", gotPath)
		assert.JSONEq(t, `{"ids":["1","2","3"]}`, gotBody)
		assert.Equal(t, []docstore.Lookup{
			{ID: "1", Found: true},
			{ID: "2", Found: false},
			{ID: "3", Found: true},
		}, lookups)
	})

	t.Run("entries with errors are omitted", func(t *testing.T) {
		t.Parallel()
		store := newTestStore(t, func(_ *http.Request) (*http.Response, error) {
			return jsonResponse(http.StatusOK,
				`{"docs":[{"_id":"1","found":true},{"_id":"2","error":{"type":"routing_missing_exception"}}]}`), nil
		})

		lookups, err := store.MultiGet(context.Background(), "charts", []string{"1", "2"})
		require.NoError(t, err)
		assert.Equal(t, []docstore.Lookup{{ID: "1", Found: true}}, lookups)
	})

	t.Run("store failure is surfaced", func(t *testing.T) {
		t.Parallel()
		store := newTestStore(t, func(_ *http.Request) (*http.Response, error) {
			return jsonResponse(http.StatusServiceUnavailable,
				`{"error":{"type":"unavailable_shards_exception","reason":"primary not active"},"status":503}`), nil
		})

		_, err := store.MultiGet(context.Background(), "charts", []string{"1"})
		require.ErrorIs(t, err, docstore.ErrUnavailable)
	})
}

func TestSearch(t *testing.T) {
	t.Parallel()

	t.Run("builds a sorted size limited query", func(t *testing.T) {
		t.Parallel()
		var gotPath, gotBody string
		store := newTestStore(t, func(r *http.Request) (*http.Response, error) {
			gotPath = r.URL.Path
			gotBody = readBody(t, r)
			return jsonResponse(http.StatusOK,
				`{"hits":{"hits":[{"_id":"42","_source":{"id":42,"updated_at":"2025-06-01T00:00:00Z"}}]}}`), nil
		})

		hits, err := store.Search(context.Background(), "charts", docstore.Query{
			SortField:    "id",
			SortDesc:     true,
			Size:         1,
			SourceFields: []string{"id", "updated_at"},
		})
		require.NoError(t, err)
		assert.Equal(t, "/charts/_search", gotPath)
		assert.JSONEq(t, `{
			"size": 1,
			"sort": [{"id": {"order": "desc", "unmapped_type": "keyword"}}],
			"_source": ["id", "updated_at"]
		}`, gotBody)

		require.Len(t, hits, 1)
		assert.Equal(t, "42", hits[0].ID)
		assert.Equal(t, docstore.Document{"id": float64(42), "updated_at": "2025-06-01T00:00:00Z"}, hits[0].Source)
	})

	t.Run("ascending order by default", func(t *testing.T) {
		t.Parallel()
		var gotBody string
		store := newTestStore(t, func(r *http.Request) (*http.Response, error) {
			gotBody = readBody(t, r)
			return jsonResponse(http.StatusOK, `{"hits":{"hits":[]}}`), nil
		})

		_, err := store.Search(context.Background(), "charts", docstore.Query{SortField: "id", Size: 1})
		require.NoError(t, err)
		assert.Contains(t, gotBody, `"order":"asc"`)
	})

	t.Run("missing index yields no hits", func(t *testing.T) {
		t.Parallel()
		store := newTestStore(t, func(_ *http.Request) (*http.Response, error) {
			return jsonResponse(http.StatusNotFound,
				`{"error":{"type":"index_not_found_exception","reason":"no such index [charts]"},"status":404}`), nil
		})

		hits, err := store.Search(context.Background(), "charts", docstore.Query{SortField: "id", Size: 1})
		require.NoError(t, err)
		assert.Empty(t, hits)
	})

	t.Run("malformed query is terminal", func(t *testing.T) {
		t.Parallel()
		store := newTestStore(t, func(_ *http.Request) (*http.Response, error) {
			return jsonResponse(http.StatusBadRequest,
				`{"error":{"type":"search_phase_execution_exception","reason":"all shards failed"},"status":400}`), nil
		})

		_, err := store.Search(context.Background(), "charts", docstore.Query{SortField: "id", Size: 1})
		require.ErrorIs(t, err, docstore.ErrInvalidRequest)
	})
}

func TestDelete(t *testing.T) {
	t.Parallel()

	t.Run("deleted document", func(t *testing.T) {
		t.Parallel()
		var gotPath, gotMethod string
		store := newTestStore(t, func(r *http.Request) (*http.Response, error) {
			gotPath = r.URL.Path
			gotMethod = r.Method
			return jsonResponse(http.StatusOK, `{"_id":"42","result":"deleted"}`), nil
		})

		gone, err := store.Delete(context.Background(), "charts", "42")
		require.NoError(t, err)
		assert.True(t, gone)
		assert.Equal(t, "/charts/_doc/42", gotPath)
		assert.Equal(t, http.MethodDelete, gotMethod)
	})

	t.Run("already absent still reports gone", func(t *testing.T) {
		t.Parallel()
		store := newTestStore(t, func(_ *http.Request) (*http.Response, error) {
			return jsonResponse(http.StatusNotFound, `{"_id":"42","result":"not_found"}`), nil
		})

		gone, err := store.Delete(context.Background(), "charts", "42")
		require.NoError(t, err)
		assert.True(t, gone)
	})

	t.Run("store failure is surfaced", func(t *testing.T) {
		t.Parallel()
		store := newTestStore(t, func(_ *http.Request) (*http.Response, error) {
			return jsonResponse(http.StatusServiceUnavailable, `{"status":503}`), nil
		})

		gone, err := store.Delete(context.Background(), "charts", "42")
		require.ErrorIs(t, err, docstore.ErrUnavailable)
		assert.False(t, gone)
	})
}

func TestCount(t *testing.T) {
	t.Parallel()

	t.Run("counts exact matches", func(t *testing.T) {
		t.Parallel()
		var gotPath, gotBody string
		store := newTestStore(t, func(r *http.Request) (*http.Response, error) {
			gotPath = r.URL.Path
			gotBody = readBody(t, r)
			return jsonResponse(http.StatusOK, `{"count":42}`), nil
		})

		n, err := store.Count(context.Background(), "charts", "status", "published")
		require.NoError(t, err)
		assert.Equal(t, int64(42), n)
		assert.Equal(t, "/charts/_count", gotPath)
		assert.JSONEq(t, `{"query":{"term":{"status":{"value":"published"}}}}`, gotBody)
	})

	t.Run("missing index counts zero", func(t *testing.T) {
		t.Parallel()
		store := newTestStore(t, func(_ *http.Request) (*http.Response, error) {
			return jsonResponse(http.StatusNotFound,
				`{"error":{"type":"index_not_found_exception","reason":"no such index [charts]"},"status":404}`), nil
		})

		n, err := store.Count(context.Background(), "charts", "status", "published")
		require.NoError(t, err)
		assert.Zero(t, n)
	})
}

func TestEnsureIndex(t *testing.T) {
	t.Parallel()

	t.Run("existing index is left alone", func(t *testing.T) {
		t.Parallel()
		var createCalled bool
		store := newTestStore(t, func(r *http.Request) (*http.Response, error) {
			if r.Method == http.MethodHead {
				return jsonResponse(http.StatusOK, ""), nil
			}
			createCalled = true
			return jsonResponse(http.StatusOK, `{"acknowledged":true}`), nil
		})

		created, err := store.EnsureIndex(context.Background(), "charts", nil)
		require.NoError(t, err)
		assert.False(t, created)
		assert.False(t, createCalled)
	})

	t.Run("missing index is created with settings", func(t *testing.T) {
		t.Parallel()
		var gotMethod, gotPath, gotBody string
		store := newTestStore(t, func(r *http.Request) (*http.Response, error) {
			if r.Method == http.MethodHead {
				return jsonResponse(http.StatusNotFound, ""), nil
			}
			gotMethod = r.Method
			gotPath = r.URL.Path
			gotBody = readBody(t, r)
			return jsonResponse(http.StatusOK, `{"acknowledged":true,"index":"charts"}`), nil
		})

		settings := strings.NewReader(`{"mappings":{"properties":{"id":{"type":"long"}}}}`)
		created, err := store.EnsureIndex(context.Background(), "charts", settings)
		require.NoError(t, err)
		assert.True(t, created)
		assert.Equal(t, http.MethodPut, gotMethod)
		assert.Equal(t, "/charts", gotPath)
		assert.JSONEq(t, `{"mappings":{"properties":{"id":{"type":"long"}}}}`, gotBody)
	})

	t.Run("creation race reports not created", func(t *testing.T) {
		t.Parallel()
		store := newTestStore(t, func(r *http.Request) (*http.Response, error) {
			if r.Method == http.MethodHead {
				return jsonResponse(http.StatusNotFound, ""), nil
			}
			return jsonResponse(http.StatusBadRequest,
				`{"error":{"type":"resource_already_exists_exception","reason":"index [charts] already exists"},"status":400}`), nil
		})

		created, err := store.EnsureIndex(context.Background(), "charts", nil)
		require.NoError(t, err)
		assert.False(t, created)
	})

	t.Run("creation failure is surfaced", func(t *testing.T) {
		t.Parallel()
		store := newTestStore(t, func(r *http.Request) (*http.Response, error) {
			if r.Method == http.MethodHead {
				return jsonResponse(http.StatusNotFound, ""), nil
			}
			return jsonResponse(http.StatusServiceUnavailable,
				`{"error":{"type":"unavailable_shards_exception","reason":"not ready"},"status":503}`), nil
		})

		_, err := store.EnsureIndex(context.Background(), "charts", nil)
		require.ErrorIs(t, err, docstore.ErrUnavailable)
	})
}

func TestPing(t *testing.T) {
	t.Parallel()

	t.Run("healthy cluster", func(t *testing.T) {
		t.Parallel()
		store := newTestStore(t, func(_ *http.Request) (*http.Response, error) {
			return jsonResponse(http.StatusOK, ""), nil
		})

		require.NoError(t, store.Ping(context.Background()))
	})

	t.Run("unreachable cluster is retryable", func(t *testing.T) {
		t.Parallel()
		// The transport answers the construction ping, then fails.
		var calls int
		store, err := New(
			&config.StoreConfig{Addresses: []string{"http://store.test:9200"}},
			WithTransport(roundTripperFunc(func(_ *http.Request) (*http.Response, error) {
				calls++
				if calls == 1 {
					return jsonResponse(http.StatusOK, ""), nil
				}
				return nil, assert.AnError
			})),
		)
		require.NoError(t, err)

		err = store.Ping(context.Background())
		require.ErrorIs(t, err, docstore.ErrUnavailable)
		assert.True(t, docstore.IsRetryable(err))
	})
}
