package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/datamast/essync/internal/docstore"
	"github.com/datamast/essync/internal/docstore/inmemory"
	"github.com/datamast/essync/internal/docstore/mocks"
	pkgsync "github.com/datamast/essync/internal/sync"
)

func newTestServer(t *testing.T, store docstore.Store) http.Handler {
	t.Helper()
	engine := pkgsync.NewEngine(store)
	return NewServer(engine, store, WithMiddlewares(middleware.RequestID, LoggingMiddleware))
}

func doRequest(t *testing.T, handler http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestGetHealth(t *testing.T) {
	t.Parallel()

	handler := newTestServer(t, inmemory.New())
	rec := doRequest(t, handler, "/health")

	require.Equal(t, http.StatusOK, rec.Code)

	var resp HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
}

func TestGetHealthStoreUnavailable(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	store := mocks.NewMockStore(ctrl)
	store.EXPECT().Ping(gomock.Any()).
		Return(&docstore.Error{Op: "ping", Err: docstore.ErrUnavailable})

	handler := newTestServer(t, store)
	rec := doRequest(t, handler, "/health")

	require.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var resp HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "unavailable", resp.Status)
}

func TestGetVersion(t *testing.T) {
	t.Parallel()

	handler := newTestServer(t, inmemory.New())
	rec := doRequest(t, handler, "/version")

	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Contains(t, resp, "version")
	assert.Contains(t, resp, "go_version")
}

func TestGetIndexStatus(t *testing.T) {
	t.Parallel()

	store := inmemory.New(inmemory.WithDocuments("charts",
		docstore.Document{"id": int64(7), "updated_at": "2026-08-01"},
		docstore.Document{"id": int64(3), "updated_at": "2026-08-20"},
	))

	handler := newTestServer(t, store)
	rec := doRequest(t, handler, "/v1/indexes/charts/status?latestField=updated_at")

	require.Equal(t, http.StatusOK, rec.Code)

	var resp IndexStatusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "charts", resp.Index)
	// The two cursors come from two different documents.
	assert.Equal(t, int64(7), resp.LargestID)
	assert.Equal(t, "2026-08-20", resp.LatestValue)
	assert.True(t, resp.HasLatest)
}

func TestGetIndexStatusEmptyIndex(t *testing.T) {
	t.Parallel()

	handler := newTestServer(t, inmemory.New())
	rec := doRequest(t, handler, "/v1/indexes/charts/status")

	require.Equal(t, http.StatusOK, rec.Code)

	var resp IndexStatusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Zero(t, resp.LargestID)
	assert.False(t, resp.HasLatest)
}

func TestGetIndexStatusRetryableFault(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	store := mocks.NewMockStore(ctrl)
	store.EXPECT().Search(gomock.Any(), "charts", gomock.Any()).
		Return(nil, &docstore.Error{Op: "search", Index: "charts", Err: docstore.ErrTimeout})

	handler := newTestServer(t, store)
	rec := doRequest(t, handler, "/v1/indexes/charts/status")

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestGetBatchExists(t *testing.T) {
	t.Parallel()

	store := inmemory.New(inmemory.WithDocuments("charts",
		docstore.Document{"id": "a", "name": "alpha"},
	))

	handler := newTestServer(t, store)
	rec := doRequest(t, handler, "/v1/indexes/charts/exists?ids=a,b")

	require.Equal(t, http.StatusOK, rec.Code)

	var resp BatchExistsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, map[string]bool{"a": true, "b": false}, resp.Exists)
}

func TestGetBatchExistsRequiresIDs(t *testing.T) {
	t.Parallel()

	handler := newTestServer(t, inmemory.New())
	rec := doRequest(t, handler, "/v1/indexes/charts/exists")

	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(t, handler, "/v1/indexes/charts/exists?ids=,%20,")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSplitIDs(t *testing.T) {
	t.Parallel()

	assert.Nil(t, splitIDs(""))
	assert.Equal(t, []string{"a", "b"}, splitIDs("a, b,"))
}
