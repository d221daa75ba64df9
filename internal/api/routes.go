package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/datamast/essync/internal/docstore"
	pkgsync "github.com/datamast/essync/internal/sync"
	"github.com/datamast/essync/internal/versions"
)

// maxBatchExistsIDs bounds one existence request to keep the multi-get body
// within what the store accepts.
const maxBatchExistsIDs = 1000

// routes holds the handlers' collaborators.
type routes struct {
	engine pkgsync.Engine
	store  docstore.Store
}

func newRoutes(engine pkgsync.Engine, store docstore.Store) *routes {
	return &routes{engine: engine, store: store}
}

// getHealth handles GET /health. It reports healthy only when the store
// answers a ping.
func (rt *routes) getHealth(w http.ResponseWriter, r *http.Request) {
	if err := rt.store.Ping(r.Context()); err != nil {
		slog.WarnContext(r.Context(), "Health check failed", "error", err)
		rt.writeJSON(w, http.StatusServiceUnavailable, HealthResponse{Status: "unavailable"})
		return
	}

	rt.writeJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
}

// getVersion handles GET /version.
func (rt *routes) getVersion(w http.ResponseWriter, _ *http.Request) {
	rt.writeJSON(w, http.StatusOK, versions.GetVersionInfo())
}

// getIndexStatus handles GET /v1/indexes/{index}/status. The optional
// latestField query selects the field the value cursor reads.
func (rt *routes) getIndexStatus(w http.ResponseWriter, r *http.Request) {
	index := chi.URLParam(r, "index")
	latestField := r.URL.Query().Get("latestField")

	state, err := rt.engine.IndexState(r.Context(), index, latestField)
	if err != nil {
		slog.ErrorContext(r.Context(), "Failed to resolve index state", "index", index, "error", err)
		rt.writeError(w, "failed to resolve index state", rt.statusForFault(err))
		return
	}

	rt.writeJSON(w, http.StatusOK, IndexStatusResponse{
		Index:       index,
		LargestID:   state.LargestID,
		LatestValue: state.LatestValue,
		LatestField: latestField,
		HasLatest:   state.HasLatestValue,
	})
}

// getBatchExists handles GET /v1/indexes/{index}/exists?ids=a,b,c.
func (rt *routes) getBatchExists(w http.ResponseWriter, r *http.Request) {
	index := chi.URLParam(r, "index")

	ids := splitIDs(r.URL.Query().Get("ids"))
	if len(ids) == 0 {
		rt.writeError(w, "at least one id is required", http.StatusBadRequest)
		return
	}
	if len(ids) > maxBatchExistsIDs {
		rt.writeError(w, "too many ids in one request", http.StatusBadRequest)
		return
	}

	exists, err := rt.engine.BatchExists(r.Context(), index, ids)
	if err != nil {
		slog.WarnContext(r.Context(), "Batch existence check failed", "index", index, "error", err)
		rt.writeError(w, "failed to check existence", rt.statusForFault(err))
		return
	}

	rt.writeJSON(w, http.StatusOK, BatchExistsResponse{Index: index, Exists: exists})
}

// statusForFault maps a store fault class to the HTTP status reported to the
// admin caller.
func (*routes) statusForFault(err error) int {
	if docstore.IsRetryable(err) {
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func splitIDs(raw string) []string {
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	ids := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			ids = append(ids, p)
		}
	}
	return ids
}

func (rt *routes) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

func (rt *routes) writeError(w http.ResponseWriter, msg string, status int) {
	rt.writeJSON(w, status, ErrorResponse{Error: msg})
}
