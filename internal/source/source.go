// Package source provides access to the canonical documents the sync engine
// converges the store towards. A provider abstracts the backing system:
// local document files for small corpora, a PostgreSQL table for databases
// of record.
package source

import (
	"context"
	"fmt"
	"strconv"

	"github.com/datamast/essync/internal/config"
	"github.com/datamast/essync/internal/docstore"
)

//go:generate mockgen -destination=mocks/mock_provider.go -package=mocks -source=source.go Provider

// Provider abstracts the source of canonical documents.
type Provider interface {
	// Fetch returns canonical documents in a deterministic order. When
	// sinceID is positive, documents whose numeric identity is sinceID or
	// lower are skipped; documents with non-numeric identities are always
	// returned. A sinceID of zero or less fetches everything.
	Fetch(ctx context.Context, sinceID int64) ([]docstore.Document, error)

	// Source returns a descriptive string about where documents come from.
	// Examples: "file:/data/documents.json", "postgres:db.internal:5432/catalog/charts"
	Source() string

	// Close releases resources held by the provider.
	Close() error
}

// NewProvider creates the provider named by the source configuration.
func NewProvider(cfg *config.SourceConfig) (Provider, error) {
	if cfg == nil {
		return nil, fmt.Errorf("source configuration is required")
	}

	switch cfg.GetType() {
	case config.SourceTypeFile:
		return NewFileProvider(cfg.File)
	case config.SourceTypePostgres:
		return NewPostgresProvider(cfg.Postgres)
	default:
		return nil, fmt.Errorf("unsupported source type: %s", cfg.GetType())
	}
}

// filterSince drops documents whose numeric identity is at or below sinceID.
// Non-numeric identities pass through untouched; the sync path decides their
// fate.
func filterSince(docs []docstore.Document, sinceID int64) []docstore.Document {
	if sinceID <= 0 {
		return docs
	}

	out := make([]docstore.Document, 0, len(docs))
	for _, doc := range docs {
		if id, ok := numericID(doc[docstore.IDField]); ok && id <= sinceID {
			continue
		}
		out = append(out, doc)
	}
	return out
}

// numericID interprets a raw id value as a whole number via its canonical
// string form.
func numericID(v any) (int64, bool) {
	s, ok := docstore.CanonicalID(v)
	if !ok {
		return 0, false
	}
	n, err := strconv.ParseInt(s, 10, 64)
	return n, err == nil
}
