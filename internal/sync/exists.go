package sync

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel/trace"

	"github.com/datamast/essync/internal/docstore"
	"github.com/datamast/essync/internal/otel"
)

// BatchExists implements Engine.BatchExists.
//
// The failure policy here is deliberately asymmetric from the single-document
// path: only retryable faults propagate, so an outer layer can retry the whole
// batch. Every other fault degrades to an empty mapping, which callers read as
// "could not determine, check individually".
func (e *defaultEngine) BatchExists(ctx context.Context, index string, ids []string) (map[string]bool, error) {
	if len(ids) == 0 {
		return map[string]bool{}, nil
	}

	ctx, span := otel.StartSpan(ctx, e.tracer, "sync.batch_exists",
		trace.WithAttributes(
			otel.AttrIndexName.String(index),
			otel.AttrBatchSize.Int(len(ids)),
		))
	defer span.End()

	lookups, err := e.store.MultiGet(ctx, index, ids)
	if err != nil {
		otel.RecordError(span, err)
		if docstore.IsRetryable(err) {
			slog.WarnContext(ctx, "Batch existence check failed",
				"index", index, "batchSize", len(ids), "error", err)
			return nil, err
		}
		slog.ErrorContext(ctx, "Batch existence check degraded to empty result",
			"index", index, "batchSize", len(ids),
			"class", docstore.Classify(err).String(), "error", err)
		return map[string]bool{}, nil
	}

	// Build the result strictly from the entries the store answered for. An
	// identity missing from the response stays missing from the result; its
	// status is indeterminate, not false.
	exists := make(map[string]bool, len(lookups))
	for _, lookup := range lookups {
		exists[lookup.ID] = lookup.Found
	}

	span.SetAttributes(otel.AttrResultCount.Int(len(exists)))

	return exists, nil
}
