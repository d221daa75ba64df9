// Package sync implements the document synchronization engine: the diff-based
// upsert that converges a document-store index to canonical state with at most
// one write per document, plus the batch existence check and the cursor
// queries ingestion pipelines use to decide what to sync next.
package sync

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/datamast/essync/internal/doccmp"
	"github.com/datamast/essync/internal/docstore"
	"github.com/datamast/essync/internal/otel"
	"github.com/datamast/essync/internal/telemetry"
)

// Outcome is the result category of a single document synchronization.
type Outcome string

// Sync outcomes. Callers depend on the distinction between "no-op because
// already correct" and "write succeeded": ingestion counters are built on it.
const (
	OutcomeCreated   Outcome = "created"
	OutcomeUpdated   Outcome = "updated"
	OutcomeUnchanged Outcome = "unchanged"
	OutcomeFailed    Outcome = "failed"
)

// Failure reason constants
const (
	// ReasonMissingID marks documents rejected before any remote call
	// because they carry no usable identity.
	ReasonMissingID = "missing-document-id"

	// ReasonRejected marks documents the store refused with a terminal
	// fault. Reattempting the identical write would fail identically.
	ReasonRejected = "rejected-by-store"

	// ReasonUnexpectedAck marks writes the store acknowledged with a result
	// that is neither a create nor an update.
	ReasonUnexpectedAck = "unexpected-acknowledgment"
)

// Result contains the result of one sync operation.
type Result struct {
	Outcome Outcome
	DocID   string
	// Reason is set only for failed outcomes that did not propagate an
	// error.
	Reason string
}

// State carries the two ingestion cursors derived from an index. The values
// are independent: the document with the largest identity need not be the one
// holding the latest field value.
type State struct {
	LargestID      int64
	LatestValue    string
	HasLatestValue bool
}

// Engine synchronizes canonical documents into a document-store index
//
//go:generate mockgen -destination=mocks/mock_engine.go -package=mocks github.com/datamast/essync/internal/sync Engine
type Engine interface {
	// Sync converges the index to the candidate document, issuing at most
	// one write. Retryable and unexpected store faults propagate unmodified;
	// terminal faults come back as a failed Result with a nil error.
	Sync(ctx context.Context, index string, doc docstore.Document) (Result, error)

	// BatchExists resolves existence for many identities in one round trip.
	// Identities the store did not answer for are absent from the result,
	// not false.
	BatchExists(ctx context.Context, index string, ids []string) (map[string]bool, error)

	// LargestID returns the highest numeric document identity in the index,
	// or 0 when the index is empty or missing. A top document whose identity
	// is not numeric is reported as an error, not silently treated as 0.
	LargestID(ctx context.Context, index string) (int64, error)

	// LatestValue returns the given field's value from the document sorted
	// highest by that field. The boolean reports whether any value exists.
	LatestValue(ctx context.Context, index, field string) (string, bool, error)

	// IndexState runs both cursor queries. When latestField is empty only
	// the identity cursor is resolved.
	IndexState(ctx context.Context, index, latestField string) (State, error)
}

// Option configures the engine
type Option func(*defaultEngine)

// WithMetrics records per-document sync metrics on the given instruments.
func WithMetrics(metrics *telemetry.SyncMetrics) Option {
	return func(e *defaultEngine) {
		e.metrics = metrics
	}
}

// WithTracer emits a span per engine operation through the given tracer.
func WithTracer(tracer trace.Tracer) Option {
	return func(e *defaultEngine) {
		e.tracer = tracer
	}
}

// defaultEngine is the default implementation of Engine. It holds no mutable
// state between calls; all state lives in the store.
type defaultEngine struct {
	store   docstore.Store
	metrics *telemetry.SyncMetrics
	tracer  trace.Tracer
}

// NewEngine creates an Engine writing through the given store.
func NewEngine(store docstore.Store, opts ...Option) Engine {
	e := &defaultEngine{store: store}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Sync implements Engine.Sync.
func (e *defaultEngine) Sync(ctx context.Context, index string, doc docstore.Document) (Result, error) {
	start := time.Now()
	ctx, span := otel.StartSpan(ctx, e.tracer, "sync.document",
		trace.WithAttributes(otel.AttrIndexName.String(index)))
	defer span.End()

	result, err := e.sync(ctx, index, doc)

	if result.DocID != "" {
		span.SetAttributes(otel.AttrDocID.String(result.DocID))
	}
	span.SetAttributes(otel.AttrSyncOutcome.String(string(result.Outcome)))
	otel.RecordError(span, err)
	e.metrics.RecordSync(ctx, index, string(result.Outcome), time.Since(start))

	return result, err
}

func (e *defaultEngine) sync(ctx context.Context, index string, doc docstore.Document) (Result, error) {
	// A document without a usable identity fails fast, before any remote
	// call can cause a partial side effect.
	id, ok := docstore.CanonicalID(doc[docstore.IDField])
	if !ok {
		slog.WarnContext(ctx, "Rejected document without usable identity", "index", index)
		return Result{Outcome: OutcomeFailed, Reason: ReasonMissingID}, nil
	}

	existing, err := e.store.Get(ctx, index, id)
	if err != nil {
		if docstore.IsTerminal(err) {
			slog.ErrorContext(ctx, "Store rejected document lookup",
				"index", index, "docId", id, "error", err)
			return Result{Outcome: OutcomeFailed, DocID: id, Reason: ReasonRejected}, nil
		}
		logFault(ctx, "Document lookup failed", index, id, err)
		return Result{Outcome: OutcomeFailed, DocID: id}, err
	}

	if existing.Found && doccmp.Equal(doc, existing.Document) {
		slog.DebugContext(ctx, "Document already up to date", "index", index, "docId", id)
		return Result{Outcome: OutcomeUnchanged, DocID: id}, nil
	}

	return e.write(ctx, index, id, doc, existing.Found)
}

// write issues the single create or update and maps the store acknowledgment
// to an outcome. The candidate is always written as the full new body.
func (e *defaultEngine) write(
	ctx context.Context, index, id string, doc docstore.Document, exists bool,
) (Result, error) {
	var ack docstore.Ack
	var err error
	if exists {
		ack, err = e.store.Update(ctx, index, id, doc)
	} else {
		ack, err = e.store.Create(ctx, index, id, doc)
	}

	if err != nil {
		if docstore.IsTerminal(err) {
			slog.ErrorContext(ctx, "Store rejected document write",
				"index", index, "docId", id, "error", err)
			return Result{Outcome: OutcomeFailed, DocID: id, Reason: ReasonRejected}, nil
		}
		logFault(ctx, "Document write failed", index, id, err)
		return Result{Outcome: OutcomeFailed, DocID: id}, err
	}

	// A replace may be acknowledged as "created" when the document vanished
	// between the lookup and the write; the outcome is still an update from
	// the caller's point of view.
	if exists && (ack == docstore.AckUpdated || ack == docstore.AckCreated) {
		slog.InfoContext(ctx, "Document updated", "index", index, "docId", id)
		return Result{Outcome: OutcomeUpdated, DocID: id}, nil
	}
	if !exists && ack == docstore.AckCreated {
		slog.InfoContext(ctx, "Document created", "index", index, "docId", id)
		return Result{Outcome: OutcomeCreated, DocID: id}, nil
	}

	slog.ErrorContext(ctx, "Store acknowledged write with unexpected result",
		"index", index, "docId", id, "ack", string(ack))
	return Result{Outcome: OutcomeFailed, DocID: id, Reason: ReasonUnexpectedAck}, nil
}

// logFault logs a classified store fault at the level its class calls for:
// warning for retryable faults, error for everything else.
func logFault(ctx context.Context, msg, index, id string, err error) {
	args := []any{
		"index", index,
		"docId", id,
		"class", docstore.Classify(err).String(),
		"error", err,
	}
	if docstore.IsRetryable(err) {
		slog.WarnContext(ctx, msg, args...)
		return
	}
	slog.ErrorContext(ctx, msg, args...)
}
