// Package reconcile runs the outer loop around the sync engine: fetch
// canonical documents from a source, sync each one into the store, retry the
// ones that failed with retryable faults, and checkpoint the identity cursor
// so the next run starts where this one left off. The engine itself never
// retries; this package owns the whole retry/backoff policy.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	stdsync "sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/datamast/essync/internal/docstore"
	"github.com/datamast/essync/internal/otel"
	pkgsync "github.com/datamast/essync/internal/sync"
	"github.com/datamast/essync/internal/source"
	"github.com/datamast/essync/internal/telemetry"
)

const (
	defaultConcurrency = 4
	defaultMaxAttempts = 5
)

// Config holds the settings for a reconcile run.
type Config struct {
	// Index is the store index reconciled into.
	Index string

	// LatestField is the document field the latest-value cursor reads.
	// Empty disables that cursor.
	LatestField string

	// Concurrency bounds how many documents sync in parallel.
	Concurrency int

	// MaxAttempts is the per-document attempt budget for retryable store
	// faults.
	MaxAttempts int
}

// Report summarizes one reconcile run. The counts partition the fetched
// documents: every document lands in exactly one bucket.
type Report struct {
	RunID     string
	SinceID   int64
	Fetched   int
	Created   int
	Updated   int
	Unchanged int

	// Failed counts documents the engine reported as failed: rejected by
	// the store, missing an identity, or acknowledged unexpectedly.
	Failed int

	// Skipped counts documents abandoned after the retry budget was spent
	// on retryable faults. They remain eligible for the next run.
	Skipped int

	Duration time.Duration
}

// Runner drives one reconcile pass from a canonical source into a store
// index.
type Runner struct {
	engine   pkgsync.Engine
	provider source.Provider
	cfg      Config

	checkpoints *CheckpointStore
	metrics     *telemetry.ReconcileMetrics
	tracer      trace.Tracer

	// newBackOff builds the per-document retry schedule. Tests shrink the
	// intervals through this hook.
	newBackOff func() backoff.BackOff
}

// Option configures the runner.
type Option func(*Runner)

// WithCheckpoints persists the identity cursor between runs through the given
// store.
func WithCheckpoints(store *CheckpointStore) Option {
	return func(r *Runner) {
		r.checkpoints = store
	}
}

// WithMetrics records per-run metrics on the given instruments.
func WithMetrics(metrics *telemetry.ReconcileMetrics) Option {
	return func(r *Runner) {
		r.metrics = metrics
	}
}

// WithTracer emits a span per run through the given tracer.
func WithTracer(tracer trace.Tracer) Option {
	return func(r *Runner) {
		r.tracer = tracer
	}
}

// NewRunner creates a runner syncing documents from the provider into the
// configured index.
func NewRunner(engine pkgsync.Engine, provider source.Provider, cfg Config, opts ...Option) (*Runner, error) {
	if engine == nil {
		return nil, fmt.Errorf("engine is required")
	}
	if provider == nil {
		return nil, fmt.Errorf("source provider is required")
	}
	if cfg.Index == "" {
		return nil, fmt.Errorf("index is required")
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = defaultConcurrency
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = defaultMaxAttempts
	}

	r := &Runner{
		engine:   engine,
		provider: provider,
		cfg:      cfg,
		newBackOff: func() backoff.BackOff {
			return backoff.NewExponentialBackOff()
		},
	}

	for _, opt := range opts {
		opt(r)
	}

	return r, nil
}

// Run executes one reconcile pass. The returned error joins every fault that
// propagated out of individual documents; the report is valid either way and
// covers the documents that were processed.
func (r *Runner) Run(ctx context.Context) (Report, error) {
	start := time.Now()
	runID := uuid.NewString()

	ctx, span := otel.StartSpan(ctx, r.tracer, "reconcile.run",
		trace.WithAttributes(
			otel.AttrRunID.String(runID),
			otel.AttrIndexName.String(r.cfg.Index),
		))
	defer span.End()

	report := Report{RunID: runID}

	sinceID, err := r.resolveCursor(ctx)
	if err != nil {
		otel.RecordError(span, err)
		r.metrics.RecordRun(ctx, r.cfg.Index, time.Since(start), false)
		return report, err
	}
	report.SinceID = sinceID

	slog.InfoContext(ctx, "Starting reconcile run",
		"runId", runID, "index", r.cfg.Index, "source", r.provider.Source(), "sinceId", sinceID)

	docs, err := r.provider.Fetch(ctx, sinceID)
	if err != nil {
		otel.RecordError(span, err)
		r.metrics.RecordRun(ctx, r.cfg.Index, time.Since(start), false)
		return report, fmt.Errorf("failed to fetch canonical documents: %w", err)
	}
	report.Fetched = len(docs)

	syncErr := r.syncAll(ctx, docs, &report)

	report.Duration = time.Since(start)
	r.finishRun(ctx, &report, syncErr)

	otel.RecordError(span, syncErr)
	r.metrics.RecordRun(ctx, r.cfg.Index, report.Duration, syncErr == nil)

	return report, syncErr
}

// resolveCursor determines the identity cursor the run starts from: the
// larger of the persisted checkpoint and the store's own largest identity.
// The store query keeps a stale or deleted checkpoint from re-syncing
// documents the index already holds.
func (r *Runner) resolveCursor(ctx context.Context) (int64, error) {
	largest, err := r.engine.LargestID(ctx, r.cfg.Index)
	if err != nil {
		return 0, fmt.Errorf("failed to resolve index cursor: %w", err)
	}

	if r.checkpoints != nil {
		cp, err := r.checkpoints.Load(ctx)
		if err != nil {
			slog.WarnContext(ctx, "Failed to load checkpoint, using index cursor only", "error", err)
		} else if cp != nil && cp.LargestID > largest {
			largest = cp.LargestID
		}
	}

	return largest, nil
}

// syncAll syncs every document with bounded concurrency, tallying outcomes
// into the report. One document's fault never stops the others; propagated
// errors are joined and returned after the whole batch has been attempted.
func (r *Runner) syncAll(ctx context.Context, docs []docstore.Document, report *Report) error {
	var (
		mu   stdsync.Mutex
		errs []error
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.cfg.Concurrency)

	for _, doc := range docs {
		g.Go(func() error {
			result, err := r.syncWithRetry(gctx, doc)

			mu.Lock()
			defer mu.Unlock()
			r.tally(report, result, err)
			if err != nil && !docstore.IsRetryable(err) {
				errs = append(errs, err)
			}
			// Returning the error here would cancel the sibling documents;
			// only context cancellation should do that.
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}

// syncWithRetry syncs one document, retrying with exponential backoff for as
// long as the fault stays retryable and the attempt budget lasts. Terminal
// and unexpected faults stop immediately.
func (r *Runner) syncWithRetry(ctx context.Context, doc docstore.Document) (pkgsync.Result, error) {
	operation := func() (pkgsync.Result, error) {
		result, err := r.engine.Sync(ctx, r.cfg.Index, doc)
		if err != nil && !docstore.IsRetryable(err) {
			return result, backoff.Permanent(err)
		}
		return result, err
	}

	return backoff.Retry(ctx, operation,
		backoff.WithBackOff(r.newBackOff()),
		backoff.WithMaxTries(uint(r.cfg.MaxAttempts)),
	)
}

// tally files one document's result into the report bucket it belongs to.
func (r *Runner) tally(report *Report, result pkgsync.Result, err error) {
	if err != nil {
		if docstore.IsRetryable(err) {
			report.Skipped++
		} else {
			report.Failed++
		}
		return
	}

	switch result.Outcome {
	case pkgsync.OutcomeCreated:
		report.Created++
	case pkgsync.OutcomeUpdated:
		report.Updated++
	case pkgsync.OutcomeUnchanged:
		report.Unchanged++
	default:
		report.Failed++
	}
}

// finishRun logs the run summary and advances the checkpoint. The cursor only
// moves when nothing propagated and nothing was skipped, so no document that
// might still succeed is ever left behind it. Terminal failures do not hold
// the cursor back; retrying them would fail identically.
func (r *Runner) finishRun(ctx context.Context, report *Report, syncErr error) {
	slog.InfoContext(ctx, "Reconcile run finished",
		"runId", report.RunID,
		"index", r.cfg.Index,
		"fetched", report.Fetched,
		"created", report.Created,
		"updated", report.Updated,
		"unchanged", report.Unchanged,
		"failed", report.Failed,
		"skipped", report.Skipped,
		"duration", report.Duration)

	if r.checkpoints == nil || syncErr != nil || report.Skipped > 0 {
		return
	}

	largest, err := r.engine.LargestID(ctx, r.cfg.Index)
	if err != nil {
		slog.WarnContext(ctx, "Failed to resolve cursor for checkpoint", "runId", report.RunID, "error", err)
		return
	}

	cp := &Checkpoint{
		RunID:       report.RunID,
		LargestID:   largest,
		CompletedAt: time.Now().UTC(),
	}
	if err := r.checkpoints.Save(ctx, cp); err != nil {
		slog.WarnContext(ctx, "Failed to save checkpoint",
			"runId", report.RunID, "largestId", largest, "error", err)
		return
	}

	slog.DebugContext(ctx, "Checkpoint saved", "runId", report.RunID, "largestId", largest)
}
