package reconcile

import (
	"context"
	"path/filepath"
	stdsync "sync"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/datamast/essync/internal/docstore"
	"github.com/datamast/essync/internal/docstore/inmemory"
	pkgsync "github.com/datamast/essync/internal/sync"
	"github.com/datamast/essync/internal/sync/mocks"
)

// stubProvider serves canned documents and records the cursor of every fetch.
type stubProvider struct {
	mu       stdsync.Mutex
	docs     []docstore.Document
	err      error
	sinceIDs []int64
}

func (p *stubProvider) Fetch(_ context.Context, sinceID int64) ([]docstore.Document, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sinceIDs = append(p.sinceIDs, sinceID)
	if p.err != nil {
		return nil, p.err
	}

	var out []docstore.Document
	for _, doc := range p.docs {
		if id, ok := doc["id"].(int64); ok && id <= sinceID {
			continue
		}
		out = append(out, doc.Clone())
	}
	return out, nil
}

func (*stubProvider) Source() string { return "stub:test" }

func (*stubProvider) Close() error { return nil }

func (p *stubProvider) fetchCursors() []int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]int64(nil), p.sinceIDs...)
}

// fastBackOff removes the retry delays so tests run immediately.
func fastBackOff(r *Runner) {
	r.newBackOff = func() backoff.BackOff {
		b := backoff.NewExponentialBackOff()
		b.InitialInterval = time.Millisecond
		b.MaxInterval = time.Millisecond
		return b
	}
}

func TestRunSyncsAllDocuments(t *testing.T) {
	t.Parallel()

	provider := &stubProvider{docs: []docstore.Document{
		{"id": int64(1), "name": "alpha"},
		{"id": int64(2), "name": "beta"},
		{"id": int64(3), "name": "gamma"},
	}}
	engine := pkgsync.NewEngine(inmemory.New())

	runner, err := NewRunner(engine, provider, Config{Index: "charts"})
	require.NoError(t, err)

	report, err := runner.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, report.Fetched)
	assert.Equal(t, 3, report.Created)
	assert.Zero(t, report.Failed)
	assert.NotEmpty(t, report.RunID)
	assert.Equal(t, []int64{0}, provider.fetchCursors())
}

func TestRunResumesFromStoreCursor(t *testing.T) {
	t.Parallel()

	provider := &stubProvider{docs: []docstore.Document{
		{"id": int64(1), "name": "alpha"},
		{"id": int64(2), "name": "beta"},
	}}
	engine := pkgsync.NewEngine(inmemory.New())

	runner, err := NewRunner(engine, provider, Config{Index: "charts"})
	require.NoError(t, err)
	ctx := context.Background()

	first, err := runner.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, first.Created)

	// The second run starts from the store's largest identity, so nothing
	// is re-fetched.
	second, err := runner.Run(ctx)
	require.NoError(t, err)
	assert.Zero(t, second.Fetched)
	assert.Equal(t, int64(2), second.SinceID)
	assert.Equal(t, []int64{0, 2}, provider.fetchCursors())
}

func TestRunRetriesRetryableFaults(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	engine := mocks.NewMockEngine(ctrl)
	doc := docstore.Document{"id": int64(1), "name": "alpha"}

	retryable := &docstore.Error{Op: "get", Index: "charts", DocID: "1", Err: docstore.ErrUnavailable}
	engine.EXPECT().LargestID(gomock.Any(), "charts").Return(int64(0), nil)
	gomock.InOrder(
		engine.EXPECT().Sync(gomock.Any(), "charts", gomock.Any()).
			Return(pkgsync.Result{Outcome: pkgsync.OutcomeFailed, DocID: "1"}, retryable).
			Times(2),
		engine.EXPECT().Sync(gomock.Any(), "charts", gomock.Any()).
			Return(pkgsync.Result{Outcome: pkgsync.OutcomeCreated, DocID: "1"}, nil),
	)

	runner, err := NewRunner(engine, &stubProvider{docs: []docstore.Document{doc}},
		Config{Index: "charts", MaxAttempts: 5})
	require.NoError(t, err)
	fastBackOff(runner)

	report, err := runner.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Created)
	assert.Zero(t, report.Skipped)
}

func TestRunSkipsDocumentAfterRetryBudget(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	engine := mocks.NewMockEngine(ctrl)

	retryable := &docstore.Error{Op: "get", Index: "charts", DocID: "1", Err: docstore.ErrTimeout}
	engine.EXPECT().LargestID(gomock.Any(), "charts").Return(int64(0), nil)
	engine.EXPECT().Sync(gomock.Any(), "charts", gomock.Any()).
		Return(pkgsync.Result{Outcome: pkgsync.OutcomeFailed, DocID: "1"}, retryable).
		Times(2)

	runner, err := NewRunner(engine,
		&stubProvider{docs: []docstore.Document{{"id": int64(1)}}},
		Config{Index: "charts", MaxAttempts: 2})
	require.NoError(t, err)
	fastBackOff(runner)

	report, err := runner.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Skipped)
	assert.Zero(t, report.Created)
}

func TestRunDoesNotRetryTerminalOrUnexpectedFaults(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	engine := mocks.NewMockEngine(ctrl)

	engine.EXPECT().LargestID(gomock.Any(), "charts").Return(int64(0), nil)
	// Exactly one attempt: an unexpected fault must not be retried.
	engine.EXPECT().Sync(gomock.Any(), "charts", gomock.Any()).
		Return(pkgsync.Result{Outcome: pkgsync.OutcomeFailed, DocID: "1"}, assert.AnError).
		Times(1)

	runner, err := NewRunner(engine,
		&stubProvider{docs: []docstore.Document{{"id": int64(1)}}},
		Config{Index: "charts", MaxAttempts: 5})
	require.NoError(t, err)
	fastBackOff(runner)

	report, err := runner.Run(context.Background())
	require.ErrorIs(t, err, assert.AnError)
	assert.Equal(t, 1, report.Failed)
}

func TestRunContinuesPastFailingDocuments(t *testing.T) {
	t.Parallel()

	// The second document carries no identity and fails terminally; the
	// other two must still sync.
	provider := &stubProvider{docs: []docstore.Document{
		{"id": int64(1), "name": "alpha"},
		{"name": "no-identity"},
		{"id": int64(3), "name": "gamma"},
	}}
	engine := pkgsync.NewEngine(inmemory.New())

	runner, err := NewRunner(engine, provider, Config{Index: "charts", Concurrency: 1})
	require.NoError(t, err)

	report, err := runner.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, report.Created)
	assert.Equal(t, 1, report.Failed)
}

func TestRunAdvancesCheckpoint(t *testing.T) {
	t.Parallel()

	checkpoints := NewCheckpointStore(filepath.Join(t.TempDir(), "checkpoint.json"))
	provider := &stubProvider{docs: []docstore.Document{
		{"id": int64(7), "name": "alpha"},
		{"id": int64(9), "name": "beta"},
	}}
	engine := pkgsync.NewEngine(inmemory.New())

	runner, err := NewRunner(engine, provider, Config{Index: "charts"}, WithCheckpoints(checkpoints))
	require.NoError(t, err)

	report, err := runner.Run(context.Background())
	require.NoError(t, err)

	cp, err := checkpoints.Load(context.Background())
	require.NoError(t, err)
	require.NotNil(t, cp)
	assert.Equal(t, report.RunID, cp.RunID)
	assert.Equal(t, int64(9), cp.LargestID)
	assert.False(t, cp.CompletedAt.IsZero())
}

func TestRunDoesNotAdvanceCheckpointPastSkippedDocuments(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	engine := mocks.NewMockEngine(ctrl)
	checkpoints := NewCheckpointStore(filepath.Join(t.TempDir(), "checkpoint.json"))

	retryable := &docstore.Error{Op: "update", Index: "charts", DocID: "1", Err: docstore.ErrUnavailable}
	engine.EXPECT().LargestID(gomock.Any(), "charts").Return(int64(0), nil)
	engine.EXPECT().Sync(gomock.Any(), "charts", gomock.Any()).
		Return(pkgsync.Result{Outcome: pkgsync.OutcomeFailed, DocID: "1"}, retryable).
		Times(2)

	runner, err := NewRunner(engine,
		&stubProvider{docs: []docstore.Document{{"id": int64(1)}}},
		Config{Index: "charts", MaxAttempts: 2},
		WithCheckpoints(checkpoints))
	require.NoError(t, err)
	fastBackOff(runner)

	_, err = runner.Run(context.Background())
	require.NoError(t, err)

	cp, err := checkpoints.Load(context.Background())
	require.NoError(t, err)
	assert.Nil(t, cp, "checkpoint must not advance past a document that may still succeed")
}

func TestRunPrefersCheckpointCursorWhenAhead(t *testing.T) {
	t.Parallel()

	checkpoints := NewCheckpointStore(filepath.Join(t.TempDir(), "checkpoint.json"))
	require.NoError(t, checkpoints.Save(context.Background(), &Checkpoint{RunID: "prior", LargestID: 50}))

	provider := &stubProvider{docs: []docstore.Document{{"id": int64(10), "name": "old"}}}
	engine := pkgsync.NewEngine(inmemory.New())

	runner, err := NewRunner(engine, provider, Config{Index: "charts"}, WithCheckpoints(checkpoints))
	require.NoError(t, err)

	report, err := runner.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(50), report.SinceID)
	assert.Zero(t, report.Fetched)
	assert.Equal(t, []int64{50}, provider.fetchCursors())
}

func TestRunPropagatesSourceFault(t *testing.T) {
	t.Parallel()

	engine := pkgsync.NewEngine(inmemory.New())
	runner, err := NewRunner(engine, &stubProvider{err: assert.AnError}, Config{Index: "charts"})
	require.NoError(t, err)

	report, err := runner.Run(context.Background())
	require.ErrorIs(t, err, assert.AnError)
	assert.Zero(t, report.Fetched)
}

func TestNewRunnerValidation(t *testing.T) {
	t.Parallel()

	engine := pkgsync.NewEngine(inmemory.New())
	provider := &stubProvider{}

	_, err := NewRunner(nil, provider, Config{Index: "charts"})
	require.Error(t, err)

	_, err = NewRunner(engine, nil, Config{Index: "charts"})
	require.Error(t, err)

	_, err = NewRunner(engine, provider, Config{})
	require.Error(t, err)
}
