package pipeline_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/illmade-knight/go-quake/pkg/observability"
	"github.com/illmade-knight/go-quake/pkg/pipeline"
	"github.com/illmade-knight/go-quake/pkg/transform"
	"github.com/illmade-knight/go-quake/pkg/types"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ====================================================================================
// Test Mocks
// ====================================================================================

// callLog records the order in which steps are invoked.
type callLog struct {
	mu    sync.Mutex
	calls []string
}

func (c *callLog) add(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, name)
}

type stubExtractor struct {
	log  *callLog
	snap *types.Snapshot
	err  error
}

func (s *stubExtractor) Fetch(ctx context.Context) (*types.Snapshot, error) {
	s.log.add("fetch")
	return s.snap, s.err
}

type stubArchiver struct {
	log      *callLog
	received []*types.Snapshot
	failure  *types.Failure
}

func (s *stubArchiver) Archive(ctx context.Context, snap *types.Snapshot) types.ArchiveResult {
	s.log.add("archive")
	s.received = append(s.received, snap)
	if snap == nil {
		return types.ArchiveResult{Skipped: true}
	}
	return types.ArchiveResult{Path: "gs://b/raw_data/2025/10/23/usgs_earthquakes.json", BytesWritten: int64(len(snap.Raw)), Failure: s.failure}
}

type stubLoader struct {
	log      *callLog
	received []*types.Snapshot
	failure  *types.Failure
}

func (s *stubLoader) Load(ctx context.Context, snap *types.Snapshot) types.LoadResult {
	s.log.add("load")
	s.received = append(s.received, snap)
	res := types.LoadResult{Table: "p.d.t"}
	if snap == nil {
		res.Skipped = true
		return res
	}
	if s.failure != nil {
		res.Failure = s.failure
		return res
	}
	res.Rows = 2
	res.JobID = "job-1"
	return res
}

type stubTransformer struct {
	log      *callLog
	triggers []transform.Trigger
	failure  *types.Failure
}

func (s *stubTransformer) Transform(ctx context.Context, trigger transform.Trigger) types.TransformResult {
	s.log.add("transform")
	s.triggers = append(s.triggers, trigger)
	return types.TransformResult{Detail: "ok", Failure: s.failure}
}

type harness struct {
	log         *callLog
	extractor   *stubExtractor
	archiver    *stubArchiver
	loader      *stubLoader
	transformer *stubTransformer
	metrics     *observability.Metrics
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	log := &callLog{}
	snap, err := types.NewSnapshot([]byte(`{"features":[{"id":"a"},{"id":"b"}]}`), "test", time.Now())
	require.NoError(t, err)
	return &harness{
		log:         log,
		extractor:   &stubExtractor{log: log, snap: snap},
		archiver:    &stubArchiver{log: log},
		loader:      &stubLoader{log: log},
		transformer: &stubTransformer{log: log},
		metrics:     observability.NewMetricsForTesting(),
	}
}

func (h *harness) orchestrator(t *testing.T, policy pipeline.FailurePolicy) *pipeline.Orchestrator {
	t.Helper()
	o, err := pipeline.NewOrchestrator(h.extractor, h.archiver, h.loader, h.transformer, policy, clockwork.NewFakeClock(), h.metrics, zerolog.Nop())
	require.NoError(t, err)
	return o
}

// ====================================================================================
// Tests
// ====================================================================================

func TestOrchestrator_HappyPath(t *testing.T) {
	h := newHarness(t)

	report := h.orchestrator(t, pipeline.FailurePolicyContinue).Run(context.Background())

	assert.Equal(t, types.StateDone, report.State)
	assert.NoError(t, report.Err)
	assert.NotEmpty(t, report.RunID)
	assert.Equal(t, []string{"fetch", "archive", "load", "transform"}, h.log.calls)
	// Archive and load see the same in-memory snapshot.
	require.Len(t, h.archiver.received, 1)
	require.Len(t, h.loader.received, 1)
	assert.Same(t, h.archiver.received[0], h.loader.received[0])

	require.Len(t, h.transformer.triggers, 1)
	assert.Equal(t, report.RunID, h.transformer.triggers[0].RunID)
	assert.Equal(t, 2, h.transformer.triggers[0].Rows)
	assert.Empty(t, report.Failures())

	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.RunsTotal.WithLabelValues("done")))
	assert.Equal(t, 2.0, testutil.ToFloat64(h.metrics.RecordsLoaded))
}

func TestOrchestrator_FetchFailureDegradesToNoOps(t *testing.T) {
	h := newHarness(t)
	h.extractor.snap = nil
	h.extractor.err = types.NewFailure(types.FetchFailure, errors.New("502 bad gateway"))

	report := h.orchestrator(t, pipeline.FailurePolicyContinue).Run(context.Background())

	assert.Equal(t, types.StateDone, report.State)
	require.NotNil(t, report.FetchFailure)
	assert.Equal(t, types.FetchFailure, report.FetchFailure.Kind)
	assert.True(t, report.Archive.Skipped)
	assert.True(t, report.Load.Skipped)
	assert.Equal(t, []*types.Snapshot{nil}, h.archiver.received)
	assert.Equal(t, []*types.Snapshot{nil}, h.loader.received)
	assert.Equal(t, []string{"fetch", "archive", "load", "transform"}, h.log.calls)
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.StepFailures.WithLabelValues("fetch_failure")))
}

func TestOrchestrator_UntypedFetchErrorIsWrapped(t *testing.T) {
	h := newHarness(t)
	h.extractor.snap = nil
	h.extractor.err = errors.New("dial tcp: refused")

	report := h.orchestrator(t, pipeline.FailurePolicyContinue).Run(context.Background())

	require.NotNil(t, report.FetchFailure)
	assert.Equal(t, types.FetchFailure, report.FetchFailure.Kind)
}

func TestOrchestrator_ContinuePolicyRunsTransformAfterFailures(t *testing.T) {
	h := newHarness(t)
	h.archiver.failure = types.NewFailure(types.ArchiveFailure, errors.New("403"))
	h.loader.failure = types.NewFailure(types.LoadJobFailure, errors.New("quota"))

	report := h.orchestrator(t, pipeline.FailurePolicyContinue).Run(context.Background())

	assert.Equal(t, types.StateDone, report.State)
	assert.Equal(t, []string{"fetch", "archive", "load", "transform"}, h.log.calls)
	assert.Len(t, report.Failures(), 2)
}

func TestOrchestrator_TransformFailureFailsRun(t *testing.T) {
	h := newHarness(t)
	h.transformer.failure = types.NewFailure(types.TransformFailure, errors.New("exit status 1"))

	report := h.orchestrator(t, pipeline.FailurePolicyContinue).Run(context.Background())

	assert.Equal(t, types.StateFailed, report.State)
	kind, ok := types.KindOf(report.Err)
	require.True(t, ok)
	assert.Equal(t, types.TransformFailure, kind)
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.RunsTotal.WithLabelValues("failed")))
}

func TestOrchestrator_HaltPolicy(t *testing.T) {
	failFetch := func(h *harness) {
		h.extractor.snap = nil
		h.extractor.err = types.NewFailure(types.FetchFailure, errors.New("timeout"))
	}
	testCases := []struct {
		name      string
		arrange   func(h *harness)
		wantCalls []string
		wantKind  types.FailureKind
	}{
		{
			name:      "fetch failure",
			arrange:   failFetch,
			wantCalls: []string{"fetch"},
			wantKind:  types.FetchFailure,
		},
		{
			name:      "archive failure",
			arrange:   func(h *harness) { h.archiver.failure = types.NewFailure(types.ArchiveFailure, errors.New("403")) },
			wantCalls: []string{"fetch", "archive"},
			wantKind:  types.ArchiveFailure,
		},
		{
			name:      "load validation failure",
			arrange:   func(h *harness) { h.loader.failure = types.NewFailure(types.LoadValidationFailure, types.ErrNoFeatures) },
			wantCalls: []string{"fetch", "archive", "load"},
			wantKind:  types.LoadValidationFailure,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			h := newHarness(t)
			tc.arrange(h)

			report := h.orchestrator(t, pipeline.FailurePolicyHalt).Run(context.Background())

			assert.Equal(t, types.StateFailed, report.State)
			assert.Equal(t, tc.wantCalls, h.log.calls)
			assert.Empty(t, h.transformer.triggers)
			kind, ok := types.KindOf(report.Err)
			require.True(t, ok)
			assert.Equal(t, tc.wantKind, kind)
		})
	}
}

func TestOrchestrator_CancelledContext(t *testing.T) {
	h := newHarness(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report := h.orchestrator(t, pipeline.FailurePolicyContinue).Run(ctx)

	assert.Equal(t, types.StateFailed, report.State)
	assert.ErrorIs(t, report.Err, context.Canceled)
	assert.Empty(t, h.log.calls)
}

func TestOrchestrator_NilTransformerIsNoop(t *testing.T) {
	h := newHarness(t)
	o, err := pipeline.NewOrchestrator(h.extractor, h.archiver, h.loader, nil, "", nil, nil, zerolog.Nop())
	require.NoError(t, err)

	report := o.Run(context.Background())

	assert.Equal(t, types.StateDone, report.State)
	assert.True(t, report.Transform.Skipped)
}

func TestNewOrchestrator_Validation(t *testing.T) {
	_, err := pipeline.NewOrchestrator(nil, &stubArchiver{}, &stubLoader{}, nil, "", nil, nil, zerolog.Nop())
	assert.Error(t, err)
}

func TestParseFailurePolicy(t *testing.T) {
	p, err := pipeline.ParseFailurePolicy("")
	require.NoError(t, err)
	assert.Equal(t, pipeline.FailurePolicyContinue, p)

	p, err = pipeline.ParseFailurePolicy("halt")
	require.NoError(t, err)
	assert.Equal(t, pipeline.FailurePolicyHalt, p)

	_, err = pipeline.ParseFailurePolicy("retry")
	assert.Error(t, err)
}
