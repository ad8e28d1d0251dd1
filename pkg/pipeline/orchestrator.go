package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/illmade-knight/go-quake/pkg/observability"
	"github.com/illmade-knight/go-quake/pkg/transform"
	"github.com/illmade-knight/go-quake/pkg/types"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
)

// Extractor reads one raw snapshot from the source feed.
type Extractor interface {
	Fetch(ctx context.Context) (*types.Snapshot, error)
}

// Archiver durably stores the raw snapshot.
type Archiver interface {
	Archive(ctx context.Context, snap *types.Snapshot) types.ArchiveResult
}

// Loader appends the snapshot's records to the warehouse.
type Loader interface {
	Load(ctx context.Context, snap *types.Snapshot) types.LoadResult
}

// Transformer signals the downstream transformation once loading has finished.
type Transformer interface {
	Transform(ctx context.Context, trigger transform.Trigger) types.TransformResult
}

// FailurePolicy decides what happens after a step failure.
type FailurePolicy string

const (
	// FailurePolicyContinue records the failure and runs the remaining steps.
	FailurePolicyContinue FailurePolicy = "continue"
	// FailurePolicyHalt ends the run Failed at the first step failure.
	FailurePolicyHalt FailurePolicy = "halt"
)

// ParseFailurePolicy maps a config string to a policy. Empty means continue.
func ParseFailurePolicy(s string) (FailurePolicy, error) {
	switch FailurePolicy(s) {
	case "", FailurePolicyContinue:
		return FailurePolicyContinue, nil
	case FailurePolicyHalt:
		return FailurePolicyHalt, nil
	}
	return "", fmt.Errorf("unknown failure policy %q, must be %q or %q", s, FailurePolicyContinue, FailurePolicyHalt)
}

// Orchestrator runs extract, archive, load and transform in order.
type Orchestrator struct {
	extractor   Extractor
	archiver    Archiver
	loader      Loader
	transformer Transformer
	policy      FailurePolicy
	clock       clockwork.Clock
	metrics     *observability.Metrics
	logger      zerolog.Logger
}

// NewOrchestrator wires the steps. A nil transformer disables the transform
// step and a nil metrics disables instrumentation.
func NewOrchestrator(
	extractor Extractor,
	archiver Archiver,
	loader Loader,
	transformer Transformer,
	policy FailurePolicy,
	clock clockwork.Clock,
	metrics *observability.Metrics,
	logger zerolog.Logger,
) (*Orchestrator, error) {
	if extractor == nil || archiver == nil || loader == nil {
		return nil, errors.New("extractor, archiver and loader are required")
	}
	if transformer == nil {
		transformer = transform.NoopTransformer{}
	}
	if policy == "" {
		policy = FailurePolicyContinue
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Orchestrator{
		extractor:   extractor,
		archiver:    archiver,
		loader:      loader,
		transformer: transformer,
		policy:      policy,
		clock:       clock,
		metrics:     metrics,
		logger:      logger.With().Str("component", "Orchestrator").Str("failure_policy", string(policy)).Logger(),
	}, nil
}

// run carries the per-run state through the step methods.
type run struct {
	report types.RunReport
	logger zerolog.Logger
}

func (r *run) enter(state types.RunState) {
	r.logger.Debug().Str("from", string(r.report.State)).Str("to", string(state)).Msg("Run state transition")
	r.report.State = state
}

// Run executes one pipeline run synchronously. It never returns an error:
// everything that happened is in the report.
func (o *Orchestrator) Run(ctx context.Context) types.RunReport {
	r := &run{report: types.RunReport{
		RunID:     uuid.NewString(),
		State:     types.StateIdle,
		StartedAt: o.clock.Now(),
	}}
	r.logger = o.logger.With().Str("run_id", r.report.RunID).Logger()
	r.logger.Info().Msg("Pipeline run started")

	o.execute(ctx, r)

	r.report.FinishedAt = o.clock.Now()
	o.record(r)
	return r.report
}

func (o *Orchestrator) execute(ctx context.Context, r *run) {
	if o.cancelled(ctx, r) {
		return
	}
	r.enter(types.StateFetching)
	snap, err := o.extractor.Fetch(ctx)
	if err != nil {
		var f *types.Failure
		if !errors.As(err, &f) {
			f = types.NewFailure(types.FetchFailure, err)
		}
		r.report.FetchFailure = f
		snap = nil
		r.logger.Error().Err(err).Msg("Fetch failed, archive and load will be skipped")
		if o.halt(r, f) {
			return
		}
	}

	if o.cancelled(ctx, r) {
		return
	}
	r.enter(types.StateArchiving)
	r.report.Archive = o.archiver.Archive(ctx, snap)
	if o.halt(r, r.report.Archive.Failure) {
		return
	}

	if o.cancelled(ctx, r) {
		return
	}
	r.enter(types.StateLoading)
	r.report.Load = o.loader.Load(ctx, snap)
	if o.halt(r, r.report.Load.Failure) {
		return
	}

	if o.cancelled(ctx, r) {
		return
	}
	r.enter(types.StateTransforming)
	r.report.Transform = o.transformer.Transform(ctx, transform.Trigger{
		RunID:       r.report.RunID,
		Table:       r.report.Load.Table,
		Rows:        r.report.Load.Rows,
		TriggeredAt: o.clock.Now().UTC(),
	})
	if f := r.report.Transform.Failure; f != nil {
		o.fail(r, f)
		return
	}
	r.enter(types.StateDone)
}

// halt ends the run when f is set and the policy is halt.
func (o *Orchestrator) halt(r *run, f *types.Failure) bool {
	if f == nil || o.policy != FailurePolicyHalt {
		return false
	}
	o.fail(r, f)
	return true
}

func (o *Orchestrator) fail(r *run, err error) {
	r.report.Err = err
	r.enter(types.StateFailed)
}

func (o *Orchestrator) cancelled(ctx context.Context, r *run) bool {
	if err := ctx.Err(); err != nil {
		r.logger.Warn().Err(err).Str("state", string(r.report.State)).Msg("Run cancelled")
		o.fail(r, err)
		return true
	}
	return false
}

func (o *Orchestrator) record(r *run) {
	rep := r.report
	var ev *zerolog.Event
	if rep.State == types.StateFailed {
		ev = r.logger.Error().AnErr("cause", rep.Err)
	} else {
		ev = r.logger.Info()
	}
	ev.Str("state", string(rep.State)).
		Dur("elapsed", rep.FinishedAt.Sub(rep.StartedAt)).
		Str("archive_path", rep.Archive.Path).
		Int("rows_loaded", rep.Load.Rows).
		Str("load_job_id", rep.Load.JobID).
		Str("transform", rep.Transform.Detail).
		Int("failures", len(rep.Failures())).
		Msg("Pipeline run finished")

	if o.metrics == nil {
		return
	}
	o.metrics.RunsTotal.WithLabelValues(string(rep.State)).Inc()
	o.metrics.RunDuration.Observe(rep.FinishedAt.Sub(rep.StartedAt).Seconds())
	o.metrics.RecordsLoaded.Add(float64(rep.Load.Rows))
	o.metrics.ArchiveBytes.Add(float64(rep.Archive.BytesWritten))
	for _, f := range rep.Failures() {
		o.metrics.StepFailures.WithLabelValues(f.Kind.String()).Inc()
	}
}
