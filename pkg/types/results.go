package types

import "time"

// ArchiveResult is the outcome of one Archive Writer invocation.
type ArchiveResult struct {
	// Path is the gs:// URI of the written object.
	Path         string
	BytesWritten int64
	// Skipped is true when there was nothing to archive.
	Skipped bool
	Failure *Failure
}

// OK reports whether the step did not fail. A skipped step is OK.
func (r ArchiveResult) OK() bool { return r.Failure == nil }

// LoadResult is the outcome of one Warehouse Loader invocation.
type LoadResult struct {
	Table         string
	Rows          int
	JobID         string
	LoadTimestamp time.Time
	Skipped       bool
	Failure       *Failure
}

func (r LoadResult) OK() bool { return r.Failure == nil }

// TransformResult is the outcome of signalling the downstream transformation.
type TransformResult struct {
	// Detail is a short human readable description, e.g. a message id or exit status.
	Detail  string
	Skipped bool
	Failure *Failure
}

func (r TransformResult) OK() bool { return r.Failure == nil }

// RunState is a state of the pipeline run state machine.
type RunState string

const (
	StateIdle         RunState = "idle"
	StateFetching     RunState = "fetching"
	StateArchiving    RunState = "archiving"
	StateLoading      RunState = "loading"
	StateTransforming RunState = "transforming"
	StateDone         RunState = "done"
	StateFailed       RunState = "failed"
)

// Terminal reports whether no further transition is possible.
func (s RunState) Terminal() bool {
	return s == StateDone || s == StateFailed
}

// RunReport summarizes one pipeline run. It is returned to the caller and
// logged; it is not persisted.
type RunReport struct {
	RunID      string
	State      RunState
	StartedAt  time.Time
	FinishedAt time.Time

	// FetchFailure is set when the feed could not be read.
	FetchFailure *Failure
	Archive      ArchiveResult
	Load         LoadResult
	Transform    TransformResult

	// Err is set when the run ended Failed, and names the failure that ended it.
	Err error
}

// Failures returns every step failure recorded in the report, in step order.
func (r RunReport) Failures() []*Failure {
	var out []*Failure
	for _, f := range []*Failure{r.FetchFailure, r.Archive.Failure, r.Load.Failure, r.Transform.Failure} {
		if f != nil {
			out = append(out, f)
		}
	}
	return out
}
