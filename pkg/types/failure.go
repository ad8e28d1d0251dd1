package types

import (
	"errors"
	"fmt"
)

// FailureKind tags where in a pipeline run a failure originated.
type FailureKind int

const (
	FetchFailure FailureKind = iota + 1
	ArchiveFailure
	LoadValidationFailure
	LoadJobFailure
	TransformFailure
	RequestValidationFailure
)

func (k FailureKind) String() string {
	switch k {
	case FetchFailure:
		return "fetch_failure"
	case ArchiveFailure:
		return "archive_failure"
	case LoadValidationFailure:
		return "load_validation_failure"
	case LoadJobFailure:
		return "load_job_failure"
	case TransformFailure:
		return "transform_failure"
	case RequestValidationFailure:
		return "request_validation_failure"
	default:
		return fmt.Sprintf("failure(%d)", int(k))
	}
}

// Failure is a tagged error returned by pipeline steps and the serving endpoint.
type Failure struct {
	Kind FailureKind
	Err  error
}

// NewFailure wraps err with kind.
func NewFailure(kind FailureKind, err error) *Failure {
	return &Failure{Kind: kind, Err: err}
}

func (f *Failure) Error() string {
	if f.Err == nil {
		return f.Kind.String()
	}
	return fmt.Sprintf("%s: %v", f.Kind, f.Err)
}

func (f *Failure) Unwrap() error { return f.Err }

// KindOf reports the FailureKind carried by err, if any.
func KindOf(err error) (FailureKind, bool) {
	var f *Failure
	if errors.As(err, &f) {
		return f.Kind, true
	}
	return 0, false
}
