package pipeline

import (
	"fmt"
	"strings"

	"subtitler/internal/services"
)

// PartFailure records why one video part produced no subtitles.
type PartFailure struct {
	Sequence int
	Offset   float64
	Err      error
}

func (f PartFailure) Error() string {
	return fmt.Sprintf("part %d: %v", f.Sequence, f.Err)
}

func (f PartFailure) Unwrap() error {
	return f.Err
}

// AggregateFailure is returned when every part of a chunked run failed.
// It matches services.ErrAggregate and each part's own cause.
type AggregateFailure struct {
	Failures []PartFailure
}

func (a *AggregateFailure) Error() string {
	if a == nil || len(a.Failures) == 0 {
		return services.ErrAggregate.Error()
	}
	reasons := make([]string, 0, len(a.Failures))
	for _, failure := range a.Failures {
		reasons = append(reasons, failure.Error())
	}
	return fmt.Sprintf("%s (%d): %s", services.ErrAggregate, len(a.Failures), strings.Join(reasons, "; "))
}

func (a *AggregateFailure) Is(target error) bool {
	return target == services.ErrAggregate
}

func (a *AggregateFailure) Unwrap() []error {
	if a == nil {
		return nil
	}
	errs := make([]error, 0, len(a.Failures))
	for _, failure := range a.Failures {
		errs = append(errs, failure)
	}
	return errs
}

// Sequences lists the failed part numbers in order.
func (a *AggregateFailure) Sequences() []int {
	if a == nil {
		return nil
	}
	out := make([]int, 0, len(a.Failures))
	for _, failure := range a.Failures {
		out = append(out, failure.Sequence)
	}
	return out
}
