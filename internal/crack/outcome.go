package crack

import (
	"context"
	"errors"
	"iter"
)

var (
	ErrDuplicateJob = errors.New("job already active")
	ErrUnknownJob   = errors.New("unknown job")
	ErrSourceRead   = errors.New("wordlist read failed")
	ErrTester       = errors.New("candidate test failed")
	ErrCancelled    = errors.New("job cancelled")
	ErrClosed       = errors.New("cracker closed")
)

// JobID identifies a job. It must be unique among the active jobs of a Coordinator.
type JobID string

// Tester verifies one candidate password against a target.
//
// It returns true for the correct password and false for a wrong one. A
// wrong password is the expected answer and must never be reported as an
// error; errors are reserved for faults like an unreadable target. Test is
// called concurrently by many workers against the same target.
type Tester interface {
	Test(ctx context.Context, candidate string) (bool, error)
}

// TesterFunc adapts a plain function to the Tester interface.
type TesterFunc func(ctx context.Context, candidate string) (bool, error)

func (f TesterFunc) Test(ctx context.Context, candidate string) (bool, error) {
	return f(ctx, candidate)
}

// Words is a lazy, ordered and finite stream of candidates. A non nil error
// is a read fault and ends the job.
type Words = iter.Seq2[string, error]

type OutcomeKind int

const (
	OutcomeFound OutcomeKind = iota + 1
	OutcomeNotFound
	OutcomeFailed
	OutcomeCancelled
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeFound:
		return "found"
	case OutcomeNotFound:
		return "not_found"
	case OutcomeFailed:
		return "failed"
	case OutcomeCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Outcome is the terminal result of a job.
type Outcome struct {
	Kind     OutcomeKind
	Password string // set for OutcomeFound
	Err      error  // set for OutcomeFailed
}

func Found(password string) Outcome {
	return Outcome{Kind: OutcomeFound, Password: password}
}

func NotFound() Outcome {
	return Outcome{Kind: OutcomeNotFound}
}

func Failed(err error) Outcome {
	return Outcome{Kind: OutcomeFailed, Err: err}
}

func Cancelled() Outcome {
	return Outcome{Kind: OutcomeCancelled}
}

// Failure returns the error describing a job which did not run to its end:
// the fault for OutcomeFailed, ErrCancelled for OutcomeCancelled, nil otherwise.
func (o Outcome) Failure() error {
	switch o.Kind {
	case OutcomeFailed:
		return o.Err
	case OutcomeCancelled:
		return ErrCancelled
	default:
		return nil
	}
}

// Status returns the terminal job status matching the outcome.
func (o Outcome) Status() Status {
	switch o.Kind {
	case OutcomeFound:
		return StatusFound
	case OutcomeNotFound:
		return StatusNotFound
	case OutcomeCancelled:
		return StatusCancelled
	default:
		return StatusFailed
	}
}
