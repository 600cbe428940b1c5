package apply

import (
	"fmt"

	"github.com/pkg/errors"
)

// errorf builds a plain error for invariant violations surfaced to callers.
func errorf(format string, args ...interface{}) error {
	return fmt.Errorf(format, args...)
}

// Outcome tags how an apply attempt or a driver iteration concluded: an
// explicit variant in place of using exceptions as control flow.
type Outcome int

const (
	// Ok means the operation completed normally.
	Ok Outcome = iota
	// Transient means the caller may retry or continue; no state was corrupted.
	Transient
	// FatalOutcome means correctness can no longer be guaranteed; the process
	// must stop applying.
	FatalOutcome
)

// Result is the outcome of one apply attempt together with, for the
// Transient/Fatal cases, the reason.
type Result struct {
	Outcome Outcome
	Reason  error
}

// ResultOK is the successful, no-error result.
var ResultOK = Result{Outcome: Ok}

// TransientResult wraps a recoverable error.
func TransientResult(err error) Result {
	return Result{Outcome: Transient, Reason: err}
}

// FatalResult wraps an unrecoverable error.
func FatalResult(err error) Result {
	return Result{Outcome: FatalOutcome, Reason: err}
}

func (r Result) Error() string {
	if r.Reason == nil {
		return ""
	}
	return r.Reason.Error()
}

// IsFatal reports whether r demands the driver stop applying entirely.
func (r Result) IsFatal() bool {
	return r.Outcome == FatalOutcome
}

// Duplicate-key error codes tolerated during initial sync.
const (
	ErrCodeDuplicateKey       = 11000
	ErrCodeDuplicateKeyUpdate = 11001
	ErrCodeDuplicateKeyUpsert = 12582
)

// DuplicateKeyError carries one of the codes above.
type DuplicateKeyError struct {
	Code int
	Err  error
}

func (e *DuplicateKeyError) Error() string {
	return fmt.Sprintf("duplicate key (code %d): %v", e.Code, e.Err)
}

func (e *DuplicateKeyError) Unwrap() error { return e.Err }

// IsDuplicateKey reports whether err is, or wraps, a tolerated duplicate-key error.
func IsDuplicateKey(err error) bool {
	var dk *DuplicateKeyError
	return errors.As(err, &dk)
}

// ErrBecamePrimary is returned by the Apply Engine when it discovers,
// after acquiring its lock, that the node has been elected primary mid-apply.
// It is not retryable: the driver must observe it and idle.
var ErrBecamePrimary = errors.New("stopping apply, became primary")

// ErrClockSkew is the fatal assertion raised when slave-delay lag exceeds
// the sanity bound.
var ErrClockSkew = errors.New("slave delay lag exceeds sanity bound, clock skew suspected")

// ErrDriverNotBuilt is returned by composition-root helpers that require the
// Sync Driver to already exist.
var ErrDriverNotBuilt = errors.New("sync driver has not been constructed yet")

// ErrNoCursorTransport is the default CursorOpener's error until chained
// replication's upstream cursor transport is wired in (out of scope for
// this engine).
var ErrNoCursorTransport = errors.New("ghost tracker: no cursor transport configured")
