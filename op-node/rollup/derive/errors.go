package derive

import "errors"

// The error taxonomy from spec.md §7, ported from the teacher's `derive`
// package sentinel errors (classified via errors.Is(err, derive.ErrCritical)
// etc.) so that the Proposer and Driver can classify failures without type
// assertions.
var (
	// ErrCritical marks an error that must bubble all the way up and stop
	// the process: a programming invariant violated, or an unrecoverable
	// Engine API INVALID status.
	ErrCritical = errors.New("critical error")

	// ErrReset marks an error that requires the derivation pipeline (head
	// cache, prefetcher cursor) to reset and resynchronize against L1
	// before continuing.
	ErrReset = errors.New("reset error")

	// ErrTemporary marks an error where a retry, possibly after a backoff,
	// is expected to succeed: a transient RPC failure, or an L1 block that
	// is not yet mined.
	ErrTemporary = errors.New("temporary error")
)

// NewCriticalError wraps err so errors.Is(_, ErrCritical) holds.
func NewCriticalError(err error) error {
	return wrappedError{msg: err.Error(), inner: err, class: ErrCritical}
}

// NewResetError wraps err so errors.Is(_, ErrReset) holds.
func NewResetError(err error) error {
	return wrappedError{msg: err.Error(), inner: err, class: ErrReset}
}

// NewTemporaryError wraps err so errors.Is(_, ErrTemporary) holds.
func NewTemporaryError(err error) error {
	return wrappedError{msg: err.Error(), inner: err, class: ErrTemporary}
}

type wrappedError struct {
	msg   string
	inner error
	class error
}

func (w wrappedError) Error() string { return w.msg }

func (w wrappedError) Unwrap() error { return w.inner }

func (w wrappedError) Is(target error) bool {
	return target == w.class
}
