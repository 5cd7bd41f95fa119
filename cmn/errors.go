// Package cmn holds ambient, cross-package concerns shared by the whole
// kernel: configuration, the error taxonomy, and debug assertions.
package cmn

import (
	goerrors "errors"

	"github.com/pkg/errors"
)

// Sentinel errors for the taxonomy of spec §7. Handlers return one of
// these (optionally wrapped with github.com/pkg/errors for call-site
// context) through the syscall boundary; the HAL maps cmn.ErrRetry to a
// context switch and everything else to a value in the task's A0-like
// return register.
var (
	// ErrInvalidArg: malformed size (non-multiple of flit), a required
	// pointer that was nil, or an out-of-range app id.
	ErrInvalidArg = goerrors.New("invalid argument")

	// ErrNotFound: task not resident on this tile and not recorded in
	// the migration table either.
	ErrNotFound = goerrors.New("not found")

	// ErrNoMemory: allocation failed for a packet body, payload bounce
	// buffer, or pipe.
	ErrNoMemory = goerrors.New("no memory")

	// ErrBadMessage: same-tile pipe copy mismatch (size or receiver).
	ErrBadMessage = goerrors.New("bad message")

	// ErrRetry: must re-issue on the next interrupt — DMNI busy, or the
	// caller is now blocked on DATA_AV/MESSAGE_REQUEST/delivery, or the
	// kpipe still has a message during a halt attempt.
	ErrRetry = goerrors.New("retry")

	// ErrUnauthorized: a user task attempted a management-only
	// operation (broadcast send, end-of-simulation, migration trigger).
	ErrUnauthorized = goerrors.New("unauthorized")
)

// Is reports whether err ultimately wraps one of the sentinels above,
// looking through any github.com/pkg/errors wrapping.
func Is(err, target error) bool {
	return goerrors.Is(err, target)
}

// Wrap attaches call-site context to one of the sentinel errors above
// without losing errors.Is-comparability, mirroring the teacher's own
// use of github.com/pkg/errors for annotated kernel errors.
func Wrap(err error, msg string) error {
	if err == nil {
		return nil
	}
	return errors.Wrap(err, msg)
}

// Wrapf is Wrap with a format string.
func Wrapf(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return errors.Wrapf(err, format, args...)
}
