package errs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
)

// Failure kinds crossing the remote database and notification boundaries.
// Use errors.Is(err, ErrTransport) and friends to classify.
var (
	ErrTransport      = errors.New("remote unreachable")
	ErrAuth           = errors.New("remote credentials rejected")
	ErrPartialFetch   = errors.New("record payload unavailable")
	ErrEncoding       = errors.New("record payload malformed")
	ErrMutationFailed = errors.New("mutation failed")
)

// Wrap adds context and preserves the error chain (errors.Is/As works).
func Wrap(err error, msg string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", msg, err)
}

// Wrapf adds formatted context and preserves the error chain.
func Wrapf(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}

	args = append(args, err)
	return fmt.Errorf(format+": %w", args...)
}

// Mark tags err with a failure kind. The message is unchanged and both
// err and kind stay reachable through errors.Is/As.
func Mark(err error, kind error) error {
	if err == nil {
		return nil
	}
	if kind == nil || errors.Is(err, kind) {
		return err
	}
	return &markedError{err: err, kind: kind}
}

type markedError struct {
	err  error
	kind error
}

func (e *markedError) Error() string   { return e.err.Error() }
func (e *markedError) Unwrap() []error { return []error{e.err, e.kind} }

// IsRetryable reports whether a failed remote call may be attempted again
// with the same inputs. Credential and cancellation failures are final.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrAuth) {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	return true
}

// Kind returns the short name of the first failure kind found in the chain.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrAuth):
		return "auth"
	case errors.Is(err, ErrTransport):
		return "transport"
	case errors.Is(err, ErrEncoding):
		return "encoding"
	case errors.Is(err, ErrPartialFetch):
		return "partial_fetch"
	case errors.Is(err, ErrMutationFailed):
		return "mutation_failed"
	default:
		return "internal"
	}
}

// WithStack captures a stack trace once (recommended: only at the root cause boundary).
// You can still wrap it later with Wrap/Wrapf.
func WithStack(err error) error {
	if err == nil {
		return nil
	}

	var se *StackError
	if errors.As(err, &se) {
		return err
	}

	return &StackError{
		err:   err,
		stack: debug.Stack(),
	}
}

// StackError wraps an error and stores a stack trace.
type StackError struct {
	err   error
	stack []byte
}

func (e *StackError) Error() string { return e.err.Error() }
func (e *StackError) Unwrap() error { return e.err }
func (e *StackError) Stack() []byte { return e.stack }

// Loggable makes slog encode the error as structured fields.
// Usage: slog.Any("err", errs.Loggable(err))
type loggable struct{ err error }

func Loggable(err error) slog.LogValuer { return loggable{err: err} }

func (l loggable) LogValue() slog.Value {
	if l.err == nil {
		return slog.GroupValue()
	}

	attrs := []slog.Attr{
		slog.String("message", l.err.Error()),
		slog.String("kind", Kind(l.err)),
		slog.Any("chain", ErrorChainStrings(l.err)),
	}

	var se *StackError
	if errors.As(l.err, &se) {
		attrs = append(attrs, slog.String("stack", string(se.Stack())))
	}

	return slog.GroupValue(attrs...)
}

// ErrorChainStrings returns the unwrap chain as strings (outer -> inner).
// For errors with several causes only the first one is followed.
func ErrorChainStrings(err error) []string {
	if err == nil {
		return nil
	}

	out := make([]string, 0, 8)
	for e := err; e != nil; e = unwrapFirst(e) {
		out = append(out, e.Error())
	}
	return out
}

func unwrapFirst(err error) error {
	switch u := err.(type) {
	case interface{ Unwrap() error }:
		return u.Unwrap()
	case interface{ Unwrap() []error }:
		causes := u.Unwrap()
		if len(causes) == 0 {
			return nil
		}
		return causes[0]
	default:
		return nil
	}
}
