package supervisor

import (
	"errors"
	"fmt"
)

// Kind classifies every failure the supervisor can return to a caller.
type Kind string

const (
	KindNotFound        Kind = "not_found"        // unknown application id
	KindDisabled        Kind = "disabled"         // definition marks the app non-startable
	KindAlreadyRunning  Kind = "already_running"  // start precondition violated
	KindNotRunning      Kind = "not_running"      // stop precondition violated
	KindPortInUse       Kind = "port_in_use"      // pre-start conflict, nothing spawned
	KindSpawnFailed     Kind = "spawn_failed"     // OS-level launch error
	KindLivenessTimeout Kind = "liveness_timeout" // spawned but never bound its port
	KindShutdownTimeout Kind = "shutdown_timeout" // graceful and escalated termination both failed
)

// Error is a typed supervisor failure. Every operation failure is one of
// these; nothing is silently swallowed.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

// Is lets errors.Is match on kind against another *Error.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return e.Kind == t.Kind
	}
	return false
}

func newErr(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

func wrapErr(kind Kind, err error, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...), Err: err}
}

// KindOf extracts the failure kind, or "" for nil/foreign errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}
