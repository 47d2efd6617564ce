package engine

import (
	"errors"
	"fmt"
	"time"

	"github.com/roach88/scriptd/internal/script"
)

// RuntimeError reports a failure of one engine operation on one script.
//
// Runtime errors never affect other scripts. Code identifies the category;
// Details carries operator diagnostics.
type RuntimeError struct {
	// Code identifies the error category.
	Code RuntimeErrorCode

	// Message is a human-readable description.
	Message string

	// ScriptID identifies the affected script, if any.
	ScriptID script.ID

	// Details contains additional context.
	Details map[string]string

	// Err is the underlying cause, if any.
	Err error
}

// RuntimeErrorCode categorizes runtime errors.
type RuntimeErrorCode string

const (
	// ErrCodeCooperationTimeout indicates the bounded stop wait elapsed
	// before the script reached a checkpoint.
	ErrCodeCooperationTimeout RuntimeErrorCode = "COOPERATION_TIMEOUT"

	// ErrCodeHandlerFault indicates user code failed unrecoverably.
	ErrCodeHandlerFault RuntimeErrorCode = "HANDLER_FAULT"

	// ErrCodeDuplicateLoad indicates Load on an identity already present.
	ErrCodeDuplicateLoad RuntimeErrorCode = "DUPLICATE_LOAD"

	// ErrCodeUnknownScript indicates an operation on an identity with no
	// instance.
	ErrCodeUnknownScript RuntimeErrorCode = "UNKNOWN_SCRIPT"

	// ErrCodeNotAccepting indicates an event sent to a stopping or dead
	// instance.
	ErrCodeNotAccepting RuntimeErrorCode = "NOT_ACCEPTING"

	// ErrCodeEngineClosed indicates Load after ShutdownAll.
	ErrCodeEngineClosed RuntimeErrorCode = "ENGINE_CLOSED"

	// ErrCodeInstantiateFailed indicates the program could not build its
	// per-instance state.
	ErrCodeInstantiateFailed RuntimeErrorCode = "INSTANTIATE_FAILED"
)

// Error implements the error interface.
func (e *RuntimeError) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
	if !e.ScriptID.IsNil() {
		msg = fmt.Sprintf("%s (script=%s)", msg, e.ScriptID)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *RuntimeError) Unwrap() error {
	return e.Err
}

func hasCode(err error, code RuntimeErrorCode) bool {
	var re *RuntimeError
	if errors.As(err, &re) {
		return re.Code == code
	}
	return false
}

// IsCooperationTimeout reports whether err is a cooperation timeout.
func IsCooperationTimeout(err error) bool { return hasCode(err, ErrCodeCooperationTimeout) }

// IsHandlerFault reports whether err is a handler fault.
func IsHandlerFault(err error) bool { return hasCode(err, ErrCodeHandlerFault) }

// IsDuplicateLoad reports whether err is a rejected duplicate load.
func IsDuplicateLoad(err error) bool { return hasCode(err, ErrCodeDuplicateLoad) }

// IsUnknownScript reports whether err names a missing identity.
func IsUnknownScript(err error) bool { return hasCode(err, ErrCodeUnknownScript) }

// IsNotAccepting reports whether err is a refused enqueue.
func IsNotAccepting(err error) bool { return hasCode(err, ErrCodeNotAccepting) }

// IsEngineClosed reports whether err is a load refused after shutdown.
func IsEngineClosed(err error) bool { return hasCode(err, ErrCodeEngineClosed) }

// NewCooperationTimeoutError creates a RuntimeError for a stop that timed out.
// lastCheckpoint is the zero time if the script never reached one.
func NewCooperationTimeoutError(id script.ID, timeout time.Duration, lastCheckpoint time.Time) *RuntimeError {
	details := map[string]string{
		"timeout": timeout.String(),
	}
	if !lastCheckpoint.IsZero() {
		details["last_checkpoint"] = lastCheckpoint.UTC().Format(time.RFC3339Nano)
	}
	return &RuntimeError{
		Code:     ErrCodeCooperationTimeout,
		Message:  fmt.Sprintf("script did not reach a checkpoint within %s", timeout),
		ScriptID: id,
		Details:  details,
	}
}

// NewHandlerFaultError creates a RuntimeError for a failed handler.
func NewHandlerFaultError(id script.ID, kind script.EventKind, cause error) *RuntimeError {
	return &RuntimeError{
		Code:     ErrCodeHandlerFault,
		Message:  fmt.Sprintf("handler %s failed", kind),
		ScriptID: id,
		Details:  map[string]string{"event": string(kind)},
		Err:      cause,
	}
}

// NewDuplicateLoadError creates a RuntimeError for a rejected Load.
func NewDuplicateLoadError(id script.ID) *RuntimeError {
	return &RuntimeError{
		Code:     ErrCodeDuplicateLoad,
		Message:  "script is already loaded",
		ScriptID: id,
	}
}

// NewUnknownScriptError creates a RuntimeError for a missing identity.
func NewUnknownScriptError(id script.ID) *RuntimeError {
	return &RuntimeError{
		Code:     ErrCodeUnknownScript,
		Message:  "no live instance",
		ScriptID: id,
	}
}

// NewNotAcceptingError creates a RuntimeError for a refused enqueue.
func NewNotAcceptingError(id script.ID, state State) *RuntimeError {
	return &RuntimeError{
		Code:     ErrCodeNotAccepting,
		Message:  fmt.Sprintf("instance is %s", state),
		ScriptID: id,
		Details:  map[string]string{"state": state.String()},
	}
}

// NewEngineClosedError creates a RuntimeError for a load after shutdown.
func NewEngineClosedError(id script.ID) *RuntimeError {
	return &RuntimeError{
		Code:     ErrCodeEngineClosed,
		Message:  "engine is shut down",
		ScriptID: id,
	}
}

// NewInstantiateError creates a RuntimeError for a program that failed to
// instantiate.
func NewInstantiateError(id script.ID, program string, cause error) *RuntimeError {
	return &RuntimeError{
		Code:     ErrCodeInstantiateFailed,
		Message:  fmt.Sprintf("program %s failed to instantiate", program),
		ScriptID: id,
		Details:  map[string]string{"program": program},
		Err:      cause,
	}
}
