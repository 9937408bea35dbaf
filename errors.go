package flags

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Error types carried by FlagError.Type.
const (
	ErrorTypeRemoteUnavailable = "RemoteUnavailable"
	ErrorTypeRemoteAuth        = "RemoteAuthFailure"
	ErrorTypeMalformedResponse = "RemoteMalformedResponse"
	ErrorTypeCircuitOpen       = "CircuitOpen"
	ErrorTypeOverrideParse     = "OverrideParseError"
	ErrorTypeCacheBackend      = "CacheBackendFailure"
	ErrorTypeFlagNotFound      = "FlagNotFound"
	ErrorTypeValidation        = "Validation"
)

// Sentinel errors, one per error type. errors.Is matches any *FlagError of
// the same type against them.
var (
	ErrRemoteUnavailable = errors.New("flags: remote unavailable")
	ErrRemoteAuth        = errors.New("flags: remote authentication failed")
	ErrMalformedResponse = errors.New("flags: malformed remote response")
	ErrCircuitOpen       = errors.New("flags: circuit open")
	ErrOverrideParse     = errors.New("flags: invalid override value")
	ErrCacheBackend      = errors.New("flags: cache backend failure")
	ErrFlagNotFound      = errors.New("flags: flag not known to remote")
	ErrInvalidConfig     = errors.New("flags: invalid configuration")
)

var sentinels = map[string]error{
	ErrorTypeRemoteUnavailable: ErrRemoteUnavailable,
	ErrorTypeRemoteAuth:        ErrRemoteAuth,
	ErrorTypeMalformedResponse: ErrMalformedResponse,
	ErrorTypeCircuitOpen:       ErrCircuitOpen,
	ErrorTypeOverrideParse:     ErrOverrideParse,
	ErrorTypeCacheBackend:      ErrCacheBackend,
	ErrorTypeFlagNotFound:      ErrFlagNotFound,
	ErrorTypeValidation:        ErrInvalidConfig,
}

// FlagError is the error type used across the package.
type FlagError struct {
	Type      string
	Message   string
	Flag      string
	Cause     error
	Timestamp time.Time
}

func newFlagError(errorType, message string, cause error) *FlagError {
	return &FlagError{
		Type:      errorType,
		Message:   message,
		Cause:     cause,
		Timestamp: time.Now(),
	}
}

// Error implements error interface.
func (e *FlagError) Error() string {
	if e == nil {
		return "<nil>"
	}
	msg := fmt.Sprintf("%s: %s", e.Type, e.Message)
	if e.Flag != "" {
		msg = fmt.Sprintf("%s [flag=%s]", msg, e.Flag)
	}
	if e.Cause != nil {
		msg = fmt.Sprintf("%s (%v)", msg, e.Cause)
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *FlagError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// Is matches another *FlagError of the same Type or the sentinel for Type.
func (e *FlagError) Is(target error) bool {
	if e == nil {
		return false
	}
	if targetErr, ok := target.(*FlagError); ok {
		return e.Type == targetErr.Type
	}
	if sentinel, ok := sentinels[e.Type]; ok {
		return sentinel == target
	}
	return false
}

// ErrorTypeOf returns the FlagError type found in err's chain, or "" if there
// is none.
func ErrorTypeOf(err error) string {
	var flagErr *FlagError
	if errors.As(err, &flagErr) {
		return flagErr.Type
	}
	return ""
}

// IsTransient reports whether err describes a condition expected to clear on
// its own (remote outage, open circuit, caller timeout).
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	switch ErrorTypeOf(err) {
	case ErrorTypeRemoteUnavailable, ErrorTypeCircuitOpen:
		return true
	default:
		return false
	}
}

// asFlagError wraps err into a FlagError of errorType unless it already is one.
func asFlagError(err error, errorType, message string) *FlagError {
	var flagErr *FlagError
	if errors.As(err, &flagErr) {
		return flagErr
	}
	return newFlagError(errorType, message, err)
}
