package flux

import (
	"errors"
	"fmt"
)

// ConfigurationError reports a malformed action or store registration.
//
// Configuration errors are returned synchronously from registration or
// dispatch and are never recovered inside the engine:
//   - Mapper required: a channel was invoked with several arguments but no mapper
//   - Missing handler: On was called without a usable handler
//   - Duplicate store: a store id is already registered on the engine
//   - State type: SetAnyState received a value of the wrong type
type ConfigurationError struct {
	// Code identifies the error category.
	Code ConfigErrorCode

	// Message is a human-readable description.
	Message string

	// Store identifies the affected store, if any.
	Store string

	// Channel identifies the affected action channel, if any.
	Channel string
}

// ConfigErrorCode categorizes configuration errors.
type ConfigErrorCode string

const (
	// ErrCodeMapperRequired indicates a multi-argument invocation without a mapper.
	ErrCodeMapperRequired ConfigErrorCode = "MAPPER_REQUIRED"

	// ErrCodeMissingHandler indicates a subscription without a handler.
	ErrCodeMissingHandler ConfigErrorCode = "MISSING_HANDLER"

	// ErrCodeMissingAction indicates a dispatch without an action.
	ErrCodeMissingAction ConfigErrorCode = "MISSING_ACTION"

	// ErrCodeMissingDependency indicates a nil entry in a wait-for list.
	ErrCodeMissingDependency ConfigErrorCode = "MISSING_DEPENDENCY"

	// ErrCodeDuplicateStore indicates a store id registered twice.
	ErrCodeDuplicateStore ConfigErrorCode = "DUPLICATE_STORE"

	// ErrCodeStateType indicates a restored state that does not fit the store.
	ErrCodeStateType ConfigErrorCode = "STATE_TYPE"

	// ErrCodeEngineClosed indicates use of an engine after Close.
	ErrCodeEngineClosed ConfigErrorCode = "ENGINE_CLOSED"
)

// Error implements the error interface.
func (e *ConfigurationError) Error() string {
	switch {
	case e.Store != "" && e.Channel != "":
		return fmt.Sprintf("%s: %s (store=%s, action=%s)", e.Code, e.Message, e.Store, e.Channel)
	case e.Store != "":
		return fmt.Sprintf("%s: %s (store=%s)", e.Code, e.Message, e.Store)
	case e.Channel != "":
		return fmt.Sprintf("%s: %s (action=%s)", e.Code, e.Message, e.Channel)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// ReducerError wraps an error returned by an application reducer.
//
// The engine does not catch and continue: the first reducer error stops
// propagation and travels back to the Dispatch caller.
type ReducerError struct {
	StoreID string
	Action  string
	Err     error
}

func (e *ReducerError) Error() string {
	return fmt.Sprintf("reducer failed (store=%s, action=%s): %v", e.StoreID, e.Action, e.Err)
}

func (e *ReducerError) Unwrap() error {
	return e.Err
}

// ErrReplayInProgress is returned by Dispatch under ReplayReject while a
// history replay is scheduled but has not run yet.
var ErrReplayInProgress = errors.New("replay in progress")

// IsConfigurationError returns true if err is or wraps a ConfigurationError.
func IsConfigurationError(err error) bool {
	var ce *ConfigurationError
	return errors.As(err, &ce)
}

// IsReducerError returns true if err is or wraps a ReducerError.
func IsReducerError(err error) bool {
	var re *ReducerError
	return errors.As(err, &re)
}

// ConfigCode returns the code of the ConfigurationError wrapped by err, or "".
func ConfigCode(err error) ConfigErrorCode {
	var ce *ConfigurationError
	if errors.As(err, &ce) {
		return ce.Code
	}
	return ""
}

func newConfigError(code ConfigErrorCode, msg string) *ConfigurationError {
	return &ConfigurationError{Code: code, Message: msg}
}
