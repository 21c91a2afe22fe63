package models

import (
	"fmt"
	"strings"
)

// ErrorType identifies the category of error recorded on an outcome.
type ErrorType string

const (
	// Pre-dispatch
	ErrTaskInvalid ErrorType = "task_invalid"
	ErrBindFailed  ErrorType = "bind_failed"

	// Dispatch
	ErrDispatchFailed ErrorType = "dispatch_failed"

	// Run control
	ErrCancelled ErrorType = "cancelled"

	// Catch-all
	ErrInternalError ErrorType = "internal_error"
)

// ConfigErrorKind names the class of a fatal configuration problem.
type ConfigErrorKind string

const (
	MissingRoles   ConfigErrorKind = "missing_roles"
	DuplicateRoles ConfigErrorKind = "duplicate_roles"
	MissingColumns ConfigErrorKind = "missing_columns"
	UnboundTarget  ConfigErrorKind = "unbound_target"
	InvalidConfig  ConfigErrorKind = "invalid_config"
)

// ConfigError is a fatal, pre-run error. Items lists every offending name,
// never just the first one found.
type ConfigError struct {
	Kind  ConfigErrorKind
	Items []string
	Err   error
}

func (e *ConfigError) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Kind))
	if len(e.Items) > 0 {
		fmt.Fprintf(&b, ": [%s]", strings.Join(e.Items, ", "))
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

// TaskError is attached to a failed task outcome.
type TaskError struct {
	Type    ErrorType `json:"type"`
	Message string    `json:"message"`
}

func (e *TaskError) Error() string {
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// PersistenceError reports a failed write of a snapshot or report. It is
// recorded on the batch report and never aborts the batch.
type PersistenceError struct {
	Path string
	Err  error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persisting %s: %v", e.Path, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}
