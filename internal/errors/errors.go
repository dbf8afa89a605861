// Package errors defines the pipeline's error taxonomy. Every error carries
// the table or statement it concerns so failures are traceable from the text
// alone.
package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorCode classifies a pipeline failure.
type ErrorCode string

const (
	CodeExecution     ErrorCode = "EXEC"
	CodeQuality       ErrorCode = "QUALITY"
	CodeConfiguration ErrorCode = "CONFIG"
)

// ExecutionError is a warehouse or backend failure: connectivity, syntax,
// permission, constraint violation. The backend error is kept unmodified.
type ExecutionError struct {
	Statement string
	Err       error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("[%s] statement %q failed: %v", CodeExecution, e.Statement, e.Err)
}

func (e *ExecutionError) Unwrap() error { return e.Err }

// QualityCheckError reports a table that failed the post-load row-count check.
type QualityCheckError struct {
	Table  string
	Query  string
	Reason string
}

func (e *QualityCheckError) Error() string {
	return fmt.Sprintf("[%s] data quality check failed: %s %s (query: %s)", CodeQuality, e.Table, e.Reason, e.Query)
}

// ConfigurationError is a malformed pipeline definition. It is raised while
// the graph is built, before any task runs.
type ConfigurationError struct {
	Subject string
	Message string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("[%s] %s: %s", CodeConfiguration, e.Subject, e.Message)
}

func NewConfigurationError(subject, format string, args ...interface{}) *ConfigurationError {
	return &ConfigurationError{Subject: subject, Message: fmt.Sprintf(format, args...)}
}

func IsExecution(err error) bool {
	var e *ExecutionError
	return stderrors.As(err, &e)
}

func IsQuality(err error) bool {
	var e *QualityCheckError
	return stderrors.As(err, &e)
}

func IsConfiguration(err error) bool {
	var e *ConfigurationError
	return stderrors.As(err, &e)
}

// Code classifies err by the kinds found anywhere in its chain, preferring
// CONFIG over QUALITY over EXEC regardless of wrapping order. It returns ""
// when no kind is present.
func Code(err error) ErrorCode {
	switch {
	case err == nil:
		return ""
	case IsConfiguration(err):
		return CodeConfiguration
	case IsQuality(err):
		return CodeQuality
	case IsExecution(err):
		return CodeExecution
	}
	return ""
}

// Retryable reports whether a scheduler may re-invoke a task that failed with
// err. Configuration errors never are; quality failures only when the caller
// opts in.
func Retryable(err error, retryQuality bool) bool {
	switch {
	case err == nil:
		return false
	case IsConfiguration(err):
		return false
	case IsQuality(err):
		return retryQuality
	}
	return true
}
