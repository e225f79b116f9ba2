package domain

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrCanceled is returned when a query is abandoned because its context was
// canceled or timed out. It is never wrapped in an ExecutionError.
var ErrCanceled = errors.New("query canceled")

// TranslationError is raised when an expression cannot be lowered to SQL.
type TranslationError struct {
	Fragment string
	Reason   string
	Cause    error
}

// Error implements the error interface.
func (e *TranslationError) Error() string {
	msg := fmt.Sprintf("cannot translate %q: %s", e.Fragment, e.Reason)
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

// Unwrap returns the underlying error.
func (e *TranslationError) Unwrap() error {
	return e.Cause
}

// ModelBuildError is raised when a query model operation is invalid, such as a
// union arity mismatch or a mutation after freeze.
type ModelBuildError struct {
	Op     string
	Reason string
}

// Error implements the error interface.
func (e *ModelBuildError) Error() string {
	return fmt.Sprintf("%s: %s", e.Op, e.Reason)
}

// RenderError is raised when a model uses a construct the dialect cannot
// express.
type RenderError struct {
	Dialect   string
	Construct string
	Reason    string
}

// Error implements the error interface.
func (e *RenderError) Error() string {
	return fmt.Sprintf("%s: cannot render %s: %s", e.Dialect, e.Construct, e.Reason)
}

// ExecutionError wraps a database failure together with the statement that
// caused it.
type ExecutionError struct {
	SQL   string
	Args  []any
	Cause error
}

// Error implements the error interface.
func (e *ExecutionError) Error() string {
	sql := e.SQL
	if len(sql) > 200 {
		sql = sql[:200] + "..."
	}
	return fmt.Sprintf("query execution failed: %v [sql: %s]", e.Cause, strings.TrimSpace(sql))
}

// Unwrap returns the underlying error.
func (e *ExecutionError) Unwrap() error {
	return e.Cause
}

// NewModelBuildError creates a ModelBuildError.
func NewModelBuildError(op, format string, args ...any) *ModelBuildError {
	return &ModelBuildError{Op: op, Reason: fmt.Sprintf(format, args...)}
}

// Canceled wraps a context error so that it matches both ErrCanceled and the
// context sentinel.
func Canceled(err error) error {
	return fmt.Errorf("%w: %w", ErrCanceled, err)
}

// CheckContext returns a cancellation error if ctx is done.
func CheckContext(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return Canceled(err)
	}
	return nil
}

// IsTranslationError checks if an error is a TranslationError.
func IsTranslationError(err error) bool {
	var target *TranslationError
	return errors.As(err, &target)
}

// IsModelBuildError checks if an error is a ModelBuildError.
func IsModelBuildError(err error) bool {
	var target *ModelBuildError
	return errors.As(err, &target)
}

// IsRenderError checks if an error is a RenderError.
func IsRenderError(err error) bool {
	var target *RenderError
	return errors.As(err, &target)
}

// IsExecutionError checks if an error is an ExecutionError.
func IsExecutionError(err error) bool {
	var target *ExecutionError
	return errors.As(err, &target)
}

// IsCanceled checks if an error is a cancellation.
func IsCanceled(err error) bool {
	return errors.Is(err, ErrCanceled)
}
