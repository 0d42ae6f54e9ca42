// Package errors provides the error model shared by every corrode tool.
package errors

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

// ============================================================
// Error Categories
// ============================================================

// Category defines the type of error for handling decisions.
type Category int

const (
	// CategoryTemporary errors are retryable (network timeouts, killed commands)
	CategoryTemporary Category = iota

	// CategoryPermanent errors are not retryable (unknown crate, unparsable file)
	CategoryPermanent

	// CategoryUser errors are caused by the caller (bad arguments, stale diff)
	CategoryUser

	// CategorySystem errors are local system failures (disk, permissions)
	CategorySystem

	// CategoryRateLimit errors come from an upstream quota
	CategoryRateLimit
)

// String returns the category name.
func (c Category) String() string {
	switch c {
	case CategoryTemporary:
		return "temporary"
	case CategoryPermanent:
		return "permanent"
	case CategoryUser:
		return "user"
	case CategorySystem:
		return "system"
	case CategoryRateLimit:
		return "rate_limit"
	default:
		return "unknown"
	}
}

// ============================================================
// AppError - Main Error Type
// ============================================================

// AppError is the error type every tool failure is converted to.
type AppError struct {
	// Code is a stable identifier for programmatic handling
	Code string

	// Message is a human-readable description
	Message string

	// Category determines how the error should be handled
	Category Category

	// Inner is the underlying error
	Inner error

	// Retryable indicates if the call can be retried unchanged
	Retryable bool

	// Suggestions are recovery hints for the calling agent
	Suggestions []string

	// Context carries actionable details (field names, hunk index, path)
	Context map[string]any

	// RetryAfter is the suggested delay before retry
	RetryAfter time.Duration
}

// Error returns the error message.
func (e *AppError) Error() string {
	var sb strings.Builder

	if e.Code != "" {
		sb.WriteString("[")
		sb.WriteString(e.Code)
		sb.WriteString("] ")
	}

	sb.WriteString(e.Message)

	if e.Inner != nil {
		innerMsg := e.Inner.Error()
		if innerMsg != "" && innerMsg != e.Message {
			sb.WriteString(": ")
			sb.WriteString(innerMsg)
		}
	}

	return sb.String()
}

// Unwrap returns the underlying error.
func (e *AppError) Unwrap() error {
	return e.Inner
}

// Is reports whether target is an AppError with the same code, or matches the inner error.
func (e *AppError) Is(target error) bool {
	var t *AppError
	if errors.As(target, &t) && t.Code != "" {
		return t.Code == e.Code
	}
	return errors.Is(e.Inner, target)
}

// With returns the error with an extra context entry. The receiver is modified.
func (e *AppError) With(key string, value any) *AppError {
	if e.Context == nil {
		e.Context = make(map[string]any)
	}
	e.Context[key] = value
	return e
}

// ============================================================
// Error Constructors
// ============================================================

// New creates a new AppError.
func New(code, message string, category Category) *AppError {
	return &AppError{
		Code:     code,
		Message:  message,
		Category: category,
	}
}

// Newf creates a new AppError with a formatted message.
func Newf(code string, category Category, format string, args ...any) *AppError {
	return New(code, fmt.Sprintf(format, args...), category)
}

// Wrap wraps an existing error with a code and message.
func Wrap(err error, code, message string, category Category) *AppError {
	if err == nil {
		return nil
	}

	var appErr *AppError
	if errors.As(err, &appErr) {
		return &AppError{
			Code:        code,
			Message:     message,
			Category:    category,
			Inner:       appErr,
			Retryable:   appErr.Retryable,
			Suggestions: appErr.Suggestions,
			Context:     appErr.Context,
		}
	}

	return &AppError{
		Code:      code,
		Message:   message,
		Category:  category,
		Inner:     err,
		Retryable: category == CategoryTemporary || category == CategoryRateLimit,
	}
}

// Temporary creates a retryable temporary error.
func Temporary(code, message string) *AppError {
	return &AppError{
		Code:      code,
		Message:   message,
		Category:  CategoryTemporary,
		Retryable: true,
	}
}

// Permanent creates a non-retryable permanent error.
func Permanent(code, message string) *AppError {
	return &AppError{
		Code:     code,
		Message:  message,
		Category: CategoryPermanent,
	}
}

// User creates a caller error.
func User(code, message string) *AppError {
	return &AppError{
		Code:     code,
		Message:  message,
		Category: CategoryUser,
	}
}

// RateLimit creates a rate limit error with retry after duration.
func RateLimit(code, message string, retryAfter time.Duration) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		Category:   CategoryRateLimit,
		Retryable:  true,
		RetryAfter: retryAfter,
		Suggestions: []string{
			fmt.Sprintf("Wait %s before retrying", retryAfter),
		},
	}
}

// InvalidArguments reports every offending argument of a call at once.
// Field names are sorted so the message is stable.
func InvalidArguments(problems map[string]string) *AppError {
	fields := make([]string, 0, len(problems))
	for f := range problems {
		fields = append(fields, f)
	}
	sort.Strings(fields)

	parts := make([]string, 0, len(fields))
	for _, f := range fields {
		parts = append(parts, f+": "+problems[f])
	}

	return NewBuilder(CodeInvalidArguments, "invalid arguments: "+strings.Join(parts, "; ")).
		User().
		WithContext("fields", fields).
		Build()
}

// ============================================================
// Builder Pattern for Fluent Error Construction
// ============================================================

// Builder provides fluent error construction.
type Builder struct {
	err *AppError
}

// NewBuilder starts building a new error. Errors default to permanent.
func NewBuilder(code, message string) *Builder {
	return &Builder{
		err: &AppError{
			Code:     code,
			Message:  message,
			Category: CategoryPermanent,
			Context:  make(map[string]any),
		},
	}
}

// Temporary marks the error as temporary/retryable.
func (b *Builder) Temporary() *Builder {
	b.err.Category = CategoryTemporary
	b.err.Retryable = true
	return b
}

// Permanent marks the error as permanent/non-retryable.
func (b *Builder) Permanent() *Builder {
	b.err.Category = CategoryPermanent
	b.err.Retryable = false
	return b
}

// User marks the error as a caller error.
func (b *Builder) User() *Builder {
	b.err.Category = CategoryUser
	b.err.Retryable = false
	return b
}

// System marks the error as a system error.
func (b *Builder) System() *Builder {
	b.err.Category = CategorySystem
	b.err.Retryable = false
	return b
}

// Wrap sets the underlying error.
func (b *Builder) Wrap(err error) *Builder {
	b.err.Inner = err
	return b
}

// WithSuggestion adds a recovery suggestion.
func (b *Builder) WithSuggestion(suggestion string) *Builder {
	b.err.Suggestions = append(b.err.Suggestions, suggestion)
	return b
}

// WithContext adds context information.
func (b *Builder) WithContext(key string, value any) *Builder {
	b.err.Context[key] = value
	return b
}

// WithRetryAfter sets the suggested retry delay.
func (b *Builder) WithRetryAfter(duration time.Duration) *Builder {
	b.err.RetryAfter = duration
	return b
}

// Build returns the constructed error.
func (b *Builder) Build() *AppError {
	if len(b.err.Context) == 0 {
		b.err.Context = nil
	}
	return b.err
}

// ============================================================
// Error Codes
// ============================================================

const (
	// Protocol errors
	CodeProtocolError    = "PROTOCOL_ERROR"
	CodeToolNotFound     = "TOOL_NOT_FOUND"
	CodeInvalidArguments = "INVALID_ARGUMENTS"

	// Handler errors
	CodeToolExecutionFailed = "TOOL_EXECUTION_FAILED"
	CodeToolPanic           = "TOOL_PANIC"
	CodeToolTimeout         = "TOOL_TIMEOUT"

	// Analyzer errors
	CodeAnalysisError = "ANALYSIS_ERROR"

	// Patch errors
	CodeInvalidDiff  = "INVALID_DIFF"
	CodeHunkMismatch = "HUNK_MISMATCH"

	// Shell errors
	CodeShellNotFound = "SHELL_NOT_FOUND"
	CodeShellTimedOut = "SHELL_TIMED_OUT"
	CodeCommandFailed = "COMMAND_FAILED"

	// Build errors
	CodeNotRustProject = "NOT_RUST_PROJECT"

	// File errors
	CodeFileNotFound    = "FILE_NOT_FOUND"
	CodeFileReadFailed  = "FILE_READ_FAILED"
	CodeFileWriteFailed = "FILE_WRITE_FAILED"
	CodeFileNotUTF8     = "FILE_NOT_UTF8"

	// Network errors
	CodeCrateNotFound      = "CRATE_NOT_FOUND"
	CodeNetworkUnavailable = "NETWORK_UNAVAILABLE"
	CodeUpstreamRateLimit  = "UPSTREAM_RATE_LIMIT"
	CodeUpstreamError      = "UPSTREAM_ERROR"

	// Config errors
	CodeConfigInvalid = "CONFIG_INVALID"
)

// ============================================================
// Helpers
// ============================================================

// GetCode extracts the code from an error, or CodeToolExecutionFailed for plain errors.
func GetCode(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) && appErr.Code != "" {
		return appErr.Code
	}
	return CodeToolExecutionFailed
}

// GetCategory extracts the category from an error.
// Returns CategoryTemporary for non-AppError errors.
func GetCategory(err error) Category {
	if err == nil {
		return CategoryTemporary
	}

	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Category
	}

	return CategoryTemporary
}

// IsRetryable checks if an error is retryable.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Retryable
	}

	return true
}

// GetRetryAfter returns the suggested retry duration.
func GetRetryAfter(err error) time.Duration {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.RetryAfter
	}
	return 0
}

// GetSuggestions returns recovery suggestions for an error.
func GetSuggestions(err error) []string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Suggestions
	}
	return nil
}

// GetContext returns the context map of the outermost AppError, if any.
func GetContext(err error) map[string]any {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Context
	}
	return nil
}

// HasCode reports whether any AppError in the chain carries code.
func HasCode(err error, code string) bool {
	for err != nil {
		var appErr *AppError
		if !errors.As(err, &appErr) {
			return false
		}
		if appErr.Code == code {
			return true
		}
		err = appErr.Inner
	}
	return false
}
