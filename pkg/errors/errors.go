// Package errors provides the reconciliation core's typed error type.
// The orchestrator reports every failure as a *ReconcilerError instead of
// relying on panics or sentinel values, carrying a stable category/kind, a human message, a
// suggestion, free-form context, and (via github.com/pkg/errors) a
// stack trace captured at construction time.
package errors

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

// ErrorCategory represents the ambient (non-domain) error categories
// shared by every stage: missing files, malformed records, bad
// configuration, and unexpected internal failures.
type ErrorCategory string

const (
	CategoryFile          ErrorCategory = "file"
	CategoryParse         ErrorCategory = "parse"
	CategoryValidation    ErrorCategory = "validation"
	CategoryConfiguration ErrorCategory = "configuration"
	CategoryPipeline      ErrorCategory = "pipeline"
	CategoryInternal      ErrorCategory = "internal"
)

// ErrorCode is the ambient-category error code.
type ErrorCode string

const (
	CodeFileNotFound   ErrorCode = "file_not_found"
	CodeFilePermission ErrorCode = "file_permission"
	CodeFileCorrupted  ErrorCode = "file_corrupted"

	CodeInvalidFormat ErrorCode = "invalid_format"
	CodeEncodingError ErrorCode = "encoding_error"

	CodeInvalidAmount ErrorCode = "invalid_amount"
	CodeInvalidDate   ErrorCode = "invalid_date"
	CodeMissingField  ErrorCode = "missing_field"
	CodeOutOfRange    ErrorCode = "out_of_range"

	CodeInvalidConfig  ErrorCode = "invalid_config"
	CodeMissingConfig  ErrorCode = "missing_config"
	CodeConfigConflict ErrorCode = "config_conflict"

	CodeUnexpectedError   ErrorCode = "unexpected_error"
	CodeResourceExhausted ErrorCode = "resource_exhausted"
)

// Kind enumerates the seven domain error kinds the pipeline stages
// raise, distinct from the ambient categories above.
type Kind string

const (
	KindBoundariesMissing Kind = "BoundariesMissing"
	KindNoAnchors         Kind = "NoAnchors"
	KindCspInfeasible     Kind = "CspInfeasible"
	KindSolverTimeout     Kind = "SolverTimeout"
	KindSolverInfeasible  Kind = "SolverInfeasible"
	KindClusterHardStop   Kind = "ClusterHardStop"
	KindInvalidInput      Kind = "InvalidInput"
)

// ReconcilerError is the base error type for all pipeline errors.
type ReconcilerError struct {
	Category   ErrorCategory     `json:"category"`
	Code       ErrorCode         `json:"code,omitempty"`
	Kind       Kind              `json:"kind,omitempty"`
	Message    string            `json:"message"`
	Suggestion string            `json:"suggestion,omitempty"`
	Context    Context           `json:"context,omitempty"`
	Cause      error             `json:"-"`
	StackTrace errors.StackTrace `json:"-"`
}

// Context provides additional information about the error.
type Context map[string]interface{}

// Error implements the error interface.
func (e *ReconcilerError) Error() string {
	if e.Suggestion != "" {
		return fmt.Sprintf("%s (suggestion: %s)", e.Message, e.Suggestion)
	}
	return e.Message
}

// Unwrap returns the underlying cause error.
func (e *ReconcilerError) Unwrap() error {
	return e.Cause
}

// IsRecoverable reports whether the error's kind is recoverable at the
// orchestrator boundary (the per-record/per-phase failures spec.md §7
// names as non-fatal) rather than stage-fatal.
func (e *ReconcilerError) IsRecoverable() bool {
	return e.Kind == KindSolverTimeout
}

// WithContext adds context information to the error.
func (e *ReconcilerError) WithContext(key string, value interface{}) *ReconcilerError {
	if e.Context == nil {
		e.Context = make(Context)
	}
	e.Context[key] = value
	return e
}

// WithSuggestion adds a suggestion for fixing the error.
func (e *ReconcilerError) WithSuggestion(suggestion string) *ReconcilerError {
	e.Suggestion = suggestion
	return e
}

// New creates a new ReconcilerError in an ambient category.
func New(category ErrorCategory, code ErrorCode, message string) *ReconcilerError {
	return &ReconcilerError{
		Category:   category,
		Code:       code,
		Message:    message,
		StackTrace: errors.New("").(stackTracer).StackTrace(),
	}
}

// Wrap wraps an existing error with ReconcilerError context.
func Wrap(err error, category ErrorCategory, code ErrorCode, message string) *ReconcilerError {
	if err == nil {
		return nil
	}
	return &ReconcilerError{
		Category:   category,
		Code:       code,
		Message:    message,
		Cause:      err,
		StackTrace: errors.WithStack(err).(stackTracer).StackTrace(),
	}
}

type stackTracer interface {
	StackTrace() errors.StackTrace
}

// --- Domain kind constructors (spec.md §7) ---

// BoundariesMissing reports that BankRecovery could not find the
// document's start or end balance row.
func BoundariesMissing(docPath string, missingStart, missingEnd bool) *ReconcilerError {
	e := New(CategoryPipeline, "", fmt.Sprintf("could not locate required balance rows in %s", docPath))
	e.Kind = KindBoundariesMissing
	return e.
		WithSuggestion("verify the document contains a recognizable start and end balance line").
		WithContext("missing_start", missingStart).
		WithContext("missing_end", missingEnd)
}

// NoAnchors reports that BankRecovery found no date-anchored rows.
func NoAnchors(docPath string, pagesScanned int) *ReconcilerError {
	e := New(CategoryPipeline, "", fmt.Sprintf("no date anchors found in %s", docPath))
	e.Kind = KindNoAnchors
	return e.
		WithSuggestion("check that the OCR output preserves row-level date text").
		WithContext("pages_scanned", pagesScanned)
}

// CspInfeasible reports that the BankRecovery global constraint solve
// found no block assignment within tolerance.
func CspInfeasible(startCents, endCents, tolerance int64, blockCount int) *ReconcilerError {
	e := New(CategoryPipeline, "", "no block assignment satisfies the declared balance tolerance")
	e.Kind = KindCspInfeasible
	return e.
		WithSuggestion("widen the tolerance or inspect hypothesis generation for missing variants").
		WithContext("start_cents", startCents).
		WithContext("end_cents", endCents).
		WithContext("tolerance_cents", tolerance).
		WithContext("block_count", blockCount)
}

// SolverTimeout reports that a LexSolver phase exceeded its time slice;
// recoverable — the best feasible point found so far is reused.
func SolverTimeout(phase int, clusterID string, elapsedMs int64) *ReconcilerError {
	e := New(CategoryPipeline, "", fmt.Sprintf("lexsolver phase %d timed out on cluster %s", phase, clusterID))
	e.Kind = KindSolverTimeout
	return e.
		WithSuggestion("the previous phase's feasible solution was reused").
		WithContext("phase", phase).
		WithContext("cluster_id", clusterID).
		WithContext("elapsed_ms", elapsedMs)
}

// SolverInfeasible reports that LexSolver phase 1 is infeasible; the
// cluster is handed to RescueLoop as a manual-review candidate.
func SolverInfeasible(clusterID string, phase int) *ReconcilerError {
	e := New(CategoryPipeline, "", fmt.Sprintf("lexsolver phase %d infeasible for cluster %s", phase, clusterID))
	e.Kind = KindSolverInfeasible
	return e.
		WithSuggestion("cluster routed to rescue loop for manual review").
		WithContext("cluster_id", clusterID).
		WithContext("phase", phase)
}

// ClusterHardStop reports that a RescueLoop merge attempt exceeded the
// hard size cap and was rejected.
func ClusterHardStop(clusterID string, attemptedSize, cap int) *ReconcilerError {
	e := New(CategoryPipeline, "", fmt.Sprintf("merge for cluster %s would exceed hard stop size", clusterID))
	e.Kind = KindClusterHardStop
	return e.
		WithSuggestion("cluster escalated to manual review instead of merging").
		WithContext("cluster_id", clusterID).
		WithContext("attempted_size", attemptedSize).
		WithContext("cap", cap)
}

// InvalidInput reports a malformed OcrDocument or Invoice record.
func InvalidInput(field string, value interface{}, reason string) *ReconcilerError {
	e := New(CategoryValidation, CodeInvalidFormat, fmt.Sprintf("invalid input in field '%s': %s", field, reason))
	e.Kind = KindInvalidInput
	return e.
		WithContext("field", field).
		WithContext("value", value)
}

// --- Ambient-category constructors (file/parse/validation/config/internal) ---

// FileError creates a file-related error.
func FileError(code ErrorCode, path string, err error) *ReconcilerError {
	var message, suggestion string
	switch code {
	case CodeFileNotFound:
		message = fmt.Sprintf("file not found: %s", path)
		suggestion = "check if the file path is correct and the file exists"
	case CodeFilePermission:
		message = fmt.Sprintf("permission denied accessing file: %s", path)
		suggestion = "check file permissions and ensure you have read access"
	case CodeFileCorrupted:
		message = fmt.Sprintf("file appears to be corrupted: %s", path)
		suggestion = "verify the file integrity and try using a backup copy"
	default:
		message = fmt.Sprintf("file error: %s", path)
		suggestion = "check the file and try again"
	}

	var result *ReconcilerError
	if err != nil {
		result = Wrap(err, CategoryFile, code, message)
	} else {
		result = New(CategoryFile, code, message)
	}
	return result.WithSuggestion(suggestion).WithContext("file_path", path)
}

// ValidationError creates a validation-related error.
func ValidationError(code ErrorCode, field string, value interface{}, err error) *ReconcilerError {
	var message, suggestion string
	switch code {
	case CodeInvalidAmount:
		message = fmt.Sprintf("invalid amount in field '%s': %v", field, value)
		suggestion = "ensure amounts resolve to a whole number of cents"
	case CodeInvalidDate:
		message = fmt.Sprintf("invalid date in field '%s': %v", field, value)
		suggestion = "use an unambiguous ISO-8601 date"
	case CodeMissingField:
		message = fmt.Sprintf("required field '%s' is missing or empty", field)
		suggestion = "provide a value for this required field"
	case CodeOutOfRange:
		message = fmt.Sprintf("value out of range in field '%s': %v", field, value)
		suggestion = "ensure the value is within the acceptable range"
	default:
		message = fmt.Sprintf("validation error in field '%s': %v", field, value)
		suggestion = "check the field value and format"
	}

	var result *ReconcilerError
	if err != nil {
		result = Wrap(err, CategoryValidation, code, message)
	} else {
		result = New(CategoryValidation, code, message)
	}
	return result.WithSuggestion(suggestion).WithContext("field", field).WithContext("value", value)
}

// ConfigurationError creates a configuration-related error.
func ConfigurationError(code ErrorCode, setting string, value interface{}, err error) *ReconcilerError {
	var message, suggestion string
	switch code {
	case CodeInvalidConfig:
		message = fmt.Sprintf("invalid configuration for '%s': %v", setting, value)
		suggestion = "check the configuration documentation for valid values"
	case CodeMissingConfig:
		message = fmt.Sprintf("missing required configuration: %s", setting)
		suggestion = "provide this configuration setting or use a default"
	case CodeConfigConflict:
		message = fmt.Sprintf("configuration conflict with setting '%s': %v", setting, value)
		suggestion = "resolve the conflicting settings or use default values"
	default:
		message = fmt.Sprintf("configuration error: %s", setting)
		suggestion = "check your configuration and try again"
	}

	var result *ReconcilerError
	if err != nil {
		result = Wrap(err, CategoryConfiguration, code, message)
	} else {
		result = New(CategoryConfiguration, code, message)
	}
	return result.WithSuggestion(suggestion).WithContext("setting", setting).WithContext("value", value)
}

// InternalError creates an internal error.
func InternalError(code ErrorCode, operation string, err error) *ReconcilerError {
	var message, suggestion string
	switch code {
	case CodeUnexpectedError:
		message = fmt.Sprintf("unexpected error during %s", operation)
		suggestion = "this is likely a bug - please report it with the error details"
	case CodeResourceExhausted:
		message = fmt.Sprintf("resource exhausted during %s", operation)
		suggestion = "try reducing cluster size or increasing the solver timeout"
	default:
		message = fmt.Sprintf("internal error during %s", operation)
		suggestion = "try again or inspect the audit log for detail"
	}

	var result *ReconcilerError
	if err != nil {
		result = Wrap(err, CategoryInternal, code, message)
	} else {
		result = New(CategoryInternal, code, message)
	}
	return result.WithSuggestion(suggestion).WithContext("operation", operation)
}

// ErrorSummary aggregates multiple errors accumulated across a run.
type ErrorSummary struct {
	Total        int                `json:"total"`
	ByCategory   map[ErrorCategory]int `json:"by_category"`
	ByKind       map[Kind]int       `json:"by_kind"`
	Errors       []*ReconcilerError `json:"errors"`
	SampleErrors []*ReconcilerError `json:"sample_errors,omitempty"`
}

// NewErrorSummary creates a new error summary.
func NewErrorSummary(errs []*ReconcilerError) *ErrorSummary {
	summary := &ErrorSummary{
		ByCategory: make(map[ErrorCategory]int),
		ByKind:     make(map[Kind]int),
	}
	if len(errs) == 0 {
		summary.Errors = []*ReconcilerError{}
		return summary
	}

	summary.Total = len(errs)
	summary.Errors = errs
	for _, err := range errs {
		summary.ByCategory[err.Category]++
		if err.Kind != "" {
			summary.ByKind[err.Kind]++
		}
	}

	const maxSamples = 5
	if len(errs) > maxSamples {
		summary.SampleErrors = errs[:maxSamples]
	} else {
		summary.SampleErrors = errs
	}
	return summary
}

// Error returns a formatted error message for the summary.
func (es *ErrorSummary) Error() string {
	if es.Total == 0 {
		return "no errors"
	}
	if es.Total == 1 {
		return es.Errors[0].Error()
	}
	var categories []string
	for category, count := range es.ByCategory {
		categories = append(categories, fmt.Sprintf("%s: %d", category, count))
	}
	return fmt.Sprintf("%d errors occurred (%s)", es.Total, strings.Join(categories, ", "))
}

// HasKind checks if the summary contains errors of the given domain kind.
func (es *ErrorSummary) HasKind(kind Kind) bool {
	count, exists := es.ByKind[kind]
	return exists && count > 0
}

// IsReconcilerError checks if an error is a ReconcilerError.
func IsReconcilerError(err error) bool {
	_, ok := err.(*ReconcilerError)
	return ok
}

// AsReconcilerError extracts a ReconcilerError from an error chain.
func AsReconcilerError(err error) (*ReconcilerError, bool) {
	var reconcilerErr *ReconcilerError
	if errors.As(err, &reconcilerErr) {
		return reconcilerErr, true
	}
	return nil, false
}

// WrapIfNeeded wraps an error if it's not already a ReconcilerError.
func WrapIfNeeded(err error, category ErrorCategory, code ErrorCode, message string) *ReconcilerError {
	if err == nil {
		return nil
	}
	if reconcilerErr, ok := AsReconcilerError(err); ok {
		return reconcilerErr
	}
	return Wrap(err, category, code, message)
}
