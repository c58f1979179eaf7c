package errors

import (
	"fmt"
	"path/filepath"
	"strings"
)

// OcrContext locates a recoverable parse failure inside an OcrDocument:
// the source file, the page/row/word position, and the raw text seen.
type OcrContext struct {
	File     string `json:"file"`
	Page     int    `json:"page"`
	Row      int    `json:"row"`
	Word     string `json:"word,omitempty"`
	Value    string `json:"value"`
	Expected string `json:"expected,omitempty"`
}

// EnhancedParseError extends the base ReconcilerError with positional
// context and a recoverability flag, so the orchestrator can decide
// whether to drop a single bad record or abort the stage.
type EnhancedParseError struct {
	*ReconcilerError
	Context     *OcrContext `json:"context"`
	Recoverable bool        `json:"recoverable"`
	Examples    []string    `json:"examples,omitempty"`
}

// Error implements the error interface with enhanced formatting.
func (e *EnhancedParseError) Error() string {
	parts := []string{e.ReconcilerError.Error()}
	if e.Context != nil {
		location := fmt.Sprintf("at %s page %d row %d", filepath.Base(e.Context.File), e.Context.Page, e.Context.Row)
		parts = append(parts, location)
	}
	return strings.Join(parts, " ")
}

// GetDetailedError returns a detailed multi-line error description.
func (e *EnhancedParseError) GetDetailedError() string {
	var lines []string
	lines = append(lines, fmt.Sprintf("ERROR: %s", e.Message))
	if e.Context != nil {
		lines = append(lines, fmt.Sprintf("  → File: %s", e.Context.File))
		lines = append(lines, fmt.Sprintf("  → Page: %d  Row: %d", e.Context.Page, e.Context.Row))
		if e.Context.Value != "" {
			lines = append(lines, fmt.Sprintf("  → Value: '%s'", e.Context.Value))
		}
		if e.Context.Expected != "" {
			lines = append(lines, fmt.Sprintf("  → Expected: %s", e.Context.Expected))
		}
	}
	if e.Suggestion != "" {
		lines = append(lines, fmt.Sprintf("  → Suggestion: %s", e.Suggestion))
	}
	if len(e.Examples) > 0 {
		lines = append(lines, "  → Examples:")
		for _, example := range e.Examples {
			lines = append(lines, fmt.Sprintf("    • %s", example))
		}
	}
	return strings.Join(lines, "\n")
}

// NewEnhancedParseError creates a new enhanced parse error.
func NewEnhancedParseError(code ErrorCode, context *OcrContext, message string, cause error) *EnhancedParseError {
	var baseError *ReconcilerError
	if cause != nil {
		baseError = Wrap(cause, CategoryParse, code, message)
	} else {
		baseError = New(CategoryParse, code, message)
	}
	if context != nil {
		baseError.WithContext("file", context.File).
			WithContext("page", context.Page).
			WithContext("row", context.Row).
			WithContext("value", context.Value)
	}
	return &EnhancedParseError{
		ReconcilerError: baseError,
		Context:         context,
		Recoverable:     true,
	}
}

func (e *EnhancedParseError) WithExamples(examples ...string) *EnhancedParseError {
	e.Examples = examples
	return e
}

func (e *EnhancedParseError) WithSuggestion(suggestion string) *EnhancedParseError {
	e.ReconcilerError.WithSuggestion(suggestion)
	return e
}

func (e *EnhancedParseError) WithRecoverable(recoverable bool) *EnhancedParseError {
	e.Recoverable = recoverable
	return e
}

// InvalidNumericTokenError reports an OCR candidate token that could
// not be turned into any Variant during hypothesis generation.
func InvalidNumericTokenError(file string, page, row int, token string) *EnhancedParseError {
	context := &OcrContext{File: file, Page: page, Row: row, Value: token, Expected: "a parseable currency amount"}
	return NewEnhancedParseError(CodeInvalidFormat, context, "could not derive any hypothesis from numeric token", nil).
		WithExamples("1,234.56", "1.234,56", "l00.00 (ocr-fix candidate)").
		WithSuggestion("inspect the OCR-fix substitution table for this token shape")
}

// MaskedCardTokenError reports a token rejected because it matches a
// masked card pattern or an unpunctuated four-digit integer.
func MaskedCardTokenError(file string, page, row int, token string) *EnhancedParseError {
	context := &OcrContext{File: file, Page: page, Row: row, Value: token}
	err := NewEnhancedParseError(CodeInvalidFormat, context, "token rejected as a likely card number, not an amount", nil).
		WithSuggestion("masked (`*`-containing) and bare four-digit tokens never generate variants")
	err.Recoverable = true
	return err
}

// EncodingError creates an error for file encoding issues.
func EncodingError(file string, cause error) *EnhancedParseError {
	context := &OcrContext{File: file}
	err := NewEnhancedParseError(CodeEncodingError, context, "file encoding error", cause).
		WithSuggestion("ensure the OCR output was saved in UTF-8 encoding")
	err.Recoverable = false
	return err
}

// OutOfRangeError creates an error for values outside acceptable ranges.
func OutOfRangeError(file string, page, row int, value string, min, max interface{}) *EnhancedParseError {
	context := &OcrContext{File: file, Page: page, Row: row, Value: value, Expected: fmt.Sprintf("value between %v and %v", min, max)}
	return NewEnhancedParseError(CodeOutOfRange, context, "value out of acceptable range", nil).
		WithSuggestion(fmt.Sprintf("ensure the value is between %v and %v", min, max))
}

// ParseErrorCollector collects multiple recoverable parse errors
// encountered while processing a document, so the orchestrator can
// drop the offending records and continue rather than aborting.
type ParseErrorCollector struct {
	errors          []*EnhancedParseError
	maxErrors       int
	continueOnError bool
}

// NewParseErrorCollector creates a new error collector.
func NewParseErrorCollector(maxErrors int, continueOnError bool) *ParseErrorCollector {
	return &ParseErrorCollector{
		errors:          make([]*EnhancedParseError, 0),
		maxErrors:       maxErrors,
		continueOnError: continueOnError,
	}
}

// Add adds an error to the collector. It returns false when the caller
// should stop processing (too many errors, or a non-recoverable error
// with continueOnError disabled).
func (c *ParseErrorCollector) Add(err *EnhancedParseError) bool {
	if err == nil {
		return true
	}
	c.errors = append(c.errors, err)
	if c.maxErrors > 0 && len(c.errors) >= c.maxErrors {
		return false
	}
	return c.continueOnError || err.Recoverable
}

func (c *ParseErrorCollector) HasErrors() bool {
	return len(c.errors) > 0
}

func (c *ParseErrorCollector) GetErrors() []*EnhancedParseError {
	return c.errors
}

// GetReconcilerErrors converts all collected errors to the base type.
func (c *ParseErrorCollector) GetReconcilerErrors() []*ReconcilerError {
	result := make([]*ReconcilerError, len(c.errors))
	for i, err := range c.errors {
		result[i] = err.ReconcilerError
	}
	return result
}

func (c *ParseErrorCollector) GetSummary() *ErrorSummary {
	return NewErrorSummary(c.GetReconcilerErrors())
}

func (c *ParseErrorCollector) Clear() {
	c.errors = c.errors[:0]
}
