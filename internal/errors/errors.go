// Package errors provides centralized error handling with categorized,
// context-carrying errors that callers can branch on without string matching.
package errors

import (
	stderrors "errors"
	"fmt"
	"maps"
	"time"
)

// ErrorCategory represents the type of error for better categorization
type ErrorCategory string

const (
	// CategoryResolution indicates a referenced entity or dataset is absent.
	CategoryResolution ErrorCategory = "resolution"
	// CategoryValidation indicates invalid input: a hierarchy tuple that is
	// not a valid combination, or a record carrying neither payload nor file.
	CategoryValidation ErrorCategory = "validation"
	// CategoryStorageUpload indicates an object store upload failure.
	CategoryStorageUpload ErrorCategory = "storage-upload"
	// CategoryStorageDownload indicates an object store download failure.
	CategoryStorageDownload ErrorCategory = "storage-download"
	// CategoryStorageAuth indicates a permission/auth failure against the
	// object store. Never retried.
	CategoryStorageAuth ErrorCategory = "storage-auth"
	// CategoryStorageConnection indicates a transient connectivity failure
	// against the object store. Retried transparently up to the attempt cap.
	CategoryStorageConnection ErrorCategory = "storage-connection"
	// CategoryNotFound indicates a record, file or dimension row is absent.
	CategoryNotFound ErrorCategory = "not-found"
	// CategoryDatabase indicates a relational store failure.
	CategoryDatabase ErrorCategory = "database"
	// CategoryConfiguration indicates invalid or missing configuration.
	CategoryConfiguration ErrorCategory = "configuration"
	// CategoryGeneric is the fallback category.
	CategoryGeneric ErrorCategory = "generic"
)

// Priority constants for error prioritization
const (
	PriorityLow      = "low"
	PriorityMedium   = "medium"
	PriorityHigh     = "high"
	PriorityCritical = "critical"
)

// ComponentUnknown is used when the component has not been set.
const ComponentUnknown = "unknown"

// EnhancedError wraps an error with component, category and context metadata.
type EnhancedError struct {
	Err       error          // Original error
	Component string         // Component where the error occurred
	Category  ErrorCategory  // Error category for grouping
	Priority  string         // Explicit priority override (optional)
	Context   map[string]any // Additional context data
	Timestamp time.Time      // When the error occurred
}

// Error implements the error interface
func (ee *EnhancedError) Error() string {
	return ee.Err.Error()
}

// Unwrap implements the error unwrapping interface
func (ee *EnhancedError) Unwrap() error {
	return ee.Err
}

// Is matches other EnhancedErrors by category, otherwise defers to the chain.
func (ee *EnhancedError) Is(target error) bool {
	if ee2, ok := target.(*EnhancedError); ok {
		return ee.Category == ee2.Category
	}
	return Is(ee.Err, target)
}

// GetContext returns a copy of the error context.
func (ee *EnhancedError) GetContext() map[string]any {
	if ee.Context == nil {
		return nil
	}
	contextCopy := make(map[string]any, len(ee.Context))
	maps.Copy(contextCopy, ee.Context)
	return contextCopy
}

// ErrorBuilder provides a fluent interface for creating enhanced errors
type ErrorBuilder struct {
	err       error
	component string
	category  ErrorCategory
	priority  string
	context   map[string]any
}

// New creates a new error builder wrapping err.
func New(err error) *ErrorBuilder {
	return &ErrorBuilder{err: err}
}

// Newf creates a new builder from a formatted message.
func Newf(format string, args ...any) *ErrorBuilder {
	return New(fmt.Errorf(format, args...))
}

// Component sets the component name.
func (eb *ErrorBuilder) Component(component string) *ErrorBuilder {
	eb.component = component
	return eb
}

// Category sets the error category for better grouping.
func (eb *ErrorBuilder) Category(category ErrorCategory) *ErrorBuilder {
	eb.category = category
	return eb
}

// Priority sets the explicit priority override for the error.
func (eb *ErrorBuilder) Priority(priority string) *ErrorBuilder {
	switch priority {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityCritical:
		eb.priority = priority
	default:
		if priority != "" {
			// Invalid priority value, fall back to medium.
			eb.priority = PriorityMedium
		}
	}
	return eb
}

// Context adds context data to the error.
func (eb *ErrorBuilder) Context(key string, value any) *ErrorBuilder {
	if eb.context == nil {
		eb.context = make(map[string]any)
	}
	eb.context[key] = value
	return eb
}

// Build creates the EnhancedError.
func (eb *ErrorBuilder) Build() *EnhancedError {
	ee := &EnhancedError{
		Err:       eb.err,
		Component: eb.component,
		Category:  eb.category,
		Priority:  eb.priority,
		Context:   eb.context,
		Timestamp: time.Now(),
	}
	if ee.Component == "" {
		ee.Component = ComponentUnknown
	}
	if ee.Category == "" {
		ee.Category = CategoryGeneric
	}
	return ee
}

// Convenience constructors for the common taxonomy members.

// ResolutionError reports an absent entity or dataset reference.
func ResolutionError(format string, args ...any) *EnhancedError {
	return Newf(format, args...).Category(CategoryResolution).Build()
}

// ValidationError reports invalid caller input.
func ValidationError(format string, args ...any) *EnhancedError {
	return Newf(format, args...).Category(CategoryValidation).Build()
}

// NotFoundError reports an absent record, file or dimension row.
func NotFoundError(resource, identifier string) *EnhancedError {
	return Newf("%s not found", resource).
		Category(CategoryNotFound).
		Context("resource", resource).
		Context("identifier", identifier).
		Build()
}

// Standard library passthrough functions.
// These allow this package to be a drop-in replacement for the standard errors package.

// NewStd creates a new standard error (passthrough to standard library)
func NewStd(text string) error {
	return stderrors.New(text)
}

// Is reports whether any error in err's tree matches target (passthrough to standard library)
func Is(err, target error) bool {
	return stderrors.Is(err, target)
}

// As finds the first error in err's tree that matches target (passthrough to standard library)
func As(err error, target any) bool {
	return stderrors.As(err, target)
}

// Unwrap returns the result of calling the Unwrap method on err (passthrough to standard library)
func Unwrap(err error) error {
	return stderrors.Unwrap(err)
}

// Join returns an error that wraps the given errors (passthrough to standard library)
func Join(errs ...error) error {
	return stderrors.Join(errs...)
}

// IsCategory checks if an error is an EnhancedError with the specified category.
func IsCategory(err error, category ErrorCategory) bool {
	var enhancedErr *EnhancedError
	return As(err, &enhancedErr) && enhancedErr.Category == category
}

// IsNotFound checks if an error carries CategoryNotFound.
func IsNotFound(err error) bool {
	return IsCategory(err, CategoryNotFound)
}

// IsValidation checks if an error carries CategoryValidation.
func IsValidation(err error) bool {
	return IsCategory(err, CategoryValidation)
}

// IsResolution checks if an error carries CategoryResolution.
func IsResolution(err error) bool {
	return IsCategory(err, CategoryResolution)
}

// IsRetryable reports whether an object store operation that produced err may
// be retried. Only transient connectivity and generic server failures qualify;
// auth failures and missing objects are terminal.
func IsRetryable(err error) bool {
	return IsCategory(err, CategoryStorageConnection)
}
