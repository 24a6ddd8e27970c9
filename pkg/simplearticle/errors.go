package simplearticle

import (
	"errors"
	"fmt"
	"strings"
)

// Error types
var (
	// ErrNotFound indicates a resource was not found
	ErrNotFound = errors.New("not found")

	// ErrArticleNotFound indicates an article number has no versions
	ErrArticleNotFound = fmt.Errorf("article %w", ErrNotFound)

	// ErrRedirectNotFound indicates no redirect stub exists for a slug
	ErrRedirectNotFound = fmt.Errorf("redirect %w", ErrNotFound)

	// ErrSnapshotNotFound indicates the article has no published snapshot
	ErrSnapshotNotFound = fmt.Errorf("published snapshot %w", ErrNotFound)

	// ErrCatalogEntryNotFound indicates the article has no catalog entry
	ErrCatalogEntryNotFound = fmt.Errorf("catalog entry %w", ErrNotFound)

	// ErrValidation indicates invalid input rejected before any write
	ErrValidation = errors.New("validation failed")

	// ErrReservedPath indicates a slug collides with a reserved application path
	ErrReservedPath = errors.New("reserved path")

	// ErrConflict indicates a concurrent write or an identity collision
	ErrConflict = errors.New("conflict")

	// ErrInvalidTransition indicates the article state does not allow the operation
	ErrInvalidTransition = errors.New("invalid state transition")

	// ErrRedirectChainDepthExceeded indicates a redirect chain was too long or looped
	ErrRedirectChainDepthExceeded = errors.New("redirect chain depth exceeded")

	// ErrPartialBatchFailure indicates one or more redirects in a batch failed
	ErrPartialBatchFailure = errors.New("partial redirect batch failure")
)

// ValidationError indicates invalid input.
type ValidationError struct {
	Field   string
	Message string
	Err     error
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation failed: " + e.Message
	}
	return fmt.Sprintf("validation failed on %s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error { return e.Err }

// Is allows errors.Is() to match against ErrValidation
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// NotFoundError indicates a resource was not found.
type NotFoundError struct {
	Resource string
	ID       string
	Err      error
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Resource, e.ID)
}

func (e *NotFoundError) Unwrap() error { return e.Err }

// Is allows errors.Is() to match against ErrNotFound
func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// ConflictError represents a write collision. Callers may retry the whole
// operation; the library never retries on its own.
type ConflictError struct {
	Message      string // Human-readable error message
	ResourceType string // article_version, sequence, slug
	ResourceID   string // Identifier of the conflicting resource
	Err          error
}

func (e *ConflictError) Error() string {
	return e.Message
}

func (e *ConflictError) Unwrap() error { return e.Err }

// Is allows errors.Is() to match against ErrConflict
func (e *ConflictError) Is(target error) bool {
	return target == ErrConflict
}

// Retryable reports whether repeating the operation may succeed. Slug
// collisions under the reject policy are not retryable.
func (e *ConflictError) Retryable() bool {
	return e.ResourceType != "slug"
}

// RedirectChainDepthError is returned when following redirect stubs exceeds
// the configured depth or revisits a slug.
type RedirectChainDepthError struct {
	Start string
	Depth int
}

func (e *RedirectChainDepthError) Error() string {
	return fmt.Sprintf("redirect chain starting at %q exceeded depth %d", e.Start, e.Depth)
}

// Is allows errors.Is() to match against ErrRedirectChainDepthExceeded
func (e *RedirectChainDepthError) Is(target error) bool {
	return target == ErrRedirectChainDepthExceeded
}

// PartialBatchFailure lists the redirects that could not be written.
type PartialBatchFailure struct {
	Failed []FailedRedirect
}

func (e *PartialBatchFailure) Error() string {
	parts := make([]string, 0, len(e.Failed))
	for _, f := range e.Failed {
		parts = append(parts, fmt.Sprintf("#%d %s -> %s: %s", f.Number, f.OldSlug, f.NewSlug, f.Error))
	}
	return fmt.Sprintf("%d redirect(s) failed: %s", len(e.Failed), strings.Join(parts, "; "))
}

// Is allows errors.Is() to match against ErrPartialBatchFailure
func (e *PartialBatchFailure) Is(target error) bool {
	return target == ErrPartialBatchFailure
}

// ArticleError represents an error related to article operations
type ArticleError struct {
	Number int64
	Op     string
	Err    error
}

func (e *ArticleError) Error() string {
	return fmt.Sprintf("article operation %s failed for article %d: %v", e.Op, e.Number, e.Err)
}

func (e *ArticleError) Unwrap() error {
	return e.Err
}

func articleNotFound(number int64) error {
	return &NotFoundError{Resource: "article", ID: fmt.Sprintf("%d", number), Err: ErrArticleNotFound}
}

func newValidationError(field, format string, args ...interface{}) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}
