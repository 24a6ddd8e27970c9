package simplearticle

import (
	"errors"
	"sort"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/google/uuid"
)

// MaxTitleLength caps article titles.
const MaxTitleLength = 255

// Request DTOs

// CreateArticleRequest contains parameters for creating a new article.
type CreateArticleRequest struct {
	Title    string    `json:"title"`
	AuthorID uuid.UUID `json:"author_id"`
	// TemplateID selects the default body; empty uses the provider default.
	TemplateID string `json:"template_id,omitempty"`
	// ParentPath nests the new slug under an existing path, e.g. "docs/guides".
	ParentPath string `json:"parent_path,omitempty"`
}

// Validate checks the request before any write.
func (r *CreateArticleRequest) Validate() error {
	return wrapValidation(validation.ValidateStruct(r,
		validation.Field(&r.Title, validation.Required, validation.Length(1, MaxTitleLength)),
		validation.Field(&r.AuthorID, validation.By(requireUUID)),
		validation.Field(&r.TemplateID, validation.Length(0, 255)),
		validation.Field(&r.ParentPath, validation.Length(0, 1024)),
	))
}

// SaveArticleRequest contains parameters for saving a new version.
type SaveArticleRequest struct {
	Number   int64     `json:"number"`
	Title    string    `json:"title"`
	Body     string    `json:"body"`
	AuthorID uuid.UUID `json:"author_id"`
	// PublishAt publishes the new version at the given time.
	PublishAt *time.Time `json:"publish_at,omitempty"`
	// ExpectedVersion, when non-zero, must match the current latest version.
	ExpectedVersion int `json:"expected_version,omitempty"`
	// CascadeChanges are extra slug changes, typically children of a renamed
	// parent, redirected together with this article's own change.
	CascadeChanges []SlugChange `json:"cascade_changes,omitempty"`
}

// Validate checks the request before any write.
func (r *SaveArticleRequest) Validate() error {
	return wrapValidation(validation.ValidateStruct(r,
		validation.Field(&r.Number, validation.Required, validation.Min(int64(1))),
		validation.Field(&r.Title, validation.Required, validation.Length(1, MaxTitleLength)),
		validation.Field(&r.AuthorID, validation.By(requireUUID)),
		validation.Field(&r.ExpectedVersion, validation.Min(0)),
	))
}

func requireUUID(value interface{}) error {
	id, _ := value.(uuid.UUID)
	if id == uuid.Nil {
		return errors.New("cannot be blank")
	}
	return nil
}

// wrapValidation converts ozzo-validation errors into a *ValidationError.
func wrapValidation(err error) error {
	if err == nil {
		return nil
	}
	var fieldErrs validation.Errors
	if !errors.As(err, &fieldErrs) {
		return &ValidationError{Message: err.Error(), Err: err}
	}
	fields := make([]string, 0, len(fieldErrs))
	for field := range fieldErrs {
		fields = append(fields, field)
	}
	sort.Strings(fields)
	return &ValidationError{Field: strings.Join(fields, ","), Message: fieldErrs.Error(), Err: err}
}
