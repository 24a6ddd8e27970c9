package simplearticle

import (
	"time"

	"github.com/google/uuid"
)

// ArticleStatus is the domain type for article version states.
type ArticleStatus string

// Article status constants (typed).
//
// The service itself only writes active and deleted. Inactive is reserved for
// rows written by other tools (imports, manual SQL): such a version can be
// edited, which appends an active version, but never published.
const (
	ArticleStatusActive   ArticleStatus = "active"
	ArticleStatusInactive ArticleStatus = "inactive"
	ArticleStatusDeleted  ArticleStatus = "deleted"
)

// IsValid reports whether s is a known article status.
func (s ArticleStatus) IsValid() bool {
	switch s {
	case ArticleStatusActive, ArticleStatusInactive, ArticleStatusDeleted:
		return true
	}
	return false
}

// RootSlug is the URL path of the site root. It is never redirected away from.
const RootSlug = ""

// Article is a single persisted version of a logical article.
//
// Number is shared by every version of the same article; Version increases
// monotonically per Number. Rows are insert-only apart from Status and
// PublishedAt.
type Article struct {
	Number      int64      `json:"number"`
	Version     int        `json:"version"`
	Title       string     `json:"title"`
	URLPath     string     `json:"url_path"`
	Body        string     `json:"body,omitempty"`
	Status      string     `json:"status"`
	PublishedAt *time.Time `json:"published_at,omitempty"`
	AuthorID    uuid.UUID  `json:"author_id"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// IsDeleted reports whether the version has been soft-deleted.
func (a *Article) IsDeleted() bool {
	return ArticleStatus(a.Status) == ArticleStatusDeleted
}

// Clone returns a deep copy of the version row.
func (a *Article) Clone() *Article {
	c := *a
	if a.PublishedAt != nil {
		t := *a.PublishedAt
		c.PublishedAt = &t
	}
	return &c
}

// ArticleID addresses one version row. Version 0 means the latest version.
type ArticleID struct {
	Number  int64 `json:"number"`
	Version int   `json:"version,omitempty"`
}

// Redirect is a redirect stub: requests for URLPath are sent to Target.
// Target is always terminal, never the URLPath of another stub.
type Redirect struct {
	URLPath   string    `json:"url_path"`
	Target    string    `json:"target"`
	AuthorID  uuid.UUID `json:"author_id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// SequenceEntry is one row of the append-only article number ledger.
type SequenceEntry struct {
	Number      int64     `json:"number"`
	AllocatedAt time.Time `json:"allocated_at"`
}

// PublishedSnapshot points at the version currently served to readers.
type PublishedSnapshot struct {
	Number      int64     `json:"number"`
	Version     int       `json:"version"`
	PublishedAt time.Time `json:"published_at"`
}

// LiveAt reports whether the snapshot is visible to readers at now. A snapshot
// published with a future effective time stays hidden until then.
func (s *PublishedSnapshot) LiveAt(now time.Time) bool {
	return !s.PublishedAt.After(now)
}

// CatalogEntry is the denormalized listing row for one article.
type CatalogEntry struct {
	Number      int64      `json:"number"`
	Title       string     `json:"title"`
	URLPath     string     `json:"url_path"`
	TeaserText  string     `json:"teaser_text,omitempty"`
	BannerImage string     `json:"banner_image,omitempty"`
	PublishedAt *time.Time `json:"published_at,omitempty"`
	AuthorID    uuid.UUID  `json:"author_id"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// CatalogFilter defines filtering options for listing catalog entries.
type CatalogFilter struct {
	PublishedOnly bool
	// AsOf hides entries scheduled after it when PublishedOnly is set. Zero means now.
	AsOf          time.Time
	Limit         *int
	Offset        *int
}

// ArticleView is what the service hands back to callers for a single article.
type ArticleView struct {
	Article
	IsPublished      bool                    `json:"is_published"`
	PublishedVersion int                     `json:"published_version,omitempty"`
	ScheduledAt      *time.Time              `json:"scheduled_at,omitempty"`
	Redirects        *RedirectCreationResult `json:"redirects,omitempty"`
}

// SlugChange describes one URL path rename of an article.
type SlugChange struct {
	Number  int64  `json:"number"`
	OldSlug string `json:"old_slug"`
	NewSlug string `json:"new_slug"`
}
