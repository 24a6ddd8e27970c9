package simplearticle

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Service defines the main interface for the simple-article library
type Service interface {
	// Article lifecycle
	CreateContent(ctx context.Context, req CreateArticleRequest) (*ArticleView, error)
	SaveContent(ctx context.Context, req SaveArticleRequest) (*ArticleView, error)
	PublishContent(ctx context.Context, id ArticleID, effectiveAt time.Time) (*ArticleView, error)
	UnpublishContent(ctx context.Context, number int64) error
	DeleteContent(ctx context.Context, number int64) error
	RestoreContent(ctx context.Context, number int64) (*ArticleView, error)

	// Read path
	GetContent(ctx context.Context, number int64) (*ArticleView, error)
	GetContentBySlug(ctx context.Context, slug string) (*ArticleView, error)
	ListVersions(ctx context.Context, number int64) ([]*Article, error)
	ListCatalog(ctx context.Context, filter CatalogFilter) ([]*CatalogEntry, error)

	// Redirects
	ResolveRedirect(ctx context.Context, slug string) (string, bool, error)
	CreateRedirectsForSlugChanges(ctx context.Context, changes []SlugChange, actor uuid.UUID) *RedirectCreationResult
}
