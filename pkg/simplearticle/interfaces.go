package simplearticle

import (
	"context"
	"time"
)

// TxFn is a function that runs within a transaction
type TxFn func(ctx context.Context) error

// TransactionManager handles database transactions
type TransactionManager interface {
	// ExecTx executes fn within a transaction. The context passed to fn
	// carries the transaction; repository calls made with it join it.
	// Nested calls join the outer transaction.
	ExecTx(ctx context.Context, fn TxFn) error
}

// Repository defines the persistence gateway for articles, snapshots, the
// catalog, redirect stubs and the article number ledger.
type Repository interface {
	// Article number ledger
	MaxArticleNumber(ctx context.Context) (int64, error)
	InsertSequenceEntry(ctx context.Context, entry *SequenceEntry) error

	// Version rows
	InsertVersion(ctx context.Context, article *Article) error
	GetVersion(ctx context.Context, number int64, version int) (*Article, error)
	GetLatestVersion(ctx context.Context, number int64) (*Article, error)
	// ListVersions returns every version of an article, newest first.
	ListVersions(ctx context.Context, number int64) ([]*Article, error)
	// ListArticleNumbers returns distinct article numbers in ascending order.
	ListArticleNumbers(ctx context.Context, offset, limit int) ([]int64, error)
	SetVersionStatus(ctx context.Context, number int64, status ArticleStatus, updatedAt time.Time) error
	SetPublishedAt(ctx context.Context, number int64, version int, publishedAt *time.Time) error
	// ClearPublishedAt nulls PublishedAt on every version except exceptVersion.
	ClearPublishedAt(ctx context.Context, number int64, exceptVersion int) error
	// FindSlugOwner returns the number of the non-deleted article whose latest
	// version uses slug, or ErrArticleNotFound.
	FindSlugOwner(ctx context.Context, slug string) (int64, error)
	// LockSlugs blocks until the caller holds the write lock of every slug in
	// the shared article/redirect namespace. Locks are released when the
	// surrounding transaction ends; outside a transaction it does nothing.
	LockSlugs(ctx context.Context, slugs ...string) error

	// Published snapshot operations
	GetSnapshot(ctx context.Context, number int64) (*PublishedSnapshot, error)
	UpsertSnapshot(ctx context.Context, snapshot *PublishedSnapshot) error
	DeleteSnapshot(ctx context.Context, number int64) error

	// Catalog operations
	GetCatalogEntry(ctx context.Context, number int64) (*CatalogEntry, error)
	UpsertCatalogEntry(ctx context.Context, entry *CatalogEntry) error
	DeleteCatalogEntry(ctx context.Context, number int64) error
	ListCatalog(ctx context.Context, filter CatalogFilter) ([]*CatalogEntry, error)

	// Redirect stub operations
	GetRedirect(ctx context.Context, slug string) (*Redirect, error)
	CreateRedirect(ctx context.Context, redirect *Redirect) error
	UpdateRedirect(ctx context.Context, redirect *Redirect) error
	DeleteRedirect(ctx context.Context, slug string) error
	ListRedirectsByTarget(ctx context.Context, target string) ([]*Redirect, error)
	ListRedirects(ctx context.Context, offset, limit int) ([]*Redirect, error)
}

// TemplateProvider supplies the default body for new articles.
type TemplateProvider interface {
	// DefaultBody returns the body for templateID. An empty templateID asks
	// for the provider's default.
	DefaultBody(ctx context.Context, templateID string) (string, error)
}

// ReservedPathChecker reports slugs owned by the surrounding application.
type ReservedPathChecker interface {
	IsReserved(slug string) bool
}

// EventSink defines the interface for event handling. Events fire after the
// owning transaction commits.
type EventSink interface {
	ArticleCreated(ctx context.Context, article *Article) error
	ArticleSaved(ctx context.Context, article *Article) error
	ArticlePublished(ctx context.Context, snapshot *PublishedSnapshot) error
	ArticleUnpublished(ctx context.Context, number int64) error
	ArticleDeleted(ctx context.Context, number int64) error
	ArticleRestored(ctx context.Context, article *Article) error
	RedirectsChanged(ctx context.Context, result *RedirectCreationResult) error
}

// RedirectCache caches final destinations for the redirect read path.
type RedirectCache interface {
	Get(ctx context.Context, slug string) (target string, found bool, err error)
	Set(ctx context.Context, slug, target string) error
	Invalidate(ctx context.Context, slugs ...string) error
}

// MetricsRecorder receives operational measurements.
type MetricsRecorder interface {
	ObserveOperation(op string, err error, duration time.Duration)
	RedirectOutcome(outcome string, count int)
	ChainDepthExceeded()
}
