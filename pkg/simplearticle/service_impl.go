package simplearticle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Config holds the tunables of the core engine.
type Config struct {
	// MaxRedirectDepth bounds redirect chain traversal.
	MaxRedirectDepth int
	// TeaserLength caps catalog teaser text, in runes.
	TeaserLength int
	// SlugPolicy decides how slug collisions are resolved.
	SlugPolicy SlugPolicy
	// MaxSlugLength caps one slug segment, in runes.
	MaxSlugLength int
}

// DefaultConfig returns the engine defaults.
func DefaultConfig() Config {
	return Config{
		MaxRedirectDepth: DefaultMaxRedirectDepth,
		TeaserLength:     DefaultTeaserLength,
		SlugPolicy:       SlugPolicySuffix,
		MaxSlugLength:    DefaultMaxSlugLength,
	}
}

// service implements the Service interface
type service struct {
	repository Repository
	tx         TransactionManager
	templates  TemplateProvider
	reserved   ReservedPathChecker
	eventSink  EventSink
	cache      RedirectCache
	metrics    MetricsRecorder
	logger     *slog.Logger
	config     Config
	now        func() time.Time

	normalizer *Normalizer
	allocator  *SequenceAllocator
	catalog    *CatalogSynchronizer
	publisher  *PublishingController
	redirects  *RedirectResolver
	slugs      *slugClaimer
}

// Option represents a functional option for configuring the service
type Option func(*service)

// WithRepository sets the repository for the service. When the repository
// also implements TransactionManager it is used for transactions unless
// WithTransactionManager says otherwise.
func WithRepository(repo Repository) Option {
	return func(s *service) {
		s.repository = repo
	}
}

// WithTransactionManager sets the transaction manager
func WithTransactionManager(tx TransactionManager) Option {
	return func(s *service) {
		s.tx = tx
	}
}

// WithTemplateProvider sets the source of default bodies for new articles
func WithTemplateProvider(p TemplateProvider) Option {
	return func(s *service) {
		s.templates = p
	}
}

// WithReservedPaths sets the reserved path checker
func WithReservedPaths(checker ReservedPathChecker) Option {
	return func(s *service) {
		s.reserved = checker
	}
}

// WithEventSink sets the event sink for the service
func WithEventSink(sink EventSink) Option {
	return func(s *service) {
		s.eventSink = sink
	}
}

// WithRedirectCache sets the cache used by ResolveRedirect
func WithRedirectCache(cache RedirectCache) Option {
	return func(s *service) {
		s.cache = cache
	}
}

// WithMetrics sets the metrics recorder
func WithMetrics(m MetricsRecorder) Option {
	return func(s *service) {
		s.metrics = m
	}
}

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) Option {
	return func(s *service) {
		s.logger = logger
	}
}

// WithConfig overrides engine tunables. Zero fields keep their defaults.
func WithConfig(cfg Config) Option {
	return func(s *service) {
		if cfg.MaxRedirectDepth > 0 {
			s.config.MaxRedirectDepth = cfg.MaxRedirectDepth
		}
		if cfg.TeaserLength > 0 {
			s.config.TeaserLength = cfg.TeaserLength
		}
		if cfg.SlugPolicy != "" {
			s.config.SlugPolicy = cfg.SlugPolicy
		}
		if cfg.MaxSlugLength > 0 {
			s.config.MaxSlugLength = cfg.MaxSlugLength
		}
	}
}

// WithClock replaces time.Now, mainly for tests
func WithClock(now func() time.Time) Option {
	return func(s *service) {
		s.now = now
	}
}

// New creates a new service instance with the given options
func New(options ...Option) (Service, error) {
	s := &service{
		config: DefaultConfig(),
		now:    func() time.Time { return time.Now().UTC() },
	}

	for _, option := range options {
		option(s)
	}

	if s.repository == nil {
		return nil, fmt.Errorf("repository is required")
	}
	if !s.config.SlugPolicy.IsValid() {
		return nil, fmt.Errorf("unknown slug policy %q", s.config.SlugPolicy)
	}
	if s.tx == nil {
		if tx, ok := s.repository.(TransactionManager); ok {
			s.tx = tx
		} else {
			s.tx = passthroughTx{}
		}
	}
	if s.templates == nil {
		s.templates = NoopTemplateProvider{}
	}
	if s.eventSink == nil {
		s.eventSink = NewNoopEventSink()
	}
	if s.metrics == nil {
		s.metrics = noopMetrics{}
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	s.logger = s.logger.With("component", "simplearticle")

	s.normalizer = NewNormalizer(s.reserved, s.config.MaxSlugLength)
	s.allocator = NewSequenceAllocator(s.repository)
	s.allocator.now = s.now
	s.catalog = NewCatalogSynchronizer(s.repository, s.config.TeaserLength)
	s.publisher = NewPublishingController(s.repository, s.catalog, s.config.SlugPolicy)
	s.publisher.now = s.now
	s.slugs = s.publisher.slugs
	s.redirects = NewRedirectResolver(s.repository, s.tx, s.normalizer, s.config.MaxRedirectDepth).
		withCache(s.cache).
		withMetrics(s.metrics).
		withLogger(s.logger).
		withClock(s.now)

	return s, nil
}

func (s *service) observe(op string, start time.Time, err *error) {
	s.metrics.ObserveOperation(op, *err, time.Since(start))
}

// fire delivers an event after commit. Sink failures are logged, never returned.
func (s *service) fire(ctx context.Context, event string, fn func() error) {
	if err := fn(); err != nil {
		s.logger.WarnContext(ctx, "event sink failed", "event", event, "error", err)
	}
}

func (s *service) view(article *Article, snapshot *PublishedSnapshot) *ArticleView {
	v := &ArticleView{Article: *article.Clone()}
	if snapshot != nil {
		v.PublishedVersion = snapshot.Version
		if snapshot.LiveAt(s.now()) {
			v.IsPublished = true
		} else {
			at := snapshot.PublishedAt
			v.ScheduledAt = &at
		}
	}
	return v
}

func (s *service) snapshotOf(ctx context.Context, number int64) (*PublishedSnapshot, error) {
	snapshot, err := s.repository.GetSnapshot(ctx, number)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	return snapshot, err
}

// Article lifecycle

func (s *service) CreateContent(ctx context.Context, req CreateArticleRequest) (view *ArticleView, err error) {
	defer s.observe("create", time.Now(), &err)

	if err := req.Validate(); err != nil {
		return nil, err
	}
	leaf, err := s.normalizer.Normalize(req.Title)
	if err != nil {
		return nil, err
	}
	parent, err := s.normalizer.NormalizePath(req.ParentPath)
	if err != nil {
		return nil, err
	}
	body, err := s.templates.DefaultBody(ctx, req.TemplateID)
	if err != nil {
		return nil, fmt.Errorf("load template %q: %w", req.TemplateID, err)
	}

	var (
		created  *Article
		snapshot *PublishedSnapshot
	)
	err = s.tx.ExecTx(ctx, func(ctx context.Context) error {
		number, err := s.allocator.AllocateNext(ctx)
		if err != nil {
			return err
		}
		slug, _, err := s.slugs.claim(ctx, JoinSlug(parent, leaf), 0, "")
		if err != nil {
			return err
		}

		now := s.now()
		created = &Article{
			Number:    number,
			Version:   1,
			Title:     strings.TrimSpace(req.Title),
			URLPath:   slug,
			Body:      body,
			Status:    string(ArticleStatusActive),
			AuthorID:  req.AuthorID,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := s.repository.InsertVersion(ctx, created); err != nil {
			return err
		}

		if !IsBootstrap(number) {
			return s.catalog.Upsert(ctx, number)
		}
		published, err := s.publisher.Publish(ctx, ArticleID{Number: number, Version: 1}, now)
		if err != nil {
			return err
		}
		created = published
		snapshot = &PublishedSnapshot{Number: number, Version: 1, PublishedAt: *published.PublishedAt}
		return nil
	})
	if err != nil {
		var number int64
		if created != nil {
			number = created.Number
		}
		return nil, &ArticleError{Number: number, Op: "create", Err: err}
	}

	s.logger.InfoContext(ctx, "article created", "article_number", created.Number, "url_path", created.URLPath,
		"bootstrap", snapshot != nil)
	s.fire(ctx, "article_created", func() error { return s.eventSink.ArticleCreated(ctx, created) })
	if snapshot != nil {
		s.fire(ctx, "article_published", func() error { return s.eventSink.ArticlePublished(ctx, snapshot) })
	}
	return s.view(created, snapshot), nil
}

func (s *service) SaveContent(ctx context.Context, req SaveArticleRequest) (view *ArticleView, err error) {
	defer s.observe("save", time.Now(), &err)

	if err := req.Validate(); err != nil {
		return nil, err
	}
	leaf, err := s.normalizer.Normalize(req.Title)
	if err != nil {
		return nil, err
	}

	var (
		previous      *Article
		saved         *Article
		snapshot      *PublishedSnapshot
		everPublished bool
		reclaimed     string
	)
	err = s.tx.ExecTx(ctx, func(ctx context.Context) error {
		latest, err := s.publisher.loadLatest(ctx, req.Number)
		if err != nil {
			return err
		}
		if ok, err := canEditArticle(ArticleStatus(latest.Status)); !ok {
			return transitionError("status", err)
		}
		if req.ExpectedVersion != 0 && req.ExpectedVersion != latest.Version {
			return &ConflictError{
				Message:      fmt.Sprintf("article %d is at version %d, expected %d", req.Number, latest.Version, req.ExpectedVersion),
				ResourceType: "article_version",
				ResourceID:   fmt.Sprintf("%d/%d", req.Number, latest.Version),
			}
		}
		previous = latest

		history, err := s.repository.ListVersions(ctx, req.Number)
		if err != nil {
			return err
		}
		for _, v := range history {
			if v.PublishedAt != nil {
				everPublished = true
				break
			}
		}

		slug := latest.URLPath
		if base := JoinSlug(ParentSlug(latest.URLPath), leaf); !EqualSlugs(base, latest.URLPath) {
			var stub *Redirect
			slug, stub, err = s.slugs.claim(ctx, base, req.Number, latest.URLPath)
			if err != nil {
				return err
			}
			if stub != nil {
				if err := s.repository.DeleteRedirect(ctx, stub.URLPath); err != nil {
					return err
				}
				reclaimed = stub.URLPath
			}
		}

		now := s.now()
		saved = &Article{
			Number:    req.Number,
			Version:   latest.Version + 1,
			Title:     strings.TrimSpace(req.Title),
			URLPath:   slug,
			Body:      req.Body,
			Status:    string(ArticleStatusActive),
			AuthorID:  req.AuthorID,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := s.repository.InsertVersion(ctx, saved); err != nil {
			return err
		}

		current, err := s.snapshotOf(ctx, req.Number)
		if err != nil {
			return err
		}
		var publishAt time.Time
		switch {
		case req.PublishAt != nil:
			publishAt = *req.PublishAt
		case current != nil:
			publishAt = now
		default:
			return s.catalog.Upsert(ctx, req.Number)
		}
		published, err := s.publisher.Publish(ctx, ArticleID{Number: req.Number, Version: saved.Version}, publishAt)
		if err != nil {
			return err
		}
		saved = published
		snapshot = &PublishedSnapshot{Number: req.Number, Version: saved.Version, PublishedAt: *published.PublishedAt}
		return nil
	})
	if err != nil {
		return nil, &ArticleError{Number: req.Number, Op: "save", Err: err}
	}

	if reclaimed != "" {
		s.redirects.invalidate(ctx, reclaimed)
	}
	s.fire(ctx, "article_saved", func() error { return s.eventSink.ArticleSaved(ctx, saved) })
	if snapshot != nil {
		s.fire(ctx, "article_published", func() error { return s.eventSink.ArticlePublished(ctx, snapshot) })
	}

	view = s.view(saved, snapshot)

	var changes []SlugChange
	if everPublished && !EqualSlugs(previous.URLPath, saved.URLPath) {
		changes = append(changes, SlugChange{Number: req.Number, OldSlug: previous.URLPath, NewSlug: saved.URLPath})
	}
	changes = append(changes, req.CascadeChanges...)
	if len(changes) > 0 {
		result := s.redirects.CreateRedirectsForSlugChanges(ctx, changes, req.AuthorID)
		view.Redirects = result
		if !result.AllSucceeded() {
			s.logger.WarnContext(ctx, "article saved with redirect failures",
				"article_number", req.Number, "report", result.Report())
		}
		s.fire(ctx, "redirects_changed", func() error { return s.eventSink.RedirectsChanged(ctx, result) })
	}

	s.logger.InfoContext(ctx, "article saved", "article_number", saved.Number, "version", saved.Version,
		"url_path", saved.URLPath)
	return view, nil
}

func (s *service) PublishContent(ctx context.Context, id ArticleID, effectiveAt time.Time) (view *ArticleView, err error) {
	defer s.observe("publish", time.Now(), &err)

	var published *Article
	err = s.tx.ExecTx(ctx, func(ctx context.Context) error {
		var err error
		published, err = s.publisher.Publish(ctx, id, effectiveAt)
		return err
	})
	if err != nil {
		return nil, &ArticleError{Number: id.Number, Op: "publish", Err: err}
	}

	snapshot := &PublishedSnapshot{Number: published.Number, Version: published.Version, PublishedAt: *published.PublishedAt}
	s.fire(ctx, "article_published", func() error { return s.eventSink.ArticlePublished(ctx, snapshot) })
	return s.view(published, snapshot), nil
}

func (s *service) UnpublishContent(ctx context.Context, number int64) (err error) {
	defer s.observe("unpublish", time.Now(), &err)

	err = s.tx.ExecTx(ctx, func(ctx context.Context) error {
		return s.publisher.Unpublish(ctx, number)
	})
	if err != nil {
		return &ArticleError{Number: number, Op: "unpublish", Err: err}
	}
	s.fire(ctx, "article_unpublished", func() error { return s.eventSink.ArticleUnpublished(ctx, number) })
	return nil
}

func (s *service) DeleteContent(ctx context.Context, number int64) (err error) {
	defer s.observe("delete", time.Now(), &err)

	err = s.tx.ExecTx(ctx, func(ctx context.Context) error {
		return s.publisher.Delete(ctx, number)
	})
	if err != nil {
		return &ArticleError{Number: number, Op: "delete", Err: err}
	}
	s.fire(ctx, "article_deleted", func() error { return s.eventSink.ArticleDeleted(ctx, number) })
	return nil
}

func (s *service) RestoreContent(ctx context.Context, number int64) (view *ArticleView, err error) {
	defer s.observe("restore", time.Now(), &err)

	var restored *Article
	err = s.tx.ExecTx(ctx, func(ctx context.Context) error {
		var err error
		restored, err = s.publisher.Restore(ctx, number)
		return err
	})
	if err != nil {
		return nil, &ArticleError{Number: number, Op: "restore", Err: err}
	}

	s.fire(ctx, "article_restored", func() error { return s.eventSink.ArticleRestored(ctx, restored) })
	snapshot, err := s.snapshotOf(ctx, number)
	if err != nil {
		return nil, err
	}
	return s.view(restored, snapshot), nil
}

// Read path

func (s *service) GetContent(ctx context.Context, number int64) (*ArticleView, error) {
	article, err := s.publisher.loadLatest(ctx, number)
	if err != nil {
		return nil, err
	}
	snapshot, err := s.snapshotOf(ctx, number)
	if err != nil {
		return nil, err
	}
	return s.view(article, snapshot), nil
}

func (s *service) GetContentBySlug(ctx context.Context, slug string) (*ArticleView, error) {
	number, err := s.repository.FindSlugOwner(ctx, canonicalSlug(slug))
	if errors.Is(err, ErrNotFound) {
		return nil, &NotFoundError{Resource: "article", ID: "/" + canonicalSlug(slug), Err: ErrArticleNotFound}
	}
	if err != nil {
		return nil, err
	}
	return s.GetContent(ctx, number)
}

func (s *service) ListVersions(ctx context.Context, number int64) ([]*Article, error) {
	versions, err := s.repository.ListVersions(ctx, number)
	if err != nil {
		return nil, err
	}
	if len(versions) == 0 {
		return nil, articleNotFound(number)
	}
	return versions, nil
}

func (s *service) ListCatalog(ctx context.Context, filter CatalogFilter) ([]*CatalogEntry, error) {
	if filter.PublishedOnly && filter.AsOf.IsZero() {
		filter.AsOf = s.now()
	}
	return s.repository.ListCatalog(ctx, filter)
}

// Redirects

func (s *service) ResolveRedirect(ctx context.Context, slug string) (target string, found bool, err error) {
	defer s.observe("resolve_redirect", time.Now(), &err)
	return s.redirects.ResolveRedirect(ctx, slug)
}

func (s *service) CreateRedirectsForSlugChanges(ctx context.Context, changes []SlugChange, actor uuid.UUID) *RedirectCreationResult {
	result := s.redirects.CreateRedirectsForSlugChanges(ctx, changes, actor)
	s.fire(ctx, "redirects_changed", func() error { return s.eventSink.RedirectsChanged(ctx, result) })
	return result
}
