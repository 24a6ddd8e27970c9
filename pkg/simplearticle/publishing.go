package simplearticle

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// PublishingController owns the published snapshot of each article and the
// delete/restore state flips. Every method expects to run inside a
// transaction started by the caller.
type PublishingController struct {
	repo    Repository
	catalog *CatalogSynchronizer
	slugs   *slugClaimer
	now     func() time.Time
}

// NewPublishingController creates a controller writing through repo and
// refreshing catalog after every change.
func NewPublishingController(repo Repository, catalog *CatalogSynchronizer, policy SlugPolicy) *PublishingController {
	if !policy.IsValid() {
		policy = SlugPolicySuffix
	}
	return &PublishingController{
		repo:    repo,
		catalog: catalog,
		slugs:   &slugClaimer{repo: repo, policy: policy},
		now:     func() time.Time { return time.Now().UTC() },
	}
}

func (p *PublishingController) loadVersion(ctx context.Context, id ArticleID) (*Article, error) {
	if id.Version == 0 {
		return p.loadLatest(ctx, id.Number)
	}
	article, err := p.repo.GetVersion(ctx, id.Number, id.Version)
	if errors.Is(err, ErrNotFound) {
		return nil, &NotFoundError{
			Resource: "article version",
			ID:       fmt.Sprintf("%d/%d", id.Number, id.Version),
			Err:      ErrArticleNotFound,
		}
	}
	return article, err
}

func (p *PublishingController) loadLatest(ctx context.Context, number int64) (*Article, error) {
	article, err := p.repo.GetLatestVersion(ctx, number)
	if errors.Is(err, ErrNotFound) {
		return nil, articleNotFound(number)
	}
	return article, err
}

// Publish makes the addressed version the live one at effectiveAt (now when
// zero). Every other version of the article loses its PublishedAt so exactly
// one version carries it while the snapshot exists.
func (p *PublishingController) Publish(ctx context.Context, id ArticleID, effectiveAt time.Time) (*Article, error) {
	target, err := p.loadVersion(ctx, id)
	if err != nil {
		return nil, err
	}
	if ok, err := canPublishArticle(ArticleStatus(target.Status)); !ok {
		return nil, transitionError("status", err)
	}

	at := effectiveAt.UTC()
	if effectiveAt.IsZero() {
		at = p.now()
	}
	if err := p.repo.SetPublishedAt(ctx, target.Number, target.Version, &at); err != nil {
		return nil, err
	}
	if err := p.repo.ClearPublishedAt(ctx, target.Number, target.Version); err != nil {
		return nil, err
	}
	snapshot := &PublishedSnapshot{Number: target.Number, Version: target.Version, PublishedAt: at}
	if err := p.repo.UpsertSnapshot(ctx, snapshot); err != nil {
		return nil, err
	}
	if err := p.catalog.Upsert(ctx, target.Number); err != nil {
		return nil, err
	}

	target.PublishedAt = &at
	return target, nil
}

// Unpublish removes the snapshot. Version rows keep their PublishedAt as history.
func (p *PublishingController) Unpublish(ctx context.Context, number int64) error {
	latest, err := p.loadLatest(ctx, number)
	if err != nil {
		return err
	}
	if latest.IsDeleted() {
		return transitionError("status", fmt.Errorf("%w: article %d is deleted", ErrInvalidTransition, number))
	}
	if err := p.repo.DeleteSnapshot(ctx, number); err != nil && !errors.Is(err, ErrNotFound) {
		return err
	}
	return p.catalog.Upsert(ctx, number)
}

// Delete flags every version deleted and drops the snapshot and catalog
// entry. Deleting a deleted article is a no-op.
func (p *PublishingController) Delete(ctx context.Context, number int64) error {
	latest, err := p.loadLatest(ctx, number)
	if err != nil {
		return err
	}
	if !latest.IsDeleted() {
		if err := p.repo.SetVersionStatus(ctx, number, ArticleStatusDeleted, p.now()); err != nil {
			return err
		}
	}
	if err := p.repo.DeleteSnapshot(ctx, number); err != nil && !errors.Is(err, ErrNotFound) {
		return err
	}
	return p.catalog.Remove(ctx, number)
}

// Restore reactivates a deleted article. When its slug was taken while it was
// deleted, a new version carrying a disambiguated slug is appended. The
// article comes back unpublished. Restoring a live article returns it unchanged.
func (p *PublishingController) Restore(ctx context.Context, number int64) (*Article, error) {
	latest, err := p.loadLatest(ctx, number)
	if err != nil {
		return nil, err
	}
	if !canRestoreArticle(ArticleStatus(latest.Status)) {
		return latest, nil
	}

	// Claim while still deleted so the article does not count as its own owner.
	slug, _, err := p.slugs.claim(ctx, latest.URLPath, number, "")
	if err != nil {
		return nil, err
	}

	now := p.now()
	if err := p.repo.SetVersionStatus(ctx, number, ArticleStatusActive, now); err != nil {
		return nil, err
	}
	latest.Status = string(ArticleStatusActive)
	latest.UpdatedAt = now
	if slug != latest.URLPath {
		next := &Article{
			Number:    number,
			Version:   latest.Version + 1,
			Title:     latest.Title,
			URLPath:   slug,
			Body:      latest.Body,
			Status:    string(ArticleStatusActive),
			AuthorID:  latest.AuthorID,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := p.repo.InsertVersion(ctx, next); err != nil {
			return nil, err
		}
		latest = next
	}

	if err := p.catalog.Upsert(ctx, number); err != nil {
		return nil, err
	}
	return latest, nil
}
