package memory_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/simple-article/pkg/simplearticle"
	"github.com/tendant/simple-article/pkg/simplearticle/repo/memory"
)

func version(number int64, v int, slug string) *simplearticle.Article {
	now := time.Now().UTC()
	return &simplearticle.Article{
		Number:    number,
		Version:   v,
		Title:     slug,
		URLPath:   slug,
		Status:    string(simplearticle.ArticleStatusActive),
		AuthorID:  uuid.New(),
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func TestMemoryRepository_Versions(t *testing.T) {
	repo := memory.New()
	ctx := context.Background()

	require.NoError(t, repo.InsertVersion(ctx, version(1, 1, "one")))
	require.NoError(t, repo.InsertVersion(ctx, version(1, 2, "one-b")))
	require.NoError(t, repo.InsertVersion(ctx, version(2, 1, "two")))

	t.Run("duplicate version conflicts", func(t *testing.T) {
		err := repo.InsertVersion(ctx, version(1, 2, "dup"))
		assert.ErrorIs(t, err, simplearticle.ErrConflict)
	})

	t.Run("latest and history", func(t *testing.T) {
		latest, err := repo.GetLatestVersion(ctx, 1)
		require.NoError(t, err)
		assert.Equal(t, 2, latest.Version)

		history, err := repo.ListVersions(ctx, 1)
		require.NoError(t, err)
		require.Len(t, history, 2)
		assert.Equal(t, 2, history[0].Version)
		assert.Equal(t, 1, history[1].Version)

		_, err = repo.GetLatestVersion(ctx, 9)
		assert.ErrorIs(t, err, simplearticle.ErrNotFound)
	})

	t.Run("returned rows are copies", func(t *testing.T) {
		v, err := repo.GetVersion(ctx, 1, 1)
		require.NoError(t, err)
		v.Title = "mutated"

		again, err := repo.GetVersion(ctx, 1, 1)
		require.NoError(t, err)
		assert.Equal(t, "one", again.Title)
	})

	t.Run("slug owner uses the latest live version", func(t *testing.T) {
		n, err := repo.FindSlugOwner(ctx, "ONE-B")
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)

		_, err = repo.FindSlugOwner(ctx, "one")
		assert.ErrorIs(t, err, simplearticle.ErrNotFound)

		require.NoError(t, repo.SetVersionStatus(ctx, 2, simplearticle.ArticleStatusDeleted, time.Now()))
		_, err = repo.FindSlugOwner(ctx, "two")
		assert.ErrorIs(t, err, simplearticle.ErrNotFound)
	})

	t.Run("published at", func(t *testing.T) {
		at := time.Now().UTC()
		require.NoError(t, repo.SetPublishedAt(ctx, 1, 1, &at))
		require.NoError(t, repo.SetPublishedAt(ctx, 1, 2, &at))
		require.NoError(t, repo.ClearPublishedAt(ctx, 1, 2))

		v1, _ := repo.GetVersion(ctx, 1, 1)
		v2, _ := repo.GetVersion(ctx, 1, 2)
		assert.Nil(t, v1.PublishedAt)
		require.NotNil(t, v2.PublishedAt)
	})

	t.Run("article numbers paginate", func(t *testing.T) {
		numbers, err := repo.ListArticleNumbers(ctx, 0, 0)
		require.NoError(t, err)
		assert.Equal(t, []int64{1, 2}, numbers)

		numbers, err = repo.ListArticleNumbers(ctx, 1, 5)
		require.NoError(t, err)
		assert.Equal(t, []int64{2}, numbers)
	})
}

func TestMemoryRepository_Sequence(t *testing.T) {
	repo := memory.New()
	ctx := context.Background()

	max, err := repo.MaxArticleNumber(ctx)
	require.NoError(t, err)
	assert.Zero(t, max)

	require.NoError(t, repo.InsertSequenceEntry(ctx, &simplearticle.SequenceEntry{Number: 1}))
	err = repo.InsertSequenceEntry(ctx, &simplearticle.SequenceEntry{Number: 1})
	assert.ErrorIs(t, err, simplearticle.ErrConflict)

	max, err = repo.MaxArticleNumber(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), max)
}

func TestMemoryRepository_Redirects(t *testing.T) {
	repo := memory.New()
	ctx := context.Background()

	for _, r := range []*simplearticle.Redirect{
		{URLPath: "b", Target: "z"},
		{URLPath: "a", Target: "z"},
		{URLPath: "c", Target: "y"},
	} {
		require.NoError(t, repo.CreateRedirect(ctx, r))
	}

	err := repo.CreateRedirect(ctx, &simplearticle.Redirect{URLPath: "A", Target: "q"})
	assert.ErrorIs(t, err, simplearticle.ErrConflict, "slugs are case-insensitive")

	byTarget, err := repo.ListRedirectsByTarget(ctx, "Z")
	require.NoError(t, err)
	require.Len(t, byTarget, 2)
	assert.Equal(t, "a", byTarget[0].URLPath)
	assert.Equal(t, "b", byTarget[1].URLPath)

	page, err := repo.ListRedirects(ctx, 1, 1)
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, "b", page[0].URLPath)

	require.NoError(t, repo.UpdateRedirect(ctx, &simplearticle.Redirect{URLPath: "c", Target: "z"}))
	c, err := repo.GetRedirect(ctx, "C")
	require.NoError(t, err)
	assert.Equal(t, "z", c.Target)

	require.NoError(t, repo.DeleteRedirect(ctx, "c"))
	assert.ErrorIs(t, repo.DeleteRedirect(ctx, "c"), simplearticle.ErrNotFound)
	assert.ErrorIs(t, repo.UpdateRedirect(ctx, &simplearticle.Redirect{URLPath: "c"}), simplearticle.ErrNotFound)
}

func TestMemoryRepository_ExecTx(t *testing.T) {
	ctx := context.Background()

	t.Run("error rolls back every table", func(t *testing.T) {
		repo := memory.New()
		boom := errors.New("boom")

		err := repo.ExecTx(ctx, func(ctx context.Context) error {
			require.NoError(t, repo.InsertSequenceEntry(ctx, &simplearticle.SequenceEntry{Number: 1}))
			require.NoError(t, repo.InsertVersion(ctx, version(1, 1, "one")))
			require.NoError(t, repo.UpsertSnapshot(ctx, &simplearticle.PublishedSnapshot{Number: 1, Version: 1}))
			require.NoError(t, repo.UpsertCatalogEntry(ctx, &simplearticle.CatalogEntry{Number: 1}))
			require.NoError(t, repo.CreateRedirect(ctx, &simplearticle.Redirect{URLPath: "x", Target: "one"}))
			return boom
		})
		assert.ErrorIs(t, err, boom)

		max, _ := repo.MaxArticleNumber(ctx)
		assert.Zero(t, max)
		_, err = repo.GetLatestVersion(ctx, 1)
		assert.ErrorIs(t, err, simplearticle.ErrNotFound)
		_, err = repo.GetSnapshot(ctx, 1)
		assert.ErrorIs(t, err, simplearticle.ErrNotFound)
		_, err = repo.GetCatalogEntry(ctx, 1)
		assert.ErrorIs(t, err, simplearticle.ErrNotFound)
		_, err = repo.GetRedirect(ctx, "x")
		assert.ErrorIs(t, err, simplearticle.ErrNotFound)
	})

	t.Run("panic rolls back and re-panics", func(t *testing.T) {
		repo := memory.New()
		assert.Panics(t, func() {
			_ = repo.ExecTx(ctx, func(ctx context.Context) error {
				_ = repo.InsertSequenceEntry(ctx, &simplearticle.SequenceEntry{Number: 1})
				panic("kaboom")
			})
		})
		max, _ := repo.MaxArticleNumber(ctx)
		assert.Zero(t, max)
	})

	t.Run("nested calls join the outer transaction", func(t *testing.T) {
		repo := memory.New()
		err := repo.ExecTx(ctx, func(ctx context.Context) error {
			require.NoError(t, repo.ExecTx(ctx, func(ctx context.Context) error {
				return repo.InsertSequenceEntry(ctx, &simplearticle.SequenceEntry{Number: 1})
			}))
			return errors.New("outer fails")
		})
		require.Error(t, err)
		max, _ := repo.MaxArticleNumber(ctx)
		assert.Zero(t, max, "inner work is rolled back with the outer transaction")
	})

	t.Run("cancelled context never starts", func(t *testing.T) {
		repo := memory.New()
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		called := false
		err := repo.ExecTx(cctx, func(ctx context.Context) error {
			called = true
			return nil
		})
		assert.ErrorIs(t, err, context.Canceled)
		assert.False(t, called)
	})
}

func TestMemoryRepository_Catalog(t *testing.T) {
	repo := memory.New()
	ctx := context.Background()
	at := time.Now().UTC()

	require.NoError(t, repo.UpsertCatalogEntry(ctx, &simplearticle.CatalogEntry{Number: 1, Title: "a", PublishedAt: &at}))
	require.NoError(t, repo.UpsertCatalogEntry(ctx, &simplearticle.CatalogEntry{Number: 2, Title: "b"}))
	require.NoError(t, repo.UpsertCatalogEntry(ctx, &simplearticle.CatalogEntry{Number: 2, Title: "b2"}))

	all, err := repo.ListCatalog(ctx, simplearticle.CatalogFilter{})
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "b2", all[0].Title)

	published, err := repo.ListCatalog(ctx, simplearticle.CatalogFilter{PublishedOnly: true})
	require.NoError(t, err)
	require.Len(t, published, 1)
	assert.Equal(t, int64(1), published[0].Number)

	offset := 5
	empty, err := repo.ListCatalog(ctx, simplearticle.CatalogFilter{Offset: &offset})
	require.NoError(t, err)
	assert.Empty(t, empty)

	require.NoError(t, repo.DeleteCatalogEntry(ctx, 1))
	assert.ErrorIs(t, repo.DeleteCatalogEntry(ctx, 1), simplearticle.ErrNotFound)
}
