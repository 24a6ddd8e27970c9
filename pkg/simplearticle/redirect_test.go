package simplearticle_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/simple-article/pkg/simplearticle"
	"github.com/tendant/simple-article/pkg/simplearticle/repo/memory"
)

// failingRepo fails CreateRedirect for one source slug and can cancel a
// context after a number of successful writes.
type failingRepo struct {
	*memory.Repository
	failOn      string
	cancelAfter int
	cancel      context.CancelFunc
	writes      int
}

func (f *failingRepo) CreateRedirect(ctx context.Context, r *simplearticle.Redirect) error {
	if r.URLPath == f.failOn {
		return errors.New("disk full")
	}
	if err := f.Repository.CreateRedirect(ctx, r); err != nil {
		return err
	}
	f.writes++
	if f.cancel != nil && f.writes == f.cancelAfter {
		f.cancel()
	}
	return nil
}

func newResolver(repo simplearticle.Repository, tx simplearticle.TransactionManager, depth int) *simplearticle.RedirectResolver {
	return simplearticle.NewRedirectResolver(repo, tx, nil, depth)
}

func seedStub(t *testing.T, repo simplearticle.Repository, from, to string) {
	t.Helper()
	now := time.Now().UTC()
	require.NoError(t, repo.CreateRedirect(context.Background(), &simplearticle.Redirect{
		URLPath: from, Target: to, AuthorID: author, CreatedAt: now, UpdatedAt: now,
	}))
}

func TestCreateOrUpdateRedirect(t *testing.T) {
	ctx := context.Background()

	t.Run("identity is a no-op", func(t *testing.T) {
		repo := memory.New()
		r := newResolver(repo, repo, 0)

		got, err := r.CreateOrUpdateRedirect(ctx, "same", "Same", author)
		require.NoError(t, err)
		assert.Nil(t, got)

		stubs, err := repo.ListRedirects(ctx, 0, 0)
		require.NoError(t, err)
		assert.Empty(t, stubs)
	})

	t.Run("root is never redirected", func(t *testing.T) {
		repo := memory.New()
		r := newResolver(repo, repo, 0)

		got, err := r.CreateOrUpdateRedirect(ctx, "/", "elsewhere", author)
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("existing stub is updated in place", func(t *testing.T) {
		repo := memory.New()
		r := newResolver(repo, repo, 0)
		seedStub(t, repo, "old", "first")

		got, err := r.CreateOrUpdateRedirect(ctx, "old", "second", author)
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, "second", got.Target)

		stubs, err := repo.ListRedirects(ctx, 0, 0)
		require.NoError(t, err)
		require.Len(t, stubs, 1)
		assert.Equal(t, "second", stubs[0].Target)
	})

	t.Run("destination is resolved before writing", func(t *testing.T) {
		repo := memory.New()
		r := newResolver(repo, repo, 0)
		seedStub(t, repo, "b", "c")

		got, err := r.CreateOrUpdateRedirect(ctx, "a", "b", author)
		require.NoError(t, err)
		assert.Equal(t, "c", got.Target)
		assertNoChains(t, repo)
	})

	t.Run("upstream stubs are collapsed", func(t *testing.T) {
		repo := memory.New()
		r := newResolver(repo, repo, 0)

		_, err := r.CreateOrUpdateRedirect(ctx, "a", "b", author)
		require.NoError(t, err)
		_, err = r.CreateOrUpdateRedirect(ctx, "b", "c", author)
		require.NoError(t, err)

		a, err := repo.GetRedirect(ctx, "a")
		require.NoError(t, err)
		assert.Equal(t, "c", a.Target)
		assertNoChains(t, repo)
	})

	t.Run("destination resolving back to source is skipped", func(t *testing.T) {
		repo := memory.New()
		r := newResolver(repo, repo, 0)
		seedStub(t, repo, "b", "a")

		got, err := r.CreateOrUpdateRedirect(ctx, "a", "b", author)
		require.NoError(t, err)
		assert.Nil(t, got)
		assertNoChains(t, repo)
	})

	t.Run("slug owned by live content is refused", func(t *testing.T) {
		svc, repo := newTestService(t)
		mustCreate(t, svc, "Home")
		r := newResolver(repo, repo, 0)

		_, err := r.CreateOrUpdateRedirect(ctx, "home", "elsewhere", author)
		assert.ErrorIs(t, err, simplearticle.ErrConflict)
	})
}

func TestResolveFinalDestination(t *testing.T) {
	ctx := context.Background()

	t.Run("not a stub", func(t *testing.T) {
		repo := memory.New()
		got, err := newResolver(repo, repo, 0).ResolveFinalDestination(ctx, "/Plain/")
		require.NoError(t, err)
		assert.Equal(t, "plain", got)
	})

	t.Run("chain at the depth limit resolves", func(t *testing.T) {
		repo := memory.New()
		for i := 0; i < 10; i++ {
			seedStub(t, repo, fmt.Sprintf("s%d", i), fmt.Sprintf("s%d", i+1))
		}
		got, err := newResolver(repo, repo, 10).ResolveFinalDestination(ctx, "s0")
		require.NoError(t, err)
		assert.Equal(t, "s10", got)
	})

	t.Run("chain past the depth limit fails", func(t *testing.T) {
		repo := memory.New()
		for i := 0; i < 12; i++ {
			seedStub(t, repo, fmt.Sprintf("s%d", i), fmt.Sprintf("s%d", i+1))
		}
		_, err := newResolver(repo, repo, 10).ResolveFinalDestination(ctx, "s0")
		assert.ErrorIs(t, err, simplearticle.ErrRedirectChainDepthExceeded)

		var depthErr *simplearticle.RedirectChainDepthError
		require.ErrorAs(t, err, &depthErr)
		assert.Equal(t, 10, depthErr.Depth)
	})

	t.Run("loop fails", func(t *testing.T) {
		repo := memory.New()
		seedStub(t, repo, "a", "b")
		seedStub(t, repo, "b", "a")
		_, err := newResolver(repo, repo, 0).ResolveFinalDestination(ctx, "a")
		assert.ErrorIs(t, err, simplearticle.ErrRedirectChainDepthExceeded)
	})

	t.Run("broken chain falls back to the given slug", func(t *testing.T) {
		repo := memory.New()
		seedStub(t, repo, "a", "b")
		seedStub(t, repo, "b", "a")
		r := newResolver(repo, repo, 0)

		got, err := r.CreateOrUpdateRedirect(ctx, "x", "a", author)
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, "a", got.Target)

		target, found, err := r.ResolveRedirect(ctx, "a")
		require.NoError(t, err)
		assert.False(t, found)
		assert.Empty(t, target)
	})
}

func TestCreateRedirectsForSlugChanges(t *testing.T) {
	ctx := context.Background()

	t.Run("scenario D duplicate old slug keeps the last change", func(t *testing.T) {
		repo := memory.New()
		r := newResolver(repo, repo, 0)

		result := r.CreateRedirectsForSlugChanges(ctx, []simplearticle.SlugChange{
			{Number: 7, OldSlug: "Promo", NewSlug: "first"},
			{Number: 7, OldSlug: "promo", NewSlug: "second"},
			{Number: 8, OldSlug: "same", NewSlug: "SAME"},
		}, author)

		assert.Equal(t, 1, result.SuccessCount)
		assert.Equal(t, 2, result.SkippedCount)
		assert.True(t, result.AllSucceeded())
		assert.NoError(t, result.Err())

		stubs, err := repo.ListRedirects(ctx, 0, 0)
		require.NoError(t, err)
		require.Len(t, stubs, 1)
		assert.Equal(t, "promo", stubs[0].URLPath)
		assert.Equal(t, "second", stubs[0].Target)
	})

	t.Run("scenario E one failure does not abort the batch", func(t *testing.T) {
		repo := &failingRepo{Repository: memory.New(), failOn: "c"}
		r := newResolver(repo, repo, 0)

		var changes []simplearticle.SlugChange
		for i, slug := range []string{"a", "b", "c", "d", "e"} {
			changes = append(changes, simplearticle.SlugChange{Number: int64(i + 1), OldSlug: slug, NewSlug: slug + "-new"})
		}
		result := r.CreateRedirectsForSlugChanges(ctx, changes, author)

		assert.Equal(t, 4, result.SuccessCount)
		require.Len(t, result.Failed, 1)
		assert.False(t, result.AllSucceeded())
		assert.Equal(t, simplearticle.FailedRedirect{Number: 3, OldSlug: "c", NewSlug: "c-new", Error: "disk full"}, result.Failed[0])

		err := result.Err()
		assert.ErrorIs(t, err, simplearticle.ErrPartialBatchFailure)
		assert.Contains(t, err.Error(), "disk full")

		report := result.Report()
		assert.Contains(t, report, "4 created/updated, 0 skipped, 1 failed")
		assert.Contains(t, report, "/c")
		assert.Contains(t, report, "/c-new")

		_, err = repo.GetRedirect(ctx, "c")
		assert.ErrorIs(t, err, simplearticle.ErrNotFound)
		_, err = repo.GetRedirect(ctx, "e")
		assert.NoError(t, err)
	})

	t.Run("cancellation between items returns the partial result", func(t *testing.T) {
		cctx, cancel := context.WithCancel(ctx)
		defer cancel()
		repo := &failingRepo{Repository: memory.New(), cancelAfter: 2, cancel: cancel}
		r := newResolver(repo, repo, 0)

		result := r.CreateRedirectsForSlugChanges(cctx, []simplearticle.SlugChange{
			{Number: 1, OldSlug: "one", NewSlug: "uno"},
			{Number: 2, OldSlug: "two", NewSlug: "dos"},
			{Number: 3, OldSlug: "three", NewSlug: "tres"},
			{Number: 4, OldSlug: "four", NewSlug: "cuatro"},
		}, author)

		assert.True(t, result.Cancelled)
		assert.Equal(t, 2, result.SuccessCount)
		assert.Empty(t, result.Failed)
		assert.True(t, strings.Contains(result.Report(), "(cancelled)"))

		stubs, err := repo.ListRedirects(ctx, 0, 0)
		require.NoError(t, err)
		assert.Len(t, stubs, 2)
	})

	t.Run("cascade collapses into final destinations", func(t *testing.T) {
		repo := memory.New()
		r := newResolver(repo, repo, 0)

		result := r.CreateRedirectsForSlugChanges(ctx, []simplearticle.SlugChange{
			{Number: 1, OldSlug: "a", NewSlug: "b"},
			{Number: 1, OldSlug: "b", NewSlug: "c"},
			{Number: 1, OldSlug: "c", NewSlug: "d"},
		}, author)
		require.True(t, result.AllSucceeded())
		assert.Equal(t, 3, result.SuccessCount)

		for _, slug := range []string{"a", "b", "c"} {
			stub, err := repo.GetRedirect(ctx, slug)
			require.NoError(t, err)
			assert.Equal(t, "d", stub.Target, slug)
		}
		assertNoChains(t, repo)
	})
}

type mapCache struct {
	entries     map[string]string
	invalidated []string
}

func (m *mapCache) Get(ctx context.Context, slug string) (string, bool, error) {
	v, ok := m.entries[slug]
	return v, ok, nil
}

func (m *mapCache) Set(ctx context.Context, slug, target string) error {
	m.entries[slug] = target
	return nil
}

func (m *mapCache) Invalidate(ctx context.Context, slugs ...string) error {
	for _, s := range slugs {
		delete(m.entries, s)
	}
	m.invalidated = append(m.invalidated, slugs...)
	return nil
}

func TestResolveRedirect_Cache(t *testing.T) {
	cache := &mapCache{entries: map[string]string{}}
	svc, _ := newTestService(t, simplearticle.WithRedirectCache(cache))
	ctx := context.Background()

	page := mustCreate(t, svc, "One")
	mustSave(t, svc, page.Number, "Two", "")

	target, found, err := svc.ResolveRedirect(ctx, "/One")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "two", target)
	assert.Equal(t, "two", cache.entries["one"])

	mustSave(t, svc, page.Number, "Three", "")
	assert.Contains(t, cache.invalidated, "one")
	assert.Contains(t, cache.invalidated, "two")

	target, found, err = svc.ResolveRedirect(ctx, "one")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "three", target)

	_, found, err = svc.ResolveRedirect(ctx, "three")
	require.NoError(t, err)
	assert.False(t, found)
}

// lockingRepo records every slug lock request.
type lockingRepo struct {
	*memory.Repository
	locked []string
}

func (l *lockingRepo) LockSlugs(ctx context.Context, slugs ...string) error {
	l.locked = append(l.locked, slugs...)
	return l.Repository.LockSlugs(ctx, slugs...)
}

func TestCreateOrUpdateRedirect_LocksSlugs(t *testing.T) {
	ctx := context.Background()
	repo := &lockingRepo{Repository: memory.New()}
	seedStub(t, repo, "b", "c")

	got, err := newResolver(repo, repo, 0).CreateOrUpdateRedirect(ctx, "a", "b", author)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "c", got.Target)
	assert.ElementsMatch(t, []string{"a", "b", "c"}, repo.locked, "source, requested target and final target")
	assertNoChains(t, repo)
}

func TestCreateContent_LocksCandidateSlugs(t *testing.T) {
	repo := &lockingRepo{Repository: memory.New()}
	svc, err := simplearticle.New(simplearticle.WithRepository(repo))
	require.NoError(t, err)
	withRoot(t, svc)

	mustCreate(t, svc, "Pricing")
	repo.locked = nil
	other := mustCreate(t, svc, "Pricing")

	assert.Equal(t, "pricing-2", other.URLPath)
	assert.Equal(t, []string{"pricing", "pricing-2"}, repo.locked)
}

func TestRenameBack_InvalidatesReclaimedStub(t *testing.T) {
	cache := &mapCache{entries: map[string]string{}}
	svc, repo := newTestService(t, simplearticle.WithRedirectCache(cache))
	ctx := context.Background()

	page := mustCreate(t, svc, "Page")
	mustSave(t, svc, page.Number, "Other", "")

	target, found, err := svc.ResolveRedirect(ctx, "page")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "other", target)
	assert.Equal(t, "other", cache.entries["page"])

	cache.invalidated = nil
	back := mustSave(t, svc, page.Number, "Page", "")
	assert.Equal(t, "page", back.URLPath)
	assert.Contains(t, cache.invalidated, "page")
	assert.NotContains(t, cache.entries, "page")

	_, err = repo.GetRedirect(ctx, "page")
	assert.ErrorIs(t, err, simplearticle.ErrNotFound)

	_, found, err = svc.ResolveRedirect(ctx, "page")
	require.NoError(t, err)
	assert.False(t, found, "the reclaimed slug is live again")

	target, found, err = svc.ResolveRedirect(ctx, "other")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "page", target)
}
