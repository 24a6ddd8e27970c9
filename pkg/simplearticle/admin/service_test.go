package admin_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/simple-article/pkg/simplearticle"
	"github.com/tendant/simple-article/pkg/simplearticle/admin"
	"github.com/tendant/simple-article/pkg/simplearticle/repo/memory"
)

func seed(t *testing.T, repo *memory.Repository, number int64, slug string) {
	t.Helper()
	now := time.Now().UTC()
	require.NoError(t, repo.InsertVersion(context.Background(), &simplearticle.Article{
		Number: number, Version: 1, Title: slug, URLPath: slug, Body: "<p>" + slug + "</p>",
		Status: string(simplearticle.ArticleStatusActive), AuthorID: uuid.New(),
		CreatedAt: now, UpdatedAt: now,
	}))
}

func stub(t *testing.T, repo *memory.Repository, from, to string) {
	t.Helper()
	require.NoError(t, repo.CreateRedirect(context.Background(), &simplearticle.Redirect{URLPath: from, Target: to}))
}

func TestListRedirects(t *testing.T) {
	repo := memory.New()
	for _, from := range []string{"a", "b", "c"} {
		stub(t, repo, from, "z")
	}
	svc := admin.New(repo)
	ctx := context.Background()

	page, err := svc.ListRedirects(ctx, admin.ListRedirectsRequest{Limit: 2})
	require.NoError(t, err)
	assert.Len(t, page.Redirects, 2)
	assert.True(t, page.HasMore)

	page, err = svc.ListRedirects(ctx, admin.ListRedirectsRequest{Limit: 2, Offset: 2})
	require.NoError(t, err)
	require.Len(t, page.Redirects, 1)
	assert.Equal(t, "c", page.Redirects[0].URLPath)
	assert.False(t, page.HasMore)

	empty, err := admin.New(memory.New()).ListRedirects(ctx, admin.ListRedirectsRequest{})
	require.NoError(t, err)
	assert.NotNil(t, empty.Redirects)
	assert.Equal(t, admin.DefaultBatchSize, empty.Limit)
}

func TestAuditRedirects(t *testing.T) {
	repo := memory.New()
	seed(t, repo, 1, "live")
	seed(t, repo, 2, "taken")

	stub(t, repo, "good", "live")
	stub(t, repo, "first", "second")
	stub(t, repo, "second", "live")
	stub(t, repo, "loop", "loop")
	stub(t, repo, "dangling", "nowhere")
	stub(t, repo, "taken", "live")
	stub(t, repo, "home-link", simplearticle.RootSlug)

	report, err := admin.New(repo).AuditRedirects(context.Background(), admin.AuditRequest{BatchSize: 2})
	require.NoError(t, err)
	assert.Equal(t, int64(7), report.Scanned)
	assert.False(t, report.Healthy())

	kinds := map[string]admin.Finding{}
	for _, f := range report.Findings {
		kinds[f.URLPath] = f
	}
	require.Len(t, kinds, 4)
	assert.Equal(t, admin.FindingChain, kinds["first"].Kind)
	assert.Equal(t, "live", kinds["first"].Next)
	assert.Equal(t, admin.FindingSelf, kinds["loop"].Kind)
	assert.Equal(t, admin.FindingOrphan, kinds["dangling"].Kind)
	assert.Equal(t, admin.FindingShadowed, kinds["taken"].Kind)
}

func TestAuditRedirects_HealthyAfterRenames(t *testing.T) {
	repo := memory.New()
	svc, err := simplearticle.New(simplearticle.WithRepository(repo))
	require.NoError(t, err)
	ctx := context.Background()
	author := uuid.New()

	_, err = svc.CreateContent(ctx, simplearticle.CreateArticleRequest{Title: "Home", AuthorID: author})
	require.NoError(t, err)
	page, err := svc.CreateContent(ctx, simplearticle.CreateArticleRequest{Title: "One", AuthorID: author})
	require.NoError(t, err)
	_, err = svc.PublishContent(ctx, simplearticle.ArticleID{Number: page.Number}, time.Time{})
	require.NoError(t, err)
	for _, title := range []string{"Two", "Three", "Four"} {
		_, err := svc.SaveContent(ctx, simplearticle.SaveArticleRequest{Number: page.Number, Title: title, AuthorID: author})
		require.NoError(t, err)
	}

	report, err := admin.New(repo).AuditRedirects(ctx, admin.AuditRequest{})
	require.NoError(t, err)
	assert.Equal(t, int64(3), report.Scanned)
	assert.True(t, report.Healthy(), "findings: %+v", report.Findings)
}

// flakyCatalogRepo fails catalog writes for one article number.
type flakyCatalogRepo struct {
	*memory.Repository
	failNumber int64
}

func (r *flakyCatalogRepo) UpsertCatalogEntry(ctx context.Context, e *simplearticle.CatalogEntry) error {
	if e.Number == r.failNumber {
		return errors.New("disk full")
	}
	return r.Repository.UpsertCatalogEntry(ctx, e)
}

func TestRebuildCatalog(t *testing.T) {
	base := memory.New()
	for i := int64(1); i <= 5; i++ {
		seed(t, base, i, "page-"+string(rune('a'+i)))
	}
	repo := &flakyCatalogRepo{Repository: base, failNumber: 3}
	ctx := context.Background()

	var progress []int64
	result, err := admin.New(repo, admin.WithTeaserLength(20)).RebuildCatalog(ctx, admin.RebuildRequest{
		BatchSize:  2,
		OnProgress: func(n int64) { progress = append(progress, n) },
	})
	require.NoError(t, err)
	assert.Equal(t, int64(5), result.TotalFound)
	assert.Equal(t, int64(4), result.TotalProcessed)
	assert.Equal(t, int64(1), result.TotalFailed)
	assert.Equal(t, []int64{3}, result.FailedNumbers)
	assert.Equal(t, []int64{2, 4, 5}, progress)

	entries, err := base.ListCatalog(ctx, simplearticle.CatalogFilter{})
	require.NoError(t, err)
	assert.Len(t, entries, 4)
}

func TestRebuildCatalog_DryRunAndCancel(t *testing.T) {
	repo := memory.New()
	for i := int64(1); i <= 3; i++ {
		seed(t, repo, i, "p"+string(rune('0'+i)))
	}

	result, err := admin.New(repo).RebuildCatalog(context.Background(), admin.RebuildRequest{DryRun: true})
	require.NoError(t, err)
	assert.Equal(t, int64(3), result.TotalProcessed)
	entries, _ := repo.ListCatalog(context.Background(), simplearticle.CatalogFilter{})
	assert.Empty(t, entries, "dry run writes nothing")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	result, err = admin.New(repo).RebuildCatalog(ctx, admin.RebuildRequest{})
	assert.ErrorIs(t, err, context.Canceled)
	assert.True(t, result.Cancelled)
	assert.Zero(t, result.TotalProcessed)
}
