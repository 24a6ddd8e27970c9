package presets

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/simple-article/pkg/simplearticle"
)

func TestNewDevelopment(t *testing.T) {
	quiet := WithDevLogger(slog.New(slog.DiscardHandler))

	t.Run("default configuration", func(t *testing.T) {
		svc, err := NewDevelopment(quiet, WithDevTemplates(filepath.Join(t.TempDir(), "missing")))
		require.NoError(t, err)

		home, err := svc.CreateContent(context.Background(), simplearticle.CreateArticleRequest{Title: "Home", AuthorID: uuid.New()})
		require.NoError(t, err)
		assert.True(t, home.IsPublished)
		assert.Empty(t, home.Body)
	})

	t.Run("template directory", func(t *testing.T) {
		dir := t.TempDir()
		require.NoError(t, os.WriteFile(filepath.Join(dir, "default.html"), []byte("<p>start here</p>"), 0o644))

		svc, err := NewDevelopment(quiet, WithDevTemplates(dir))
		require.NoError(t, err)

		home, err := svc.CreateContent(context.Background(), simplearticle.CreateArticleRequest{Title: "Home", AuthorID: uuid.New()})
		require.NoError(t, err)
		assert.Equal(t, "<p>start here</p>", home.Body)
	})
}

func TestNewTesting(t *testing.T) {
	t.Run("empty", func(t *testing.T) {
		svc := NewTesting(t)
		catalog, err := svc.ListCatalog(context.Background(), simplearticle.CatalogFilter{})
		require.NoError(t, err)
		assert.Empty(t, catalog)
	})

	t.Run("fixtures", func(t *testing.T) {
		svc := NewTesting(t, WithTestFixtures())
		ctx := context.Background()

		about, err := svc.GetContentBySlug(ctx, "about")
		require.NoError(t, err)
		assert.True(t, about.IsPublished)
		assert.Equal(t, FixtureAuthor, about.AuthorID)

		published, err := svc.ListCatalog(ctx, simplearticle.CatalogFilter{PublishedOnly: true})
		require.NoError(t, err)
		assert.Len(t, published, 2)
	})

	t.Run("templates", func(t *testing.T) {
		svc := NewTesting(t, WithTestTemplates(map[string]string{"faq": "<h2>Questions</h2>"}))

		page, err := svc.CreateContent(context.Background(), simplearticle.CreateArticleRequest{
			Title: "FAQ", AuthorID: uuid.New(), TemplateID: "faq",
		})
		require.NoError(t, err)
		assert.Equal(t, "<h2>Questions</h2>", page.Body)
	})

	t.Run("isolated instances", func(t *testing.T) {
		a := NewTesting(t, WithTestFixtures())
		b := NewTesting(t)

		_, err := a.GetContentBySlug(context.Background(), "about")
		require.NoError(t, err)
		_, err = b.GetContentBySlug(context.Background(), "about")
		assert.ErrorIs(t, err, simplearticle.ErrNotFound)
	})
}

func TestNewProduction_RequiresPostgres(t *testing.T) {
	t.Setenv("PRESETS_TEST_DATABASE_URL", "memory")

	_, err := NewProduction(context.Background(), nil, WithEnvPrefix("PRESETS_TEST_"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "postgres")
}
