package simplearticle

import (
	"context"
	"errors"
	"html"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"github.com/microcosm-cc/bluemonday"
)

// DefaultTeaserLength caps catalog teaser text, in runes.
const DefaultTeaserLength = 200

// blockBreaks keeps words in adjacent block elements apart once tags are stripped.
var blockBreaks = strings.NewReplacer(
	"</p>", "</p> ", "</div>", "</div> ", "</li>", "</li> ", "</blockquote>", "</blockquote> ",
	"</h1>", "</h1> ", "</h2>", "</h2> ", "</h3>", "</h3> ", "</h4>", "</h4> ",
	"<br>", " <br>", "<br/>", " <br/>", "<br />", " <br />",
)

// CatalogSynchronizer projects article versions into the listing catalog.
type CatalogSynchronizer struct {
	repo         Repository
	policy       *bluemonday.Policy
	teaserLength int
}

// NewCatalogSynchronizer creates a synchronizer. teaserLength <= 0 uses
// DefaultTeaserLength.
func NewCatalogSynchronizer(repo Repository, teaserLength int) *CatalogSynchronizer {
	if teaserLength <= 0 {
		teaserLength = DefaultTeaserLength
	}
	return &CatalogSynchronizer{
		repo:         repo,
		policy:       bluemonday.StrictPolicy(),
		teaserLength: teaserLength,
	}
}

// Upsert recomputes the catalog entry for number from stored rows and
// replaces any previous entry. Articles with no live version lose their entry.
// Editorial fields follow the latest version even while an older one is
// published; only PublishedAt comes from the snapshot.
// Every field is derived from persisted data, so repeated calls without an
// intervening write store identical entries.
func (c *CatalogSynchronizer) Upsert(ctx context.Context, number int64) error {
	versions, err := c.repo.ListVersions(ctx, number)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return err
	}

	var latest *Article
	for _, v := range versions {
		if !v.IsDeleted() {
			latest = v
			break
		}
	}
	if latest == nil {
		return c.Remove(ctx, number)
	}

	entry := &CatalogEntry{
		Number:      number,
		Title:       latest.Title,
		URLPath:     latest.URLPath,
		TeaserText:  c.Teaser(latest.Body),
		BannerImage: BannerImage(latest.Body),
		AuthorID:    latest.AuthorID,
		UpdatedAt:   latest.UpdatedAt,
	}

	snapshot, err := c.repo.GetSnapshot(ctx, number)
	switch {
	case err == nil:
		publishedAt := snapshot.PublishedAt
		entry.PublishedAt = &publishedAt
	case !errors.Is(err, ErrNotFound):
		return err
	}

	return c.repo.UpsertCatalogEntry(ctx, entry)
}

// Remove deletes the catalog entry for number. Removing a missing entry is not an error.
func (c *CatalogSynchronizer) Remove(ctx context.Context, number int64) error {
	err := c.repo.DeleteCatalogEntry(ctx, number)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return err
	}
	return nil
}

// Teaser strips body to plain text and cuts it on a word boundary.
func (c *CatalogSynchronizer) Teaser(body string) string {
	text := html.UnescapeString(c.policy.Sanitize(blockBreaks.Replace(body)))
	text = strings.Join(strings.Fields(text), " ")
	if utf8.RuneCountInString(text) <= c.teaserLength {
		return text
	}
	runes := []rune(text)
	cut := string(runes[:c.teaserLength])
	if runes[c.teaserLength] == ' ' {
		return cut
	}
	if i := strings.LastIndexByte(cut, ' '); i > 0 {
		cut = cut[:i]
	}
	return strings.TrimSpace(cut)
}

// BannerImage returns the src of the first <img> in body, or "".
func BannerImage(body string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		return ""
	}
	src, _ := doc.Find("img[src]").First().Attr("src")
	return strings.TrimSpace(src)
}
