package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/tendant/simple-article/pkg/simplearticle"
)

type txKey struct{}

// Repository implements simplearticle.Repository and
// simplearticle.TransactionManager using in-memory storage.
//
// Transactions are serialized: ExecTx holds txMu for its whole duration and
// restores a copy of every table when fn fails or panics. Writes made outside
// ExecTx take txMu for the single call.
type Repository struct {
	txMu sync.Mutex
	mu   sync.RWMutex

	sequence  map[int64]*simplearticle.SequenceEntry
	versions  map[int64][]*simplearticle.Article // ascending by version
	snapshots map[int64]*simplearticle.PublishedSnapshot
	catalog   map[int64]*simplearticle.CatalogEntry
	redirects map[string]*simplearticle.Redirect // keyed by lower-cased slug
}

var (
	_ simplearticle.Repository         = (*Repository)(nil)
	_ simplearticle.TransactionManager = (*Repository)(nil)
)

// New creates a new in-memory repository
func New() *Repository {
	return &Repository{
		sequence:  make(map[int64]*simplearticle.SequenceEntry),
		versions:  make(map[int64][]*simplearticle.Article),
		snapshots: make(map[int64]*simplearticle.PublishedSnapshot),
		catalog:   make(map[int64]*simplearticle.CatalogEntry),
		redirects: make(map[string]*simplearticle.Redirect),
	}
}

// Transactions

type tables struct {
	sequence  map[int64]*simplearticle.SequenceEntry
	versions  map[int64][]*simplearticle.Article
	snapshots map[int64]*simplearticle.PublishedSnapshot
	catalog   map[int64]*simplearticle.CatalogEntry
	redirects map[string]*simplearticle.Redirect
}

// ExecTx runs fn as one atomic unit. Nested calls join the outer transaction.
func (r *Repository) ExecTx(ctx context.Context, fn simplearticle.TxFn) (err error) {
	if inTx(ctx) {
		return fn(ctx)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	r.txMu.Lock()
	defer r.txMu.Unlock()

	saved := r.copyTables()
	defer func() {
		if p := recover(); p != nil {
			r.restoreTables(saved)
			panic(p)
		}
	}()

	if err = fn(context.WithValue(ctx, txKey{}, true)); err != nil {
		r.restoreTables(saved)
	}
	return err
}

func inTx(ctx context.Context) bool {
	v, _ := ctx.Value(txKey{}).(bool)
	return v
}

// lockWrite serializes a standalone write against running transactions.
func (r *Repository) lockWrite(ctx context.Context) func() {
	if inTx(ctx) {
		r.mu.Lock()
		return r.mu.Unlock
	}
	r.txMu.Lock()
	r.mu.Lock()
	return func() {
		r.mu.Unlock()
		r.txMu.Unlock()
	}
}

func (r *Repository) copyTables() tables {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t := tables{
		sequence:  make(map[int64]*simplearticle.SequenceEntry, len(r.sequence)),
		versions:  make(map[int64][]*simplearticle.Article, len(r.versions)),
		snapshots: make(map[int64]*simplearticle.PublishedSnapshot, len(r.snapshots)),
		catalog:   make(map[int64]*simplearticle.CatalogEntry, len(r.catalog)),
		redirects: make(map[string]*simplearticle.Redirect, len(r.redirects)),
	}
	for k, v := range r.sequence {
		c := *v
		t.sequence[k] = &c
	}
	for k, rows := range r.versions {
		cp := make([]*simplearticle.Article, len(rows))
		for i, a := range rows {
			cp[i] = a.Clone()
		}
		t.versions[k] = cp
	}
	for k, v := range r.snapshots {
		c := *v
		t.snapshots[k] = &c
	}
	for k, v := range r.catalog {
		t.catalog[k] = cloneEntry(v)
	}
	for k, v := range r.redirects {
		c := *v
		t.redirects[k] = &c
	}
	return t
}

func (r *Repository) restoreTables(t tables) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sequence = t.sequence
	r.versions = t.versions
	r.snapshots = t.snapshots
	r.catalog = t.catalog
	r.redirects = t.redirects
}

// Article number ledger

func (r *Repository) MaxArticleNumber(ctx context.Context) (int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var max int64
	for n := range r.sequence {
		if n > max {
			max = n
		}
	}
	return max, nil
}

func (r *Repository) InsertSequenceEntry(ctx context.Context, entry *simplearticle.SequenceEntry) error {
	defer r.lockWrite(ctx)()

	if _, exists := r.sequence[entry.Number]; exists {
		return &simplearticle.ConflictError{
			Message:      fmt.Sprintf("article number %d already allocated", entry.Number),
			ResourceType: "sequence",
			ResourceID:   fmt.Sprintf("%d", entry.Number),
		}
	}
	c := *entry
	r.sequence[entry.Number] = &c
	return nil
}

// Version rows

func (r *Repository) InsertVersion(ctx context.Context, article *simplearticle.Article) error {
	defer r.lockWrite(ctx)()

	rows := r.versions[article.Number]
	for _, existing := range rows {
		if existing.Version == article.Version {
			return &simplearticle.ConflictError{
				Message:      fmt.Sprintf("article %d version %d already exists", article.Number, article.Version),
				ResourceType: "article_version",
				ResourceID:   fmt.Sprintf("%d/%d", article.Number, article.Version),
			}
		}
	}
	rows = append(rows, article.Clone())
	sort.Slice(rows, func(i, j int) bool { return rows[i].Version < rows[j].Version })
	r.versions[article.Number] = rows
	return nil
}

func (r *Repository) GetVersion(ctx context.Context, number int64, version int) (*simplearticle.Article, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, a := range r.versions[number] {
		if a.Version == version {
			return a.Clone(), nil
		}
	}
	return nil, simplearticle.ErrArticleNotFound
}

func (r *Repository) GetLatestVersion(ctx context.Context, number int64) (*simplearticle.Article, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rows := r.versions[number]
	if len(rows) == 0 {
		return nil, simplearticle.ErrArticleNotFound
	}
	return rows[len(rows)-1].Clone(), nil
}

func (r *Repository) ListVersions(ctx context.Context, number int64) ([]*simplearticle.Article, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rows := r.versions[number]
	out := make([]*simplearticle.Article, 0, len(rows))
	for i := len(rows) - 1; i >= 0; i-- {
		out = append(out, rows[i].Clone())
	}
	return out, nil
}

func (r *Repository) ListArticleNumbers(ctx context.Context, offset, limit int) ([]int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	numbers := make([]int64, 0, len(r.versions))
	for n := range r.versions {
		numbers = append(numbers, n)
	}
	sort.Slice(numbers, func(i, j int) bool { return numbers[i] < numbers[j] })
	lo, hi := page(len(numbers), offset, limit)
	return numbers[lo:hi], nil
}

func (r *Repository) SetVersionStatus(ctx context.Context, number int64, status simplearticle.ArticleStatus, updatedAt time.Time) error {
	defer r.lockWrite(ctx)()

	rows := r.versions[number]
	if len(rows) == 0 {
		return simplearticle.ErrArticleNotFound
	}
	for _, a := range rows {
		a.Status = string(status)
		a.UpdatedAt = updatedAt
	}
	return nil
}

func (r *Repository) SetPublishedAt(ctx context.Context, number int64, version int, publishedAt *time.Time) error {
	defer r.lockWrite(ctx)()

	for _, a := range r.versions[number] {
		if a.Version == version {
			if publishedAt == nil {
				a.PublishedAt = nil
			} else {
				t := *publishedAt
				a.PublishedAt = &t
			}
			return nil
		}
	}
	return simplearticle.ErrArticleNotFound
}

func (r *Repository) ClearPublishedAt(ctx context.Context, number int64, exceptVersion int) error {
	defer r.lockWrite(ctx)()

	for _, a := range r.versions[number] {
		if a.Version != exceptVersion {
			a.PublishedAt = nil
		}
	}
	return nil
}

func (r *Repository) FindSlugOwner(ctx context.Context, slug string) (int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for number, rows := range r.versions {
		if len(rows) == 0 {
			continue
		}
		latest := rows[len(rows)-1]
		if !latest.IsDeleted() && strings.EqualFold(latest.URLPath, slug) {
			return number, nil
		}
	}
	return 0, simplearticle.ErrArticleNotFound
}

// LockSlugs is a no-op: ExecTx already serializes every transaction.
func (r *Repository) LockSlugs(ctx context.Context, slugs ...string) error {
	return nil
}

// Published snapshot operations

func (r *Repository) GetSnapshot(ctx context.Context, number int64) (*simplearticle.PublishedSnapshot, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.snapshots[number]
	if !ok {
		return nil, simplearticle.ErrSnapshotNotFound
	}
	c := *s
	return &c, nil
}

func (r *Repository) UpsertSnapshot(ctx context.Context, snapshot *simplearticle.PublishedSnapshot) error {
	defer r.lockWrite(ctx)()

	c := *snapshot
	r.snapshots[snapshot.Number] = &c
	return nil
}

func (r *Repository) DeleteSnapshot(ctx context.Context, number int64) error {
	defer r.lockWrite(ctx)()

	if _, ok := r.snapshots[number]; !ok {
		return simplearticle.ErrSnapshotNotFound
	}
	delete(r.snapshots, number)
	return nil
}

// Catalog operations

func (r *Repository) GetCatalogEntry(ctx context.Context, number int64) (*simplearticle.CatalogEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.catalog[number]
	if !ok {
		return nil, simplearticle.ErrCatalogEntryNotFound
	}
	return cloneEntry(e), nil
}

func (r *Repository) UpsertCatalogEntry(ctx context.Context, entry *simplearticle.CatalogEntry) error {
	defer r.lockWrite(ctx)()

	r.catalog[entry.Number] = cloneEntry(entry)
	return nil
}

func (r *Repository) DeleteCatalogEntry(ctx context.Context, number int64) error {
	defer r.lockWrite(ctx)()

	if _, ok := r.catalog[number]; !ok {
		return simplearticle.ErrCatalogEntryNotFound
	}
	delete(r.catalog, number)
	return nil
}

// ListCatalog returns entries newest article number first.
func (r *Repository) ListCatalog(ctx context.Context, filter simplearticle.CatalogFilter) ([]*simplearticle.CatalogEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	asOf := filter.AsOf
	if asOf.IsZero() {
		asOf = time.Now().UTC()
	}
	entries := make([]*simplearticle.CatalogEntry, 0, len(r.catalog))
	for _, e := range r.catalog {
		if filter.PublishedOnly && (e.PublishedAt == nil || e.PublishedAt.After(asOf)) {
			continue
		}
		entries = append(entries, cloneEntry(e))
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Number > entries[j].Number })

	offset, limit := 0, 0
	if filter.Offset != nil {
		offset = *filter.Offset
	}
	if filter.Limit != nil {
		limit = *filter.Limit
	}
	lo, hi := page(len(entries), offset, limit)
	return entries[lo:hi], nil
}

// Redirect stub operations

func key(slug string) string {
	return strings.ToLower(strings.Trim(slug, "/"))
}

func (r *Repository) GetRedirect(ctx context.Context, slug string) (*simplearticle.Redirect, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rd, ok := r.redirects[key(slug)]
	if !ok {
		return nil, simplearticle.ErrRedirectNotFound
	}
	c := *rd
	return &c, nil
}

func (r *Repository) CreateRedirect(ctx context.Context, redirect *simplearticle.Redirect) error {
	defer r.lockWrite(ctx)()

	k := key(redirect.URLPath)
	if _, exists := r.redirects[k]; exists {
		return &simplearticle.ConflictError{
			Message:      fmt.Sprintf("redirect from %q already exists", redirect.URLPath),
			ResourceType: "redirect",
			ResourceID:   redirect.URLPath,
		}
	}
	c := *redirect
	r.redirects[k] = &c
	return nil
}

func (r *Repository) UpdateRedirect(ctx context.Context, redirect *simplearticle.Redirect) error {
	defer r.lockWrite(ctx)()

	k := key(redirect.URLPath)
	if _, exists := r.redirects[k]; !exists {
		return simplearticle.ErrRedirectNotFound
	}
	c := *redirect
	r.redirects[k] = &c
	return nil
}

func (r *Repository) DeleteRedirect(ctx context.Context, slug string) error {
	defer r.lockWrite(ctx)()

	k := key(slug)
	if _, exists := r.redirects[k]; !exists {
		return simplearticle.ErrRedirectNotFound
	}
	delete(r.redirects, k)
	return nil
}

func (r *Repository) ListRedirectsByTarget(ctx context.Context, target string) ([]*simplearticle.Redirect, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t := key(target)
	var out []*simplearticle.Redirect
	for _, rd := range r.redirects {
		if key(rd.Target) == t {
			c := *rd
			out = append(out, &c)
		}
	}
	sortRedirects(out)
	return out, nil
}

func (r *Repository) ListRedirects(ctx context.Context, offset, limit int) ([]*simplearticle.Redirect, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*simplearticle.Redirect, 0, len(r.redirects))
	for _, rd := range r.redirects {
		c := *rd
		out = append(out, &c)
	}
	sortRedirects(out)
	lo, hi := page(len(out), offset, limit)
	return out[lo:hi], nil
}

func sortRedirects(rs []*simplearticle.Redirect) {
	sort.Slice(rs, func(i, j int) bool { return rs[i].URLPath < rs[j].URLPath })
}

func cloneEntry(e *simplearticle.CatalogEntry) *simplearticle.CatalogEntry {
	c := *e
	if e.PublishedAt != nil {
		t := *e.PublishedAt
		c.PublishedAt = &t
	}
	return &c
}

// page clamps offset/limit to n; limit <= 0 means no limit.
func page(n, offset, limit int) (int, int) {
	if offset < 0 {
		offset = 0
	}
	if offset > n {
		offset = n
	}
	end := n
	if limit > 0 && offset+limit < n {
		end = offset + limit
	}
	return offset, end
}
