package postgres

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/tendant/simple-article/pkg/simplearticle"
)

// DBTX is an interface that allows us to use either a database connection or a transaction
type DBTX interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
}

type beginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

type txContextKey struct{}

// SetTx stores a transaction in the context
func SetTx(ctx context.Context, tx pgx.Tx) context.Context {
	return context.WithValue(ctx, txContextKey{}, tx)
}

// GetTx retrieves a transaction from the context, or nil
func GetTx(ctx context.Context) pgx.Tx {
	tx, _ := ctx.Value(txContextKey{}).(pgx.Tx)
	return tx
}

// Repository implements simplearticle.Repository and
// simplearticle.TransactionManager using PostgreSQL
type Repository struct {
	db DBTX
}

var (
	_ simplearticle.Repository         = (*Repository)(nil)
	_ simplearticle.TransactionManager = (*Repository)(nil)
)

// New creates a new PostgreSQL repository
func New(db DBTX) *Repository {
	return &Repository{db: db}
}

// NewWithPool creates a new PostgreSQL repository with connection pool
func NewWithPool(pool *pgxpool.Pool) *Repository {
	return &Repository{db: pool}
}

// executor returns the transaction carried by ctx, or the base connection.
func (r *Repository) executor(ctx context.Context) DBTX {
	if tx := GetTx(ctx); tx != nil {
		return tx
	}
	return r.db
}

// ExecTx executes fn within a transaction. Nested calls join the outer one.
func (r *Repository) ExecTx(ctx context.Context, fn simplearticle.TxFn) error {
	if GetTx(ctx) != nil {
		return fn(ctx)
	}
	b, ok := r.db.(beginner)
	if !ok {
		return fmt.Errorf("database handle %T cannot begin transactions", r.db)
	}

	tx, err := b.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		// Safe after commit; returns ErrTxClosed.
		_ = tx.Rollback(ctx)
	}()

	if err := fn(SetTx(ctx, tx)); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return r.handlePostgresError("commit", err)
	}
	return nil
}

// Error handling helper
func (r *Repository) handlePostgresError(operation string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505": // unique_violation
			return &simplearticle.ConflictError{
				Message:      fmt.Sprintf("%s: concurrent write on %s", operation, pgErr.ConstraintName),
				ResourceType: resourceForConstraint(pgErr.ConstraintName),
				ResourceID:   pgErr.Detail,
				Err:          err,
			}
		case "23503": // foreign_key_violation
			return &simplearticle.NotFoundError{Resource: "referenced record", ID: pgErr.ConstraintName, Err: err}
		case "23514": // check_violation
			return &simplearticle.ValidationError{Field: pgErr.ConstraintName, Message: pgErr.Message, Err: err}
		case "40001": // serialization_failure
			return &simplearticle.ConflictError{Message: operation + ": serialization failure", ResourceType: "transaction", Err: err}
		case "40P01": // deadlock_detected
			return &simplearticle.ConflictError{Message: operation + ": deadlock detected", ResourceType: "transaction", Err: err}
		case "42P01": // undefined_table
			return fmt.Errorf("table does not exist - database migration required: %w", err)
		default:
			return fmt.Errorf("database error in %s: %s (code: %s)", operation, pgErr.Message, pgErr.Code)
		}
	}
	return fmt.Errorf("database error in %s: %w", operation, err)
}

func resourceForConstraint(name string) string {
	switch {
	case strings.HasPrefix(name, "article_version"):
		return "article_version"
	case strings.HasPrefix(name, "article_sequence"):
		return "sequence"
	case strings.HasPrefix(name, "redirect"):
		return "redirect"
	default:
		return name
	}
}

// Article number ledger

func (r *Repository) MaxArticleNumber(ctx context.Context) (int64, error) {
	var max int64
	err := r.executor(ctx).QueryRow(ctx, `SELECT COALESCE(MAX(article_number), 0) FROM article_sequence`).Scan(&max)
	if err != nil {
		return 0, r.handlePostgresError("max_article_number", err)
	}
	return max, nil
}

func (r *Repository) InsertSequenceEntry(ctx context.Context, entry *simplearticle.SequenceEntry) error {
	_, err := r.executor(ctx).Exec(ctx,
		`INSERT INTO article_sequence (article_number, allocated_at) VALUES ($1, $2)`,
		entry.Number, entry.AllocatedAt)
	if err != nil {
		return r.handlePostgresError("insert_sequence_entry", err)
	}
	return nil
}

// Version rows

const versionColumns = `article_number, version_number, title, url_path, body, status,
	published_at, author_id, created_at, updated_at`

func scanArticle(row pgx.Row) (*simplearticle.Article, error) {
	var a simplearticle.Article
	err := row.Scan(&a.Number, &a.Version, &a.Title, &a.URLPath, &a.Body, &a.Status,
		&a.PublishedAt, &a.AuthorID, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *Repository) InsertVersion(ctx context.Context, a *simplearticle.Article) error {
	_, err := r.executor(ctx).Exec(ctx, `
		INSERT INTO article_version (`+versionColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		a.Number, a.Version, a.Title, a.URLPath, a.Body, a.Status,
		a.PublishedAt, a.AuthorID, a.CreatedAt, a.UpdatedAt)
	if err != nil {
		return r.handlePostgresError("insert_version", err)
	}
	return nil
}

func (r *Repository) GetVersion(ctx context.Context, number int64, version int) (*simplearticle.Article, error) {
	a, err := scanArticle(r.executor(ctx).QueryRow(ctx, `
		SELECT `+versionColumns+` FROM article_version
		WHERE article_number = $1 AND version_number = $2`, number, version))
	if IsPgNoRowsError(err) {
		return nil, simplearticle.ErrArticleNotFound
	}
	if err != nil {
		return nil, r.handlePostgresError("get_version", err)
	}
	return a, nil
}

func (r *Repository) GetLatestVersion(ctx context.Context, number int64) (*simplearticle.Article, error) {
	a, err := scanArticle(r.executor(ctx).QueryRow(ctx, `
		SELECT `+versionColumns+` FROM article_version
		WHERE article_number = $1
		ORDER BY version_number DESC LIMIT 1`, number))
	if IsPgNoRowsError(err) {
		return nil, simplearticle.ErrArticleNotFound
	}
	if err != nil {
		return nil, r.handlePostgresError("get_latest_version", err)
	}
	return a, nil
}

func (r *Repository) ListVersions(ctx context.Context, number int64) ([]*simplearticle.Article, error) {
	rows, err := r.executor(ctx).Query(ctx, `
		SELECT `+versionColumns+` FROM article_version
		WHERE article_number = $1
		ORDER BY version_number DESC`, number)
	if err != nil {
		return nil, r.handlePostgresError("list_versions", err)
	}
	defer rows.Close()

	var out []*simplearticle.Article
	for rows.Next() {
		a, err := scanArticle(rows)
		if err != nil {
			return nil, r.handlePostgresError("scan_version", err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, r.handlePostgresError("list_versions", err)
	}
	return out, nil
}

func (r *Repository) ListArticleNumbers(ctx context.Context, offset, limit int) ([]int64, error) {
	query := `SELECT DISTINCT article_number FROM article_version ORDER BY article_number OFFSET $1`
	args := []interface{}{offset}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}
	rows, err := r.executor(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, r.handlePostgresError("list_article_numbers", err)
	}
	defer rows.Close()

	var out []int64
	for rows.Next() {
		var n int64
		if err := rows.Scan(&n); err != nil {
			return nil, r.handlePostgresError("scan_article_number", err)
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

func (r *Repository) SetVersionStatus(ctx context.Context, number int64, status simplearticle.ArticleStatus, updatedAt time.Time) error {
	tag, err := r.executor(ctx).Exec(ctx,
		`UPDATE article_version SET status = $2, updated_at = $3 WHERE article_number = $1`,
		number, string(status), updatedAt)
	if err != nil {
		return r.handlePostgresError("set_version_status", err)
	}
	if tag.RowsAffected() == 0 {
		return simplearticle.ErrArticleNotFound
	}
	return nil
}

func (r *Repository) SetPublishedAt(ctx context.Context, number int64, version int, publishedAt *time.Time) error {
	tag, err := r.executor(ctx).Exec(ctx,
		`UPDATE article_version SET published_at = $3 WHERE article_number = $1 AND version_number = $2`,
		number, version, publishedAt)
	if err != nil {
		return r.handlePostgresError("set_published_at", err)
	}
	if tag.RowsAffected() == 0 {
		return simplearticle.ErrArticleNotFound
	}
	return nil
}

func (r *Repository) ClearPublishedAt(ctx context.Context, number int64, exceptVersion int) error {
	_, err := r.executor(ctx).Exec(ctx, `
		UPDATE article_version SET published_at = NULL
		WHERE article_number = $1 AND version_number <> $2 AND published_at IS NOT NULL`,
		number, exceptVersion)
	if err != nil {
		return r.handlePostgresError("clear_published_at", err)
	}
	return nil
}

func (r *Repository) FindSlugOwner(ctx context.Context, slug string) (int64, error) {
	var number int64
	err := r.executor(ctx).QueryRow(ctx, `
		SELECT v.article_number
		FROM article_version v
		JOIN (
			SELECT article_number, MAX(version_number) AS version_number
			FROM article_version GROUP BY article_number
		) latest ON latest.article_number = v.article_number AND latest.version_number = v.version_number
		WHERE lower(v.url_path) = lower($1) AND v.status <> 'deleted'
		ORDER BY v.article_number
		LIMIT 1`, slug).Scan(&number)
	if IsPgNoRowsError(err) {
		return 0, simplearticle.ErrArticleNotFound
	}
	if err != nil {
		return 0, r.handlePostgresError("find_slug_owner", err)
	}
	return number, nil
}

// slugLockNamespace is the first key of every advisory lock LockSlugs takes.
const slugLockNamespace int32 = 0x5a17

// LockSlugs takes a transaction-scoped advisory lock per slug, in sorted order.
// Slugs are keyed by their lower-cased form, matching FindSlugOwner.
func (r *Repository) LockSlugs(ctx context.Context, slugs ...string) error {
	tx := GetTx(ctx)
	if tx == nil {
		return nil
	}
	keys := make([]string, 0, len(slugs))
	for _, slug := range slugs {
		keys = append(keys, strings.ToLower(strings.Trim(strings.TrimSpace(slug), "/")))
	}
	slices.Sort(keys)
	for _, key := range slices.Compact(keys) {
		if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1, hashtext($2))`, slugLockNamespace, key); err != nil {
			return r.handlePostgresError("lock_slugs", err)
		}
	}
	return nil
}

// Published snapshot operations

func (r *Repository) GetSnapshot(ctx context.Context, number int64) (*simplearticle.PublishedSnapshot, error) {
	var s simplearticle.PublishedSnapshot
	err := r.executor(ctx).QueryRow(ctx,
		`SELECT article_number, version_number, published_at FROM published_snapshot WHERE article_number = $1`,
		number).Scan(&s.Number, &s.Version, &s.PublishedAt)
	if IsPgNoRowsError(err) {
		return nil, simplearticle.ErrSnapshotNotFound
	}
	if err != nil {
		return nil, r.handlePostgresError("get_snapshot", err)
	}
	return &s, nil
}

func (r *Repository) UpsertSnapshot(ctx context.Context, s *simplearticle.PublishedSnapshot) error {
	_, err := r.executor(ctx).Exec(ctx, `
		INSERT INTO published_snapshot (article_number, version_number, published_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (article_number) DO UPDATE
		SET version_number = EXCLUDED.version_number, published_at = EXCLUDED.published_at`,
		s.Number, s.Version, s.PublishedAt)
	if err != nil {
		return r.handlePostgresError("upsert_snapshot", err)
	}
	return nil
}

func (r *Repository) DeleteSnapshot(ctx context.Context, number int64) error {
	tag, err := r.executor(ctx).Exec(ctx, `DELETE FROM published_snapshot WHERE article_number = $1`, number)
	if err != nil {
		return r.handlePostgresError("delete_snapshot", err)
	}
	if tag.RowsAffected() == 0 {
		return simplearticle.ErrSnapshotNotFound
	}
	return nil
}

// Catalog operations

const catalogColumns = `article_number, title, url_path, teaser_text, banner_image, published_at, author_id, updated_at`

func scanCatalogEntry(row pgx.Row) (*simplearticle.CatalogEntry, error) {
	var e simplearticle.CatalogEntry
	err := row.Scan(&e.Number, &e.Title, &e.URLPath, &e.TeaserText, &e.BannerImage,
		&e.PublishedAt, &e.AuthorID, &e.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func (r *Repository) GetCatalogEntry(ctx context.Context, number int64) (*simplearticle.CatalogEntry, error) {
	e, err := scanCatalogEntry(r.executor(ctx).QueryRow(ctx,
		`SELECT `+catalogColumns+` FROM catalog_entry WHERE article_number = $1`, number))
	if IsPgNoRowsError(err) {
		return nil, simplearticle.ErrCatalogEntryNotFound
	}
	if err != nil {
		return nil, r.handlePostgresError("get_catalog_entry", err)
	}
	return e, nil
}

func (r *Repository) UpsertCatalogEntry(ctx context.Context, e *simplearticle.CatalogEntry) error {
	_, err := r.executor(ctx).Exec(ctx, `
		INSERT INTO catalog_entry (`+catalogColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (article_number) DO UPDATE SET
			title = EXCLUDED.title,
			url_path = EXCLUDED.url_path,
			teaser_text = EXCLUDED.teaser_text,
			banner_image = EXCLUDED.banner_image,
			published_at = EXCLUDED.published_at,
			author_id = EXCLUDED.author_id,
			updated_at = EXCLUDED.updated_at`,
		e.Number, e.Title, e.URLPath, e.TeaserText, e.BannerImage, e.PublishedAt, e.AuthorID, e.UpdatedAt)
	if err != nil {
		return r.handlePostgresError("upsert_catalog_entry", err)
	}
	return nil
}

func (r *Repository) DeleteCatalogEntry(ctx context.Context, number int64) error {
	tag, err := r.executor(ctx).Exec(ctx, `DELETE FROM catalog_entry WHERE article_number = $1`, number)
	if err != nil {
		return r.handlePostgresError("delete_catalog_entry", err)
	}
	if tag.RowsAffected() == 0 {
		return simplearticle.ErrCatalogEntryNotFound
	}
	return nil
}

// ListCatalog returns entries newest article number first.
func (r *Repository) ListCatalog(ctx context.Context, filter simplearticle.CatalogFilter) ([]*simplearticle.CatalogEntry, error) {
	query := `SELECT ` + catalogColumns + ` FROM catalog_entry`
	var args []interface{}
	if filter.PublishedOnly {
		if filter.AsOf.IsZero() {
			query += ` WHERE published_at <= now()`
		} else {
			args = append(args, filter.AsOf)
			query += ` WHERE published_at <= $1`
		}
	}
	query += ` ORDER BY article_number DESC`
	if filter.Limit != nil && *filter.Limit > 0 {
		args = append(args, *filter.Limit)
		query += fmt.Sprintf(` LIMIT $%d`, len(args))
	}
	if filter.Offset != nil && *filter.Offset > 0 {
		args = append(args, *filter.Offset)
		query += fmt.Sprintf(` OFFSET $%d`, len(args))
	}

	rows, err := r.executor(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, r.handlePostgresError("list_catalog", err)
	}
	defer rows.Close()

	entries := []*simplearticle.CatalogEntry{}
	for rows.Next() {
		e, err := scanCatalogEntry(rows)
		if err != nil {
			return nil, r.handlePostgresError("scan_catalog_entry", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Redirect stub operations

const redirectColumns = `url_path, target, author_id, created_at, updated_at`

func scanRedirect(row pgx.Row) (*simplearticle.Redirect, error) {
	var rd simplearticle.Redirect
	if err := row.Scan(&rd.URLPath, &rd.Target, &rd.AuthorID, &rd.CreatedAt, &rd.UpdatedAt); err != nil {
		return nil, err
	}
	return &rd, nil
}

func (r *Repository) queryRedirects(ctx context.Context, op, query string, args ...interface{}) ([]*simplearticle.Redirect, error) {
	rows, err := r.executor(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, r.handlePostgresError(op, err)
	}
	defer rows.Close()

	var out []*simplearticle.Redirect
	for rows.Next() {
		rd, err := scanRedirect(rows)
		if err != nil {
			return nil, r.handlePostgresError(op, err)
		}
		out = append(out, rd)
	}
	return out, rows.Err()
}

func (r *Repository) GetRedirect(ctx context.Context, slug string) (*simplearticle.Redirect, error) {
	rd, err := scanRedirect(r.executor(ctx).QueryRow(ctx,
		`SELECT `+redirectColumns+` FROM redirect WHERE url_path = lower($1)`, slug))
	if IsPgNoRowsError(err) {
		return nil, simplearticle.ErrRedirectNotFound
	}
	if err != nil {
		return nil, r.handlePostgresError("get_redirect", err)
	}
	return rd, nil
}

func (r *Repository) CreateRedirect(ctx context.Context, rd *simplearticle.Redirect) error {
	_, err := r.executor(ctx).Exec(ctx, `
		INSERT INTO redirect (`+redirectColumns+`)
		VALUES (lower($1), lower($2), $3, $4, $5)`,
		rd.URLPath, rd.Target, rd.AuthorID, rd.CreatedAt, rd.UpdatedAt)
	if err != nil {
		return r.handlePostgresError("create_redirect", err)
	}
	return nil
}

func (r *Repository) UpdateRedirect(ctx context.Context, rd *simplearticle.Redirect) error {
	tag, err := r.executor(ctx).Exec(ctx, `
		UPDATE redirect SET target = lower($2), author_id = $3, updated_at = $4
		WHERE url_path = lower($1)`,
		rd.URLPath, rd.Target, rd.AuthorID, rd.UpdatedAt)
	if err != nil {
		return r.handlePostgresError("update_redirect", err)
	}
	if tag.RowsAffected() == 0 {
		return simplearticle.ErrRedirectNotFound
	}
	return nil
}

func (r *Repository) DeleteRedirect(ctx context.Context, slug string) error {
	tag, err := r.executor(ctx).Exec(ctx, `DELETE FROM redirect WHERE url_path = lower($1)`, slug)
	if err != nil {
		return r.handlePostgresError("delete_redirect", err)
	}
	if tag.RowsAffected() == 0 {
		return simplearticle.ErrRedirectNotFound
	}
	return nil
}

func (r *Repository) ListRedirectsByTarget(ctx context.Context, target string) ([]*simplearticle.Redirect, error) {
	return r.queryRedirects(ctx, "list_redirects_by_target",
		`SELECT `+redirectColumns+` FROM redirect WHERE target = lower($1) ORDER BY url_path`, target)
}

func (r *Repository) ListRedirects(ctx context.Context, offset, limit int) ([]*simplearticle.Redirect, error) {
	if limit > 0 {
		return r.queryRedirects(ctx, "list_redirects",
			`SELECT `+redirectColumns+` FROM redirect ORDER BY url_path OFFSET $1 LIMIT $2`, offset, limit)
	}
	return r.queryRedirects(ctx, "list_redirects",
		`SELECT `+redirectColumns+` FROM redirect ORDER BY url_path OFFSET $1`, offset)
}
