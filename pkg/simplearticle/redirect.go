package simplearticle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
)

// DefaultMaxRedirectDepth is the number of hops ResolveFinalDestination follows
// before giving up.
const DefaultMaxRedirectDepth = 10

// Redirect outcome labels reported to MetricsRecorder.
const (
	RedirectOutcomeSuccess = "success"
	RedirectOutcomeSkipped = "skipped"
	RedirectOutcomeFailed  = "failed"
)

// FailedRedirect records one slug change that could not be written.
type FailedRedirect struct {
	Number  int64  `json:"number"`
	OldSlug string `json:"old_slug"`
	NewSlug string `json:"new_slug"`
	Error   string `json:"error"`
}

// RedirectCreationResult aggregates the outcome of a redirect batch.
type RedirectCreationResult struct {
	SuccessCount int              `json:"success_count"`
	SkippedCount int              `json:"skipped_count"`
	Failed       []FailedRedirect `json:"failed,omitempty"`
	Redirects    []*Redirect      `json:"redirects,omitempty"`
	// Cancelled is set when the context ended before every change was visited.
	Cancelled bool `json:"cancelled,omitempty"`
}

// AllSucceeded reports whether no change failed.
func (r *RedirectCreationResult) AllSucceeded() bool {
	return len(r.Failed) == 0
}

// Err returns a *PartialBatchFailure when at least one change failed.
func (r *RedirectCreationResult) Err() error {
	if r == nil || r.AllSucceeded() {
		return nil
	}
	failed := make([]FailedRedirect, len(r.Failed))
	copy(failed, r.Failed)
	return &PartialBatchFailure{Failed: failed}
}

// Report renders the failures as a table an operator can backfill from.
func (r *RedirectCreationResult) Report() string {
	var b strings.Builder
	fmt.Fprintf(&b, "redirects: %d created/updated, %d skipped, %d failed", r.SuccessCount, r.SkippedCount, len(r.Failed))
	if r.Cancelled {
		b.WriteString(" (cancelled)")
	}
	b.WriteByte('\n')
	if len(r.Failed) == 0 {
		return b.String()
	}
	w := tabwriter.NewWriter(&b, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ARTICLE\tOLD SLUG\tNEW SLUG\tERROR")
	for _, f := range r.Failed {
		fmt.Fprintf(w, "%d\t/%s\t/%s\t%s\n", f.Number, f.OldSlug, f.NewSlug, f.Error)
	}
	w.Flush()
	return b.String()
}

// RedirectResolver writes redirect stubs and follows them to terminal slugs.
//
// Stubs never point at another stub: every write resolves its destination
// first and then retargets any stub that pointed at the slug being redirected.
type RedirectResolver struct {
	repo       Repository
	tx         TransactionManager
	normalizer *Normalizer
	cache      RedirectCache
	metrics    MetricsRecorder
	logger     *slog.Logger
	maxDepth   int
	now        func() time.Time
}

// NewRedirectResolver creates a resolver. Nil collaborators fall back to
// no-op implementations; maxDepth <= 0 uses DefaultMaxRedirectDepth.
func NewRedirectResolver(repo Repository, tx TransactionManager, normalizer *Normalizer, maxDepth int) *RedirectResolver {
	if tx == nil {
		tx = passthroughTx{}
	}
	if normalizer == nil {
		normalizer = NewNormalizer(nil, 0)
	}
	if maxDepth <= 0 {
		maxDepth = DefaultMaxRedirectDepth
	}
	return &RedirectResolver{
		repo:       repo,
		tx:         tx,
		normalizer: normalizer,
		metrics:    noopMetrics{},
		logger:     slog.Default(),
		maxDepth:   maxDepth,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

func (r *RedirectResolver) withCache(cache RedirectCache) *RedirectResolver {
	r.cache = cache
	return r
}

func (r *RedirectResolver) withMetrics(m MetricsRecorder) *RedirectResolver {
	if m != nil {
		r.metrics = m
	}
	return r
}

func (r *RedirectResolver) withLogger(logger *slog.Logger) *RedirectResolver {
	if logger != nil {
		r.logger = logger
	}
	return r
}

func (r *RedirectResolver) withClock(now func() time.Time) *RedirectResolver {
	if now != nil {
		r.now = now
	}
	return r
}

// canonicalSlug is the lookup form of a slug: trimmed, no surrounding "/", lower case.
func canonicalSlug(s string) string {
	return strings.ToLower(strings.Trim(strings.TrimSpace(s), "/"))
}

// ResolveFinalDestination follows redirect stubs from slug until it reaches a
// slug that is not a stub source. Loops and chains longer than the configured
// depth return a *RedirectChainDepthError.
func (r *RedirectResolver) ResolveFinalDestination(ctx context.Context, slug string) (string, error) {
	current := canonicalSlug(slug)
	seen := map[string]struct{}{current: {}}
	for hops := 0; ; hops++ {
		stub, err := r.repo.GetRedirect(ctx, current)
		if errors.Is(err, ErrNotFound) {
			return current, nil
		}
		if err != nil {
			return "", fmt.Errorf("resolve %q: %w", slug, err)
		}
		if hops >= r.maxDepth {
			return "", &RedirectChainDepthError{Start: slug, Depth: r.maxDepth}
		}
		next := canonicalSlug(stub.Target)
		if _, loop := seen[next]; loop {
			return "", &RedirectChainDepthError{Start: slug, Depth: hops + 1}
		}
		seen[next] = struct{}{}
		current = next
	}
}

// resolveOrFallback resolves slug, falling back to slug itself when the chain
// is broken.
func (r *RedirectResolver) resolveOrFallback(ctx context.Context, slug string) (string, error) {
	target, err := r.ResolveFinalDestination(ctx, slug)
	if err == nil {
		return target, nil
	}
	if errors.Is(err, ErrRedirectChainDepthExceeded) {
		r.metrics.ChainDepthExceeded()
		r.logger.WarnContext(ctx, "redirect chain anomaly, using slug as-is", "slug", slug, "error", err)
		return canonicalSlug(slug), nil
	}
	return "", err
}

// CreateOrUpdateRedirect points fromSlug at the final destination of toSlug.
// It returns nil without writing anything when fromSlug is the site root or
// when the destination resolves back to fromSlug.
func (r *RedirectResolver) CreateOrUpdateRedirect(ctx context.Context, fromSlug, toSlug string, actor uuid.UUID) (*Redirect, error) {
	from, err := r.normalizer.NormalizePath(fromSlug)
	if err != nil {
		return nil, err
	}
	if from == RootSlug {
		return nil, nil
	}
	to, err := r.normalizer.NormalizePath(toSlug)
	if err != nil {
		return nil, err
	}
	if EqualSlugs(from, to) {
		return nil, nil
	}

	var written *Redirect
	touched := []string{from}
	err = r.tx.ExecTx(ctx, func(ctx context.Context) error {
		if err := r.repo.LockSlugs(ctx, from, to); err != nil {
			return err
		}
		target, err := r.lockedDestination(ctx, to)
		if err != nil {
			return err
		}
		if EqualSlugs(from, target) {
			return nil
		}

		owner, err := r.repo.FindSlugOwner(ctx, from)
		if err == nil {
			return &ConflictError{
				Message:      fmt.Sprintf("slug %q is owned by article %d", from, owner),
				ResourceType: "slug",
				ResourceID:   from,
			}
		}
		if !errors.Is(err, ErrNotFound) {
			return err
		}

		now := r.now()
		existing, err := r.repo.GetRedirect(ctx, from)
		switch {
		case err == nil:
			existing.Target = target
			existing.AuthorID = actor
			existing.UpdatedAt = now
			if err := r.repo.UpdateRedirect(ctx, existing); err != nil {
				return err
			}
			written = existing
		case errors.Is(err, ErrNotFound):
			written = &Redirect{URLPath: from, Target: target, AuthorID: actor, CreatedAt: now, UpdatedAt: now}
			if err := r.repo.CreateRedirect(ctx, written); err != nil {
				return err
			}
		default:
			return err
		}

		// Collapse: anything that pointed at from now points at target.
		upstream, err := r.repo.ListRedirectsByTarget(ctx, from)
		if err != nil {
			return err
		}
		for _, stub := range upstream {
			touched = append(touched, stub.URLPath)
			if EqualSlugs(stub.URLPath, target) {
				if err := r.repo.DeleteRedirect(ctx, stub.URLPath); err != nil {
					return err
				}
				continue
			}
			stub.Target = target
			stub.UpdatedAt = now
			if err := r.repo.UpdateRedirect(ctx, stub); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	r.invalidate(ctx, touched...)
	return written, nil
}

// lockedDestination resolves slug and holds the slug lock of the destination,
// re-resolving until the destination is stable. A concurrent writer cannot turn
// the destination into a stub source before the caller commits.
func (r *RedirectResolver) lockedDestination(ctx context.Context, slug string) (string, error) {
	locked := canonicalSlug(slug)
	for i := 0; i <= r.maxDepth; i++ {
		target, err := r.resolveOrFallback(ctx, slug)
		if err != nil {
			return "", err
		}
		if target == locked {
			return target, nil
		}
		if err := r.repo.LockSlugs(ctx, target); err != nil {
			return "", err
		}
		locked = target
	}
	return locked, nil
}

// CreateRedirectsForSlugChanges writes one redirect per change, sequentially
// and each in its own transaction. Duplicate old slugs keep the last change;
// identity changes are skipped. A failing change is recorded and the batch
// continues. Cancellation is checked between changes.
func (r *RedirectResolver) CreateRedirectsForSlugChanges(ctx context.Context, changes []SlugChange, actor uuid.UUID) *RedirectCreationResult {
	result := &RedirectCreationResult{}

	last := make(map[string]int, len(changes))
	for i, c := range changes {
		last[canonicalSlug(c.OldSlug)] = i
	}

	for i, c := range changes {
		if ctx.Err() != nil {
			result.Cancelled = true
			break
		}
		if last[canonicalSlug(c.OldSlug)] != i {
			result.SkippedCount++
			continue
		}
		if EqualSlugs(c.OldSlug, c.NewSlug) {
			result.SkippedCount++
			continue
		}

		redirect, err := r.CreateOrUpdateRedirect(ctx, c.OldSlug, c.NewSlug, actor)
		switch {
		case err != nil:
			result.Failed = append(result.Failed, FailedRedirect{
				Number:  c.Number,
				OldSlug: c.OldSlug,
				NewSlug: c.NewSlug,
				Error:   err.Error(),
			})
			r.logger.WarnContext(ctx, "redirect creation failed",
				"article_number", c.Number, "old_slug", c.OldSlug, "new_slug", c.NewSlug, "error", err)
		case redirect == nil:
			result.SkippedCount++
		default:
			result.SuccessCount++
			result.Redirects = append(result.Redirects, redirect)
		}
	}

	r.metrics.RedirectOutcome(RedirectOutcomeSuccess, result.SuccessCount)
	r.metrics.RedirectOutcome(RedirectOutcomeSkipped, result.SkippedCount)
	r.metrics.RedirectOutcome(RedirectOutcomeFailed, len(result.Failed))
	return result
}

// ResolveRedirect returns the final destination when slug is a redirect
// source. Broken chains are logged and reported as not found so the caller
// serves slug unchanged.
func (r *RedirectResolver) ResolveRedirect(ctx context.Context, slug string) (string, bool, error) {
	key := canonicalSlug(slug)
	if r.cache != nil {
		target, found, err := r.cache.Get(ctx, key)
		if err != nil {
			r.logger.WarnContext(ctx, "redirect cache read failed", "slug", key, "error", err)
		} else if found {
			return target, true, nil
		}
	}

	target, err := r.ResolveFinalDestination(ctx, key)
	if errors.Is(err, ErrRedirectChainDepthExceeded) {
		r.metrics.ChainDepthExceeded()
		r.logger.WarnContext(ctx, "redirect chain anomaly, serving slug as-is", "slug", key, "error", err)
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	if target == key {
		return "", false, nil
	}

	if r.cache != nil {
		if err := r.cache.Set(ctx, key, target); err != nil {
			r.logger.WarnContext(ctx, "redirect cache write failed", "slug", key, "error", err)
		}
	}
	return target, true, nil
}

func (r *RedirectResolver) invalidate(ctx context.Context, slugs ...string) {
	if r.cache == nil || len(slugs) == 0 {
		return
	}
	if err := r.cache.Invalidate(ctx, slugs...); err != nil {
		r.logger.WarnContext(ctx, "redirect cache invalidation failed", "slugs", slugs, "error", err)
	}
}
