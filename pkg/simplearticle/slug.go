package simplearticle

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// SlugPolicy decides what happens when a normalized slug is already taken.
type SlugPolicy string

const (
	// SlugPolicySuffix appends the smallest free "-N" suffix (N >= 2).
	SlugPolicySuffix SlugPolicy = "suffix"
	// SlugPolicyReject fails the operation with a ConflictError.
	SlugPolicyReject SlugPolicy = "reject"
)

// IsValid reports whether p is a known policy.
func (p SlugPolicy) IsValid() bool {
	return p == SlugPolicySuffix || p == SlugPolicyReject
}

// DefaultMaxSlugLength caps a single slug segment, in runes.
const DefaultMaxSlugLength = 128

// maxSuffixAttempts bounds the search for a free "-N" suffix.
const maxSuffixAttempts = 1000

// DefaultReservedPaths are application routes an article may never claim.
var DefaultReservedPaths = []string{"admin", "api", "account", "identity", "pub", "metrics", "health"}

// ReservedPaths is a set-based ReservedPathChecker matching on the first path segment.
type ReservedPaths map[string]struct{}

// NewReservedPaths builds a checker from paths; entries are folded the same
// way titles are.
func NewReservedPaths(paths ...string) ReservedPaths {
	r := make(ReservedPaths, len(paths))
	for _, p := range paths {
		p = foldSegment(strings.Trim(p, "/ "))
		if p != "" {
			r[p] = struct{}{}
		}
	}
	return r
}

// IsReserved reports whether the first segment of slug is reserved.
func (r ReservedPaths) IsReserved(slug string) bool {
	first := strings.Trim(slug, "/")
	if i := strings.IndexByte(first, '/'); i >= 0 {
		first = first[:i]
	}
	_, ok := r[strings.ToLower(first)]
	return ok
}

// Normalizer turns titles into URL-safe slugs.
type Normalizer struct {
	reserved  ReservedPathChecker
	maxLength int
}

// NewNormalizer creates a normalizer. A nil checker uses DefaultReservedPaths;
// maxLength <= 0 uses DefaultMaxSlugLength.
func NewNormalizer(reserved ReservedPathChecker, maxLength int) *Normalizer {
	if reserved == nil {
		reserved = NewReservedPaths(DefaultReservedPaths...)
	}
	if maxLength <= 0 {
		maxLength = DefaultMaxSlugLength
	}
	return &Normalizer{reserved: reserved, maxLength: maxLength}
}

// Normalize folds a raw title into a single slug segment.
func (n *Normalizer) Normalize(rawTitle string) (string, error) {
	slug := truncateSlug(foldSegment(rawTitle), n.maxLength)
	if slug == "" {
		return "", newValidationError("title", "%q does not produce a usable URL path", rawTitle)
	}
	if n.reserved.IsReserved(slug) {
		return "", &ValidationError{Field: "title", Message: fmt.Sprintf("%q is a reserved path", slug), Err: ErrReservedPath}
	}
	return slug, nil
}

// NormalizePath folds every "/"-separated segment of path. "" and "/"
// normalize to RootSlug.
func (n *Normalizer) NormalizePath(path string) (string, error) {
	segments := strings.Split(strings.Trim(strings.TrimSpace(path), "/"), "/")
	out := make([]string, 0, len(segments))
	for _, seg := range segments {
		if s := truncateSlug(foldSegment(seg), n.maxLength); s != "" {
			out = append(out, s)
		}
	}
	slug := strings.Join(out, "/")
	if slug != RootSlug && n.reserved.IsReserved(slug) {
		return "", &ValidationError{Field: "url_path", Message: fmt.Sprintf("%q is a reserved path", slug), Err: ErrReservedPath}
	}
	return slug, nil
}

// letterSpellings covers Latin letters that have no NFKD decomposition.
var letterSpellings = strings.NewReplacer(
	"ß", "ss", "æ", "ae", "œ", "oe", "ø", "o", "đ", "d", "ð", "d", "ł", "l", "þ", "th", "ı", "i",
)

// foldSegment strips diacritics, lower-cases, and collapses every run of
// characters outside [a-z0-9] into one "-".
func foldSegment(s string) string {
	t := transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, s)
	if err != nil {
		folded = s
	}
	folded = letterSpellings.Replace(strings.ToLower(folded))

	var b strings.Builder
	b.Grow(len(folded))
	dash := false
	for _, r := range folded {
		if ('a' <= r && r <= 'z') || ('0' <= r && r <= '9') {
			b.WriteRune(r)
			dash = false
			continue
		}
		if !dash && b.Len() > 0 {
			b.WriteByte('-')
			dash = true
		}
	}
	return strings.TrimRight(b.String(), "-")
}

// truncateSlug cuts s to max runes, preferring a "-" boundary in the second half.
func truncateSlug(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	cut := string(r[:max])
	if i := strings.LastIndexByte(cut, '-'); i >= len(cut)/2 {
		cut = cut[:i]
	}
	return strings.Trim(cut, "-")
}

// JoinSlug joins a parent path and a leaf segment.
func JoinSlug(parent, leaf string) string {
	parent = strings.Trim(parent, "/")
	if parent == "" {
		return leaf
	}
	return parent + "/" + leaf
}

// ParentSlug returns everything before the last "/" of slug.
func ParentSlug(slug string) string {
	if i := strings.LastIndexByte(slug, '/'); i >= 0 {
		return slug[:i]
	}
	return ""
}

// EqualSlugs compares slugs case-insensitively, ignoring surrounding "/".
func EqualSlugs(a, b string) bool {
	return strings.EqualFold(strings.Trim(a, "/"), strings.Trim(b, "/"))
}

func suffixedSlug(base string, n int) string {
	return fmt.Sprintf("%s-%d", base, n)
}

// slugClaimer finds a free slug in the shared article/redirect namespace.
type slugClaimer struct {
	repo   Repository
	policy SlugPolicy
}

// claim returns base or, under SlugPolicySuffix, the first free "base-N".
// number is the article asking (0 for a new article) and is never counted as
// a collision with itself. A stub whose target is currentSlug may be taken
// over; it is returned so the caller can delete it in the same transaction.
func (c *slugClaimer) claim(ctx context.Context, base string, number int64, currentSlug string) (string, *Redirect, error) {
	candidate := base
	for n := 1; n <= maxSuffixAttempts; n++ {
		if n > 1 {
			candidate = suffixedSlug(base, n)
		}
		free, stub, err := c.available(ctx, candidate, number, currentSlug)
		if err != nil {
			return "", nil, err
		}
		if free {
			return candidate, stub, nil
		}
		if c.policy == SlugPolicyReject {
			break
		}
	}
	return "", nil, &ConflictError{
		Message:      fmt.Sprintf("url path %q is already in use", base),
		ResourceType: "slug",
		ResourceID:   base,
	}
}

func (c *slugClaimer) available(ctx context.Context, slug string, number int64, currentSlug string) (bool, *Redirect, error) {
	if err := c.repo.LockSlugs(ctx, slug); err != nil {
		return false, nil, err
	}
	owner, err := c.repo.FindSlugOwner(ctx, slug)
	switch {
	case err == nil && owner != number:
		return false, nil, nil
	case err != nil && !errors.Is(err, ErrNotFound):
		return false, nil, err
	}

	stub, err := c.repo.GetRedirect(ctx, slug)
	if errors.Is(err, ErrNotFound) {
		return true, nil, nil
	}
	if err != nil {
		return false, nil, err
	}
	if number != 0 && currentSlug != "" && EqualSlugs(stub.Target, currentSlug) {
		return true, stub, nil
	}
	return false, nil, nil
}
