package admin

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/tendant/simple-article/pkg/simplearticle"
)

// adminService implements the AdminService interface
type adminService struct {
	repo         simplearticle.Repository
	catalog      *simplearticle.CatalogSynchronizer
	teaserLength int
	logger       *slog.Logger
}

// Ensure adminService implements AdminService
var _ AdminService = (*adminService)(nil)

// ListRedirects returns a page of redirect stubs
func (s *adminService) ListRedirects(ctx context.Context, req ListRedirectsRequest) (*ListRedirectsResponse, error) {
	limit := req.Limit
	if limit <= 0 {
		limit = DefaultBatchSize
	}
	offset := req.Offset
	if offset < 0 {
		offset = 0
	}

	// One extra row tells us whether another page exists.
	redirects, err := s.repo.ListRedirects(ctx, offset, limit+1)
	if err != nil {
		return nil, err
	}
	hasMore := len(redirects) > limit
	if hasMore {
		redirects = redirects[:limit]
	}
	if redirects == nil {
		redirects = []*simplearticle.Redirect{}
	}

	return &ListRedirectsResponse{
		Redirects: redirects,
		Limit:     limit,
		Offset:    offset,
		HasMore:   hasMore,
	}, nil
}

// AuditRedirects walks every stub page by page
func (s *adminService) AuditRedirects(ctx context.Context, req AuditRequest) (*AuditReport, error) {
	batch := req.BatchSize
	if batch <= 0 {
		batch = DefaultBatchSize
	}
	report := &AuditReport{Findings: []Finding{}}

	for offset := 0; ; offset += batch {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		stubs, err := s.repo.ListRedirects(ctx, offset, batch)
		if err != nil {
			return report, fmt.Errorf("failed to list redirects: %w", err)
		}
		for _, stub := range stubs {
			report.Scanned++
			findings, err := s.auditStub(ctx, stub)
			if err != nil {
				return report, err
			}
			report.Findings = append(report.Findings, findings...)
		}
		if len(stubs) < batch {
			break
		}
	}

	report.CheckedAt = time.Now().UTC()
	if !report.Healthy() {
		s.logger.WarnContext(ctx, "redirect audit found problems", "scanned", report.Scanned, "findings", len(report.Findings))
	}
	return report, nil
}

func (s *adminService) auditStub(ctx context.Context, stub *simplearticle.Redirect) ([]Finding, error) {
	var findings []Finding

	if simplearticle.EqualSlugs(stub.URLPath, stub.Target) {
		return append(findings, Finding{Kind: FindingSelf, URLPath: stub.URLPath, Target: stub.Target}), nil
	}

	if _, err := s.repo.FindSlugOwner(ctx, stub.URLPath); err == nil {
		findings = append(findings, Finding{Kind: FindingShadowed, URLPath: stub.URLPath, Target: stub.Target})
	} else if !errors.Is(err, simplearticle.ErrNotFound) {
		return nil, err
	}

	next, err := s.repo.GetRedirect(ctx, stub.Target)
	switch {
	case err == nil:
		return append(findings, Finding{Kind: FindingChain, URLPath: stub.URLPath, Target: stub.Target, Next: next.Target}), nil
	case !errors.Is(err, simplearticle.ErrNotFound):
		return nil, err
	}

	if stub.Target == simplearticle.RootSlug {
		return findings, nil
	}
	if _, err := s.repo.FindSlugOwner(ctx, stub.Target); err != nil {
		if !errors.Is(err, simplearticle.ErrNotFound) {
			return nil, err
		}
		findings = append(findings, Finding{Kind: FindingOrphan, URLPath: stub.URLPath, Target: stub.Target})
	}
	return findings, nil
}

// RebuildCatalog recomputes catalog entries in batches, continuing past failures
func (s *adminService) RebuildCatalog(ctx context.Context, req RebuildRequest) (*RebuildResult, error) {
	result := &RebuildResult{}
	batch := req.BatchSize
	if batch <= 0 {
		batch = DefaultBatchSize
	}

	for offset := 0; ; offset += batch {
		numbers, err := s.repo.ListArticleNumbers(ctx, offset, batch)
		if err != nil {
			return result, fmt.Errorf("failed to list articles: %w", err)
		}
		result.TotalFound += int64(len(numbers))

		for _, number := range numbers {
			if ctx.Err() != nil {
				result.Cancelled = true
				return result, ctx.Err()
			}
			if req.DryRun {
				result.TotalProcessed++
				continue
			}
			if err := s.catalog.Upsert(ctx, number); err != nil {
				result.TotalFailed++
				result.FailedNumbers = append(result.FailedNumbers, number)
				s.logger.WarnContext(ctx, "catalog rebuild failed", "article_number", number, "error", err)
				continue
			}
			result.TotalProcessed++
		}

		if req.OnProgress != nil {
			req.OnProgress(result.TotalProcessed + result.TotalFailed)
		}
		if len(numbers) < batch {
			break
		}
	}

	s.logger.InfoContext(ctx, "catalog rebuilt", "found", result.TotalFound, "processed", result.TotalProcessed,
		"failed", result.TotalFailed, "dry_run", req.DryRun)
	return result, nil
}
