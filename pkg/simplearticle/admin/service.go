package admin

import (
	"context"
	"log/slog"

	"github.com/tendant/simple-article/pkg/simplearticle"
)

// AdminService defines operational tasks over redirect stubs and the catalog.
// They read across every article and are intended for operators, so
// endpoints exposing them should sit behind authorization middleware.
type AdminService interface {
	// ListRedirects returns a page of redirect stubs ordered by source slug.
	ListRedirects(ctx context.Context, req ListRedirectsRequest) (*ListRedirectsResponse, error)

	// AuditRedirects scans every stub and reports chains, self references and
	// stubs whose target no live article owns.
	AuditRedirects(ctx context.Context, req AuditRequest) (*AuditReport, error)

	// RebuildCatalog recomputes the catalog entry of every article in
	// batches. Failures are recorded and the scan continues.
	RebuildCatalog(ctx context.Context, req RebuildRequest) (*RebuildResult, error)
}

// Option configures the admin service.
type Option func(*adminService)

// WithTeaserLength matches the catalog teaser length used by the main service.
func WithTeaserLength(n int) Option {
	return func(s *adminService) {
		s.teaserLength = n
	}
}

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) Option {
	return func(s *adminService) {
		s.logger = logger
	}
}

// New creates a new AdminService instance that uses the provided repository.
func New(repo simplearticle.Repository, opts ...Option) AdminService {
	s := &adminService{
		repo:   repo,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.catalog = simplearticle.NewCatalogSynchronizer(repo, s.teaserLength)
	s.logger = s.logger.With("component", "simplearticle.admin")
	return s
}
