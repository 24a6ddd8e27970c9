package admin

import (
	"time"

	"github.com/tendant/simple-article/pkg/simplearticle"
)

// DefaultBatchSize is the page size used when a request leaves it unset.
const DefaultBatchSize = 100

// ListRedirectsRequest pages through redirect stubs.
type ListRedirectsRequest struct {
	Limit  int `json:"limit,omitempty"`
	Offset int `json:"offset,omitempty"`
}

// ListRedirectsResponse is one page of redirect stubs.
type ListRedirectsResponse struct {
	Redirects []*simplearticle.Redirect `json:"redirects"`
	Limit     int                       `json:"limit"`
	Offset    int                       `json:"offset"`
	HasMore   bool                      `json:"has_more"`
}

// AuditRequest configures a redirect audit.
type AuditRequest struct {
	BatchSize int `json:"batch_size,omitempty"`
}

// Finding kinds reported by AuditRedirects.
const (
	FindingChain    = "chain"    // target is the source of another stub
	FindingSelf     = "self"     // target equals source
	FindingOrphan   = "orphan"   // no live article owns the target
	FindingShadowed = "shadowed" // a live article owns the source slug
)

// Finding is one problem found by AuditRedirects.
type Finding struct {
	Kind    string `json:"kind"`
	URLPath string `json:"url_path"`
	Target  string `json:"target"`
	// Next is the stub's target's own target, set for chains.
	Next string `json:"next,omitempty"`
}

// AuditReport summarizes a redirect audit.
type AuditReport struct {
	Scanned   int64     `json:"scanned"`
	Findings  []Finding `json:"findings"`
	CheckedAt time.Time `json:"checked_at"`
}

// Healthy reports whether the audit found nothing.
func (r *AuditReport) Healthy() bool {
	return len(r.Findings) == 0
}

// RebuildRequest configures a catalog rebuild.
type RebuildRequest struct {
	// BatchSize controls how many article numbers are read at once (default: 100)
	BatchSize int
	// DryRun counts articles without writing
	DryRun bool
	// OnProgress is called after each batch (optional)
	OnProgress func(processed int64)
}

// RebuildResult contains statistics about a catalog rebuild.
type RebuildResult struct {
	TotalFound     int64   `json:"total_found"`
	TotalProcessed int64   `json:"total_processed"`
	TotalFailed    int64   `json:"total_failed"`
	FailedNumbers  []int64 `json:"failed_numbers,omitempty"`
	Cancelled      bool    `json:"cancelled,omitempty"`
}
