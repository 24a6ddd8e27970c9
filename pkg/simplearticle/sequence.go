package simplearticle

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// BootstrapArticleNumber is the number of the site root article. It is the
// only article published on creation.
const BootstrapArticleNumber int64 = 1

// SequenceAllocator issues article numbers from the append-only ledger.
type SequenceAllocator struct {
	repo Repository
	now  func() time.Time
}

// NewSequenceAllocator creates an allocator over repo.
func NewSequenceAllocator(repo Repository) *SequenceAllocator {
	return &SequenceAllocator{repo: repo, now: func() time.Time { return time.Now().UTC() }}
}

// AllocateNext reads the highest issued number and appends max+1 to the
// ledger. It must run inside the transaction that inserts the article; two
// callers racing for the same number see a ConflictError on the ledger insert.
func (a *SequenceAllocator) AllocateNext(ctx context.Context) (int64, error) {
	max, err := a.repo.MaxArticleNumber(ctx)
	if err != nil {
		return 0, fmt.Errorf("read article sequence: %w", err)
	}
	next := max + 1
	entry := &SequenceEntry{Number: next, AllocatedAt: a.now()}
	if err := a.repo.InsertSequenceEntry(ctx, entry); err != nil {
		if errors.Is(err, ErrConflict) {
			return 0, err
		}
		return 0, fmt.Errorf("append article sequence %d: %w", next, err)
	}
	return next, nil
}

// IsBootstrap reports whether number is the first article ever allocated.
func IsBootstrap(number int64) bool {
	return number == BootstrapArticleNumber
}
