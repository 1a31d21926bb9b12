package ingest

import (
	"context"
	"fmt"
)

type lookup interface {
	ExistsBySourceURL(ctx context.Context, sourceURL string) (bool, error)
	ExistsByFingerprint(ctx context.Context, hash string) (bool, error)
}

// DedupGate answers whether a candidate is already stored, by source URL or
// by content fingerprint. It never writes.
type DedupGate struct {
	store lookup
}

func NewDedupGate(store lookup) *DedupGate {
	return &DedupGate{store: store}
}

func (g *DedupGate) IsDuplicate(ctx context.Context, sourceURL, fingerprint string) (bool, error) {
	exists, err := g.store.ExistsBySourceURL(ctx, sourceURL)
	if err != nil {
		return false, fmt.Errorf("failed to look up source URL: %w", err)
	}
	if exists {
		return true, nil
	}

	exists, err = g.store.ExistsByFingerprint(ctx, fingerprint)
	if err != nil {
		return false, fmt.Errorf("failed to look up fingerprint: %w", err)
	}

	return exists, nil
}
