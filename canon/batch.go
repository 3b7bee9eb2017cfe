package canon

import (
	"context"
	"fmt"
	"runtime"
	"sort"

	"golang.org/x/sync/errgroup"
)

// Item is one independently hashed artifact in a batch.
type Item struct {
	ID    string
	Value any
}

// Entry pairs an artifact identifier with its digest.
type Entry struct {
	ID     string
	Digest Digest
}

// Batch is the reduced result of HashBatch.
//
// Entries is sorted by ID, never by completion order.
type Batch struct {
	Entries []Entry
	ByID    map[string]Digest
}

// HashBatch computes ComputeContentHash for every item concurrently.
//
// limit caps the number of concurrent workers (<= 0 means GOMAXPROCS).
// Duplicate IDs are rejected before any hashing starts. The first failure
// cancels the remaining work and is returned.
func HashBatch(ctx context.Context, items []Item, c Contract, domainPrefix string, limit int) (Batch, error) {
	if err := checkDomain(c, domainPrefix); err != nil {
		return Batch{}, err
	}
	seen := make(map[string]struct{}, len(items))
	for _, it := range items {
		if _, dup := seen[it.ID]; dup {
			return Batch{}, newError(KindEncoding, "CANON-ENC-009", fmt.Sprintf("duplicate artifact id %q in batch", it.ID))
		}
		seen[it.ID] = struct{}{}
	}
	if limit <= 0 {
		limit = runtime.GOMAXPROCS(0)
	}

	out := make([]Entry, len(items))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for i, it := range items {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			d, err := ComputeContentHash(it.Value, c, domainPrefix)
			if err != nil {
				return fmt.Errorf("artifact %q: %w", it.ID, err)
			}
			out[i] = Entry{ID: it.ID, Digest: d}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Batch{}, err
	}

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	byID := make(map[string]Digest, len(out))
	for _, e := range out {
		byID[e.ID] = e.Digest
	}
	return Batch{Entries: out, ByID: byID}, nil
}
