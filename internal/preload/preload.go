// Package preload is the entry point a prerendering driver calls before any
// consumer renders. It reuses the fetch coordinator, so preloading an
// identifier that is already cached or in flight never issues a second
// request, and it returns only after every requested identifier has settled.
package preload

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/any-hub/fetchcache/internal/cache"
)

// Resolver is satisfied by *fetch.Coordinator.
type Resolver interface {
	Resolve(ctx context.Context, id string) (cache.Value, error)
}

// Preload resolves id and discards the value. When it returns nil the value is
// present in the cache.
func Preload(ctx context.Context, r Resolver, id string) error {
	_, err := r.Resolve(ctx, id)
	return err
}

// All preloads ids with at most limit concurrent resolutions (limit <= 0 means
// unbounded). Duplicate ids are resolved once. Every identifier is allowed to
// settle; the first error encountered is returned.
func All(ctx context.Context, r Resolver, ids []string, limit int) error {
	var g errgroup.Group
	if limit > 0 {
		g.SetLimit(limit)
	}

	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}

		g.Go(func() error {
			return Preload(ctx, r, id)
		})
	}
	return g.Wait()
}
