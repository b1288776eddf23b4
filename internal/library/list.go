package library

import (
	"context"
	"fmt"
	"strings"

	"yaad/internal/cache"
	"yaad/internal/media"
)

// listCacheKey builds the per-user cache key for a filtered listing. The
// user id prefix is what mutation invalidation matches on.
func listCacheKey(userID int64, types []media.Type) string {
	names := make([]string, 0, len(types))
	for _, t := range types {
		names = append(names, string(t))
	}
	return fmt.Sprintf("%d|list|%s", userID, strings.Join(names, ","))
}

// ListByUser returns the user's items through the shared cache. Mutations on
// the service invalidate the user's entries, so a listing after an import
// always reflects it.
func (s *Service) ListByUser(ctx context.Context, userID int64, types ...media.Type) ([]*Item, error) {
	key := listCacheKey(userID, types)
	if cached, ok := s.cache.Get(cacheNamespace, key); ok {
		if items, ok := cached.([]*Item); ok {
			return items, nil
		}
	}
	items, err := s.store.ListByUser(ctx, userID, types...)
	if err != nil {
		return nil, err
	}
	s.cache.Set(cacheNamespace, key, items, cache.TTLShort)
	return items, nil
}

// Counts returns the user's per-type item counts through the shared cache.
func (s *Service) Counts(ctx context.Context, userID int64) (map[media.Type]int, error) {
	key := fmt.Sprintf("%d|counts", userID)
	if cached, ok := s.cache.Get(cacheNamespace, key); ok {
		if counts, ok := cached.(map[media.Type]int); ok {
			return counts, nil
		}
	}
	counts, err := s.store.CountByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	s.cache.Set(cacheNamespace, key, counts, cache.TTLShort)
	return counts, nil
}
