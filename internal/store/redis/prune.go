package redis

import (
	"context"
	"fmt"
)

// PruneResults deletes result keys whose source ID is not in keep.
// Sources removed from the catalog would otherwise linger until their TTL.
func (s *Store) PruneResults(ctx context.Context, keep []string) (int, error) {
	live := make(map[string]struct{}, len(keep))
	for _, id := range keep {
		live[id] = struct{}{}
	}

	deleted := 0
	iter := s.client.Scan(ctx, 0, KeyPrefixResult+"*", 0).Iterator()
	for iter.Next(ctx) {
		id, err := ExtractResultID(iter.Val())
		if err != nil {
			continue
		}
		if _, ok := live[id]; ok {
			continue
		}
		if err := s.client.Del(ctx, iter.Val()).Err(); err != nil {
			return deleted, fmt.Errorf("failed to delete result key: %w", err)
		}
		deleted++
	}
	if err := iter.Err(); err != nil {
		return deleted, fmt.Errorf("failed to prune results: %w", err)
	}
	return deleted, nil
}
