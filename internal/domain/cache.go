package domain

import (
	"context"
	"time"
)

// InteractionCache is the process-wide store for short-lived derived data
// (profiles, feeds, camera lists, comment thread snapshots).
//
// Every operation is total: a missing or expired key is a miss, never an error.
// Expired entries are removed lazily by the read that observes them.
type InteractionCache interface {
	// Get returns the value stored under key if it has not expired.
	Get(ctx context.Context, key string) (any, bool)

	// Has reports whether Get would hit, with the same eviction side effect.
	Has(ctx context.Context, key string) bool

	// Set stores value under key until now+ttl, replacing any previous entry.
	// A ttl <= 0 selects the store default. dependsOn lists the entity ids the
	// value was derived from; InvalidateEntity uses them.
	Set(ctx context.Context, key string, value any, ttl time.Duration, dependsOn ...string)

	// Clear removes a single key. It never cascades to related keys.
	Clear(ctx context.Context, key string)

	// ClearAll empties the store.
	ClearAll(ctx context.Context)

	// InvalidateEntity clears every key that was stored with entityID in its
	// dependsOn list and returns how many keys were removed.
	InvalidateEntity(ctx context.Context, entityID string) int

	// Len returns the number of stored entries, expired or not.
	Len() int
}
