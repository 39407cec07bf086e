package application

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/singleflight"

	"gitlab.com/shutterbug/web/shutterbug-core/internal/adapters/memcache"
	"gitlab.com/shutterbug/web/shutterbug-core/internal/domain"
)

// cachedLoad returns the value under key, calling load on a miss and storing
// its result for ttl. dependsOn computes the entity ids the value is tagged with.
// Concurrent misses on the same key share a single load.
func cachedLoad[T any](
	ctx context.Context,
	cache domain.InteractionCache,
	group *singleflight.Group,
	key string,
	ttl time.Duration,
	dependsOn func(T) []string,
	load func(context.Context) (T, error),
) (T, error) {
	if v, ok := memcache.GetAs[T](ctx, cache, key); ok {
		return v, nil
	}

	v, err, _ := group.Do(key, func() (any, error) {
		// The load outlives any single waiter, so it must not die with the first caller's context.
		val, err := load(context.WithoutCancel(ctx))
		if err != nil {
			return nil, err
		}
		var deps []string
		if dependsOn != nil {
			deps = dependsOn(val)
		}
		cache.Set(ctx, key, val, ttl, deps...)
		return val, nil
	})
	if err != nil {
		var zero T
		return zero, err
	}
	typed, ok := v.(T)
	if !ok {
		var zero T
		return zero, fmt.Errorf("cached load for %s returned %T", key, v)
	}
	return typed, nil
}

// tagged returns a dependsOn func that always yields ids.
func tagged[T any](ids ...string) func(T) []string {
	return func(T) []string { return ids }
}
