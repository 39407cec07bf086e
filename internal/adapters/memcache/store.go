// Package memcache is the in-process implementation of domain.InteractionCache:
// a time-expiring key-value store with lazy eviction and entity tags.
package memcache

import (
	"context"
	"sync"
	"time"

	"gitlab.com/shutterbug/web/shutterbug-core/internal/adapters/metrics"
	"gitlab.com/shutterbug/web/shutterbug-core/internal/domain"
	"gitlab.com/shutterbug/web/shutterbug-core/pkg/cachekeys"
)

// DefaultTTL is used when neither the caller nor WithDefaultTTL picks a window.
const DefaultTTL = 5 * time.Minute

type entry struct {
	value     any
	createdAt time.Time
	expiresAt time.Time
	tags      []string
}

// Store holds arbitrary values under string keys until their expiration.
// There is no capacity bound and no background sweep: an expired entry is
// removed by the first Get or Has that sees it.
type Store struct {
	mu         sync.Mutex
	entries    map[string]*entry
	tagged     map[string]map[string]struct{} // entity id -> keys derived from it
	defaultTTL time.Duration
	now        func() time.Time
	logger     domain.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithDefaultTTL sets the window used by Set calls that pass ttl <= 0.
func WithDefaultTTL(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.defaultTTL = d
		}
	}
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// New creates an empty Store.
func New(logger domain.Logger, opts ...Option) *Store {
	if logger == nil {
		panic("logger cannot be nil in memcache.New")
	}
	s := &Store{
		entries:    make(map[string]*entry),
		tagged:     make(map[string]map[string]struct{}),
		defaultTTL: DefaultTTL,
		now:        time.Now,
		logger:     logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

var _ domain.InteractionCache = (*Store)(nil)

// Get returns the value under key if it is still fresh, i.e. now <= expiresAt.
func (s *Store) Get(ctx context.Context, key string) (any, bool) {
	ns := cachekeys.Namespace(key)

	s.mu.Lock()
	e, ok := s.entries[key]
	if !ok {
		s.mu.Unlock()
		metrics.ObserveCacheLookup(ns, metrics.ResultMiss)
		s.logger.Debug(ctx, "Interaction cache miss", "key", key)
		return nil, false
	}
	if s.now().After(e.expiresAt) {
		s.removeLocked(key, e)
		size := len(s.entries)
		s.mu.Unlock()
		metrics.ObserveCacheLookup(ns, metrics.ResultExpired)
		metrics.SetCacheEntries(size)
		s.logger.Debug(ctx, "Interaction cache entry expired and evicted", "key", key, "expired_at", e.expiresAt)
		return nil, false
	}
	v := e.value
	s.mu.Unlock()

	metrics.ObserveCacheLookup(ns, metrics.ResultHit)
	s.logger.Debug(ctx, "Interaction cache hit", "key", key)
	return v, true
}

// Has reports whether key holds a fresh value, evicting it if it is stale.
func (s *Store) Has(ctx context.Context, key string) bool {
	_, ok := s.Get(ctx, key)
	return ok
}

// Set stores value under key until now+ttl, unconditionally replacing any
// previous entry and its tags. A ttl <= 0 selects the default window.
func (s *Store) Set(ctx context.Context, key string, value any, ttl time.Duration, dependsOn ...string) {
	if ttl <= 0 {
		ttl = s.defaultTTL
	}
	now := s.now()
	e := &entry{
		value:     value,
		createdAt: now,
		expiresAt: now.Add(ttl),
		tags:      dedupe(dependsOn),
	}

	s.mu.Lock()
	if old, ok := s.entries[key]; ok {
		s.removeLocked(key, old)
	}
	s.entries[key] = e
	for _, tag := range e.tags {
		keys, ok := s.tagged[tag]
		if !ok {
			keys = make(map[string]struct{})
			s.tagged[tag] = keys
		}
		keys[key] = struct{}{}
	}
	size := len(s.entries)
	s.mu.Unlock()

	metrics.SetCacheEntries(size)
	s.logger.Debug(ctx, "Interaction cache set", "key", key, "ttl", ttl.String(), "depends_on", e.tags)
}

// Clear removes key if present. Related keys are left alone.
func (s *Store) Clear(ctx context.Context, key string) {
	s.mu.Lock()
	e, ok := s.entries[key]
	if ok {
		s.removeLocked(key, e)
	}
	size := len(s.entries)
	s.mu.Unlock()

	if ok {
		metrics.AddCacheInvalidations("clear", 1)
		metrics.SetCacheEntries(size)
		s.logger.Debug(ctx, "Interaction cache key cleared", "key", key)
	}
}

// ClearAll removes every entry.
func (s *Store) ClearAll(ctx context.Context) {
	s.mu.Lock()
	n := len(s.entries)
	s.entries = make(map[string]*entry)
	s.tagged = make(map[string]map[string]struct{})
	s.mu.Unlock()

	metrics.AddCacheInvalidations("flush", n)
	metrics.SetCacheEntries(0)
	s.logger.Info(ctx, "Interaction cache flushed", "removed", n)
}

// InvalidateEntity removes every key stored with entityID among its dependencies.
func (s *Store) InvalidateEntity(ctx context.Context, entityID string) int {
	s.mu.Lock()
	keys := s.tagged[entityID]
	removed := make([]string, 0, len(keys))
	for key := range keys {
		if e, ok := s.entries[key]; ok {
			s.removeLocked(key, e)
			removed = append(removed, key)
		}
	}
	delete(s.tagged, entityID)
	size := len(s.entries)
	s.mu.Unlock()

	metrics.AddCacheInvalidations("entity", len(removed))
	metrics.SetCacheEntries(size)
	s.logger.Debug(ctx, "Interaction cache entity invalidated", "entity_id", entityID, "keys", removed)
	return len(removed)
}

// Len returns the number of stored entries, including expired ones not yet evicted.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// removeLocked drops key and its tag index entries. Must be called with s.mu held.
func (s *Store) removeLocked(key string, e *entry) {
	delete(s.entries, key)
	for _, tag := range e.tags {
		keys := s.tagged[tag]
		delete(keys, key)
		if len(keys) == 0 {
			delete(s.tagged, tag)
		}
	}
}

func dedupe(ids []string) []string {
	if len(ids) == 0 {
		return nil
	}
	out := make([]string, 0, len(ids))
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

// GetAs is Get with a type assertion. A value of another type counts as a miss.
func GetAs[T any](ctx context.Context, c domain.InteractionCache, key string) (T, bool) {
	var zero T
	v, ok := c.Get(ctx, key)
	if !ok {
		return zero, false
	}
	typed, ok := v.(T)
	if !ok {
		return zero, false
	}
	return typed, true
}
