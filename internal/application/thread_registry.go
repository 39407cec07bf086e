package application

import (
	"context"
	"time"

	"gitlab.com/shutterbug/web/shutterbug-core/internal/adapters/metrics"
	"gitlab.com/shutterbug/web/shutterbug-core/internal/domain"
)

// openThread is a comment forest held for an open view.
type openThread struct {
	forest   *domain.Forest
	viewerID string // viewer the forest was fetched for
	lastUsed time.Time
}

// lookupThread returns the open forest of ref with the viewer it belongs to
// and marks it as used.
func (s *CommentService) lookupThread(ref domain.ThreadRef) (*domain.Forest, string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.threads[ref]
	if !ok {
		return nil, "", false
	}
	t.lastUsed = s.now()
	return t.forest, t.viewerID, true
}

// registerThread stores f as viewerID's open forest of ref. If the same viewer
// registered one first, that one is returned; a forest of another viewer is replaced.
func (s *CommentService) registerThread(ctx context.Context, ref domain.ThreadRef, viewerID string, f *domain.Forest) *domain.Forest {
	s.mu.Lock()
	existing, ok := s.threads[ref]
	if ok && existing.viewerID == viewerID {
		existing.lastUsed = s.now()
		s.mu.Unlock()
		s.logger.Debug(ctx, "Thread was opened concurrently; keeping the registered forest")
		return existing.forest
	}
	s.threads[ref] = &openThread{forest: f, viewerID: viewerID, lastUsed: s.now()}
	s.mu.Unlock()

	if ok {
		s.logger.Info(ctx, "Comment thread replaced for another viewer", "comments", f.Len())
		return f
	}

	metrics.IncrementOpenThreads()
	s.logger.Info(ctx, "Comment thread opened", "comments", f.Len())
	return f
}

// deregisterThread drops the open forest of ref, reporting whether there was one.
func (s *CommentService) deregisterThread(ctx context.Context, ref domain.ThreadRef) bool {
	s.mu.Lock()
	_, ok := s.threads[ref]
	delete(s.threads, ref)
	s.mu.Unlock()

	if ok {
		metrics.DecrementOpenThreads()
		s.logger.Info(ctx, "Comment thread closed")
	} else {
		s.logger.Debug(ctx, "Attempted to close a thread that is not open")
	}
	return ok
}

// OpenThreads returns the refs of every thread currently held in memory.
func (s *CommentService) OpenThreads() []domain.ThreadRef {
	s.mu.Lock()
	defer s.mu.Unlock()

	refs := make([]domain.ThreadRef, 0, len(s.threads))
	for ref := range s.threads {
		refs = append(refs, ref)
	}
	return refs
}

// idleThreads returns the refs not used since cutoff.
func (s *CommentService) idleThreads(cutoff time.Time) []domain.ThreadRef {
	s.mu.Lock()
	defer s.mu.Unlock()

	var refs []domain.ThreadRef
	for ref, t := range s.threads {
		if t.lastUsed.Before(cutoff) {
			refs = append(refs, ref)
		}
	}
	return refs
}
