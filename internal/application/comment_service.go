package application

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"gitlab.com/shutterbug/web/shutterbug-core/internal/adapters/config"
	"gitlab.com/shutterbug/web/shutterbug-core/internal/adapters/memcache"
	"gitlab.com/shutterbug/web/shutterbug-core/internal/adapters/metrics"
	"gitlab.com/shutterbug/web/shutterbug-core/internal/domain"
	"gitlab.com/shutterbug/web/shutterbug-core/pkg/cachekeys"
	"gitlab.com/shutterbug/web/shutterbug-core/pkg/contextkeys"
)

// PendingIDPrefix marks comment ids minted locally for an optimistic insert
// that the server has not confirmed yet.
const PendingIDPrefix = "pending-"

// CommentService keeps one comment forest per open thread and applies
// optimistic mutations to it: the local forest changes first, then the
// remote API is called, and the local change is rolled back if that fails.
//
// Responses are applied in completion order with no version check, so a slow
// response can overwrite a newer one.
//
// Forests and cached snapshots carry the liked flags of the viewer they were
// fetched for. A thread opened by a different viewer is refetched, so
// alternating viewers on one thread cost a fetch per switch.
type CommentService struct {
	logger         domain.Logger
	configProvider config.Provider
	cache          domain.InteractionCache
	api            domain.CommentAPI
	loads          singleflight.Group

	mu      sync.Mutex
	threads map[domain.ThreadRef]*openThread

	now   func() time.Time
	newID func() string

	reaperStop chan struct{}
	reaperWg   sync.WaitGroup
	reaperOnce sync.Once
}

// NewCommentService creates a new CommentService.
func NewCommentService(logger domain.Logger, configProvider config.Provider, cache domain.InteractionCache, api domain.CommentAPI) *CommentService {
	if logger == nil {
		panic("logger is nil in NewCommentService")
	}
	if configProvider == nil {
		panic("config provider is nil in NewCommentService")
	}
	if cache == nil {
		panic("cache is nil in NewCommentService")
	}
	if api == nil {
		panic("comment API is nil in NewCommentService")
	}
	return &CommentService{
		logger:         logger,
		configProvider: configProvider,
		cache:          cache,
		api:            api,
		threads:        make(map[domain.ThreadRef]*openThread),
		now:            time.Now,
		newID:          func() string { return PendingIDPrefix + uuid.NewString() },
		reaperStop:     make(chan struct{}),
	}
}

func threadContext(ctx context.Context, ref domain.ThreadRef) context.Context {
	return context.WithValue(ctx, contextkeys.ThreadIDKey, ref.String())
}

func validateRef(ref domain.ThreadRef) error {
	if !ref.Kind.Valid() || ref.ID == "" {
		return fmt.Errorf("%w: %q", domain.ErrInvalidThread, ref.String())
	}
	return nil
}

func (s *CommentService) forestOptions(ctx context.Context) []domain.ForestOption {
	cfg := s.configProvider.Get().Comments
	policy, err := domain.ParseDepthPolicy(cfg.DepthPolicy)
	if err != nil {
		s.logger.Warn(ctx, "Invalid comments.depth_policy, using flatten", "error", err.Error())
	}
	return []domain.ForestOption{
		domain.WithMaxDepth(cfg.MaxDepth),
		domain.WithDepthPolicy(policy),
	}
}

func (s *CommentService) commentsTTL() time.Duration {
	cfg := s.configProvider.Get().Cache
	return config.TTL(cfg.CommentsTTLSeconds, config.TTL(cfg.DefaultTTLSeconds, 0))
}

// OpenThread returns the in-memory forest of a thread. A thread that is not
// open yet is built from the cached snapshot or, on a miss, fetched from the API.
func (s *CommentService) OpenThread(ctx context.Context, ref domain.ThreadRef) (*domain.Forest, error) {
	if err := validateRef(ref); err != nil {
		return nil, err
	}
	ctx = threadContext(ctx, ref)

	viewerID := viewerIDOf(ctx)
	if f, owner, ok := s.lookupThread(ref); ok {
		if owner == viewerID {
			return f, nil
		}
		s.logger.Info(ctx, "Thread was loaded for another viewer; refetching", "loaded_for", owner)
		s.deregisterThread(ctx, ref)
	}

	roots, err := s.loadRoots(ctx, ref, viewerID)
	if err != nil {
		s.logger.Error(ctx, "Failed to load comment thread", "error", err.Error())
		return nil, fmt.Errorf("load thread %s: %w", ref, err)
	}

	f, err := domain.NewForest(roots, s.forestOptions(ctx)...)
	if err != nil {
		// The snapshot is unusable; make sure the next attempt refetches.
		s.clearThreadKeys(ctx, ref)
		s.logger.Error(ctx, "Fetched comment thread is inconsistent", "error", err.Error())
		return nil, fmt.Errorf("build thread %s: %w", ref, err)
	}
	return s.registerThread(ctx, ref, viewerID, f), nil
}

// threadSnapshot is the cached result of a thread fetch. Its liked flags are
// those of the viewer it was fetched for.
type threadSnapshot struct {
	viewerID string
	roots    []*domain.CommentNode
}

func viewerIDOf(ctx context.Context) string {
	v, _ := domain.ViewerFromContext(ctx)
	return v.UserID
}

// loadRoots reads the thread snapshot from the cache, fetching it on a miss or
// when the cached copy belongs to another viewer.
func (s *CommentService) loadRoots(ctx context.Context, ref domain.ThreadRef, viewerID string) ([]*domain.CommentNode, error) {
	key := cachekeys.Comments(string(ref.Kind), ref.ID)
	if snap, ok := memcache.GetAs[threadSnapshot](ctx, s.cache, key); ok && snap.viewerID == viewerID {
		return snap.roots, nil
	}

	v, err, _ := s.loads.Do(key+"|"+viewerID, func() (any, error) {
		// The load outlives any single waiter, so it must not die with the first caller's context.
		roots, err := s.api.FetchComments(context.WithoutCancel(ctx), ref)
		if err != nil {
			return nil, err
		}
		// The cache keeps its own copy; forests clone again on build.
		roots = domain.CloneNodes(roots)

		total := 0
		for _, r := range roots {
			total += r.CountNodes()
		}
		ttl := s.commentsTTL()
		s.cache.Set(ctx, cachekeys.CommentCount(string(ref.Kind), ref.ID), total, ttl, ref.String())
		s.cache.Set(ctx, key, threadSnapshot{viewerID: viewerID, roots: roots}, ttl, ref.String())
		return roots, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]*domain.CommentNode), nil
}

// Snapshot returns a deep copy of a thread's comments, opening it if needed.
func (s *CommentService) Snapshot(ctx context.Context, ref domain.ThreadRef) ([]*domain.CommentNode, error) {
	f, err := s.OpenThread(ctx, ref)
	if err != nil {
		return nil, err
	}
	return f.Snapshot(), nil
}

// CommentCount returns the total number of comments of a thread.
func (s *CommentService) CommentCount(ctx context.Context, ref domain.ThreadRef) (int, error) {
	if err := validateRef(ref); err != nil {
		return 0, err
	}
	if f, _, ok := s.lookupThread(ref); ok {
		return f.Len(), nil
	}
	if n, ok := memcache.GetAs[int](ctx, s.cache, cachekeys.CommentCount(string(ref.Kind), ref.ID)); ok {
		return n, nil
	}
	f, err := s.OpenThread(ctx, ref)
	if err != nil {
		return 0, err
	}
	return f.Len(), nil
}

// CloseThread discards the forest of a closed view. The cached snapshot is kept.
func (s *CommentService) CloseThread(ctx context.Context, ref domain.ThreadRef) bool {
	return s.deregisterThread(threadContext(ctx, ref), ref)
}

// Reload drops both the open forest and the cached snapshot and refetches.
func (s *CommentService) Reload(ctx context.Context, ref domain.ThreadRef) (*domain.Forest, error) {
	if err := validateRef(ref); err != nil {
		return nil, err
	}
	s.Discard(ctx, ref)
	return s.OpenThread(ctx, ref)
}

// Discard forgets everything held locally about a thread.
func (s *CommentService) Discard(ctx context.Context, ref domain.ThreadRef) {
	ctx = threadContext(ctx, ref)
	s.deregisterThread(ctx, ref)
	s.clearThreadKeys(ctx, ref)
}

func (s *CommentService) clearThreadKeys(ctx context.Context, ref domain.ThreadRef) {
	for _, key := range cachekeys.ThreadKeys(string(ref.Kind), ref.ID) {
		s.cache.Clear(ctx, key)
	}
}

func (s *CommentService) pendingNode(viewer domain.Viewer, body string) *domain.CommentNode {
	return &domain.CommentNode{
		ID:        s.newID(),
		AuthorID:  viewer.UserID,
		Body:      body,
		CreatedAt: s.now().UTC(),
	}
}

// AddComment posts a new top-level comment on behalf of the viewer.
func (s *CommentService) AddComment(ctx context.Context, ref domain.ThreadRef, body string) (*domain.CommentNode, error) {
	viewer, ok := domain.ViewerFromContext(ctx)
	if !ok {
		return nil, domain.ErrUnauthorized
	}
	f, err := s.OpenThread(ctx, ref)
	if err != nil {
		return nil, err
	}
	ctx = threadContext(ctx, ref)

	pending := s.pendingNode(viewer, body)
	if err := f.AddRoot(pending); err != nil {
		metrics.ObserveForestMutation("add", outcome(err))
		return nil, err
	}

	rec, err := s.api.CreateComment(ctx, ref, "", body)
	if err != nil {
		s.rollbackInsert(ctx, f, pending.ID)
		s.logger.Warn(ctx, "Create comment failed; pending comment rolled back", "error", err.Error())
		return nil, err
	}
	s.confirmInsert(ctx, f, pending.ID, rec)
	s.clearThreadKeys(ctx, ref)
	metrics.ObserveForestMutation("add", "applied")
	return rec, nil
}

// Reply posts a reply to parentID. The reply is attached locally according
// to the forest's depth policy and the server is told the effective parent.
// A parentID that is not in the forest yields domain.ErrNodeNotFound; the
// caller may Reload the thread.
func (s *CommentService) Reply(ctx context.Context, ref domain.ThreadRef, parentID, body string) (*domain.CommentNode, domain.Placement, error) {
	viewer, ok := domain.ViewerFromContext(ctx)
	if !ok {
		return nil, domain.Placement{}, domain.ErrUnauthorized
	}
	f, err := s.OpenThread(ctx, ref)
	if err != nil {
		return nil, domain.Placement{}, err
	}
	ctx = threadContext(ctx, ref)

	pending := s.pendingNode(viewer, body)
	placement, err := f.InsertReply(parentID, pending)
	if err != nil {
		metrics.ObserveForestMutation("reply", outcome(err))
		if errors.Is(err, domain.ErrNodeNotFound) {
			s.logger.Warn(ctx, "Reply targets a comment that is not in the local thread", "parent_id", parentID)
		}
		return nil, domain.Placement{}, err
	}
	if placement.Flattened {
		s.logger.Debug(ctx, "Reply redirected to keep nesting within limit", "requested_parent", parentID, "parent_id", placement.ParentID)
	}

	rec, err := s.api.CreateComment(ctx, ref, placement.ParentID, body)
	if err != nil {
		s.rollbackInsert(ctx, f, pending.ID)
		s.logger.Warn(ctx, "Create reply failed; pending reply rolled back", "parent_id", placement.ParentID, "error", err.Error())
		return nil, domain.Placement{}, err
	}
	s.confirmInsert(ctx, f, pending.ID, rec)
	s.clearThreadKeys(ctx, ref)
	metrics.ObserveForestMutation("reply", "applied")
	return rec, placement, nil
}

func (s *CommentService) rollbackInsert(ctx context.Context, f *domain.Forest, pendingID string) {
	metrics.ObserveForestMutation("insert", "rolled_back")
	if _, err := f.DeleteNode(pendingID); err != nil {
		// Already gone, e.g. its parent was deleted meanwhile.
		s.logger.Debug(ctx, "Pending comment already removed", "pending_id", pendingID)
	}
}

// confirmInsert swaps the pending id for the server id and applies the canonical record.
func (s *CommentService) confirmInsert(ctx context.Context, f *domain.Forest, pendingID string, rec *domain.CommentNode) {
	if rec == nil || rec.ID == "" {
		s.logger.Warn(ctx, "Server returned no comment id; keeping pending comment", "pending_id", pendingID)
		return
	}
	switch err := f.Rekey(pendingID, rec.ID); {
	case errors.Is(err, domain.ErrDuplicateNode):
		// A reload already brought in the server copy.
		s.rollbackInsert(ctx, f, pendingID)
		return
	case errors.Is(err, domain.ErrNodeNotFound):
		s.logger.Warn(ctx, "Pending comment vanished before confirmation", "pending_id", pendingID, "comment_id", rec.ID)
		return
	case err != nil:
		s.logger.Error(ctx, "Failed to confirm pending comment", "pending_id", pendingID, "error", err.Error())
		return
	}
	if err := f.ApplyRecord(*rec); err != nil {
		s.logger.Warn(ctx, "Failed to apply canonical comment", "comment_id", rec.ID, "error", err.Error())
	}
}

// EditComment replaces a comment's body.
func (s *CommentService) EditComment(ctx context.Context, ref domain.ThreadRef, commentID, body string) (*domain.CommentNode, error) {
	f, err := s.OpenThread(ctx, ref)
	if err != nil {
		return nil, err
	}
	ctx = threadContext(ctx, ref)

	prev, _, found := f.Find(commentID)
	if !found {
		metrics.ObserveForestMutation("edit", "not_found")
		return nil, fmt.Errorf("%w: %s", domain.ErrNodeNotFound, commentID)
	}
	if err := f.UpdateBody(commentID, body); err != nil {
		metrics.ObserveForestMutation("edit", outcome(err))
		return nil, err
	}

	rec, err := s.api.UpdateComment(ctx, ref, commentID, body)
	if err != nil {
		s.restore(ctx, f, prev)
		s.logger.Warn(ctx, "Update comment failed; local edit rolled back", "comment_id", commentID, "error", err.Error())
		return nil, err
	}
	if rec != nil {
		if err := f.ApplyRecord(*rec); err != nil {
			s.logger.Warn(ctx, "Failed to apply canonical comment", "comment_id", commentID, "error", err.Error())
		}
	}
	s.clearThreadKeys(ctx, ref)
	metrics.ObserveForestMutation("edit", "applied")
	return rec, nil
}

// DeleteComment removes a comment and its replies and returns how many
// comments disappeared. If the server refuses, the thread is discarded so the
// next open refetches the authoritative copy.
func (s *CommentService) DeleteComment(ctx context.Context, ref domain.ThreadRef, commentID string) (int, error) {
	f, err := s.OpenThread(ctx, ref)
	if err != nil {
		return 0, err
	}
	ctx = threadContext(ctx, ref)

	removed, err := f.DeleteNode(commentID)
	if err != nil {
		metrics.ObserveForestMutation("delete", outcome(err))
		return 0, err
	}

	if err := s.api.DeleteComment(ctx, ref, commentID); err != nil {
		s.Discard(ctx, ref)
		metrics.ObserveForestMutation("delete", "rolled_back")
		s.logger.Warn(ctx, "Delete comment failed; thread discarded", "comment_id", commentID, "error", err.Error())
		return 0, err
	}
	s.clearThreadKeys(ctx, ref)
	metrics.ObserveForestMutation("delete", "applied")
	s.logger.Debug(ctx, "Comment deleted", "comment_id", commentID, "removed", removed)
	return removed, nil
}

// SetLike likes or unlikes a comment for the viewer.
func (s *CommentService) SetLike(ctx context.Context, ref domain.ThreadRef, commentID string, liked bool) (*domain.CommentNode, error) {
	f, err := s.OpenThread(ctx, ref)
	if err != nil {
		return nil, err
	}
	ctx = threadContext(ctx, ref)

	prev, _, found := f.Find(commentID)
	if !found {
		metrics.ObserveForestMutation("like", "not_found")
		return nil, fmt.Errorf("%w: %s", domain.ErrNodeNotFound, commentID)
	}
	if err := f.SetLiked(commentID, liked); err != nil {
		metrics.ObserveForestMutation("like", outcome(err))
		return nil, err
	}

	var rec *domain.CommentNode
	if liked {
		rec, err = s.api.LikeComment(ctx, ref, commentID)
	} else {
		rec, err = s.api.UnlikeComment(ctx, ref, commentID)
	}
	if err != nil {
		s.restore(ctx, f, prev)
		s.logger.Warn(ctx, "Like toggle failed; rolled back", "comment_id", commentID, "liked", liked, "error", err.Error())
		return nil, err
	}
	if rec != nil {
		if err := f.ApplyRecord(*rec); err != nil {
			s.logger.Warn(ctx, "Failed to apply canonical comment", "comment_id", commentID, "error", err.Error())
		}
	}
	s.clearThreadKeys(ctx, ref)
	metrics.ObserveForestMutation("like", "applied")
	return rec, nil
}

// restore puts back a comment's previous scalar fields after a failed remote call.
func (s *CommentService) restore(ctx context.Context, f *domain.Forest, prev domain.CommentNode) {
	metrics.ObserveForestMutation("restore", "rolled_back")
	if err := f.ApplyRecord(prev); err != nil {
		s.logger.Debug(ctx, "Comment to restore is gone", "comment_id", prev.ID)
	}
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "applied"
	case errors.Is(err, domain.ErrNodeNotFound):
		return "not_found"
	case errors.Is(err, domain.ErrDepthExceeded):
		return "too_deep"
	case errors.Is(err, domain.ErrDuplicateNode):
		return "duplicate"
	}
	return "invalid"
}
