package application

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"gitlab.com/shutterbug/web/shutterbug-core/benchmarks/mocks"
	"gitlab.com/shutterbug/web/shutterbug-core/internal/adapters/config"
	"gitlab.com/shutterbug/web/shutterbug-core/internal/adapters/logger"
	"gitlab.com/shutterbug/web/shutterbug-core/internal/adapters/memcache"
	"gitlab.com/shutterbug/web/shutterbug-core/internal/domain"
	"gitlab.com/shutterbug/web/shutterbug-core/pkg/cachekeys"
)

var (
	t0        = time.Date(2024, 6, 2, 18, 30, 0, 0, time.UTC)
	errRemote = errors.New("upstream unavailable")
	leica     = domain.ThreadRef{Kind: domain.ThreadCamera, ID: "leica-m3"}
)

func comment(id string, replies ...*domain.CommentNode) *domain.CommentNode {
	return &domain.CommentNode{
		ID:        id,
		AuthorID:  "author-" + id,
		Body:      "body " + id,
		CreatedAt: t0,
		Replies:   replies,
	}
}

// chain builds a > b > c > d, one comment per depth.
func chain() []*domain.CommentNode {
	return []*domain.CommentNode{comment("a", comment("b", comment("c", comment("d"))))}
}

type commentFixture struct {
	svc   *CommentService
	api   *mocks.MockCommentAPI
	cache *memcache.Store
	cfg   *mocks.MockConfigProvider
	ctx   context.Context
}

func newCommentFixture(t *testing.T) *commentFixture {
	t.Helper()
	log := logger.Wrap(zaptest.NewLogger(t))
	api := new(mocks.MockCommentAPI)
	cfg := mocks.NewMockConfigProvider()
	cache := memcache.New(log)

	svc := NewCommentService(log, cfg, cache, api)
	seq := 0
	svc.newID = func() string {
		seq++
		return fmt.Sprintf("%s%d", PendingIDPrefix, seq)
	}
	svc.now = func() time.Time { return t0 }

	t.Cleanup(func() { api.AssertExpectations(t) })
	return &commentFixture{
		svc:   svc,
		api:   api,
		cache: cache,
		cfg:   cfg,
		ctx:   domain.WithViewer(context.Background(), domain.Viewer{UserID: "viewer-1"}),
	}
}

func (fx *commentFixture) expectFetch(roots []*domain.CommentNode) *mock.Call {
	return fx.api.On("FetchComments", mock.Anything, leica).Return(roots, nil)
}

func ids(f *domain.Forest) []string {
	var out []string
	for n := range f.Traverse() {
		out = append(out, n.ID)
	}
	return out
}

func TestOpenThreadFetchesOnceAndCaches(t *testing.T) {
	fx := newCommentFixture(t)
	fx.expectFetch(chain()).Once()

	f, err := fx.svc.OpenThread(fx.ctx, leica)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c", "d"}, ids(f))

	again, err := fx.svc.OpenThread(fx.ctx, leica)
	require.NoError(t, err)
	assert.Same(t, f, again, "an open thread is reused")

	assert.True(t, fx.cache.Has(fx.ctx, cachekeys.Comments("camera", "leica-m3")))
	n, err := fx.svc.CommentCount(fx.ctx, leica)
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	// Closing keeps the snapshot, so reopening does not refetch.
	assert.True(t, fx.svc.CloseThread(fx.ctx, leica))
	assert.False(t, fx.svc.CloseThread(fx.ctx, leica))
	reopened, err := fx.svc.OpenThread(fx.ctx, leica)
	require.NoError(t, err)
	assert.NotSame(t, f, reopened)
	assert.Equal(t, ids(f), ids(reopened))
}

func TestCommentCountFromCacheWithoutOpening(t *testing.T) {
	fx := newCommentFixture(t)
	fx.cache.Set(fx.ctx, cachekeys.CommentCount("camera", "leica-m3"), 12, time.Minute)

	n, err := fx.svc.CommentCount(fx.ctx, leica)
	require.NoError(t, err)
	assert.Equal(t, 12, n)
	assert.Empty(t, fx.svc.OpenThreads())
}

func TestOpenThreadRejectsInvalidRef(t *testing.T) {
	fx := newCommentFixture(t)

	_, err := fx.svc.OpenThread(fx.ctx, domain.ThreadRef{Kind: "photo", ID: "x"})
	assert.ErrorIs(t, err, domain.ErrInvalidThread)
	_, err = fx.svc.OpenThread(fx.ctx, domain.ThreadRef{Kind: domain.ThreadDiscussion})
	assert.ErrorIs(t, err, domain.ErrInvalidThread)
}

func TestOpenThreadFetchError(t *testing.T) {
	fx := newCommentFixture(t)
	fx.api.On("FetchComments", mock.Anything, leica).Return(nil, errRemote).Once()

	_, err := fx.svc.OpenThread(fx.ctx, leica)
	assert.ErrorIs(t, err, errRemote)
	assert.Empty(t, fx.svc.OpenThreads())
	assert.False(t, fx.cache.Has(fx.ctx, cachekeys.Comments("camera", "leica-m3")))
}

func TestOpenThreadWithDuplicateIDsIsNotCached(t *testing.T) {
	fx := newCommentFixture(t)
	fx.expectFetch([]*domain.CommentNode{comment("a"), comment("a")}).Once()

	_, err := fx.svc.OpenThread(fx.ctx, leica)
	assert.ErrorIs(t, err, domain.ErrDuplicateNode)
	assert.False(t, fx.cache.Has(fx.ctx, cachekeys.Comments("camera", "leica-m3")))
}

func TestOpenThreadRefetchesForAnotherViewer(t *testing.T) {
	fx := newCommentFixture(t)
	likedByFirst := chain()
	likedByFirst[0].LikedByCurrentUser = true
	likedByFirst[0].LikeCount = 1
	likedBySecond := chain()
	likedBySecond[0].LikeCount = 1
	fx.expectFetch(likedByFirst).Once()
	fx.expectFetch(likedBySecond).Once()

	first, err := fx.svc.OpenThread(fx.ctx, leica)
	require.NoError(t, err)
	a, _, _ := first.Find("a")
	assert.True(t, a.LikedByCurrentUser)

	other := domain.WithViewer(context.Background(), domain.Viewer{UserID: "viewer-2"})
	second, err := fx.svc.OpenThread(other, leica)
	require.NoError(t, err)
	assert.NotSame(t, first, second)
	a, _, _ = second.Find("a")
	assert.False(t, a.LikedByCurrentUser)
	assert.Equal(t, 1, a.LikeCount)

	again, err := fx.svc.OpenThread(other, leica)
	require.NoError(t, err)
	assert.Same(t, second, again)
	assert.Equal(t, []domain.ThreadRef{leica}, fx.svc.OpenThreads())

	// The cached snapshot now belongs to viewer-2 and is reused after close.
	require.True(t, fx.svc.CloseThread(other, leica))
	reopened, err := fx.svc.OpenThread(other, leica)
	require.NoError(t, err)
	a, _, _ = reopened.Find("a")
	assert.False(t, a.LikedByCurrentUser)

	n, err := fx.svc.CommentCount(fx.ctx, leica)
	require.NoError(t, err)
	assert.Equal(t, 4, n, "counts do not depend on the viewer")
}

func TestConcurrentOpensShareOneFetch(t *testing.T) {
	fx := newCommentFixture(t)
	release := make(chan time.Time)
	fx.expectFetch(chain()).Once().WaitUntil(release)

	var wg sync.WaitGroup
	forests := make([]*domain.Forest, 8)
	for i := range forests {
		wg.Add(1)
		go func() {
			defer wg.Done()
			f, err := fx.svc.OpenThread(fx.ctx, leica)
			assert.NoError(t, err)
			forests[i] = f
		}()
	}
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	for _, f := range forests {
		assert.Same(t, forests[0], f)
	}
}

func TestReloadRefetches(t *testing.T) {
	fx := newCommentFixture(t)
	fx.expectFetch(chain()).Once()
	fx.expectFetch([]*domain.CommentNode{comment("z")}).Once()

	_, err := fx.svc.OpenThread(fx.ctx, leica)
	require.NoError(t, err)

	f, err := fx.svc.Reload(fx.ctx, leica)
	require.NoError(t, err)
	assert.Equal(t, []string{"z"}, ids(f))
}

func TestAddCommentConfirmsPendingNode(t *testing.T) {
	fx := newCommentFixture(t)
	fx.expectFetch(chain()).Once()
	fx.api.On("CreateComment", mock.Anything, leica, "", "Lovely rangefinder").
		Return(&domain.CommentNode{ID: "srv-1", AuthorID: "viewer-1", Body: "Lovely rangefinder", CreatedAt: t0.Add(time.Second)}, nil).Once()

	rec, err := fx.svc.AddComment(fx.ctx, leica, "Lovely rangefinder")
	require.NoError(t, err)
	assert.Equal(t, "srv-1", rec.ID)

	f, _ := fx.svc.OpenThread(fx.ctx, leica)
	assert.Equal(t, []string{"a", "b", "c", "d", "srv-1"}, ids(f))
	got, depth, ok := f.Find("srv-1")
	require.True(t, ok)
	assert.Zero(t, depth)
	assert.Equal(t, t0.Add(time.Second), got.CreatedAt)
	assert.False(t, fx.cache.Has(fx.ctx, cachekeys.Comments("camera", "leica-m3")), "mutation clears the thread snapshot")
}

func TestAddCommentRequiresViewer(t *testing.T) {
	fx := newCommentFixture(t)

	_, err := fx.svc.AddComment(context.Background(), leica, "hi")
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
}

func TestReplyPlacesUnderParent(t *testing.T) {
	fx := newCommentFixture(t)
	fx.expectFetch(chain()).Once()
	fx.api.On("CreateComment", mock.Anything, leica, "b", "agreed").
		Return(&domain.CommentNode{ID: "srv-2", AuthorID: "viewer-1", Body: "agreed"}, nil).Once()

	rec, placement, err := fx.svc.Reply(fx.ctx, leica, "b", "agreed")
	require.NoError(t, err)
	assert.Equal(t, "srv-2", rec.ID)
	assert.Equal(t, domain.Placement{ParentID: "b", Depth: 2}, placement)

	f, _ := fx.svc.OpenThread(fx.ctx, leica)
	assert.Equal(t, []string{"a", "b", "c", "d", "srv-2"}, ids(f))
	got, depth, ok := f.Find("srv-2")
	require.True(t, ok)
	assert.Equal(t, 2, depth)
	assert.Equal(t, t0, got.CreatedAt, "pending timestamp kept when the server omits one")
}

func TestReplyToTerminalCommentIsFlattened(t *testing.T) {
	fx := newCommentFixture(t)
	fx.expectFetch(chain()).Once()
	// d sits at depth 3, so the reply goes to its parent c.
	fx.api.On("CreateComment", mock.Anything, leica, "c", "me too").
		Return(&domain.CommentNode{ID: "srv-3", Body: "me too"}, nil).Once()

	_, placement, err := fx.svc.Reply(fx.ctx, leica, "d", "me too")
	require.NoError(t, err)
	assert.Equal(t, domain.Placement{ParentID: "c", Depth: 3, Flattened: true}, placement)

	f, _ := fx.svc.OpenThread(fx.ctx, leica)
	_, depth, ok := f.Find("srv-3")
	require.True(t, ok)
	assert.Equal(t, 3, depth)
}

func TestReplyToTerminalCommentRejected(t *testing.T) {
	fx := newCommentFixture(t)
	fx.cfg.Update(func(c *config.Config) { c.Comments.DepthPolicy = "reject" })
	fx.expectFetch(chain()).Once()

	_, _, err := fx.svc.Reply(fx.ctx, leica, "d", "me too")
	assert.ErrorIs(t, err, domain.ErrDepthExceeded)
	fx.api.AssertNotCalled(t, "CreateComment", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestReplyUnknownParent(t *testing.T) {
	fx := newCommentFixture(t)
	fx.expectFetch(chain()).Once()

	_, _, err := fx.svc.Reply(fx.ctx, leica, "ghost", "hello?")
	assert.ErrorIs(t, err, domain.ErrNodeNotFound)

	f, _ := fx.svc.OpenThread(fx.ctx, leica)
	assert.Equal(t, []string{"a", "b", "c", "d"}, ids(f))
}

func TestReplyRollsBackOnFailure(t *testing.T) {
	fx := newCommentFixture(t)
	fx.expectFetch(chain()).Once()
	fx.api.On("CreateComment", mock.Anything, leica, "a", "hello").Return(nil, errRemote).Once()

	_, _, err := fx.svc.Reply(fx.ctx, leica, "a", "hello")
	assert.ErrorIs(t, err, errRemote)

	f, _ := fx.svc.OpenThread(fx.ctx, leica)
	assert.Equal(t, []string{"a", "b", "c", "d"}, ids(f))
}

func TestEditComment(t *testing.T) {
	fx := newCommentFixture(t)
	fx.expectFetch(chain()).Once()
	fx.api.On("UpdateComment", mock.Anything, leica, "b", "edited text").
		Return(&domain.CommentNode{ID: "b", AuthorID: "author-b", Body: "edited text", Edited: true, LikeCount: 4}, nil).Once()

	_, err := fx.svc.EditComment(fx.ctx, leica, "b", "edited text")
	require.NoError(t, err)

	f, _ := fx.svc.OpenThread(fx.ctx, leica)
	b, _, _ := f.Find("b")
	assert.Equal(t, "edited text", b.Body)
	assert.True(t, b.Edited)
	assert.Equal(t, 4, b.LikeCount)
	c, _, _ := f.Find("c")
	assert.Equal(t, "body c", c.Body)
	assert.False(t, c.Edited)
}

func TestEditCommentRollsBack(t *testing.T) {
	fx := newCommentFixture(t)
	fx.expectFetch(chain()).Once()
	fx.api.On("UpdateComment", mock.Anything, leica, "b", "oops").Return(nil, errRemote).Once()

	_, err := fx.svc.EditComment(fx.ctx, leica, "b", "oops")
	assert.ErrorIs(t, err, errRemote)

	f, _ := fx.svc.OpenThread(fx.ctx, leica)
	b, _, _ := f.Find("b")
	assert.Equal(t, "body b", b.Body)
	assert.False(t, b.Edited)
}

func TestEditUnknownComment(t *testing.T) {
	fx := newCommentFixture(t)
	fx.expectFetch(chain()).Once()

	_, err := fx.svc.EditComment(fx.ctx, leica, "ghost", "x")
	assert.ErrorIs(t, err, domain.ErrNodeNotFound)
}

func TestDeleteComment(t *testing.T) {
	fx := newCommentFixture(t)
	fx.expectFetch(chain()).Once()
	fx.api.On("DeleteComment", mock.Anything, leica, "b").Return(nil).Once()

	removed, err := fx.svc.DeleteComment(fx.ctx, leica, "b")
	require.NoError(t, err)
	assert.Equal(t, 3, removed)

	f, _ := fx.svc.OpenThread(fx.ctx, leica)
	assert.Equal(t, []string{"a"}, ids(f))

	_, err = fx.svc.DeleteComment(fx.ctx, leica, "b")
	assert.ErrorIs(t, err, domain.ErrNodeNotFound, "a second delete reports the missing node")
}

func TestDeleteCommentFailureDiscardsThread(t *testing.T) {
	fx := newCommentFixture(t)
	fx.expectFetch(chain()).Twice()
	fx.api.On("DeleteComment", mock.Anything, leica, "b").Return(errRemote).Once()

	_, err := fx.svc.DeleteComment(fx.ctx, leica, "b")
	assert.ErrorIs(t, err, errRemote)
	assert.Empty(t, fx.svc.OpenThreads())

	f, err := fx.svc.OpenThread(fx.ctx, leica)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c", "d"}, ids(f), "the next open refetches")
}

func TestSetLike(t *testing.T) {
	fx := newCommentFixture(t)
	fx.expectFetch(chain()).Once()
	fx.api.On("LikeComment", mock.Anything, leica, "c").
		Return(&domain.CommentNode{ID: "c", Body: "body c", LikeCount: 7, LikedByCurrentUser: true}, nil).Once()
	fx.api.On("UnlikeComment", mock.Anything, leica, "c").Return(nil, errRemote).Once()

	_, err := fx.svc.SetLike(fx.ctx, leica, "c", true)
	require.NoError(t, err)
	f, _ := fx.svc.OpenThread(fx.ctx, leica)
	c, _, _ := f.Find("c")
	assert.Equal(t, 7, c.LikeCount, "canonical count wins")
	assert.True(t, c.LikedByCurrentUser)

	_, err = fx.svc.SetLike(fx.ctx, leica, "c", false)
	assert.ErrorIs(t, err, errRemote)
	c, _, _ = f.Find("c")
	assert.Equal(t, 7, c.LikeCount, "failed unlike is rolled back")
	assert.True(t, c.LikedByCurrentUser)
}

func TestReapIdleThreads(t *testing.T) {
	fx := newCommentFixture(t)
	fx.expectFetch(chain()).Once()
	other := domain.ThreadRef{Kind: domain.ThreadDiscussion, ID: "d-1"}
	fx.api.On("FetchComments", mock.Anything, other).Return([]*domain.CommentNode{comment("x")}, nil).Once()

	now := t0
	fx.svc.now = func() time.Time { return now }
	_, err := fx.svc.OpenThread(fx.ctx, leica)
	require.NoError(t, err)

	now = now.Add(20 * time.Minute)
	_, err = fx.svc.OpenThread(fx.ctx, other)
	require.NoError(t, err)

	now = now.Add(15 * time.Minute)
	assert.Equal(t, 1, fx.svc.ReapIdleThreads(fx.ctx, 30*time.Minute))
	assert.Equal(t, []domain.ThreadRef{other}, fx.svc.OpenThreads())
}

func TestIdleThreadReaperStops(t *testing.T) {
	fx := newCommentFixture(t)
	fx.cfg.Update(func(c *config.Config) {
		c.Comments.ReaperIntervalSeconds = 1
		c.Comments.IdleThreadTimeoutSeconds = 60
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	fx.svc.StartIdleThreadReaper(ctx)
	fx.svc.StopIdleThreadReaper()
	fx.svc.StopIdleThreadReaper()
}

func TestEndToEndThread(t *testing.T) {
	fx := newCommentFixture(t)
	fx.expectFetch([]*domain.CommentNode{comment("A")}).Once()
	fx.api.On("CreateComment", mock.Anything, leica, "A", "B").Return(&domain.CommentNode{ID: "B", Body: "B"}, nil).Once()
	fx.api.On("CreateComment", mock.Anything, leica, "B", "C").Return(&domain.CommentNode{ID: "C", Body: "C"}, nil).Once()
	fx.api.On("UpdateComment", mock.Anything, leica, "B", "edited text").
		Return(&domain.CommentNode{ID: "B", Body: "edited text", Edited: true}, nil).Once()
	fx.api.On("DeleteComment", mock.Anything, leica, "B").Return(nil).Once()

	_, p, err := fx.svc.Reply(fx.ctx, leica, "A", "B")
	require.NoError(t, err)
	assert.Equal(t, 1, p.Depth)
	_, p, err = fx.svc.Reply(fx.ctx, leica, "B", "C")
	require.NoError(t, err)
	assert.Equal(t, 2, p.Depth)

	_, err = fx.svc.EditComment(fx.ctx, leica, "B", "edited text")
	require.NoError(t, err)

	f, _ := fx.svc.OpenThread(fx.ctx, leica)
	b, _, _ := f.Find("B")
	assert.Equal(t, "edited text", b.Body)
	assert.True(t, b.Edited)
	c, _, _ := f.Find("C")
	assert.Equal(t, "C", c.Body)
	assert.False(t, c.Edited)

	_, err = fx.svc.DeleteComment(fx.ctx, leica, "B")
	require.NoError(t, err)
	snap, err := fx.svc.Snapshot(fx.ctx, leica)
	require.NoError(t, err)
	require.Len(t, snap, 1)
	assert.Equal(t, "A", snap[0].ID)
	assert.Empty(t, snap[0].Replies)
}
