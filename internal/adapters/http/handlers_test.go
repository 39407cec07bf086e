package http

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"gitlab.com/shutterbug/web/shutterbug-core/benchmarks/mocks"
	"gitlab.com/shutterbug/web/shutterbug-core/internal/adapters/logger"
	"gitlab.com/shutterbug/web/shutterbug-core/internal/adapters/memcache"
	"gitlab.com/shutterbug/web/shutterbug-core/internal/adapters/middleware"
	"gitlab.com/shutterbug/web/shutterbug-core/internal/application"
	"gitlab.com/shutterbug/web/shutterbug-core/internal/domain"
	"gitlab.com/shutterbug/web/shutterbug-core/pkg/cachekeys"
)

var (
	created = time.Date(2024, 2, 29, 10, 0, 0, 0, time.UTC)
	rollei  = domain.ThreadRef{Kind: domain.ThreadDiscussion, ID: "rollei-35"}
)

type server struct {
	handler  http.Handler
	comments *mocks.MockCommentAPI
	profiles *mocks.MockProfileAPI
	cache    *memcache.Store
}

func newServer(t *testing.T) *server {
	t.Helper()
	log := logger.Wrap(zaptest.NewLogger(t))
	cfg := mocks.NewMockConfigProvider()
	cache := memcache.New(log)
	commentAPI := new(mocks.MockCommentAPI)
	profileAPI := new(mocks.MockProfileAPI)

	commentSvc := application.NewCommentService(log, cfg, cache, commentAPI)
	profileSvc := application.NewProfileService(log, cfg, cache, profileAPI)
	invalidation := application.NewInvalidationService(log, cache, profileSvc, commentSvc)

	mux := http.NewServeMux()
	NewHandlers(log, commentSvc, profileSvc, invalidation).Register(mux, middleware.APIKeyAuthMiddleware(cfg, log))

	t.Cleanup(func() {
		commentAPI.AssertExpectations(t)
		profileAPI.AssertExpectations(t)
	})
	return &server{
		handler:  middleware.ViewerMiddleware(log)(mux),
		comments: commentAPI,
		profiles: profileAPI,
		cache:    cache,
	}
}

func (s *server) do(method, target, body string, headers ...string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func (s *server) as(method, target, body string) *httptest.ResponseRecorder {
	return s.do(method, target, body, middleware.UserIDHeader, "u1", "Authorization", "Bearer t1")
}

func thread() []*domain.CommentNode {
	return []*domain.CommentNode{{
		ID: "a", AuthorID: "u2", Body: "Which film?", CreatedAt: created,
		Replies: []*domain.CommentNode{{
			ID: "b", AuthorID: "u3", Body: "HP5", CreatedAt: created,
			Replies: []*domain.CommentNode{{
				ID: "c", AuthorID: "u2", Body: "Pushed?", CreatedAt: created,
				Replies: []*domain.CommentNode{{ID: "d", AuthorID: "u3", Body: "One stop", CreatedAt: created}},
			}},
		}},
	}}
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) domain.ErrorResponse {
	t.Helper()
	var resp domain.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func TestGetCommentsWithETag(t *testing.T) {
	s := newServer(t)
	s.comments.On("FetchComments", mock.Anything, rollei).Return(thread(), nil).Once()

	rec := s.as(http.MethodGet, "/threads/discussion/rollei-35/comments", "")
	require.Equal(t, http.StatusOK, rec.Code)
	etag := rec.Header().Get("ETag")
	require.Len(t, etag, 34)

	var resp ThreadResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, rollei, resp.Thread)
	assert.Equal(t, 4, resp.Count)
	assert.Equal(t, 3, resp.MaxDepth)
	assert.Equal(t, "flatten", resp.DepthPolicy)
	require.Len(t, resp.Comments, 1)

	rec = s.do(http.MethodGet, "/threads/discussion/rollei-35/comments", "", "If-None-Match", etag,
		middleware.UserIDHeader, "u1", "Authorization", "Bearer t1")
	assert.Equal(t, http.StatusNotModified, rec.Code)
	assert.Empty(t, rec.Body.Bytes())
}

func TestGetCommentsFlatView(t *testing.T) {
	s := newServer(t)
	s.comments.On("FetchComments", mock.Anything, rollei).Return(thread(), nil).Once()

	rec := s.as(http.MethodGet, "/threads/discussion/rollei-35/comments?view=flat", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp ThreadResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Flat, 4)
	for i, want := range []struct {
		id       string
		depth    int
		canReply bool
	}{{"a", 0, true}, {"b", 1, true}, {"c", 2, true}, {"d", 3, false}} {
		assert.Equal(t, want.id, resp.Flat[i].ID)
		assert.Equal(t, want.depth, resp.Flat[i].Depth)
		assert.Equal(t, want.canReply, resp.Flat[i].CanReply)
	}
}

func TestInvalidThreadKind(t *testing.T) {
	s := newServer(t)

	rec := s.as(http.MethodGet, "/threads/album/1/comments", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, domain.ErrBadRequest, decodeError(t, rec).Code)
}

func TestPostReplyIsFlattened(t *testing.T) {
	s := newServer(t)
	s.comments.On("FetchComments", mock.Anything, rollei).Return(thread(), nil).Once()
	s.comments.On("CreateComment", mock.Anything, rollei, "c", "Same here").
		Return(&domain.CommentNode{ID: "srv-1", AuthorID: "u1", Body: "Same here", CreatedAt: created}, nil).Once()

	rec := s.as(http.MethodPost, "/threads/discussion/rollei-35/comments", `{"body":"  Same here ","parent_id":"d"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var resp PostCommentResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "srv-1", resp.Comment.ID)
	require.NotNil(t, resp.Placement)
	assert.Equal(t, domain.Placement{ParentID: "c", Depth: 3, Flattened: true}, *resp.Placement)
}

func TestPostCommentValidation(t *testing.T) {
	s := newServer(t)

	rec := s.as(http.MethodPost, "/threads/discussion/rollei-35/comments", `{"body":"   "}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.as(http.MethodPost, "/threads/discussion/rollei-35/comments", `{"body":"x","extra":1}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.as(http.MethodPost, "/threads/discussion/rollei-35/comments", `not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPostCommentAnonymous(t *testing.T) {
	s := newServer(t)

	rec := s.do(http.MethodPost, "/threads/discussion/rollei-35/comments", `{"body":"hi"}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, domain.ErrNotSignedIn, decodeError(t, rec).Code)
}

func TestEditAndDeleteComments(t *testing.T) {
	s := newServer(t)
	s.comments.On("FetchComments", mock.Anything, rollei).Return(thread(), nil).Once()
	s.comments.On("UpdateComment", mock.Anything, rollei, "b", "HP5 at 1600").
		Return(&domain.CommentNode{ID: "b", Body: "HP5 at 1600", Edited: true}, nil).Once()
	s.comments.On("DeleteComment", mock.Anything, rollei, "b").Return(nil).Once()

	rec := s.as(http.MethodPatch, "/threads/discussion/rollei-35/comments/b", `{"body":"HP5 at 1600"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = s.as(http.MethodDelete, "/threads/discussion/rollei-35/comments/b", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var del DeleteCommentResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &del))
	assert.Equal(t, 3, del.Removed)

	rec = s.as(http.MethodDelete, "/threads/discussion/rollei-35/comments/b", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, domain.ErrCommentNotFound, decodeError(t, rec).Code)
}

func TestLikeUpstreamFailure(t *testing.T) {
	s := newServer(t)
	s.comments.On("FetchComments", mock.Anything, rollei).Return(thread(), nil).Once()
	s.comments.On("LikeComment", mock.Anything, rollei, "a").
		Return(nil, &domain.UpstreamError{Op: "like_comment", StatusCode: http.StatusServiceUnavailable}).Once()

	rec := s.as(http.MethodPut, "/threads/discussion/rollei-35/comments/a/like", "")
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Equal(t, domain.ErrUpstreamFailure, decodeError(t, rec).Code)
}

func TestCloseAndReloadThread(t *testing.T) {
	s := newServer(t)
	s.comments.On("FetchComments", mock.Anything, rollei).Return(thread(), nil).Twice()

	rec := s.as(http.MethodPost, "/threads/discussion/rollei-35/reload", "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = s.as(http.MethodDelete, "/threads/discussion/rollei-35", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = s.as(http.MethodPost, "/threads/discussion/rollei-35/reload", "")
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestProfileRoutes(t *testing.T) {
	s := newServer(t)
	s.profiles.On("FetchProfile", mock.Anything, "u2").Return(&domain.Profile{ID: "u2", Username: "nikonf"}, nil).Once()
	s.profiles.On("FetchFeed", mock.Anything, "u1").Return(nil, nil).Once()

	rec := s.as(http.MethodGet, "/users/u2", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"username":"nikonf"`)

	rec = s.as(http.MethodGet, "/users/u1/feed", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())
}

func TestPatchProfile(t *testing.T) {
	s := newServer(t)
	bio := "Medium format only"
	s.profiles.On("UpdateProfile", mock.Anything, "u1", domain.ProfilePatch{Bio: &bio}).
		Return(&domain.Profile{ID: "u1", Bio: bio}, nil).Once()

	rec := s.as(http.MethodPatch, "/users/u2", `{"bio":"x"}`)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = s.as(http.MethodPatch, "/users/u1", `{"bio":"Medium format only"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, s.cache.Has(httptest.NewRequest(http.MethodGet, "/", nil).Context(), cachekeys.User("u1")))
}

func TestFollowRoutes(t *testing.T) {
	s := newServer(t)
	s.profiles.On("Follow", mock.Anything, "u1", "u2").Return(nil).Once()
	s.profiles.On("Unfollow", mock.Anything, "u1", "u2").Return(nil).Once()

	assert.Equal(t, http.StatusNoContent, s.as(http.MethodPut, "/users/u2/follow", "").Code)
	assert.Equal(t, http.StatusNoContent, s.as(http.MethodDelete, "/users/u2/follow", "").Code)
	assert.Equal(t, http.StatusUnauthorized, s.do(http.MethodPut, "/users/u2/follow", "").Code)
}

func TestAdminInvalidate(t *testing.T) {
	s := newServer(t)
	ctx := httptest.NewRequest(http.MethodGet, "/", nil).Context()
	s.cache.Set(ctx, cachekeys.User("u9"), "profile", time.Minute, "u9")

	rec := s.do(http.MethodPost, "/admin/cache/invalidate", `{"kind":"user.updated","user_id":"u9"}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.True(t, s.cache.Has(ctx, cachekeys.User("u9")))

	rec = s.do(http.MethodPost, "/admin/cache/invalidate", `{"kind":"user.updated","user_id":"u9"}`,
		"X-API-Key", "benchmark-admin-key")
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	var resp InvalidateResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.EventID)
	assert.False(t, s.cache.Has(ctx, cachekeys.User("u9")))

	rec = s.do(http.MethodPost, "/admin/cache/invalidate", `{"kind":"user.updated"}`,
		"X-API-Key", "benchmark-admin-key")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
