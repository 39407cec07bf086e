package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"gitlab.com/shutterbug/web/shutterbug-core/internal/domain"
)

// MockCommentAPI is a testify mock of domain.CommentAPI.
type MockCommentAPI struct {
	mock.Mock
}

var _ domain.CommentAPI = (*MockCommentAPI)(nil)

func commentResult(args mock.Arguments) (*domain.CommentNode, error) {
	var rec *domain.CommentNode
	if v := args.Get(0); v != nil {
		rec = v.(*domain.CommentNode)
	}
	return rec, args.Error(1)
}

// FetchComments mocks the thread fetch.
func (m *MockCommentAPI) FetchComments(ctx context.Context, thread domain.ThreadRef) ([]*domain.CommentNode, error) {
	args := m.Called(ctx, thread)
	var roots []*domain.CommentNode
	if v := args.Get(0); v != nil {
		roots = v.([]*domain.CommentNode)
	}
	return roots, args.Error(1)
}

// CreateComment mocks comment creation.
func (m *MockCommentAPI) CreateComment(ctx context.Context, thread domain.ThreadRef, parentID, body string) (*domain.CommentNode, error) {
	return commentResult(m.Called(ctx, thread, parentID, body))
}

// UpdateComment mocks a body edit.
func (m *MockCommentAPI) UpdateComment(ctx context.Context, thread domain.ThreadRef, commentID, body string) (*domain.CommentNode, error) {
	return commentResult(m.Called(ctx, thread, commentID, body))
}

// DeleteComment mocks comment deletion.
func (m *MockCommentAPI) DeleteComment(ctx context.Context, thread domain.ThreadRef, commentID string) error {
	return m.Called(ctx, thread, commentID).Error(0)
}

// LikeComment mocks a like.
func (m *MockCommentAPI) LikeComment(ctx context.Context, thread domain.ThreadRef, commentID string) (*domain.CommentNode, error) {
	return commentResult(m.Called(ctx, thread, commentID))
}

// UnlikeComment mocks removing a like.
func (m *MockCommentAPI) UnlikeComment(ctx context.Context, thread domain.ThreadRef, commentID string) (*domain.CommentNode, error) {
	return commentResult(m.Called(ctx, thread, commentID))
}

// MockProfileAPI is a testify mock of domain.ProfileAPI.
type MockProfileAPI struct {
	mock.Mock
}

var _ domain.ProfileAPI = (*MockProfileAPI)(nil)

// FetchProfile mocks the profile fetch.
func (m *MockProfileAPI) FetchProfile(ctx context.Context, userID string) (*domain.Profile, error) {
	args := m.Called(ctx, userID)
	var p *domain.Profile
	if v := args.Get(0); v != nil {
		p = v.(*domain.Profile)
	}
	return p, args.Error(1)
}

// UpdateProfile mocks a profile edit.
func (m *MockProfileAPI) UpdateProfile(ctx context.Context, userID string, patch domain.ProfilePatch) (*domain.Profile, error) {
	args := m.Called(ctx, userID, patch)
	var p *domain.Profile
	if v := args.Get(0); v != nil {
		p = v.(*domain.Profile)
	}
	return p, args.Error(1)
}

// FetchCameras mocks the camera list fetch.
func (m *MockProfileAPI) FetchCameras(ctx context.Context, userID string) ([]domain.Camera, error) {
	args := m.Called(ctx, userID)
	var out []domain.Camera
	if v := args.Get(0); v != nil {
		out = v.([]domain.Camera)
	}
	return out, args.Error(1)
}

// FetchDiscussions mocks the discussion list fetch.
func (m *MockProfileAPI) FetchDiscussions(ctx context.Context, userID string) ([]domain.Discussion, error) {
	args := m.Called(ctx, userID)
	var out []domain.Discussion
	if v := args.Get(0); v != nil {
		out = v.([]domain.Discussion)
	}
	return out, args.Error(1)
}

// FetchFeed mocks the feed fetch.
func (m *MockProfileAPI) FetchFeed(ctx context.Context, userID string) ([]domain.FeedItem, error) {
	args := m.Called(ctx, userID)
	var out []domain.FeedItem
	if v := args.Get(0); v != nil {
		out = v.([]domain.FeedItem)
	}
	return out, args.Error(1)
}

// FetchFollowing mocks the following list fetch.
func (m *MockProfileAPI) FetchFollowing(ctx context.Context, userID string) ([]domain.Profile, error) {
	args := m.Called(ctx, userID)
	var out []domain.Profile
	if v := args.Get(0); v != nil {
		out = v.([]domain.Profile)
	}
	return out, args.Error(1)
}

// Follow mocks following a user.
func (m *MockProfileAPI) Follow(ctx context.Context, followerID, targetID string) error {
	return m.Called(ctx, followerID, targetID).Error(0)
}

// Unfollow mocks unfollowing a user.
func (m *MockProfileAPI) Unfollow(ctx context.Context, followerID, targetID string) error {
	return m.Called(ctx, followerID, targetID).Error(0)
}
