package domain

import "context"

// CommentAPI is the remote side of comment threads. Every mutation returns the
// server's canonical record for the affected comment.
type CommentAPI interface {
	FetchComments(ctx context.Context, thread ThreadRef) ([]*CommentNode, error)
	// CreateComment posts a comment; parentID is empty for a top-level comment.
	CreateComment(ctx context.Context, thread ThreadRef, parentID, body string) (*CommentNode, error)
	UpdateComment(ctx context.Context, thread ThreadRef, commentID, body string) (*CommentNode, error)
	DeleteComment(ctx context.Context, thread ThreadRef, commentID string) error
	LikeComment(ctx context.Context, thread ThreadRef, commentID string) (*CommentNode, error)
	UnlikeComment(ctx context.Context, thread ThreadRef, commentID string) (*CommentNode, error)
}

// ProfileAPI is the remote side of profiles and the per-user collections.
type ProfileAPI interface {
	FetchProfile(ctx context.Context, userID string) (*Profile, error)
	UpdateProfile(ctx context.Context, userID string, patch ProfilePatch) (*Profile, error)
	FetchCameras(ctx context.Context, userID string) ([]Camera, error)
	FetchDiscussions(ctx context.Context, userID string) ([]Discussion, error)
	FetchFeed(ctx context.Context, userID string) ([]FeedItem, error)
	FetchFollowing(ctx context.Context, userID string) ([]Profile, error)
	Follow(ctx context.Context, followerID, targetID string) error
	Unfollow(ctx context.Context, followerID, targetID string) error
}
