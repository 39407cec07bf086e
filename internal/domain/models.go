package domain

import "time"

// Profile is a community member's public profile.
type Profile struct {
	ID             string    `json:"id"`
	Username       string    `json:"username"`
	DisplayName    string    `json:"display_name"`
	Bio            string    `json:"bio"`
	AvatarURL      string    `json:"avatar_url"`
	FollowerCount  int       `json:"follower_count"`
	FollowingCount int       `json:"following_count"`
	JoinedAt       time.Time `json:"joined_at"`
}

// ProfilePatch carries the editable profile fields. Nil fields are left unchanged.
type ProfilePatch struct {
	DisplayName *string `json:"display_name,omitempty"`
	Bio         *string `json:"bio,omitempty"`
	AvatarURL   *string `json:"avatar_url,omitempty"`
}

// Camera is a camera a member has added to their collection.
type Camera struct {
	ID          string    `json:"id"`
	OwnerID     string    `json:"owner_id"`
	Brand       string    `json:"brand"`
	Model       string    `json:"model"`
	Year        int       `json:"year,omitempty"`
	Description string    `json:"description"`
	PhotoURL    string    `json:"photo_url"`
	LikeCount   int       `json:"like_count"`
	CreatedAt   time.Time `json:"created_at"`
}

// Discussion is a forum topic started by a member.
type Discussion struct {
	ID           string    `json:"id"`
	AuthorID     string    `json:"author_id"`
	Title        string    `json:"title"`
	Body         string    `json:"body"`
	CameraID     string    `json:"camera_id,omitempty"`
	CommentCount int       `json:"comment_count"`
	CreatedAt    time.Time `json:"created_at"`
}

// FeedItem is one entry of a member's home feed.
type FeedItem struct {
	Kind      string    `json:"kind"` // "camera" or "discussion"
	ID        string    `json:"id"`
	AuthorID  string    `json:"author_id"`
	Title     string    `json:"title"`
	PhotoURL  string    `json:"photo_url,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}
