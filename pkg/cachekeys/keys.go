// Package cachekeys builds the namespaced keys of the interaction cache.
// Callers must go through these helpers so that the same (namespace, id)
// always yields the same key.
package cachekeys

import (
	"fmt"
	"strings"
)

// Namespaces. Any new kind of derived data must mint its own prefix here.
const (
	NSUser         = "user"
	NSCameras      = "cameras"
	NSDiscussions  = "discussions"
	NSFeed         = "feed"
	NSFollowing    = "following"
	NSComments     = "comments"
	NSCommentCount = "comment-count"
)

// User is the key of a user's profile.
func User(userID string) string {
	return fmt.Sprintf("%s:%s", NSUser, userID)
}

// Cameras is the key of the cameras owned by a user.
func Cameras(userID string) string {
	return fmt.Sprintf("%s:%s", NSCameras, userID)
}

// Discussions is the key of the discussions started by a user.
func Discussions(userID string) string {
	return fmt.Sprintf("%s:%s", NSDiscussions, userID)
}

// Feed is the key of a user's home feed.
func Feed(userID string) string {
	return fmt.Sprintf("%s:%s", NSFeed, userID)
}

// Following is the key of the list of users a user follows.
func Following(userID string) string {
	return fmt.Sprintf("%s:%s", NSFollowing, userID)
}

// Comments is the key of a thread's comment forest snapshot.
func Comments(kind, threadID string) string {
	return fmt.Sprintf("%s:%s:%s", NSComments, kind, threadID)
}

// CommentCount is the key of a thread's total comment count.
func CommentCount(kind, threadID string) string {
	return fmt.Sprintf("%s:%s:%s", NSCommentCount, kind, threadID)
}

// EntityKeys lists every key holding data derived from a user.
func EntityKeys(userID string) []string {
	return []string{
		User(userID),
		Cameras(userID),
		Discussions(userID),
		Feed(userID),
		Following(userID),
	}
}

// ThreadKeys lists every key holding data derived from a thread.
func ThreadKeys(kind, threadID string) []string {
	return []string{
		Comments(kind, threadID),
		CommentCount(kind, threadID),
	}
}

// Namespace returns the namespace prefix of key, or "" if it has none.
func Namespace(key string) string {
	ns, _, found := strings.Cut(key, ":")
	if !found {
		return ""
	}
	return ns
}
