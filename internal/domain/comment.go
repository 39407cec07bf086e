package domain

import (
	"fmt"
	"time"
)

// ThreadKind names the kind of entity a comment thread hangs off.
type ThreadKind string

const (
	ThreadDiscussion ThreadKind = "discussion"
	ThreadCamera     ThreadKind = "camera"
)

// Valid reports whether k is a known thread kind.
func (k ThreadKind) Valid() bool {
	return k == ThreadDiscussion || k == ThreadCamera
}

// ThreadRef addresses one comment thread: the comments of a discussion or of a camera.
type ThreadRef struct {
	Kind ThreadKind `json:"kind"`
	ID   string     `json:"id"`
}

func (r ThreadRef) String() string {
	return fmt.Sprintf("%s:%s", r.Kind, r.ID)
}

// CommentNode is one comment and, recursively, its replies.
// The JSON shape matches the comment records returned by the REST API, so a
// fetched response maps 1:1 onto a forest.
type CommentNode struct {
	ID                 string         `json:"id"`
	AuthorID           string         `json:"author_id"`
	Body               string         `json:"body"`
	CreatedAt          time.Time      `json:"created_at"`
	Edited             bool           `json:"edited"`
	LikeCount          int            `json:"like_count"`
	LikedByCurrentUser bool           `json:"liked_by_current_user"`
	Replies            []*CommentNode `json:"replies"`
}

// Clone returns a deep copy of n, including its whole reply subtree.
func (n *CommentNode) Clone() *CommentNode {
	if n == nil {
		return nil
	}
	c := *n
	c.Replies = cloneNodes(n.Replies)
	return &c
}

// CountNodes returns the number of nodes in the subtree rooted at n, n included.
func (n *CommentNode) CountNodes() int {
	if n == nil {
		return 0
	}
	total := 1
	for _, r := range n.Replies {
		total += r.CountNodes()
	}
	return total
}

func cloneNodes(nodes []*CommentNode) []*CommentNode {
	out := make([]*CommentNode, 0, len(nodes))
	for _, n := range nodes {
		if n == nil {
			continue
		}
		out = append(out, n.Clone())
	}
	return out
}

// CloneNodes deep-copies a slice of comment trees, dropping nil entries.
func CloneNodes(nodes []*CommentNode) []*CommentNode {
	return cloneNodes(nodes)
}
