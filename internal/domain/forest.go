package domain

import (
	"fmt"
	"iter"
	"slices"
	"strings"
	"sync"
)

// DefaultMaxReplyDepth is the deepest level a reply may be created at.
// Roots are depth 0; nodes at depth 0..2 accept replies and depth 3 is terminal.
const DefaultMaxReplyDepth = 3

// DepthPolicy decides what happens to a reply whose depth would exceed the
// forest's maximum.
type DepthPolicy int

const (
	// DepthPolicyFlatten attaches the reply to the target's ancestor at
	// depth max-1, so it lands as a sibling at the deepest allowed level.
	DepthPolicyFlatten DepthPolicy = iota
	// DepthPolicyReject refuses the reply with ErrDepthExceeded.
	DepthPolicyReject
	// DepthPolicyUnbounded places no limit on nesting.
	DepthPolicyUnbounded
)

func (p DepthPolicy) String() string {
	switch p {
	case DepthPolicyFlatten:
		return "flatten"
	case DepthPolicyReject:
		return "reject"
	case DepthPolicyUnbounded:
		return "unbounded"
	default:
		return fmt.Sprintf("DepthPolicy(%d)", int(p))
	}
}

// ParseDepthPolicy maps a config value onto a DepthPolicy. Empty selects flatten.
func ParseDepthPolicy(s string) (DepthPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "flatten":
		return DepthPolicyFlatten, nil
	case "reject":
		return DepthPolicyReject, nil
	case "unbounded":
		return DepthPolicyUnbounded, nil
	}
	return DepthPolicyFlatten, fmt.Errorf("unknown depth policy %q", s)
}

// Placement reports where InsertReply actually attached a reply.
type Placement struct {
	ParentID  string `json:"parent_id"`
	Depth     int    `json:"depth"`
	Flattened bool   `json:"flattened"` // true when the reply was redirected to an ancestor of the requested parent
}

// Forest is the ordered set of top-level comments of one thread together
// with their reply trees. Ids are unique across the whole forest.
//
// A Forest is safe for concurrent use. Mutations touch only the nodes they
// target; lookups are depth-first, left to right.
type Forest struct {
	mu       sync.RWMutex
	roots    []*CommentNode
	maxDepth int
	policy   DepthPolicy
}

// ForestOption configures a Forest.
type ForestOption func(*Forest)

// WithMaxDepth sets the deepest level a reply may be created at. Values below 1 are ignored.
func WithMaxDepth(n int) ForestOption {
	return func(f *Forest) {
		if n >= 1 {
			f.maxDepth = n
		}
	}
}

// WithDepthPolicy selects how over-deep replies are handled.
func WithDepthPolicy(p DepthPolicy) ForestOption {
	return func(f *Forest) {
		f.policy = p
	}
}

// NewForest builds a forest from fetched comment trees. The input is deep
// copied; nil entries are dropped. It fails if any id is empty or repeated.
func NewForest(roots []*CommentNode, opts ...ForestOption) (*Forest, error) {
	f := &Forest{
		maxDepth: DefaultMaxReplyDepth,
		policy:   DepthPolicyFlatten,
	}
	for _, opt := range opts {
		opt(f)
	}

	copied := cloneNodes(roots)
	seen := make(map[string]struct{})
	for _, r := range copied {
		if err := collectIDs(r, seen); err != nil {
			return nil, err
		}
	}
	f.roots = copied
	return f, nil
}

// MaxDepth returns the configured nesting cap.
func (f *Forest) MaxDepth() int { return f.maxDepth }

// Policy returns the configured depth policy.
func (f *Forest) Policy() DepthPolicy { return f.policy }

// AddRoot appends a new top-level comment.
func (f *Forest) AddRoot(node *CommentNode) error {
	if node == nil || node.ID == "" {
		return ErrInvalidNode
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.checkFresh(node); err != nil {
		return err
	}
	f.roots = append(f.roots, node.Clone())
	return nil
}

// InsertReply appends node to the replies of the comment with id parentID.
// It returns ErrNodeNotFound when the parent does not exist and leaves the
// forest untouched. Over-deep replies follow the forest's DepthPolicy.
func (f *Forest) InsertReply(parentID string, node *CommentNode) (Placement, error) {
	if node == nil || node.ID == "" {
		return Placement{}, ErrInvalidNode
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	loc, ok := f.locate(parentID)
	if !ok {
		return Placement{}, fmt.Errorf("%w: parent %s", ErrNodeNotFound, parentID)
	}
	if err := f.checkFresh(node); err != nil {
		return Placement{}, err
	}

	parent := loc.node
	depth := loc.depth + 1
	flattened := false
	if f.policy != DepthPolicyUnbounded && depth > f.maxDepth {
		if f.policy == DepthPolicyReject {
			return Placement{}, fmt.Errorf("%w: parent %s is at depth %d", ErrDepthExceeded, parentID, loc.depth)
		}
		// path[i] sits at depth i.
		path := append(loc.ancestors, loc.node)
		parent = path[f.maxDepth-1]
		depth = f.maxDepth
		flattened = true
	}

	parent.Replies = append(parent.Replies, node.Clone())
	return Placement{ParentID: parent.ID, Depth: depth, Flattened: flattened}, nil
}

// UpdateBody replaces the body of the comment with id targetID and marks it edited.
func (f *Forest) UpdateBody(targetID, body string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	loc, ok := f.locate(targetID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrNodeNotFound, targetID)
	}
	loc.node.Body = body
	loc.node.Edited = true
	return nil
}

// DeleteNode removes the comment with id targetID together with all of its
// replies and returns the number of nodes removed. Children are not re-parented.
func (f *Forest) DeleteNode(targetID string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	loc, ok := f.locate(targetID)
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrNodeNotFound, targetID)
	}
	removed := loc.node.CountNodes()
	*loc.siblings = slices.Delete(*loc.siblings, loc.index, loc.index+1)
	return removed, nil
}

// SetLiked records the current user's like state on a comment, adjusting the
// like count by one. Setting the state it already has is a no-op.
func (f *Forest) SetLiked(targetID string, liked bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	loc, ok := f.locate(targetID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrNodeNotFound, targetID)
	}
	n := loc.node
	if n.LikedByCurrentUser == liked {
		return nil
	}
	n.LikedByCurrentUser = liked
	if liked {
		n.LikeCount++
	} else if n.LikeCount > 0 {
		n.LikeCount--
	}
	return nil
}

// ApplyRecord overwrites a comment's scalar fields with a canonical record
// returned by the server. Replies are left as they are.
func (f *Forest) ApplyRecord(rec CommentNode) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	loc, ok := f.locate(rec.ID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrNodeNotFound, rec.ID)
	}
	n := loc.node
	if rec.AuthorID != "" {
		n.AuthorID = rec.AuthorID
	}
	if !rec.CreatedAt.IsZero() {
		n.CreatedAt = rec.CreatedAt
	}
	n.Body = rec.Body
	n.Edited = rec.Edited
	n.LikeCount = max(rec.LikeCount, 0)
	n.LikedByCurrentUser = rec.LikedByCurrentUser
	return nil
}

// Rekey replaces a comment's id, typically a pending local id with the id the
// server assigned.
func (f *Forest) Rekey(oldID, newID string) error {
	if newID == "" {
		return ErrInvalidNode
	}
	if oldID == newID {
		return nil
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, taken := f.locate(newID); taken {
		return fmt.Errorf("%w: %s", ErrDuplicateNode, newID)
	}
	loc, ok := f.locate(oldID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrNodeNotFound, oldID)
	}
	loc.node.ID = newID
	return nil
}

// Find returns a copy of the comment with the given id and its depth.
func (f *Forest) Find(id string) (CommentNode, int, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	loc, ok := f.locate(id)
	if !ok {
		return CommentNode{}, 0, false
	}
	return *loc.node.Clone(), loc.depth, true
}

// Len returns the total number of comments in the forest.
func (f *Forest) Len() int {
	f.mu.RLock()
	defer f.mu.RUnlock()

	total := 0
	for _, r := range f.roots {
		total += r.CountNodes()
	}
	return total
}

// Snapshot returns a deep copy of the roots.
func (f *Forest) Snapshot() []*CommentNode {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return cloneNodes(f.roots)
}

// Traverse yields every comment with its depth in depth-first pre-order.
// Each iteration walks a fresh snapshot taken when it starts, so the sequence
// can be ranged over repeatedly and is unaffected by concurrent mutations.
func (f *Forest) Traverse() iter.Seq2[*CommentNode, int] {
	return func(yield func(*CommentNode, int) bool) {
		walk(f.Snapshot(), 0, yield)
	}
}

func walk(nodes []*CommentNode, depth int, yield func(*CommentNode, int) bool) bool {
	for _, n := range nodes {
		if !yield(n, depth) {
			return false
		}
		if !walk(n.Replies, depth+1, yield) {
			return false
		}
	}
	return true
}

type location struct {
	node      *CommentNode
	siblings  *[]*CommentNode
	index     int
	depth     int
	ancestors []*CommentNode // root first, node excluded
}

// locate must be called with f.mu held.
func (f *Forest) locate(id string) (location, bool) {
	if id == "" {
		return location{}, false
	}
	return locateIn(&f.roots, id, 0, nil)
}

func locateIn(list *[]*CommentNode, id string, depth int, ancestors []*CommentNode) (location, bool) {
	for i, n := range *list {
		if n.ID == id {
			return location{node: n, siblings: list, index: i, depth: depth, ancestors: ancestors}, true
		}
		if len(n.Replies) == 0 {
			continue
		}
		// Capped slice so sibling branches never share a backing array.
		path := append(ancestors[:len(ancestors):len(ancestors)], n)
		if loc, ok := locateIn(&n.Replies, id, depth+1, path); ok {
			return loc, true
		}
	}
	return location{}, false
}

// checkFresh verifies that no id in node's subtree is empty or already in
// the forest. Must be called with f.mu held.
func (f *Forest) checkFresh(node *CommentNode) error {
	seen := make(map[string]struct{})
	for _, r := range f.roots {
		if err := collectIDs(r, seen); err != nil {
			return err
		}
	}
	return collectIDs(node, seen)
}

func collectIDs(n *CommentNode, seen map[string]struct{}) error {
	if n.ID == "" {
		return ErrInvalidNode
	}
	if _, dup := seen[n.ID]; dup {
		return fmt.Errorf("%w: %s", ErrDuplicateNode, n.ID)
	}
	seen[n.ID] = struct{}{}
	for _, r := range n.Replies {
		if r == nil {
			continue
		}
		if err := collectIDs(r, seen); err != nil {
			return err
		}
	}
	return nil
}
