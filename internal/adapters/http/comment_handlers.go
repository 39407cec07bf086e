package http

import (
	"encoding/json"
	"net/http"
	"time"

	"gitlab.com/shutterbug/web/shutterbug-core/internal/domain"
	"gitlab.com/shutterbug/web/shutterbug-core/pkg/crypto"
)

// ThreadResponse is the body of GET /threads/{kind}/{id}/comments.
type ThreadResponse struct {
	Thread      domain.ThreadRef      `json:"thread"`
	Count       int                   `json:"count"`
	MaxDepth    int                   `json:"max_depth"`
	DepthPolicy string                `json:"depth_policy"`
	Comments    []*domain.CommentNode `json:"comments,omitempty"`
	Flat        []FlatComment         `json:"flat,omitempty"` // set for ?view=flat
}

// FlatComment is one comment of a pre-order walk, without its replies.
type FlatComment struct {
	ID                 string    `json:"id"`
	AuthorID           string    `json:"author_id"`
	Body               string    `json:"body"`
	CreatedAt          time.Time `json:"created_at"`
	Edited             bool      `json:"edited"`
	LikeCount          int       `json:"like_count"`
	LikedByCurrentUser bool      `json:"liked_by_current_user"`
	Depth              int       `json:"depth"`
	CanReply           bool      `json:"can_reply"`
}

// PostCommentRequest is the payload of POST /threads/{kind}/{id}/comments.
type PostCommentRequest struct {
	Body     string `json:"body"`
	ParentID string `json:"parent_id,omitempty"`
}

// PostCommentResponse reports the created comment and where it was attached.
type PostCommentResponse struct {
	Comment   *domain.CommentNode `json:"comment"`
	Placement *domain.Placement   `json:"placement,omitempty"`
}

// PatchCommentRequest is the payload of PATCH /threads/{kind}/{id}/comments/{commentID}.
type PatchCommentRequest struct {
	Body string `json:"body"`
}

// DeleteCommentResponse reports how many comments a delete removed.
type DeleteCommentResponse struct {
	Removed int `json:"removed"`
}

// GetComments returns a thread's comments. The response carries an ETag and
// honours If-None-Match.
func (h *Handlers) GetComments(w http.ResponseWriter, r *http.Request) {
	ref, ctx := threadRef(r)
	f, err := h.comments.OpenThread(ctx, ref)
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}

	resp := ThreadResponse{
		Thread:      ref,
		MaxDepth:    f.MaxDepth(),
		DepthPolicy: f.Policy().String(),
	}
	if r.URL.Query().Get("view") == "flat" {
		for n, depth := range f.Traverse() {
			resp.Flat = append(resp.Flat, FlatComment{
				ID:                 n.ID,
				AuthorID:           n.AuthorID,
				Body:               n.Body,
				CreatedAt:          n.CreatedAt,
				Edited:             n.Edited,
				LikeCount:          n.LikeCount,
				LikedByCurrentUser: n.LikedByCurrentUser,
				Depth:              depth,
				CanReply:           f.Policy() == domain.DepthPolicyUnbounded || depth < f.MaxDepth(),
			})
		}
		resp.Count = len(resp.Flat)
	} else {
		resp.Comments = f.Snapshot()
		for _, c := range resp.Comments {
			resp.Count += c.CountNodes()
		}
	}

	body, err := json.Marshal(resp)
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}
	etag := crypto.ETag(body)
	w.Header().Set("ETag", etag)
	w.Header().Set("Cache-Control", "private, no-cache")
	if match := r.Header.Get("If-None-Match"); match != "" && match == etag {
		w.WriteHeader(http.StatusNotModified)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(append(body, '\n')); err != nil {
		h.logger.Warn(ctx, "Failed to write comments response", "error", err.Error())
	}
}

// PostComment adds a top-level comment or, with parent_id, a reply.
func (h *Handlers) PostComment(w http.ResponseWriter, r *http.Request) {
	ref, ctx := threadRef(r)
	var req PostCommentRequest
	if err := decode(w, r, &req); err != nil {
		h.badRequest(ctx, w, "Invalid request payload", err.Error())
		return
	}
	body, ok := requireBody(req.Body)
	if !ok {
		h.badRequest(ctx, w, "Invalid payload", "body is required.")
		return
	}

	if req.ParentID == "" {
		rec, err := h.comments.AddComment(ctx, ref, body)
		if err != nil {
			h.writeError(ctx, w, err)
			return
		}
		h.writeJSON(ctx, w, http.StatusCreated, PostCommentResponse{Comment: rec})
		return
	}

	rec, placement, err := h.comments.Reply(ctx, ref, req.ParentID, body)
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}
	h.writeJSON(ctx, w, http.StatusCreated, PostCommentResponse{Comment: rec, Placement: &placement})
}

// PatchComment edits a comment's body.
func (h *Handlers) PatchComment(w http.ResponseWriter, r *http.Request) {
	ref, ctx := threadRef(r)
	var req PatchCommentRequest
	if err := decode(w, r, &req); err != nil {
		h.badRequest(ctx, w, "Invalid request payload", err.Error())
		return
	}
	body, ok := requireBody(req.Body)
	if !ok {
		h.badRequest(ctx, w, "Invalid payload", "body is required.")
		return
	}

	rec, err := h.comments.EditComment(ctx, ref, r.PathValue("commentID"), body)
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}
	h.writeJSON(ctx, w, http.StatusOK, rec)
}

// DeleteComment removes a comment and its replies.
func (h *Handlers) DeleteComment(w http.ResponseWriter, r *http.Request) {
	ref, ctx := threadRef(r)
	removed, err := h.comments.DeleteComment(ctx, ref, r.PathValue("commentID"))
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}
	h.writeJSON(ctx, w, http.StatusOK, DeleteCommentResponse{Removed: removed})
}

// Like marks a comment as liked by the viewer.
func (h *Handlers) Like(w http.ResponseWriter, r *http.Request) {
	h.setLike(w, r, true)
}

// Unlike removes the viewer's like.
func (h *Handlers) Unlike(w http.ResponseWriter, r *http.Request) {
	h.setLike(w, r, false)
}

func (h *Handlers) setLike(w http.ResponseWriter, r *http.Request, liked bool) {
	ref, ctx := threadRef(r)
	rec, err := h.comments.SetLike(ctx, ref, r.PathValue("commentID"), liked)
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}
	h.writeJSON(ctx, w, http.StatusOK, rec)
}

// ReloadThread drops local state for a thread and refetches it.
func (h *Handlers) ReloadThread(w http.ResponseWriter, r *http.Request) {
	ref, ctx := threadRef(r)
	f, err := h.comments.Reload(ctx, ref)
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}
	h.writeJSON(ctx, w, http.StatusOK, ThreadResponse{
		Thread:      ref,
		Count:       f.Len(),
		MaxDepth:    f.MaxDepth(),
		DepthPolicy: f.Policy().String(),
		Comments:    f.Snapshot(),
	})
}

// CloseThread discards the open forest of a thread whose view was closed.
func (h *Handlers) CloseThread(w http.ResponseWriter, r *http.Request) {
	ref, ctx := threadRef(r)
	if !ref.Kind.Valid() || ref.ID == "" {
		h.writeError(ctx, w, domain.ErrInvalidThread)
		return
	}
	h.comments.CloseThread(ctx, ref)
	w.WriteHeader(http.StatusNoContent)
}
