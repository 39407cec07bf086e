package http

import (
	"net/http"

	"gitlab.com/shutterbug/web/shutterbug-core/internal/domain"
)

// GetProfile returns a user's profile.
func (h *Handlers) GetProfile(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	p, err := h.profiles.Profile(ctx, r.PathValue("id"))
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}
	h.writeJSON(ctx, w, http.StatusOK, p)
}

// PatchProfile edits the viewer's own profile.
func (h *Handlers) PatchProfile(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	viewer, ok := domain.ViewerFromContext(ctx)
	if !ok {
		h.writeError(ctx, w, domain.ErrUnauthorized)
		return
	}
	if viewer.UserID != r.PathValue("id") {
		h.logger.Warn(ctx, "Attempt to edit another user's profile", "target_id", r.PathValue("id"))
		domain.NewErrorResponse(domain.ErrForbidden, "Forbidden", "Only your own profile can be edited.").WriteJSON(w, http.StatusForbidden)
		return
	}

	var patch domain.ProfilePatch
	if err := decode(w, r, &patch); err != nil {
		h.badRequest(ctx, w, "Invalid request payload", err.Error())
		return
	}
	updated, err := h.profiles.UpdateProfile(ctx, patch)
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}
	h.writeJSON(ctx, w, http.StatusOK, updated)
}

// GetCameras returns the cameras a user owns.
func (h *Handlers) GetCameras(w http.ResponseWriter, r *http.Request) {
	out, err := h.profiles.Cameras(r.Context(), r.PathValue("id"))
	respond(h, w, r, out, err)
}

// GetDiscussions returns the discussions a user started.
func (h *Handlers) GetDiscussions(w http.ResponseWriter, r *http.Request) {
	out, err := h.profiles.Discussions(r.Context(), r.PathValue("id"))
	respond(h, w, r, out, err)
}

// GetFeed returns a user's home feed.
func (h *Handlers) GetFeed(w http.ResponseWriter, r *http.Request) {
	out, err := h.profiles.Feed(r.Context(), r.PathValue("id"))
	respond(h, w, r, out, err)
}

// GetFollowing returns the profiles a user follows.
func (h *Handlers) GetFollowing(w http.ResponseWriter, r *http.Request) {
	out, err := h.profiles.Following(r.Context(), r.PathValue("id"))
	respond(h, w, r, out, err)
}

// Follow makes the viewer follow the user in the path.
func (h *Handlers) Follow(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if err := h.profiles.Follow(ctx, r.PathValue("id")); err != nil {
		h.writeError(ctx, w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Unfollow makes the viewer stop following the user in the path.
func (h *Handlers) Unfollow(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if err := h.profiles.Unfollow(ctx, r.PathValue("id")); err != nil {
		h.writeError(ctx, w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// respond writes a collection, never as JSON null.
func respond[T any](h *Handlers, w http.ResponseWriter, r *http.Request, out []T, err error) {
	ctx := r.Context()
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}
	if out == nil {
		out = []T{}
	}
	h.writeJSON(ctx, w, http.StatusOK, out)
}
