package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"gitlab.com/shutterbug/web/shutterbug-core/internal/application"
	"gitlab.com/shutterbug/web/shutterbug-core/internal/domain"
	"gitlab.com/shutterbug/web/shutterbug-core/pkg/contextkeys"
)

const maxRequestBody = 64 << 10

// Handlers exposes the comment, profile and cache services over HTTP.
type Handlers struct {
	logger       domain.Logger
	comments     *application.CommentService
	profiles     *application.ProfileService
	invalidation *application.InvalidationService
}

// NewHandlers creates the HTTP handlers.
func NewHandlers(logger domain.Logger, comments *application.CommentService, profiles *application.ProfileService, invalidation *application.InvalidationService) *Handlers {
	return &Handlers{
		logger:       logger,
		comments:     comments,
		profiles:     profiles,
		invalidation: invalidation,
	}
}

// Register mounts every route on mux. adminAuth guards the admin routes.
func (h *Handlers) Register(mux *http.ServeMux, adminAuth func(http.Handler) http.Handler) {
	mux.HandleFunc("GET /threads/{kind}/{id}/comments", h.GetComments)
	mux.HandleFunc("POST /threads/{kind}/{id}/comments", h.PostComment)
	mux.HandleFunc("PATCH /threads/{kind}/{id}/comments/{commentID}", h.PatchComment)
	mux.HandleFunc("DELETE /threads/{kind}/{id}/comments/{commentID}", h.DeleteComment)
	mux.HandleFunc("PUT /threads/{kind}/{id}/comments/{commentID}/like", h.Like)
	mux.HandleFunc("DELETE /threads/{kind}/{id}/comments/{commentID}/like", h.Unlike)
	mux.HandleFunc("POST /threads/{kind}/{id}/reload", h.ReloadThread)
	mux.HandleFunc("DELETE /threads/{kind}/{id}", h.CloseThread)

	mux.HandleFunc("GET /users/{id}", h.GetProfile)
	mux.HandleFunc("PATCH /users/{id}", h.PatchProfile)
	mux.HandleFunc("GET /users/{id}/cameras", h.GetCameras)
	mux.HandleFunc("GET /users/{id}/discussions", h.GetDiscussions)
	mux.HandleFunc("GET /users/{id}/feed", h.GetFeed)
	mux.HandleFunc("GET /users/{id}/following", h.GetFollowing)
	mux.HandleFunc("PUT /users/{id}/follow", h.Follow)
	mux.HandleFunc("DELETE /users/{id}/follow", h.Unfollow)

	mux.Handle("POST /admin/cache/invalidate", adminAuth(http.HandlerFunc(h.Invalidate)))
}

// threadRef reads the thread from the path and tags the context with it for logging.
func threadRef(r *http.Request) (domain.ThreadRef, context.Context) {
	ref := domain.ThreadRef{Kind: domain.ThreadKind(r.PathValue("kind")), ID: r.PathValue("id")}
	return ref, context.WithValue(r.Context(), contextkeys.ThreadIDKey, ref.String())
}

func (h *Handlers) writeJSON(ctx context.Context, w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error(ctx, "Failed to encode response", "error", err.Error())
	}
}

// writeError maps err onto an error response. Server-side failures are logged
// at error level, client mistakes at debug.
func (h *Handlers) writeError(ctx context.Context, w http.ResponseWriter, err error) {
	resp, status := domain.ErrorResponseFor(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error(ctx, "Request failed", "status", status, "error", err.Error())
	} else {
		h.logger.Debug(ctx, "Request rejected", "status", status, "error", err.Error())
	}
	resp.WriteJSON(w, status)
}

func (h *Handlers) badRequest(ctx context.Context, w http.ResponseWriter, message, details string) {
	h.logger.Debug(ctx, "Bad request", "message", message, "details", details)
	domain.NewErrorResponse(domain.ErrBadRequest, message, details).WriteJSON(w, http.StatusBadRequest)
}

// decode reads a JSON body into v, rejecting unknown fields and oversized bodies.
func decode(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return err
	}
	if dec.More() {
		return errors.New("request body must contain a single JSON object")
	}
	return nil
}

// requireBody validates a comment body.
func requireBody(body string) (string, bool) {
	trimmed := strings.TrimSpace(body)
	return trimmed, trimmed != ""
}
