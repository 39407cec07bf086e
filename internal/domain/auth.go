package domain

import (
	"context"

	"gitlab.com/shutterbug/web/shutterbug-core/pkg/contextkeys"
)

// Viewer identifies the signed-in user on whose behalf the core talks to the
// remote API. It is resolved by the external authentication provider and
// carried on the request context.
type Viewer struct {
	UserID string `json:"user_id"`
	Token  string `json:"-"` // Bearer token forwarded to the REST API, never serialised
}

// WithViewer stores v on ctx, also exposing its user id under contextkeys.UserIDKey for logging.
func WithViewer(ctx context.Context, v Viewer) context.Context {
	ctx = context.WithValue(ctx, contextkeys.ViewerKey, v)
	return context.WithValue(ctx, contextkeys.UserIDKey, v.UserID)
}

// ViewerFromContext returns the viewer stored by WithViewer.
func ViewerFromContext(ctx context.Context) (Viewer, bool) {
	v, ok := ctx.Value(contextkeys.ViewerKey).(Viewer)
	if !ok || v.UserID == "" {
		return Viewer{}, false
	}
	return v, true
}
