package contextkeys

// contextKey is an unexported type for context keys to avoid collisions.
type contextKey string

const (
	// RequestIDKey is the context key for storing and retrieving a request ID.
	RequestIDKey contextKey = "request_id"

	// EventIDKey is the context key for the id of the invalidation event being applied.
	EventIDKey contextKey = "event_id"

	// UserIDKey is the context key for the signed-in user's id.
	UserIDKey contextKey = "user_id"

	// ThreadIDKey is the context key for the comment thread an operation works on.
	ThreadIDKey contextKey = "thread_id"

	// ViewerKey is the context key for the whole domain.Viewer, bearer token included.
	ViewerKey contextKey = "viewer"
)

// String makes contextKey satisfy fmt.Stringer to help with debugging/logging of keys themselves.
func (c contextKey) String() string {
	return string(c)
}
