package middleware

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"gitlab.com/shutterbug/web/shutterbug-core/pkg/contextkeys"
)

// XRequestIDHeader carries the request id from the UI through to the REST API.
const XRequestIDHeader = "X-Request-ID"

const maxRequestIDLen = 128

// RequestIDMiddleware puts a request id on the context and echoes it in the
// response. The UI's id is kept so its logs line up with ours and the API's;
// ids that are missing or unsafe to forward are replaced with a fresh UUID.
func RequestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get(XRequestIDHeader)
		if !validRequestID(requestID) {
			requestID = uuid.NewString()
		}

		ctx := context.WithValue(r.Context(), contextkeys.RequestIDKey, requestID)
		w.Header().Set(XRequestIDHeader, requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// validRequestID accepts non-empty ids of visible ASCII, since the id is
// copied into outbound headers and log lines.
func validRequestID(id string) bool {
	if id == "" || len(id) > maxRequestIDLen {
		return false
	}
	for i := 0; i < len(id); i++ {
		if id[i] <= ' ' || id[i] > '~' {
			return false
		}
	}
	return true
}
