package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrNodeNotFound is returned by forest mutations whose target id is not in
	// the forest. Callers on optimistic paths may ignore it or trigger a reload.
	ErrNodeNotFound = errors.New("comment not found in thread")
	// ErrDuplicateNode is returned when an id would appear twice in a forest.
	ErrDuplicateNode = errors.New("comment id already present in thread")
	// ErrInvalidNode is returned for nil comments or comments without an id.
	ErrInvalidNode = errors.New("comment must have an id")
	// ErrDepthExceeded is returned under DepthPolicyReject for over-deep replies.
	ErrDepthExceeded = errors.New("reply exceeds maximum nesting depth")

	ErrInvalidThread = errors.New("invalid thread reference")
	ErrNotFound      = errors.New("resource not found")
	ErrUnauthorized  = errors.New("viewer is not signed in")
)

// UpstreamError describes a non-2xx answer from the remote REST API.
type UpstreamError struct {
	Op         string
	StatusCode int
	Body       string
}

func (e *UpstreamError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("upstream %s failed with status %d", e.Op, e.StatusCode)
	}
	return fmt.Sprintf("upstream %s failed with status %d: %s", e.Op, e.StatusCode, e.Body)
}

// Unwrap lets errors.Is(err, ErrNotFound) match upstream 404s.
func (e *UpstreamError) Unwrap() error {
	switch e.StatusCode {
	case http.StatusNotFound:
		return ErrNotFound
	case http.StatusUnauthorized:
		return ErrUnauthorized
	}
	return nil
}

// ErrorCode represents a specific error condition.
type ErrorCode string

const (
	ErrInvalidAPIKey    ErrorCode = "InvalidAPIKey"       // HTTP 401
	ErrNotSignedIn      ErrorCode = "NotSignedIn"         // HTTP 401
	ErrForbidden        ErrorCode = "Forbidden"           // HTTP 403
	ErrBadRequest       ErrorCode = "BadRequest"          // HTTP 400
	ErrCommentNotFound  ErrorCode = "CommentNotFound"     // HTTP 404, stale local id
	ErrResourceNotFound ErrorCode = "NotFound"            // HTTP 404
	ErrConflict         ErrorCode = "Conflict"            // HTTP 409
	ErrNestingTooDeep   ErrorCode = "NestingTooDeep"      // HTTP 422
	ErrUpstreamFailure  ErrorCode = "UpstreamFailure"     // HTTP 502
	ErrInternal         ErrorCode = "InternalServerError" // HTTP 500
)

// ErrorResponse is the standard error body returned by the local HTTP surface.
type ErrorResponse struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Details string    `json:"details,omitempty"`
}

// NewErrorResponse creates a new ErrorResponse struct.
func NewErrorResponse(code ErrorCode, message string, details string) ErrorResponse {
	return ErrorResponse{
		Code:    code,
		Message: message,
		Details: details,
	}
}

// WriteJSON sends an ErrorResponse as JSON with the given HTTP status code.
func (er ErrorResponse) WriteJSON(w http.ResponseWriter, httpStatusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(httpStatusCode)
	json.NewEncoder(w).Encode(er) // Best effort, nothing useful to do on failure.
}

// ErrorResponseFor maps an error from the core onto a response body and status.
func ErrorResponseFor(err error) (ErrorResponse, int) {
	var upstream *UpstreamError
	switch {
	case errors.Is(err, ErrNodeNotFound):
		return NewErrorResponse(ErrCommentNotFound, "Comment not found", err.Error()), http.StatusNotFound
	case errors.Is(err, ErrDuplicateNode):
		return NewErrorResponse(ErrConflict, "Comment already exists", err.Error()), http.StatusConflict
	case errors.Is(err, ErrDepthExceeded):
		return NewErrorResponse(ErrNestingTooDeep, "Reply nesting too deep", err.Error()), http.StatusUnprocessableEntity
	case errors.Is(err, ErrInvalidThread), errors.Is(err, ErrInvalidNode):
		return NewErrorResponse(ErrBadRequest, "Invalid request", err.Error()), http.StatusBadRequest
	case errors.Is(err, ErrUnauthorized):
		return NewErrorResponse(ErrNotSignedIn, "Sign in required", err.Error()), http.StatusUnauthorized
	case errors.Is(err, ErrNotFound):
		return NewErrorResponse(ErrResourceNotFound, "Not found", err.Error()), http.StatusNotFound
	case errors.As(err, &upstream):
		return NewErrorResponse(ErrUpstreamFailure, "Upstream request failed", err.Error()), http.StatusBadGateway
	}
	return NewErrorResponse(ErrInternal, "Internal error", err.Error()), http.StatusInternalServerError
}
