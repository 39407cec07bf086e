// Package restapi talks to the community's remote REST API on behalf of the
// signed-in viewer.
package restapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"gitlab.com/shutterbug/web/shutterbug-core/internal/adapters/config"
	"gitlab.com/shutterbug/web/shutterbug-core/internal/adapters/metrics"
	"gitlab.com/shutterbug/web/shutterbug-core/internal/domain"
	"gitlab.com/shutterbug/web/shutterbug-core/pkg/contextkeys"
)

const (
	requestIDHeader = "X-Request-ID"
	maxErrorBody    = 512
)

// Client implements domain.CommentAPI and domain.ProfileAPI over JSON/HTTP.
type Client struct {
	http           *http.Client
	configProvider config.Provider
	logger         domain.Logger
}

var (
	_ domain.CommentAPI = (*Client)(nil)
	_ domain.ProfileAPI = (*Client)(nil)
)

// NewClient creates a Client. The base URL is read from the config on every
// call so a hot reload takes effect immediately.
func NewClient(configProvider config.Provider, logger domain.Logger) *Client {
	timeout := config.TTL(configProvider.Get().API.TimeoutSeconds, 10*time.Second)
	return &Client{
		http:           &http.Client{Timeout: timeout},
		configProvider: configProvider,
		logger:         logger,
	}
}

// WithHTTPClient replaces the underlying http.Client.
func (c *Client) WithHTTPClient(hc *http.Client) *Client {
	c.http = hc
	return c
}

func (c *Client) endpoint(segments ...string) string {
	base := strings.TrimRight(c.configProvider.Get().API.BaseURL, "/")
	escaped := make([]string, len(segments))
	for i, s := range segments {
		escaped[i] = url.PathEscape(s)
	}
	return base + "/" + strings.Join(escaped, "/")
}

// do sends one request. in, when non-nil, is sent as the JSON body; out, when
// non-nil, receives the decoded JSON response.
func (c *Client) do(ctx context.Context, op, method, endpoint string, in, out any) error {
	var body io.Reader
	if in != nil {
		buf, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("%s: encode request: %w", op, err)
		}
		body = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return fmt.Errorf("%s: build request: %w", op, err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if requestID, ok := ctx.Value(contextkeys.RequestIDKey).(string); ok && requestID != "" {
		req.Header.Set(requestIDHeader, requestID)
	}
	if viewer, ok := domain.ViewerFromContext(ctx); ok && viewer.Token != "" {
		req.Header.Set("Authorization", "Bearer "+viewer.Token)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		metrics.ObserveUpstreamRequest(op, "transport_error")
		c.logger.Warn(ctx, "Upstream request failed", "op", op, "method", method, "error", err.Error())
		return fmt.Errorf("%s: %w", op, err)
	}
	defer resp.Body.Close()

	metrics.ObserveUpstreamRequest(op, strconv.Itoa(resp.StatusCode))
	c.logger.Debug(ctx, "Upstream request completed", "op", op, "status", resp.StatusCode, "duration", time.Since(start).String())

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &domain.UpstreamError{Op: op, StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(snippet))}
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("%s: empty response body", op)
		}
		return fmt.Errorf("%s: decode response: %w", op, err)
	}
	return nil
}

// threadPath maps a thread to its collection path, e.g. cameras/<id>.
func threadPath(thread domain.ThreadRef) (string, string) {
	return string(thread.Kind) + "s", thread.ID
}

type createCommentRequest struct {
	Body     string `json:"body"`
	ParentID string `json:"parent_id,omitempty"`
}

type updateCommentRequest struct {
	Body string `json:"body"`
}

// FetchComments implements domain.CommentAPI.
func (c *Client) FetchComments(ctx context.Context, thread domain.ThreadRef) ([]*domain.CommentNode, error) {
	coll, id := threadPath(thread)
	var roots []*domain.CommentNode
	if err := c.do(ctx, "fetch_comments", http.MethodGet, c.endpoint(coll, id, "comments"), nil, &roots); err != nil {
		return nil, err
	}
	return roots, nil
}

// CreateComment implements domain.CommentAPI.
func (c *Client) CreateComment(ctx context.Context, thread domain.ThreadRef, parentID, body string) (*domain.CommentNode, error) {
	coll, id := threadPath(thread)
	var rec domain.CommentNode
	in := createCommentRequest{Body: body, ParentID: parentID}
	if err := c.do(ctx, "create_comment", http.MethodPost, c.endpoint(coll, id, "comments"), in, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

// UpdateComment implements domain.CommentAPI.
func (c *Client) UpdateComment(ctx context.Context, thread domain.ThreadRef, commentID, body string) (*domain.CommentNode, error) {
	var rec domain.CommentNode
	if err := c.do(ctx, "update_comment", http.MethodPatch, c.endpoint("comments", commentID), updateCommentRequest{Body: body}, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

// DeleteComment implements domain.CommentAPI.
func (c *Client) DeleteComment(ctx context.Context, thread domain.ThreadRef, commentID string) error {
	return c.do(ctx, "delete_comment", http.MethodDelete, c.endpoint("comments", commentID), nil, nil)
}

// LikeComment implements domain.CommentAPI.
func (c *Client) LikeComment(ctx context.Context, thread domain.ThreadRef, commentID string) (*domain.CommentNode, error) {
	var rec domain.CommentNode
	if err := c.do(ctx, "like_comment", http.MethodPost, c.endpoint("comments", commentID, "like"), nil, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

// UnlikeComment implements domain.CommentAPI.
func (c *Client) UnlikeComment(ctx context.Context, thread domain.ThreadRef, commentID string) (*domain.CommentNode, error) {
	var rec domain.CommentNode
	if err := c.do(ctx, "unlike_comment", http.MethodDelete, c.endpoint("comments", commentID, "like"), nil, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

// FetchProfile implements domain.ProfileAPI.
func (c *Client) FetchProfile(ctx context.Context, userID string) (*domain.Profile, error) {
	var p domain.Profile
	if err := c.do(ctx, "fetch_profile", http.MethodGet, c.endpoint("users", userID), nil, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// UpdateProfile implements domain.ProfileAPI.
func (c *Client) UpdateProfile(ctx context.Context, userID string, patch domain.ProfilePatch) (*domain.Profile, error) {
	var p domain.Profile
	if err := c.do(ctx, "update_profile", http.MethodPatch, c.endpoint("users", userID), patch, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// FetchCameras implements domain.ProfileAPI.
func (c *Client) FetchCameras(ctx context.Context, userID string) ([]domain.Camera, error) {
	var out []domain.Camera
	if err := c.do(ctx, "fetch_cameras", http.MethodGet, c.endpoint("users", userID, "cameras"), nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// FetchDiscussions implements domain.ProfileAPI.
func (c *Client) FetchDiscussions(ctx context.Context, userID string) ([]domain.Discussion, error) {
	var out []domain.Discussion
	if err := c.do(ctx, "fetch_discussions", http.MethodGet, c.endpoint("users", userID, "discussions"), nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// FetchFeed implements domain.ProfileAPI.
func (c *Client) FetchFeed(ctx context.Context, userID string) ([]domain.FeedItem, error) {
	var out []domain.FeedItem
	if err := c.do(ctx, "fetch_feed", http.MethodGet, c.endpoint("users", userID, "feed"), nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// FetchFollowing implements domain.ProfileAPI.
func (c *Client) FetchFollowing(ctx context.Context, userID string) ([]domain.Profile, error) {
	var out []domain.Profile
	if err := c.do(ctx, "fetch_following", http.MethodGet, c.endpoint("users", userID, "following"), nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Follow implements domain.ProfileAPI. The follower is the viewer whose token is on ctx.
func (c *Client) Follow(ctx context.Context, followerID, targetID string) error {
	return c.do(ctx, "follow", http.MethodPost, c.endpoint("users", targetID, "follow"), nil, nil)
}

// Unfollow implements domain.ProfileAPI.
func (c *Client) Unfollow(ctx context.Context, followerID, targetID string) error {
	return c.do(ctx, "unfollow", http.MethodDelete, c.endpoint("users", targetID, "follow"), nil, nil)
}
