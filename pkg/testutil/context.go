package testutil

import (
	"context"
	"net/http"

	"tramita/internal/domain"
	"tramita/internal/platform/middleware"
)

// WithUser adds an authenticated user to the request context.
// This simulates what the auth middleware would do for authenticated requests.
func WithUser(req *http.Request, userID string) *http.Request {
	ctx := context.WithValue(req.Context(), middleware.ContextKeyUserID, userID)
	return req.WithContext(ctx)
}

// WithActingGroup adds the caller's acting group to the request context.
func WithActingGroup(req *http.Request, group domain.GroupID) *http.Request {
	ctx := context.WithValue(req.Context(), middleware.ContextKeyGroupID, group)
	return req.WithContext(ctx)
}

// WithAuth adds both user ID and acting group to the request context.
// This is the typical state for an authenticated request.
func WithAuth(req *http.Request, userID string, group domain.GroupID) *http.Request {
	ctx := req.Context()
	if userID != "" {
		ctx = context.WithValue(ctx, middleware.ContextKeyUserID, userID)
	}
	if group != 0 {
		ctx = context.WithValue(ctx, middleware.ContextKeyGroupID, group)
	}
	return req.WithContext(ctx)
}

// WithContextValue adds an arbitrary key-value pair to the request context.
func WithContextValue(req *http.Request, key, value any) *http.Request {
	ctx := context.WithValue(req.Context(), key, value)
	return req.WithContext(ctx)
}
