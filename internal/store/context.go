package store

import "context"

type contextKey string

const (
	// BackendIdentityKey carries the authenticated backend's ID, set
	// by the auth middleware once a bearer token resolves.
	BackendIdentityKey contextKey = "chatrelay_backend_id"
	// RequestIDKey carries an inbound X-Request-Id, if present.
	RequestIDKey contextKey = "chatrelay_request_id"
)

// WithBackendID returns a new context carrying the authenticated
// backend bot ID.
func WithBackendID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, BackendIdentityKey, id)
}

// BackendIDFromContext extracts the backend bot ID. Returns "" if not set.
func BackendIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(BackendIdentityKey).(string); ok {
		return v
	}
	return ""
}

// WithRequestID returns a new context carrying a request ID.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, RequestIDKey, id)
}

// RequestIDFromContext extracts the request ID. Returns "" if not set.
func RequestIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(RequestIDKey).(string); ok {
		return v
	}
	return ""
}
