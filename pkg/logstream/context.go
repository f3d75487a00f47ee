package logstream

import (
	"context"

	"github.com/google/uuid"
)

// The per-request session id travels as an explicit context value; there is
// no process-global fallback.

type sessionKey struct{}

const noSession = "-"

// WithSessionID attaches a request-scoped session id to ctx.
func WithSessionID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, sessionKey{}, id)
}

// SessionID returns the session id carried by ctx, or "-" when the caller is
// outside any request scope.
func SessionID(ctx context.Context) string {
	if ctx == nil {
		return noSession
	}
	if id, ok := ctx.Value(sessionKey{}).(string); ok && id != "" {
		return id
	}
	return noSession
}

// NewSessionID generates the 4-character id written into log records.
func NewSessionID() string {
	return uuid.NewString()[:4]
}
