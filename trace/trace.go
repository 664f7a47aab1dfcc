// Package trace carries correlation identifiers for provisioning runs.
//
// A run ID ties together every outbound call made while setting up or tearing
// down one lab environment. Each individual call additionally gets its own
// request ID, sent in the X-Request-ID header.
package trace

import (
	"context"

	"github.com/google/uuid"
)

type contextKey string

const (
	runIDKey contextKey = "run_id"

	// HeaderXRequestID is the header name used for per-call request tracing
	HeaderXRequestID = "X-Request-ID"
	// HeaderXRunID groups all calls of one provisioning run
	HeaderXRunID = "X-Lab-Run-ID"
)

// WithRunID attaches a run ID to the context
func WithRunID(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, runIDKey, runID)
}

// RunIDFromContext returns the run ID from context if present
func RunIDFromContext(ctx context.Context) (string, bool) {
	if id, ok := ctx.Value(runIDKey).(string); ok && id != "" {
		return id, true
	}
	return "", false
}

// EnsureRunID returns ctx unchanged when it already has a run ID, otherwise
// a derived context carrying a fresh one.
func EnsureRunID(ctx context.Context) (context.Context, string) {
	if id, ok := RunIDFromContext(ctx); ok {
		return ctx, id
	}
	id := uuid.NewString()
	return WithRunID(ctx, id), id
}

// NewRequestID generates an ID for a single outbound call
func NewRequestID() string {
	return uuid.NewString()
}
