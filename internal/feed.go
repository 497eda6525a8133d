// Package feed defines domain types and interfaces for the feed cache.
// This package has no project imports -- it is the dependency root.
package feed

import (
	"context"

	"github.com/google/uuid"
)

// Image is a single feed item as produced by the remote feed API.
// Description and Location are optional.
type Image struct {
	ID          uuid.UUID `json:"id"`
	Description *string   `json:"description,omitempty"`
	Location    *string   `json:"location,omitempty"`
	URL         string    `json:"url"`
}

// Loader delivers a feed. Implemented by the remote client and the cache service.
type Loader interface {
	Load(ctx context.Context) ([]Image, error)
}

// --- Context helpers ---

type ctxKey int

const requestIDKey ctxKey = iota

// ContextWithRequestID returns a copy of ctx carrying the request ID.
func ContextWithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// RequestIDFromContext extracts the request ID, or "" if absent.
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}
