// Package requestcontext carries the per-request facts every profile command
// needs: who is acting, which request this is, and the instant the request
// started. Middleware writes them; services and the activity publisher read
// them without importing net/http.
package requestcontext

import (
	"context"
	"time"

	id "dossier/pkg/domain"
)

type key int

const (
	actorKey key = iota
	requestIDKey
	timeKey
)

// Actor returns the resolved actor and false when the request carried none.
func Actor(ctx context.Context) (id.Actor, bool) {
	actor, ok := ctx.Value(actorKey).(id.Actor)
	return actor, ok
}

func WithActor(ctx context.Context, actor id.Actor) context.Context {
	return context.WithValue(ctx, actorKey, actor)
}

// RequestID is copied onto activity entries; "" outside a request.
func RequestID(ctx context.Context) string {
	reqID, _ := ctx.Value(requestIDKey).(string)
	return reqID
}

func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, requestID)
}

// Now returns the pinned request time, or the wall clock in UTC when nothing
// pinned one (seeding, background work).
func Now(ctx context.Context) time.Time {
	if t, ok := ctx.Value(timeKey).(time.Time); ok {
		return t
	}
	return time.Now().UTC()
}

// WithTime pins now for every timestamp written under ctx.
func WithTime(ctx context.Context, now time.Time) context.Context {
	return context.WithValue(ctx, timeKey, now)
}
