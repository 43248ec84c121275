package testutil

import (
	"context"
	"time"

	id "dossier/pkg/domain"
	"dossier/pkg/requestcontext"

	"github.com/google/uuid"
)

// FixedTime is the clock used by service and aggregate tests.
var FixedTime = time.Date(2025, 3, 14, 10, 0, 0, 0, time.UTC)

// NewActor builds an actor with a fresh ID.
func NewActor(name string, role id.Role) id.Actor {
	return id.Actor{ID: id.UserID(uuid.New()), Name: name, Role: role}
}

// ActorContext returns a context carrying actor, a request ID and FixedTime.
func ActorContext(actor id.Actor) context.Context {
	ctx := requestcontext.WithActor(context.Background(), actor)
	ctx = requestcontext.WithRequestID(ctx, "test-"+actor.Role.String())
	return requestcontext.WithTime(ctx, FixedTime)
}
