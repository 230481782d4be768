package shared

import "context"

type contextKey string

const actorKey contextKey = "trackline.actor"

// Actor identifies the authenticated caller of a request.
type Actor struct {
	ID       int64
	Elevated bool
}

// ContextWithActor stores the actor in the context.
func ContextWithActor(ctx context.Context, actor Actor) context.Context {
	return context.WithValue(ctx, actorKey, actor)
}

// ActorFromContext returns the actor or the zero value.
func ActorFromContext(ctx context.Context) Actor {
	if actor, ok := ctx.Value(actorKey).(Actor); ok {
		return actor
	}
	return Actor{}
}
