package shared

import "context"

// Actor is the authenticated caller of a request.
type Actor struct {
	ID   int64
	Role Role
}

// IsZero reports whether no actor was resolved.
func (a Actor) IsZero() bool {
	return a.ID == 0
}

type actorContextKey struct{}

// ContextWithActor stores the actor in context.
func ContextWithActor(ctx context.Context, actor Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

// ActorFromContext extracts the actor from context.
func ActorFromContext(ctx context.Context) (Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(Actor)
	if !ok || actor.IsZero() {
		return Actor{}, false
	}
	return actor, true
}
