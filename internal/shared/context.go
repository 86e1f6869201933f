package shared

import "context"

// Actor identifies the authenticated caller for a request.
type Actor struct {
	UserID   int64
	Name     string
	Role     Role
	Stations []int64
}

// CanAccessStation reports whether the actor is scoped to the station.
// An empty scope means all stations.
func (a *Actor) CanAccessStation(stationID int64) bool {
	if a == nil {
		return false
	}
	if len(a.Stations) == 0 {
		return true
	}
	for _, id := range a.Stations {
		if id == stationID {
			return true
		}
	}
	return false
}

type actorContextKey struct{}

// ContextWithActor stores the resolved actor in context.
func ContextWithActor(ctx context.Context, actor *Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

// ActorFromContext extracts the actor from context, nil when absent.
func ActorFromContext(ctx context.Context) *Actor {
	actor, _ := ctx.Value(actorContextKey{}).(*Actor)
	return actor
}
