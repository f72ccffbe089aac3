package identity

import (
	"context"

	"github.com/google/uuid"
)

// Actor is the authenticated caller on whose behalf an operation runs.
// It is built by the auth middleware from verified token claims; services
// trust it for tenancy scoping and audit attribution.
type Actor struct {
	UserID         uuid.UUID
	OrganizationID uuid.UUID
	BranchID       *uuid.UUID

	CanPostTransactions    bool
	CanReverseTransactions bool
	CanManageAccounts      bool
}

type contextKey struct{}

// WithActor returns a context carrying the actor.
func WithActor(ctx context.Context, actor Actor) context.Context {
	return context.WithValue(ctx, contextKey{}, actor)
}

// FromContext returns the actor attached to the context, if any.
func FromContext(ctx context.Context) (Actor, bool) {
	actor, ok := ctx.Value(contextKey{}).(Actor)
	return actor, ok
}
