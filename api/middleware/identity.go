package middleware

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/jemo-app/jemo-backend/pkg/enums"
	pkgerrors "github.com/jemo-app/jemo-backend/pkg/errors"
)

// Authentication lives at the gateway. The API trusts the identity headers
// it injects and only parses them here.
const (
	userIDHeader    = "X-User-Id"
	actorTypeHeader = "X-Actor-Type"
)

type contextKey string

const (
	ctxUserID    contextKey = "user_id"
	ctxActorType contextKey = "actor_type"
)

// Identity copies the gateway identity headers into the request context.
// Routes that need a caller use RequireIdentity on top of this.
func Identity() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			if raw := r.Header.Get(userIDHeader); raw != "" {
				if id, err := uuid.Parse(raw); err == nil {
					ctx = context.WithValue(ctx, ctxUserID, id)
				}
			}
			if raw := r.Header.Get(actorTypeHeader); raw != "" {
				if actor, err := enums.ParseActorType(raw); err == nil {
					ctx = context.WithValue(ctx, ctxActorType, actor)
				}
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// UserIDFromContext returns the calling user's id, if the gateway sent one.
func UserIDFromContext(ctx context.Context) (uuid.UUID, bool) {
	id, ok := ctx.Value(ctxUserID).(uuid.UUID)
	return id, ok
}

// ActorTypeFromContext returns the caller's actor type, if the gateway sent one.
func ActorTypeFromContext(ctx context.Context) (enums.ActorType, bool) {
	actor, ok := ctx.Value(ctxActorType).(enums.ActorType)
	return actor, ok
}

// RequireIdentity resolves the calling user or fails with UNAUTHORIZED.
func RequireIdentity(ctx context.Context) (uuid.UUID, error) {
	id, ok := UserIDFromContext(ctx)
	if !ok {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "caller identity required")
	}
	return id, nil
}
