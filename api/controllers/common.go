package controllers

import (
	"context"
	"net/http"

	"github.com/angelmondragon/storefront/api/middleware"
	"github.com/angelmondragon/storefront/api/responses"
	"github.com/angelmondragon/storefront/internal/session"
	pkgerrors "github.com/angelmondragon/storefront/pkg/errors"
	"github.com/angelmondragon/storefront/pkg/logger"
)

// Sessions is the registry surface the handlers need.
type Sessions interface {
	Open(ctx context.Context, userID string) (*session.Client, error)
	Close(userID string)
	Observe(ctx context.Context, userID string, err error)
}

// openSession returns the caller's session, opening it on first use so a
// restarted server picks up where the client left off.
func openSession(w http.ResponseWriter, r *http.Request, sessions Sessions, logg *logger.Logger) (*session.Client, bool) {
	if sessions == nil {
		responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "session registry unavailable"))
		return nil, false
	}
	userID := middleware.UserIDFromContext(r.Context())
	if userID == "" {
		responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "user context missing"))
		return nil, false
	}
	client, err := sessions.Open(r.Context(), userID)
	if err != nil {
		fail(w, r, sessions, logg, err)
		return nil, false
	}
	return client, true
}

// fail reports err to the registry before writing it, so an expired backend
// token tears the session down.
func fail(w http.ResponseWriter, r *http.Request, sessions Sessions, logg *logger.Logger, err error) {
	if sessions != nil {
		sessions.Observe(r.Context(), middleware.UserIDFromContext(r.Context()), err)
	}
	responses.WriteError(r.Context(), logg, w, err)
}
