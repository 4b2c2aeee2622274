package controllers

import (
	"net/http"

	"github.com/angelmondragon/storefront/api/middleware"
	"github.com/angelmondragon/storefront/api/responses"
	pkgerrors "github.com/angelmondragon/storefront/pkg/errors"
	"github.com/angelmondragon/storefront/pkg/logger"
)

type sessionResponse struct {
	UserID string       `json:"user_id"`
	Cart   cartResponse `json:"cart"`
}

// SessionOpen loads the caller's cart and starts streaming-capable state.
func SessionOpen(sessions Sessions, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		client, ok := openSession(w, r, sessions, logg)
		if !ok {
			return
		}
		if _, err := client.Refresh(r.Context()); err != nil {
			fail(w, r, sessions, logg, err)
			return
		}
		summary, err := client.Summary(r.Context())
		if err != nil {
			fail(w, r, sessions, logg, err)
			return
		}
		responses.WriteSuccess(w, sessionResponse{UserID: client.UserID(), Cart: newCartResponse(summary)})
	}
}

// SessionClose tears the caller's session down on logout.
func SessionClose(sessions Sessions, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := middleware.UserIDFromContext(r.Context())
		if userID == "" {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "user context missing"))
			return
		}
		sessions.Close(userID)
		responses.WriteNoContent(w)
	}
}
