package controllers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/angelmondragon/storefront/api/responses"
	"github.com/angelmondragon/storefront/api/validators"
	"github.com/angelmondragon/storefront/internal/cart"
	"github.com/angelmondragon/storefront/internal/session"
	pkgerrors "github.com/angelmondragon/storefront/pkg/errors"
	"github.com/angelmondragon/storefront/pkg/logger"
	"github.com/angelmondragon/storefront/pkg/types"
)

const (
	addedNoticeMessage = "Added to cart"
	eventsKeepAlive    = 15 * time.Second
)

type addItemRequest struct {
	ProductID string `json:"product_id" validate:"notblank"`
	Quantity  int    `json:"quantity"`
}

// CartGet returns the priced cart with unavailable lines flagged.
func CartGet(sessions Sessions, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		client, ok := openSession(w, r, sessions, logg)
		if !ok {
			return
		}
		summary, err := client.Summary(r.Context())
		if err != nil {
			fail(w, r, sessions, logg, err)
			return
		}
		responses.WriteSuccess(w, newCartResponse(summary))
	}
}

// CartAddItem adds quantity units of a product and returns the priced cart
// with a notice the client dismisses on its own.
func CartAddItem(sessions Sessions, noticeTTL time.Duration, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var payload addItemRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		client, ok := openSession(w, r, sessions, logg)
		if !ok {
			return
		}
		if _, err := client.AddItem(r.Context(), payload.ProductID, payload.Quantity); err != nil {
			fail(w, r, sessions, logg, err)
			return
		}
		writeCart(w, r, sessions, client, logg, &types.Notice{
			Message:        addedNoticeMessage,
			DismissAfterMS: noticeTTL.Milliseconds(),
		})
	}
}

// CartIncrease adds one unit of an existing line.
func CartIncrease(sessions Sessions, logg *logger.Logger) http.HandlerFunc {
	return lineMutation(sessions, logg, func(r *http.Request, client *session.Client, productID string) (cart.Cart, error) {
		return client.Increase(r.Context(), productID)
	})
}

// CartDecrease removes one unit. Taking the last unit fails with
// CONFIRM_REMOVAL unless the request carries confirm=true, in which case the
// line is removed.
func CartDecrease(sessions Sessions, logg *logger.Logger) http.HandlerFunc {
	return lineMutation(sessions, logg, func(r *http.Request, client *session.Client, productID string) (cart.Cart, error) {
		if confirmed(r) {
			return client.DecreaseOrRemove(r.Context(), productID)
		}
		return client.Decrease(r.Context(), productID)
	})
}

// CartRemoveItem drops a line. Removing an absent line succeeds.
func CartRemoveItem(sessions Sessions, logg *logger.Logger) http.HandlerFunc {
	return lineMutation(sessions, logg, func(r *http.Request, client *session.Client, productID string) (cart.Cart, error) {
		return client.RemoveItem(r.Context(), productID)
	})
}

// CartEvents streams every accepted cart as server-sent events until the
// client disconnects or the session closes.
func CartEvents(sessions Sessions, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		flusher, ok := w.(http.Flusher)
		if !ok {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "streaming unsupported"))
			return
		}
		client, ok := openSession(w, r, sessions, logg)
		if !ok {
			return
		}

		updates, cancel := client.Subscribe()
		defer cancel()

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.WriteHeader(http.StatusOK)
		flusher.Flush()

		ticker := time.NewTicker(eventsKeepAlive)
		defer ticker.Stop()

		for {
			select {
			case <-r.Context().Done():
				return
			case <-ticker.C:
				if _, err := fmt.Fprint(w, ": keep-alive\n\n"); err != nil {
					return
				}
				flusher.Flush()
			case current, open := <-updates:
				if !open {
					_, _ = fmt.Fprint(w, "event: closed\ndata: {}\n\n")
					flusher.Flush()
					return
				}
				payload, err := json.Marshal(newCartEventResponse(current))
				if err != nil {
					if logg != nil {
						logg.Error(r.Context(), "cart.event_encode_failed", err)
					}
					continue
				}
				if _, err := fmt.Fprintf(w, "event: cart\ndata: %s\n\n", payload); err != nil {
					return
				}
				flusher.Flush()
			}
		}
	}
}

type lineMutationFunc func(r *http.Request, client *session.Client, productID string) (cart.Cart, error)

func lineMutation(sessions Sessions, logg *logger.Logger, mutate lineMutationFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		productID := chi.URLParam(r, "productID")
		client, ok := openSession(w, r, sessions, logg)
		if !ok {
			return
		}
		if _, err := mutate(r, client, productID); err != nil {
			fail(w, r, sessions, logg, err)
			return
		}
		writeCart(w, r, sessions, client, logg, nil)
	}
}

func writeCart(w http.ResponseWriter, r *http.Request, sessions Sessions, client *session.Client, logg *logger.Logger, notice *types.Notice) {
	summary, err := client.Summary(r.Context())
	if err != nil {
		fail(w, r, sessions, logg, err)
		return
	}
	responses.WriteSuccessNotice(w, http.StatusOK, newCartResponse(summary), notice)
}

func confirmed(r *http.Request) bool {
	ok, _ := strconv.ParseBool(r.URL.Query().Get("confirm"))
	return ok
}
