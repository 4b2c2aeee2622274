package controllers

import (
	"net/http"

	"github.com/angelmondragon/storefront/api/responses"
	"github.com/angelmondragon/storefront/api/validators"
	"github.com/angelmondragon/storefront/internal/checkout"
	"github.com/angelmondragon/storefront/internal/session"
	"github.com/angelmondragon/storefront/pkg/logger"
)

type selectPaymentRequest struct {
	PaymentMethod string `json:"payment_method" validate:"notblank"`
}

// CheckoutBegin starts a checkout from the current cart, replacing any
// checkout already in progress.
func CheckoutBegin(sessions Sessions, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		client, ok := openSession(w, r, sessions, logg)
		if !ok {
			return
		}
		flow, err := client.BeginCheckout(r.Context())
		if err != nil {
			fail(w, r, sessions, logg, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, newCheckoutResponse(flow))
	}
}

// CheckoutGet returns the checkout in progress.
func CheckoutGet(sessions Sessions, logg *logger.Logger) http.HandlerFunc {
	return withCheckout(sessions, logg, func(_ *http.Request, _ *checkout.Flow) error {
		return nil
	})
}

// CheckoutReview recaptures the cart into the checkout.
func CheckoutReview(sessions Sessions, logg *logger.Logger) http.HandlerFunc {
	return withCheckout(sessions, logg, func(r *http.Request, flow *checkout.Flow) error {
		_, err := flow.Review(r.Context())
		return err
	})
}

// CheckoutProceed moves a reviewed checkout to payment selection.
func CheckoutProceed(sessions Sessions, logg *logger.Logger) http.HandlerFunc {
	return withCheckout(sessions, logg, func(r *http.Request, flow *checkout.Flow) error {
		_, err := flow.ProceedToPayment(r.Context())
		return err
	})
}

// CheckoutSelectPayment records the buyer's payment method.
func CheckoutSelectPayment(sessions Sessions, logg *logger.Logger) http.HandlerFunc {
	return withCheckout(sessions, logg, func(r *http.Request, flow *checkout.Flow) error {
		var payload selectPaymentRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			return err
		}
		_, err := flow.SelectPayment(payload.PaymentMethod)
		return err
	})
}

// CheckoutConfirm places the order. Repeated calls return the same order.
func CheckoutConfirm(sessions Sessions, logg *logger.Logger) http.HandlerFunc {
	return withCheckout(sessions, logg, func(r *http.Request, flow *checkout.Flow) error {
		_, err := flow.Confirm(r.Context())
		return err
	})
}

// CheckoutAbandon drops the checkout in progress. An order submission still
// in flight is reported with SUBMISSION_IN_FLIGHT.
func CheckoutAbandon(sessions Sessions, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		client, ok := openSession(w, r, sessions, logg)
		if !ok {
			return
		}
		if err := client.AbandonCheckout(); err != nil {
			fail(w, r, sessions, logg, err)
			return
		}
		responses.WriteNoContent(w)
	}
}

func withCheckout(sessions Sessions, logg *logger.Logger, step func(*http.Request, *checkout.Flow) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		client, ok := openSession(w, r, sessions, logg)
		if !ok {
			return
		}
		flow, err := client.Checkout()
		if err != nil {
			fail(w, r, sessions, logg, err)
			return
		}
		if err := step(r, flow); err != nil {
			fail(w, r, sessions, logg, err)
			return
		}
		responses.WriteSuccess(w, newCheckoutResponse(flow))
	}
}

var _ Sessions = (*session.Registry)(nil)
