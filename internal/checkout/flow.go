package checkout

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/angelmondragon/storefront/internal/cart"
	"github.com/angelmondragon/storefront/internal/orders"
	"github.com/angelmondragon/storefront/internal/products"
	"github.com/angelmondragon/storefront/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront/pkg/errors"
	"github.com/angelmondragon/storefront/pkg/logger"
	"github.com/angelmondragon/storefront/pkg/metrics"
	"github.com/google/uuid"
)

// CartSource is the cart view a checkout captures from and clears on success.
type CartSource interface {
	UserID() string
	Current() (cart.Cart, bool)
	Load(ctx context.Context) (cart.Cart, error)
	Clear(ctx context.Context) (cart.Cart, error)
}

// Resolver hydrates the captured cart.
type Resolver interface {
	Resolve(ctx context.Context, ids []string) (products.Resolution, error)
	Forget(productIDs ...string)
}

// Submitter places the order.
type Submitter interface {
	Submit(ctx context.Context, in orders.SubmitInput) (orders.Order, error)
}

// Session is a read-only copy of a checkout's state.
type Session struct {
	ID            string               `json:"id"`
	BuyerID       string               `json:"buyer_id"`
	State         enums.CheckoutState  `json:"state"`
	PaymentMethod *enums.PaymentMethod `json:"payment_method,omitempty"`
	CartSnapshot  cart.Cart            `json:"cart_snapshot"`
	Resolved      products.Resolution  `json:"-"`
	Order         *orders.Order        `json:"order,omitempty"`
	StartedAt     time.Time            `json:"started_at"`
}

type submission struct {
	done  chan struct{}
	order orders.Order
	err   error
}

// Flow drives one checkout session: reviewing, then selecting_payment, then
// confirmed. The cart snapshot is only (re)captured on Begin and Review.
type Flow struct {
	store     CartSource
	resolver  Resolver
	submitter Submitter
	metrics   *metrics.Storefront
	logg      *logger.Logger
	id        string

	mu         sync.Mutex
	session    Session
	abandoned  bool
	submission *submission
}

// Option configures optional flow collaborators.
type Option func(*Flow)

func WithMetrics(m *metrics.Storefront) Option {
	return func(f *Flow) {
		f.metrics = m
	}
}

func WithLogger(logg *logger.Logger) Option {
	return func(f *Flow) {
		if logg != nil {
			f.logg = logg
		}
	}
}

// Begin captures the current cart and opens a session in reviewing. An empty
// cart opens nothing.
func Begin(ctx context.Context, store CartSource, resolver Resolver, submitter Submitter, opts ...Option) (*Flow, error) {
	if store == nil {
		return nil, fmt.Errorf("cart source required")
	}
	if resolver == nil {
		return nil, fmt.Errorf("product resolver required")
	}
	if submitter == nil {
		return nil, fmt.Errorf("order submitter required")
	}
	f := &Flow{
		store:     store,
		resolver:  resolver,
		submitter: submitter,
		logg:      logger.Nop(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(f)
		}
	}

	snapshot, resolved, err := f.capture(ctx, nil)
	if err != nil {
		f.metrics.IncTransition(string(enums.CheckoutStateReviewing), string(pkgerrors.CodeOf(err)))
		return nil, err
	}
	f.id = uuid.NewString()
	f.session = Session{
		ID:           f.id,
		BuyerID:      store.UserID(),
		State:        enums.CheckoutStateReviewing,
		CartSnapshot: snapshot,
		Resolved:     resolved,
		StartedAt:    time.Now().UTC(),
	}
	f.metrics.IncTransition(string(enums.CheckoutStateReviewing), "")
	f.logg.Info(f.logCtx(ctx), "checkout.begin")
	return f, nil
}

// Review re-enters reviewing with a fresh snapshot. Tombstoned products are
// re-resolved. A selected payment method is kept.
func (f *Flow) Review(ctx context.Context) (Session, error) {
	f.mu.Lock()
	if err := f.guard(enums.CheckoutStateReviewing); err != nil {
		f.mu.Unlock()
		return Session{}, f.refuse(enums.CheckoutStateReviewing, err)
	}
	stale := f.session.Resolved.Tombstones()
	f.mu.Unlock()

	snapshot, resolved, err := f.capture(ctx, stale)
	if err != nil {
		return Session{}, f.refuse(enums.CheckoutStateReviewing, err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.guard(enums.CheckoutStateReviewing); err != nil {
		return Session{}, f.refuse(enums.CheckoutStateReviewing, err)
	}
	f.session.CartSnapshot = snapshot
	f.session.Resolved = resolved
	f.session.State = enums.CheckoutStateReviewing
	f.metrics.IncTransition(string(enums.CheckoutStateReviewing), "")
	return f.copySession(), nil
}

// ProceedToPayment moves to selecting_payment once the snapshot is non-empty
// and every product resolved. A refusal leaves the session untouched.
func (f *Flow) ProceedToPayment(ctx context.Context) (Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.guard(enums.CheckoutStateSelectingPayment); err != nil {
		return Session{}, f.refuse(enums.CheckoutStateSelectingPayment, err)
	}
	if f.session.CartSnapshot.IsEmpty() {
		return Session{}, f.refuse(enums.CheckoutStateSelectingPayment, pkgerrors.New(pkgerrors.CodeEmptyCart, "cart is empty"))
	}
	if missing := unavailable(f.session.CartSnapshot, f.session.Resolved); len(missing) > 0 {
		err := pkgerrors.New(pkgerrors.CodeProductUnavailable, "some products are unavailable").
			WithDetails(map[string]any{"product_ids": missing})
		return Session{}, f.refuse(enums.CheckoutStateSelectingPayment, err)
	}
	f.session.State = enums.CheckoutStateSelectingPayment
	f.metrics.IncTransition(string(enums.CheckoutStateSelectingPayment), "")
	f.logg.Info(f.logCtx(ctx), "checkout.selecting_payment")
	return f.copySession(), nil
}

// SelectPayment records the payment method. Only valid in selecting_payment.
func (f *Flow) SelectPayment(method string) (Session, error) {
	parsed, err := enums.ParsePaymentMethod(method)
	if err != nil {
		return Session{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid payment method").
			WithDetails(map[string]any{"payment_method": method, "allowed": enums.PaymentMethods()})
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.usable(); err != nil {
		return Session{}, err
	}
	if f.session.State != enums.CheckoutStateSelectingPayment {
		return Session{}, stateConflict(f.session.State, enums.CheckoutStateSelectingPayment)
	}
	f.session.PaymentMethod = &parsed
	return f.copySession(), nil
}

// Confirm submits the order. Concurrent calls join the submission already in
// flight and receive its result. A failed submission stays in
// selecting_payment so the buyer can retry.
func (f *Flow) Confirm(ctx context.Context) (orders.Order, error) {
	f.mu.Lock()
	if f.abandoned {
		f.mu.Unlock()
		return orders.Order{}, errAbandoned()
	}
	if f.session.State == enums.CheckoutStateConfirmed && f.session.Order != nil {
		order := *f.session.Order
		f.mu.Unlock()
		return order, nil
	}
	if sub := f.submission; sub != nil {
		f.mu.Unlock()
		return sub.wait(ctx)
	}
	if !f.session.State.CanTransitionTo(enums.CheckoutStateConfirmed) {
		state := f.session.State
		f.mu.Unlock()
		return orders.Order{}, f.refuse(enums.CheckoutStateConfirmed, stateConflict(state, enums.CheckoutStateConfirmed))
	}
	if f.session.PaymentMethod == nil {
		f.mu.Unlock()
		return orders.Order{}, f.refuse(enums.CheckoutStateConfirmed, pkgerrors.New(pkgerrors.CodeValidation, "payment method is required"))
	}
	sub := &submission{done: make(chan struct{})}
	f.submission = sub
	input := orders.SubmitInput{
		SessionID:     f.session.ID,
		BuyerID:       f.session.BuyerID,
		Cart:          f.session.CartSnapshot.Clone(),
		Resolved:      f.session.Resolved.Clone(),
		PaymentMethod: *f.session.PaymentMethod,
		Clearer:       f.store,
	}
	f.mu.Unlock()

	order, err := f.submitter.Submit(ctx, input)

	f.mu.Lock()
	sub.order, sub.err = order, err
	f.submission = nil
	if !f.abandoned {
		if err == nil {
			f.session.State = enums.CheckoutStateConfirmed
			f.session.Order = &order
		}
	}
	abandoned := f.abandoned
	close(sub.done)
	f.mu.Unlock()

	logCtx := f.logCtx(ctx)
	switch {
	case err != nil:
		f.metrics.IncTransition(string(enums.CheckoutStateConfirmed), string(pkgerrors.CodeOf(err)))
		f.logg.Warn(f.logg.WithField(logCtx, "error", err.Error()), "checkout.confirm_failed")
	case abandoned:
		f.logg.Warn(f.logg.WithField(logCtx, "order_id", order.ID), "checkout.confirmed_after_abandon")
	default:
		f.metrics.IncTransition(string(enums.CheckoutStateConfirmed), "")
		f.logg.Info(f.logg.WithField(logCtx, "order_id", order.ID), "checkout.confirmed")
	}
	return order, err
}

// Abandon tears the session down. A submission still in flight completes on
// the backend but no longer changes this session; Abandon reports it with
// SUBMISSION_IN_FLIGHT so the caller knows an order may still be placed.
func (f *Flow) Abandon() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.abandoned = true
	if f.submission != nil {
		return pkgerrors.New(pkgerrors.CodeSubmissionInFlight, "checkout abandoned during order submission").
			WithDetails(map[string]any{"checkout_session_id": f.id})
	}
	return nil
}

// Abandoned reports whether Abandon was called.
func (f *Flow) Abandoned() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.abandoned
}

// Session returns a copy of the current session.
func (f *Flow) Session() Session {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.copySession()
}

// Summary prices the captured snapshot.
func (f *Flow) Summary() cart.Summary {
	f.mu.Lock()
	defer f.mu.Unlock()
	return cart.Hydrate(f.session.CartSnapshot, f.session.Resolved)
}

// capture reads the acknowledged cart and resolves its products. stale ids
// are forgotten first so they are fetched again.
func (f *Flow) capture(ctx context.Context, stale []string) (cart.Cart, products.Resolution, error) {
	snapshot, ok := f.store.Current()
	if !ok {
		loaded, err := f.store.Load(ctx)
		if err != nil {
			return cart.Cart{}, nil, err
		}
		snapshot = loaded
	}
	if snapshot.IsEmpty() {
		return cart.Cart{}, nil, pkgerrors.New(pkgerrors.CodeEmptyCart, "cart is empty")
	}
	if len(stale) > 0 {
		f.resolver.Forget(stale...)
	}
	resolved, err := f.resolver.Resolve(ctx, snapshot.ProductIDs())
	if err != nil {
		return cart.Cart{}, nil, err
	}
	return snapshot.Clone(), resolved.Clone(), nil
}

// guard checks that the session may move to next. Callers hold f.mu.
func (f *Flow) guard(next enums.CheckoutState) error {
	if err := f.usable(); err != nil {
		return err
	}
	if !f.session.State.CanTransitionTo(next) {
		return stateConflict(f.session.State, next)
	}
	return nil
}

func (f *Flow) usable() error {
	if f.abandoned {
		return errAbandoned()
	}
	if f.submission != nil {
		return pkgerrors.New(pkgerrors.CodeSubmissionInFlight, "order submission in progress")
	}
	return nil
}

func (f *Flow) refuse(to enums.CheckoutState, err error) error {
	f.metrics.IncTransition(string(to), string(pkgerrors.CodeOf(err)))
	return err
}

func (f *Flow) copySession() Session {
	out := f.session
	out.CartSnapshot = f.session.CartSnapshot.Clone()
	out.Resolved = f.session.Resolved.Clone()
	if f.session.PaymentMethod != nil {
		method := *f.session.PaymentMethod
		out.PaymentMethod = &method
	}
	if f.session.Order != nil {
		order := *f.session.Order
		out.Order = &order
	}
	return out
}

func (f *Flow) logCtx(ctx context.Context) context.Context {
	return f.logg.WithCheckoutSession(ctx, f.id)
}

func (s *submission) wait(ctx context.Context) (orders.Order, error) {
	select {
	case <-s.done:
		return s.order, s.err
	case <-ctx.Done():
		// The submission keeps running; a later Confirm joins it.
		return orders.Order{}, pkgerrors.Wrap(pkgerrors.CodeSubmissionInFlight, ctx.Err(), "stopped waiting for order submission")
	}
}

func unavailable(c cart.Cart, res products.Resolution) []string {
	var ids []string
	for _, line := range c.Lines {
		entry, ok := res[line.ProductID]
		if !ok || entry.Tombstone {
			ids = append(ids, line.ProductID)
		}
	}
	return ids
}

func stateConflict(from, to enums.CheckoutState) error {
	return pkgerrors.New(pkgerrors.CodeStateConflict, "checkout transition not allowed").
		WithDetails(map[string]any{"from": string(from), "to": string(to)})
}

func errAbandoned() error {
	return pkgerrors.New(pkgerrors.CodeSessionClosed, "checkout session was abandoned")
}
