package orders

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/angelmondragon/storefront/internal/cart"
	"github.com/angelmondragon/storefront/internal/products"
	"github.com/angelmondragon/storefront/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront/pkg/errors"
	"github.com/angelmondragon/storefront/pkg/logger"
	"github.com/angelmondragon/storefront/pkg/metrics"
	"github.com/google/uuid"
)

const defaultLockTTL = 2 * time.Minute

// Creator places orders on the commerce backend. idempotencyKey identifies
// the checkout session so a retried request never creates a second order.
type Creator interface {
	CreateOrder(ctx context.Context, req Request, idempotencyKey string) (Order, error)
}

// CartClearer empties the buyer's cart once the order exists.
type CartClearer interface {
	Clear(ctx context.Context) (cart.Cart, error)
}

// Locker guards a submission across storefront replicas.
type Locker interface {
	SubmissionLockKey(sessionID string) string
	AcquireLock(ctx context.Context, key, owner string, ttl time.Duration) (bool, error)
	ReleaseLock(ctx context.Context, key, owner string) error
}

// SubmitInput is everything a checkout session hands over at confirmation.
type SubmitInput struct {
	SessionID     string
	BuyerID       string
	Cart          cart.Cart
	Resolved      products.Resolution
	PaymentMethod enums.PaymentMethod
	Clearer       CartClearer
}

// Submitter turns a confirmed checkout into an order.
type Submitter struct {
	creator  Creator
	receipts ReceiptRepository
	locker   Locker
	lockTTL  time.Duration
	metrics  *metrics.Storefront
	logg     *logger.Logger

	mu       sync.Mutex
	inflight map[string]struct{}
}

// SubmitterOption configures optional collaborators.
type SubmitterOption func(*Submitter)

func WithReceipts(repo ReceiptRepository) SubmitterOption {
	return func(s *Submitter) {
		s.receipts = repo
	}
}

func WithLocker(locker Locker, ttl time.Duration) SubmitterOption {
	return func(s *Submitter) {
		s.locker = locker
		if ttl > 0 {
			s.lockTTL = ttl
		}
	}
}

func WithMetrics(m *metrics.Storefront) SubmitterOption {
	return func(s *Submitter) {
		s.metrics = m
	}
}

func WithLogger(logg *logger.Logger) SubmitterOption {
	return func(s *Submitter) {
		if logg != nil {
			s.logg = logg
		}
	}
}

// NewSubmitter builds a submitter over creator.
func NewSubmitter(creator Creator, opts ...SubmitterOption) (*Submitter, error) {
	if creator == nil {
		return nil, fmt.Errorf("order creator required")
	}
	s := &Submitter{
		creator:  creator,
		lockTTL:  defaultLockTTL,
		logg:     logger.Nop(),
		inflight: map[string]struct{}{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s, nil
}

// Submit validates the snapshot, places the order and then clears the cart.
// Validation failures abort before any network call. Clearing the cart and
// recording the receipt are best-effort once the order exists.
func (s *Submitter) Submit(ctx context.Context, in SubmitInput) (Order, error) {
	order, err := s.submit(ctx, in)
	outcome := ""
	if err != nil {
		outcome = string(pkgerrors.CodeOf(err))
	}
	s.metrics.IncSubmission(outcome)
	return order, err
}

func (s *Submitter) submit(ctx context.Context, in SubmitInput) (Order, error) {
	if err := validateInput(in); err != nil {
		return Order{}, err
	}
	items, total, err := BuildItems(in.Cart, in.Resolved)
	if err != nil {
		return Order{}, err
	}

	release, err := s.begin(in.SessionID)
	if err != nil {
		return Order{}, err
	}
	defer release()

	ctx = s.logg.WithFields(ctx, map[string]any{
		"checkout_session_id": in.SessionID,
		"user_id":             in.BuyerID,
	})

	if existing, ok := s.existingReceipt(ctx, in.SessionID); ok {
		s.logg.Info(ctx, "orders.submit_replayed")
		return existing, nil
	}

	unlock, err := s.lock(ctx, in.SessionID)
	if err != nil {
		return Order{}, err
	}
	defer unlock()

	req := Request{
		BuyerID:       in.BuyerID,
		Items:         items,
		TotalCents:    total,
		PaymentMethod: in.PaymentMethod,
	}
	placed, err := s.creator.CreateOrder(ctx, req, in.SessionID)
	if err != nil {
		s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "orders.create_failed")
		return Order{}, err
	}
	order := completeOrder(placed, req)
	ctx = s.logg.WithField(ctx, "order_id", order.ID)
	s.logg.Info(ctx, "orders.created")

	if in.Clearer != nil {
		if _, err := in.Clearer.Clear(ctx); err != nil {
			s.metrics.IncClearFailure()
			s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "orders.cart_clear_failed")
		}
	}

	if s.receipts != nil {
		if err := s.receipts.Create(ctx, receiptFromOrder(in.SessionID, order)); err != nil {
			s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "orders.receipt_save_failed")
		}
	}
	return order, nil
}

func validateInput(in SubmitInput) error {
	if strings.TrimSpace(in.SessionID) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "checkout session id is required")
	}
	if strings.TrimSpace(in.BuyerID) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "buyer id is required")
	}
	if !in.PaymentMethod.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, "payment method is invalid").
			WithDetails(map[string]any{"payment_method": string(in.PaymentMethod)})
	}
	return nil
}

// begin marks sessionID as submitting in this process.
func (s *Submitter) begin(sessionID string) (func(), error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, busy := s.inflight[sessionID]; busy {
		return nil, submissionInFlight(sessionID)
	}
	s.inflight[sessionID] = struct{}{}
	return func() {
		s.mu.Lock()
		delete(s.inflight, sessionID)
		s.mu.Unlock()
	}, nil
}

// lock takes the cross-replica guard. A failing lock store degrades to the
// in-process guard only.
func (s *Submitter) lock(ctx context.Context, sessionID string) (func(), error) {
	if s.locker == nil {
		return func() {}, nil
	}
	key := s.locker.SubmissionLockKey(sessionID)
	owner := uuid.NewString()
	acquired, err := s.locker.AcquireLock(ctx, key, owner, s.lockTTL)
	if err != nil {
		s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "orders.submit_lock_unavailable")
		return func() {}, nil
	}
	if !acquired {
		return nil, submissionInFlight(sessionID)
	}
	return func() {
		if err := s.locker.ReleaseLock(context.WithoutCancel(ctx), key, owner); err != nil {
			s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "orders.submit_lock_release_failed")
		}
	}, nil
}

func (s *Submitter) existingReceipt(ctx context.Context, sessionID string) (Order, bool) {
	if s.receipts == nil {
		return Order{}, false
	}
	receipt, err := s.receipts.FindBySessionID(ctx, sessionID)
	if err != nil {
		s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "orders.receipt_lookup_failed")
		return Order{}, false
	}
	if receipt == nil {
		return Order{}, false
	}
	return OrderFromReceipt(receipt), true
}

// completeOrder fills what the backend left out of its acknowledgement with
// the request that produced it.
func completeOrder(placed Order, req Request) Order {
	order := placed
	if order.BuyerID == "" {
		order.BuyerID = req.BuyerID
	}
	if len(order.Items) == 0 {
		order.Items = append([]Item(nil), req.Items...)
	}
	if order.TotalCents == 0 {
		order.TotalCents = req.TotalCents
	}
	if order.PaymentMethod == "" {
		order.PaymentMethod = req.PaymentMethod
	}
	if order.CreatedAt.IsZero() {
		order.CreatedAt = time.Now().UTC()
	}
	return order
}

func submissionInFlight(sessionID string) error {
	return pkgerrors.New(pkgerrors.CodeSubmissionInFlight, "order submission already in progress").
		WithDetails(map[string]any{"checkout_session_id": sessionID})
}
