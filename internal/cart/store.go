package cart

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/angelmondragon/storefront/internal/products"
	pkgerrors "github.com/angelmondragon/storefront/pkg/errors"
	"github.com/angelmondragon/storefront/pkg/logger"
	"github.com/angelmondragon/storefront/pkg/metrics"
	"golang.org/x/sync/singleflight"
)

// Remote is the commerce backend's cart surface.
type Remote interface {
	GetCart(ctx context.Context, userID string) (Cart, error)
	CreateCart(ctx context.Context, userID string) (Cart, error)
	AddItem(ctx context.Context, userID, productID string, quantity int) (Cart, error)
	IncreaseItem(ctx context.Context, userID, cartID, productID string) (Cart, error)
	DecreaseItem(ctx context.Context, userID, cartID, productID string) (Cart, error)
	RemoveItem(ctx context.Context, userID, cartID, productID string) (Cart, error)
	ClearCart(ctx context.Context, userID string) (Cart, error)
}

// ProductLookup fetches the snapshot a mutation is validated against. It must
// not answer from a cache: stock is checked against the backend each time.
type ProductLookup interface {
	Refresh(ctx context.Context, productID string) (products.Entry, error)
}

// Store is the client-side view of one user's remote cart. A server response
// replaces the current value only when no other cart request overlapped it.
// An overlapped response may miss a concurrent change, so the last request
// out refetches the cart instead. Local deltas are never merged.
type Store struct {
	userID   string
	remote   Remote
	products ProductLookup
	locks    *lineLocks
	metrics  *metrics.Storefront
	logg     *logger.Logger

	loads singleflight.Group

	mu      sync.RWMutex
	current Cart
	loaded  bool
	closed  bool
	subs    map[int]chan Cart
	nextSub int

	inflight int
	epoch    uint64
	dirty    bool
}

// flight is one request to the cart backend. crowded is set when another
// request was already in flight when it started.
type flight struct {
	start   uint64
	crowded bool
}

// StoreOption configures optional store collaborators.
type StoreOption func(*Store)

func WithMetrics(m *metrics.Storefront) StoreOption {
	return func(s *Store) {
		s.metrics = m
	}
}

func WithLogger(logg *logger.Logger) StoreOption {
	return func(s *Store) {
		if logg != nil {
			s.logg = logg
		}
	}
}

// NewStore builds the cart view for userID.
func NewStore(userID string, remote Remote, lookup ProductLookup, opts ...StoreOption) (*Store, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, fmt.Errorf("user id required")
	}
	if remote == nil {
		return nil, fmt.Errorf("cart remote required")
	}
	if lookup == nil {
		return nil, fmt.Errorf("product lookup required")
	}
	s := &Store{
		userID:   userID,
		remote:   remote,
		products: lookup,
		locks:    newLineLocks(),
		logg:     logger.Nop(),
		subs:     map[int]chan Cart{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s, nil
}

// UserID returns the cart owner.
func (s *Store) UserID() string {
	return s.userID
}

// Load fetches the remote cart, creating it when the user has none yet.
// Concurrent calls share one request.
func (s *Store) Load(ctx context.Context) (Cart, error) {
	if s.isClosed() {
		return Cart{}, errClosed()
	}
	v, err, _ := s.loads.Do("load", func() (any, error) {
		return s.load(ctx)
	})
	if err != nil {
		return Cart{}, err
	}
	return v.(Cart).Clone(), nil
}

func (s *Store) load(ctx context.Context) (Cart, error) {
	start := time.Now()
	f := s.takeOff()
	remote, err := s.remote.GetCart(ctx, s.userID)
	if pkgerrors.Is(err, pkgerrors.CodeNotFound) {
		remote, err = s.remote.CreateCart(ctx, s.userID)
	}
	if err != nil {
		s.abort(ctx)
		if pkgerrors.Is(err, pkgerrors.CodeNetwork) {
			err = pkgerrors.Wrap(pkgerrors.CodeCartUnavailable, err, "cart could not be loaded")
		}
		s.observe("load", start, err)
		return Cart{}, err
	}
	next, err := s.settle(ctx, f, remote)
	s.observe("load", start, err)
	return next, err
}

// Current returns the last acknowledged cart.
func (s *Store) Current() (Cart, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.loaded {
		return Cart{}, false
	}
	return s.current.Clone(), true
}

// AddItem adds quantity units of productID. The backend increments an
// existing line.
func (s *Store) AddItem(ctx context.Context, productID string, quantity int) (Cart, error) {
	if strings.TrimSpace(productID) == "" {
		return Cart{}, pkgerrors.New(pkgerrors.CodeValidation, "product id is required")
	}
	if quantity < 1 {
		return Cart{}, pkgerrors.New(pkgerrors.CodeInvalidQuantity, "quantity must be at least 1").
			WithDetails(map[string]any{"quantity": quantity})
	}
	add := Mutation{Kind: MutationAdd, ProductID: productID, Quantity: quantity}
	return s.mutateLine(ctx, MutationAdd, productID, func(ctx context.Context, current Cart) (sendFunc, error) {
		if err := s.checkStock(ctx, current, add); err != nil {
			return nil, err
		}
		return func(ctx context.Context) (Cart, error) {
			return s.remote.AddItem(ctx, s.userID, productID, quantity)
		}, nil
	})
}

// RemoveItem drops the line for productID. Removing an absent line is a no-op.
func (s *Store) RemoveItem(ctx context.Context, productID string) (Cart, error) {
	return s.mutateLine(ctx, MutationRemove, productID, func(_ context.Context, current Cart) (sendFunc, error) {
		if _, ok := current.Line(productID); !ok {
			return nil, nil
		}
		return s.sendRemove(current.ID, productID), nil
	})
}

// Clear empties the cart after an order has been placed.
func (s *Store) Clear(ctx context.Context) (Cart, error) {
	start := time.Now()
	if _, err := s.ensureLoaded(ctx); err != nil {
		return Cart{}, err
	}
	f := s.takeOff()
	remote, err := s.remote.ClearCart(ctx, s.userID)
	if err != nil {
		s.abort(ctx)
		s.observe(string(MutationClear), start, err)
		return Cart{}, err
	}
	next, err := s.settle(ctx, f, remote)
	s.observe(string(MutationClear), start, err)
	return next, err
}

// Subscribe streams every accepted cart. Slow readers only see the latest
// value. The returned func cancels the subscription.
func (s *Store) Subscribe() (<-chan Cart, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch := make(chan Cart, 1)
	if s.closed {
		close(ch)
		return ch, func() {}
	}
	id := s.nextSub
	s.nextSub++
	s.subs[id] = ch
	if s.loaded {
		ch <- s.current.Clone()
	}
	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			if sub, ok := s.subs[id]; ok {
				delete(s.subs, id)
				close(sub)
			}
		})
	}
}

// Close tears the store down. Responses arriving later are discarded.
func (s *Store) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	for id, ch := range s.subs {
		delete(s.subs, id)
		close(ch)
	}
}

// sendFunc performs the remote half of a mutation.
type sendFunc func(ctx context.Context) (Cart, error)

// lineStep validates a mutation against the acknowledged cart. A nil sendFunc
// with a nil error means there is nothing to send.
type lineStep func(ctx context.Context, current Cart) (sendFunc, error)

// mutateLine runs step while holding the (cart, product) lock and settles the
// server response.
func (s *Store) mutateLine(ctx context.Context, op MutationKind, productID string, step lineStep) (Cart, error) {
	start := time.Now()
	loaded, err := s.ensureLoaded(ctx)
	if err != nil {
		s.observe(string(op), start, err)
		return Cart{}, err
	}

	unlock := s.locks.Lock(lineKey(loaded.ID, productID))
	defer unlock()

	current, ok := s.Current()
	if !ok || s.isClosed() {
		return Cart{}, errClosed()
	}

	send, err := step(ctx, current)
	if err != nil {
		s.observe(string(op), start, err)
		s.logFailure(ctx, op, productID, err)
		return Cart{}, err
	}
	if send == nil {
		return current, nil
	}

	f := s.takeOff()
	remote, err := send(ctx)
	if err != nil {
		s.abort(ctx)
		s.observe(string(op), start, err)
		s.logFailure(ctx, op, productID, err)
		return Cart{}, err
	}
	committed, err := s.settle(ctx, f, remote)
	s.observe(string(op), start, err)
	return committed, err
}

func (s *Store) sendRemove(cartID, productID string) sendFunc {
	return func(ctx context.Context) (Cart, error) {
		return s.remote.RemoveItem(ctx, s.userID, cartID, productID)
	}
}

// checkStock predicts the cart after m and refuses it when the product is
// unavailable or the predicted line exceeds stock.
func (s *Store) checkStock(ctx context.Context, current Cart, m Mutation) error {
	snap, err := s.available(ctx, m.ProductID)
	if err != nil {
		return err
	}
	predicted := current.Apply(m).Quantity(m.ProductID)
	if predicted > snap.Stock {
		return stockExceeded(m.ProductID, predicted, snap.Stock)
	}
	return nil
}

func (s *Store) ensureLoaded(ctx context.Context) (Cart, error) {
	if current, ok := s.Current(); ok {
		return current, nil
	}
	return s.Load(ctx)
}

func (s *Store) available(ctx context.Context, productID string) (products.Snapshot, error) {
	entry, err := s.products.Refresh(ctx, productID)
	if err != nil {
		return products.Snapshot{}, err
	}
	if entry.Tombstone {
		return products.Snapshot{}, pkgerrors.New(pkgerrors.CodeProductUnavailable, "product is unavailable").
			WithDetails(map[string]any{"product_id": productID, "reason": entry.Reason})
	}
	return entry.Snapshot, nil
}

// landing is what happened to a response when its flight ended.
type landing int

const (
	// landed: no other request overlapped, the response is the cart.
	landed landing = iota
	// deferred: overlapped, and a request still in flight will settle the cart.
	deferred
	// stale: overlapped, and this was the last request out.
	stale
)

func (s *Store) takeOff() flight {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inflight++
	s.epoch++
	return flight{start: s.epoch, crowded: s.inflight > 1}
}

// abort ends a flight that produced no response. A refetch owed by earlier
// overlapped responses is paid here when nothing else is in flight.
func (s *Store) abort(ctx context.Context) {
	s.mu.Lock()
	s.inflight--
	owed := s.dirty && s.inflight == 0 && !s.closed
	s.mu.Unlock()
	if !owed {
		return
	}
	if _, err := s.refetch(ctx); err != nil {
		s.warnRefetch(ctx, err)
	}
}

// land ends f and commits remote when no other request overlapped f.
func (s *Store) land(f flight, remote Cart) (Cart, landing, error) {
	next := s.normalize(remote)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inflight--
	if s.closed {
		return Cart{}, stale, errClosed()
	}
	if f.crowded || s.epoch != f.start {
		if s.inflight > 0 {
			s.dirty = true
			return next, deferred, nil
		}
		return next, stale, nil
	}
	s.current = next
	s.loaded = true
	s.dirty = false
	for _, ch := range s.subs {
		publishLatest(ch, next.Clone())
	}
	return next.Clone(), landed, nil
}

// settle lands f. An overlapped response is returned to its caller but only
// committed through a refetch.
func (s *Store) settle(ctx context.Context, f flight, remote Cart) (Cart, error) {
	next, outcome, err := s.land(f, remote)
	if err != nil || outcome != stale {
		return next, err
	}
	refetched, err := s.refetch(ctx)
	if err != nil {
		if pkgerrors.Is(err, pkgerrors.CodeSessionClosed) {
			return Cart{}, err
		}
		s.warnRefetch(ctx, err)
		return next, nil
	}
	return refetched, nil
}

// refetch reads the whole cart back until a read lands or is deferred to a
// later request. A read only goes stale when another request finished during
// it. Concurrent refetches share one loop.
func (s *Store) refetch(ctx context.Context) (Cart, error) {
	v, err, _ := s.loads.Do("refetch", func() (any, error) {
		for {
			if err := ctx.Err(); err != nil {
				s.mu.Lock()
				s.dirty = true
				s.mu.Unlock()
				return Cart{}, err
			}
			f := s.takeOff()
			remote, err := s.remote.GetCart(ctx, s.userID)
			if err != nil {
				s.mu.Lock()
				s.inflight--
				s.dirty = true
				s.mu.Unlock()
				return Cart{}, err
			}
			next, outcome, err := s.land(f, remote)
			if err != nil || outcome != stale {
				return next, err
			}
		}
	})
	if err != nil {
		return Cart{}, err
	}
	return v.(Cart).Clone(), nil
}

func (s *Store) normalize(remote Cart) Cart {
	next := Normalize(remote)
	if next.OwnerID == "" {
		next.OwnerID = s.userID
	}
	return next
}

func (s *Store) warnRefetch(ctx context.Context, err error) {
	s.logg.Warn(s.logg.WithFields(ctx, map[string]any{
		"user_id": s.userID,
		"error":   err.Error(),
	}), "cart.refetch_failed")
}

func publishLatest(ch chan Cart, c Cart) {
	select {
	case ch <- c:
		return
	default:
	}
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- c:
	default:
	}
}

func (s *Store) isClosed() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.closed
}

func (s *Store) observe(op string, start time.Time, err error) {
	outcome := ""
	if err != nil {
		outcome = string(pkgerrors.CodeOf(err))
	}
	s.metrics.ObserveMutation(op, outcome, time.Since(start))
}

func (s *Store) logFailure(ctx context.Context, op MutationKind, productID string, err error) {
	if !pkgerrors.IsRetryable(err) {
		return
	}
	logCtx := s.logg.WithFields(ctx, map[string]any{
		"op":         string(op),
		"product_id": productID,
		"user_id":    s.userID,
	})
	s.logg.Warn(s.logg.WithField(logCtx, "error", err.Error()), "cart.mutation_failed")
}

func errClosed() error {
	return pkgerrors.New(pkgerrors.CodeSessionClosed, "cart session closed")
}

func stockExceeded(productID string, requested, stock int) error {
	return pkgerrors.New(pkgerrors.CodeStockExceeded, "requested quantity exceeds stock").
		WithDetails(map[string]any{"product_id": productID, "requested": requested, "stock": stock})
}
