package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/angelmondragon/storefront/internal/cart"
	"github.com/angelmondragon/storefront/internal/orders"
	"github.com/angelmondragon/storefront/internal/products"
	"github.com/angelmondragon/storefront/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeBackend struct {
	mu      sync.Mutex
	carts   map[string]cart.Cart
	catalog map[string]products.Snapshot
	getErr  error
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		carts: map[string]cart.Cart{},
		catalog: map[string]products.Snapshot{
			"p1": {ProductID: "p1", UnitPriceCents: 5000, Stock: 5, SellerID: "v1"},
			"p2": {ProductID: "p2", UnitPriceCents: 10000, Stock: 2, SellerID: "v2"},
		},
	}
}

func (b *fakeBackend) apply(userID string, m cart.Mutation) cart.Cart {
	b.mu.Lock()
	defer b.mu.Unlock()
	c, ok := b.carts[userID]
	if !ok {
		c = cart.Cart{ID: "cart-" + userID, OwnerID: userID}
	}
	next := c.Apply(m)
	b.carts[userID] = next
	return next.Clone()
}

func (b *fakeBackend) GetCart(_ context.Context, userID string) (cart.Cart, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.getErr != nil {
		return cart.Cart{}, b.getErr
	}
	c, ok := b.carts[userID]
	if !ok {
		return cart.Cart{}, pkgerrors.New(pkgerrors.CodeNotFound, "cart not found")
	}
	return c.Clone(), nil
}

func (b *fakeBackend) CreateCart(_ context.Context, userID string) (cart.Cart, error) {
	return b.apply(userID, cart.Mutation{}), nil
}

func (b *fakeBackend) AddItem(_ context.Context, userID, productID string, quantity int) (cart.Cart, error) {
	return b.apply(userID, cart.Mutation{Kind: cart.MutationAdd, ProductID: productID, Quantity: quantity}), nil
}

func (b *fakeBackend) IncreaseItem(_ context.Context, userID, _, productID string) (cart.Cart, error) {
	return b.apply(userID, cart.Mutation{Kind: cart.MutationIncrease, ProductID: productID}), nil
}

func (b *fakeBackend) DecreaseItem(_ context.Context, userID, _, productID string) (cart.Cart, error) {
	return b.apply(userID, cart.Mutation{Kind: cart.MutationDecrease, ProductID: productID}), nil
}

func (b *fakeBackend) RemoveItem(_ context.Context, userID, _, productID string) (cart.Cart, error) {
	return b.apply(userID, cart.Mutation{Kind: cart.MutationRemove, ProductID: productID}), nil
}

func (b *fakeBackend) ClearCart(_ context.Context, userID string) (cart.Cart, error) {
	return b.apply(userID, cart.Mutation{Kind: cart.MutationClear}), nil
}

func (b *fakeBackend) GetProduct(_ context.Context, productID string) (products.Snapshot, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	snap, ok := b.catalog[productID]
	if !ok {
		return products.Snapshot{}, pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
	}
	return snap, nil
}

func (b *fakeBackend) reprice(productID string, priceCents int64, stock int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	snap := b.catalog[productID]
	snap.UnitPriceCents = priceCents
	snap.Stock = stock
	b.catalog[productID] = snap
}

type stubSubmitter struct {
	release chan struct{}
	started chan struct{}
}

func (s *stubSubmitter) Submit(_ context.Context, in orders.SubmitInput) (orders.Order, error) {
	if s.started != nil {
		close(s.started)
	}
	if s.release != nil {
		<-s.release
	}
	items, total, err := orders.BuildItems(in.Cart, in.Resolved)
	if err != nil {
		return orders.Order{}, err
	}
	return orders.Order{ID: "order-" + in.SessionID, BuyerID: in.BuyerID, Items: items, TotalCents: total, PaymentMethod: in.PaymentMethod}, nil
}

func newTestRegistry(t *testing.T, backend *fakeBackend, submitter *stubSubmitter) *Registry {
	t.Helper()
	registry, err := NewRegistry(Deps{Backend: backend, Submitter: submitter, ResolveConcurrency: 4})
	require.NoError(t, err)
	return registry
}

func TestNewRegistryValidatesDeps(t *testing.T) {
	t.Parallel()

	_, err := NewRegistry(Deps{Submitter: &stubSubmitter{}})
	require.Error(t, err)
	_, err = NewRegistry(Deps{Backend: newFakeBackend()})
	require.Error(t, err)
}

func TestOpenIsIdempotentPerUser(t *testing.T) {
	t.Parallel()

	registry := newTestRegistry(t, newFakeBackend(), &stubSubmitter{})
	ctx := context.Background()

	first, err := registry.Open(ctx, "u1")
	require.NoError(t, err)
	second, err := registry.Open(ctx, "u1")
	require.NoError(t, err)
	assert.Same(t, first, second)
	assert.Equal(t, 1, registry.Len())

	c, err := first.Cart(ctx)
	require.NoError(t, err)
	assert.Equal(t, "cart-u1", c.ID)
}

func TestOpenFailureLeavesNoSession(t *testing.T) {
	t.Parallel()

	backend := newFakeBackend()
	backend.getErr = pkgerrors.New(pkgerrors.CodeNetwork, "backend unreachable")
	registry := newTestRegistry(t, backend, &stubSubmitter{})

	_, err := registry.Open(context.Background(), "u1")
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeCartUnavailable))
	assert.Equal(t, 0, registry.Len())
	_, err = registry.Get("u1")
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeSessionClosed))
}

func TestObserveSessionExpiredTearsDown(t *testing.T) {
	t.Parallel()

	registry := newTestRegistry(t, newFakeBackend(), &stubSubmitter{})
	ctx := context.Background()
	client, err := registry.Open(ctx, "u1")
	require.NoError(t, err)

	registry.Observe(ctx, "u1", pkgerrors.New(pkgerrors.CodeNetwork, "flaky"))
	assert.Equal(t, 1, registry.Len())

	registry.Observe(ctx, "u1", pkgerrors.New(pkgerrors.CodeSessionExpired, "token expired"))
	assert.Equal(t, 0, registry.Len())

	_, err = client.AddItem(ctx, "p1", 1)
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeSessionClosed))
}

func TestMutationWhileReviewingRefreshesSnapshot(t *testing.T) {
	t.Parallel()

	registry := newTestRegistry(t, newFakeBackend(), &stubSubmitter{})
	ctx := context.Background()
	client, err := registry.Open(ctx, "u1")
	require.NoError(t, err)

	_, err = client.AddItem(ctx, "p1", 1)
	require.NoError(t, err)
	flow, err := client.BeginCheckout(ctx)
	require.NoError(t, err)

	_, err = client.Increase(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, 2, flow.Session().CartSnapshot.Quantity("p1"))
	assert.Equal(t, int64(10000), flow.Summary().SubtotalCents)

	_, err = flow.ProceedToPayment(ctx)
	require.NoError(t, err)
	_, err = client.AddItem(ctx, "p2", 1)
	require.NoError(t, err)
	assert.Equal(t, 0, flow.Session().CartSnapshot.Quantity("p2"), "selecting_payment keeps its snapshot")
}

func TestBeginCheckoutAbandonsPrevious(t *testing.T) {
	t.Parallel()

	registry := newTestRegistry(t, newFakeBackend(), &stubSubmitter{})
	ctx := context.Background()
	client, err := registry.Open(ctx, "u1")
	require.NoError(t, err)
	_, err = client.AddItem(ctx, "p1", 1)
	require.NoError(t, err)

	first, err := client.BeginCheckout(ctx)
	require.NoError(t, err)
	second, err := client.BeginCheckout(ctx)
	require.NoError(t, err)
	assert.True(t, first.Abandoned())
	assert.False(t, second.Abandoned())

	current, err := client.Checkout()
	require.NoError(t, err)
	assert.Same(t, second, current)

	require.NoError(t, client.AbandonCheckout())
	_, err = client.Checkout()
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeNotFound))
}

func TestConfirmThroughClient(t *testing.T) {
	t.Parallel()

	registry := newTestRegistry(t, newFakeBackend(), &stubSubmitter{})
	ctx := context.Background()
	client, err := registry.Open(ctx, "u1")
	require.NoError(t, err)
	_, err = client.AddItem(ctx, "p2", 2)
	require.NoError(t, err)

	flow, err := client.BeginCheckout(ctx)
	require.NoError(t, err)
	_, err = flow.ProceedToPayment(ctx)
	require.NoError(t, err)
	_, err = flow.SelectPayment(string(enums.PaymentMethodCash))
	require.NoError(t, err)

	order, err := client.Confirm(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(20000), order.TotalCents)
}

func TestCloseAllReportsPendingSubmissions(t *testing.T) {
	t.Parallel()

	submitter := &stubSubmitter{release: make(chan struct{}), started: make(chan struct{})}
	registry := newTestRegistry(t, newFakeBackend(), submitter)
	ctx := context.Background()

	busy, err := registry.Open(ctx, "u1")
	require.NoError(t, err)
	_, err = registry.Open(ctx, "u2")
	require.NoError(t, err)

	_, err = busy.AddItem(ctx, "p1", 1)
	require.NoError(t, err)
	flow, err := busy.BeginCheckout(ctx)
	require.NoError(t, err)
	_, err = flow.ProceedToPayment(ctx)
	require.NoError(t, err)
	_, err = flow.SelectPayment(string(enums.PaymentMethodTransfer))
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = flow.Confirm(ctx)
	}()
	select {
	case <-submitter.started:
	case <-time.After(time.Second):
		t.Fatal("submission did not start")
	}

	err = registry.CloseAll()
	require.Error(t, err)
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeSubmissionInFlight))
	assert.Equal(t, 0, registry.Len())

	close(submitter.release)
	<-done
}

func TestIncreaseSucceedsAfterRestock(t *testing.T) {
	t.Parallel()

	backend := newFakeBackend()
	backend.reprice("p1", 5000, 1)
	registry := newTestRegistry(t, backend, &stubSubmitter{})
	ctx := context.Background()
	client, err := registry.Open(ctx, "u1")
	require.NoError(t, err)

	_, err = client.AddItem(ctx, "p1", 1)
	require.NoError(t, err)
	_, err = client.Increase(ctx, "p1")
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeStockExceeded))

	backend.reprice("p1", 9000, 10)
	c, err := client.Increase(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, 2, c.Quantity("p1"))

	summary, err := client.Summary(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(18000), summary.SubtotalCents)
}

func TestNewCheckoutSeesRepricedProducts(t *testing.T) {
	t.Parallel()

	backend := newFakeBackend()
	registry := newTestRegistry(t, backend, &stubSubmitter{})
	ctx := context.Background()
	client, err := registry.Open(ctx, "u1")
	require.NoError(t, err)
	_, err = client.AddItem(ctx, "p1", 1)
	require.NoError(t, err)

	first, err := client.BeginCheckout(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(5000), first.Summary().SubtotalCents)

	backend.reprice("p1", 9000, 5)
	assert.Equal(t, int64(5000), first.Summary().SubtotalCents, "a checkout keeps the prices it captured")

	second, err := client.BeginCheckout(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(9000), second.Summary().SubtotalCents)
	assert.Equal(t, int64(9000), second.Session().Resolved["p1"].Snapshot.UnitPriceCents)
}

func TestDecreaseOrRemoveRefreshesReview(t *testing.T) {
	t.Parallel()

	registry := newTestRegistry(t, newFakeBackend(), &stubSubmitter{})
	ctx := context.Background()
	client, err := registry.Open(ctx, "u1")
	require.NoError(t, err)
	_, err = client.AddItem(ctx, "p1", 1)
	require.NoError(t, err)
	_, err = client.AddItem(ctx, "p2", 1)
	require.NoError(t, err)
	flow, err := client.BeginCheckout(ctx)
	require.NoError(t, err)

	c, err := client.DecreaseOrRemove(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, 0, c.Quantity("p1"))
	assert.Equal(t, 0, flow.Session().CartSnapshot.Quantity("p1"))
	assert.Equal(t, int64(10000), flow.Summary().SubtotalCents)
}
