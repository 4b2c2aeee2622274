package session

import (
	"context"
	"sync"

	"github.com/angelmondragon/storefront/internal/cart"
	"github.com/angelmondragon/storefront/internal/checkout"
	"github.com/angelmondragon/storefront/internal/orders"
	"github.com/angelmondragon/storefront/internal/products"
	"github.com/angelmondragon/storefront/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront/pkg/errors"
)

// Client is one user's cart view plus at most one checkout in progress.
type Client struct {
	userID   string
	deps     Deps
	store    *cart.Store
	mutator  *cart.Mutator
	resolver *products.Resolver
	// resolvers builds the snapshot cache of one checkout.
	resolvers func() (*products.Resolver, error)

	mu   sync.Mutex
	flow *checkout.Flow
}

func (c *Client) UserID() string {
	return c.userID
}

// Cart returns the last acknowledged cart, loading it when nothing has been
// acknowledged yet.
func (c *Client) Cart(ctx context.Context) (cart.Cart, error) {
	if current, ok := c.store.Current(); ok {
		return current, nil
	}
	return c.store.Load(ctx)
}

// Refresh reloads the cart from the backend.
func (c *Client) Refresh(ctx context.Context) (cart.Cart, error) {
	return c.store.Load(ctx)
}

// Summary prices the live cart against current product data.
func (c *Client) Summary(ctx context.Context) (cart.Summary, error) {
	current, err := c.Cart(ctx)
	if err != nil {
		return cart.Summary{}, err
	}
	ids := current.ProductIDs()
	c.resolver.Forget(ids...)
	res, err := c.resolver.Resolve(ctx, ids)
	if err != nil {
		return cart.Summary{}, err
	}
	return cart.Hydrate(current, res), nil
}

// Subscribe streams accepted carts.
func (c *Client) Subscribe() (<-chan cart.Cart, func()) {
	return c.store.Subscribe()
}

func (c *Client) AddItem(ctx context.Context, productID string, quantity int) (cart.Cart, error) {
	return c.afterMutation(ctx)(c.store.AddItem(ctx, productID, quantity))
}

func (c *Client) Increase(ctx context.Context, productID string) (cart.Cart, error) {
	return c.afterMutation(ctx)(c.mutator.Increase(ctx, productID))
}

func (c *Client) Decrease(ctx context.Context, productID string) (cart.Cart, error) {
	return c.afterMutation(ctx)(c.mutator.Decrease(ctx, productID))
}

func (c *Client) RemoveItem(ctx context.Context, productID string) (cart.Cart, error) {
	return c.afterMutation(ctx)(c.mutator.Remove(ctx, productID))
}

// DecreaseOrRemove steps productID down and removes the line at quantity one.
func (c *Client) DecreaseOrRemove(ctx context.Context, productID string) (cart.Cart, error) {
	return c.afterMutation(ctx)(c.mutator.DecreaseOrRemove(ctx, productID))
}

// afterMutation re-enters review on a checkout that is still reviewing so
// its snapshot follows the cart.
func (c *Client) afterMutation(ctx context.Context) func(cart.Cart, error) (cart.Cart, error) {
	return func(next cart.Cart, err error) (cart.Cart, error) {
		if err != nil {
			return next, err
		}
		flow := c.currentFlow()
		if flow == nil || flow.Session().State != enums.CheckoutStateReviewing {
			return next, nil
		}
		if _, reviewErr := flow.Review(ctx); reviewErr != nil && !pkgerrors.Is(reviewErr, pkgerrors.CodeEmptyCart) {
			c.deps.Logger.Warn(c.deps.Logger.WithField(ctx, "error", reviewErr.Error()), "session.review_after_mutation_failed")
		}
		return next, nil
	}
}

// BeginCheckout starts a new checkout with its own snapshot cache, abandoning
// any previous one.
func (c *Client) BeginCheckout(ctx context.Context) (*checkout.Flow, error) {
	resolver, err := c.resolvers()
	if err != nil {
		return nil, err
	}
	flow, err := checkout.Begin(ctx, c.store, resolver, c.deps.Submitter,
		checkout.WithMetrics(c.deps.Metrics),
		checkout.WithLogger(c.deps.Logger),
	)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	previous := c.flow
	c.flow = flow
	c.mu.Unlock()
	if previous != nil {
		if err := previous.Abandon(); err != nil {
			c.deps.Logger.Warn(c.deps.Logger.WithField(ctx, "error", err.Error()), "session.previous_checkout_abandoned")
		}
	}
	return flow, nil
}

// Checkout returns the checkout in progress.
func (c *Client) Checkout() (*checkout.Flow, error) {
	flow := c.currentFlow()
	if flow == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "no checkout in progress")
	}
	return flow, nil
}

// Confirm confirms the checkout in progress.
func (c *Client) Confirm(ctx context.Context) (orders.Order, error) {
	flow, err := c.Checkout()
	if err != nil {
		return orders.Order{}, err
	}
	return flow.Confirm(ctx)
}

// AbandonCheckout drops the checkout in progress, if any.
func (c *Client) AbandonCheckout() error {
	c.mu.Lock()
	flow := c.flow
	c.flow = nil
	c.mu.Unlock()
	if flow == nil {
		return nil
	}
	return flow.Abandon()
}

func (c *Client) currentFlow() *checkout.Flow {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.flow
}

func (c *Client) close() error {
	err := c.AbandonCheckout()
	c.store.Close()
	return err
}
