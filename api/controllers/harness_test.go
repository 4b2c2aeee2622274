package controllers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/storefront/api/middleware"
	"github.com/angelmondragon/storefront/internal/cart"
	"github.com/angelmondragon/storefront/internal/orders"
	"github.com/angelmondragon/storefront/internal/products"
	"github.com/angelmondragon/storefront/internal/session"
	pkgerrors "github.com/angelmondragon/storefront/pkg/errors"
	"github.com/angelmondragon/storefront/pkg/logger"
)

const testUser = "user-1"

type fakeBackend struct {
	mu      sync.Mutex
	carts   map[string]cart.Cart
	catalog map[string]products.Snapshot
	expired bool
	orders  int
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		carts: map[string]cart.Cart{},
		catalog: map[string]products.Snapshot{
			"p1": {ProductID: "p1", Name: "Tamales", UnitPriceCents: 5000, Stock: 10, SellerID: "v1"},
			"p2": {ProductID: "p2", Name: "Mole", UnitPriceCents: 10000, Stock: 3, SellerID: "v2"},
		},
	}
}

func (b *fakeBackend) seed(userID string, lines ...cart.Line) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.carts[userID] = cart.Normalize(cart.Cart{ID: "cart-" + userID, OwnerID: userID, Lines: lines})
}

func (b *fakeBackend) apply(userID string, m cart.Mutation) (cart.Cart, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.expired {
		return cart.Cart{}, pkgerrors.New(pkgerrors.CodeSessionExpired, "token expired")
	}
	c, ok := b.carts[userID]
	if !ok {
		c = cart.Cart{ID: "cart-" + userID, OwnerID: userID}
	}
	next := c.Apply(m)
	b.carts[userID] = next
	return next.Clone(), nil
}

func (b *fakeBackend) GetCart(_ context.Context, userID string) (cart.Cart, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	c, ok := b.carts[userID]
	if !ok {
		return cart.Cart{}, pkgerrors.New(pkgerrors.CodeNotFound, "cart not found")
	}
	return c.Clone(), nil
}

func (b *fakeBackend) CreateCart(_ context.Context, userID string) (cart.Cart, error) {
	return b.apply(userID, cart.Mutation{})
}

func (b *fakeBackend) AddItem(_ context.Context, userID, productID string, quantity int) (cart.Cart, error) {
	return b.apply(userID, cart.Mutation{Kind: cart.MutationAdd, ProductID: productID, Quantity: quantity})
}

func (b *fakeBackend) IncreaseItem(_ context.Context, userID, _, productID string) (cart.Cart, error) {
	return b.apply(userID, cart.Mutation{Kind: cart.MutationIncrease, ProductID: productID})
}

func (b *fakeBackend) DecreaseItem(_ context.Context, userID, _, productID string) (cart.Cart, error) {
	return b.apply(userID, cart.Mutation{Kind: cart.MutationDecrease, ProductID: productID})
}

func (b *fakeBackend) RemoveItem(_ context.Context, userID, _, productID string) (cart.Cart, error) {
	return b.apply(userID, cart.Mutation{Kind: cart.MutationRemove, ProductID: productID})
}

func (b *fakeBackend) ClearCart(_ context.Context, userID string) (cart.Cart, error) {
	return b.apply(userID, cart.Mutation{Kind: cart.MutationClear})
}

func (b *fakeBackend) GetProduct(_ context.Context, productID string) (products.Snapshot, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.expired {
		return products.Snapshot{}, pkgerrors.New(pkgerrors.CodeSessionExpired, "token expired")
	}
	snap, ok := b.catalog[productID]
	if !ok {
		return products.Snapshot{}, pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
	}
	return snap, nil
}

func (b *fakeBackend) CreateOrder(_ context.Context, req orders.Request, key string) (orders.Order, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.orders++
	return orders.Order{ID: fmt.Sprintf("order-%s", key), BuyerID: req.BuyerID, CreatedAt: time.Now().UTC()}, nil
}

func (b *fakeBackend) expire() {
	b.mu.Lock()
	b.expired = true
	b.mu.Unlock()
}

type harness struct {
	backend  *fakeBackend
	registry *session.Registry
	router   http.Handler
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	backend := newFakeBackend()
	submitter, err := orders.NewSubmitter(backend)
	require.NoError(t, err)
	registry, err := session.NewRegistry(session.Deps{
		Backend:            backend,
		Submitter:          submitter,
		ResolveConcurrency: 4,
		Logger:             logger.Nop(),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = registry.CloseAll() })

	logg := logger.Nop()
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			if user := req.Header.Get("X-Test-User"); user != "" {
				req = req.WithContext(middleware.WithUserID(req.Context(), user))
			}
			next.ServeHTTP(w, req)
		})
	})
	r.Post("/session", SessionOpen(registry, logg))
	r.Delete("/session", SessionClose(registry, logg))
	r.Get("/cart", CartGet(registry, logg))
	r.Get("/cart/events", CartEvents(registry, logg))
	r.Post("/cart/items", CartAddItem(registry, 3*time.Second, logg))
	r.Post("/cart/items/{productID}/increase", CartIncrease(registry, logg))
	r.Post("/cart/items/{productID}/decrease", CartDecrease(registry, logg))
	r.Delete("/cart/items/{productID}", CartRemoveItem(registry, logg))
	r.Post("/checkout", CheckoutBegin(registry, logg))
	r.Get("/checkout", CheckoutGet(registry, logg))
	r.Post("/checkout/review", CheckoutReview(registry, logg))
	r.Post("/checkout/proceed", CheckoutProceed(registry, logg))
	r.Put("/checkout/payment-method", CheckoutSelectPayment(registry, logg))
	r.Post("/checkout/confirm", CheckoutConfirm(registry, logg))
	r.Delete("/checkout", CheckoutAbandon(registry, logg))

	return &harness{backend: backend, registry: registry, router: r}
}

func (h *harness) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("X-Test-User", testUser)
	resp := httptest.NewRecorder()
	h.router.ServeHTTP(resp, req)
	return resp
}

type envelope[T any] struct {
	Data   T `json:"data"`
	Notice *struct {
		Message        string `json:"message"`
		DismissAfterMS int64  `json:"dismiss_after_ms"`
	} `json:"notice"`
	Error *struct {
		Code    string         `json:"code"`
		Message string         `json:"message"`
		Details map[string]any `json:"details"`
	} `json:"error"`
}

func decode[T any](t *testing.T, resp *httptest.ResponseRecorder) envelope[T] {
	t.Helper()
	var out envelope[T]
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &out), resp.Body.String())
	return out
}
