package session

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/angelmondragon/storefront/internal/cart"
	"github.com/angelmondragon/storefront/internal/checkout"
	"github.com/angelmondragon/storefront/internal/products"
	pkgerrors "github.com/angelmondragon/storefront/pkg/errors"
	"github.com/angelmondragon/storefront/pkg/logger"
	"github.com/angelmondragon/storefront/pkg/metrics"
	"go.uber.org/multierr"
)

// Backend is the remote surface a user session needs.
type Backend interface {
	cart.Remote
	products.Source
}

// Deps are shared by every user session.
type Deps struct {
	Backend            Backend
	Submitter          checkout.Submitter
	SharedCache        products.SnapshotCache
	ResolveConcurrency int
	Metrics            *metrics.Storefront
	Logger             *logger.Logger
}

// Registry owns one Client per logged-in user. Sessions are created on login
// and torn down on logout or when the backend reports the token expired.
type Registry struct {
	deps Deps

	mu      sync.Mutex
	clients map[string]*Client
}

// NewRegistry validates deps and returns an empty registry.
func NewRegistry(deps Deps) (*Registry, error) {
	if deps.Backend == nil {
		return nil, fmt.Errorf("backend required")
	}
	if deps.Submitter == nil {
		return nil, fmt.Errorf("order submitter required")
	}
	if deps.Logger == nil {
		deps.Logger = logger.Nop()
	}
	return &Registry{deps: deps, clients: map[string]*Client{}}, nil
}

// Open returns the user's session, creating it and loading the cart when
// needed. A failed initial load leaves no session behind.
func (r *Registry) Open(ctx context.Context, userID string) (*Client, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}

	r.mu.Lock()
	if existing, ok := r.clients[userID]; ok {
		r.mu.Unlock()
		return existing, nil
	}
	client, err := r.newClient(userID)
	if err != nil {
		r.mu.Unlock()
		return nil, err
	}
	r.clients[userID] = client
	r.mu.Unlock()

	if _, err := client.store.Load(ctx); err != nil {
		r.drop(userID, client)
		return nil, err
	}
	r.deps.Logger.Info(r.deps.Logger.WithUserID(ctx, userID), "session.opened")
	return client, nil
}

// Get returns the open session for userID.
func (r *Registry) Get(userID string) (*Client, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	client, ok := r.clients[userID]
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeSessionClosed, "no open session for user")
	}
	return client, nil
}

// Close tears down the user's session. Closing an unknown user is a no-op.
func (r *Registry) Close(userID string) {
	r.mu.Lock()
	client, ok := r.clients[userID]
	delete(r.clients, userID)
	r.mu.Unlock()
	if !ok {
		return
	}
	if err := client.close(); err != nil {
		r.deps.Logger.Warn(r.deps.Logger.WithField(r.deps.Logger.WithUserID(context.Background(), userID), "error", err.Error()), "session.closed_with_pending_submission")
	}
}

// CloseAll tears every session down on shutdown.
func (r *Registry) CloseAll() error {
	r.mu.Lock()
	clients := r.clients
	r.clients = map[string]*Client{}
	r.mu.Unlock()

	var errs error
	for userID, client := range clients {
		if err := client.close(); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("close session %s: %w", userID, err))
		}
	}
	return errs
}

// Observe inspects an error returned to userID and tears the session down
// when the backend reported the token expired.
func (r *Registry) Observe(ctx context.Context, userID string, err error) {
	if !pkgerrors.Is(err, pkgerrors.CodeSessionExpired) {
		return
	}
	r.deps.Logger.Warn(r.deps.Logger.WithUserID(ctx, userID), "session.expired")
	r.Close(userID)
}

// Len reports how many sessions are open.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.clients)
}

func (r *Registry) drop(userID string, client *Client) {
	r.mu.Lock()
	if r.clients[userID] == client {
		delete(r.clients, userID)
	}
	r.mu.Unlock()
	_ = client.close()
}

// newResolver builds a snapshot cache. The cart view keeps one per user and
// every checkout gets a fresh one.
func (r *Registry) newResolver() (*products.Resolver, error) {
	opts := []products.Option{
		products.WithConcurrency(r.deps.ResolveConcurrency),
		products.WithLogger(r.deps.Logger),
	}
	if r.deps.SharedCache != nil {
		opts = append(opts, products.WithSharedCache(r.deps.SharedCache))
	}
	return products.NewResolver(r.deps.Backend, opts...)
}

func (r *Registry) newClient(userID string) (*Client, error) {
	resolver, err := r.newResolver()
	if err != nil {
		return nil, err
	}
	store, err := cart.NewStore(userID, r.deps.Backend, resolver,
		cart.WithMetrics(r.deps.Metrics),
		cart.WithLogger(r.deps.Logger),
	)
	if err != nil {
		return nil, err
	}
	mutator, err := cart.NewMutator(store)
	if err != nil {
		return nil, err
	}
	return &Client{
		userID:    userID,
		deps:      r.deps,
		store:     store,
		mutator:   mutator,
		resolver:  resolver,
		resolvers: r.newResolver,
	}, nil
}
