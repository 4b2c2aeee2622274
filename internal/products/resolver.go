package products

import (
	"context"
	"fmt"
	"sync"

	pkgerrors "github.com/angelmondragon/storefront/pkg/errors"
	"github.com/angelmondragon/storefront/pkg/logger"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

const defaultConcurrency = 8

// Source fetches a single product from the commerce backend. Deleted products
// must be reported with pkgerrors.CodeNotFound.
type Source interface {
	GetProduct(ctx context.Context, productID string) (Snapshot, error)
}

// SnapshotCache is an optional cache shared across resolvers.
type SnapshotCache interface {
	Get(ctx context.Context, productID string) (Snapshot, bool, error)
	Set(ctx context.Context, snapshot Snapshot) error
}

// Resolver hydrates product ids into snapshots and remembers them for its
// lifetime. Each checkout session gets its own resolver; the cart view keeps
// one per user and refreshes what it shows.
type Resolver struct {
	source Source
	shared SnapshotCache
	logg   *logger.Logger
	limit  int

	group singleflight.Group

	mu      sync.RWMutex
	entries map[string]Entry
}

// Option configures optional resolver behavior.
type Option func(*Resolver)

// WithSharedCache plugs in a cross-session snapshot cache.
func WithSharedCache(cache SnapshotCache) Option {
	return func(r *Resolver) {
		r.shared = cache
	}
}

// WithConcurrency bounds the number of concurrent product lookups.
func WithConcurrency(n int) Option {
	return func(r *Resolver) {
		if n > 0 {
			r.limit = n
		}
	}
}

// WithLogger attaches a logger.
func WithLogger(logg *logger.Logger) Option {
	return func(r *Resolver) {
		if logg != nil {
			r.logg = logg
		}
	}
}

// NewResolver builds a resolver over source.
func NewResolver(source Source, opts ...Option) (*Resolver, error) {
	if source == nil {
		return nil, fmt.Errorf("product source required")
	}
	r := &Resolver{
		source:  source,
		logg:    logger.Nop(),
		limit:   defaultConcurrency,
		entries: map[string]Entry{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r, nil
}

// Resolve returns an entry for every distinct id. Products that cannot be
// resolved come back as tombstones; only session expiry or cancellation fail
// the whole batch.
func (r *Resolver) Resolve(ctx context.Context, ids []string) (Resolution, error) {
	out := make(Resolution, len(ids))
	var missing []string

	r.mu.RLock()
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, seen := out[id]; seen {
			continue
		}
		if entry, ok := r.entries[id]; ok {
			out[id] = entry
			continue
		}
		out[id] = Entry{}
		missing = append(missing, id)
	}
	r.mu.RUnlock()

	if len(missing) == 0 {
		return out, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.limit)
	var mu sync.Mutex
	for _, id := range missing {
		g.Go(func() error {
			entry, err := r.fetch(gctx, id)
			if err != nil {
				return err
			}
			mu.Lock()
			out[id] = entry
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// Lookup resolves a single product.
func (r *Resolver) Lookup(ctx context.Context, productID string) (Entry, error) {
	if productID == "" {
		return Entry{}, pkgerrors.New(pkgerrors.CodeValidation, "product id is required")
	}
	res, err := r.Resolve(ctx, []string{productID})
	if err != nil {
		return Entry{}, err
	}
	return res[productID], nil
}

// Forget drops remembered entries so the next Resolve refetches them.
func (r *Resolver) Forget(productIDs ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, id := range productIDs {
		delete(r.entries, id)
	}
}

// Cached returns the remembered entry for productID, if any.
func (r *Resolver) Cached(productID string) (Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.entries[productID]
	return entry, ok
}

func (r *Resolver) fetch(ctx context.Context, productID string) (Entry, error) {
	v, err, _ := r.group.Do(productID, func() (any, error) {
		return r.load(ctx, productID)
	})
	if err != nil {
		return Entry{}, err
	}
	return v.(Entry), nil
}

func (r *Resolver) load(ctx context.Context, productID string) (Entry, error) {
	if r.shared != nil {
		snap, ok, err := r.shared.Get(ctx, productID)
		if err != nil {
			logCtx := r.logg.WithProductID(ctx, productID)
			r.logg.Warn(r.logg.WithField(logCtx, "error", err.Error()), "products.shared_cache_get_failed")
		} else if ok {
			entry := Entry{Snapshot: snap}
			r.remember(productID, entry)
			return entry, nil
		}
	}
	return r.fetchSource(ctx, productID)
}

// Refresh fetches productID from the source, skipping both caches, and
// remembers the result. Stock checks use it so a restock is seen at once.
func (r *Resolver) Refresh(ctx context.Context, productID string) (Entry, error) {
	if productID == "" {
		return Entry{}, pkgerrors.New(pkgerrors.CodeValidation, "product id is required")
	}
	r.Forget(productID)
	v, err, _ := r.group.Do("refresh:"+productID, func() (any, error) {
		return r.fetchSource(ctx, productID)
	})
	if err != nil {
		return Entry{}, err
	}
	return v.(Entry), nil
}

func (r *Resolver) fetchSource(ctx context.Context, productID string) (Entry, error) {
	logCtx := r.logg.WithProductID(ctx, productID)

	snap, err := r.source.GetProduct(ctx, productID)
	switch {
	case err == nil:
		snap.ProductID = productID
		if snap.Stock < 0 {
			snap.Stock = 0
		}
		entry := Entry{Snapshot: snap}
		r.remember(productID, entry)
		if r.shared != nil {
			if cacheErr := r.shared.Set(ctx, snap); cacheErr != nil {
				r.logg.Warn(r.logg.WithField(logCtx, "error", cacheErr.Error()), "products.shared_cache_set_failed")
			}
		}
		return entry, nil
	case pkgerrors.Is(err, pkgerrors.CodeNotFound):
		entry := tombstone(productID, ReasonNotFound)
		r.remember(productID, entry)
		return entry, nil
	case pkgerrors.Is(err, pkgerrors.CodeSessionExpired), ctx.Err() != nil:
		return Entry{}, err
	default:
		r.logg.Warn(r.logg.WithField(logCtx, "error", err.Error()), "products.resolve_failed")
		return tombstone(productID, ReasonUnreachable), nil
	}
}

func (r *Resolver) remember(productID string, entry Entry) {
	r.mu.Lock()
	r.entries[productID] = entry
	r.mu.Unlock()
}
