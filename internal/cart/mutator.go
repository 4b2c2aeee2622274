package cart

import (
	"context"
	"fmt"

	pkgerrors "github.com/angelmondragon/storefront/pkg/errors"
)

// Mutator steps line quantities up or down by one. It shares the store's
// per-line lock so steps, adds and removes on one product never overlap.
type Mutator struct {
	store *Store
}

func NewMutator(store *Store) (*Mutator, error) {
	if store == nil {
		return nil, fmt.Errorf("cart store required")
	}
	return &Mutator{store: store}, nil
}

// Increase adds one unit of productID, bounded by the product's stock.
func (m *Mutator) Increase(ctx context.Context, productID string) (Cart, error) {
	s := m.store
	inc := Mutation{Kind: MutationIncrease, ProductID: productID}
	return s.mutateLine(ctx, MutationIncrease, productID, func(ctx context.Context, current Cart) (sendFunc, error) {
		if _, ok := current.Line(productID); !ok {
			return nil, lineNotFound(productID)
		}
		if err := s.checkStock(ctx, current, inc); err != nil {
			return nil, err
		}
		cartID := current.ID
		return func(ctx context.Context) (Cart, error) {
			return s.remote.IncreaseItem(ctx, s.userID, cartID, productID)
		}, nil
	})
}

// Decrease removes one unit of productID. At quantity one nothing is sent and
// CONFIRM_REMOVAL is returned so the caller can ask before removing the line.
func (m *Mutator) Decrease(ctx context.Context, productID string) (Cart, error) {
	return m.step(ctx, productID, false)
}

// DecreaseOrRemove is Decrease with the removal already confirmed: at quantity
// one the line is removed under the same line lock.
func (m *Mutator) DecreaseOrRemove(ctx context.Context, productID string) (Cart, error) {
	return m.step(ctx, productID, true)
}

func (m *Mutator) step(ctx context.Context, productID string, confirmed bool) (Cart, error) {
	s := m.store
	return s.mutateLine(ctx, MutationDecrease, productID, func(_ context.Context, current Cart) (sendFunc, error) {
		line, ok := current.Line(productID)
		if !ok {
			return nil, lineNotFound(productID)
		}
		if line.Quantity <= 1 {
			if confirmed {
				return s.sendRemove(current.ID, productID), nil
			}
			return nil, pkgerrors.New(pkgerrors.CodeConfirmRemoval, "removing the last unit requires confirmation").
				WithDetails(map[string]any{"product_id": productID, "confirm_removal": true})
		}
		cartID := current.ID
		return func(ctx context.Context) (Cart, error) {
			return s.remote.DecreaseItem(ctx, s.userID, cartID, productID)
		}, nil
	})
}

// Remove is RemoveItem under the mutator's name, used after a confirmed removal.
func (m *Mutator) Remove(ctx context.Context, productID string) (Cart, error) {
	return m.store.RemoveItem(ctx, productID)
}

func lineNotFound(productID string) error {
	return pkgerrors.New(pkgerrors.CodeNotFound, "product is not in the cart").
		WithDetails(map[string]any{"product_id": productID})
}
